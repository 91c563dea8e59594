// Package extractor pulls phone numbers, vehicle plates and payment
// references out of free-text bank narrations.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/logger"
)

var agencyToken = regexp.MustCompile(`(?i)agency\s*(?:\[\s*\d+\s*\]|\(\s*\d+\s*\)|@\s*\d+\s*@)`)

// Extractor finds identifiers in narrations using a BankProfile.
type Extractor struct {
	profile  BankProfile
	markers  []string
	sections []string
	noise    []*regexp.Regexp
	blocked  map[string]bool
	plates   []plateMatcher
	suggest  *regexp.Regexp
	logger   logger.Logger
}

// New compiles the profile into an Extractor.
func New(profile BankProfile, log logger.Logger) (*Extractor, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bank profile: %w", err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	prefix := strings.ToUpper(profile.PlatePrefix)
	e := &Extractor{
		profile:  profile,
		markers:  upperAll(profile.AccountMarkers),
		sections: upperAll(profile.SectionMarkers),
		blocked:  make(map[string]bool, len(profile.Blocklist)),
		plates:   newPlateMatchers(prefix),
		suggest:  newSuggestionPattern(prefix),
		logger:   log.WithComponent("extractor"),
	}
	for _, pattern := range profile.NoisePatterns {
		e.noise = append(e.noise, regexp.MustCompile(pattern))
	}
	for _, word := range upperAll(profile.Blocklist) {
		e.blocked[word] = true
	}
	return e, nil
}

// Profile returns the profile the extractor was built from.
func (e *Extractor) Profile() BankProfile {
	return e.profile
}

// Extract returns the phone, plate and reference found in narration. The
// search texts are tried in order and the first one holding a phone or a
// plate decides both, so an account or routing number outside the
// description section never overrides what the section names.
func (e *Extractor) Extract(narration string) models.Identifiers {
	ids := models.Identifiers{Reference: Reference(narration)}

	for _, text := range e.searchTexts(narration) {
		phone := e.Phone(text)
		m, hasPlate := e.plate(text)
		if phone == "" && !hasPlate {
			continue
		}

		ids.Phone = phone
		if phone != "" {
			e.logger.WithField("phone", phone).Debug("Phone extracted")
		}
		if hasPlate {
			ids.Plate = m.plate
			e.logger.WithFields(logger.Fields{
				"matcher":  m.matcher,
				"fragment": m.fragment,
				"plate":    m.plate,
			}).Debug("Plate extracted")
		}
		return ids
	}

	e.logger.WithField("narration", truncate(narration, 80)).Debug("No strict identifier")
	return ids
}

// searchTexts returns the texts to search in priority order: the description
// section if present, then the noise-stripped narration.
func (e *Extractor) searchTexts(narration string) []string {
	text := agencyToken.ReplaceAllString(strings.ToUpper(narration), " ")

	var texts []string
	if section, ok := e.descriptionSection(text); ok {
		texts = append(texts, section)
	}
	return append(texts, e.stripNoise(text))
}

func (e *Extractor) descriptionSection(text string) (string, bool) {
	marker := strings.ToUpper(e.profile.DescriptionMarker)
	if marker == "" {
		return "", false
	}
	idx := strings.Index(text, marker)
	if idx < 0 {
		return "", false
	}
	section := text[idx+len(marker):]

	end := len(section)
	for _, m := range e.sections {
		if i := strings.Index(section, m); i >= 0 && i < end {
			end = i
		}
	}
	section = strings.TrimSpace(strings.TrimLeft(section[:end], ": "))
	return section, section != ""
}

func (e *Extractor) stripNoise(text string) string {
	for _, re := range e.noise {
		text = re.ReplaceAllString(text, " ")
	}
	return text
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
