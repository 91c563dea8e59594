package extractor

import (
	"regexp"
	"strings"
)

// Matcher names in cascade order.
const (
	MatchPrefixDigitsLetters = "prefix-digits-letters"
	MatchPrefixLettersDigits = "prefix-letters-digits"
	MatchBareDigitsLetters   = "bare-digits-letters"
	MatchBareLettersDigits   = "bare-letters-digits"
	MatchInterleaved         = "interleaved"
)

const sep = `[\s.\-]*`

type plateMatch struct {
	matcher  string
	plate    string
	fragment string
}

// plateMatcher is one entry of the plate cascade. Each pattern has exactly
// one digits group and one letters group; the end of a match must not be
// followed by a letter or digit, and guarded patterns must not be preceded by
// one either.
type plateMatcher struct {
	name     string
	patterns []*regexp.Regexp
	guarded  bool
}

func newPlateMatchers(prefix string) []plateMatcher {
	p := regexp.QuoteMeta(prefix)
	return []plateMatcher{
		{
			name:     MatchPrefixDigitsLetters,
			patterns: []*regexp.Regexp{regexp.MustCompile(p + sep + `(?P<digits>\d{3})` + sep + `(?P<letters>[A-Z]{3})`)},
		},
		{
			name:     MatchPrefixLettersDigits,
			patterns: []*regexp.Regexp{regexp.MustCompile(p + sep + `(?P<letters>[A-Z]{3})` + sep + `(?P<digits>\d{3})`)},
		},
		{
			name:     MatchBareDigitsLetters,
			patterns: []*regexp.Regexp{regexp.MustCompile(`(?P<digits>\d{3})` + sep + `(?P<letters>[A-Z]{3})`)},
			guarded:  true,
		},
		{
			name:     MatchBareLettersDigits,
			patterns: []*regexp.Regexp{regexp.MustCompile(`(?P<letters>[A-Z]{3})` + sep + `(?P<digits>\d{3})`)},
			guarded:  true,
		},
		{
			name: MatchInterleaved,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?P<letters>[A-Z]{3})` + sep + p + sep + `(?P<digits>\d{3})`),
				regexp.MustCompile(`(?P<digits>\d{3})` + sep + p + sep + `(?P<letters>[A-Z]{3})`),
			},
			guarded: true,
		},
	}
}

func (m plateMatcher) find(text, prefix string, blocked map[string]bool) (plateMatch, bool) {
	for _, re := range m.patterns {
		di, li := re.SubexpIndex("digits"), re.SubexpIndex("letters")
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if m.guarded && start > 0 && isAlnum(text[start-1]) {
				continue
			}
			if end < len(text) && isAlnum(text[end]) {
				continue
			}
			digits := text[loc[2*di]:loc[2*di+1]]
			letters := text[loc[2*li]:loc[2*li+1]]
			if blocked[letters] {
				continue
			}
			return plateMatch{
				matcher:  m.name,
				plate:    prefix + digits + letters,
				fragment: text[start:end],
			}, true
		}
	}
	return plateMatch{}, false
}

// Plate returns the canonical plate (prefix + 3 digits + 3 letters) found in
// text by the first matcher of the cascade that succeeds.
func (e *Extractor) Plate(text string) string {
	m, _ := e.plate(text)
	return m.plate
}

// PlateMatchers lists the cascade in the order it is tried.
func (e *Extractor) PlateMatchers() []string {
	names := make([]string, len(e.plates))
	for i, m := range e.plates {
		names[i] = m.name
	}
	return names
}

// MatchPlate reports which matcher recognised text, if any.
func (e *Extractor) MatchPlate(text string) (plate, matcher string, ok bool) {
	m, ok := e.plate(text)
	return m.plate, m.matcher, ok
}

func (e *Extractor) plate(text string) (plateMatch, bool) {
	upper := strings.ToUpper(text)
	prefix := strings.ToUpper(e.profile.PlatePrefix)
	for _, m := range e.plates {
		if found, ok := m.find(upper, prefix, e.blocked); ok {
			return found, true
		}
	}
	return plateMatch{}, false
}

