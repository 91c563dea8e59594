package extractor

import (
	"regexp"
	"strings"

	"credit-reconciliation-service/pkg/logger"
)

const (
	ConfidenceMedium  = "medium"
	ReasonRearranged  = "rearranged format"
	suggestionDigits  = 3
	suggestionLetters = 3
)

// Suggestion is a loosely formatted plate candidate that needs a human to
// confirm it.
type Suggestion struct {
	Fragment   string `json:"fragment"`
	Plate      string `json:"plate"`
	Confidence string `json:"confidence"`
	Reason     string `json:"reason"`
}

func newSuggestionPattern(prefix string) *regexp.Regexp {
	p := regexp.QuoteMeta(prefix)
	return regexp.MustCompile(
		`(?:` + p + sep + `)?` +
			`(?:[A-Z]{2,4}` + sep + `\d{2,4}|\d{2,4}` + sep + `[A-Z]{2,4})` +
			`(?:` + sep + p + `)?`)
}

// Suggestions scans narration for letter/digit clusters that become a valid
// plate once the prefix is removed and the groups are reordered. Clusters
// that do not leave exactly 3 digits and 3 letters are dropped. The same
// texts as Extract are searched, so terminal and transaction ids never
// produce a suggestion.
func (e *Extractor) Suggestions(narration string) []Suggestion {
	prefix := strings.ToUpper(e.profile.PlatePrefix)

	var fragments []string
	for _, text := range e.searchTexts(narration) {
		fragments = append(fragments, e.suggest.FindAllString(text, -1)...)
	}

	var out []Suggestion
	seen := make(map[string]bool)
	for _, fragment := range fragments {
		var digits, letters strings.Builder
		for _, c := range strings.ReplaceAll(fragment, prefix, "") {
			switch {
			case c >= '0' && c <= '9':
				digits.WriteRune(c)
			case c >= 'A' && c <= 'Z':
				letters.WriteRune(c)
			}
		}
		if digits.Len() != suggestionDigits || letters.Len() != suggestionLetters {
			continue
		}
		if e.blocked[letters.String()] {
			continue
		}

		plate := prefix + digits.String() + letters.String()
		if seen[plate] {
			continue
		}
		seen[plate] = true

		out = append(out, Suggestion{
			Fragment:   strings.TrimSpace(fragment),
			Plate:      plate,
			Confidence: ConfidenceMedium,
			Reason:     ReasonRearranged,
		})
	}

	if len(out) > 0 {
		e.logger.WithFields(logger.Fields{
			"count": len(out),
			"first": out[0].Plate,
		}).Debug("Plate suggestions found")
	}
	return out
}
