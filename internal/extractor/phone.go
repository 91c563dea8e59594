package extractor

import (
	"regexp"
	"strings"
)

var (
	compactPhone   = strings.NewReplacer(" ", "", "-", "")
	digitRun       = regexp.MustCompile(`\d+`)
	accountPartSep = regexp.MustCompile(`[:/]+`)
)

// Phone returns the first phone number in text, national form (255 + 9
// digits) preferred over local form (0[67] + 8 digits). A candidate must be
// a whole digit run; substrings of longer runs are never returned.
//
// When text carries an account marker, tokens holding the marker are dropped
// and only the segments between them are searched.
func (e *Extractor) Phone(text string) string {
	if !e.hasAccountMarker(text) {
		return phoneIn(compactPhone.Replace(text))
	}

	for _, segment := range e.unmarkedSegments(text) {
		if phone := phoneIn(compactPhone.Replace(segment)); phone != "" {
			return phone
		}
	}
	return ""
}

// unmarkedSegments splits text at ':' and '/', then at every whitespace
// token holding an account marker. Marked tokens are left out and the
// remaining tokens of a segment are joined without spaces.
func (e *Extractor) unmarkedSegments(text string) []string {
	var segments []string
	for _, piece := range accountPartSep.Split(text, -1) {
		var tokens []string
		for _, token := range strings.Fields(piece) {
			if e.hasAccountMarker(token) {
				segments = append(segments, strings.Join(tokens, ""))
				tokens = nil
				continue
			}
			tokens = append(tokens, token)
		}
		segments = append(segments, strings.Join(tokens, ""))
	}
	return segments
}

func (e *Extractor) hasAccountMarker(text string) bool {
	upper := strings.ToUpper(text)
	for _, marker := range e.markers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

func phoneIn(text string) string {
	runs := digitRun.FindAllString(text, -1)
	for _, run := range runs {
		if len(run) == 12 && strings.HasPrefix(run, "255") {
			return run
		}
	}
	for _, run := range runs {
		if len(run) == 10 && run[0] == '0' && (run[1] == '6' || run[1] == '7') {
			return run
		}
	}
	return ""
}
