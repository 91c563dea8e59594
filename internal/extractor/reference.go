package extractor

import "regexp"

var referenceToken = regexp.MustCompile(`(?i)REF:\s*(\S+)`)

// Reference returns the token following a "REF:" marker, or "".
func Reference(narration string) string {
	m := referenceToken.FindStringSubmatch(narration)
	if m == nil {
		return ""
	}
	return m[1]
}
