package extractor

import (
	"fmt"
	"regexp"
	"strings"
)

// BankProfile carries the bank-specific markers and noise filters the
// extractor applies to narrations.
type BankProfile struct {
	// Channel is recorded on every ledger entry (e.g. "CRDB").
	Channel string `mapstructure:"channel"`

	// AccountMarkers flag long account-number tokens. When one is present
	// the narration is split and marked parts are skipped for phones.
	AccountMarkers []string `mapstructure:"account_markers"`

	// DescriptionMarker opens the section that carries the counterparty.
	DescriptionMarker string `mapstructure:"description_marker"`

	// SectionMarkers end the description section.
	SectionMarkers []string `mapstructure:"section_markers"`

	// NoisePatterns are removed before the full-narration fallback search.
	NoisePatterns []string `mapstructure:"noise_patterns"`

	PlatePrefix string   `mapstructure:"plate_prefix"`
	Blocklist   []string `mapstructure:"blocklist"`
}

// DefaultProfile returns the CRDB narration profile.
func DefaultProfile() BankProfile {
	return BankProfile{
		Channel:           "CRDB",
		AccountMarkers:    []string{"FRANKAB"},
		DescriptionMarker: "DESCRIPTION",
		SectionMarkers:    []string{"TER ID", "TRX ID", "REF:", "AGENCY"},
		NoisePatterns: []string{
			`\b[A-Z]{4}TZ[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`,
			`\bTER\s*ID\s*:?\s*\d+`,
			`\bTRX\s*ID\s*:?\s*\S+`,
			`AGENCY\s*@\s*\d+\s*@`,
		},
		PlatePrefix: "MC",
		Blocklist:   []string{"TZS", "REF", "TER", "TRX", "CRD", "NMB", "NBC", "ATM", "POS", "USD"},
	}
}

// Validate validates the profile and its noise patterns
func (p BankProfile) Validate() error {
	if strings.TrimSpace(p.Channel) == "" {
		return fmt.Errorf("channel cannot be empty")
	}
	if strings.TrimSpace(p.PlatePrefix) == "" {
		return fmt.Errorf("plate prefix cannot be empty")
	}
	for _, pattern := range p.NoisePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid noise pattern %q: %w", pattern, err)
		}
	}
	for _, word := range p.Blocklist {
		if len(word) != 3 {
			return fmt.Errorf("blocklist entry %q must be exactly 3 letters", word)
		}
	}
	return nil
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
