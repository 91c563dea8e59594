package parsers

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// StatementConfig describes the layout of a bank statement export.
type StatementConfig struct {
	// Sheet is the worksheet holding the transactions. Empty means the first
	// sheet of the workbook.
	Sheet string `mapstructure:"sheet"`

	// HeaderScanRows bounds how far down the header row is searched for.
	HeaderScanRows int `mapstructure:"header_scan_rows"`

	DateColumn      string `mapstructure:"date_column"`
	NarrationColumn string `mapstructure:"narration_column"`
	CreditColumn    string `mapstructure:"credit_column"`
	DebitColumn     string `mapstructure:"debit_column"`

	Delimiter string `mapstructure:"delimiter"`
}

// DefaultStatementConfig returns the CRDB statement layout.
func DefaultStatementConfig() *StatementConfig {
	return &StatementConfig{
		HeaderScanRows:  30,
		DateColumn:      "Posting Date",
		NarrationColumn: "Details",
		CreditColumn:    "Credit",
		DebitColumn:     "Debit",
		Delimiter:       ",",
	}
}

// Validate checks if the statement configuration is valid
func (c *StatementConfig) Validate() error {
	if c.HeaderScanRows <= 0 {
		return fmt.Errorf("header scan rows must be positive, got %d", c.HeaderScanRows)
	}
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(c.NarrationColumn) == "" {
		return fmt.Errorf("narration column cannot be empty")
	}
	if strings.TrimSpace(c.CreditColumn) == "" {
		return fmt.Errorf("credit column cannot be empty")
	}
	if len([]rune(c.Delimiter)) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	return nil
}

// RequiredColumns returns the header names that must be present.
func (c *StatementConfig) RequiredColumns() []string {
	return []string{c.DateColumn, c.NarrationColumn, c.CreditColumn}
}

// RegistryConfig describes the customer registry workbook.
type RegistryConfig struct {
	PrimarySheet   string `mapstructure:"primary_sheet"`
	SecondarySheet string `mapstructure:"secondary_sheet"`

	// Column letters, e.g. "B".
	PlateColumn    string `mapstructure:"plate_column"`
	NameColumn     string `mapstructure:"name_column"`
	PhoneColumn    string `mapstructure:"phone_column"`
	IdentityColumn string `mapstructure:"identity_column"`
}

// DefaultRegistryConfig returns the registry workbook layout.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		PrimarySheet:   "pikipiki records",
		SecondarySheet: "pikipiki records2",
		PlateColumn:    "B",
		NameColumn:     "C",
		PhoneColumn:    "D",
		IdentityColumn: "E",
	}
}

// Validate checks sheet names and column letters.
func (c *RegistryConfig) Validate() error {
	if strings.TrimSpace(c.PrimarySheet) == "" {
		return fmt.Errorf("primary sheet cannot be empty")
	}
	for name, col := range map[string]string{
		"plate":    c.PlateColumn,
		"name":     c.NameColumn,
		"phone":    c.PhoneColumn,
		"identity": c.IdentityColumn,
	} {
		if _, err := excelize.ColumnNameToNumber(col); err != nil {
			return fmt.Errorf("invalid %s column %q: %w", name, col, err)
		}
	}
	return nil
}

// columnIndex converts a column letter to a 0-based index. Callers validate
// the letter first.
func columnIndex(col string) int {
	n, err := excelize.ColumnNameToNumber(col)
	if err != nil {
		return -1
	}
	return n - 1
}
