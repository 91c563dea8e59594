package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionRow is one credit line of a bank statement, already filtered to
// incoming funds.
type TransactionRow struct {
	PostingDate string          `json:"posting_date"`
	Narration   string          `json:"narration"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewTransactionRow creates a new TransactionRow instance
func NewTransactionRow(postingDate, narration string, amount decimal.Decimal) TransactionRow {
	return TransactionRow{
		PostingDate: postingDate,
		Narration:   narration,
		Amount:      amount,
	}
}

// Validate reports rows that cannot be classified: missing date or narration,
// or a non-positive amount.
func (r TransactionRow) Validate() error {
	if strings.TrimSpace(r.PostingDate) == "" {
		return fmt.Errorf("posting date cannot be empty")
	}
	if strings.TrimSpace(r.Narration) == "" {
		return fmt.Errorf("narration cannot be empty")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", r.Amount.String())
	}
	return nil
}

// String returns a string representation of the row
func (r TransactionRow) String() string {
	return fmt.Sprintf("TransactionRow{Date: %s, Amount: %s, Narration: %q}",
		r.PostingDate, r.Amount.String(), r.Narration)
}

// IdentifierKind says what an identifier is.
type IdentifierKind string

const (
	KindPhone IdentifierKind = "PHONE"
	KindPlate IdentifierKind = "PLATE"
)

// String returns the string representation of IdentifierKind
func (k IdentifierKind) String() string {
	return string(k)
}

// Identifiers holds what the extractor found in one narration.
type Identifiers struct {
	Phone     string `json:"phone,omitempty"`
	Plate     string `json:"plate,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// Primary returns the identifier used for lookups. Phone wins over plate.
func (i Identifiers) Primary() (string, IdentifierKind, bool) {
	if i.Phone != "" {
		return i.Phone, KindPhone, true
	}
	if i.Plate != "" {
		return i.Plate, KindPlate, true
	}
	return "", "", false
}

// CustomerRecord is one registry row keyed by a phone or a plate.
type CustomerRecord struct {
	Identifier string         `json:"identifier"`
	Kind       IdentifierKind `json:"kind"`
	Name       string         `json:"name"`
	Identity   string         `json:"identity,omitempty"`
}

// Validate performs basic validation on the record
func (c CustomerRecord) Validate() error {
	if strings.TrimSpace(c.Identifier) == "" {
		return fmt.Errorf("customer identifier cannot be empty")
	}
	if c.Kind != KindPhone && c.Kind != KindPlate {
		return fmt.Errorf("invalid identifier kind: %s", c.Kind)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("customer name cannot be empty")
	}
	return nil
}

// ParseAmount parses a statement amount, tolerating thousand separators and
// currency decorations.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "TZS")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// IsBlankAmount reports whether a cell holds no amount: empty, NaN or zero.
func IsBlankAmount(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || s == "-" {
		return true
	}
	d, err := ParseAmount(s)
	return err == nil && d.IsZero()
}

// NormalizePlate removes spaces and uppercases a registry plate.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(plate), " ", ""))
}

// NormalizePhone removes spaces and hyphens from a registry phone.
func NormalizePhone(phone string) string {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	return strings.ReplaceAll(phone, "-", "")
}

// NationalPhone rewrites a local 0[67]XXXXXXXX number into the 255 country
// code form. Anything else is returned unchanged.
func NationalPhone(phone string) string {
	if isLocalPhone(phone) {
		return "255" + phone[1:]
	}
	return phone
}

// AlternatePhone returns the other representation of a phone number
// (255N <-> 0N) or "" when there is none.
func AlternatePhone(phone string) string {
	switch {
	case len(phone) == 12 && strings.HasPrefix(phone, "255") && (phone[3] == '6' || phone[3] == '7'):
		return "0" + phone[3:]
	case isLocalPhone(phone):
		return "255" + phone[1:]
	default:
		return ""
	}
}

func isLocalPhone(phone string) bool {
	return len(phone) == 10 && phone[0] == '0' && (phone[1] == '6' || phone[1] == '7')
}
