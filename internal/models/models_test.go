package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTransactionRow_Validate(t *testing.T) {
	tests := []struct {
		name      string
		row       TransactionRow
		wantError bool
	}{
		{
			name: "Valid row",
			row:  NewTransactionRow("01/03/2024", "PAYMENT FROM 0752900450", decimal.NewFromInt(5000)),
		},
		{
			name:      "Missing date",
			row:       NewTransactionRow(" ", "PAYMENT", decimal.NewFromInt(5000)),
			wantError: true,
		},
		{
			name:      "Missing narration",
			row:       NewTransactionRow("01/03/2024", "", decimal.NewFromInt(5000)),
			wantError: true,
		},
		{
			name:      "Zero amount",
			row:       NewTransactionRow("01/03/2024", "PAYMENT", decimal.Zero),
			wantError: true,
		},
		{
			name:      "Negative amount",
			row:       NewTransactionRow("01/03/2024", "PAYMENT", decimal.NewFromInt(-1)),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.row.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestIdentifiers_Primary(t *testing.T) {
	tests := []struct {
		name     string
		ids      Identifiers
		wantID   string
		wantKind IdentifierKind
		wantOK   bool
	}{
		{"phone wins over plate", Identifiers{Phone: "255752900450", Plate: "MC123ABC"}, "255752900450", KindPhone, true},
		{"plate only", Identifiers{Plate: "MC123ABC", Reference: "AB1"}, "MC123ABC", KindPlate, true},
		{"reference only", Identifiers{Reference: "AB1"}, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, kind, ok := tt.ids.Primary()
			if id != tt.wantID || kind != tt.wantKind || ok != tt.wantOK {
				t.Errorf("Primary() = (%q, %q, %v), want (%q, %q, %v)", id, kind, ok, tt.wantID, tt.wantKind, tt.wantOK)
			}
		})
	}
}

func TestLedgerEntry_Row(t *testing.T) {
	entry := LedgerEntry{
		ID:         7,
		Date:       "01/03/2024",
		Channel:    "CRDB",
		Narration:  "MC 808 FLM TOPUP",
		Amount:     decimal.NewFromInt(15000),
		Identifier: "MC808FLM",
		Detail:     "John",
		Reference:  "AB100",
		Identity:   "ID-77",
		Ledger:     LedgerPrimary,
	}

	if got := len(entry.Row()); got != 8 {
		t.Errorf("primary row has %d columns, want 8", got)
	}

	entry.Ledger = LedgerSecondary
	row := entry.Row()
	if len(row) != 9 {
		t.Fatalf("secondary row has %d columns, want 9", len(row))
	}
	if row[8] != "ID-77" {
		t.Errorf("trailing identity = %v, want ID-77", row[8])
	}
	if row[0] != int64(7) || row[4] != float64(15000) {
		t.Errorf("unexpected id/amount cells: %v %v", row[0], row[4])
	}
}

func TestSequences_Next(t *testing.T) {
	seq := Sequences{Primary: 41, Secondary: 0, Unmatched: 9}

	for want := int64(42); want < 45; want++ {
		if got := seq.Next(LedgerPrimary); got != want {
			t.Errorf("Next(primary) = %d, want %d", got, want)
		}
	}
	if got := seq.Next(LedgerSecondary); got != 1 {
		t.Errorf("Next(secondary) = %d, want 1", got)
	}
	if got := seq.Last(LedgerUnmatched); got != 9 {
		t.Errorf("Last(unmatched) = %d, want 9", got)
	}

	seq.Set(LedgerUnmatched, 100)
	if got := seq.Next(LedgerUnmatched); got != 101 {
		t.Errorf("Next(unmatched) after Set = %d, want 101", got)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"1,500,000.00", "1500000", false},
		{" 250 ", "250", false},
		{"TZS 10,000", "10000", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsBlankAmount(t *testing.T) {
	for input, want := range map[string]bool{
		"":      true,
		"NaN":   true,
		"0.00":  true,
		"-":     true,
		"1,000": false,
	} {
		if got := IsBlankAmount(input); got != want {
			t.Errorf("IsBlankAmount(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestReviewItemJSON(t *testing.T) {
	item := ReviewItem{
		Index:          0,
		Narration:      "KDA 456 PAYMENT",
		Amount:         decimal.RequireFromString("12000.50"),
		SuggestedPlate: "MC456KDA",
		Target:         LedgerSecondary,
		Confidence:     "medium",
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back ReviewItem
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Amount.Equal(item.Amount) || back.Target != LedgerSecondary || back.SuggestedPlate != "MC456KDA" {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestPhoneForms(t *testing.T) {
	tests := []struct {
		phone     string
		national  string
		alternate string
	}{
		{"0752900450", "255752900450", "255752900450"},
		{"0612345678", "255612345678", "255612345678"},
		{"255752900450", "255752900450", "0752900450"},
		{"0552900450", "0552900450", ""},
		{"12345", "12345", ""},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			if got := NationalPhone(tt.phone); got != tt.national {
				t.Errorf("NationalPhone(%q) = %q, want %q", tt.phone, got, tt.national)
			}
			if got := AlternatePhone(tt.phone); got != tt.alternate {
				t.Errorf("AlternatePhone(%q) = %q, want %q", tt.phone, got, tt.alternate)
			}
		})
	}
}

func TestNormalizeRegistryKeys(t *testing.T) {
	if got := NormalizePlate(" mc 808 flm "); got != "MC808FLM" {
		t.Errorf("NormalizePlate = %q", got)
	}
	if got := NormalizePhone("0752-900 450"); got != "0752900450" {
		t.Errorf("NormalizePhone = %q", got)
	}
}
