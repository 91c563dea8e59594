package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LedgerKind names an outcome ledger.
type LedgerKind string

const (
	LedgerPrimary   LedgerKind = "MATCHED_PRIMARY"
	LedgerSecondary LedgerKind = "MATCHED_SECONDARY"
	LedgerUnmatched LedgerKind = "UNMATCHED"
)

// LedgerKinds lists the outcome ledgers in attribution order.
var LedgerKinds = []LedgerKind{LedgerPrimary, LedgerSecondary, LedgerUnmatched}

// String returns the string representation of LedgerKind
func (k LedgerKind) String() string {
	return string(k)
}

// IsValid checks if the ledger kind is one of the three outcome ledgers
func (k LedgerKind) IsValid() bool {
	return k == LedgerPrimary || k == LedgerSecondary || k == LedgerUnmatched
}

// Outcome is the terminal (or pending) state of one transaction row.
type Outcome string

const (
	OutcomeMatchedPrimary   Outcome = "MATCHED_PRIMARY"
	OutcomeMatchedSecondary Outcome = "MATCHED_SECONDARY"
	OutcomeUnmatched        Outcome = "UNMATCHED"
	OutcomePendingReview    Outcome = "PENDING_REVIEW"
	OutcomeDuplicate        Outcome = "DUPLICATE"
	OutcomeMalformed        Outcome = "MALFORMED"
)

// OutcomeFor maps a ledger to the outcome that lands in it.
func OutcomeFor(kind LedgerKind) Outcome {
	return Outcome(kind)
}

// LedgerEntry is one row destined for an outcome ledger.
type LedgerEntry struct {
	ID         int64           `json:"id"`
	Date       string          `json:"date"`
	Channel    string          `json:"channel"`
	Narration  string          `json:"narration"`
	Amount     decimal.Decimal `json:"amount"`
	Identifier string          `json:"identifier"`
	Detail     string          `json:"detail"`
	Reference  string          `json:"reference"`
	Identity   string          `json:"identity,omitempty"`
	Ledger     LedgerKind      `json:"ledger"`
}

// Row renders the entry in its ledger's column order. The secondary ledger
// carries a trailing identity column.
func (e LedgerEntry) Row() []interface{} {
	row := []interface{}{
		e.ID,
		e.Date,
		e.Channel,
		e.Narration,
		e.Amount.InexactFloat64(),
		e.Identifier,
		e.Detail,
		e.Reference,
	}
	if e.Ledger == LedgerSecondary {
		row = append(row, e.Identity)
	}
	return row
}

// String returns a string representation of the entry
func (e LedgerEntry) String() string {
	return fmt.Sprintf("LedgerEntry{%s #%d, %s, %s, %s}", e.Ledger, e.ID, e.Identifier, e.Detail, e.Amount.String())
}

// ReviewItem is a low-confidence plate suggestion awaiting a human decision.
type ReviewItem struct {
	Index          int             `json:"index"`
	Date           string          `json:"date"`
	Narration      string          `json:"narration"`
	Amount         decimal.Decimal `json:"amount"`
	Reference      string          `json:"reference"`
	Fragment       string          `json:"fragment"`
	SuggestedPlate string          `json:"suggested_plate"`
	CustomerName   string          `json:"customer_name"`
	Identity       string          `json:"identity,omitempty"`
	Target         LedgerKind      `json:"target"`
	Confidence     string          `json:"confidence"`
	Reason         string          `json:"reason"`
}

// Sequences holds the last assigned id per outcome ledger.
type Sequences struct {
	Primary   int64 `json:"primary"`
	Secondary int64 `json:"secondary"`
	Unmatched int64 `json:"unmatched"`
}

// Next advances the counter for kind by exactly one and returns the new id.
func (s *Sequences) Next(kind LedgerKind) int64 {
	switch kind {
	case LedgerPrimary:
		s.Primary++
		return s.Primary
	case LedgerSecondary:
		s.Secondary++
		return s.Secondary
	default:
		s.Unmatched++
		return s.Unmatched
	}
}

// Last returns the last assigned id for kind.
func (s Sequences) Last(kind LedgerKind) int64 {
	switch kind {
	case LedgerPrimary:
		return s.Primary
	case LedgerSecondary:
		return s.Secondary
	default:
		return s.Unmatched
	}
}

// Set seeds the counter for kind.
func (s *Sequences) Set(kind LedgerKind, id int64) {
	switch kind {
	case LedgerPrimary:
		s.Primary = id
	case LedgerSecondary:
		s.Secondary = id
	default:
		s.Unmatched = id
	}
}
