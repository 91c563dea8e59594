package dedup

import (
	"testing"

	"credit-reconciliation-service/internal/models"
)

func TestCheckAgainstSnapshot(t *testing.T) {
	snap := NewSnapshot()
	snap.AddRecord(models.LedgerPrimary, "AB100", "PAYMENT FROM 0752900450 REF:AB100")
	snap.AddRecord(models.LedgerSecondary, "", "808FLM cash in REF:SV7")
	snap.AddRecord(models.LedgerUnmatched, "U1", "MC 808 FLM TOPUP")

	ledger := NewLedger(snap)

	tests := []struct {
		name      string
		reference string
		narration string
		origin    Origin
		duplicate bool
	}{
		{"reference in primary", "AB100", "different text", OriginPrimary, true},
		{"reference re-extracted from narration", "SV7", "new text", OriginSecondary, true},
		{"narration in unmatched", "", "MC 808 FLM TOPUP", OriginUnmatched, true},
		{"reference in unmatched", "U1", "x", OriginUnmatched, true},
		{"empty reference ignored", "", "brand new narration", "", false},
		{"narration must match exactly", "", "MC 808 FLM TOPUP ", "", false},
		{"unknown", "ZZ9", "other", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin, dup := ledger.Check(tt.reference, tt.narration)
			if dup != tt.duplicate || origin != tt.origin {
				t.Errorf("Check(%q, %q) = (%q, %v), want (%q, %v)",
					tt.reference, tt.narration, origin, dup, tt.origin, tt.duplicate)
			}
		})
	}
}

func TestAttributionOrder(t *testing.T) {
	snap := NewSnapshot()
	snap.AddRecord(models.LedgerUnmatched, "AB100", "n1")
	snap.AddRecord(models.LedgerSecondary, "AB100", "n2")

	origin, dup := NewLedger(snap).Check("AB100", "")
	if !dup || origin != OriginSecondary {
		t.Errorf("Check() = (%q, %v), want secondary before unmatched", origin, dup)
	}
}

func TestRecordWithinBatch(t *testing.T) {
	ledger := NewLedger(nil)

	if _, dup := ledger.Check("AB100", "first row"); dup {
		t.Fatal("empty ledger reported a duplicate")
	}
	ledger.Record("AB100", "first row")

	if origin, dup := ledger.Check("AB100", "second row"); !dup || origin != OriginBatch {
		t.Errorf("same reference in batch = (%q, %v), want batch duplicate", origin, dup)
	}
	if origin, dup := ledger.Check("", "first row"); !dup || origin != OriginBatch {
		t.Errorf("same narration in batch = (%q, %v), want batch duplicate", origin, dup)
	}
}

func TestSnapshotCounts(t *testing.T) {
	snap := NewSnapshot()
	snap.AddRecord(models.LedgerPrimary, "A1", "pay REF:A2")
	snap.AddRecord(models.LedgerPrimary, "", "")
	snap.AddRecord("BOGUS", "X", "Y")

	refs, narrations := snap.Counts(models.LedgerPrimary)
	if refs != 2 || narrations != 1 {
		t.Errorf("Counts() = (%d, %d), want (2, 1)", refs, narrations)
	}
}

func TestCheckAgainstPendingRuns(t *testing.T) {
	snap := NewSnapshot()
	snap.AddRecord(models.LedgerPrimary, "AB100", "PAYMENT FROM 0752900450 REF:AB100")
	snap.AddPending("AB100", "PAYMENT FROM 0752900450 REF:AB100")
	snap.AddPending("", "FARE KDA456MC REF:RV9")

	ledger := NewLedger(snap)

	tests := []struct {
		name      string
		reference string
		narration string
		origin    Origin
	}{
		{"committed ledger wins over saved run", "AB100", "", OriginPrimary},
		{"narration held by saved run", "", "FARE KDA456MC REF:RV9", OriginPending},
		{"reference re-extracted from saved narration", "RV9", "other", OriginPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin, dup := ledger.Check(tt.reference, tt.narration)
			if !dup || origin != tt.origin {
				t.Errorf("Check(%q, %q) = (%q, %v), want (%q, true)", tt.reference, tt.narration, origin, dup, tt.origin)
			}
		})
	}

	if refs, narrations := snap.PendingCount(); refs != 2 || narrations != 2 {
		t.Errorf("PendingCount() = (%d, %d), want (2, 2)", refs, narrations)
	}
}
