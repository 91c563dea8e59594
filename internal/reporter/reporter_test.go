package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"credit-reconciliation-service/internal/dedup"
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/internal/reconciler"
	"credit-reconciliation-service/pkg/logger"
)

var generatedAt = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func plainConfig(format OutputFormat) *ReportConfig {
	c := DefaultReportConfig()
	c.Format = format
	c.UseColors = false
	return c
}

func sampleRunReport() *reconciler.RunReport {
	result := &reconciler.RunResult{
		Sequences: models.Sequences{Primary: 42, Secondary: 8, Unmatched: 3},
		Stats: reconciler.Stats{
			Total:            6,
			MatchedPrimary:   1,
			MatchedSecondary: 1,
			Unmatched:        1,
			PendingReview:    1,
			Duplicates:       1,
			DuplicatesByOrigin: map[dedup.Origin]int{
				dedup.OriginPrimary: 1,
			},
			Malformed: 1,
		},
		Review: []models.ReviewItem{{
			Index:          0,
			Date:           "01-03-2024",
			Narration:      "FARE KDA456MC",
			Amount:         decimal.NewFromInt(700),
			Fragment:       "KDA456MC",
			SuggestedPlate: "MC456KDA",
			CustomerName:   "Neema",
			Target:         models.LedgerSecondary,
			Confidence:     "medium",
		}},
		Outcomes: []reconciler.RowOutcome{
			{Row: 0, Outcome: models.OutcomeMatchedPrimary, Identifier: "0752900450", Detail: "Asha"},
			{Row: 1, Outcome: models.OutcomeDuplicate, Reference: "AB100", DuplicateOf: dedup.OriginPrimary},
		},
	}
	result.Batches.Add(models.LedgerEntry{
		ID: 42, Date: "01-03-2024", Channel: "CRDB", Narration: "PAYMENT FROM 0752900450 REF:AB100",
		Amount: decimal.NewFromInt(5000), Identifier: "255752900450", Detail: "Asha", Reference: "AB100",
		Ledger: models.LedgerPrimary,
	})
	result.Batches.Add(models.LedgerEntry{
		ID: 8, Date: "02-03-2024", Channel: "CRDB", Narration: "MC 808 FLM TOPUP",
		Amount: decimal.NewFromInt(1500), Identifier: "MC808FLM", Detail: "John", Identity: "ID-77",
		Ledger: models.LedgerSecondary,
	})
	result.Batches.Add(models.LedgerEntry{
		ID: 3, Date: "03-03-2024", Channel: "CRDB", Narration: "CASH DEPOSIT BRANCH",
		Amount: decimal.NewFromInt(900), Identifier: reconciler.NoIdentifier, Detail: reconciler.ReasonNoIdentifier,
		Ledger: models.LedgerUnmatched,
	})

	return &reconciler.RunReport{
		RunID:   "run-1",
		Source:  "statement.xlsx",
		Result:  result,
		Pending: true,
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"invalid format", &ReportConfig{Format: "invalid", TableMaxWidth: 120}, true},
		{"table width too small", &ReportConfig{Format: FormatConsole, TableMaxWidth: 30}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}
}

func TestFromRun(t *testing.T) {
	report := FromRun(sampleRunReport(), generatedAt)

	if report.Kind != KindRun {
		t.Errorf("expected kind %q, got %q", KindRun, report.Kind)
	}
	if len(report.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(report.Entries))
	}
	order := []models.LedgerKind{models.LedgerPrimary, models.LedgerSecondary, models.LedgerUnmatched}
	for i, kind := range order {
		if report.Entries[i].Ledger != kind {
			t.Errorf("entry %d: expected ledger %s, got %s", i, kind, report.Entries[i].Ledger)
		}
	}
	if report.Sequences == nil || report.Sequences.Primary != 42 {
		t.Errorf("expected sequences to be carried over, got %+v", report.Sequences)
	}
	if report.Status() != "PENDING REVIEW" {
		t.Errorf("unexpected status %q", report.Status())
	}
}

func TestFromReview(t *testing.T) {
	review := &reconciler.ReviewReport{
		RunID: "run-1",
		Resolved: []models.LedgerEntry{{
			ID: 9, Identifier: "MC456KDA", Detail: "Neema", Ledger: models.LedgerSecondary,
		}},
		Stats:     reconciler.Stats{Total: 1, MatchedSecondary: 1},
		Committed: true,
	}

	report := FromReview(review, generatedAt)
	if report.Kind != KindReview {
		t.Errorf("expected kind %q, got %q", KindReview, report.Kind)
	}
	if report.Pending {
		t.Errorf("review with no remaining items should not be pending")
	}
	if report.Status() != "COMMITTED" {
		t.Errorf("unexpected status %q", report.Status())
	}
	if report.Sequences != nil {
		t.Errorf("review reports carry no sequences")
	}
}

func TestFromPending(t *testing.T) {
	run := sampleRunReport()
	state := reconciler.NewPendingState("run-1", "CRDB", "statement.xlsx", run.Result, generatedAt)

	report := FromPending(state, generatedAt)
	if !report.Pending || report.Status() != "PENDING REVIEW" {
		t.Errorf("state with open review items should be pending, got %q", report.Status())
	}
	if len(report.Entries) != 3 || len(report.Review) != 1 {
		t.Errorf("expected 3 entries and 1 review item, got %d and %d", len(report.Entries), len(report.Review))
	}
	if report.Source != "statement.xlsx" {
		t.Errorf("unexpected source %q", report.Source)
	}
}

func TestReportStatus(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   string
	}{
		{"dry run wins", Report{DryRun: true, Pending: true}, "DRY RUN"},
		{"committed", Report{Committed: true}, "COMMITTED"},
		{"pending", Report{Pending: true}, "PENDING REVIEW"},
		{"nothing", Report{}, "NOT COMMITTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Status(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	config := plainConfig(FormatConsole)
	config.IncludeOutcomes = true
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(FromRun(sampleRunReport(), generatedAt), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"RECONCILIATION REPORT",
		"Run:       run-1",
		"Status:    PENDING REVIEW",
		"=== SUMMARY ===",
		"Matched primary:   1 (16.7%)",
		"Malformed:         1 (16.7%)",
		"=== DUPLICATES ===",
		"primary:   1",
		"[MATCHED_PRIMARY]",
		"[UNMATCHED]",
		"=== REVIEW QUEUE ===",
		"KDA456MC -> MC456KDA (Neema, MATCHED_SECONDARY)",
		"=== ROW OUTCOMES ===",
		"(duplicate of primary)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("console output should contain %q\n%s", want, output)
		}
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("console output should not contain color codes when colors are disabled")
	}
}

func TestGenerateConsoleReportSectionsDisabled(t *testing.T) {
	config := plainConfig(FormatConsole)
	config.IncludeEntries = false
	config.IncludeReview = false
	config.IncludeDuplicates = false
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(FromRun(sampleRunReport(), generatedAt), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, section := range []string{"LEDGER ENTRIES", "REVIEW QUEUE", "DUPLICATES", "ROW OUTCOMES"} {
		if strings.Contains(buf.String(), section) {
			t.Errorf("section %s should be omitted", section)
		}
	}
}

func TestGenerateJSONReport(t *testing.T) {
	generator, _ := NewReportGenerator(plainConfig(FormatJSON))

	var buf bytes.Buffer
	if err := generator.GenerateReport(FromRun(sampleRunReport(), generatedAt), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output should be valid JSON: %v", err)
	}
	if decoded.RunID != "run-1" || decoded.Stats.Total != 6 {
		t.Errorf("unexpected report header: %+v", decoded)
	}
	if len(decoded.Entries) != 3 || len(decoded.Review) != 1 {
		t.Errorf("expected entries and review queue, got %d and %d", len(decoded.Entries), len(decoded.Review))
	}
	if decoded.Outcomes != nil {
		t.Errorf("outcomes are excluded by default")
	}
	if !decoded.Entries[0].Amount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("amount not preserved: %s", decoded.Entries[0].Amount)
	}
}

func TestGenerateCSVReport(t *testing.T) {
	generator, _ := NewReportGenerator(plainConfig(FormatCSV))

	var buf bytes.Buffer
	if err := generator.GenerateReport(FromRun(sampleRunReport(), generatedAt), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output should be valid CSV: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header, 3 entries and 1 review row, got %d rows", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(CSVHeaders, ",") {
		t.Errorf("unexpected header %v", records[0])
	}
	if records[1][0] != "entry" || records[1][2] != "42" || records[1][4] != "5000.00" {
		t.Errorf("unexpected first entry %v", records[1])
	}
	if records[4][0] != "review" || records[4][5] != "MC456KDA" {
		t.Errorf("unexpected review row %v", records[4])
	}
}

func TestGenerateCSVReportCustomDelimiter(t *testing.T) {
	config := plainConfig(FormatCSV)
	config.CSVDelimiter = ';'
	config.CSVHeaders = false
	config.IncludeReview = false
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(FromRun(sampleRunReport(), generatedAt), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "entry;MATCHED_PRIMARY;42;") {
		t.Errorf("unexpected line %q", lines[0])
	}
}

func TestGenerateReportNil(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for nil report")
	}
}

func TestTruncate(t *testing.T) {
	config := plainConfig(FormatConsole)
	config.TableMaxWidth = 50
	generator, _ := NewReportGenerator(config)

	long := strings.Repeat("x", 80)
	got := generator.truncate(long)
	if len(got) != 50 || !strings.HasSuffix(got, "...") {
		t.Errorf("unexpected truncation %q", got)
	}
	if generator.truncate("short") != "short" {
		t.Errorf("short lines should be unchanged")
	}
}

func TestUpdateConfiguration(t *testing.T) {
	generator, _ := NewReportGenerator(nil)

	if err := generator.UpdateConfiguration(nil); err == nil {
		t.Errorf("expected error for nil configuration")
	}
	if err := generator.UpdateConfiguration(&ReportConfig{Format: "xml", TableMaxWidth: 80}); err == nil {
		t.Errorf("expected error for invalid configuration")
	}
	if err := generator.UpdateConfiguration(plainConfig(FormatJSON)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := generator.GetConfiguration()
	got.Format = FormatCSV
	if generator.GetConfiguration().Format != FormatJSON {
		t.Errorf("GetConfiguration should return a copy")
	}
}

// flakyWriter fails the first failures writes.
type flakyWriter struct {
	bytes.Buffer
	failures int
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.failures > 0 {
		w.failures--
		return 0, fmt.Errorf("write refused")
	}
	return w.Buffer.Write(p)
}

func TestSafeReportGeneratorFormatFallback(t *testing.T) {
	srg, err := NewSafeReportGenerator(plainConfig(FormatJSON), logger.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := &flakyWriter{failures: 1}
	if err := srg.GenerateReportSafely(FromRun(sampleRunReport(), generatedAt), w); err != nil {
		t.Fatalf("expected fallback to succeed: %v", err)
	}

	output := w.String()
	if !strings.Contains(output, "fallback format") || !strings.Contains(output, "RECONCILIATION REPORT") {
		t.Errorf("expected console fallback output, got:\n%s", output)
	}
}

func TestSafeReportGeneratorConsoleFailure(t *testing.T) {
	srg, _ := NewSafeReportGenerator(plainConfig(FormatConsole), logger.Nop())

	w := &flakyWriter{failures: 1000}
	if err := srg.GenerateReportSafely(FromRun(sampleRunReport(), generatedAt), w); err == nil {
		t.Errorf("expected error when console output fails")
	}
}

func TestSafeReportGeneratorInvalidInputs(t *testing.T) {
	srg, _ := NewSafeReportGenerator(nil, logger.Nop())

	if err := srg.GenerateReportSafely(nil, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for nil report")
	}
	if err := srg.GenerateReportSafely(&Report{}, nil); err == nil {
		t.Errorf("expected error for nil writer")
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "xml", TableMaxWidth: 80}, logger.Nop()); err == nil {
		t.Errorf("expected configuration error")
	}
}

func TestSafeReportGeneratorWriteFile(t *testing.T) {
	srg, _ := NewSafeReportGenerator(plainConfig(FormatJSON), logger.Nop())

	path := filepath.Join(t.TempDir(), "reports", "run-1.json")
	if err := srg.WriteFile(FromRun(sampleRunReport(), generatedAt), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("report file should contain JSON")
	}
}

func TestGenerateBackupPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/tmp/report.json", "/tmp/report_backup.json"},
		{"out/report", "out/report_backup"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := generateBackupPath(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
