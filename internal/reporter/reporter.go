// Package reporter renders reconciliation and review outcomes for operators.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one line per ledger entry or review item, for spreadsheets
//
// Example usage:
//
//	gen, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	if err != nil {
//		return err
//	}
//	err = gen.GenerateReport(reporter.FromRun(runReport, time.Now()), os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"credit-reconciliation-service/internal/dedup"
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// Detail level options
	IncludeEntries    bool `json:"include_entries" mapstructure:"include_entries"`
	IncludeReview     bool `json:"include_review" mapstructure:"include_review"`
	IncludeDuplicates bool `json:"include_duplicates" mapstructure:"include_duplicates"`
	IncludeOutcomes   bool `json:"include_outcomes" mapstructure:"include_outcomes"`

	// Console formatting options
	UseColors     bool `json:"use_colors" mapstructure:"use_colors"`
	TableMaxWidth int  `json:"table_max_width" mapstructure:"table_max_width"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"-"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeEntries:    true,
		IncludeReview:     true,
		IncludeDuplicates: true,
		IncludeOutcomes:   false,
		UseColors:         true,
		TableMaxWidth:     120,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	return nil
}

// Report is the rendering input shared by run and review reports.
type Report struct {
	Kind        string    `json:"kind"`
	RunID       string    `json:"run_id"`
	Source      string    `json:"source,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	DryRun    bool `json:"dry_run"`
	Pending   bool `json:"pending"`
	Committed bool `json:"committed"`

	Stats     reconciler.Stats        `json:"stats"`
	Sequences *models.Sequences       `json:"sequences,omitempty"`
	Entries   []models.LedgerEntry    `json:"entries,omitempty"`
	Review    []models.ReviewItem     `json:"review,omitempty"`
	Outcomes  []reconciler.RowOutcome `json:"outcomes,omitempty"`
}

const (
	KindRun    = "reconciliation"
	KindReview = "review"
)

// FromRun builds a Report from a reconciliation run.
func FromRun(run *reconciler.RunReport, now time.Time) *Report {
	r := &Report{
		Kind:        KindRun,
		RunID:       run.RunID,
		Source:      run.Source,
		GeneratedAt: now,
		DryRun:      run.DryRun,
		Pending:     run.Pending,
		Committed:   run.Committed,
	}
	if res := run.Result; res != nil {
		r.Stats = res.Stats
		seq := res.Sequences
		r.Sequences = &seq
		for _, kind := range models.LedgerKinds {
			r.Entries = append(r.Entries, res.Batches.For(kind)...)
		}
		r.Review = res.Review
		r.Outcomes = res.Outcomes
	}
	return r
}

// FromReview builds a Report from a review session.
func FromReview(review *reconciler.ReviewReport, now time.Time) *Report {
	return &Report{
		Kind:        KindReview,
		RunID:       review.RunID,
		GeneratedAt: now,
		Pending:     len(review.Remaining) > 0,
		Committed:   review.Committed,
		Stats:       review.Stats,
		Entries:     review.Resolved,
		Review:      review.Remaining,
	}
}

// FromPending builds a Report from a run that is waiting for review.
func FromPending(state *reconciler.PendingState, now time.Time) *Report {
	seq := state.Sequences
	r := &Report{
		Kind:        KindRun,
		RunID:       state.RunID,
		Source:      state.Source,
		GeneratedAt: now,
		Pending:     !state.Complete(),
		Stats:       state.Stats,
		Sequences:   &seq,
		Review:      state.Review,
	}
	for _, kind := range models.LedgerKinds {
		r.Entries = append(r.Entries, state.Batches.For(kind)...)
	}
	return r
}

// Status is the one-word state of the run.
func (r *Report) Status() string {
	switch {
	case r.DryRun:
		return "DRY RUN"
	case r.Committed:
		return "COMMITTED"
	case r.Pending:
		return "PENDING REVIEW"
	default:
		return "NOT COMMITTED"
	}
}

// ReportGenerator generates reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes report to writer in the configured format.
func (rg *ReportGenerator) GenerateReport(report *Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// painter returns a color writer honoring UseColors.
func (rg *ReportGenerator) painter(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if !rg.config.UseColors {
		c.DisableColor()
	}
	return c
}

func (rg *ReportGenerator) generateConsoleReport(report *Report, writer io.Writer) error {
	heading := rg.painter(color.Bold, color.FgCyan)
	status := rg.painter(color.Bold, statusColor(report))

	ew := &errWriter{w: writer}

	if report.Kind == KindReview {
		heading.Fprintf(ew, "REVIEW REPORT\n")
	} else {
		heading.Fprintf(ew, "RECONCILIATION REPORT\n")
	}
	fmt.Fprintf(ew, "Run:       %s\n", report.RunID)
	if report.Source != "" {
		fmt.Fprintf(ew, "Source:    %s\n", report.Source)
	}
	fmt.Fprintf(ew, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(ew, "Status:    ")
	status.Fprintf(ew, "%s\n\n", report.Status())

	heading.Fprintf(ew, "=== SUMMARY ===\n")
	rg.printSummaryTable(report, ew)
	fmt.Fprintf(ew, "\n")

	if rg.config.IncludeDuplicates && report.Kind == KindRun && report.Stats.Duplicates > 0 {
		heading.Fprintf(ew, "=== DUPLICATES ===\n")
		rg.printDuplicates(report.Stats, ew)
		fmt.Fprintf(ew, "\n")
	}

	if rg.config.IncludeEntries && len(report.Entries) > 0 {
		heading.Fprintf(ew, "=== LEDGER ENTRIES ===\n")
		rg.printEntries(report.Entries, ew)
		fmt.Fprintf(ew, "\n")
	}

	if rg.config.IncludeReview && len(report.Review) > 0 {
		heading.Fprintf(ew, "=== REVIEW QUEUE ===\n")
		rg.printReviewQueue(report.Review, ew)
		fmt.Fprintf(ew, "\n")
	}

	if rg.config.IncludeOutcomes && len(report.Outcomes) > 0 {
		heading.Fprintf(ew, "=== ROW OUTCOMES ===\n")
		rg.printOutcomes(report.Outcomes, ew)
	}

	return ew.err
}

func (rg *ReportGenerator) generateJSONReport(report *Report, writer io.Writer) error {
	filtered := *report
	if !rg.config.IncludeEntries {
		filtered.Entries = nil
	}
	if !rg.config.IncludeReview {
		filtered.Review = nil
	}
	if !rg.config.IncludeOutcomes {
		filtered.Outcomes = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(filtered)
}

// CSVHeaders are the columns of the CSV report.
var CSVHeaders = []string{
	"Record_Type",
	"Ledger",
	"ID",
	"Date",
	"Amount",
	"Identifier",
	"Detail",
	"Reference",
	"Narration",
}

func (rg *ReportGenerator) generateCSVReport(report *Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(CSVHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	if rg.config.IncludeEntries {
		for _, e := range report.Entries {
			record := []string{
				"entry",
				e.Ledger.String(),
				strconv.FormatInt(e.ID, 10),
				e.Date,
				e.Amount.StringFixed(2),
				e.Identifier,
				e.Detail,
				e.Reference,
				e.Narration,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write ledger entry record: %w", err)
			}
		}
	}

	if rg.config.IncludeReview {
		for _, item := range report.Review {
			record := []string{
				"review",
				item.Target.String(),
				strconv.Itoa(item.Index),
				item.Date,
				item.Amount.StringFixed(2),
				item.SuggestedPlate,
				item.CustomerName,
				item.Reference,
				item.Narration,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write review record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(report *Report, writer io.Writer) {
	s := report.Stats
	fmt.Fprintf(writer, "Rows:\n")
	fmt.Fprintf(writer, "  Total:             %d\n", s.Total)
	fmt.Fprintf(writer, "  Matched primary:   %d (%.1f%%)\n", s.MatchedPrimary, rg.calculatePercentage(s.MatchedPrimary, s.Total))
	fmt.Fprintf(writer, "  Matched secondary: %d (%.1f%%)\n", s.MatchedSecondary, rg.calculatePercentage(s.MatchedSecondary, s.Total))
	fmt.Fprintf(writer, "  Unmatched:         %d (%.1f%%)\n", s.Unmatched, rg.calculatePercentage(s.Unmatched, s.Total))
	fmt.Fprintf(writer, "  Pending review:    %d (%.1f%%)\n", s.PendingReview, rg.calculatePercentage(s.PendingReview, s.Total))
	fmt.Fprintf(writer, "  Duplicates:        %d (%.1f%%)\n", s.Duplicates, rg.calculatePercentage(s.Duplicates, s.Total))
	fmt.Fprintf(writer, "  Malformed:         %d (%.1f%%)\n", s.Malformed, rg.calculatePercentage(s.Malformed, s.Total))

	if report.Sequences != nil {
		fmt.Fprintf(writer, "\nLast IDs:\n")
		for _, kind := range models.LedgerKinds {
			fmt.Fprintf(writer, "  %-18s %d\n", kind.String()+":", report.Sequences.Last(kind))
		}
	}
}

func (rg *ReportGenerator) printDuplicates(stats reconciler.Stats, writer io.Writer) {
	for _, origin := range dedup.Origins {
		fmt.Fprintf(writer, "  %-10s %d\n", string(origin)+":", stats.DuplicatesByOrigin[origin])
	}
}

func (rg *ReportGenerator) printEntries(entries []models.LedgerEntry, writer io.Writer) {
	label := rg.painter(color.Bold)
	var current models.LedgerKind
	for _, e := range entries {
		if e.Ledger != current {
			current = e.Ledger
			label.Fprintf(writer, "[%s]\n", current)
		}
		line := fmt.Sprintf("  %-5d %-12s %12s  %-14s %-20s %s",
			e.ID, e.Date, e.Amount.StringFixed(2), e.Identifier, e.Detail, e.Reference)
		fmt.Fprintln(writer, rg.truncate(line))
	}
}

func (rg *ReportGenerator) printReviewQueue(items []models.ReviewItem, writer io.Writer) {
	hint := rg.painter(color.FgYellow)
	for _, item := range items {
		fmt.Fprintf(writer, "  [%d] %s  %s\n", item.Index, item.Date, item.Amount.StringFixed(2))
		fmt.Fprintln(writer, rg.truncate("      "+item.Narration))
		hint.Fprintf(writer, "      %s -> %s (%s, %s)\n", item.Fragment, item.SuggestedPlate, item.CustomerName, item.Target)
	}
}

func (rg *ReportGenerator) printOutcomes(outcomes []reconciler.RowOutcome, writer io.Writer) {
	for _, o := range outcomes {
		line := fmt.Sprintf("  %-5d %-18s %-14s %s", o.Row, o.Outcome, o.Identifier, o.Detail)
		if o.DuplicateOf != "" {
			line += " (duplicate of " + string(o.DuplicateOf) + ")"
		}
		fmt.Fprintln(writer, rg.truncate(strings.TrimRight(line, " ")))
	}
}

func (rg *ReportGenerator) truncate(line string) string {
	if len(line) <= rg.config.TableMaxWidth {
		return line
	}
	return line[:rg.config.TableMaxWidth-3] + "..."
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// UpdateConfiguration replaces the generator configuration.
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns a copy of the current configuration.
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	c := *rg.config
	return &c
}

func statusColor(report *Report) color.Attribute {
	switch {
	case report.DryRun:
		return color.FgBlue
	case report.Committed:
		return color.FgGreen
	case report.Pending:
		return color.FgYellow
	default:
		return color.FgRed
	}
}

// errWriter remembers the first write error so console rendering can stay
// linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	if err != nil {
		ew.err = err
	}
	return n, err
}
