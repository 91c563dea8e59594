// Package parsers reads bank statements and customer registry snapshots into
// the typed records the reconciler works on.
//
// Statements come as the bank's XLSX export or as CSV. Both are reduced to a
// grid of cells, the header row is located by its column names, and only
// credit lines (credit > 0 and no debit) become TransactionRows.
//
// Registries come as a workbook with one sheet per tier, or as a CSV snapshot
// per tier.
//
// Example usage:
//
//	parser, err := NewStatementParser(DefaultStatementConfig(), log)
//	rows, stats, err := parser.Parse(ctx, "statement.xlsx")
//
//	loader := NewRegistryLoader(DefaultRegistryConfig(), log)
//	primary, secondary, err := loader.LoadWorkbook(ctx, "registry.xlsx")
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// ParseError describes a row that could not be turned into a record.
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV reading
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// BaseParser provides common CSV reading functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, log logger.Logger) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	log = log.WithComponent("csv_parser")
	log.WithFields(logger.Fields{
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
	}).Debug("Created base parser")

	return &BaseParser{config: config, logger: log}
}

// OpenFile opens a CSV file and returns a configured csv.Reader
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := openInput(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")
		return nil, nil, err
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.InputError(errors.CodeInvalidFormat, filePath, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return file, reader, nil
}

// validateEncoding checks that the first lines are valid UTF-8
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.InputError(errors.CodeInvalidFormat, filePath,
				fmt.Errorf("invalid UTF-8 encoding at line %d", lineNum)).
				WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.InputError(errors.CodeInvalidFormat, filePath, err)
	}
	return nil
}

// ReadAll reads every non-empty record. Blank rows are dropped when
// SkipEmptyRows is set; line numbers are 1-based file lines.
func (bp *BaseParser) ReadAll(ctx context.Context, reader *csv.Reader) ([]Row, error) {
	var rows []Row
	line := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeCancelled, "csv parsing", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			bp.logger.WithError(err).WithField("line_number", line).Warn("Failed to read CSV record")
			return nil, errors.InputError(errors.CodeInvalidFormat, "csv", err).WithContext("line", line)
		}

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		rows = append(rows, Row{Line: line, Cells: record})
	}

	bp.logger.WithField("records", len(rows)).Debug("Read CSV records")
	return rows, nil
}

// Row is one line of a statement grid with its 1-based source line.
type Row struct {
	Line  int
	Cells []string
}

// Cell returns the trimmed cell at index, or "" when the row is short.
func (r Row) Cell(index int) string {
	if index < 0 || index >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[index])
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func openInput(filePath string) (*os.File, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.InputError(errors.CodeFileNotFound, filePath, err)
		}
		return nil, errors.InputError(errors.CodeInvalidFormat, filePath, err)
	}
	return file, nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines  int
	DataRows    int
	CreditRows  int
	SkippedRows int
	ErrorCount  int
	Errors      []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{Errors: make([]*ParseError, 0)}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Read %d lines, %d data rows (%d credits, %d skipped), %d errors",
		ps.TotalLines, ps.DataRows, ps.CreditRows, ps.SkippedRows, ps.ErrorCount)
}

// GetSampleErrors returns up to maxSamples error messages for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
