package parsers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// StatementParser turns a bank statement export into credit rows.
type StatementParser struct {
	config *StatementConfig
	csv    *BaseParser
	logger logger.Logger
}

// NewStatementParser creates a StatementParser.
func NewStatementParser(config *StatementConfig, log logger.Logger) (*StatementParser, error) {
	if config == nil {
		config = DefaultStatementConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "statement", config.Delimiter, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = []rune(config.Delimiter)[0]

	return &StatementParser{
		config: config,
		csv:    NewBaseParser(parseConfig, log),
		logger: log.WithComponent("statement_parser"),
	}, nil
}

// Parse reads the statement at path. The format is chosen by extension.
func (p *StatementParser) Parse(ctx context.Context, path string) ([]models.TransactionRow, *ParseStats, error) {
	var (
		rows []Row
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = p.readWorkbook(path)
	case ".csv":
		rows, err = p.readCSV(ctx, path)
	default:
		return nil, nil, errors.InputError(errors.CodeInvalidFormat, path,
			fmt.Errorf("unsupported extension %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, nil, err
	}

	return p.parseGrid(path, rows)
}

func (p *StatementParser) readWorkbook(path string) ([]Row, error) {
	file, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, errors.InputError(errors.CodeInvalidFormat, path, err)
	}
	defer f.Close()

	sheet := p.config.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.InputError(errors.CodeInvalidFormat, path, err).WithContext("sheet", sheet)
	}

	rows := make([]Row, 0, len(cells))
	for i, c := range cells {
		if isEmptyRecord(c) {
			continue
		}
		rows = append(rows, Row{Line: i + 1, Cells: c})
	}

	p.logger.WithFields(logger.Fields{
		"file_path": path,
		"sheet":     sheet,
		"rows":      len(rows),
	}).Debug("Read statement workbook")
	return rows, nil
}

func (p *StatementParser) readCSV(ctx context.Context, path string) ([]Row, error) {
	file, reader, err := p.csv.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.csv.ReadAll(ctx, reader)
}

type statementColumns struct {
	date      int
	narration int
	credit    int
	debit     int
}

// findHeader locates the first row, within the scan window, that names all
// required columns.
func (p *StatementParser) findHeader(rows []Row) (int, statementColumns, bool) {
	limit := p.config.HeaderScanRows
	if limit > len(rows) {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		index := make(map[string]int, len(rows[i].Cells))
		for col, cell := range rows[i].Cells {
			key := strings.ToLower(strings.TrimSpace(cell))
			if _, seen := index[key]; !seen {
				index[key] = col
			}
		}

		lookup := func(name string) int {
			if col, ok := index[strings.ToLower(name)]; ok {
				return col
			}
			return -1
		}

		cols := statementColumns{
			date:      lookup(p.config.DateColumn),
			narration: lookup(p.config.NarrationColumn),
			credit:    lookup(p.config.CreditColumn),
			debit:     -1,
		}
		if cols.date < 0 || cols.narration < 0 || cols.credit < 0 {
			continue
		}
		if p.config.DebitColumn != "" {
			cols.debit = lookup(p.config.DebitColumn)
		}
		return i, cols, true
	}
	return 0, statementColumns{}, false
}

func (p *StatementParser) parseGrid(path string, rows []Row) ([]models.TransactionRow, *ParseStats, error) {
	stats := NewParseStats()
	if len(rows) > 0 {
		stats.TotalLines = rows[len(rows)-1].Line
	}

	headerAt, cols, ok := p.findHeader(rows)
	if !ok {
		return nil, stats, errors.InputError(errors.CodeMissingColumn, path, nil).
			WithContext("required", p.config.RequiredColumns())
	}
	p.logger.WithFields(logger.Fields{
		"file_path":   path,
		"header_line": rows[headerAt].Line,
		"has_debit":   cols.debit >= 0,
	}).Debug("Located statement header")

	var credits []models.TransactionRow
	for _, r := range rows[headerAt+1:] {
		stats.DataRows++

		creditCell := r.Cell(cols.credit)
		if models.IsBlankAmount(creditCell) {
			stats.SkippedRows++
			continue
		}
		credit, err := models.ParseAmount(creditCell)
		if err != nil {
			stats.AddError(&ParseError{Line: r.Line, Field: p.config.CreditColumn, Value: creditCell, Message: "invalid amount", Err: err})
			stats.SkippedRows++
			continue
		}
		if !credit.IsPositive() {
			stats.SkippedRows++
			continue
		}

		if debitCell := r.Cell(cols.debit); !models.IsBlankAmount(debitCell) {
			stats.SkippedRows++
			continue
		}

		row := models.NewTransactionRow(r.Cell(cols.date), r.Cell(cols.narration), credit)
		if err := row.Validate(); err != nil {
			// kept so the engine reports it as malformed
			stats.AddError(&ParseError{Line: r.Line, Field: "row", Message: "incomplete credit row", Err: err})
		}
		credits = append(credits, row)
		stats.CreditRows++
	}

	p.logger.WithFields(logger.Fields{
		"file_path": path,
		"credits":   stats.CreditRows,
		"skipped":   stats.SkippedRows,
		"errors":    stats.ErrorCount,
	}).Info("Statement parsed")

	return credits, stats, nil
}
