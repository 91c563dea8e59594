// Package store persists outcome ledgers and pending review state.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"credit-reconciliation-service/internal/dedup"
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// LedgerConfig describes the ledger workbook layout.
type LedgerConfig struct {
	Path string `mapstructure:"workbook"`

	PrimarySheet   string `mapstructure:"primary_sheet"`
	SecondarySheet string `mapstructure:"secondary_sheet"`
	UnmatchedSheet string `mapstructure:"unmatched_sheet"`

	// Column letters.
	IDColumn        string `mapstructure:"id_column"`
	NarrationColumn string `mapstructure:"narration_column"`
	RefColumn       string `mapstructure:"ref_column"`
}

// DefaultLedgerConfig returns the standard sheet names and columns.
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		Path:            "ledgers.xlsx",
		PrimarySheet:    "PASSED",
		SecondarySheet:  "PASSED_SAV",
		UnmatchedSheet:  "FAILED",
		IDColumn:        "A",
		NarrationColumn: "D",
		RefColumn:       "H",
	}
}

// Validate checks the path, sheet names and column letters.
func (c *LedgerConfig) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("ledger workbook path cannot be empty")
	}
	seen := make(map[string]bool, 3)
	for _, kind := range models.LedgerKinds {
		name := c.Sheet(kind)
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("sheet name for %s cannot be empty", kind)
		}
		if seen[name] {
			return fmt.Errorf("sheet %q is used by more than one ledger", name)
		}
		seen[name] = true
	}
	for _, col := range []string{c.IDColumn, c.NarrationColumn, c.RefColumn} {
		if _, err := excelize.ColumnNameToNumber(col); err != nil {
			return fmt.Errorf("invalid column %q: %w", col, err)
		}
	}
	return nil
}

// Sheet returns the sheet name for kind.
func (c *LedgerConfig) Sheet(kind models.LedgerKind) string {
	switch kind {
	case models.LedgerPrimary:
		return c.PrimarySheet
	case models.LedgerSecondary:
		return c.SecondarySheet
	default:
		return c.UnmatchedSheet
	}
}

// Headers returns the header row written to a new ledger sheet.
func Headers(kind models.LedgerKind) []interface{} {
	switch kind {
	case models.LedgerPrimary:
		return []interface{}{"ID", "DATE", "CHANNEL", "MESSAGE", "AMOUNT", "IDENTIFIER", "NAME", "REFNUMBER"}
	case models.LedgerSecondary:
		return []interface{}{"ID", "DATE", "CHANNEL", "MESSAGE", "AMOUNT", "IDENTIFIER", "NAME", "REFNUMBER", "IDENTITY"}
	default:
		return []interface{}{"ID", "DATE", "CHANNEL", "MESSAGE", "AMOUNT", "IDENTIFIER", "REASON", "REFNUMBER"}
	}
}

// Workbook keeps the three outcome ledgers as sheets of one xlsx file. A
// missing file is an empty set of ledgers and is created on first append.
type Workbook struct {
	config *LedgerConfig
	logger logger.Logger
	mu     sync.Mutex
}

// NewWorkbook creates a Workbook store.
func NewWorkbook(config *LedgerConfig, log logger.Logger) (*Workbook, error) {
	if config == nil {
		config = DefaultLedgerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ledger", config.Path, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Workbook{config: config, logger: log.WithComponent("ledger_workbook")}, nil
}

// LoadSnapshot reads the dedup keys and the last id of every ledger.
func (w *Workbook) LoadSnapshot(ctx context.Context) (*dedup.Snapshot, models.Sequences, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := dedup.NewSnapshot()
	var seq models.Sequences

	if err := ctx.Err(); err != nil {
		return nil, seq, errors.InternalError(errors.CodeCancelled, "ledger snapshot", err)
	}

	f, err := w.open(false)
	if err != nil {
		return nil, seq, errors.LedgerError(errors.CodeSnapshotFailed, w.config.Path, err)
	}
	if f == nil {
		w.logger.WithField("path", w.config.Path).Info("Ledger workbook not found, starting empty")
		return snapshot, seq, nil
	}
	defer f.Close()

	idCol := columnIndex(w.config.IDColumn)
	narrationCol := columnIndex(w.config.NarrationColumn)
	refCol := columnIndex(w.config.RefColumn)

	for _, kind := range models.LedgerKinds {
		sheet := w.config.Sheet(kind)
		rows, err := w.rows(f, sheet)
		if err != nil {
			return nil, seq, errors.LedgerError(errors.CodeSnapshotFailed, sheet, err)
		}

		// row 0 is the header
		for i := 1; i < len(rows); i++ {
			ref := cell(rows[i], refCol)
			if strings.EqualFold(ref, "refnumber") {
				ref = ""
			}
			snapshot.AddRecord(kind, ref, cell(rows[i], narrationCol))
		}
		seq.Set(kind, lastID(rows, idCol))

		refs, narrations := snapshot.Counts(kind)
		w.logger.WithFields(logger.Fields{
			"sheet":      sheet,
			"rows":       max(len(rows)-1, 0),
			"references": refs,
			"narrations": narrations,
			"last_id":    seq.Last(kind),
		}).Debug("Ledger sheet scanned")
	}

	return snapshot, seq, nil
}

// Append writes entries after the last used row of kind's sheet. The file is
// replaced atomically, so either every entry is written or none is.
func (w *Workbook) Append(ctx context.Context, kind models.LedgerKind, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	sheet := w.config.Sheet(kind)
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "ledger append", err)
	}

	f, err := w.open(true)
	if err != nil {
		return errors.LedgerError(errors.CodePersistenceFailed, sheet, err)
	}
	defer f.Close()

	rows, err := w.rows(f, sheet)
	if err != nil {
		return errors.LedgerError(errors.CodePersistenceFailed, sheet, err)
	}

	next := len(rows) + 1
	for i, entry := range entries {
		values := entry.Row()
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", next+i), &values); err != nil {
			return errors.LedgerError(errors.CodePersistenceFailed, sheet, err)
		}
	}

	if err := w.save(f); err != nil {
		return errors.LedgerError(errors.CodePersistenceFailed, sheet, err)
	}

	w.logger.WithFields(logger.Fields{
		"sheet":     sheet,
		"entries":   len(entries),
		"first_row": next,
		"first_id":  entries[0].ID,
		"last_id":   entries[len(entries)-1].ID,
	}).Info("Ledger entries appended")
	return nil
}

// open returns the workbook, or nil when it does not exist and create is
// false. Created workbooks get every ledger sheet with its header row.
func (w *Workbook) open(create bool) (*excelize.File, error) {
	f, err := excelize.OpenFile(w.config.Path)
	if err == nil {
		if create {
			if err := w.ensureSheets(f); err != nil {
				f.Close()
				return nil, err
			}
		}
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	if !create {
		return nil, nil
	}

	f = excelize.NewFile()
	defaultSheet := f.GetSheetName(0)
	if err := w.ensureSheets(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.DeleteSheet(defaultSheet); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (w *Workbook) ensureSheets(f *excelize.File) error {
	for _, kind := range models.LedgerKinds {
		sheet := w.config.Sheet(kind)
		idx, err := f.GetSheetIndex(sheet)
		if err != nil {
			return err
		}
		if idx >= 0 {
			continue
		}
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		header := Headers(kind)
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
	}
	return nil
}

// rows returns the sheet's cells; a missing sheet reads as empty.
func (w *Workbook) rows(f *excelize.File, sheet string) ([][]string, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	return f.GetRows(sheet)
}

func (w *Workbook) save(f *excelize.File) error {
	dir := filepath.Dir(w.config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+filepath.Base(w.config.Path)+".tmp.xlsx")
	if err := f.SaveAs(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, w.config.Path)
}

// lastID scans the id column upwards and returns the last integer found, or
// 0. Non-numeric cells (blank rows, notes) are skipped.
func lastID(rows [][]string, col int) int64 {
	for i := len(rows) - 1; i >= 1; i-- {
		v := cell(rows[i], col)
		if v == "" {
			continue
		}
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil && f == float64(int64(f)) {
			return int64(f)
		}
	}
	return 0
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func columnIndex(col string) int {
	n, err := excelize.ColumnNameToNumber(col)
	if err != nil {
		return -1
	}
	return n - 1
}
