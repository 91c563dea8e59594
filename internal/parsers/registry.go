package parsers

import (
	"context"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// RegistryLoader reads customer registry snapshots.
type RegistryLoader struct {
	config *RegistryConfig
	logger logger.Logger
}

// NewRegistryLoader creates a RegistryLoader.
func NewRegistryLoader(config *RegistryConfig, log logger.Logger) (*RegistryLoader, error) {
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "registry", config.PrimarySheet, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &RegistryLoader{config: config, logger: log.WithComponent("registry_loader")}, nil
}

// registryRow is one line of a registry CSV snapshot.
type registryRow struct {
	Plate    string `csv:"plate"`
	Name     string `csv:"name"`
	Phone    string `csv:"phone"`
	Identity string `csv:"identity"`
}

// records splits a registry line into a plate record and a phone record.
// Lines with neither identifier, or no name, yield nothing.
func (r registryRow) records() []models.CustomerRecord {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil
	}
	identity := strings.TrimSpace(r.Identity)

	var out []models.CustomerRecord
	if plate := models.NormalizePlate(r.Plate); plate != "" {
		out = append(out, models.CustomerRecord{Identifier: plate, Kind: models.KindPlate, Name: name, Identity: identity})
	}
	if phone := models.NormalizePhone(r.Phone); phone != "" {
		out = append(out, models.CustomerRecord{Identifier: phone, Kind: models.KindPhone, Name: name, Identity: identity})
	}
	return out
}

// LoadCSV reads a registry snapshot with plate,name,phone,identity headers.
func (l *RegistryLoader) LoadCSV(ctx context.Context, path string) ([]models.CustomerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "registry load", err)
	}

	file, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []registryRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, errors.RegistryError(errors.CodeRegistryUnavailable, path, err)
	}

	var records []models.CustomerRecord
	for _, r := range rows {
		records = append(records, r.records()...)
	}

	l.logger.WithFields(logger.Fields{
		"file_path": path,
		"lines":     len(rows),
		"records":   len(records),
	}).Info("Registry snapshot loaded")
	return records, nil
}

// LoadWorkbook reads both registry sheets. A sheet that cannot be read is
// reported as nil records with a warning, so the caller can fall back to an
// empty registry. Only an unreadable workbook is an error.
func (l *RegistryLoader) LoadWorkbook(ctx context.Context, path string) (primary, secondary []models.CustomerRecord, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.InternalError(errors.CodeCancelled, "registry load", err)
	}

	file, err := openInput(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, nil, errors.RegistryError(errors.CodeRegistryUnavailable, path, err)
	}
	defer f.Close()

	primary = l.loadSheet(f, l.config.PrimarySheet)
	if l.config.SecondarySheet != "" {
		secondary = l.loadSheet(f, l.config.SecondarySheet)
	}
	return primary, secondary, nil
}

func (l *RegistryLoader) loadSheet(f *excelize.File, sheet string) []models.CustomerRecord {
	log := l.logger.WithField("sheet", sheet)

	cells, err := f.GetRows(sheet)
	if err != nil {
		log.WithError(errors.RegistryError(errors.CodeRegistryUnavailable, sheet, err)).Warn("Registry sheet unavailable")
		return nil
	}

	cell := func(row []string, col string) string {
		i := columnIndex(col)
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := []models.CustomerRecord{}
	// first row is the header
	for i := 1; i < len(cells); i++ {
		row := registryRow{
			Plate:    cell(cells[i], l.config.PlateColumn),
			Name:     cell(cells[i], l.config.NameColumn),
			Phone:    cell(cells[i], l.config.PhoneColumn),
			Identity: cell(cells[i], l.config.IdentityColumn),
		}
		records = append(records, row.records()...)
	}

	log.WithFields(logger.Fields{
		"lines":   max(len(cells)-1, 0),
		"records": len(records),
	}).Info("Registry sheet loaded")
	return records
}
