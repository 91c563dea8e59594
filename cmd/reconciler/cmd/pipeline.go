package cmd

import (
	"context"
	"io"
	"time"

	"credit-reconciliation-service/cmd/reconciler/config"
	"credit-reconciliation-service/internal/directory"
	"credit-reconciliation-service/internal/extractor"
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/internal/parsers"
	"credit-reconciliation-service/internal/reconciler"
	"credit-reconciliation-service/internal/reporter"
	"credit-reconciliation-service/internal/store"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// loadDirectory builds the customer directory from the configured registry.
// Each registry source fails soft on its own: an unreadable one is logged and
// replaced by an empty registry without affecting the other. Only
// cancellation is returned as an error.
func loadDirectory(ctx context.Context, cfg *config.Config, log logger.Logger) (*directory.Directory, error) {
	loader, err := parsers.NewRegistryLoader(&cfg.Registry.RegistryConfig, log)
	if err != nil {
		return nil, err
	}

	if !cfg.Registry.IsCSV() {
		primary, secondary, err := loader.LoadWorkbook(ctx, cfg.Registry.Path)
		if err := registryFailure(err, cfg.Registry.Path, log); err != nil {
			return nil, err
		}
		return directory.New(registryOrNil(primary), registryOrNil(secondary), log), nil
	}

	primary, err := loader.LoadCSV(ctx, cfg.Registry.Path)
	if err := registryFailure(err, cfg.Registry.Path, log); err != nil {
		return nil, err
	}

	var secondary []models.CustomerRecord
	if cfg.Registry.SecondaryPath != "" {
		secondary, err = loader.LoadCSV(ctx, cfg.Registry.SecondaryPath)
		if err := registryFailure(err, cfg.Registry.SecondaryPath, log); err != nil {
			return nil, err
		}
	}

	return directory.New(registryOrNil(primary), registryOrNil(secondary), log), nil
}

// registryFailure logs a registry load error and swallows it, except for
// cancellation.
func registryFailure(err error, path string, log logger.Logger) error {
	if err == nil {
		return nil
	}
	if errors.HasCode(err, errors.CodeCancelled) {
		return err
	}
	log.WithError(err).WithField("registry", path).
		Warn("Registry unavailable, continuing with an empty registry")
	return nil
}

func registryOrNil(records []models.CustomerRecord) *directory.Registry {
	if records == nil {
		return nil
	}
	return directory.NewRegistry(records)
}

// buildOrchestrator wires the engine and stores. A nil pending repository
// opens the configured SQLite database; the returned close func releases it.
func buildOrchestrator(ctx context.Context, cfg *config.Config, dir *directory.Directory, pending reconciler.PendingRepository, log logger.Logger) (*reconciler.Orchestrator, func(), error) {
	ext, err := extractor.New(cfg.Bank, log)
	if err != nil {
		return nil, nil, err
	}

	engine, err := reconciler.NewEngine(&cfg.Engine, ext, dir, log)
	if err != nil {
		return nil, nil, err
	}

	ledgers, err := store.NewWorkbook(&cfg.Ledger, log)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {}
	if pending == nil {
		db, err := store.OpenSQLitePending(ctx, cfg.Pending.Path, log)
		if err != nil {
			return nil, nil, err
		}
		pending = db
		closer = func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("Failed to close pending store")
			}
		}
	}

	orchestrator, err := reconciler.NewOrchestrator(engine, ledgers, pending, log)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return orchestrator, closer, nil
}

// emptyDirectory is used by commands that resolve existing runs and never
// classify rows.
func emptyDirectory(log logger.Logger) *directory.Directory {
	return directory.New(directory.EmptyRegistry(), directory.EmptyRegistry(), log)
}

// writeReport renders report to outputFile, or to out when no file is given.
func writeReport(cfg *config.Config, format, outputFile string, report *reporter.Report, out io.Writer, log logger.Logger) error {
	generator, err := reporter.NewSafeReportGenerator(cfg.CreateReportConfig(format), log)
	if err != nil {
		return err
	}
	if outputFile != "" {
		return generator.WriteFile(report, outputFile)
	}
	return generator.GenerateReportSafely(report, out)
}

var now = time.Now
