package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"credit-reconciliation-service/cmd/reconciler/config"
	"credit-reconciliation-service/internal/parsers"
	"credit-reconciliation-service/internal/reconciler"
	"credit-reconciliation-service/internal/reporter"
	"credit-reconciliation-service/internal/store"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// reconcileOptions are the per-invocation inputs of a reconciliation run.
type reconcileOptions struct {
	Statement  string
	RunID      string
	DryRun     bool
	Format     string
	OutputFile string
}

var reconcileOpts reconcileOptions

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Classify statement credits into the outcome ledgers",
	Long: `Reconcile reads the credit rows of a bank statement, extracts a phone number
or motorcycle plate from each narration, resolves it against the primary and
secondary customer registries and appends every new credit to exactly one of
the MATCHED_PRIMARY, MATCHED_SECONDARY or UNMATCHED ledgers.

Rows already present in a ledger are skipped as duplicates. Rows that only
carry a plausible reversed or unprefixed plate are queued for review; in that
case nothing is written until 'reconciler review' resolves the queue.

Examples:
  # Workbook registry, default ledger workbook
  reconciler reconcile --statement statement.xlsx --registry registry.xlsx

  # CSV registry snapshots
  reconciler reconcile --statement statement.csv \
    --registry customers.csv --registry-secondary savings.csv

  # Preview only, JSON report
  reconciler reconcile --statement statement.xlsx --dry-run --output-format json`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&reconcileOpts.Statement, "statement", "s", "", "path to the bank statement (.xlsx or .csv, required)")
	reconcileCmd.Flags().StringVar(&reconcileOpts.RunID, "run-id", "", "identifier for this run (default: random UUID)")
	reconcileCmd.Flags().BoolVar(&reconcileOpts.DryRun, "dry-run", false, "classify and report without writing ledgers or pending state")

	reconcileCmd.Flags().StringP("registry", "r", "", "customer registry workbook, or primary registry CSV")
	reconcileCmd.Flags().String("registry-secondary", "", "secondary registry CSV (with a CSV --registry)")
	reconcileCmd.Flags().StringVarP(&reconcileOpts.Format, "output-format", "f", "", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&reconcileOpts.OutputFile, "output-file", "o", "", "output file path (default: stdout)")

	reconcileCmd.MarkFlagRequired("statement")

	viper.BindPFlag("registry.path", reconcileCmd.Flags().Lookup("registry"))
	viper.BindPFlag("registry.secondary_path", reconcileCmd.Flags().Lookup("registry-secondary"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	return validateReconcileOptions(reconcileOpts)
}

func validateReconcileOptions(opts reconcileOptions) error {
	if opts.Statement == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "statement", nil, nil)
	}
	if err := validateFileExists(opts.Statement, "statement file"); err != nil {
		return errors.InputError(errors.CodeFileNotFound, opts.Statement, err)
	}

	if opts.Format != "" && !reporter.OutputFormat(opts.Format).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", opts.Format,
			fmt.Errorf("valid formats: console, json, csv"))
	}

	if strings.ContainsAny(opts.RunID, " \t\n/") {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "run-id", opts.RunID,
			fmt.Errorf("run id cannot contain spaces or slashes"))
	}

	if opts.OutputFile != "" {
		dir := filepath.Dir(opts.OutputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.ConfigurationError(errors.CodeInvalidConfig, "output-file", opts.OutputFile,
					fmt.Errorf("output directory does not exist: %s", dir))
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	_, err = reconcileStatement(cmd.Context(), cfg, reconcileOpts, cmd.OutOrStdout(), log)
	return err
}

// reconcileStatement runs the full pipeline for one statement and writes the
// report.
func reconcileStatement(ctx context.Context, cfg *config.Config, opts reconcileOptions, out io.Writer, log logger.Logger) (*reconciler.RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	log = log.WithField("run_id", opts.RunID)

	log.WithFields(logger.Fields{
		"statement": opts.Statement,
		"registry":  cfg.Registry.Path,
		"ledger":    cfg.Ledger.Path,
		"dry_run":   opts.DryRun,
	}).Info("Starting reconciliation")

	parser, err := parsers.NewStatementParser(&cfg.Statement, log)
	if err != nil {
		return nil, err
	}
	rows, stats, err := parser.Parse(ctx, opts.Statement)
	if err != nil {
		return nil, err
	}
	log.WithField("stats", stats.String()).Info("Statement parsed")
	if stats.HasErrors() {
		log.WithField("samples", stats.GetSampleErrors(5)).Warn("Statement contains unreadable rows")
	}

	dir, err := loadDirectory(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var pending reconciler.PendingRepository
	if opts.DryRun {
		pending = store.NewMemoryPending()
	}
	orchestrator, closePending, err := buildOrchestrator(ctx, cfg, dir, pending, log)
	if err != nil {
		return nil, err
	}
	defer closePending()

	run, err := orchestrator.Reconcile(ctx, reconciler.RunRequest{
		RunID:  opts.RunID,
		Source: filepath.Base(opts.Statement),
		Rows:   rows,
		DryRun: opts.DryRun,
	})
	if err != nil {
		if re, ok := errors.AsReconcilerError(err); ok && re.Code == errors.CodePersistenceFailed {
			return nil, re.WithSuggestion(
				fmt.Sprintf("the run was kept; retry with 'reconciler review --run-id %s'", opts.RunID))
		}
		return nil, err
	}

	if err := writeReport(cfg, opts.Format, opts.OutputFile, reporter.FromRun(run, now()), out, log); err != nil {
		return run, err
	}

	if run.Pending {
		log.WithField("review_items", len(run.Result.Review)).
			Info("Run is waiting for review; nothing was written to the ledgers")
	}
	return run, nil
}
