package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"credit-reconciliation-service/cmd/reconciler/config"
	"credit-reconciliation-service/internal/reconciler"
	"credit-reconciliation-service/internal/reporter"
	"credit-reconciliation-service/pkg/logger"
)

var pendingJSON bool

// pendingCmd groups the commands that inspect runs waiting for review
var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect runs waiting for review",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending runs, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		return listPending(cmd.Context(), cfg, pendingJSON, cmd.OutOrStdout(), log)
	},
}

var pendingShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show the batches and review queue of a pending run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		format := ""
		if pendingJSON {
			format = string(reporter.FormatJSON)
		}
		return showPending(cmd.Context(), cfg, args[0], format, cmd.OutOrStdout(), log)
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.AddCommand(pendingListCmd, pendingShowCmd)

	pendingCmd.PersistentFlags().BoolVar(&pendingJSON, "json", false, "print JSON")
}

func listPending(ctx context.Context, cfg *config.Config, asJSON bool, out io.Writer, log logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	orchestrator, closePending, err := buildOrchestrator(ctx, cfg, emptyDirectory(log), nil, log)
	if err != nil {
		return err
	}
	defer closePending()

	runs, err := orchestrator.ListPending(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		if runs == nil {
			runs = []reconciler.PendingSummary{}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No pending runs.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREATED\tCHANNEL\tSOURCE\tREVIEW ITEMS\tENTRIES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			run.RunID, run.CreatedAt.Format(time.RFC3339), run.Channel, run.Source, run.ReviewItems, run.Entries)
	}
	return w.Flush()
}

func showPending(ctx context.Context, cfg *config.Config, runID, format string, out io.Writer, log logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	orchestrator, closePending, err := buildOrchestrator(ctx, cfg, emptyDirectory(log), nil, log)
	if err != nil {
		return err
	}
	defer closePending()

	state, err := orchestrator.LoadPending(ctx, runID)
	if err != nil {
		return err
	}
	return writeReport(cfg, format, "", reporter.FromPending(state, now()), out, log)
}
