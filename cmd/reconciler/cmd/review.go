package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"credit-reconciliation-service/cmd/reconciler/config"
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/internal/reconciler"
	"credit-reconciliation-service/internal/reporter"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

// reviewOptions select which queued items to accept or reject.
type reviewOptions struct {
	RunID       string
	Accept      []int
	Reject      []int
	AcceptAll   bool
	RejectAll   bool
	Interactive bool
	Format      string
	OutputFile  string
}

var reviewOpts reviewOptions

// reviewCmd represents the review command
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Accept or reject queued plate suggestions of a pending run",
	Long: `Review resolves the review queue of a run that 'reconciler reconcile' left
pending. Accepted items are recorded in the ledger of the suggested customer,
rejected items in UNMATCHED. Items without a decision stay queued. Once the
queue is empty every ledger batch of the run is written and the pending state
is removed.

Running review with no decisions on a run whose queue is already empty retries
a ledger write that failed earlier.

Examples:
  # Accept item 0, reject items 1 and 2
  reconciler review --run-id 2f1c... --accept 0 --reject 1,2

  # Decide item by item
  reconciler review --run-id 2f1c... --interactive`,

	PreRunE: validateReviewFlags,
	RunE:    runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringVar(&reviewOpts.RunID, "run-id", "", "run to review (required)")
	reviewCmd.Flags().IntSliceVar(&reviewOpts.Accept, "accept", nil, "queue indexes to accept")
	reviewCmd.Flags().IntSliceVar(&reviewOpts.Reject, "reject", nil, "queue indexes to reject")
	reviewCmd.Flags().BoolVar(&reviewOpts.AcceptAll, "accept-all", false, "accept every queued item")
	reviewCmd.Flags().BoolVar(&reviewOpts.RejectAll, "reject-all", false, "reject every queued item")
	reviewCmd.Flags().BoolVarP(&reviewOpts.Interactive, "interactive", "i", false, "prompt for each queued item")
	reviewCmd.Flags().StringVarP(&reviewOpts.Format, "output-format", "f", "", "output format: console, json, csv")
	reviewCmd.Flags().StringVarP(&reviewOpts.OutputFile, "output-file", "o", "", "output file path (default: stdout)")

	reviewCmd.MarkFlagRequired("run-id")
}

func validateReviewFlags(cmd *cobra.Command, args []string) error {
	return validateReviewOptions(reviewOpts)
}

func validateReviewOptions(opts reviewOptions) error {
	if strings.TrimSpace(opts.RunID) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "run-id", nil, nil)
	}

	modes := 0
	if opts.AcceptAll {
		modes++
	}
	if opts.RejectAll {
		modes++
	}
	if opts.Interactive {
		modes++
	}
	if len(opts.Accept) > 0 || len(opts.Reject) > 0 {
		modes++
	}
	if modes > 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "review mode", nil,
			fmt.Errorf("use only one of --accept/--reject, --accept-all, --reject-all, --interactive"))
	}

	if opts.Format != "" && !reporter.OutputFormat(opts.Format).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", opts.Format,
			fmt.Errorf("valid formats: console, json, csv"))
	}
	return nil
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	_, err = reviewRun(cmd.Context(), cfg, reviewOpts, cmd.InOrStdin(), cmd.OutOrStdout(), log)
	return err
}

// reviewRun loads the pending run, collects decisions and applies them.
func reviewRun(ctx context.Context, cfg *config.Config, opts reviewOptions, in io.Reader, out io.Writer, log logger.Logger) (*reconciler.ReviewReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log = log.WithField("run_id", opts.RunID)

	orchestrator, closePending, err := buildOrchestrator(ctx, cfg, emptyDirectory(log), nil, log)
	if err != nil {
		return nil, err
	}
	defer closePending()

	state, err := orchestrator.LoadPending(ctx, opts.RunID)
	if err != nil {
		return nil, err
	}

	var decisions []reconciler.Decision
	if opts.Interactive {
		decisions, err = promptDecisions(in, out, state.Review, cfg.CreateReportConfig(opts.Format).UseColors)
	} else {
		decisions, err = buildDecisions(opts, state.Review)
	}
	if err != nil {
		return nil, err
	}

	review, err := orchestrator.Review(ctx, opts.RunID, decisions)
	if err != nil {
		return nil, err
	}

	if err := writeReport(cfg, opts.Format, opts.OutputFile, reporter.FromReview(review, now()), out, log); err != nil {
		return review, err
	}
	return review, nil
}

// buildDecisions turns the index flags into decisions. An index may be
// accepted or rejected, not both.
func buildDecisions(opts reviewOptions, items []models.ReviewItem) ([]reconciler.Decision, error) {
	if opts.AcceptAll || opts.RejectAll {
		decisions := make([]reconciler.Decision, 0, len(items))
		for _, item := range items {
			decisions = append(decisions, reconciler.Decision{Index: item.Index, Accept: opts.AcceptAll})
		}
		return decisions, nil
	}

	rejected := make(map[int]bool, len(opts.Reject))
	for _, idx := range opts.Reject {
		rejected[idx] = true
	}

	decisions := make([]reconciler.Decision, 0, len(opts.Accept)+len(opts.Reject))
	for _, idx := range opts.Accept {
		if rejected[idx] {
			return nil, errors.ReviewError(errors.CodeInvalidDecision, opts.RunID,
				fmt.Errorf("item %d is both accepted and rejected", idx))
		}
		decisions = append(decisions, reconciler.Decision{Index: idx, Accept: true})
	}
	for _, idx := range opts.Reject {
		decisions = append(decisions, reconciler.Decision{Index: idx, Accept: false})
	}
	return decisions, nil
}

// promptDecisions asks for a decision on each item. Skipped items stay
// queued; quitting or reaching end of input leaves the rest undecided.
func promptDecisions(in io.Reader, out io.Writer, items []models.ReviewItem, useColors bool) ([]reconciler.Decision, error) {
	header := color.New(color.Bold)
	hint := color.New(color.FgYellow)
	prompt := color.New(color.FgCyan)
	if !useColors {
		header.DisableColor()
		hint.DisableColor()
		prompt.DisableColor()
	}

	if len(items) == 0 {
		fmt.Fprintln(out, "Review queue is empty.")
		return nil, nil
	}

	scanner := bufio.NewScanner(in)
	var decisions []reconciler.Decision

	for i, item := range items {
		header.Fprintf(out, "\n[%d] %s  %s  (%d of %d)\n", item.Index, item.Date, item.Amount.StringFixed(2), i+1, len(items))
		fmt.Fprintf(out, "    %s\n", item.Narration)
		hint.Fprintf(out, "    %s looks like %s: %s (%s)\n", item.Fragment, item.SuggestedPlate, item.CustomerName, item.Target)

		for {
			prompt.Fprint(out, "    Accept? [y]es / [n]o / [s]kip / [q]uit: ")
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return nil, errors.InternalError(errors.CodeUnexpectedError, "read review input", err)
				}
				fmt.Fprintln(out)
				return decisions, nil
			}

			answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
			switch answer {
			case "y", "yes":
				decisions = append(decisions, reconciler.Decision{Index: item.Index, Accept: true})
			case "n", "no":
				decisions = append(decisions, reconciler.Decision{Index: item.Index, Accept: false})
			case "s", "skip", "":
			case "q", "quit":
				return decisions, nil
			default:
				fmt.Fprintf(out, "    unrecognised answer %q\n", answer)
				continue
			}
			break
		}
	}

	return decisions, nil
}
