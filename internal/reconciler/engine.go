// Package reconciler classifies bank-statement credits against the customer
// directory and drives the review workflow for low-confidence matches.
//
// A run walks the batch row by row, in order:
//
//  1. malformed rows are skipped and counted
//  2. rows whose reference or narration was already recorded are duplicates
//  3. a phone (preferred) or plate is looked up in the primary registry, then
//     the secondary registry, and the row lands in the matching ledger or in
//     the unmatched ledger
//  4. rows without a strict identifier fall back to plate suggestions; the
//     first suggestion that resolves opens a review item
//
// Nothing is persisted by the Engine. Output batches, the review queue and the
// advanced sequences are returned as one RunResult.
package reconciler

import (
	"context"
	"fmt"

	"credit-reconciliation-service/internal/dedup"
	"credit-reconciliation-service/internal/directory"
	"credit-reconciliation-service/internal/extractor"
	"credit-reconciliation-service/internal/models"
	"credit-reconciliation-service/pkg/errors"
	"credit-reconciliation-service/pkg/logger"
)

const (
	// NoIdentifier is recorded as the identifier of rows with no phone or plate.
	NoIdentifier = "No phone/plate"

	// ReasonNoIdentifier is the unmatched detail for rows with no phone or plate.
	ReasonNoIdentifier = "No identifier"

	// ReasonRejected is the unmatched detail for rejected review items.
	ReasonRejected = "rejected by reviewer"
)

// Config holds configuration options for the classification engine
type Config struct {
	// ProgressInterval is the number of rows between progress log lines
	ProgressInterval int64 `mapstructure:"progress_interval"`
}

// DefaultConfig returns a default configuration for the engine
func DefaultConfig() *Config {
	return &Config{
		ProgressInterval: 100,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive, got %d", c.ProgressInterval)
	}
	return nil
}

// Batch is the input of one run.
type Batch struct {
	Rows []models.TransactionRow

	// Snapshot holds the keys already recorded in the outcome ledgers. Nil
	// means the ledgers are empty.
	Snapshot *dedup.Snapshot

	// Sequences holds the highest existing id per ledger.
	Sequences models.Sequences
}

// Batches groups ledger entries by outcome ledger.
type Batches struct {
	Primary   []models.LedgerEntry `json:"primary"`
	Secondary []models.LedgerEntry `json:"secondary"`
	Unmatched []models.LedgerEntry `json:"unmatched"`
}

// For returns the entries destined for kind.
func (b *Batches) For(kind models.LedgerKind) []models.LedgerEntry {
	switch kind {
	case models.LedgerPrimary:
		return b.Primary
	case models.LedgerSecondary:
		return b.Secondary
	default:
		return b.Unmatched
	}
}

// Add appends entry to its ledger's batch.
func (b *Batches) Add(entry models.LedgerEntry) {
	switch entry.Ledger {
	case models.LedgerPrimary:
		b.Primary = append(b.Primary, entry)
	case models.LedgerSecondary:
		b.Secondary = append(b.Secondary, entry)
	default:
		b.Unmatched = append(b.Unmatched, entry)
	}
}

// Len returns the number of entries across all ledgers.
func (b *Batches) Len() int {
	return len(b.Primary) + len(b.Secondary) + len(b.Unmatched)
}

// RowOutcome records how a single row was classified.
type RowOutcome struct {
	Row         int            `json:"row"`
	Outcome     models.Outcome `json:"outcome"`
	Identifier  string         `json:"identifier,omitempty"`
	Detail      string         `json:"detail,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	DuplicateOf dedup.Origin   `json:"duplicate_of,omitempty"`
}

// RunResult is everything a run produced.
type RunResult struct {
	Batches   Batches             `json:"batches"`
	Review    []models.ReviewItem `json:"review"`
	Sequences models.Sequences    `json:"sequences"`
	Stats     Stats               `json:"stats"`
	Outcomes  []RowOutcome        `json:"outcomes"`
}

// Engine classifies transaction rows.
type Engine struct {
	config    *Config
	extractor *extractor.Extractor
	directory *directory.Directory
	channel   string
	logger    logger.Logger
}

// NewEngine creates an Engine. The directory is required; use a directory
// with empty registries when the registry source is unavailable.
func NewEngine(config *Config, ext *extractor.Extractor, dir *directory.Directory, log logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "engine", config.ProgressInterval, err)
	}
	if ext == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "engine setup", fmt.Errorf("extractor is required"))
	}
	if dir == nil {
		return nil, errors.RegistryError(errors.CodeNoDirectory, "directory", nil)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Engine{
		config:    config,
		extractor: ext,
		directory: dir,
		channel:   ext.Profile().Channel,
		logger:    log.WithComponent("engine"),
	}, nil
}

// Channel returns the source channel recorded on entries.
func (e *Engine) Channel() string {
	return e.channel
}

// Run classifies every row of batch. It returns an error only for whole-batch
// preconditions or cancellation; per-row problems always yield an outcome.
func (e *Engine) Run(ctx context.Context, batch Batch) (*RunResult, error) {
	if len(batch.Rows) == 0 {
		return nil, errors.InputError(errors.CodeNoRows, "batch", nil)
	}

	run := &runState{
		engine: e,
		ledger: dedup.NewLedger(batch.Snapshot),
		result: &RunResult{
			Sequences: batch.Sequences,
			Stats:     newStats(),
			Outcomes:  make([]RowOutcome, 0, len(batch.Rows)),
		},
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "classify",
		Total:     int64(len(batch.Rows)),
		Interval:  e.config.ProgressInterval,
		Logger:    e.logger,
	})

	for i, row := range batch.Rows {
		if err := ctx.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeCancelled, "reconciliation run", err)
		}
		outcome := run.classify(i, row)
		run.result.Outcomes = append(run.result.Outcomes, outcome)
		run.result.Stats.Total++
		progress.Increment()
	}
	progress.Complete()

	s := run.result.Stats
	e.logger.WithFields(logger.Fields{
		"total":             s.Total,
		"matched_primary":   s.MatchedPrimary,
		"matched_secondary": s.MatchedSecondary,
		"unmatched":         s.Unmatched,
		"pending_review":    s.PendingReview,
		"duplicates":        s.Duplicates,
		"malformed":         s.Malformed,
	}).Info("Batch classified")

	return run.result, nil
}

type runState struct {
	engine *Engine
	ledger *dedup.Ledger
	result *RunResult
}

func (r *runState) classify(index int, row models.TransactionRow) RowOutcome {
	log := r.engine.logger.WithField("row", index)
	stats := &r.result.Stats

	if err := row.Validate(); err != nil {
		stats.Malformed++
		log.WithError(err).Warn("Malformed row skipped")
		return RowOutcome{Row: index, Outcome: models.OutcomeMalformed, Detail: err.Error()}
	}

	ids := r.engine.extractor.Extract(row.Narration)

	if origin, dup := r.ledger.Check(ids.Reference, row.Narration); dup {
		stats.addDuplicate(origin)
		log.WithFields(logger.Fields{"reference": ids.Reference, "origin": origin}).Info("Duplicate skipped")
		return RowOutcome{Row: index, Outcome: models.OutcomeDuplicate, Reference: ids.Reference, DuplicateOf: origin}
	}
	r.ledger.Record(ids.Reference, row.Narration)

	if id, kind, ok := ids.Primary(); ok {
		return r.classifyIdentifier(index, row, ids.Reference, id, kind, log)
	}
	return r.classifySuggestions(index, row, ids.Reference, log)
}

func (r *runState) classifyIdentifier(index int, row models.TransactionRow, ref, id string, kind models.IdentifierKind, log logger.Logger) RowOutcome {
	recorded := id
	if kind == models.KindPhone {
		recorded = models.NationalPhone(id)
	}

	entry := models.LedgerEntry{
		Date:       row.PostingDate,
		Channel:    r.engine.channel,
		Narration:  row.Narration,
		Amount:     row.Amount,
		Identifier: recorded,
		Reference:  ref,
	}

	if m, ok := r.engine.directory.Resolve(id, kind); ok {
		entry.Ledger = m.Tier.Ledger()
		entry.Detail = m.Name
		if entry.Ledger == models.LedgerSecondary {
			entry.Identity = m.Identity
		}
	} else {
		entry.Ledger = models.LedgerUnmatched
		entry.Detail = fmt.Sprintf("%s(%s) not found", kind, recorded)
	}

	r.emit(&entry)
	log.WithFields(logger.Fields{
		"outcome":    entry.Ledger,
		"identifier": entry.Identifier,
		"id":         entry.ID,
	}).Debug("Row classified")

	return RowOutcome{
		Row:        index,
		Outcome:    models.OutcomeFor(entry.Ledger),
		Identifier: entry.Identifier,
		Detail:     entry.Detail,
		Reference:  ref,
	}
}

func (r *runState) classifySuggestions(index int, row models.TransactionRow, ref string, log logger.Logger) RowOutcome {
	for _, s := range r.engine.extractor.Suggestions(row.Narration) {
		m, ok := r.engine.directory.Resolve(s.Plate, models.KindPlate)
		if !ok {
			continue
		}

		item := models.ReviewItem{
			Index:          len(r.result.Review),
			Date:           row.PostingDate,
			Narration:      row.Narration,
			Amount:         row.Amount,
			Reference:      ref,
			Fragment:       s.Fragment,
			SuggestedPlate: s.Plate,
			CustomerName:   m.Name,
			Target:         m.Tier.Ledger(),
			Confidence:     s.Confidence,
			Reason:         s.Reason,
		}
		if item.Target == models.LedgerSecondary {
			item.Identity = m.Identity
		}
		r.result.Review = append(r.result.Review, item)
		r.result.Stats.PendingReview++

		log.WithFields(logger.Fields{
			"suggested": s.Plate,
			"fragment":  s.Fragment,
			"target":    item.Target,
		}).Info("Review item opened")

		return RowOutcome{
			Row:        index,
			Outcome:    models.OutcomePendingReview,
			Identifier: s.Plate,
			Detail:     m.Name,
			Reference:  ref,
		}
	}

	entry := models.LedgerEntry{
		Date:       row.PostingDate,
		Channel:    r.engine.channel,
		Narration:  row.Narration,
		Amount:     row.Amount,
		Identifier: NoIdentifier,
		Detail:     ReasonNoIdentifier,
		Reference:  ref,
		Ledger:     models.LedgerUnmatched,
	}
	r.emit(&entry)
	log.WithField("id", entry.ID).Debug("No identifier found")

	return RowOutcome{
		Row:        index,
		Outcome:    models.OutcomeUnmatched,
		Identifier: NoIdentifier,
		Detail:     ReasonNoIdentifier,
		Reference:  ref,
	}
}

// emit assigns the next id of the entry's ledger and queues it.
func (r *runState) emit(entry *models.LedgerEntry) {
	entry.ID = r.result.Sequences.Next(entry.Ledger)
	r.result.Batches.Add(*entry)
	r.result.Stats.addOutcome(entry.Ledger)
}
