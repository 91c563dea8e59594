package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker reports row throughput for a batch every Interval rows.
type ProgressTracker struct {
	logger    Logger
	operation string
	total     int64
	current   int64
	interval  int64
	startTime time.Time
	mutex     sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation string
	Total     int64
	Interval  int64
	Logger    Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.Interval <= 0 {
		config.Interval = 100
	}

	tracker := &ProgressTracker{
		logger:    config.Logger.WithComponent("progress"),
		operation: config.Operation,
		total:     config.Total,
		interval:  config.Interval,
		startTime: time.Now(),
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Debug("Starting operation")

	return tracker
}

// Increment advances the counter by one and logs on every interval boundary.
func (p *ProgressTracker) Increment() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	if p.current%p.interval == 0 {
		p.logger.WithFields(p.fields()).Info("Progress")
	}
}

// Complete logs the final count and elapsed time.
func (p *ProgressTracker) Complete() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	stats := p.stats()
	p.logger.WithFields(p.fields()).WithField("duration", stats.Duration.String()).Info("Operation completed")
	return stats
}

// Stats returns a snapshot of the tracker.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.stats()
}

func (p *ProgressTracker) stats() ProgressStats {
	elapsed := time.Since(p.startTime)
	var rate float64
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}
	return ProgressStats{
		Operation: p.operation,
		Current:   p.current,
		Total:     p.total,
		Duration:  elapsed,
		Rate:      rate,
	}
}

func (p *ProgressTracker) fields() Fields {
	f := Fields{
		"operation": p.operation,
		"processed": p.current,
		"total":     p.total,
	}
	if p.total > 0 {
		f["percentage"] = fmt.Sprintf("%.1f%%", float64(p.current)/float64(p.total)*100)
	}
	return f
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation string
	Current   int64
	Total     int64
	Duration  time.Duration
	Rate      float64
}

func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d rows in %v", ps.Operation, ps.Current, ps.Total, ps.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s: %d rows in %v", ps.Operation, ps.Current, ps.Duration.Round(time.Millisecond))
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, logger Logger, fn func() error) error {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	start := time.Now()
	log := logger.WithField("operation", operation)

	err := fn()

	log = log.WithField("duration", time.Since(start).String())
	if err != nil {
		log.WithError(err).Error("Operation failed")
	} else {
		log.Debug("Operation completed")
	}
	return err
}
