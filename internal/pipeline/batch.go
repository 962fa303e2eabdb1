package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/geolink/internal/debug"
	"github.com/geolink/internal/metrics"
	"github.com/geolink/internal/model"
)

// Matcher resolves one target to its terminal result. Implementations must
// be safe for concurrent use.
type Matcher interface {
	Match(localDebug bool, target model.Target) model.MatchResult
}

// ResultStore persists results per run and reports which targets a run has
// already completed.
type ResultStore interface {
	SaveResults(ctx context.Context, runID string, results []model.MatchResult) error
	ProcessedTargetIDs(ctx context.Context, runID string) (map[string]bool, error)
}

// Options controls the worker pool
type Options struct {
	Workers       int
	BatchSize     int
	ProgressEvery int
}

// BatchStats summarizes one run of the batch processor
type BatchStats struct {
	RunID          string               `json:"run_id"`
	TotalTargets   int                  `json:"total_targets"`
	ResumedCount   int                  `json:"resumed_count"`
	ProcessedCount int                  `json:"processed_count"`
	SkippedCount   int                  `json:"skipped_count"`
	Counts         map[model.Status]int `json:"counts"`
	ProcessingTime time.Duration        `json:"processing_time"`
}

// BatchProcessor runs the matcher over a target list with a fixed worker
// pool and persists results in batches.
type BatchProcessor struct {
	matcher Matcher
	store   ResultStore
	opts    Options
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(matcher Matcher, store ResultStore, opts Options) *BatchProcessor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 1000
	}
	return &BatchProcessor{matcher: matcher, store: store, opts: opts}
}

// Pending drops targets the run has already checkpointed and reports how
// many were dropped.
func Pending(ctx context.Context, store ResultStore, runID string, targets []model.Target) ([]model.Target, int, error) {
	done, err := store.ProcessedTargetIDs(ctx, runID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load checkpoint for run %s: %w", runID, err)
	}

	pending := make([]model.Target, 0, len(targets))
	for _, t := range targets {
		if !done[t.ID] {
			pending = append(pending, t)
		}
	}
	return pending, len(targets) - len(pending), nil
}

// Run matches every target not yet stored for runID. Cancelling ctx stops
// dispatch of new targets; targets already handed to a worker still finish
// and every produced result is persisted before Run returns.
func (bp *BatchProcessor) Run(ctx context.Context, localDebug bool, runID string, targets []model.Target) (*BatchStats, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	startTime := time.Now()
	stats := &BatchStats{
		RunID:        runID,
		TotalTargets: len(targets),
		Counts:       make(map[model.Status]int, len(model.AllStatuses)),
	}

	pending, resumed, err := Pending(ctx, bp.store, runID, targets)
	if err != nil {
		return nil, err
	}
	stats.ResumedCount = resumed
	metrics.TargetsResumedTotal.Add(float64(resumed))
	debug.DebugOutput(localDebug, "Run %s: %d pending, %d already checkpointed", runID, len(pending), resumed)

	// dispatchCtx also stops dispatch when persisting fails
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	jobs := make(chan model.Target)
	results := make(chan model.MatchResult, bp.opts.Workers)

	var dispatched int
	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for _, t := range pending {
			select {
			case <-dispatchCtx.Done():
				return nil
			case jobs <- t:
				dispatched++
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for i := 0; i < bp.opts.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for t := range jobs {
				begin := time.Now()
				res := bp.matcher.Match(false, t)
				metrics.MatchDurationMs.Observe(float64(time.Since(begin).Microseconds()) / 1000)
				results <- res
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// Persisting survives cancellation so in-flight work is not lost
	saveCtx := context.WithoutCancel(ctx)
	batch := make([]model.MatchResult, 0, bp.opts.BatchSize)
	var saveErr error

	flush := func() {
		if len(batch) == 0 || saveErr != nil {
			batch = batch[:0]
			return
		}
		if err := bp.store.SaveResults(saveCtx, runID, batch); err != nil {
			metrics.ResultBatchesTotal.WithLabelValues("error").Inc()
			saveErr = fmt.Errorf("failed to save results for run %s: %w", runID, err)
			stopDispatch()
		} else {
			metrics.ResultBatchesTotal.WithLabelValues("ok").Inc()
		}
		batch = batch[:0]
	}

	for res := range results {
		stats.ProcessedCount++
		stats.Counts[res.Status]++
		metrics.TargetsTotal.WithLabelValues(string(res.Status)).Inc()

		batch = append(batch, res)
		if len(batch) >= bp.opts.BatchSize {
			flush()
		}

		if stats.ProcessedCount%bp.opts.ProgressEvery == 0 {
			slog.Info("match progress",
				slog.String("run_id", runID),
				slog.Int("processed", stats.ProcessedCount),
				slog.Int("pending", len(pending)))
		}
	}
	flush()

	// The dispatcher has returned once results is closed
	_ = g.Wait()

	stats.SkippedCount = len(pending) - dispatched
	metrics.TargetsSkippedTotal.Add(float64(stats.SkippedCount))
	stats.ProcessingTime = time.Since(startTime)

	debug.DebugOutput(localDebug, "Run %s: processed %d, skipped %d in %v",
		runID, stats.ProcessedCount, stats.SkippedCount, stats.ProcessingTime)

	if saveErr != nil {
		return stats, saveErr
	}
	if stats.SkippedCount > 0 {
		slog.Warn("run cancelled before all targets were dispatched",
			slog.String("run_id", runID),
			slog.Int("skipped", stats.SkippedCount))
	}
	return stats, nil
}
