// Package orchestrator runs the generation pipeline over a batch of user
// configs with a bounded worker pool.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lamim/copyforge/internal/metrics"
	"github.com/lamim/copyforge/pkg/models"
)

// Runner produces one record per user config
type Runner interface {
	Run(ctx context.Context, cfg models.UserConfig) (*models.GenerationRecord, error)
}

// ResultSink persists finished jobs
type ResultSink interface {
	Write(result models.BatchResult) error
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithProgress draws a progress bar on w
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) { o.progress = w }
}

// WithCompleted skips jobs whose input line is already in done
func WithCompleted(done map[int]bool) Option {
	return func(o *Orchestrator) { o.completed = done }
}

// WithMetrics reports worker and job counts to collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = collector }
}

// Orchestrator fans batch jobs out to workers and funnels results to a sink
type Orchestrator struct {
	runner      Runner
	sink        ResultSink
	concurrency int
	progress    io.Writer
	completed   map[int]bool
	metrics     *metrics.Collector
	logger      *slog.Logger

	mu    sync.Mutex
	stats models.SessionStats
}

// New creates an orchestrator running up to concurrency jobs at a time
func New(runner Runner, sink ResultSink, concurrency int, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	o := &Orchestrator{
		runner:      runner,
		sink:        sink,
		concurrency: concurrency,
		logger:      logger.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes jobs and blocks until every started job is written.
// Canceling ctx stops workers from picking up new jobs.
func (o *Orchestrator) Run(ctx context.Context, jobs []models.BatchJob) (models.SessionStats, error) {
	o.mu.Lock()
	o.stats = models.SessionStats{TotalJobs: len(jobs), StartTime: time.Now()}
	o.mu.Unlock()

	pending := make([]models.BatchJob, 0, len(jobs))
	for _, job := range jobs {
		if o.completed[job.Line] {
			continue
		}
		pending = append(pending, job)
	}
	if skipped := len(jobs) - len(pending); skipped > 0 {
		o.mu.Lock()
		o.stats.SkippedCount = skipped
		o.mu.Unlock()
		o.logger.Info("Skipping jobs completed in a previous run", "skipped", skipped, "pending", len(pending))
	}

	workers := min(o.concurrency, len(pending))
	o.logger.Info("Starting batch run", "jobs", len(pending), "workers", workers)

	jobsChan := make(chan models.BatchJob, len(pending))
	resultsChan := make(chan models.BatchResult, workers)

	for _, job := range pending {
		jobsChan <- job
	}
	close(jobsChan)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go o.worker(ctx, i, jobsChan, resultsChan, &wg)
	}

	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go o.collectResults(len(pending), resultsChan, &collectorWg)

	wg.Wait()
	close(resultsChan)
	collectorWg.Wait()

	stats := o.GetStats()
	stats.TotalDuration = time.Since(stats.StartTime)

	o.logger.Info("Batch run completed",
		"total", stats.TotalJobs,
		"successful", stats.SuccessCount,
		"failed", stats.FailureCount,
		"passed_rubric", stats.PassedCount,
		"skipped", stats.SkippedCount,
		"duration", stats.TotalDuration)

	if stats.FailureCount > 0 {
		failureRate := float64(stats.FailureCount) / float64(len(pending)) * 100
		o.logger.Warn("Batch run completed with failures",
			"failure_rate", fmt.Sprintf("%.2f%%", failureRate))
	}

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("batch run interrupted: %w", err)
	}
	return stats, nil
}

// GetStats returns a snapshot of the session statistics
func (o *Orchestrator) GetStats() models.SessionStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}
