package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/copyforge/pkg/models"
)

var activeWorkers atomic.Int64

func (o *Orchestrator) worker(
	ctx context.Context,
	workerID int,
	jobs <-chan models.BatchJob,
	results chan<- models.BatchResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	o.metrics.SetActiveWorkers(int(activeWorkers.Add(1)))
	defer func() { o.metrics.SetActiveWorkers(int(activeWorkers.Add(-1))) }()

	workerLogger := o.logger.With("worker_id", workerID)
	workerLogger.Debug("Worker started")

	for job := range jobs {
		select {
		case <-ctx.Done():
			workerLogger.Info("Worker cancelled")
			return
		default:
		}

		results <- o.processJob(ctx, workerLogger, job)
	}

	workerLogger.Debug("Worker finished")
}

func (o *Orchestrator) processJob(ctx context.Context, logger *slog.Logger, job models.BatchJob) models.BatchResult {
	start := time.Now()
	record, err := o.runner.Run(ctx, job.Config)
	result := models.BatchResult{
		Job:      job,
		Record:   record,
		Error:    err,
		Duration: time.Since(start),
	}

	if err != nil {
		logger.Error("Job failed", "job_id", job.ID, "line", job.Line, "error", err)
	} else {
		logger.Debug("Job processed",
			"job_id", job.ID,
			"line", job.Line,
			"total_score", record.RubricScore.TotalScore,
			"duration_ms", result.Duration.Milliseconds())
	}
	return result
}

func (o *Orchestrator) collectResults(total int, results <-chan models.BatchResult, wg *sync.WaitGroup) {
	defer wg.Done()

	var bar *progressbar.ProgressBar
	if o.progress != nil {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(o.progress),
			progressbar.OptionSetDescription("Generating"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	for result := range results {
		// Failures are written too, so the results file accounts for every line
		writeErr := o.sink.Write(result)
		if writeErr != nil {
			o.logger.Error("Failed to write result", "job_id", result.Job.ID, "error", writeErr)
		}
		failed := result.Error != nil || writeErr != nil

		o.mu.Lock()
		if failed {
			o.stats.FailureCount++
		} else {
			o.stats.SuccessCount++
			if result.Record.RubricScore != nil && result.Record.RubricScore.OverallPass {
				o.stats.PassedCount++
			}
		}
		o.mu.Unlock()

		o.metrics.IncrementBatchJob(!failed)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
}
