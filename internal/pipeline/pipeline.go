// Package pipeline runs one request end to end: compose the prompt, generate
// copy, then score it with the rubric.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/copyforge/internal/api"
	"github.com/lamim/copyforge/internal/composer"
	"github.com/lamim/copyforge/internal/config"
	"github.com/lamim/copyforge/internal/metrics"
	"github.com/lamim/copyforge/internal/rubric"
	"github.com/lamim/copyforge/internal/util"
	"github.com/lamim/copyforge/pkg/models"
)

// Pipeline is safe for concurrent use; every Run is independent
type Pipeline struct {
	composer  *composer.Composer
	backend   api.Backend
	model     config.ModelConfig
	evaluator *rubric.Evaluator
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// New creates a pipeline generating with model on backend. collector may be nil.
func New(
	comp *composer.Composer,
	backend api.Backend,
	model config.ModelConfig,
	evaluator *rubric.Evaluator,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		composer:  comp,
		backend:   backend,
		model:     model,
		evaluator: evaluator,
		metrics:   collector,
		logger:    logger.With("component", "pipeline"),
	}
}

// Compose builds the generation prompt for cfg
func (p *Pipeline) Compose(cfg models.UserConfig) string {
	prompt := p.composer.Compose(cfg)
	p.metrics.IncrementPromptsComposed()
	return prompt
}

// Evaluate scores generated against prompt
func (p *Pipeline) Evaluate(ctx context.Context, prompt, generated string) (*models.RubricResult, error) {
	return p.evaluator.Evaluate(ctx, prompt, generated)
}

// Run composes, generates and evaluates. Generation always completes before
// evaluation starts. A failing backend call aborts the run; a rubric that
// does not pass is still a successful run.
func (p *Pipeline) Run(ctx context.Context, cfg models.UserConfig) (*models.GenerationRecord, error) {
	record := &models.GenerationRecord{
		ID:          uuid.NewString(),
		InputConfig: cfg,
	}
	logger := p.logger.With("request_id", record.ID)

	record.Prompt = p.Compose(cfg)
	logger.Debug("Prompt composed", "length", len(record.Prompt))

	genStart := time.Now()
	generated, err := api.Go(ctx, p.backend, record.Prompt, p.model, api.TaskGeneration).Wait(ctx)
	record.GenerationTime = time.Since(genStart)
	if err != nil {
		logger.Error("Generation failed", "error", err, "duration", record.GenerationTime)
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	record.GeneratedContent = util.StripThinkTags(generated)

	evalStart := time.Now()
	score, err := p.evaluator.Evaluate(ctx, record.Prompt, record.GeneratedContent)
	record.EvaluationTime = time.Since(evalStart)
	if err != nil {
		logger.Error("Evaluation failed", "error", err, "duration", record.EvaluationTime)
		return nil, err
	}
	record.RubricScore = score

	if !score.OverallPass {
		logger.Warn("Generated content failed rubric check",
			"total_score", score.TotalScore,
			"error", score.Error)
	} else {
		logger.Info("Generated content passed rubric check", "total_score", score.TotalScore)
	}

	return record, nil
}
