// Package rubric scores generated marketing copy against a fixed four-criterion
// rubric using a second model call.
package rubric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lamim/copyforge/internal/api"
	"github.com/lamim/copyforge/internal/config"
	"github.com/lamim/copyforge/internal/metrics"
	"github.com/lamim/copyforge/internal/util"
	"github.com/lamim/copyforge/pkg/models"
)

// Score bounds and the inclusive pass threshold
const (
	MaxCriterionScore = models.RubricMaxCriterionScore
	MaxTotalScore     = models.RubricMaxTotalScore
	PassThreshold     = models.RubricPassThreshold
)

// Error messages stored in an error-shaped result
const (
	ErrMsgNotJSON    = "Rubric 檢查器輸出非標準 JSON。"
	errMsgUnexpected = "未預期錯誤: %v"
)

// Criteria keys, in prompt order
var Criteria = []string{
	"score_target_audience",
	"score_brand_style",
	"score_cta_clarity",
	"score_feasibility",
}

const promptTemplate = `[SYSTEM: 嚴格的行銷品質評審]
你的任務是根據以下 Rubric 驗收標準，評估提供的『原始 Prompt』和『生成內容』。
請忽略語氣和創意，專注於 **邏輯與指令遵循度**。
請以 **單一 JSON 格式** 輸出結果，不要添加任何解釋或額外文字。

[RUBRIC 驗收標準]
1. score_target_audience (0-5分): 生成內容的語氣、詞彙是否符合 Prompt 指定的客群？
2. score_brand_style (0-5分): 是否遵循 Prompt 指定的風格模組？
3. score_cta_clarity (0-5分): 行動呼籲是否清晰、有說服力，並且出現在文案結尾？
4. score_feasibility (0-5分): 內容是否能直接用於廣告/社群，無明顯語法錯誤？
每項分數必須是 0 到 5 的整數，可另附 "notes" 字串說明評分理由。

[INPUT DATA]
--- 原始 Prompt ---
{{.Prompt}}
--- 生成內容 ---
{{.Generated}}
`


// Option configures an Evaluator
type Option func(*Evaluator)

// WithMetrics records every evaluation outcome in collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Evaluator) { e.metrics = collector }
}

// Evaluator asks a backend model to score generated copy
type Evaluator struct {
	backend api.Backend
	model   config.ModelConfig
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates an evaluator that scores with model on backend
func New(backend api.Backend, model config.ModelConfig, logger *slog.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{
		backend: backend,
		model:   model,
		logger:  logger.With("component", "rubric"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildPrompt renders the scoring instruction with prompt and generated
// embedded verbatim
func BuildPrompt(prompt, generated string) (string, error) {
	return util.RenderTemplate(promptTemplate, struct {
		Prompt    string
		Generated string
	}{prompt, generated})
}

// Evaluate scores generated against the prompt it was produced from.
// The error is non-nil only when the backend call fails; unusable scoring
// output yields an error-shaped result instead.
func (e *Evaluator) Evaluate(ctx context.Context, prompt, generated string) (*models.RubricResult, error) {
	checker, err := BuildPrompt(prompt, generated)
	if err != nil {
		return nil, fmt.Errorf("failed to render rubric prompt: %w", err)
	}

	raw, err := api.Go(ctx, e.backend, checker, e.model, api.TaskRubricCheck).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("rubric check failed: %w", err)
	}

	e.logger.Debug("Received rubric response", "length", len(raw), "first_200_chars", util.TruncateString(raw, 200))

	result := Parse(raw)
	switch {
	case result.Failed():
		e.logger.Error("Rubric output unusable", "error", result.Error, "raw_output", util.TruncateString(raw, 500))
		e.metrics.RecordRubric(metrics.OutcomeError, 0)
	case result.OverallPass:
		e.metrics.RecordRubric(metrics.OutcomePass, result.TotalScore)
	default:
		e.metrics.RecordRubric(metrics.OutcomeFail, result.TotalScore)
	}
	return result, nil
}

// Verdict returns the total score and pass flag for scores
func Verdict(scores models.RubricScores) (total int, pass bool) {
	return scores.Total(), scores.Pass()
}

// Parse turns raw scoring output into a result. It never fails: output that
// is not JSON, or JSON without four integer scores in range, becomes an
// error-shaped result carrying the raw text.
func Parse(raw string) (result *models.RubricResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failure(fmt.Sprintf(errMsgUnexpected, r), raw)
		}
	}()

	cleaned := util.SanitizeJSON(scoreObject(raw))

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return failure(ErrMsgNotJSON, raw)
	}

	fields, ok := doc.(map[string]any)
	if !ok {
		return failure(fmt.Sprintf(errMsgUnexpected, fmt.Sprintf("expected a JSON object, got %T", doc)), raw)
	}

	var values [4]int
	for i, key := range Criteria {
		v, err := criterion(fields, key)
		if err != nil {
			return failure(fmt.Sprintf(errMsgUnexpected, err), raw)
		}
		values[i] = v
	}

	scores := &models.RubricScores{
		TargetAudience: values[0],
		BrandStyle:     values[1],
		CTAClarity:     values[2],
		Feasibility:    values[3],
	}
	result = &models.RubricResult{RubricScores: scores}
	if notes, ok := fields["notes"].(string); ok {
		result.Notes = notes
	}
	result.Recompute()
	return result
}

// scoreObject picks the first JSON object holding every criterion, so an
// example object echoed before the answer is skipped. Without one it falls
// back to the first object.
func scoreObject(raw string) string {
	for _, candidate := range util.ExtractJSONObjects(raw) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(util.SanitizeJSON(candidate)), &fields); err != nil {
			continue
		}
		complete := true
		for _, key := range Criteria {
			if _, ok := fields[key]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return candidate
		}
	}
	return util.ExtractJSONObject(raw)
}

var errMissing = errors.New("missing score")

func criterion(fields map[string]any, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w %s", errMissing, key)
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
	if n < 0 || n > MaxCriterionScore {
		return 0, fmt.Errorf("%s out of range [0,%d]: %v", key, MaxCriterionScore, n)
	}
	if n != float64(int(n)) {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, n)
	}
	return int(n), nil
}

func failure(msg, raw string) *models.RubricResult {
	return &models.RubricResult{
		Error:     msg,
		RawOutput: raw,
	}
}
