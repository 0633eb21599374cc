package models

import "time"

// Module types recognised by the prompt composer
const (
	ModuleStyle    = "style"
	ModuleAudience = "audience"
	ModuleContext  = "context"
	ModuleProduct  = "product"
	ModuleCTA      = "cta"
	ModuleFormat   = "format"
)

// UserConfig maps a module type to the module name requested for it
type UserConfig map[string]string

// DefaultUserConfig returns the example configuration used when a request omits one
func DefaultUserConfig() UserConfig {
	return UserConfig{
		ModuleStyle:    "熱血",
		ModuleAudience: "剛畢業的大學生",
		ModuleFormat:   "社群貼文",
		ModuleProduct:  "AI 簡報生成工具",
		ModuleCTA:      "立即免費試用",
	}
}

// RubricScores holds the four rubric sub-scores, each in [0,5]
type RubricScores struct {
	TargetAudience int `json:"score_target_audience"`
	BrandStyle     int `json:"score_brand_style"`
	CTAClarity     int `json:"score_cta_clarity"`
	Feasibility    int `json:"score_feasibility"`
}

// Rubric scale
const (
	RubricMaxCriterionScore = 5
	RubricMaxTotalScore     = 4 * RubricMaxCriterionScore
	RubricPassThreshold     = 12 // inclusive
)

// Total sums the four sub-scores
func (s RubricScores) Total() int {
	return s.TargetAudience + s.BrandStyle + s.CTAClarity + s.Feasibility
}

// Pass reports whether the total reaches the pass threshold
func (s RubricScores) Pass() bool {
	return s.Total() >= RubricPassThreshold
}

// RubricResult is the outcome of one rubric evaluation.
// Scores is nil when the scoring output could not be used; Error and
// RawOutput then describe what went wrong.
type RubricResult struct {
	*RubricScores
	Notes       string `json:"notes,omitempty"`
	TotalScore  int    `json:"total_score"`
	OverallPass bool   `json:"overall_pass"`
	Error       string `json:"error,omitempty"`
	RawOutput   string `json:"raw_output,omitempty"`
}

// Failed reports whether the result is error-shaped
func (r *RubricResult) Failed() bool {
	return r.RubricScores == nil || r.Error != ""
}

// Recompute re-derives TotalScore and OverallPass from the sub-scores.
// An error-shaped result is reset to total 0, not passing.
func (r *RubricResult) Recompute() {
	if r.Failed() {
		r.TotalScore = 0
		r.OverallPass = false
		return
	}
	r.TotalScore = r.RubricScores.Total()
	r.OverallPass = r.RubricScores.Pass()
}

// GenerationRecord is the outcome of one compose/generate/evaluate run
type GenerationRecord struct {
	ID               string        `json:"id"`
	InputConfig      UserConfig    `json:"input_config"`
	Prompt           string        `json:"prompt"`
	GeneratedContent string        `json:"generated_content"`
	RubricScore      *RubricResult `json:"rubric_score"`
	GenerationTime   time.Duration `json:"generation_ns"`
	EvaluationTime   time.Duration `json:"evaluation_ns"`
}

// BatchJob is a single line of a batch input file
type BatchJob struct {
	ID     int
	Line   int
	Config UserConfig
}

// BatchResult is what the batch runner writes for each job
type BatchResult struct {
	Job      BatchJob
	Record   *GenerationRecord
	Error    error
	Duration time.Duration
}

// BatchLine is the JSONL representation of a batch result
type BatchLine struct {
	Line   int               `json:"line"`
	Record *GenerationRecord `json:"record,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// SessionStats tracks batch run statistics
type SessionStats struct {
	TotalJobs     int           `json:"total_jobs"`
	SuccessCount  int           `json:"success_count"`
	FailureCount  int           `json:"failure_count"`
	PassedCount   int           `json:"passed_count"`
	SkippedCount  int           `json:"skipped_count"` // already completed in a resumed session
	StartTime     time.Time     `json:"start_time"`
	TotalDuration time.Duration `json:"total_duration"`
}
