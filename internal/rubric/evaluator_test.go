package rubric

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lamim/copyforge/internal/api"
	"github.com/lamim/copyforge/internal/config"
	"github.com/lamim/copyforge/pkg/models"
)

// stubBackend returns a fixed answer and records what it was asked
type stubBackend struct {
	output     string
	err        error
	lastPrompt string
	lastTask   api.Task
}

func (s *stubBackend) Complete(_ context.Context, prompt string, _ config.ModelConfig, task api.Task) (string, error) {
	s.lastPrompt = prompt
	s.lastTask = task
	return s.output, s.err
}

func newTestEvaluator(b api.Backend) *Evaluator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(b, config.ModelConfig{ModelName: "rubric-test"}, logger)
}

func TestEvaluate_Verdicts(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantTotal int
		wantPass  bool
	}{
		{
			name:      "all max",
			output:    `{"score_target_audience": 5, "score_brand_style": 5, "score_cta_clarity": 5, "score_feasibility": 5}`,
			wantTotal: 20,
			wantPass:  true,
		},
		{
			name:      "all two",
			output:    `{"score_target_audience": 2, "score_brand_style": 2, "score_cta_clarity": 2, "score_feasibility": 2}`,
			wantTotal: 8,
			wantPass:  false,
		},
		{
			name:      "boundary passes",
			output:    `{"score_target_audience": 3, "score_brand_style": 3, "score_cta_clarity": 3, "score_feasibility": 3}`,
			wantTotal: 12,
			wantPass:  true,
		},
		{
			name:      "one below boundary",
			output:    `{"score_target_audience": 3, "score_brand_style": 3, "score_cta_clarity": 3, "score_feasibility": 2}`,
			wantTotal: 11,
			wantPass:  false,
		},
		{
			name:      "all zero",
			output:    `{"score_target_audience": 0, "score_brand_style": 0, "score_cta_clarity": 0, "score_feasibility": 0}`,
			wantTotal: 0,
			wantPass:  false,
		},
		{
			name:      "code fence",
			output:    "```json\n{\"score_target_audience\": 4, \"score_brand_style\": 4, \"score_cta_clarity\": 4, \"score_feasibility\": 4}\n```",
			wantTotal: 16,
			wantPass:  true,
		},
		{
			name:      "example object before scores",
			output:    `範例格式 {"score": 0}，評分結果: {"score_target_audience": 5, "score_brand_style": 4, "score_cta_clarity": 3, "score_feasibility": 4}`,
			wantTotal: 16,
			wantPass:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEvaluator(&stubBackend{output: tt.output})

			result, err := e.Evaluate(context.Background(), "prompt", "generated")
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if result.Failed() {
				t.Fatalf("unexpected error-shaped result: %+v", result)
			}
			if result.TotalScore != tt.wantTotal {
				t.Errorf("TotalScore = %d, want %d", result.TotalScore, tt.wantTotal)
			}
			if result.OverallPass != tt.wantPass {
				t.Errorf("OverallPass = %v, want %v", result.OverallPass, tt.wantPass)
			}
		})
	}
}

func TestEvaluate_NotJSON(t *testing.T) {
	e := newTestEvaluator(&stubBackend{output: "This is not JSON"})

	result, err := e.Evaluate(context.Background(), "prompt", "generated")
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.OverallPass {
		t.Error("OverallPass should be false")
	}
	if result.Error != ErrMsgNotJSON {
		t.Errorf("Error = %q, want %q", result.Error, ErrMsgNotJSON)
	}
	if result.RawOutput != "This is not JSON" {
		t.Errorf("RawOutput = %q", result.RawOutput)
	}
}

func TestParse_InvalidScores(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"missing field", `{"score_target_audience": 5, "score_brand_style": 5, "score_cta_clarity": 5}`},
		{"string score", `{"score_target_audience": "5", "score_brand_style": 5, "score_cta_clarity": 5, "score_feasibility": 5}`},
		{"above range", `{"score_target_audience": 6, "score_brand_style": 5, "score_cta_clarity": 5, "score_feasibility": 5}`},
		{"negative", `{"score_target_audience": -1, "score_brand_style": 5, "score_cta_clarity": 5, "score_feasibility": 5}`},
		{"fractional", `{"score_target_audience": 4.5, "score_brand_style": 5, "score_cta_clarity": 5, "score_feasibility": 5}`},
		{"null score", `{"score_target_audience": null, "score_brand_style": 5, "score_cta_clarity": 5, "score_feasibility": 5}`},
		{"array", `[5, 5, 5, 5]`},
		{"no complete object", `{"score": 0} {"score_target_audience": 5, "score_brand_style": 5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.output)
			if !result.Failed() {
				t.Fatalf("expected error-shaped result, got %+v", result)
			}
			if result.OverallPass {
				t.Error("OverallPass should be false")
			}
			if !strings.HasPrefix(result.Error, "未預期錯誤") {
				t.Errorf("Error = %q, want generic error", result.Error)
			}
			if result.RawOutput != tt.output {
				t.Errorf("RawOutput = %q, want %q", result.RawOutput, tt.output)
			}
		})
	}
}

func TestEvaluate_EmptyChatResponseIsGraded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"index": 0, "message": {"role": "assistant", "content": ""}, "finish_reason": "length"}]}`))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := api.NewChatBackend(api.NewClient(logger, nil), nil)
	e := New(backend, config.ModelConfig{
		BaseURL:            server.URL,
		ModelName:          "rubric-test",
		MaxOutputTokens:    16,
		RateLimitPerMinute: 6000,
		MaxRetries:         -1,
	}, logger)

	result, err := e.Evaluate(context.Background(), "prompt", "generated")
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want a graded result", err)
	}
	if !result.Failed() || result.OverallPass {
		t.Errorf("result = %+v, want error-shaped and not passing", result)
	}
	if result.Error != ErrMsgNotJSON {
		t.Errorf("Error = %q, want %q", result.Error, ErrMsgNotJSON)
	}
}

func TestParse_NotesAndNewlines(t *testing.T) {
	output := "{\"score_target_audience\": 4, \"score_brand_style\": 3, \"score_cta_clarity\": 5, \"score_feasibility\": 4, \"notes\": \"語氣貼近受眾\n結尾 CTA 明確\"}"

	result := Parse(output)
	if result.Failed() {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if result.Notes != "語氣貼近受眾\n結尾 CTA 明確" {
		t.Errorf("Notes = %q", result.Notes)
	}
	if result.TotalScore != 16 || !result.OverallPass {
		t.Errorf("got total=%d pass=%v, want 16/true", result.TotalScore, result.OverallPass)
	}
}

func TestEvaluate_BackendError(t *testing.T) {
	backendErr := errors.New("connection refused")
	e := newTestEvaluator(&stubBackend{err: backendErr})

	result, err := e.Evaluate(context.Background(), "prompt", "generated")
	if !errors.Is(err, backendErr) {
		t.Fatalf("Evaluate() error = %v, want %v", err, backendErr)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
}

func TestEvaluate_PromptEmbedsInputs(t *testing.T) {
	stub := &stubBackend{output: `{"score_target_audience": 5, "score_brand_style": 5, "score_cta_clarity": 5, "score_feasibility": 5}`}
	e := newTestEvaluator(stub)

	prompt := "原始 prompt {{.Injected}}"
	generated := "生成內容 <b>& \"quotes\""
	if _, err := e.Evaluate(context.Background(), prompt, generated); err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	if stub.lastTask != api.TaskRubricCheck {
		t.Errorf("task = %q, want %q", stub.lastTask, api.TaskRubricCheck)
	}
	for _, want := range append([]string{prompt, generated}, Criteria...) {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Errorf("rubric prompt missing %q", want)
		}
	}
}

func TestEvaluate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := api.NewMockBackend(slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := newTestEvaluator(mock)

	if _, err := e.Evaluate(ctx, "prompt", "generated"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Evaluate() error = %v, want context.Canceled", err)
	}
}

func TestEvaluate_MockBackendAlwaysPasses(t *testing.T) {
	mock := api.NewMockBackend(nil)
	mock.MinDelay, mock.MaxDelay = 0, 0
	e := newTestEvaluator(mock)

	for i := 0; i < 20; i++ {
		result, err := e.Evaluate(context.Background(), "prompt", "generated")
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if result.Failed() || result.TotalScore < 12 || result.TotalScore > MaxTotalScore || !result.OverallPass {
			t.Fatalf("mock scores 3-5 must always pass, got %+v", result)
		}
	}
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		scores    models.RubricScores
		wantTotal int
		wantPass  bool
	}{
		{models.RubricScores{TargetAudience: 5, BrandStyle: 5, CTAClarity: 5, Feasibility: 5}, 20, true},
		{models.RubricScores{TargetAudience: 3, BrandStyle: 3, CTAClarity: 3, Feasibility: 3}, 12, true},
		{models.RubricScores{TargetAudience: 5, BrandStyle: 5, CTAClarity: 1, Feasibility: 0}, 11, false},
		{models.RubricScores{}, 0, false},
	}

	for _, tt := range tests {
		total, pass := Verdict(tt.scores)
		if total != tt.wantTotal || pass != tt.wantPass {
			t.Errorf("Verdict(%+v) = (%d, %v), want (%d, %v)", tt.scores, total, pass, tt.wantTotal, tt.wantPass)
		}

		result := &models.RubricResult{RubricScores: &tt.scores, TotalScore: -1, OverallPass: !tt.wantPass}
		result.Recompute()
		if result.TotalScore != total || result.OverallPass != pass {
			t.Errorf("Recompute() disagrees with Verdict() for %+v", tt.scores)
		}
	}
}
