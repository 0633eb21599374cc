package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/lamim/copyforge/internal/config"
	"github.com/lamim/copyforge/internal/util"
)

// MockBackend answers without any network traffic. Generation returns canned
// marketing copy, rubric checks return random scores between 3 and 5.
type MockBackend struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	logger   *slog.Logger
}

// NewMockBackend creates a mock with 100-500ms simulated latency
func NewMockBackend(logger *slog.Logger) *MockBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockBackend{
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 500 * time.Millisecond,
		logger:   logger.With("component", "mock_backend"),
	}
}

type mockScores struct {
	TargetAudience int    `json:"score_target_audience"`
	BrandStyle     int    `json:"score_brand_style"`
	CTAClarity     int    `json:"score_cta_clarity"`
	Feasibility    int    `json:"score_feasibility"`
	Notes          string `json:"notes"`
}

// Complete simulates latency, then answers according to task
func (m *MockBackend) Complete(ctx context.Context, prompt string, model config.ModelConfig, task Task) (string, error) {
	m.logger.Debug("Mock backend call", "model", model.ModelName, "task", task)

	if err := m.sleep(ctx); err != nil {
		return "", err
	}

	switch task {
	case TaskRubricCheck:
		out, err := json.MarshalIndent(mockScores{
			TargetAudience: 3 + rand.Intn(3),
			BrandStyle:     3 + rand.Intn(3),
			CTAClarity:     3 + rand.Intn(3),
			Feasibility:    3 + rand.Intn(3),
			Notes:          fmt.Sprintf("模擬 Rubric 評分結果 (Model: %s)。請替換為真實 LLM 輸出。", model.ModelName),
		}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal mock scores: %w", err)
		}
		return string(out), nil

	case TaskGeneration:
		style := "專業"
		if strings.Contains(prompt, "熱情") {
			style = "熱血"
		}
		cta := "歡迎聯繫"
		if strings.Contains(prompt, "立即免費試用") {
			cta = "立即免費試用"
		}
		return fmt.Sprintf(`【%s衝刺！讓你的專案更高效！】
剛畢業的你，是否對簡報感到焦慮？別擔心！AI 簡報工具讓你一鍵生成專業簡報，
把時間用在最重要的事上！
#AI工具 #效率
**🔥 趕快行動！%s！**`, style, cta), nil
	}

	return "Mock Output for prompt: " + util.TruncateString(prompt, 50), nil
}

func (m *MockBackend) sleep(ctx context.Context) error {
	delay := m.MinDelay
	if span := m.MaxDelay - m.MinDelay; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
