package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lamim/copyforge/internal/config"
	"github.com/lamim/copyforge/internal/metrics"
)

type funcBackend func(ctx context.Context, prompt string) (string, error)

func (f funcBackend) Complete(ctx context.Context, prompt string, _ config.ModelConfig, _ Task) (string, error) {
	return f(ctx, prompt)
}

func TestGo_Wait(t *testing.T) {
	release := make(chan struct{})
	b := funcBackend(func(ctx context.Context, prompt string) (string, error) {
		<-release
		return "echo: " + prompt, nil
	})

	call := Go(context.Background(), b, "hi", config.ModelConfig{}, TaskGeneration)

	select {
	case <-call.Done():
		t.Fatal("call finished before backend returned")
	default:
	}

	close(release)
	text, err := call.Wait(context.Background())
	if err != nil || text != "echo: hi" {
		t.Fatalf("Wait() = %q, %v", text, err)
	}
}

func TestGo_WaitHonorsContext(t *testing.T) {
	b := funcBackend(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	call := Go(ctx, b, "hi", config.ModelConfig{}, TaskGeneration)
	if _, err := call.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want DeadlineExceeded", err)
	}
	<-call.Done()
}

func TestInstrument(t *testing.T) {
	var calls atomic.Int32
	b := funcBackend(func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		return "ok", nil
	})

	if got := Instrument(b, nil); got == nil {
		t.Fatal("Instrument(nil collector) returned nil")
	}

	wrapped := Instrument(b, metrics.NewCollector(testLogger()))
	text, err := wrapped.Complete(context.Background(), "p", config.ModelConfig{ModelName: "m"}, TaskRubricCheck)
	if err != nil || text != "ok" || calls.Load() != 1 {
		t.Fatalf("Complete() = %q, %v (calls=%d)", text, err, calls.Load())
	}
}

func TestMockBackend_RubricCheck(t *testing.T) {
	mock := NewMockBackend(testLogger())
	mock.MinDelay, mock.MaxDelay = 0, 0

	for i := 0; i < 50; i++ {
		out, err := mock.Complete(context.Background(), "p", config.ModelConfig{ModelName: "m"}, TaskRubricCheck)
		if err != nil {
			t.Fatalf("Complete() error: %v", err)
		}

		var scores map[string]any
		if err := json.Unmarshal([]byte(out), &scores); err != nil {
			t.Fatalf("mock rubric output is not JSON: %v", err)
		}
		for _, key := range []string{"score_target_audience", "score_brand_style", "score_cta_clarity", "score_feasibility"} {
			v, ok := scores[key].(float64)
			if !ok || v < 3 || v > 5 {
				t.Fatalf("%s = %v, want 3..5", key, scores[key])
			}
		}
	}
}

func TestMockBackend_Generation(t *testing.T) {
	mock := NewMockBackend(testLogger())
	mock.MinDelay, mock.MaxDelay = 0, 0

	out, err := mock.Complete(context.Background(), "請使用充滿熱情的語氣，CTA: 立即免費試用", config.ModelConfig{}, TaskGeneration)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if !strings.Contains(out, "熱血") || !strings.Contains(out, "立即免費試用") {
		t.Errorf("unexpected copy: %s", out)
	}

	out, _ = mock.Complete(context.Background(), "plain", config.ModelConfig{}, TaskGeneration)
	if !strings.Contains(out, "專業") || !strings.Contains(out, "歡迎聯繫") {
		t.Errorf("unexpected copy: %s", out)
	}
}

func TestMockBackend_Latency(t *testing.T) {
	mock := NewMockBackend(testLogger())
	mock.MinDelay, mock.MaxDelay = 30*time.Millisecond, 40*time.Millisecond

	start := time.Now()
	if _, err := mock.Complete(context.Background(), "p", config.ModelConfig{}, TaskGeneration); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Complete() returned after %v, want at least 30ms", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mock.Complete(ctx, "p", config.ModelConfig{}, TaskGeneration); !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() on canceled ctx = %v", err)
	}
}
