package api

import (
	"context"
	"errors"
	"time"

	"github.com/lamim/copyforge/internal/config"
	"github.com/lamim/copyforge/internal/metrics"
)

// Task tags what a backend call is for
type Task string

const (
	TaskGeneration  Task = "generation"
	TaskRubricCheck Task = "rubric_check"
)

// Backend turns a prompt into text using the given model.
// Implementations must be safe for concurrent use.
type Backend interface {
	Complete(ctx context.Context, prompt string, model config.ModelConfig, task Task) (string, error)
}

// ErrEmptyResponse is returned when a backend produced no text at all
var ErrEmptyResponse = errors.New("backend returned an empty response")

// ChatBackend sends prompts to an OpenAI-compatible chat endpoint
type ChatBackend struct {
	client  *Client
	secrets *config.Secrets
}

// NewChatBackend wraps client, picking API keys from secrets per base URL
func NewChatBackend(client *Client, secrets *config.Secrets) *ChatBackend {
	return &ChatBackend{client: client, secrets: secrets}
}

// Complete sends prompt as a single user message. Empty generation output
// is an error; an empty rubric answer is returned as is and graded as
// unusable scoring output.
func (b *ChatBackend) Complete(ctx context.Context, prompt string, model config.ModelConfig, task Task) (string, error) {
	resp, err := b.client.ChatCompletion(ctx, model, b.secrets.GetAPIKey(model.BaseURL), []Message{
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		return "", err
	}

	content := resp.Content()
	if content == "" && task == TaskGeneration {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// instrumented records every call of the wrapped backend
type instrumented struct {
	next    Backend
	metrics *metrics.Collector
}

// Instrument wraps b so every call lands in the backend duration histogram
func Instrument(b Backend, collector *metrics.Collector) Backend {
	if collector == nil {
		return b
	}
	return &instrumented{next: b, metrics: collector}
}

func (i *instrumented) Complete(ctx context.Context, prompt string, model config.ModelConfig, task Task) (string, error) {
	start := time.Now()
	text, err := i.next.Complete(ctx, prompt, model, task)
	i.metrics.RecordBackendRequest(string(task), model.ModelName, time.Since(start), err == nil)
	return text, err
}

// Call is a backend request running in its own goroutine
type Call struct {
	done chan struct{}
	text string
	err  error
}

// Go starts a backend request and returns immediately
func Go(ctx context.Context, b Backend, prompt string, model config.ModelConfig, task Task) *Call {
	c := &Call{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.text, c.err = b.Complete(ctx, prompt, model, task)
	}()
	return c
}

// Wait blocks until the request finishes or ctx is done
func (c *Call) Wait(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.text, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done is closed when the request has finished
func (c *Call) Done() <-chan struct{} {
	return c.done
}
