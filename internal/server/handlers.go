package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lamim/copyforge/internal/library"
	"github.com/lamim/copyforge/internal/pipeline"
	"github.com/lamim/copyforge/pkg/models"
)

// PromptRequest is the body of the generate and compose endpoints
type PromptRequest struct {
	Prompt models.UserConfig `json:"prompt"`
}

// GenerateResponse is returned by POST /generate_marketing_content
type GenerateResponse struct {
	Status           string               `json:"status"`
	InputConfig      models.UserConfig    `json:"input_config"`
	GeneratedContent string               `json:"generated_content"`
	RubricScore      *models.RubricResult `json:"rubric_score"`
}

// ComposeResponse is returned by POST /prompt/compose
type ComposeResponse struct {
	Prompt string `json:"prompt"`
}

// EvaluateRequest is the body of POST /prompt/evaluate. generated_content
// must be present but may be empty; empty copy is scored, not refused.
type EvaluateRequest struct {
	Prompt           string  `json:"prompt" binding:"required"`
	GeneratedContent *string `json:"generated_content" binding:"required"`
}

// ModulesResponse lists what the library can resolve
type ModulesResponse struct {
	Modules      map[string][]string `json:"modules"`
	SkippedFiles []string            `json:"skipped_files,omitempty"`
}

// ErrorResponse mirrors the {"detail": ...} error body
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Handler serves the prompt endpoints
type Handler struct {
	pipeline       *pipeline.Pipeline
	lib            *library.Library
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewHandler creates the endpoint handlers. A zero requestTimeout means no limit.
func NewHandler(p *pipeline.Pipeline, lib *library.Library, requestTimeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline:       p,
		lib:            lib,
		requestTimeout: requestTimeout,
		logger:         logger.With("component", "server"),
	}
}

// bindPromptRequest decodes the body, falling back to the example config
// when the body or its prompt field is absent
func bindPromptRequest(c *gin.Context) (models.UserConfig, error) {
	var req PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if req.Prompt == nil {
		return models.DefaultUserConfig(), nil
	}
	return req.Prompt, nil
}

func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.requestTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

// GenerateMarketingContent composes, generates and evaluates in one call
func (h *Handler) GenerateMarketingContent(c *gin.Context) {
	cfg, err := bindPromptRequest(c)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	logger := h.logger.With("request_id", requestID(c))
	logger.Info("Received generation request", "config", cfg)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	record, err := h.pipeline.Run(ctx, cfg)
	if err != nil {
		logger.Error("Generation request failed", "error", err)
		h.respondInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		Status:           "success",
		InputConfig:      cfg,
		GeneratedContent: record.GeneratedContent,
		RubricScore:      record.RubricScore,
	})
}

// Compose returns the assembled prompt without calling any model
func (h *Handler) Compose(c *gin.Context) {
	cfg, err := bindPromptRequest(c)
	if err != nil {
		respondBadRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, ComposeResponse{Prompt: h.pipeline.Compose(cfg)})
}

// Evaluate scores caller-supplied content against a prompt
func (h *Handler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.pipeline.Evaluate(ctx, req.Prompt, *req.GeneratedContent)
	if err != nil {
		h.logger.Error("Evaluation request failed", "request_id", requestID(c), "error", err)
		h.respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Modules lists the loaded module types and names
func (h *Handler) Modules(c *gin.Context) {
	resp := ModulesResponse{Modules: make(map[string][]string)}
	for _, t := range h.lib.Types() {
		resp.Modules[t] = h.lib.Names(t)
	}
	for _, e := range h.lib.LoadErrors() {
		resp.SkippedFiles = append(resp.SkippedFiles, e.Path)
	}
	c.JSON(http.StatusOK, resp)
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondBadRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Detail: fmt.Sprintf("請求格式錯誤: %v", err)})
}

func (h *Handler) respondInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Detail: "服務內部錯誤，請檢查日誌。錯誤類型: " + ErrorTypeName(err),
	})
}

// ErrorTypeName names the innermost error's type, without package or pointer
func ErrorTypeName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	if err == nil {
		return "unknown"
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return fmt.Sprintf("%T", err)
	}
	return t.Name()
}
