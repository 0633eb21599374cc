package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend metrics
	backendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copyforge_backend_request_duration_seconds",
			Help:    "Text-generation backend request duration in seconds by task and model",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"task", "model", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copyforge_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"model"},
	)

	// Prompt and rubric metrics
	promptsComposed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copyforge_prompts_composed_total",
			Help: "Total number of prompts composed",
		},
	)

	rubricOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copyforge_rubric_evaluations_total",
			Help: "Rubric evaluations by outcome",
		},
		[]string{"outcome"}, // "pass", "fail", "error"
	)

	rubricTotalScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copyforge_rubric_total_score",
			Help:    "Distribution of rubric total scores (0-20)",
			Buckets: prometheus.LinearBuckets(0, 2, 11),
		},
	)

	libraryFragments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "copyforge_library_fragments",
			Help: "Number of loaded module fragments by module type",
		},
		[]string{"module_type"},
	)

	// HTTP metrics
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copyforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"method", "route", "status"},
	)

	// Batch metrics
	batchJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copyforge_batch_jobs_total",
			Help: "Total number of batch jobs processed",
		},
		[]string{"status"}, // "success", "error"
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "copyforge_batch_active_workers",
			Help: "Number of active batch workers",
		},
	)
)

// Outcome labels for rubric evaluations
const (
	OutcomePass  = "pass"
	OutcomeFail  = "fail"
	OutcomeError = "error"
)

// Collector provides convenience methods for recording metrics.
// A nil *Collector records nothing.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordBackendRequest records one backend call
func (c *Collector) RecordBackendRequest(task, model string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	backendRequestDuration.WithLabelValues(task, model, statusLabel(success)).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(model string, duration time.Duration) {
	if c == nil {
		return
	}
	rateLimiterWaitDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncrementPromptsComposed counts one composed prompt
func (c *Collector) IncrementPromptsComposed() {
	if c == nil {
		return
	}
	promptsComposed.Inc()
}

// RecordRubric records a rubric outcome, and the total score when one was produced
func (c *Collector) RecordRubric(outcome string, totalScore int) {
	if c == nil {
		return
	}
	rubricOutcomes.WithLabelValues(outcome).Inc()
	if outcome != OutcomeError {
		rubricTotalScore.Observe(float64(totalScore))
	}
}

// SetLibraryFragments publishes the fragment count per module type
func (c *Collector) SetLibraryFragments(counts map[string]int) {
	if c == nil {
		return
	}
	for moduleType, n := range counts {
		libraryFragments.WithLabelValues(moduleType).Set(float64(n))
	}
	c.logger.Debug("Library metrics updated", "module_types", len(counts))
}

// RecordHTTPRequest records a served HTTP request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// IncrementBatchJob counts a finished batch job
func (c *Collector) IncrementBatchJob(success bool) {
	if c == nil {
		return
	}
	batchJobs.WithLabelValues(statusLabel(success)).Inc()
}

// SetActiveWorkers sets the number of active batch workers
func (c *Collector) SetActiveWorkers(count int) {
	if c == nil {
		return
	}
	activeWorkers.Set(float64(count))
}
