package api

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterPool manages per-model rate limiters plus optional
// provider-wide limiters shared by every model of one provider
type RateLimiterPool struct {
	limiters map[string]*rate.Limiter
	rates    map[string]int // Track original rates for consistency check

	providerLimiters map[string]*rate.Limiter
	mu               sync.Mutex
}

// NewRateLimiterPool creates a new rate limiter pool
func NewRateLimiterPool() *RateLimiterPool {
	return &RateLimiterPool{
		limiters:         make(map[string]*rate.Limiter),
		rates:            make(map[string]int),
		providerLimiters: make(map[string]*rate.Limiter),
	}
}

// SetProviderLimits installs provider-wide limiters. burstPercent is the
// share of the per-minute rate that may be spent at once.
func (p *RateLimiterPool) SetProviderLimits(limits map[string]int, burstPercent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for provider, rpm := range limits {
		if rpm < 1 {
			continue
		}
		burst := max(1, rpm*burstPercent/100)
		p.providerLimiters[provider] = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
		slog.Debug("Created provider rate limiter",
			"provider", provider,
			"rpm", rpm,
			"burst", burst)
	}
}

// GetOrCreate returns an existing rate limiter or creates a new one.
// If a limiter exists with a different rate, it logs a warning and keeps the existing one.
func (p *RateLimiterPool) GetOrCreate(modelID string, requestsPerMinute int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := p.limiters[modelID]; exists {
		if existingRate := p.rates[modelID]; existingRate != requestsPerMinute {
			slog.Warn("Rate limiter already exists with different rate, using existing rate",
				"model_id", modelID,
				"existing_rpm", existingRate,
				"requested_rpm", requestsPerMinute)
		}
		return limiter
	}

	rps := float64(requestsPerMinute) / 60.0
	burst := max(5, requestsPerMinute/5)
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	p.limiters[modelID] = limiter
	p.rates[modelID] = requestsPerMinute

	slog.Debug("Created rate limiter",
		"model_id", modelID,
		"rpm", requestsPerMinute,
		"rps", rps,
		"burst", burst)

	return limiter
}

func (p *RateLimiterPool) provider(name string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.providerLimiters[name]
}

// Wait blocks until both the provider limiter (if any) and the model limiter
// allow the next request
func (p *RateLimiterPool) Wait(ctx context.Context, modelID string, requestsPerMinute int, providerName string) error {
	if limiter := p.provider(providerName); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return p.GetOrCreate(modelID, requestsPerMinute).Wait(ctx)
}
