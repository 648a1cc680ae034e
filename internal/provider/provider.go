// Package provider wraps remote indexing services behind one normalized
// contract. No caller ever sees a provider-native response shape.
package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tokengallery/internal/domain"
)

// BackoffStrategy selects how retry delays grow between attempts.
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Config is the per-provider knob set, fed from the service configuration.
type Config struct {
	BaseURL           string
	Priority          int
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	Backoff           BackoffStrategy
	RequestsPerSecond float64
	BurstSize         int
}

// Provider is the normalized client contract for one upstream indexing
// source.
type Provider interface {
	Name() string
	Priority() int

	HealthCheck(ctx context.Context) *domain.ProviderHealth

	GetDomainsByAddress(ctx context.Context, address string, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error)
	GetDomainsByName(ctx context.Context, name string, pg domain.PaginationOptions) ([]domain.UnifiedDomain, error)

	GetTokenBalancesCount(ctx context.Context, address string, filters domain.TokenFilters) (int, error)
	GetTokenBalances(ctx context.Context, address string, pg domain.PaginationOptions, filters domain.TokenFilters) ([]domain.UnifiedToken, error)
	GetContractTokens(ctx context.Context, contractAddress string, pg domain.PaginationOptions, filters domain.TokenFilters) ([]domain.UnifiedToken, error)

	ValidateAddress(address string) bool
	TransformFilters(filters domain.TokenFilters) url.Values
}

// CurationResolver is implemented by bridge providers that turn a curation
// identifier into the underlying token set.
type CurationResolver interface {
	Provider
	GetCurationTokens(ctx context.Context, curationID string, pg domain.PaginationOptions, filters domain.TokenFilters) ([]domain.UnifiedToken, error)
}

// retryer runs fn under the provider's rate limiter and retry policy.
// Transient failures (timeout, throttle, 5xx) are retried up to MaxRetries
// with linear or exponential delay; anything else raises immediately.
type retryer struct {
	name    string
	cfg     Config
	limiter *rate.Limiter
	logger  *logrus.Logger
}

func newRetryer(name string, cfg Config, logger *logrus.Logger) *retryer {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &retryer{
		name:    name,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

func (r *retryer) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt, lastErr)
			r.logger.WithFields(logrus.Fields{
				"provider":  r.name,
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay.String(),
			}).Debug("Retrying provider call")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return NewTimeoutError(r.name, operation, ctx.Err())
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return NewTimeoutError(r.name, operation, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (r *retryer) delayFor(attempt int, lastErr error) time.Duration {
	if pe, ok := AsError(lastErr); ok && pe.RetryAfter > 0 {
		return pe.RetryAfter
	}
	base := r.cfg.RetryDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if r.cfg.Backoff == BackoffExponential {
		return base << (attempt - 1)
	}
	return base * time.Duration(attempt)
}
