// Package resilient wraps an embedding provider with input validation,
// bounded retries, a per-call timeout, optional rate limiting and a query
// embedding cache.
package resilient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/logger"
	"github.com/custodia-labs/paperdex/internal/metrics"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoff     = 500 * time.Millisecond
)

// Config controls the wrapper. Zero values select defaults; a zero
// CacheSize, MaxInputRunes or RequestsPerSecond disables that feature.
type Config struct {
	Timeout           time.Duration
	MaxAttempts       int
	Backoff           time.Duration
	CacheSize         int
	MaxInputRunes     int
	RequestsPerSecond float64
}

// FromSettings builds a Config from embedding settings.
func FromSettings(s *domain.EmbeddingSettings) Config {
	return Config{
		Timeout:           s.Timeout,
		MaxAttempts:       s.MaxAttempts,
		Backoff:           s.Backoff,
		CacheSize:         s.CacheSize,
		MaxInputRunes:     s.MaxInputRunes,
		RequestsPerSecond: s.RequestsPerSecond,
	}
}

// Service is a driven.EmbeddingService decorator.
type Service struct {
	inner   driven.EmbeddingService
	cfg     Config
	cache   *lru.Cache[string, []float32]
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// New wraps inner.
func New(inner driven.EmbeddingService, cfg Config) (*Service, error) {
	if inner == nil {
		return nil, errors.New("resilient: embedding service is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}

	s := &Service{inner: inner, cfg: cfg, metrics: metrics.Get()}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("resilient: init cache: %w", err)
		}
		s.cache = cache
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return s, nil
}

// SetMetrics replaces the metrics collectors.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Embed embeds a single text, usually a query. Results are cached.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.validate(text); err != nil {
		return nil, err
	}

	key := cacheKey(text)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			s.metrics.EmbeddingCache.WithLabelValues("hit").Inc()
			return clone(v), nil
		}
		s.metrics.EmbeddingCache.WithLabelValues("miss").Inc()
	}

	var vec []float32
	err := s.do(ctx, func(ctx context.Context) error {
		v, err := s.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.checkDimensions(vec); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(key, clone(vec))
	}
	return vec, nil
}

// EmbedBatch embeds texts in one provider call, preserving order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if err := s.validate(t); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var vecs [][]float32
	err := s.do(ctx, func(ctx context.Context) error {
		v, err := s.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		vecs = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts",
			domain.ErrEmbeddingFailed, len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := s.checkDimensions(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// Dimensions returns the wrapped provider's vector size.
func (s *Service) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the wrapped provider's model.
func (s *Service) ModelName() string {
	return s.inner.ModelName()
}

// Ping checks the wrapped provider once, bounded by the call timeout.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.inner.Ping(ctx)
}

// Close releases the wrapped provider.
func (s *Service) Close() error {
	if s.cache != nil {
		s.cache.Purge()
	}
	return s.inner.Close()
}

func (s *Service) validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	if s.cfg.MaxInputRunes > 0 {
		if n := utf8.RuneCountInString(text); n > s.cfg.MaxInputRunes {
			return fmt.Errorf("%w: text has %d characters, limit is %d", domain.ErrInvalidInput, n, s.cfg.MaxInputRunes)
		}
	}
	return nil
}

func (s *Service) checkDimensions(v []float32) error {
	if want := s.inner.Dimensions(); want > 0 && len(v) != want {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(v), want)
	}
	return nil
}

// do runs call with a fixed backoff between attempts. Only transient
// faults are retried; invalid input and caller cancellation return at once.
func (s *Service) do(ctx context.Context, call func(ctx context.Context) error) error {
	model := s.inner.ModelName()
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewConstant(s.cfg.Backoff)) // #nosec G115 -- MaxAttempts > 0

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.metrics.EmbeddingRetries.Inc()
			logger.Debug("Embedding attempt %d of %d", attempt, s.cfg.MaxAttempts)
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err := call(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		if s.retryable(ctx, err) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		s.metrics.EmbeddingCalls.WithLabelValues(model, metrics.OutcomeOK).Inc()
		return nil
	case ctx.Err() != nil:
		s.metrics.EmbeddingCalls.WithLabelValues(model, metrics.OutcomeError).Inc()
		return ctx.Err()
	case s.retryable(ctx, err):
		s.metrics.EmbeddingCalls.WithLabelValues(model, metrics.OutcomeFailed).Inc()
		logger.Warn("Embedding failed after %d attempts: %v", attempt, err)
		return fmt.Errorf("%w after %d attempts: %w", domain.ErrEmbeddingFailed, attempt, err)
	default:
		s.metrics.EmbeddingCalls.WithLabelValues(model, metrics.OutcomeError).Inc()
		return err
	}
}

// retryable reports whether err is a transient provider fault. A per-call
// timeout counts as transient; the caller's own deadline does not.
func (s *Service) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
