package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/prism/internal/logger"
	"github.com/spigell/prism/internal/utils"
)

const (
	defaultMaxAttempts  = 3
	defaultTimeout      = 60 * time.Second
	defaultBaseDelay    = time.Second
	defaultMaxDelay     = 20 * time.Second
	defaultMaxLogLength = 200
)

// Observer receives one notification per provider attempt.
type Observer interface {
	ObserveLLMCall(provider, model, purpose string, err error, duration time.Duration)
}

// RetryConfig bounds the calls made through Retrying.
type RetryConfig struct {
	MaxAttempts  int
	Timeout      time.Duration
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxLogLength int
}

// Retrying decorates a provider with per-attempt timeouts and exponential backoff
// on transient failures.
type Retrying struct {
	next     Provider
	cfg      RetryConfig
	logger   *zap.Logger
	observer Observer
	wait     func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next. Zero config values fall back to defaults; observer may be nil.
func NewRetrying(next Provider, cfg RetryConfig, log *zap.Logger, observer Observer) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}

	return &Retrying{
		next:     next,
		cfg:      cfg,
		logger:   logger.WithLLM(log, next.Name(), next.Model()),
		observer: observer,
		wait:     utils.WaitFor,
	}
}

func (r *Retrying) Name() string  { return r.next.Name() }
func (r *Retrying) Model() string { return r.next.Model() }

// Complete calls the wrapped provider until it succeeds, fails permanently or
// runs out of attempts. Exhaustion is reported as ErrUnavailable.
func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = r.next.Model()
	}

	if last := req.Messages[len(req.Messages)-1].Content; r.logger.Core().Enabled(zap.DebugLevel) {
		r.logger.Debug("llm request",
			zap.String("purpose", req.Purpose),
			zap.Int("prompt_length", utf8.RuneCountInString(last)),
			zap.String("prompt_preview", utils.TruncateForLog(last, r.cfg.MaxLogLength)),
		)
	}

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		started := time.Now()
		output, err := r.next.Complete(attemptCtx, req)
		cancel()

		if r.observer != nil {
			r.observer.ObserveLLMCall(r.next.Name(), model, req.Purpose, err, time.Since(started))
		}

		if err == nil {
			r.logger.Debug("llm response",
				zap.String("purpose", req.Purpose),
				zap.Int("attempt", attempt+1),
				zap.Int("response_length", utf8.RuneCountInString(output)),
				zap.String("response_preview", utils.TruncateForLog(output, r.cfg.MaxLogLength)),
			)
			return output, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		if !IsTransient(err) {
			return "", err
		}

		lastErr = err
		if attempt+1 == r.cfg.MaxAttempts {
			break
		}

		delay := utils.Backoff(r.cfg.BaseDelay, r.cfg.MaxDelay, attempt)
		r.logger.Warn("transient llm failure, retrying",
			zap.String("purpose", req.Purpose),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := r.wait(ctx, delay); err != nil {
			return "", err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return "", fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, req.Purpose, r.cfg.MaxAttempts, lastErr)
}
