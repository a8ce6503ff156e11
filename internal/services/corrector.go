package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	"github.com/Lllllllleong/scanproof/internal/config"
	"github.com/Lllllllleong/scanproof/internal/gcp"
	"github.com/Lllllllleong/scanproof/internal/models"
)

// CorrectorConfig controls retries of transient generator failures.
type CorrectorConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// CorrectorConfigFrom copies the relevant settings out of cfg.
func CorrectorConfigFrom(cfg *config.Config) CorrectorConfig {
	return CorrectorConfig{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay}
}

// Corrector sends text to a generator under a directive and returns a
// validated result. Successful results are cached by content hash when a
// cache is configured.
type Corrector struct {
	generator Generator
	cache     *ResultCache
	inflight  singleflight.Group
	config    CorrectorConfig
	logger    *slog.Logger
}

// NewCorrector creates a Corrector. A nil cache disables caching.
func NewCorrector(generator Generator, cache *ResultCache, config CorrectorConfig, logger *slog.Logger) *Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Corrector{
		generator: generator,
		cache:     cache,
		config:    config,
		logger:    logger,
	}
}

// Correct runs one correction request. Identical concurrent requests share a
// single generator call.
func (c *Corrector) Correct(ctx context.Context, req models.CorrectionRequest) (*models.CorrectionResult, error) {
	if !req.Directive.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownDirective, req.Directive)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, models.ErrEmptyDraft
	}

	key := CacheKey(req.Text, req.Directive)
	logCtx := c.logger.With("directive", req.Directive, "cacheKey", key[:12])

	if c.cache != nil {
		if res, ok := c.cache.Get(key); ok {
			logCtx.Info("Correction served from cache.")
			res.Cached = true
			return res, nil
		}
	}

	v, err, shared := c.inflight.Do(key, func() (any, error) {
		res, err := c.generate(ctx, logCtx, req)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Put(key, res)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	res := cloneResult(*v.(*models.CorrectionResult))
	if shared {
		logCtx.Debug("Correction shared with a concurrent request.")
	}
	return &res, nil
}

// generate calls the generator with retries. Only failures the error
// classification marks retryable are repeated.
func (c *Corrector) generate(ctx context.Context, logCtx *slog.Logger, req models.CorrectionRequest) (*models.CorrectionResult, error) {
	prompt, err := gcp.PromptFor(req.Directive, req.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnknownDirective, err)
	}

	var result *models.CorrectionResult
	attempts := 0
	err = retry.Do(
		func() error {
			attempts++
			raw, err := c.generator.Generate(ctx, prompt)
			if err != nil {
				return err
			}
			res, err := buildResult(req.Directive, raw)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.config.MaxAttempts)),
		retry.Delay(c.config.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			logCtx.Warn("Correction attempt failed, will retry.", "attempt", n+1, "maxAttempts", c.config.MaxAttempts, "error", err)
		}),
	)
	if err != nil {
		logCtx.Error("Correction failed", "attempts", attempts, "error", err)
		var ce *models.CorrectionError
		if !errors.As(err, &ce) && ctx.Err() == nil {
			err = models.NewCorrectionError(models.KindNetwork, "generator call failed", err)
		}
		return nil, err
	}
	logCtx.Info("Correction complete.", "attempts", attempts)
	return result, nil
}

func buildResult(directive models.Directive, raw string) (*models.CorrectionResult, error) {
	if directive.Structured() {
		findings, err := ParseFindings(raw)
		if err != nil {
			return nil, err
		}
		return &models.CorrectionResult{Directive: directive, Findings: findings}, nil
	}
	if strings.TrimSpace(raw) == "" {
		return nil, models.NewCorrectionError(models.KindEmptyResponse, "model returned no text", nil)
	}
	return &models.CorrectionResult{Directive: directive, Text: raw}, nil
}

// isRetryable treats unclassified errors as network faults.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce *models.CorrectionError
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return true
}
