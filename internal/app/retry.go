package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"chequebook/internal/config"
	"chequebook/internal/core"
)

// retrier re-runs a whole ledger operation after a transient store failure.
// Every attempt is a fresh transaction; nothing below the coordinator retries.
type retrier struct {
	cfg     config.RetryConfig
	logger  *zap.Logger
	onRetry func(operation string)
}

func (r retrier) do(ctx context.Context, operation string, fn func() error) error {
	if r.cfg.MaxAttempts <= 1 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		b.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		b.MaxInterval = r.cfg.MaxInterval
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)

	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("retrying after transient failure",
			zap.String("operation", operation),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if r.onRetry != nil {
			r.onRetry(operation)
		}
	}
	return backoff.RetryNotify(op, policy, notify)
}

// retryable reports whether err is a transient store failure. A cancelled or
// expired context is never retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, core.ErrTransient)
}
