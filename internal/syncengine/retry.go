package syncengine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"loom/internal/files"
	"loom/internal/provider"
)

// call runs one sandbox operation under the remote timeout, retrying
// transient failures with exponential backoff.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.cfg.RetryInterval
	eb.MaxInterval = 10 * e.cfg.RetryInterval
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	b = backoff.WithMaxRetries(b, uint64(e.cfg.RetryAttempts))
	b = backoff.WithContext(b, ctx)

	return backoff.Retry(func() error {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
		defer cancel()
		err := fn(cctx)
		if err != nil && permanent(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// permanent reports whether retrying err cannot help.
func permanent(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, provider.ErrNotFound) ||
		errors.Is(err, provider.ErrExists) ||
		errors.Is(err, files.ErrIsDirectory) ||
		errors.Is(err, files.ErrOutsideRoot) ||
		errors.Is(err, context.Canceled)
}

const (
	DefaultRemoteTimeout = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryInterval = 200 * time.Millisecond
)
