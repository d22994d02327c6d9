package util

import (
	"context"
	"fmt"
	"time"

	"github.com/paysync/paysync/pkg/logger"
)

type critctx struct {
	boundary time.Duration
	maxDur   time.Duration
}

type CritOpt func(c *critctx)

// WithBoundaries refuses to enter the section when the parent's deadline is
// closer than b, and warns when the section runs longer than b.
func WithBoundaries(b time.Duration) CritOpt {
	return func(c *critctx) {
		c.boundary = b
	}
}

// WithMaxDuration bounds the section itself.  The parent's cancellation does
// not apply within a crit, so this is its only deadline.
func WithMaxDuration(dur time.Duration) CritOpt {
	return func(c *critctx) {
		c.maxDur = dur
	}
}

func Crit(ctx context.Context, name string, f func(ctx context.Context) error, opts ...CritOpt) error {
	_, err := CritT(ctx, name, func(ctx context.Context) (any, error) { return nil, f(ctx) }, opts...)
	return err
}

// CritT runs f with a context which is not cancelled with ctx.  Lock releases
// and compensating writes use it so they still run once a tick is abandoned.
func CritT[T any](ctx context.Context, name string, f func(ctx context.Context) (T, error), opts ...CritOpt) (resp T, err error) {
	cr := critctx{}
	for _, apply := range opts {
		apply(&cr)
	}

	l := logger.StdlibLogger(ctx)
	pre := time.Now()

	if cr.boundary > 0 {
		if dl, ok := ctx.Deadline(); ok && ctx.Err() == nil && time.Until(dl) < cr.boundary {
			return resp, fmt.Errorf("context deadline shorter than critical bounds: %s", name)
		}

		defer func() {
			if actual := time.Since(pre); actual > cr.boundary {
				l.Warn("critical section took longer than boundary", "name", name, "duration_ms", actual.Milliseconds())
			}
		}()
	}

	if ctx.Err() != nil {
		l.Debug("context done before entering crit", "name", name, "error", ctx.Err())
	}

	cctx := context.WithoutCancel(ctx)
	if cr.maxDur > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(cctx, cr.maxDur)
		defer cancel()
	}
	return f(cctx)
}
