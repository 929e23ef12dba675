package fetch

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/mo"
)

type fetchContext struct {
	duration prometheus.Observer
}

type contextKey struct{}

// WithContext attaches the fetch duration observer which all fetches made with the returned context report to.
func WithContext(ctx context.Context, duration prometheus.Observer) context.Context {
	return context.WithValue(ctx, contextKey{}, &fetchContext{
		duration: duration,
	})
}

func getDurationObserver(ctx context.Context) mo.Option[prometheus.Observer] {
	if context, ok := ctx.Value(contextKey{}).(*fetchContext); ok && context.duration != nil {
		return mo.Some(context.duration)
	}
	return mo.None[prometheus.Observer]()
}
