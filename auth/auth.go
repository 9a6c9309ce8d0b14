package auth

import (
	"context"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/loomnetwork/go-loom"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

var (
	permissionErrorCount metrics.Counter
)

func init() {
	permissionErrorCount = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "featurechain",
		Subsystem: "auth",
		Name:      "permission_error",
		Help:      "Number of rejected permission updates & links.",
	}, []string{"method"})
}

type contextKey string

func (c contextKey) String() string {
	return "auth " + string(c)
}

var (
	ContextKeyOrigin = contextKey("origin")
)

// Origin returns the account that authorized the action being executed.
func Origin(ctx context.Context) loom.Address {
	origin, _ := ctx.Value(ContextKeyOrigin).(loom.Address)
	return origin
}

func WithOrigin(ctx context.Context, origin loom.Address) context.Context {
	return context.WithValue(ctx, ContextKeyOrigin, origin)
}
