package featurechain

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/loomnetwork/featurechain/auth"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/state"
)

var (
	actionCount   metrics.Counter
	actionLatency metrics.Histogram
)

func init() {
	fieldKeys := []string{"action", "error"}
	actionCount = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "featurechain",
		Subsystem: "actions",
		Name:      "action_count",
		Help:      "Number of actions executed.",
	}, fieldKeys)
	actionLatency = kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: "featurechain",
		Subsystem: "actions",
		Name:      "action_latency_microseconds",
		Help:      "Total duration of action execution in microseconds.",
	}, fieldKeys)
}

type ActionMiddleware interface {
	ProcessAction(state state.State, action *Action, index uint32, next ActionHandlerFunc) (ActionResult, error)
}

type ActionMiddlewareFunc func(state state.State, action *Action, index uint32, next ActionHandlerFunc) (ActionResult, error)

func (f ActionMiddlewareFunc) ProcessAction(
	state state.State, action *Action, index uint32, next ActionHandlerFunc,
) (ActionResult, error) {
	return f(state, action, index, next)
}

// MiddlewareActionHandler wraps the handler in the given middlewares, the first middleware is
// the outermost one.
func MiddlewareActionHandler(middlewares []ActionMiddleware, handler ActionHandler) ActionHandler {
	next := ActionHandlerFunc(handler.ProcessAction)

	for i := len(middlewares) - 1; i >= 0; i-- {
		m := middlewares[i]
		// Need local var otherwise infinite loop occurs
		nextLocal := next
		next = func(state state.State, action *Action, index uint32) (ActionResult, error) {
			return m.ProcessAction(state, action, index, nextLocal)
		}
	}

	return next
}

func rvalError(r interface{}) error {
	var err error
	switch x := r.(type) {
	case string:
		err = errors.New(x)
	case error:
		err = x
	default:
		err = errors.New("unknown panic")
	}
	return err
}

var RecoveryMiddleware = ActionMiddlewareFunc(func(
	state state.State,
	action *Action,
	index uint32,
	next ActionHandlerFunc,
) (res ActionResult, err error) {
	defer func() {
		if rval := recover(); rval != nil {
			logger := log.Root
			logger.Error("Panic in action handler", "rvalue", rval, "stack", string(debug.Stack()))
			err = rvalError(rval)
		}
	}()

	return next(state, action, index)
})

// OriginMiddleware makes the authorizer of the action available via auth.Origin.
var OriginMiddleware = ActionMiddlewareFunc(func(
	s state.State,
	action *Action,
	index uint32,
	next ActionHandlerFunc,
) (ActionResult, error) {
	ctx := auth.WithOrigin(s.Context(), action.Authorizer)
	return next(s.WithContext(ctx), action, index)
})

var InstrumentingMiddleware = ActionMiddlewareFunc(func(
	state state.State,
	action *Action,
	index uint32,
	next ActionHandlerFunc,
) (res ActionResult, err error) {
	defer func(begin time.Time) {
		lvs := []string{"action", action.Name, "error", fmt.Sprint(err != nil)}
		actionCount.With(lvs...).Add(1)
		actionLatency.With(lvs...).Observe(float64(time.Since(begin).Nanoseconds()) / 1000)
	}(time.Now())

	return next(state, action, index)
})

var LogMiddleware = ActionMiddlewareFunc(func(
	state state.State,
	action *Action,
	index uint32,
	next ActionHandlerFunc,
) (ActionResult, error) {
	res, err := next(state, action, index)
	if err != nil {
		log.Log(state.Context()).Debug("Action failed", "height", state.Block().Height, "index", index, "action", action.Name, "err", err)
	}
	return res, err
})
