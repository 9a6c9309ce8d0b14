package rpc

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
)

func init() {
	fieldKeys := []string{"method", "error"}
	requestCount = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "featurechain",
		Subsystem: "query_service",
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, fieldKeys)
	requestLatency = kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace:  "featurechain",
		Subsystem:  "query_service",
		Name:       "request_latency_microseconds",
		Help:       "Total duration of requests in microseconds.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, fieldKeys)
}

// InstrumentingMiddleware implements QueryService interface
type InstrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           QueryService
}

// NewInstrumentingMiddleware wraps the given service with the default query service metrics.
func NewInstrumentingMiddleware(next QueryService) *InstrumentingMiddleware {
	return &InstrumentingMiddleware{
		requestCount:   requestCount,
		requestLatency: requestLatency,
		next:           next,
	}
}

func (m InstrumentingMiddleware) observe(method string, begin time.Time, err error) {
	lvs := []string{"method", method, "error", fmt.Sprint(err != nil)}
	m.requestCount.With(lvs...).Add(1)
	m.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (m InstrumentingMiddleware) Features() (resp []FeatureInfo, err error) {
	defer func(begin time.Time) {
		m.observe("Features", begin, err)
	}(time.Now())

	resp, err = m.next.Features()
	return
}

func (m InstrumentingMiddleware) Feature(id string) (resp *FeatureInfo, err error) {
	defer func(begin time.Time) {
		m.observe("Feature", begin, err)
	}(time.Now())

	resp, err = m.next.Feature(id)
	return
}

func (m InstrumentingMiddleware) Activations() (resp []ActivationInfo, err error) {
	defer func(begin time.Time) {
		m.observe("Activations", begin, err)
	}(time.Now())

	resp, err = m.next.Activations()
	return
}

func (m InstrumentingMiddleware) Pending() (resp []PendingInfo, err error) {
	defer func(begin time.Time) {
		m.observe("Pending", begin, err)
	}(time.Now())

	resp, err = m.next.Pending()
	return
}

func (m InstrumentingMiddleware) Status() (resp *StatusInfo, err error) {
	defer func(begin time.Time) {
		m.observe("Status", begin, err)
	}(time.Now())

	resp, err = m.next.Status()
	return
}
