package activation

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/loomnetwork/featurechain/features"
)

var (
	activatedFeatureCount metrics.Counter
	rejectedProposalCount metrics.Counter
	preactivationCount    metrics.Counter
	validationDuration    metrics.Histogram
)

func init() {
	const namespace = "featurechain"
	const subsystem = "activation"

	activatedFeatureCount = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "activated_feature_count",
		Help:      "Number of protocol features committed to the activation history.",
	}, []string{"builtin"})
	rejectedProposalCount = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rejected_proposal_count",
		Help:      "Number of block activation lists that failed validation.",
	}, []string{"reason"})
	preactivationCount = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "preactivation_count",
		Help:      "Number of protocol features preactivated.",
	}, nil)
	validationDuration = kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "validation_duration",
		Help:      "How long it took to validate a block activation list (in seconds).",
	}, []string{"error"})
}

// ObserveActivations counts features that became active in a block accepted for the first time.
// Blocks replayed from storage must not be observed again.
func ObserveActivations(catalog *features.Catalog, digests []features.Digest) {
	for _, d := range digests {
		desc, _ := catalog.Lookup(d)
		_, isBuiltin := desc.Builtin()
		activatedFeatureCount.With("builtin", fmt.Sprint(isBuiltin)).Add(1)
	}
}

// ObservePreactivations counts preactivations recorded by a block accepted for the first time.
func ObservePreactivations(n int) {
	if n > 0 {
		preactivationCount.Add(float64(n))
	}
}

func observeValidation(begin time.Time, err error) {
	validationDuration.With("error", fmt.Sprint(err != nil)).Observe(time.Since(begin).Seconds())
	if err != nil {
		reason := "unknown"
		if kind := features.KindOf(err); kind != nil {
			reason = reasonLabel(kind)
		}
		rejectedProposalCount.With("reason", reason).Add(1)
	}
}

func reasonLabel(kind error) string {
	switch kind {
	case features.ErrUnrecognizedFeature:
		return "unrecognized"
	case features.ErrAlreadyActivated:
		return "already_activated"
	case features.ErrDuplicateActivation:
		return "duplicate"
	case features.ErrMissingDependency:
		return "missing_dependency"
	case features.ErrTooEarly:
		return "too_early"
	case features.ErrUnauthorizedBypass:
		return "unauthorized"
	default:
		return "other"
	}
}
