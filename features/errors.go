package features

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned while building a catalog that isn't closed over its dependencies,
	// or that registers the same builtin twice. Nodes must refuse to start on this error.
	ErrConfiguration = errors.New("[Features] invalid protocol feature configuration")
	// ErrUnrecognizedFeature indicates a digest that isn't in the catalog (this includes the zero digest).
	ErrUnrecognizedFeature = errors.New("[Features] unrecognized protocol feature")
	// ErrAlreadyPreactivated indicates a second preactivation of a digest that's still pending.
	ErrAlreadyPreactivated = errors.New("[Features] protocol feature already pre-activated")
	// ErrAlreadyActivated indicates that a digest has already been committed to the activation history.
	ErrAlreadyActivated = errors.New("[Features] protocol feature already activated")
	// ErrDuplicateActivation indicates that the same digest appears twice in one block's activation list.
	ErrDuplicateActivation = errors.New("[Features] duplicate protocol feature activation")
	// ErrMissingDependency indicates that a dependency is neither active nor earlier in the same list.
	ErrMissingDependency = errors.New("[Features] missing protocol feature dependency")
	// ErrTooEarly indicates that the block time precedes the earliest allowed activation time.
	ErrTooEarly = errors.New("[Features] protocol feature activation too early")
	// ErrUnauthorizedBypass indicates an activation that wasn't legitimately preactivated.
	ErrUnauthorizedBypass = errors.New("[Features] protocol feature was not pre-activated")
	// ErrProducerOnly indicates an attempt to preactivate a feature that only block producers may propose.
	ErrProducerOnly = errors.New("[Features] protocol feature can only be proposed by a block producer")
)

// FeatureError ties one of the error kinds above to the digest that caused it.
// errors.Cause() and errors.Is() both resolve it to the underlying kind.
type FeatureError struct {
	Kind   error
	Digest Digest
	msg    string
}

func (e *FeatureError) Error() string {
	return e.msg
}

func (e *FeatureError) Cause() error {
	return e.Kind
}

func (e *FeatureError) Unwrap() error {
	return e.Kind
}

func newFeatureError(kind error, d Digest, format string, args ...interface{}) *FeatureError {
	return &FeatureError{
		Kind:   kind,
		Digest: d,
		msg:    fmt.Sprintf(format, args...),
	}
}

func UnrecognizedFeatureError(d Digest) error {
	return newFeatureError(ErrUnrecognizedFeature, d, "protocol feature with digest '%s' is unrecognized", d)
}

func AlreadyPreactivatedError(d Digest) error {
	return newFeatureError(ErrAlreadyPreactivated, d, "protocol feature with digest '%s' is already pre-activated", d)
}

func AlreadyActivatedError(d Digest) error {
	return newFeatureError(ErrAlreadyActivated, d, "protocol feature with digest '%s' has already been activated", d)
}

func DuplicateActivationError(d Digest) error {
	return newFeatureError(ErrDuplicateActivation, d, "attempted duplicate activation within a single block: %s", d)
}

func MissingDependencyError(d, dep Digest) error {
	return newFeatureError(ErrMissingDependency, d,
		"not all dependencies of protocol feature with digest '%s' have been activated: missing '%s'", d, dep)
}

// UnmetDependencyError is returned when a feature is preactivated before its dependencies.
func UnmetDependencyError(d, dep Digest) error {
	return newFeatureError(ErrMissingDependency, d,
		"not all dependencies of protocol feature with digest '%s' have been activated or pre-activated: missing '%s'",
		d, dep)
}

func TooEarlyError(d Digest, earliest, blockTime int64) error {
	return newFeatureError(ErrTooEarly, d,
		"protocol feature with digest '%s' cannot be activated before %d (block time %d)", d, earliest, blockTime)
}

func UnauthorizedBypassError(d Digest) error {
	return newFeatureError(ErrUnauthorizedBypass, d,
		"attempted to activate protocol feature with digest '%s' without prior required pre-activation", d)
}

func ProducerOnlyError(d Digest) error {
	return newFeatureError(ErrProducerOnly, d,
		"protocol feature with digest '%s' can only be activated by a block producer", d)
}

// KindOf returns the error kind of err, or nil if err isn't a protocol feature error.
func KindOf(err error) error {
	switch cause := errors.Cause(err); cause {
	case ErrConfiguration, ErrUnrecognizedFeature, ErrAlreadyPreactivated, ErrAlreadyActivated,
		ErrDuplicateActivation, ErrMissingDependency, ErrTooEarly, ErrUnauthorizedBypass, ErrProducerOnly:
		return cause
	}
	return nil
}
