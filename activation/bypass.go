package activation

import (
	"github.com/pkg/errors"
)

// ErrBypassDisabled is returned when a bootstrap bypass is requested on a node that doesn't allow it.
var ErrBypassDisabled = errors.New("[Activation] activation without preactivation is disabled on this node")

// Bypass is the capability required to activate features that haven't been preactivated.
// It exists for bootstrapping test & development chains, block validation never uses one, so a
// block received from another node can't activate anything through this path.
type Bypass struct {
	reason string
}

// NewBypass returns a bypass capability if the node configuration allows it.
func NewBypass(allowed bool, reason string) (*Bypass, error) {
	if !allowed {
		return nil, ErrBypassDisabled
	}
	if reason == "" {
		reason = "unspecified"
	}
	return &Bypass{reason: reason}, nil
}

func (b *Bypass) Reason() string {
	if b == nil {
		return ""
	}
	return b.reason
}
