package features

import (
	"fmt"
	"strings"
)

// BuiltinFeature identifies one of the protocol features shipped with the node.
type BuiltinFeature int

// List of builtin protocol features
const (
	// Enables the preactivate_feature & is_feature_activated intrinsics, and requires all other
	// features to be preactivated before a producer may activate them.
	PreactivateFeature BuiltinFeature = iota
	// Requires the permission named in linkauth to exist on the linking account.
	OnlyLinkToExistingPermission
	// Allows replacing deferred transactions that share a sender ID.
	ReplaceDeferred
	// Rejects deferred transactions that reuse an ID within the same block.
	NoDuplicateDeferredID
	// Fixes the restriction on linking to eosio native actions.
	FixLinkauthRestriction
	// Rejects attempts to set an empty producer schedule.
	DisallowEmptyProducerSchedule
	// Forces actions to only be authorized by the contract they're sent to.
	RestrictActionToSelf
	// Bills CPU & NET only to the first authorizer of a transaction.
	OnlyBillFirstAuthorizer
	// Forwards setcode to the contract being updated.
	ForwardSetcode
	// Enables the get_sender intrinsic.
	GetSender
	// Enables the RAM restrictions on notifications.
	RAMRestrictions

	numBuiltinFeatures
)

func (f BuiltinFeature) String() string {
	switch f {
	case PreactivateFeature:
		return "PREACTIVATE_FEATURE"
	case OnlyLinkToExistingPermission:
		return "ONLY_LINK_TO_EXISTING_PERMISSION"
	case ReplaceDeferred:
		return "REPLACE_DEFERRED"
	case NoDuplicateDeferredID:
		return "NO_DUPLICATE_DEFERRED_ID"
	case FixLinkauthRestriction:
		return "FIX_LINKAUTH_RESTRICTION"
	case DisallowEmptyProducerSchedule:
		return "DISALLOW_EMPTY_PRODUCER_SCHEDULE"
	case RestrictActionToSelf:
		return "RESTRICT_ACTION_TO_SELF"
	case OnlyBillFirstAuthorizer:
		return "ONLY_BILL_FIRST_AUTHORIZER"
	case ForwardSetcode:
		return "FORWARD_SETCODE"
	case GetSender:
		return "GET_SENDER"
	case RAMRestrictions:
		return "RAM_RESTRICTIONS"
	default:
		return fmt.Sprintf("BuiltinFeature(%d)", int(f))
	}
}

func (f BuiltinFeature) Valid() bool {
	return f >= 0 && f < numBuiltinFeatures
}

// AllBuiltinFeatures returns every builtin tag in declaration order.
func AllBuiltinFeatures() []BuiltinFeature {
	all := make([]BuiltinFeature, 0, numBuiltinFeatures)
	for f := BuiltinFeature(0); f < numBuiltinFeatures; f++ {
		all = append(all, f)
	}
	return all
}

// ParseBuiltinFeature looks up a builtin tag by its codename (case insensitive).
func ParseBuiltinFeature(codename string) (BuiltinFeature, bool) {
	for f := BuiltinFeature(0); f < numBuiltinFeatures; f++ {
		if strings.EqualFold(f.String(), codename) {
			return f, true
		}
	}
	return 0, false
}

type builtinDef struct {
	description  string
	dependencies []BuiltinFeature
	producerOnly bool
}

var builtinDefs = map[BuiltinFeature]builtinDef{
	PreactivateFeature: {
		description:  "Allows privileged contracts to pre-activate protocol features for activation in a later block.",
		producerOnly: true,
	},
	OnlyLinkToExistingPermission: {
		description: "Disallows linking an action to a non-existing permission.",
	},
	ReplaceDeferred: {
		description: "Allows a deferred transaction to be replaced by a new one with the same sender ID.",
	},
	NoDuplicateDeferredID: {
		description:  "Prevents deferred transactions from reusing an ID within the same block.",
		dependencies: []BuiltinFeature{ReplaceDeferred},
	},
	FixLinkauthRestriction: {
		description: "Removes the restriction on linking to native actions of non-system contracts.",
	},
	DisallowEmptyProducerSchedule: {
		description: "Disallows proposing an empty producer schedule.",
	},
	RestrictActionToSelf: {
		description: "Requires actions to be authorized by the receiving account only when they target themselves.",
	},
	OnlyBillFirstAuthorizer: {
		description: "Bills CPU & NET usage only to the first authorizer of a transaction.",
	},
	ForwardSetcode: {
		description: "Forwards setcode actions to the WASM code deployed on the system account.",
	},
	GetSender: {
		description: "Allows contracts to determine which account sent an inline action.",
	},
	RAMRestrictions: {
		description: "Restricts RAM billing of other accounts during notifications.",
	},
}

// BuiltinDependencies returns the builtin tags the given tag depends on.
func BuiltinDependencies(f BuiltinFeature) []BuiltinFeature {
	deps := builtinDefs[f].dependencies
	out := make([]BuiltinFeature, len(deps))
	copy(out, deps)
	return out
}

// DefaultBuiltinSubjective returns the default subjective restrictions of a builtin.
func DefaultBuiltinSubjective(f BuiltinFeature) Subjective {
	return Subjective{ProducerOnly: builtinDefs[f].producerOnly}
}
