package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/state"
)

// IntrinsicModule is the import module every intrinsic lives in.
const IntrinsicModule = "env"

var (
	// ErrUnresolvableIntrinsic is the cause of a LinkError for an intrinsic gated on an inactive feature.
	ErrUnresolvableIntrinsic = errors.New("[VM] unresolvable intrinsic")
	// ErrUnknownIntrinsic is the cause of a LinkError for an import the engine doesn't provide at all.
	ErrUnknownIntrinsic = errors.New("[VM] unknown intrinsic")
)

// LinkError is returned when contract code imports an intrinsic that can't be linked.
type LinkError struct {
	Import string
	cause  error
}

func (e *LinkError) Error() string {
	if e.cause == ErrUnknownIntrinsic {
		return fmt.Sprintf("unknown import %s", e.Import)
	}
	return fmt.Sprintf("%s unresolveable", e.Import)
}

func (e *LinkError) Cause() error {
	return e.cause
}

func (e *LinkError) Unwrap() error {
	return e.cause
}

// intrinsics maps the name of every intrinsic to the builtin feature that must be active before
// contracts can import it, ungated intrinsics map to nil.
var intrinsics = map[string]*features.BuiltinFeature{
	"require_auth":         nil,
	"has_auth":             nil,
	"read_action_data":     nil,
	"action_data_size":     nil,
	"send_inline":          nil,
	"db_store_i64":         nil,
	"db_get_i64":           nil,
	"db_remove_i64":        nil,
	"current_time":         nil,
	"preactivate_feature":  gate(features.PreactivateFeature),
	"is_feature_activated": gate(features.PreactivateFeature),
	"get_sender":           gate(features.GetSender),
}

func gate(f features.BuiltinFeature) *features.BuiltinFeature {
	return &f
}

// Intrinsics returns the fully qualified names of every intrinsic, sorted.
func Intrinsics() []string {
	names := make([]string, 0, len(intrinsics))
	for name := range intrinsics {
		names = append(names, IntrinsicModule+"."+name)
	}
	sort.Strings(names)
	return names
}

// Linker resolves contract imports against the features active on a chain branch.
type Linker struct {
	state state.ReadOnlyState
}

func NewLinker(s state.ReadOnlyState) *Linker {
	return &Linker{state: s}
}

// IsFeatureActivated is the query backing the env.is_feature_activated intrinsic.
func (l *Linker) IsFeatureActivated(d features.Digest) bool {
	return l.state.IsActive(d)
}

// Resolve checks that a single import ("env.<name>" or just "<name>") can be linked.
func (l *Linker) Resolve(imp string) error {
	name := imp
	if idx := strings.IndexByte(imp, '.'); idx >= 0 {
		if imp[:idx] != IntrinsicModule {
			return &LinkError{Import: imp, cause: ErrUnknownIntrinsic}
		}
		name = imp[idx+1:]
	} else {
		imp = IntrinsicModule + "." + imp
	}
	required, ok := intrinsics[name]
	if !ok {
		return &LinkError{Import: imp, cause: ErrUnknownIntrinsic}
	}
	if required != nil && !l.state.IsBuiltinActive(*required) {
		return &LinkError{Import: imp, cause: ErrUnresolvableIntrinsic}
	}
	return nil
}

// Link resolves every import, the first one that fails is returned.
func (l *Linker) Link(imports []string) error {
	for _, imp := range imports {
		if err := l.Resolve(imp); err != nil {
			return err
		}
	}
	return nil
}
