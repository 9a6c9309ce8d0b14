package featurechain

import (
	"github.com/loomnetwork/go-loom"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/auth"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/state"
	"github.com/loomnetwork/featurechain/vm"
)

// ErrNotActivated is returned by reqactivated when the feature isn't active.
var ErrNotActivated = errors.New("protocol feature is not activated")

// NewSystemRouter returns a router with the actions of the system contract registered.
func NewSystemRouter() *ActionRouter {
	r := NewActionRouter()
	r.Handle(PreactivateAction, ActionHandlerFunc(preactivate))
	r.Handle(ReqActivatedAction, ActionHandlerFunc(reqActivated))
	r.Handle(SetCodeAction, ActionHandlerFunc(setCode))
	r.Handle(UpdateAuthAction, ActionHandlerFunc(updateAuth))
	r.Handle(LinkAuthAction, ActionHandlerFunc(linkAuth))
	return r
}

// NewActionHandler returns the system router wrapped in the default middleware chain.
func NewActionHandler() ActionHandler {
	return MiddlewareActionHandler([]ActionMiddleware{
		RecoveryMiddleware,
		InstrumentingMiddleware,
		LogMiddleware,
		OriginMiddleware,
	}, NewSystemRouter())
}

func requireSystemAuthority(s state.State) error {
	return auth.RequireOrigin(auth.Origin(s.Context()), loom.RootAddress(s.Block().ChainID))
}

func preactivate(s state.State, action *Action, index uint32) (ActionResult, error) {
	var res ActionResult
	if err := requireSystemAuthority(s); err != nil {
		return res, err
	}
	if err := vm.NewLinker(s).Resolve("env.preactivate_feature"); err != nil {
		return res, err
	}
	var params PreactivateParams
	if err := decodeParams(action, &params); err != nil {
		return res, err
	}
	if err := s.Preactivate(params.FeatureDigest, index); err != nil {
		return res, err
	}
	log.Log(s.Context()).Info("Preactivated protocol feature", "digest", params.FeatureDigest.String(), "height", s.Block().Height)
	return res, nil
}

func reqActivated(s state.State, action *Action, index uint32) (ActionResult, error) {
	var res ActionResult
	if err := requireSystemAuthority(s); err != nil {
		return res, err
	}
	linker := vm.NewLinker(s)
	if err := linker.Resolve("env.is_feature_activated"); err != nil {
		return res, err
	}
	var params ReqActivatedParams
	if err := decodeParams(action, &params); err != nil {
		return res, err
	}
	if !linker.IsFeatureActivated(params.FeatureDigest) {
		return res, ErrNotActivated
	}
	return res, nil
}

func setCode(s state.State, action *Action, index uint32) (ActionResult, error) {
	var res ActionResult
	var params SetCodeParams
	if err := decodeParams(action, &params); err != nil {
		return res, err
	}
	account, err := loom.ParseAddress(params.Account)
	if err != nil {
		return res, err
	}
	if err := auth.RequireOrigin(auth.Origin(s.Context()), account); err != nil {
		return res, err
	}
	code := &vm.Code{Imports: params.Imports}
	if err := vm.SetCode(s, account, code); err != nil {
		return res, err
	}
	hash, err := code.Hash()
	if err != nil {
		return res, err
	}
	res.Data = hash
	return res, nil
}

func updateAuth(s state.State, action *Action, index uint32) (ActionResult, error) {
	var res ActionResult
	var params UpdateAuthParams
	if err := decodeParams(action, &params); err != nil {
		return res, err
	}
	account, err := loom.ParseAddress(params.Account)
	if err != nil {
		return res, err
	}
	if err := auth.RequireOrigin(auth.Origin(s.Context()), account); err != nil {
		return res, err
	}
	return res, auth.UpdateAuth(s.WithPrefix(authPrefix), account, params.Permission, params.Parent)
}

func linkAuth(s state.State, action *Action, index uint32) (ActionResult, error) {
	var res ActionResult
	var params LinkAuthParams
	if err := decodeParams(action, &params); err != nil {
		return res, err
	}
	account, err := loom.ParseAddress(params.Account)
	if err != nil {
		return res, err
	}
	code, err := loom.ParseAddress(params.Code)
	if err != nil {
		return res, err
	}
	if err := auth.RequireOrigin(auth.Origin(s.Context()), account); err != nil {
		return res, err
	}
	return res, auth.LinkAuth(s.WithPrefix(authPrefix), account, code, params.Type, params.Requirement)
}

var authPrefix = []byte("auth")
