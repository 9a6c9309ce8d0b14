package featurechain

import (
	"github.com/loomnetwork/go-loom"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/state"
)

var ErrUnknownAction = errors.New("[Router] unknown action")

type ActionHandler interface {
	ProcessAction(state state.State, action *Action, index uint32) (ActionResult, error)
}

type ActionHandlerFunc func(state state.State, action *Action, index uint32) (ActionResult, error)

func (f ActionHandlerFunc) ProcessAction(state state.State, action *Action, index uint32) (ActionResult, error) {
	return f(state, action, index)
}

// ActionRouter dispatches the actions of the system contract to their handlers.
type ActionRouter struct {
	routes map[string]ActionHandler
}

func NewActionRouter() *ActionRouter {
	return &ActionRouter{
		routes: make(map[string]ActionHandler),
	}
}

func (r *ActionRouter) Handle(name string, handler ActionHandler) {
	if _, ok := r.routes[name]; ok {
		panic("handler for action already registered")
	}

	r.routes[name] = handler
}

func (r *ActionRouter) ProcessAction(s state.State, action *Action, index uint32) (ActionResult, error) {
	var res ActionResult
	if action.Contract.Compare(loom.RootAddress(s.Block().ChainID)) != 0 {
		return res, errors.Wrapf(ErrUnknownAction, "contract %s has no action %s", action.Contract.String(), action.Name)
	}
	handler, ok := r.routes[action.Name]
	if !ok {
		return res, errors.Wrapf(ErrUnknownAction, "system contract has no action %s", action.Name)
	}
	return handler.ProcessAction(s, action, index)
}
