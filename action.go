package featurechain

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/loomnetwork/go-loom"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/features"
)

// Names of the actions implemented by the system contract.
const (
	PreactivateAction  = "preactivate"
	ReqActivatedAction = "reqactivated"
	SetCodeAction      = "setcode"
	UpdateAuthAction   = "updateauth"
	LinkAuthAction     = "linkauth"
)

// Action is a single call to a contract action, authorized by a single account.
type Action struct {
	Contract   loom.Address
	Name       string
	Authorizer loom.Address
	Data       []byte
}

type actionRecord struct {
	Contract   string
	Name       string
	Authorizer string
	Data       []byte
}

func (a *Action) record() actionRecord {
	return actionRecord{
		Contract:   a.Contract.String(),
		Name:       a.Name,
		Authorizer: a.Authorizer.String(),
		Data:       a.Data,
	}
}

type ActionResult struct {
	Data []byte
	Info string
}

type PreactivateParams struct {
	FeatureDigest features.Digest
}

type ReqActivatedParams struct {
	FeatureDigest features.Digest
}

type SetCodeParams struct {
	Account string
	Imports []string
}

type UpdateAuthParams struct {
	Account    string
	Permission string
	Parent     string
}

type LinkAuthParams struct {
	Account     string
	Code        string
	Type        string
	Requirement string
}

func newAction(contract loom.Address, name string, authorizer loom.Address, params interface{}) *Action {
	data, err := rlp.EncodeToBytes(params)
	if err != nil {
		panic(err)
	}
	return &Action{
		Contract:   contract,
		Name:       name,
		Authorizer: authorizer,
		Data:       data,
	}
}

// NewPreactivateAction returns a system action that preactivates the given feature.
func NewPreactivateAction(chainID string, d features.Digest) *Action {
	system := loom.RootAddress(chainID)
	return newAction(system, PreactivateAction, system, &PreactivateParams{FeatureDigest: d})
}

// NewReqActivatedAction returns a system action that fails unless the given feature is active.
func NewReqActivatedAction(chainID string, d features.Digest) *Action {
	system := loom.RootAddress(chainID)
	return newAction(system, ReqActivatedAction, system, &ReqActivatedParams{FeatureDigest: d})
}

func NewSetCodeAction(chainID string, account loom.Address, imports []string) *Action {
	return newAction(loom.RootAddress(chainID), SetCodeAction, account, &SetCodeParams{
		Account: account.String(),
		Imports: imports,
	})
}

func NewUpdateAuthAction(chainID string, account loom.Address, permission, parent string) *Action {
	return newAction(loom.RootAddress(chainID), UpdateAuthAction, account, &UpdateAuthParams{
		Account:    account.String(),
		Permission: permission,
		Parent:     parent,
	})
}

func NewLinkAuthAction(chainID string, account, code loom.Address, typ, requirement string) *Action {
	return newAction(loom.RootAddress(chainID), LinkAuthAction, account, &LinkAuthParams{
		Account:     account.String(),
		Code:        code.String(),
		Type:        typ,
		Requirement: requirement,
	})
}

func decodeParams(a *Action, params interface{}) error {
	if err := rlp.DecodeBytes(a.Data, params); err != nil {
		return errors.Wrapf(err, "failed to decode %s params", a.Name)
	}
	return nil
}
