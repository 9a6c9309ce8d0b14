package vm

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	loom "github.com/loomnetwork/go-loom"
	"github.com/loomnetwork/go-loom/util"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/state"
)

var codePrefix = []byte("code")

// Code is the part of a deployed contract the engine needs to link it.
type Code struct {
	Imports []string
}

// Hash returns the Keccak-256 hash of the encoded code.
func (c *Code) Hash() ([]byte, error) {
	enc, err := rlp.EncodeToBytes(c)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(enc), nil
}

func codeKey(addr loom.Address) []byte {
	return util.PrefixKey(codePrefix, []byte(addr.String()))
}

// SetCode links the given code against the current state and deploys it to the given account,
// replacing any code the account already had.
func SetCode(s state.State, addr loom.Address, code *Code) error {
	if err := NewLinker(s).Link(code.Imports); err != nil {
		return err
	}
	enc, err := rlp.EncodeToBytes(code)
	if err != nil {
		return err
	}
	s.Set(codeKey(addr), enc)
	return nil
}

// GetCode returns the code deployed to the given account, or nil if there isn't any.
func GetCode(s state.ReadOnlyState, addr loom.Address) (*Code, error) {
	data := s.Get(codeKey(addr))
	if len(data) == 0 {
		return nil, nil
	}
	var code Code
	if err := rlp.DecodeBytes(data, &code); err != nil {
		return nil, errors.Wrapf(err, "corrupt code for %s", addr.String())
	}
	return &code, nil
}
