package auth

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/loomnetwork/go-loom"
	"github.com/loomnetwork/go-loom/util"
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/state"
)

const (
	OwnerPermission  = "owner"
	ActivePermission = "active"
)

var (
	permissionPrefix       = []byte("perm")
	permissionByNamePrefix = []byte("perm-by-name")
	linkPrefix             = []byte("link")
)

var (
	ErrPermissionNotFound = errors.New("[Auth] permission not found")
	ErrInvalidPermission  = errors.New("[Auth] invalid permission")
	ErrInvalidLink        = errors.New("[Auth] invalid permission link")
	ErrNotAuthorized      = errors.New("[Auth] not authorized")
)

// Actions of the system account that can never be linked to a custom permission.
var unlinkableActions = map[string]bool{
	"updateauth":  true,
	"deleteauth":  true,
	"linkauth":    true,
	"unlinkauth":  true,
	"canceldelay": true,
}

// Permission is a named permission of an account, every permission except owner has a parent.
type Permission struct {
	Account string
	Name    string
	Parent  string
}

func permissionKey(account loom.Address, name string) []byte {
	return util.PrefixKey(permissionPrefix, []byte(account.String()), []byte(name))
}

func permissionByNameKey(name string, account loom.Address) []byte {
	return util.PrefixKey(permissionByNamePrefix, []byte(name), []byte(account.String()))
}

func linkKey(account loom.Address, code loom.Address, action string) []byte {
	return util.PrefixKey(linkPrefix, []byte(account.String()), []byte(code.String()), []byte(action))
}

// PermissionError is returned when a permission can't be found.
type PermissionError struct {
	Name string
}

func (e *PermissionError) Error() string {
	return "Failed to retrieve permission: " + e.Name
}

func (e *PermissionError) Cause() error {
	return ErrPermissionNotFound
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionNotFound
}

func permissionNotFound(name string) error {
	permissionErrorCount.With("method", "lookup").Add(1)
	return &PermissionError{Name: name}
}

// GetPermission loads the named permission of the given account.
func GetPermission(s state.ReadOnlyState, account loom.Address, name string) (*Permission, error) {
	data := s.Get(permissionKey(account, name))
	if len(data) == 0 {
		return nil, permissionNotFound(name)
	}
	var perm Permission
	if err := rlp.DecodeBytes(data, &perm); err != nil {
		return nil, errors.Wrapf(err, "corrupt permission %s@%s", name, account.String())
	}
	return &perm, nil
}

// permissionExistsAnywhere checks if any account has a permission with the given name.
func permissionExistsAnywhere(s state.ReadOnlyState, name string) bool {
	return len(s.Range(util.PrefixKey(permissionByNamePrefix, []byte(name)))) > 0
}

// UpdateAuth creates or updates a permission of the given account. Only owner may omit the parent,
// any other parent must already exist on the same account.
func UpdateAuth(s state.State, account loom.Address, name, parent string) error {
	if name == "" {
		permissionErrorCount.With("method", "updateauth").Add(1)
		return errors.Wrap(ErrInvalidPermission, "permission name must not be empty")
	}
	if name == OwnerPermission {
		if parent != "" {
			permissionErrorCount.With("method", "updateauth").Add(1)
			return errors.Wrap(ErrInvalidPermission, "owner permission can't have a parent")
		}
	} else {
		if parent == "" || parent == name {
			permissionErrorCount.With("method", "updateauth").Add(1)
			return errors.Wrapf(ErrInvalidPermission, "invalid parent for permission %s", name)
		}
		if _, err := GetPermission(s, account, parent); err != nil {
			return err
		}
	}
	data, err := rlp.EncodeToBytes(&Permission{
		Account: account.String(),
		Name:    name,
		Parent:  parent,
	})
	if err != nil {
		return err
	}
	s.Set(permissionKey(account, name), data)
	s.Set(permissionByNameKey(name, account), []byte{1})
	return nil
}

// LinkAuth sets the minimum permission of the given account required to authorize an action
// of the given contract, an empty action links every action of the contract.
//
// Until ONLY_LINK_TO_EXISTING_PERMISSION is active the requirement only needs to exist on some
// account, afterwards it must exist on the linking account itself. Until FIX_LINKAUTH_RESTRICTION
// is active the system actions in unlinkableActions can't be linked on any contract, afterwards
// the restriction only applies to the system contract.
func LinkAuth(s state.State, account, code loom.Address, action, requirement string) error {
	if unlinkableActions[action] {
		isSystem := code.Compare(loom.RootAddress(s.Block().ChainID)) == 0
		if isSystem || !s.IsBuiltinActive(features.FixLinkauthRestriction) {
			permissionErrorCount.With("method", "linkauth").Add(1)
			return errors.Wrapf(ErrInvalidLink, "Cannot link %s to a minimum permission", action)
		}
	}
	if requirement == OwnerPermission {
		permissionErrorCount.With("method", "linkauth").Add(1)
		return errors.Wrap(ErrInvalidLink, "Cannot link to owner permission")
	}

	if s.IsBuiltinActive(features.OnlyLinkToExistingPermission) {
		if _, err := GetPermission(s, account, requirement); err != nil {
			return err
		}
	} else if !permissionExistsAnywhere(s, requirement) {
		return permissionNotFound(requirement)
	}

	s.Set(linkKey(account, code, action), []byte(requirement))
	return nil
}

// LinkedPermission returns the permission linked to an action, or "" if there's no link.
func LinkedPermission(s state.ReadOnlyState, account, code loom.Address, action string) string {
	return string(s.Get(linkKey(account, code, action)))
}

// RequireOrigin checks that the action is authorized by the account it modifies.
func RequireOrigin(origin, account loom.Address) error {
	if origin.Compare(account) != 0 {
		return errors.Wrapf(ErrNotAuthorized, "missing authority of %s", account.String())
	}
	return nil
}
