package auth

import (
	"context"
	"testing"
	"time"

	"github.com/loomnetwork/go-loom"
	"github.com/loomnetwork/go-loom/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/loomnetwork/featurechain/activation"
	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/state"
	"github.com/loomnetwork/featurechain/store"
)

var (
	addr1 = loom.MustParseAddress("default:0xb16a379ec18d4093666f8f38b11a3071c920207d")
	addr2 = loom.MustParseAddress("default:0x5cecd1f7261e1f4c684e297be3edf03b825e01c4")
)

func mockState(t *testing.T) *state.StoreState {
	catalog, err := features.NewCatalog(nil)
	require.NoError(t, err)
	header := types.BlockHeader{ChainID: "default", Height: 1, Time: time.Now().Unix()}
	return state.NewStoreState(context.Background(), store.NewMemStore(), header, catalog, log.NewNopLogger())
}

func enableFeature(t *testing.T, s *state.StoreState, tag features.BuiltinFeature) {
	d, _ := s.Catalog().LookupBuiltin(tag)
	bypass, err := activation.NewBypass(true, "test")
	require.NoError(t, err)
	block := s.Machine().Begin(s.Block().Height, s.BlockTime())
	require.NoError(t, block.ProposeWithBypass(bypass, d))
	require.NoError(t, block.Validate())
	require.NoError(t, block.Commit())
}

func setupAccounts(t *testing.T, s state.State) {
	for _, account := range []loom.Address{addr1, addr2} {
		require.NoError(t, UpdateAuth(s, account, OwnerPermission, ""))
		require.NoError(t, UpdateAuth(s, account, ActivePermission, OwnerPermission))
	}
}

func TestUpdateAuth(t *testing.T) {
	s := mockState(t)
	setupAccounts(t, s)

	perm, err := GetPermission(s, addr1, ActivePermission)
	require.NoError(t, err)
	require.Equal(t, OwnerPermission, perm.Parent)
	require.Equal(t, addr1.String(), perm.Account)

	err = UpdateAuth(s, addr1, "test", "missing")
	require.Equal(t, ErrPermissionNotFound, errors.Cause(err))
	err = UpdateAuth(s, addr1, OwnerPermission, ActivePermission)
	require.Equal(t, ErrInvalidPermission, errors.Cause(err))
	err = UpdateAuth(s, addr1, "test", "test")
	require.Equal(t, ErrInvalidPermission, errors.Cause(err))
	err = UpdateAuth(s, addr1, "", ActivePermission)
	require.Equal(t, ErrInvalidPermission, errors.Cause(err))
}

func TestLinkAuthBeforeOnlyLinkToExistingPermission(t *testing.T) {
	s := mockState(t)
	setupAccounts(t, s)
	code := loom.MustParseAddress("default:0x9a1aC42a17AAD6Dbc6d21c162989d0f701074044")

	// no account has the permission yet
	err := LinkAuth(s, addr1, code, "transfer", "test")
	require.Equal(t, ErrPermissionNotFound, errors.Cause(err))
	require.Equal(t, "Failed to retrieve permission: test", err.Error())

	// the permission only exists on another account, that's enough for now
	require.NoError(t, UpdateAuth(s, addr2, "test", ActivePermission))
	require.NoError(t, LinkAuth(s, addr1, code, "transfer", "test"))
	require.Equal(t, "test", LinkedPermission(s, addr1, code, "transfer"))
}

func TestLinkAuthAfterOnlyLinkToExistingPermission(t *testing.T) {
	s := mockState(t)
	setupAccounts(t, s)
	enableFeature(t, s, features.OnlyLinkToExistingPermission)
	code := loom.MustParseAddress("default:0x9a1aC42a17AAD6Dbc6d21c162989d0f701074044")

	require.NoError(t, UpdateAuth(s, addr2, "test", ActivePermission))
	err := LinkAuth(s, addr1, code, "transfer", "test")
	require.Equal(t, ErrPermissionNotFound, errors.Cause(err))
	require.Equal(t, "Failed to retrieve permission: test", err.Error())
	require.Equal(t, "", LinkedPermission(s, addr1, code, "transfer"))

	require.NoError(t, UpdateAuth(s, addr1, "test", ActivePermission))
	require.NoError(t, LinkAuth(s, addr1, code, "transfer", "test"))
	require.Equal(t, "test", LinkedPermission(s, addr1, code, "transfer"))
}

func TestLinkAuthRestrictedActions(t *testing.T) {
	s := mockState(t)
	setupAccounts(t, s)
	code := loom.MustParseAddress("default:0x9a1aC42a17AAD6Dbc6d21c162989d0f701074044")
	system := loom.RootAddress("default")

	err := LinkAuth(s, addr1, code, "linkauth", ActivePermission)
	require.Equal(t, ErrInvalidLink, errors.Cause(err))
	err = LinkAuth(s, addr1, code, "transfer", OwnerPermission)
	require.Equal(t, ErrInvalidLink, errors.Cause(err))

	enableFeature(t, s, features.FixLinkauthRestriction)
	require.NoError(t, LinkAuth(s, addr1, code, "linkauth", ActivePermission))
	err = LinkAuth(s, addr1, system, "linkauth", ActivePermission)
	require.Equal(t, ErrInvalidLink, errors.Cause(err))
}
