package vm

import (
	"context"
	"testing"
	"time"

	loom "github.com/loomnetwork/go-loom"
	"github.com/loomnetwork/go-loom/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/loomnetwork/featurechain/activation"
	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/state"
	"github.com/loomnetwork/featurechain/store"
)

func mockState(t *testing.T) *state.StoreState {
	catalog, err := features.NewCatalog(nil)
	require.NoError(t, err)
	header := types.BlockHeader{ChainID: "default", Height: 1, Time: time.Now().Unix()}
	return state.NewStoreState(context.Background(), store.NewMemStore(), header, catalog, log.NewNopLogger())
}

func activate(t *testing.T, s *state.StoreState, tag features.BuiltinFeature) {
	d, ok := s.Catalog().LookupBuiltin(tag)
	require.True(t, ok)
	bypass, err := activation.NewBypass(true, "test")
	require.NoError(t, err)
	block := s.Machine().Begin(s.Block().Height, s.BlockTime())
	require.NoError(t, block.ProposeWithBypass(bypass, d))
	require.NoError(t, block.Validate())
	require.NoError(t, block.Commit())
}

func TestLinkGatedIntrinsic(t *testing.T) {
	s := mockState(t)
	linker := NewLinker(s)

	err := linker.Resolve("env.is_feature_activated")
	require.Error(t, err)
	require.Equal(t, "env.is_feature_activated unresolveable", err.Error())
	require.Equal(t, ErrUnresolvableIntrinsic, errors.Cause(err))

	require.NoError(t, linker.Resolve("env.require_auth"))
	require.NoError(t, linker.Resolve("send_inline"))

	activate(t, s, features.PreactivateFeature)
	require.NoError(t, linker.Resolve("env.is_feature_activated"))
	require.NoError(t, linker.Link([]string{"env.preactivate_feature", "env.is_feature_activated"}))

	err = linker.Link([]string{"env.require_auth", "env.get_sender"})
	require.Equal(t, "env.get_sender unresolveable", err.Error())
}

func TestLinkUnknownImport(t *testing.T) {
	linker := NewLinker(mockState(t))
	err := linker.Resolve("env.launch_missiles")
	require.Equal(t, ErrUnknownIntrinsic, errors.Cause(err))
	err = linker.Resolve("wasi.fd_write")
	require.Equal(t, ErrUnknownIntrinsic, errors.Cause(err))
	require.Equal(t, "unknown import wasi.fd_write", err.Error())
}

func TestIsFeatureActivated(t *testing.T) {
	s := mockState(t)
	linker := NewLinker(s)
	d, _ := s.Catalog().LookupBuiltin(features.PreactivateFeature)
	require.False(t, linker.IsFeatureActivated(d))
	require.False(t, linker.IsFeatureActivated(features.ZeroDigest))
	activate(t, s, features.PreactivateFeature)
	require.True(t, linker.IsFeatureActivated(d))
}

func TestSetCode(t *testing.T) {
	s := mockState(t)
	addr := loom.RootAddress("default")
	code := &Code{Imports: []string{"env.require_auth", "env.preactivate_feature"}}

	err := SetCode(s, addr, code)
	require.Equal(t, "env.preactivate_feature unresolveable", err.Error())
	stored, err := GetCode(s, addr)
	require.NoError(t, err)
	require.Nil(t, stored)

	activate(t, s, features.PreactivateFeature)
	require.NoError(t, SetCode(s, addr, code))
	stored, err = GetCode(s, addr)
	require.NoError(t, err)
	require.Equal(t, code, stored)

	h1, err := code.Hash()
	require.NoError(t, err)
	h2, err := stored.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestIntrinsicsSorted(t *testing.T) {
	names := Intrinsics()
	require.Contains(t, names, "env.preactivate_feature")
	for i := 1; i < len(names); i++ {
		require.True(t, names[i-1] < names[i])
	}
}
