package state

import (
	"context"
	"testing"
	"time"

	"github.com/loomnetwork/go-loom/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/log"
	"github.com/loomnetwork/featurechain/store"
)

func newTestState(t *testing.T, kv store.KVStore) *StoreState {
	catalog, err := features.NewCatalog(nil)
	require.NoError(t, err)
	block := types.BlockHeader{ChainID: "default", Height: 1, Time: time.Now().Unix()}
	return NewStoreState(context.Background(), kv, block, catalog, log.NewNopLogger())
}

func TestStoreStateFeatureQueries(t *testing.T) {
	kv := store.NewMemStore()
	s := newTestState(t, kv)
	replace, ok := s.Catalog().LookupBuiltin(features.ReplaceDeferred)
	require.True(t, ok)

	require.NoError(t, s.Preactivate(replace, 3))
	require.True(t, s.IsPending(replace))
	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, int64(1), pending[0].Height)
	require.Equal(t, uint32(3), pending[0].ActionIndex)
	require.Equal(t, s.Block().Time, pending[0].BlockTime)

	next := s.WithBlock(types.BlockHeader{ChainID: "default", Height: 2, Time: s.Block().Time + 1})
	require.NoError(t, next.Machine().Apply(2, next.BlockTime(), []features.Digest{replace}))

	require.True(t, s.IsActive(replace))
	require.True(t, s.IsBuiltinActive(features.ReplaceDeferred))
	require.False(t, s.IsBuiltinActive(features.GetSender))
	height, ok := s.ActivationHeight(replace)
	require.True(t, ok)
	require.Equal(t, int64(2), height)

	activations, err := s.Activations()
	require.NoError(t, err)
	require.Len(t, activations, 1)

	// activation data stays under its own prefix
	require.NotEmpty(t, kv.Range(FeaturesPrefix))
}

func TestStoreStateWithPrefix(t *testing.T) {
	kv := store.NewMemStore()
	s := newTestState(t, kv)
	preactivate, _ := s.Catalog().LookupBuiltin(features.PreactivateFeature)
	require.NoError(t, s.Machine().Apply(1, s.BlockTime(), []features.Digest{preactivate}))

	prefixed := s.WithPrefix([]byte("auth"))
	prefixed.Set([]byte("alice"), []byte("owner"))
	require.Equal(t, []byte("owner"), prefixed.Get([]byte("alice")))
	require.False(t, s.Has([]byte("alice")))
	require.Len(t, s.Range([]byte("auth")), 1)

	// feature queries see the whole branch
	require.True(t, prefixed.IsActive(preactivate))

	ctx := context.WithValue(context.Background(), struct{}{}, 1)
	require.Equal(t, ctx, s.WithContext(ctx).Context())
}

func TestStoreStateRejectsPreactivationOfActiveFeature(t *testing.T) {
	s := newTestState(t, store.NewMemStore())
	preactivate, _ := s.Catalog().LookupBuiltin(features.PreactivateFeature)
	err := s.Preactivate(preactivate, 0)
	require.Equal(t, features.ErrProducerOnly, errors.Cause(err))

	require.NoError(t, s.Machine().Apply(1, s.BlockTime(), []features.Digest{preactivate}))
	err = s.Preactivate(preactivate, 0)
	require.Equal(t, features.ErrAlreadyActivated, errors.Cause(err))
}
