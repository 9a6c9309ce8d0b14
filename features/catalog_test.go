package features

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestDependsOnDefinition(t *testing.T) {
	a := NewCustomDescriptor("A", "feature a", nil, Subjective{})
	a2 := NewCustomDescriptor("A", "feature a", nil, Subjective{ProducerOnly: true})
	require.Equal(t, a.Digest(), a2.Digest(), "subjective restrictions must not affect the digest")

	b1 := NewCustomDescriptor("B", "feature b", nil, Subjective{})
	b2 := NewCustomDescriptor("B", "feature b", []Digest{a.Digest()}, Subjective{})
	require.NotEqual(t, b1.Digest(), b2.Digest())

	c := NewCustomDescriptor("A", "feature a, but different", nil, Subjective{})
	require.NotEqual(t, a.Digest(), c.Digest())

	// dependency order doesn't matter
	x := NewCustomDescriptor("X", "", []Digest{a.Digest(), b1.Digest()}, Subjective{})
	y := NewCustomDescriptor("X", "", []Digest{b1.Digest(), a.Digest()}, Subjective{})
	require.Equal(t, x.Digest(), y.Digest())
}

func TestParseDigest(t *testing.T) {
	d := NewCustomDescriptor("A", "", nil, Subjective{}).Digest()
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	require.Equal(t, d, parsed)

	parsed, err = ParseDigest("0x" + d.String())
	require.NoError(t, err)
	require.Equal(t, d, parsed)

	_, err = ParseDigest("abcd")
	require.Error(t, err)
	_, err = ParseDigest("zz")
	require.Error(t, err)

	require.Equal(t, strings.Repeat("0", 64), ZeroDigest.String())
}

func TestRegisterAllBuiltins(t *testing.T) {
	b := NewCatalogBuilder()
	require.NoError(t, b.RegisterAllBuiltins(nil))
	catalog := b.Build()
	require.Equal(t, len(AllBuiltinFeatures()), catalog.Len())

	for _, tag := range AllBuiltinFeatures() {
		d, ok := catalog.LookupBuiltin(tag)
		require.True(t, ok, tag.String())
		desc, ok := catalog.Lookup(d)
		require.True(t, ok)
		descTag, isBuiltin := desc.Builtin()
		require.True(t, isBuiltin)
		require.Equal(t, tag, descTag)
		require.Equal(t, tag.String(), desc.Name())
	}

	replaceDeferred, _ := catalog.LookupBuiltin(ReplaceDeferred)
	noDupID, _ := catalog.LookupBuiltin(NoDuplicateDeferredID)
	desc, _ := catalog.Lookup(noDupID)
	require.Equal(t, []Digest{replaceDeferred}, desc.Dependencies())

	preactivate, _ := catalog.LookupBuiltin(PreactivateFeature)
	desc, _ = catalog.Lookup(preactivate)
	require.True(t, desc.Subjective().ProducerOnly)

	// builtin digests must be stable across catalogs
	b2 := NewCatalogBuilder()
	require.NoError(t, b2.RegisterAllBuiltins(map[BuiltinFeature]Subjective{
		PreactivateFeature: {ProducerOnly: false},
	}))
	d2, _ := b2.Build().LookupBuiltin(PreactivateFeature)
	require.Equal(t, preactivate, d2)
}

func TestRegisterBuiltinTwice(t *testing.T) {
	b := NewCatalogBuilder()
	desc := NewBuiltinDescriptor(GetSender, nil, Subjective{})
	require.NoError(t, b.RegisterBuiltin(GetSender, desc))
	err := b.RegisterBuiltin(GetSender, desc)
	require.Equal(t, ErrConfiguration, errors.Cause(err))

	err = b.RegisterBuiltin(ForwardSetcode, desc)
	require.Equal(t, ErrConfiguration, errors.Cause(err), "tag must match the descriptor")
}

func TestCatalogIsClosedWorld(t *testing.T) {
	b := NewCatalogBuilder()
	unknown := NewCustomDescriptor("unknown", "", nil, Subjective{})
	dependent := NewCustomDescriptor("dependent", "", []Digest{unknown.Digest()}, Subjective{})
	err := b.RegisterCustom(dependent)
	require.Equal(t, ErrConfiguration, errors.Cause(err))
	require.Equal(t, 0, b.Build().Len())

	// builtin with an unresolvable dependency
	rd := NewCustomDescriptor(ReplaceDeferred.String(), "", nil, Subjective{})
	err = b.RegisterBuiltin(NoDuplicateDeferredID, NewBuiltinDescriptor(NoDuplicateDeferredID, []Digest{rd.Digest()}, Subjective{}))
	require.Equal(t, ErrConfiguration, errors.Cause(err))

	require.NoError(t, b.RegisterCustom(unknown))
	require.NoError(t, b.RegisterCustom(dependent))
	err = b.RegisterCustom(dependent)
	require.Equal(t, ErrConfiguration, errors.Cause(err))
}

func TestCatalogSnapshotIsImmutable(t *testing.T) {
	b := NewCatalogBuilder()
	a := NewCustomDescriptor("A", "", nil, Subjective{})
	require.NoError(t, b.RegisterCustom(a))
	catalog := b.Build()

	require.NoError(t, b.RegisterCustom(NewCustomDescriptor("B", "", nil, Subjective{})))
	require.Equal(t, 1, catalog.Len())

	digests := catalog.Digests()
	digests[0] = ZeroDigest
	require.True(t, catalog.Has(a.Digest()))
	require.Equal(t, a.Digest(), catalog.Digests()[0])
}

const customFeaturesDoc = `
[[feature]]
name = "FAST_FINALITY"
description = "Enables the fast finality rules."
dependencies = ["PREACTIVATE_FEATURE"]

[[feature]]
name = "FAST_FINALITY_V2"
description = "Second iteration of the fast finality rules."
dependencies = ["FAST_FINALITY", "only_link_to_existing_permission"]
producer_only = true
earliest_activation = 2020-03-01T00:00:00Z
`

func TestCustomFeatures(t *testing.T) {
	custom, err := ParseCustomFeatures(customFeaturesDoc)
	require.NoError(t, err)
	require.Len(t, custom, 2)

	catalog, err := NewCatalog(custom)
	require.NoError(t, err)
	require.Equal(t, len(AllBuiltinFeatures())+2, catalog.Len())

	ff, ok := catalog.LookupName("FAST_FINALITY")
	require.True(t, ok)
	_, isBuiltin := ff.Builtin()
	assert.False(t, isBuiltin)

	v2, ok := catalog.LookupName("FAST_FINALITY_V2")
	require.True(t, ok)
	oltep, _ := catalog.LookupBuiltin(OnlyLinkToExistingPermission)
	require.ElementsMatch(t, []Digest{ff.Digest(), oltep}, v2.Dependencies())
	require.True(t, v2.Subjective().ProducerOnly)
	require.Equal(t, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC).Unix(), v2.Subjective().EarliestAllowedActivationTime.Unix())

	// refer to a feature by digest
	custom = append(custom, CustomFeature{Name: "BY_DIGEST", Dependencies: []string{ff.Digest().String()}})
	_, err = NewCatalog(custom)
	require.NoError(t, err)

	// unknown digest
	missing := NewCustomDescriptor("missing", "", nil, Subjective{}).Digest()
	_, err = NewCatalog([]CustomFeature{{Name: "BROKEN", Dependencies: []string{missing.String()}}})
	require.Equal(t, ErrConfiguration, errors.Cause(err))

	// unknown name
	_, err = NewCatalog([]CustomFeature{{Name: "BROKEN", Dependencies: []string{"NOPE"}}})
	require.Equal(t, ErrConfiguration, errors.Cause(err))
}

func TestBuiltinFeatureCodenames(t *testing.T) {
	for _, tag := range AllBuiltinFeatures() {
		parsed, ok := ParseBuiltinFeature(tag.String())
		require.True(t, ok)
		require.Equal(t, tag, parsed)
	}
	_, ok := ParseBuiltinFeature("NOT_A_FEATURE")
	require.False(t, ok)
	require.False(t, BuiltinFeature(-1).Valid())
	require.False(t, numBuiltinFeatures.Valid())
}

func TestCatalogFind(t *testing.T) {
	catalog, err := NewCatalog([]CustomFeature{{Name: "FAST_FINALITY", Description: "fast"}})
	require.NoError(t, err)
	getSender, ok := catalog.LookupBuiltin(GetSender)
	require.True(t, ok)

	desc, ok := catalog.Find("get_sender")
	require.True(t, ok)
	require.Equal(t, getSender, desc.Digest())

	desc, ok = catalog.Find("0x" + getSender.String())
	require.True(t, ok)
	require.Equal(t, getSender, desc.Digest())

	desc, ok = catalog.Find("FAST_FINALITY")
	require.True(t, ok)
	require.Equal(t, "fast", desc.Description())

	_, ok = catalog.Find("SLOW_FINALITY")
	require.False(t, ok)
	_, ok = catalog.Find(ZeroDigest.String())
	require.False(t, ok)
}

func TestDependencyOrder(t *testing.T) {
	catalog, err := NewCatalog([]CustomFeature{
		{Name: "FAST_FINALITY", Description: "fast", Dependencies: []string{"NO_DUPLICATE_DEFERRED_ID"}},
	})
	require.NoError(t, err)
	replace, _ := catalog.LookupBuiltin(ReplaceDeferred)
	noDuplicate, _ := catalog.LookupBuiltin(NoDuplicateDeferredID)
	getSender, _ := catalog.LookupBuiltin(GetSender)
	fast, ok := catalog.LookupName("FAST_FINALITY")
	require.True(t, ok)

	ordered := catalog.DependencyOrder([]Digest{fast.Digest(), getSender, noDuplicate, replace})
	require.Equal(t, []Digest{getSender, replace, noDuplicate, fast.Digest()}, ordered)

	// lists that are already safe are left alone
	safe := []Digest{replace, getSender, noDuplicate}
	require.Equal(t, safe, catalog.DependencyOrder(safe))

	// dependencies outside the list don't hold anything back, duplicates & unknown digests are kept
	require.Equal(t,
		[]Digest{noDuplicate, ZeroDigest, noDuplicate},
		catalog.DependencyOrder([]Digest{noDuplicate, ZeroDigest, noDuplicate}),
	)
	require.Empty(t, catalog.DependencyOrder(nil))

	resolver := NewResolver(catalog)
	_, err = resolver.ValidateActivations(catalog.DependencyOrder([]Digest{noDuplicate, replace}), activeSet{}, time.Now())
	require.NoError(t, err)
}

func TestPreactivationRequired(t *testing.T) {
	// subjective restrictions don't change which features blocks may activate directly
	catalog, err := NewCatalog([]CustomFeature{{Name: "X", Description: "x", ProducerOnly: true}})
	require.NoError(t, err)
	x, _ := catalog.LookupName("X")
	require.True(t, x.Subjective().ProducerOnly)
	require.True(t, x.PreactivationRequired())

	b := NewCatalogBuilder()
	require.NoError(t, b.RegisterAllBuiltins(map[BuiltinFeature]Subjective{
		PreactivateFeature: {ProducerOnly: false},
		GetSender:          {ProducerOnly: true},
	}))
	overridden := b.Build()
	for _, c := range []*Catalog{catalog, overridden} {
		d, _ := c.LookupBuiltin(PreactivateFeature)
		desc, _ := c.Lookup(d)
		require.False(t, desc.PreactivationRequired())
		d, _ = c.LookupBuiltin(GetSender)
		desc, _ = c.Lookup(d)
		require.True(t, desc.PreactivationRequired())
	}
}
