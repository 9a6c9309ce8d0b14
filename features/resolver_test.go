package features

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type activeSet map[Digest]bool

func (s activeSet) IsActive(d Digest) bool {
	return s[d]
}

type resolverFixture struct {
	catalog *Catalog
	a, b, c Descriptor
	late    Descriptor
	now     time.Time
}

func newResolverFixture(t *testing.T) *resolverFixture {
	now := time.Date(2019, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &resolverFixture{now: now}
	f.a = NewCustomDescriptor("A", "", nil, Subjective{})
	f.b = NewCustomDescriptor("B", "", []Digest{f.a.Digest()}, Subjective{})
	f.c = NewCustomDescriptor("C", "", []Digest{f.a.Digest(), f.b.Digest()}, Subjective{})
	f.late = NewCustomDescriptor("LATE", "", nil, Subjective{EarliestAllowedActivationTime: now.Add(time.Hour)})

	builder := NewCatalogBuilder()
	for _, desc := range []Descriptor{f.a, f.b, f.c, f.late} {
		require.NoError(t, builder.RegisterCustom(desc))
	}
	f.catalog = builder.Build()
	return f
}

func TestResolverAcceptsOrderedList(t *testing.T) {
	f := newResolverFixture(t)
	r := NewResolver(f.catalog)

	proposed := []Digest{f.a.Digest(), f.b.Digest(), f.c.Digest()}
	validated, err := r.ValidateActivations(proposed, activeSet{}, f.now)
	require.NoError(t, err)
	require.Equal(t, proposed, validated)

	// dependencies already active
	validated, err = r.ValidateActivations([]Digest{f.c.Digest()}, activeSet{f.a.Digest(): true, f.b.Digest(): true}, f.now)
	require.NoError(t, err)
	require.Equal(t, []Digest{f.c.Digest()}, validated)

	// empty lists are fine
	_, err = r.ValidateActivations(nil, activeSet{}, f.now)
	require.NoError(t, err)
}

func TestResolverErrors(t *testing.T) {
	f := newResolverFixture(t)
	r := NewResolver(f.catalog)

	tests := []struct {
		name     string
		proposed []Digest
		active   activeSet
		blockAt  time.Time
		kind     error
		culprit  Digest
	}{
		{"zero digest", []Digest{ZeroDigest}, activeSet{}, f.now, ErrUnrecognizedFeature, ZeroDigest},
		{"already active", []Digest{f.a.Digest()}, activeSet{f.a.Digest(): true}, f.now, ErrAlreadyActivated, f.a.Digest()},
		{"duplicate", []Digest{f.a.Digest(), f.a.Digest()}, activeSet{}, f.now, ErrDuplicateActivation, f.a.Digest()},
		{"missing dependency", []Digest{f.b.Digest()}, activeSet{}, f.now, ErrMissingDependency, f.b.Digest()},
		{"dependency listed later", []Digest{f.b.Digest(), f.a.Digest()}, activeSet{}, f.now, ErrMissingDependency, f.b.Digest()},
		{"too early", []Digest{f.late.Digest()}, activeSet{}, f.now, ErrTooEarly, f.late.Digest()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			validated, err := r.ValidateActivations(tc.proposed, tc.active, tc.blockAt)
			require.Nil(t, validated)
			require.Equal(t, tc.kind, errors.Cause(err))
			require.Equal(t, tc.kind, KindOf(err))
			featureErr, ok := err.(*FeatureError)
			require.True(t, ok)
			require.Equal(t, tc.culprit, featureErr.Digest)
		})
	}

	_, err := r.ValidateActivations([]Digest{f.late.Digest()}, activeSet{}, f.now.Add(time.Hour))
	require.NoError(t, err)
}

func TestErrorMessages(t *testing.T) {
	require.Equal(t,
		"protocol feature with digest '0000000000000000000000000000000000000000000000000000000000000000' is unrecognized",
		UnrecognizedFeatureError(ZeroDigest).Error(),
	)
	d := NewCustomDescriptor("A", "", nil, Subjective{}).Digest()
	require.Equal(t, "protocol feature with digest '"+d.String()+"' is already pre-activated", AlreadyPreactivatedError(d).Error())
	require.Equal(t, "attempted duplicate activation within a single block: "+d.String(), DuplicateActivationError(d).Error())
	require.Nil(t, KindOf(errors.New("something else")))
	require.Equal(t, ErrTooEarly, KindOf(errors.Wrap(TooEarlyError(d, 1, 0), "block 5")))
}
