package rpc

import (
	"github.com/pkg/errors"

	"github.com/loomnetwork/featurechain/features"
	"github.com/loomnetwork/featurechain/state"
)

var ErrFeatureNotFound = errors.New("protocol feature not found")

// StateProvider interface is used by QueryServer to access the state of the chain.
type StateProvider interface {
	// PendingState returns the state of the block being produced, or the head state if there
	// isn't one.
	PendingState() state.ReadOnlyState
}

// QueryServer provides the ability to query the protocol features of the current branch.
//
// Every query reads a single snapshot of the state, so the results of one call are always
// consistent with each other.
type QueryServer struct {
	StateProvider
}

var _ QueryService = &QueryServer{}

func (s *QueryServer) Features() ([]FeatureInfo, error) {
	st := s.PendingState()
	catalog := st.Catalog()
	digests := catalog.Digests()
	infos := make([]FeatureInfo, 0, len(digests))
	for _, d := range digests {
		desc, _ := catalog.Lookup(d)
		infos = append(infos, featureInfo(st, desc))
	}
	return infos, nil
}

func (s *QueryServer) Feature(id string) (*FeatureInfo, error) {
	st := s.PendingState()
	desc, ok := st.Catalog().Find(id)
	if !ok {
		return nil, errors.Wrap(ErrFeatureNotFound, id)
	}
	info := featureInfo(st, desc)
	return &info, nil
}

func (s *QueryServer) Activations() ([]ActivationInfo, error) {
	st := s.PendingState()
	activations, err := st.Activations()
	if err != nil {
		return nil, err
	}
	infos := make([]ActivationInfo, 0, len(activations))
	for _, a := range activations {
		infos = append(infos, ActivationInfo{
			Digest: a.Digest.String(),
			Name:   featureName(st.Catalog(), a.Digest),
			Height: a.Height,
		})
	}
	return infos, nil
}

func (s *QueryServer) Pending() ([]PendingInfo, error) {
	st := s.PendingState()
	pending, err := st.Pending()
	if err != nil {
		return nil, err
	}
	infos := make([]PendingInfo, 0, len(pending))
	for _, p := range pending {
		infos = append(infos, PendingInfo{
			Digest:      p.Digest.String(),
			Name:        featureName(st.Catalog(), p.Digest),
			Height:      p.Height,
			ActionIndex: p.ActionIndex,
		})
	}
	return infos, nil
}

func (s *QueryServer) Status() (*StatusInfo, error) {
	st := s.PendingState()
	activations, err := st.Activations()
	if err != nil {
		return nil, err
	}
	pending, err := st.Pending()
	if err != nil {
		return nil, err
	}
	block := st.Block()
	return &StatusInfo{
		ChainID:         block.ChainID,
		Height:          block.Height,
		BlockTime:       block.Time,
		NumFeatures:     int64(st.Catalog().Len()),
		NumActivated:    int64(len(activations)),
		NumPreactivated: int64(len(pending)),
	}, nil
}

func featureName(catalog *features.Catalog, d features.Digest) string {
	if desc, ok := catalog.Lookup(d); ok {
		return desc.Name()
	}
	return ""
}

func featureInfo(st state.ReadOnlyState, desc features.Descriptor) FeatureInfo {
	d := desc.Digest()
	_, builtin := desc.Builtin()
	deps := desc.Dependencies()
	info := FeatureInfo{
		Digest:       d.String(),
		Name:         desc.Name(),
		Description:  desc.Description(),
		Builtin:      builtin,
		Dependencies: make([]string, 0, len(deps)),
		ProducerOnly: desc.Subjective().ProducerOnly,
		Pending:      st.IsPending(d),
	}
	for _, dep := range deps {
		info.Dependencies = append(info.Dependencies, dep.String())
	}
	if earliest := desc.Subjective().EarliestAllowedActivationTime; !earliest.IsZero() {
		info.EarliestActivation = earliest.Unix()
	}
	info.ActivationHeight, info.Active = st.ActivationHeight(d)
	return info
}
