package features

import (
	"time"
)

// ActivationSet is the read-only view of the activation history the resolver needs.
type ActivationSet interface {
	IsActive(d Digest) bool
}

// Resolver checks that a proposed activation list is recognized, free of duplicates and closed
// over its dependencies. It never reorders the list, callers are expected to put dependencies
// before the features that depend on them.
type Resolver struct {
	catalog *Catalog
}

func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// ValidateActivations returns the proposed list unchanged if every digest in it can be activated
// in a block with the given time, otherwise it returns the first violation found.
// A dependency may be satisfied by an earlier entry in the same list.
func (r *Resolver) ValidateActivations(proposed []Digest, active ActivationSet, blockTime time.Time) ([]Digest, error) {
	seen := make(map[Digest]bool, len(proposed))
	for _, d := range proposed {
		desc, ok := r.catalog.Lookup(d)
		if !ok {
			return nil, UnrecognizedFeatureError(d)
		}
		if active.IsActive(d) {
			return nil, AlreadyActivatedError(d)
		}
		if seen[d] {
			return nil, DuplicateActivationError(d)
		}
		for _, dep := range desc.deps {
			if !active.IsActive(dep) && !seen[dep] {
				return nil, MissingDependencyError(d, dep)
			}
		}
		if !desc.ActivationAllowedAt(blockTime) {
			return nil, TooEarlyError(d, desc.subjective.EarliestAllowedActivationTime.Unix(), blockTime.Unix())
		}
		seen[d] = true
	}
	return proposed, nil
}
