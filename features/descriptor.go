package features

import (
	"time"
)

// Subjective holds node-local restrictions on when & how a feature may be activated.
// They don't contribute to the feature digest.
type Subjective struct {
	// ProducerOnly features are never preactivated by this node when it produces blocks.
	ProducerOnly bool
	// EarliestAllowedActivationTime is ignored if zero.
	EarliestAllowedActivationTime time.Time
}

// Descriptor describes a single protocol feature. Descriptors are immutable once constructed.
type Descriptor struct {
	name        string
	description string
	deps        []Digest
	subjective  Subjective
	builtin     BuiltinFeature
	isBuiltin   bool
	digest      Digest
}

// NewCustomDescriptor creates a descriptor for a feature that's not part of the builtin set.
func NewCustomDescriptor(name, description string, deps []Digest, subjective Subjective) Descriptor {
	d := Descriptor{
		name:        name,
		description: description,
		deps:        copyDigests(deps),
		subjective:  subjective,
	}
	d.digest = computeDigest(kindCustom, "", name, description, d.deps)
	return d
}

// NewBuiltinDescriptor creates a descriptor for a builtin feature, deps must be the digests of the
// builtins listed as dependencies of the given tag.
func NewBuiltinDescriptor(tag BuiltinFeature, deps []Digest, subjective Subjective) Descriptor {
	def := builtinDefs[tag]
	d := Descriptor{
		name:        tag.String(),
		description: def.description,
		deps:        copyDigests(deps),
		subjective:  subjective,
		builtin:     tag,
		isBuiltin:   true,
	}
	d.digest = computeDigest(kindBuiltin, tag.String(), d.name, d.description, d.deps)
	return d
}

func (d Descriptor) Digest() Digest {
	return d.digest
}

func (d Descriptor) Name() string {
	return d.name
}

func (d Descriptor) Description() string {
	return d.description
}

// Dependencies returns a copy of the digests this feature depends on.
func (d Descriptor) Dependencies() []Digest {
	return copyDigests(d.deps)
}

func (d Descriptor) Subjective() Subjective {
	return d.subjective
}

// Builtin returns the builtin tag of the feature, the second return value is false for custom features.
func (d Descriptor) Builtin() (BuiltinFeature, bool) {
	return d.builtin, d.isBuiltin
}

// PreactivationRequired reports whether blocks may only activate the feature after it has been
// preactivated. Only builtins marked producer-only in the builtin table are exempt, so every node
// running the same catalog reaches the same answer whatever its subjective restrictions are.
func (d Descriptor) PreactivationRequired() bool {
	return !(d.isBuiltin && builtinDefs[d.builtin].producerOnly)
}

// ActivationAllowedAt checks the earliest allowed activation time against the given block time.
func (d Descriptor) ActivationAllowedAt(blockTime time.Time) bool {
	earliest := d.subjective.EarliestAllowedActivationTime
	return earliest.IsZero() || !blockTime.Before(earliest)
}

func copyDigests(src []Digest) []Digest {
	if len(src) == 0 {
		return nil
	}
	dst := make([]Digest, len(src))
	copy(dst, src)
	return dst
}
