package features

import (
	"github.com/pkg/errors"
)

// Catalog maps feature digests to their descriptors. A Catalog is read-only after it's built, so a
// single instance can be shared by any number of chain branches.
type Catalog struct {
	byDigest map[Digest]Descriptor
	builtins map[BuiltinFeature]Digest
	order    []Digest
}

// Lookup returns the descriptor of the feature with the given digest.
func (c *Catalog) Lookup(d Digest) (Descriptor, bool) {
	desc, ok := c.byDigest[d]
	return desc, ok
}

// Has checks if the catalog recognizes the given digest.
func (c *Catalog) Has(d Digest) bool {
	_, ok := c.byDigest[d]
	return ok
}

// LookupBuiltin returns the digest of a builtin feature, the second return value is false if the
// builtin wasn't registered with this catalog.
func (c *Catalog) LookupBuiltin(tag BuiltinFeature) (Digest, bool) {
	d, ok := c.builtins[tag]
	return d, ok
}

// LookupName returns the first registered feature with the given name.
func (c *Catalog) LookupName(name string) (Descriptor, bool) {
	for _, d := range c.order {
		if desc := c.byDigest[d]; desc.Name() == name {
			return desc, true
		}
	}
	return Descriptor{}, false
}

// Find looks up a feature by hex digest, builtin codename, or name.
func (c *Catalog) Find(id string) (Descriptor, bool) {
	if d, err := ParseDigest(id); err == nil {
		return c.Lookup(d)
	}
	if tag, ok := ParseBuiltinFeature(id); ok {
		if d, ok := c.LookupBuiltin(tag); ok {
			return c.Lookup(d)
		}
	}
	return c.LookupName(id)
}

// Digests returns the digests of all the features in the order they were registered.
func (c *Catalog) Digests() []Digest {
	return copyDigests(c.order)
}

func (c *Catalog) Len() int {
	return len(c.order)
}

// DependencyOrder returns the given digests reordered so that every digest comes after the
// digests it depends on that are also in the list. Otherwise the original order is kept, so a
// list that's already dependency-safe is returned unchanged. Unknown digests keep their place
// relative to each other.
func (c *Catalog) DependencyOrder(digests []Digest) []Digest {
	listed := make(map[Digest]bool, len(digests))
	for _, d := range digests {
		listed[d] = true
	}
	placed := make(map[Digest]bool, len(digests))
	done := make([]bool, len(digests))
	ordered := make([]Digest, 0, len(digests))
	for len(ordered) < len(digests) {
		progress := false
		for i, d := range digests {
			if done[i] || !c.depsPlaced(d, listed, placed) {
				continue
			}
			done[i] = true
			placed[d] = true
			ordered = append(ordered, d)
			progress = true
			break
		}
		if !progress {
			// dependency cycles can't be registered, keep whatever is left as is
			for i, d := range digests {
				if !done[i] {
					ordered = append(ordered, d)
				}
			}
			break
		}
	}
	return ordered
}

func (c *Catalog) depsPlaced(d Digest, listed, placed map[Digest]bool) bool {
	desc, ok := c.byDigest[d]
	if !ok {
		return true
	}
	for _, dep := range desc.deps {
		if listed[dep] && !placed[dep] {
			return false
		}
	}
	return true
}

// CatalogBuilder assembles a Catalog at node startup. Every dependency must be registered before
// the features that depend on it, a builder never accepts a descriptor that refers to an unknown
// digest.
type CatalogBuilder struct {
	byDigest map[Digest]Descriptor
	builtins map[BuiltinFeature]Digest
	order    []Digest
}

func NewCatalogBuilder() *CatalogBuilder {
	return &CatalogBuilder{
		byDigest: make(map[Digest]Descriptor),
		builtins: make(map[BuiltinFeature]Digest),
	}
}

// RegisterBuiltin adds a builtin feature to the catalog being built.
func (b *CatalogBuilder) RegisterBuiltin(tag BuiltinFeature, desc Descriptor) error {
	if !tag.Valid() {
		return errors.Wrapf(ErrConfiguration, "unknown builtin protocol feature %s", tag)
	}
	if descTag, ok := desc.Builtin(); !ok || descTag != tag {
		return errors.Wrapf(ErrConfiguration, "descriptor %s doesn't describe builtin %s", desc.Name(), tag)
	}
	if _, exists := b.builtins[tag]; exists {
		return errors.Wrapf(ErrConfiguration, "builtin protocol feature %s registered twice", tag)
	}
	if err := b.add(desc); err != nil {
		return err
	}
	b.builtins[tag] = desc.Digest()
	return nil
}

// RegisterCustom adds a feature that isn't part of the builtin set to the catalog being built.
func (b *CatalogBuilder) RegisterCustom(desc Descriptor) error {
	if _, ok := desc.Builtin(); ok {
		return errors.Wrapf(ErrConfiguration, "builtin %s must be registered with RegisterBuiltin", desc.Name())
	}
	return b.add(desc)
}

// RegisterAllBuiltins registers every builtin feature (dependencies first) using the default
// subjective restrictions, unless an override is provided for a tag.
func (b *CatalogBuilder) RegisterAllBuiltins(overrides map[BuiltinFeature]Subjective) error {
	for _, tag := range AllBuiltinFeatures() {
		if err := b.registerBuiltinRecursive(tag, overrides, map[BuiltinFeature]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func (b *CatalogBuilder) registerBuiltinRecursive(
	tag BuiltinFeature, overrides map[BuiltinFeature]Subjective, visiting map[BuiltinFeature]bool,
) error {
	if _, done := b.builtins[tag]; done {
		return nil
	}
	if visiting[tag] {
		return errors.Wrapf(ErrConfiguration, "builtin protocol feature %s has a cyclic dependency", tag)
	}
	visiting[tag] = true

	deps := make([]Digest, 0, len(builtinDefs[tag].dependencies))
	for _, depTag := range builtinDefs[tag].dependencies {
		if err := b.registerBuiltinRecursive(depTag, overrides, visiting); err != nil {
			return err
		}
		deps = append(deps, b.builtins[depTag])
	}

	subjective, ok := overrides[tag]
	if !ok {
		subjective = DefaultBuiltinSubjective(tag)
	}
	return b.RegisterBuiltin(tag, NewBuiltinDescriptor(tag, deps, subjective))
}

func (b *CatalogBuilder) add(desc Descriptor) error {
	digest := desc.Digest()
	if _, exists := b.byDigest[digest]; exists {
		return errors.Wrapf(ErrConfiguration, "protocol feature with digest '%s' registered twice", digest)
	}
	for _, dep := range desc.deps {
		if _, ok := b.byDigest[dep]; !ok {
			return errors.Wrapf(
				ErrConfiguration, "protocol feature %s depends on unknown digest '%s'", desc.Name(), dep,
			)
		}
	}
	b.byDigest[digest] = desc
	b.order = append(b.order, digest)
	return nil
}

// Build returns a read-only snapshot of everything registered so far.
func (b *CatalogBuilder) Build() *Catalog {
	c := &Catalog{
		byDigest: make(map[Digest]Descriptor, len(b.byDigest)),
		builtins: make(map[BuiltinFeature]Digest, len(b.builtins)),
		order:    copyDigests(b.order),
	}
	for k, v := range b.byDigest {
		c.byDigest[k] = v
	}
	for k, v := range b.builtins {
		c.builtins[k] = v
	}
	return c
}
