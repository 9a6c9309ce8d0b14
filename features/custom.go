package features

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// CustomFeature is the on-disk definition of a feature that isn't part of the builtin set.
//
// Example:
//
//   [[feature]]
//   name = "FAST_FINALITY"
//   description = "Enables the fast finality rules."
//   dependencies = ["PREACTIVATE_FEATURE"]
//   earliest_activation = 2020-03-01T00:00:00Z
type CustomFeature struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	// Each dependency is either a builtin codename, the name of a custom feature defined earlier
	// in the same file, or a hex encoded digest.
	Dependencies       []string  `toml:"dependencies"`
	ProducerOnly       bool      `toml:"producer_only"`
	EarliestActivation time.Time `toml:"earliest_activation"`
}

type customFeatureFile struct {
	Features []CustomFeature `toml:"feature"`
}

// LoadCustomFeatures reads custom feature definitions from a TOML file.
func LoadCustomFeatures(path string) ([]CustomFeature, error) {
	var file customFeatureFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to load custom features from %s", path)
	}
	return file.Features, nil
}

// ParseCustomFeatures parses custom feature definitions from a TOML document.
func ParseCustomFeatures(doc string) ([]CustomFeature, error) {
	var file customFeatureFile
	if _, err := toml.Decode(doc, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse custom features")
	}
	return file.Features, nil
}

// RegisterCustomFeatures resolves the dependencies of each custom feature and registers it.
func (b *CatalogBuilder) RegisterCustomFeatures(custom []CustomFeature) error {
	byName := make(map[string]Digest, len(custom))
	for _, cf := range custom {
		if cf.Name == "" {
			return errors.Wrap(ErrConfiguration, "custom protocol feature without a name")
		}
		if _, dup := byName[cf.Name]; dup {
			return errors.Wrapf(ErrConfiguration, "custom protocol feature %s defined twice", cf.Name)
		}
		deps := make([]Digest, 0, len(cf.Dependencies))
		for _, ref := range cf.Dependencies {
			dep, err := b.resolveReference(ref, byName)
			if err != nil {
				return errors.Wrapf(err, "custom protocol feature %s", cf.Name)
			}
			deps = append(deps, dep)
		}
		desc := NewCustomDescriptor(cf.Name, cf.Description, deps, Subjective{
			ProducerOnly:                  cf.ProducerOnly,
			EarliestAllowedActivationTime: cf.EarliestActivation,
		})
		if err := b.RegisterCustom(desc); err != nil {
			return err
		}
		byName[cf.Name] = desc.Digest()
	}
	return nil
}

func (b *CatalogBuilder) resolveReference(ref string, byName map[string]Digest) (Digest, error) {
	if tag, ok := ParseBuiltinFeature(ref); ok {
		d, registered := b.builtins[tag]
		if !registered {
			return ZeroDigest, errors.Wrapf(ErrConfiguration, "builtin %s is not registered", tag)
		}
		return d, nil
	}
	if d, ok := byName[ref]; ok {
		return d, nil
	}
	d, err := ParseDigest(ref)
	if err != nil {
		return ZeroDigest, errors.Wrapf(ErrConfiguration, "unresolvable dependency %q", ref)
	}
	// the closed world check happens when the descriptor is added
	return d, nil
}

// NewCatalog builds a catalog containing all the builtin features followed by the given custom ones.
func NewCatalog(custom []CustomFeature) (*Catalog, error) {
	b := NewCatalogBuilder()
	if err := b.RegisterAllBuiltins(nil); err != nil {
		return nil, err
	}
	if err := b.RegisterCustomFeatures(custom); err != nil {
		return nil, err
	}
	return b.Build(), nil
}
