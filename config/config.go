package config

import (
	"bytes"
	"io/ioutil"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/loomnetwork/featurechain/db"
	"github.com/loomnetwork/featurechain/features"
)

type Config struct {
	RootDir        string
	DBName         string
	DBBackend      string
	DBCacheSizeMeg int
	ChainID        string
	// Unix time of the genesis block, every node on the chain must use the same value.
	GenesisTime int64
	// Milliseconds between blocks.
	BlockInterval     int64
	SnapshotCacheSize int
	QueryServerHost   string
	LogLevel          string
	LogDestination    string
	Features          *FeaturesConfig
}

type FeaturesConfig struct {
	// Path to a TOML file with custom protocol feature definitions, relative to RootDir.
	CustomFeaturesFile string
	// Allows scheduling features for activation without preactivating them first, must never be
	// enabled on production nodes.
	AllowBypass bool
	// Codenames of builtin features this node never preactivates in the blocks it produces.
	ProducerOnly []string
}

func DefaultFeaturesConfig() *FeaturesConfig {
	return &FeaturesConfig{
		CustomFeaturesFile: "",
		AllowBypass:        false,
	}
}

// Clone returns a deep clone of the config.
func (c *FeaturesConfig) Clone() *FeaturesConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.ProducerOnly != nil {
		clone.ProducerOnly = append([]string(nil), c.ProducerOnly...)
	}
	return &clone
}

// BuiltinOverrides returns the subjective restrictions that differ from the builtin defaults.
func (c *FeaturesConfig) BuiltinOverrides() (map[features.BuiltinFeature]features.Subjective, error) {
	overrides := make(map[features.BuiltinFeature]features.Subjective, len(c.ProducerOnly))
	for _, codename := range c.ProducerOnly {
		tag, ok := features.ParseBuiltinFeature(codename)
		if !ok {
			return nil, errors.Wrapf(features.ErrConfiguration, "unknown builtin protocol feature %s", codename)
		}
		subjective := features.DefaultBuiltinSubjective(tag)
		subjective.ProducerOnly = true
		overrides[tag] = subjective
	}
	return overrides, nil
}

func DefaultConfig() *Config {
	return &Config{
		RootDir:           ".",
		DBName:            "featurechain",
		DBBackend:         db.GoLevelDBBackend,
		DBCacheSizeMeg:    64,
		ChainID:           "default",
		GenesisTime:       0,
		BlockInterval:     1000,
		SnapshotCacheSize: 128,
		QueryServerHost:   "tcp://127.0.0.1:9999",
		LogLevel:          "info",
		LogDestination:    "",
		Features:          DefaultFeaturesConfig(),
	}
}

// Clone returns a deep clone of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Features = c.Features.Clone()
	return &clone
}

func (c *Config) fullPath(p string) string {
	full, err := filepath.Abs(path.Join(c.RootDir, p))
	if err != nil {
		panic(err)
	}
	return full
}

func (c *Config) RootPath() string {
	return c.fullPath(".")
}

func (c *Config) DBPath() string {
	return c.fullPath("data")
}

func (c *Config) BlockIntervalDuration() time.Duration {
	return time.Duration(c.BlockInterval) * time.Millisecond
}

func (c *Config) GenesisTimestamp() time.Time {
	return time.Unix(c.GenesisTime, 0)
}

// LoadCatalog builds the protocol feature catalog: every builtin feature (with the configured
// subjective overrides) followed by the custom features file, if there is one.
func (c *Config) LoadCatalog() (*features.Catalog, error) {
	overrides, err := c.Features.BuiltinOverrides()
	if err != nil {
		return nil, err
	}
	b := features.NewCatalogBuilder()
	if err := b.RegisterAllBuiltins(overrides); err != nil {
		return nil, err
	}
	if c.Features.CustomFeaturesFile != "" {
		custom, err := features.LoadCustomFeatures(c.fullPath(c.Features.CustomFeaturesFile))
		if err != nil {
			return nil, errors.Wrap(err, "failed to load custom protocol features")
		}
		if err := b.RegisterCustomFeatures(custom); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FEATURECHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ParseConfig loads featurechain.yaml from the current directory (or ./config), any setting
// can be overridden by a FEATURECHAIN_ prefixed env var.
func ParseConfig() (*Config, error) {
	v := newViper()
	v.SetConfigName("featurechain")                // name of config file (without extension)
	v.AddConfigPath("./")                          // search root directory
	v.AddConfigPath(filepath.Join("./", "config")) // search root directory /config

	// a missing config file just means the defaults are used
	v.ReadInConfig()
	conf := DefaultConfig()
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// ParseConfigFrom loads the config from the named yaml file (without extension) in the given dir.
func ParseConfigFrom(dir, name string) (*Config, error) {
	v := newViper()
	v.SetConfigName(name)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	conf := DefaultConfig()
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) WriteToFile(filename string) error {
	var buf bytes.Buffer
	cfgTemplate, err := parseCfgTemplate()
	if err != nil {
		return err
	}
	if err := cfgTemplate.Execute(&buf, c); err != nil {
		return err
	}
	return ioutil.WriteFile(filename, buf.Bytes(), 0644)
}

var cfgTemplate *template.Template

func parseCfgTemplate() (*template.Template, error) {
	if cfgTemplate != nil {
		return cfgTemplate, nil
	}

	var err error
	cfgTemplate, err = template.New("featurechainYamlTemplate").Parse(defaultYamlTemplate)
	if err != nil {
		return nil, err
	}
	return cfgTemplate, nil
}

const defaultYamlTemplate = `# featurechain node config file

#
# Chain-wide settings that must not change after the chain is initialized.
#

ChainID: "{{ .ChainID }}"
GenesisTime: {{ .GenesisTime }}
BlockInterval: {{ .BlockInterval }}

#
# Protocol features
#

Features:
  # TOML file with custom protocol feature definitions, relative to RootDir.
  CustomFeaturesFile: "{{ .Features.CustomFeaturesFile }}"
  # Allows activating features without preactivation, only for test & bootstrap nodes.
  AllowBypass: {{ .Features.AllowBypass }}
  # Builtin features this node never preactivates in the blocks it produces.
  ProducerOnly:{{ range .Features.ProducerOnly }}
    - "{{ . }}"{{ end }}

#
# Query server
#

QueryServerHost: "{{ .QueryServerHost }}"

#
# Logging
#

LogLevel: "{{ .LogLevel }}"
LogDestination: "{{ .LogDestination }}"

# These should pretty much never be changed
RootDir: "{{ .RootDir }}"
DBName: "{{ .DBName }}"
DBBackend: "{{ .DBBackend }}"
DBCacheSizeMeg: {{ .DBCacheSizeMeg }}
SnapshotCacheSize: {{ .SnapshotCacheSize }}
`
