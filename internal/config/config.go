// Package config loads the catalog configuration: a YAML file validated
// against an embedded CUE schema, with environment variable overrides.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/quaketools/evcat/internal/catalog"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix is prepended to every environment override, so tolerance is
// overridden by EVCAT_TOLERANCE and so on.
const EnvPrefix = "EVCAT_"

// ExtraField declares one user-defined catalog column.
type ExtraField struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default string `yaml:"default,omitempty"`
}

// Config is the full catalog configuration.
type Config struct {
	// DBFile is the path of the SQLite catalog file.
	DBFile string `yaml:"db_file" env:"DB_FILE"`

	// OverwritePolicy selects how changed events revise stored ones:
	// "overwrite" (in place) or "version" (append).
	OverwritePolicy string `yaml:"overwrite_policy" env:"OVERWRITE_POLICY"`

	// Tolerance is the absolute numeric tolerance for reconciliation
	// comparisons. Zero means exact.
	Tolerance float64 `yaml:"tolerance" env:"TOLERANCE"`

	// CopyExtras carries extra-field values forward when the "version"
	// policy appends a new version.
	CopyExtras bool `yaml:"copy_extras" env:"COPY_EXTRAS"`

	// ExtraFields declares additional columns beyond the core set. Fixed
	// at catalog creation time.
	ExtraFields []ExtraField `yaml:"extra_fields,omitempty" env:"-"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBFile:          "evcat.sqlite",
		OverwritePolicy: "version",
	}
}

// Load reads and validates the YAML file at path, then applies environment
// overrides. An empty path loads defaults plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := validate(path, data); err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("environment overrides: %w", err)
	}

	if cfg.OverwritePolicy != "overwrite" && cfg.OverwritePolicy != "version" {
		return Config{}, catalog.SchemaError(
			fmt.Sprintf("overwrite_policy must be overwrite or version, got %q", cfg.OverwritePolicy),
			"overwrite_policy")
	}
	if cfg.Tolerance < 0 {
		return Config{}, catalog.SchemaError("tolerance must not be negative", "tolerance")
	}
	return cfg, nil
}

// validate unifies the YAML document with the embedded CUE schema. This
// catches misspelled keys, wrong value types and out-of-range enums with a
// position-bearing message before anything touches the catalog.
func validate(path string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal schema: %w", err)
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := schema.Unify(doc).Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	return nil
}

// Schema converts the declared extra fields into a catalog schema.
func (c Config) Schema() (*catalog.Schema, error) {
	extras := make([]catalog.FieldDef, 0, len(c.ExtraFields))
	for _, f := range c.ExtraFields {
		ft, err := catalog.ParseFieldType(f.Type)
		if err != nil {
			return nil, catalog.SchemaError(err.Error(), f.Name)
		}
		def := catalog.FieldDef{Name: f.Name, Type: ft, Nullable: true, Extra: true}
		if f.Default != "" {
			v, err := catalog.Coerce(ft, f.Default)
			if err != nil {
				return nil, catalog.TypeError("bad default", f.Name, "default", f.Default)
			}
			def.Default = v
		}
		extras = append(extras, def)
	}
	return catalog.NewSchema(extras)
}

const sampleConfig = `# evcat catalog configuration.

# Path of the SQLite catalog file.
db_file: evcat.sqlite

# How a changed event revises its stored counterpart:
#   overwrite - replace core fields of the latest version in place
#   version   - append a new version, keeping history
overwrite_policy: version

# Absolute tolerance for numeric comparisons during reconciliation.
tolerance: 0.0

# Carry extra-field values forward when versioning (default: reset to
# declared defaults).
copy_extras: false

# Additional columns beyond the core set. Fixed once the catalog exists.
#extra_fields:
#  - name: nobs
#    type: integer
#    default: "0"
#  - name: region
#    type: text
`

// WriteSample writes a commented sample configuration. Refuses to overwrite
// an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
