// Package tsconfig loads and validates engine configuration. Grounded
// on the teacher's config_validator.go: defaulting-and-clamping checks
// over a plain struct, returning wrapped errors rather than panicking.
// Unlike the teacher, configuration is read from YAML
// (gopkg.in/yaml.v3) rather than constructed in code, since an engine
// meant to be driven from cmd/timesteward needs a file format.
package tsconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultIterationLimit bounds same-instant causal cascades (spec
	// §4.6) before the driver reports ErrIterationLimitExceeded.
	DefaultIterationLimit = 1000

	// DefaultRetentionWindow is the default EngineConfig.RetentionWindow,
	// in Time units (spec §4.7). No other package reads RetentionWindow;
	// timelines keep their whole history.
	DefaultRetentionWindow = 0 // 0 == retain everything

	// DefaultRNGDomain is the default EngineConfig.RNGDomain. No other
	// package reads RNGDomain; prng streams are seeded from event and
	// predictor identities alone.
	DefaultRNGDomain = "timesteward"
)

// EngineConfig bounds the driver's invalidation cascade and carries a
// retention window and an RNG domain-separation label (spec §4.6,
// §4.7, §9). engine.New passes only IterationLimit on; the other two
// fields are loaded and validated but not used.
type EngineConfig struct {
	IterationLimit  int    `yaml:"iteration_limit"`
	RetentionWindow int64  `yaml:"retention_window"`
	RNGDomain       string `yaml:"rng_domain"`
}

// Default returns the configuration used when the caller supplies
// none, matching the teacher's pattern of named Default* constants
// rather than zero-value structs silently taking effect.
func Default() EngineConfig {
	return EngineConfig{
		IterationLimit:  DefaultIterationLimit,
		RetentionWindow: DefaultRetentionWindow,
		RNGDomain:       DefaultRNGDomain,
	}
}

// Load reads and validates an EngineConfig from a YAML file at path.
func Load(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("tsconfig: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates an EngineConfig from in-memory YAML, defaulting
// unset fields the way the teacher's ValidateConfig defaults zero
// fields in place.
func Parse(data []byte) (EngineConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("tsconfig: parse: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// Validate applies structural checks to cfg and fills defaults where
// the zero value isn't a legal setting.
func Validate(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("tsconfig: config is nil")
	}
	if cfg.IterationLimit < 0 {
		return fmt.Errorf("tsconfig: iteration_limit must be non-negative, got %d", cfg.IterationLimit)
	}
	if cfg.IterationLimit == 0 {
		cfg.IterationLimit = DefaultIterationLimit
	}
	if cfg.RetentionWindow < 0 {
		return fmt.Errorf("tsconfig: retention_window must be non-negative, got %d", cfg.RetentionWindow)
	}
	if cfg.RNGDomain == "" {
		cfg.RNGDomain = DefaultRNGDomain
	}
	return nil
}
