package tsconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFillsDefaultsForZeroFields(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.IterationLimit != DefaultIterationLimit {
		t.Errorf("IterationLimit = %d, want %d", cfg.IterationLimit, DefaultIterationLimit)
	}
	if cfg.RNGDomain != DefaultRNGDomain {
		t.Errorf("RNGDomain = %q, want %q", cfg.RNGDomain, DefaultRNGDomain)
	}
}

func TestParseKeepsExplicitFields(t *testing.T) {
	cfg, err := Parse([]byte("iteration_limit: 50\nretention_window: 200\nrng_domain: custom\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.IterationLimit != 50 {
		t.Errorf("IterationLimit = %d, want 50", cfg.IterationLimit)
	}
	if cfg.RetentionWindow != 200 {
		t.Errorf("RetentionWindow = %d, want 200", cfg.RetentionWindow)
	}
	if cfg.RNGDomain != "custom" {
		t.Errorf("RNGDomain = %q, want %q", cfg.RNGDomain, "custom")
	}
}

func TestParseRejectsNegativeIterationLimit(t *testing.T) {
	if _, err := Parse([]byte("iteration_limit: -1\n")); err == nil {
		t.Error("Parse with negative iteration_limit did not fail")
	}
}

func TestParseRejectsNegativeRetentionWindow(t *testing.T) {
	if _, err := Parse([]byte("retention_window: -1\n")); err == nil {
		t.Error("Parse with negative retention_window did not fail")
	}
}

func TestValidateRejectsNilConfig(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Error("Validate(nil) did not fail")
	}
}

func TestLoadReadsAFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte("iteration_limit: 7\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IterationLimit != 7 {
		t.Errorf("IterationLimit = %d, want 7", cfg.IterationLimit)
	}
}

func TestLoadFailsOnAMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load on a missing file did not fail")
	}
}
