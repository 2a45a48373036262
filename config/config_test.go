package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Derived.TicksPerSeason != 90 {
		t.Errorf("TicksPerSeason = %d, want 90", cfg.Derived.TicksPerSeason)
	}
	if cfg.Derived.TicksPerYear != 360 {
		t.Errorf("TicksPerYear = %d, want 360", cfg.Derived.TicksPerYear)
	}
	if got := cfg.Resource.SeasonMultipliers["summer"]["plant"]; got != 2.5 {
		t.Errorf("summer plant multiplier = %v, want 2.5", got)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	data := []byte("seed: 7\nclock:\n  ticks_per_day: 4\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Seed != 7 {
		t.Errorf("Seed = %d, want 7", cfg.Seed)
	}
	if cfg.Clock.TicksPerDay != 4 {
		t.Errorf("TicksPerDay = %d, want 4", cfg.Clock.TicksPerDay)
	}
	// Untouched fields keep their defaults
	if cfg.Clock.DaysPerSeason != 90 {
		t.Errorf("DaysPerSeason = %d, want 90", cfg.Clock.DaysPerSeason)
	}
	if cfg.Derived.TicksPerSeason != 360 {
		t.Errorf("TicksPerSeason = %d, want 360", cfg.Derived.TicksPerSeason)
	}
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cfg := MustDefaults()
	cfg.Parameters.StarvThreshold = ParamConfig{Value: 5, Min: 2.2, Max: 4.2}
	cfg.Control.Band.InitialMin = 300

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError in %v", err)
	}
}

func TestValidateRejectsFractionsOutOfRange(t *testing.T) {
	tests := []struct {
		field string
		set   func(*Config)
	}{
		{"resource.harvest_base", func(c *Config) { c.Resource.HarvestBase = 1.5 }},
		{"resource.harvest_per_capita", func(c *Config) { c.Resource.HarvestPerCapita = -0.1 }},
		{"resource.bootstrap_fraction", func(c *Config) { c.Resource.BootstrapFraction = 2 }},
		{"demographics.relief_multiplier", func(c *Config) { c.Demographics.ReliefMultiplier = 1.5 }},
		{"demographics.relief_multiplier", func(c *Config) { c.Demographics.ReliefMultiplier = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := MustDefaults()
			tt.set(cfg)
			var cerr *ConfigError
			if err := cfg.Validate(); !errors.As(err, &cerr) || cerr.Field != tt.field {
				t.Errorf("Validate() = %v, want a %s error", err, tt.field)
			}
		})
	}
}

func TestValidateAuditCapacity(t *testing.T) {
	cfg := MustDefaults()
	cfg.Telemetry.AuditCapacity = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when audit capacity is smaller than the band window")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := MustDefaults()
	cfg.Seed = 99
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.Seed != 99 {
		t.Errorf("Seed = %d, want 99", back.Seed)
	}
	if back.Parameters.ReproCooldown != cfg.Parameters.ReproCooldown {
		t.Errorf("ReproCooldown = %+v, want %+v", back.Parameters.ReproCooldown, cfg.Parameters.ReproCooldown)
	}
}
