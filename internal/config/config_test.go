package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"width not multiple of 8", func(c *Config) { c.Width = 1001 }},
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"height not multiple of 8", func(c *Config) { c.Height = 77 }},
		{"zero fps", func(c *Config) { c.FPS = 0 }},
		{"bits per block too low", func(c *Config) { c.BitsPerBlock = 0 }},
		{"bits per block too high", func(c *Config) { c.BitsPerBlock = 4 }},
		{"negative strength", func(c *Config) { c.CoefficientStrength = -1 }},
		{"zero symbol size", func(c *Config) { c.SymbolSize = 0 }},
		{"chunk not multiple of symbol", func(c *Config) { c.ChunkSize = DefaultSymbolSize*3 + 1 }},
		{"overhead below one", func(c *Config) { c.RepairOverhead = 0.5 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("error %v is not ErrInvalid", err)
			}
		})
	}
}

func TestDerivedSizes(t *testing.T) {
	cfg := Default()
	cfg.Width = 64
	cfg.Height = 48
	cfg.BitsPerBlock = 2

	if got := cfg.BlocksPerFrame(); got != 48 {
		t.Fatalf("BlocksPerFrame = %d, want 48", got)
	}
	if got := cfg.BitsPerFrame(); got != 96 {
		t.Fatalf("BitsPerFrame = %d, want 96", got)
	}
	if got := cfg.FrameBytes(); got != 64*48 {
		t.Fatalf("FrameBytes = %d, want %d", got, 64*48)
	}
	if got := cfg.SymbolsPerChunk(); got != DefaultChunkSize/DefaultSymbolSize {
		t.Fatalf("SymbolsPerChunk = %d, want %d", got, DefaultChunkSize/DefaultSymbolSize)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vtape.yaml")
	body := "width: 1280\nheight: 720\nbits_per_block: 2\nworkers: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Width != 1280 || cfg.Height != 720 || cfg.BitsPerBlock != 2 || cfg.Workers != 3 {
		t.Fatalf("loaded values not applied: %+v", cfg)
	}
	// Untouched fields keep their defaults.
	if cfg.ChunkSize != DefaultChunkSize || cfg.FFmpegPath != "ffmpeg" {
		t.Fatalf("defaults lost on load: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
