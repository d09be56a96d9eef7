// Package config holds the codec configuration shared by encode and decode.
//
// Width, height, bits per block, coefficient strength, symbol size and chunk
// size must match on both sides of a transfer; the remaining fields are
// local operational knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every configuration validation failure.
var ErrInvalid = errors.New("invalid config")

// Defaults target a 4K grayscale stream with a conservative one bit per
// block and 2x fountain overhead.
const (
	DefaultWidth               = 3840
	DefaultHeight              = 2160
	DefaultFPS                 = 30
	DefaultBitsPerBlock        = 1
	DefaultCoefficientStrength = 150.0
	DefaultChunkSize           = 1 << 20
	DefaultRepairOverhead      = 2.0
	DefaultSymbolSize          = 256
)

// BlockSize is the pixel dimension of one DCT block.
const BlockSize = 8

// Config is the immutable set of options consumed by both pipeline
// directions.
type Config struct {
	Width               int     `yaml:"width"`
	Height              int     `yaml:"height"`
	FPS                 int     `yaml:"fps"`
	BitsPerBlock        int     `yaml:"bits_per_block"`
	CoefficientStrength float64 `yaml:"coefficient_strength"`
	ChunkSize           int     `yaml:"chunk_size"`
	RepairOverhead      float64 `yaml:"repair_overhead"`
	SymbolSize          int     `yaml:"symbol_size"`

	// Operational knobs; these never need to match across encode/decode.
	FFmpegPath  string `yaml:"ffmpeg_path"`
	Workers     int    `yaml:"workers"`
	MetricsAddr string `yaml:"metrics_addr"`
	AuditPath   string `yaml:"audit_path"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Width:               DefaultWidth,
		Height:              DefaultHeight,
		FPS:                 DefaultFPS,
		BitsPerBlock:        DefaultBitsPerBlock,
		CoefficientStrength: DefaultCoefficientStrength,
		ChunkSize:           DefaultChunkSize,
		RepairOverhead:      DefaultRepairOverhead,
		SymbolSize:          DefaultSymbolSize,
		FFmpegPath:          "ffmpeg",
		Workers:             runtime.NumCPU(),
	}
}

// Load reads a YAML config file and merges it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the structural constraints the frame and fountain layers
// depend on.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Width%BlockSize != 0 {
		return fmt.Errorf("%w: width %d must be a positive multiple of %d", ErrInvalid, c.Width, BlockSize)
	}
	if c.Height <= 0 || c.Height%BlockSize != 0 {
		return fmt.Errorf("%w: height %d must be a positive multiple of %d", ErrInvalid, c.Height, BlockSize)
	}
	if c.FPS < 1 {
		return fmt.Errorf("%w: fps %d must be at least 1", ErrInvalid, c.FPS)
	}
	if c.BitsPerBlock < 1 || c.BitsPerBlock > 3 {
		return fmt.Errorf("%w: bits_per_block %d must be 1, 2 or 3", ErrInvalid, c.BitsPerBlock)
	}
	if c.CoefficientStrength <= 0 {
		return fmt.Errorf("%w: coefficient_strength %v must be positive", ErrInvalid, c.CoefficientStrength)
	}
	if c.SymbolSize <= 0 {
		return fmt.Errorf("%w: symbol_size %d must be positive", ErrInvalid, c.SymbolSize)
	}
	if c.ChunkSize <= 0 || c.ChunkSize%c.SymbolSize != 0 {
		return fmt.Errorf("%w: chunk_size %d must be a positive multiple of symbol_size %d", ErrInvalid, c.ChunkSize, c.SymbolSize)
	}
	if c.RepairOverhead < 1.0 {
		return fmt.Errorf("%w: repair_overhead %v must be at least 1.0", ErrInvalid, c.RepairOverhead)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d must be at least 1", ErrInvalid, c.Workers)
	}
	return nil
}

// BlocksPerFrame returns the number of 8x8 blocks in one frame.
func (c Config) BlocksPerFrame() int {
	return (c.Width / BlockSize) * (c.Height / BlockSize)
}

// BitsPerFrame returns the payload bit capacity of one frame.
func (c Config) BitsPerFrame() int {
	return c.BlocksPerFrame() * c.BitsPerBlock
}

// FrameBytes returns the size of one raw grayscale frame in bytes.
func (c Config) FrameBytes() int {
	return c.Width * c.Height
}

// SymbolsPerChunk returns k, the source-symbol count of a full chunk.
func (c Config) SymbolsPerChunk() int {
	return c.ChunkSize / c.SymbolSize
}
