// Package debug gates diagnostic dumps of frames and packets. Enabled via
// VTAPE_DEBUG=true or LOG_LEVEL=debug so it works in tests that never
// touch the CLI bootstrap.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	enabled bool
	mu      sync.RWMutex
)

func init() {
	InitFromEnv()
}

// Enabled returns whether debug dumps are enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetEnabled sets whether debug dumps are enabled.
func SetEnabled(value bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = value
}

// InitFromEnv initializes the flag from the environment.
func InitFromEnv() {
	if os.Getenv("VTAPE_DEBUG") == "true" || os.Getenv("LOG_LEVEL") == "debug" {
		SetEnabled(true)
		return
	}
	SetEnabled(false)
}

// InitFromLogLevel enables dumps for a debug log level unless the
// environment already decided.
func InitFromLogLevel(logLevel string) {
	if os.Getenv("VTAPE_DEBUG") == "" && os.Getenv("LOG_LEVEL") == "" {
		SetEnabled(logLevel == "debug")
	}
}

// DumpFrame writes one raw grayscale frame to dir for inspection with
// ffplay or similar. A no-op unless debug is enabled.
func DumpFrame(dir string, index, width, height int, pix []byte) error {
	if !Enabled() {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump dir: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("frame-%06d-%dx%d.gray", index, width, height))
	if err := os.WriteFile(name, pix, 0o644); err != nil {
		return fmt.Errorf("failed to dump frame: %w", err)
	}
	return nil
}

// DumpBytes writes an arbitrary byte stream (for example the extracted
// packet stream) to dir. A no-op unless debug is enabled.
func DumpBytes(dir, name string, data []byte) error {
	if !Enabled() {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to dump %s: %w", name, err)
	}
	return nil
}
