package debug

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDumpsAreNoOpsWhenDisabled(t *testing.T) {
	SetEnabled(false)
	dir := filepath.Join(t.TempDir(), "dumps")
	if err := DumpBytes(dir, "stream.bin", []byte{1, 2, 3}); err != nil {
		t.Fatalf("DumpBytes failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("disabled dump created the directory")
	}
}

func TestDumpBytesWritesWhenEnabled(t *testing.T) {
	SetEnabled(true)
	defer InitFromEnv()

	dir := filepath.Join(t.TempDir(), "dumps")
	if err := DumpBytes(dir, "stream.bin", []byte{1, 2, 3}); err != nil {
		t.Fatalf("DumpBytes failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "stream.bin"))
	if err != nil {
		t.Fatalf("dump missing: %v", err)
	}
	if len(data) != 3 {
		t.Fatalf("dump has %d bytes, want 3", len(data))
	}
}

func TestDumpFrameNamesByGeometry(t *testing.T) {
	SetEnabled(true)
	defer InitFromEnv()

	dir := filepath.Join(t.TempDir(), "dumps")
	if err := DumpFrame(dir, 3, 64, 48, make([]byte, 64*48)); err != nil {
		t.Fatalf("DumpFrame failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "frame-000003-64x48.gray")); err != nil {
		t.Fatalf("expected dump file: %v", err)
	}
}

func TestInitFromLogLevel(t *testing.T) {
	t.Setenv("VTAPE_DEBUG", "")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("VTAPE_DEBUG")
	os.Unsetenv("LOG_LEVEL")

	InitFromLogLevel("debug")
	if !Enabled() {
		t.Fatal("debug log level did not enable dumps")
	}
	InitFromLogLevel("info")
	if Enabled() {
		t.Fatal("info log level left dumps enabled")
	}
}
