// Package video drives the external ffmpeg process that turns raw
// grayscale frames into a lossless FFV1/MKV container and back. The
// child's lifetime is scoped to one encode or decode: it is spawned once,
// fed (or drained) linearly, and killed on any early error.
package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/kmirek/vtape/internal/config"
)

// MuxerError reports an external process failure with the tail of its
// stderr, which is where ffmpeg explains itself.
type MuxerError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *MuxerError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MuxerError) Unwrap() error { return e.Err }

// stderrTail keeps the last few KiB of a child's stderr for diagnostics.
type stderrTail struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const tailLimit = 8 * 1024

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if t.buf.Len() > tailLimit {
		b := t.buf.Bytes()
		trimmed := append([]byte(nil), b[len(b)-tailLimit:]...)
		t.buf.Reset()
		t.buf.Write(trimmed)
	}
	return len(p), nil
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// MuxArgs builds the ffmpeg argument list for muxing raw gray frames from
// stdin into an FFV1 MKV at outputPath.
func MuxArgs(cfg config.Config, outputPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "gray",
		"-video_size", strconv.Itoa(cfg.Width) + "x" + strconv.Itoa(cfg.Height),
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", "pipe:0",
		"-c:v", "ffv1",
		"-level", "3",
		"-y",
		outputPath,
	}
}

// DemuxArgs builds the ffmpeg argument list for decoding a container back
// into raw gray frames on stdout.
func DemuxArgs(cfg config.Config, inputPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"pipe:1",
	}
}

// Muxer is the frame sink backed by an ffmpeg child process.
type Muxer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *stderrTail
}

// NewMuxer spawns ffmpeg ready to receive frames on stdin.
func NewMuxer(ctx context.Context, cfg config.Config, outputPath string) (*Muxer, error) {
	cmd := exec.CommandContext(ctx, cfg.FFmpegPath, MuxArgs(cfg, outputPath)...)
	tail := &stderrTail{}
	cmd.Stderr = tail

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open muxer stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &MuxerError{Op: "failed to start muxer", Err: err}
	}
	return &Muxer{cmd: cmd, stdin: stdin, stderr: tail}, nil
}

// Write feeds raw frame bytes to the child.
func (m *Muxer) Write(p []byte) (int, error) {
	n, err := m.stdin.Write(p)
	if err != nil {
		return n, &MuxerError{Op: "failed to write frame to muxer", Err: err, Stderr: m.stderr.String()}
	}
	return n, nil
}

// Close signals end-of-stream and waits for the container to finalize.
func (m *Muxer) Close() error {
	if err := m.stdin.Close(); err != nil {
		m.Kill()
		return &MuxerError{Op: "failed to close muxer stdin", Err: err, Stderr: m.stderr.String()}
	}
	if err := m.cmd.Wait(); err != nil {
		return &MuxerError{Op: "muxer exited abnormally", Err: err, Stderr: m.stderr.String()}
	}
	return nil
}

// Kill terminates the child without waiting for a clean shutdown. Safe to
// call after Close.
func (m *Muxer) Kill() {
	if m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
}

// Demuxer is the frame source backed by an ffmpeg child process.
type Demuxer struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *stderrTail
}

// NewDemuxer spawns ffmpeg decoding the container at inputPath to raw
// frames on stdout.
func NewDemuxer(ctx context.Context, cfg config.Config, inputPath string) (*Demuxer, error) {
	cmd := exec.CommandContext(ctx, cfg.FFmpegPath, DemuxArgs(cfg, inputPath)...)
	tail := &stderrTail{}
	cmd.Stderr = tail

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open demuxer stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &MuxerError{Op: "failed to start demuxer", Err: err}
	}
	return &Demuxer{cmd: cmd, stdout: stdout, stderr: tail}, nil
}

// Read pulls raw frame bytes from the child.
func (d *Demuxer) Read(p []byte) (int, error) {
	return d.stdout.Read(p)
}

// Close waits for the child and surfaces a non-zero exit.
func (d *Demuxer) Close() error {
	// Drain whatever is left so the child is not blocked on a full pipe.
	_, _ = io.Copy(io.Discard, d.stdout)
	if err := d.cmd.Wait(); err != nil {
		return &MuxerError{Op: "demuxer exited abnormally", Err: err, Stderr: d.stderr.String()}
	}
	return nil
}

// Kill terminates the child without draining.
func (d *Demuxer) Kill() {
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
		_ = d.cmd.Wait()
	}
}
