// Package ffmpeg provides a microphone capture source backed by an ffmpeg
// subprocess. It emits raw little-endian 16-bit PCM on stdout.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"voice-session-orchestrator/internal/service/media"
)

// Source implements media.Source using ffmpeg.
type Source struct {
	// Device overrides the platform default input device when non-empty.
	Device string
}

// New creates a new ffmpeg capture source.
func New(device string) *Source {
	return &Source{Device: device}
}

// Open starts an ffmpeg subprocess capturing from the default (or configured)
// input device.
func (s *Source) Open(ctx context.Context, c media.Constraints) (io.ReadCloser, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", media.ErrDeviceUnavailable)
	}

	args, err := captureArgs(runtime.GOOS, s.Device, c)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg capture: %w", media.ErrDeviceUnavailable)
	}

	return &capture{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
}

func captureArgs(goos, device string, c media.Constraints) ([]string, error) {
	common := []string{"-hide_banner", "-loglevel", "error"}
	tail := []string{
		"-ac", fmt.Sprintf("%d", c.Channels),
		"-ar", fmt.Sprintf("%d", c.SampleRateHz),
		"-f", "s16le", "-",
	}

	switch goos {
	case "darwin":
		in := ":0"
		if device != "" {
			in = device
		}
		return append(append(common, "-f", "avfoundation", "-i", in), tail...), nil
	case "linux":
		in := "default"
		if device != "" {
			in = device
		}
		return append(append(common, "-f", "pulse", "-i", in), tail...), nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s: %w", goos, media.ErrDeviceUnavailable)
	}
}

type capture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *strings.Builder
}

func (m *capture) Read(p []byte) (int, error) {
	if m == nil || m.stdout == nil {
		return 0, io.EOF
	}
	n, err := m.stdout.Read(p)
	if err != nil && n == 0 {
		// ffmpeg exits immediately when the OS refuses device access;
		// surface that as a permission failure rather than a plain EOF.
		if msg := m.stderr.String(); strings.Contains(strings.ToLower(msg), "permission") ||
			strings.Contains(strings.ToLower(msg), "not authorized") {
			return 0, fmt.Errorf("%s: %w", strings.TrimSpace(msg), media.ErrPermissionDenied)
		}
	}
	return n, err
}

func (m *capture) Close() error {
	if m == nil {
		return nil
	}
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	if m.stdout != nil {
		return m.stdout.Close()
	}
	return nil
}
