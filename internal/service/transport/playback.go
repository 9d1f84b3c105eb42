package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ErrPlaybackFailed indicates the remote audio could not be played after a retry.
var ErrPlaybackFailed = errors.New("audio playback failed")

// Sink plays remote audio payloads. Open returns a writer for raw mu-law
// frames; closing the writer stops playback.
type Sink interface {
	Open(ctx context.Context, sampleRateHz int) (io.WriteCloser, error)
}

// FFplaySink streams audio to a local ffplay process via stdin.
type FFplaySink struct{}

func NewFFplaySink() *FFplaySink {
	return &FFplaySink{}
}

func (s *FFplaySink) Open(ctx context.Context, sampleRateHz int) (io.WriteCloser, error) {
	bin, err := exec.LookPath("ffplay")
	if err != nil {
		return nil, fmt.Errorf("ffplay not found: %w", ErrPlaybackFailed)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner",
		"-loglevel", "error",
		"-nodisp",
		"-autoexit",
		"-f", "mulaw",
		"-ar", fmt.Sprintf("%d", sampleRateHz),
		"-i", "pipe:0",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffplay stdin: %w", ErrPlaybackFailed)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffplay start: %w", ErrPlaybackFailed)
	}

	return &playbackWriter{stdin: stdin, cmd: cmd}, nil
}

type playbackWriter struct {
	stdin io.WriteCloser
	cmd   *exec.Cmd
	once  sync.Once
}

func (w *playbackWriter) Write(p []byte) (int, error) {
	return w.stdin.Write(p)
}

func (w *playbackWriter) Close() error {
	w.once.Do(func() {
		w.stdin.Close()
		if w.cmd.Process != nil {
			w.cmd.Process.Kill()
		}
		w.cmd.Wait()
	})
	return nil
}
