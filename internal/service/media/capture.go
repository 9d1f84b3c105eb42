// Package media defines the interface for local audio capture adapters
// and the guard that enforces scoped acquisition and release.
package media

import (
	"context"
	"errors"
	"io"
)

// Errors returned by capture acquisition.
var (
	// ErrPermissionDenied indicates the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable indicates no compatible audio input device exists.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
)

// Constraints describes required capture quality settings.
type Constraints struct {
	SampleRateHz     int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultConstraints returns the capture settings used for voice calls.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRateHz:     8000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// Source defines the interface for capture backends (ffmpeg, mock, ...).
type Source interface {
	// Open starts capturing PCM audio under the given constraints.
	// The returned reader yields raw little-endian 16-bit PCM.
	Open(ctx context.Context, c Constraints) (io.ReadCloser, error)
}
