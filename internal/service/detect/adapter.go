// Package detect defines the interface for language detection adapters.
package detect

import (
	"context"
	"errors"
)

// ErrServiceUnavailable indicates the detection provider could not be reached
// or returned an unusable response. Callers treat detection as best-effort.
var ErrServiceUnavailable = errors.New("detection service unavailable")

// Result is a single detection outcome for a transcript fragment.
type Result struct {
	Language   string  // BCP 47 language tag, e.g. "en", "fr"
	Confidence float64 // 0.0 to 1.0
}

// Adapter defines the interface for language detection providers.
type Adapter interface {
	// Detect identifies the language of the given transcript text.
	// The preference hint is the session's current language.
	Detect(ctx context.Context, text, preference string) (Result, error)
}
