// Package transcribe provides speech-to-text backends.
//
// Supported backends:
//   - openai: any OpenAI-compatible /audio/transcriptions endpoint
//   - fake: scripted responses, used by tests
//
// Backend failures are classified once, here, into an *Error with a Kind so
// callers never inspect error text.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaz8081/gostt-relay/internal/config"
)

// ErrEmptyAudio is returned when Transcribe is called without a payload.
var ErrEmptyAudio = errors.New("transcribe: empty audio payload")

// Backend converts WAV payloads to text.
type Backend interface {
	// Transcribe submits a complete WAV file and returns the raw transcript.
	Transcribe(ctx context.Context, wav []byte) (string, error)
	// Probe reports whether the endpoint is reachable and accepts our key.
	Probe(ctx context.Context) error
}

// New creates a Backend for the configured endpoint.
func New(cfg config.APIConfig) (Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcribe: base url must not be empty")
	}
	return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model,
		WithPrompt(cfg.Prompt),
		WithTimeout(cfg.Timeout),
	)
}
