//go:build !linux

package audio

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrPulseUnsupported is returned on platforms without PulseAudio.
var ErrPulseUnsupported = errors.New("audio: pulse backend is only available on linux")

// PulseSource is unavailable on this platform.
type PulseSource struct{}

// NewPulseSource always fails on this platform.
func NewPulseSource(Config, zerolog.Logger) (*PulseSource, error) {
	return nil, ErrPulseUnsupported
}

func (s *PulseSource) Devices() ([]Device, error)           { return nil, ErrPulseUnsupported }
func (s *PulseSource) UseDevice(*Device) error              { return ErrPulseUnsupported }
func (s *PulseSource) DeviceName() string                   { return "" }
func (s *PulseSource) Run(context.Context, FrameFunc) error { return ErrPulseUnsupported }
func (s *PulseSource) Close() error                         { return nil }
