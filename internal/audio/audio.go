// Package audio provides 16-bit mono PCM capture sources, frame peak
// measurement and WAV encoding.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BytesPerSample is the width of one signed 16-bit little-endian sample.
const BytesPerSample = 2

var (
	// ErrEndOfStream is returned by a Source whose input is exhausted.
	ErrEndOfStream = errors.New("audio: end of stream")
	// ErrDeviceNotFound is returned when a configured device matches nothing.
	ErrDeviceNotFound = errors.New("audio: device not found")
	// ErrDeviceStopped is returned when the platform stops a capture device.
	ErrDeviceStopped = errors.New("audio: capture device stopped")
)

// Frame is one fixed-size block of captured PCM.
type Frame struct {
	Data []byte
	At   time.Time
}

// Samples returns the number of samples in the frame.
func (f Frame) Samples() int {
	return len(f.Data) / BytesPerSample
}

// FrameFunc receives frames in capture order. It is called from the
// source's capture goroutine and must not block for long.
type FrameFunc func(Frame)

// Source produces frames until ctx is cancelled or the input fails.
// Run returns nil after cancellation.
type Source interface {
	Run(ctx context.Context, fn FrameFunc) error
	Close() error
}

// Config describes the capture format shared by all sources.
type Config struct {
	SampleRate uint32
	FrameSize  int    // samples per frame
	Device     string // id or case-insensitive name substring
}

// FrameBytes is the byte length of one frame.
func (c Config) FrameBytes() int {
	return c.FrameSize * BytesPerSample
}

// Device identifies a capture device.
type Device struct {
	ID   string // opaque platform identifier
	Name string
}

// SelectDevice resolves want against devs. An empty want selects the
// system default and returns nil.
func SelectDevice(devs []Device, want string) (*Device, error) {
	if want == "" {
		return nil, nil
	}
	for i := range devs {
		if devs[i].ID == want {
			return &devs[i], nil
		}
	}
	lower := strings.ToLower(want)
	for i := range devs {
		if strings.Contains(strings.ToLower(devs[i].Name), lower) {
			return &devs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, want)
}

// Peak returns the largest absolute sample value in data. A trailing odd
// byte is ignored. Full-scale negative input yields 32768.
func Peak(data []byte) int {
	peak := 0
	for i := 0; i+1 < len(data); i += BytesPerSample {
		s := int(int16(binary.LittleEndian.Uint16(data[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Framer re-chunks arbitrary callback buffers into fixed-size frames. It is
// not safe for concurrent use.
type Framer struct {
	size int
	buf  []byte
}

// NewFramer returns a Framer emitting frames of frameBytes bytes.
func NewFramer(frameBytes int) *Framer {
	return &Framer{size: frameBytes, buf: make([]byte, 0, frameBytes*2)}
}

// Write appends p and calls fn for every complete frame it produces.
// Emitted frames own their data.
func (f *Framer) Write(p []byte, at time.Time, fn FrameFunc) {
	f.buf = append(f.buf, p...)
	for len(f.buf) >= f.size {
		data := make([]byte, f.size)
		copy(data, f.buf[:f.size])
		f.buf = f.buf[f.size:]
		fn(Frame{Data: data, At: at})
	}
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:cap(f.buf)]
	}
}

// Pending returns the number of buffered bytes not yet emitted.
func (f *Framer) Pending() int {
	return len(f.buf)
}
