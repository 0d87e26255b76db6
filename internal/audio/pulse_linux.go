//go:build linux

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/rs/zerolog"
)

// PulseSource records from a PulseAudio or PipeWire source.
type PulseSource struct {
	client *pulse.Client
	cfg    Config
	log    zerolog.Logger

	mu     sync.Mutex
	device *Device
}

// NewPulseSource connects to the sound server and resolves cfg.Device.
func NewPulseSource(cfg Config, log zerolog.Logger) (*PulseSource, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	s := &PulseSource{client: c, cfg: cfg, log: log}
	if cfg.Device != "" {
		devs, err := s.Devices()
		if err != nil {
			c.Close()
			return nil, err
		}
		dev, err := SelectDevice(devs, cfg.Device)
		if err != nil {
			c.Close()
			return nil, err
		}
		s.UseDevice(dev)
	}
	return s, nil
}

// Devices lists recording sources.
func (s *PulseSource) Devices() ([]Device, error) {
	sources, err := s.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devs := make([]Device, 0, len(sources))
	for _, src := range sources {
		devs = append(devs, Device{ID: src.ID(), Name: src.Name()})
	}
	return devs, nil
}

// UseDevice selects dev for the next Run. A nil dev selects the server
// default.
func (s *PulseSource) UseDevice(dev *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dev == nil {
		s.device = nil
		return nil
	}
	d := *dev
	s.device = &d
	return nil
}

// DeviceName returns the selected source name.
func (s *PulseSource) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return s.device.Name
	}
	return "server default"
}

// Run records until ctx is cancelled.
func (s *PulseSource) Run(ctx context.Context, fn FrameFunc) error {
	framer := NewFramer(s.cfg.FrameBytes())
	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		data := make([]byte, len(buf)*BytesPerSample)
		for i, v := range buf {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
		}
		framer.Write(data, time.Now(), fn)
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(s.cfg.SampleRate)),
		pulse.RecordLatency(0.05),
	}
	s.mu.Lock()
	dev := s.device
	s.mu.Unlock()
	if dev != nil {
		src, err := s.client.SourceByID(dev.ID)
		if err != nil {
			return fmt.Errorf("pulse source %q: %w", dev.ID, err)
		}
		opts = append(opts, pulse.RecordSource(src))
	}

	stream, err := s.client.NewRecord(writer, opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}
	defer stream.Close()

	stream.Start()
	s.log.Info().Str("backend", "pulse").Str("device", s.DeviceName()).Uint32("sample_rate", s.cfg.SampleRate).Msg("capture started")
	<-ctx.Done()
	stream.Stop()
	return nil
}

// Close disconnects from the sound server.
func (s *PulseSource) Close() error {
	s.client.Close()
	return nil
}
