package audio

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

// MalgoSource captures from a miniaudio device. Call Close() when done.
type MalgoSource struct {
	ctx *malgo.AllocatedContext
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	device *Device
	devID  unsafe.Pointer            // C copy of device.ID
	ids    map[string]unsafe.Pointer // C ids by device id, reused on reopen and switch
}

// NewMalgoSource initializes the audio context and resolves cfg.Device.
func NewMalgoSource(cfg Config, log zerolog.Logger) (*MalgoSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	s := &MalgoSource{ctx: ctx, cfg: cfg, log: log, ids: make(map[string]unsafe.Pointer)}
	if cfg.Device != "" {
		devs, err := s.Devices()
		if err != nil {
			s.Close()
			return nil, err
		}
		dev, err := SelectDevice(devs, cfg.Device)
		if err == nil {
			err = s.UseDevice(dev)
		}
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// UseDevice selects dev for the next Run. A nil dev selects the system
// default.
func (s *MalgoSource) UseDevice(dev *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dev == nil {
		s.device, s.devID = nil, nil
		return nil
	}
	p, ok := s.ids[dev.ID]
	if !ok {
		idBytes, err := hex.DecodeString(dev.ID)
		if err != nil {
			return fmt.Errorf("invalid device ID: %w", err)
		}
		var id malgo.DeviceID
		copy(id[:], idBytes)
		p = id.Pointer()
		s.ids[dev.ID] = p
	}
	d := *dev
	s.device, s.devID = &d, p
	return nil
}

// Devices lists capture devices with hex-encoded ids.
func (s *MalgoSource) Devices() ([]Device, error) {
	infos, err := s.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}
	devs := make([]Device, 0, len(infos))
	for _, d := range infos {
		devs = append(devs, Device{
			ID:   hex.EncodeToString(d.ID[:]),
			Name: d.Name(),
		})
	}
	return devs, nil
}

// DeviceName returns the selected device name.
func (s *MalgoSource) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return s.device.Name
	}
	return "system default"
}

// Run opens the capture device and streams frames to fn until ctx is
// cancelled or the device stops on its own.
func (s *MalgoSource) Run(ctx context.Context, fn FrameFunc) error {
	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = s.cfg.SampleRate

	s.mu.Lock()
	if s.devID != nil {
		deviceCfg.Capture.DeviceID = s.devID
	}
	s.mu.Unlock()

	framer := NewFramer(s.cfg.FrameBytes())
	stopped := make(chan struct{})
	var stopOnce sync.Once

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSample []byte, _ uint32) {
			framer.Write(pSample, time.Now(), fn)
		},
		Stop: func() {
			stopOnce.Do(func() { close(stopped) })
		},
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("starting capture device: %w", err)
	}
	s.log.Info().Str("device", s.DeviceName()).Uint32("sample_rate", s.cfg.SampleRate).Msg("capture started")

	select {
	case <-ctx.Done():
		return nil
	case <-stopped:
		if ctx.Err() != nil {
			return nil
		}
		return ErrDeviceStopped
	}
}

// Close releases all audio resources.
func (s *MalgoSource) Close() error {
	if s.ctx == nil {
		return nil
	}
	if err := s.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	s.ctx.Free()
	s.ctx = nil
	return nil
}
