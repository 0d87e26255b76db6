package audio

import (
	"context"
	"sync"
)

// DeviceSource is a Source whose capture device can be chosen.
type DeviceSource interface {
	Source
	Devices() ([]Device, error)
	UseDevice(dev *Device) error
	DeviceName() string
}

// Switcher runs a DeviceSource and restarts it when Select changes the
// device, so the caller's Run keeps going across switches.
type Switcher struct {
	src DeviceSource

	mu      sync.Mutex
	cancel  context.CancelFunc
	restart bool
}

// NewSwitcher wraps src.
func NewSwitcher(src DeviceSource) *Switcher {
	return &Switcher{src: src}
}

// Run implements Source.
func (s *Switcher) Run(ctx context.Context, fn FrameFunc) error {
	for {
		runCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()

		err := s.src.Run(runCtx, fn)
		cancel()

		s.mu.Lock()
		s.cancel = nil
		restart := s.restart
		s.restart = false
		s.mu.Unlock()

		if !restart || ctx.Err() != nil {
			return err
		}
	}
}

// Close implements Source.
func (s *Switcher) Close() error {
	return s.src.Close()
}

// Devices lists the devices of the wrapped source.
func (s *Switcher) Devices() ([]Device, error) {
	return s.src.Devices()
}

// DeviceName returns the name of the selected device.
func (s *Switcher) DeviceName() string {
	return s.src.DeviceName()
}

// Select resolves want like SelectDevice and switches to it. An empty want
// selects the system default. A running capture is restarted on the new
// device.
func (s *Switcher) Select(want string) (string, error) {
	var dev *Device
	if want != "" {
		devs, err := s.src.Devices()
		if err != nil {
			return "", err
		}
		if dev, err = SelectDevice(devs, want); err != nil {
			return "", err
		}
	}
	if err := s.src.UseDevice(dev); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.restart = true
		s.cancel()
	}
	s.mu.Unlock()
	return s.src.DeviceName(), nil
}
