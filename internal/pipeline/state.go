// Package pipeline turns captured audio frames into utterances and delivers
// them, in order, to a transcription backend and an output sink.
//
// Capture and segmentation share one goroutine. A single Worker owns every
// backend call. The Controller is the only writer of the recording flags;
// the Worker and the health monitor write endpoint health.
package pipeline

import "sync/atomic"

// State is the process-wide pipeline state. All fields are atomic so the
// capture goroutine, the Worker, the health monitor and control callers
// can read it without locks.
type State struct {
	recording  atomic.Bool
	running    atomic.Bool
	hardStop   atomic.Bool
	forceFlush atomic.Bool
	draining   atomic.Bool
	healthy    atomic.Bool
	checking   atomic.Bool
	complete   atomic.Bool

	stop chan struct{}
}

// NewState returns a running, non-recording state with a healthy endpoint
// and no delivery in progress.
func NewState() *State {
	s := &State{stop: make(chan struct{})}
	s.running.Store(true)
	s.healthy.Store(true)
	s.complete.Store(true)
	return s
}

// Recording reports whether captured frames are being segmented.
func (s *State) Recording() bool { return s.recording.Load() }

// Running is false once shutdown has begun.
func (s *State) Running() bool { return s.running.Load() }

// Stopped is closed when shutdown begins.
func (s *State) Stopped() <-chan struct{} { return s.stop }

// HardStopRequested reports a pending segmenter discard.
func (s *State) HardStopRequested() bool { return s.hardStop.Load() }

// ForceFlushRequested reports a pending segment boundary.
func (s *State) ForceFlushRequested() bool { return s.forceFlush.Load() }

// BufferDraining reports whether queued audio is still being delivered
// after recording stopped.
func (s *State) BufferDraining() bool { return s.draining.Load() }

// EndpointHealthy reports the last known endpoint health.
func (s *State) EndpointHealthy() bool { return s.healthy.Load() }

// EndpointChecking is true while a health probe is in flight.
func (s *State) EndpointChecking() bool { return s.checking.Load() }

// TranscriptionComplete is false from the moment the Worker claims an
// utterance until its output is committed or abandoned.
func (s *State) TranscriptionComplete() bool { return s.complete.Load() }

// SetEndpointHealthy records endpoint health and returns the previous value.
func (s *State) SetEndpointHealthy(v bool) bool { return s.healthy.Swap(v) }

// SetEndpointChecking marks a probe as in flight.
func (s *State) SetEndpointChecking(v bool) { s.checking.Store(v) }

func (s *State) setRecording(v bool) bool { return s.recording.Swap(v) }

func (s *State) requestForceFlush() { s.forceFlush.Store(true) }

func (s *State) clearForceFlush() { s.forceFlush.Store(false) }

func (s *State) requestHardStop() { s.hardStop.Store(true) }

func (s *State) consumeHardStop() bool { return s.hardStop.CompareAndSwap(true, false) }

func (s *State) setDraining(v bool) bool { return s.draining.Swap(v) }

func (s *State) setComplete(v bool) { s.complete.Store(v) }

// stopRunning clears running and closes Stopped. It reports whether this
// call made the transition.
func (s *State) stopRunning() bool {
	if !s.running.CompareAndSwap(true, false) {
		return false
	}
	close(s.stop)
	return true
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Recording             bool `json:"recording"`
	Running               bool `json:"running"`
	HardStopRequested     bool `json:"hard_stop_requested"`
	ForceFlushRequested   bool `json:"force_flush_requested"`
	BufferDraining        bool `json:"buffer_draining"`
	EndpointHealthy       bool `json:"endpoint_healthy"`
	EndpointChecking      bool `json:"endpoint_checking"`
	TranscriptionComplete bool `json:"transcription_complete"`
}

// Snapshot reads every flag. Flags are read individually, so the copy is
// not a single atomic observation.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Recording:             s.Recording(),
		Running:               s.Running(),
		HardStopRequested:     s.HardStopRequested(),
		ForceFlushRequested:   s.ForceFlushRequested(),
		BufferDraining:        s.BufferDraining(),
		EndpointHealthy:       s.EndpointHealthy(),
		EndpointChecking:      s.EndpointChecking(),
		TranscriptionComplete: s.TranscriptionComplete(),
	}
}
