package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-relay/internal/metrics"
)

// EventType identifies a controller event.
type EventType int

const (
	EventRecordingResumed EventType = iota
	EventRecordingPaused
	EventFullyStopped
	EventCleared
	EventHardStopped
	EventEndpointPaused
	EventDrainingChanged
)

func (t EventType) String() string {
	switch t {
	case EventRecordingResumed:
		return "recording_resumed"
	case EventRecordingPaused:
		return "recording_paused"
	case EventFullyStopped:
		return "fully_stopped"
	case EventCleared:
		return "cleared"
	case EventHardStopped:
		return "hard_stopped"
	case EventEndpointPaused:
		return "endpoint_paused"
	case EventDrainingChanged:
		return "draining_changed"
	default:
		return "unknown"
	}
}

// Event is emitted on Controller.Events.
type Event struct {
	Type     EventType
	Purged   int  // EventCleared, EventHardStopped
	TimedOut bool // EventFullyStopped: a bounded wait expired
	Draining bool // EventDrainingChanged
}

// ControllerConfig holds the bounded waits used after a pause.
type ControllerConfig struct {
	DrainTimeout  time.Duration // wait for the queue to empty
	OutputTimeout time.Duration // then wait for the last output to commit
	Poll          time.Duration
	FinishTimeout time.Duration // shutdown wait for the segmenter's final flush
}

// Controller exposes the pipeline operations. Every method is safe to call
// from any goroutine and returns without waiting on delivery.
type Controller struct {
	cfg     ControllerConfig
	state   *State
	queue   *Queue
	worker  *Worker
	seg     *Segmenter
	log     zerolog.Logger
	metrics *metrics.Metrics

	events       chan Event
	pauseGen     atomic.Uint64
	shutdownOnce sync.Once
}

// NewController wires the controller to the pipeline components. m may be
// nil.
func NewController(cfg ControllerConfig, state *State, queue *Queue, worker *Worker, seg *Segmenter, log zerolog.Logger, m *metrics.Metrics) *Controller {
	if cfg.Poll <= 0 {
		cfg.Poll = 100 * time.Millisecond
	}
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = 2 * time.Second
	}
	return &Controller{
		cfg:     cfg,
		state:   state,
		queue:   queue,
		worker:  worker,
		seg:     seg,
		log:     log,
		metrics: m,
		events:  make(chan Event, 32),
	}
}

// Events returns the event stream. Events are dropped when nobody reads.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the shared pipeline state.
func (c *Controller) State() *State {
	return c.state
}

// QueueLen returns the number of utterances waiting for delivery.
func (c *Controller) QueueLen() int {
	return c.queue.Len()
}

// ToggleRecording pauses when recording and resumes otherwise. It returns
// the new recording state.
func (c *Controller) ToggleRecording() bool {
	if c.state.Recording() {
		c.Pause()
		return false
	}
	c.Resume()
	return c.state.Recording()
}

// Resume enables recording and clears the draining flag.
func (c *Controller) Resume() {
	if !c.state.Running() {
		return
	}
	c.pauseGen.Add(1)
	c.setDraining(false)
	if !c.setRecording(true) {
		c.log.Info().Msg("recording resumed")
		c.emit(Event{Type: EventRecordingResumed})
	}
}

// Pause flushes the current buffer, disables recording and, in the
// background, waits for delivery to finish before emitting
// EventFullyStopped. It reports whether recording was on.
func (c *Controller) Pause() bool {
	if !c.state.Recording() {
		return false
	}
	c.state.requestForceFlush()
	if !c.setRecording(false) {
		return false
	}
	gen := c.pauseGen.Add(1)
	c.log.Info().Msg("recording paused, waiting for queue to finish")
	c.emit(Event{Type: EventRecordingPaused})
	go c.waitStopped(gen)
	return true
}

// Submit closes the current utterance at the next frame. It does nothing
// while recording is off.
func (c *Controller) Submit() bool {
	if !c.state.Recording() {
		return false
	}
	c.state.requestForceFlush()
	c.log.Info().Msg("force flush requested")
	return true
}

// StopAndClear disables recording and purges pending utterances without
// waiting. It returns the number purged.
func (c *Controller) StopAndClear() int {
	c.pauseGen.Add(1)
	c.setRecording(false)
	c.state.clearForceFlush()
	n := c.queue.Purge()
	c.setDraining(false)
	c.log.Info().Int("purged", n).Msg("recording stopped and queue cleared")
	c.emit(Event{Type: EventCleared, Purged: n})
	return n
}

// HardStop disables recording, discards the segmenter buffer, purges the
// queue and aborts the utterance in flight. It returns the number purged.
func (c *Controller) HardStop() int {
	c.pauseGen.Add(1)
	c.setRecording(false)
	c.state.clearForceFlush()
	c.state.requestHardStop()
	n := c.queue.Purge()
	if c.worker != nil {
		c.worker.Abort()
	}
	c.setDraining(false)
	c.log.Info().Int("purged", n).Msg("hard stop, cleared pending items")
	c.emit(Event{Type: EventHardStopped, Purged: n})
	return n
}

// PauseOnEndpointFailure pauses recording because the endpoint is down.
func (c *Controller) PauseOnEndpointFailure() bool {
	if !c.Pause() {
		return false
	}
	c.log.Warn().Msg("endpoint failure detected during recording, recording stopped")
	c.emit(Event{Type: EventEndpointPaused})
	return true
}

// Shutdown stops recording, ends the capture loop and closes the queue
// once the segmenter has flushed or FinishTimeout passes. Pending items are
// still delivered by the Worker. Later calls do nothing.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.log.Info().Msg("shutting down")
		c.pauseGen.Add(1)
		if c.state.Recording() {
			c.state.requestForceFlush()
		}
		c.setRecording(false)
		c.state.stopRunning()
		if c.seg != nil {
			select {
			case <-c.seg.Done():
			case <-time.After(c.cfg.FinishTimeout):
				c.log.Warn().Msg("capture did not finish in time")
			}
		}
		c.queue.Close()
	})
}

func (c *Controller) waitStopped(gen uint64) {
	start := time.Now()
	timedOut := false

	drainBy := start.Add(c.cfg.DrainTimeout)
	for !c.queue.IsEmpty() || c.state.ForceFlushRequested() {
		if c.pauseGen.Load() != gen {
			return
		}
		if time.Now().After(drainBy) {
			c.log.Warn().Dur("elapsed", time.Since(start)).Msg("queue wait timeout, forcing stop")
			timedOut = true
			break
		}
		time.Sleep(c.cfg.Poll)
	}

	outputStart := time.Now()
	outputBy := outputStart.Add(c.cfg.OutputTimeout)
	for !c.state.TranscriptionComplete() {
		if c.pauseGen.Load() != gen {
			return
		}
		if time.Now().After(outputBy) {
			c.log.Warn().Dur("elapsed", time.Since(outputStart)).Msg("transcription output timeout, forcing stop")
			timedOut = true
			break
		}
		time.Sleep(c.cfg.Poll)
	}

	if c.pauseGen.Load() != gen {
		return
	}
	c.log.Info().Bool("timed_out", timedOut).Msg("recording fully stopped")
	c.emit(Event{Type: EventFullyStopped, TimedOut: timedOut})
}

func (c *Controller) setRecording(v bool) bool {
	prev := c.state.setRecording(v)
	c.metrics.Recording(v)
	return prev
}

func (c *Controller) setDraining(v bool) bool {
	prev := c.state.setDraining(v)
	c.metrics.BufferDraining(v)
	return prev
}

func (c *Controller) emit(e Event) {
	select {
	case c.events <- e:
	default:
	}
}
