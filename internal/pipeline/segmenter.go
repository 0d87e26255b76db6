package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-relay/internal/audio"
	"github.com/chaz8081/gostt-relay/internal/metrics"
)

const (
	backlogLogInterval = 30 * time.Second
	backlogWarnDepth   = 10
)

// SegmenterConfig holds the energy VAD parameters.
type SegmenterConfig struct {
	SilenceThreshold   int // peak amplitude above which a frame is speech
	SilenceLimitFrames int // quiet frames after speech that end an utterance
	BufferLimitFrames  int // frames at which an utterance is cut regardless
}

// SegmenterStats counts frames by fate. Appended equals Flushed plus
// Discarded plus whatever is still buffered.
type SegmenterStats struct {
	Received   int // every frame passed to Process
	Appended   int // frames added to an utterance buffer
	Flushed    int // frames handed to the queue
	Discarded  int // buffered frames dropped by pause or hard stop
	Idle       int // frames read while not recording
	Utterances int
}

// Segmenter splits the frame stream into utterances. Process and Finish
// must be called from the capture goroutine only.
type Segmenter struct {
	cfg     SegmenterConfig
	state   *State
	queue   *Queue
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	buf      []byte
	frames   int
	speaking bool
	silent   int
	seq      uint64

	stats       SegmenterStats
	lastBacklog time.Time

	finishOnce sync.Once
	done       chan struct{}
}

// NewSegmenter returns a Segmenter feeding queue.
func NewSegmenter(cfg SegmenterConfig, state *State, queue *Queue, log zerolog.Logger, m *metrics.Metrics) *Segmenter {
	return &Segmenter{
		cfg:     cfg,
		state:   state,
		queue:   queue,
		log:     log,
		metrics: m,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Process handles one captured frame. A force flush request is cleared
// only after its utterance is queued, so a waiter polling the flag and the
// queue never sees both empty while audio is in transit.
func (s *Segmenter) Process(f audio.Frame) {
	s.stats.Received++

	if s.state.consumeHardStop() {
		s.discard("hard-stop")
	}

	if !s.state.Recording() {
		if s.state.ForceFlushRequested() && s.frames > 0 {
			s.flush(ReasonForceFlush)
		} else {
			s.discard("paused")
		}
		s.state.clearForceFlush()
		s.stats.Idle++
		s.metrics.FramesDiscarded("idle", 1)
		return
	}

	s.buf = append(s.buf, f.Data...)
	s.frames++
	s.stats.Appended++

	if audio.Peak(f.Data) > s.cfg.SilenceThreshold {
		if !s.speaking {
			s.log.Debug().Msg("speech started")
		}
		s.speaking = true
		s.silent = 0
	} else {
		s.silent++
	}

	switch {
	case s.state.ForceFlushRequested():
		s.flush(ReasonForceFlush)
		s.state.clearForceFlush()
	case s.speaking && s.silent > s.cfg.SilenceLimitFrames:
		s.flush(ReasonSilenceTimeout)
	case s.frames >= s.cfg.BufferLimitFrames:
		s.flush(ReasonBufferFull)
	}
}

// Finish flushes any buffered audio with ReasonShutdownFlush, or discards it
// if a hard stop is pending, then closes Done. Later calls do nothing.
func (s *Segmenter) Finish() {
	s.finishOnce.Do(func() {
		if s.state.consumeHardStop() {
			s.discard("hard-stop")
		} else if s.frames > 0 {
			s.flush(ReasonShutdownFlush)
		}
		close(s.done)
	})
}

// Done is closed after Finish.
func (s *Segmenter) Done() <-chan struct{} {
	return s.done
}

// Stats returns the frame counters. It must be called from the capture
// goroutine or after Done is closed.
func (s *Segmenter) Stats() SegmenterStats {
	return s.stats
}

// Buffered returns the number of frames in the current utterance buffer.
func (s *Segmenter) Buffered() int {
	return s.frames
}

func (s *Segmenter) flush(reason Reason) {
	s.seq++
	u := Utterance{
		ID:        uuid.New(),
		Seq:       s.seq,
		PCM:       s.buf,
		Frames:    s.frames,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	s.stats.Flushed += s.frames
	s.stats.Utterances++
	s.reset()

	if err := s.queue.Push(u); err != nil {
		s.log.Error().Err(err).Str("utterance", u.ID.String()).Msg("utterance lost, queue closed")
		return
	}
	s.metrics.Utterance(string(reason))
	s.log.Info().
		Str("utterance", u.ID.String()).
		Str("reason", string(reason)).
		Int("frames", u.Frames).
		Msg("sending audio")
	s.logBacklog()
}

func (s *Segmenter) discard(cause string) {
	if s.frames == 0 {
		return
	}
	s.log.Debug().Str("cause", cause).Int("frames", s.frames).Msg("discarding buffered audio")
	s.stats.Discarded += s.frames
	s.metrics.FramesDiscarded(cause, s.frames)
	s.reset()
}

func (s *Segmenter) reset() {
	s.buf = nil
	s.frames = 0
	s.speaking = false
	s.silent = 0
}

// logBacklog reports queue depth at most once per backlogLogInterval.
func (s *Segmenter) logBacklog() {
	now := s.now()
	if now.Sub(s.lastBacklog) < backlogLogInterval {
		return
	}
	s.lastBacklog = now
	depth := s.queue.Len()
	if depth > backlogWarnDepth {
		s.log.Warn().Int("depth", depth).Msg("queue backlog, processing may be delayed")
		return
	}
	s.log.Info().Int("depth", depth).Msg("queue status")
}
