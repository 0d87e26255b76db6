package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-relay/internal/audio"
	"github.com/chaz8081/gostt-relay/internal/inject"
	"github.com/chaz8081/gostt-relay/internal/logging"
	"github.com/chaz8081/gostt-relay/internal/metrics"
	"github.com/chaz8081/gostt-relay/internal/salvage"
	"github.com/chaz8081/gostt-relay/internal/transcribe"
)

// Outcome is how the Worker finished with an utterance.
type Outcome int

const (
	Delivered Outcome = iota // text reached the sink
	Filtered                 // text matched a hallucination filter
	Empty                    // backend returned no text
	Saved                    // written to disk without a backend call
	Dropped                  // abandoned; Reason says why
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Filtered:
		return "filtered"
	case Empty:
		return "empty"
	case Saved:
		return "saved"
	default:
		return "dropped"
	}
}

// Result describes one finished utterance.
type Result struct {
	Utterance Utterance
	Outcome   Outcome
	Reason    string
	Text      string
	Attempts  int
}

// WorkerConfig holds delivery policy.
type WorkerConfig struct {
	SampleRate     uint32
	SaveOnly       bool
	MaxRetries     int // submit attempts per utterance
	Backoff        Backoff
	MaxQueueDepth  int // 0 disables the overflow cap
	Hallucinations []string
	LogText        bool
}

// WorkerOption configures optional Worker collaborators.
type WorkerOption func(*Worker)

// WithSalvage sets the store for retry, failure, overflow and save-only
// chunks. Without one those utterances are lost.
func WithSalvage(s *salvage.Store) WorkerOption {
	return func(w *Worker) { w.salvage = s }
}

// WithSegmentStore writes a debug copy of every submitted utterance.
func WithSegmentStore(s *salvage.Store) WorkerOption {
	return func(w *Worker) { w.segments = s }
}

// WithTranscriptLog appends delivered text to l.
func WithTranscriptLog(l *logging.TranscriptLog) WorkerOption {
	return func(w *Worker) { w.transcripts = l }
}

// WithWorkerMetrics records delivery metrics.
func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithResultHook calls fn after every finished utterance.
func WithResultHook(fn func(Result)) WorkerOption {
	return func(w *Worker) { w.onResult = fn }
}

// Worker is the single consumer of the queue. It makes at most one backend
// call at a time and retries a failed utterance in place, so delivery order
// is flush order.
type Worker struct {
	cfg     WorkerConfig
	state   *State
	queue   *Queue
	backend transcribe.Backend
	sink    inject.Sink
	log     zerolog.Logger

	salvage     *salvage.Store
	segments    *salvage.Store
	transcripts *logging.TranscriptLog
	metrics     *metrics.Metrics
	onResult    func(Result)
	filters     map[string]struct{}

	// Sleep and Jitter are replaced in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() float64

	failures atomic.Int32

	mu         sync.Mutex
	cancelItem context.CancelFunc
	lastAbort  time.Time
}

// NewWorker returns a Worker draining queue into backend and sink.
func NewWorker(cfg WorkerConfig, state *State, queue *Queue, backend transcribe.Backend, sink inject.Sink, log zerolog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		cfg:     cfg,
		state:   state,
		queue:   queue,
		backend: backend,
		sink:    sink,
		log:     log,
		filters: make(map[string]struct{}, len(cfg.Hallucinations)),
		Sleep:   sleepCtx,
		Jitter:  Jitter,
	}
	for _, h := range cfg.Hallucinations {
		w.filters[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// ConsecutiveFailures returns the endpoint failure streak of the utterance
// in flight. It is zero between utterances.
func (w *Worker) ConsecutiveFailures() int {
	return int(w.failures.Load())
}

// Abort drops the utterance in flight, if any, and every utterance created
// before now that reaches the Worker later. It never blocks on the backend.
func (w *Worker) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastAbort = time.Now()
	if w.cancelItem != nil {
		w.cancelItem()
	}
}

// Run processes utterances until the queue is closed and drained. If ctx
// ends first, the in-flight utterance and everything still queued are
// written to the salvage store.
func (w *Worker) Run(ctx context.Context) error {
	for {
		u, err := w.queue.Pop(ctx)
		if errors.Is(err, ErrQueueClosed) {
			w.log.Info().Msg("delivery worker stopped")
			return nil
		}
		if err != nil {
			w.salvageRemaining()
			return nil
		}

		res := w.handle(ctx, u)
		w.state.setComplete(true)
		w.metrics.Delivery(res.Outcome.String())
		if w.onResult != nil {
			w.onResult(res)
		}
		if ctx.Err() != nil {
			w.salvageRemaining()
			return nil
		}
	}
}

func (w *Worker) handle(ctx context.Context, u Utterance) Result {
	log := w.log.With().Str("utterance", u.ID.String()).Uint64("seq", u.Seq).Logger()
	res := Result{Utterance: u}

	itemCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancelItem = cancel
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.cancelItem = nil
		w.mu.Unlock()
		cancel()
		w.failures.Store(0)
	}()

	if w.aborted(u) {
		return w.drop(log, res, "aborted")
	}

	if w.cfg.SaveOnly {
		w.persist(log, u, salvage.KindSaved)
		res.Outcome = Saved
		res.Reason = "save-only"
		return res
	}

	if waiting := w.queue.Len(); w.cfg.MaxQueueDepth > 0 && waiting >= w.cfg.MaxQueueDepth {
		log.Warn().Int("waiting", waiting).Msg("queue over capacity, saving audio to disk")
		w.persist(log, u, salvage.KindOverflow)
		res.Outcome = Saved
		res.Reason = "overflow"
		return res
	}

	wav, err := audio.EncodeWAV(u.PCM, w.cfg.SampleRate)
	if err != nil {
		log.Error().Err(err).Msg("encoding utterance failed")
		return w.drop(log, res, "encode")
	}
	if w.segments != nil {
		if _, err := w.segments.Save(u.PCM, salvage.KindSegment); err != nil {
			log.Warn().Err(err).Msg("saving debug recording failed")
		}
	}

	log.Debug().Dur("audio", u.Duration(w.cfg.SampleRate)).Str("reason", string(u.Reason)).Msg("transcribing")
	failures := 0
	for {
		res.Attempts++
		start := time.Now()
		text, err := w.backend.Transcribe(itemCtx, wav)
		elapsed := time.Since(start)

		if err == nil {
			w.metrics.SubmitDone(elapsed, "")
			w.markHealthy()
			return w.deliver(log, res, text, elapsed)
		}
		if itemCtx.Err() != nil {
			return w.interrupted(log, res)
		}

		kind := transcribe.KindOf(err)
		w.metrics.SubmitDone(elapsed, kind.String())
		if !kind.EndpointClass() {
			log.Error().Err(err).Msg("transcription failed, dropping utterance")
			return w.drop(log, res, "non-retryable")
		}

		failures++
		w.failures.Store(int32(failures))
		w.markUnhealthy(err)
		if failures >= w.cfg.MaxRetries {
			log.Error().Err(err).Int("attempts", res.Attempts).Msg("transcription endpoint unavailable, retries exhausted")
			w.persist(log, u, salvage.KindFailed)
			return w.drop(log, res, "retries-exhausted")
		}

		delay := w.cfg.Backoff.Delay(failures, w.Jitter())
		log.Warn().Err(err).Str("kind", kind.String()).Int("attempt", res.Attempts).Dur("retry_in", delay).Msg("transcription endpoint unavailable")
		w.persist(log, u, salvage.KindRetry)
		if err := w.Sleep(itemCtx, delay); err != nil {
			return w.interrupted(log, res)
		}
	}
}

func (w *Worker) deliver(log zerolog.Logger, res Result, text string, elapsed time.Duration) Result {
	text = strings.TrimSpace(text)
	res.Text = text
	if text == "" {
		res.Outcome = Empty
		return res
	}
	if _, ok := w.filters[strings.ToLower(text)]; ok {
		log.Info().Str("text", text).Msg("filtered")
		res.Outcome = Filtered
		return res
	}
	if w.aborted(res.Utterance) {
		return w.drop(log, res, "aborted")
	}

	if w.cfg.LogText {
		log.Info().Str("text", text).Dur("elapsed", elapsed).Msg("transcribed")
	}
	if err := w.transcripts.Write(text, elapsed); err != nil {
		log.Warn().Err(err).Msg("writing transcript log failed")
	}
	if err := w.sink.Deliver(text); err != nil {
		log.Error().Err(err).Msg("output failed")
		return w.drop(log, res, "output")
	}
	res.Outcome = Delivered
	return res
}

// interrupted resolves an utterance whose context ended: a hard stop drops
// it, a shutdown saves it.
func (w *Worker) interrupted(log zerolog.Logger, res Result) Result {
	if w.aborted(res.Utterance) {
		return w.drop(log, res, "aborted")
	}
	w.persist(log, res.Utterance, salvage.KindShutdown)
	res.Outcome = Saved
	res.Reason = "shutdown"
	return res
}

func (w *Worker) drop(log zerolog.Logger, res Result, reason string) Result {
	log.Debug().Str("reason", reason).Msg("utterance dropped")
	res.Outcome = Dropped
	res.Reason = reason
	return res
}

func (w *Worker) aborted(u Utterance) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.lastAbort.IsZero() && !u.CreatedAt.After(w.lastAbort)
}

func (w *Worker) persist(log zerolog.Logger, u Utterance, kind salvage.Kind) {
	if w.salvage == nil {
		log.Error().Str("kind", string(kind)).Msg("salvage disabled, audio lost")
		return
	}
	path, err := w.salvage.Save(u.PCM, kind)
	if err != nil {
		log.Error().Err(err).Msg("saving audio chunk failed")
		return
	}
	w.metrics.SalvageWrite(string(kind))
	log.Info().Str("path", path).Msg("saved audio chunk")
}

func (w *Worker) salvageRemaining() {
	for _, u := range w.queue.Drain() {
		w.persist(w.log.With().Str("utterance", u.ID.String()).Logger(), u, salvage.KindShutdown)
	}
}

func (w *Worker) markHealthy() {
	if !w.state.SetEndpointHealthy(true) {
		w.log.Info().Msg("transcription endpoint recovered")
	}
	w.metrics.EndpointHealthy(true)
}

func (w *Worker) markUnhealthy(err error) {
	if w.state.SetEndpointHealthy(false) {
		w.log.Warn().Err(err).Msg("transcription endpoint unreachable")
	}
	w.metrics.EndpointHealthy(false)
}
