package pipeline

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-relay/internal/audio"
	"github.com/chaz8081/gostt-relay/internal/salvage"
)

const testFrameSize = 4 // samples

func frame(amplitude int16) audio.Frame {
	data := make([]byte, testFrameSize*audio.BytesPerSample)
	for i := 0; i < testFrameSize; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return audio.Frame{Data: data, At: time.Now()}
}

func loud() audio.Frame  { return frame(1000) }
func quiet() audio.Frame { return frame(100) }

func feed(s *Segmenter, f func() audio.Frame, n int) {
	for i := 0; i < n; i++ {
		s.Process(f())
	}
}

func newSegmenter(t *testing.T, cfg SegmenterConfig) (*Segmenter, *State, *Queue) {
	t.Helper()
	state := NewState()
	state.setRecording(true)
	q := NewQueue(state, nil)
	return NewSegmenter(cfg, state, q, zerolog.Nop(), nil), state, q
}

func drainQueue(q *Queue) []Utterance {
	return q.Drain()
}

func utterance(seq uint64, samples ...int16) Utterance {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return Utterance{Seq: seq, PCM: pcm, Frames: 1, Reason: ReasonSilenceTimeout, CreatedAt: time.Now()}
}

// memSink records delivered text.
type memSink struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (m *memSink) Deliver(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.texts = append(m.texts, text)
	return nil
}

func (m *memSink) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func newStore(t *testing.T) *salvage.Store {
	t.Helper()
	s, err := salvage.NewStore(t.TempDir(), 16000)
	if err != nil {
		t.Fatalf("salvage.NewStore() error = %v", err)
	}
	return s
}

func chunkKinds(t *testing.T, s *salvage.Store) []salvage.Kind {
	t.Helper()
	chunks, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var kinds []salvage.Kind
	for _, c := range chunks {
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

// chanSource plays frames from a channel; closing it ends the stream.
type chanSource struct {
	frames chan audio.Frame
}

func (s *chanSource) Run(ctx context.Context, fn audio.FrameFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-s.frames:
			if !ok {
				return audio.ErrEndOfStream
			}
			fn(f)
		}
	}
}

func (s *chanSource) Close() error { return nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func nextEvent(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == want {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event %v", want)
			return Event{}
		}
	}
}
