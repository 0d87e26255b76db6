package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-relay/internal/audio"
)

// Reason records why the segmenter closed an utterance.
type Reason string

const (
	ReasonSilenceTimeout Reason = "silence-timeout"
	ReasonBufferFull     Reason = "buffer-full"
	ReasonForceFlush     Reason = "force-flush"
	ReasonShutdownFlush  Reason = "shutdown-flush"
)

// Utterance is one contiguous run of frames handed to the Worker.
type Utterance struct {
	ID        uuid.UUID
	Seq       uint64 // 1-based flush order
	PCM       []byte // 16-bit mono little-endian
	Frames    int
	Reason    Reason
	CreatedAt time.Time
}

// Duration returns the audio length at sampleRate.
func (u Utterance) Duration(sampleRate uint32) time.Duration {
	if sampleRate == 0 {
		return 0
	}
	samples := len(u.PCM) / audio.BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
