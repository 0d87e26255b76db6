package audio

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// readRetryDelay is the pause after a transient read error.
const readRetryDelay = 100 * time.Millisecond

// ReaderSource reads raw s16le mono PCM from a blocking reader such as
// stdin or a pipe. Each read blocks until a full frame is available.
type ReaderSource struct {
	r     io.Reader
	cfg   Config
	log   zerolog.Logger
	sleep func(time.Duration)
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader, cfg Config, log zerolog.Logger) *ReaderSource {
	return &ReaderSource{r: r, cfg: cfg, log: log, sleep: time.Sleep}
}

// Run reads frames until ctx is cancelled or the reader is exhausted, in
// which case it returns ErrEndOfStream. A frame completed while ctx is being
// cancelled is still passed to fn. A trailing partial frame is dropped.
func (s *ReaderSource) Run(ctx context.Context, fn FrameFunc) error {
	size := s.cfg.FrameBytes()
	for ctx.Err() == nil {
		buf := make([]byte, size)
		_, err := io.ReadFull(s.r, buf)
		switch {
		case err == nil:
			fn(Frame{Data: buf, At: time.Now()})
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return ErrEndOfStream
		default:
			s.log.Warn().Err(err).Msg("audio read failed, retrying")
			s.sleep(readRetryDelay)
		}
	}
	return nil
}

// Close closes the underlying reader if it is an io.Closer.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
