package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-relay/internal/audio"
)

// RunCapture feeds src into seg until the pipeline stops or ctx ends. Source
// failures never end the loop while running: the source is reopened after
// reopenDelay. An exhausted source ends the loop. Finish is always called
// on the way out.
func RunCapture(ctx context.Context, src audio.Source, seg *Segmenter, state *State, reopenDelay time.Duration, log zerolog.Logger) error {
	defer seg.Finish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-state.Stopped():
			cancel()
		case <-ctx.Done():
		}
	}()

	for state.Running() && ctx.Err() == nil {
		err := src.Run(ctx, seg.Process)
		if !state.Running() || ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, audio.ErrEndOfStream) {
			log.Info().Msg("audio input ended")
			return nil
		}
		if err != nil {
			log.Error().Err(err).Dur("retry_in", reopenDelay).Msg("audio capture failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reopenDelay):
		}
	}
	return nil
}
