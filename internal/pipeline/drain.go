package pipeline

import (
	"context"
	"time"
)

// EvaluateDraining recomputes the buffer-draining flag:
// not recording and either queued work or a delivery in progress. It emits
// EventDrainingChanged when the flag flips.
func (c *Controller) EvaluateDraining() bool {
	draining := !c.state.Recording() && (!c.queue.IsEmpty() || !c.state.TranscriptionComplete())
	if prev := c.setDraining(draining); prev != draining {
		if draining {
			c.log.Info().Int("queued", c.queue.Len()).Msg("buffer draining started")
		} else {
			c.log.Info().Msg("buffer draining stopped")
		}
		c.emit(Event{Type: EventDrainingChanged, Draining: draining})
	}
	return draining
}

// RunDrainMonitor evaluates the draining flag every Poll interval until
// shutdown or ctx ends.
func (c *Controller) RunDrainMonitor(ctx context.Context) error {
	t := time.NewTicker(c.cfg.Poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.state.Stopped():
			return nil
		case <-t.C:
			c.EvaluateDraining()
		}
	}
}
