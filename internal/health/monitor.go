// Package health tracks transcription endpoint reachability and serves
// liveness and readiness probes.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-relay/internal/metrics"
	"github.com/chaz8081/gostt-relay/internal/pipeline"
)

// Prober checks that the transcription endpoint answers.
type Prober interface {
	Probe(ctx context.Context) error
}

// Pauser stops recording when the endpoint goes down.
type Pauser interface {
	PauseOnEndpointFailure() bool
}

// MonitorConfig holds the probe cadence.
type MonitorConfig struct {
	InitialDelay    time.Duration
	HealthyInterval time.Duration
	UnhealthyBase   time.Duration
	UnhealthyMax    time.Duration
	ProbeTimeout    time.Duration
}

// Monitor probes the endpoint on its own timer and publishes the result to
// the pipeline state.
type Monitor struct {
	cfg     MonitorConfig
	prober  Prober
	state   *pipeline.State
	pauser  Pauser
	log     zerolog.Logger
	metrics *metrics.Metrics

	// Sleep waits between probes. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	streak int
}

// NewMonitor returns a Monitor. pauser and m may be nil.
func NewMonitor(cfg MonitorConfig, prober Prober, state *pipeline.State, pauser Pauser, log zerolog.Logger, m *metrics.Metrics) *Monitor {
	return &Monitor{
		cfg:     cfg,
		prober:  prober,
		state:   state,
		pauser:  pauser,
		log:     log,
		metrics: m,
		Sleep:   sleep,
	}
}

// Run probes until ctx ends or the pipeline stops.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.state.Stopped():
			cancel()
		case <-ctx.Done():
		}
	}()

	m.log.Info().Dur("initial_delay", m.cfg.InitialDelay).Msg("endpoint monitor started")
	if err := m.Sleep(ctx, m.cfg.InitialDelay); err != nil {
		return nil
	}
	for {
		m.Check(ctx)
		if err := m.Sleep(ctx, m.NextInterval()); err != nil {
			return nil
		}
	}
}

// Check runs one probe cycle and reports whether the endpoint answered. If
// the endpoint is down while recording, recording is paused.
func (m *Monitor) Check(ctx context.Context) bool {
	m.state.SetEndpointChecking(true)
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.prober.Probe(pctx)
	cancel()
	m.state.SetEndpointChecking(false)

	if ctx.Err() != nil {
		return m.state.EndpointHealthy()
	}

	m.mu.Lock()
	if err == nil {
		m.streak = 0
	} else {
		m.streak++
	}
	streak := m.streak
	m.mu.Unlock()

	healthy := err == nil
	wasHealthy := m.state.SetEndpointHealthy(healthy)
	m.metrics.EndpointHealthy(healthy)
	switch {
	case healthy && !wasHealthy:
		m.log.Info().Msg("transcription endpoint recovered")
	case !healthy && wasHealthy:
		m.log.Warn().Err(err).Msg("transcription endpoint unreachable")
	case !healthy:
		m.log.Debug().Err(err).Int("streak", streak).Msg("transcription endpoint still unreachable")
	}

	if !healthy && m.state.Recording() && m.pauser != nil {
		m.pauser.PauseOnEndpointFailure()
	}
	return healthy
}

// NextInterval returns the wait before the next probe: HealthyInterval
// while healthy, otherwise min(UnhealthyBase*(streak+1), UnhealthyMax).
func (m *Monitor) NextInterval() time.Duration {
	if m.state.EndpointHealthy() {
		return m.cfg.HealthyInterval
	}
	d := m.cfg.UnhealthyBase * time.Duration(m.Streak()+1)
	if d > m.cfg.UnhealthyMax {
		d = m.cfg.UnhealthyMax
	}
	return d
}

// Streak returns the number of consecutive failed probes.
func (m *Monitor) Streak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streak
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
