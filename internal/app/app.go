// Package app builds the relay pipeline from configuration and runs its
// goroutines until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/gostt-relay/internal/audio"
	"github.com/chaz8081/gostt-relay/internal/config"
	"github.com/chaz8081/gostt-relay/internal/health"
	"github.com/chaz8081/gostt-relay/internal/hotkey"
	"github.com/chaz8081/gostt-relay/internal/inject"
	"github.com/chaz8081/gostt-relay/internal/logging"
	"github.com/chaz8081/gostt-relay/internal/metrics"
	"github.com/chaz8081/gostt-relay/internal/pipeline"
	"github.com/chaz8081/gostt-relay/internal/salvage"
	"github.com/chaz8081/gostt-relay/internal/status"
	"github.com/chaz8081/gostt-relay/internal/transcribe"
)

// ErrNoDevices is returned by ListDevices for backends without devices.
var ErrNoDevices = errors.New("app: audio backend has no devices")

// Options replaces collaborators normally built from configuration.
type Options struct {
	Source         audio.Source       // instead of audio.backend
	Backend        transcribe.Backend // instead of the OpenAI client
	Sink           inject.Sink        // instead of typing into the focused window
	Stdin          io.Reader          // input for the stdin backend; os.Stdin if nil
	DisableHotkeys bool
	OnEvent        func(pipeline.Event)
}

// App owns every pipeline component.
type App struct {
	cfg  *config.Config
	opts Options
	log  zerolog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	state  *pipeline.State
	queue  *pipeline.Queue
	seg    *pipeline.Segmenter
	worker *pipeline.Worker
	ctrl   *pipeline.Controller

	source      audio.Source
	devices     *audio.Switcher
	output      *inject.Switch
	salvage     *salvage.Store
	transcripts *logging.TranscriptLog
	monitor     *health.Monitor
	status      *status.Server
	hotkeys     *hotkey.Listener
}

// New builds the pipeline. Optional features that fail to initialize are
// logged and disabled; only a missing audio source or backend is fatal.
func New(cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{cfg: cfg, opts: opts, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	backend := opts.Backend
	if backend == nil && !cfg.Delivery.SaveOnly {
		b, err := transcribe.New(cfg.API)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	a.source = opts.Source
	if a.source == nil {
		src, err := OpenSource(cfg.Audio, opts.Stdin, a.component("audio"))
		if err != nil {
			return nil, err
		}
		a.source = src
	}
	if ds, ok := a.source.(audio.DeviceSource); ok {
		a.devices = audio.NewSwitcher(ds)
		a.source = a.devices
	}

	if err := a.buildOutput(); err != nil {
		a.source.Close()
		return nil, err
	}
	workerOpts := a.buildStores()

	a.state = pipeline.NewState()
	a.queue = pipeline.NewQueue(a.state, a.metrics)
	a.seg = pipeline.NewSegmenter(pipeline.SegmenterConfig{
		SilenceThreshold:   cfg.Audio.SilenceThreshold,
		SilenceLimitFrames: cfg.Audio.SilenceLimitFrames(),
		BufferLimitFrames:  cfg.Audio.BufferLimitFrames(),
	}, a.state, a.queue, a.component("segmenter"), a.metrics)

	a.worker = pipeline.NewWorker(pipeline.WorkerConfig{
		SampleRate:     cfg.Audio.SampleRate,
		SaveOnly:       cfg.Delivery.SaveOnly,
		MaxRetries:     cfg.Delivery.MaxRetries,
		Backoff:        pipeline.Backoff{Base: cfg.Delivery.BaseDelay, Max: cfg.Delivery.MaxDelay},
		MaxQueueDepth:  cfg.Delivery.MaxQueueDepth,
		Hallucinations: cfg.Filters.Hallucinations,
		LogText:        cfg.Output.LogTranscriptionText,
	}, a.state, a.queue, backend, a.output, a.component("worker"), workerOpts...)

	a.ctrl = pipeline.NewController(pipeline.ControllerConfig{
		DrainTimeout:  cfg.Control.DrainTimeout,
		OutputTimeout: cfg.Control.OutputTimeout,
		Poll:          cfg.Control.DrainPoll,
	}, a.state, a.queue, a.worker, a.seg, a.component("controller"), a.metrics)

	if cfg.Health.Enabled && !cfg.Delivery.SaveOnly {
		a.monitor = health.NewMonitor(health.MonitorConfig{
			InitialDelay:    cfg.Health.InitialDelay,
			HealthyInterval: cfg.Health.HealthyInterval,
			UnhealthyBase:   cfg.Health.UnhealthyBase,
			UnhealthyMax:    cfg.Health.UnhealthyMax,
			ProbeTimeout:    cfg.Health.ProbeTimeout,
		}, backend, a.state, a.ctrl, a.component("health"), a.metrics)
	}

	if cfg.Status.ListenAddr != "" {
		salvageDir := ""
		if a.salvage != nil {
			salvageDir = a.salvage.Dir()
		}
		so := status.Options{
			Addr:       cfg.Status.ListenAddr,
			Controller: a.ctrl,
			Output:     a.output,
			SalvageDir: salvageDir,
			Gatherer:   a.registry,
			Health:     health.NewHandler(health.EndpointCheck(a.state)),
		}
		if a.devices != nil {
			so.Devices = a.devices
		}
		a.status = status.New(so, a.component("status"))
	}

	if !opts.DisableHotkeys {
		b := hotkey.Bindings{
			Mode:   cfg.Hotkeys.Mode,
			Record: config.ParseKeys(cfg.Hotkeys.Toggle),
			Stop:   config.ParseKeys(cfg.Hotkeys.Stop),
			Submit: config.ParseKeys(cfg.Hotkeys.Submit),
			Clear:  config.ParseKeys(cfg.Hotkeys.Clear),
		}
		if b.Record != nil || b.Stop != nil || b.Submit != nil || b.Clear != nil {
			a.hotkeys = hotkey.NewListener(b)
		}
	}
	return a, nil
}

func (a *App) component(name string) zerolog.Logger {
	return a.log.With().Str("component", name).Logger()
}

func (a *App) buildOutput() error {
	var typer inject.Sink = a.opts.Sink
	if typer == nil {
		typer = inject.NewTyper(a.cfg.Output.Method, a.cfg.Output.TypingEnabled)
	}
	var nb *inject.Notebook
	if a.cfg.Notebook.Enabled {
		var err error
		if nb, err = inject.NewNotebook(a.cfg.Notebook.FilePath); err != nil {
			return err
		}
	}
	a.output = inject.NewSwitch(typer, nb, nb != nil)
	return nil
}

func (a *App) buildStores() []pipeline.WorkerOption {
	opts := []pipeline.WorkerOption{pipeline.WithWorkerMetrics(a.metrics)}

	st, err := salvage.NewStore(a.cfg.Delivery.SalvageDir, a.cfg.Audio.SampleRate)
	if err != nil {
		a.log.Error().Err(err).Msg("salvage disabled, failed deliveries will be lost")
	} else {
		a.salvage = st
		opts = append(opts, pipeline.WithSalvage(st))
	}

	if a.cfg.Output.SaveWAVFiles {
		seg, err := salvage.NewStore(a.cfg.Output.WAVDir, a.cfg.Audio.SampleRate)
		if err != nil {
			a.log.Warn().Err(err).Msg("debug recordings disabled")
		} else {
			opts = append(opts, pipeline.WithSegmentStore(seg))
		}
	}

	if a.cfg.Output.SaveTranscriptionLogs {
		tl, err := logging.NewTranscriptLog(a.cfg.Output.LogDir)
		if err != nil {
			a.log.Warn().Err(err).Msg("transcript log disabled")
		} else {
			a.transcripts = tl
			opts = append(opts, pipeline.WithTranscriptLog(tl))
		}
	}
	return opts
}

// Controller returns the pipeline controller.
func (a *App) Controller() *pipeline.Controller {
	return a.ctrl
}

// Output returns the output switch.
func (a *App) Output() *inject.Switch {
	return a.output
}

// Run starts every component and blocks until ctx ends or the audio input
// ends, then shuts down: capture stops, pending utterances are delivered
// for up to the drain timeout and whatever remains is salvaged.
func (a *App) Run(ctx context.Context) error {
	defer a.source.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorker()

	g, gctx := errgroup.WithContext(runCtx)

	if a.cfg.Startup.StartRecording {
		a.ctrl.Resume()
	}

	g.Go(func() error {
		err := pipeline.RunCapture(gctx, a.source, a.seg, a.state, a.cfg.Audio.ReopenDelay, a.component("capture"))
		a.ctrl.Shutdown()
		return err
	})

	workerDone := make(chan struct{})
	g.Go(func() error {
		defer close(workerDone)
		return a.worker.Run(workerCtx)
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.state.Stopped():
		}
		a.ctrl.Shutdown()
		select {
		case <-workerDone:
		case <-time.After(a.cfg.Control.DrainTimeout):
			a.log.Warn().Int("pending", a.queue.Len()).Msg("delivery did not finish in time, saving pending audio")
			cancelWorker()
			<-workerDone
		}
		stop()
		return nil
	})

	g.Go(func() error { return a.ctrl.RunDrainMonitor(gctx) })
	g.Go(func() error { return a.watchEvents(gctx) })

	if a.monitor != nil {
		g.Go(func() error { return a.monitor.Run(gctx) })
	}
	if a.status != nil {
		g.Go(func() error {
			if err := a.status.Run(gctx); err != nil {
				return fmt.Errorf("app: status server: %w", err)
			}
			return nil
		})
	}
	if a.hotkeys != nil {
		go a.hotkeys.Start()
		g.Go(func() error { return a.watchHotkeys(gctx) })
	}

	a.log.Info().
		Str("endpoint", a.cfg.API.BaseURL).
		Bool("save_only", a.cfg.Delivery.SaveOnly).
		Bool("recording", a.state.Recording()).
		Msg("relay running")

	err := g.Wait()
	if a.transcripts != nil {
		a.log.Info().Str("path", a.transcripts.Path()).Msg("transcript log written")
	}
	return err
}

func (a *App) watchEvents(ctx context.Context) error {
	events := a.ctrl.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			a.log.Debug().Str("event", e.Type.String()).Msg("controller event")
			if e.Type == pipeline.EventEndpointPaused && a.salvage != nil {
				a.log.Warn().Str("dir", a.salvage.Dir()).Msg("endpoint down, undelivered audio is saved to disk")
			}
			if a.opts.OnEvent != nil {
				a.opts.OnEvent(e)
			}
		}
	}
}

func (a *App) watchHotkeys(ctx context.Context) error {
	defer a.hotkeys.Stop()
	events := a.hotkeys.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				a.log.Info().Msg("hotkey listener stopped")
				return nil
			}
			a.handleHotkey(ev)
		}
	}
}

func (a *App) handleHotkey(ev hotkey.Event) {
	a.log.Debug().Str("action", ev.Action.String()).Msg("hotkey")
	switch ev.Action {
	case hotkey.ActionToggle:
		a.ctrl.ToggleRecording()
	case hotkey.ActionStart:
		a.ctrl.Resume()
	case hotkey.ActionRelease:
		a.ctrl.Pause()
	case hotkey.ActionHardStop:
		a.ctrl.HardStop()
	case hotkey.ActionSubmit:
		a.ctrl.Submit()
	case hotkey.ActionClear:
		a.ctrl.StopAndClear()
	}
}

// OpenSource returns the capture source for cfg.Backend.
func OpenSource(cfg config.AudioConfig, stdin io.Reader, log zerolog.Logger) (audio.Source, error) {
	acfg := audio.Config{SampleRate: cfg.SampleRate, FrameSize: cfg.FrameSize, Device: cfg.Device}
	switch cfg.Backend {
	case "stdin":
		if stdin == nil {
			stdin = os.Stdin
		}
		return audio.NewReaderSource(stdin, acfg, log), nil
	case "pulse":
		src, err := audio.NewPulseSource(acfg, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "malgo", "":
		src, err := audio.NewMalgoSource(acfg, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("app: unknown audio backend %q", cfg.Backend)
	}
}

// ListDevices returns the capture devices of cfg.Backend.
func ListDevices(cfg config.AudioConfig, log zerolog.Logger) ([]audio.Device, error) {
	acfg := audio.Config{SampleRate: cfg.SampleRate, FrameSize: cfg.FrameSize}
	switch cfg.Backend {
	case "pulse":
		src, err := audio.NewPulseSource(acfg, log)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return src.Devices()
	case "malgo", "":
		src, err := audio.NewMalgoSource(acfg, log)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return src.Devices()
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoDevices, cfg.Backend)
	}
}
