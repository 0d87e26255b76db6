// Package status serves a local HTTP surface for inspecting and driving
// the pipeline.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-relay/internal/audio"
	"github.com/chaz8081/gostt-relay/internal/health"
	"github.com/chaz8081/gostt-relay/internal/inject"
	"github.com/chaz8081/gostt-relay/internal/pipeline"
)

const shutdownTimeout = 5 * time.Second

// DeviceSelector switches the capture device at runtime.
type DeviceSelector interface {
	Devices() ([]audio.Device, error)
	DeviceName() string
	Select(want string) (string, error)
}

// Options holds the collaborators exposed by the server. Output, Devices,
// Gatherer and Health may be nil; their routes are then not registered.
type Options struct {
	Addr       string
	Controller *pipeline.Controller
	Output     *inject.Switch
	Devices    DeviceSelector
	SalvageDir string
	Gatherer   prometheus.Gatherer
	Health     *health.Handler
}

// Report is the body of GET /status.
type Report struct {
	State        pipeline.Snapshot `json:"state"`
	QueueDepth   int               `json:"queue_depth"`
	SalvageDir   string            `json:"salvage_dir,omitempty"`
	NotebookMode bool              `json:"notebook_mode"`
}

type deviceReport struct {
	Current string         `json:"current"`
	Devices []audio.Device `json:"devices,omitempty"`
}

type controlResponse struct {
	Recording    bool `json:"recording"`
	Purged       int  `json:"purged,omitempty"`
	NotebookMode bool `json:"notebook_mode"`
}

// Server is the status HTTP server.
type Server struct {
	opts Options
	log  zerolog.Logger
	mux  *http.ServeMux
}

// New builds the route table.
func New(opts Options, log zerolog.Logger) *Server {
	s := &Server{opts: opts, log: log, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /toggle", s.handleToggle)
	s.mux.HandleFunc("POST /submit", s.handleSubmit)
	s.mux.HandleFunc("POST /clear", s.handleClear)
	s.mux.HandleFunc("POST /hard-stop", s.handleHardStop)
	if opts.Output != nil {
		s.mux.HandleFunc("POST /notebook", s.handleNotebookMode)
		if opts.Output.Notebook() != nil {
			s.mux.HandleFunc("GET /notebook", s.handleNotebookContent)
			s.mux.HandleFunc("POST /notebook/clear", s.handleNotebookClear)
		}
	}
	if opts.Devices != nil {
		s.mux.HandleFunc("GET /devices", s.handleDevices)
		s.mux.HandleFunc("POST /device", s.handleSelectDevice)
	}
	if opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Health != nil {
		opts.Health.Register(s.mux)
	}
	return s
}

// Handler returns the HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mux.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("request")
	})
}

// Run serves on opts.Addr until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	c := s.opts.Controller
	writeJSON(w, http.StatusOK, Report{
		State:        c.State().Snapshot(),
		QueueDepth:   c.QueueLen(),
		SalvageDir:   s.opts.SalvageDir,
		NotebookMode: s.notebookMode(),
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, _ *http.Request) {
	on := s.opts.Controller.ToggleRecording()
	s.writeControl(w, controlResponse{Recording: on})
}

func (s *Server) handleSubmit(w http.ResponseWriter, _ *http.Request) {
	if !s.opts.Controller.Submit() {
		http.Error(w, "not recording", http.StatusConflict)
		return
	}
	s.writeControl(w, controlResponse{Recording: true})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	n := s.opts.Controller.StopAndClear()
	s.writeControl(w, controlResponse{Purged: n})
}

func (s *Server) handleHardStop(w http.ResponseWriter, _ *http.Request) {
	n := s.opts.Controller.HardStop()
	s.writeControl(w, controlResponse{Purged: n})
}

func (s *Server) handleNotebookMode(w http.ResponseWriter, r *http.Request) {
	var on bool
	if v := r.URL.Query().Get("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "enabled must be true or false", http.StatusBadRequest)
			return
		}
		on = s.opts.Output.SetNotebookMode(b)
	} else {
		on = s.opts.Output.ToggleNotebookMode()
	}
	s.log.Info().Bool("notebook_mode", on).Msg("output mode changed")
	s.writeControl(w, controlResponse{Recording: s.opts.Controller.State().Recording(), NotebookMode: on})
}

func (s *Server) handleNotebookContent(w http.ResponseWriter, _ *http.Request) {
	text, err := s.opts.Output.Notebook().Content()
	if err != nil {
		s.log.Error().Err(err).Msg("reading notebook failed")
		http.Error(w, "reading notebook failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func (s *Server) handleNotebookClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.opts.Output.Notebook().Clear(); err != nil {
		s.log.Error().Err(err).Msg("clearing notebook failed")
		http.Error(w, "clearing notebook failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devs, err := s.opts.Devices.Devices()
	if err != nil {
		s.log.Error().Err(err).Msg("listing devices failed")
		http.Error(w, "listing devices failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, deviceReport{Current: s.opts.Devices.DeviceName(), Devices: devs})
}

// handleSelectDevice switches capture to ?id=, which is matched like the
// audio.device setting. An empty id selects the system default.
func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("id") {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	name, err := s.opts.Devices.Select(q.Get("id"))
	switch {
	case errors.Is(err, audio.ErrDeviceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		s.log.Error().Err(err).Msg("switching device failed")
		http.Error(w, "switching device failed", http.StatusInternalServerError)
		return
	}
	s.log.Info().Str("device", name).Msg("capture device changed")
	writeJSON(w, http.StatusOK, deviceReport{Current: name})
}

func (s *Server) notebookMode() bool {
	return s.opts.Output != nil && s.opts.Output.NotebookMode()
}

func (s *Server) writeControl(w http.ResponseWriter, res controlResponse) {
	res.NotebookMode = res.NotebookMode || s.notebookMode()
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
