package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/chaz8081/gostt-relay/internal/pipeline"
)

const checkTimeout = 5 * time.Second

// ErrEndpointDown is reported by EndpointCheck while the last probe failed.
var ErrEndpointDown = errors.New("transcription endpoint unreachable")

// Check is a named readiness condition.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// EndpointCheck fails while state reports the endpoint unhealthy. It reads
// the flag only and never probes.
func EndpointCheck(state *pipeline.State) Check {
	return Check{
		Name: "endpoint",
		Fn: func(context.Context) error {
			if !state.EndpointHealthy() {
				return ErrEndpointDown
			}
			return nil
		},
	}
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz.
type Handler struct {
	checks []Check
}

// NewHandler returns a Handler whose /readyz runs checks in order.
func NewHandler(checks ...Check) *Handler {
	return &Handler{checks: append([]Check(nil), checks...)}
}

// Healthz always answers 200 while the process serves HTTP.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz answers 503 if any check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := response{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Fn(ctx)
		cancel()
		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, res)
}

// Register adds both routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
