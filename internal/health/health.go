// Package health serves the liveness and readiness probes of the assistant.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz runs
// every registered [Checker] and answers 503 when one of them fails. Both
// respond with a JSON object holding a "status" field ("ok" or "fail") and,
// for /readyz, a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers in order on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ── Checkers ─────────────────────────────────────────────────────────────────

// ErrStale is wrapped by the [Recent] checker when the last event is too old.
var ErrStale = errors.New("health: stale")

// Recent fails when last reports a time older than maxAge. Before the first
// event it fails as well, unless active reports false: a microphone that is
// not supposed to run is not unhealthy. A nil active means always active.
func Recent(name string, last func() time.Time, maxAge time.Duration, active func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if active != nil && !active() {
			return nil
		}
		t := last()
		if t.IsZero() {
			return fmt.Errorf("%w: nothing received yet", ErrStale)
		}
		if age := time.Since(t); age > maxAge {
			return fmt.Errorf("%w: last update %s ago", ErrStale, age.Round(time.Millisecond))
		}
		return nil
	}}
}

// LastError fails with the error lastErr reports, if any.
func LastError(name string, lastErr func() error) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		return lastErr()
	}}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
