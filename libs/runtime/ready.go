package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name     string
	Check    func(context.Context) error
	Optional bool
}

type readyResponse struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures,omitempty"`
	Degraded map[string]string `json:"degraded,omitempty"`
}

// NewBaseMuxWithReady serves /healthz (liveness) and /readyz. Optional checks that
// fail are reported as degraded without failing readiness.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		resp := readyResponse{Status: "ok"}
		for _, check := range checks {
			if check.Check == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := check.Check(ctx)
			cancel()
			if err == nil {
				continue
			}
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			if check.Optional {
				if resp.Degraded == nil {
					resp.Degraded = map[string]string{}
				}
				resp.Degraded[name] = err.Error()
				continue
			}
			if resp.Failures == nil {
				resp.Failures = map[string]string{}
			}
			resp.Failures[name] = name + ": " + err.Error()
		}

		code := http.StatusOK
		if len(resp.Failures) > 0 {
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}
