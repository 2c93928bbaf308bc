// Package http serves the roomkit HTTP surface: the host websocket,
// Prometheus metrics, health checks and read-only room introspection.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/ports"
	"github.com/artpar/roomkit/room"
)

// errLoopTimeout is returned when the room loop does not pick up a request
// in time.
var errLoopTimeout = errors.New("room loop did not respond")

const loopTimeout = 5 * time.Second

// VersionResponse is the /version body.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// CommandResponse describes one command in /api/commands.
type CommandResponse struct {
	Names       []string `json:"names"`
	Access      string   `json:"access,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Poster schedules work on the room loop.
type Poster interface {
	Post(task loop.Task)
}

// RouterConfig holds the pieces the router exposes. Nil handlers are not
// mounted.
type RouterConfig struct {
	Room    *room.Room
	Loop    Poster
	Version string

	// HostHandler accepts the host runtime websocket at /ws.
	HostHandler http.Handler

	// MetricsHandler serves MetricsPath, "/metrics" when empty.
	MetricsHandler http.Handler
	MetricsPath    string

	// Ready reports whether the room can serve players. Nil means always.
	Ready func() error

	// APIToken guards /api as a bearer token or "token" query parameter.
	// Empty leaves /api open.
	APIToken string
}

// NewRouter creates the HTTP router.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", liveness)
	r.Get("/health/live", liveness)
	r.Get("/health/ready", readiness(cfg.Ready))
	r.Get("/version", version(cfg.Version))

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsHandler)
	}
	if cfg.HostHandler != nil {
		r.Handle("/ws", cfg.HostHandler)
	}

	if cfg.Room != nil && cfg.Loop != nil {
		api := &roomAPI{room: cfg.Room, loop: cfg.Loop, logger: logger}
		r.Route("/api", func(r chi.Router) {
			r.Use(RequireToken(cfg.APIToken))
			r.Use(middleware.Timeout(loopTimeout + time.Second))
			r.Get("/commands", api.commands)
			r.Get("/players", api.players)
			r.Get("/state", api.state)
		})
	}

	return r
}

func liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readiness(ready func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func version(v string) http.HandlerFunc {
	if v == "" {
		v = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: v, Service: "roomkit"})
	}
}

// roomAPI reads room state on the loop goroutine.
type roomAPI struct {
	room   *room.Room
	loop   Poster
	logger zerolog.Logger
}

func (a *roomAPI) commands(w http.ResponseWriter, r *http.Request) {
	out, err := a.onLoop(r.Context(), func() any {
		list := make([]CommandResponse, 0)
		for _, cmd := range a.room.Commands(nil) {
			list = append(list, CommandResponse{
				Names:       cmd.Names(),
				Access:      cmd.Access(),
				Description: cmd.Description(),
			})
		}
		return list
	})
	a.reply(w, out, err)
}

func (a *roomAPI) players(w http.ResponseWriter, r *http.Request) {
	out, err := a.onLoop(r.Context(), func() any {
		list := make([]map[string]any, 0)
		for _, p := range a.room.PlayerList(nil) {
			list = append(list, publicView(p))
		}
		return list
	})
	a.reply(w, out, err)
}

// publicView drops the identity fields a client must not learn.
func publicView(p players.View) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if k == ports.FieldAuth || k == ports.FieldConn {
			continue
		}
		out[k] = v
	}
	return out
}

func (a *roomAPI) state(w http.ResponseWriter, r *http.Request) {
	type encoded struct {
		data []byte
		err  error
	}
	out, err := a.onLoop(r.Context(), func() any {
		data, err := json.Marshal(a.room.State())
		return encoded{data, err}
	})
	if err == nil {
		err = out.(encoded).err
	}
	if err != nil {
		a.reply(w, nil, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out.(encoded).data)
}

// onLoop runs fn on the loop goroutine and returns its result. On timeout
// or cancellation the result is abandoned to the buffered channel.
func (a *roomAPI) onLoop(ctx context.Context, fn func() any) (any, error) {
	done := make(chan any, 1)
	a.loop.Post(func() {
		done <- fn()
	})

	timer := time.NewTimer(loopTimeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errLoopTimeout
	}
}

func (a *roomAPI) reply(w http.ResponseWriter, body any, err error) {
	if err != nil {
		a.logger.Warn().Err(err).Msg("room api request failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if body == nil {
		body = []any{}
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// RequireToken rejects requests that do not carry token. An empty token
// disables the check.
func RequireToken(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte("Bearer " + token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 &&
				subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("token")), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewLoggingMiddleware logs HTTP requests at debug level.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
