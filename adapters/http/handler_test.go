package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/artpar/roomkit/adapters/http"
	"github.com/artpar/roomkit/adapters/memory"
	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/ports"
	"github.com/artpar/roomkit/room"
)

func newRouter(t *testing.T, cfg httpadapter.RouterConfig) (http.Handler, *memory.Host) {
	t.Helper()
	host := memory.NewHost()
	lp := loop.New(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go lp.Run(ctx)

	r, err := room.New(host, lp, room.Config{
		Roles:  []string{"player", "admin"},
		Player: map[string]players.PropertyOptions{"afk": {Default: false}},
		State:  map[string]any{"mode": "classic"},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = r.AddCommand(room.Command{
		Names:       []string{"kick", "k"},
		Access:      ">=admin",
		Description: "Kick a player",
		Execute: func(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) {
			return nil, nil
		},
	})
	require.NoError(t, err)

	cfg.Room = r
	cfg.Loop = lp
	return httpadapter.NewRouter(cfg, zerolog.Nop()), host
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newRouter(t, httpadapter.RouterConfig{})

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := get(t, h, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String(), path)
	}
}

func TestReadiness_Unavailable(t *testing.T) {
	h, _ := newRouter(t, httpadapter.RouterConfig{
		Ready: func() error { return errors.New("no host connected") },
	})

	rec := get(t, h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no host connected")
}

func TestVersion(t *testing.T) {
	h, _ := newRouter(t, httpadapter.RouterConfig{Version: "1.2.3"})

	var body httpadapter.VersionResponse
	require.NoError(t, json.Unmarshal(get(t, h, "/version").Body.Bytes(), &body))
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "roomkit", body.Service)
}

func TestCommands(t *testing.T) {
	h, _ := newRouter(t, httpadapter.RouterConfig{})

	rec := get(t, h, "/api/commands")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []httpadapter.CommandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, []string{"kick", "k"}, body[0].Names)
	assert.Equal(t, ">=admin", body[0].Access)
}

func TestPlayersAndState(t *testing.T) {
	h, host := newRouter(t, httpadapter.RouterConfig{})
	host.Add(ports.Player{ID: 7, Name: "alice", Auth: "secret-auth-key", Conn: "3132372E302E302E31"})

	rec := get(t, h, "/api/players")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0]["name"])
	assert.Equal(t, false, list[0]["afk"])
	assert.NotContains(t, list[0], "auth")
	assert.NotContains(t, list[0], "conn")
	assert.NotContains(t, rec.Body.String(), "secret-auth-key")

	rec = get(t, h, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"classic"}`, rec.Body.String())
}

func TestAPIToken(t *testing.T) {
	h, host := newRouter(t, httpadapter.RouterConfig{APIToken: "s3cret"})
	host.Join("alice", "a-1")

	for _, path := range []string{"/api/players", "/api/commands", "/api/state", "/api/players?token=wrong"} {
		assert.Equal(t, http.StatusUnauthorized, get(t, h, path).Code, path)
	}

	assert.Equal(t, http.StatusOK, get(t, h, "/api/players?token=s3cret").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code, "health stays open")
}

// heldLoop queues tasks without running them.
type heldLoop struct {
	tasks []loop.Task
}

func (l *heldLoop) Post(task loop.Task) { l.tasks = append(l.tasks, task) }

func TestAPI_LateLoopResultIsDropped(t *testing.T) {
	host := memory.NewHost()
	host.Join("alice", "")
	lp := &heldLoop{}
	r, err := room.New(host, loop.New(zerolog.Nop()), room.Config{
		Roles:  []string{"player"},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	h := httpadapter.NewRouter(httpadapter.RouterConfig{Room: r, Loop: lp}, zerolog.Nop())

	for _, path := range []string{"/api/players", "/api/commands", "/api/state"} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	require.Len(t, lp.tasks, 3)
	for _, task := range lp.tasks {
		assert.NotPanics(t, func() { task() })
	}
}

func TestOptionalMounts(t *testing.T) {
	h, _ := newRouter(t, httpadapter.RouterConfig{})
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/ws").Code)

	h, _ = newRouter(t, httpadapter.RouterConfig{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("metrics"))
		}),
	})
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}
