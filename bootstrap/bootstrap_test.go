package bootstrap_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/roomkit/adapters/wshost"
	"github.com/artpar/roomkit/bootstrap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	content = strings.ReplaceAll(content, "DBPATH", filepath.Join(dir, "roomkit.db"))
	path := filepath.Join(dir, "roomkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const baseConfig = `
room:
  roles: [player, admin, host]
  player:
    afk: false
database:
  dsn: "DBPATH"
logging:
  level: error
`

func TestNew_FromEnv(t *testing.T) {
	t.Setenv("ROOMKIT_DATABASE_DSN", filepath.Join(t.TempDir(), "env.db"))
	t.Setenv("ROOMKIT_METRICS_ENABLED", "false")

	app, err := bootstrap.New(bootstrap.Options{LogOutput: io.Discard})
	require.NoError(t, err)
	defer app.Shutdown()

	assert.Nil(t, app.Holder)
	assert.Nil(t, app.Metrics)
	assert.NotNil(t, app.DB)
	assert.NotNil(t, app.Room)
	assert.NotNil(t, app.HTTPServer)
	assert.Equal(t, "0.0.0.0:8080", app.HTTPServer.Addr)
}

func TestNew_WithConfigFile(t *testing.T) {
	path := writeConfig(t, baseConfig)

	app, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	require.NoError(t, err)
	defer app.Shutdown()

	require.NotNil(t, app.Holder)
	require.NotNil(t, app.Metrics)

	_, ok := app.Room.Property("afk")
	assert.True(t, ok, "configured property declared")
	_, ok = app.Room.Property("role")
	assert.True(t, ok, "auth role property declared")

	for _, name := range []string{"login", "logout", "setrole", "whois", "help"} {
		_, ok := app.Room.Command(name)
		assert.True(t, ok, "command %s registered", name)
	}

	versions, err := app.DB.Versions(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, versions)
}

func TestNew_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "logging:\n  format: xml\n")

	_, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	require.Error(t, err)
}

func TestApp_ReloadCountsMetrics(t *testing.T) {
	path := writeConfig(t, baseConfig)

	app, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	require.NoError(t, err)
	defer app.Shutdown()

	require.NoError(t, app.Holder.Reload())
	assert.Equal(t, float64(1), testutil.ToFloat64(app.Metrics.ConfigReloads))

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: nope\n"), 0644))
	require.Error(t, app.Holder.Reload())
	assert.Equal(t, float64(1), testutil.ToFloat64(app.Metrics.ConfigReloadErrors))
}

func TestApp_HostChatCommand(t *testing.T) {
	path := writeConfig(t, baseConfig)

	app, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	require.NoError(t, err)
	defer app.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.Loop.Run(ctx)

	srv := httptest.NewServer(app.HTTPServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return app.Ready() == nil }, 2*time.Second, 10*time.Millisecond)

	alice := json.RawMessage(`{"id":1,"name":"alice","auth":"a-1"}`)
	require.NoError(t, conn.WriteJSON(wshost.Envelope{
		Type: wshost.TypeEvent,
		Name: "playerJoin",
		Args: []json.RawMessage{alice},
	}))
	require.NoError(t, conn.WriteJSON(wshost.Envelope{
		Type: wshost.TypeEvent,
		Name: "playerChat",
		Args: []json.RawMessage{alice, json.RawMessage(`"!help"`)},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env wshost.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type != wshost.TypeChat || !strings.HasPrefix(env.Message, "Commands:") {
			continue
		}
		require.NotNil(t, env.Target)
		assert.Equal(t, 1, *env.Target)
		assert.Contains(t, env.Message, "login")
		assert.NotContains(t, env.Message, "setrole")
		break
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(app.Metrics.PlayersOnline))
	assert.Equal(t, float64(1), testutil.ToFloat64(app.Metrics.HostConnected))
}
