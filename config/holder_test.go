package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/config"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Auth.Static["auth-1"] != "admin" {
		t.Errorf("Static[auth-1] = %s, want admin", got.Auth.Static["auth-1"])
	}
	if !filepath.IsAbs(h.Path()) {
		t.Errorf("Path = %s, want absolute", h.Path())
	}
}

func TestNewHolder_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: chatty\n")

	if _, err := config.NewHolder(path, zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
auth:
  static:
    auth-1: host
    auth-2: admin
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Auth.Static["auth-1"] != "host" {
		t.Errorf("Static[auth-1] = %s, want host", cfg.Auth.Static["auth-1"])
	}
	if len(cfg.Auth.Static) != 2 {
		t.Errorf("len(Static) = %d, want 2", len(cfg.Auth.Static))
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var got *config.Config
	var reloads []error
	h.OnChange(func(cfg *config.Config) { got = cfg })
	h.OnReload(func(err error) { reloads = append(reloads, err) })

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	if got == nil {
		t.Fatal("OnChange callback not called")
	}
	if got != h.Get() {
		t.Error("OnChange received a different config than Get returns")
	}
	if len(reloads) != 1 || reloads[0] != nil {
		t.Errorf("reloads = %v, want [nil]", reloads)
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := false
	var reloadErr error
	h.OnChange(func(*config.Config) { changed = true })
	h.OnReload(func(err error) { reloadErr = err })

	before := h.Get()

	if err := os.WriteFile(path, []byte("auth:\n  default_role: wizard\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if h.Get() != before {
		t.Error("failed reload replaced the config")
	}
	if changed {
		t.Error("OnChange called for failed reload")
	}
	if reloadErr == nil {
		t.Error("OnReload not told about the failure")
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan *config.Config, 4)
	h.OnChange(func(cfg *config.Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Logging.Level == "warn" {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for file change reload")
		}
	}
}

func TestHolder_StopTwice(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}
	h.WatchSignals()

	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = h.Get().Auth.DefaultRole
			}
		}()
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()

	if h.Get() == nil {
		t.Fatal("Get returned nil after concurrent reloads")
	}
}

func TestReloadableFields(t *testing.T) {
	fields := config.ReloadableFields()
	want := map[string]bool{"auth.passwords": true, "auth.static": true, "logging.level": true}

	if len(fields) != len(want) {
		t.Fatalf("ReloadableFields = %v", fields)
	}
	for _, f := range fields {
		if !want[f] {
			t.Errorf("unexpected reloadable field %s", f)
		}
	}
}

func TestNonReloadableFields(t *testing.T) {
	reloadable := map[string]bool{}
	for _, f := range config.ReloadableFields() {
		reloadable[f] = true
	}
	for _, f := range config.NonReloadableFields() {
		if reloadable[f] {
			t.Errorf("%s listed as both reloadable and not", f)
		}
	}
}

func validConfig() string {
	return `
room:
  roles: [player, admin, host]
auth:
  static:
    auth-1: admin
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "roomkit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
