package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder keeps the current configuration and reloads it on file changes or
// SIGHUP. A failed reload keeps the previous configuration.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	onReload []func(error)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads path and returns a holder for it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	return &Holder{
		config: cfg,
		path:   absPath,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Path returns the absolute path being watched.
func (h *Holder) Path() string { return h.path }

// Reload re-reads the file and notifies listeners.
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		h.notifyReload(err)
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	listeners := slices.Clone(h.onChange)
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)
	for _, fn := range listeners {
		fn(newCfg)
	}
	h.notifyReload(nil)

	h.logger.Info().Msg("configuration reloaded")
	return nil
}

func (h *Holder) notifyReload(err error) {
	h.mu.RLock()
	listeners := slices.Clone(h.onReload)
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// OnChange registers a callback for successful reloads.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnReload registers a callback for every reload attempt; err is nil on
// success.
func (h *Holder) OnReload(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReload = append(h.onReload, fn)
}

// WatchFile reloads whenever the file is written or replaced.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Editors that save atomically replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals reloads on SIGHUP.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			h.logger.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("config file changed")
			if err := h.Reload(); err != nil {
				h.logger.Error().Err(err).Msg("file watch reload failed")
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}
	if len(old.Auth.Passwords) != len(new.Auth.Passwords) {
		h.logger.Info().
			Int("old", len(old.Auth.Passwords)).
			Int("new", len(new.Auth.Passwords)).
			Msg("role passwords changed")
	}
	if len(old.Auth.Static) != len(new.Auth.Static) {
		h.logger.Info().
			Int("old", len(old.Auth.Static)).
			Int("new", len(new.Auth.Static)).
			Msg("static role assignments changed")
	}
	for _, field := range NonReloadableFields() {
		if changed(old, new, field) {
			h.logger.Warn().Str("field", field).Msg("change requires a restart")
		}
	}
}

func changed(old, new *Config, field string) bool {
	switch field {
	case "room.roles":
		return !slices.Equal(old.Room.Roles, new.Room.Roles)
	case "room.player":
		return len(old.Room.Player) != len(new.Room.Player)
	case "server.host":
		return old.Server.Host != new.Server.Host
	case "server.port":
		return old.Server.Port != new.Server.Port
	case "database.dsn":
		return old.Database.DSN != new.Database.DSN
	case "auth.default_role":
		return old.Auth.DefaultRole != new.Auth.DefaultRole
	}
	return false
}

// ReloadableFields lists what takes effect without a restart.
func ReloadableFields() []string {
	return []string{
		"auth.passwords",
		"auth.static",
		"logging.level",
	}
}

// NonReloadableFields lists what needs a restart.
func NonReloadableFields() []string {
	return []string{
		"room.roles",
		"room.player",
		"server.host",
		"server.port",
		"database.dsn",
		"auth.default_role",
	}
}
