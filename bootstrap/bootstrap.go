// Package bootstrap wires configuration, persistence, metrics, the host
// bridge and the room into a running server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/adapters/clock"
	"github.com/artpar/roomkit/adapters/hasher"
	apihttp "github.com/artpar/roomkit/adapters/http"
	"github.com/artpar/roomkit/adapters/idgen"
	"github.com/artpar/roomkit/adapters/metrics"
	"github.com/artpar/roomkit/adapters/sqlite"
	"github.com/artpar/roomkit/adapters/wshost"
	"github.com/artpar/roomkit/config"
	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/modules/auth"
	"github.com/artpar/roomkit/ports"
	"github.com/artpar/roomkit/room"
)

// ErrHostNotConnected is reported by readiness while no host is attached.
var ErrHostNotConnected = errors.New("host not connected")

// App represents the running server.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Holder     *config.Holder
	DB         *sqlite.DB
	Metrics    *metrics.Collector
	Loop       *loop.Loop
	Host       *wshost.Host
	Room       *room.Room
	Auth       *auth.Auth
	HTTPServer *http.Server
}

// Options configures New.
type Options struct {
	// ConfigPath is watched for changes when the file exists. Otherwise
	// configuration comes from the environment alone.
	ConfigPath string
	Version    string

	// LogOutput defaults to stdout.
	LogOutput io.Writer

	// Modules are bound after the built-in ones.
	Modules []room.Module
}

// New creates and wires the application without starting it.
func New(opts Options) (*App, error) {
	a := &App{}

	if err := a.initConfig(opts); err != nil {
		return nil, err
	}

	a.Logger.Info().Msg("initializing roomkit")

	if err := a.initDatabase(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	var observer ports.Observer
	if a.Config.Metrics.Enabled {
		a.Metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
		observer = a.Metrics
		a.Logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initRoom(opts, observer); err != nil {
		a.closeDB()
		return nil, err
	}

	a.initReload()
	a.initHTTPServer(opts.Version)
	return a, nil
}

func (a *App) initConfig(opts Options) error {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}

	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			a.Logger = SetupLogger(cfg.Logging, out)
			a.Holder, err = config.NewHolder(opts.ConfigPath, a.Logger)
			if err != nil {
				return err
			}
			a.Config = a.Holder.Get()
			return nil
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.Config = cfg
	a.Logger = SetupLogger(cfg.Logging, out)
	return nil
}

func (a *App) initDatabase() error {
	db, err := sqlite.Open(a.Config.Database.DSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Logger.Info().Str("dsn", a.Config.Database.DSN).Msg("database initialized")
	return nil
}

func (a *App) initRoom(opts Options, observer ports.Observer) error {
	a.Loop = loop.New(a.Logger)

	hostOpts := wshost.Options{
		Loop:   a.Loop,
		Logger: a.Logger,
		Token:  a.Config.Host.Token,
	}
	if a.Metrics != nil {
		hostOpts.OnRoster = func(n int) { a.Metrics.PlayersOnline.Set(float64(n)) }
		hostOpts.OnConnection = func(connected bool) {
			if connected {
				a.Metrics.HostConnected.Set(1)
			} else {
				a.Metrics.HostConnected.Set(0)
			}
		}
	}
	a.Host = wshost.New(hostOpts)

	r, au, err := NewRoom(a.Config, a.Host, a.Loop, RoomDeps{
		Store:    sqlite.NewRoleStore(a.DB),
		Hasher:   hasher.NewBcrypt(a.Config.Auth.BcryptCost),
		Clock:    clock.Real{},
		IDs:      idgen.Short{},
		Observer: observer,
		Logger:   a.Logger,
		Modules:  opts.Modules,
	})
	if err != nil {
		return err
	}
	a.Host.SetDispatcher(r.HandleHostEvent)
	a.Room = r
	a.Auth = au

	a.Logger.Info().
		Strs("roles", a.Config.Room.Roles).
		Int("commands", len(r.Commands(nil))).
		Msg("room ready")
	return nil
}

func (a *App) initReload() {
	if a.Holder == nil {
		return
	}
	a.Holder.OnChange(func(cfg *config.Config) {
		a.Auth.Update(AuthConfig(cfg.Auth))
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	})
	if a.Metrics != nil {
		a.Holder.OnReload(a.Metrics.ConfigReloaded)
	}
}

func (a *App) initHTTPServer(version string) {
	routerCfg := apihttp.RouterConfig{
		Room:        a.Room,
		Loop:        a.Loop,
		Version:     version,
		HostHandler: a.Host,
		Ready:       a.Ready,
		APIToken:    a.Config.Host.Token,
	}
	if a.Metrics != nil {
		routerCfg.MetricsHandler = a.Metrics.Handler()
		routerCfg.MetricsPath = a.Config.Metrics.Path
	}

	addr := a.Config.Server.Address()
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      apihttp.NewRouter(routerCfg, a.Logger),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	a.Logger.Info().Str("addr", addr).Msg("http server configured")
}

// Ready reports an error while no host runtime is attached.
func (a *App) Ready() error {
	if !a.Host.Connected() {
		return ErrHostNotConnected
	}
	return nil
}

// Run starts the loop, config watching and the HTTP server, and blocks
// until ctx is cancelled, SIGINT/SIGTERM arrives, or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan error, 1)
	go func() { loopDone <- a.Loop.Run(ctx) }()

	if a.Holder != nil {
		if err := a.Holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watching disabled")
		}
		a.Holder.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		a.Logger.Info().Msg("context cancelled, shutting down")
	}

	cancel()
	<-loopDone

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops the server and releases resources. The loop stops with
// the context passed to Run.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.closeDB()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) closeDB() {
	if a.DB == nil {
		return
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("database close error")
	}
	a.DB = nil
}
