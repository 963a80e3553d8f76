// Package app wires the notepad's components together and manages the
// process lifecycle: configuration, persistence, the document workspace,
// the web server and live config reload.
package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/notepad/internal/config"
	"github.com/dshills/notepad/internal/config/watcher"
	"github.com/dshills/notepad/internal/logging"
	"github.com/dshills/notepad/internal/store"
	"github.com/dshills/notepad/internal/web"
	"github.com/dshills/notepad/internal/workspace"
)

// readHeaderTimeout bounds slow clients on the HTTP listener.
const readHeaderTimeout = 10 * time.Second

// Options configures the application. Non-empty fields override the
// loaded configuration.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// Addr is the HTTP listen address.
	Addr string

	// LogLevel sets the logging verbosity.
	LogLevel string

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

// Application owns every long-lived component.
type Application struct {
	opts   Options
	cfg    *config.Config
	logger *logging.Logger

	store      store.Store
	registry   *workspace.Registry
	server     *web.Server
	httpServer *http.Server
	watcher    *watcher.Watcher

	running      atomic.Bool
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// New loads configuration and initializes all components in dependency
// order. Components created before a failure are released.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts: opts,
		done: make(chan struct{}),
	}
	if err := app.bootstrap(); err != nil {
		app.release()
		return nil, err
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	cfg, err := app.loadConfig(app.opts.ConfigPath)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.cfg = cfg

	out := app.opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	app.logger = logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Output: out,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration+5*time.Second)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return &InitError{Component: "store", Err: err}
	}
	app.store = st
	app.logger.Info("opened %s store", cfg.Store.Driver)

	app.registry = workspace.New(
		workspace.WithStore(st),
		workspace.WithLogger(app.logger),
		workspace.WithMaxEntries(cfg.History.TabMaxEntries),
		workspace.WithQuietPeriod(cfg.History.QuietPeriod.Duration),
		workspace.WithPersistDelay(cfg.Store.PersistDelay.Duration),
	)
	app.server = web.NewServer(app.registry,
		web.WithStore(st),
		web.WithLogger(app.logger),
		web.WithSettings(cfg.Editor),
		web.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
	)

	if err := app.registry.Restore(ctx); err != nil {
		return &InitError{Component: "workspace", Err: err}
	}
	if err := app.server.LoadSettings(ctx); err != nil {
		app.logger.Warn("loading saved settings: %v", err)
	}

	if app.opts.ConfigPath != "" {
		w, err := watcher.New(app.opts.ConfigPath, watcher.WithLogger(app.logger.WithComponent("config")))
		if err != nil {
			app.logger.Warn("config reload disabled: %v", err)
		} else {
			w.OnChange(app.reload)
			app.watcher = w
		}
	}

	app.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.server,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return nil
}

func (app *Application) loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if app.opts.Addr != "" {
		cfg.Server.Addr = app.opts.Addr
	}
	if app.opts.LogLevel != "" {
		cfg.Logging.Level = app.opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reload applies a changed config file. Only settings that can change
// without a restart are picked up: log level and display settings.
func (app *Application) reload(path string) {
	cfg, err := app.loadConfig(path)
	if err != nil {
		app.logger.Warn("ignoring config change: %v", err)
		return
	}
	app.logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	if err := app.server.SetSettings(cfg.Editor); err != nil {
		app.logger.Warn("ignoring editor settings: %v", err)
	}
	app.logger.Info("reloaded configuration from %s", path)
}

// Run serves HTTP until Shutdown is called or the listener fails.
func (app *Application) Run() error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return &InitError{Component: "listener", Err: err}
	}
	return app.Serve(ln)
}

// Serve serves HTTP on ln until Shutdown is called or serving fails.
func (app *Application) Serve(ln net.Listener) error {
	if !app.running.CompareAndSwap(false, true) {
		_ = ln.Close()
		return ErrAlreadyRunning
	}
	app.logger.Info("listening on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			<-app.done
			return app.shutdownErr
		}
		_ = app.Shutdown()
		return err
	case <-app.done:
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return app.shutdownErr
	}
}

// Shutdown stops the server, flushes every document to the store and
// releases resources. It is safe to call more than once.
func (app *Application) Shutdown() error {
	app.shutdownOnce.Do(func() {
		app.shutdownErr = app.shutdown()
		close(app.done)
	})
	return app.shutdownErr
}

func (app *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	var errs []error
	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if app.server != nil {
		_ = app.server.Close()
	}
	if app.watcher != nil {
		_ = app.watcher.Close()
	}
	if app.registry != nil {
		if err := app.registry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.logger.Info("shut down")
	return errors.Join(errs...)
}

// release frees whatever bootstrap managed to create.
func (app *Application) release() {
	if app.watcher != nil {
		_ = app.watcher.Close()
	}
	if app.store != nil {
		_ = app.store.Close()
	}
}

// IsRunning returns true while the application is serving.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the effective configuration.
func (app *Application) Config() *config.Config {
	return app.cfg
}

// Workspace returns the document registry.
func (app *Application) Workspace() *workspace.Registry {
	return app.registry
}

// Server returns the web server.
func (app *Application) Server() *web.Server {
	return app.server
}
