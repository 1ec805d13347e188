// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/wingedpig/instancehub/internal/api"
	"github.com/wingedpig/instancehub/internal/config"
	"github.com/wingedpig/instancehub/internal/events"
	"github.com/wingedpig/instancehub/internal/hub"
	"github.com/wingedpig/instancehub/internal/instance"
	"github.com/wingedpig/instancehub/internal/kvstore"
	"github.com/wingedpig/instancehub/internal/supervisor"
)

// ErrAlreadyServing is returned when another daemon holds the data directory.
var ErrAlreadyServing = errors.New("another instancehub daemon is using this data directory")

// App is the main application container.
type App struct {
	mu sync.Mutex

	version    string
	executable string
	config     *config.Config
	lock       *flock.Flock
	kv         kvstore.Store
	eventBus   *events.MemoryEventBus
	controller *hub.Controller
	apiServer  *api.Server
	listener   net.Listener
	addr       atomic.Value // string, set once listening

	cancelBlink context.CancelFunc
	serveErr    chan error

	done     chan struct{}
	stopOnce sync.Once
	shutOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string // empty means defaults only
	Host       string
	Port       int
	DataDir    string
	Version    string // Application version string
}

// New loads configuration and creates an App. Nothing is started.
func New(opts Options) (*App, error) {
	var cfg *config.Config
	if opts.ConfigPath != "" {
		loaded, err := config.NewLoader().LoadWithDefaults(context.Background(), opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}

	// Command-line overrides win over the file
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
		cfg.Store.Path = ""
	}
	config.ApplyDefaults(cfg)

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	return &App{
		version:    opts.Version,
		executable: exe,
		config:     cfg,
		done:       make(chan struct{}),
		serveErr:   make(chan error, 1),
	}, nil
}

// Config returns the effective configuration.
func (app *App) Config() *config.Config {
	return app.config
}

// Initialize opens storage and builds every component. The API port is
// bound here so a busy port fails before any process could be started.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	log.Printf("Using data directory %s", dataDir)

	app.lock = flock.New(filepath.Join(dataDir, "instancehub.lock"))
	locked, err := app.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return ErrAlreadyServing
	}

	app.kv, err = kvstore.Open(cfg.Store)
	if err != nil {
		app.lock.Unlock()
		return fmt.Errorf("open store: %w", err)
	}
	log.Printf("Using %s store at %s", cfg.Store.Backend, cfg.Store.Path)

	app.eventBus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents:      cfg.Events.History.MaxEvents,
		HistoryMaxAge:         config.ParseDuration(cfg.Events.History.MaxAge, time.Hour),
		HistoryMaxPerInstance: cfg.Events.History.MaxPerInstance,
	})

	starter := supervisor.New(supervisor.Options{
		Shell:    cfg.Shell.Command,
		Env:      cfg.Shell.Env,
		PTY:      cfg.Shell.PTY,
		Encoding: cfg.Console.Encoding,
	})

	app.controller = hub.NewController(hub.Options{
		Store:         instance.NewStore(app.kv, filepath.Join(dataDir, "instances")),
		Starter:       starter,
		Bus:           app.eventBus,
		AlarmPatterns: cfg.Console.AlarmPatterns,
		BlinkInterval: config.ParseDuration(cfg.Console.BlinkInterval, 500*time.Millisecond),
		Hub:           config.HubContext{Executable: app.executable, DataDir: dataDir},
	})

	app.apiServer = api.NewServer(api.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, api.Dependencies{
		Hub:      app.controller,
		EventBus: app.eventBus,
		Shutdown: app.Stop,
		Version:  app.version,
	})

	app.listener, err = app.apiServer.Listen()
	if err != nil {
		app.eventBus.Close()
		app.kv.Close()
		app.lock.Unlock()
		return fmt.Errorf("listen on %s: %w", app.apiServer.Addr(), err)
	}

	app.addr.Store(app.listener.Addr().String())

	list, err := app.controller.List()
	if err != nil {
		log.Printf("Warning: failed to list instances: %v", err)
	}
	log.Printf("Loaded %d instances", len(list))

	return nil
}

// Addr returns the address the API server is bound to.
func (app *App) Addr() string {
	addr, _ := app.addr.Load().(string)
	return addr
}

// Controller returns the instance controller.
func (app *App) Controller() *hub.Controller {
	return app.controller
}

// Start starts the alarm blinker and the API server.
func (app *App) Start(ctx context.Context) error {
	blinkCtx, cancel := context.WithCancel(context.Background())
	app.cancelBlink = cancel
	go app.controller.Run(blinkCtx)

	go func() {
		app.serveErr <- app.apiServer.Serve(app.listener)
	}()
	return nil
}

// Run starts the app and blocks until a signal, ctx cancellation, a
// shutdown request or an API server failure.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-ctx.Done():
		log.Printf("Context cancelled, shutting down...")
	case <-app.done:
		log.Printf("Shutdown requested...")
	case serveErr = <-app.serveErr:
		log.Printf("API server error: %v", serveErr)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		return err
	}
	return serveErr
}

// Shutdown stops every instance, then the API server, then releases
// storage. It runs once; later calls return nil.
func (app *App) Shutdown(ctx context.Context) error {
	var result error
	app.shutOnce.Do(func() {
		result = app.shutdown(ctx)
	})
	return result
}

func (app *App) shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var errs []error
	if app.controller != nil {
		running := app.controller.RunningInstances()
		if len(running) > 0 {
			log.Printf("Stopping %d running instances", len(running))
		}
		if err := app.controller.StopAll(shutdownCtx); err != nil {
			log.Printf("Error stopping instances: %v", err)
			errs = append(errs, err)
		}
		if app.eventBus != nil {
			app.eventBus.Publish(shutdownCtx, events.Event{
				Type:    events.EventHubShutdown,
				Payload: map[string]interface{}{"stopped": running},
			})
		}
	}

	if app.cancelBlink != nil {
		app.cancelBlink()
	}

	if app.apiServer != nil {
		if err := app.apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down API server: %v", err)
		}
	}

	if app.eventBus != nil {
		app.eventBus.Close()
	}
	if app.kv != nil {
		if err := app.kv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.lock != nil {
		app.lock.Unlock()
	}

	log.Println("Shutdown complete")
	return errors.Join(errs...)
}

// Stop signals the app to shut down. Safe to call multiple times and
// does not block.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}
