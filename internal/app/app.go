package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	dockerCli "github.com/docker/docker/client"
	"github.com/rs/zerolog"
	"github.com/rynowak/tye/internal/api"
	"github.com/rynowak/tye/internal/config"
	"github.com/rynowak/tye/internal/core"
	"github.com/rynowak/tye/internal/engine"
	"github.com/rynowak/tye/internal/event"
	"github.com/rynowak/tye/internal/registry"
	"github.com/rynowak/tye/internal/telemetry"
	"github.com/rynowak/tye/internal/view"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg               *config.Config
	engine            *engine.DockerEngine
	bus               *event.Bus
	runtime           *core.Runtime
	repo              registry.Repository
	views             *view.Sink
	server            *api.Server
	shutdownTelemetry func(context.Context) error
	logger            zerolog.Logger
}

// New creates a new App by wiring up all dependencies.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (a *App, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	// Docker CLI
	dockerClient, err := dockerCli.NewClientWithOpts(dockerCli.FromEnv, dockerCli.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	eng := engine.NewDockerEngine(dockerClient, logger, cfg.Engine.StopGracePeriod)
	closers = append(closers, eng.Close)

	// Metrics
	provider, shutdownTelemetry, err := telemetry.Setup(ctx, &cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() error { return shutdownTelemetry(context.Background()) })
	recorder, err := telemetry.NewEventRecorder(provider)
	if err != nil {
		return nil, err
	}

	// Bus and subscribers
	bus := event.NewBus(logger, cfg.Bus.Capacity)
	views := view.NewSink(logger)
	bus.Subscribe(views)
	bus.Subscribe(recorder)

	// Document store
	repo, err := newRepository(cfg, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, repo.Close)
	if err := repo.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.Store.Driver, err)
	}

	runtime := core.NewRuntime(eng, bus, logger, core.WithStopTimeout(cfg.Engine.StopTimeout))

	return &App{
		cfg:               cfg,
		engine:            eng,
		bus:               bus,
		runtime:           runtime,
		repo:              repo,
		views:             views,
		server:            api.NewServer(runtime, repo, views, logger),
		shutdownTelemetry: shutdownTelemetry,
		logger:            logger,
	}, nil
}

func newRepository(cfg *config.Config, logger zerolog.Logger) (registry.Repository, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverEtcd:
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Store.EtcdEndpoints,
			DialTimeout: cfg.Store.EtcdDialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		return registry.NewEtcdRepository(etcdClient, &cfg.Store, hostname, logger), nil
	default:
		repo, err := registry.NewSQLiteRepository(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return repo, nil
	}
}

// Run starts the bus, the runtime and the API, and blocks until ctx is
// cancelled or the API fails. Everything is shut down before it returns.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("Application starting")

	a.bus.Start(ctx)
	a.runtime.Start()
	unsubscribe := a.views.OnChange(func(m *view.Model) {
		a.logger.Debug().Int("containers", len(m.Containers)).Msg("View updated")
	})
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(a.cfg.API.ListenAddress)
	})
	g.Go(func() error {
		a.logExits(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	return g.Wait()
}

func (a *App) logExits(ctx context.Context) {
	for exit := range a.engine.Watch(ctx) {
		a.logger.Info().
			Str("container", exit.ContainerName).
			Str("resource", exit.ResourceName).
			Int("exit_code", exit.ExitCode).
			Msg("Managed container exited")
	}
}

// shutdown stops accepting requests, then stops every container, then drains
// the bus so the view and metrics see the final Removed events.
func (a *App) shutdown() error {
	a.logger.Info().Msg("Application stopping")
	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}

	a.runtime.Stop(context.Background())

	busCtx, busCancel := context.WithTimeout(context.Background(), a.cfg.API.ShutdownTimeout)
	defer busCancel()
	if err := a.bus.Stop(busCtx); err != nil {
		errs = append(errs, fmt.Errorf("bus shutdown: %w", err))
	}

	telCtx, telCancel := context.WithTimeout(context.Background(), a.cfg.API.ShutdownTimeout)
	defer telCancel()
	if err := a.shutdownTelemetry(telCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) Close() error {
	var firstErr error
	if err := a.repo.Close(); err != nil {
		firstErr = fmt.Errorf("close %s store: %w", a.cfg.Store.Driver, err)
	}
	if err := a.engine.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close docker client: %w", err)
	}
	return firstErr
}
