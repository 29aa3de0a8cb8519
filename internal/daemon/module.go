// Package daemon composes the ActivityHub daemon: storage, the change-feed
// hub, the messaging service, the notification job scheduler, and the HTTP
// surface, wired with fx and owned by its lifecycle hooks.
package daemon

import (
	"context"

	"github.com/activityhub/activityhub/internal/api"
	"github.com/activityhub/activityhub/internal/bus"
	"github.com/activityhub/activityhub/internal/config"
	"github.com/activityhub/activityhub/internal/lock"
	"github.com/activityhub/activityhub/internal/logging"
	"github.com/activityhub/activityhub/internal/messaging"
	"github.com/activityhub/activityhub/internal/paths"
	"github.com/activityhub/activityhub/internal/push"
	"github.com/activityhub/activityhub/internal/realtime"
	"github.com/activityhub/activityhub/internal/scheduler"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved daemon configuration passed to the fx module.
type Params struct {
	ConfigPath string // optional override; empty = use default
	Addr       string // optional listen override for testing
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideGateway,
			provideHub,
			provideMessaging,
			providePlanner,
			provideProcessor,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	path := p.ConfigPath
	if path == "" {
		path = paths.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

func provideLogger() (*zap.Logger, error) {
	return logging.New(paths.LogPath(), "hubd")
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock", zap.String("dir", paths.BaseDir()))
	l, err := lock.Acquire(paths.BaseDir())
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*storage.DB, error) {
	db, err := storage.Open(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized")
	return db, nil
}

func provideGateway(cfg *config.Config, logger *zap.Logger) push.Gateway {
	if !cfg.Push.Enabled {
		logger.Info("push delivery disabled")
		return push.NewNopGateway(logger)
	}
	return push.NewExpoGateway(logger)
}

func provideHub(db *storage.DB, b *bus.Bus, logger *zap.Logger) *realtime.Hub {
	return realtime.NewHub(db, b, logger)
}

func provideMessaging(db *storage.DB, b *bus.Bus, gateway push.Gateway, logger *zap.Logger) *messaging.Service {
	return messaging.New(db, b, gateway, logger)
}

func providePlanner(db *storage.DB, logger *zap.Logger) *scheduler.Planner {
	return scheduler.NewPlanner(db, logger)
}

func provideProcessor(cfg *config.Config, db *storage.DB, gateway push.Gateway, logger *zap.Logger) *scheduler.Processor {
	return scheduler.NewProcessor(db, gateway, logger, cfg.JobBatchSize())
}

func provideServer(p Params, cfg *config.Config, db *storage.DB, svc *messaging.Service, planner *scheduler.Planner, processor *scheduler.Processor, hub *realtime.Hub, b *bus.Bus, logger *zap.Logger) *api.Server {
	addr := p.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	return api.NewServer(addr, db, svc, planner, processor, hub, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *api.Server, hub *realtime.Hub, processor *scheduler.Processor, db *storage.DB, lk *lock.Lock, logger *zap.Logger) {
	var cancelLoops context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			loopCtx, cancel := context.WithCancel(context.Background())
			cancelLoops = cancel

			hub.Start(loopCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			go runProcessorLoop(loopCtx, processor, logger, cfg.JobPollInterval())
			go runPurgeLoop(loopCtx, db, logger)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancelLoops != nil {
				cancelLoops()
			}
			srv.Stop(ctx)
			hub.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
