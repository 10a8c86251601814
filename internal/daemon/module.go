// Package daemon composes the hub: every component is provided through
// fx and wired by injection, with no ambient globals.
package daemon

import (
	"context"

	"github.com/mbenevides/hermes/internal/bus"
	"github.com/mbenevides/hermes/internal/call"
	"github.com/mbenevides/hermes/internal/chat"
	"github.com/mbenevides/hermes/internal/config"
	"github.com/mbenevides/hermes/internal/logging"
	"github.com/mbenevides/hermes/internal/metrics"
	"github.com/mbenevides/hermes/internal/presence"
	"github.com/mbenevides/hermes/internal/protocol"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/rtc"
	"github.com/mbenevides/hermes/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the hub daemon, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("hub",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideRegistry,
			provideMetrics,
			provideBus,
			provideConnRegistry,
			provideStore,
			providePresence,
			provideChat,
			provideCall,
			provideRelay,
			provideDispatcher,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Path)
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func provideBus(m *metrics.Metrics) *bus.Bus {
	return bus.New(func(roomKey string) {
		m.BusDrops.WithLabelValues(roomKey).Inc()
	})
}

func provideConnRegistry(b *bus.Bus) *registry.Registry {
	return registry.New(b)
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.Store.Path)
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
	logger.Info("store initialized", zap.String("path", cfg.Store.Path))
	return db, nil
}

func providePresence(db *store.DB, b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	return presence.New(db, b, logger)
}

func provideChat(db *store.DB, b *bus.Bus, logger *zap.Logger) *chat.Service {
	return chat.New(db, b, logger)
}

func provideCall(db *store.DB, b *bus.Bus, logger *zap.Logger) *call.Service {
	return call.New(db, b, logger)
}

func provideRelay(db *store.DB, b *bus.Bus, logger *zap.Logger) *rtc.Relay {
	return rtc.New(db, b, logger)
}

func provideDispatcher(chatSvc *chat.Service, tracker *presence.Tracker, callSvc *call.Service, relay *rtc.Relay, logger *zap.Logger) *protocol.Dispatcher {
	return protocol.New(chatSvc, tracker, callSvc, relay, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("closing store", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
