package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/roombook/internal/api"
	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/config"
	"github.com/matheus3301/roombook/internal/conflict"
	"github.com/matheus3301/roombook/internal/lock"
	"github.com/matheus3301/roombook/internal/logging"
	"github.com/matheus3301/roombook/internal/metrics"
	"github.com/matheus3301/roombook/internal/network"
	"github.com/matheus3301/roombook/internal/profile"
	"github.com/matheus3301/roombook/internal/remote"
	"github.com/matheus3301/roombook/internal/reservation"
	"github.com/matheus3301/roombook/internal/status"
	"github.com/matheus3301/roombook/internal/store"
	intsync "github.com/matheus3301/roombook/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "roombook"

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideBackend,
			provideMetrics,
			provideReconciler,
			provideSyncEngine,
			provideMonitor,
			provideFeed,
			provideReservations,
			provideSyncService,
			provideBookingService,
			NewServer,
			NewHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile, p.Config.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBackend(lc fx.Lifecycle, p Params, logger *zap.Logger) (remote.Backend, error) {
	rc := p.Config.Remote
	switch rc.Kind {
	case config.RemotePostgres:
		client, err := remote.OpenPostgres(context.Background(), rc.DSN, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
		logger.Info("remote backend configured", zap.String("kind", rc.Kind))
		return client, nil
	case config.RemoteREST, "":
		logger.Info("remote backend configured", zap.String("kind", config.RemoteREST), zap.String("url", rc.URL))
		return remote.NewRESTClient(remote.RESTConfig{
			BaseURL:     rc.URL,
			APIKey:      rc.APIKey,
			AccessToken: rc.AccessToken,
			Timeout:     rc.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown remote kind %q", rc.Kind)
	}
}

func provideMetrics(db *store.DB, b *bus.Bus) (*metrics.Metrics, error) {
	m := metrics.New(MetricsNamespace)
	if err := m.RegisterQueue(MetricsNamespace, db.PendingCount); err != nil {
		return nil, err
	}
	if err := m.RegisterDropped(MetricsNamespace, b.Dropped); err != nil {
		return nil, err
	}
	return m, nil
}

func provideReconciler(db *store.DB, backend remote.Backend, b *bus.Bus, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, backend, b, logger)
}

func provideSyncEngine(p Params, db *store.DB, backend remote.Backend, r *intsync.Reconciler, b *bus.Bus, m *status.Machine, mx *metrics.Metrics, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, backend, r, b, m, mx, intsync.Options{MaxAttempts: p.Config.Sync.MaxAttempts}, logger)
}

func provideMonitor(p Params, backend remote.Backend, b *bus.Bus, m *status.Machine, mx *metrics.Metrics, logger *zap.Logger) *network.Monitor {
	return network.NewMonitor(backend, p.Config.Sync.ProbeInterval, b, m, mx, logger)
}

// provideFeed returns nil when no realtime endpoint is configured.
func provideFeed(p Params, b *bus.Bus, logger *zap.Logger) *remote.Feed {
	if p.Config.Realtime.URL == "" {
		return nil
	}
	return remote.NewFeed(p.Config.Realtime.URL, p.Config.Remote.APIKey, b, logger)
}

func provideReservations(p Params, db *store.DB, b *bus.Bus, mx *metrics.Metrics, logger *zap.Logger) (*reservation.Service, error) {
	loc, err := p.Config.Location()
	if err != nil {
		return nil, err
	}
	hours := conflict.Hours{Open: p.Config.Hours.Open, Close: p.Config.Hours.Close, Location: loc}
	return reservation.NewService(db, b, hours, mx, logger), nil
}

func provideSyncService(p Params, db *store.DB, engine *intsync.Engine, b *bus.Bus, m *status.Machine, logger *zap.Logger) *api.SyncService {
	return api.NewSyncService(p.Profile, db, engine, b, m, logger)
}

func provideBookingService(svc *reservation.Service) *api.BookingService {
	return api.NewBookingService(svc)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	httpSrv *HTTPServer,
	lk *lock.Lock,
	db *store.DB,
	engine *intsync.Engine,
	monitor *network.Monitor,
	feed *remote.Feed,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribe before the first probe so the initial network.online
			// event replays anything queued while the daemon was down.
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			httpSrv.Start()

			monitor.Start(context.Background())
			if feed != nil {
				feed.Start(context.Background())
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if feed != nil {
				feed.Stop()
			}
			monitor.Stop()
			engine.Stop()
			httpSrv.Stop(ctx)
			srv.Stop(ctx)
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
