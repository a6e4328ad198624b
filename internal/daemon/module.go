// Package daemon is the composition root: it wires config, storage,
// caches, the resolver pipeline, and the engines into one fx app.
package daemon

import (
	"context"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/chatvault/internal/avatar"
	"github.com/matheus3301/chatvault/internal/config"
	"github.com/matheus3301/chatvault/internal/embed"
	"github.com/matheus3301/chatvault/internal/lock"
	"github.com/matheus3301/chatvault/internal/logging"
	"github.com/matheus3301/chatvault/internal/metrics"
	"github.com/matheus3301/chatvault/internal/network"
	"github.com/matheus3301/chatvault/internal/pool"
	"github.com/matheus3301/chatvault/internal/rate"
	"github.com/matheus3301/chatvault/internal/resolver"
	"github.com/matheus3301/chatvault/internal/retrieval"
	"github.com/matheus3301/chatvault/internal/settings"
	"github.com/matheus3301/chatvault/internal/store"
	intsync "github.com/matheus3301/chatvault/internal/sync"
	"github.com/matheus3301/chatvault/internal/task"
)

// Params holds what the command line resolved before fx takes over.
// Client may be nil: the daemon then serves retrieval only and the
// sync engine is not constructed.
type Params struct {
	Config *config.Config
	Client network.Client
	// OnData receives persisted realtime messages; nil is fine.
	OnData resolver.DataHandler
}

// Pools groups the two bounded executors so providers can ask for both.
type Pools struct {
	Media  *pool.Executor
	Avatar *pool.Executor
}

// Module composes all providers and the lifecycle hook.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideLock,
			provideStore,
			providePools,
			provideWaiter,
			provideTaskRegistry,
			provideNotifier,
			provideAvatarCache,
			provideEmbedder,
			provideSettings,
			provideMetricsSink,
			provideResolverRegistry,
			providePipeline,
			provideSyncEngine,
			provideRetrievalEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.LogPath, p.Config.AccountID)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	dir := filepath.Dir(p.Config.DBPath)
	logger.Info("acquiring archive lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("archive lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(p.Config.DBPath)
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
	logger.Info("store initialized", zap.String("path", p.Config.DBPath))
	return db, nil
}

func providePools(p Params) Pools {
	return Pools{
		Media:  pool.New(p.Config.MediaPoolSize),
		Avatar: pool.New(p.Config.AvatarPoolSize),
	}
}

func provideWaiter(p Params) *rate.Waiter {
	return rate.NewWaiter(p.Config.RateInterval())
}

func provideTaskRegistry() *task.Registry {
	return task.NewRegistry()
}

func provideNotifier() *task.Notifier {
	return task.NewNotifier()
}

func provideAvatarCache(p Params, db *store.DB, pools Pools, logger *zap.Logger) *avatar.Cache {
	cfg := avatar.Config{
		CacheSize:  p.Config.AvatarCacheSize,
		TTL:        p.Config.AvatarCacheTTL(),
		ByteBudget: p.Config.AvatarByteBudget,
	}
	return avatar.NewCache(p.Client, db, pools.Avatar, cfg, logger)
}

func provideEmbedder(p Params) embed.Embedder {
	if p.Config.OpenAIKey == "" {
		return nil
	}
	return embed.NewOpenAI(embed.OpenAIConfig{
		APIKey:    p.Config.OpenAIKey,
		BaseURL:   p.Config.OpenAIBaseURL,
		Model:     p.Config.EmbeddingModel,
		Dimension: p.Config.EmbeddingDim,
	})
}

func provideSettings(p Params, db *store.DB) *settings.Service {
	return settings.NewService(db, p.Config.AccountID)
}

func provideMetricsSink(logger *zap.Logger) metrics.Sink {
	return metrics.NewZapSink(logger)
}

func provideResolverRegistry(p Params, db *store.DB, pools Pools, cache *avatar.Cache,
	embedder embed.Embedder, logger *zap.Logger) *resolver.Registry {
	return resolver.NewRegistry(
		resolver.NewMediaResolver(p.Client, db, pools.Media, logger),
		resolver.NewUserResolver(p.Client, logger),
		resolver.NewTokensResolver(),
		resolver.NewEmbeddingResolver(embedder, logger),
		resolver.NewAvatarResolver(cache),
	)
}

func providePipeline(p Params, db *store.DB, reg *resolver.Registry, svc *settings.Service,
	sink metrics.Sink, logger *zap.Logger) *resolver.Pipeline {
	return resolver.NewPipeline(db, p.Client, reg, svc, sink, p.OnData,
		p.Config.AccountID, p.Config.TakeoutQueueDepth, logger)
}

func provideSyncEngine(p Params, db *store.DB, registry *task.Registry, notifier *task.Notifier,
	waiter *rate.Waiter, pipeline *resolver.Pipeline, logger *zap.Logger) *intsync.Engine {
	if p.Client == nil {
		return nil
	}
	handler := func(msgs []*store.Message, raws []network.RawMessage, takeout bool) {
		pipeline.Process(context.Background(), msgs, raws, resolver.Options{Takeout: takeout})
	}
	return intsync.NewEngine(p.Client, db, registry, notifier, waiter, handler,
		p.Config.AccountID, p.Config.BatchSize, logger)
}

func provideRetrievalEngine(db *store.DB, logger *zap.Logger) *retrieval.Engine {
	return retrieval.NewEngine(db, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, pipeline *resolver.Pipeline,
	engine *intsync.Engine, _ *retrieval.Engine,
	db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			pipeline.Start(runCtx)
			if engine == nil {
				logger.Info("no network client, sync disabled")
			}
			logger.Info("daemon started", zap.String("account", p.Config.AccountID))
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			pipeline.Wait()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing archive lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
