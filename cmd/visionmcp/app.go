package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/api/handlers"
	"github.com/BaSui01/visionmcp/config"
	"github.com/BaSui01/visionmcp/guardrails"
	"github.com/BaSui01/visionmcp/internal/audit"
	"github.com/BaSui01/visionmcp/internal/cache"
	"github.com/BaSui01/visionmcp/internal/database"
	"github.com/BaSui01/visionmcp/internal/dispatch"
	"github.com/BaSui01/visionmcp/internal/imageutil"
	"github.com/BaSui01/visionmcp/internal/metrics"
	"github.com/BaSui01/visionmcp/internal/ratelimit"
	"github.com/BaSui01/visionmcp/internal/storage"
	"github.com/BaSui01/visionmcp/internal/vision"
	"github.com/BaSui01/visionmcp/mcp"
)

const serverName = "visionmcp"

// app 进程内共享的组件集合，serve 与 stdio 共用同一套装配逻辑
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Collector
	dispatcher *dispatch.Dispatcher
	mcp        *mcp.Server
	audit      *audit.Log
	cache      *cache.Manager
	db         *database.PoolManager
	checks     []handlers.HealthCheck

	cancel  context.CancelFunc
	closers []func() error
}

// newApp 按配置装配限流、扫描、协作方与审计后端
func newApp(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &app{cfg: cfg, logger: logger, cancel: cancel}

	if reg != nil {
		a.metrics = metrics.NewCollector(serverName, reg, logger)
	}

	security := cfg.SecurityConfig()

	limiter, err := a.buildLimiter(ctx, security)
	if err != nil {
		a.Close()
		return nil, err
	}

	backends := a.buildAuditBackends()
	a.audit = audit.NewLog(audit.LogConfig{
		Capacity:       cfg.Audit.Capacity,
		Backends:       backends,
		AsyncQueueSize: cfg.Audit.AsyncQueueSize,
		AsyncWorkers:   cfg.Audit.AsyncWorkers,
	}, logger)
	a.closers = append(a.closers, a.audit.Close)

	loader := imageutil.NewLoader(imageutil.LoaderConfig{
		Security:     security,
		FetchTimeout: cfg.Security.FetchTimeout,
	}, logger)

	analyzer := vision.NewGeminiAnalyzer(vision.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Gemini.Timeout,
	}, logger)
	if !analyzer.Configured() {
		logger.Warn("gemini api key not configured, analyze_image will fail until GEMINI_API_KEY is set")
	}

	uploader := storage.NewSupabaseUploader(storage.SupabaseConfig{
		URL:            cfg.Storage.SupabaseURL,
		ServiceRoleKey: cfg.Storage.ServiceRoleKey,
		DefaultBucket:  cfg.Storage.DefaultBucket,
		Timeout:        cfg.Storage.Timeout,
	}, logger)

	a.dispatcher, err = dispatch.New(dispatch.Config{
		Security:    security,
		ToolTimeout: cfg.Server.ToolTimeout,
		PIIAction:   guardrails.PIIAction(cfg.Security.PIIAction),
	}, dispatch.Deps{
		Limiter:  limiter,
		Loader:   loader,
		Analyzer: analyzer,
		Uploader: uploader,
		Audit:    a.audit,
		Metrics:  a.metrics,
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build dispatcher: %w", err)
	}

	a.mcp = mcp.NewServer(serverName, Version, a.dispatcher, logger)
	return a, nil
}

// buildLimiter 默认进程内存储；rate_limit_store=redis 时多实例共享计数
func (a *app) buildLimiter(ctx context.Context, security guardrails.SecurityConfig) (*ratelimit.Limiter, error) {
	cfg := a.cfg
	var store ratelimit.Store

	switch cfg.Security.RateLimitStore {
	case "redis":
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.Redis.Addr
		cacheCfg.Password = cfg.Redis.Password
		cacheCfg.DB = cfg.Redis.DB
		if cfg.Redis.PoolSize > 0 {
			cacheCfg.PoolSize = cfg.Redis.PoolSize
		}
		cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns

		mgr, err := cache.NewManager(cacheCfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.cache = mgr
		a.closers = append(a.closers, mgr.Close)
		a.checks = append(a.checks, handlers.NewRedisHealthCheck("redis", mgr.Ping))
		store = ratelimit.NewRedisStore(mgr.Client())
	default:
		mem := ratelimit.NewMemoryStore()
		mem.StartSweeper(ctx, cfg.Security.RateLimitSweepInterval, a.logger)
		store = mem
	}

	return ratelimit.NewLimiter(ratelimit.Config{
		Window:      security.RateLimitWindow(),
		MaxRequests: security.MaxRequestsPerWindow(),
		KeyPrefix:   "visionmcp:ratelimit:",
	}, store, a.logger)
}

// buildAuditBackends 后端初始化失败只降级为纯内存审计
func (a *app) buildAuditBackends() []audit.Backend {
	cfg := a.cfg
	var backends []audit.Backend

	if cfg.Audit.FileDir != "" {
		fb, err := audit.NewFileBackend(audit.FileBackendConfig{Directory: cfg.Audit.FileDir}, a.logger)
		if err != nil {
			a.logger.Warn("file audit backend disabled", zap.Error(err))
		} else {
			backends = append(backends, fb)
		}
	}

	if cfg.Database.Enabled {
		if b, err := a.openSQLBackend(); err != nil {
			a.logger.Warn("sql audit backend disabled", zap.Error(err))
		} else {
			backends = append(backends, b)
		}
	}

	if cfg.Mongo.Enabled {
		client, err := mongo.Connect(options.Client().
			ApplyURI(cfg.Mongo.URI).
			SetTimeout(cfg.Mongo.Timeout))
		if err != nil {
			a.logger.Warn("mongo audit backend disabled", zap.Error(err))
		} else if b, err := audit.NewMongoBackend(client, cfg.Mongo.Database, cfg.Mongo.Collection, true); err != nil {
			_ = client.Disconnect(context.Background())
			a.logger.Warn("mongo audit backend disabled", zap.Error(err))
		} else {
			backends = append(backends, b)
			a.checks = append(a.checks, handlers.NewDatabaseHealthCheck("mongo", func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			}))
		}
	}
	return backends
}

func (a *app) openSQLBackend() (audit.Backend, error) {
	dbCfg := a.cfg.Database
	db, err := database.Open(dbCfg.Driver, dbCfg.DSN(), a.logger)
	if err != nil {
		return nil, err
	}

	poolCfg := database.DefaultPoolConfig()
	if dbCfg.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
	}
	if dbCfg.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = dbCfg.MaxIdleConns
	}
	if dbCfg.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}
	pool, err := database.NewPoolManager(db, poolCfg, a.logger)
	if err != nil {
		return nil, err
	}

	backend, err := audit.NewSQLBackend(pool.DB(), dbCfg.AutoMigrate)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}

	a.db = pool
	a.closers = append(a.closers, pool.Close)
	a.checks = append(a.checks, handlers.NewDatabaseHealthCheck("database", func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		if a.metrics != nil {
			stats := pool.GetStats()
			a.metrics.RecordDBConnections(dbCfg.Driver, stats.OpenConnections, stats.Idle)
		}
		return nil
	}))
	return backend, nil
}

// Close 逆序关闭：审计先落盘，再断开数据库与 Redis
func (a *app) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
