// Package main wires LLMLab's HTTP server: handlers, middleware chain,
// and the Prometheus metrics listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/aggregate"
	"github.com/llmlab/llmlab/anomaly"
	"github.com/llmlab/llmlab/api/handlers"
	"github.com/llmlab/llmlab/auth"
	"github.com/llmlab/llmlab/budget"
	"github.com/llmlab/llmlab/cache"
	"github.com/llmlab/llmlab/config"
	"github.com/llmlab/llmlab/credential"
	"github.com/llmlab/llmlab/forecast"
	"github.com/llmlab/llmlab/internal/database"
	"github.com/llmlab/llmlab/internal/metrics"
	"github.com/llmlab/llmlab/internal/server"
	"github.com/llmlab/llmlab/internal/telemetry"
	"github.com/llmlab/llmlab/proxy"
	"github.com/llmlab/llmlab/tag"
	"github.com/llmlab/llmlab/webhook"
)

// Server is LLMLab's main process: an HTTP listener for the API and proxy
// routes, a separate Prometheus metrics listener, and the supporting
// handlers and stores they share.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers
	db         *gorm.DB
	dbPool     *database.PoolManager

	httpManager    *server.Manager
	metricsManager *server.Manager

	credentialStore   *credential.Store
	tagRegistry       *tag.Registry
	budgetStore       *budget.Store
	budgetWatcher     *budget.Watcher
	webhookStore      *webhook.Store
	aggregator        *aggregate.Aggregator
	forecaster        *forecast.Forecaster
	detector          *anomaly.Detector
	responseCache     cache.Cache
	redisClient       *redis.Client
	postHooks         *proxy.PostHookDispatcher
	pipeline          *proxy.Pipeline
	tenantStore       *auth.TenantStore
	tokenIssuer       *auth.TokenIssuer
	identityExchanger auth.IdentityExchanger

	healthHandler     *handlers.HealthHandler
	credentialHandler *handlers.CredentialHandler
	tagHandler        *handlers.TagHandler
	budgetHandler     *handlers.BudgetHandler
	webhookHandler    *handlers.WebhookHandler
	usageHandler      *handlers.UsageHandler
	proxyHandler      *handlers.ProxyHandler
	cacheHandler      *handlers.CacheHandler
	authHandler       *handlers.AuthHandler
	dbHandler         *handlers.DBHandler

	metricsCollector *metrics.Collector

	wg sync.WaitGroup
}

// NewServer builds a Server from its already-validated config and opened
// database connection pool. It constructs the credential encryptor/store,
// since every handler that touches stored secrets depends on it.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers, dbPool *database.PoolManager) (*Server, error) {
	db := dbPool.DB()

	encryptor, err := credential.NewEncryptor(cfg.Encryption.KeyBase64)
	if err != nil {
		return nil, fmt.Errorf("build credential encryptor: %w", err)
	}

	return &Server{
		cfg:             cfg,
		configPath:      configPath,
		logger:          logger,
		otel:            otelProviders,
		db:              db,
		dbPool:          dbPool,
		credentialStore: credential.NewStore(db, encryptor, logger),
	}, nil
}

// newResponseCache builds the Response Cache backend selected by
// cfg.Cache.Backend, defaulting to the in-process LRU when unset or
// unrecognized. It also returns the underlying redis.Client when the redis
// backend is selected, nil otherwise, so callers can register it as a
// health check dependency.
func newResponseCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, *redis.Client) {
	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
		})
		return cache.NewRedisCache(client, logger), client
	}
	return cache.NewLRUCache(cfg.Cache.MaxEntries), nil
}

// Start brings up handlers and both HTTP listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("llmlab", s.logger)
	s.dbPool.AttachMetrics(s.metricsCollector, "primary")

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("config_path", s.configPath),
	)

	return nil
}

func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.credentialHandler = handlers.NewCredentialHandler(s.credentialStore, s.logger)

	s.tagRegistry = tag.NewRegistry(s.db, s.logger)
	s.webhookStore = webhook.NewStore(s.db, s.logger)
	s.budgetStore = budget.NewStore(s.db, s.logger)
	s.budgetWatcher = budget.NewWatcher(s.budgetStore, s.webhookStore, s.metricsCollector, s.logger)
	s.detector = anomaly.NewDetector(s.db, s.webhookStore, s.metricsCollector, s.logger)
	s.aggregator = aggregate.NewAggregator(s.db)
	s.forecaster = forecast.NewForecaster(s.db)
	s.responseCache, s.redisClient = newResponseCache(s.cfg, s.logger)

	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.dbPool.Ping))
	if s.redisClient != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		}))
	}

	s.postHooks = proxy.NewPostHookDispatcher(s.budgetWatcher, s.detector, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewWorkerPoolHealthCheck("post_hook_pool", func() int64 {
		return s.postHooks.Stats().Rejected
	}, 100))
	upstreamClient := &http.Client{Timeout: s.cfg.Providers.RequestTimeout}
	s.pipeline = proxy.NewPipeline(s.credentialStore, s.responseCache, s.cfg.Cache.DefaultTTL, s.tagRegistry, s.postHooks, s.db, upstreamClient, s.metricsCollector, s.logger)

	s.tenantStore = auth.NewTenantStore(s.db, s.logger)
	s.tokenIssuer = auth.NewTokenIssuer(s.cfg.JWT)
	s.identityExchanger = auth.NewGitHubExchanger(s.cfg.GitHub)

	s.tagHandler = handlers.NewTagHandler(s.tagRegistry, s.logger)
	s.budgetHandler = handlers.NewBudgetHandler(s.budgetStore, s.logger)
	s.webhookHandler = handlers.NewWebhookHandler(s.webhookStore, s.logger)
	s.usageHandler = handlers.NewUsageHandler(s.aggregator, s.forecaster, s.detector, s.logger)
	s.proxyHandler = handlers.NewProxyHandler(s.pipeline, s.logger)
	s.cacheHandler = handlers.NewCacheHandler(s.responseCache, s.logger)
	s.authHandler = handlers.NewAuthHandler(s.identityExchanger, s.tenantStore, s.tokenIssuer, s.logger)
	s.dbHandler = handlers.NewDBHandler(s.dbPool, s.logger)

	s.logger.Info("handlers initialized")
	return nil
}

// startHTTPServer registers every route and wraps the mux in the middleware
// chain: recovery, logging, CORS, then per-IP rate limiting. Owned
// endpoints additionally sit behind JWTAuth; proxy endpoints have no auth
// middleware, since the proxy pipeline resolves the minted proxy key itself.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// POST /auth/github mints the session itself, so it must precede auth.
	mux.HandleFunc("/auth/github", s.authHandler.HandleGitHubLogin)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	owned := http.NewServeMux()
	owned.HandleFunc("/api/v1/me", s.authHandler.HandleMe)

	owned.HandleFunc("/api/v1/credentials", s.credentialHandler.HandleList)
	owned.HandleFunc("/api/v1/credentials/", s.dispatchCredentialByID)

	owned.HandleFunc("/api/v1/tags", s.dispatchTags)
	owned.HandleFunc("/api/v1/tags/", s.tagHandler.HandleDelete)

	owned.HandleFunc("/api/v1/budgets", s.dispatchBudgets)

	owned.HandleFunc("/api/v1/webhooks", s.dispatchWebhooks)
	owned.HandleFunc("/api/v1/webhooks/", s.webhookHandler.HandleDelete)

	owned.HandleFunc("/api/v1/stats", s.usageHandler.HandleStats)
	owned.HandleFunc("/api/v1/stats/heatmap", s.usageHandler.HandleHeatmap)
	owned.HandleFunc("/api/v1/stats/comparison", s.usageHandler.HandleComparison)
	owned.HandleFunc("/api/v1/stats/forecast", s.usageHandler.HandleForecast)
	owned.HandleFunc("/api/v1/stats/anomalies", s.usageHandler.HandleAnomalies)
	owned.HandleFunc("/api/v1/stats/by-model", s.usageHandler.HandleByModel)
	owned.HandleFunc("/api/v1/stats/by-day", s.usageHandler.HandleByDay)

	owned.HandleFunc("/api/v1/logs", s.usageHandler.HandleLogs)
	owned.HandleFunc("/api/v1/logs/", s.dispatchLogByID)

	owned.HandleFunc("/api/v1/export/csv", s.usageHandler.HandleExportCSV)
	owned.HandleFunc("/api/v1/export/json", s.usageHandler.HandleExportJSON)

	owned.HandleFunc("/api/v1/cache", s.cacheHandler.HandleClear)
	owned.HandleFunc("/api/v1/cache/stats", s.cacheHandler.HandleStats)

	owned.HandleFunc("/api/v1/admin/db-stats", s.dbHandler.HandleStats)

	ownedAuth := JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger)(owned)
	mux.Handle("/api/v1/me", ownedAuth)
	mux.Handle("/api/v1/credentials", ownedAuth)
	mux.Handle("/api/v1/credentials/", ownedAuth)
	mux.Handle("/api/v1/tags", ownedAuth)
	mux.Handle("/api/v1/tags/", ownedAuth)
	mux.Handle("/api/v1/budgets", ownedAuth)
	mux.Handle("/api/v1/webhooks", ownedAuth)
	mux.Handle("/api/v1/webhooks/", ownedAuth)
	mux.Handle("/api/v1/stats", ownedAuth)
	mux.Handle("/api/v1/stats/", ownedAuth)
	mux.Handle("/api/v1/logs", ownedAuth)
	mux.Handle("/api/v1/logs/", ownedAuth)
	mux.Handle("/api/v1/export/", ownedAuth)
	mux.Handle("/api/v1/cache", ownedAuth)
	mux.Handle("/api/v1/cache/stats", ownedAuth)
	mux.Handle("/api/v1/admin/db-stats", ownedAuth)

	// Proxy routes authenticate themselves against a minted proxy key;
	// wrapping them in JWTAuth as well would double-authenticate and
	// reject every proxy client that never holds a tenant JWT.
	mux.HandleFunc(proxy.RoutePrefix, s.proxyHandler.Handle)

	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.AllowedOrigins),
		RateLimiter(context.Background(), s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// dispatchCredentialByID routes PUT/DELETE/mint-proxy-key requests under
// /api/v1/credentials/{id}... to the right handler method, since the stdlib
// mux's single pattern per path can't branch on method plus sub-resource.
func (s *Server) dispatchCredentialByID(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPut:
		s.credentialHandler.HandleUpdate(w, r)
	case r.Method == http.MethodDelete:
		s.credentialHandler.HandleDelete(w, r)
	case r.Method == http.MethodPost:
		s.credentialHandler.HandleMintProxyKey(w, r)
	default:
		http.NotFound(w, r)
	}
}

// dispatchTags branches /api/v1/tags between listing and creation, since
// a tenant's tag set is addressed by a single collection path.
func (s *Server) dispatchTags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.tagHandler.HandleList(w, r)
	case http.MethodPost:
		s.tagHandler.HandleCreate(w, r)
	default:
		http.NotFound(w, r)
	}
}

// dispatchBudgets branches /api/v1/budgets by method: a tenant has at
// most one budget, so there is no per-resource ID in the path.
func (s *Server) dispatchBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.budgetHandler.HandleGet(w, r)
	case http.MethodPost:
		s.budgetHandler.HandleUpsert(w, r)
	case http.MethodDelete:
		s.budgetHandler.HandleDelete(w, r)
	default:
		http.NotFound(w, r)
	}
}

// dispatchWebhooks branches /api/v1/webhooks between listing and creation.
func (s *Server) dispatchWebhooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.webhookHandler.HandleList(w, r)
	case http.MethodPost:
		s.webhookHandler.HandleCreate(w, r)
	default:
		http.NotFound(w, r)
	}
}

// dispatchLogByID routes everything under /api/v1/logs/{id}: the row
// itself, or its nested /tags[/{tag_id}] attach/detach sub-resource.
func (s *Server) dispatchLogByID(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.URL.Path, "/tags") {
		switch r.Method {
		case http.MethodPost:
			s.tagHandler.HandleAttach(w, r)
		case http.MethodDelete:
			s.tagHandler.HandleDetach(w, r)
		default:
			http.NotFound(w, r)
		}
		return
	}
	s.usageHandler.HandleLogByID(w, r)
}

// startMetricsServer exposes the Prometheus scrape endpoint on its own port,
// unauthenticated and isolated from the API listener.
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a shutdown signal arrives, then runs Shutdown.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the post-hook dispatcher and both HTTP listeners, then
// flushes telemetry, closes the database pool and redis client, and waits
// for background goroutines to finish.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.postHooks != nil {
		s.postHooks.Close()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("database pool shutdown error", zap.Error(err))
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis client shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("graceful shutdown completed")
}
