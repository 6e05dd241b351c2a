package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mom-admin-api/internal/auth"
	"mom-admin-api/internal/cache"
	"mom-admin-api/internal/config"
	"mom-admin-api/internal/credentials"
	"mom-admin-api/internal/database"
	"mom-admin-api/internal/docstore"
	"mom-admin-api/internal/gate"
	"mom-admin-api/internal/localcache"
	"mom-admin-api/internal/metrics"
	"mom-admin-api/internal/realtime"
	"mom-admin-api/internal/routes"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newLogger(cfg config.ServerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// openStore returns the remote document store. A configured Redis that
// cannot be reached falls back to SQLite.
func openStore(ctx context.Context, cfg config.StoreConfig, debug bool, log zerolog.Logger) (docstore.Store, func(), error) {
	if cfg.Backend == config.BackendRedis && cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opt)
		store := docstore.NewRedisStore(client, "", log)
		err = store.Ping(ctx)
		if err == nil {
			log.Info().Str("backend", config.BackendRedis).Msg("document store ready")
			return store, func() { _ = client.Close() }, nil
		}
		log.Warn().Err(err).Msg("redis ping failed; falling back to sqlite")
		_ = client.Close()
	}

	db, err := database.Open(cfg.DatabasePath, debug)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("backend", config.BackendSQLite).Str("path", cfg.DatabasePath).Msg("document store ready")
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return docstore.NewGormStore(db, realtime.NewHub()), closeDB, nil
}

func openLocalCache(path string, log zerolog.Logger) localcache.Store {
	if path == "" {
		return localcache.NewMemoryStore()
	}
	store, err := localcache.OpenFileStore(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("local cache unreadable; starting empty")
	}
	return store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := newLogger(cfg.Server)
	if !cfg.Server.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	remote, closeStore, err := openStore(ctx, cfg.Store, cfg.Server.LogLevel == "debug", log)
	if err != nil {
		log.Fatal().Err(err).Msg("open document store")
	}
	defer closeStore()

	cacheOpts := cache.Options{
		MaxSize:          cfg.Cache.MaxSize,
		DefaultTTL:       cfg.Cache.DefaultTTL,
		SweepInterval:    cfg.Cache.SweepInterval,
		PressureInterval: cfg.Cache.PressureInterval,
		HighWaterMark:    cfg.Cache.HighWaterMark,
		Logger:           log.With().Str("component", "cache").Logger(),
	}
	if cfg.Cache.MemoryProbe {
		cacheOpts.Probe = cache.RuntimeProbe{}
	}
	docCache := cache.New[json.RawMessage](cacheOpts)
	go docCache.Run(ctx)
	docs := docstore.NewCached(remote, docCache)

	m := metrics.New()
	m.RegisterCache("documents", docCache.Stats)

	g := gate.New(openLocalCache(cfg.Store.LocalCachePath, log), docs, gate.Options{
		MaxAttempts:        cfg.Login.MaxAttempts,
		ConfigPath:         cfg.Login.ConfigPath,
		RemoteWriteTimeout: cfg.Login.RemoteWriteTimeout,
		RemoteLoadTimeout:  cfg.Login.RemoteLoadTimeout,
		Logger:             log,
		OnChange:           m.ObserveGate,
	})
	m.SetGateState(g.State())
	g.Start(ctx)
	defer g.Close()

	fallback, err := credentials.LoadFallback(cfg.Credentials.FallbackFile)
	if err != nil {
		log.Warn().Err(err).Msg("credential fallback list not loaded")
	}
	users := credentials.New(docs, cfg.Credentials.Path, cfg.Credentials.CacheTTL, fallback, log)
	defer users.Close()

	router, err := routes.SetupRoutes(routes.Deps{
		Config:    cfg,
		Gate:      g,
		Users:     users,
		Tokens:    auth.NewManager(cfg.JWT),
		Documents: docs,
		Metrics:   m,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("setup routes")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	stop()
	log.Info().Msg("server stopped")
}
