// Command framez runs the client core behind a local HTTP API: session
// lifecycle, posts and live feeds backed by a Supabase project.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/framez/framez-core/internal/api"
	"github.com/framez/framez-core/internal/api/metrics"
	"github.com/framez/framez-core/internal/core/ports"
	"github.com/framez/framez-core/internal/core/service"
	"github.com/framez/framez-core/internal/infrastructure/config"
	mongoinfra "github.com/framez/framez-core/internal/infrastructure/db/mongo"
	"github.com/framez/framez-core/internal/infrastructure/db/postgres"
	redisinfra "github.com/framez/framez-core/internal/infrastructure/db/redis"
	"github.com/framez/framez-core/internal/infrastructure/queue"
	"github.com/framez/framez-core/internal/infrastructure/supabase"
	"github.com/framez/framez-core/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "framez: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, nil)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "framez-core",
	})

	// --- Session persistence ---
	var (
		store ports.SessionStore = supabase.NewMemorySessionStore()
		rdb   *goredis.Client
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redisinfra.Connect(ctx, redisinfra.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = redisinfra.NewSessionStore(rdb, cfg.Redis.SessionKey, cfg.Redis.SessionTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("session persisted in redis")
	}

	// --- Activity audit (optional) ---
	var (
		activity ports.ActivityRecorder
		mongoDB  *mongo.Database
	)
	if cfg.Mongo.URI != "" {
		client, db, err := mongoinfra.Connect(ctx, mongoinfra.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		repo := mongoinfra.NewActivityRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("activity index not created")
		}
		activity = repo
		mongoDB = db
	}

	// --- Backend adapters ---
	sbCfg := supabase.Config{
		URL:            cfg.Supabase.URL,
		AnonKey:        cfg.Supabase.AnonKey,
		Bucket:         cfg.Supabase.Bucket,
		HTTPTimeout:    cfg.Supabase.HTTPTimeout,
		ReconnectDelay: cfg.Supabase.ReconnectDelay,
	}
	client := supabase.NewClient(sbCfg, logger.Component("supabase"))
	auth := supabase.NewAuth(client, store, logger.Component("auth"))
	storage := supabase.NewStorage(client, cfg.Supabase.Bucket)

	var (
		profiles ports.ProfileStore
		posts    ports.PostStore
		stream   ports.ChangeStream
		pool     *pgxpool.Pool
	)
	switch cfg.Data.Backend {
	case config.BackendPostgres:
		pool, err = postgres.Connect(ctx, cfg.Data.DatabaseURL, cfg.Data.MaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}

		pg := postgres.NewStore(pool)
		changes := postgres.NewChangeStream(pool, cfg.Supabase.ReconnectDelay, logger.Component("changes"))
		go changes.Run(ctx)
		profiles, posts, stream = pg, pg, changes
	default:
		tables := supabase.NewTables(client)
		rt, err := supabase.NewRealtime(sbCfg, client, logger.Component("realtime"))
		if err != nil {
			return err
		}
		profiles, posts, stream = tables, tables, rt
	}
	log.Info().Str("backend", cfg.Data.Backend).Msg("data backend ready")

	// --- Services ---
	dispatcher := queue.NewDispatcher(cfg.RefreshWorkers, logger.Component("refresh"),
		queue.WithDepthGauge(metrics.RefreshQueueDepth))
	dispatcher.Start(ctx)

	profileSvc := service.NewProfileService(profiles, logger.Component("profiles"))
	sessions := service.NewSessionManager(auth, profileSvc, activity, logger.Component("session"))
	postSvc := service.NewPostService(profileSvc, posts, storage, activity, logger.Component("posts"))
	feeds := service.NewFeedService(postSvc, stream, dispatcher, logger.Component("feed"))

	snap := sessions.Restore(ctx)
	log.Info().Str("state", string(snap.State)).Msg("session restored")
	sessions.Start()
	defer sessions.Close()

	go auth.AutoRefresh(ctx, cfg.Supabase.RefreshEvery, cfg.Supabase.RefreshMargin)

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Sessions: sessions,
		Posts:    postSvc,
		Feeds:    feeds,
		Mongo:    mongoDB,
		Redis:    rdb,
		Postgres: pool,
		Log:      logger.Component("http"),
	})

	srvErr := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
