package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"reveal-challenge-service/internal/app"
	"reveal-challenge-service/internal/config"
	"reveal-challenge-service/internal/domain"
	"reveal-challenge-service/internal/infra/assets"
	"reveal-challenge-service/internal/infra/memory"
	pgstore "reveal-challenge-service/internal/infra/postgres"
	infraredis "reveal-challenge-service/internal/infra/redis"
	"reveal-challenge-service/internal/render"
	"reveal-challenge-service/internal/timer"
	transport "reveal-challenge-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the challenge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	variants, err := cfg.Variants()
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.EntityLoader = memory.NewStaticEntityLoader(sampleEntities())
	var granter app.CurrencyGranter = memory.NewWallet()
	if pool != nil {
		loader = pgstore.NewEntityLoader(pool, cfg.Entities.Limit)
		granter = pgstore.NewWallet(pool)
	} else {
		logger.Warn("postgres not configured, using sample entities and an in-memory wallet")
	}

	entityTTL := config.TTLDuration(cfg.Entities.TTL, 10*time.Minute)
	var entityRepo app.EntityRepository
	if redisClient != nil {
		entityRepo = infraredis.NewEntityRepository(redisClient, loader, cfg.Assets.Category, entityTTL)
	} else {
		entityRepo = memory.NewEntityRepository(loader, entityTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	var images render.Loader = memory.NewImageSource(nil)
	if cfg.Assets.Dir != "" {
		images = assets.NewFileSource(cfg.Assets.Dir)
	} else {
		logger.Warn("assets dir not configured, rounds render placeholders")
	}

	service := app.NewChallengeService(store, entityRepo, granter, render.NewCache(images), app.Options{
		Variants:       variants,
		DefaultVariant: cfg.Challenge.DefaultVariant,
		PreFill:        config.TTLDuration(cfg.Challenge.PreFill, timer.DefaultPreFill),
		Category:       cfg.Assets.Category,
		Schedulers:     app.LoopSchedulers(config.TTLDuration(cfg.Challenge.FrameInterval, 16*time.Millisecond)),
		Logger:         logger,
		IdleTTL:        redisTTL,
	})
	service.StartSweeper(ctx, sweepInterval)
	router := transport.NewRouter(
		transport.NewRESTHandler(service, variants, logger),
		transport.NewWSHandler(service, logger),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting challenge service", "port", finalPort, "default_variant", cfg.Challenge.DefaultVariant)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sweepInterval is how often idle sessions are looked for.
const sweepInterval = time.Minute

// sampleEntities provides a minimal pool; the Postgres loader replaces it in production.
func sampleEntities() []domain.Entity {
	return []domain.Entity{
		{ID: "c001", DisplayName: "Aria", Rarity: domain.RarityCommon},
		{ID: "c002", DisplayName: "Bram", Rarity: domain.RarityCommon},
		{ID: "c003", DisplayName: "Cyra", Rarity: domain.RarityRare},
		{ID: "c004", DisplayName: "Dax", Rarity: domain.RarityRare},
		{ID: "c005", DisplayName: "Elow", Rarity: domain.RarityEpic},
		{ID: "c006", DisplayName: "Fenn", Rarity: domain.RarityLegendary},
	}
}
