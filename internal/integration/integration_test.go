package integration

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"reveal-challenge-service/internal/app"
	"reveal-challenge-service/internal/domain"
	"reveal-challenge-service/internal/infra/memory"
	pgstore "reveal-challenge-service/internal/infra/postgres"
	pgmigrations "reveal-challenge-service/internal/infra/postgres/migrations"
	infraredis "reveal-challenge-service/internal/infra/redis"
	"reveal-challenge-service/internal/render"
	"reveal-challenge-service/internal/timer"
)

func TestChallengeSettlesEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	// one eligible entity: every round has a single option, so the run is deterministic
	seedEntities(t, ctx, pgURL, [][3]any{
		{"c001", "Aria", "legend"},
		{"c002", nil, "rare"},
	})

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewEntityLoader(pool, 120)
	entities, err := loader.LoadEntities(ctx)
	if err != nil {
		t.Fatalf("load entities: %v", err)
	}
	if len(entities) != 1 || entities[0].Rarity != domain.RarityLegendary {
		t.Fatalf("expected only the named entity, got %+v", entities)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	entityRepo := infraredis.NewEntityRepository(redisClient, loader, "characters", 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	wallet := pgstore.NewWallet(pool)

	images := memory.NewImageSource(map[string]image.Image{
		"/characters/legend/c001.png": image.NewRGBA(image.Rect(0, 0, 16, 16)),
	})

	var (
		mu    sync.Mutex
		sched *timer.ManualScheduler
	)
	service := app.NewChallengeService(sessionStore, entityRepo, wallet, render.NewCache(images), app.Options{
		DefaultVariant: "silhouette",
		PreFill:        timer.DefaultPreFill,
		Schedulers: func(guard sync.Locker) (timer.Scheduler, func()) {
			mu.Lock()
			defer mu.Unlock()
			sched = timer.NewManualScheduler(time.Now(), guard)
			return sched, func() {}
		},
	})

	snap, err := service.Start(ctx, "u1", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for snap.Phase != domain.PhaseFinished {
		sched.RunFor(700 * time.Millisecond)
		if _, ok, err := service.Submit(ctx, snap.SessionID, "c001"); err != nil || !ok {
			t.Fatalf("submit rejected: %v", err)
		}
		if snap, _, err = service.Advance(ctx, snap.SessionID); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if snap.RunningTotal != 85 {
		t.Fatalf("expected 85 for a perfect silhouette run, got %d", snap.RunningTotal)
	}

	res, err := service.Exit(ctx, snap.SessionID)
	if err != nil || !res.Granted || res.Amount != 85 {
		t.Fatalf("exit should settle 85, got %+v %v", res, err)
	}
	// a replayed grant for the same session must not credit twice
	if err := wallet.GrantCurrency(ctx, snap.SessionID, "u1", 85); err != nil {
		t.Fatalf("replay grant: %v", err)
	}
	balance, err := wallet.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 85 {
		t.Fatalf("expected balance 85, got %d", balance)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "challenge", "POSTGRES_PASSWORD": "challengepass", "POSTGRES_DB": "challengedb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://challenge:challengepass@%s:%s/challengedb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedEntities(t *testing.T, ctx context.Context, dsn string, rows [][3]any) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, row := range rows {
		if _, err := db.ExecContext(ctx, `INSERT INTO entities (id, display_name, rarity) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`, row[0], row[1], row[2]); err != nil {
			t.Fatalf("insert entity: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
