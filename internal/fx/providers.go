package fx

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/avolpi/heron/config"
	"github.com/avolpi/heron/internal/application"
	"github.com/avolpi/heron/internal/domain"
	cacheInfra "github.com/avolpi/heron/internal/infrastructure/cache"
	memoryRepo "github.com/avolpi/heron/internal/infrastructure/memory"
	postgresRepo "github.com/avolpi/heron/internal/infrastructure/postgres"
	redisInfra "github.com/avolpi/heron/internal/infrastructure/redis"
	sqliteRepo "github.com/avolpi/heron/internal/infrastructure/sqlite"
	"github.com/avolpi/heron/internal/pkg/metrics"
)

// ProvideLogger creates and configures the application logger
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// ProvideRepository creates the appropriate repository based on configuration
func ProvideRepository(cfg *config.Config, logger *slog.Logger) (domain.MappingRepository, error) {
	switch cfg.Database.Type {
	case "memory":
		logger.Info("Using in-memory repository")
		return memoryRepo.NewMappingRepository(), nil

	case "sqlite":
		dbURL := cfg.GetDatabaseURL()
		logger.Info("Using SQLite repository", "path", dbURL)

		// Create data directory if it doesn't exist
		if err := os.MkdirAll("./data", 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		db, err := sqlx.Connect("sqlite3", dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}

		if err := runMigrations(db, "sqlite3", "sqlite"); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		return sqliteRepo.NewMappingRepository(db), nil

	case "postgres":
		dbURL := cfg.GetDatabaseURL()
		logger.Info("Using PostgreSQL repository", "url", dbURL)

		db, err := sqlx.Connect("postgres", dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}

		if err := runMigrations(db, "postgres", "postgres"); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		return postgresRepo.NewMappingRepository(db), nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}

// runMigrations runs database migrations
func runMigrations(db interface{}, driverName, migrationDir string) error {
	var driver database.Driver
	var err error

	sqlxDB, ok := db.(*sqlx.DB)
	if ok {
		db = sqlxDB.DB
	}

	rawDB, ok := db.(*sql.DB)
	if !ok {
		return fmt.Errorf("expected *sql.DB, got %T", db)
	}

	switch driverName {
	case "sqlite3":
		driver, err = sqlite3.WithInstance(rawDB, &sqlite3.Config{})
	case "postgres":
		driver, err = postgres.WithInstance(rawDB, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported driver: %s", driverName)
	}

	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrationPath := fmt.Sprintf("file://migrations/%s", migrationDir)
	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		driverName,
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Migrations completed successfully")
	return nil
}

// ProvideRedisClient creates a Redis client when caching is enabled.
// A nil client means caching is off; ProvideCache handles both cases.
func ProvideRedisClient(cfg *config.Config, logger *slog.Logger) *goredis.Client {
	if !cfg.Cache.Enabled {
		logger.Info("Cache disabled, skipping Redis client")
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	logger.Info("Redis client configured", "addr", cfg.Cache.Addr, "db", cfg.Cache.DB)
	return client
}

// ProvideCache creates the cache store. When Redis is not configured the
// no-op store keeps the engine on the store-only path.
func ProvideCache(cfg *config.Config, client *goredis.Client, logger *slog.Logger) domain.CacheStore {
	if client == nil {
		return cacheInfra.NewNoOpStore()
	}
	return redisInfra.NewStore(client, logger, cfg.Cache.OpTimeout)
}

// ProvideCachePolicy maps configured TTLs onto the engine cache policy
func ProvideCachePolicy(cfg *config.Config) application.CachePolicy {
	policy := application.DefaultCachePolicy()
	if cfg.Cache.RedirectTTL > 0 {
		policy.RedirectTTL = cfg.Cache.RedirectTTL
	}
	if cfg.Cache.EntityTTL > 0 {
		policy.EntityTTL = cfg.Cache.EntityTTL
	}
	return policy
}

// ProvideCodeGenerator creates the short code generator
func ProvideCodeGenerator() application.CodeGenerator {
	return application.NewNanoIDGenerator()
}

// ProvideURLService wires the engine with its configured collaborators
func ProvideURLService(
	cfg *config.Config,
	repo domain.MappingRepository,
	cache domain.CacheStore,
	gen application.CodeGenerator,
	policy application.CachePolicy,
	logger *slog.Logger,
	registry metrics.Registry,
) *application.URLService {
	return application.NewURLService(repo, cache, gen, policy, cfg.App.ShortCodeLength, logger, registry)
}

// ProvideMetricsRegistry creates the metrics registry based on configuration
func ProvideMetricsRegistry(cfg *config.Config, logger *slog.Logger) (metrics.Registry, error) {
	if !cfg.Metrics.Enabled {
		logger.Info("Metrics disabled, using no-op registry")
		return metrics.NewNoOpRegistry(), nil
	}

	registry, err := metrics.NewPrometheusRegistry(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics registry: %w", err)
	}
	logger.Info("Prometheus metrics enabled", "path", cfg.Metrics.Path)
	return registry, nil
}

// RepositoryParams holds the parameters needed for repository lifecycle management
type RepositoryParams struct {
	fx.In

	Repository domain.MappingRepository
	Logger     *slog.Logger
}

// RegisterRepositoryHooks registers repository lifecycle hooks with FX
func RegisterRepositoryHooks(lc fx.Lifecycle, params RepositoryParams) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := params.Repository.Close(); err != nil {
				params.Logger.Error("Failed to close repository resources", "error", err)
				return err
			}
			params.Logger.Info("Repository resources closed successfully")
			return nil
		},
	})
}

// CacheParams holds the parameters needed for cache lifecycle management
type CacheParams struct {
	fx.In

	Client *goredis.Client
	Cache  domain.CacheStore
	Logger *slog.Logger
}

// RegisterCacheHooks registers cache lifecycle hooks with FX. An unreachable
// Redis at startup is logged, not fatal: the engine degrades to store-only.
func RegisterCacheHooks(lc fx.Lifecycle, params CacheParams) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if params.Client == nil {
				return nil
			}
			if err := params.Cache.Ping(ctx); err != nil {
				params.Logger.Warn("Redis unreachable at startup, continuing without warm cache", "error", err)
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			if params.Client == nil {
				return nil
			}
			if err := params.Client.Close(); err != nil {
				params.Logger.Error("Failed to close Redis client", "error", err)
				return err
			}
			params.Logger.Info("Redis client closed successfully")
			return nil
		},
	})
}

// SweeperParams holds the parameters needed for the expiry sweeper
type SweeperParams struct {
	fx.In

	Service *application.URLService
	Config  *config.Config
	Logger  *slog.Logger
}

// RegisterSweeperHooks runs the periodic expiry sweep that flips mappings
// past their expires_at to inactive.
func RegisterSweeperHooks(lc fx.Lifecycle, params SweeperParams) {
	interval := params.Config.App.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-sweepCtx.Done():
						return
					case <-ticker.C:
						count, err := params.Service.DeactivateExpired(sweepCtx)
						if err != nil {
							params.Logger.Error("Expiry sweep failed", "error", err)
							continue
						}
						if count > 0 {
							params.Logger.Info("Expiry sweep deactivated mappings", "count", count)
						}
					}
				}
			}()
			params.Logger.Info("Expiry sweeper started", "interval", interval.String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			params.Logger.Info("Expiry sweeper stopped")
			return nil
		},
	})
}
