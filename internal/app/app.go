// Package app wires configuration into a running ask pipeline for the server and the CLI.
package app

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/seanankenbruck/warehouse-ai/internal/catalog"
	"github.com/seanankenbruck/warehouse-ai/internal/config"
	"github.com/seanankenbruck/warehouse-ai/internal/database"
	apperrors "github.com/seanankenbruck/warehouse-ai/internal/errors"
	"github.com/seanankenbruck/warehouse-ai/internal/history"
	"github.com/seanankenbruck/warehouse-ai/internal/llm"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
	"github.com/seanankenbruck/warehouse-ai/internal/processor"
	"github.com/seanankenbruck/warehouse-ai/internal/ratelimit"
	"github.com/seanankenbruck/warehouse-ai/internal/semantic"
	"github.com/seanankenbruck/warehouse-ai/internal/warehouse"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Options replaces providers that would otherwise be built from configuration.
type Options struct {
	Embedder  llm.Embedder
	Generator llm.Generator
	Executor  warehouse.Executor
	// SkipWarehouse leaves the executor unset for commands that never run SQL
	SkipWarehouse bool
	// SkipHistory ignores HISTORY_ENABLED
	SkipHistory bool
}

// App holds the process-wide state built at startup. The index is immutable once built.
type App struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Index     *semantic.Index
	Embedder  llm.Embedder
	Generator llm.Generator
	Retriever *semantic.Retriever
	Executor  warehouse.Executor
	History   *history.Store
	Limiter   *ratelimit.RateLimiter
	Health    *observability.HealthChecker
	Processor *processor.QueryProcessor

	logger  *observability.Logger
	closers []func() error
}

// New loads the catalog, builds the index and wires the pipeline. Any failure is a
// configuration error and the process should exit.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		logger: observability.NewLogger("app"),
		Health: observability.NewHealthChecker("query-processor", Version),
	}

	if err := a.init(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	a.Catalog = cat

	a.Embedder = opts.Embedder
	if a.Embedder == nil {
		if a.Embedder, err = NewEmbedder(ctx, cfg); err != nil {
			return apperrors.NewConfigurationError(err, "EMBED_PROVIDER")
		}
	}

	a.Generator = opts.Generator
	if a.Generator == nil {
		if a.Generator, err = NewGenerator(ctx, cfg); err != nil {
			return apperrors.NewConfigurationError(err, "GEN_PROVIDER")
		}
	}

	if a.Index, err = semantic.BuildIndex(ctx, cat, a.Embedder); err != nil {
		return apperrors.NewConfigurationError(err, "SCHEMA_PATH")
	}
	a.Retriever = semantic.NewRetriever(a.Index, a.Embedder, cfg.Query.TopK, cfg.Query.ColumnsPerTable)
	a.Health.Register("catalog_index", observability.IndexHealthCheck(a.Index.Len))

	if cfg.Snapshot.Enabled {
		a.saveSnapshot(ctx)
	}

	a.Executor = opts.Executor
	if a.Executor == nil && !opts.SkipWarehouse {
		if a.Executor, err = a.openWarehouse(); err != nil {
			return err
		}
	}
	if a.Executor != nil {
		a.Health.Register("warehouse", observability.WarehouseHealthCheck(a.Executor.Ping))
	}

	a.Processor = processor.NewQueryProcessor(cat, a.Retriever, a.Generator, a.Executor, processor.ProcessorConfig{
		MaxRows:           cfg.Query.MaxRows,
		TopK:              cfg.Query.TopK,
		PreviewRows:       cfg.Query.PreviewRows,
		DefaultLang:       cfg.Query.DefaultLang,
		SQLTemperature:    cfg.Query.SQLTemperature,
		AnswerTemperature: cfg.Query.AnswerTemperature,
	})
	a.Processor.SetHealthChecker(a.Health)

	if cfg.History.Enabled && !opts.SkipHistory {
		a.openHistory()
	}

	a.Health.Register("memory", observability.MemoryHealthCheck(observability.RuntimeMemoryUsage))

	a.logger.Info(ctx, "Pipeline ready", map[string]interface{}{
		"catalog":        cfg.Catalog.Path,
		"index_objects":  a.Index.Len(),
		"embed_provider": cfg.Embedding.Provider,
		"gen_provider":   cfg.Generation.Provider,
		"warehouse":      a.Executor != nil,
		"history":        a.History != nil,
	})
	return nil
}

// WarehouseDSN returns WAREHOUSE_DSN or, for MySQL, a DSN built from the MYSQL_* settings
func WarehouseDSN(cfg *config.Config) string {
	if cfg.Warehouse.DSN != "" {
		return cfg.Warehouse.DSN
	}
	if cfg.Warehouse.Driver != warehouse.DriverMySQL {
		return ""
	}
	m := cfg.Warehouse.MySQL
	return warehouse.MySQLConfig{
		Host:     m.Host,
		Port:     m.Port,
		User:     m.User,
		Password: m.Password,
		Database: m.Database,
	}.DSN()
}

func (a *App) openWarehouse() (warehouse.Executor, error) {
	cfg := a.Config
	db, err := warehouse.Open(cfg.Warehouse.Driver, WarehouseDSN(cfg))
	if err != nil {
		return nil, apperrors.NewConfigurationError(err, "WAREHOUSE_DSN")
	}
	a.closers = append(a.closers, db.Close)

	executor := warehouse.NewSQLExecutor(db, cfg.Warehouse.Driver, warehouse.Options{
		MaxRows:      cfg.Query.MaxRows,
		QueryTimeout: cfg.Query.Timeout,
		ReadOnlyTx:   warehouse.SupportsReadOnlyTx(cfg.Warehouse.Driver),
	})
	return warehouse.NewCircuitBreakerExecutor(executor, "warehouse", warehouse.DefaultCircuitBreakerConfig), nil
}

// openHistory connects Redis. An unreachable server is logged and history stays off;
// asks never depend on it.
func (a *App) openHistory() {
	cfg := a.Config
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn(pingCtx, "Redis unreachable, question history disabled", map[string]interface{}{
			"addr":  cfg.Redis.Addr,
			"error": err.Error(),
		})
		client.Close()
		return
	}

	a.closers = append(a.closers, client.Close)
	a.History = history.NewStore(client, cfg.History.MaxEntries, cfg.History.TTL)
	a.Processor.SetHistory(a.History)
	a.Health.Register("redis", observability.RedisHealthCheck(a.History.Ping))
}

// SnapshotConfig maps the DB_* settings onto the snapshot store configuration
func SnapshotConfig(cfg *config.Config) semantic.PostgresConfig {
	db := cfg.Snapshot.Database
	return semantic.PostgresConfig{
		Host:     db.Host,
		Port:     db.Port,
		Database: db.Database,
		Username: db.Username,
		Password: db.Password,
		SSLMode:  db.SSLMode,
	}
}

// saveSnapshot writes the built index to Postgres. Failures are logged only; the request
// path never reads the snapshot.
func (a *App) saveSnapshot(ctx context.Context) {
	store, err := OpenSnapshotStore(ctx, a.Config)
	if err != nil {
		a.logger.Warn(ctx, "Index snapshot store unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	defer store.Close()

	if err := store.SaveSnapshot(ctx, a.Index.Objects()); err != nil {
		a.logger.Error(ctx, "Failed to save index snapshot", err, nil)
		return
	}
	a.logger.Info(ctx, "Index snapshot saved", map[string]interface{}{"objects": a.Index.Len()})
}

// NewRateLimitMiddleware starts a limiter for RATE_LIMIT requests per minute per client.
// It returns nil when rate limiting is disabled.
func (a *App) NewRateLimitMiddleware() processor.RequestLimiter {
	if a.Config.Server.RateLimit <= 0 {
		return nil
	}
	a.Limiter = ratelimit.NewRateLimiter()
	a.closers = append(a.closers, func() error {
		a.Limiter.Stop()
		return nil
	})
	return ratelimit.NewMiddleware(a.Limiter, a.Config.Server.RateLimit)
}

// Close releases connections and stops background loops in reverse order of creation
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// OpenSnapshotStore opens the snapshot database and checks it was migrated
func OpenSnapshotStore(ctx context.Context, cfg *config.Config) (*semantic.PostgresStore, error) {
	store, err := semantic.NewPostgresStore(SnapshotConfig(cfg))
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}
	if err := database.CheckSchema(ctx, store.DB()); err != nil {
		store.Close()
		return nil, apperrors.NewDatabaseConnectionError(err)
	}
	return store, nil
}

// MigrationURL renders the DB_* settings as a postgres:// URL for golang-migrate
func MigrationURL(cfg *config.Config) string {
	db := cfg.Snapshot.Database
	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     net.JoinHostPort(db.Host, db.Port),
		Path:     "/" + db.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
