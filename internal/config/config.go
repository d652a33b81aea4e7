// Package config loads service settings through a chain of secret providers.
package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted by EMBED_PROVIDER and GEN_PROVIDER
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// Config holds all application configuration
type Config struct {
	Catalog     CatalogConfig
	Query       QueryConfig
	Embedding   EmbeddingConfig
	Generation  GenerationConfig
	Credentials CredentialsConfig
	Warehouse   WarehouseConfig
	Redis       RedisConfig
	History     HistoryConfig
	Snapshot    SnapshotConfig
	Server      ServerConfig
}

// CatalogConfig locates the allow-listed schema catalog
type CatalogConfig struct {
	Path string
}

// QueryConfig holds the ask pipeline limits
type QueryConfig struct {
	MaxRows           int
	TopK              int
	ColumnsPerTable   int
	PreviewRows       int
	Timeout           time.Duration
	SQLTemperature    float64
	AnswerTemperature float64
	DefaultLang       string
}

// EmbeddingConfig selects the embedding provider. An empty Model uses the provider default.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	Dimensions int
}

// GenerationConfig selects the generation provider. An empty Model uses the provider default.
type GenerationConfig struct {
	Provider  string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// CredentialsConfig holds provider API keys
type CredentialsConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	ClaudeAPIKey  string
	GeminiAPIKey  string
}

// WarehouseConfig describes the data warehouse connection
type WarehouseConfig struct {
	Driver string
	DSN    string
	MySQL  MySQLConfig
}

// MySQLConfig holds the discrete MYSQL_* settings used when no DSN is given
type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// HistoryConfig controls the per-user question log
type HistoryConfig struct {
	Enabled    bool
	MaxEntries int
	TTL        time.Duration
}

// SnapshotConfig controls writing the built index to PostgreSQL
type SnapshotConfig struct {
	Enabled  bool
	Database DatabaseConfig
}

// DatabaseConfig holds PostgreSQL configuration for the index snapshot
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      string
	GinMode   string
	RateLimit int
	LogLevel  string
}

// Loader reads settings through a SecretProvider and remembers where each came from
type Loader struct {
	provider SecretProvider
	sources  map[string]string
	failures []error
}

// NewLoader creates a loader over provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{provider: provider, sources: make(map[string]string)}
}

// NewDefaultLoader creates a loader that checks, in order, a Kubernetes secret mount,
// files under /var/secrets, and the environment.
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{
		NewK8sProvider("", ""),
		NewFileProvider("/var/secrets"),
		NewEnvProvider(),
	}

	return NewLoader(NewChainProvider(providers...))
}

// Load loads the complete configuration. Unparseable values fall back to their defaults;
// Validate reports settings that are missing or out of range.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	l.sources = make(map[string]string)
	l.failures = nil
	cfg := &Config{}

	cfg.Catalog = CatalogConfig{
		Path: l.getString(ctx, "SCHEMA_PATH", "schema.yaml"),
	}

	cfg.Query = QueryConfig{
		MaxRows:           l.getInt(ctx, "MAX_ROWS", 200),
		TopK:              l.getInt(ctx, "TOPK_OBJECTS", 5),
		ColumnsPerTable:   l.getInt(ctx, "TOPK_COLS_PER_TBL", 6),
		PreviewRows:       l.getInt(ctx, "PREVIEW_ROWS", 20),
		Timeout:           l.getDuration(ctx, "QUERY_TIMEOUT", 30*time.Second),
		SQLTemperature:    l.getFloat(ctx, "SQL_TEMPERATURE", 0),
		AnswerTemperature: l.getFloat(ctx, "ANSWER_TEMPERATURE", 0.3),
		DefaultLang:       l.getString(ctx, "DEFAULT_LANG", "pt-BR"),
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   strings.ToLower(l.getString(ctx, "EMBED_PROVIDER", ProviderOpenAI)),
		Model:      l.getString(ctx, "EMBED_MODEL", ""),
		Dimensions: l.getInt(ctx, "EMBED_DIMENSIONS", 384),
	}

	cfg.Generation = GenerationConfig{
		Provider:  strings.ToLower(l.getString(ctx, "GEN_PROVIDER", ProviderOpenAI)),
		Model:     l.getString(ctx, "GEN_MODEL", ""),
		MaxTokens: l.getInt(ctx, "GEN_MAX_TOKENS", 1000),
		Timeout:   l.getDuration(ctx, "GEN_TIMEOUT", 60*time.Second),
	}

	cfg.Credentials = CredentialsConfig{
		OpenAIAPIKey:  l.getString(ctx, "OPENAI_API_KEY", ""),
		OpenAIBaseURL: l.getString(ctx, "OPENAI_BASE_URL", ""),
		ClaudeAPIKey:  l.getString(ctx, "CLAUDE_API_KEY", ""),
		GeminiAPIKey:  l.getString(ctx, "GEMINI_API_KEY", ""),
	}

	cfg.Warehouse = WarehouseConfig{
		Driver: strings.ToLower(l.getString(ctx, "WAREHOUSE_DRIVER", "mysql")),
		DSN:    l.getString(ctx, "WAREHOUSE_DSN", ""),
		MySQL: MySQLConfig{
			Host:     l.getString(ctx, "MYSQL_HOST", "localhost"),
			Port:     l.getString(ctx, "MYSQL_PORT", "3306"),
			User:     l.getString(ctx, "MYSQL_USER", "root"),
			Password: l.getString(ctx, "MYSQL_PASSWORD", ""),
			Database: l.getString(ctx, "MYSQL_DATABASE", ""),
		},
	}

	cfg.Redis = RedisConfig{
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
	}

	cfg.History = HistoryConfig{
		Enabled:    l.getBool(ctx, "HISTORY_ENABLED", false),
		MaxEntries: l.getInt(ctx, "HISTORY_MAX_ENTRIES", 100),
		TTL:        l.getDuration(ctx, "HISTORY_TTL", 30*24*time.Hour),
	}

	cfg.Snapshot = SnapshotConfig{
		Enabled: l.getBool(ctx, "INDEX_SNAPSHOT_ENABLED", false),
		Database: DatabaseConfig{
			Host:     l.getString(ctx, "DB_HOST", "localhost"),
			Port:     l.getString(ctx, "DB_PORT", "5432"),
			Database: l.getString(ctx, "DB_NAME", "warehouse_ai"),
			Username: l.getString(ctx, "DB_USER", "warehouse_ai"),
			Password: l.getString(ctx, "DB_PASSWORD", ""),
			SSLMode:  l.getString(ctx, "DB_SSLMODE", "disable"),
		},
	}

	cfg.Server = ServerConfig{
		Port:      l.getString(ctx, "PORT", "8080"),
		GinMode:   l.getString(ctx, "GIN_MODE", "release"),
		RateLimit: l.getInt(ctx, "RATE_LIMIT", 60),
		LogLevel:  l.getString(ctx, "LOG_LEVEL", "info"),
	}

	if len(l.failures) > 0 {
		return nil, fmt.Errorf("reading configuration: %w", errors.Join(l.failures...))
	}
	return cfg, nil
}

// HasWarehouseTarget reports whether a DSN or a MySQL database name is configured
func (c *Config) HasWarehouseTarget() bool {
	if c.Warehouse.DSN != "" {
		return true
	}
	return c.Warehouse.Driver == "mysql" && c.Warehouse.MySQL.Database != ""
}

// Helper methods for retrieving and parsing configuration values

// sourceResolver is implemented by providers that can name where a value came from
type sourceResolver interface {
	Resolve(ctx context.Context, key string) (value, source string, err error)
}

// lookup returns the value for key. A missing key is not an error; an unreadable one is
// recorded and makes Load fail.
func (l *Loader) lookup(ctx context.Context, key string) (string, bool) {
	var value, source string
	var err error
	if r, ok := l.provider.(sourceResolver); ok {
		value, source, err = r.Resolve(ctx, key)
	} else {
		value, err = l.provider.GetSecret(ctx, key)
		source = l.provider.Name()
	}

	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			l.failures = append(l.failures, err)
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	l.sources[key] = source
	return value, true
}

// Source names the provider that supplied key during the last Load, or "" when the
// default was used
func (l *Loader) Source(key string) string {
	return l.sources[key]
}

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	if value, ok := l.lookup(ctx, key); ok {
		return value
	}
	return defaultValue
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, ok := l.lookup(ctx, key)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, ok := l.lookup(ctx, key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getFloat(ctx context.Context, key string, defaultValue float64) float64 {
	value, ok := l.lookup(ctx, key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, ok := l.lookup(ctx, key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// MustLoad loads configuration and panics on error
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
