package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation error(s):\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields lists the failing field names in order
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

var (
	validProviders = []string{ProviderOpenAI, ProviderClaude, ProviderGemini, ProviderLocal}
	validDrivers   = []string{"mysql", "postgres", "pgx", "sqlite"}
	validGinModes  = []string{"debug", "release", "test"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Validate checks every section and returns ValidationErrors listing all problems
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateCatalog()...)
	errs = append(errs, c.validateQuery()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateWarehouse()...)
	errs = append(errs, c.validateHistory()...)
	errs = append(errs, c.validateSnapshot()...)
	errs = append(errs, c.validateServer()...)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (c *Config) validateCatalog() []ValidationError {
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return []ValidationError{{Field: "Catalog.Path", Message: "schema catalog path is required"}}
	}
	return nil
}

func (c *Config) validateQuery() []ValidationError {
	var errs []ValidationError

	positive := []struct {
		field string
		value int
	}{
		{"Query.MaxRows", c.Query.MaxRows},
		{"Query.TopK", c.Query.TopK},
		{"Query.ColumnsPerTable", c.Query.ColumnsPerTable},
		{"Query.PreviewRows", c.Query.PreviewRows},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{Field: p.field, Message: "must be positive"})
		}
	}

	if c.Query.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "Query.Timeout", Message: "query timeout must be positive"})
	}
	if c.Query.SQLTemperature < 0 || c.Query.SQLTemperature > 2 {
		errs = append(errs, ValidationError{Field: "Query.SQLTemperature", Message: "temperature must be between 0 and 2"})
	}
	if c.Query.AnswerTemperature < 0 || c.Query.AnswerTemperature > 2 {
		errs = append(errs, ValidationError{Field: "Query.AnswerTemperature", Message: "temperature must be between 0 and 2"})
	}
	if strings.TrimSpace(c.Query.DefaultLang) == "" {
		errs = append(errs, ValidationError{Field: "Query.DefaultLang", Message: "default answer language is required"})
	}
	return errs
}

func (c *Config) apiKeyFor(provider string) (string, string) {
	switch provider {
	case ProviderOpenAI:
		return "Credentials.OpenAIAPIKey", c.Credentials.OpenAIAPIKey
	case ProviderClaude:
		return "Credentials.ClaudeAPIKey", c.Credentials.ClaudeAPIKey
	case ProviderGemini:
		return "Credentials.GeminiAPIKey", c.Credentials.GeminiAPIKey
	}
	return "", ""
}

func (c *Config) validateProviders() []ValidationError {
	var errs []ValidationError

	if !oneOf(c.Embedding.Provider, validProviders) || c.Embedding.Provider == ProviderClaude {
		errs = append(errs, ValidationError{
			Field:   "Embedding.Provider",
			Message: fmt.Sprintf("invalid embedding provider: %s (must be 'openai', 'gemini', or 'local')", c.Embedding.Provider),
		})
	}
	if c.Embedding.Provider == ProviderLocal && c.Embedding.Dimensions <= 0 {
		errs = append(errs, ValidationError{Field: "Embedding.Dimensions", Message: "local embeddings need positive dimensions"})
	}

	if !oneOf(c.Generation.Provider, validProviders) || c.Generation.Provider == ProviderLocal {
		errs = append(errs, ValidationError{
			Field:   "Generation.Provider",
			Message: fmt.Sprintf("invalid generation provider: %s (must be 'openai', 'claude', or 'gemini')", c.Generation.Provider),
		})
	}
	if c.Generation.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "Generation.Timeout", Message: "generation timeout must be positive"})
	}

	// one error per missing key even when both providers share it
	seen := map[string]bool{}
	for _, provider := range []string{c.Embedding.Provider, c.Generation.Provider} {
		field, key := c.apiKeyFor(provider)
		if field == "" || key != "" || seen[field] {
			continue
		}
		seen[field] = true
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s API key is required", provider),
		})
	}
	return errs
}

func (c *Config) validateWarehouse() []ValidationError {
	var errs []ValidationError

	if !oneOf(c.Warehouse.Driver, validDrivers) {
		errs = append(errs, ValidationError{
			Field:   "Warehouse.Driver",
			Message: fmt.Sprintf("invalid warehouse driver: %s (must be one of %s)", c.Warehouse.Driver, strings.Join(validDrivers, ", ")),
		})
		return errs
	}

	if !c.HasWarehouseTarget() {
		message := "WAREHOUSE_DSN is required"
		if c.Warehouse.Driver == "mysql" {
			message = "WAREHOUSE_DSN or MYSQL_DATABASE is required"
		}
		errs = append(errs, ValidationError{Field: "Warehouse.DSN", Message: message})
	}
	return errs
}

func (c *Config) validateHistory() []ValidationError {
	if !c.History.Enabled {
		return nil
	}

	var errs []ValidationError
	if c.Redis.Addr == "" {
		errs = append(errs, ValidationError{Field: "Redis.Addr", Message: "redis address is required when history is enabled"})
	}
	if c.History.MaxEntries <= 0 {
		errs = append(errs, ValidationError{Field: "History.MaxEntries", Message: "max entries must be positive"})
	}
	if c.History.TTL <= 0 {
		errs = append(errs, ValidationError{Field: "History.TTL", Message: "history TTL must be positive"})
	}
	return errs
}

func (c *Config) validateSnapshot() []ValidationError {
	if !c.Snapshot.Enabled {
		return nil
	}

	var errs []ValidationError
	db := c.Snapshot.Database
	required := []struct {
		field, value string
	}{
		{"Snapshot.Database.Host", db.Host},
		{"Snapshot.Database.Port", db.Port},
		{"Snapshot.Database.Database", db.Database},
		{"Snapshot.Database.Username", db.Username},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, ValidationError{Field: r.field, Message: "required when the index snapshot is enabled"})
		}
	}
	return errs
}

func (c *Config) validateServer() []ValidationError {
	var errs []ValidationError

	if c.Server.Port == "" {
		errs = append(errs, ValidationError{Field: "Server.Port", Message: "server port is required"})
	}
	if !oneOf(c.Server.GinMode, validGinModes) {
		errs = append(errs, ValidationError{
			Field:   "Server.GinMode",
			Message: fmt.Sprintf("invalid gin mode: %s (must be 'debug', 'release', or 'test')", c.Server.GinMode),
		})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "Server.RateLimit", Message: "rate limit must be non-negative"})
	}
	if !oneOf(strings.ToLower(c.Server.LogLevel), validLogLevels) {
		errs = append(errs, ValidationError{
			Field:   "Server.LogLevel",
			Message: fmt.Sprintf("invalid log level: %s", c.Server.LogLevel),
		})
	}
	return errs
}

// ValidateProduction rejects settings that are acceptable in development only
func (c *Config) ValidateProduction() error {
	var errs ValidationErrors

	if c.Embedding.Provider == ProviderLocal {
		errs = append(errs, ValidationError{
			Field:   "Embedding.Provider",
			Message: "production deployment must not use local hash embeddings",
		})
	}

	if c.History.Enabled && (c.Redis.Password == "" || c.Redis.Password == "changeme") {
		errs = append(errs, ValidationError{
			Field:   "Redis.Password",
			Message: "production deployment must not use default or empty Redis password",
		})
	}

	if c.Snapshot.Enabled && (c.Snapshot.Database.Password == "" || c.Snapshot.Database.Password == "changeme") {
		errs = append(errs, ValidationError{
			Field:   "Snapshot.Database.Password",
			Message: "production deployment must not use default or empty database password",
		})
	}

	if c.Warehouse.DSN == "" && c.Warehouse.Driver == "mysql" && c.Warehouse.MySQL.Password == "" {
		errs = append(errs, ValidationError{
			Field:   "Warehouse.MySQL.Password",
			Message: "production deployment must not connect to the warehouse without a password",
		})
	}

	if c.Server.RateLimit == 0 {
		errs = append(errs, ValidationError{
			Field:   "Server.RateLimit",
			Message: "production deployment should enable rate limiting",
		})
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// IsProduction reports whether gin runs in release mode
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// ValidateWithContext validates configuration and runs production checks in release mode
func (c *Config) ValidateWithContext() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.IsProduction() {
		if err := c.ValidateProduction(); err != nil {
			return fmt.Errorf("production validation failed: %w", err)
		}
	}
	return nil
}
