// Package observability holds the structured logger, the in-process metrics collector,
// health checks and the gin middleware that ties them to requests.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel is the severity of an entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// LogEntry is one JSON line
type LogEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	Level         LogLevel               `json:"level"`
	Component     string                 `json:"component,omitempty"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	UserID        string                 `json:"user_id,omitempty"`
	Department    string                 `json:"department,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// Logger writes JSON lines tagged with a component and the request identity found in ctx
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	minLevel  LogLevel
	component string
}

var (
	defaultLevelMu sync.RWMutex
	defaultLevel   = LevelInfo
)

// NewLogger returns a stdout logger at the process default level
func NewLogger(component string) *Logger {
	defaultLevelMu.RLock()
	level := defaultLevel
	defaultLevelMu.RUnlock()

	return &Logger{out: os.Stdout, minLevel: level, component: component}
}

// ParseLevel maps a LOG_LEVEL value to a LogLevel. Unknown values mean info.
func ParseLevel(value string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetDefaultLevel sets the level of loggers created afterwards. Components build their
// loggers at construction time, so call this before wiring the app.
func SetDefaultLevel(level LogLevel) {
	defaultLevelMu.Lock()
	defaultLevel = level
	defaultLevelMu.Unlock()
}

// WithOutput redirects the logger, mostly for tests
func (l *Logger) WithOutput(w io.Writer) *Logger {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
	return l
}

// WithLevel changes the minimum level
func (l *Logger) WithLevel(level LogLevel) *Logger {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
	return l
}

func (l *Logger) write(ctx context.Context, level LogLevel, message string, err error, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level.rank() < l.minLevel.rank() {
		return
	}

	entry := LogEntry{
		Timestamp:     time.Now().UTC(),
		Level:         level,
		Component:     l.component,
		Message:       message,
		CorrelationID: GetCorrelationID(ctx),
		UserID:        GetUserID(ctx),
		Department:    GetDepartment(ctx),
		Fields:        fields,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	line, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		fmt.Fprintf(os.Stderr, "observability: dropping log line %q: %v\n", message, marshalErr)
		return
	}
	line = append(line, '\n')
	_, _ = l.out.Write(line)
}

// Debug logs at debug level
func (l *Logger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	l.write(ctx, LevelDebug, message, nil, fields)
}

// Info logs at info level
func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.write(ctx, LevelInfo, message, nil, fields)
}

// Warn logs at warn level
func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.write(ctx, LevelWarn, message, nil, fields)
}

// Error logs at error level; err lands in the top level "error" field
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	l.write(ctx, LevelError, message, err, fields)
}

type contextKey int

const (
	correlationIDKey contextKey = iota
	userIDKey
	departmentKey
)

// WithCorrelationID tags ctx with a request correlation ID
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID returns the correlation ID in ctx, or ""
func GetCorrelationID(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithUserID tags ctx with the asking user
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// GetUserID returns the user in ctx, or ""
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

// WithAsker tags ctx with the user and, when set, their department
func WithAsker(ctx context.Context, userID, department string) context.Context {
	ctx = WithUserID(ctx, userID)
	if department != "" {
		ctx = context.WithValue(ctx, departmentKey, department)
	}
	return ctx
}

// GetDepartment returns the department in ctx, or ""
func GetDepartment(ctx context.Context) string {
	return stringValue(ctx, departmentKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
