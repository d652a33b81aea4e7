// Package errors defines the classified errors the ask pipeline returns. Each code carries
// a user-facing message, a suggestion and the HTTP status it maps to; causes stay internal.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode identifies a failure class in API responses
type ErrorCode string

const (
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeCatalogLoad   ErrorCode = "CATALOG_LOAD_FAILED"

	ErrCodeEmbeddingGeneration ErrorCode = "EMBEDDING_GENERATION_FAILED"
	ErrCodeQueryGeneration     ErrorCode = "QUERY_GENERATION_FAILED"
	ErrCodeAnswerGeneration    ErrorCode = "ANSWER_GENERATION_FAILED"
	ErrCodeQueryExecution      ErrorCode = "QUERY_EXECUTION_FAILED"

	// generated SQL rejected by the validator
	ErrCodeForbiddenStatement ErrorCode = "FORBIDDEN_STATEMENT"
	ErrCodeNotReadOnly        ErrorCode = "NOT_READ_ONLY"

	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"

	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"

	ErrCodeHistoryRead ErrorCode = "HISTORY_READ_FAILED"
)

// class is what every error of one code has in common
type class struct {
	message    string
	suggestion string
	status     int
	retryable  bool
}

const (
	tryAgain     = "This is usually temporary. Ask the question again in a moment."
	contactOwner = "This is a server-side problem. If it keeps happening, contact the service owners."
)

var classes = map[ErrorCode]class{
	ErrCodeConfiguration: {
		message:    "Invalid configuration",
		suggestion: "Check the environment, the .env file or the mounted secrets, then restart the service.",
		status:     http.StatusInternalServerError,
	},
	ErrCodeCatalogLoad: {
		message:    "Failed to load schema catalog",
		suggestion: "Point SCHEMA_PATH at a YAML file with a top-level 'datasets' list.",
		status:     http.StatusInternalServerError,
	},
	ErrCodeEmbeddingGeneration: {
		message:    "Failed to generate question embedding",
		suggestion: tryAgain,
		status:     http.StatusBadGateway,
		retryable:  true,
	},
	ErrCodeQueryGeneration: {
		message:    "Failed to generate a safe SQL query",
		suggestion: "Rephrase the question or name the figures you want to see.",
		status:     http.StatusBadRequest,
	},
	ErrCodeAnswerGeneration: {
		message:    "Failed to compose the answer",
		suggestion: tryAgain,
		status:     http.StatusBadGateway,
		retryable:  true,
	},
	ErrCodeQueryExecution: {
		message:    "Failed to run the query on the data warehouse",
		suggestion: contactOwner,
		status:     http.StatusInternalServerError,
	},
	ErrCodeForbiddenStatement: {
		message:    "Generated query contains a forbidden command",
		suggestion: "Only read-only questions are supported. Ask for figures, not for changes.",
		status:     http.StatusBadRequest,
	},
	ErrCodeNotReadOnly: {
		message:    "Generated query is not a SELECT statement",
		suggestion: "Rephrase the question as a request for data.",
		status:     http.StatusBadRequest,
	},
	ErrCodeDatabaseConnection: {
		message:    "Database connection failed",
		suggestion: contactOwner,
		status:     http.StatusServiceUnavailable,
		retryable:  true,
	},
	ErrCodeInvalidInput: {
		message:    "Invalid input",
		suggestion: "Check the request format and try again.",
		status:     http.StatusBadRequest,
	},
	ErrCodeMissingRequired: {
		message: "Missing required field",
		status:  http.StatusBadRequest,
	},
	ErrCodeRateLimited: {
		message:    "Rate limit exceeded",
		suggestion: "Wait a moment before asking again.",
		status:     http.StatusTooManyRequests,
		retryable:  true,
	},
	ErrCodeHistoryRead: {
		message:   "Failed to read question history",
		status:    http.StatusServiceUnavailable,
		retryable: true,
	},
}

// EnhancedError is a classified failure. Message, Details and Suggestion are safe to show
// to the asker; Cause is only ever logged.
type EnhancedError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Retryable  bool                   `json:"retryable,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Cause      error                  `json:"-"`
}

func (e *EnhancedError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return msg
}

func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// HTTPStatus is the status code the API answers with for this error
func (e *EnhancedError) HTTPStatus() int {
	if c, ok := classes[e.Code]; ok {
		return c.status
	}
	return http.StatusInternalServerError
}

// UserMessage renders the message, details and suggestion for terminals
func (e *EnhancedError) UserMessage() string {
	parts := []string{e.Message}
	if e.Details != "" {
		parts = append(parts, "Details: "+e.Details)
	}
	if e.Suggestion != "" {
		parts = append(parts, "Suggestion: "+e.Suggestion)
	}
	return strings.Join(parts, "\n\n")
}

// New builds an error of code with the code's standard message and suggestion
func New(code ErrorCode, details string) *EnhancedError {
	c := classes[code]
	return &EnhancedError{
		Code:       code,
		Message:    c.message,
		Details:    details,
		Suggestion: c.suggestion,
		Retryable:  c.retryable,
	}
}

// Wrap is New with an internal cause
func Wrap(err error, code ErrorCode, details string) *EnhancedError {
	e := New(code, details)
	e.Cause = err
	return e
}

// With attaches one metadata entry
func (e *EnhancedError) With(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the first EnhancedError in the chain, or ""
func CodeOf(err error) ErrorCode {
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) {
		return enhanced.Code
	}
	return ""
}

// HTTPStatus maps any error to a response status; unclassified errors are 500
func HTTPStatus(err error) int {
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) {
		return enhanced.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func hasCode(err error, codes ...ErrorCode) bool {
	code := CodeOf(err)
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

// IsUnsafeQuery reports whether err rejected generated SQL on safety grounds
func IsUnsafeQuery(err error) bool {
	return hasCode(err, ErrCodeForbiddenStatement, ErrCodeNotReadOnly)
}

// IsGeneration reports whether err came from a failed embedding or generation call
func IsGeneration(err error) bool {
	return hasCode(err, ErrCodeEmbeddingGeneration, ErrCodeQueryGeneration, ErrCodeAnswerGeneration)
}

// IsExecution reports whether err came from the warehouse executor
func IsExecution(err error) bool {
	return hasCode(err, ErrCodeQueryExecution)
}

// IsConfiguration reports whether err is a fatal startup error
func IsConfiguration(err error) bool {
	return hasCode(err, ErrCodeConfiguration, ErrCodeCatalogLoad)
}

func NewConfigurationError(err error, setting string) *EnhancedError {
	return Wrap(err, ErrCodeConfiguration, fmt.Sprintf("Setting '%s' is missing or invalid", setting)).
		With("setting", setting)
}

func NewCatalogLoadError(err error, path string) *EnhancedError {
	return Wrap(err, ErrCodeCatalogLoad, fmt.Sprintf("The catalog file '%s' could not be read or parsed", path)).
		With("path", path)
}

func NewEmbeddingGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeEmbeddingGeneration, "The embedding service could not process the question for schema retrieval")
}

func NewQueryGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeQueryGeneration, "The model could not turn the question into a read-only query")
}

func NewAnswerGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeAnswerGeneration, "The model could not write an answer from the retrieved data")
}

// NewQueryExecutionError hides the driver message and the query text from every
// user-facing field; both stay in Cause.
func NewQueryExecutionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeQueryExecution, "The data warehouse rejected or could not complete the generated query")
}

// NewForbiddenStatementError reports the mutating keyword found in generated SQL
func NewForbiddenStatementError(keyword string) *EnhancedError {
	keyword = strings.ToUpper(keyword)
	return New(ErrCodeForbiddenStatement, fmt.Sprintf("The query uses '%s', which can modify data or schema", keyword)).
		With("keyword", keyword)
}

func NewNotReadOnlyError() *EnhancedError {
	return New(ErrCodeNotReadOnly, "Only SELECT statements are allowed against the data warehouse")
}

func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		With("field", field)
}

func NewMissingRequiredError(field string) *EnhancedError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("Field '%s' is required", field)).
		With("field", field)
}

func NewRateLimitedError(limitPerMinute int) *EnhancedError {
	return New(ErrCodeRateLimited, fmt.Sprintf("At most %d requests per minute are accepted", limitPerMinute))
}

func NewDatabaseConnectionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseConnection, "Unable to connect to the database")
}

func NewHistoryReadError(err error) *EnhancedError {
	return Wrap(err, ErrCodeHistoryRead, "")
}
