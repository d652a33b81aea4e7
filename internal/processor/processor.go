package processor

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/warehouse-ai/internal/catalog"
	"github.com/seanankenbruck/warehouse-ai/internal/errors"
	"github.com/seanankenbruck/warehouse-ai/internal/history"
	"github.com/seanankenbruck/warehouse-ai/internal/llm"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
	"github.com/seanankenbruck/warehouse-ai/internal/semantic"
	"github.com/seanankenbruck/warehouse-ai/internal/warehouse"
)

var errNoWarehouse = stderrors.New("no warehouse executor configured")

// QueryRequest represents an incoming question
type QueryRequest struct {
	UserID     string `json:"user_id"`
	Department string `json:"department,omitempty"`
	Prompt     string `json:"prompt"`
	Lang       string `json:"lang,omitempty"`
}

// QueryResponse is the answer to one question
type QueryResponse struct {
	Answer   string        `json:"answer"`
	Sources  []string      `json:"sources"`
	RowCount int           `json:"row_count"`
	Meta     *ResponseMeta `json:"meta,omitempty"`
}

// ResponseMeta describes how the answer was produced
type ResponseMeta struct {
	ObjectsUsed   []semantic.TableHit `json:"objects_used"`
	Limit         int                 `json:"limit"`
	Truncated     bool                `json:"truncated,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	DurationMs    int64               `json:"duration_ms"`
}

// Retriever selects the catalog objects relevant to a question
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) (*semantic.RetrievalResult, error)
}

// HistoryStore records finished requests
type HistoryStore interface {
	Record(ctx context.Context, entry history.Entry) error
	Recent(ctx context.Context, userID string, limit int) ([]history.Entry, error)
}

// ProcessorConfig holds configuration for the query processor
type ProcessorConfig struct {
	MaxRows           int
	TopK              int
	PreviewRows       int
	DefaultLang       string
	SQLTemperature    float64
	AnswerTemperature float64
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.TopK <= 0 {
		c.TopK = semantic.DefaultTopK
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = DefaultPreviewRows
	}
	if c.DefaultLang == "" {
		c.DefaultLang = "pt-BR"
	}
	return c
}

// QueryProcessor runs retrieval, synthesis, execution and answering for one question
type QueryProcessor struct {
	config          ProcessorConfig
	catalog         *catalog.Catalog
	retriever       Retriever
	synthesizer     *SQLSynthesizer
	executor        warehouse.Executor
	resultProcessor *ResultProcessor
	contextBuilder  *ContextBuilder
	answerer        *Answerer
	history         HistoryStore
	healthChecker   *observability.HealthChecker
	logger          *observability.Logger
}

// NewQueryProcessor creates a new query processor instance
func NewQueryProcessor(cat *catalog.Catalog, retriever Retriever, generator llm.Generator, executor warehouse.Executor, config ProcessorConfig) *QueryProcessor {
	config = config.withDefaults()

	return &QueryProcessor{
		config:          config,
		catalog:         cat,
		retriever:       retriever,
		synthesizer:     NewSQLSynthesizer(generator, NewSafetyChecker(config.MaxRows), config.SQLTemperature),
		executor:        executor,
		resultProcessor: NewResultProcessor(config.MaxRows),
		contextBuilder:  NewContextBuilder(config.PreviewRows),
		answerer:        NewAnswerer(generator, config.AnswerTemperature),
		logger:          observability.NewLogger("query-processor"),
	}
}

// SetHealthChecker sets the health checker for the processor
func (qp *QueryProcessor) SetHealthChecker(healthChecker *observability.HealthChecker) {
	qp.healthChecker = healthChecker
}

// SetHistory enables request history
func (qp *QueryProcessor) SetHistory(store HistoryStore) {
	qp.history = store
}

// Config returns the effective configuration
func (qp *QueryProcessor) Config() ProcessorConfig {
	return qp.config
}

// Search returns the retrieval result for a question without generating SQL
func (qp *QueryProcessor) Search(ctx context.Context, question string, topK int) (*semantic.RetrievalResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.NewMissingRequiredError("q")
	}
	if topK <= 0 {
		topK = qp.config.TopK
	}
	return qp.retriever.Retrieve(ctx, question, topK)
}

// GenerateSQL retrieves objects and returns the validated query without executing it.
// The returned query is empty when no relevant table was found.
func (qp *QueryProcessor) GenerateSQL(ctx context.Context, question string) (string, *semantic.RetrievalResult, error) {
	retrieval, err := qp.Search(ctx, question, qp.config.TopK)
	if err != nil {
		return "", nil, err
	}
	if retrieval.IsEmpty() {
		return "", retrieval, nil
	}
	sql, err := qp.synthesizer.Synthesize(ctx, question, retrieval)
	if err != nil {
		return "", retrieval, err
	}
	return sql, retrieval, nil
}

func (qp *QueryProcessor) validateRequest(req *QueryRequest) error {
	if req == nil {
		return errors.NewInvalidInputError("request body", "request is empty")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.UserID == "" {
		return errors.NewMissingRequiredError("user_id")
	}
	if req.Prompt == "" {
		return errors.NewMissingRequiredError("prompt")
	}
	if strings.TrimSpace(req.Lang) == "" {
		req.Lang = qp.config.DefaultLang
	}
	return nil
}

// ProcessQuery handles the main question answering logic. Each step runs once; the first
// failure ends the request with a classified error.
func (qp *QueryProcessor) ProcessQuery(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	if err := qp.validateRequest(req); err != nil {
		return nil, err
	}
	ctx = observability.WithAsker(ctx, req.UserID, req.Department)

	qp.logger.Info(ctx, "Processing question", map[string]interface{}{
		"prompt_length": len(req.Prompt),
		"lang":          req.Lang,
	})

	var errorType string
	var response *QueryResponse
	var processingErr error
	noData := false

	defer func() {
		duration := time.Since(start)
		success := processingErr == nil
		observability.RecordAskMetrics(duration, success, noData, errorType)

		if processingErr != nil {
			qp.logger.Error(ctx, "Question processing failed", processingErr, map[string]interface{}{
				"duration_ms": duration.Milliseconds(),
				"error_type":  errorType,
			})
		} else {
			qp.logger.Info(ctx, "Question processed successfully", map[string]interface{}{
				"duration_ms": duration.Milliseconds(),
				"row_count":   response.RowCount,
				"sources":     response.Sources,
				"no_data":     noData,
			})
		}

		qp.recordHistory(ctx, req, response, processingErr, noData, duration)
	}()

	retrieval, err := qp.retriever.Retrieve(ctx, req.Prompt, qp.config.TopK)
	if err != nil {
		errorType = "embedding_generation"
		processingErr = err
		if errors.CodeOf(err) == "" {
			processingErr = errors.NewEmbeddingGenerationError(err)
		}
		return nil, processingErr
	}

	if retrieval.IsEmpty() {
		noData = true
		answer, err := qp.answerer.Answer(ctx, req.Prompt, NoDataContext, req.Lang)
		if err != nil {
			errorType = "answer_generation"
			processingErr = err
			return nil, processingErr
		}
		response = &QueryResponse{
			Answer:   answer,
			Sources:  []string{},
			RowCount: 0,
			Meta:     qp.meta(ctx, retrieval, false, start),
		}
		return response, nil
	}

	sql, err := qp.synthesizer.Synthesize(ctx, req.Prompt, retrieval)
	if err != nil {
		if errors.IsUnsafeQuery(err) {
			errorType = "unsafe_query"
		} else {
			errorType = "query_generation"
		}
		processingErr = err
		return nil, processingErr
	}

	if qp.executor == nil {
		errorType = "query_execution"
		processingErr = errors.NewQueryExecutionError(errNoWarehouse)
		return nil, processingErr
	}
	rows, err := qp.executor.Execute(ctx, sql)
	if err != nil {
		errorType = "query_execution"
		processingErr = errors.NewQueryExecutionError(err)
		return nil, processingErr
	}
	results := qp.resultProcessor.ProcessRows(rows)

	qp.logger.Debug(ctx, "Query executed", map[string]interface{}{
		"summary":   results.Summary,
		"columns":   results.Columns,
		"truncated": results.Truncated,
	})

	contextText := qp.contextBuilder.Build(retrieval, results.Rows)
	answer, err := qp.answerer.Answer(ctx, req.Prompt, contextText, req.Lang)
	if err != nil {
		errorType = "answer_generation"
		processingErr = err
		return nil, processingErr
	}

	response = &QueryResponse{
		Answer:   answer,
		Sources:  retrieval.Sources(),
		RowCount: results.RowCount,
		Meta:     qp.meta(ctx, retrieval, results.Truncated, start),
	}
	return response, nil
}

func (qp *QueryProcessor) meta(ctx context.Context, retrieval *semantic.RetrievalResult, truncated bool, start time.Time) *ResponseMeta {
	objects := []semantic.TableHit{}
	if retrieval != nil && retrieval.Tables != nil {
		objects = retrieval.Tables
	}
	return &ResponseMeta{
		ObjectsUsed:   objects,
		Limit:         qp.config.MaxRows,
		Truncated:     truncated,
		CorrelationID: observability.GetCorrelationID(ctx),
		DurationMs:    time.Since(start).Milliseconds(),
	}
}

// recordHistory never fails the request; a write error is logged and counted
func (qp *QueryProcessor) recordHistory(ctx context.Context, req *QueryRequest, response *QueryResponse, procErr error, noData bool, duration time.Duration) {
	if qp.history == nil {
		return
	}

	entry := history.Entry{
		UserID:     req.UserID,
		Department: req.Department,
		Prompt:     req.Prompt,
		Lang:       req.Lang,
		DurationMs: duration.Milliseconds(),
	}
	switch {
	case procErr != nil:
		entry.Status = history.StatusFailed
		entry.ErrorCode = string(errors.CodeOf(procErr))
	case noData:
		entry.Status = history.StatusNoData
	default:
		entry.Status = history.StatusAnswered
	}
	if response != nil {
		entry.Sources = response.Sources
		entry.RowCount = response.RowCount
	}

	if err := qp.history.Record(ctx, entry); err != nil {
		qp.logger.Warn(ctx, "Failed to record history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// RequestLimiter is middleware applied to the question endpoints
type RequestLimiter interface {
	Middleware() gin.HandlerFunc
}

// SetupRoutes configures HTTP routes. limiter may be nil.
func (qp *QueryProcessor) SetupRoutes(limiter RequestLimiter) *gin.Engine {
	r := gin.New()

	r.Use(observability.RecoveryMiddleware(qp.logger))
	r.Use(observability.RequestLoggingMiddleware(qp.logger))
	r.Use(observability.CORSWithLogging(qp.logger))

	if qp.healthChecker != nil {
		r.GET("/health", observability.HealthHandler(qp.healthChecker))
	} else {
		r.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "healthy",
				"service": "query-processor",
			})
		})
	}
	r.GET("/metrics", observability.MetricsHandler(observability.GetGlobalMetrics()))

	ask := r.Group("")
	if limiter != nil {
		ask.Use(limiter.Middleware())
	}
	ask.POST("/ask", qp.handleAsk)

	api := r.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	{
		api.POST("/ask", qp.handleAsk)
		api.GET("/catalog", qp.handleGetCatalog)
		api.GET("/catalog/search", qp.handleSearchCatalog)
		api.GET("/history", qp.handleGetHistory)
	}

	return r
}

func (qp *QueryProcessor) handleAsk(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	response, err := qp.ProcessQuery(c.Request.Context(), &req)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, response)
}

// CatalogTable is the introspection view of one table
type CatalogTable struct {
	Dataset     string           `json:"dataset"`
	Table       string           `json:"table"`
	Description string           `json:"description"`
	Columns     []catalog.Column `json:"columns"`
}

func (qp *QueryProcessor) handleGetCatalog(c *gin.Context) {
	tables := make([]CatalogTable, 0)
	stats := catalog.Stats{}
	if qp.catalog != nil {
		stats = qp.catalog.Stats()
		for _, ds := range qp.catalog.Datasets {
			for _, tb := range ds.Tables {
				columns := tb.Columns
				if columns == nil {
					columns = []catalog.Column{}
				}
				tables = append(tables, CatalogTable{
					Dataset:     ds.Name,
					Table:       tb.Name,
					Description: tb.Description,
					Columns:     columns,
				})
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"tables": tables,
		"stats":  stats,
	})
}

func (qp *QueryProcessor) handleSearchCatalog(c *gin.Context) {
	topK := 0
	if raw := c.Query("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			enhancedErr := errors.NewInvalidInputError("top_k", "must be a positive integer")
			c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
			return
		}
		topK = n
	}

	result, err := qp.Search(c.Request.Context(), c.Query("q"), topK)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tables":  result.Tables,
		"sources": result.Sources(),
	})
}

func (qp *QueryProcessor) handleGetHistory(c *gin.Context) {
	if qp.history == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []history.Entry{}, "count": 0, "enabled": false})
		return
	}

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		enhancedErr := errors.NewMissingRequiredError("user_id")
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := qp.history.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		enhancedErr := errors.NewHistoryReadError(err)
		c.JSON(getErrorStatusCode(enhancedErr), formatErrorResponse(enhancedErr))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
		"enabled": true,
	})
}

// formatErrorResponse formats an error into a user-friendly response. The cause is never
// serialized, so driver messages and query text stay in the logs.
func formatErrorResponse(err error) gin.H {
	var enhancedErr *errors.EnhancedError
	if stderrors.As(err, &enhancedErr) {
		body := gin.H{
			"code":    enhancedErr.Code,
			"message": enhancedErr.Message,
		}
		if enhancedErr.Details != "" {
			body["details"] = enhancedErr.Details
		}
		if enhancedErr.Suggestion != "" {
			body["suggestion"] = enhancedErr.Suggestion
		}
		if enhancedErr.Retryable {
			body["retryable"] = true
		}
		if len(enhancedErr.Metadata) > 0 {
			body["metadata"] = enhancedErr.Metadata
		}
		return gin.H{"error": body}
	}

	return gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "An unexpected error occurred",
		},
	}
}

// getErrorStatusCode maps classified errors to their status; anything else is a 500
func getErrorStatusCode(err error) int {
	return errors.HTTPStatus(err)
}
