package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/seanankenbruck/warehouse-ai/internal/errors"
	"github.com/seanankenbruck/warehouse-ai/internal/llm"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
	"github.com/seanankenbruck/warehouse-ai/internal/semantic"
)

// SQLSynthesizer asks the generation model for one SELECT over the retrieved objects and
// validates the reply. There is no repair loop: one generation, one validation.
type SQLSynthesizer struct {
	generator   llm.Generator
	safety      *SafetyChecker
	temperature float64
	logger      *observability.Logger
}

// NewSQLSynthesizer creates a synthesizer; temperature is usually 0
func NewSQLSynthesizer(generator llm.Generator, safety *SafetyChecker, temperature float64) *SQLSynthesizer {
	return &SQLSynthesizer{
		generator:   generator,
		safety:      safety,
		temperature: temperature,
		logger:      observability.NewLogger("sql-synthesizer"),
	}
}

// SchemaHint lists each retrieved table as dataset.table(col1, col2), one per line
func SchemaHint(retrieval *semantic.RetrievalResult) string {
	if retrieval.IsEmpty() {
		return "(none)"
	}
	lines := make([]string, len(retrieval.Tables))
	for i, t := range retrieval.Tables {
		lines[i] = t.Signature()
	}
	return strings.Join(lines, "\n")
}

// SystemPrompt carries the allow-list and the row limit. The question only ever goes into
// the user message.
func (s *SQLSynthesizer) SystemPrompt(retrieval *semantic.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("You write one safe SELECT statement using ONLY the objects listed below. No DDL or DML.\n")
	b.WriteString("Allowed objects:\n")
	b.WriteString(SchemaHint(retrieval))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Constraints: use only the listed tables and columns; apply LIMIT %d; reply with plain SQL only.", s.safety.MaxRows))
	return b.String()
}

// UserPrompt wraps the question
func UserPrompt(question string) string {
	return fmt.Sprintf("Manager's question: %s", question)
}

// Synthesize returns a validated, row-limited query. It never executes it.
func (s *SQLSynthesizer) Synthesize(ctx context.Context, question string, retrieval *semantic.RetrievalResult) (string, error) {
	reply, err := s.generator.Generate(ctx, s.SystemPrompt(retrieval), UserPrompt(question), s.temperature)
	if err != nil {
		return "", errors.NewQueryGenerationError(err)
	}

	candidate := llm.ExtractReply(reply)
	if candidate == "" {
		return "", errors.NewQueryGenerationError(llm.ErrEmptyReply)
	}

	// the blacklist sees the raw reply; unwrapping only feeds the shape check and LIMIT
	err = s.safety.CheckForbidden(reply)
	var sql string
	if err == nil {
		sql, err = s.safety.ValidateQuery(candidate)
	}
	if err != nil {
		observability.GetGlobalMetrics().Inc(observability.MetricUnsafeQuery, map[string]string{
			"reason": string(errors.CodeOf(err)),
		})
		s.logger.Warn(ctx, "Rejected generated query", map[string]interface{}{
			"reason": string(errors.CodeOf(err)),
		})
		s.logger.Debug(ctx, "Rejected query text", map[string]interface{}{
			"sql": reply,
		})
		return "", err
	}

	s.logger.Debug(ctx, "Generated query", map[string]interface{}{
		"sql":           sql,
		"limit_applied": !HasLimit(candidate),
	})
	return sql, nil
}
