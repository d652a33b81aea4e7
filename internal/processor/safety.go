package processor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/seanankenbruck/warehouse-ai/internal/errors"
)

// DefaultMaxRows is the row limit appended when neither the query nor the configuration sets one
const DefaultMaxRows = 200

var (
	// Whole-word scan over the raw text; string literals and comments are not exempt
	forbiddenStatement = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|DROP|ALTER|TRUNCATE|GRANT|REVOKE|CREATE)\b`)
	readOnlyStatement  = regexp.MustCompile(`(?i)^\s*SELECT\b`)
	limitClause        = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\b`)
)

// SafetyChecker validates generated SQL before it reaches the warehouse
type SafetyChecker struct {
	MaxRows int
}

// NewSafetyChecker creates a safety checker that appends LIMIT maxRows when a query has none
func NewSafetyChecker(maxRows int) *SafetyChecker {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &SafetyChecker{MaxRows: maxRows}
}

// CheckForbidden scans text exactly as the model returned it, fences and prose included
func (sc *SafetyChecker) CheckForbidden(text string) error {
	if match := forbiddenStatement.FindStringSubmatch(text); match != nil {
		return errors.NewForbiddenStatementError(match[1])
	}
	return nil
}

// ValidateQuery rejects mutating or non-SELECT text and returns the normalized query.
// An existing LIMIT clause is kept as written, even when it exceeds MaxRows.
func (sc *SafetyChecker) ValidateQuery(sql string) (string, error) {
	if err := sc.CheckForbidden(sql); err != nil {
		return "", err
	}

	if !readOnlyStatement.MatchString(sql) {
		return "", errors.NewNotReadOnlyError()
	}

	if limitClause.MatchString(sql) {
		return sql, nil
	}

	trimmed := strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
	return fmt.Sprintf("%s LIMIT %d", trimmed, sc.MaxRows), nil
}

// HasLimit reports whether sql already carries an explicit LIMIT n clause
func HasLimit(sql string) bool {
	return limitClause.MatchString(sql)
}
