package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/warehouse-ai/internal/errors"
)

func TestNewSafetyChecker(t *testing.T) {
	assert.Equal(t, 200, NewSafetyChecker(0).MaxRows)
	assert.Equal(t, 200, NewSafetyChecker(-5).MaxRows)
	assert.Equal(t, 50, NewSafetyChecker(50).MaxRows)
}

func TestValidateQuery(t *testing.T) {
	sc := NewSafetyChecker(200)

	tests := []struct {
		name     string
		query    string
		want     string
		wantCode errors.ErrorCode
	}{
		{
			name:  "appends limit when absent",
			query: "SELECT a FROM t",
			want:  "SELECT a FROM t LIMIT 200",
		},
		{
			name:  "keeps existing limit",
			query: "SELECT a FROM t LIMIT 10",
			want:  "SELECT a FROM t LIMIT 10",
		},
		{
			name:  "keeps larger limit",
			query: "SELECT a FROM t LIMIT 5000",
			want:  "SELECT a FROM t LIMIT 5000",
		},
		{
			name:  "lowercase limit is recognized",
			query: "select a from t limit 3",
			want:  "select a from t limit 3",
		},
		{
			name:  "trailing semicolon dropped before limit",
			query: "SELECT a FROM t;  \n",
			want:  "SELECT a FROM t LIMIT 200",
		},
		{
			name:  "leading whitespace allowed",
			query: "\n  SELECT COUNT(*) FROM sales.orders",
			want:  "SELECT COUNT(*) FROM sales.orders LIMIT 200",
		},
		{
			name:  "identifier containing keyword is not a whole word",
			query: "SELECT created_at, updated_by FROM t LIMIT 5",
			want:  "SELECT created_at, updated_by FROM t LIMIT 5",
		},
		{
			name:     "drop after select",
			query:    "SELECT 1; DROP TABLE x",
			wantCode: errors.ErrCodeForbiddenStatement,
		},
		{
			name:     "lowercase drop",
			query:    "select * from t where note = 'please drop me'",
			wantCode: errors.ErrCodeForbiddenStatement,
		},
		{
			name:     "update statement",
			query:    "UPDATE foo SET x=1",
			wantCode: errors.ErrCodeForbiddenStatement,
		},
		{
			name:     "create table",
			query:    "CREATE TABLE t (a int)",
			wantCode: errors.ErrCodeForbiddenStatement,
		},
		{
			name:     "grant",
			query:    "SELECT 1; GRANT ALL ON t TO bob",
			wantCode: errors.ErrCodeForbiddenStatement,
		},
		{
			name:     "with clause is not select",
			query:    "WITH x AS (SELECT 1) SELECT * FROM x",
			wantCode: errors.ErrCodeNotReadOnly,
		},
		{
			name:     "explanation before query",
			query:    "Here is the query: SELECT 1",
			wantCode: errors.ErrCodeNotReadOnly,
		},
		{
			name:     "empty text",
			query:    "",
			wantCode: errors.ErrCodeNotReadOnly,
		},
		{
			name:     "selectivity is not select",
			query:    "SELECTIVITY FROM t",
			wantCode: errors.ErrCodeNotReadOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sc.ValidateQuery(tt.query)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.IsUnsafeQuery(err))
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateQuery_DropAnyCase(t *testing.T) {
	sc := NewSafetyChecker(200)
	for _, q := range []string{"SELECT 1 DROP", "SELECT drop FROM t", "SELECT 1 -- Drop it", "SELECT (DrOp)"} {
		_, err := sc.ValidateQuery(q)
		assert.Error(t, err, q)
	}
}

func TestValidateQuery_CustomMaxRows(t *testing.T) {
	sc := NewSafetyChecker(25)
	got, err := sc.ValidateQuery("SELECT a FROM t")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM t LIMIT 25", got)
}

func TestHasLimit(t *testing.T) {
	assert.True(t, HasLimit("SELECT 1 LIMIT 1"))
	assert.True(t, HasLimit("SELECT 1 limit   20"))
	assert.False(t, HasLimit("SELECT 1"))
	assert.False(t, HasLimit("SELECT limitless FROM t"))
}

func BenchmarkValidateQuery(b *testing.B) {
	sc := NewSafetyChecker(200)
	query := "SELECT customer_id, SUM(amount) FROM sales.orders GROUP BY customer_id ORDER BY 2 DESC"
	for i := 0; i < b.N; i++ {
		_, _ = sc.ValidateQuery(query)
	}
}
