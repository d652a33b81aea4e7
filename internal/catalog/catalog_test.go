package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/seanankenbruck/warehouse-ai/internal/errors"
)

const sampleCatalog = `
datasets:
  - name: sales
    tables:
      - name: orders
        description: Customer orders
        columns:
          - name: order_id
            description: Order identifier
          - name: total_amount
            description: Order value in BRL
      - name: customers
        description: Customer master data
  - name: finance
    tables:
      - name: revenue
        columns:
          - name: region
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cat, err := Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	require.Len(t, cat.Datasets, 2)
	assert.Equal(t, "sales", cat.Datasets[0].Name)
	assert.Equal(t, "Customer orders", cat.Datasets[0].Tables[0].Description)
	assert.Equal(t, "total_amount", cat.Datasets[0].Tables[0].Columns[1].Name)
	assert.Empty(t, cat.Datasets[1].Tables[0].Description)

	assert.Equal(t, Stats{Datasets: 2, Tables: 3, Columns: 3}, cat.Stats())
	assert.False(t, cat.IsEmpty())
}

func TestLoad_EmptyDocument(t *testing.T) {
	cat, err := Load(writeCatalog(t, ""))
	require.NoError(t, err)
	assert.True(t, cat.IsEmpty())

	cat, err = Load(writeCatalog(t, "datasets: []\n"))
	require.NoError(t, err)
	assert.True(t, cat.IsEmpty())
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "malformed yaml", content: "datasets: [", wantErr: "failed to parse catalog"},
		{name: "unnamed dataset", content: "datasets:\n  - tables: []\n", wantErr: "name is required"},
		{name: "unnamed table", content: "datasets:\n  - name: a\n    tables:\n      - description: x\n", wantErr: "a.tables[0]"},
		{name: "unnamed column", content: "datasets:\n  - name: a\n    tables:\n      - name: t\n        columns:\n          - description: x\n", wantErr: "a.t.columns[0]"},
		{name: "duplicate table", content: "datasets:\n  - name: a\n    tables:\n      - name: t\n      - name: t\n", wantErr: "duplicate table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeCatalog(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, apperrors.ErrCodeCatalogLoad, apperrors.CodeOf(err))
			assert.True(t, apperrors.IsConfiguration(err))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestParse_IgnoresExtraKeys(t *testing.T) {
	doc := `
owner: data-team
datasets:
  - name: sales
    tables:
      - name: orders
        columns:
          - name: total_amount
            type: decimal(12,2)
            description: Order value
`
	cat, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, Stats{Datasets: 1, Tables: 1, Columns: 1}, cat.Stats())
	assert.Equal(t, "Order value", cat.Datasets[0].Tables[0].Columns[0].Description)
}

func TestParse_SameTableInDifferentDatasets(t *testing.T) {
	cat, err := Parse(strings.NewReader("datasets:\n  - name: a\n    tables:\n      - name: t\n  - name: b\n    tables:\n      - name: t\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Stats().Tables)
}
