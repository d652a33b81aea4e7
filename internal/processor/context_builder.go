package processor

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/seanankenbruck/warehouse-ai/internal/semantic"
	"github.com/seanankenbruck/warehouse-ai/internal/warehouse"
)

// DefaultPreviewRows is how many result rows the answering model sees
const DefaultPreviewRows = 20

// NoDataContext is handed to the answerer when retrieval found no relevant table
const NoDataContext = "### Selected DW objects\n(none)\n\n### Data sample\n(none)"

// ContextBuilder renders the retrieved schema and a row preview for the answering model
type ContextBuilder struct {
	previewRows int
}

// NewContextBuilder creates a builder that shows at most previewRows rows
func NewContextBuilder(previewRows int) *ContextBuilder {
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	return &ContextBuilder{previewRows: previewRows}
}

// Build is deterministic for a given retrieval and row set. Row keys are emitted in sorted
// order by encoding/json.
func (cb *ContextBuilder) Build(retrieval *semantic.RetrievalResult, rows []warehouse.Row) string {
	var b strings.Builder

	b.WriteString("### Selected DW objects (catalog retrieval)\n")
	if retrieval != nil {
		lines := make([]string, len(retrieval.Tables))
		for i, t := range retrieval.Tables {
			lines[i] = "- " + t.Signature()
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	b.WriteString("\n\n### DW data sample (shaped by the generated query)\n")
	b.WriteString(previewJSON(warehouse.CapRows(rows, cb.previewRows)))

	b.WriteString("\n\n### Notes\n- Use only the information above.\n- Do not show SQL in the answer.\n")
	return b.String()
}

func previewJSON(rows []warehouse.Row) string {
	if rows == nil {
		rows = []warehouse.Row{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return "[]"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
