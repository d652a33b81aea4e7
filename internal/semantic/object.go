// Package semantic builds the embedding index over the catalog and ranks catalog objects
// against a question.
package semantic

import (
	"fmt"
	"strings"

	"github.com/seanankenbruck/warehouse-ai/internal/catalog"
)

// Kind distinguishes table objects from column objects
type Kind string

const (
	KindTable  Kind = "table"
	KindColumn Kind = "column"
)

// CatalogObject is one embeddable table or column. Column is empty for tables.
type CatalogObject struct {
	Kind        Kind      `json:"kind"`
	Dataset     string    `json:"dataset"`
	Table       string    `json:"table"`
	Column      string    `json:"column,omitempty"`
	Description string    `json:"description,omitempty"`
	Fragment    string    `json:"fragment"`
	Embedding   []float32 `json:"-"`
}

// QualifiedName renders dataset.table or dataset.table.column
func (o CatalogObject) QualifiedName() string {
	if o.Kind == KindColumn {
		return fmt.Sprintf("%s.%s.%s", o.Dataset, o.Table, o.Column)
	}
	return fmt.Sprintf("%s.%s", o.Dataset, o.Table)
}

// Fragment renders the text that gets embedded for an object
func Fragment(dataset, table, column, description string) string {
	name := dataset + "." + table
	if column != "" {
		name += "." + column
	}
	return strings.TrimSpace(name + ": " + description)
}

// ObjectsFromCatalog flattens the catalog into table and column objects, each table
// followed by its columns, in file order. Embeddings are left empty.
func ObjectsFromCatalog(cat *catalog.Catalog) []CatalogObject {
	var objects []CatalogObject
	for _, ds := range cat.Datasets {
		for _, t := range ds.Tables {
			objects = append(objects, CatalogObject{
				Kind:        KindTable,
				Dataset:     ds.Name,
				Table:       t.Name,
				Description: t.Description,
				Fragment:    Fragment(ds.Name, t.Name, "", t.Description),
			})
			for _, col := range t.Columns {
				objects = append(objects, CatalogObject{
					Kind:        KindColumn,
					Dataset:     ds.Name,
					Table:       t.Name,
					Column:      col.Name,
					Description: col.Description,
					Fragment:    Fragment(ds.Name, t.Name, col.Name, col.Description),
				})
			}
		}
	}
	return objects
}
