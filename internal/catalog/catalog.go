// Package catalog loads the allow-listed description of warehouse datasets, tables and columns.
package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/seanankenbruck/warehouse-ai/internal/errors"
)

// Catalog is the allow-list: only objects listed here are ever shown to the query model
type Catalog struct {
	Datasets []Dataset `yaml:"datasets" json:"datasets"`
}

// Dataset groups tables under one schema or database name
type Dataset struct {
	Name   string  `yaml:"name" json:"name"`
	Tables []Table `yaml:"tables" json:"tables"`
}

// Table is one queryable table with its human description
type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Columns     []Column `yaml:"columns" json:"columns,omitempty"`
}

// Column is one column of a table
type Column struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Load reads and validates the catalog file at path. Any failure is a configuration error.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewCatalogLoadError(err, path)
	}

	cat, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewCatalogLoadError(err, path)
	}
	return cat, nil
}

// Parse decodes a catalog document. An empty document yields an empty catalog. Keys the
// catalog does not use, such as a column type, are ignored.
func Parse(r io.Reader) (*Catalog, error) {
	var cat Catalog
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&cat); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate requires every dataset, table and column to be named and table names to be
// unique within a dataset.
func (c *Catalog) Validate() error {
	for i, ds := range c.Datasets {
		if ds.Name == "" {
			return fmt.Errorf("datasets[%d]: name is required", i)
		}
		seen := make(map[string]bool, len(ds.Tables))
		for j, t := range ds.Tables {
			if t.Name == "" {
				return fmt.Errorf("%s.tables[%d]: name is required", ds.Name, j)
			}
			if seen[t.Name] {
				return fmt.Errorf("%s.%s: duplicate table", ds.Name, t.Name)
			}
			seen[t.Name] = true
			for k, col := range t.Columns {
				if col.Name == "" {
					return fmt.Errorf("%s.%s.columns[%d]: name is required", ds.Name, t.Name, k)
				}
			}
		}
	}
	return nil
}

// Stats counts the catalog's datasets, tables and columns
type Stats struct {
	Datasets int `json:"datasets"`
	Tables   int `json:"tables"`
	Columns  int `json:"columns"`
}

// Stats returns object counts
func (c *Catalog) Stats() Stats {
	stats := Stats{Datasets: len(c.Datasets)}
	for _, ds := range c.Datasets {
		stats.Tables += len(ds.Tables)
		for _, t := range ds.Tables {
			stats.Columns += len(t.Columns)
		}
	}
	return stats
}

// IsEmpty reports whether the catalog lists no tables at all
func (c *Catalog) IsEmpty() bool {
	return c.Stats().Tables == 0
}
