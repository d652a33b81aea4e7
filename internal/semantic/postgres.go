package semantic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// DSN renders a lib/pq keyword/value connection string
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, sslMode)
}

// PostgresStore implements SnapshotStore on a pgvector enabled PostgreSQL database
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the snapshot database
func NewPostgresStore(config PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// DB exposes the pool for schema checks
func (ps *PostgresStore) DB() *sql.DB {
	return ps.db
}

// Ping tests the database connection
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}

// Close closes the database connection
func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// SaveSnapshot swaps the stored objects in one transaction, so readers see either the old
// snapshot or the new one.
func (ps *PostgresStore) SaveSnapshot(ctx context.Context, objects []CatalogObject) (err error) {
	start := time.Now()
	defer func() { observability.RecordDBMetrics("save_snapshot", time.Since(start), err) }()

	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, "DELETE FROM catalog_objects"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_objects (id, kind, dataset, table_name, column_name, description, fragment, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, obj := range objects {
		var column sql.NullString
		if obj.Kind == KindColumn {
			column = sql.NullString{String: obj.Column, Valid: true}
		}
		_, err = stmt.ExecContext(ctx,
			uuid.New().String(),
			string(obj.Kind),
			obj.Dataset,
			obj.Table,
			column,
			obj.Description,
			obj.Fragment,
			pgvector.NewVector(obj.Embedding),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to store %s: %w", obj.QualifiedName(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NearestObjects orders stored objects by cosine distance to embedding
func (ps *PostgresStore) NearestObjects(ctx context.Context, embedding []float32, limit int) (matches []SnapshotMatch, err error) {
	start := time.Now()
	defer func() { observability.RecordDBMetrics("nearest_objects", time.Since(start), err) }()

	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, kind, dataset, table_name, column_name, description, fragment,
		       1 - (embedding <=> $1) AS similarity,
		       created_at
		FROM catalog_objects
		ORDER BY embedding <=> $1
		LIMIT $2
	`

	rows, err := ps.db.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest objects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m SnapshotMatch
		var kind string
		var column, description sql.NullString
		var createdAt time.Time

		err = rows.Scan(
			&m.ID,
			&kind,
			&m.Object.Dataset,
			&m.Object.Table,
			&column,
			&description,
			&m.Object.Fragment,
			&m.Similarity,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		m.Object.Kind = Kind(kind)
		m.Object.Column = column.String
		m.Object.Description = description.String
		m.CreatedAt = createdAt.Format(time.RFC3339)

		matches = append(matches, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return matches, nil
}

// LoadSnapshot reads all stored objects with their embeddings in insertion order
func (ps *PostgresStore) LoadSnapshot(ctx context.Context) (objects []CatalogObject, err error) {
	start := time.Now()
	defer func() { observability.RecordDBMetrics("load_snapshot", time.Since(start), err) }()

	rows, err := ps.db.QueryContext(ctx, `
		SELECT kind, dataset, table_name, column_name, description, fragment, embedding
		FROM catalog_objects
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var obj CatalogObject
		var kind string
		var column, description sql.NullString
		var vector pgvector.Vector

		if err = rows.Scan(&kind, &obj.Dataset, &obj.Table, &column, &description, &obj.Fragment, &vector); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		obj.Kind = Kind(kind)
		obj.Column = column.String
		obj.Description = description.String
		obj.Embedding = vector.Slice()
		objects = append(objects, obj)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return objects, nil
}
