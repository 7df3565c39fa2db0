package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	_ "modernc.org/sqlite"

	"github.com/markdave123-py/docvault/internal/config"
	"github.com/markdave123-py/docvault/internal/core"
	"github.com/markdave123-py/docvault/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db      *sql.DB
	dialect dialect
	upserter
}

// NewDatabaseClient opens the store named by cfg and bootstraps its schema.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	return Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
}

// Open connects to a SQLite file or a Postgres DSN and ensures the schema exists.
func Open(ctx context.Context, driver, url string) (*DatabaseClient, error) {
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	var (
		d   dialect
		dsn string
	)
	switch driver {
	case config.DriverSQLite, "":
		d = dialectSQLite
		if dir := filepath.Dir(url); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		dsn = sqliteDSN(url)
	case config.DriverPostgres:
		d = dialectPostgres
		dsn = url
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if d == dialectPostgres {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
	} else {
		// One writer at a time; readers share the WAL.
		db.SetMaxOpenConns(4)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	c := &DatabaseClient{db: db, dialect: d, upserter: upserter{q: db, d: d, now: time.Now}}
	if err := c.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return c, nil
}

// EnsureSchema creates missing tables and constraints. Safe to call repeatedly.
func (c *DatabaseClient) EnsureSchema(ctx context.Context) error {
	return EnsureBootstrapped(ctx, c.db, c.dialect)
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// WithTx runs fn in a single transaction and commits only if fn succeeds.
func (c *DatabaseClient) WithTx(ctx context.Context, fn func(tx core.Upserter) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&upserter{q: tx, d: c.dialect, now: c.now}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// ChunkProgress reports which rows already exist for (pageID, chunkNumber).
func (c *DatabaseClient) ChunkProgress(ctx context.Context, pageID string, chunkNumber int) (models.ChunkProgress, error) {
	const q = `
		SELECT c.id,
			EXISTS (SELECT 1 FROM metadata m WHERE m.chunk_id = c.id),
			EXISTS (SELECT 1 FROM embeddings e WHERE e.chunk_id = c.id)
		FROM chunks c
		WHERE c.page_id = ? AND c.chunk_number = ?
	`
	var p models.ChunkProgress
	err := c.db.QueryRowContext(ctx, c.dialect.rebind(q), pageID, chunkNumber).Scan(&p.ChunkID, &p.HasMetadata, &p.HasEmbedding)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChunkProgress{}, nil
	}
	if err != nil {
		return models.ChunkProgress{}, fmt.Errorf("chunk progress: %w", err)
	}
	p.Exists = true
	return p, nil
}

// IncompleteChunks lists persisted chunks lacking an embedding or metadata row,
// in document order.
func (c *DatabaseClient) IncompleteChunks(ctx context.Context) ([]models.IncompleteChunk, error) {
	const q = `
		SELECT c.id, p.page_number, c.chunk_number, c.content, has_meta, has_emb
		FROM (
			SELECT c.id, c.page_id, c.chunk_number, c.content,
				EXISTS (SELECT 1 FROM metadata m WHERE m.chunk_id = c.id) AS has_meta,
				EXISTS (SELECT 1 FROM embeddings e WHERE e.chunk_id = c.id) AS has_emb
			FROM chunks c
		) c
		JOIN pages p ON p.id = c.page_id
		WHERE NOT has_meta OR NOT has_emb
		ORDER BY p.page_number ASC, c.chunk_number ASC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("incomplete chunks: %w", err)
	}
	defer rows.Close()

	var out []models.IncompleteChunk
	for rows.Next() {
		var ic models.IncompleteChunk
		if err := rows.Scan(&ic.ChunkID, &ic.PageNumber, &ic.ChunkNumber, &ic.Content, &ic.HasMetadata, &ic.HasEmbedding); err != nil {
			return nil, err
		}
		out = append(out, ic)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetPageByNumber(ctx context.Context, pageNumber int) (*models.Page, error) {
	const q = `SELECT id, page_number, content, created_at FROM pages WHERE page_number = ?`
	var p models.Page
	err := c.db.QueryRowContext(ctx, c.dialect.rebind(q), pageNumber).Scan(&p.ID, &p.PageNumber, &p.Content, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *DatabaseClient) ListChunksByPage(ctx context.Context, pageID string) ([]models.Chunk, error) {
	const q = `
		SELECT id, page_id, chunk_number, content, created_at
		FROM chunks
		WHERE page_id = ?
		ORDER BY chunk_number ASC
	`
	rows, err := c.db.QueryContext(ctx, c.dialect.rebind(q), pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(&ch.ID, &ch.PageID, &ch.ChunkNumber, &ch.Content, &ch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// GetEmbedding returns the embedding for a chunk, or nil if none was stored.
func (c *DatabaseClient) GetEmbedding(ctx context.Context, chunkID string) (*models.Embedding, error) {
	const q = `SELECT id, chunk_id, embeddings_data, model, generated_at FROM embeddings WHERE chunk_id = ?`
	var (
		e   models.Embedding
		vec pgvector.Vector
	)
	err := c.db.QueryRowContext(ctx, c.dialect.rebind(q), chunkID).Scan(&e.ID, &e.ChunkID, &vec, &e.Model, &e.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.EmbeddingsData = vec.Slice()
	return &e, nil
}

// GetMetadata returns the metadata row for a chunk, or nil if none was stored.
func (c *DatabaseClient) GetMetadata(ctx context.Context, chunkID string) (*models.Metadata, error) {
	const q = `SELECT id, chunk_id, metadata_json, created_at FROM metadata WHERE chunk_id = ?`
	var (
		m   models.Metadata
		raw string
	)
	err := c.db.QueryRowContext(ctx, c.dialect.rebind(q), chunkID).Scan(&m.ID, &m.ChunkID, &raw, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &m.MetadataJSON); err != nil {
		return nil, fmt.Errorf("decode metadata_json: %w", err)
	}
	return &m, nil
}

// Counts returns the number of rows in each of the five tables.
func (c *DatabaseClient) Counts(ctx context.Context) (models.TableCounts, error) {
	var tc models.TableCounts
	targets := []struct {
		table string
		dst   *int
	}{
		{"pages", &tc.Pages},
		{"images", &tc.Images},
		{"chunks", &tc.Chunks},
		{"embeddings", &tc.Embeddings},
		{"metadata", &tc.Metadata},
	}
	for _, t := range targets {
		if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return models.TableCounts{}, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return tc, nil
}
