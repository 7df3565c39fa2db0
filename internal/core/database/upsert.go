package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/docvault/internal/core"
	"github.com/markdave123-py/docvault/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ core.Upserter = (*upserter)(nil)

// upserter implements the insert-or-ignore protocol. Each write is
// INSERT ... ON CONFLICT DO NOTHING followed, where an id is needed, by a read
// of the row that owns the unique key. A concurrent writer that wins the
// conflict is therefore read back instead of erroring.
type upserter struct {
	q   queryer
	d   dialect
	now func() time.Time
}

func (u *upserter) insert(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := u.q.ExecContext(ctx, u.d.rebind(query), args...)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (u *upserter) lookupID(ctx context.Context, query string, args ...any) (string, error) {
	var id string
	if err := u.q.QueryRowContext(ctx, u.d.rebind(query), args...).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// UpsertPage inserts the page unless page_number exists. The first content written wins.
func (u *upserter) UpsertPage(ctx context.Context, pageNumber int, content string) (string, error) {
	const ins = `
		INSERT INTO pages (id, page_number, content, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (page_number) DO NOTHING
	`
	if _, err := u.insert(ctx, ins, uuid.NewString(), pageNumber, content, u.now().UTC()); err != nil {
		return "", fmt.Errorf("upsert page %d: %w", pageNumber, err)
	}
	id, err := u.lookupID(ctx, `SELECT id FROM pages WHERE page_number = ?`, pageNumber)
	if err != nil {
		return "", fmt.Errorf("read page %d: %w", pageNumber, err)
	}
	return id, nil
}

// UpsertImage registers an image by content hash.
func (u *upserter) UpsertImage(ctx context.Context, pageNumber int, imageHash, imagePath string) (string, bool, error) {
	const ins = `
		INSERT INTO images (id, page_number, image_hash, image_path, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (image_hash) DO NOTHING
	`
	inserted, err := u.insert(ctx, ins, uuid.NewString(), pageNumber, imageHash, imagePath, u.now().UTC())
	if err != nil {
		return "", false, fmt.Errorf("upsert image %s: %w", imageHash, err)
	}
	id, err := u.lookupID(ctx, `SELECT id FROM images WHERE image_hash = ?`, imageHash)
	if err != nil {
		return "", false, fmt.Errorf("read image %s: %w", imageHash, err)
	}
	return id, inserted, nil
}

// UpsertChunk inserts the chunk unless (page_id, chunk_number) exists.
func (u *upserter) UpsertChunk(ctx context.Context, pageID string, chunkNumber int, content string) (string, error) {
	const ins = `
		INSERT INTO chunks (id, page_id, chunk_number, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (page_id, chunk_number) DO NOTHING
	`
	if _, err := u.insert(ctx, ins, uuid.NewString(), pageID, chunkNumber, content, u.now().UTC()); err != nil {
		return "", fmt.Errorf("upsert chunk %s/%d: %w", pageID, chunkNumber, err)
	}
	id, err := u.lookupID(ctx, `SELECT id FROM chunks WHERE page_id = ? AND chunk_number = ?`, pageID, chunkNumber)
	if err != nil {
		return "", fmt.Errorf("read chunk %s/%d: %w", pageID, chunkNumber, err)
	}
	return id, nil
}

// UpsertEmbedding stores the vector as text. An existing embedding is kept even
// when model differs.
func (u *upserter) UpsertEmbedding(ctx context.Context, chunkID string, vector []float32, model string) (bool, error) {
	const ins = `
		INSERT INTO embeddings (id, chunk_id, embeddings_data, model, generated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (chunk_id) DO NOTHING
	`
	inserted, err := u.insert(ctx, ins, uuid.NewString(), chunkID, pgvector.NewVector(vector), model, u.now().UTC())
	if err != nil {
		return false, fmt.Errorf("upsert embedding for chunk %s: %w", chunkID, err)
	}
	return inserted, nil
}

func (u *upserter) UpsertMetadata(ctx context.Context, chunkID string, md models.ChunkMetadata) (bool, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	const ins = `
		INSERT INTO metadata (id, chunk_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chunk_id) DO NOTHING
	`
	inserted, err := u.insert(ctx, ins, uuid.NewString(), chunkID, string(raw), u.now().UTC())
	if err != nil {
		return false, fmt.Errorf("upsert metadata for chunk %s: %w", chunkID, err)
	}
	return inserted, nil
}
