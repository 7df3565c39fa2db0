package core

import (
	"context"
	"io"

	"github.com/markdave123-py/docvault/internal/models"
)

// Upserter is the insert-or-ignore write protocol over the five tables.
// Every method is a no-op on an existing unique key and never overwrites the
// existing row; id-returning methods return the winning row's id either way.
type Upserter interface {
	UpsertPage(ctx context.Context, pageNumber int, content string) (pageID string, err error)
	UpsertImage(ctx context.Context, pageNumber int, imageHash, imagePath string) (imageID string, inserted bool, err error)
	UpsertChunk(ctx context.Context, pageID string, chunkNumber int, content string) (chunkID string, err error)
	UpsertEmbedding(ctx context.Context, chunkID string, vector []float32, model string) (inserted bool, err error)
	UpsertMetadata(ctx context.Context, chunkID string, md models.ChunkMetadata) (inserted bool, err error)
}

// DbClient defines all persistence operations the pipeline needs.
// It abstracts SQLite/Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	Upserter

	EnsureSchema(ctx context.Context) error

	// WithTx runs fn inside one transaction; fn's writes commit together or not at all.
	WithTx(ctx context.Context, fn func(tx Upserter) error) error

	ChunkProgress(ctx context.Context, pageID string, chunkNumber int) (models.ChunkProgress, error)
	IncompleteChunks(ctx context.Context) ([]models.IncompleteChunk, error)

	GetPageByNumber(ctx context.Context, pageNumber int) (*models.Page, error)
	GetEmbedding(ctx context.Context, chunkID string) (*models.Embedding, error)
	GetMetadata(ctx context.Context, chunkID string) (*models.Metadata, error)
	ListChunksByPage(ctx context.Context, pageID string) ([]models.Chunk, error)
	Counts(ctx context.Context) (models.TableCounts, error)

	Close() error
}

// ObjectClient is the slice of object storage the S3 image backend needs.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	URL(bucket, key string) string
}

// StoredImage is the outcome of writing one image blob.
type StoredImage struct {
	Hash  string
	Path  string
	IsNew bool
}

// ImageStore deduplicates image blobs by content hash. It never overwrites an
// existing blob for the same hash.
type ImageStore interface {
	Store(ctx context.Context, raw []byte) (StoredImage, error)
}
