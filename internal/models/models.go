package models

import (
	"time"
)

// Page is one decoded page of an ingested document.
type Page struct {
	ID         string    `db:"id" json:"id"`
	PageNumber int       `db:"page_number" json:"page_number"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Image is a content-addressed raster image extracted from a page.
type Image struct {
	ID         string    `db:"id" json:"id"`
	PageNumber int       `db:"page_number" json:"page_number"`
	ImageHash  string    `db:"image_hash" json:"image_hash"`
	ImagePath  string    `db:"image_path" json:"image_path"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Chunk is an overlapping window of a page's text. ChunkNumber restarts at 0 per page.
type Chunk struct {
	ID          string    `db:"id" json:"id"`
	PageID      string    `db:"page_id" json:"page_id"`
	ChunkNumber int       `db:"chunk_number" json:"chunk_number"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Embedding holds the vector computed for a chunk, serialized as text.
type Embedding struct {
	ID             string    `db:"id" json:"id"`
	ChunkID        string    `db:"chunk_id" json:"chunk_id"`
	EmbeddingsData []float32 `db:"embeddings_data" json:"embeddings_data"`
	Model          string    `db:"model" json:"model"`
	GeneratedAt    time.Time `db:"generated_at" json:"generated_at"`
}

// Metadata is the free-form attribute row attached to a chunk.
type Metadata struct {
	ID           string        `db:"id" json:"id"`
	ChunkID      string        `db:"chunk_id" json:"chunk_id"`
	MetadataJSON ChunkMetadata `db:"metadata_json" json:"metadata_json"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// ChunkMetadata is the payload stored in metadata_json.
type ChunkMetadata struct {
	Page  int `json:"page"`
	Chunk int `json:"chunk"`
	Size  int `json:"size"`
}

// DecodedPage is what a content decoder yields for one page, in document order.
type DecodedPage struct {
	PageNumber int
	Text       string
	Images     [][]byte
}

// ChunkProgress reports which rows already exist for a (page, chunk_number) key.
type ChunkProgress struct {
	ChunkID      string
	Exists       bool
	HasMetadata  bool
	HasEmbedding bool
}

// Complete reports whether the chunk and all of its dependent rows are persisted.
func (p ChunkProgress) Complete() bool {
	return p.Exists && p.HasMetadata && p.HasEmbedding
}

// IncompleteChunk is a persisted chunk that lacks an embedding or metadata row.
type IncompleteChunk struct {
	ChunkID      string
	PageNumber   int
	ChunkNumber  int
	Content      string
	HasMetadata  bool
	HasEmbedding bool
}

// TableCounts holds row counts of the five tables.
type TableCounts struct {
	Pages      int `json:"pages"`
	Images     int `json:"images"`
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
	Metadata   int `json:"metadata"`
}

// IngestReport summarizes one pipeline run over a document.
type IngestReport struct {
	Path               string   `json:"path"`
	Pages              int      `json:"pages"`
	ImagesSeen         int      `json:"images_seen"`
	ImagesInserted     int      `json:"images_inserted"`
	ImageFailures      int      `json:"image_failures"`
	Chunks             int      `json:"chunks"`
	ChunksSkipped      int      `json:"chunks_skipped"`
	EmbeddingsInserted int      `json:"embeddings_inserted"`
	MetadataInserted   int      `json:"metadata_inserted"`
	EmbeddingFailures  int      `json:"embedding_failures"`
	Backfilled         int      `json:"backfilled"`
	Equations          int      `json:"equations"`
	Errors             []string `json:"errors,omitempty"`
}
