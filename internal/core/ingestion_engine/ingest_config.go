package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/docvault/internal/core"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize, ChunkOverlap: chunker policy in characters (1000/200).
// EmbedModel:              model id passed to the embedder and recorded on each row; empty uses the embedder's own.
// GenModel:                completion model, used only when EnableCompletion is set.
// EmbedTimeout:            bound on each embedding or completion call; expiry fails only that chunk.
// TextDir, EquationsDir:   artifact folders, used only when WriteArtifacts is set.
// QueueSize:               capacity of the async job queue.
type IngestConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	EmbedModel       string
	GenModel         string
	EnableCompletion bool
	EmbedTimeout     time.Duration
	WriteArtifacts   bool
	TextDir          string
	EquationsDir     string
	QueueSize        int
}

// DefaultIngestConfig returns the default chunker policy with artifacts off.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		EmbedTimeout: 60 * time.Second,
		QueueSize:    64,
	}
}

// Job is one queued document.
type Job struct {
	ID   string
	Path string
}

// DocumentIngestor runs the ingestion pipeline, synchronously through Ingest or
// in the background through Enqueue and Run:
//
// db:        persistence for pages, images, chunks, metadata and embeddings.
// images:    content-addressed blob store for extracted images.
// embedder:  embedding provider (Ollama/Gemini).
// llm:       optional completion provider; nil disables completion.
// decoder:   document decoder.
// artifacts: page text and equation writer; nil when disabled.
// jobs:      in-memory queue of documents to process.
type DocumentIngestor struct {
	db        core.DbClient
	images    core.ImageStore
	embedder  core.EmbeddingProvider
	llm       core.LLMProvider
	decoder   core.ContentDecoder
	chunker   *Chunker
	artifacts *ArtifactWriter
	cfg       IngestConfig
	jobs      chan Job
	observer  JobObserver
}
