package core

import "errors"

// Errors shared by the ingestion core. Adapters wrap these with context so
// callers can branch on errors.Is.
var (
	// ErrDecode means the document could not be opened or parsed. Fatal for the run.
	ErrDecode = errors.New("decode error")

	// ErrEmbeddingService means the embedding backend failed. Chunk-local.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrStorageConstraint means a uniqueness or foreign-key constraint fired.
	// Insert-or-ignore writes never trigger it, so seeing it indicates a schema bug.
	ErrStorageConstraint = errors.New("storage constraint violation")

	// ErrFilesystemWrite means an image blob could not be written.
	ErrFilesystemWrite = errors.New("filesystem write error")

	// ErrNotFound indicates a requested document or job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
)
