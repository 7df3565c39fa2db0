package services

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docvault/internal/core"
	"github.com/markdave123-py/docvault/internal/models"
)

// ChunkView is a chunk with its dependent rows.
type ChunkView struct {
	models.Chunk
	Metadata       *models.ChunkMetadata `json:"metadata,omitempty"`
	EmbeddingModel string                `json:"embedding_model,omitempty"`
	Dimensions     int                   `json:"dimensions"`
}

// PageView is a stored page and its chunks in order.
type PageView struct {
	models.Page
	Chunks []ChunkView `json:"chunks"`
}

// DocumentService reads back what ingestion stored.
type DocumentService struct {
	db core.DbClient
}

func NewDocumentService(db core.DbClient) *DocumentService {
	return &DocumentService{db: db}
}

func (s *DocumentService) Page(ctx context.Context, pageNumber int) (*PageView, error) {
	page, err := s.db.GetPageByNumber(ctx, pageNumber)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("%w: page %d", core.ErrNotFound, pageNumber)
	}

	chunks, err := s.db.ListChunksByPage(ctx, page.ID)
	if err != nil {
		return nil, err
	}
	view := &PageView{Page: *page, Chunks: make([]ChunkView, 0, len(chunks))}
	for _, ch := range chunks {
		cv := ChunkView{Chunk: ch}
		md, err := s.db.GetMetadata(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		if md != nil {
			cv.Metadata = &md.MetadataJSON
		}
		emb, err := s.db.GetEmbedding(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		if emb != nil {
			cv.EmbeddingModel = emb.Model
			cv.Dimensions = len(emb.EmbeddingsData)
		}
		view.Chunks = append(view.Chunks, cv)
	}
	return view, nil
}
