package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/docvault/internal/core"
	"github.com/markdave123-py/docvault/internal/logger"
	"github.com/markdave123-py/docvault/internal/models"
)

// NewDocumentIngestor wires the pipeline. llm may be nil.
func NewDocumentIngestor(
	db core.DbClient,
	images core.ImageStore,
	emb core.EmbeddingProvider,
	llm core.LLMProvider,
	decoder core.ContentDecoder,
	cfg IngestConfig,
) (*DocumentIngestor, error) {
	if db == nil || images == nil || emb == nil || decoder == nil {
		return nil, fmt.Errorf("%w: ingestor needs a store, image store, embedder and decoder", core.ErrInvalidInput)
	}
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	i := &DocumentIngestor{
		db:       db,
		images:   images,
		embedder: emb,
		llm:      llm,
		decoder:  decoder,
		chunker:  chunker,
		cfg:      cfg,
		jobs:     make(chan Job, cfg.QueueSize),
	}
	if cfg.WriteArtifacts {
		i.artifacts = NewArtifactWriter(cfg.TextDir, cfg.EquationsDir)
	}
	return i, nil
}

// Ingest runs the pipeline over the document at path:
//
//  1. ensure the schema exists and complete chunks left unfinished by earlier runs
//  2. decode the document; failure here ends the run. Invalid UTF-8 in page
//     text becomes U+FFFD
//  3. per page: store images, then write the page and image rows in one transaction
//  4. per chunk: embed, then write chunk, metadata and embedding in one transaction
//
// Chunks that are already complete are skipped without calling the embedder.
// Embedding and image failures are counted in the report and do not stop the
// run. Decode and storage errors are returned.
func (i *DocumentIngestor) Ingest(ctx context.Context, path string) (models.IngestReport, error) {
	report := models.IngestReport{Path: path}

	if err := i.db.EnsureSchema(ctx); err != nil {
		return report, fmt.Errorf("ensure schema: %w", err)
	}

	filled, err := i.Backfill(ctx)
	if err != nil {
		return report, err
	}
	report.Backfilled = filled

	pages, err := i.decoder.Decode(ctx, path)
	if err != nil {
		logger.Error("DocumentIngestor: decode %s: %v", path, err)
		return report, err
	}
	logger.Info("DocumentIngestor: %s decoded into %d pages", path, len(pages))

	// The page row and its chunks must agree byte for byte, and the chunker
	// works on runes, so invalid UTF-8 is replaced before either is built.
	for k := range pages {
		pages[k].Text = strings.ToValidUTF8(pages[k].Text, string(utf8.RuneError))
	}

	for _, p := range pages {
		if err := i.ingestPage(ctx, p, &report); err != nil {
			return report, err
		}
	}

	if i.artifacts != nil {
		eqs, err := i.artifacts.Write(pages)
		if err != nil {
			logger.Warn("DocumentIngestor: artifacts for %s: %v", path, err)
			report.Errors = append(report.Errors, err.Error())
		}
		report.Equations = len(eqs)
	}

	logger.Info("DocumentIngestor: %s done: %d pages, %d chunks (%d skipped), %d embeddings, %d images new, %d embedding failures",
		path, report.Pages, report.Chunks, report.ChunksSkipped, report.EmbeddingsInserted, report.ImagesInserted, report.EmbeddingFailures)
	return report, nil
}

func (i *DocumentIngestor) ingestPage(ctx context.Context, p models.DecodedPage, report *models.IngestReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	report.Pages++

	// Blobs go to the image store first; a failed write skips that image only.
	stored := make([]core.StoredImage, 0, len(p.Images))
	for _, raw := range p.Images {
		report.ImagesSeen++
		img, err := i.images.Store(ctx, raw)
		if err != nil {
			report.ImageFailures++
			report.Errors = append(report.Errors, fmt.Sprintf("page %d: %v", p.PageNumber, err))
			logger.Warn("DocumentIngestor: page %d image skipped: %v", p.PageNumber, err)
			continue
		}
		stored = append(stored, img)
	}

	var (
		pageID   string
		inserted int
	)
	err := i.db.WithTx(ctx, func(tx core.Upserter) error {
		inserted = 0
		id, err := tx.UpsertPage(ctx, p.PageNumber, p.Text)
		if err != nil {
			return err
		}
		pageID = id
		for _, img := range stored {
			_, isNew, err := tx.UpsertImage(ctx, p.PageNumber, img.Hash, img.Path)
			if err != nil {
				return err
			}
			if isNew {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("page %d: %w", p.PageNumber, err)
	}
	report.ImagesInserted += inserted

	for n, text := range i.chunker.Split(p.Text) {
		report.Chunks++
		if err := i.ingestChunk(ctx, pageID, p.PageNumber, n, text, report); err != nil {
			return fmt.Errorf("page %d chunk %d: %w", p.PageNumber, n, err)
		}
	}
	logger.Debug("DocumentIngestor: page %d stored (%d images)", p.PageNumber, len(stored))
	return nil
}

// ingestChunk persists one chunk as a unit. The embedding is computed before
// the transaction opens, so an embedder failure leaves nothing behind for a
// new chunk and leaves a partially written one as it was.
func (i *DocumentIngestor) ingestChunk(ctx context.Context, pageID string, pageNumber, n int, text string, report *models.IngestReport) error {
	progress, err := i.db.ChunkProgress(ctx, pageID, n)
	if err != nil {
		return err
	}
	if progress.Complete() {
		report.ChunksSkipped++
		return nil
	}

	var vec []float32
	if !progress.HasEmbedding {
		vec, err = i.embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.EmbeddingFailures++
			report.Errors = append(report.Errors, fmt.Sprintf("page %d chunk %d: %v", pageNumber, n, err))
			logger.Warn("DocumentIngestor: page %d chunk %d left for retry: %v", pageNumber, n, err)
			return nil
		}
	}

	md := models.ChunkMetadata{Page: pageNumber, Chunk: n, Size: utf8.RuneCountInString(text)}
	var metaNew, embNew bool
	err = i.db.WithTx(ctx, func(tx core.Upserter) error {
		chunkID, err := tx.UpsertChunk(ctx, pageID, n, text)
		if err != nil {
			return err
		}
		if metaNew, err = tx.UpsertMetadata(ctx, chunkID, md); err != nil {
			return err
		}
		if vec != nil {
			if embNew, err = tx.UpsertEmbedding(ctx, chunkID, vec, i.embedModel()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if metaNew {
		report.MetadataInserted++
	}
	if embNew {
		report.EmbeddingsInserted++
	}

	i.complete(ctx, pageNumber, n, text)
	return nil
}

// Backfill fills in the metadata or embedding rows missing from persisted
// chunks, which only a process killed mid-chunk leaves behind. It returns the
// number of chunks completed. Embedding failures leave the chunk for the next
// pass.
func (i *DocumentIngestor) Backfill(ctx context.Context) (int, error) {
	pending, err := i.db.IncompleteChunks(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	logger.Info("DocumentIngestor: backfilling %d incomplete chunks", len(pending))

	filled := 0
	for _, ic := range pending {
		var vec []float32
		if !ic.HasEmbedding {
			vec, err = i.embed(ctx, ic.Content)
			if err != nil {
				if ctx.Err() != nil {
					return filled, ctx.Err()
				}
				logger.Warn("DocumentIngestor: backfill page %d chunk %d: %v", ic.PageNumber, ic.ChunkNumber, err)
				continue
			}
		}
		md := models.ChunkMetadata{Page: ic.PageNumber, Chunk: ic.ChunkNumber, Size: utf8.RuneCountInString(ic.Content)}
		err := i.db.WithTx(ctx, func(tx core.Upserter) error {
			if !ic.HasMetadata {
				if _, err := tx.UpsertMetadata(ctx, ic.ChunkID, md); err != nil {
					return err
				}
			}
			if vec != nil {
				if _, err := tx.UpsertEmbedding(ctx, ic.ChunkID, vec, i.embedModel()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return filled, fmt.Errorf("backfill chunk %s: %w", ic.ChunkID, err)
		}
		filled++
	}
	return filled, nil
}

func (i *DocumentIngestor) embed(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := i.callContext(ctx)
	defer cancel()
	vec, err := i.embedder.Embed(ectx, text, i.cfg.EmbedModel)
	if err != nil {
		if errors.Is(err, core.ErrEmbeddingService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", core.ErrEmbeddingService)
	}
	return vec, nil
}

// complete runs the optional completion and logs its answer. Failures are
// logged only.
func (i *DocumentIngestor) complete(ctx context.Context, pageNumber, n int, text string) {
	if i.llm == nil || !i.cfg.EnableCompletion {
		return
	}
	cctx, cancel := i.callContext(ctx)
	defer cancel()
	out, err := i.llm.Complete(cctx, text, i.cfg.GenModel)
	if err != nil {
		logger.Warn("DocumentIngestor: completion for page %d chunk %d: %v", pageNumber, n, err)
		return
	}
	logger.Info("DocumentIngestor: completion for page %d chunk %d: %s", pageNumber, n, out)
}

func (i *DocumentIngestor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.cfg.EmbedTimeout > 0 {
		return context.WithTimeout(ctx, i.cfg.EmbedTimeout)
	}
	return context.WithCancel(ctx)
}

func (i *DocumentIngestor) embedModel() string {
	if i.cfg.EmbedModel != "" {
		return i.cfg.EmbedModel
	}
	return i.embedder.ModelName()
}
