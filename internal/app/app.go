// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/markdave123-py/docvault/internal/config"
	"github.com/markdave123-py/docvault/internal/core"
	db "github.com/markdave123-py/docvault/internal/core/database"
	"github.com/markdave123-py/docvault/internal/core/imagestore"
	"github.com/markdave123-py/docvault/internal/core/ingestion_engine"
	"github.com/markdave123-py/docvault/internal/core/llm"
	objectclient "github.com/markdave123-py/docvault/internal/core/object-client"
	"github.com/markdave123-py/docvault/internal/logger"
	"github.com/markdave123-py/docvault/internal/services"
)

type App struct {
	Config   *config.Config
	DBClient *db.DatabaseClient
	Ingestor *ingestion_engine.DocumentIngestor
	Ingest   *services.IngestService
	Docs     *services.DocumentService
	Server   *Server

	closers []io.Closer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.SetVerbose(cfg.Verbose)

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient)
	logger.Info("App: database (%s) initialized and ready", cfg.DBDriver)

	images, err := newImageStore(appCtx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	embedder, completer, err := a.newProviders(appCtx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	ingCfg := ingestion_engine.IngestConfig{
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		EmbedModel:       cfg.EmbedModel,
		GenModel:         cfg.GenModel,
		EnableCompletion: cfg.EnableCompletion,
		EmbedTimeout:     cfg.EmbedTimeout,
		WriteArtifacts:   cfg.WriteArtifacts,
		TextDir:          cfg.TextDir(),
		EquationsDir:     cfg.EquationsDir(),
	}
	a.Ingestor, err = ingestion_engine.NewDocumentIngestor(dbClient, images, embedder, completer, newDecoder(cfg), ingCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Ingest = services.NewIngestService(a.Ingestor, dbClient)
	a.Docs = services.NewDocumentService(dbClient)
	a.Server = NewServer(cfg, a.Ingest, a.Docs)
	return a, nil
}

func newImageStore(ctx context.Context, cfg *config.Config) (core.ImageStore, error) {
	if cfg.ImageBackend == config.BackendS3 {
		objClient, err := objectclient.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("App: object client initialized; images go to s3://%s/images", cfg.BucketName)
		return imagestore.NewS3Store(objClient, cfg.BucketName, "images"), nil
	}
	store, err := imagestore.NewLocalStore(cfg.ImagesDir())
	if err != nil {
		return nil, err
	}
	logger.Info("App: images go to %s", store.Dir())
	return store, nil
}

// newProviders returns the embedder and, when completion is enabled, the
// completion client of the configured provider.
func (a *App) newProviders(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, core.LLMProvider, error) {
	if cfg.EmbedProvider == config.ProviderGemini {
		emb, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.closers = append(a.closers, emb)
		if !cfg.EnableCompletion {
			return emb, nil, nil
		}
		gen, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't initialize the llm, %w", err)
		}
		a.closers = append(a.closers, gen)
		return emb, gen, nil
	}

	emb := llm.NewOllamaEmbedder(llm.OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.EmbedModel, Timeout: cfg.EmbedTimeout})
	if !cfg.EnableCompletion {
		return emb, nil, nil
	}
	return emb, llm.NewOllamaLLM(llm.OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.GenModel, Timeout: cfg.EmbedTimeout}), nil
}

func newDecoder(cfg *config.Config) core.ContentDecoder {
	if cfg.Decoder == config.DecoderDocconv {
		return ingestion_engine.NewDocconvDecoder()
	}
	return ingestion_engine.NewPDFDecoder()
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
