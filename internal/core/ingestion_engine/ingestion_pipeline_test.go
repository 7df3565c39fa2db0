package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docvault/internal/core"
	db "github.com/markdave123-py/docvault/internal/core/database"
	"github.com/markdave123-py/docvault/internal/core/imagestore"
	"github.com/markdave123-py/docvault/internal/models"
)

type fakeDecoder struct {
	pages []models.DecodedPage
	err   error
}

func (d *fakeDecoder) Decode(ctx context.Context, path string) ([]models.DecodedPage, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.pages, nil
}

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (e *fakeEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if e.failOn[text] {
		return nil, fmt.Errorf("%w: connection refused", core.ErrEmbeddingService)
	}
	return []float32{float32(len(text)), 0.5}, nil
}

func (e *fakeEmbedder) ModelName() string { return "fake-embed" }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type fakeLLM struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *fakeLLM) Complete(ctx context.Context, prompt, model string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return "ok", l.err
}

func (l *fakeLLM) ModelName() string { return "fake-llm" }

type failingImages struct{}

func (failingImages) Store(ctx context.Context, raw []byte) (core.StoredImage, error) {
	return core.StoredImage{}, fmt.Errorf("%w: disk full", core.ErrFilesystemWrite)
}

// patterned returns n characters that differ from chunk to chunk.
func patterned(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "%05d ", i)
	}
	return b.String()[:n]
}

var testImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR-test-image")

// twoPageDoc is page 1 with 2500 characters and one image, page 2 with 100 characters.
func twoPageDoc() []models.DecodedPage {
	return []models.DecodedPage{
		{PageNumber: 1, Text: patterned(2500), Images: [][]byte{testImage}},
		{PageNumber: 2, Text: strings.Repeat("b", 100)},
	}
}

type harness struct {
	ingestor *DocumentIngestor
	store    *db.DatabaseClient
	emb      *fakeEmbedder
	imageDir string
}

type harnessOpts struct {
	cfg    func(cfg *IngestConfig)
	llm    core.LLMProvider
	images core.ImageStore
}

func newHarness(t *testing.T, dec core.ContentDecoder, opts harnessOpts) *harness {
	t.Helper()
	dir := t.TempDir()

	store, err := db.Open(context.Background(), "sqlite", filepath.Join(dir, "pdf_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{store: store, emb: &fakeEmbedder{}, imageDir: filepath.Join(dir, "images")}

	images := opts.images
	if images == nil {
		local, err := imagestore.NewLocalStore(h.imageDir)
		require.NoError(t, err)
		images = local
	}

	cfg := DefaultIngestConfig()
	cfg.EmbedModel = "nomic-embed-text"
	if opts.cfg != nil {
		opts.cfg(&cfg)
	}

	h.ingestor, err = NewDocumentIngestor(store, images, h.emb, opts.llm, dec, cfg)
	require.NoError(t, err)
	return h
}

func (h *harness) counts(t *testing.T) models.TableCounts {
	t.Helper()
	c, err := h.store.Counts(context.Background())
	require.NoError(t, err)
	return c
}

func TestIngest_TwoPageDocument(t *testing.T) {
	h := newHarness(t, &fakeDecoder{pages: twoPageDoc()}, harnessOpts{})

	report, err := h.ingestor.Ingest(context.Background(), "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, models.TableCounts{Pages: 2, Images: 1, Chunks: 5, Embeddings: 5, Metadata: 5}, h.counts(t))
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 5, report.Chunks)
	assert.Equal(t, 5, report.EmbeddingsInserted)
	assert.Equal(t, 5, report.MetadataInserted)
	assert.Equal(t, 1, report.ImagesInserted)
	assert.Zero(t, report.EmbeddingFailures)
	assert.Equal(t, 5, h.emb.callCount())

	// Page 1 chunks start at offsets 0, 800, 1600 and 2400.
	page1, err := h.store.GetPageByNumber(context.Background(), 1)
	require.NoError(t, err)
	chunks, err := h.store.ListChunksByPage(context.Background(), page1.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	text := patterned(2500)
	for n, off := range []int{0, 800, 1600, 2400} {
		assert.Equal(t, n, chunks[n].ChunkNumber)
		assert.True(t, strings.HasPrefix(text[off:], chunks[n].Content), "chunk %d", n)
	}
	assert.Len(t, chunks[3].Content, 100)

	md, err := h.store.GetMetadata(context.Background(), chunks[3].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChunkMetadata{Page: 1, Chunk: 3, Size: 100}, md.MetadataJSON)

	emb, err := h.store.GetEmbedding(context.Background(), chunks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", emb.Model)
	assert.Equal(t, []float32{1000, 0.5}, emb.EmbeddingsData)

	files, err := os.ReadDir(h.imageDir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestIngest_RerunIsNoOp(t *testing.T) {
	h := newHarness(t, &fakeDecoder{pages: twoPageDoc()}, harnessOpts{})
	ctx := context.Background()

	_, err := h.ingestor.Ingest(ctx, "doc.pdf")
	require.NoError(t, err)
	first := h.counts(t)

	report, err := h.ingestor.Ingest(ctx, "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, first, h.counts(t))
	assert.Equal(t, 5, report.ChunksSkipped)
	assert.Zero(t, report.EmbeddingsInserted)
	assert.Zero(t, report.MetadataInserted)
	assert.Zero(t, report.ImagesInserted)
	assert.Equal(t, 5, h.emb.callCount(), "completed chunks must not be re-embedded")
}

func TestIngest_IdenticalImagesAcrossPages(t *testing.T) {
	pages := []models.DecodedPage{
		{PageNumber: 1, Text: "one", Images: [][]byte{testImage}},
		{PageNumber: 2, Text: "two", Images: [][]byte{append([]byte{}, testImage...)}},
	}
	h := newHarness(t, &fakeDecoder{pages: pages}, harnessOpts{})

	report, err := h.ingestor.Ingest(context.Background(), "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, report.ImagesSeen)
	assert.Equal(t, 1, report.ImagesInserted)
	assert.Equal(t, 1, h.counts(t).Images)

	files, err := os.ReadDir(h.imageDir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestIngest_CompletesChunkLeftByCrash(t *testing.T) {
	ctx := context.Background()
	text := strings.Repeat("c", 100)
	h := newHarness(t, &fakeDecoder{pages: []models.DecodedPage{{PageNumber: 1, Text: text}}}, harnessOpts{})

	// A killed run committed the chunk and its metadata but not the embedding.
	pageID, err := h.store.UpsertPage(ctx, 1, text)
	require.NoError(t, err)
	chunkID, err := h.store.UpsertChunk(ctx, pageID, 0, text)
	require.NoError(t, err)
	_, err = h.store.UpsertMetadata(ctx, chunkID, models.ChunkMetadata{Page: 1, Chunk: 0, Size: 100})
	require.NoError(t, err)

	report, err := h.ingestor.Ingest(ctx, "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, models.TableCounts{Pages: 1, Chunks: 1, Embeddings: 1, Metadata: 1}, h.counts(t))
	assert.Equal(t, 1, h.emb.callCount())
	assert.Equal(t, 1, report.Backfilled)

	chunks, err := h.store.ListChunksByPage(ctx, pageID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, chunkID, chunks[0].ID)

	incomplete, err := h.store.IncompleteChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}

func TestIngest_EmbeddingFailureIsChunkLocal(t *testing.T) {
	ctx := context.Background()
	text := patterned(2500)
	h := newHarness(t, &fakeDecoder{pages: twoPageDoc()}, harnessOpts{})
	h.emb.failOn = map[string]bool{text[800:1800]: true}

	report, err := h.ingestor.Ingest(ctx, "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, 1, report.EmbeddingFailures)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "page 1 chunk 1")
	assert.Equal(t, models.TableCounts{Pages: 2, Images: 1, Chunks: 4, Embeddings: 4, Metadata: 4}, h.counts(t))

	// The failed chunk was never written, so nothing is left half-done.
	incomplete, err := h.store.IncompleteChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, incomplete)

	// Once the service recovers, a rerun adds exactly the missing chunk.
	h.emb.failOn = nil
	before := h.emb.callCount()
	report, err = h.ingestor.Ingest(ctx, "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, models.TableCounts{Pages: 2, Images: 1, Chunks: 5, Embeddings: 5, Metadata: 5}, h.counts(t))
	assert.Equal(t, 1, h.emb.callCount()-before)
	assert.Equal(t, 4, report.ChunksSkipped)
}

func TestIngest_DecodeFailureIsFatal(t *testing.T) {
	h := newHarness(t, &fakeDecoder{err: fmt.Errorf("%w: not a pdf", core.ErrDecode)}, harnessOpts{})

	_, err := h.ingestor.Ingest(context.Background(), "broken.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDecode)
	assert.Equal(t, models.TableCounts{}, h.counts(t))
}

func TestIngest_EmptyPageHasNoChunks(t *testing.T) {
	h := newHarness(t, &fakeDecoder{pages: []models.DecodedPage{{PageNumber: 1, Text: ""}}}, harnessOpts{})

	report, err := h.ingestor.Ingest(context.Background(), "blank.pdf")
	require.NoError(t, err)

	assert.Equal(t, models.TableCounts{Pages: 1}, h.counts(t))
	assert.Zero(t, report.Chunks)
	assert.Zero(t, h.emb.callCount())
}

func TestIngest_InvalidUTF8PageAgreesWithChunks(t *testing.T) {
	dec := &fakeDecoder{pages: []models.DecodedPage{{PageNumber: 1, Text: "ab\xffcd"}}}
	h := newHarness(t, dec, harnessOpts{cfg: func(cfg *IngestConfig) {
		cfg.ChunkSize = 3
		cfg.ChunkOverlap = 1
	}})
	ctx := context.Background()

	_, err := h.ingestor.Ingest(ctx, "latin1.pdf")
	require.NoError(t, err)

	page, err := h.store.GetPageByNumber(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "ab\uFFFDcd", page.Content)

	chunks, err := h.store.ListChunksByPage(ctx, page.ID)
	require.NoError(t, err)
	var got []string
	for _, ch := range chunks {
		got = append(got, ch.Content)
	}
	assert.Equal(t, []string{"ab\uFFFD", "\uFFFDcd", "d"}, got)

	// Re-chunking the stored content reproduces the stored chunks.
	again, err := Chunk(page.Content, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestIngest_ImageWriteFailureSkipsImageOnly(t *testing.T) {
	h := newHarness(t, &fakeDecoder{pages: twoPageDoc()}, harnessOpts{images: failingImages{}})

	report, err := h.ingestor.Ingest(context.Background(), "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, 1, report.ImageFailures)
	assert.Equal(t, models.TableCounts{Pages: 2, Chunks: 5, Embeddings: 5, Metadata: 5}, h.counts(t))
}

func TestIngest_CompletionFailureIsIgnored(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model not loaded")}
	h := newHarness(t, &fakeDecoder{pages: twoPageDoc()}, harnessOpts{
		llm: llm,
		cfg: func(cfg *IngestConfig) { cfg.EnableCompletion = true },
	})

	_, err := h.ingestor.Ingest(context.Background(), "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, 5, llm.calls)
	assert.Equal(t, 5, h.counts(t).Embeddings)
}

func TestIngest_CompletionDisabled(t *testing.T) {
	llm := &fakeLLM{}
	h := newHarness(t, &fakeDecoder{pages: twoPageDoc()}, harnessOpts{llm: llm})

	_, err := h.ingestor.Ingest(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Zero(t, llm.calls)
}

func TestIngest_WritesArtifacts(t *testing.T) {
	out := t.TempDir()
	pages := []models.DecodedPage{
		{PageNumber: 1, Text: "energy $E=mc^2$ here"},
		{PageNumber: 2, Text: "plain"},
	}
	h := newHarness(t, &fakeDecoder{pages: pages}, harnessOpts{cfg: func(cfg *IngestConfig) {
		cfg.WriteArtifacts = true
		cfg.TextDir = filepath.Join(out, "text")
		cfg.EquationsDir = filepath.Join(out, "equations")
	}})

	report, err := h.ingestor.Ingest(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Equations)

	full, err := os.ReadFile(filepath.Join(out, "text", "full_text.txt"))
	require.NoError(t, err)
	assert.Equal(t, "energy $E=mc^2$ here\nplain", string(full))
	assert.FileExists(t, filepath.Join(out, "equations", "equations.csv"))
}

func TestNewDocumentIngestor_Validation(t *testing.T) {
	_, err := NewDocumentIngestor(nil, nil, nil, nil, nil, DefaultIngestConfig())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	h := newHarness(t, &fakeDecoder{}, harnessOpts{})
	cfg := DefaultIngestConfig()
	cfg.ChunkOverlap = cfg.ChunkSize
	_, err = NewDocumentIngestor(h.store, failingImages{}, h.emb, nil, &fakeDecoder{}, cfg)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

type recordingObserver struct {
	started  chan string
	finished chan error
}

func (o *recordingObserver) JobStarted(id string) { o.started <- id }

func (o *recordingObserver) JobFinished(id string, report models.IngestReport, err error) {
	o.finished <- err
}

func TestRun_ProcessesQueuedJobs(t *testing.T) {
	h := newHarness(t, &fakeDecoder{pages: twoPageDoc()}, harnessOpts{})
	obs := &recordingObserver{started: make(chan string, 1), finished: make(chan error, 1)}
	h.ingestor.SetJobObserver(obs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ingestor.Run(ctx, 2) }()

	require.NoError(t, h.ingestor.Enqueue(ctx, Job{ID: "job-1", Path: "doc.pdf"}))

	select {
	case id := <-obs.started:
		assert.Equal(t, "job-1", id)
	case <-time.After(10 * time.Second):
		t.Fatal("job never started")
	}
	select {
	case err := <-obs.finished:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("job never finished")
	}
	assert.Equal(t, 5, h.counts(t).Chunks)

	cancel()
	assert.NoError(t, <-done)
}

func TestEnqueue_RespectsContext(t *testing.T) {
	h := newHarness(t, &fakeDecoder{}, harnessOpts{cfg: func(cfg *IngestConfig) { cfg.QueueSize = 1 }})
	ctx := context.Background()
	require.NoError(t, h.ingestor.Enqueue(ctx, Job{ID: "a"}))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, h.ingestor.Enqueue(cctx, Job{ID: "b"}), context.Canceled)
}
