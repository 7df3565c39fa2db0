package ingestion_engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docvault/internal/logger"
	"github.com/markdave123-py/docvault/internal/models"
)

type Ingestor interface {
	Ingest(ctx context.Context, path string) (models.IngestReport, error)
	Backfill(ctx context.Context) (int, error)
	Enqueue(ctx context.Context, job Job) error
	Run(ctx context.Context, numWorkers int) error
	SetJobObserver(o JobObserver)
}

var _ Ingestor = (*DocumentIngestor)(nil)

// JobObserver is told when a queued job starts and finishes.
type JobObserver interface {
	JobStarted(id string)
	JobFinished(id string, report models.IngestReport, err error)
}

// SetJobObserver must be called before Run.
func (i *DocumentIngestor) SetJobObserver(o JobObserver) {
	i.observer = o
}

// Run starts numWorkers workers reading from the job queue and blocks until
// ctx is cancelled. A failed job does not stop its worker.
func (i *DocumentIngestor) Run(ctx context.Context, numWorkers int) error {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= numWorkers; w++ {
		g.Go(func() error {
			i.worker(gctx, w)
			return nil
		})
	}
	return g.Wait()
}

func (i *DocumentIngestor) worker(ctx context.Context, w int) {
	for {
		select {
		case <-ctx.Done():
			logger.Debug("DocumentIngestor: worker %d shutting down", w)
			return
		case job := <-i.jobs:
			logger.Info("DocumentIngestor: processing job %s (%s) on worker %d", job.ID, job.Path, w)
			if i.observer != nil {
				i.observer.JobStarted(job.ID)
			}
			report, err := i.Ingest(ctx, job.Path)
			if err != nil {
				logger.Error("DocumentIngestor: job %s failed: %v", job.ID, err)
			}
			if i.observer != nil {
				i.observer.JobFinished(job.ID, report, err)
			}
		}
	}
}

// Enqueue schedules a document for ingestion.
// If the queue is full, this call blocks until space frees up or ctx ends.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job Job) error {
	select {
	case i.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
