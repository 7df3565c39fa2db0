package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/docvault/internal/core"
	"github.com/markdave123-py/docvault/internal/core/ingestion_engine"
	"github.com/markdave123-py/docvault/internal/models"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// JobInfo is the externally visible state of an async ingestion.
type JobInfo struct {
	ID        string               `json:"id"`
	Path      string               `json:"path"`
	Status    JobStatus            `json:"status"`
	Report    *models.IngestReport `json:"report,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

var _ ingestion_engine.JobObserver = (*JobTracker)(nil)

// JobTracker keeps job states in memory. They do not survive a restart; the
// rows a job wrote do.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobInfo
	now  func() time.Time
}

func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobInfo), now: time.Now}
}

func (t *JobTracker) Add(id, path string) JobInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	j := &JobInfo{ID: id, Path: path, Status: JobQueued, CreatedAt: now, UpdatedAt: now}
	t.jobs[id] = j
	return *j
}

func (t *JobTracker) Get(id string) (JobInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return *j, true
}

func (t *JobTracker) JobStarted(id string) {
	t.update(id, func(j *JobInfo) { j.Status = JobProcessing })
}

func (t *JobTracker) JobFinished(id string, report models.IngestReport, err error) {
	t.update(id, func(j *JobInfo) {
		j.Report = &report
		if err != nil {
			j.Status = JobFailed
			j.Error = err.Error()
			return
		}
		j.Status = JobDone
	})
}

func (t *JobTracker) update(id string, fn func(j *JobInfo)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	fn(j)
	j.UpdatedAt = t.now().UTC()
}

// IngestService is the boundary between transports (HTTP, CLI) and the pipeline.
type IngestService struct {
	ingestor ingestion_engine.Ingestor
	db       core.DbClient
	tracker  *JobTracker
}

// NewIngestService registers its job tracker with the ingestor; call it before
// the ingestor's workers start.
func NewIngestService(ing ingestion_engine.Ingestor, db core.DbClient) *IngestService {
	s := &IngestService{ingestor: ing, db: db, tracker: NewJobTracker()}
	ing.SetJobObserver(s.tracker)
	return s
}

// ResolvePath cleans path and checks it names an existing regular file.
func ResolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: path is empty", core.ErrInvalidInput)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: file %s does not exist", core.ErrNotFound, path)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", core.ErrInvalidInput, path)
	}
	return abs, nil
}

// IngestNow runs the pipeline in the caller's goroutine.
func (s *IngestService) IngestNow(ctx context.Context, path string) (models.IngestReport, error) {
	abs, err := ResolvePath(path)
	if err != nil {
		return models.IngestReport{Path: path}, err
	}
	return s.ingestor.Ingest(ctx, abs)
}

// Submit queues the document and returns immediately with its job.
func (s *IngestService) Submit(ctx context.Context, path string) (JobInfo, error) {
	abs, err := ResolvePath(path)
	if err != nil {
		return JobInfo{}, err
	}
	job := s.tracker.Add(uuid.NewString(), abs)
	if err := s.ingestor.Enqueue(ctx, ingestion_engine.Job{ID: job.ID, Path: abs}); err != nil {
		s.tracker.JobFinished(job.ID, models.IngestReport{Path: abs}, err)
		return JobInfo{}, fmt.Errorf("enqueue: %w", err)
	}
	return job, nil
}

func (s *IngestService) Job(id string) (JobInfo, error) {
	j, ok := s.tracker.Get(id)
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: job %s", core.ErrNotFound, id)
	}
	return j, nil
}

func (s *IngestService) Backfill(ctx context.Context) (int, error) {
	return s.ingestor.Backfill(ctx)
}

func (s *IngestService) Stats(ctx context.Context) (models.TableCounts, error) {
	return s.db.Counts(ctx)
}
