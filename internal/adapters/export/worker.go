// Package export renders workflow reports to CSV or JSON and stores them as
// artifacts in a blob store. Jobs run asynchronously on a Worker.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"equiploan/internal/blob"
	"equiploan/internal/core"
	"equiploan/pkg/domain"
)

// Status describes the lifecycle stage of an export job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// DefaultQueueSize bounds pending jobs before Enqueue rejects new work.
const DefaultQueueSize = 32

// ErrQueueFull is returned by Enqueue when the worker is saturated.
var ErrQueueFull = errors.New("export queue full")

// Artifact is one stored report file.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Rows        int       `json:"rows"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Job tracks an export request and its artifacts.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (j Job) copy() Job {
	j.Formats = slices.Clone(j.Formats)
	j.Artifacts = slices.Clone(j.Artifacts)
	return j
}

// Request asks for one report in one or more formats. No formats means csv.
type Request struct {
	Kind        Kind
	Formats     []Format
	RequestedBy string
}

// Source is the slice of the service the worker reads from and audits through.
type Source interface {
	Snapshot() domain.Snapshot
	Now() time.Time
	RecordExport(ctx context.Context, description string) (domain.Result, error)
}

// Option customises a Worker.
type Option func(*Worker)

// WithLogger installs a structured logger.
func WithLogger(logger core.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan string, n)
		}
	}
}

// Worker executes exports in the background.
type Worker struct {
	source Source
	store  blob.Store
	logger core.Logger

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Job

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewWorker constructs a worker. Call Start to begin processing.
func NewWorker(source Source, store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source: source,
		store:  store,
		logger: discard{},
		queue:  make(chan string, DefaultQueueSize),
		jobs:   make(map[string]*Job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the processing goroutine. Repeated calls are no-ops.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.loop()
}

// Stop cancels in-flight work and waits for the loop to exit or ctx to end.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(w.ctx, id)
		}
	}
}

func (w *Worker) newJob(req Request) (*Job, error) {
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	formats := req.Formats
	if len(formats) == 0 {
		formats = []Format{FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	for _, f := range formats {
		parsed, err := ParseFormat(string(f))
		if err != nil {
			return nil, err
		}
		if !slices.Contains(uniq, parsed) {
			uniq = append(uniq, parsed)
		}
	}
	now := w.source.Now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return job, nil
}

// Enqueue validates req and schedules it, returning the queued job.
func (w *Worker) Enqueue(_ context.Context, req Request) (Job, error) {
	job, err := w.newJob(req)
	if err != nil {
		return Job{}, err
	}
	w.mu.Lock()
	w.jobs[job.ID] = job
	queued := job.copy()
	w.mu.Unlock()

	select {
	case w.queue <- job.ID:
	default:
		w.mu.Lock()
		delete(w.jobs, job.ID)
		w.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	w.logger.Info("export queued", "job", job.ID, "kind", job.Kind)
	return queued, nil
}

// Run executes req synchronously on the caller's goroutine.
func (w *Worker) Run(ctx context.Context, req Request) (Job, error) {
	job, err := w.newJob(req)
	if err != nil {
		return Job{}, err
	}
	w.mu.Lock()
	w.jobs[job.ID] = job
	w.mu.Unlock()
	w.process(ctx, job.ID)
	out, _ := w.Get(job.ID)
	if out.Status == StatusFailed {
		return out, errors.New(out.Error)
	}
	return out, nil
}

// Get returns a snapshot of a job.
func (w *Worker) Get(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

// List returns job snapshots, newest first.
func (w *Worker) List() []Job {
	w.mu.RLock()
	out := make([]Job, 0, len(w.jobs))
	for _, job := range w.jobs {
		out = append(out, job.copy())
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Open streams a stored artifact of a succeeded job.
func (w *Worker) Open(ctx context.Context, id string, format Format) (Artifact, io.ReadCloser, error) {
	job, ok := w.Get(id)
	if !ok {
		return Artifact{}, nil, domain.NotFoundError{Entity: "export", ID: id}
	}
	for _, a := range job.Artifacts {
		if a.Format == format {
			_, rc, err := w.store.Get(ctx, a.Key)
			return a, rc, err
		}
	}
	return Artifact{}, nil, domain.NotFoundError{Entity: "export artifact", ID: id + "." + string(format)}
}

// ArtifactKey is the blob key for one job output.
func ArtifactKey(kind Kind, jobID string, format Format) string {
	return fmt.Sprintf("reports/%s/%s.%s", kind, jobID, format)
}

func (w *Worker) process(ctx context.Context, id string) {
	w.update(id, func(j *Job) { j.Status = StatusRunning })
	job, ok := w.Get(id)
	if !ok {
		return
	}

	now := w.source.Now()
	table, err := Build(job.Kind, w.source.Snapshot(), now)
	if err != nil {
		w.fail(id, err)
		return
	}
	artifacts := make([]Artifact, 0, len(job.Formats))
	for _, format := range job.Formats {
		payload, err := table.Encode(format)
		if err != nil {
			w.fail(id, err)
			return
		}
		key := ArtifactKey(job.Kind, id, format)
		info, err := w.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: format.contentType(),
			Metadata:    map[string]string{"job": id, "kind": string(job.Kind)},
		})
		if err != nil {
			w.fail(id, fmt.Errorf("store %s: %w", key, err))
			return
		}
		artifact := Artifact{Key: key, Format: format, ContentType: format.contentType(), SizeBytes: info.Size, Rows: len(table.Rows), CreatedAt: now.UTC()}
		if url, err := w.store.URL(ctx, key, 0); err == nil {
			artifact.URL = url
		}
		artifacts = append(artifacts, artifact)
	}

	if _, err := w.source.RecordExport(ctx, fmt.Sprintf("Exported %s report (%d rows)", job.Kind, len(table.Rows))); err != nil {
		w.logger.Warn("export audit failed", "job", id, "error", err)
	}
	completed := w.source.Now().UTC()
	w.update(id, func(j *Job) {
		j.Status = StatusSucceeded
		j.Artifacts = artifacts
		j.CompletedAt = &completed
	})
	w.logger.Info("export completed", "job", id, "kind", job.Kind, "artifacts", len(artifacts))
}

func (w *Worker) fail(id string, err error) {
	completed := w.source.Now().UTC()
	w.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = err.Error()
		j.CompletedAt = &completed
	})
	w.logger.Error("export failed", "job", id, "error", err)
}

func (w *Worker) update(id string, fn func(*Job)) {
	now := w.source.Now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	if job, ok := w.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = now
	}
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
