package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"equiploan/internal/blob"
	"equiploan/internal/core"
	"equiploan/internal/infra/persistence/memory"
	"equiploan/pkg/domain"
)

var testNow = time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

func newSeededService(t *testing.T) *core.Service {
	t.Helper()
	clock := func() time.Time { return testNow }
	store := memory.NewStore(core.NewDefaultRulesEngine(), memory.WithNowFunc(clock))
	store.ImportState(memory.SeedSnapshot())
	return core.NewService(store, core.WithClock(core.ClockFunc(clock)))
}

func waitForJob(t *testing.T, w *Worker, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := w.Get(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestWorkerExportsInventory(t *testing.T) {
	svc := newSeededService(t)
	store := blob.NewMemory()
	w := NewWorker(svc, store)
	w.Start()
	defer func() { _ = w.Stop(context.Background()) }()

	queued, err := w.Enqueue(context.Background(), Request{Kind: "Inventory", Formats: []Format{FormatCSV, FormatJSON, FormatCSV}, RequestedBy: "Admin User"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != StatusQueued || len(queued.Formats) != 2 || queued.Kind != KindInventory {
		t.Fatalf("unexpected queued job %+v", queued)
	}

	job := waitForJob(t, w, queued.ID)
	if job.Status != StatusSucceeded {
		t.Fatalf("export failed: %s", job.Error)
	}
	if len(job.Artifacts) != 2 {
		t.Fatalf("expected two artifacts, got %+v", job.Artifacts)
	}
	items := len(svc.Snapshot().Items)
	for _, a := range job.Artifacts {
		if a.Key != ArtifactKey(KindInventory, job.ID, a.Format) || a.Rows != items {
			t.Fatalf("unexpected artifact %+v", a)
		}
	}

	_, rc, err := w.Open(context.Background(), job.ID, FormatCSV)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	records, err := csv.NewReader(rc).ReadAll()
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != items+1 || records[0][0] != "id" {
		t.Fatalf("unexpected csv shape: %d rows, header %v", len(records), records[0])
	}

	_, rc, err = w.Open(context.Background(), job.ID, FormatJSON)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	var decoded []map[string]string
	if err := json.NewDecoder(rc).Decode(&decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	_ = rc.Close()
	if len(decoded) != items || decoded[0]["serial_number"] == "" {
		t.Fatalf("unexpected json records %v", decoded[:1])
	}

	logs, _ := svc.ListAuditLogs(context.Background(), 1)
	if len(logs) != 1 || logs[0].ActionType != domain.AuditExport || !strings.Contains(logs[0].Description, "inventory") {
		t.Fatalf("expected export audit entry, got %+v", logs)
	}
}

func TestWorkerRunSynchronously(t *testing.T) {
	svc := newSeededService(t)
	w := NewWorker(svc, blob.NewMemory())
	job, err := w.Run(context.Background(), Request{Kind: KindDamaged})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != StatusSucceeded || len(job.Artifacts) != 1 || job.Artifacts[0].Format != FormatCSV {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Artifacts[0].Rows != 1 {
		t.Fatalf("expected one damaged item awaiting maintenance, got %d", job.Artifacts[0].Rows)
	}
	if list := w.List(); len(list) != 1 || list[0].ID != job.ID {
		t.Fatalf("unexpected job list %+v", list)
	}
}

func TestWorkerRejectsBadRequests(t *testing.T) {
	w := NewWorker(newSeededService(t), blob.NewMemory())
	var verr domain.ValidationError
	if _, err := w.Enqueue(context.Background(), Request{Kind: "payroll"}); !errors.As(err, &verr) || verr.Field != "kind" {
		t.Fatalf("expected kind validation error, got %v", err)
	}
	if _, err := w.Enqueue(context.Background(), Request{Kind: KindAudit, Formats: []Format{"xlsx"}}); !errors.As(err, &verr) || verr.Field != "format" {
		t.Fatalf("expected format validation error, got %v", err)
	}
	if _, _, err := w.Open(context.Background(), "missing", FormatCSV); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestWorkerQueueFull(t *testing.T) {
	w := NewWorker(newSeededService(t), blob.NewMemory(), WithQueueSize(1))
	if _, err := w.Enqueue(context.Background(), Request{Kind: KindAudit}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := w.Enqueue(context.Background(), Request{Kind: KindAudit}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if got := len(w.List()); got != 1 {
		t.Fatalf("rejected job must not be tracked, have %d", got)
	}
}

type failingStore struct{ blob.Store }

func (failingStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("disk full")
}

func TestWorkerStoreFailureMarksJobFailed(t *testing.T) {
	svc := newSeededService(t)
	w := NewWorker(svc, failingStore{blob.NewMemory()})
	job, err := w.Run(context.Background(), Request{Kind: KindSessions})
	if err == nil || job.Status != StatusFailed || !strings.Contains(job.Error, "disk full") {
		t.Fatalf("expected failed job, got %+v %v", job, err)
	}
	logs, _ := svc.ListAuditLogs(context.Background(), 1)
	if len(logs) == 1 && logs[0].ActionType == domain.AuditExport {
		t.Fatalf("failed export must not be audited")
	}
}

func TestWorkerStopIsBounded(t *testing.T) {
	w := NewWorker(newSeededService(t), blob.NewMemory())
	w.Start()
	w.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
