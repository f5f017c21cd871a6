package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equiploan/internal/adapters/export"
	"equiploan/internal/blob"
	"equiploan/internal/core"
	"equiploan/internal/infra/persistence/memory"
	"equiploan/pkg/domain"
)

var testNow = time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *core.Service
	exports *export.Worker
	router  *gin.Engine
	metrics *core.PrometheusMetricsRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clock := func() time.Time { return testNow }
	store := memory.NewStore(core.NewDefaultRulesEngine(), memory.WithNowFunc(clock))
	store.ImportState(memory.SeedSnapshot())
	metrics := core.NewPrometheusMetricsRecorder()
	svc := core.NewService(store, core.WithClock(core.ClockFunc(clock)), core.WithMetricsRecorder(metrics))
	worker := export.NewWorker(svc, blob.NewMemory())
	return fixture{
		svc:     svc,
		exports: worker,
		metrics: metrics,
		router: NewRouter(Deps{
			Service:     svc,
			Exports:     worker,
			Gatherer:    metrics.Registry(),
			CORSOrigins: []string{"http://localhost:5173"},
		}),
	}
}

func (f fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder, key string) T {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	raw, ok := envelope[key]
	require.True(t, ok, "missing %q in %s", key, w.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error.Code
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/items", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "list_items")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/items", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestItemsCRUD(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/items", itemRequest{CategoryID: "cat-lap", Name: "ThinkPad X1", SerialNumber: "LAP-LEN-120"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Item](t, w, "item")
	assert.Equal(t, domain.ItemAvailable, created.Status)
	assert.Equal(t, "LAP-LEN-120", created.QRCodeValue)

	w = f.do(t, http.MethodGet, "/api/v1/scan/LAP-LEN-120", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[domain.Item](t, w, "item").ID)

	w = f.do(t, http.MethodPut, "/api/v1/items/"+created.ID, itemRequest{Location: "IT Office Rack C"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "IT Office Rack C", decode[domain.Item](t, w, "item").Location)

	w = f.do(t, http.MethodGet, "/api/v1/items?category_id=cat-lap&q=thinkpad", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Item](t, w, "items"), 1)

	w = f.do(t, http.MethodDelete, "/api/v1/items/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[bool](t, w, "archived"))

	w = f.do(t, http.MethodGet, "/api/v1/items/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, w))
}

func TestItemWithHistoryIsArchived(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodDelete, "/api/v1/items/item-lap-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[bool](t, w, "archived"))
}

func TestValidationAndBadRequests(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/items", itemRequest{Name: "No serial"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeValidation, errorCode(t, w))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = f.do(t, http.MethodGet, "/api/v1/items?status=Bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/audit?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"borrower_name": "Dana", "expected_return_date": "next week"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionWorkflowOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"borrower_name":        "Dana Cruz",
		"borrower_id_number":   "S70001",
		"department":           "Physics",
		"purpose":              "Lab demo",
		"expected_return_date": "2024-03-20",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sess := decode[domain.BorrowSession](t, w, "item")
	assert.Equal(t, domain.SessionPendingScanning, sess.Status)
	base := "/api/v1/sessions/" + sess.ID

	w = f.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, base+"/scan", scanRequest{Code: "LAP-HP-108"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, base+"/items", itemRef{ItemID: "item-mic-2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[domain.BorrowSession](t, w, "item").ItemIDs, 2)

	w = f.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, base+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.SessionApproved, decode[domain.BorrowSession](t, w, "item").Status)

	w = f.do(t, http.MethodPost, base+"/items/item-lap-3/release", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.SessionApproved, decode[domain.BorrowSession](t, w, "item").Status)

	w = f.do(t, http.MethodPost, base+"/release", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.SessionActive, decode[domain.BorrowSession](t, w, "item").Status)

	w = f.do(t, http.MethodGet, "/api/v1/transactions?open=true&session_id="+sess.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Transaction](t, w, "items"), 2)

	for _, id := range []string{"item-lap-3", "item-mic-2"} {
		w = f.do(t, http.MethodPost, base+"/items/"+id+"/return", returnRequest{Condition: domain.ConditionGood})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/v1/sessions?code="+sess.SessionCode, nil)
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[[]domain.BorrowSession](t, w, "items")
	require.Len(t, found, 1)
	assert.Equal(t, domain.SessionCompleted, found[0].Status)

	w = f.do(t, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeConflict, errorCode(t, w))
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/sessions/session-3/reject", reasonRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListSessionsByStatus(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/sessions?status=Active,Approved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, sess := range decode[[]domain.BorrowSession](t, w, "items") {
		assert.Contains(t, []domain.SessionStatus{domain.SessionActive, domain.SessionApproved}, sess.Status)
	}

	w = f.do(t, http.MethodGet, "/api/v1/sessions?status=Nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactionLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/transactions", map[string]any{
		"item_id":       "item-cam-2",
		"borrower_name": "Lee Park",
		"due_date":      "2024-03-14T17:00:00Z",
		"reservation":   true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Transaction](t, w, "item")
	assert.Equal(t, domain.TransactionReserved, created.Status)

	w = f.do(t, http.MethodPost, "/api/v1/transactions/"+created.ID+"/handover", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.TransactionBorrowed, decode[domain.Transaction](t, w, "item").Status)

	w = f.do(t, http.MethodPost, "/api/v1/transactions/"+created.ID+"/return", returnRequest{Condition: "Broken"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/transactions/"+created.ID+"/return", returnRequest{Condition: domain.ConditionDamaged, Remarks: "cracked"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/reports/pending-damage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ids []string
	for _, item := range decode[[]domain.Item](t, w, "items") {
		ids = append(ids, item.ID)
	}
	assert.Contains(t, ids, "item-cam-2")

	w = f.do(t, http.MethodPost, "/api/v1/items/item-cam-2/maintenance", issueRequest{IssueDescription: "Cracked lens"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	log := decode[domain.MaintenanceLog](t, w, "item")

	w = f.do(t, http.MethodPost, "/api/v1/maintenance/"+log.ID+"/resolve", resolveRequest{FinalCondition: domain.ConditionGood})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/items/item-cam-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	item := decode[domain.Item](t, w, "item")
	assert.Equal(t, domain.ItemAvailable, item.Status)
	assert.Equal(t, domain.ConditionGood, item.Condition)
}

func TestSweepDashboardAndAudit(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Positive(t, decode[int](t, w, "marked"))

	w = f.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode[core.Dashboard](t, w, "item")
	assert.Positive(t, dash.TotalItems)
	assert.Positive(t, dash.OverdueTransactions)

	w = f.do(t, http.MethodGet, "/api/v1/reports/overdue-sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[[]domain.BorrowSession](t, w, "items"))

	w = f.do(t, http.MethodGet, "/api/v1/audit?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[[]domain.AuditLog](t, w, "items")
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditOverdue, logs[0].ActionType)
}

func TestResetRestoresSeed(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodDelete, "/api/v1/items/item-lap-3", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/reset", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/items/item-lap-3", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExportsOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.exports.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.exports.Stop(ctx)
	})

	w := f.do(t, http.MethodPost, "/api/v1/exports", exportRequest{Kind: "inventory", Formats: []string{"csv", "json"}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := decode[export.Job](t, w, "item")

	require.Eventually(t, func() bool {
		got, ok := f.exports.Get(job.ID)
		return ok && got.Status == export.StatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodGet, "/api/v1/exports/"+job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[export.Job](t, w, "item").Artifacts, 2)

	w = f.do(t, http.MethodGet, "/api/v1/exports/"+job.ID+"/download?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), job.ID+".csv")
	assert.Contains(t, w.Body.String(), "PROJ-EPS-001")

	w = f.do(t, http.MethodPost, "/api/v1/exports", exportRequest{Kind: "payroll"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/exports/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
