package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panicsave/panicsave/internal/database"
	"github.com/panicsave/panicsave/internal/metrics"
	"github.com/panicsave/panicsave/internal/models"
	"github.com/panicsave/panicsave/internal/observer"
)

type stubStatus struct {
	snap    observer.Snapshot
	started bool
	closing int
}

func (s *stubStatus) Snapshot() (observer.Snapshot, bool) {
	return s.snap, s.started
}

func (s *stubStatus) MarkClosing() bool {
	s.closing++
	s.snap.HostClosing = true
	return s.closing == 1
}

func newTestMux(t *testing.T, status *stubStatus, withRepo bool) (*http.ServeMux, *database.Repository) {
	t.Helper()

	var repo *database.Repository
	if withRepo {
		db, err := database.Connect(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		require.NoError(t, db.Initialize())
		t.Cleanup(func() { _ = db.Close() })
		repo = database.NewRepository(db)
	}

	mux := http.NewServeMux()
	NewHandler(status, repo, metrics.New().Handler(), nil).SetupRoutes(mux)
	return mux, repo
}

func do(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	mux, _ := newTestMux(t, &stubStatus{}, false)

	rec := do(mux, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestStatus(t *testing.T) {
	status := &stubStatus{started: true, snap: observer.Snapshot{HostPID: 4242, Running: true, Armed: true}}
	mux, repo := newTestMux(t, status, true)

	require.NoError(t, repo.CreateSaveRecord(&models.SaveRecord{
		Timestamp: time.Now(), HostPID: 4242, TargetApp: "firefox", Success: true, DisplayServer: "x11",
	}))

	rec := do(mux, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Observer   observer.Snapshot  `json:"observer"`
		LatestSave *models.SaveRecord `json:"latest_save"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint32(4242), body.Observer.HostPID)
	assert.True(t, body.Observer.Armed)
	require.NotNil(t, body.LatestSave)
	assert.Equal(t, "firefox", body.LatestSave.TargetApp)
}

func TestStatusBeforeStart(t *testing.T) {
	mux, _ := newTestMux(t, &stubStatus{}, false)
	assert.Equal(t, http.StatusServiceUnavailable, do(mux, http.MethodGet, "/api/status").Code)
}

func TestSaves(t *testing.T) {
	mux, repo := newTestMux(t, &stubStatus{started: true}, true)

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateSaveRecord(&models.SaveRecord{
			Timestamp: now.Add(-time.Duration(i) * time.Minute), TargetApp: "app", Success: true, DisplayServer: "x11",
		}))
	}

	rec := do(mux, http.MethodGet, "/api/saves?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var saves []models.SaveRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saves))
	assert.Len(t, saves, 2)

	rec = do(mux, http.MethodGet, "/api/saves?period=month")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saves))
	assert.Len(t, saves, 3)
}

func TestSavesBadRequests(t *testing.T) {
	mux, _ := newTestMux(t, &stubStatus{started: true}, true)

	tests := []struct {
		name   string
		method string
		target string
		code   int
	}{
		{"bad limit", http.MethodGet, "/api/saves?limit=abc", http.StatusBadRequest},
		{"negative limit", http.MethodGet, "/api/saves?limit=-1", http.StatusBadRequest},
		{"bad period", http.MethodGet, "/api/saves?period=year", http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/api/saves", http.StatusMethodNotAllowed},
		{"bad report period", http.MethodGet, "/api/report?period=year", http.StatusBadRequest},
		{"closing via GET", http.MethodGet, "/api/closing", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, do(mux, tt.method, tt.target).Code)
		})
	}
}

func TestJournalDisabled(t *testing.T) {
	mux, _ := newTestMux(t, &stubStatus{started: true}, false)

	assert.Equal(t, http.StatusServiceUnavailable, do(mux, http.MethodGet, "/api/saves").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(mux, http.MethodGet, "/api/report").Code)
}

func TestReport(t *testing.T) {
	mux, repo := newTestMux(t, &stubStatus{started: true}, true)

	require.NoError(t, repo.CreateSaveRecord(&models.SaveRecord{
		Timestamp: time.Now(), TargetApp: "slack", Success: true, DurationMs: 40, DisplayServer: "x11",
	}))

	rec := do(mux, http.MethodGet, "/api/report")
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "day", report.Period.Type)
	assert.Equal(t, 1, report.TotalSaves)
}

func TestClosing(t *testing.T) {
	status := &stubStatus{started: true}
	mux, _ := newTestMux(t, status, false)

	rec := do(mux, http.MethodPost, "/api/closing")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"host_closing":true,"changed":true}`, rec.Body.String())

	rec = do(mux, http.MethodPost, "/api/closing")
	assert.JSONEq(t, `{"host_closing":true,"changed":false}`, rec.Body.String())
	assert.True(t, status.snap.HostClosing)
}

func TestMetricsRoute(t *testing.T) {
	mux, _ := newTestMux(t, &stubStatus{}, false)

	rec := do(mux, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "panicsave_armed")
}
