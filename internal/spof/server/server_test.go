package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/build-flow-labs/spof/internal/spof/report"
	"github.com/build-flow-labs/spof/internal/spof/score"
)

func dep(name, eco string, s float64) score.ScoredDependency {
	return score.ScoredDependency{Name: name, NormalizedName: name, Ecosystem: eco, Score: s, RawScore: s}
}

func writeReport(t *testing.T, dir, org string, at time.Time, deps ...score.ScoredDependency) *report.Report {
	t.Helper()
	r := report.Build(report.Input{
		Organization: org,
		AnalyzedAt:   at,
		Repositories: []string{org + "/api"},
		Weights:      score.DefaultWeights(),
		Dependencies: deps,
	})
	name := "spof_analysis_" + org + "_" + at.Format("20060102_150405") + ".json"
	require.NoError(t, report.WriteJSON(filepath.Join(dir, name), r))
	return r
}

func setup(t *testing.T) (*Server, []*report.Report) {
	t.Helper()
	dir := t.TempDir()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	older := writeReport(t, dir, "acme", base, dep("lodash", "npm", 85))
	newer := writeReport(t, dir, "acme", base.Add(24*time.Hour),
		dep("lodash", "npm", 90), dep("requests", "pypi", 45), dep("serde", "cargo", 10))
	other := writeReport(t, dir, "globex", base.Add(time.Hour))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`{"hello":"world"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.csv"), []byte("Name\n"), 0o644))

	return New(dir, nil), []*report.Report{older, newer, other}
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestIndex(t *testing.T) {
	s, reports := setup(t)
	idx := s.Index()

	assert.Equal(t, 3, idx.Count())

	all := idx.List("")
	require.Len(t, all, 3)
	assert.Equal(t, reports[1].ID, all[0].ID, "newest first")
	assert.Equal(t, reports[0].ID, all[2].ID)

	acme := idx.List("ACME")
	require.Len(t, acme, 2)
	assert.Equal(t, 3, acme[0].TotalDependencies)
	assert.Equal(t, 1, acme[0].Critical)

	_, err := idx.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	r, err := idx.Get(reports[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "globex", r.Organization)
}

func TestIndexMissingDirectory(t *testing.T) {
	idx := NewIndex(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, idx.Load())
	assert.Zero(t, idx.Count())
}

func TestHandlers(t *testing.T) {
	s, reports := setup(t)
	h := s.Routes()
	newer := reports[1].ID

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantCount  int
	}{
		{"list all", "/api/reports", http.StatusOK, 3},
		{"list by org", "/api/reports?org=globex", http.StatusOK, 1},
		{"dependencies", "/api/reports/" + newer + "/dependencies", http.StatusOK, 3},
		{"by ecosystem", "/api/reports/" + newer + "/dependencies?ecosystem=pypi", http.StatusOK, 1},
		{"by min score", "/api/reports/" + newer + "/dependencies?min_score=40", http.StatusOK, 2},
		{"invalid min score", "/api/reports/" + newer + "/dependencies?min_score=high", http.StatusBadRequest, -1},
		{"unknown report", "/api/reports/nope/dependencies", http.StatusNotFound, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.url)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCount < 0 {
				return
			}
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var items []json.RawMessage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
			assert.Len(t, items, tt.wantCount)
		})
	}
}

func TestGetReport(t *testing.T) {
	s, reports := setup(t)
	h := s.Routes()

	rec := get(t, h, "/api/reports/"+reports[0].ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var r report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, reports[0].ID, r.ID)
	assert.Len(t, r.Dependencies, 1)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/reports/unknown").Code)
}

func TestHealth(t *testing.T) {
	s, _ := setup(t)

	rec := get(t, s.Routes(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["reports"])
}

func TestCORS(t *testing.T) {
	s, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRefreshPicksUpNewReports(t *testing.T) {
	s, _ := setup(t)
	writeReport(t, s.index.dir, "initech", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 3, s.Index().Count())
	s.Refresh()
	assert.Equal(t, 4, s.Index().Count())
	assert.Equal(t, "initech", s.Index().List("")[0].Organization)
}

func TestSchedule(t *testing.T) {
	s := New(t.TempDir(), nil)

	require.NoError(t, s.Schedule("@daily", func(ctx context.Context) error { return nil }))
	err := s.Schedule("not a schedule", func(ctx context.Context) error { return errors.New("unreachable") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestRunCancelsScheduledJobOnShutdown(t *testing.T) {
	s := New(t.TempDir(), nil)

	started := make(chan struct{})
	var once sync.Once
	var cancelled, finished atomic.Bool
	require.NoError(t, s.Schedule("@every 1s", func(ctx context.Context) error {
		once.Do(func() { close(started) })
		select {
		case <-ctx.Done():
			cancelled.Store(true)
		case <-time.After(10 * time.Second):
		}
		finished.Store(true)
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx, "127.0.0.1:0") }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job never started")
	}
	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.True(t, finished.Load(), "Run returned while the job was still running")
	assert.True(t, cancelled.Load(), "job context was not cancelled by shutdown")
}
