package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Luisfrighetto/Visao/internal/models"
	"github.com/Luisfrighetto/Visao/internal/pipeline"
	"github.com/Luisfrighetto/Visao/internal/services/artifacts"
	"github.com/Luisfrighetto/Visao/internal/services/detection"
	"github.com/Luisfrighetto/Visao/internal/services/publisher/mjpeg"
)

func init() { gin.SetMode(gin.TestMode) }

type fixedReadiness detection.Snapshot

func (r fixedReadiness) Snapshot() detection.Snapshot { return detection.Snapshot(r) }

type analyzerFunc func(ctx context.Context, req pipeline.Request) (*models.OutputArtifact, error)

func (f analyzerFunc) Run(ctx context.Context, req pipeline.Request) (*models.OutputArtifact, error) {
	return f(ctx, req)
}

var ready = fixedReadiness{State: detection.StateReady}

type fixture struct {
	store   *artifacts.Store
	router  *gin.Engine
	analyze *AnalyzeHandler
}

func newFixture(t *testing.T, readiness Readiness, analyzer Analyzer) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := artifacts.New(filepath.Join(root, "uploads"), filepath.Join(root, "results"))
	if err != nil {
		t.Fatal(err)
	}

	analyze := NewAnalyzeHandler(analyzer, readiness, store, 0.5, 1024)
	health := NewHealthHandler("analyzer-test", "test", readiness, store, nil)
	files := NewFilesHandler(store)
	system := NewSystemHandler("analyzer-test", analyze)
	preview := NewPreviewHandler(mjpeg.NewPublisher(mjpeg.Options{}))

	r := gin.New()
	r.GET("/", health.WorkerInfo)
	r.GET("/api/health", health.HealthCheck)
	r.GET("/api/system/stats", system.GetStats)
	r.POST("/api/analyze", analyze.Analyze)
	r.GET("/download/:filename", files.Download)
	r.GET("/api/uploads", files.List)
	r.DELETE("/api/uploads/:filename", files.Delete)
	r.GET("/api/runs/:run_id/preview", preview.Stream)

	return &fixture{store: store, router: r, analyze: analyze}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("video", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	return out
}

func uploads(t *testing.T, s *artifacts.Store) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(s.UploadDir())
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestAnalyzeSuccess(t *testing.T) {
	var got pipeline.Request
	var f *fixture
	f = newFixture(t, ready, analyzerFunc(func(_ context.Context, req pipeline.Request) (*models.OutputArtifact, error) {
		got = req
		if f.analyze.Active() != 1 {
			t.Errorf("active runs = %d during run", f.analyze.Active())
		}
		video := filepath.Join(f.store.ResultsDir(), "processed_match_1700000000.mp4")
		return &models.OutputArtifact{
			RunID:     req.RunID,
			VideoPath: video,
			StatsPath: filepath.Join(f.store.ResultsDir(), "processed_match_1700000000.json"),
			Statistics: models.RunStatistics{
				MaxPlayers: 3, MeanPlayers: 3, BallsDetected: 10,
				FramesProbed: 10, FramesProcessed: 10, FPS: 25, Resolution: "64x48",
				ElapsedSeconds: 1.5,
			},
		}, nil
	}))

	w := f.do(uploadRequest(t, "match.mp4", []byte("fake video bytes"), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	if got.Confidence != 0.5 {
		t.Errorf("default confidence = %v", got.Confidence)
	}
	if got.RunID == "" || filepath.Dir(got.InputPath) != f.store.UploadDir() {
		t.Errorf("request = %+v", got)
	}

	body := decode(t, w)
	if body["success"] != true || body["video_file"] != "processed_match_1700000000.mp4" ||
		body["stats_file"] != "processed_match_1700000000.json" || body["original_filename"] != "match.mp4" {
		t.Errorf("body = %v", body)
	}
	if body["processing_time"] != 1.5 || body["run_id"] != got.RunID {
		t.Errorf("body = %v", body)
	}
	stats := body["statistics"].(map[string]any)
	if stats["jogadores_max"] != float64(3) || stats["bolas_detectadas"] != float64(10) {
		t.Errorf("statistics = %v", stats)
	}
	if n := len(uploads(t, f.store)); n != 1 {
		t.Errorf("uploads after success = %d, want 1", n)
	}
	if f.analyze.Active() != 0 {
		t.Errorf("active runs = %d after run", f.analyze.Active())
	}
}

func TestAnalyzeConfidenceForm(t *testing.T) {
	var got float64
	f := newFixture(t, ready, analyzerFunc(func(_ context.Context, req pipeline.Request) (*models.OutputArtifact, error) {
		got = req.Confidence
		return &models.OutputArtifact{VideoPath: "v.mp4", StatsPath: "v.json"}, nil
	}))

	w := f.do(uploadRequest(t, "clip.avi", []byte("x"), map[string]string{"confidence": "0.3"}))
	if w.Code != http.StatusOK || got != 0.3 {
		t.Fatalf("status %d confidence %v", w.Code, got)
	}

	for _, bad := range []string{"abc", "0", "1.5", "-0.2", "NaN"} {
		w := f.do(uploadRequest(t, "clip.avi", []byte("x"), map[string]string{"confidence": bad}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("confidence %q: status %d", bad, w.Code)
		}
	}
}

func TestAnalyzeClientRunID(t *testing.T) {
	const id = "4f7c8a1e-2b9d-4c55-9e61-0d8f3a2b7c10"
	var got string
	f := newFixture(t, ready, analyzerFunc(func(_ context.Context, req pipeline.Request) (*models.OutputArtifact, error) {
		got = req.RunID
		return &models.OutputArtifact{VideoPath: "v.mp4", StatsPath: "v.json"}, nil
	}))

	w := f.do(uploadRequest(t, "clip.mp4", []byte("x"), map[string]string{"run_id": strings.ToUpper(id)}))
	if w.Code != http.StatusOK || got != id {
		t.Fatalf("status %d run id %q", w.Code, got)
	}

	w = f.do(uploadRequest(t, "clip.mp4", []byte("x"), map[string]string{"run_id": "../../etc"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad run id: status %d", w.Code)
	}
}

func TestPreviewRejectsBadRunID(t *testing.T) {
	f := newFixture(t, ready, nil)
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/runs/not-a-uuid/preview", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAnalyzeRejectsBadUploads(t *testing.T) {
	called := false
	f := newFixture(t, ready, analyzerFunc(func(context.Context, pipeline.Request) (*models.OutputArtifact, error) {
		called = true
		return nil, errors.New("unexpected")
	}))

	if w := f.do(uploadRequest(t, "", nil, nil)); w.Code != http.StatusBadRequest {
		t.Errorf("missing file: %d", w.Code)
	}
	if w := f.do(uploadRequest(t, "notes.txt", []byte("x"), nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bad extension: %d", w.Code)
	}
	if w := f.do(uploadRequest(t, "big.mp4", bytes.Repeat([]byte("x"), 2048), nil)); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: %d", w.Code)
	}
	if called {
		t.Error("analyzer ran for a rejected upload")
	}
	if n := len(uploads(t, f.store)); n != 0 {
		t.Errorf("rejected uploads left %d files", n)
	}
}

func TestAnalyzeModelNotReady(t *testing.T) {
	tests := []struct {
		name string
		snap detection.Snapshot
		want int
	}{
		{"loading", detection.Snapshot{State: detection.StateLoading}, http.StatusServiceUnavailable},
		{"not started", detection.Snapshot{State: detection.StateNotStarted}, http.StatusServiceUnavailable},
		{"failed", detection.Snapshot{State: detection.StateFailed, Reason: "model file missing"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixedReadiness(tt.snap), analyzerFunc(func(context.Context, pipeline.Request) (*models.OutputArtifact, error) {
				t.Error("analyzer must not run")
				return nil, nil
			}))
			w := f.do(uploadRequest(t, "match.mp4", []byte("x"), nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if len(uploads(t, f.store)) != 0 {
				t.Error("upload saved while model unavailable")
			}
		})
	}
}

func TestAnalyzeRunFailureRemovesUpload(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unreadable", &pipeline.RunError{Kind: pipeline.ErrUnreadableSource, Err: errors.New("no video stream")}, http.StatusInternalServerError},
		{"invalid", &pipeline.RunError{Kind: pipeline.ErrInvalidRequest, Err: errors.New("unknown category")}, http.StatusBadRequest},
		{"loading", &pipeline.RunError{Kind: pipeline.ErrDetectorUnavailable, Err: &detection.UnavailableError{State: detection.StateLoading}}, http.StatusServiceUnavailable},
		{"load failed", &pipeline.RunError{Kind: pipeline.ErrDetectorUnavailable, Err: &detection.UnavailableError{State: detection.StateFailed, Reason: "bad weights"}}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ready, analyzerFunc(func(context.Context, pipeline.Request) (*models.OutputArtifact, error) {
				return nil, tt.err
			}))
			w := f.do(uploadRequest(t, "match.mp4", []byte("x"), nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if body := decode(t, w); body["error"] == "" {
				t.Errorf("body = %v", body)
			}
			if n := len(uploads(t, f.store)); n != 0 {
				t.Errorf("failed run left %d uploads", n)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fixedReadiness{State: detection.StateFailed, Reason: "boom"}, nil)
	os.WriteFile(filepath.Join(f.store.UploadDir(), "a.mp4"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(f.store.ResultsDir(), "processed_a.mp4"), []byte("b"), 0o644)
	os.WriteFile(filepath.Join(f.store.ResultsDir(), "processed_a.json"), []byte("{}"), 0o644)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["model_state"] != "failed" || body["model_error"] != "boom" || body["model_loaded"] != false {
		t.Errorf("body = %v", body)
	}
	if body["upload_count"] != float64(1) || body["result_count"] != float64(1) {
		t.Errorf("counts = %v / %v", body["upload_count"], body["result_count"])
	}
	if !filepath.IsAbs(body["results_folder"].(string)) {
		t.Errorf("results_folder = %v", body["results_folder"])
	}
}

type brokerState bool

func (b brokerState) IsConnected() bool { return bool(b) }

func TestHealthReportsBroker(t *testing.T) {
	f := newFixture(t, ready, nil)
	if body := decode(t, f.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))); body["nats_connected"] != false {
		t.Errorf("nats_connected without broker = %v", body["nats_connected"])
	}

	for _, connected := range []bool{true, false} {
		h := NewHealthHandler("analyzer-test", "test", ready, f.store, brokerState(connected))
		r := gin.New()
		r.GET("/api/health", h.HealthCheck)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		if body := decode(t, w); body["nats_connected"] != connected {
			t.Errorf("nats_connected = %v, want %v", body["nats_connected"], connected)
		}
	}
}

func TestWorkerInfoAndSystemStats(t *testing.T) {
	f := newFixture(t, ready, nil)

	if body := decode(t, f.do(httptest.NewRequest(http.MethodGet, "/", nil))); body["worker_id"] != "analyzer-test" {
		t.Errorf("info = %v", body)
	}
	body := decode(t, f.do(httptest.NewRequest(http.MethodGet, "/api/system/stats", nil)))
	stats := body["stats"].(map[string]any)
	if stats["active_runs"] != float64(0) {
		t.Errorf("stats = %v", stats)
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t, ready, nil)
	os.WriteFile(filepath.Join(f.store.ResultsDir(), "processed_a.json"), []byte(`{"fps":25}`), 0o644)

	w := f.do(httptest.NewRequest(http.MethodGet, "/download/processed_a.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.String() != `{"fps":25}` {
		t.Errorf("body = %q", w.Body.String())
	}

	if w := f.do(httptest.NewRequest(http.MethodGet, "/download/missing.mp4", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing: %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/download/.partial-x.mp4", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("hidden: %d", w.Code)
	}
}

func TestListAndDelete(t *testing.T) {
	f := newFixture(t, ready, nil)

	body := decode(t, f.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil)))
	if files, ok := body["files"].([]any); !ok || len(files) != 0 {
		t.Fatalf("empty list = %v", body)
	}

	os.WriteFile(filepath.Join(f.store.UploadDir(), "a.mp4"), []byte("a"), 0o644)
	body = decode(t, f.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil)))
	files := body["files"].([]any)
	if len(files) != 1 || files[0].(map[string]any)["path"] != "/download/a.mp4" {
		t.Fatalf("files = %v", files)
	}

	w := f.do(httptest.NewRequest(http.MethodDelete, "/api/uploads/a.mp4", nil))
	if w.Code != http.StatusOK || decode(t, w)["success"] != true {
		t.Errorf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(httptest.NewRequest(http.MethodDelete, "/api/uploads/a.mp4", nil)); w.Code != http.StatusNotFound {
		t.Errorf("second delete: %d", w.Code)
	}
}
