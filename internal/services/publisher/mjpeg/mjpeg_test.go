package mjpeg

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Luisfrighetto/Visao/internal/helpers"
	"github.com/Luisfrighetto/Visao/internal/models"
	"github.com/Luisfrighetto/Visao/internal/pipeline"
)

func frame(index int) models.Frame {
	return models.Frame{Index: index, Width: 32, Height: 24, Data: bytes.Repeat([]byte{0, 128, 255}, 32*24)}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFramesWithoutWatchersAreNotEncoded(t *testing.T) {
	p := NewPublisher(Options{MinInterval: time.Nanosecond})
	p.OnFrame("run-1", frame(1))

	if _, ok := p.runs["run-1"]; ok {
		t.Error("an unwatched run must not be tracked")
	}
}

func TestStreamEndsWithRun(t *testing.T) {
	p := NewPublisher(Options{MinInterval: time.Nanosecond, Keepalive: time.Hour})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/preview", nil)

	done := make(chan struct{})
	go func() {
		p.StreamMJPEGHTTP(w, req, "run-1")
		close(done)
	}()
	waitFor(t, func() bool { return p.Watchers("run-1") == 1 })

	p.OnFrame("run-1", frame(1))
	p.OnProgress(pipeline.Event{RunID: "run-1", State: pipeline.StateCompleted})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the run completed")
	}

	if ct := w.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("content type = %q", ct)
	}
	want, err := helpers.EncodeJPEG(frame(1), helpers.MediumQuality)
	if err != nil {
		t.Fatal(err)
	}
	body := w.Body.Bytes()
	if !bytes.HasSuffix(body, append(want, '\r', '\n')) {
		t.Error("the last part is not the run's frame")
	}
	// the placeholder may precede it when the stream opened before the first frame
	if parts := bytes.Count(body, []byte("--frame\r\n")); parts < 1 || parts > 2 {
		t.Errorf("parts = %d", parts)
	}
	if p.Watchers("run-1") != 0 {
		t.Error("watcher not released")
	}
}

func TestStreamEndsWithClient(t *testing.T) {
	p := NewPublisher(Options{Keepalive: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		p.StreamMJPEGHTTP(httptest.NewRecorder(), req, "run-2")
		close(done)
	}()
	waitFor(t, func() bool { return p.Watchers("run-2") == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the client left")
	}
	if _, ok := p.runs["run-2"]; ok {
		t.Error("stream state leaked after the last watcher left")
	}
}

func TestStreamOfIdleRunEnds(t *testing.T) {
	p := NewPublisher(Options{Keepalive: time.Hour, IdleTimeout: 50 * time.Millisecond})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/preview", nil)

	done := make(chan struct{})
	go func() {
		p.StreamMJPEGHTTP(w, req, "run-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream of a run without frames or progress stayed open")
	}
	if p.Watchers("run-1") != 0 {
		t.Error("idle stream still subscribed")
	}
}

func TestMinIntervalThrottles(t *testing.T) {
	p := NewPublisher(Options{MinInterval: time.Minute})
	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }

	s := p.subscribe("run-3")
	defer p.unsubscribe("run-3", s)

	p.OnFrame("run-3", frame(1))
	p.OnFrame("run-3", frame(2))
	if s.version != 1 {
		t.Errorf("version = %d, want 1", s.version)
	}

	now = now.Add(time.Minute)
	p.OnFrame("run-3", frame(3))
	if s.version != 2 {
		t.Errorf("version = %d, want 2", s.version)
	}
}
