package detection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Luisfrighetto/Visao/internal/models"
)

type stubBackend struct {
	detectErr error
	closed    atomic.Int32
}

func (b *stubBackend) Detect(context.Context, models.Frame, float64, []int) ([]models.Detection, error) {
	return nil, b.detectErr
}

func (b *stubBackend) Close() error {
	b.closed.Add(1)
	return nil
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoaderNotStarted(t *testing.T) {
	l := NewLoader(func(context.Context) (Backend, error) { return &stubBackend{}, nil }, 0)

	if s := l.Snapshot(); s.State != StateNotStarted {
		t.Fatalf("state = %s", s.State)
	}
	_, err := l.Acquire()
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.State != StateNotStarted {
		t.Fatalf("Acquire before Start: %v", err)
	}
}

func TestLoaderLoadingIsRetryable(t *testing.T) {
	release := make(chan struct{})
	l := NewLoader(func(ctx context.Context) (Backend, error) {
		<-release
		return &stubBackend{}, nil
	}, 0)

	if !l.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	if l.Start(context.Background()) {
		t.Error("second Start while loading must be a no-op")
	}

	_, err := l.Acquire()
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.State != StateLoading || !ue.Retryable() {
		t.Fatalf("Acquire while loading: %v", err)
	}

	close(release)
	if s := l.Wait(waitCtx(t)); s.State != StateReady {
		t.Fatalf("state after load = %s", s.State)
	}
	d, err := l.Acquire()
	if err != nil || d == nil {
		t.Fatalf("Acquire when ready: %v", err)
	}
}

func TestLoaderFailureAndRetry(t *testing.T) {
	var attempts atomic.Int32
	l := NewLoader(func(context.Context) (Backend, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("model file missing")
		}
		return &stubBackend{}, nil
	}, 0)

	err := l.Load(waitCtx(t))
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.State != StateFailed || ue.Retryable() {
		t.Fatalf("first load: %v", err)
	}
	if s := l.Snapshot(); s.State != StateFailed || s.Reason != "model file missing" {
		t.Errorf("snapshot = %+v", s)
	}

	if err := l.Load(waitCtx(t)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s := l.Snapshot(); s.State != StateReady || s.Reason != "" {
		t.Errorf("snapshot after retry = %+v", s)
	}
}

func TestLoaderWarmupFailureClosesBackend(t *testing.T) {
	backend := &stubBackend{detectErr: errors.New("bad model")}
	l := NewLoader(func(context.Context) (Backend, error) { return backend, nil }, 8)

	if err := l.Load(waitCtx(t)); err == nil {
		t.Fatal("expected warm-up failure")
	}
	if backend.closed.Load() != 1 {
		t.Error("backend not closed after failed warm-up")
	}
}

func TestLoaderClose(t *testing.T) {
	backend := &stubBackend{}
	l := NewLoader(func(context.Context) (Backend, error) { return backend, nil }, 0)
	if err := l.Load(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if backend.closed.Load() != 1 {
		t.Error("backend not closed")
	}
	if _, err := l.Acquire(); err == nil {
		t.Error("Acquire after Close must fail")
	}
}

func TestLoaderCloseWhileLoading(t *testing.T) {
	release := make(chan struct{})
	backend := &stubBackend{}
	l := NewLoader(func(ctx context.Context) (Backend, error) {
		<-release
		return backend, nil
	}, 0)

	l.Start(context.Background())
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	close(release)

	if s := l.Wait(waitCtx(t)); s.State == StateReady {
		t.Fatal("loader became ready after Close")
	}
	if backend.closed.Load() != 1 {
		t.Errorf("backend closed %d times, want 1", backend.closed.Load())
	}
	if l.Start(context.Background()) {
		t.Error("Start after Close must be a no-op")
	}
}

func TestDecodeYOLOv8(t *testing.T) {
	// 3 anchors, 2 classes: rows = cx, cy, w, h, score0, score1
	const anchors = 3
	data := []float32{
		100, 300, 50,  // cx
		100, 300, 50,  // cy
		20, 40, 10,    // w
		40, 40, 10,    // h
		0.9, 0.1, 0.2, // class 0
		0.1, 0.8, 0.3, // class 1
	}

	got := decodeYOLOv8(data, 6, anchors, 2, 1, 0.5, nil)
	if len(got) != 2 {
		t.Fatalf("got %d detections, want 2", len(got))
	}
	if got[0].ClassID != 0 || got[0].Confidence != 0.9 {
		t.Errorf("first = %+v", got[0])
	}
	// cx=200, cy=100, w=40, h=40 after scaling x by 2
	if got[0].Box.Min.X != 180 || got[0].Box.Min.Y != 80 || got[0].Box.Dx() != 40 || got[0].Box.Dy() != 40 {
		t.Errorf("first box = %v", got[0].Box)
	}
	if got[1].ClassID != 1 {
		t.Errorf("second = %+v", got[1])
	}

	filtered := decodeYOLOv8(data, 6, anchors, 1, 1, 0.5, []int{1})
	if len(filtered) != 1 || filtered[0].ClassID != 1 {
		t.Errorf("class filter not applied: %+v", filtered)
	}
}
