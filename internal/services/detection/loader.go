package detection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Luisfrighetto/Visao/internal/models"
	"github.com/Luisfrighetto/Visao/internal/pipeline"
)

// Backend is a loaded detector that owns native or network resources
type Backend interface {
	pipeline.Detector
	Close() error
}

// LoadFunc builds a backend. It may block for a long time.
type LoadFunc func(ctx context.Context) (Backend, error)

type status struct {
	Snapshot
	backend Backend
	done    chan struct{}
}

// Loader loads the detector in the background and gates access on readiness.
// State and backend are swapped together so readers never see a partial update.
type Loader struct {
	load       LoadFunc
	warmupSize int
	current    atomic.Pointer[status]
	mu         sync.Mutex
	closed     bool
	logger     zerolog.Logger
}

// NewLoader returns a loader in NotStarted. warmupSize is the side of the
// blank frame used to exercise the backend once after loading; 0 skips it.
func NewLoader(load LoadFunc, warmupSize int) *Loader {
	l := &Loader{
		load:       load,
		warmupSize: warmupSize,
		logger:     log.With().Str("service", "detector-loader").Logger(),
	}
	l.current.Store(&status{Snapshot: Snapshot{State: StateNotStarted}})
	return l
}

// Start begins loading in a goroutine. It is a no-op while Loading or Ready
// and after Close; from Failed it retries.
func (l *Loader) Start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	switch l.current.Load().State {
	case StateLoading, StateReady:
		return false
	}

	st := &status{Snapshot: Snapshot{State: StateLoading}, done: make(chan struct{})}
	l.current.Store(st)
	go l.run(ctx, st.done)
	return true
}

// Load starts loading if needed and waits for the outcome
func (l *Loader) Load(ctx context.Context) error {
	l.Start(ctx)
	snap := l.Wait(ctx)
	switch snap.State {
	case StateReady:
		return nil
	case StateFailed:
		return &UnavailableError{State: snap.State, Reason: snap.Reason}
	default:
		return ctx.Err()
	}
}

func (l *Loader) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	start := time.Now()
	l.logger.Info().Msg("Loading detection model")

	backend, err := l.load(ctx)
	if err == nil {
		err = l.warmup(ctx, backend)
		if err != nil {
			backend.Close()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		// Closed while loading, so the backend is never published
		if err == nil {
			backend.Close()
		}
		l.current.Store(&status{Snapshot: Snapshot{State: StateNotStarted}})
		return
	}
	if err != nil {
		l.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Detection model failed to load")
		l.current.Store(&status{Snapshot: Snapshot{State: StateFailed, Reason: err.Error()}})
		return
	}

	l.current.Store(&status{Snapshot: Snapshot{State: StateReady}, backend: backend})
	l.logger.Info().Dur("duration", time.Since(start)).Msg("Detection model ready")
}

func (l *Loader) warmup(ctx context.Context, backend Backend) error {
	if l.warmupSize <= 0 {
		return nil
	}
	n := l.warmupSize
	frame := models.Frame{Width: n, Height: n, Data: make([]byte, n*n*3)}
	if _, err := backend.Detect(ctx, frame, 0.5, nil); err != nil {
		return fmt.Errorf("warm-up inference failed: %w", err)
	}
	return nil
}

func (l *Loader) Snapshot() Snapshot {
	return l.current.Load().Snapshot
}

// Wait blocks until the current load attempt ends or ctx is done
func (l *Loader) Wait(ctx context.Context) Snapshot {
	st := l.current.Load()
	if st.State != StateLoading {
		return st.Snapshot
	}
	select {
	case <-st.done:
	case <-ctx.Done():
	}
	return l.Snapshot()
}

// Acquire returns the backend when Ready, otherwise an *UnavailableError
func (l *Loader) Acquire() (pipeline.Detector, error) {
	st := l.current.Load()
	if st.State != StateReady {
		return nil, &UnavailableError{State: st.State, Reason: st.Reason}
	}
	return st.backend, nil
}

// Close releases the backend. A load still in flight closes its backend
// when it finishes.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	st := l.current.Load()
	if st.backend == nil {
		return nil
	}
	l.current.Store(&status{Snapshot: Snapshot{State: StateNotStarted}})
	return st.backend.Close()
}
