package mjpeg

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/Luisfrighetto/Visao/internal/helpers"
	"github.com/Luisfrighetto/Visao/internal/models"
	"github.com/Luisfrighetto/Visao/internal/pipeline"
)

const boundary = "frame"

type Options struct {
	Quality int
	// MinInterval is the minimum time between two encoded frames of a run
	MinInterval time.Duration
	// Keepalive resends the latest frame so idle connections stay open
	Keepalive time.Duration
	// IdleTimeout ends a stream whose run shows no frames or progress, such as
	// a run that already finished or never starts
	IdleTimeout time.Duration
}

// Publisher serves the annotated frames of running analyses as MJPEG.
// Frames are only encoded while someone is watching the run.
type Publisher struct {
	opts   Options
	mu     sync.Mutex
	runs   map[string]*stream
	now    func() time.Time
	logger zerolog.Logger
}

type stream struct {
	latest   []byte
	version  int
	encoded  time.Time
	watchers int
	finished bool
	active   time.Time     // last frame or progress event of the run
	changed  chan struct{} // closed and replaced on every new frame
	done     chan struct{} // closed when the run reaches a terminal state
}

func NewPublisher(opts Options) *Publisher {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = helpers.MediumQuality
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 200 * time.Millisecond
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = 2 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = time.Minute
	}
	return &Publisher{
		opts:   opts,
		runs:   make(map[string]*stream),
		now:    time.Now,
		logger: log.With().Str("service", "mjpeg-publisher").Logger(),
	}
}

// OnFrame implements pipeline.FrameTap
func (p *Publisher) OnFrame(runID string, frame models.Frame) {
	p.mu.Lock()
	s, ok := p.runs[runID]
	if ok {
		s.active = p.now()
	}
	if !ok || s.watchers == 0 || s.finished || p.now().Sub(s.encoded) < p.opts.MinInterval {
		p.mu.Unlock()
		return
	}
	s.encoded = p.now()
	p.mu.Unlock()

	jpeg, err := helpers.EncodeJPEG(frame, p.opts.Quality)
	if err != nil {
		p.logger.Debug().Err(err).Str("run_id", runID).Int("frame", frame.Index).Msg("Preview frame dropped")
		return
	}

	p.mu.Lock()
	s.latest = jpeg
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	p.mu.Unlock()
}

// OnProgress implements pipeline.Observer; it ends the streams of finished runs
func (p *Publisher) OnProgress(e pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.runs[e.RunID]
	if !ok {
		return
	}
	s.active = p.now()
	if e.State.Terminal() && !s.finished {
		s.finished = true
		close(s.done)
	}
}

// Watchers is the number of open streams for a run
func (p *Publisher) Watchers(runID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.runs[runID]; ok {
		return s.watchers
	}
	return 0
}

func (p *Publisher) subscribe(runID string) *stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.runs[runID]
	if !ok {
		s = &stream{changed: make(chan struct{}), done: make(chan struct{}), active: p.now()}
		p.runs[runID] = s
	}
	s.watchers++
	return s
}

func (p *Publisher) unsubscribe(runID string, s *stream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.watchers--
	if s.watchers <= 0 && p.runs[runID] == s {
		delete(p.runs, runID)
	}
}

// StreamMJPEGHTTP writes multipart JPEG parts until the client leaves or the
// run finishes or goes idle. A run that has not produced a frame yet shows a
// placeholder.
func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, runID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := p.subscribe(runID)
	defer p.unsubscribe(runID, s)

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	sent := 0
	// sendLatest writes the newest frame; force resends it for keepalive
	sendLatest := func(force bool) bool {
		p.mu.Lock()
		jpeg, version := s.latest, s.version
		p.mu.Unlock()
		if len(jpeg) == 0 || (version == sent && !force) {
			return true
		}
		sent = version
		return writePart(jpeg)
	}

	if !sendLatest(false) {
		return
	}
	if sent == 0 {
		if placeholder, err := placeholderJPEG(runID); err == nil {
			if !writePart(placeholder) {
				return
			}
		}
	}

	keepaliveTicker := time.NewTicker(p.opts.Keepalive)
	defer keepaliveTicker.Stop()
	idleTicker := time.NewTicker(p.opts.IdleTimeout)
	defer idleTicker.Stop()

	ctx := r.Context()
	for {
		p.mu.Lock()
		changed := s.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			sendLatest(false)
			return
		case <-changed:
			if !sendLatest(false) {
				return
			}
		case <-keepaliveTicker.C:
			if !sendLatest(true) {
				return
			}
		case <-idleTicker.C:
			p.mu.Lock()
			idle := p.now().Sub(s.active)
			p.mu.Unlock()
			if idle >= p.opts.IdleTimeout {
				p.logger.Debug().Str("run_id", runID).Dur("idle", idle).Msg("Preview stream idle, closing")
				return
			}
		}
	}
}

func placeholderJPEG(runID string) ([]byte, error) {
	placeholder := gocv.NewMatWithSize(360, 640, gocv.MatTypeCV8UC3)
	defer placeholder.Close()

	placeholder.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})

	if len(runID) > 8 {
		runID = runID[:8]
	}
	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.PutText(&placeholder, fmt.Sprintf("Run: %s", runID),
		image.Pt(20, 180), gocv.FontHersheySimplex, 1.0, textColor, 2)
	gocv.PutText(&placeholder, "Waiting for frames...",
		image.Pt(20, 220), gocv.FontHersheySimplex, 0.8, textColor, 2)

	return helpers.EncodeJPEG(helpers.MatToFrame(placeholder, 0), helpers.MediumQuality)
}
