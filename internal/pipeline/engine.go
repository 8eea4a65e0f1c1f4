package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Luisfrighetto/Visao/internal/logging"
	"github.com/Luisfrighetto/Visao/internal/models"
	"github.com/Luisfrighetto/Visao/internal/services/stats"
)

// Options wires the engine to its collaborators
type Options struct {
	ResultsDir string
	Categories models.CategoryMap
	OpenSource SourceOpener
	OpenSink   SinkOpener
	Detectors  DetectorProvider
	Annotator  Annotator
	Observer   Observer
	FrameTap   FrameTap
	// DetectTimeout bounds a single detector call; 0 means no bound
	DetectTimeout time.Duration
	Logger        *zerolog.Logger
	Now           func() time.Time
}

// Engine runs analyses. It is safe to call Run concurrently; each run owns
// its own source, sink and aggregator.
type Engine struct {
	resultsDir    string
	categories    models.CategoryMap
	openSource    SourceOpener
	openSink      SinkOpener
	detectors     DetectorProvider
	annotator     Annotator
	observer      Observer
	tap           FrameTap
	detectTimeout time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

func New(opts Options) (*Engine, error) {
	switch {
	case opts.ResultsDir == "":
		return nil, errors.New("results directory is required")
	case len(opts.Categories) == 0:
		return nil, errors.New("category map is required")
	case opts.OpenSource == nil || opts.OpenSink == nil:
		return nil, errors.New("source and sink openers are required")
	case opts.Detectors == nil:
		return nil, errors.New("detector provider is required")
	case opts.Annotator == nil:
		return nil, errors.New("annotator is required")
	}

	e := &Engine{
		resultsDir:    opts.ResultsDir,
		categories:    opts.Categories,
		openSource:    opts.OpenSource,
		openSink:      opts.OpenSink,
		detectors:     opts.Detectors,
		annotator:     opts.Annotator,
		observer:      opts.Observer,
		tap:           opts.FrameTap,
		detectTimeout: opts.DetectTimeout,
		logger:        log.With().Str("service", "pipeline").Logger(),
		now:           opts.Now,
	}
	if opts.Logger != nil {
		e.logger = *opts.Logger
	}
	if e.observer == nil {
		e.observer = Observers{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Run analyzes one input file. It returns the artifact of a completed run or
// a *RunError; a failed run leaves no output files behind.
func (e *Engine) Run(ctx context.Context, req Request) (*models.OutputArtifact, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	r := &run{
		engine: e,
		req:    req,
		logger: logging.WithRun(e.logger, req.RunID).With().Str("input", req.InputPath).Logger(),
	}
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	artifact, err := r.execute(ctx)
	if err != nil {
		r.fail(err)
		return nil, err
	}
	return artifact, nil
}

type run struct {
	engine     *Engine
	req        Request
	categories models.CategoryMap
	classIDs   []int
	state      State
	meta       models.VideoMetadata
	frame      int
	failures   int
	started    time.Time
	logger     zerolog.Logger

	src        Source
	sink       Sink
	srcClosed  bool
	sinkClosed bool

	// output is removed on exit unless committed
	output    string
	committed bool
}

func (r *run) execute(ctx context.Context) (*models.OutputArtifact, error) {
	defer r.cleanup()
	defer r.release()

	if err := r.validate(); err != nil {
		return nil, err
	}

	detector, err := r.engine.detectors.Acquire()
	if err != nil {
		return nil, r.fatal(ErrDetectorUnavailable, "", err)
	}

	r.transition(StateProbing)
	src, err := r.engine.openSource(r.req.InputPath)
	if err != nil {
		return nil, r.fatal(ErrUnreadableSource, r.req.InputPath, err)
	}
	r.src = src
	r.meta = src.Metadata()
	if r.meta.FPS <= 0 || r.meta.Width <= 0 || r.meta.Height <= 0 {
		return nil, r.fatal(ErrUnreadableSource, r.req.InputPath, fmt.Errorf("invalid metadata %+v", r.meta))
	}
	if r.meta.Scanned {
		r.logger.Info().Int("frame_count", r.meta.FrameCount).Msg("Frame count resolved by full scan")
	}

	names := r.engine.outputPaths(r.req)
	if err := os.MkdirAll(r.engine.resultsDir, 0o755); err != nil {
		return nil, r.fatal(ErrUnwritableSink, r.engine.resultsDir, err)
	}
	r.output = names.partial
	sink, err := r.engine.openSink(names.partial, r.meta.FPS, r.meta.Width, r.meta.Height)
	if err != nil {
		return nil, r.fatal(ErrUnwritableSink, names.video, err)
	}
	r.sink = sink

	r.transition(StateRunning)
	agg := stats.NewAggregator()
	r.started = r.engine.now()
	if err := r.loop(ctx, detector, agg); err != nil {
		return nil, err
	}
	elapsed := r.engine.now().Sub(r.started)

	r.transition(StateFinalizing)
	if err := r.release(); err != nil {
		return nil, r.fatal(ErrUnwritableSink, names.video, err)
	}
	if r.frame != r.meta.FrameCount {
		r.logger.Warn().
			Int("frames_probed", r.meta.FrameCount).
			Int("frames_processed", r.frame).
			Msg("Processed frame count differs from probed count")
		// A container that under-reports its length is corrected by the decode
		if r.frame > r.meta.FrameCount {
			r.meta.FrameCount = r.frame
		}
	}
	statistics, err := agg.Finalize(r.frame, elapsed, r.meta, r.failures)
	if err != nil {
		return nil, r.fatal(ErrPersist, names.stats, err)
	}

	if err := os.Rename(names.partial, names.video); err != nil {
		return nil, r.fatal(ErrUnwritableSink, names.video, err)
	}
	r.output = names.video
	if err := stats.WriteSidecar(names.stats, statistics); err != nil {
		return nil, r.fatal(ErrPersist, names.stats, err)
	}
	r.committed = true

	r.transition(StateCompleted)
	r.logger.Info().
		Str("video", names.video).
		Str("stats", names.stats).
		Int("frames", statistics.FramesProcessed).
		Int("max_players", statistics.MaxPlayers).
		Int("balls", statistics.BallsDetected).
		Int("detection_failures", statistics.DetectionFailures).
		Float64("elapsed_seconds", statistics.ElapsedSeconds).
		Msg("Analysis completed")

	return &models.OutputArtifact{
		RunID:      r.req.RunID,
		VideoPath:  names.video,
		StatsPath:  names.stats,
		Statistics: statistics,
	}, nil
}

func (r *run) validate() error {
	if strings.TrimSpace(r.req.InputPath) == "" {
		return r.fatal(ErrInvalidRequest, "", errors.New("input path is empty"))
	}
	if strings.ContainsAny(r.req.RunID, `/\`) || strings.HasPrefix(r.req.RunID, ".") {
		return r.fatal(ErrInvalidRequest, "", fmt.Errorf("run id %q is not a plain name", r.req.RunID))
	}
	c := r.req.Confidence
	if math.IsNaN(c) || c <= 0 || c > 1 {
		return r.fatal(ErrInvalidRequest, "", fmt.Errorf("confidence %v outside (0, 1]", c))
	}

	r.categories = r.engine.categories
	if len(r.req.Categories) > 0 {
		wanted := map[models.Category]bool{}
		for _, c := range r.req.Categories {
			wanted[c] = true
		}
		r.categories = models.CategoryMap{}
		for id, c := range r.engine.categories {
			if wanted[c] {
				r.categories[id] = c
			}
		}
		if len(r.categories) == 0 {
			return r.fatal(ErrInvalidRequest, "", fmt.Errorf("no detector classes map to %v", r.req.Categories))
		}
	}
	r.classIDs = r.categories.ClassIDs()
	return nil
}

func (r *run) loop(ctx context.Context, detector Detector, agg *stats.Aggregator) error {
	total := r.meta.FrameCount
	interval := progressInterval(total)

	for {
		if err := ctx.Err(); err != nil {
			return r.fatal(ErrCanceled, "", err)
		}

		frame, err := r.src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return r.fatal(ErrUnreadableSource, r.req.InputPath, err)
		}
		r.frame++
		frame.Index = r.frame

		detections, derr := r.detect(ctx, detector, frame)
		if derr != nil {
			if err := ctx.Err(); err != nil {
				return r.fatal(ErrCanceled, "", err)
			}
			r.failures++
			r.logger.Warn().Err(derr.Err).Int("frame", derr.Frame).Msg("Detection failed, writing frame without detections")
		}

		if err := agg.Observe(models.FrameResult{Index: frame.Index, Detections: detections}); err != nil {
			return r.fatal(ErrPersist, "", err)
		}

		annotated, err := r.engine.annotator.Annotate(frame, detections, frame.Index, total, r.req.Confidence)
		if err != nil {
			return r.fatal(ErrAnnotation, "", fmt.Errorf("frame %d: %w", frame.Index, err))
		}
		if r.engine.tap != nil {
			r.engine.tap.OnFrame(r.req.RunID, annotated)
		}
		if err := r.sink.Write(annotated); err != nil {
			return r.fatal(ErrUnwritableSink, r.output, err)
		}

		if r.frame%interval == 0 {
			r.emit(StateRunning, "")
		}
	}
}

// detect returns categorized detections or a recoverable *DetectionError.
// A panicking detector only loses its frame.
func (r *run) detect(ctx context.Context, detector Detector, frame models.Frame) (dets []models.Detection, derr *DetectionError) {
	defer func() {
		if p := recover(); p != nil {
			dets, derr = nil, &DetectionError{Frame: frame.Index, Err: fmt.Errorf("detector panic: %v", p)}
		}
	}()

	if r.engine.detectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.engine.detectTimeout)
		defer cancel()
	}

	raw, err := detector.Detect(ctx, frame, r.req.Confidence, r.classIDs)
	if err != nil {
		return nil, &DetectionError{Frame: frame.Index, Err: err}
	}

	accepted := raw[:0:0]
	for _, d := range raw {
		// float32 like the detectors, so a score equal to the threshold is kept
		if d.Confidence >= float32(r.req.Confidence) {
			accepted = append(accepted, d)
		}
	}
	return r.categories.Resolve(accepted), nil
}

// release closes the sink then the source. Safe to call more than once; the
// sink error is returned because it decides whether the output is valid.
func (r *run) release() error {
	var sinkErr error
	if r.sink != nil && !r.sinkClosed {
		r.sinkClosed = true
		sinkErr = r.sink.Close()
	}
	if r.src != nil && !r.srcClosed {
		r.srcClosed = true
		if err := r.src.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to close video source")
		}
	}
	return sinkErr
}

func (r *run) cleanup() {
	if r.committed || r.output == "" {
		return
	}
	if err := os.Remove(r.output); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn().Err(err).Str("path", r.output).Msg("Failed to remove incomplete output")
	}
}

func (r *run) fatal(kind error, path string, err error) error {
	return &RunError{Kind: kind, State: r.state, Path: path, Err: err}
}

func (r *run) fail(err error) {
	r.state = StateFailed
	r.logger.Error().Err(err).Int("frame", r.frame).Msg("Analysis failed")
	r.emit(StateFailed, err.Error())
}

func (r *run) transition(s State) {
	r.state = s
	r.logger.Debug().Str("state", s.String()).Msg("Run state changed")
	r.emit(s, "")
}

func (r *run) emit(s State, errMsg string) {
	now := r.engine.now()
	e := Event{
		RunID:             r.req.RunID,
		Input:             filepath.Base(r.req.InputPath),
		State:             s,
		Frame:             r.frame,
		Total:             r.meta.FrameCount,
		Percent:           percent(r.frame, r.meta.FrameCount),
		DetectionFailures: r.failures,
		Error:             errMsg,
		Time:              now,
	}
	if !r.started.IsZero() {
		e.ElapsedSeconds = now.Sub(r.started).Seconds()
	}
	if s == StateCompleted {
		e.Percent = 100
	}
	r.engine.observer.OnProgress(e)
}

type outputPaths struct {
	partial string
	video   string
	stats   string
}

// outputPaths derives processed_<stem>_<unix>.{mp4,json}. The run id is
// appended when a file with that name already exists.
func (e *Engine) outputPaths(req Request) outputPaths {
	stem := strings.TrimSuffix(filepath.Base(req.InputPath), filepath.Ext(req.InputPath))
	base := fmt.Sprintf("processed_%s_%d", stem, e.now().Unix())
	if _, err := os.Stat(filepath.Join(e.resultsDir, base+".mp4")); err == nil {
		base = fmt.Sprintf("%s_%s", base, shortID(req.RunID))
	}
	return outputPaths{
		partial: filepath.Join(e.resultsDir, fmt.Sprintf(".partial-%s-%s.mp4", shortID(req.RunID), base)),
		video:   filepath.Join(e.resultsDir, base+".mp4"),
		stats:   filepath.Join(e.resultsDir, base+".json"),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
