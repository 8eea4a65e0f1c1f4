package videosource

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/Luisfrighetto/Visao/internal/models"
)

// DefaultFPS is used when the container does not report a frame rate
const DefaultFPS = 30

var (
	ErrNoVideoStream = errors.New("no decodable video stream")
	ErrClosed        = errors.New("source closed")
)

// Source decodes an input file frame by frame. It is forward only and owned
// by a single run.
type Source struct {
	path   string
	open   func(string) (capture, error)
	cap    capture
	meta   models.VideoMetadata
	index  int
	closed bool
	logger zerolog.Logger
}

// Open opens path and resolves its metadata. When the container reports no
// frame count the whole file is decoded once to count frames before the
// source is handed out.
func Open(path string) (*Source, error) {
	return open(path, openGocv)
}

func open(path string, opener func(string) (capture, error)) (*Source, error) {
	c, err := opener(path)
	if err != nil {
		return nil, err
	}

	s := &Source{
		path:   path,
		open:   opener,
		cap:    c,
		logger: log.With().Str("service", "videosource").Str("path", path).Logger(),
	}
	if err := s.probe(); err != nil {
		if s.cap != nil {
			s.cap.close()
		}
		return nil, err
	}
	return s, nil
}

func (s *Source) probe() error {
	fps := int(math.Round(s.cap.property(gocv.VideoCaptureFPS)))
	if fps <= 0 {
		s.logger.Warn().Int("reported_fps", fps).Int("fps", DefaultFPS).Msg("Container reports no frame rate, using default")
		fps = DefaultFPS
	}

	width := int(s.cap.property(gocv.VideoCaptureFrameWidth))
	height := int(s.cap.property(gocv.VideoCaptureFrameHeight))
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: geometry %dx%d", ErrNoVideoStream, width, height)
	}

	count := int(s.cap.property(gocv.VideoCaptureFrameCount))
	scanned := false
	if count <= 0 {
		var err error
		if count, err = s.scan(); err != nil {
			return err
		}
		scanned = true
	}

	s.meta = models.VideoMetadata{
		FPS:        fps,
		Width:      width,
		Height:     height,
		FrameCount: count,
		Scanned:    scanned,
	}

	s.logger.Info().
		Int("fps", fps).
		Str("resolution", s.meta.Resolution()).
		Int("frame_count", count).
		Bool("scanned", scanned).
		Msg("Video source opened")
	return nil
}

// scan counts frames by decoding to the end, then returns to the first frame.
// This decodes the file twice for such inputs.
func (s *Source) scan() (int, error) {
	s.logger.Warn().Msg("Container reports no frame count, scanning whole file")
	start := time.Now()

	n := 0
	for {
		if _, _, _, ok := s.cap.read(); !ok {
			break
		}
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no frames decoded", ErrNoVideoStream)
	}

	if !s.cap.rewind() {
		s.logger.Debug().Msg("Backend refused to rewind, reopening capture")
		s.cap.close()
		s.cap = nil
		c, err := s.open(s.path)
		if err != nil {
			return 0, fmt.Errorf("failed to reopen after scan: %w", err)
		}
		s.cap = c
	}

	s.logger.Info().
		Int("frame_count", n).
		Dur("scan_duration", time.Since(start)).
		Msg("Frame count resolved by scan")
	return n, nil
}

func (s *Source) Metadata() models.VideoMetadata {
	return s.meta
}

// Next returns the next frame, numbered from 1, or io.EOF at end of stream
func (s *Source) Next() (models.Frame, error) {
	if s.closed {
		return models.Frame{}, ErrClosed
	}
	data, width, height, ok := s.cap.read()
	if !ok {
		return models.Frame{}, io.EOF
	}
	s.index++
	return models.Frame{Index: s.index, Width: width, Height: height, Data: data}, nil
}

// Close releases the decoder. Calling it again is a no-op.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cap.close()
}
