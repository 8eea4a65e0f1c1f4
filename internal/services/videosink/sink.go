package videosink

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/Luisfrighetto/Visao/internal/helpers"
	"github.com/Luisfrighetto/Visao/internal/models"
)

const DefaultCodec = "mp4v"

var ErrClosed = errors.New("sink closed")

// Sink encodes frames into a container with fixed geometry. The file is only
// complete after Close returns nil.
type Sink struct {
	path    string
	writer  *gocv.VideoWriter
	width   int
	height  int
	written int
	closed  bool
	logger  zerolog.Logger
}

// Open creates the output container. codec is a fourcc such as mp4v or avc1.
func Open(path string, fps, width, height int, codec string) (*Sink, error) {
	if fps <= 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output geometry %dx%d at %d fps", width, height, fps)
	}
	if codec == "" {
		codec = DefaultCodec
	}
	if len(codec) != 4 {
		return nil, fmt.Errorf("codec %q is not a fourcc", codec)
	}

	writer, err := gocv.VideoWriterFile(path, codec, float64(fps), width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder for %s: %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("encoder %s is not available for %dx%d", codec, width, height)
	}

	logger := log.With().Str("service", "videosink").Str("path", path).Logger()
	logger.Info().
		Str("codec", codec).
		Int("fps", fps).
		Int("width", width).
		Int("height", height).
		Msg("Video sink opened")

	return &Sink{
		path:   path,
		writer: writer,
		width:  width,
		height: height,
		logger: logger,
	}, nil
}

// Write encodes one frame. A frame with another geometry is rejected.
func (s *Sink) Write(frame models.Frame) error {
	if s.closed {
		return ErrClosed
	}
	if frame.Width != s.width || frame.Height != s.height {
		return fmt.Errorf("frame %d is %dx%d, sink expects %dx%d", frame.Index, frame.Width, frame.Height, s.width, s.height)
	}

	mat, err := helpers.FrameToMat(frame)
	if err != nil {
		return err
	}
	defer mat.Close()

	if err := s.writer.Write(mat); err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", frame.Index, err)
	}
	s.written++
	return nil
}

// Close flushes and finalizes the container. Calling it again is a no-op.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", s.path, err)
	}
	s.logger.Debug().Int("frames_written", s.written).Msg("Video sink closed")
	return nil
}

func (s *Sink) FramesWritten() int {
	return s.written
}
