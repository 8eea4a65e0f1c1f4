package videosink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Luisfrighetto/Visao/internal/models"
)

// FFmpegOptions configures the external H.264 encoder
type FFmpegOptions struct {
	Binary string // default "ffmpeg"
	Preset string // default "medium"
	CRF    int    // default 23
	// StopTimeout bounds the wait for ffmpeg to finish the container on Close
	StopTimeout time.Duration
}

// FFmpegSink pipes raw bgr24 frames into an ffmpeg process. Unlike the OpenCV
// sink it produces H.264 with the moov atom up front, playable in browsers.
type FFmpegSink struct {
	path    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *tailBuffer
	width   int
	height  int
	written int
	closed  bool
	timeout time.Duration
	logger  zerolog.Logger
}

func OpenFFmpeg(path string, fps, width, height int, opts FFmpegOptions) (*FFmpegSink, error) {
	if fps <= 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output geometry %dx%d at %d fps", width, height, fps)
	}
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Preset == "" {
		opts.Preset = "medium"
	}
	if opts.CRF <= 0 {
		opts.CRF = 23
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}

	bin, err := exec.LookPath(opts.Binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	frameSize := fmt.Sprintf("%dx%d", width, height)
	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", frameSize,
		"-r", strconv.Itoa(fps),
		"-i", "-", // Read from stdin
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-loglevel", "warning",
		"-y",
		path,
	}

	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	logger := log.With().Str("service", "videosink").Str("path", path).Logger()
	logger.Info().
		Str("encoder", "ffmpeg").
		Str("frame_size", frameSize).
		Int("fps", fps).
		Str("preset", opts.Preset).
		Int("crf", opts.CRF).
		Msg("Video sink opened")

	return &FFmpegSink{
		path:    path,
		cmd:     cmd,
		stdin:   stdin,
		stderr:  stderr,
		width:   width,
		height:  height,
		timeout: opts.StopTimeout,
		logger:  logger,
	}, nil
}

func (s *FFmpegSink) Write(frame models.Frame) error {
	if s.closed {
		return ErrClosed
	}
	if frame.Width != s.width || frame.Height != s.height {
		return fmt.Errorf("frame %d is %dx%d, sink expects %dx%d", frame.Index, frame.Width, frame.Height, s.width, s.height)
	}
	if len(frame.Data) != s.width*s.height*3 {
		return fmt.Errorf("frame %d has %d bytes, expected %d", frame.Index, len(frame.Data), s.width*s.height*3)
	}

	if _, err := s.stdin.Write(frame.Data); err != nil {
		return fmt.Errorf("failed to write frame %d to ffmpeg: %w%s", frame.Index, err, s.stderr.suffix())
	}
	s.written++
	return nil
}

// Close ends the input and waits for ffmpeg to finalize the file. A non-zero
// exit is an error so the caller discards the output.
func (s *FFmpegSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	stdinErr := s.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(s.timeout):
		if kerr := s.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			s.logger.Warn().Err(kerr).Msg("Failed to kill ffmpeg")
		}
		<-done
		err = fmt.Errorf("ffmpeg did not finish within %s", s.timeout)
	}
	if err == nil && stdinErr != nil {
		err = stdinErr
	}
	if err != nil {
		return fmt.Errorf("failed to finalize %s: %w%s", s.path, err, s.stderr.suffix())
	}

	s.logger.Debug().Int("frames_written", s.written).Msg("Video sink closed")
	return nil
}

func (s *FFmpegSink) FramesWritten() int {
	return s.written
}

// tailBuffer keeps the last max bytes of ffmpeg's stderr for error messages
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}

func (t *tailBuffer) suffix() string {
	if s := t.String(); s != "" {
		return ": " + s
	}
	return ""
}
