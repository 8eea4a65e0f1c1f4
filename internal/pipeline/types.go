package pipeline

import (
	"context"

	"github.com/Luisfrighetto/Visao/internal/models"
)

// Source is a forward-only decoded frame sequence. Next returns io.EOF at
// end of stream.
type Source interface {
	Metadata() models.VideoMetadata
	Next() (models.Frame, error)
	Close() error
}

// Sink encodes annotated frames. A file is only valid after Close returned nil.
type Sink interface {
	Write(frame models.Frame) error
	Close() error
}

type SourceOpener func(path string) (Source, error)

type SinkOpener func(path string, fps, width, height int) (Sink, error)

// Detector runs one detection pass over a frame. classIDs restricts the
// detector output to the given classes.
type Detector interface {
	Detect(ctx context.Context, frame models.Frame, threshold float64, classIDs []int) ([]models.Detection, error)
}

// DetectorProvider hands out a ready detector or an error describing why
// none is available yet.
type DetectorProvider interface {
	Acquire() (Detector, error)
}

// Annotator renders detections and status overlays onto a copy of frame
type Annotator interface {
	Annotate(frame models.Frame, detections []models.Detection, frameIndex, framesTotal int, threshold float64) (models.Frame, error)
}

// FrameTap sees every annotated frame before it is encoded. It must not
// block and must copy what it keeps.
type FrameTap interface {
	OnFrame(runID string, frame models.Frame)
}

// Request is one analysis run
type Request struct {
	RunID      string
	InputPath  string
	Confidence float64
	// Categories restricts counting and drawing to these categories; empty means all mapped ones
	Categories []models.Category
}
