package helpers

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/Luisfrighetto/Visao/internal/models"
)

// JPEG quality settings
const (
	HighQuality   = 95
	MediumQuality = 75
)

// ValidateFrame checks that the buffer holds exactly Width*Height BGR pixels
func ValidateFrame(f models.Frame) error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame geometry %dx%d", f.Width, f.Height)
	}
	if want := f.Width * f.Height * 3; len(f.Data) != want {
		return fmt.Errorf("frame %d has %d bytes, want %d for %dx%d BGR", f.Index, len(f.Data), want, f.Width, f.Height)
	}
	return nil
}

// FrameToMat wraps a BGR frame in a Mat. The caller closes it.
func FrameToMat(f models.Frame) (gocv.Mat, error) {
	if err := ValidateFrame(f); err != nil {
		return gocv.NewMat(), err
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create Mat from BGR data: %w", err)
	}
	return mat, nil
}

// MatToFrame copies a BGR Mat back into a frame
func MatToFrame(mat gocv.Mat, index int) models.Frame {
	return models.Frame{
		Index:  index,
		Width:  mat.Cols(),
		Height: mat.Rows(),
		Data:   mat.ToBytes(),
	}
}

// EncodeJPEG converts a BGR frame to JPEG bytes
func EncodeJPEG(f models.Frame, quality int) ([]byte, error) {
	mat, err := FrameToMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode BGR as JPEG: %w", err)
	}
	defer buf.Close()

	// GetBytes points into native memory released by Close
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
