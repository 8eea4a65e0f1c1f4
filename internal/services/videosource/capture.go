package videosource

import (
	"fmt"

	"gocv.io/x/gocv"
)

// capture is the subset of a decoder the source needs
type capture interface {
	property(prop gocv.VideoCaptureProperties) float64
	// rewind seeks to the first frame and reports whether the backend honored it
	rewind() bool
	read() (data []byte, width, height int, ok bool)
	close() error
}

type gocvCapture struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
	bgr gocv.Mat
}

func openGocv(path string) (capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture is not opened for %s", path)
	}
	return &gocvCapture{vc: vc, mat: gocv.NewMat(), bgr: gocv.NewMat()}, nil
}

func (c *gocvCapture) property(prop gocv.VideoCaptureProperties) float64 {
	return c.vc.Get(prop)
}

func (c *gocvCapture) rewind() bool {
	c.vc.Set(gocv.VideoCapturePosFrames, 0)
	return c.vc.Get(gocv.VideoCapturePosFrames) == 0
}

func (c *gocvCapture) read() ([]byte, int, int, bool) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, 0, 0, false
	}

	// Frames leave the source as BGR24 regardless of decoder output
	img := c.mat
	switch c.mat.Channels() {
	case 1:
		gocv.CvtColor(c.mat, &c.bgr, gocv.ColorGrayToBGR)
		img = c.bgr
	case 4:
		gocv.CvtColor(c.mat, &c.bgr, gocv.ColorBGRAToBGR)
		img = c.bgr
	}
	return img.ToBytes(), img.Cols(), img.Rows(), true
}

func (c *gocvCapture) close() error {
	c.mat.Close()
	c.bgr.Close()
	return c.vc.Close()
}
