package models

import "fmt"

// Frame is a decoded BGR24 frame. Index starts at 1.
type Frame struct {
	Index  int
	Width  int
	Height int
	Data   []byte
}

// Clone returns a deep copy so overlays never touch the decoded buffer
func (f Frame) Clone() Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	f.Data = data
	return f
}

// VideoMetadata is resolved once per run at probe time
type VideoMetadata struct {
	FPS        int
	Width      int
	Height     int
	FrameCount int
	// Scanned is true when FrameCount came from a full decode pass
	Scanned bool
}

// Resolution formats the geometry as WxH
func (m VideoMetadata) Resolution() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}
