package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrDetectorUnavailable = errors.New("detector unavailable")
	ErrUnreadableSource    = errors.New("unreadable source")
	ErrUnwritableSink      = errors.New("unwritable sink")
	ErrAnnotation          = errors.New("annotation failed")
	ErrPersist             = errors.New("statistics not persisted")
	ErrCanceled            = errors.New("run canceled")
)

// RunError is the fatal outcome of a run. errors.Is matches both Kind and the
// underlying cause.
type RunError struct {
	Kind  error
	State State
	Path  string
	Err   error
}

func (e *RunError) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RunError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// DetectionError is a failed detector call for a single frame. It is absorbed
// by the loop: the frame is written with no detections and counted.
type DetectionError struct {
	Frame int
	Err   error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed on frame %d: %v", e.Frame, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }
