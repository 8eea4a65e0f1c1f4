package pipeline

import (
	"time"

	"github.com/rs/zerolog"
)

// Event is a progress notification. Observers are called synchronously from
// the run loop and must not block for long.
type Event struct {
	RunID             string    `json:"run_id"`
	Input             string    `json:"input"`
	State             State     `json:"state"`
	Frame             int       `json:"frame"`
	Total             int       `json:"total"`
	Percent           float64   `json:"percent"`
	ElapsedSeconds    float64   `json:"elapsed_seconds"`
	DetectionFailures int       `json:"detection_failures"`
	Error             string    `json:"error,omitempty"`
	Time              time.Time `json:"time"`
}

type Observer interface {
	OnProgress(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnProgress(e Event) { f(e) }

// Observers fans an event out in order
type Observers []Observer

func (o Observers) OnProgress(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnProgress(e)
		}
	}
}

// LogObserver writes progress to a zerolog logger
type LogObserver struct {
	Logger zerolog.Logger
}

func (l LogObserver) OnProgress(e Event) {
	var ev *zerolog.Event
	switch e.State {
	case StateFailed:
		ev = l.Logger.Error().Str("error", e.Error)
	case StateRunning:
		ev = l.Logger.Debug()
	default:
		ev = l.Logger.Info()
	}
	ev.Str("run_id", e.RunID).
		Str("state", e.State.String()).
		Int("frame", e.Frame).
		Int("total", e.Total).
		Float64("percent", e.Percent).
		Int("detection_failures", e.DetectionFailures).
		Msg("Analysis progress")
}

// progressInterval is the number of frames between progress events
func progressInterval(total int) int {
	if total <= 0 {
		return 100
	}
	return max(1, min(100, total/10))
}

func percent(frame, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(frame) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
