package stats

import (
	"errors"
	"time"

	"github.com/Luisfrighetto/Visao/internal/models"
)

var ErrFinalized = errors.New("statistics already finalized")

// Aggregator folds per-frame counts into run statistics. It belongs to a
// single run and is not safe for concurrent use.
type Aggregator struct {
	maxPlayers int
	sumPlayers int
	balls      int
	observed   int
	lastIndex  int
	finalized  bool
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Observe adds one frame. Frames must arrive in increasing index order.
func (a *Aggregator) Observe(result models.FrameResult) error {
	if a.finalized {
		return ErrFinalized
	}
	if a.observed > 0 && result.Index <= a.lastIndex {
		return errors.New("frame results out of order")
	}

	players := result.Count(models.CategoryPlayer)
	if players > a.maxPlayers {
		a.maxPlayers = players
	}
	a.sumPlayers += players
	a.balls += result.Count(models.CategoryBall)
	a.observed++
	a.lastIndex = result.Index
	return nil
}

// Finalize computes the summary. Mean is taken over framesProcessed,
// zero-detection frames included.
func (a *Aggregator) Finalize(framesProcessed int, elapsed time.Duration, meta models.VideoMetadata, failures int) (models.RunStatistics, error) {
	if a.finalized {
		return models.RunStatistics{}, ErrFinalized
	}
	a.finalized = true

	var mean float64
	if framesProcessed > 0 {
		mean = float64(a.sumPlayers) / float64(framesProcessed)
	}

	return models.RunStatistics{
		MaxPlayers:        a.maxPlayers,
		MeanPlayers:       mean,
		BallsDetected:     a.balls,
		FramesProbed:      meta.FrameCount,
		FramesProcessed:   framesProcessed,
		FPS:               meta.FPS,
		Resolution:        meta.Resolution(),
		ElapsedSeconds:    elapsed.Seconds(),
		DetectionFailures: failures,
	}, nil
}
