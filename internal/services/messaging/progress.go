package messaging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Luisfrighetto/Visao/internal/pipeline"
)

// Publisher is the part of Service the progress observer needs
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// ProgressPublisher forwards pipeline events to <prefix>.<run_id> as JSON.
// Publish failures are logged and never affect the run.
type ProgressPublisher struct {
	pub    Publisher
	prefix string
	logger zerolog.Logger
}

func NewProgressPublisher(pub Publisher, prefix string) *ProgressPublisher {
	return &ProgressPublisher{
		pub:    pub,
		prefix: prefix,
		logger: log.With().Str("service", "progress-publisher").Logger(),
	}
}

func (p *ProgressPublisher) Subject(runID string) string {
	return p.prefix + "." + runID
}

func (p *ProgressPublisher) OnProgress(e pipeline.Event) {
	if err := p.pub.Publish(p.Subject(e.RunID), e); err != nil {
		p.logger.Warn().Err(err).Str("run_id", e.RunID).Str("state", e.State.String()).Msg("Failed to publish progress")
	}
}
