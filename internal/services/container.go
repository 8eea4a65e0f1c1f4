package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Luisfrighetto/Visao/internal/config"
	"github.com/Luisfrighetto/Visao/internal/logging"
	"github.com/Luisfrighetto/Visao/internal/models"
	"github.com/Luisfrighetto/Visao/internal/pipeline"
	"github.com/Luisfrighetto/Visao/internal/services/annotator"
	"github.com/Luisfrighetto/Visao/internal/services/artifacts"
	"github.com/Luisfrighetto/Visao/internal/services/detection"
	"github.com/Luisfrighetto/Visao/internal/services/messaging"
	"github.com/Luisfrighetto/Visao/internal/services/publisher/mjpeg"
	"github.com/Luisfrighetto/Visao/internal/services/videosink"
	"github.com/Luisfrighetto/Visao/internal/services/videosource"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config     *config.Config
	Categories models.CategoryMap
	Detector   *detection.Loader
	Messaging  *messaging.Service
	Artifacts  *artifacts.Store
	Preview    *mjpeg.Publisher
	Engine     *pipeline.Engine
}

// NewServiceContainer wires the engine to the configured backends. Extra
// observers receive progress in addition to the log and NATS observers.
func NewServiceContainer(cfg *config.Config, observers ...pipeline.Observer) (*ServiceContainer, error) {
	categories, err := models.ParseCategoryMap(cfg.CategoryMap)
	if err != nil {
		return nil, fmt.Errorf("CATEGORY_MAP: %w", err)
	}

	store, err := artifacts.New(cfg.UploadFolder, cfg.ResultsFolder)
	if err != nil {
		return nil, err
	}

	loader, err := detection.NewConfiguredLoader(cfg)
	if err != nil {
		return nil, err
	}

	ann, err := annotator.New(annotator.Options{
		PlayerColor: cfg.OverlayPlayerColor,
		BallColor:   cfg.OverlayBallColor,
		TextColor:   cfg.OverlayTextColor,
		Font:        cfg.OverlayFont,
	})
	if err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}

	openSink, err := sinkOpener(cfg)
	if err != nil {
		return nil, err
	}

	sc := &ServiceContainer{
		Config:     cfg,
		Categories: categories,
		Detector:   loader,
		Artifacts:  store,
	}

	all := pipeline.Observers{pipeline.LogObserver{Logger: logging.NewServiceLogger(cfg, "progress")}}
	if cfg.NatsEnabled {
		// Progress over NATS is optional; a missing broker must not block analysis
		msg, err := messaging.NewService(cfg)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NatsURL).Msg("NATS not available, progress events will only be logged")
		} else {
			sc.Messaging = msg
			all = append(all, messaging.NewProgressPublisher(msg, cfg.ProgressSubject))
		}
	}
	var tap pipeline.FrameTap
	if cfg.PreviewEnabled {
		sc.Preview = mjpeg.NewPublisher(mjpeg.Options{
			Quality:     cfg.PreviewQuality,
			MinInterval: cfg.PreviewInterval,
		})
		tap = sc.Preview
		all = append(all, sc.Preview)
	}
	all = append(all, observers...)

	pipelineLogger := logging.NewServiceLogger(cfg, "pipeline")
	engine, err := pipeline.New(pipeline.Options{
		ResultsDir: cfg.ResultsFolder,
		Categories: categories,
		OpenSource: func(path string) (pipeline.Source, error) {
			src, err := videosource.Open(path)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		OpenSink:      openSink,
		Detectors:     loader,
		Annotator:     ann,
		Observer:      all,
		FrameTap:      tap,
		DetectTimeout: cfg.AITimeout,
		Logger:        &pipelineLogger,
	})
	if err != nil {
		return nil, err
	}
	sc.Engine = engine

	return sc, nil
}

func sinkOpener(cfg *config.Config) (pipeline.SinkOpener, error) {
	switch cfg.OutputEncoder {
	case "", "opencv":
	case "ffmpeg":
		opts := videosink.FFmpegOptions{
			Binary:      cfg.FFmpegBinary,
			Preset:      cfg.FFmpegPreset,
			CRF:         cfg.FFmpegCRF,
			StopTimeout: cfg.ShutdownTimeout,
		}
		return func(path string, fps, width, height int) (pipeline.Sink, error) {
			sink, err := videosink.OpenFFmpeg(path, fps, width, height, opts)
			if err != nil {
				return nil, err
			}
			return sink, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown OUTPUT_ENCODER %q", cfg.OutputEncoder)
	}
	return func(path string, fps, width, height int) (pipeline.Sink, error) {
		sink, err := videosink.Open(path, fps, width, height, cfg.OutputCodec)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}, nil
}

// Start begins loading the detection model in the background
func (sc *ServiceContainer) Start(ctx context.Context) {
	sc.Detector.Start(ctx)
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	if sc.Messaging != nil {
		sc.Messaging.Shutdown(ctx)
	}
	if sc.Detector != nil {
		if err := sc.Detector.Close(); err != nil {
			return err
		}
	}
	return nil
}
