package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Luisfrighetto/Visao/internal/api"
	"github.com/Luisfrighetto/Visao/internal/config"
	"github.com/Luisfrighetto/Visao/internal/logging"
)

// @title Visao Football Analyzer API
// @version 1.0.0
// @description Uploads match videos, detects players and the ball frame by frame and returns an annotated video with a statistics sidecar
// @host localhost:5000
// @BasePath /
func main() {
	cfg := config.Load()
	logging.Init(cfg)

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("detector", cfg.DetectorBackend).
		Bool("nats_enabled", cfg.NatsEnabled).
		Msg("Starting football video analyzer")

	server, err := api.NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}
