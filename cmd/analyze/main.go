// Command analyze runs one analysis from the terminal and prints the
// resulting artifact as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Luisfrighetto/Visao/internal/config"
	"github.com/Luisfrighetto/Visao/internal/logging"
	"github.com/Luisfrighetto/Visao/internal/models"
	"github.com/Luisfrighetto/Visao/internal/pipeline"
	"github.com/Luisfrighetto/Visao/internal/services"
)

func main() {
	cfg := config.Load()

	input := flag.String("input", "", "video file to analyze")
	confidence := flag.Float64("confidence", cfg.DefaultConfidence, "detection confidence threshold in (0, 1]")
	out := flag.String("out", cfg.ResultsFolder, "directory for the annotated video and statistics")
	only := flag.String("categories", "", "comma separated categories to count, e.g. player,ball (default all mapped)")
	quiet := flag.Bool("quiet", false, "disable the progress bar")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}
	cfg.ResultsFolder = *out
	cfg.PreviewEnabled = false

	logging.Init(cfg)
	// keep the bar readable; warnings and errors still reach the console
	if zerolog.GlobalLevel() < zerolog.WarnLevel && !*quiet {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	if err := run(cfg, *input, *confidence, *only, *quiet); err != nil {
		log.Error().Err(err).Str("input", *input).Msg("Analysis failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, input string, confidence float64, only string, quiet bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var observers []pipeline.Observer
	if !quiet {
		observers = append(observers, newBarObserver(os.Stderr))
	}

	container, err := services.NewServiceContainer(cfg, observers...)
	if err != nil {
		return err
	}
	defer container.Shutdown(context.Background())

	if err := container.Detector.Load(ctx); err != nil {
		return fmt.Errorf("failed to load detector: %w", err)
	}

	artifact, err := container.Engine.Run(ctx, pipeline.Request{
		InputPath:  input,
		Confidence: confidence,
		Categories: parseCategories(only),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(artifact)
}

func parseCategories(s string) []models.Category {
	var out []models.Category
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, models.Category(strings.ToLower(part)))
		}
	}
	return out
}
