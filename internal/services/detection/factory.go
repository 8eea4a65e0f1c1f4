package detection

import (
	"context"
	"fmt"

	"github.com/Luisfrighetto/Visao/internal/config"
)

const (
	BackendONNX = "onnx"
	BackendGRPC = "grpc"
)

// NewLoadFunc returns the loader for the configured backend
func NewLoadFunc(cfg *config.Config) (LoadFunc, error) {
	switch cfg.DetectorBackend {
	case BackendONNX:
		return func(ctx context.Context) (Backend, error) {
			return NewONNXDetector(cfg.ModelPath, cfg.ModelInputSize, cfg.NMSThreshold)
		}, nil
	case BackendGRPC:
		return func(ctx context.Context) (Backend, error) {
			return DialRemote(ctx, cfg.DetectorGRPCURL, cfg.DetectorGRPCMethod, cfg.AITimeout)
		}, nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.DetectorBackend)
	}
}

// NewConfiguredLoader builds a loader for cfg with warm-up at the model input size
func NewConfiguredLoader(cfg *config.Config) (*Loader, error) {
	load, err := NewLoadFunc(cfg)
	if err != nil {
		return nil, err
	}
	warmup := cfg.ModelInputSize
	if cfg.DetectorBackend == BackendGRPC {
		warmup = 0
	}
	return NewLoader(load, warmup), nil
}
