package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Luisfrighetto/Visao/internal/models"
)

// WriteSidecar persists stats as indented JSON. The file appears atomically:
// readers see either nothing or the complete document.
func WriteSidecar(path string, stats models.RunStatistics) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".stats-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write statistics: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync statistics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close statistics file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to publish statistics: %w", err)
	}
	return nil
}

func ReadSidecar(path string) (models.RunStatistics, error) {
	var stats models.RunStatistics
	data, err := os.ReadFile(path)
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("invalid statistics file %s: %w", path, err)
	}
	return stats, nil
}
