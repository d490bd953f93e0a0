package workenv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile records when and by which version a data directory was set up.
const MarkerFile = ".piceval.init"

// Marker is the content of MarkerFile.
type Marker struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// MarkInitialized writes the marker into dataDir.
func MarkInitialized(dataDir, version string) error {
	marker := Marker{
		Timestamp: time.Now().UTC(),
		Version:   version,
	}

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dataDir, MarkerFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write init marker: %w", err)
	}
	return nil
}

// ReadMarker returns the marker in dataDir, or nil if there is none or it
// cannot be parsed.
func ReadMarker(dataDir string) *Marker {
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return nil
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil
	}
	return &marker
}
