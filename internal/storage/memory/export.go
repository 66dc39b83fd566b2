// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aquintel/spillwatch/internal/geo"
	"github.com/aquintel/spillwatch/pkg/core"
)

// fullyVisible is the progress at which every sample is shown.
const fullyVisible = 100.0

// exportGeoJSON writes every stored trajectory, fully visible, as a
// FeatureCollection. Caller holds the lock.
func (b *Backend) exportGeoJSON() error {
	ts := make([]*core.Trajectory, 0, len(b.order))
	for _, id := range b.order {
		ts = append(ts, b.trajectories[id])
	}

	timestamp := b.now().UTC().Format("20060102_150405")
	filename := fmt.Sprintf("trajectories_%s.geojson", timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := WriteGeoJSONFile(outputPath, ts, fullyVisible, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

// WriteGeoJSONFile writes the visible prefixes of ts at progress to path,
// gzip-compressed when compress is set.
func WriteGeoJSONFile(path string, ts []*core.Trajectory, progress float64, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	fc := geo.FeatureCollection(ts, progress)

	if !compress {
		return geo.WriteFeatureCollection(f, fc)
	}

	gw := gzip.NewWriter(f)
	if err := geo.WriteFeatureCollection(gw, fc); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to flush gzip: %w", err)
	}
	return nil
}
