package geo

import (
	"math"
	"sort"

	"github.com/aquintel/spillwatch/pkg/core"
)

// HeatCell is one populated grid cell. Lat/Lon are the cell center.
type HeatCell struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Weight int     `json:"weight"`
}

type cellKey struct {
	row, col int
}

// Heatmap bins sample positions into square cells of size degrees and returns
// the non-empty cells, heaviest first.
func Heatmap(samples []core.PositionSample, size float64) []HeatCell {
	if size <= 0 || math.IsNaN(size) {
		return nil
	}
	counts := make(map[cellKey]int)
	for _, s := range samples {
		k := cellKey{
			row: int(math.Floor(s.Lat / size)),
			col: int(math.Floor(s.Lon / size)),
		}
		counts[k]++
	}

	cells := make([]HeatCell, 0, len(counts))
	for k, n := range counts {
		cells = append(cells, HeatCell{
			Lat:    (float64(k.row) + 0.5) * size,
			Lon:    (float64(k.col) + 0.5) * size,
			Weight: n,
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Weight != cells[j].Weight {
			return cells[i].Weight > cells[j].Weight
		}
		if cells[i].Lat != cells[j].Lat {
			return cells[i].Lat < cells[j].Lat
		}
		return cells[i].Lon < cells[j].Lon
	})
	return cells
}
