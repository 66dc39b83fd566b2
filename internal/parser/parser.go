package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aquintel/spillwatch/pkg/core"
)

// timestampLayouts are tried in order. AIS exports use BaseDateTime without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
}

// columnAliases maps a sample field to the header names it may appear under.
var columnAliases = map[string][]string{
	"lat":        {"lat", "latitude"},
	"lon":        {"lon", "lng", "longitude"},
	"timestamp":  {"basedatetime", "timestamp", "time", "datetime"},
	"cog":        {"cog", "courseoverground"},
	"sog":        {"sog", "speedoverground"},
	"vesselName": {"vesselname", "name", "shipname"},
	"vesselType": {"vesseltype", "type", "shiptype"},
	"mmsi":       {"mmsi"},
}

// Parser converts delimited AIS position records into samples.
// It holds no state besides a logger and is safe for concurrent use.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseSamples reads a header row plus data rows and returns the valid samples
// sorted ascending by timestamp. Rows whose latitude, longitude or timestamp do
// not parse are dropped. The error is only set when the reader itself fails.
func (p *Parser) ParseSamples(r io.Reader) ([]core.PositionSample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []core.PositionSample{}, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := indexColumns(header)

	samples := make([]core.PositionSample, 0)
	dropped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				dropped++
				continue
			}
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		sample, ok := cols.sample(record)
		if !ok {
			dropped++
			continue
		}
		samples = append(samples, sample)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	p.logger.Debug("Parsed position samples", "valid", len(samples), "dropped", dropped)
	return samples, nil
}

// columns holds the header position of each recognised field, -1 when absent.
type columns map[string]int

func indexColumns(header []string) columns {
	normalized := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		key = strings.NewReplacer("_", "", " ", "", "-", "").Replace(key)
		if _, seen := normalized[key]; !seen {
			normalized[key] = i
		}
	}

	cols := make(columns, len(columnAliases))
	for field, aliases := range columnAliases {
		cols[field] = -1
		for _, alias := range aliases {
			if i, ok := normalized[alias]; ok {
				cols[field] = i
				break
			}
		}
	}
	return cols
}

func (c columns) value(record []string, field string) string {
	i := c[field]
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (c columns) sample(record []string) (core.PositionSample, bool) {
	lat, ok := parseFinite(c.value(record, "lat"))
	if !ok {
		return core.PositionSample{}, false
	}
	lon, ok := parseFinite(c.value(record, "lon"))
	if !ok {
		return core.PositionSample{}, false
	}
	ts, ok := parseTimestamp(c.value(record, "timestamp"))
	if !ok {
		return core.PositionSample{}, false
	}

	return core.PositionSample{
		Lat:        lat,
		Lon:        lon,
		Timestamp:  ts,
		COG:        optionalFloat(c.value(record, "cog")),
		SOG:        optionalFloat(c.value(record, "sog")),
		VesselName: c.value(record, "vesselName"),
		VesselType: VesselTypeLabel(c.value(record, "vesselType")),
		MMSI:       c.value(record, "mmsi"),
	}, true
}

// parseFinite parses a float and rejects NaN and infinities.
func parseFinite(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func optionalFloat(s string) *float64 {
	f, ok := parseFinite(s)
	if !ok {
		return nil
	}
	return &f
}

// parseTimestamp accepts the layouts above; zone-less values are read as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// SplitByVessel groups samples by MMSI, keeping their relative order.
// Samples without an MMSI are grouped under the empty key.
func SplitByVessel(samples []core.PositionSample) map[string][]core.PositionSample {
	groups := make(map[string][]core.PositionSample)
	for _, s := range samples {
		groups[s.MMSI] = append(groups[s.MMSI], s)
	}
	return groups
}
