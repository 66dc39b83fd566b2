package trajectory

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aquintel/spillwatch/internal/parser"
	"github.com/aquintel/spillwatch/internal/queue"
	"github.com/aquintel/spillwatch/pkg/core"
)

// LoaderConfig configures trajectory ingestion.
type LoaderConfig struct {
	Palette       []string
	SplitByVessel bool
	FetchTimeout  time.Duration
}

// Loader fetches CSV sources concurrently and builds their trajectories.
type Loader struct {
	cfg        LoaderConfig
	parser     *parser.Parser
	logger     *slog.Logger
	httpClient *http.Client
}

// NewLoader creates a loader. Sources may be local paths or http(s) URLs.
func NewLoader(cfg LoaderConfig, p *parser.Parser, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Loader{
		cfg:        cfg,
		parser:     p,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// parsed is one source's samples, tagged with its position in the source list.
type parsed struct {
	index   int
	id      string
	samples []core.PositionSample
}

// Load reads every source and returns the built trajectories sorted by ID.
// Sources are read concurrently; trajectories are built in source order so
// colors follow the source list. A source that cannot be read is logged and
// skipped.
func (l *Loader) Load(ctx context.Context, sources []string) []*core.Trajectory {
	ids := sourceIDs(sources)
	results := queue.New[parsed]()

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(index int, source string) {
			defer wg.Done()
			samples, err := l.readSource(ctx, source)
			if err != nil {
				l.logger.Error("Failed to load trajectory source", "source", source, "error", err)
				return
			}
			results.Push(parsed{index: index, id: ids[index], samples: samples})
		}(i, src)
	}
	wg.Wait()

	ready := results.Drain()
	sort.Slice(ready, func(i, j int) bool { return ready[i].index < ready[j].index })

	var out []*core.Trajectory
	seen := make(map[string]string, len(ready))
	for _, r := range ready {
		if prev, dup := seen[r.id]; dup {
			l.logger.Warn("Skipping duplicate trajectory source", "source", sources[r.index], "id", r.id, "first", prev)
			continue
		}
		seen[r.id] = sources[r.index]
		out = append(out, BuildSource(r.id, len(out), r.samples, l.cfg)...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadInto loads the sources and adds the result to set. It returns how many
// trajectories were loaded; trajectories already in set under the same ID
// are replaced.
func (l *Loader) LoadInto(ctx context.Context, set *Set, sources []string) int {
	ts := l.Load(ctx, sources)
	before := set.Len()
	set.AddAll(ts...)
	after := set.Len()
	if replaced := len(ts) - (after - before); replaced > 0 {
		l.logger.Info("Replaced trajectories already loaded", "replaced", replaced)
	}
	l.logger.Info("Loaded trajectories", "sources", len(sources), "trajectories", len(ts), "total", after)
	return len(ts)
}

func (l *Loader) readSource(ctx context.Context, source string) ([]core.PositionSample, error) {
	rc, err := l.open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	samples, err := l.parser.ParseSamples(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	return samples, nil
}

// BuildSource turns one source's samples into one trajectory, or one per
// vessel when SplitByVessel is set. Palette colors are taken in order
// starting at firstColor. Empty inputs produce nothing.
func BuildSource(id string, firstColor int, samples []core.PositionSample, cfg LoaderConfig) []*core.Trajectory {
	if !cfg.SplitByVessel {
		t, ok := Build(id, ColorFor(cfg.Palette, firstColor), samples)
		if !ok {
			return nil
		}
		return []*core.Trajectory{t}
	}

	groups := parser.SplitByVessel(samples)
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*core.Trajectory, 0, len(keys))
	for _, mmsi := range keys {
		tid := id
		if mmsi != "" {
			tid = id + ":" + mmsi
		}
		if t, ok := Build(tid, ColorFor(cfg.Palette, firstColor+len(out)), groups[mmsi]); ok {
			out = append(out, t)
		}
	}
	return out
}

func (l *Loader) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := l.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// sourceIDs derives one trajectory ID per source. Base names shared by
// different sources get a short hash of the full source appended, so
// north/ship.csv and south/ship.csv stay apart.
func sourceIDs(sources []string) []string {
	ids := make([]string, len(sources))
	owners := make(map[string]map[string]bool, len(sources))
	for i, src := range sources {
		ids[i] = sourceID(src)
		if owners[ids[i]] == nil {
			owners[ids[i]] = make(map[string]bool)
		}
		owners[ids[i]][src] = true
	}
	for i, src := range sources {
		if len(owners[ids[i]]) > 1 {
			ids[i] = ids[i] + "-" + shortHash(src)
		}
	}
	return ids
}

func shortHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// sourceID derives a trajectory ID from the file name without extension.
func sourceID(source string) string {
	base := filepath.Base(source)
	if strings.Contains(source, "://") {
		base = path.Base(strings.SplitN(source, "?", 2)[0])
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
