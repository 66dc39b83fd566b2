package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/aquintel/spillwatch/internal/filter"
	"github.com/aquintel/spillwatch/internal/playback"
	"github.com/aquintel/spillwatch/internal/storage/memory"
	"github.com/aquintel/spillwatch/internal/trajectory"
	"github.com/aquintel/spillwatch/pkg/core"
)

// maxReplayTicks bounds a headless replay in case the step never reaches 100.
const maxReplayTicks = 1_000_000

var errNoSources = errors.New("at least one CSV source is required")

func replayCommand(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	commonFlags(fs)
	every := fs.Int("frames", 10, "print a line every N ticks")
	step := fs.Float64("step", playback.DefaultStep, "progress added per tick")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errNoSources
	}
	if *every <= 0 {
		*every = 1
	}

	rt, err := newRuntime(fs, false)
	if err != nil {
		return err
	}
	defer rt.close()

	if n := rt.loader().LoadInto(context.Background(), rt.Set, fs.Args()); n == 0 {
		return fmt.Errorf("no trajectories loaded from %d source(s)", fs.NArg())
	}

	return replay(rt.Set, *step, *every, out)
}

// replay drives an engine on a manual scheduler until playback completes,
// writing one line per printed frame.
func replay(set *trajectory.Set, step float64, every int, out io.Writer) error {
	sched := playback.NewManualScheduler()
	frames := 0
	engine := playback.NewEngine(sched, set,
		playback.WithStep(step),
		playback.WithListener(func(s core.PlaybackSnapshot) {
			frames++
			if frames%every != 0 && s.State != core.PlaybackCompleted {
				return
			}
			fmt.Fprintln(out, formatFrame(s, filter.VisibleCounts(set.All(), s.Progress)))
		}),
	)
	defer engine.Close()

	engine.Start()
	ticks := sched.RunUntilIdle(maxReplayTicks)
	if st := engine.Snapshot().State; st != core.PlaybackCompleted {
		return fmt.Errorf("replay stopped after %d ticks in state %s", ticks, st)
	}
	return nil
}

func formatFrame(s core.PlaybackSnapshot, visible map[string]int) string {
	ids := make([]string, 0, len(visible))
	for id := range visible {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "%6.2f%%  %s  %-9s", s.Progress, s.SimulatedTime.UTC().Format(time.RFC3339), s.State)
	for _, id := range ids {
		fmt.Fprintf(&b, "  %s=%d", id, visible[id])
	}
	return b.String()
}

func exportCommand(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	commonFlags(fs)
	progress := fs.Float64("progress", playback.MaxProgress, "playback progress to export at")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: export <out.geojson[.gz]> <csv...>: %w", errNoSources)
	}
	path, sources := fs.Arg(0), fs.Args()[1:]

	rt, err := newRuntime(fs, false)
	if err != nil {
		return err
	}
	defer rt.close()

	ts := rt.loader().Load(context.Background(), sources)
	if len(ts) == 0 {
		return fmt.Errorf("no trajectories loaded from %d source(s)", len(sources))
	}

	compress := strings.HasSuffix(strings.ToLower(path), ".gz")
	if err := memory.WriteGeoJSONFile(path, ts, *progress, compress); err != nil {
		return fmt.Errorf("failed to export %s: %w", path, err)
	}
	fmt.Fprintf(out, "wrote %d trajectories at %.2f%% to %s\n", len(ts), *progress, path)
	return nil
}
