package trajectory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aquintel/spillwatch/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vesselACSV = `MMSI,BaseDateTime,LAT,LON,SOG,COG,VesselName,VesselType
367000001,2017-01-01T00:00:00,29.1,-89.1,10.2,180.0,ALPHA,70
367000001,2017-01-01T00:01:00,29.2,-89.2,10.4,181.0,ALPHA,70
`

const mixedCSV = `MMSI,BaseDateTime,LAT,LON,SOG,COG,VesselName,VesselType
367000002,2017-01-01T00:00:00,28.0,-90.0,5,90,BRAVO,80
367000003,2017-01-01T00:00:30,27.0,-91.0,6,91,CHARLIE,30
367000002,2017-01-01T00:02:00,28.1,-90.1,5,90,BRAVO,80
`

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoader_LoadFilesAndURL(t *testing.T) {
	dir := t.TempDir()
	fileA := writeCSV(t, dir, "vessel_a.csv", vesselACSV)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(vesselACSV))
	}))
	defer srv.Close()

	l := NewLoader(LoaderConfig{}, parser.NewParser(nil), nil)
	set := NewSet()
	n := l.LoadInto(context.Background(), set, []string{fileA, srv.URL + "/vessel_b.csv?x=1"})

	assert.Equal(t, 2, n)
	a, ok := set.Get("vessel_a")
	require.True(t, ok)
	assert.Equal(t, "red", a.Color)
	assert.Len(t, a.Samples, 2)

	b, ok := set.Get("vessel_b")
	require.True(t, ok)
	assert.Equal(t, "green", b.Color)
}

func TestLoader_SkipsBrokenSources(t *testing.T) {
	dir := t.TempDir()
	fileA := writeCSV(t, dir, "ok.csv", vesselACSV)
	empty := writeCSV(t, dir, "empty.csv", "LAT,LON,BaseDateTime\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l := NewLoader(LoaderConfig{}, parser.NewParser(nil), nil)
	out := l.Load(context.Background(), []string{
		fileA,
		empty,
		filepath.Join(dir, "missing.csv"),
		srv.URL + "/gone.csv",
	})

	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].ID)
}

func TestLoader_SplitByVessel(t *testing.T) {
	dir := t.TempDir()
	f := writeCSV(t, dir, "area.csv", mixedCSV)

	l := NewLoader(LoaderConfig{SplitByVessel: true}, parser.NewParser(nil), nil)
	out := l.Load(context.Background(), []string{f})

	require.Len(t, out, 2)
	assert.Equal(t, "area:367000002", out[0].ID)
	assert.Len(t, out[0].Samples, 2)
	assert.Equal(t, "area:367000003", out[1].ID)
	assert.NotEqual(t, out[0].Color, out[1].Color)
}

func TestSourceID(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"/data/ais/2017.csv", "2017"},
		{"relative.csv", "relative"},
		{"https://example.com/tracks/gulf.csv?token=abc", "gulf"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, sourceID(tt.source))
		})
	}
}

const vesselCCSV = `MMSI,BaseDateTime,LAT,LON,SOG,COG,VesselName,VesselType
367000009,2017-01-01T00:00:00,30.1,-88.1,8,10,DELTA,70
367000009,2017-01-01T00:01:00,30.2,-88.2,8,11,DELTA,70
367000009,2017-01-01T00:02:00,30.3,-88.3,8,12,DELTA,70
`

func TestLoader_SameFileNameInDifferentDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "north"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "south"), 0o755))
	north := writeCSV(t, filepath.Join(root, "north"), "ship.csv", vesselACSV)
	south := writeCSV(t, filepath.Join(root, "south"), "ship.csv", vesselCCSV)

	l := NewLoader(LoaderConfig{}, parser.NewParser(nil), nil)
	set := NewSet()
	n := l.LoadInto(context.Background(), set, []string{north, south})

	assert.Equal(t, 2, n)
	require.Equal(t, 2, set.Len())

	lengths := map[int]bool{}
	for _, tr := range set.All() {
		assert.True(t, strings.HasPrefix(tr.ID, "ship-"), tr.ID)
		lengths[len(tr.Samples)] = true
	}
	assert.Equal(t, map[int]bool{2: true, 3: true}, lengths)
}

func TestLoader_SameSourceTwice(t *testing.T) {
	f := writeCSV(t, t.TempDir(), "ship.csv", vesselACSV)

	l := NewLoader(LoaderConfig{}, parser.NewParser(nil), nil)
	out := l.Load(context.Background(), []string{f, f})

	require.Len(t, out, 1)
	assert.Equal(t, "ship", out[0].ID)
}

func TestLoader_SplitColorsRunAcrossSources(t *testing.T) {
	dir := t.TempDir()
	first := writeCSV(t, dir, "a_area.csv", mixedCSV)
	second := writeCSV(t, dir, "b_single.csv", vesselACSV)

	l := NewLoader(LoaderConfig{SplitByVessel: true, Palette: []string{"c0", "c1", "c2", "c3"}},
		parser.NewParser(nil), nil)
	out := l.Load(context.Background(), []string{first, second})

	require.Len(t, out, 3)
	colors := map[string]string{}
	for _, tr := range out {
		colors[tr.ID] = tr.Color
	}
	assert.Equal(t, map[string]string{
		"a_area:367000002":   "c0",
		"a_area:367000003":   "c1",
		"b_single:367000001": "c2",
	}, colors)
}

func TestSourceIDs(t *testing.T) {
	ids := sourceIDs([]string{"/a/ship.csv", "/b/ship.csv", "/c/other.csv", "/a/ship.csv"})

	assert.Equal(t, "other", ids[2])
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[3])
	assert.Equal(t, "ship-"+shortHash("/a/ship.csv"), ids[0])
}
