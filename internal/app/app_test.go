package app

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/storage/sqlite"
	"github.com/chrissnell/containergeometry/pkg/config"
)

func writeCylinderCSV(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("height_mm,volume_ml\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "%d,%v\n", i, math.Pi*25*float64(i)/1000)
	}
	path := filepath.Join(dir, "beaker.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRunNothingToDo(t *testing.T) {
	err := New(nil, Options{}, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrNothingToDo)
}

func TestRunInvalidAnalysisConfig(t *testing.T) {
	points := 1
	cfg := &config.ConfigData{Analysis: config.AnalysisData{MinSegmentPoints: &points}}
	err := New(cfg, Options{Input: "missing.csv"}, nil).Run(context.Background())
	assert.ErrorIs(t, err, geometry.ErrInvalidParams)
}

func TestRunAnalyzesFile(t *testing.T) {
	dir := t.TempDir()
	input := writeCylinderCSV(t, dir)
	dbPath := filepath.Join(dir, "runs.db")
	plotDir := filepath.Join(dir, "plots")

	a := New(nil, Options{Input: input, DBPath: dbPath, PlotDir: plotDir, PlotFormat: "svg"}, nil)
	var out bytes.Buffer
	a.SetOutput(&out)
	require.NoError(t, a.Run(context.Background()))

	report := out.String()
	assert.Contains(t, report, "beaker")
	assert.Contains(t, report, "cylinder")
	assert.Contains(t, report, "OK")

	for _, kind := range []string{"area", "profile", "volume"} {
		assert.FileExists(t, filepath.Join(plotDir, "beaker_"+kind+".svg"))
	}

	store, err := sqlite.New(dbPath, nil)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "beaker", runs[0].Name)
	assert.Equal(t, 1, runs[0].SegmentCount)
}

func TestAnalyzeFileWithoutStore(t *testing.T) {
	input := writeCylinderCSV(t, t.TempDir())
	analyzer, err := geometry.NewAnalyzer(geometry.DefaultParams(), nil)
	require.NoError(t, err)

	a := New(nil, Options{}, nil)
	var out bytes.Buffer
	a.SetOutput(&out)

	run, err := a.AnalyzeFile(context.Background(), analyzer, nil, input)
	require.NoError(t, err)
	assert.Equal(t, "beaker", run.Name)
	assert.NotContains(t, out.String(), "ID:")

	_, err = a.AnalyzeFile(context.Background(), analyzer, nil, filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	store, backend, err := New(nil, Options{}, nil).openStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.Empty(t, backend)

	cfg := &config.ConfigData{Storage: config.StorageData{SQLite: &config.SQLiteData{Path: filepath.Join(dir, "cfg.db")}}}
	store, backend, err = New(cfg, Options{DBPath: filepath.Join(dir, "flag.db")}, nil).openStore(context.Background())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "sqlite", backend)
	assert.FileExists(t, filepath.Join(dir, "flag.db"))
	assert.NoFileExists(t, filepath.Join(dir, "cfg.db"))
}
