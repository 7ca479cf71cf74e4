// Package loader reads height/volume measurements from CSV files.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/chrissnell/containergeometry/internal/geometry"
)

// DefaultVolumeScale converts millilitres to cubic millimetres
const DefaultVolumeScale = 1000

var (
	ErrNoHeightColumn = errors.New("no height column found")
	ErrNoVolumeColumn = errors.New("no volume column found")
	ErrNegativeValue  = errors.New("negative height or volume")
	ErrTooFewRows     = errors.New("insufficient data points")
)

// Options controls how raw CSV values become measurements
type Options struct {
	// VolumeScale multiplies every volume value. Zero means DefaultVolumeScale.
	VolumeScale float64
}

// Load reads the CSV file at path
func Load(path string, opts Options) ([]geometry.Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	ms, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", path, err)
	}
	return ms, nil
}

// Read parses CSV data with a header row. The first column whose name contains
// "height" and the first whose name contains "volume" (case-insensitive) are
// used. Rows that do not parse are dropped. The result is sorted by height,
// volume is made non-decreasing, and repeated heights keep the last row.
func Read(r io.Reader, opts Options) ([]geometry.Measurement, error) {
	scale := opts.VolumeScale
	if scale == 0 {
		scale = DefaultVolumeScale
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	hcol, vcol := columnIndex(header, "height"), columnIndex(header, "volume")
	if hcol < 0 {
		return nil, ErrNoHeightColumn
	}
	if vcol < 0 {
		return nil, ErrNoVolumeColumn
	}

	var ms []geometry.Measurement
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read row: %w", err)
		}
		h, okH := parseField(rec, hcol)
		v, okV := parseField(rec, vcol)
		if !okH || !okV {
			continue
		}
		if h < 0 || v < 0 {
			return nil, fmt.Errorf("%w: height %v volume %v", ErrNegativeValue, h, v)
		}
		ms = append(ms, geometry.Measurement{Height: h, Volume: v * scale})
	}

	ms = normalize(ms)
	if len(ms) < geometry.MinMeasurements {
		return nil, fmt.Errorf("%w (%d < %d)", ErrTooFewRows, len(ms), geometry.MinMeasurements)
	}
	return ms, nil
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.Contains(strings.ToLower(strings.TrimSpace(col)), name) {
			return i
		}
	}
	return -1
}

func parseField(rec []string, i int) (float64, bool) {
	if i >= len(rec) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// normalize sorts by height, applies a running maximum to volume and collapses
// duplicate heights onto their last occurrence
func normalize(ms []geometry.Measurement) []geometry.Measurement {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Height < ms[j].Height
	})
	for i := 1; i < len(ms); i++ {
		ms[i].Volume = max(ms[i].Volume, ms[i-1].Volume)
	}

	out := ms[:0]
	for _, m := range ms {
		if len(out) > 0 && out[len(out)-1].Height == m.Height {
			out[len(out)-1] = m
			continue
		}
		out = append(out, m)
	}
	return out
}
