// Package plotting renders diagnostic charts of an analysis run with gonum/plot
package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/chrissnell/containergeometry/internal/geometry"
)

// Kind names one of the charts of a run
type Kind string

const (
	KindArea    Kind = "area"
	KindProfile Kind = "profile"
	KindVolume  Kind = "volume"
)

// Kinds lists every chart in the order SaveAll writes them
var Kinds = []Kind{KindArea, KindProfile, KindVolume}

var (
	ErrUnknownKind   = errors.New("unknown chart")
	ErrUnknownFormat = errors.New("unsupported image format")
	ErrNoData        = errors.New("nothing to plot")
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 6 * vg.Inch
)

var (
	dataColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	fitColor      = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	boundaryColor = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	dashes        = []vg.Length{vg.Points(4), vg.Points(3)}
)

// ParseFormat checks that format is an image format the charts can be written as
func ParseFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimPrefix(format, "."))
	switch f {
	case "png", "svg", "pdf":
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// ContentType returns the MIME type of an image format accepted by ParseFormat
func ContentType(format string) string {
	switch format {
	case "svg":
		return "image/svg+xml"
	case "pdf":
		return "application/pdf"
	}
	return "image/png"
}

// Build returns the chart of the given kind
func Build(kind Kind, name string, ms []geometry.Measurement, res *geometry.Result) (*plot.Plot, error) {
	if res == nil || len(res.Areas) == 0 {
		return nil, ErrNoData
	}
	switch kind {
	case KindArea:
		return AreaPlot(name, res)
	case KindProfile:
		return ProfilePlot(name, res)
	case KindVolume:
		return VolumePlot(name, ms, res)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Write renders the chart of the given kind to w
func Write(w io.Writer, kind Kind, format, name string, ms []geometry.Measurement, res *geometry.Result) error {
	format, err := ParseFormat(format)
	if err != nil {
		return err
	}
	p, err := Build(kind, name, ms, res)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(chartWidth, chartHeight, format)
	if err != nil {
		return fmt.Errorf("render %s chart: %w", kind, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveAll writes every chart of a run into dir as <name>_<kind>.<format> and
// returns the file paths
func SaveAll(dir, format, name string, ms []geometry.Measurement, res *geometry.Result) ([]string, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot directory: %w", err)
	}

	var files []string
	for _, kind := range Kinds {
		p, err := Build(kind, name, ms, res)
		if err != nil {
			return files, err
		}
		file := filepath.Join(dir, fmt.Sprintf("%s_%s.%s", fileStem(name), kind, format))
		if err := p.Save(chartWidth, chartHeight, file); err != nil {
			return files, fmt.Errorf("save %s chart: %w", kind, err)
		}
		files = append(files, file)
	}
	return files, nil
}

func fileStem(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "run"
	}
	return stem
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p
}

// AreaPlot shows the area signal with the validated boundaries marked
func AreaPlot(name string, res *geometry.Result) (*plot.Plot, error) {
	if len(res.Areas) == 0 {
		return nil, ErrNoData
	}
	p := newPlot(fmt.Sprintf("%s - cross-sectional area", name), "Height", "Area")

	pts := make(plotter.XYs, len(res.Areas))
	areas := make([]float64, len(res.Areas))
	for i, a := range res.Areas {
		pts[i] = plotter.XY{X: a.MidHeight, Y: a.Area}
		areas[i] = a.Area
	}
	line, sc, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = dataColor
	line.Width = vg.Points(1)
	sc.Color = dataColor
	sc.Radius = vg.Points(1.5)
	p.Add(line, sc)
	p.Legend.Add("area", line, sc)

	lo, hi := floats.Min(areas), floats.Max(areas)
	if hi == lo {
		hi = lo + 1
	}
	for i, b := range res.Boundaries {
		if i == 0 || i == len(res.Boundaries)-1 || b < 0 || b >= len(res.Areas) {
			continue
		}
		h := res.Areas[b].MidHeight
		bl, err := plotter.NewLine(plotter.XYs{{X: h, Y: lo}, {X: h, Y: hi}})
		if err != nil {
			return nil, err
		}
		bl.Color = boundaryColor
		bl.Dashes = dashes
		p.Add(bl)
		if i == 1 {
			p.Legend.Add("boundary", bl)
		}
	}
	return p, nil
}

// ProfilePlot draws the reconstructed wall as a mirrored silhouette with
// segment joins marked
func ProfilePlot(name string, res *geometry.Result) (*plot.Plot, error) {
	if res.Profile.Len() == 0 {
		return nil, ErrNoData
	}
	p := newPlot(fmt.Sprintf("%s - reconstructed profile", name), "Radius", "Height")

	right := make(plotter.XYs, res.Profile.Len())
	left := make(plotter.XYs, res.Profile.Len())
	for i, h := range res.Profile.Heights {
		r := res.Profile.Radii[i]
		right[i] = plotter.XY{X: r, Y: h}
		left[i] = plotter.XY{X: -r, Y: h}
	}
	for _, xys := range []plotter.XYs{right, left} {
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		l.Color = fitColor
		l.Width = vg.Points(1.5)
		p.Add(l)
		if xys[0].X >= 0 {
			p.Legend.Add("wall", l)
		}
	}

	rmax := floats.Max(res.Profile.Radii)
	for i, s := range res.Segments {
		if i == 0 {
			continue
		}
		jl, err := plotter.NewLine(plotter.XYs{{X: -rmax, Y: s.StartHeight}, {X: rmax, Y: s.StartHeight}})
		if err != nil {
			return nil, err
		}
		jl.Color = boundaryColor
		jl.Dashes = dashes
		p.Add(jl)
		if i == 1 {
			p.Legend.Add("segment join", jl)
		}
	}
	return p, nil
}

// VolumePlot compares the measured cumulative volume with the volume of the
// reconstructed profile
func VolumePlot(name string, ms []geometry.Measurement, res *geometry.Result) (*plot.Plot, error) {
	if len(ms) == 0 || res.Profile.Len() == 0 {
		return nil, ErrNoData
	}
	p := newPlot(fmt.Sprintf("%s - volume check (%.2f%%)", name, res.Volume.ErrorPct), "Height", "Volume")

	base := res.Areas[0].Volume
	measured := make(plotter.XYs, 0, len(ms))
	for _, m := range ms {
		if m.Height < res.Profile.Heights[0] {
			continue
		}
		measured = append(measured, plotter.XY{X: m.Height, Y: m.Volume - base})
	}
	sc, err := plotter.NewScatter(measured)
	if err != nil {
		return nil, err
	}
	sc.Color = dataColor
	sc.Radius = vg.Points(2)
	p.Add(sc)
	p.Legend.Add("measured", sc)

	vol := res.ProfileVolume
	if len(vol) != res.Profile.Len() {
		vol = geometry.ProfileVolume(res.Profile)
	}
	rec := make(plotter.XYs, len(vol))
	for i, v := range vol {
		rec[i] = plotter.XY{X: res.Profile.Heights[i], Y: v}
	}
	l, err := plotter.NewLine(rec)
	if err != nil {
		return nil, err
	}
	l.Color = fitColor
	l.Width = vg.Points(1.5)
	p.Add(l)
	p.Legend.Add("reconstructed", l)
	return p, nil
}
