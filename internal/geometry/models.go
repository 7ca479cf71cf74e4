package geometry

import (
	"errors"
	"math"
	"sort"
)

var errZeroSpan = errors.New("segment has zero height span")

// segmentData is one segment's samples shifted so the segment starts at the origin
type segmentData struct {
	x     []float64 // height above segment start
	y     []float64 // volume above the volume at segment start
	vLast float64   // absolute cumulative volume at segment end
	areas []float64
	span  float64
}

func newSegmentData(heights, volumes, areas []float64) segmentData {
	n := len(heights)
	d := segmentData{
		x:     make([]float64, n),
		y:     make([]float64, n),
		areas: areas,
	}
	for i := range heights {
		d.x[i] = heights[i] - heights[0]
		d.y[i] = volumes[i] - volumes[0]
	}
	if n > 0 {
		d.vLast = volumes[n-1]
		d.span = d.x[n-1]
	}
	return d
}

// errorPct is the mean absolute volume residual as a percentage of the
// cumulative volume at the segment end
func (d segmentData) errorPct(s Shape) float64 {
	var sum float64
	for i := range d.x {
		sum += math.Abs(s.Volume(d.x[i]) - d.y[i])
	}
	return sum / float64(len(d.x)) / (d.vLast + 1e-6) * 100
}

// objective is the mean squared residual normalized by the segment volume gain
func (d segmentData) objective(kind ShapeKind) func(v []float64) float64 {
	scale := math.Abs(d.y[len(d.y)-1])
	if scale < 1e-12 {
		scale = 1
	}
	return func(v []float64) float64 {
		s, err := ShapeFromValues(kind, v)
		if err != nil {
			return math.Inf(1)
		}
		var sum float64
		for i := range d.x {
			r := (s.Volume(d.x[i]) - d.y[i]) / scale
			sum += r * r
		}
		return sum / float64(len(d.x))
	}
}

func (d segmentData) medianArea() float64 {
	s := append([]float64(nil), d.areas...)
	sort.Float64s(s)
	return medianSorted(s)
}

func (d segmentData) maxArea() float64 {
	m := d.areas[0]
	for _, a := range d.areas[1:] {
		m = math.Max(m, a)
	}
	return m
}

// modelSetup returns the start vector and bounds used to fit kind to d
func modelSetup(kind ShapeKind, d segmentData, p Params) ([]float64, box, error) {
	lower, upper := p.FitBoundsLower, p.FitBoundsUpper
	switch kind {
	case Cylinder:
		r := radiusFromArea(d.medianArea())
		return []float64{r}, box{lo: []float64{lower * r}, hi: []float64{upper * r}}, nil

	case Frustum:
		if d.span <= 0 {
			return nil, box{}, errZeroSpan
		}
		r1 := radiusFromArea(d.areas[0])
		r2 := radiusFromArea(d.areas[len(d.areas)-1])
		return []float64{r1, r2, d.span}, box{
			lo: []float64{lower * r1, lower * r2, 0.8 * d.span},
			hi: []float64{upper * r1, upper * r2, 1.2 * d.span},
		}, nil

	case Cone:
		if d.span <= 0 {
			return nil, box{}, errZeroSpan
		}
		r := radiusFromArea(d.areas[len(d.areas)-1])
		return []float64{r, d.span}, box{
			lo: []float64{0.1 * r, 0.5 * d.span},
			hi: []float64{5 * r, 2 * d.span},
		}, nil

	case SphereCap:
		R := 1.5 * radiusFromArea(d.maxArea())
		return []float64{R}, box{lo: []float64{0.5 * R}, hi: []float64{10 * R}}, nil
	}
	return nil, box{}, errors.New("unknown shape kind")
}

// canonical rewrites a fitted shape so that its parameters describe the segment
// it was fitted to. A frustum keeps its radius line but reports the radius at
// the segment end and the segment span.
func canonical(s Shape, span float64) Shape {
	switch s.Kind {
	case Frustum:
		if span > 0 {
			return Shape{Kind: Frustum, R1: s.R1, R2: s.RadiusAt(span), H: span}
		}
	case Cylinder, Cone, SphereCap:
	}
	return s
}
