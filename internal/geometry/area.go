package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// DeriveAreas converts a height/volume curve into a cross-sectional area signal.
// Local regression returns one point per measurement; the difference method
// drops the first measurement.
func DeriveAreas(ms []Measurement, p Params) ([]AreaPoint, error) {
	if err := checkMeasurements(ms); err != nil {
		return nil, err
	}

	switch p.AreaMethod {
	case AreaMethodDifference:
		return differenceAreas(ms, p.MinArea), nil
	case AreaMethodLocalRegression, "":
		return regressionAreas(ms, p.MinArea), nil
	}
	return nil, fmt.Errorf("%w: unknown area method %q", ErrInvalidParams, p.AreaMethod)
}

func checkMeasurements(ms []Measurement) error {
	if len(ms) < MinMeasurements {
		return fmt.Errorf("%w: need at least %d measurements, got %d", ErrInsufficientData, MinMeasurements, len(ms))
	}
	for i := 1; i < len(ms); i++ {
		if !(ms[i].Height > ms[i-1].Height) {
			return fmt.Errorf("%w: height %.4g at index %d follows %.4g", ErrNonMonotonic, ms[i].Height, i, ms[i-1].Height)
		}
	}
	return nil
}

func differenceAreas(ms []Measurement, floor float64) []AreaPoint {
	out := make([]AreaPoint, 0, len(ms)-1)
	for i := 1; i < len(ms); i++ {
		dh := ms[i].Height - ms[i-1].Height
		dv := ms[i].Volume - ms[i-1].Volume
		out = append(out, AreaPoint{
			Height:    ms[i].Height,
			MidHeight: (ms[i].Height + ms[i-1].Height) / 2,
			Volume:    ms[i].Volume,
			Area:      math.Max(dv/dh, floor),
		})
	}
	return out
}

func regressionAreas(ms []Measurement, floor float64) []AreaPoint {
	n := len(ms)
	half := oddWindow(n, 10, 5, 9) / 2

	heights := make([]float64, n)
	volumes := make([]float64, n)
	for i, m := range ms {
		heights[i], volumes[i] = m.Height, m.Volume
	}

	areas := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := max(0, i-half)
		hi := min(n, i+half+1)
		_, slope := stat.LinearRegression(heights[lo:hi], volumes[lo:hi], nil, false)
		if hi-lo < 2 || math.IsNaN(slope) || math.IsInf(slope, 0) {
			slope = differenceSlope(heights, volumes, i)
		}
		areas[i] = math.Max(slope, floor)
	}
	areas = MedianFilter(areas, 3)

	out := make([]AreaPoint, n)
	for i := range out {
		out[i] = AreaPoint{Height: heights[i], MidHeight: heights[i], Volume: volumes[i], Area: areas[i]}
	}
	return out
}

// differenceSlope is the one-sided difference used when a local fit is singular
func differenceSlope(h, v []float64, i int) float64 {
	if i == 0 {
		if len(h) < 2 {
			return 0
		}
		i = 1
	}
	return (v[i] - v[i-1]) / (h[i] - h[i-1] + 1e-6)
}

func splitAreaPoints(pts []AreaPoint) (heights, areas []float64) {
	heights = make([]float64, len(pts))
	areas = make([]float64, len(pts))
	for i, pt := range pts {
		heights[i], areas[i] = pt.Height, pt.Area
	}
	return heights, areas
}
