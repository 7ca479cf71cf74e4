package geometry

import (
	"math"
	"math/rand"
)

// sampleHeights returns n evenly spaced heights over [0, top]
func sampleHeights(top float64, n int) []float64 {
	h := make([]float64, n)
	for i := range h {
		h[i] = top * float64(i) / float64(n-1)
	}
	return h
}

// measure evaluates a cumulative volume curve at n evenly spaced heights
func measure(volume func(h float64) float64, top float64, n int) []Measurement {
	ms := make([]Measurement, n)
	for i, h := range sampleHeights(top, n) {
		ms[i] = Measurement{Height: h, Volume: volume(h)}
	}
	return ms
}

// stacked returns the volume curve of s up to height at, continued by a
// cylinder of radius r above it
func stacked(s Shape, at, r float64) func(h float64) float64 {
	return func(h float64) float64 {
		if h <= at {
			return s.Volume(h)
		}
		return s.Volume(at) + math.Pi*r*r*(h-at)
	}
}

func indexHeights(n int) []float64 {
	return indexAxis(n)
}

func constantAreas(value float64, n int) []float64 {
	a := make([]float64, n)
	for i := range a {
		a[i] = value
	}
	return a
}

func rampAreas(from, to float64, n int) []float64 {
	a := make([]float64, n)
	for i := range a {
		a[i] = from + (to-from)*float64(i)/float64(n-1)
	}
	return a
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// noisyAreas is a constant area with multiplicative gaussian noise of relative
// size sigma
func noisyAreas(mean, sigma float64, n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	a := make([]float64, n)
	for i := range a {
		a[i] = math.Max(mean*(1+sigma*rng.NormFloat64()), 0.01)
	}
	return a
}
