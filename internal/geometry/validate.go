package geometry

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// segmentSignals are the three votes cast for one candidate segment
type segmentSignals struct {
	CV        float64
	Autocorr  float64
	RSquared  float64
	Variation bool
	Structure bool
	Linear    bool
}

func (s segmentSignals) votes() int {
	n := 0
	for _, ok := range []bool{s.Variation, s.Structure, s.Linear} {
		if ok {
			n++
		}
	}
	return n
}

// ValidateBoundaries prunes interior boundaries whose segments fail a majority
// vote of variation, lag-1 autocorrelation and linear fit quality. The boundaries
// closing the first and last segments are always kept. Pruning repeats until
// nothing changes, so the result validates to itself.
func ValidateBoundaries(bounds []int, heights, areas []float64, p Params) []int {
	cur := append([]int(nil), bounds...)
	for {
		next := validatePass(cur, heights, areas, p)
		if len(next) == len(cur) {
			return next
		}
		cur = next
	}
}

func validatePass(bounds []int, heights, areas []float64, p Params) []int {
	if len(bounds) < 2 {
		return append([]int(nil), bounds...)
	}
	last := len(bounds) - 2
	out := []int{bounds[0]}
	for i := 0; i <= last; i++ {
		start, end := bounds[i], bounds[i+1]
		if end-start+1 < p.MinSegmentPoints && i != last {
			continue
		}
		if i == 0 || i == last {
			out = append(out, end)
			continue
		}
		if segmentVotes(heights[start:end+1], areas[start:end+1], p).votes() >= 2 {
			out = append(out, end)
		}
	}
	if out[len(out)-1] != bounds[len(bounds)-1] {
		out = append(out, bounds[len(bounds)-1])
	}
	return out
}

func segmentVotes(h, a []float64, p Params) segmentSignals {
	var s segmentSignals
	mean, std := meanStd(a)
	s.CV = std / (mean + 1e-8)
	s.Variation = s.CV > p.ValidationCV

	if len(a) > 3 {
		s.Autocorr = stat.Correlation(a[:len(a)-1], a[1:], nil)
		// constant runs have no defined correlation and carry no structure
		s.Structure = !math.IsNaN(s.Autocorr) && math.Abs(s.Autocorr) > p.ValidationAutocorr
	} else {
		s.Structure = true
	}

	if len(a) > 2 {
		alpha, beta := stat.LinearRegression(h, a, nil, false)
		var ssRes, ssTot float64
		for i := range a {
			r := a[i] - (alpha + beta*h[i])
			ssRes += r * r
			d := a[i] - mean
			ssTot += d * d
		}
		s.RSquared = 1 - ssRes/(ssTot+1e-8)
		s.Linear = s.RSquared > p.ValidationR2
	} else {
		s.Linear = true
	}
	return s
}
