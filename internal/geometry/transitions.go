package geometry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// minScore is the smallest normalized score that can mark a boundary. Below it
// only rounding noise of an otherwise smooth signal remains.
const minScore = 0.01

// detection carries the intermediate values of one detector run for logging
type detection struct {
	Window     int
	SNR        float64
	Percentile float64
	Threshold  float64
	Candidates int
}

// DetectTransitions locates boundaries between geometric segments from the area
// signal using a combined first/second derivative score with an SNR-adaptive
// threshold. The result is ordered and always starts at 0 and ends at n-1.
func DetectTransitions(heights, areas []float64, p Params) []int {
	bounds, _ := detectMultiDerivative(heights, areas, p)
	return bounds
}

func detectMultiDerivative(heights, areas []float64, p Params) ([]int, detection) {
	n := len(areas)
	L := p.MinSegmentPoints
	var info detection
	if n < 2*L {
		return endpoints(n), info
	}

	info.Window = oddWindow(n, 10, 5, 15)
	smooth := smoothOrFallback(areas, info.Window, 2, 2.0)

	d1 := Gradient(smooth, heights)
	d2 := Gradient(d1, heights)

	tolChange, tolCurv := derivativeTolerance(heights, areas)
	change := Normalize(floorNoise(absAll(diff(d1)), tolChange))
	curvature := Normalize(floorNoise(absAll(d2[:n-1]), tolCurv))
	score := make([]float64, n-1)
	for i := range score {
		score[i] = 0.6*change[i] + 0.4*curvature[i]
	}

	info.SNR = estimateSNR(areas)
	info.Percentile = snrPercentile(info.SNR)
	info.Threshold = math.Max(Percentile(score, info.Percentile), minScore)

	peaks := prominentPeaks(score, FindPeaks(score, info.Threshold, L), L, minScore)
	candidates := make([]int, len(peaks))
	for i, pk := range peaks {
		// score[i] describes the step between samples i and i+1
		candidates[i] = pk + 1
	}
	info.Candidates = len(candidates)

	bounds := spaceCandidates(candidates, n, L)
	return RefineBoundaries(heights, areas, bounds, info.Window/2+1, L), info
}

// RefineBoundaries moves every interior boundary by at most radius samples to
// the split that best separates the neighbouring samples into two straight
// lines. Boundaries keep at least L samples to their neighbours.
func RefineBoundaries(heights, areas []float64, bounds []int, radius, L int) []int {
	out := append([]int(nil), bounds...)
	for j := 1; j < len(out)-1; j++ {
		prev, next, c := out[j-1], out[j+1], out[j]
		splitCost := func(k int) (float64, bool) {
			if k-prev < L || next-k < L {
				return 0, false
			}
			lo, hi := max(prev, k-L), min(next, k+L)
			return lineSSE(heights[lo:k], areas[lo:k]) + lineSSE(heights[k:hi+1], areas[k:hi+1]), true
		}

		best, bestCost := c, math.Inf(1)
		if cost, ok := splitCost(c); ok {
			bestCost = cost
		}
		for k := c - radius; k <= c+radius; k++ {
			cost, ok := splitCost(k)
			if !ok {
				continue
			}
			if math.IsInf(bestCost, 1) {
				best, bestCost = k, cost
				continue
			}
			tol := 1e-12 * (math.Abs(bestCost) + 1)
			switch {
			case cost < bestCost-tol:
				best, bestCost = k, cost
			case math.Abs(cost-bestCost) <= tol && absInt(k-c) < absInt(best-c):
				best = k
			}
		}
		out[j] = best
	}
	return out
}

// lineSSE is the residual sum of squares of a least-squares line through (x, y)
func lineSSE(x, y []float64) float64 {
	if len(y) < 2 {
		return 0
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	var sum float64
	for i := range y {
		r := y[i] - (alpha + beta*x[i])
		sum += r * r
	}
	return sum
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// derivativeTolerance returns the magnitudes of a first derivative change and a
// second derivative that are indistinguishable from rounding error for an area
// signal of this scale and sampling
func derivativeTolerance(heights, areas []float64) (float64, float64) {
	n := len(areas)
	step := (heights[n-1] - heights[0]) / float64(n-1)
	if step <= 0 {
		step = 1
	}
	scale, _ := meanStd(absAll(areas))
	tol := 1e-9 * scale / step
	return tol, tol / step
}

func floorNoise(x []float64, tol float64) []float64 {
	for i, v := range x {
		if v < tol {
			x[i] = 0
		}
	}
	return x
}

// prominentPeaks drops peaks that do not rise at least minRise above the lower
// of the two minima within window samples on either side. Plateaus of a
// smoothly curving signal produce no boundaries this way.
func prominentPeaks(x []float64, peaks []int, window int, minRise float64) []int {
	var out []int
	for _, p := range peaks {
		left := x[p]
		for i := max(0, p-window); i < p; i++ {
			left = math.Min(left, x[i])
		}
		right := x[p]
		for i := p + 1; i < min(len(x), p+window+1); i++ {
			right = math.Min(right, x[i])
		}
		if x[p]-math.Max(left, right) >= minRise {
			out = append(out, p)
		}
	}
	return out
}

// estimateSNR compares the range of the area signal to the residual left after
// a wide smoothing pass
func estimateSNR(areas []float64) float64 {
	n := len(areas)
	w := n / 5
	if w%2 == 0 {
		w++
	}
	w = min(21, max(w, 5))
	baseline := smoothOrFallback(areas, w, 2, 2.0)

	residual := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, a := range areas {
		residual[i] = a - baseline[i]
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	_, noise := meanStd(residual)
	return (hi - lo) / (noise + 1e-8)
}

// snrPercentile maps signal quality to the score percentile used as threshold.
// Noisier signals get a stricter threshold.
func snrPercentile(snr float64) float64 {
	switch {
	case snr > 100:
		return 70
	case snr > 50:
		return 75
	case snr > 20:
		return 80
	case snr > 10:
		return 85
	}
	return 90
}

// spaceCandidates keeps candidates in increasing order that leave at least L
// samples to the previous boundary and to the end of the signal
func spaceCandidates(candidates []int, n, L int) []int {
	sorted := append([]int(nil), candidates...)
	sort.Ints(sorted)

	bounds := []int{0}
	for _, c := range sorted {
		if c-bounds[len(bounds)-1] >= L && c <= n-L {
			bounds = append(bounds, c)
		}
	}
	if bounds[len(bounds)-1] != n-1 {
		bounds = append(bounds, n-1)
	}
	return bounds
}

func endpoints(n int) []int {
	if n <= 1 {
		return []int{0}
	}
	return []int{0, n - 1}
}

// DetectTransitionsLegacy thresholds the absolute first difference of the
// smoothed area at a fixed percentile and keeps only segments whose coefficient
// of variation exceeds LegacyVarianceThreshold.
func DetectTransitionsLegacy(areas []float64, p Params) []int {
	n := len(areas)
	L := p.MinSegmentPoints
	if n < 2*L {
		return endpoints(n)
	}

	window := oddWindow(n, 10, 5, 15)
	smooth, err := SavitzkyGolay(areas, window, min(2, window/2))
	if err != nil {
		smooth = MedianFilter(areas, window)
	}

	steps := absAll(diff(smooth))
	threshold := Percentile(steps, p.LegacyPercentile)

	bounds := []int{0}
	for i, s := range steps {
		c := i + 1
		if s > threshold && c-bounds[len(bounds)-1] >= L && c <= n-L {
			bounds = append(bounds, c)
		}
	}
	if bounds[len(bounds)-1] != n-1 {
		bounds = append(bounds, n-1)
	}

	kept := []int{0}
	for i := 0; i < len(bounds)-1; i++ {
		start, end := bounds[i], bounds[i+1]
		if end-start+1 < L {
			continue
		}
		mean, std := meanStd(areas[start:end])
		if std/(mean+1e-8) > p.LegacyVarianceThreshold {
			kept = append(kept, end)
		}
	}
	if kept[len(kept)-1] != n-1 {
		if len(kept) > 1 {
			kept[len(kept)-1] = n - 1
		} else {
			kept = append(kept, n-1)
		}
	}
	return kept
}
