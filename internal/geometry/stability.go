package geometry

import (
	"fmt"
	"math"
	"sort"
)

// Strategy names the detector chosen for a run
type Strategy int

const (
	StrategyMultiDerivative Strategy = iota
	StrategyStability
	// StrategyLegacy is reported when TransitionMethodLegacy bypasses routing
	StrategyLegacy
)

func (s Strategy) String() string {
	switch s {
	case StrategyMultiDerivative:
		return "multi_derivative"
	case StrategyStability:
		return "stability"
	case StrategyLegacy:
		return "legacy"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Strategy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "multi_derivative":
		*s = StrategyMultiDerivative
	case "stability":
		*s = StrategyStability
	case "legacy":
		*s = StrategyLegacy
	default:
		return fmt.Errorf("unknown strategy %q", string(b))
	}
	return nil
}

// SegmentCountPrediction holds the three heuristic votes and their median
type SegmentCountPrediction struct {
	ZeroCrossing    int `json:"zero_crossing"`
	CurvatureRegime int `json:"curvature_regime"`
	Variance        int `json:"variance"`
	Ensemble        int `json:"ensemble"`
}

// Unanimous reports whether all three heuristics agree
func (p SegmentCountPrediction) Unanimous() bool {
	return p.ZeroCrossing == p.CurvatureRegime && p.CurvatureRegime == p.Variance
}

// PredictSegmentCount votes on the number of segments (1 to 3) with three
// independent heuristics and returns the median vote
func PredictSegmentCount(heights, areas []float64) SegmentCountPrediction {
	pred := SegmentCountPrediction{
		ZeroCrossing:    predictZeroCrossings(heights, areas),
		CurvatureRegime: predictCurvatureRegimes(heights, areas),
		Variance:        predictVariancePeaks(areas),
	}
	votes := []int{pred.ZeroCrossing, pred.CurvatureRegime, pred.Variance}
	sort.Ints(votes)
	pred.Ensemble = votes[1]
	return pred
}

// curvatureTolerance is the second-derivative magnitude treated as rounding
// noise for this signal
func curvatureTolerance(heights, areas []float64) float64 {
	n := len(areas)
	span := heights[n-1] - heights[0]
	if span <= 0 {
		span = 1
	}
	mean, _ := meanStd(absAll(areas))
	return 1e-6 * mean / (span * span)
}

// predictZeroCrossings counts sign changes of d²A/dh²; two changes bound one
// segment
func predictZeroCrossings(heights, areas []float64) int {
	if len(areas) < 10 {
		return 1
	}
	d2 := Gradient(Gradient(areas, heights), heights)
	tol := curvatureTolerance(heights, areas)

	sign := func(v float64) int {
		switch {
		case v > tol:
			return 1
		case v < -tol:
			return -1
		}
		return 0
	}
	changes := 0
	for i := 1; i < len(d2); i++ {
		if sign(d2[i]) != sign(d2[i-1]) {
			changes++
		}
	}
	return min(1+changes/2, 3)
}

// curvatureSignal returns |d²A/dh²| / (1+|dA/dh|)^1.5
func curvatureSignal(heights, areas []float64) []float64 {
	out := make([]float64, len(areas))
	if len(areas) < 3 {
		return out
	}
	d1 := Gradient(areas, heights)
	d2 := Gradient(d1, heights)
	for i := range out {
		out[i] = math.Abs(d2[i]) / (math.Pow(1+math.Abs(d1[i]), 1.5) + 1e-8)
	}
	return out
}

// predictCurvatureRegimes counts large jumps of the smoothed curvature
func predictCurvatureRegimes(heights, areas []float64) int {
	n := len(areas)
	if n < 10 {
		return 1
	}
	curv := smoothOrFallback(curvatureSignal(heights, areas), min(7, n|1), 2, 2.0)
	dcurv := GradientIndex(curv)

	_, threshold := meanStd(dcurv)
	if threshold < curvatureTolerance(heights, areas) {
		return 1
	}
	jumps := 0
	for _, v := range dcurv {
		if math.Abs(v) > threshold {
			jumps++
		}
	}
	return min(1+jumps/3, 3)
}

// predictVariancePeaks counts sliding windows whose variance clearly exceeds
// the median window variance
func predictVariancePeaks(areas []float64) int {
	n := len(areas)
	if n < 15 {
		return 1
	}
	window := max(4, n/5)
	step := max(1, window/2)

	var vars []float64
	for i := 0; i < n-window; i += step {
		_, std := meanStd(areas[i : i+window])
		vars = append(vars, std*std)
	}
	if len(vars) == 0 {
		return 1
	}

	mean, _ := meanStd(areas)
	noiseVar := 1e-9 * mean
	sorted := append([]float64(nil), vars...)
	sort.Float64s(sorted)
	if sorted[len(sorted)-1] <= noiseVar*noiseVar {
		return 1
	}
	median := medianSorted(sorted)

	peaks := 0
	for _, v := range vars {
		if v > 1.2*median {
			peaks++
		}
	}
	return min(1+peaks/2, 3)
}

func medianSorted(s []float64) float64 {
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// SelectStrategy picks the detector for a prediction. The stability detector is
// used only when routing is enabled, the ensemble predicts at least
// StabilityMinPredicted segments and, when required, the votes are unanimous.
func SelectStrategy(pred SegmentCountPrediction, p Params) Strategy {
	if !p.EnableStabilityRouting || pred.Ensemble < p.StabilityMinPredicted {
		return StrategyMultiDerivative
	}
	if p.StabilityRequireUnanimous && !pred.Unanimous() {
		return StrategyMultiDerivative
	}
	return StrategyStability
}

// stabilityMetric returns the smoothed ratio of windowed curvature to
// (1+|slope|) and its index derivative
func stabilityMetric(heights, areas []float64) (stab, dS []float64) {
	n := len(areas)
	smooth := smoothOrFallback(areas, oddWindow(n, 10, 5, 15), 2, 2.0)
	d1 := Gradient(smooth, heights)
	d2 := absAll(Gradient(d1, heights))

	const half = 2
	raw := make([]float64, n)
	for i := range raw {
		w, _ := meanStd(d2[max(0, i-half):min(n, i+half+1)])
		raw[i] = w / (1 + math.Abs(d1[i]) + 1e-8)
	}
	stab = smoothOrFallback(raw, min(7, n|1), 2, 2.0)
	return stab, GradientIndex(stab)
}

type stabilityCandidate struct {
	index int
	score float64
}

// DetectStabilityTransitions finds sustained jumps of the curvature stability
// metric. It returns at most StabilityMaxTransitions interior boundaries spaced
// at least max(2L, StabilitySpacingFraction·n) apart.
func DetectStabilityTransitions(heights, areas []float64, p Params) []int {
	n := len(areas)
	L := p.MinSegmentPoints
	if n < 2*L {
		return endpoints(n)
	}

	stab, dS := stabilityMetric(heights, areas)
	if floatsMaxAbs(dS) < curvatureTolerance(heights, areas) {
		return endpoints(n)
	}
	_, std := meanStd(dS)
	threshold := std * p.StabilityThresholdFactor
	if threshold < 1e-8 {
		threshold = floatsMaxAbs(dS) * 0.3
	}

	mean := func(lo, hi int) (float64, bool) {
		lo, hi = max(0, lo), min(n, hi)
		if hi <= lo {
			return 0, false
		}
		m, _ := meanStd(stab[lo:hi])
		return m, true
	}

	var candidates []stabilityCandidate
	for i := L; i < n-L; i++ {
		left, _ := mean(i-7, i)
		right, _ := mean(i, i+7)
		jump := math.Abs(right - left)

		sustained := true
		if i > 12 && i < n-12 {
			before, okB := mean(i-12, i-7)
			after, okA := mean(i+7, i+12)
			if okB && okA {
				sustained = math.Abs(before-left) < 0.4*jump && math.Abs(right-after) < 0.4*jump
			}
		}

		if jump > 0.6*threshold && math.Abs(dS[i]) > 0.5*threshold && sustained {
			candidates = append(candidates, stabilityCandidate{index: i, score: jump * math.Abs(dS[i])})
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	spacing := max(2*L, int(float64(n)*p.StabilitySpacingFraction))
	bounds := []int{0}
	for _, c := range candidates {
		if c.index-bounds[len(bounds)-1] >= spacing && c.index <= n-L {
			bounds = append(bounds, c.index)
			if len(bounds) > p.StabilityMaxTransitions {
				break
			}
		}
	}
	if bounds[len(bounds)-1] != n-1 {
		bounds = append(bounds, n-1)
	}
	sort.Ints(bounds)
	return bounds
}

func floatsMaxAbs(x []float64) float64 {
	var m float64
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// ValidateStabilityTransitions keeps an interior boundary only if the area
// curvature (or, for two near-linear sides, the area gradient) differs clearly
// between the samples just below and just above it
func ValidateStabilityTransitions(heights, areas []float64, bounds []int) []int {
	if len(bounds) < 2 {
		return append([]int(nil), bounds...)
	}
	out := []int{bounds[0]}
	for _, b := range bounds[1 : len(bounds)-1] {
		if validStabilityBoundary(heights, areas, b, 5) {
			out = append(out, b)
		}
	}
	return append(out, bounds[len(bounds)-1])
}

type gradientStats struct {
	meanGradient  float64
	meanCurvature float64
}

func segmentGradientStats(heights, areas []float64, start, end int) (gradientStats, bool) {
	if end-start < 3 {
		return gradientStats{}, false
	}
	h := heights[start : end+1]
	g := Gradient(areas[start:end+1], h)
	c := Gradient(g, h)
	mg, _ := meanStd(absAll(g))
	mc, _ := meanStd(absAll(c))
	return gradientStats{meanGradient: mg, meanCurvature: mc}, true
}

func validStabilityBoundary(heights, areas []float64, idx, pts int) bool {
	n := len(areas)
	if idx < pts || idx > n-pts-1 {
		return false
	}
	left, okL := segmentGradientStats(heights, areas, max(0, idx-pts), idx)
	right, okR := segmentGradientStats(heights, areas, idx, min(n-1, idx+pts))
	if !okL || !okR {
		return false
	}

	if left.meanCurvature > 0.1 || right.meanCurvature > 0.1 {
		hi := math.Max(left.meanCurvature, right.meanCurvature)
		lo := math.Min(left.meanCurvature, right.meanCurvature)
		return hi/(lo+1e-8) > 1.5
	}
	avg := (left.meanGradient + right.meanGradient) / 2
	return math.Abs(left.meanGradient-right.meanGradient) > 0.2*avg
}
