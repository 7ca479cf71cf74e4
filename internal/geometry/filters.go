package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var errFilterWindow = errors.New("invalid filter window")

// oddWindow clamps n/div to [lo, hi] and bumps even results to the next odd size
func oddWindow(n, div, lo, hi int) int {
	w := n / div
	if w < lo {
		w = lo
	}
	if w > hi {
		w = hi
	}
	if w%2 == 0 {
		w++
	}
	return w
}

// SavitzkyGolay smooths x with a least-squares polynomial of the given order over
// a moving window. The first and last half-windows are taken from the polynomial
// fitted to the first and last full window (scipy's "interp" mode).
func SavitzkyGolay(x []float64, window, order int) ([]float64, error) {
	n := len(x)
	switch {
	case window < 1 || window%2 == 0:
		return nil, fmt.Errorf("%w: window %d must be a positive odd number", errFilterWindow, window)
	case order >= window:
		return nil, fmt.Errorf("%w: polynomial order %d must be less than window %d", errFilterWindow, order, window)
	case window > n:
		return nil, fmt.Errorf("%w: window %d exceeds signal length %d", errFilterWindow, window, n)
	}

	proj, err := polyProjection(window, order)
	if err != nil {
		return nil, err
	}

	half := window / 2
	out := make([]float64, n)
	row := func(k, offset int) float64 {
		var sum float64
		for j := 0; j < window; j++ {
			sum += proj.At(k, j) * x[offset+j]
		}
		return sum
	}

	for i := 0; i < half; i++ {
		out[i] = row(i, 0)
	}
	for i := half; i < n-half; i++ {
		out[i] = row(half, i-half)
	}
	for k := half + 1; k < window; k++ {
		out[n-window+k] = row(k, n-window)
	}
	return out, nil
}

// polyProjection returns the hat matrix Q·Qᵀ of a polynomial least-squares fit
// over window equally spaced samples. Row k maps the window to the fitted value
// at sample k.
func polyProjection(window, order int) (*mat.Dense, error) {
	cols := order + 1
	half := window / 2
	X := mat.NewDense(window, cols, nil)
	for i := 0; i < window; i++ {
		t := float64(i - half)
		for j := 0; j < cols; j++ {
			X.Set(i, j, math.Pow(t, float64(j)))
		}
	}

	var qr mat.QR
	qr.Factorize(X)
	if c := qr.Cond(); math.IsInf(c, 0) || c > 1e12 {
		return nil, fmt.Errorf("%w: polynomial basis is singular (cond %.3g)", errFilterWindow, c)
	}

	var q mat.Dense
	qr.QTo(&q)
	thin := q.Slice(0, window, 0, cols)

	var proj mat.Dense
	proj.Mul(thin, thin.T())
	return &proj, nil
}

// GaussianSmooth convolves x with a normalized Gaussian kernel truncated at 4σ.
// Samples beyond either end repeat the nearest edge value.
func GaussianSmooth(x []float64, sigma float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if sigma <= 0 || n == 0 {
		copy(out, x)
		return out
	}

	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	for i := 0; i < n; i++ {
		var sum float64
		for k, w := range kernel {
			sum += w * x[clampIndex(i+k-radius, n)]
		}
		out[i] = sum
	}
	return out
}

// MedianFilter replaces each sample with the median of a centered window.
// Samples beyond either end repeat the nearest edge value. kernelSize must be
// a positive odd integer.
func MedianFilter(x []float64, kernelSize int) []float64 {
	if kernelSize < 1 || kernelSize%2 == 0 {
		panic("kernelSize must be positive odd integer")
	}
	n := len(x)
	if n == 0 {
		return nil
	}

	half := kernelSize / 2
	out := make([]float64, n)
	window := make([]float64, kernelSize)
	for i := 0; i < n; i++ {
		for j := -half; j <= half; j++ {
			window[j+half] = x[clampIndex(i+j, n)]
		}
		sort.Float64s(window)
		out[i] = window[half]
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Gradient differentiates y with respect to x using second-order central
// differences inside and second-order one-sided differences at the ends.
// Unequal spacing is supported.
func Gradient(y, x []float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	switch {
	case n < 2:
		return out
	case n == 2:
		d := (y[1] - y[0]) / (x[1] - x[0])
		out[0], out[1] = d, d
		return out
	}

	for i := 1; i < n-1; i++ {
		hs := x[i] - x[i-1]
		hd := x[i+1] - x[i]
		out[i] = (hs*hs*y[i+1] + (hd*hd-hs*hs)*y[i] - hd*hd*y[i-1]) / (hs * hd * (hd + hs))
	}

	dx1, dx2 := x[1]-x[0], x[2]-x[1]
	a := -(2*dx1 + dx2) / (dx1 * (dx1 + dx2))
	b := (dx1 + dx2) / (dx1 * dx2)
	c := -dx1 / (dx2 * (dx1 + dx2))
	out[0] = a*y[0] + b*y[1] + c*y[2]

	dx1, dx2 = x[n-2]-x[n-3], x[n-1]-x[n-2]
	a = dx2 / (dx1 * (dx1 + dx2))
	b = -(dx2 + dx1) / (dx1 * dx2)
	c = (2*dx2 + dx1) / (dx2 * (dx1 + dx2))
	out[n-1] = a*y[n-3] + b*y[n-2] + c*y[n-1]
	return out
}

// GradientIndex differentiates y with respect to its sample index
func GradientIndex(y []float64) []float64 {
	return Gradient(y, indexAxis(len(y)))
}

func indexAxis(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	return x
}

// Normalize rescales x to [0, 1]. A signal whose range is negligible next to
// its magnitude normalizes to all zeros.
func Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	lo, hi := floats.Min(x), floats.Max(x)
	scale := math.Max(math.Abs(lo), math.Abs(hi))
	if hi-lo < 1e-6*scale+1e-10 {
		return out
	}
	for i, v := range x {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// Percentile returns the p-th percentile (0-100) of x with linear interpolation
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	return stat.Quantile(math.Min(math.Max(p/100, 0), 1), stat.LinInterp, sorted, nil)
}

// FindPeaks returns the indices of local maxima of x that reach height and are
// at least distance samples apart. When two peaks are closer than distance the
// higher one is kept. Flat-topped peaks report their middle sample.
func FindPeaks(x []float64, height float64, distance int) []int {
	n := len(x)
	var peaks []int
	for i := 1; i < n-1; {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
				continue
			}
		}
		i++
	}

	kept := peaks[:0]
	for _, p := range peaks {
		if x[p] >= height {
			kept = append(kept, p)
		}
	}
	peaks = kept
	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] > x[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for _, i := range order {
		if !keep[i] {
			continue
		}
		for j := i - 1; j >= 0 && peaks[i]-peaks[j] < distance; j-- {
			keep[j] = false
		}
		for j := i + 1; j < len(peaks) && peaks[j]-peaks[i] < distance; j++ {
			keep[j] = false
		}
	}

	var out []int
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// meanStd returns the mean and population standard deviation of x, or zeros for
// an empty slice.
func meanStd(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(x, nil)
}

// smoothOrFallback applies a Savitzky-Golay filter and falls back to a Gaussian
// of width sigma when the filter cannot be built for this signal.
func smoothOrFallback(x []float64, window, order int, sigma float64) []float64 {
	out, err := SavitzkyGolay(x, window, order)
	if err != nil {
		return GaussianSmooth(x, sigma)
	}
	return out
}

func absAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v)
	}
	return out
}

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := range out {
		out[i] = x[i+1] - x[i]
	}
	return out
}
