package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

var (
	errNotConverged = errors.New("solver did not converge")
	errBadBounds    = errors.New("invalid parameter bounds")
)

// box is a set of per-parameter bounds. Bounded parameters are searched through
// x = lo + (hi-lo)·(sin(u)+1)/2 so the unconstrained solver never leaves the box.
type box struct {
	lo, hi []float64
}

func (b box) valid() bool {
	if len(b.lo) != len(b.hi) || len(b.lo) == 0 {
		return false
	}
	for i := range b.lo {
		if !(b.lo[i] < b.hi[i]) || math.IsNaN(b.lo[i]) || math.IsInf(b.hi[i], 0) {
			return false
		}
	}
	return true
}

func (b box) bounded(u []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		x[i] = b.lo[i] + (b.hi[i]-b.lo[i])*(math.Sin(v)+1)/2
	}
	return x
}

func (b box) free(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		t := 2*(v-b.lo[i])/(b.hi[i]-b.lo[i]) - 1
		u[i] = math.Asin(math.Max(-1, math.Min(1, t)))
	}
	return u
}

// solveBounded minimizes f inside the box starting from guess with a
// Nelder-Mead simplex. Reaching the evaluation cap is reported as failure.
func solveBounded(f func(x []float64) float64, guess []float64, b box, maxEvals int) ([]float64, float64, error) {
	if !b.valid() || len(guess) != len(b.lo) {
		return nil, 0, errBadBounds
	}

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			v := f(b.bounded(u))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return math.MaxFloat64
			}
			return v
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 50,
		},
	}

	res, err := optimize.Minimize(problem, b.free(guess), settings, &optimize.NelderMead{SimplexSize: 0.1})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errNotConverged, err)
	}
	switch res.Status {
	case optimize.FunctionEvaluationLimit, optimize.IterationLimit, optimize.RuntimeLimit:
		return nil, 0, fmt.Errorf("%w: %v after %d evaluations", errNotConverged, res.Status, res.Stats.FuncEvaluations)
	}
	if res.F == math.MaxFloat64 {
		return nil, 0, fmt.Errorf("%w: objective is not finite", errNotConverged)
	}
	return b.bounded(res.X), res.F, nil
}
