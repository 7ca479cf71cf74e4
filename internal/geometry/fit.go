package geometry

import (
	"fmt"
	"math"
	"sort"
)

// SegmentFit is the model selected for one segment together with every attempt
type SegmentFit struct {
	Candidate FitCandidate
	Attempts  []FitResult
	// FallbackUsed is set when no model converged
	FallbackUsed bool
	// CylinderPreferred is set when a near-degenerate frustum was replaced
	CylinderPreferred bool
}

// FitSegment fits all four primitives to one segment's heights, cumulative
// volumes and areas, then picks the lowest complexity-adjusted error
func FitSegment(heights, volumes, areas []float64, p Params) SegmentFit {
	d := newSegmentData(heights, volumes, areas)

	var out SegmentFit
	for _, kind := range AllShapeKinds {
		out.Attempts = append(out.Attempts, fitModel(kind, d, p))
	}

	var ok []FitCandidate
	for _, r := range out.Attempts {
		if r.OK() {
			ok = append(ok, r.Candidate)
		}
	}
	if len(ok) == 0 {
		out.FallbackUsed = true
		out.Candidate = FitCandidate{Shape: Shape{Kind: Cylinder, R1: radiusFromArea(d.medianArea())}}
		return out
	}

	out.Candidate, out.CylinderPreferred = selectCandidate(ok, p)
	return out
}

// fitModel runs one bounded fit. Any failure, including a panic inside the
// solver, is returned as a failed FitResult.
func fitModel(kind ShapeKind, d segmentData, p Params) (res FitResult) {
	res.Kind = kind
	defer func() {
		if r := recover(); r != nil {
			res = FitResult{Kind: kind, Err: fmt.Errorf("%v fit panic recovered: %v", kind, r)}
		}
	}()

	if len(d.x) < 2 {
		res.Err = fmt.Errorf("%v fit: need at least 2 samples, got %d", kind, len(d.x))
		return res
	}
	guess, b, err := modelSetup(kind, d, p)
	if err != nil {
		res.Err = fmt.Errorf("%v fit: %w", kind, err)
		return res
	}
	x, _, err := solveBounded(d.objective(kind), guess, b, p.MaxFunctionEvals)
	if err != nil {
		res.Err = fmt.Errorf("%v fit: %w", kind, err)
		return res
	}

	shape, err := ShapeFromValues(kind, x)
	if err != nil {
		res.Err = err
		return res
	}
	shape = canonical(shape, d.span)
	errPct := d.errorPct(shape)
	if math.IsNaN(errPct) || math.IsInf(errPct, 0) {
		res.Err = fmt.Errorf("%v fit: error is not finite", kind)
		return res
	}
	res.Candidate = FitCandidate{Shape: shape, ErrorPct: errPct}
	return res
}

// adjustedError adds the complexity penalty to frustum and cone fits that are
// already good
func adjustedError(c FitCandidate, p Params) float64 {
	if c.ErrorPct >= p.PenaltyErrorLimit {
		return c.ErrorPct
	}
	switch c.Shape.Kind {
	case Frustum:
		return c.ErrorPct + p.FrustumPenalty
	case Cone:
		return c.ErrorPct + p.ConePenalty
	case Cylinder, SphereCap:
	}
	return c.ErrorPct
}

// selectCandidate ranks successful fits by adjusted error and replaces a
// near-degenerate frustum with a cylinder
func selectCandidate(cands []FitCandidate, p Params) (FitCandidate, bool) {
	ranked := append([]FitCandidate(nil), cands...)
	sort.SliceStable(ranked, func(a, b int) bool {
		return adjustedError(ranked[a], p) < adjustedError(ranked[b], p)
	})
	best := ranked[0]
	if best.Shape.Kind != Frustum {
		return best, false
	}

	r1, r2 := best.Shape.R1, best.Shape.R2
	rMax := math.Max(r1, r2)
	if rMax <= 0 || math.Abs(r2-r1)/rMax >= p.DegenerateFrustum {
		return best, false
	}

	for _, c := range cands {
		if c.Shape.Kind == Cylinder {
			if c.ErrorPct <= best.ErrorPct*p.CylinderPreference {
				return c, true
			}
			return best, false
		}
	}
	return FitCandidate{
		Shape:    Shape{Kind: Cylinder, R1: (r1 + r2) / 2},
		ErrorPct: best.ErrorPct,
	}, true
}

// FitSegments fits every segment delimited by bounds over the area points and
// returns the segments with the fit details of each.
func FitSegments(bounds []int, pts []AreaPoint, p Params) ([]Segment, []SegmentFit) {
	var segs []Segment
	var fits []SegmentFit
	for i := 0; i < len(bounds)-1; i++ {
		start, end := bounds[i], bounds[i+1]
		if end <= start {
			continue
		}
		h := make([]float64, 0, end-start+1)
		v := make([]float64, 0, end-start+1)
		a := make([]float64, 0, end-start+1)
		for _, pt := range pts[start : end+1] {
			h = append(h, pt.Height)
			v = append(v, pt.Volume)
			a = append(a, pt.Area)
		}
		fit := FitSegment(h, v, a, p)
		segs = append(segs, Segment{
			Start:        start,
			End:          end,
			StartHeight:  pts[start].Height,
			EndHeight:    pts[end].Height,
			Shape:        fit.Candidate.Shape,
			ErrorPct:     fit.Candidate.ErrorPct,
			FallbackUsed: fit.FallbackUsed,
		})
		fits = append(fits, fit)
	}
	return segs, fits
}
