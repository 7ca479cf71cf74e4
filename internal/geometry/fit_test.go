package geometry

import (
	"math"
	"testing"
)

// segmentSamples evaluates s at n heights over [0, span] and returns heights,
// cumulative volumes and exact areas
func segmentSamples(s Shape, span float64, n int) (h, v, a []float64) {
	h = sampleHeights(span, n)
	v = make([]float64, n)
	a = make([]float64, n)
	for i, x := range h {
		v[i] = s.Volume(x)
		r := s.RadiusAt(x)
		a[i] = math.Max(math.Pi*r*r, 0.01)
	}
	return h, v, a
}

func TestFitSegmentIdealShapes(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		span  float64
	}{
		{"cylinder", Shape{Kind: Cylinder, R1: 10}, 50},
		{"frustum", Shape{Kind: Frustum, R1: 8, R2: 14, H: 40}, 40},
		{"cone", Shape{Kind: Cone, R1: 10, H: 50}, 50},
		{"sphere cap", Shape{Kind: SphereCap, R1: 20}, 20},
	}

	p := DefaultParams()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, v, a := segmentSamples(tt.shape, tt.span, 40)
			fit := FitSegment(h, v, a, p)
			if fit.FallbackUsed {
				t.Fatalf("no model converged: %+v", fit.Attempts)
			}
			if fit.Candidate.Shape.Kind != tt.shape.Kind {
				t.Errorf("expected %v, got %v (error %.4f%%)", tt.shape.Kind, fit.Candidate.Shape.Kind, fit.Candidate.ErrorPct)
			}
			if fit.Candidate.ErrorPct > 0.5 {
				t.Errorf("expected near-zero error, got %.4f%%", fit.Candidate.ErrorPct)
			}
			if len(fit.Attempts) != len(AllShapeKinds) {
				t.Errorf("expected %d attempts, got %d", len(AllShapeKinds), len(fit.Attempts))
			}
		})
	}
}

func TestFitSegmentCylinderRadius(t *testing.T) {
	h, v, a := segmentSamples(Shape{Kind: Cylinder, R1: 10}, 50, 50)
	fit := FitSegment(h, v, a, DefaultParams())
	if fit.Candidate.Shape.Kind != Cylinder {
		t.Fatalf("expected cylinder, got %v", fit.Candidate.Shape.Kind)
	}
	if math.Abs(fit.Candidate.Shape.R1-10) > 1e-3 {
		t.Errorf("expected radius 10, got %f", fit.Candidate.Shape.R1)
	}
	if fit.Candidate.ErrorPct > 1e-3 {
		t.Errorf("expected near-zero error, got %f%%", fit.Candidate.ErrorPct)
	}
}

func TestFitSegmentNearDegenerateFrustum(t *testing.T) {
	// radii differ by 2%
	h, v, a := segmentSamples(Shape{Kind: Frustum, R1: 10, R2: 10.2, H: 40}, 40, 30)
	fit := FitSegment(h, v, a, DefaultParams())
	got := fit.Candidate.Shape
	if got.Kind != Cylinder {
		t.Fatalf("expected cylinder, got %v %+v", got.Kind, got)
	}
	if got.R1 < 9.9 || got.R1 > 10.3 {
		t.Errorf("cylinder radius %f outside the frustum's radii", got.R1)
	}
}

func TestFitSegmentOffsetSegment(t *testing.T) {
	// a segment starting high up the container fits the same as one at the origin
	h, v, a := segmentSamples(Shape{Kind: Cylinder, R1: 6}, 30, 25)
	for i := range h {
		h[i] += 100
		v[i] += 5000
	}
	fit := FitSegment(h, v, a, DefaultParams())
	if fit.Candidate.Shape.Kind != Cylinder || math.Abs(fit.Candidate.Shape.R1-6) > 1e-3 {
		t.Errorf("expected cylinder of radius 6, got %+v", fit.Candidate.Shape)
	}
}

func TestFitSegmentFallback(t *testing.T) {
	p := DefaultParams()
	fit := FitSegment([]float64{5}, []float64{1}, []float64{100}, p)
	if !fit.FallbackUsed {
		t.Fatal("expected fallback for a single sample")
	}
	if fit.Candidate.Shape.Kind != Cylinder {
		t.Errorf("fallback should be a cylinder, got %v", fit.Candidate.Shape.Kind)
	}
	if want := math.Sqrt(100 / math.Pi); math.Abs(fit.Candidate.Shape.R1-want) > 1e-9 {
		t.Errorf("fallback radius %f, want %f", fit.Candidate.Shape.R1, want)
	}
	for _, attempt := range fit.Attempts {
		if attempt.OK() {
			t.Errorf("%v should have failed", attempt.Kind)
		}
	}
}

func TestSelectCandidate(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name      string
		cands     []FitCandidate
		expected  Shape
		preferred bool
	}{
		{
			name: "penalty favours cylinder",
			cands: []FitCandidate{
				{Shape: Shape{Kind: Frustum, R1: 10, R2: 11, H: 40}, ErrorPct: 0.4},
				{Shape: Shape{Kind: Cylinder, R1: 10.5}, ErrorPct: 0.6},
			},
			expected: Shape{Kind: Cylinder, R1: 10.5},
		},
		{
			name: "penalty ignored for poor fits",
			cands: []FitCandidate{
				{Shape: Shape{Kind: Frustum, R1: 10, R2: 13, H: 40}, ErrorPct: 4.0},
				{Shape: Shape{Kind: Cylinder, R1: 11}, ErrorPct: 4.1},
			},
			expected: Shape{Kind: Frustum, R1: 10, R2: 13, H: 40},
		},
		{
			name: "cone penalty",
			cands: []FitCandidate{
				{Shape: Shape{Kind: Cone, R1: 10, H: 50}, ErrorPct: 1.0},
				{Shape: Shape{Kind: SphereCap, R1: 20}, ErrorPct: 1.1},
			},
			expected: Shape{Kind: SphereCap, R1: 20},
		},
		{
			name: "degenerate frustum replaced by close cylinder",
			cands: []FitCandidate{
				{Shape: Shape{Kind: Frustum, R1: 10, R2: 10.3, H: 40}, ErrorPct: 4.0},
				{Shape: Shape{Kind: Cylinder, R1: 10.15}, ErrorPct: 4.5},
			},
			expected:  Shape{Kind: Cylinder, R1: 10.15},
			preferred: true,
		},
		{
			name: "degenerate frustum kept when cylinder is much worse",
			cands: []FitCandidate{
				{Shape: Shape{Kind: Frustum, R1: 10, R2: 10.3, H: 40}, ErrorPct: 4.0},
				{Shape: Shape{Kind: Cylinder, R1: 10.15}, ErrorPct: 5.0},
			},
			expected: Shape{Kind: Frustum, R1: 10, R2: 10.3, H: 40},
		},
		{
			name: "degenerate frustum without cylinder uses mean radius",
			cands: []FitCandidate{
				{Shape: Shape{Kind: Frustum, R1: 10, R2: 10.2, H: 40}, ErrorPct: 4.0},
			},
			expected:  Shape{Kind: Cylinder, R1: 10.1},
			preferred: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, preferred := selectCandidate(tt.cands, p)
			if got.Shape.Kind != tt.expected.Kind ||
				math.Abs(got.Shape.R1-tt.expected.R1) > 1e-9 ||
				math.Abs(got.Shape.R2-tt.expected.R2) > 1e-9 ||
				math.Abs(got.Shape.H-tt.expected.H) > 1e-9 {
				t.Errorf("expected %+v, got %+v", tt.expected, got.Shape)
			}
			if preferred != tt.preferred {
				t.Errorf("expected cylinder preferred %v, got %v", tt.preferred, preferred)
			}
		})
	}
}

func TestFitSegments(t *testing.T) {
	fru := Shape{Kind: Frustum, R1: 6, R2: 10, H: 20}
	ms := measure(stacked(fru, 20, 10), 50, 51)
	p := DefaultParams()
	p.AreaMethod = AreaMethodDifference
	pts, err := DeriveAreas(ms, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	segs, fits := FitSegments([]int{0, 19, 49}, pts, p)
	if len(segs) != 2 || len(fits) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != 19 || segs[1].Start != 19 || segs[1].End != 49 {
		t.Errorf("unexpected segment ranges %+v", segs)
	}
	if segs[0].StartHeight != pts[0].Height || segs[1].EndHeight != pts[49].Height {
		t.Errorf("segment heights do not match area points")
	}
	if segs[1].Shape.Kind != Cylinder || math.Abs(segs[1].Shape.R1-10) > 0.01 {
		t.Errorf("expected upper cylinder of radius 10, got %+v", segs[1].Shape)
	}
	if segs[0].Shape.Kind != Frustum {
		t.Errorf("expected lower frustum, got %+v", segs[0].Shape)
	}
}
