package geometry

import "math"

// relDiff is |a-b| relative to the larger magnitude
func relDiff(a, b float64) float64 {
	return math.Abs(a-b) / (math.Max(a, b) + 1e-6)
}

// continuous reports whether right can be absorbed into left
func continuous(left, right Segment, p Params) bool {
	if left.Shape.Kind != right.Shape.Kind || right.Start > left.End+1 {
		return false
	}
	switch left.Shape.Kind {
	case Frustum:
		return relDiff(left.Shape.R2, right.Shape.R1) < p.MergeFrustumTolerance
	case Cylinder:
		return relDiff(left.Shape.R1, right.Shape.R1) < p.MergeCylinderTolerance
	case Cone:
		return relDiff(left.Shape.R1, right.Shape.R1) < p.MergeConeTolerance
	case SphereCap:
		// a cap is a bounded feature and always stands alone
		return false
	}
	return false
}

// absorb extends left over right
func absorb(left, right Segment) Segment {
	merged := left
	merged.End = right.End
	merged.EndHeight = right.EndHeight
	merged.FallbackUsed = left.FallbackUsed || right.FallbackUsed

	wl, wr := float64(left.Len()), float64(right.Len())
	merged.ErrorPct = (left.ErrorPct*wl + right.ErrorPct*wr) / (wl + wr)

	switch left.Shape.Kind {
	case Frustum:
		merged.Shape = Shape{Kind: Frustum, R1: left.Shape.R1, R2: right.Shape.R2, H: merged.Span()}
	case Cylinder:
		sl, sr := left.Span(), right.Span()
		if sl+sr > 0 {
			merged.Shape.R1 = (left.Shape.R1*sl + right.Shape.R1*sr) / (sl + sr)
		}
	case Cone, SphereCap:
	}
	return merged
}

// MergeSegments coalesces runs of adjacent same-kind segments whose boundary
// radii agree. The scan is greedy and single-pass: a run ends at the first pair
// that fails the continuity test.
func MergeSegments(segs []Segment, p Params) []Segment {
	var out []Segment
	for i := 0; i < len(segs); {
		cur := segs[i]
		j := i + 1
		for j < len(segs) && continuous(cur, segs[j], p) {
			cur = absorb(cur, segs[j])
			j++
		}
		out = append(out, cur)
		i = j
	}
	return out
}
