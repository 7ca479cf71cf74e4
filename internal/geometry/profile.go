package geometry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// samplesPerSegment bounds the number of analytic samples drawn per segment
const (
	minSegmentSamples = 15
	maxSegmentSamples = 30
)

// BuildProfile turns the fitted segments into one radius-versus-height polyline.
// Each segment contributes its analytic radius curve; consecutive segments are
// joined by cubic Hermite arcs spanning a short transition zone around the
// boundary. The joined curve is deduplicated, sorted, lightly smoothed and
// floored. A single segment returns the radius implied directly by the areas.
func BuildProfile(segs []Segment, pts []AreaPoint, p Params) Profile {
	if len(segs) <= 1 {
		return directProfile(pts, p)
	}

	buffers := transitionBuffers(segs, p.TransitionBuffer)

	var z, r []float64
	for i, seg := range segs {
		span := seg.Span()
		if span <= 0 {
			continue
		}
		lead, trail := 0.0, 0.0
		if i > 0 {
			lead = buffers[i-1]
		}
		if i < len(segs)-1 {
			trail = buffers[i]
		}

		from, to := lead, span-trail
		count := min(max(seg.Len(), minSegmentSamples), maxSegmentSamples)
		for k := 0; k < count; k++ {
			h := from + (to-from)*float64(k)/float64(count-1)
			z = append(z, seg.StartHeight+h)
			r = append(r, seg.Shape.RadiusAt(h))
		}

		if i < len(segs)-1 && trail > 0 {
			next := segs[i+1]
			az, ar := seg.StartHeight+to, seg.Shape.RadiusAt(to)
			bz, br := next.StartHeight+buffers[i], next.Shape.RadiusAt(buffers[i])
			as := seg.Shape.SlopeAt(to)
			bs := next.Shape.SlopeAt(buffers[i])
			az2, ar2 := hermiteArc(az, ar, as, bz, br, bs, p)
			z = append(z, az2...)
			r = append(r, ar2...)
		}
	}

	z, r = dedupeSorted(z, r)
	r = GaussianSmooth(r, p.ProfileSigma)
	for i := range r {
		r[i] = math.Max(r[i], p.MinRadius)
	}
	return Profile{Heights: z, Radii: r}
}

// directProfile converts every area estimate into the radius of an equal-area disk
func directProfile(pts []AreaPoint, p Params) Profile {
	prof := Profile{
		Heights: make([]float64, len(pts)),
		Radii:   make([]float64, len(pts)),
	}
	for i, pt := range pts {
		prof.Heights[i] = pt.Height
		prof.Radii[i] = math.Max(radiusFromArea(pt.Area), p.MinRadius)
	}
	return prof
}

// transitionBuffers returns the half-width of the transition zone at each
// internal boundary, capped at a quarter of the shorter neighbouring span
func transitionBuffers(segs []Segment, buffer float64) []float64 {
	out := make([]float64, len(segs)-1)
	for i := range out {
		shorter := math.Min(segs[i].Span(), segs[i+1].Span())
		out[i] = math.Max(0, math.Min(buffer, 0.25*shorter))
	}
	return out
}

// hermiteArc returns the interior samples of a cubic Hermite curve from
// (az, ar) to (bz, br) with tangents scaled by the tension. The curve is clamped
// to [0.8·min, 1.2·max] of the end radii. The end points themselves are already
// part of the adjoining segment curves.
func hermiteArc(az, ar, as, bz, br, bs float64, p Params) ([]float64, []float64) {
	if !(bz > az) {
		return nil, nil
	}
	var pc interp.PiecewiseCubic
	pc.FitWithDerivatives(
		[]float64{az, bz},
		[]float64{ar, br},
		[]float64{as * p.HermiteTension, bs * p.HermiteTension},
	)

	lo := 0.8 * math.Min(ar, br)
	hi := 1.2 * math.Max(ar, br)
	n := p.TransitionSamples
	z := make([]float64, 0, n-2)
	r := make([]float64, 0, n-2)
	for k := 1; k < n-1; k++ {
		h := az + (bz-az)*float64(k)/float64(n-1)
		z = append(z, h)
		r = append(r, math.Max(lo, math.Min(hi, pc.Predict(h))))
	}
	return z, r
}

// dedupeSorted sorts the samples by height and keeps the first sample of every
// height
func dedupeSorted(z, r []float64) ([]float64, []float64) {
	idx := make([]int, len(z))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return z[idx[a]] < z[idx[b]] })

	outZ := make([]float64, 0, len(z))
	outR := make([]float64, 0, len(r))
	for _, i := range idx {
		if n := len(outZ); n > 0 && z[i]-outZ[n-1] <= 1e-9*math.Max(1, math.Abs(z[i])) {
			continue
		}
		outZ = append(outZ, z[i])
		outR = append(outR, r[i])
	}
	return outZ, outR
}
