// Package geometry reconstructs the radius profile of an axisymmetric container
// from a sequence of (height, cumulative volume) measurements.
//
// The pipeline runs strictly forward: areas are derived from the volume curve,
// boundaries between geometric primitives are detected and validated, each
// segment is fitted with cylinder, frustum, cone and sphere cap models, adjacent
// continuous segments are merged and the result is blended into one smooth
// radius profile whose volume is checked against the measurements.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInsufficientData is returned when fewer than MinMeasurements points are supplied
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNonMonotonic is returned when heights are not strictly increasing
	ErrNonMonotonic = errors.New("heights must be strictly increasing")
)

// MinMeasurements is the smallest input the engine accepts
const MinMeasurements = 5

// radiusFloorSq bounds radius-from-area and sphere cap radii away from zero
const radiusFloorSq = 0.01

// Measurement is one dispensing step: the fill height and the cumulative volume
type Measurement struct {
	Height float64 `json:"height"`
	Volume float64 `json:"volume"`
}

// AreaPoint is a cross-sectional area estimate at a height. Volume carries the
// cumulative volume measured at Height so segments can be fitted directly from
// the area sequence. MidHeight is the centre of the interval the estimate
// describes and equals Height for local regression.
type AreaPoint struct {
	Height    float64 `json:"height"`
	MidHeight float64 `json:"mid_height"`
	Volume    float64 `json:"volume"`
	Area      float64 `json:"area"`
}

// ShapeKind is the geometric primitive fitted to a segment
type ShapeKind int

const (
	Cylinder ShapeKind = iota
	Frustum
	Cone
	SphereCap
)

// AllShapeKinds lists every primitive in fitting order
var AllShapeKinds = []ShapeKind{Cylinder, Frustum, Cone, SphereCap}

func (k ShapeKind) String() string {
	switch k {
	case Cylinder:
		return "cylinder"
	case Frustum:
		return "frustum"
	case Cone:
		return "cone"
	case SphereCap:
		return "sphere_cap"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler
func (k ShapeKind) MarshalText() ([]byte, error) {
	switch k {
	case Cylinder, Frustum, Cone, SphereCap:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("unknown shape kind %d", int(k))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *ShapeKind) UnmarshalText(b []byte) error {
	kind, err := ParseShapeKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseShapeKind converts a shape name back into its kind
func ParseShapeKind(s string) (ShapeKind, error) {
	for _, k := range AllShapeKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown shape kind %q", s)
}

// Shape is a fitted primitive. Only the fields meaningful for Kind are set:
//
//	Cylinder:  R1 = radius
//	Frustum:   R1 = radius at segment start, R2 = radius at segment end, H = height span
//	Cone:      R1 = base radius, H = height from apex to base
//	SphereCap: R1 = sphere radius
//
// All heights passed to Shape methods are measured from the segment start.
type Shape struct {
	Kind ShapeKind `json:"kind"`
	R1   float64   `json:"r1"`
	R2   float64   `json:"r2,omitempty"`
	H    float64   `json:"h,omitempty"`
}

// Values returns the parameter vector of the shape (1 to 3 values)
func (s Shape) Values() []float64 {
	switch s.Kind {
	case Cylinder:
		return []float64{s.R1}
	case Frustum:
		return []float64{s.R1, s.R2, s.H}
	case Cone:
		return []float64{s.R1, s.H}
	case SphereCap:
		return []float64{s.R1}
	}
	return nil
}

// ShapeFromValues builds a shape from its kind and parameter vector
func ShapeFromValues(kind ShapeKind, v []float64) (Shape, error) {
	want := 0
	switch kind {
	case Cylinder, SphereCap:
		want = 1
	case Frustum:
		want = 3
	case Cone:
		want = 2
	default:
		return Shape{}, fmt.Errorf("unknown shape kind %d", int(kind))
	}
	if len(v) != want {
		return Shape{}, fmt.Errorf("%v takes %d parameters, got %d", kind, want, len(v))
	}

	s := Shape{Kind: kind, R1: v[0]}
	switch kind {
	case Frustum:
		s.R2, s.H = v[1], v[2]
	case Cone:
		s.H = v[1]
	}
	return s, nil
}

// Volume returns the volume enclosed between the segment start and height h
func (s Shape) Volume(h float64) float64 {
	switch s.Kind {
	case Cylinder:
		return math.Pi * s.R1 * s.R1 * h
	case Frustum:
		if s.H == 0 {
			return 0
		}
		r := s.R1 + (s.R2-s.R1)*(h/s.H)
		return math.Pi * h / 3 * (s.R1*s.R1 + r*r + s.R1*r)
	case Cone:
		if s.H == 0 {
			return 0
		}
		r := s.R1 * (h / s.H)
		return math.Pi / 3 * h * r * r
	case SphereCap:
		// the cap formula only holds up to a full sphere
		if h > 2*s.R1 {
			h = 2 * s.R1
		}
		return math.Pi * h * h * (3*s.R1 - h) / 3
	}
	return 0
}

// RadiusAt returns the wall radius at height h
func (s Shape) RadiusAt(h float64) float64 {
	switch s.Kind {
	case Cylinder:
		return s.R1
	case Frustum:
		if s.H == 0 {
			return s.R1
		}
		return s.R1 + (s.R2-s.R1)*(h/s.H)
	case Cone:
		if s.H == 0 {
			return 0
		}
		return s.R1 * (h / s.H)
	case SphereCap:
		return math.Sqrt(math.Max(2*s.R1*h-h*h, radiusFloorSq))
	}
	return 0
}

// SlopeAt returns dr/dh at height h
func (s Shape) SlopeAt(h float64) float64 {
	switch s.Kind {
	case Cylinder:
		return 0
	case Frustum:
		if s.H == 0 {
			return 0
		}
		return (s.R2 - s.R1) / s.H
	case Cone:
		if s.H == 0 {
			return 0
		}
		return s.R1 / s.H
	case SphereCap:
		sq := 2*s.R1*h - h*h
		if sq <= radiusFloorSq {
			return 0
		}
		return (s.R1 - h) / math.Sqrt(sq)
	}
	return 0
}

// Segment is a contiguous run of area points [Start, End] fitted to one primitive
type Segment struct {
	Start       int     `json:"start"`
	End         int     `json:"end"`
	StartHeight float64 `json:"start_height"`
	EndHeight   float64 `json:"end_height"`
	Shape       Shape   `json:"shape"`
	ErrorPct    float64 `json:"error_pct"`
	// FallbackUsed is set when every model failed and the naive cylinder was used
	FallbackUsed bool `json:"fallback_used,omitempty"`
}

// Span returns the height covered by the segment
func (s Segment) Span() float64 {
	return s.EndHeight - s.StartHeight
}

// Len returns the number of samples in the segment
func (s Segment) Len() int {
	return s.End - s.Start + 1
}

// StartRadius returns the radius at the bottom of the segment
func (s Segment) StartRadius() float64 {
	return s.Shape.RadiusAt(0)
}

// EndRadius returns the radius at the top of the segment
func (s Segment) EndRadius() float64 {
	return s.Shape.RadiusAt(s.Span())
}

// Profile is the reconstructed radius as a function of height
type Profile struct {
	Heights []float64 `json:"heights"`
	Radii   []float64 `json:"radii"`
}

// Len returns the number of profile samples
func (p Profile) Len() int {
	return len(p.Heights)
}

// FitCandidate is one model's best fit for a segment
type FitCandidate struct {
	Shape    Shape
	ErrorPct float64
}

// FitResult is the outcome of fitting one model: either a candidate or the
// reason the fit was rejected
type FitResult struct {
	Kind      ShapeKind
	Candidate FitCandidate
	Err       error
}

// OK reports whether the fit produced a usable candidate
func (r FitResult) OK() bool {
	return r.Err == nil
}

// radiusFromArea converts a cross-sectional area to the radius of a disk with that area
func radiusFromArea(area float64) float64 {
	return math.Sqrt(math.Max(area/math.Pi, radiusFloorSq))
}
