package geometry

import (
	"errors"
	"math"
	"testing"
)

func TestDeriveAreasCylinder(t *testing.T) {
	cyl := Shape{Kind: Cylinder, R1: 10}
	ms := measure(cyl.Volume, 50, 30)
	want := math.Pi * 100

	tests := []struct {
		method   AreaMethod
		expected int
	}{
		{AreaMethodLocalRegression, 30},
		{AreaMethodDifference, 29},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			p := DefaultParams()
			p.AreaMethod = tt.method
			pts, err := DeriveAreas(ms, p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(pts) != tt.expected {
				t.Fatalf("expected %d area points, got %d", tt.expected, len(pts))
			}
			for i, pt := range pts {
				if math.Abs(pt.Area-want)/want > 1e-9 {
					t.Errorf("point %d: area %f, want %f", i, pt.Area, want)
				}
				if pt.MidHeight > pt.Height {
					t.Errorf("point %d: mid height %f above height %f", i, pt.MidHeight, pt.Height)
				}
			}
		})
	}
}

func TestDeriveAreasDifferenceMidpoints(t *testing.T) {
	ms := []Measurement{{0, 0}, {1, 2}, {3, 10}, {4, 13}, {6, 13}}
	p := DefaultParams()
	p.AreaMethod = AreaMethodDifference

	pts, err := DeriveAreas(ms, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []AreaPoint{
		{Height: 1, MidHeight: 0.5, Volume: 2, Area: 2},
		{Height: 3, MidHeight: 2, Volume: 10, Area: 4},
		{Height: 4, MidHeight: 3.5, Volume: 13, Area: 3},
		{Height: 6, MidHeight: 5, Volume: 13, Area: p.MinArea},
	}
	if len(pts) != len(expected) {
		t.Fatalf("expected %d points, got %d", len(expected), len(pts))
	}
	for i := range expected {
		if pts[i] != expected[i] {
			t.Errorf("point %d: got %+v, want %+v", i, pts[i], expected[i])
		}
	}
}

func TestDeriveAreasLinearGrowth(t *testing.T) {
	// a frustum's area grows smoothly; local regression should track it closely
	fru := Shape{Kind: Frustum, R1: 8, R2: 14, H: 40}
	ms := measure(fru.Volume, 40, 50)

	pts, err := DeriveAreas(ms, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 5; i < len(pts)-5; i++ {
		r := fru.RadiusAt(pts[i].Height)
		want := math.Pi * r * r
		if math.Abs(pts[i].Area-want)/want > 0.01 {
			t.Errorf("point %d: area %f, want %f", i, pts[i].Area, want)
		}
	}
}

func TestDeriveAreasFloorsNegativeSlopes(t *testing.T) {
	ms := []Measurement{{0, 10}, {1, 9}, {2, 8}, {3, 7}, {4, 6}, {5, 5}}
	p := DefaultParams()
	for _, method := range []AreaMethod{AreaMethodLocalRegression, AreaMethodDifference} {
		p.AreaMethod = method
		pts, err := DeriveAreas(ms, p)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", method, err)
		}
		for i, pt := range pts {
			if pt.Area != p.MinArea {
				t.Errorf("%s point %d: area %f, want floor %f", method, i, pt.Area, p.MinArea)
			}
		}
	}
}

func TestDeriveAreasErrors(t *testing.T) {
	tests := []struct {
		name     string
		ms       []Measurement
		method   AreaMethod
		expected error
	}{
		{
			name:     "too few measurements",
			ms:       []Measurement{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
			expected: ErrInsufficientData,
		},
		{
			name:     "repeated height",
			ms:       []Measurement{{0, 0}, {1, 1}, {1, 2}, {3, 3}, {4, 4}},
			expected: ErrNonMonotonic,
		},
		{
			name:     "decreasing height",
			ms:       []Measurement{{0, 0}, {2, 1}, {1, 2}, {3, 3}, {4, 4}},
			expected: ErrNonMonotonic,
		},
		{
			name:     "unknown method",
			ms:       []Measurement{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}},
			method:   AreaMethod("spline"),
			expected: ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			if tt.method != "" {
				p.AreaMethod = tt.method
			}
			_, err := DeriveAreas(tt.ms, p)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}
