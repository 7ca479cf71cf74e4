package geometry

import "math"

// VolumeCheck compares the profile volume with the measured volume
type VolumeCheck struct {
	Measured      float64 `json:"measured"`
	Reconstructed float64 `json:"reconstructed"`
	ErrorPct      float64 `json:"error_pct"`
	TolerancePct  float64 `json:"tolerance_pct"`
	Valid         bool    `json:"valid"`
}

// ProfileVolume returns the cumulative volume of the profile at every sample,
// integrating π·r² over height with the trapezoidal rule
func ProfileVolume(prof Profile) []float64 {
	out := make([]float64, prof.Len())
	for i := 1; i < prof.Len(); i++ {
		dh := prof.Heights[i] - prof.Heights[i-1]
		a0 := math.Pi * prof.Radii[i-1] * prof.Radii[i-1]
		a1 := math.Pi * prof.Radii[i] * prof.Radii[i]
		out[i] = out[i-1] + dh*(a0+a1)/2
	}
	return out
}

// ValidateVolume checks that reconstructed is within tolerance (a fraction) of measured
func ValidateVolume(measured, reconstructed, tolerance float64) VolumeCheck {
	vc := VolumeCheck{
		Measured:      measured,
		Reconstructed: reconstructed,
		TolerancePct:  tolerance * 100,
	}
	if measured == 0 {
		vc.Valid = reconstructed == 0
		if !vc.Valid {
			vc.ErrorPct = 100
		}
		return vc
	}
	vc.ErrorPct = math.Abs(reconstructed-measured) / math.Abs(measured) * 100
	vc.Valid = vc.ErrorPct <= vc.TolerancePct
	return vc
}

// measuredVolume is the volume dispensed across the area points
func measuredVolume(pts []AreaPoint) float64 {
	if len(pts) < 2 {
		return 0
	}
	return pts[len(pts)-1].Volume - pts[0].Volume
}
