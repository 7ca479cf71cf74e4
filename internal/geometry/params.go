package geometry

import (
	"errors"
	"fmt"
)

// AreaMethod identifies how the area signal is derived from the volume curve
type AreaMethod string

const (
	// AreaMethodLocalRegression fits a line to a small window around every point
	AreaMethodLocalRegression AreaMethod = "local_regression"

	// AreaMethodDifference uses consecutive differences and drops the first point
	AreaMethodDifference AreaMethod = "difference"
)

// TransitionMethod identifies the primary boundary detector
type TransitionMethod string

const (
	// TransitionMethodMultiDerivative combines first and second derivative scores
	// with an SNR-adaptive percentile threshold
	TransitionMethodMultiDerivative TransitionMethod = "multi_derivative"

	// TransitionMethodLegacy thresholds the smoothed first difference only
	TransitionMethodLegacy TransitionMethod = "legacy"
)

// Params holds every tunable of the analysis pipeline. A Params value is never
// mutated by the engine; copy it to change a setting.
type Params struct {
	// MinSegmentPoints is the minimum number of samples in a segment (L)
	MinSegmentPoints int `json:"min_segment_points"`
	// MinArea floors every area estimate
	MinArea float64 `json:"min_area"`
	// MinRadius floors every profile radius
	MinRadius float64 `json:"min_radius"`

	AreaMethod       AreaMethod       `json:"area_method"`
	TransitionMethod TransitionMethod `json:"transition_method"`

	// Legacy detector settings
	LegacyPercentile        float64 `json:"legacy_percentile"`
	LegacyVarianceThreshold float64 `json:"legacy_variance_threshold"`

	// Segment-count ensemble and stability detector routing. These thresholds
	// are tuning policy. With StabilityRequireUnanimous a split vote keeps the
	// multi-derivative detector, which can miss a smooth curved-to-straight
	// joint: a sphere cap under a cylinder votes 2/3/2 and is fitted as one
	// frustum. Clear it, or lower StabilityMinPredicted, to route such inputs.
	EnableStabilityRouting    bool    `json:"enable_stability_routing"`
	StabilityMinPredicted     int     `json:"stability_min_predicted"`
	StabilityRequireUnanimous bool    `json:"stability_require_unanimous"`
	StabilityMaxTransitions   int     `json:"stability_max_transitions"`
	StabilitySpacingFraction  float64 `json:"stability_spacing_fraction"`
	StabilityThresholdFactor  float64 `json:"stability_threshold_factor"`

	// Boundary validation thresholds
	ValidationCV       float64 `json:"validation_cv"`
	ValidationAutocorr float64 `json:"validation_autocorr"`
	ValidationR2       float64 `json:"validation_r2"`

	// Shape fitting
	MaxFunctionEvals   int     `json:"max_function_evals"`
	FitBoundsLower     float64 `json:"fit_bounds_lower"`
	FitBoundsUpper     float64 `json:"fit_bounds_upper"`
	FrustumPenalty     float64 `json:"frustum_penalty"`
	ConePenalty        float64 `json:"cone_penalty"`
	PenaltyErrorLimit  float64 `json:"penalty_error_limit"`
	DegenerateFrustum  float64 `json:"degenerate_frustum"`
	CylinderPreference float64 `json:"cylinder_preference"`

	// Merge tolerances (relative radius difference)
	MergeFrustumTolerance  float64 `json:"merge_frustum_tolerance"`
	MergeCylinderTolerance float64 `json:"merge_cylinder_tolerance"`
	MergeConeTolerance     float64 `json:"merge_cone_tolerance"`

	// Profile reconstruction
	TransitionSamples int     `json:"transition_samples"`
	HermiteTension    float64 `json:"hermite_tension"`
	TransitionBuffer  float64 `json:"transition_buffer"`
	ProfileSigma      float64 `json:"profile_sigma"`

	// VolumeTolerance is the accepted relative difference between measured and
	// reconstructed volume
	VolumeTolerance float64 `json:"volume_tolerance"`
}

// DefaultParams returns the tuned defaults used by the CLI and the REST server
func DefaultParams() Params {
	return Params{
		MinSegmentPoints: 12,
		MinArea:          0.01,
		MinRadius:        0.1,

		AreaMethod:       AreaMethodLocalRegression,
		TransitionMethod: TransitionMethodMultiDerivative,

		LegacyPercentile:        96,
		LegacyVarianceThreshold: 0.14,

		EnableStabilityRouting:    true,
		StabilityMinPredicted:     3,
		StabilityRequireUnanimous: true,
		StabilityMaxTransitions:   2,
		StabilitySpacingFraction:  0.15,
		StabilityThresholdFactor:  1.5,

		ValidationCV:       0.05,
		ValidationAutocorr: 0.4,
		ValidationR2:       0.65,

		MaxFunctionEvals:   4000,
		FitBoundsLower:     0.5,
		FitBoundsUpper:     3.0,
		FrustumPenalty:     0.5,
		ConePenalty:        0.2,
		PenaltyErrorLimit:  3.0,
		DegenerateFrustum:  0.05,
		CylinderPreference: 1.2,

		MergeFrustumTolerance:  0.10,
		MergeCylinderTolerance: 0.05,
		MergeConeTolerance:     0.10,

		TransitionSamples: 25,
		HermiteTension:    0.6,
		TransitionBuffer:  2.5,
		ProfileSigma:      0.8,

		VolumeTolerance: 0.01,
	}
}

// ErrInvalidParams is returned by Validate for unusable settings
var ErrInvalidParams = errors.New("invalid analysis parameters")

// Validate reports the first setting that would make the pipeline misbehave
func (p Params) Validate() error {
	switch {
	case p.MinSegmentPoints < 3:
		return fmt.Errorf("%w: min segment points must be at least 3, got %d", ErrInvalidParams, p.MinSegmentPoints)
	case p.MinArea <= 0:
		return fmt.Errorf("%w: min area must be positive", ErrInvalidParams)
	case p.MinRadius <= 0:
		return fmt.Errorf("%w: min radius must be positive", ErrInvalidParams)
	case p.AreaMethod != AreaMethodLocalRegression && p.AreaMethod != AreaMethodDifference:
		return fmt.Errorf("%w: unknown area method %q", ErrInvalidParams, p.AreaMethod)
	case p.TransitionMethod != TransitionMethodMultiDerivative && p.TransitionMethod != TransitionMethodLegacy:
		return fmt.Errorf("%w: unknown transition method %q", ErrInvalidParams, p.TransitionMethod)
	case p.LegacyPercentile <= 0 || p.LegacyPercentile >= 100:
		return fmt.Errorf("%w: legacy percentile must be in (0, 100)", ErrInvalidParams)
	case p.StabilityMinPredicted < 1 || p.StabilityMinPredicted > 3:
		return fmt.Errorf("%w: stability min predicted must be 1..3", ErrInvalidParams)
	case p.StabilityMaxTransitions < 1:
		return fmt.Errorf("%w: stability max transitions must be positive", ErrInvalidParams)
	case p.StabilitySpacingFraction <= 0 || p.StabilitySpacingFraction >= 1:
		return fmt.Errorf("%w: stability spacing fraction must be in (0, 1)", ErrInvalidParams)
	case p.StabilityThresholdFactor <= 0:
		return fmt.Errorf("%w: stability threshold factor must be positive", ErrInvalidParams)
	case p.MaxFunctionEvals < 10:
		return fmt.Errorf("%w: max function evaluations must be at least 10", ErrInvalidParams)
	case p.FitBoundsLower <= 0 || p.FitBoundsUpper <= p.FitBoundsLower:
		return fmt.Errorf("%w: fit bounds must satisfy 0 < lower < upper", ErrInvalidParams)
	case p.FrustumPenalty < 0 || p.ConePenalty < 0:
		return fmt.Errorf("%w: complexity penalties must not be negative", ErrInvalidParams)
	case p.CylinderPreference < 1:
		return fmt.Errorf("%w: cylinder preference factor must be at least 1", ErrInvalidParams)
	case p.MergeFrustumTolerance < 0 || p.MergeCylinderTolerance < 0 || p.MergeConeTolerance < 0:
		return fmt.Errorf("%w: merge tolerances must not be negative", ErrInvalidParams)
	case p.TransitionSamples < 2:
		return fmt.Errorf("%w: transition samples must be at least 2", ErrInvalidParams)
	case p.HermiteTension < 0:
		return fmt.Errorf("%w: hermite tension must not be negative", ErrInvalidParams)
	case p.TransitionBuffer < 0:
		return fmt.Errorf("%w: transition buffer must not be negative", ErrInvalidParams)
	case p.ProfileSigma < 0:
		return fmt.Errorf("%w: profile sigma must not be negative", ErrInvalidParams)
	case p.VolumeTolerance <= 0 || p.VolumeTolerance >= 1:
		return fmt.Errorf("%w: volume tolerance must be in (0, 1)", ErrInvalidParams)
	}
	return nil
}
