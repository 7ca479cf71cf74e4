package config

import (
	"fmt"

	"github.com/chrissnell/containergeometry/internal/geometry"
)

// AnalysisData overrides the engine defaults. Nil fields keep the default.
type AnalysisData struct {
	MinSegmentPoints *int     `json:"min_segment_points,omitempty" yaml:"min-segment-points,omitempty"`
	MinArea          *float64 `json:"min_area,omitempty" yaml:"min-area,omitempty"`
	MinRadius        *float64 `json:"min_radius,omitempty" yaml:"min-radius,omitempty"`
	AreaMethod       *string  `json:"area_method,omitempty" yaml:"area-method,omitempty"`
	TransitionMethod *string  `json:"transition_method,omitempty" yaml:"transition-method,omitempty"`

	LegacyPercentile        *float64 `json:"legacy_percentile,omitempty" yaml:"legacy-percentile,omitempty"`
	LegacyVarianceThreshold *float64 `json:"legacy_variance_threshold,omitempty" yaml:"legacy-variance-threshold,omitempty"`

	EnableStabilityRouting    *bool    `json:"enable_stability_routing,omitempty" yaml:"enable-stability-routing,omitempty"`
	StabilityMinPredicted     *int     `json:"stability_min_predicted,omitempty" yaml:"stability-min-predicted,omitempty"`
	StabilityRequireUnanimous *bool    `json:"stability_require_unanimous,omitempty" yaml:"stability-require-unanimous,omitempty"`
	StabilityMaxTransitions   *int     `json:"stability_max_transitions,omitempty" yaml:"stability-max-transitions,omitempty"`
	StabilitySpacingFraction  *float64 `json:"stability_spacing_fraction,omitempty" yaml:"stability-spacing-fraction,omitempty"`
	StabilityThresholdFactor  *float64 `json:"stability_threshold_factor,omitempty" yaml:"stability-threshold-factor,omitempty"`

	ValidationCV       *float64 `json:"validation_cv,omitempty" yaml:"validation-cv,omitempty"`
	ValidationAutocorr *float64 `json:"validation_autocorr,omitempty" yaml:"validation-autocorr,omitempty"`
	ValidationR2       *float64 `json:"validation_r2,omitempty" yaml:"validation-r2,omitempty"`

	MaxFunctionEvals   *int     `json:"max_function_evals,omitempty" yaml:"max-function-evals,omitempty"`
	FitBoundsLower     *float64 `json:"fit_bounds_lower,omitempty" yaml:"fit-bounds-lower,omitempty"`
	FitBoundsUpper     *float64 `json:"fit_bounds_upper,omitempty" yaml:"fit-bounds-upper,omitempty"`
	FrustumPenalty     *float64 `json:"frustum_penalty,omitempty" yaml:"frustum-penalty,omitempty"`
	ConePenalty        *float64 `json:"cone_penalty,omitempty" yaml:"cone-penalty,omitempty"`
	PenaltyErrorLimit  *float64 `json:"penalty_error_limit,omitempty" yaml:"penalty-error-limit,omitempty"`
	DegenerateFrustum  *float64 `json:"degenerate_frustum,omitempty" yaml:"degenerate-frustum,omitempty"`
	CylinderPreference *float64 `json:"cylinder_preference,omitempty" yaml:"cylinder-preference,omitempty"`

	MergeFrustumTolerance  *float64 `json:"merge_frustum_tolerance,omitempty" yaml:"merge-frustum-tolerance,omitempty"`
	MergeCylinderTolerance *float64 `json:"merge_cylinder_tolerance,omitempty" yaml:"merge-cylinder-tolerance,omitempty"`
	MergeConeTolerance     *float64 `json:"merge_cone_tolerance,omitempty" yaml:"merge-cone-tolerance,omitempty"`

	TransitionSamples *int     `json:"transition_samples,omitempty" yaml:"transition-samples,omitempty"`
	HermiteTension    *float64 `json:"hermite_tension,omitempty" yaml:"hermite-tension,omitempty"`
	TransitionBuffer  *float64 `json:"transition_buffer,omitempty" yaml:"transition-buffer,omitempty"`
	ProfileSigma      *float64 `json:"profile_sigma,omitempty" yaml:"profile-sigma,omitempty"`

	VolumeTolerance *float64 `json:"volume_tolerance,omitempty" yaml:"volume-tolerance,omitempty"`

	// VolumeScale converts CSV volume units to cubic height units
	VolumeScale *float64 `json:"volume_scale,omitempty" yaml:"volume-scale,omitempty"`
}

func overlay[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ToParams applies the overrides to geometry.DefaultParams and validates the result
func (a *AnalysisData) ToParams() (geometry.Params, error) {
	p := geometry.DefaultParams()
	if a == nil {
		return p, nil
	}

	overlay(&p.MinSegmentPoints, a.MinSegmentPoints)
	overlay(&p.MinArea, a.MinArea)
	overlay(&p.MinRadius, a.MinRadius)
	if a.AreaMethod != nil {
		p.AreaMethod = geometry.AreaMethod(*a.AreaMethod)
	}
	if a.TransitionMethod != nil {
		p.TransitionMethod = geometry.TransitionMethod(*a.TransitionMethod)
	}

	overlay(&p.LegacyPercentile, a.LegacyPercentile)
	overlay(&p.LegacyVarianceThreshold, a.LegacyVarianceThreshold)

	overlay(&p.EnableStabilityRouting, a.EnableStabilityRouting)
	overlay(&p.StabilityMinPredicted, a.StabilityMinPredicted)
	overlay(&p.StabilityRequireUnanimous, a.StabilityRequireUnanimous)
	overlay(&p.StabilityMaxTransitions, a.StabilityMaxTransitions)
	overlay(&p.StabilitySpacingFraction, a.StabilitySpacingFraction)
	overlay(&p.StabilityThresholdFactor, a.StabilityThresholdFactor)

	overlay(&p.ValidationCV, a.ValidationCV)
	overlay(&p.ValidationAutocorr, a.ValidationAutocorr)
	overlay(&p.ValidationR2, a.ValidationR2)

	overlay(&p.MaxFunctionEvals, a.MaxFunctionEvals)
	overlay(&p.FitBoundsLower, a.FitBoundsLower)
	overlay(&p.FitBoundsUpper, a.FitBoundsUpper)
	overlay(&p.FrustumPenalty, a.FrustumPenalty)
	overlay(&p.ConePenalty, a.ConePenalty)
	overlay(&p.PenaltyErrorLimit, a.PenaltyErrorLimit)
	overlay(&p.DegenerateFrustum, a.DegenerateFrustum)
	overlay(&p.CylinderPreference, a.CylinderPreference)

	overlay(&p.MergeFrustumTolerance, a.MergeFrustumTolerance)
	overlay(&p.MergeCylinderTolerance, a.MergeCylinderTolerance)
	overlay(&p.MergeConeTolerance, a.MergeConeTolerance)

	overlay(&p.TransitionSamples, a.TransitionSamples)
	overlay(&p.HermiteTension, a.HermiteTension)
	overlay(&p.TransitionBuffer, a.TransitionBuffer)
	overlay(&p.ProfileSigma, a.ProfileSigma)

	overlay(&p.VolumeTolerance, a.VolumeTolerance)

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// GetVolumeScale returns the configured volume scale or zero for the loader default
func (a *AnalysisData) GetVolumeScale() float64 {
	if a == nil || a.VolumeScale == nil {
		return 0
	}
	return *a.VolumeScale
}

// Validate reports settings that cannot produce a working analyzer
func (a *AnalysisData) Validate() error {
	if a == nil {
		return nil
	}
	if a.VolumeScale != nil && *a.VolumeScale <= 0 {
		return fmt.Errorf("volume scale must be positive, got %v", *a.VolumeScale)
	}
	if _, err := a.ToParams(); err != nil {
		return fmt.Errorf("analysis settings: %w", err)
	}
	return nil
}
