package geometry

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Result is the complete output of one analysis run
type Result struct {
	Areas []AreaPoint `json:"areas"`
	// Boundaries are the validated indices into Areas before merging
	Boundaries []int                  `json:"boundaries"`
	Strategy   Strategy               `json:"strategy"`
	Prediction SegmentCountPrediction `json:"prediction"`
	// StabilityFallback is set when the stability detector found no interior
	// boundary and the multi-derivative detector was used instead
	StabilityFallback bool        `json:"stability_fallback,omitempty"`
	Segments          []Segment   `json:"segments"`
	Profile           Profile     `json:"profile"`
	ProfileVolume     []float64   `json:"profile_volume"`
	Volume            VolumeCheck `json:"volume"`
	Warnings          []string    `json:"warnings,omitempty"`
	Stats             Stats       `json:"stats"`
}

// Analyzer runs the segmentation and reconstruction pipeline. It holds no
// per-run state and may be shared between goroutines.
type Analyzer struct {
	params Params
	logger *zap.SugaredLogger
}

// NewAnalyzer validates p and returns an analyzer. A nil logger discards output.
func NewAnalyzer(p Params, logger *zap.SugaredLogger) (*Analyzer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Analyzer{params: p, logger: logger}, nil
}

// Params returns the analyzer configuration
func (a *Analyzer) Params() Params {
	return a.params
}

// Analyze reconstructs the container profile from ms. Only malformed input
// (fewer than MinMeasurements points, non-increasing heights) is an error;
// numerical trouble degrades the result and is reported in Warnings.
func (a *Analyzer) Analyze(ms []Measurement) (*Result, error) {
	p := a.params
	res := &Result{}

	start := time.Now()
	pts, err := DeriveAreas(ms, p)
	if err != nil {
		return nil, fmt.Errorf("error deriving areas: %w", err)
	}
	res.Areas = pts
	res.Stats.describeInput(ms, pts, p.AreaMethod)
	res.Stats.step("area", start)
	a.logger.Debugf("derived %d area points (%s), mean %.2f ± %.2f",
		len(pts), p.AreaMethod, res.Stats.AreaMean, res.Stats.AreaStd)

	heights, areas := splitAreaPoints(pts)

	start = time.Now()
	if len(pts) < 2*p.MinSegmentPoints {
		res.warn("only %d area points; analysing as a single segment", len(pts))
	}
	bounds := a.detect(res, heights, areas)
	res.Boundaries = ValidateBoundaries(bounds, heights, areas, p)
	res.Stats.step("transitions", start)
	a.logger.Debugf("strategy %v: %d candidate boundaries, %d after validation",
		res.Strategy, len(bounds), len(res.Boundaries))

	start = time.Now()
	segs, fits := FitSegments(res.Boundaries, pts, p)
	for i, fit := range fits {
		for _, attempt := range fit.Attempts {
			if attempt.OK() {
				a.logger.Debugf("segment %d: %v error %.3f%%", i, attempt.Kind, attempt.Candidate.ErrorPct)
			} else {
				a.logger.Debugf("segment %d: %v", i, attempt.Err)
			}
		}
		if fit.CylinderPreferred {
			a.logger.Debugf("segment %d: near-cylindrical frustum replaced by cylinder", i)
		}
		if fit.FallbackUsed {
			res.warn("segment %d: every model failed to converge, using naive cylinder", i)
		}
	}
	res.Stats.step("fit", start)

	start = time.Now()
	res.Segments = MergeSegments(segs, p)
	if merged := len(segs) - len(res.Segments); merged > 0 {
		a.logger.Debugf("merged %d continuous segments", merged)
	}
	res.Stats.describeSegments(res.Segments, len(segs))
	res.Stats.step("merge", start)

	start = time.Now()
	res.Profile = BuildProfile(res.Segments, pts, p)
	res.ProfileVolume = ProfileVolume(res.Profile)
	reconstructed := 0.0
	if n := len(res.ProfileVolume); n > 0 {
		reconstructed = res.ProfileVolume[n-1]
	}
	res.Volume = ValidateVolume(measuredVolume(pts), reconstructed, p.VolumeTolerance)
	if !res.Volume.Valid {
		res.warn("reconstructed volume %.4g differs from measured %.4g by %.2f%% (tolerance %.2f%%)",
			res.Volume.Reconstructed, res.Volume.Measured, res.Volume.ErrorPct, res.Volume.TolerancePct)
	}
	res.Stats.ProfilePoints = res.Profile.Len()
	res.Stats.step("profile", start)

	for _, w := range res.Warnings {
		a.logger.Warn(w)
	}
	a.logger.Infof("analysis complete: %d segments, %d profile points, volume error %.3f%%",
		len(res.Segments), res.Profile.Len(), res.Volume.ErrorPct)
	return res, nil
}

// detect chooses and runs the boundary detector
func (a *Analyzer) detect(res *Result, heights, areas []float64) []int {
	p := a.params
	if p.TransitionMethod == TransitionMethodLegacy {
		res.Strategy = StrategyLegacy
		return DetectTransitionsLegacy(areas, p)
	}

	res.Prediction = PredictSegmentCount(heights, areas)
	res.Strategy = SelectStrategy(res.Prediction, p)
	a.logger.Debugf("segment count votes %d/%d/%d, ensemble %d",
		res.Prediction.ZeroCrossing, res.Prediction.CurvatureRegime, res.Prediction.Variance, res.Prediction.Ensemble)

	if res.Strategy == StrategyStability {
		bounds := DetectStabilityTransitions(heights, areas, p)
		bounds = RefineBoundaries(heights, areas, bounds, oddWindow(len(areas), 10, 5, 15)/2+1, p.MinSegmentPoints)
		bounds = ValidateStabilityTransitions(heights, areas, bounds)
		if len(bounds) > 2 {
			return bounds
		}
		a.logger.Debugf("stability detector found no interior boundary, using multi-derivative")
		res.Strategy = StrategyMultiDerivative
		res.StabilityFallback = true
	}

	bounds, info := detectMultiDerivative(heights, areas, p)
	a.logger.Debugf("smoothing window %d, SNR %.1f, percentile %.0f, threshold %.4f, %d candidates",
		info.Window, info.SNR, info.Percentile, info.Threshold, info.Candidates)
	return bounds
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
