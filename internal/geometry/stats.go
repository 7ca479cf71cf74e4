package geometry

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

// StepTiming records how long one pipeline step took
type StepTiming struct {
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration_ns"`
}

// Stats summarizes one analysis run
type Stats struct {
	DataPoints       int           `json:"data_points"`
	HeightMin        float64       `json:"height_min"`
	HeightMax        float64       `json:"height_max"`
	VolumeMin        float64       `json:"volume_min"`
	VolumeMax        float64       `json:"volume_max"`
	AreaMethod       AreaMethod    `json:"area_method"`
	AreaMean         float64       `json:"area_mean"`
	AreaStd          float64       `json:"area_std"`
	AreaMin          float64       `json:"area_min"`
	AreaMax          float64       `json:"area_max"`
	SegmentCount     int           `json:"segment_count"`
	FitErrors        []float64     `json:"fit_errors"`
	MeanFitError     float64       `json:"mean_fit_error"`
	MaxFitError      float64       `json:"max_fit_error"`
	FallbackSegments int           `json:"fallback_segments"`
	MergedSegments   int           `json:"merged_segments"`
	ProfilePoints    int           `json:"profile_points"`
	Steps            []StepTiming  `json:"steps"`
	Total            time.Duration `json:"total_ns"`
}

func (s *Stats) step(name string, start time.Time) {
	d := time.Since(start)
	s.Steps = append(s.Steps, StepTiming{Step: name, Duration: d})
	s.Total += d
}

func (s *Stats) describeInput(ms []Measurement, pts []AreaPoint, method AreaMethod) {
	s.DataPoints = len(ms)
	s.HeightMin, s.HeightMax = ms[0].Height, ms[len(ms)-1].Height
	s.VolumeMin, s.VolumeMax = ms[0].Volume, ms[0].Volume
	for _, m := range ms {
		s.VolumeMin = min(s.VolumeMin, m.Volume)
		s.VolumeMax = max(s.VolumeMax, m.Volume)
	}

	_, areas := splitAreaPoints(pts)
	s.AreaMethod = method
	s.AreaMean, s.AreaStd = meanStd(areas)
	s.AreaMin, s.AreaMax = floats.Min(areas), floats.Max(areas)
}

func (s *Stats) describeSegments(segs []Segment, fitted int) {
	s.SegmentCount = len(segs)
	s.MergedSegments = fitted - len(segs)
	s.FitErrors = make([]float64, len(segs))
	s.FallbackSegments = 0
	for i, seg := range segs {
		s.FitErrors[i] = seg.ErrorPct
		if seg.FallbackUsed {
			s.FallbackSegments++
		}
	}
	if len(segs) > 0 {
		s.MeanFitError = floats.Sum(s.FitErrors) / float64(len(segs))
		s.MaxFitError = floats.Max(s.FitErrors)
	}
}
