package mapper

import (
	"time"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// BodyData is the body record payload. Summary fields are nil when no reading backs them.
type BodyData struct {
	Metadata             Window                 `json:"metadata"`
	SystolicBP           *float64               `json:"systolic_bp,omitempty"`
	DiastolicBP          *float64               `json:"diastolic_bp,omitempty"`
	BloodPressureSamples []BloodPressureReading `json:"blood_pressure_samples"`
	AvgHRBPM             *float64               `json:"avg_hr_bpm,omitempty"`
	RestingHRBPM         *float64               `json:"resting_hr_bpm,omitempty"`
	MaxHRBPM             *float64               `json:"max_hr_bpm,omitempty"`
	HeartRateSamples     []HeartRateReading     `json:"heart_rate_samples"`
}

// BloodPressureReading is one pressure measurement in mmHg.
type BloodPressureReading struct {
	Timestamp   time.Time `json:"timestamp"`
	SystolicBP  float64   `json:"systolic_bp"`
	DiastolicBP float64   `json:"diastolic_bp"`
}

// HeartRateReading is one heart-rate measurement in bpm.
type HeartRateReading struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       float64   `json:"bpm"`
	Source    string    `json:"source,omitempty"`
}

// buildBody expects both inputs sorted by start. The latest pressure reading is the one
// with the greatest end time.
func buildBody(heartRate, bloodPressure []domain.Sample) *BodyData {
	if len(heartRate) == 0 && len(bloodPressure) == 0 {
		return nil
	}
	body := &BodyData{
		BloodPressureSamples: make([]BloodPressureReading, 0, len(bloodPressure)),
		HeartRateSamples:     make([]HeartRateReading, 0, len(heartRate)),
	}

	var latest *domain.Sample
	for i := range bloodPressure {
		s := bloodPressure[i]
		body.Metadata.extend(s.Start.UTC(), s.End.UTC())
		body.BloodPressureSamples = append(body.BloodPressureSamples, BloodPressureReading{
			Timestamp:   s.Start.UTC(),
			SystolicBP:  s.Value,
			DiastolicBP: s.Diastolic,
		})
		if latest == nil || !s.End.Before(latest.End) {
			latest = &bloodPressure[i]
		}
	}
	if latest != nil {
		systolic, diastolic := latest.Value, latest.Diastolic
		body.SystolicBP, body.DiastolicBP = &systolic, &diastolic
	}

	if len(heartRate) > 0 {
		var sum float64
		minimum, maximum := heartRate[0].Value, heartRate[0].Value
		for _, s := range heartRate {
			body.Metadata.extend(s.Start.UTC(), s.End.UTC())
			body.HeartRateSamples = append(body.HeartRateSamples, HeartRateReading{
				Timestamp: s.Start.UTC(),
				BPM:       s.Value,
				Source:    s.Source,
			})
			sum += s.Value
			minimum = min(minimum, s.Value)
			maximum = max(maximum, s.Value)
		}
		avg := roundTo(sum/float64(len(heartRate)), 1)
		body.AvgHRBPM, body.RestingHRBPM, body.MaxHRBPM = &avg, &minimum, &maximum
	}
	return body
}
