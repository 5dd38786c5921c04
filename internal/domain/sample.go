package domain

import "time"

// Metric is the measured quantity carried by a Sample.
type Metric string

// MetricStepCount is a declared step total over a window. MetricStepInterval is a
// per-interval count that only shapes the hourly series when a total is present.
const (
	MetricStepCount     Metric = "step_count"
	MetricStepInterval  Metric = "step_interval"
	MetricHeartRate     Metric = "heart_rate"
	MetricBloodPressure Metric = "blood_pressure"
	MetricSleepStage    Metric = "sleep_stage"
)

// Unit is the normalized unit of a Sample value.
type Unit string

const (
	UnitCount Unit = "count"
	UnitBPM   Unit = "bpm"
	UnitMmHg  Unit = "mmHg"
	UnitStage Unit = "stage"
)

// KilopascalToMmHg converts pressure readings reported in kPa.
const KilopascalToMmHg = 7.50062

// SleepStage is the normalized label of a sleep interval.
type SleepStage string

const (
	StageAwake  SleepStage = "Awake"
	StageAsleep SleepStage = "Asleep"
	StageCore   SleepStage = "Core"
	StageDeep   SleepStage = "Deep"
	StageREM    SleepStage = "REM"
	StageInBed  SleepStage = "Inbed"
)

// Sample is the provider-neutral form of one measurement.
//
// For blood pressure Value holds the systolic reading and Diastolic the diastolic one.
// For sleep Stage is set and Value is unused. Session groups sleep intervals that the
// provider reported as one session; it is empty when the provider has no such notion.
type Sample struct {
	Metric    Metric
	Value     float64
	Diastolic float64
	Stage     SleepStage
	Start     time.Time
	End       time.Time
	Unit      Unit
	Source    string
	Session   string
}
