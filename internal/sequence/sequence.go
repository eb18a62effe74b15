// Package sequence orchestrates scripted motor tests: it schedules setpoints
// over time, samples the running motor, accumulates acceptance-criteria
// violations and classifies the finished run as pass or fail.
package sequence

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidSequence = errors.New("sequence: invalid definition")
	ErrBadTransition   = errors.New("sequence: invalid state transition")
)

// Type names the scripted test variants.
type Type string

const (
	EfficiencyMap    Type = "efficiency-map"
	PerformanceCurve Type = "performance-curve"
	ThermalSoak      Type = "thermal-soak"
	StepResponse     Type = "step-response"
	Endurance        Type = "endurance"
)

// Criteria are the acceptance thresholds evaluated against samples. A zero
// field disables that check. CriticalTemp is the one hard limit: crossing it
// aborts the test immediately instead of just failing the verdict.
type Criteria struct {
	MaxTemperature  float64 `yaml:"max_temperature"`   // deg C, verdict ceiling
	CriticalTemp    float64 `yaml:"critical_temp"`     // deg C, forced abort
	MinEfficiency   float64 `yaml:"min_efficiency"`    // 0..1
	MaxTorque       float64 `yaml:"max_torque"`        // Nm
	MinTorque       float64 `yaml:"min_torque"`        // Nm, checked after warm-up
	MaxSettlingTime float64 `yaml:"max_settling_time"` // s, step-response only
	MaxOvershootPct float64 `yaml:"max_overshoot_pct"` // step-response only
}

// Sequence is an immutable test template. Which phase fields matter depends
// on Type; Validate enforces the variant's requirements.
type Sequence struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Type     Type     `yaml:"type"`
	Duration float64  `yaml:"duration"` // s
	Criteria Criteria `yaml:"criteria"`

	// Grid bounds (efficiency-map) and sweep bounds (performance-curve).
	SpeedMin    float64 `yaml:"speed_min"`    // rpm
	SpeedMax    float64 `yaml:"speed_max"`    // rpm
	TorqueMin   float64 `yaml:"torque_min"`   // Nm
	TorqueMax   float64 `yaml:"torque_max"`   // Nm
	SpeedSteps  int     `yaml:"speed_steps"`  // efficiency-map grid
	TorqueSteps int     `yaml:"torque_steps"` // efficiency-map grid

	// Held operating point (thermal-soak, performance-curve load, endurance
	// midpoint, step-response load).
	HoldSpeed float64 `yaml:"hold_speed"` // rpm
	HoldLoad  float64 `yaml:"hold_load"`  // Nm

	// Step-response phase.
	BaseSpeed   float64 `yaml:"base_speed"`    // rpm
	StepSpeed   float64 `yaml:"step_speed"`    // rpm
	PreStepTime float64 `yaml:"pre_step_time"` // s

	// Endurance cycling around the hold point.
	CyclePeriod   float64 `yaml:"cycle_period"`    // s
	CycleSpeedAmp float64 `yaml:"cycle_speed_amp"` // rpm
	CycleLoadAmp  float64 `yaml:"cycle_load_amp"`  // Nm
}

// Validate rejects malformed templates before a test can start.
func (s Sequence) Validate() error {
	if s.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", ErrInvalidSequence, s.Duration)
	}
	switch s.Type {
	case EfficiencyMap:
		if s.SpeedSteps < 1 || s.TorqueSteps < 1 {
			return fmt.Errorf("%w: efficiency map needs at least a 1x1 grid", ErrInvalidSequence)
		}
		if s.SpeedMax < s.SpeedMin || s.TorqueMax < s.TorqueMin {
			return fmt.Errorf("%w: grid bounds inverted", ErrInvalidSequence)
		}
	case PerformanceCurve:
		if s.SpeedMax <= s.SpeedMin {
			return fmt.Errorf("%w: performance curve needs speed_max > speed_min", ErrInvalidSequence)
		}
	case ThermalSoak:
		if s.HoldSpeed <= 0 {
			return fmt.Errorf("%w: thermal soak needs a positive hold_speed", ErrInvalidSequence)
		}
	case StepResponse:
		if s.PreStepTime <= 0 || s.PreStepTime >= s.Duration {
			return fmt.Errorf("%w: pre_step_time must fall inside the test duration", ErrInvalidSequence)
		}
		if s.StepSpeed == s.BaseSpeed {
			return fmt.Errorf("%w: step response needs distinct base and step speeds", ErrInvalidSequence)
		}
	case Endurance:
		if s.CyclePeriod <= 0 {
			return fmt.Errorf("%w: endurance needs a positive cycle_period", ErrInvalidSequence)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSequence, s.Type)
	}
	return nil
}

// GridPoints returns the number of discrete cells for grid-based tests, or 0
// for time-based ones.
func (s Sequence) GridPoints() int {
	if s.Type == EfficiencyMap {
		return s.SpeedSteps * s.TorqueSteps
	}
	return 0
}

// Status is the engine's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// TestPoint is one sampled observation of the motor during a test.
type TestPoint struct {
	Time         float64 `json:"time"` // s since test start, pause excluded
	SpeedRPM     float64 `json:"speed_rpm"`
	TorqueNm     float64 `json:"torque_nm"`
	PowerW       float64 `json:"power_w"`
	Efficiency   float64 `json:"efficiency"`
	TemperatureC float64 `json:"temperature_c"`
	VoltageV     float64 `json:"voltage_v"`
	CurrentA     float64 `json:"current_a"`
}

// StepFigures are the step-response numbers folded into the summary.
type StepFigures struct {
	RiseTime     float64 `json:"rise_time"`
	SettlingTime float64 `json:"settling_time"`
	OvershootPct float64 `json:"overshoot_pct"`
	SteadyErrRPM float64 `json:"steady_err_rpm"`
}

// Summary holds the statistics computed at finalization.
type Summary struct {
	PeakPowerW     float64      `json:"peak_power_w"`
	AvgEfficiency  float64      `json:"avg_efficiency"`
	MaxTemperature float64      `json:"max_temperature"`
	EnergyJ        float64      `json:"energy_j"` // integrated electrical input
	Step           *StepFigures `json:"step,omitempty"`
}

// Result is the record of one test run. It is mutated only by the engine
// while the test runs and is immutable after finalization.
type Result struct {
	SequenceID     string      `json:"sequence_id"`
	Name           string      `json:"name"`
	Type           Type        `json:"type"`
	Status         Status      `json:"status"`
	Progress       float64     `json:"progress"` // 0..1
	Phase          string      `json:"phase"`
	Passed         bool        `json:"passed"`
	FailureReasons []string    `json:"failure_reasons,omitempty"`
	AbortReason    string      `json:"abort_reason,omitempty"`
	Summary        Summary     `json:"summary"`
	Points         []TestPoint `json:"points"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at,omitempty"`
}

// Setpoints is what a phase function asks of the control stack for the
// current instant. Has* distinguishes "command this" from "leave it alone".
type Setpoints struct {
	SpeedRPM    float64
	HasSpeed    bool
	LoadNm      float64
	HasLoad     bool
	Description string
}
