package sched

import (
	"time"

	"github.com/san-kum/motorbench/internal/sequence"
)

// Snapshot is the downsampled, smoothed view of the rig published to
// external consumers. It is a value copy: readers never see live state.
type Snapshot struct {
	SimTime      float64   `json:"sim_time"`
	Timestamp    time.Time `json:"timestamp"`
	SpeedRPM     float64   `json:"speed_rpm"`
	TorqueNm     float64   `json:"torque_nm"`
	CurrentA     float64   `json:"current_a"`
	VoltageV     float64   `json:"voltage_v"`
	PowerW       float64   `json:"power_w"`
	Efficiency   float64   `json:"efficiency"`
	BackEmfV     float64   `json:"back_emf_v"`
	TemperatureC float64   `json:"temperature_c"`
	LoadTorqueNm float64   `json:"load_torque_nm"`

	MotorRunning bool    `json:"motor_running"`
	Mode         string  `json:"mode"`
	Target       float64 `json:"target"`

	DroppedSteps uint64 `json:"dropped_steps,omitempty"`
	ClampEvents  uint64 `json:"clamp_events,omitempty"`

	TestStatus   sequence.Status  `json:"test_status,omitempty"`
	TestProgress float64          `json:"test_progress,omitempty"`
	TestPhase    string           `json:"test_phase,omitempty"`
	TestResult   *sequence.Result `json:"-"` // set once finalized, immutable
}

// smoother applies per-quantity exponential smoothing. Electrical quantities
// jitter with the commutation ripple and get heavier smoothing than the
// mechanical ones, which should show genuine transients.
type smoother struct {
	tauFast float64 // s, speed/torque/power
	tauSlow float64 // s, voltage/current/efficiency/back-EMF

	primed bool
	speed  float64
	torque float64
	power  float64
	volt   float64
	amp    float64
	eff    float64
	emf    float64
}

func newSmoother() *smoother {
	return &smoother{tauFast: 0.02, tauSlow: 0.08}
}

func (s *smoother) update(dt, speed, torque, power, volt, amp, eff, emf float64) {
	if !s.primed {
		s.primed = true
		s.speed, s.torque, s.power = speed, torque, power
		s.volt, s.amp, s.eff, s.emf = volt, amp, eff, emf
		return
	}
	fast := dt / (s.tauFast + dt)
	slow := dt / (s.tauSlow + dt)
	s.speed += fast * (speed - s.speed)
	s.torque += fast * (torque - s.torque)
	s.power += fast * (power - s.power)
	s.volt += slow * (volt - s.volt)
	s.amp += slow * (amp - s.amp)
	s.eff += slow * (eff - s.eff)
	s.emf += slow * (emf - s.emf)
}

func (s *smoother) reset() { s.primed = false }
