package control

import (
	"math"

	"github.com/san-kum/motorbench/internal/motor"
)

// Mode selects how the target value is interpreted.
type Mode string

const (
	ModeSpeed   Mode = "speed"   // target in RPM, cascaded speed -> current
	ModeCurrent Mode = "current" // target in A, inner loop only
	ModeTorque  Mode = "torque"  // target in Nm, converted to current
	ModeVoltage Mode = "voltage" // target in V, direct pass-through
)

// Gains configures both loops of the cascade.
type Gains struct {
	// Outer speed loop: RPM error in, torque command (Nm) out.
	SpeedKp        float64 `yaml:"speed_kp"`
	SpeedKi        float64 `yaml:"speed_ki"`
	SpeedKd        float64 `yaml:"speed_kd"`
	SpeedFilterTau float64 `yaml:"speed_filter_tau"`

	// Inner current loop: amp error in, feedback volts out.
	CurrentKp float64 `yaml:"current_kp"`
	CurrentKi float64 `yaml:"current_ki"`

	DeadbandRPM      float64 `yaml:"deadband_rpm"`      // no outer correction below this error
	IntegralDecayTau float64 `yaml:"integral_decay_tau"` // s, deadband integral bleed
	ResetThreshold   float64 `yaml:"reset_threshold"`   // fraction of scale; larger target jumps reset integrators
}

// DefaultGains returns loop gains tuned for a 1 ms control period. The
// current-loop PI follows the pole-placement rule Kp = L*wc, Ki = R*wc at a
// 100 Hz bandwidth, which keeps the discrete loop well inside stability for
// millisecond ticks.
func DefaultGains(p motor.Params) Gains {
	wc := 2 * math.Pi * 100.0
	return Gains{
		SpeedKp:          0.05,
		SpeedKi:          0.2,
		SpeedKd:          0.0005,
		SpeedFilterTau:   0.01,
		CurrentKp:        p.Inductance * wc,
		CurrentKi:        p.Resistance * wc,
		DeadbandRPM:      20.0,
		IntegralDecayTau: 2.0,
		ResetThreshold:   0.10,
	}
}

// Duty-cycle clamp for the modulated output voltage.
const (
	minDuty = 0.01
	maxDuty = 0.98
)

// Feedback is the slice of published motor state the controller consumes.
// The controller never holds a reference into the motor itself.
type Feedback struct {
	SpeedRPM      float64
	CurrentA      float64
	BackEmfV      float64 // drive-level (rectified) back-EMF
	ResistanceOhm float64 // temperature-compensated winding resistance
}

// Cascade is the full control stack: an outer speed PID feeding an inner
// current PI with feed-forward, plus the degenerate torque and voltage modes.
type Cascade struct {
	params motor.Params
	gains  Gains

	speed    *PID
	inverter *Inverter

	currentIntegralV float64 // inner-loop accumulator, volts
	maxIntegralV     float64

	mode    Mode
	target  float64
	running bool
}

// NewCascade builds a controller for the given motor.
func NewCascade(p motor.Params, g Gains) *Cascade {
	return &Cascade{
		params: p,
		gains:  g,
		speed: NewPID(g.SpeedKp, g.SpeedKi, g.SpeedKd,
			p.MaxTorque, p.MaxTorque/2/maxNonZero(g.SpeedKi), g.SpeedFilterTau),
		maxIntegralV: p.RatedVoltage / 2,
		mode:         ModeSpeed,
	}
}

// SetInverter inserts a switching-bridge model between the duty command and
// the applied voltage. Nil keeps the bridge ideal.
func (c *Cascade) SetInverter(inv *Inverter) { c.inverter = inv }

// Inverter returns the attached bridge model, nil when ideal.
func (c *Cascade) Inverter() *Inverter { return c.inverter }

func maxNonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// Mode returns the active control mode.
func (c *Cascade) Mode() Mode { return c.mode }

// Target returns the active setpoint in mode units.
func (c *Cascade) Target() float64 { return c.target }

// SetTarget switches mode and/or setpoint. Switching mode, or moving the
// setpoint by more than the configured fraction of its full scale, resets
// both integral accumulators (anti-windup on setpoint changes).
func (c *Cascade) SetTarget(mode Mode, target float64) {
	if mode != c.mode || abs(target-c.target) > c.gains.ResetThreshold*c.scale(mode) {
		c.resetIntegrators()
	}
	c.mode = mode
	c.target = target
}

// SetRunning records motor start/stop transitions; each transition resets
// the integrators so stale windup cannot kick the rotor.
func (c *Cascade) SetRunning(running bool) {
	if running != c.running {
		c.resetIntegrators()
	}
	c.running = running
}

// Running reports the drive-enable state.
func (c *Cascade) Running() bool { return c.running }

func (c *Cascade) scale(mode Mode) float64 {
	switch mode {
	case ModeSpeed:
		return c.params.MaxSpeedRPM
	case ModeCurrent:
		return c.params.MaxCurrent
	case ModeTorque:
		return c.params.MaxTorque
	default:
		return c.params.RatedVoltage
	}
}

func (c *Cascade) resetIntegrators() {
	c.speed.Reset()
	c.currentIntegralV = 0
}

// Reset clears all controller memory.
func (c *Cascade) Reset() {
	c.resetIntegrators()
	c.target = 0
}

// CurrentIntegral exposes the inner accumulator for clamp verification.
func (c *Cascade) CurrentIntegral() float64 { return c.currentIntegralV }

// SpeedIntegral exposes the outer accumulator for clamp verification.
func (c *Cascade) SpeedIntegral() float64 { return c.speed.Integral() }

// ComputeVoltage runs one control period and returns the voltage to apply.
// A stopped drive always outputs zero.
func (c *Cascade) ComputeVoltage(fb Feedback, dt float64) float64 {
	if !c.running {
		return 0
	}

	switch c.mode {
	case ModeVoltage:
		// Direct pass-through for calibration; only the modulator clamp
		// applies.
		return c.modulate(c.target, fb.CurrentA)
	case ModeCurrent:
		return c.currentLoop(c.target, fb, dt)
	case ModeTorque:
		return c.currentLoop(c.target/c.params.Kt, fb, dt)
	default:
		return c.currentLoop(c.speedLoop(fb, dt), fb, dt)
	}
}

// speedLoop produces a current setpoint from the speed error. Inside the
// deadband it emits only the friction-holding current and bleeds the
// integral so the loop cannot hunt around the setpoint.
func (c *Cascade) speedLoop(fb Feedback, dt float64) float64 {
	err := c.target - fb.SpeedRPM
	if abs(err) <= c.gains.DeadbandRPM {
		c.speed.DecayIntegral(dt, c.gains.IntegralDecayTau)
		speedRad := fb.SpeedRPM * math.Pi / 30.0
		holding := (c.params.Damping*speedRad + c.params.StaticFriction) / c.params.Kt
		return clamp(holding+c.speed.Ki*c.speed.Integral()/c.params.Kt,
			-c.params.MaxCurrent, c.params.MaxCurrent)
	}

	torqueCmd := c.speed.Update(c.target, fb.SpeedRPM, dt)
	return clamp(torqueCmd/c.params.Kt, -c.params.MaxCurrent, c.params.MaxCurrent)
}

// currentLoop regulates current with feed-forward V = emf + I*R plus a
// clamped PI feedback term, then modulates the result onto the rated bus.
func (c *Cascade) currentLoop(targetCurrent float64, fb Feedback, dt float64) float64 {
	targetCurrent = clamp(targetCurrent, -c.params.MaxCurrent, c.params.MaxCurrent)
	err := targetCurrent - fb.CurrentA

	ff := fb.BackEmfV + targetCurrent*fb.ResistanceOhm

	c.currentIntegralV = clamp(c.currentIntegralV+c.gains.CurrentKi*err*dt,
		-c.maxIntegralV, c.maxIntegralV)
	feedback := c.gains.CurrentKp*err + c.currentIntegralV

	return c.modulate(ff+feedback, fb.CurrentA)
}

// modulate converts a voltage demand into the applied voltage through the
// duty-cycle clamp of the bus. With a bridge model attached the duty goes
// through it and picks up dead time and conduction drop.
func (c *Cascade) modulate(targetVoltage, current float64) float64 {
	duty := clamp(targetVoltage/c.params.RatedVoltage, minDuty, maxDuty)
	if c.inverter != nil {
		return c.inverter.Modulate(duty, current)
	}
	return duty * c.params.RatedVoltage
}
