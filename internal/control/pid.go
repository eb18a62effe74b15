// Package control implements the cascaded speed/current control stack that
// turns setpoints into applied motor voltage.
package control

// PID is a textbook PID loop with integral clamping, output saturation,
// back-calculation anti-windup and a first-order filter on the derivative.
type PID struct {
	Kp float64
	Ki float64
	Kd float64

	MaxOutput   float64
	MinOutput   float64
	MaxIntegral float64 // clamp on the integral accumulator, in input units * s
	FilterTau   float64 // derivative low-pass time constant (s)

	integral       float64
	lastErr        float64
	lastDerivative float64
	primed         bool
}

// NewPID builds a PID with symmetric output limits.
func NewPID(kp, ki, kd, maxOutput, maxIntegral, filterTau float64) *PID {
	return &PID{
		Kp:          kp,
		Ki:          ki,
		Kd:          kd,
		MaxOutput:   maxOutput,
		MinOutput:   -maxOutput,
		MaxIntegral: maxIntegral,
		FilterTau:   filterTau,
	}
}

// Update advances the loop by dt and returns the saturated output.
func (p *PID) Update(setpoint, actual, dt float64) float64 {
	err := setpoint - actual
	if dt <= 0 {
		return clamp(p.Kp*err, p.MinOutput, p.MaxOutput)
	}

	proportional := p.Kp * err

	// Filtered derivative; the first sample produces none to avoid
	// derivative kick on a step setpoint.
	var raw float64
	if p.primed {
		raw = (err - p.lastErr) / dt
	}
	p.primed = true
	if p.FilterTau > 0 {
		alpha := dt / (p.FilterTau + dt)
		p.lastDerivative += alpha * (raw - p.lastDerivative)
	} else {
		p.lastDerivative = raw
	}
	derivative := p.Kd * p.lastDerivative

	p.integral = clamp(p.integral+err*dt, -p.MaxIntegral, p.MaxIntegral)
	integral := p.Ki * p.integral

	out := proportional + integral + derivative
	saturated := clamp(out, p.MinOutput, p.MaxOutput)

	// Back-calculation: when saturated, trim the accumulator so it does not
	// keep charging beyond what the output can realize.
	if saturated != out && p.Ki != 0 {
		trimmed := (saturated - proportional - derivative) / p.Ki
		if abs(trimmed) < abs(p.integral) {
			p.integral = clamp(trimmed, -p.MaxIntegral, p.MaxIntegral)
		}
	}

	p.lastErr = err
	return saturated
}

// DecayIntegral bleeds the accumulator toward zero with time constant tau.
// Used inside the speed deadband to prevent drift.
func (p *PID) DecayIntegral(dt, tau float64) {
	if tau <= 0 || dt <= 0 {
		p.integral = 0
		return
	}
	p.integral -= p.integral * dt / tau
}

// Integral exposes the accumulator for clamp verification.
func (p *PID) Integral() float64 { return p.integral }

// Reset clears all loop memory.
func (p *PID) Reset() {
	p.integral = 0
	p.lastErr = 0
	p.lastDerivative = 0
	p.primed = false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
