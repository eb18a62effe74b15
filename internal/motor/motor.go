package motor

import "math"

// State is the mutable motor state owned by the scheduler tick. External
// consumers only ever see copies.
type State struct {
	Current     float64 // phase current (A)
	Speed       float64 // mechanical speed (rad/s), >= 0
	Position    float64 // mechanical rotor angle, wrapped to [0, 2pi)
	Temperature float64 // winding temperature (degC)
}

// Smoothing weights for the explicit integration. These are numerical
// stabilizers for timesteps above the electrical time constant, not physical
// terms: the raw Euler update is blended with the previous value so a 1-10 ms
// step does not overshoot the inductive response.
const (
	currentSmoothing = 0.35
	torqueSmoothing  = 0.5
)

// MaxDt caps the integration step regardless of what the caller passes.
const MaxDt = 0.010

// coreLossWatts scales the speed-dependent iron loss term in the thermal
// model: loss = coreLossWatts * (speed/maxSpeed)^2.
const coreLossWatts = 5.0

// Motor integrates the electrical, mechanical and thermal dynamics of one
// trapezoidal-commutated machine at a fixed timestep.
type Motor struct {
	params Params
	state  State

	prevTorque  float64
	lastVoltage float64
	lastLoad    float64
	clampEvents uint64

	// AuxLoad is an optional additive load torque as a function of speed,
	// e.g. an eddy-current brake. Nil means disabled. How an auxiliary brake
	// should combine with the profile load is still open; for now the two
	// terms sum.
	AuxLoad func(speed float64) float64
}

// New builds a motor from validated parameters with the rotor at rest and
// windings at ambient temperature.
func New(p Params) (*Motor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m := &Motor{params: p}
	m.Reset()
	return m, nil
}

// Params returns the immutable parameter set.
func (m *Motor) Params() Params { return m.params }

// State returns a copy of the current state.
func (m *Motor) State() State { return m.state }

// ClampEvents reports how many post-integration clamps have fired since the
// last Reset. Clamping is silent; the counter is the only trace.
func (m *Motor) ClampEvents() uint64 { return m.clampEvents }

// Reset returns the motor to rest at ambient temperature.
func (m *Motor) Reset() {
	m.state = State{Temperature: m.params.AmbientTemp}
	m.prevTorque = 0
	m.lastVoltage = 0
	m.lastLoad = 0
	m.clampEvents = 0
}

// ShapeFactor is the six-segment trapezoidal back-EMF shape as a function of
// electrical angle: a 30 degree linear rise, 120 degrees flat at +1, a 60
// degree linear crossing to -1, 120 degrees flat at -1, and a 30 degree rise
// back to zero.
func ShapeFactor(elecAngle float64) float64 {
	a := math.Mod(elecAngle, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	const sixth = math.Pi / 6 // 30 degrees
	switch {
	case a < sixth:
		return a / sixth
	case a < 5*sixth:
		return 1
	case a < 7*sixth:
		return 1 - 2*(a-5*sixth)/(2*sixth)
	case a < 11*sixth:
		return -1
	default:
		return -1 + (a-11*sixth)/sixth
	}
}

// ElectricalAngle maps the mechanical rotor angle through the pole pairs.
func (m *Motor) ElectricalAngle() float64 {
	return math.Mod(m.state.Position*float64(m.params.PolePairs), 2*math.Pi)
}

// BackEMF returns the instantaneous per-phase back-EMF at the present rotor
// state, signed per the trapezoidal waveform.
func (m *Motor) BackEMF() float64 {
	return m.params.Ke * m.state.Speed * ShapeFactor(m.ElectricalAngle())
}

// DriveEMF is the back-EMF the drive works against. Commutation keeps the
// energized phases aligned with their EMF, so on the DC side the drive sees
// the flat-top value Ke*w; the trapezoidal dips belong to the individual
// phases, not to the bus.
func (m *Motor) DriveEMF() float64 {
	return m.params.Ke * m.state.Speed
}

// Step advances the motor by dt under the given terminal voltage and load
// torque, and returns the new state. dt is clamped to MaxDt. All state
// invariants are enforced by silent clamping after integration; a hard
// real-time loop cannot propagate errors mid-tick.
func (m *Motor) Step(appliedVoltage, loadTorque, dt float64) State {
	if dt > MaxDt {
		dt = MaxDt
	}
	if dt <= 0 {
		return m.state
	}
	p := &m.params

	// Electrical: di/dt = (V - emf - R*i) / L, explicit Euler blended with
	// the previous value for stability at coarse timesteps.
	emf := p.Ke * m.state.Speed
	r := p.HotResistance(m.state.Temperature)
	diDt := (appliedVoltage - emf - r*m.state.Current) / p.Inductance
	rawCurrent := m.state.Current + diDt*dt
	current := m.state.Current + currentSmoothing*(rawCurrent-m.state.Current)
	if current > p.MaxCurrent {
		current = p.MaxCurrent
		m.clampEvents++
	} else if current < -p.MaxCurrent {
		current = -p.MaxCurrent
		m.clampEvents++
	}
	m.state.Current = current

	// Torque follows current directly, with no commutation dead spots: the
	// energized phases always sit on the flat top of the waveform, so a
	// stationary rotor produces torque at any position. The blend emulates
	// mechanical linkage smoothing.
	rawTorque := p.Kt * current
	torque := m.prevTorque + torqueSmoothing*(rawTorque-m.prevTorque)
	if torque > p.MaxTorque {
		torque = p.MaxTorque
		m.clampEvents++
	} else if torque < -p.MaxTorque {
		torque = -p.MaxTorque
		m.clampEvents++
	}
	m.prevTorque = torque

	load := loadTorque
	if m.AuxLoad != nil {
		load += m.AuxLoad(m.state.Speed)
	}

	// Mechanical: d(omega)/dt = (tau - load - b*omega - static) / J.
	// Static friction must not reverse a stationary rotor.
	friction := p.Damping * m.state.Speed
	net := torque - load - friction
	if m.state.Speed > 0 {
		net -= p.StaticFriction
	} else if math.Abs(net) <= p.StaticFriction {
		net = 0
	} else if net > 0 {
		net -= p.StaticFriction
	} else {
		net += p.StaticFriction
	}
	speed := m.state.Speed + net/p.Inertia*dt
	maxSpeed := p.MaxSpeedRad()
	if speed < 0 {
		speed = 0
		m.clampEvents++
	} else if speed > maxSpeed {
		speed = maxSpeed
		m.clampEvents++
	}
	m.state.Speed = speed
	m.state.Position = math.Mod(m.state.Position+speed*dt, 2*math.Pi)

	// Thermal: first-order lag driven by copper and iron losses.
	i2r := r * current * current
	speedPU := speed / maxSpeed
	loss := i2r + coreLossWatts*speedPU*speedPU
	dTemp := (loss - (m.state.Temperature-p.AmbientTemp)/p.ThermalRes) / p.ThermalCapacity
	temp := m.state.Temperature + dTemp*dt
	if temp < p.AmbientTemp {
		temp = p.AmbientTemp
	} else if temp > p.MaxTemp {
		temp = p.MaxTemp
		m.clampEvents++
	}
	m.state.Temperature = temp

	m.lastVoltage = appliedVoltage
	m.lastLoad = load
	return m.state
}

// Torque returns the present (smoothed, clamped) shaft torque.
func (m *Motor) Torque() float64 { return m.prevTorque }

// Snapshot derives the externally published quantities from the state.
type Snapshot struct {
	SpeedRPM     float64
	TorqueNm     float64
	CurrentA     float64
	VoltageV     float64
	PowerW       float64
	Efficiency   float64 // 0..1
	BackEmfV     float64
	TemperatureC float64
	PositionRad  float64
	LoadTorqueNm float64
}

// Snapshot computes the derived output quantities at the present state.
func (m *Motor) Snapshot() Snapshot {
	mech := m.prevTorque * m.state.Speed
	elec := m.lastVoltage * m.state.Current
	return Snapshot{
		SpeedRPM:     m.state.Speed * 30.0 / math.Pi,
		TorqueNm:     m.prevTorque,
		CurrentA:     m.state.Current,
		VoltageV:     m.lastVoltage,
		PowerW:       mech,
		Efficiency:   efficiency(mech, elec),
		BackEmfV:     m.BackEMF(),
		TemperatureC: m.state.Temperature,
		PositionRad:  m.state.Position,
		LoadTorqueNm: m.lastLoad,
	}
}

// efficiency caps at 0.98 and distinguishes motoring from regeneration.
func efficiency(mech, elec float64) float64 {
	if math.Abs(elec) < 0.1 {
		return 0
	}
	var eff float64
	if elec > 0 {
		eff = math.Abs(mech) / elec
	} else if mech != 0 {
		// Regeneration: electrical power is the output, mechanical the input.
		eff = math.Abs(elec) / math.Abs(mech)
	}
	if eff < 0 {
		eff = 0
	}
	if eff > 0.98 {
		eff = 0.98
	}
	return eff
}
