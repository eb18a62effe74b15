package motor

import (
	"errors"
	"fmt"
	"math"
)

// Domain errors for motor construction and catalog lookup.
var (
	ErrNonPositiveParam = errors.New("motor: parameter must be positive")
	ErrConstantMismatch = errors.New("motor: kt and ke disagree beyond tolerance")
	ErrUnknownMotor     = errors.New("motor: unknown motor id")
)

// Params holds the immutable electrical, mechanical and thermal constants of
// one motor. All values are SI except where the field name says otherwise.
type Params struct {
	Resistance     float64 `yaml:"resistance"`      // winding resistance at 20 degC (ohm)
	Inductance     float64 `yaml:"inductance"`      // winding inductance (H)
	Kt             float64 `yaml:"kt"`              // torque constant (Nm/A)
	Ke             float64 `yaml:"ke"`              // back-EMF constant (V*s/rad)
	PolePairs      int     `yaml:"pole_pairs"`      // electrical pole pairs
	Inertia        float64 `yaml:"inertia"`         // rotor inertia (kg*m^2)
	Damping        float64 `yaml:"damping"`         // viscous friction (Nm*s/rad)
	StaticFriction float64 `yaml:"static_friction"` // breakaway torque (Nm)

	RatedVoltage  float64 `yaml:"rated_voltage"`   // V
	RatedCurrent  float64 `yaml:"rated_current"`   // A
	MaxCurrent    float64 `yaml:"max_current"`     // A, hard clamp
	RatedSpeedRPM float64 `yaml:"rated_speed_rpm"` // RPM
	MaxSpeedRPM   float64 `yaml:"max_speed_rpm"`   // RPM, hard clamp
	RatedTorque   float64 `yaml:"rated_torque"`    // Nm
	MaxTorque     float64 `yaml:"max_torque"`      // Nm, hard clamp

	AmbientTemp     float64 `yaml:"ambient_temp"`       // degC
	MaxTemp         float64 `yaml:"max_temp"`           // degC, hard clamp
	ThermalRes      float64 `yaml:"thermal_resistance"` // degC/W
	ThermalCapacity float64 `yaml:"thermal_capacity"`   // J/degC
}

// ktKeTolerance is the allowed relative gap between Kt and Ke. In consistent
// SI units the two constants are equal; a larger gap means a unit error in
// the parameter set, not a real motor.
const ktKeTolerance = 0.25

// Validate rejects parameter sets that cannot describe a physical motor.
func (p Params) Validate() error {
	positive := []struct {
		name string
		val  float64
	}{
		{"resistance", p.Resistance},
		{"inductance", p.Inductance},
		{"kt", p.Kt},
		{"ke", p.Ke},
		{"pole_pairs", float64(p.PolePairs)},
		{"inertia", p.Inertia},
		{"damping", p.Damping},
		{"rated_voltage", p.RatedVoltage},
		{"rated_current", p.RatedCurrent},
		{"max_current", p.MaxCurrent},
		{"rated_speed_rpm", p.RatedSpeedRPM},
		{"max_speed_rpm", p.MaxSpeedRPM},
		{"rated_torque", p.RatedTorque},
		{"max_torque", p.MaxTorque},
		{"max_temp", p.MaxTemp},
		{"thermal_resistance", p.ThermalRes},
		{"thermal_capacity", p.ThermalCapacity},
	}
	for _, f := range positive {
		if f.val <= 0 {
			return fmt.Errorf("%w: %s = %g", ErrNonPositiveParam, f.name, f.val)
		}
	}
	if p.StaticFriction < 0 {
		return fmt.Errorf("%w: static_friction = %g", ErrNonPositiveParam, p.StaticFriction)
	}
	if p.MaxTemp <= p.AmbientTemp {
		return fmt.Errorf("%w: max_temp %.1f <= ambient %.1f", ErrNonPositiveParam, p.MaxTemp, p.AmbientTemp)
	}
	if rel := math.Abs(p.Kt-p.Ke) / p.Kt; rel > ktKeTolerance {
		return fmt.Errorf("%w: kt=%.4f ke=%.4f", ErrConstantMismatch, p.Kt, p.Ke)
	}
	return nil
}

// MaxSpeedRad returns the speed clamp in rad/s.
func (p Params) MaxSpeedRad() float64 {
	return p.MaxSpeedRPM * math.Pi / 30.0
}

// HotResistance returns the winding resistance compensated for temperature
// using the copper coefficient 0.00393 per degC (referenced to 20 degC).
func (p Params) HotResistance(temp float64) float64 {
	const alpha = 0.00393
	return p.Resistance * (1 + alpha*(temp-20.0))
}

// GetParams exposes the tunable numeric parameters for live adjustment.
func (p Params) GetParams() map[string]float64 {
	return map[string]float64{
		"resistance":      p.Resistance,
		"inductance":      p.Inductance,
		"kt":              p.Kt,
		"ke":              p.Ke,
		"inertia":         p.Inertia,
		"damping":         p.Damping,
		"static_friction": p.StaticFriction,
	}
}
