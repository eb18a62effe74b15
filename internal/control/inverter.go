package control

import "math"

// InverterParams configure the switching bridge between the controller's
// duty command and the motor terminals.
type InverterParams struct {
	BusVoltage     float64 `yaml:"bus_voltage"`      // DC link (V)
	SwitchingHz    float64 `yaml:"switching_hz"`     // PWM carrier (Hz)
	DeadTime       float64 `yaml:"dead_time"`        // s, per switching edge
	OnResistance   float64 `yaml:"on_resistance"`    // ohm, per device
	SwitchingLossK float64 `yaml:"switching_loss_k"` // loss per A*V at 1 kHz
}

// DefaultInverterParams describe a generic MOSFET bridge on the given bus.
func DefaultInverterParams(busVoltage float64) InverterParams {
	return InverterParams{
		BusVoltage:     busVoltage,
		SwitchingHz:    20000,
		DeadTime:       2e-6,
		OnResistance:   0.01,
		SwitchingLossK: 0.001,
	}
}

// Inverter is the average-value model of a voltage source inverter: dead
// time shaves the effective duty, and the conduction drop across the two
// active devices subtracts from the ideal average. Switching and conduction
// losses are tracked for the drive-level efficiency.
type Inverter struct {
	params InverterParams

	duty        float64
	outputV     float64
	conductionW float64
	switchingW  float64
}

func NewInverter(p InverterParams) *Inverter {
	return &Inverter{params: p}
}

// Modulate converts a duty command and the present phase current into the
// average voltage the bridge actually delivers.
func (inv *Inverter) Modulate(duty, current float64) float64 {
	duty = clamp(duty, 0, 1)
	effective := duty - inv.params.DeadTime*inv.params.SwitchingHz
	if effective < 0 {
		effective = 0
	}
	ideal := inv.params.BusVoltage * effective

	// Two devices conduct at any instant in the bridge.
	inv.conductionW = 2 * current * current * inv.params.OnResistance
	inv.switchingW = inv.params.SwitchingLossK * math.Abs(current) *
		inv.params.BusVoltage * inv.params.SwitchingHz / 1000.0

	out := ideal - 2*math.Abs(current)*inv.params.OnResistance
	if out < 0 {
		out = 0
	}
	inv.duty = duty
	inv.outputV = out
	return out
}

// Losses reports the switch losses of the last Modulate call.
func (inv *Inverter) Losses() float64 {
	return inv.conductionW + inv.switchingW
}

// Efficiency relates delivered power to delivered power plus switch losses
// at the last operating point.
func (inv *Inverter) Efficiency(current float64) float64 {
	out := inv.outputV * math.Abs(current)
	if out <= 0 {
		return 0
	}
	return out / (out + inv.Losses())
}

// CurrentRipple estimates the peak-to-peak switching ripple through the
// motor inductance at the last commanded duty. Ripple peaks at 50% duty.
func (inv *Inverter) CurrentRipple(inductance float64) float64 {
	if inductance <= 0 {
		return 0
	}
	return inv.params.BusVoltage * inv.duty * (1 - inv.duty) /
		(inductance * inv.params.SwitchingHz)
}
