package motor

import "math"

// EfficiencyPoint is one steady-state operating point of the motor map.
type EfficiencyPoint struct {
	SpeedRPM   float64
	TorqueNm   float64
	Efficiency float64
	PowerW     float64
}

// EfficiencyCurve sweeps the steady-state operating envelope at the given
// supply voltage and returns the reachable points. Points that would need
// more voltage than supplied, or more than 1.5x rated power, are skipped.
func (m *Motor) EfficiencyCurve(voltage float64) []EfficiencyPoint {
	p := m.params
	if voltage <= 0 {
		voltage = p.RatedVoltage
	}
	ratedPower := p.RatedTorque * p.RatedSpeedRPM * math.Pi / 30.0

	const speedSteps, torqueSteps = 20, 10
	points := make([]EfficiencyPoint, 0, speedSteps*torqueSteps)

	// The sweep starts above zero speed: a stationary point delivers no
	// mechanical power and has no defined efficiency.
	for i := 1; i <= speedSteps; i++ {
		speedRPM := p.MaxSpeedRPM * float64(i) / float64(speedSteps)
		speedRad := speedRPM * math.Pi / 30.0
		for j := 1; j <= torqueSteps; j++ {
			torque := p.MaxTorque * float64(j) / float64(torqueSteps)
			mech := torque * speedRad
			if mech > ratedPower*1.5 {
				continue
			}
			current := torque / p.Kt
			emf := p.Ke * speedRad
			if voltage <= emf+p.Resistance*current {
				continue
			}
			elec := voltage * current
			if elec <= 0 {
				continue
			}
			eff := mech / elec
			if eff > 0.98 {
				eff = 0.98
			}
			points = append(points, EfficiencyPoint{
				SpeedRPM:   speedRPM,
				TorqueNm:   torque,
				Efficiency: eff,
				PowerW:     mech,
			})
		}
	}
	return points
}
