package sequence

import (
	"fmt"
	"math"
)

// phase maps the elapsed test time to the setpoints the controller should
// chase right now. Pure: the engine owns all state.
func (s Sequence) phase(elapsed float64) Setpoints {
	switch s.Type {
	case EfficiencyMap:
		return s.gridPhase(elapsed)
	case PerformanceCurve:
		return s.sweepPhase(elapsed)
	case ThermalSoak:
		return Setpoints{
			SpeedRPM: s.HoldSpeed, HasSpeed: true,
			LoadNm: s.HoldLoad, HasLoad: true,
			Description: fmt.Sprintf("soaking at %.0f rpm / %.1f Nm", s.HoldSpeed, s.HoldLoad),
		}
	case StepResponse:
		return s.stepPhase(elapsed)
	case Endurance:
		return s.cyclePhase(elapsed)
	}
	return Setpoints{}
}

// gridPhase walks the speed x torque grid, one cell per proportional slice of
// the total duration, torque as the fast axis.
func (s Sequence) gridPhase(elapsed float64) Setpoints {
	total := s.GridPoints()
	idx := int(elapsed / s.Duration * float64(total))
	if idx >= total {
		idx = total - 1
	}
	si, ti := idx/s.TorqueSteps, idx%s.TorqueSteps

	speed := s.SpeedMin
	if s.SpeedSteps > 1 {
		speed += (s.SpeedMax - s.SpeedMin) * float64(si) / float64(s.SpeedSteps-1)
	}
	torque := s.TorqueMin
	if s.TorqueSteps > 1 {
		torque += (s.TorqueMax - s.TorqueMin) * float64(ti) / float64(s.TorqueSteps-1)
	}
	return Setpoints{
		SpeedRPM: speed, HasSpeed: true,
		LoadNm: torque, HasLoad: true,
		Description: fmt.Sprintf("grid cell %d/%d: %.0f rpm / %.2f Nm", idx+1, total, speed, torque),
	}
}

// sweepPhase ramps speed end to end while holding the load fixed.
func (s Sequence) sweepPhase(elapsed float64) Setpoints {
	frac := elapsed / s.Duration
	if frac > 1 {
		frac = 1
	}
	speed := s.SpeedMin + (s.SpeedMax-s.SpeedMin)*frac
	return Setpoints{
		SpeedRPM: speed, HasSpeed: true,
		LoadNm: s.HoldLoad, HasLoad: true,
		Description: fmt.Sprintf("sweeping %.0f rpm at %.1f Nm", speed, s.HoldLoad),
	}
}

func (s Sequence) stepPhase(elapsed float64) Setpoints {
	if elapsed < s.PreStepTime {
		return Setpoints{
			SpeedRPM: s.BaseSpeed, HasSpeed: true,
			LoadNm: s.HoldLoad, HasLoad: true,
			Description: fmt.Sprintf("pre-step baseline %.0f rpm", s.BaseSpeed),
		}
	}
	return Setpoints{
		SpeedRPM: s.StepSpeed, HasSpeed: true,
		LoadNm: s.HoldLoad, HasLoad: true,
		Description: fmt.Sprintf("step to %.0f rpm", s.StepSpeed),
	}
}

// cyclePhase oscillates speed and load around the hold point. The load
// excursion is rectified so the brake never demands negative torque.
func (s Sequence) cyclePhase(elapsed float64) Setpoints {
	w := 2 * math.Pi * elapsed / s.CyclePeriod
	speed := s.HoldSpeed + s.CycleSpeedAmp*math.Sin(w)
	loadTorque := s.HoldLoad + s.CycleLoadAmp*math.Abs(math.Sin(w))
	cycle := int(elapsed/s.CyclePeriod) + 1
	return Setpoints{
		SpeedRPM: speed, HasSpeed: true,
		LoadNm: loadTorque, HasLoad: true,
		Description: fmt.Sprintf("endurance cycle %d", cycle),
	}
}
