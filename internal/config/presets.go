package config

import "github.com/san-kum/motorbench/internal/sequence"

// SequencePresets are ready-made test templates per catalog motor.
var SequencePresets = map[string]map[string]sequence.Sequence{
	"bldc_2kw_48v": {
		"efficiency-map": {
			ID: "effmap-2kw", Name: "Efficiency map", Type: sequence.EfficiencyMap,
			Duration: 180, SpeedMin: 500, SpeedMax: 3000, SpeedSteps: 6,
			TorqueMin: 0.5, TorqueMax: 6, TorqueSteps: 6,
			Criteria: sequence.Criteria{CriticalTemp: 145, MinEfficiency: 0.5},
		},
		"performance-curve": {
			ID: "perf-2kw", Name: "Performance curve", Type: sequence.PerformanceCurve,
			Duration: 60, SpeedMin: 200, SpeedMax: 3000, HoldLoad: 3,
			Criteria: sequence.Criteria{CriticalTemp: 145, MaxTorque: 14},
		},
		"thermal-soak": {
			ID: "soak-2kw", Name: "Thermal soak", Type: sequence.ThermalSoak,
			Duration: 600, HoldSpeed: 2000, HoldLoad: 4,
			Criteria: sequence.Criteria{CriticalTemp: 145, MaxTemperature: 120},
		},
		"step-response": {
			ID: "step-2kw", Name: "Step response", Type: sequence.StepResponse,
			Duration: 20, BaseSpeed: 1000, StepSpeed: 2500, PreStepTime: 8, HoldLoad: 1,
			Criteria: sequence.Criteria{CriticalTemp: 145, MaxSettlingTime: 5, MaxOvershootPct: 25},
		},
		"endurance": {
			ID: "endur-2kw", Name: "Endurance cycling", Type: sequence.Endurance,
			Duration: 1800, HoldSpeed: 2000, HoldLoad: 2, CyclePeriod: 60,
			CycleSpeedAmp: 800, CycleLoadAmp: 2,
			Criteria: sequence.Criteria{CriticalTemp: 145, MaxTemperature: 130},
		},
	},
	"bldc_500w_24v": {
		"thermal-soak": {
			ID: "soak-500w", Name: "Thermal soak", Type: sequence.ThermalSoak,
			Duration: 600, HoldSpeed: 1800, HoldLoad: 1,
			Criteria: sequence.Criteria{CriticalTemp: 125, MaxTemperature: 105},
		},
		"step-response": {
			ID: "step-500w", Name: "Step response", Type: sequence.StepResponse,
			Duration: 20, BaseSpeed: 800, StepSpeed: 2000, PreStepTime: 8, HoldLoad: 0.5,
			Criteria: sequence.Criteria{CriticalTemp: 125, MaxSettlingTime: 5},
		},
	},
	"bldc_10kw_96v": {
		"performance-curve": {
			ID: "perf-10kw", Name: "Performance curve", Type: sequence.PerformanceCurve,
			Duration: 90, SpeedMin: 200, SpeedMax: 4000, HoldLoad: 10,
			Criteria: sequence.Criteria{CriticalTemp: 155, MaxTorque: 50},
		},
		"thermal-soak": {
			ID: "soak-10kw", Name: "Thermal soak", Type: sequence.ThermalSoak,
			Duration: 900, HoldSpeed: 3000, HoldLoad: 15,
			Criteria: sequence.Criteria{CriticalTemp: 155, MaxTemperature: 140},
		},
	},
}

func GetSequencePreset(motorID, preset string) (sequence.Sequence, bool) {
	presets, ok := SequencePresets[motorID]
	if !ok {
		return sequence.Sequence{}, false
	}
	seq, ok := presets[preset]
	return seq, ok
}

func ListSequencePresets(motorID string) []string {
	presets, ok := SequencePresets[motorID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}
