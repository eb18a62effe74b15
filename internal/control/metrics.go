package control

// StepMetrics characterizes a recorded step response.
type StepMetrics struct {
	RiseTime        float64 // s, 10% to 90% of the step
	SettlingTime    float64 // s, last entry into the +/-2% band
	OvershootPct    float64 // % of the step beyond the final target
	SteadyStateErr  float64 // target minus tail average, signal units
	PeakValue       float64
	Settled         bool
}

// AnalyzeStep computes classic step-response figures for samples taken at a
// fixed period dt, starting at the moment the step was applied. initial is the
// value before the step and target the commanded final value.
func AnalyzeStep(samples []float64, dt, initial, target float64) StepMetrics {
	var m StepMetrics
	if len(samples) == 0 || target == initial {
		return m
	}
	step := target - initial

	// Rise time between the 10% and 90% crossings.
	lo := initial + 0.10*step
	hi := initial + 0.90*step
	tLo, tHi := -1.0, -1.0
	for i, v := range samples {
		if tLo < 0 && crossed(v, lo, step) {
			tLo = float64(i) * dt
		}
		if tHi < 0 && crossed(v, hi, step) {
			tHi = float64(i) * dt
			break
		}
	}
	if tLo >= 0 && tHi >= 0 {
		m.RiseTime = tHi - tLo
	}

	// Settling: last sample outside the 2% band.
	band := 0.02 * abs(step)
	settleIdx := -1
	for i := len(samples) - 1; i >= 0; i-- {
		if abs(samples[i]-target) > band {
			settleIdx = i
			break
		}
	}
	if settleIdx < len(samples)-1 {
		m.Settled = true
		m.SettlingTime = float64(settleIdx+1) * dt
	}

	// Peak and overshoot relative to the step size.
	peak := samples[0]
	for _, v := range samples {
		if step > 0 && v > peak {
			peak = v
		}
		if step < 0 && v < peak {
			peak = v
		}
	}
	m.PeakValue = peak
	if over := (peak - target) / step; over > 0 {
		m.OvershootPct = over * 100
	}

	// Steady-state error over the trailing 10% of the record.
	tail := len(samples) / 10
	if tail < 1 {
		tail = 1
	}
	sum := 0.0
	for _, v := range samples[len(samples)-tail:] {
		sum += v
	}
	m.SteadyStateErr = target - sum/float64(tail)
	return m
}

func crossed(v, threshold, step float64) bool {
	if step > 0 {
		return v >= threshold
	}
	return v <= threshold
}
