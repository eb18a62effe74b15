package sequence

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/motorbench/internal/control"
)

// DefaultSampleInterval is the spacing of recorded TestPoints. Criteria are
// still evaluated on every tick; only the retained record is downsampled.
const DefaultSampleInterval = 0.1

// Engine runs one test sequence as a state machine driven by the scheduler
// tick. It never blocks and never returns an error mid-tick: everything the
// run produces lands in the Result.
type Engine struct {
	seq Sequence
	log *zap.Logger

	// SampleInterval overrides the recorded-point spacing when positive.
	SampleInterval float64

	status      Status
	elapsed     float64
	sinceSample float64
	result      *Result
	violations  map[string]struct{}
}

// NewEngine validates the template and prepares an idle engine.
func NewEngine(seq Sequence, log *zap.Logger) (*Engine, error) {
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		seq:            seq,
		log:            log,
		SampleInterval: DefaultSampleInterval,
		status:         StatusIdle,
		violations:     make(map[string]struct{}),
	}, nil
}

// Sequence returns the template this engine runs.
func (e *Engine) Sequence() Sequence { return e.seq }

// Status returns the lifecycle state.
func (e *Engine) Status() Status { return e.status }

// Progress returns the completed fraction in [0, 1].
func (e *Engine) Progress() float64 {
	if e.result == nil {
		return 0
	}
	return e.result.Progress
}

// Start moves the engine from Idle to Running and opens a fresh Result.
func (e *Engine) Start() error {
	if e.status != StatusIdle {
		return fmt.Errorf("%w: start from %s", ErrBadTransition, e.status)
	}
	e.status = StatusRunning
	e.elapsed = 0
	e.sinceSample = e.SampleInterval // record the first tick immediately
	e.result = &Result{
		SequenceID: e.seq.ID,
		Name:       e.seq.Name,
		Type:       e.seq.Type,
		Status:     StatusRunning,
		StartedAt:  time.Now(),
	}
	e.log.Info("test started",
		zap.String("sequence", e.seq.ID),
		zap.String("type", string(e.seq.Type)),
		zap.Float64("duration", e.seq.Duration))
	return nil
}

// Pause freezes elapsed-time accumulation. The drive keeps chasing the last
// commanded setpoints; only the test clock stops.
func (e *Engine) Pause() {
	if e.status == StatusRunning {
		e.status = StatusPaused
		e.result.Status = StatusPaused
		e.log.Info("test paused", zap.String("sequence", e.seq.ID), zap.Float64("elapsed", e.elapsed))
	}
}

// Resume continues a paused test.
func (e *Engine) Resume() {
	if e.status == StatusPaused {
		e.status = StatusRunning
		e.result.Status = StatusRunning
		e.log.Info("test resumed", zap.String("sequence", e.seq.ID))
	}
}

// Abort finalizes the run immediately with the given reason. No further
// points are recorded afterwards.
func (e *Engine) Abort(reason string) {
	if e.status != StatusRunning && e.status != StatusPaused {
		return
	}
	e.violations[reason] = struct{}{}
	e.result.AbortReason = reason
	e.finalize(StatusAborted)
	e.log.Warn("test aborted", zap.String("sequence", e.seq.ID), zap.String("reason", reason))
}

// Tick advances the test by dt with the given motor sample and returns the
// setpoints for the next control period. While Paused or finished it returns
// empty setpoints and touches nothing.
func (e *Engine) Tick(dt float64, sample TestPoint) Setpoints {
	if e.status != StatusRunning {
		return Setpoints{}
	}

	e.elapsed += dt
	e.result.Progress = e.progress()

	sp := e.seq.phase(e.elapsed)
	e.result.Phase = sp.Description

	sample.Time = e.elapsed
	e.sinceSample += dt
	if e.sinceSample >= e.SampleInterval {
		e.sinceSample = 0
		e.result.Points = append(e.result.Points, sample)
	}

	e.evaluate(sample)
	if e.status == StatusAborted {
		return Setpoints{}
	}

	if e.elapsed >= e.seq.Duration {
		e.finalize(StatusCompleted)
		e.log.Info("test completed",
			zap.String("sequence", e.seq.ID),
			zap.Bool("passed", e.result.Passed),
			zap.Int("points", len(e.result.Points)))
		return Setpoints{}
	}
	return sp
}

func (e *Engine) progress() float64 {
	if total := e.seq.GridPoints(); total > 0 {
		idx := int(e.elapsed / e.seq.Duration * float64(total))
		if idx > total {
			idx = total
		}
		return float64(idx) / float64(total)
	}
	p := e.elapsed / e.seq.Duration
	if p > 1 {
		p = 1
	}
	return p
}

// evaluate checks the acceptance criteria against the latest sample.
// Violations accumulate without halting the test; only the critical
// temperature ceiling forces an abort.
func (e *Engine) evaluate(pt TestPoint) {
	c := e.seq.Criteria

	if c.CriticalTemp > 0 && pt.TemperatureC >= c.CriticalTemp {
		e.Abort(fmt.Sprintf("critical over-temperature: %.1f C >= %.1f C", pt.TemperatureC, c.CriticalTemp))
		return
	}
	if c.MaxTemperature > 0 && pt.TemperatureC > c.MaxTemperature {
		e.violations[fmt.Sprintf("temperature exceeded %.1f C", c.MaxTemperature)] = struct{}{}
	}
	if c.MinEfficiency > 0 && pt.Efficiency > 0 && pt.Efficiency < c.MinEfficiency {
		e.violations[fmt.Sprintf("efficiency below %.2f", c.MinEfficiency)] = struct{}{}
	}
	if c.MaxTorque > 0 && pt.TorqueNm > c.MaxTorque {
		e.violations[fmt.Sprintf("torque exceeded %.2f Nm", c.MaxTorque)] = struct{}{}
	}
	// Minimum torque only counts once past the warm-up portion of the run.
	if c.MinTorque > 0 && e.result.Progress > 0.25 && pt.TorqueNm < c.MinTorque {
		e.violations[fmt.Sprintf("torque below %.2f Nm", c.MinTorque)] = struct{}{}
	}
}

// finalize computes summary statistics and the verdict, then freezes the
// Result. Step-response figures are derived from the recorded points and
// folded into both the summary and the verdict.
func (e *Engine) finalize(status Status) {
	r := e.result
	r.Status = status
	e.status = status
	r.FinishedAt = time.Now()
	if status == StatusCompleted {
		r.Progress = 1
	}

	var peak, effSum, maxTemp, energy float64
	var effN int
	var lastT float64
	for _, pt := range r.Points {
		if pt.PowerW > peak {
			peak = pt.PowerW
		}
		if pt.Efficiency > 0 {
			effSum += pt.Efficiency
			effN++
		}
		if pt.TemperatureC > maxTemp {
			maxTemp = pt.TemperatureC
		}
		energy += pt.VoltageV * pt.CurrentA * (pt.Time - lastT)
		lastT = pt.Time
	}
	r.Summary = Summary{PeakPowerW: peak, MaxTemperature: maxTemp, EnergyJ: energy}
	if effN > 0 {
		r.Summary.AvgEfficiency = effSum / float64(effN)
	}

	if e.seq.Type == StepResponse && status == StatusCompleted {
		e.finalizeStep()
	}

	for reason := range e.violations {
		r.FailureReasons = append(r.FailureReasons, reason)
	}
	r.Passed = status == StatusCompleted && len(r.FailureReasons) == 0
}

func (e *Engine) finalizeStep() {
	r := e.result
	var speeds []float64
	for _, pt := range r.Points {
		if pt.Time >= e.seq.PreStepTime {
			speeds = append(speeds, pt.SpeedRPM)
		}
	}
	m := control.AnalyzeStep(speeds, e.SampleInterval, e.seq.BaseSpeed, e.seq.StepSpeed)
	r.Summary.Step = &StepFigures{
		RiseTime:     m.RiseTime,
		SettlingTime: m.SettlingTime,
		OvershootPct: m.OvershootPct,
		SteadyErrRPM: m.SteadyStateErr,
	}

	c := e.seq.Criteria
	if c.MaxSettlingTime > 0 && (!m.Settled || m.SettlingTime > c.MaxSettlingTime) {
		e.violations[fmt.Sprintf("settling time exceeded %.2f s", c.MaxSettlingTime)] = struct{}{}
	}
	if c.MaxOvershootPct > 0 && m.OvershootPct > c.MaxOvershootPct {
		e.violations[fmt.Sprintf("overshoot exceeded %.1f%%", c.MaxOvershootPct)] = struct{}{}
	}
}

// Result returns a copy of the run record, or nil before the first start.
// The points slice is shared once the engine has finalized; finalized results
// are never mutated again.
func (e *Engine) Result() *Result {
	if e.result == nil {
		return nil
	}
	cp := *e.result
	return &cp
}
