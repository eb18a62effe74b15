// Package sched drives the physics at a fixed timestep decoupled from wall
// clock, and publishes downsampled snapshots to external consumers. The motor
// and controller are owned exclusively by the run loop; everything crosses in
// through the command channel and out through snapshot copies.
package sched

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/motorbench/internal/control"
	"github.com/san-kum/motorbench/internal/load"
	"github.com/san-kum/motorbench/internal/motor"
	"github.com/san-kum/motorbench/internal/sequence"
)

// Config sets the scheduler's cadences and catch-up bound.
type Config struct {
	PhysicsDt        float64       `yaml:"physics_dt"`        // s
	SnapshotInterval float64       `yaml:"snapshot_interval"` // s
	TickInterval     time.Duration `yaml:"tick_interval"`     // wall cadence of the loop
	MaxCatchUpSteps  int           `yaml:"max_catchup_steps"` // per invocation
}

// DefaultRunnerConfig is 1 ms physics, 100 Hz snapshots, a 5 ms loop cadence
// and at most 50 catch-up steps per invocation.
func DefaultRunnerConfig() Config {
	return Config{
		PhysicsDt:        0.001,
		SnapshotInterval: 0.01,
		TickInterval:     5 * time.Millisecond,
		MaxCatchUpSteps:  50,
	}
}

type cmdTarget struct {
	mode   control.Mode
	target float64
}

type cmdMotor struct{ running bool }

type cmdLoad struct{ profile *load.Profile } // nil clears

type testAction int

const (
	testStart testAction = iota
	testPause
	testResume
	testAbort
)

type cmdTest struct {
	action testAction
	seq    sequence.Sequence
	reason string
}

// Runner couples the motor, controller, load profile and test engine into
// one fixed-rate loop.
type Runner struct {
	cfg Config
	log *zap.Logger

	cmds  chan any
	snaps chan Snapshot

	// Everything below is owned by the run loop (or by the caller in
	// headless use via Advance).
	motor  *motor.Motor
	ctrl   *control.Cascade
	smooth *smoother

	simTime     float64
	loadProfile *load.Profile
	loadStart   float64
	seqLoad     float64
	haveSeqLoad bool
	lastLoad    float64
	engine      *sequence.Engine
	lastResult  *sequence.Result
	sinceSnap   float64
	dropped     uint64
}

// NewRunner builds a runner around an already-validated motor.
func NewRunner(m *motor.Motor, gains control.Gains, cfg Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		log:    log,
		cmds:   make(chan any, 16),
		snaps:  make(chan Snapshot, 8),
		motor:  m,
		ctrl:   control.NewCascade(m.Params(), gains),
		smooth: newSmoother(),
	}
}

// EnableInverter attaches a switching-bridge model to the drive. Setup-time
// only: call before Run or the first Advance.
func (r *Runner) EnableInverter(p control.InverterParams) {
	r.ctrl.SetInverter(control.NewInverter(p))
}

// Snapshots is the outbound snapshot stream. The channel never blocks the
// loop: when the reader lags, the oldest snapshot is dropped.
func (r *Runner) Snapshots() <-chan Snapshot { return r.snaps }

// SetTarget posts a mode/setpoint command.
func (r *Runner) SetTarget(mode control.Mode, target float64) {
	r.cmds <- cmdTarget{mode: mode, target: target}
}

// SetMotorRunning starts or stops the drive.
func (r *Runner) SetMotorRunning(running bool) {
	r.cmds <- cmdMotor{running: running}
}

// ActivateLoad validates the profile synchronously and schedules it. The
// profile clock starts when the loop picks the command up.
func (r *Runner) ActivateLoad(p load.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.cmds <- cmdLoad{profile: &p}
	return nil
}

// ClearLoad removes the active load profile.
func (r *Runner) ClearLoad() {
	r.cmds <- cmdLoad{}
}

// StartTest validates the sequence synchronously and schedules it.
func (r *Runner) StartTest(seq sequence.Sequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	r.cmds <- cmdTest{action: testStart, seq: seq}
	return nil
}

// PauseTest freezes the active test's clock.
func (r *Runner) PauseTest() { r.cmds <- cmdTest{action: testPause} }

// ResumeTest resumes a paused test.
func (r *Runner) ResumeTest() { r.cmds <- cmdTest{action: testResume} }

// AbortTest aborts the active test with a reason.
func (r *Runner) AbortTest(reason string) { r.cmds <- cmdTest{action: testAbort, reason: reason} }

// Run drives the loop until the context is cancelled. Wall-clock debt is
// accumulated per invocation and burned in physics steps; debt beyond the
// catch-up bound is discarded and counted, never silently stretched.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("runner started",
		zap.Float64("physics_dt", r.cfg.PhysicsDt),
		zap.Float64("snapshot_interval", r.cfg.SnapshotInterval))

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	var debt float64
	for {
		select {
		case <-ctx.Done():
			r.log.Info("runner stopped",
				zap.Float64("sim_time", r.simTime),
				zap.Uint64("dropped_steps", r.dropped))
			return nil
		case now := <-ticker.C:
			r.drainCommands()
			debt += now.Sub(last).Seconds()
			last = now

			steps := 0
			for debt >= r.cfg.PhysicsDt && steps < r.cfg.MaxCatchUpSteps {
				r.step(r.cfg.PhysicsDt)
				debt -= r.cfg.PhysicsDt
				steps++
			}
			if debt >= r.cfg.PhysicsDt {
				skipped := uint64(debt / r.cfg.PhysicsDt)
				r.dropped += skipped
				debt -= float64(skipped) * r.cfg.PhysicsDt
				r.log.Warn("dropping physics debt",
					zap.Uint64("steps", skipped),
					zap.Uint64("total_dropped", r.dropped))
			}
		}
	}
}

// Advance runs the loop synchronously for the given span of simulated time.
// Headless use only (batch runs, tests): it must not race a live Run loop.
func (r *Runner) Advance(seconds float64) {
	r.drainCommands()
	steps := int(seconds / r.cfg.PhysicsDt)
	for i := 0; i < steps; i++ {
		r.step(r.cfg.PhysicsDt)
	}
}

// TestResult returns the most recently finalized test result. Loop-owned:
// callers in live mode should read it off the snapshot stream instead.
func (r *Runner) TestResult() *sequence.Result { return r.lastResult }

// DroppedSteps reports how many physics steps were discarded to the
// catch-up bound.
func (r *Runner) DroppedSteps() uint64 { return r.dropped }

func (r *Runner) drainCommands() {
	for {
		select {
		case c := <-r.cmds:
			r.apply(c)
		default:
			return
		}
	}
}

func (r *Runner) apply(c any) {
	switch cmd := c.(type) {
	case cmdTarget:
		r.ctrl.SetTarget(cmd.mode, cmd.target)
		r.log.Info("target set", zap.String("mode", string(cmd.mode)), zap.Float64("target", cmd.target))
	case cmdMotor:
		if cmd.running && !r.ctrl.Running() {
			// A fresh start snaps the smoothing filters to the next sample
			// instead of trailing the previous session's tail.
			r.smooth.reset()
		}
		r.ctrl.SetRunning(cmd.running)
		r.log.Info("motor", zap.Bool("running", cmd.running))
	case cmdLoad:
		r.loadProfile = cmd.profile
		r.loadStart = r.simTime
		if cmd.profile != nil {
			r.log.Info("load profile activated", zap.String("kind", string(cmd.profile.Kind)))
		}
	case cmdTest:
		r.applyTest(cmd)
	}
}

func (r *Runner) applyTest(cmd cmdTest) {
	switch cmd.action {
	case testStart:
		if r.engine != nil {
			r.engine.Abort("superseded by new test")
			r.lastResult = r.engine.Result()
		}
		eng, err := sequence.NewEngine(cmd.seq, r.log)
		if err != nil {
			r.log.Error("test rejected", zap.Error(err))
			return
		}
		r.engine = eng
		r.haveSeqLoad = false
		r.ctrl.SetRunning(true)
		if err := r.engine.Start(); err != nil {
			r.log.Error("test start failed", zap.Error(err))
			r.engine = nil
		}
	case testPause:
		if r.engine != nil {
			r.engine.Pause()
		}
	case testResume:
		if r.engine != nil {
			r.engine.Resume()
		}
	case testAbort:
		if r.engine != nil {
			r.engine.Abort(cmd.reason)
			r.finishTest()
		}
	}
}

// finishTest retires a finalized engine, keeping the drive at its last
// commanded setpoint.
func (r *Runner) finishTest() {
	r.lastResult = r.engine.Result()
	r.engine = nil
	r.haveSeqLoad = false
}

// step advances physics by one fixed timestep. No blocking work happens
// here: logging and persistence live outside the hot path.
func (r *Runner) step(dt float64) {
	loadTorque := r.loadTorque()

	snap := r.motor.Snapshot()
	fb := control.Feedback{
		SpeedRPM:      snap.SpeedRPM,
		CurrentA:      snap.CurrentA,
		BackEmfV:      r.motor.DriveEMF(),
		ResistanceOhm: r.motor.Params().HotResistance(snap.TemperatureC),
	}
	voltage := r.ctrl.ComputeVoltage(fb, dt)

	r.motor.Step(voltage, loadTorque, dt)
	r.simTime += dt
	r.lastLoad = loadTorque

	post := r.motor.Snapshot()
	r.smooth.update(dt, post.SpeedRPM, post.TorqueNm, post.PowerW,
		post.VoltageV, post.CurrentA, post.Efficiency, post.BackEmfV)

	if r.engine != nil {
		r.tickTest(dt, post)
	}

	r.sinceSnap += dt
	if r.sinceSnap >= r.cfg.SnapshotInterval {
		r.sinceSnap = 0
		r.publish(post)
	}
}

func (r *Runner) loadTorque() float64 {
	if r.haveSeqLoad {
		return r.seqLoad
	}
	if r.loadProfile != nil {
		return r.loadProfile.Sample(r.simTime - r.loadStart)
	}
	return 0
}

func (r *Runner) tickTest(dt float64, snap motor.Snapshot) {
	pt := sequence.TestPoint{
		SpeedRPM:     snap.SpeedRPM,
		TorqueNm:     snap.TorqueNm,
		PowerW:       snap.PowerW,
		Efficiency:   snap.Efficiency,
		TemperatureC: snap.TemperatureC,
		VoltageV:     snap.VoltageV,
		CurrentA:     snap.CurrentA,
	}
	sp := r.engine.Tick(dt, pt)
	if sp.HasSpeed {
		r.ctrl.SetTarget(control.ModeSpeed, sp.SpeedRPM)
	}
	if sp.HasLoad {
		r.seqLoad = sp.LoadNm
		r.haveSeqLoad = true
	}
	if st := r.engine.Status(); st == sequence.StatusCompleted || st == sequence.StatusAborted {
		r.finishTest()
	}
}

// publish sends a snapshot without ever blocking the loop; the oldest entry
// is evicted when the reader lags.
func (r *Runner) publish(raw motor.Snapshot) {
	s := Snapshot{
		SimTime:      r.simTime,
		Timestamp:    time.Now(),
		SpeedRPM:     r.smooth.speed,
		TorqueNm:     r.smooth.torque,
		CurrentA:     r.smooth.amp,
		VoltageV:     r.smooth.volt,
		PowerW:       r.smooth.power,
		Efficiency:   r.smooth.eff,
		BackEmfV:     r.smooth.emf,
		TemperatureC: raw.TemperatureC,
		LoadTorqueNm: r.lastLoad,
		MotorRunning: r.ctrl.Running(),
		Mode:         string(r.ctrl.Mode()),
		Target:       r.ctrl.Target(),
		DroppedSteps: r.dropped,
		ClampEvents:  r.motor.ClampEvents(),
		TestResult:   r.lastResult,
	}
	if r.engine != nil {
		s.TestStatus = r.engine.Status()
		s.TestProgress = r.engine.Progress()
		if res := r.engine.Result(); res != nil {
			s.TestPhase = res.Phase
		}
	} else if r.lastResult != nil {
		s.TestStatus = r.lastResult.Status
		s.TestProgress = r.lastResult.Progress
	}

	select {
	case r.snaps <- s:
	default:
		select {
		case <-r.snaps:
		default:
		}
		select {
		case r.snaps <- s:
		default:
		}
	}
}
