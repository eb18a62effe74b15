package control

import (
	"math"
	"testing"

	"github.com/san-kum/motorbench/internal/motor"
)

func testMotor(t *testing.T) *motor.Motor {
	t.Helper()
	m, err := motor.FromCatalog(motor.DefaultMotorID)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func feedbackFrom(m *motor.Motor) Feedback {
	s := m.State()
	return Feedback{
		SpeedRPM:      s.Speed * 30.0 / math.Pi,
		CurrentA:      s.Current,
		BackEmfV:      m.DriveEMF(),
		ResistanceOhm: m.Params().HotResistance(s.Temperature),
	}
}

// run closes the loop for n millisecond ticks and returns the mean speed (rpm)
// and mean current (A) over the trailing window.
func run(m *motor.Motor, c *Cascade, n, window int, loadAt func(tick int) float64) (avgRPM, avgCurrent float64) {
	const dt = 0.001
	var speedSum, currentSum float64
	for i := 0; i < n; i++ {
		v := c.ComputeVoltage(feedbackFrom(m), dt)
		s := m.Step(v, loadAt(i), dt)
		if i >= n-window {
			speedSum += s.Speed * 30.0 / math.Pi
			currentSum += s.Current
		}
	}
	return speedSum / float64(window), currentSum / float64(window)
}

func TestVoltageModePassThrough(t *testing.T) {
	p := motor.Catalog[motor.DefaultMotorID].Params
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeVoltage, 30)

	if got := c.ComputeVoltage(Feedback{}, 0.001); math.Abs(got-30) > 1e-9 {
		t.Errorf("voltage mode output %.2f, want 30", got)
	}

	c.SetTarget(ModeVoltage, 100)
	want := 0.98 * p.RatedVoltage
	if got := c.ComputeVoltage(Feedback{}, 0.001); math.Abs(got-want) > 1e-9 {
		t.Errorf("over-bus demand %.2f, want duty-clamped %.2f", got, want)
	}
}

func TestStoppedDriveOutputsZero(t *testing.T) {
	p := motor.Catalog[motor.DefaultMotorID].Params
	c := NewCascade(p, DefaultGains(p))
	c.SetTarget(ModeVoltage, 30)
	if got := c.ComputeVoltage(Feedback{}, 0.001); got != 0 {
		t.Errorf("stopped drive output %.2f, want 0", got)
	}
}

func TestCurrentModeRegulates(t *testing.T) {
	m := testMotor(t)
	p := m.Params()
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeCurrent, 10)

	// A braking load keeps the operating point below voltage saturation.
	_, avgCurrent := run(m, c, 4000, 500, func(int) float64 { return 1.5 })
	if math.Abs(avgCurrent-10)/10 > 0.20 {
		t.Errorf("regulated current %.2f A, want ~10", avgCurrent)
	}
}

func TestTorqueModeConvertsToCurrent(t *testing.T) {
	m := testMotor(t)
	p := m.Params()
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeTorque, 2.0)

	wantCurrent := 2.0 / p.Kt
	_, avgCurrent := run(m, c, 4000, 500, func(int) float64 { return 1.5 })
	if math.Abs(avgCurrent-wantCurrent)/wantCurrent > 0.20 {
		t.Errorf("torque-mode current %.2f A, want ~%.2f", avgCurrent, wantCurrent)
	}
}

func TestSpeedModeConvergesNoLoad(t *testing.T) {
	m := testMotor(t)
	p := m.Params()
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeSpeed, 2000)

	avgRPM, _ := run(m, c, 8000, 1000, func(int) float64 { return 0 })
	if math.Abs(avgRPM-2000) > 30 {
		t.Errorf("no-load speed settled at %.1f rpm, want 2000 +/- 30", avgRPM)
	}
}

// Speed mode under a load step: the motor holds 2000 rpm, a 5 Nm load lands
// at t = 5 s, the speed dips and must re-converge near the setpoint.
func TestSpeedModeRejectsLoadStep(t *testing.T) {
	m := testMotor(t)
	p := m.Params()
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeSpeed, 2000)

	loadAt := func(tick int) float64 {
		if tick >= 5000 {
			return 5.0
		}
		return 0
	}

	const dt = 0.001
	var minDuringStep float64 = math.Inf(1)
	var tailSum float64
	const tail = 1000
	total := 12000
	for i := 0; i < total; i++ {
		v := c.ComputeVoltage(feedbackFrom(m), dt)
		s := m.Step(v, loadAt(i), dt)
		rpm := s.Speed * 30.0 / math.Pi
		if i >= 5000 && i < 5500 && rpm < minDuringStep {
			minDuringStep = rpm
		}
		if i >= total-tail {
			tailSum += rpm
		}
	}

	if minDuringStep >= 2000-20 {
		t.Errorf("load step produced no visible dip: min %.1f rpm", minDuringStep)
	}
	avg := tailSum / tail
	if math.Abs(avg-2000) > 30 {
		t.Errorf("post-step speed settled at %.1f rpm, want 2000 +/- 30", avg)
	}
}

func TestSetTargetResetsOnModeSwitch(t *testing.T) {
	p := motor.Catalog[motor.DefaultMotorID].Params
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeSpeed, 2000)

	fb := Feedback{SpeedRPM: 500, ResistanceOhm: p.Resistance}
	for i := 0; i < 1000; i++ {
		c.ComputeVoltage(fb, 0.001)
	}
	if c.SpeedIntegral() == 0 {
		t.Fatal("expected accumulated speed integral")
	}

	c.SetTarget(ModeCurrent, 5)
	if c.SpeedIntegral() != 0 || c.CurrentIntegral() != 0 {
		t.Errorf("mode switch left integrators: speed %.4f, current %.4f",
			c.SpeedIntegral(), c.CurrentIntegral())
	}
}

func TestSetTargetResetsOnLargeJump(t *testing.T) {
	p := motor.Catalog[motor.DefaultMotorID].Params
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeSpeed, 2000)

	fb := Feedback{SpeedRPM: 500, ResistanceOhm: p.Resistance}
	for i := 0; i < 1000; i++ {
		c.ComputeVoltage(fb, 0.001)
	}

	// Small trim keeps the accumulators.
	c.SetTarget(ModeSpeed, 2050)
	if c.SpeedIntegral() == 0 {
		t.Error("small setpoint trim should keep the integral")
	}

	// Large jump clears them.
	c.SetTarget(ModeSpeed, 4000)
	if c.SpeedIntegral() != 0 {
		t.Errorf("large setpoint jump left integral %.4f", c.SpeedIntegral())
	}
}

func TestStartStopTransitionResets(t *testing.T) {
	p := motor.Catalog[motor.DefaultMotorID].Params
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeSpeed, 2000)

	fb := Feedback{SpeedRPM: 500, ResistanceOhm: p.Resistance}
	for i := 0; i < 1000; i++ {
		c.ComputeVoltage(fb, 0.001)
	}
	c.SetRunning(false)
	if c.SpeedIntegral() != 0 || c.CurrentIntegral() != 0 {
		t.Error("stop transition should clear integrators")
	}
	if got := c.ComputeVoltage(fb, 0.001); got != 0 {
		t.Errorf("stopped drive output %.2f, want 0", got)
	}
}

func TestInnerIntegralClamped(t *testing.T) {
	p := motor.Catalog[motor.DefaultMotorID].Params
	c := NewCascade(p, DefaultGains(p))
	c.SetRunning(true)
	c.SetTarget(ModeCurrent, p.MaxCurrent)

	// Stalled feedback: sustained maximal error must not wind past the clamp.
	fb := Feedback{ResistanceOhm: p.Resistance}
	for i := 0; i < 20000; i++ {
		c.ComputeVoltage(fb, 0.001)
	}
	if got := math.Abs(c.CurrentIntegral()); got > p.RatedVoltage/2+1e-9 {
		t.Errorf("inner integral %.2f V exceeds clamp %.2f", got, p.RatedVoltage/2)
	}
}
