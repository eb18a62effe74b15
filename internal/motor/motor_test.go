package motor

import (
	"errors"
	"math"
	"testing"
)

func testParams() Params {
	return Catalog[DefaultMotorID].Params
}

func TestValidateRejectsNonPositive(t *testing.T) {
	p := testParams()
	p.Resistance = 0
	if err := p.Validate(); !errors.Is(err, ErrNonPositiveParam) {
		t.Errorf("expected ErrNonPositiveParam, got %v", err)
	}

	p = testParams()
	p.Inertia = -0.001
	if err := p.Validate(); !errors.Is(err, ErrNonPositiveParam) {
		t.Errorf("expected ErrNonPositiveParam, got %v", err)
	}
}

func TestValidateRejectsKtKeMismatch(t *testing.T) {
	p := testParams()
	p.Ke = p.Kt * 2
	if err := p.Validate(); !errors.Is(err, ErrConstantMismatch) {
		t.Errorf("expected ErrConstantMismatch, got %v", err)
	}
}

func TestCatalogEntriesValidate(t *testing.T) {
	for id, entry := range Catalog {
		if err := entry.Params.Validate(); err != nil {
			t.Errorf("catalog entry %s invalid: %v", id, err)
		}
	}
}

func TestFromCatalogUnknown(t *testing.T) {
	if _, err := FromCatalog("nonexistent"); !errors.Is(err, ErrUnknownMotor) {
		t.Errorf("expected ErrUnknownMotor, got %v", err)
	}
}

func TestShapeFactor(t *testing.T) {
	cases := []struct {
		angle float64
		want  float64
	}{
		{0, 0},
		{math.Pi / 12, 0.5},       // 15 deg, mid rise
		{math.Pi / 6, 1},          // 30 deg, start of flat
		{math.Pi / 2, 1},          // 90 deg, flat top
		{math.Pi, 0},              // 180 deg, middle of crossing
		{3 * math.Pi / 2, -1},     // 270 deg, flat bottom
		{23 * math.Pi / 12, -0.5}, // 345 deg, mid rise back
		{2 * math.Pi, 0},          // wraps
	}
	for _, c := range cases {
		got := ShapeFactor(c.angle)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("ShapeFactor(%.4f) = %.4f, want %.4f", c.angle, got, c.want)
		}
	}
}

func TestStepClampsCurrentAndSpeed(t *testing.T) {
	m, err := New(testParams())
	if err != nil {
		t.Fatal(err)
	}
	p := m.Params()

	// Massive overvoltage for long enough to saturate everything.
	for i := 0; i < 20000; i++ {
		s := m.Step(10*p.RatedVoltage, 0, 0.001)
		if math.Abs(s.Current) > p.MaxCurrent {
			t.Fatalf("current %.2f exceeds clamp %.2f", s.Current, p.MaxCurrent)
		}
		if s.Speed < 0 || s.Speed > p.MaxSpeedRad() {
			t.Fatalf("speed %.2f outside [0, %.2f]", s.Speed, p.MaxSpeedRad())
		}
		if s.Temperature < p.AmbientTemp || s.Temperature > p.MaxTemp {
			t.Fatalf("temperature %.2f outside [%.1f, %.1f]", s.Temperature, p.AmbientTemp, p.MaxTemp)
		}
	}
	if m.ClampEvents() == 0 {
		t.Error("expected clamp events under 10x overvoltage")
	}
}

func TestStepClampsDt(t *testing.T) {
	a, _ := New(testParams())
	b, _ := New(testParams())

	sa := a.Step(48, 0, 5.0) // absurd dt, must be treated as MaxDt
	sb := b.Step(48, 0, MaxDt)

	if math.Abs(sa.Current-sb.Current) > 1e-12 || math.Abs(sa.Speed-sb.Speed) > 1e-12 {
		t.Errorf("oversized dt not clamped: %+v vs %+v", sa, sb)
	}
}

// A stationary rotor must produce torque as soon as current flows, at any
// rotor position: commutation has no dead spots. From rest under full bus
// voltage the machine has to spin up, not saturate its current at standstill.
func TestStartsFromRest(t *testing.T) {
	m, _ := New(testParams())
	for i := 0; i < 3000; i++ {
		m.Step(48.0, 0, 0.001)
	}
	s := m.State()
	if s.Speed < 200 {
		t.Fatalf("motor failed to start: speed %.3f rad/s, current %.2f A after 3 s",
			s.Speed, s.Current)
	}
	if s.Position == 0 {
		t.Error("rotor position never advanced")
	}
}

// Scenario: motor at rest, constant 48V, no load. Speed must rise to a
// plateau where V ~ Ke*w + I*R and the current settles near the friction-only
// value. The approach is underdamped, so window averages are compared with a
// ripple allowance rather than strictly.
func TestConstantVoltageConvergence(t *testing.T) {
	m, _ := New(testParams())
	p := m.Params()

	const window = 200
	var speedSum, currentSum float64
	var windows []float64
	var lastAvgCurrent float64
	for i := 0; i < 12000; i++ {
		s := m.Step(48.0, 0, 0.001)
		speedSum += s.Speed
		currentSum += s.Current
		if (i+1)%window == 0 {
			windows = append(windows, speedSum/window)
			lastAvgCurrent = currentSum / window
			speedSum, currentSum = 0, 0
		}
	}

	for i := 1; i < len(windows); i++ {
		if windows[i] < windows[i-1]-5.0 {
			t.Fatalf("speed fell between windows: window %d %.3f -> %.3f",
				i, windows[i-1], windows[i])
		}
	}

	plateau := windows[len(windows)-1]
	if math.Abs(plateau-windows[len(windows)-5]) > 2.0 {
		t.Errorf("speed has not plateaued: %.2f vs %.2f", windows[len(windows)-5], plateau)
	}

	// Voltage balance at the plateau: V ~ Ke*w + I*R_hot.
	s := m.State()
	balance := p.Ke*plateau + lastAvgCurrent*p.HotResistance(s.Temperature)
	if math.Abs(balance-48.0)/48.0 > 0.10 {
		t.Errorf("steady-state voltage balance off: %.2f, want ~48", balance)
	}

	// Average current near the friction-only value.
	frictionCurrent := (p.Damping*plateau + p.StaticFriction) / p.Kt
	if lastAvgCurrent < 0 || lastAvgCurrent > frictionCurrent*3+1 {
		t.Errorf("no-load current %.3f far from friction value %.3f", lastAvgCurrent, frictionCurrent)
	}
}

// Mechanical output power must never exceed electrical input power at a
// steady operating point. Compared window-averaged: the inductor and the
// smoothing blends shuttle energy between ticks, so single ticks can go
// either way.
func TestNoEnergyCreation(t *testing.T) {
	m, _ := New(testParams())

	for i := 0; i < 8000; i++ {
		m.Step(48.0, 2.0, 0.001)
	}
	const window = 500
	var mechSum, elecSum float64
	for i := 0; i < 4*window; i++ {
		s := m.Step(48.0, 2.0, 0.001)
		mechSum += m.Torque() * s.Speed
		elecSum += 48.0 * s.Current
		if (i+1)%window == 0 {
			if mechSum > elecSum+1e-6 {
				t.Fatalf("energy creation: mech %.1f > elec %.1f (window ending %d)",
					mechSum/window, elecSum/window, i)
			}
			mechSum, elecSum = 0, 0
		}
	}
}

func TestThermalRiseAndPlateau(t *testing.T) {
	m, _ := New(testParams())
	p := m.Params()

	// Moderate load: copper losses dominate but stay below the clamp.
	var temps []float64
	for i := 0; i < 600000; i++ { // 600 s at 1 ms
		s := m.Step(48.0, 2.0, 0.001)
		if i%10000 == 0 {
			temps = append(temps, s.Temperature)
		}
	}

	if temps[1] <= temps[0] {
		t.Error("temperature did not rise under load")
	}
	last := temps[len(temps)-1]
	prev := temps[len(temps)-2]
	if math.Abs(last-prev) > 0.5 {
		t.Errorf("temperature not plateauing: %.2f -> %.2f", prev, last)
	}
	if last >= p.MaxTemp {
		t.Errorf("temperature saturated at the clamp %.1f; first-order lag expected below it", last)
	}
}

func TestAuxLoadIsAdditive(t *testing.T) {
	plain, _ := New(testParams())
	braked, _ := New(testParams())
	braked.AuxLoad = func(speed float64) float64 { return 0.5 }

	for i := 0; i < 3000; i++ {
		plain.Step(48.0, 1.0, 0.001)
		braked.Step(48.0, 1.0, 0.001)
	}
	if braked.State().Speed >= plain.State().Speed {
		t.Errorf("aux load should slow the motor: %.2f vs %.2f",
			braked.State().Speed, plain.State().Speed)
	}
}

func TestResetReturnsToRest(t *testing.T) {
	m, _ := New(testParams())
	for i := 0; i < 1000; i++ {
		m.Step(48.0, 1.0, 0.001)
	}
	m.Reset()
	s := m.State()
	if s.Current != 0 || s.Speed != 0 || s.Position != 0 {
		t.Errorf("reset left residual state: %+v", s)
	}
	if s.Temperature != m.Params().AmbientTemp {
		t.Errorf("reset temperature %.1f, want ambient", s.Temperature)
	}
}

func TestEfficiencyCurve(t *testing.T) {
	m, _ := New(testParams())
	points := m.EfficiencyCurve(0) // defaults to rated voltage

	if len(points) == 0 {
		t.Fatal("empty efficiency curve")
	}
	for _, pt := range points {
		if pt.SpeedRPM <= 0 {
			t.Errorf("zero-speed point in the sweep: %.1f Nm", pt.TorqueNm)
		}
		if pt.Efficiency <= 0 || pt.Efficiency > 0.98 {
			t.Errorf("efficiency %.3f outside (0, 0.98] at %.0f rpm / %.1f Nm",
				pt.Efficiency, pt.SpeedRPM, pt.TorqueNm)
		}
	}
}

func TestEfficiencyMotoringAndRegen(t *testing.T) {
	// Motoring: mechanical out over electrical in.
	if got := efficiency(50, 100); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("motoring efficiency %.3f, want 0.5", got)
	}
	// Regeneration: both powers negative, electrical out over mechanical in.
	if got := efficiency(-100, -80); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("regen efficiency %.3f, want 0.8", got)
	}
	// Near-zero electrical power reports zero.
	if got := efficiency(1, 0.05); got != 0 {
		t.Errorf("efficiency %.3f at negligible electrical power, want 0", got)
	}
}
