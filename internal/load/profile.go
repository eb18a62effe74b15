// Package load generates parametric load-torque profiles. Sampling is a pure
// function of elapsed profile time, so the scheduler can evaluate profiles
// inside the tick with no shared state.
package load

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidProfile = errors.New("load: invalid profile")
	ErrBadWaypoints   = errors.New("load: custom waypoints must be time-ordered")
)

// Kind selects the profile variant.
type Kind string

const (
	Constant Kind = "constant"
	Ramp     Kind = "ramp"
	Step     Kind = "step"
	Sine     Kind = "sine"
	Custom   Kind = "custom"
)

// Waypoint is one (time, load) anchor of a custom profile.
type Waypoint struct {
	Time float64 `yaml:"time"`
	Load float64 `yaml:"load"`
}

// Profile is an immutable load-torque program. Which fields matter depends on
// Kind; Validate enforces the variant's requirements. MaxLoad caps the output
// of every variant.
type Profile struct {
	Kind    Kind    `yaml:"kind"`
	MaxLoad float64 `yaml:"max_load"` // Nm, output clamp

	Target float64 `yaml:"target"` // constant

	StartLoad float64 `yaml:"start_load"` // ramp
	EndLoad   float64 `yaml:"end_load"`   // ramp
	RampTime  float64 `yaml:"ramp_time"`  // ramp, s

	BaseLoad float64 `yaml:"base_load"` // step, sine
	StepLoad float64 `yaml:"step_load"` // step
	StepTime float64 `yaml:"step_time"` // step, s

	Amplitude float64 `yaml:"amplitude"` // sine, Nm
	Frequency float64 `yaml:"frequency"` // sine, Hz

	Waypoints []Waypoint `yaml:"waypoints"` // custom
}

// Validate rejects malformed profiles at activation time. Runtime sampling
// never fails.
func (p Profile) Validate() error {
	if p.MaxLoad <= 0 {
		return fmt.Errorf("%w: max_load must be positive, got %g", ErrInvalidProfile, p.MaxLoad)
	}
	switch p.Kind {
	case Constant:
	case Ramp:
		if p.RampTime <= 0 {
			return fmt.Errorf("%w: ramp_time must be positive, got %g", ErrInvalidProfile, p.RampTime)
		}
	case Step:
		if p.StepTime < 0 {
			return fmt.Errorf("%w: step_time must not be negative, got %g", ErrInvalidProfile, p.StepTime)
		}
	case Sine:
		if p.Frequency <= 0 {
			return fmt.Errorf("%w: frequency must be positive, got %g", ErrInvalidProfile, p.Frequency)
		}
		if p.Amplitude < 0 {
			return fmt.Errorf("%w: amplitude must not be negative, got %g", ErrInvalidProfile, p.Amplitude)
		}
	case Custom:
		if len(p.Waypoints) < 2 {
			return fmt.Errorf("%w: custom profile needs at least 2 waypoints, got %d", ErrInvalidProfile, len(p.Waypoints))
		}
		if !sort.SliceIsSorted(p.Waypoints, func(i, j int) bool {
			return p.Waypoints[i].Time < p.Waypoints[j].Time
		}) {
			return ErrBadWaypoints
		}
		for i := 1; i < len(p.Waypoints); i++ {
			if p.Waypoints[i].Time == p.Waypoints[i-1].Time {
				return fmt.Errorf("%w: duplicate time %g", ErrBadWaypoints, p.Waypoints[i].Time)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidProfile, p.Kind)
	}
	return nil
}

// Sample returns the load torque at elapsed profile time t, clamped to
// [0, MaxLoad]. Pure: no internal state is touched.
func (p Profile) Sample(t float64) float64 {
	var out float64
	switch p.Kind {
	case Constant:
		out = p.Target
	case Ramp:
		switch {
		case t <= 0:
			out = p.StartLoad
		case t >= p.RampTime:
			out = p.EndLoad
		default:
			out = p.StartLoad + (p.EndLoad-p.StartLoad)*t/p.RampTime
		}
	case Step:
		if t < p.StepTime {
			out = p.BaseLoad
		} else {
			out = p.StepLoad
		}
	case Sine:
		out = p.BaseLoad + p.Amplitude*math.Sin(2*math.Pi*p.Frequency*t)
	case Custom:
		out = p.sampleWaypoints(t)
	}
	if out < 0 {
		return 0
	}
	if out > p.MaxLoad {
		return p.MaxLoad
	}
	return out
}

// sampleWaypoints does piecewise-linear interpolation, clamping to the first
// and last waypoint outside the defined range.
func (p Profile) sampleWaypoints(t float64) float64 {
	wps := p.Waypoints
	if t <= wps[0].Time {
		return wps[0].Load
	}
	if t >= wps[len(wps)-1].Time {
		return wps[len(wps)-1].Load
	}
	idx := sort.Search(len(wps), func(i int) bool { return wps[i].Time > t })
	a, b := wps[idx-1], wps[idx]
	frac := (t - a.Time) / (b.Time - a.Time)
	return a.Load + (b.Load-a.Load)*frac
}
