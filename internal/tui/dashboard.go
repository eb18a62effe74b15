// Package tui is the live terminal dashboard: it consumes the runner's
// snapshot stream and posts commands back, never touching loop-owned state.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/motorbench/internal/control"
	"github.com/san-kum/motorbench/internal/sched"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const historyLen = 120

var modeOrder = []control.Mode{
	control.ModeSpeed, control.ModeCurrent, control.ModeTorque, control.ModeVoltage,
}

func defaultTarget(m control.Mode) float64 {
	switch m {
	case control.ModeSpeed:
		return 2000
	case control.ModeCurrent:
		return 10
	case control.ModeTorque:
		return 3
	default:
		return 24
	}
}

func targetStep(m control.Mode) float64 {
	switch m {
	case control.ModeSpeed:
		return 100
	case control.ModeCurrent:
		return 1
	case control.ModeTorque:
		return 0.5
	default:
		return 1
	}
}

type Dashboard struct {
	runner *sched.Runner

	snap    sched.Snapshot
	haveOne bool
	history []float64

	mode    control.Mode
	target  float64
	running bool

	width  int
	height int
}

func NewDashboard(r *sched.Runner) *Dashboard {
	return &Dashboard{
		runner:  r,
		mode:    control.ModeSpeed,
		target:  defaultTarget(control.ModeSpeed),
		history: make([]float64, 0, historyLen),
		width:   80,
		height:  24,
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (d *Dashboard) Init() tea.Cmd { return tick() }

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		return d, nil
	case tea.KeyMsg:
		return d.handleKey(msg)
	case tickMsg:
		d.drain()
		return d, tick()
	}
	return d, nil
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return d, tea.Quit
	case " ":
		d.running = !d.running
		d.runner.SetMotorRunning(d.running)
	case "m":
		d.mode = nextMode(d.mode)
		d.target = defaultTarget(d.mode)
		d.runner.SetTarget(d.mode, d.target)
	case "up":
		d.target += targetStep(d.mode)
		d.runner.SetTarget(d.mode, d.target)
	case "down":
		d.target -= targetStep(d.mode)
		d.runner.SetTarget(d.mode, d.target)
	case "p":
		d.runner.PauseTest()
	case "r":
		d.runner.ResumeTest()
	case "a":
		d.runner.AbortTest("operator stop")
	}
	return d, nil
}

func nextMode(m control.Mode) control.Mode {
	for i, mode := range modeOrder {
		if mode == m {
			return modeOrder[(i+1)%len(modeOrder)]
		}
	}
	return modeOrder[0]
}

// drain pulls every pending snapshot, keeping the newest.
func (d *Dashboard) drain() {
	for {
		select {
		case s := <-d.runner.Snapshots():
			d.snap = s
			d.haveOne = true
			d.history = append(d.history, s.SpeedRPM)
			if len(d.history) > historyLen {
				d.history = d.history[1:]
			}
		default:
			return
		}
	}
}

func (d *Dashboard) View() string {
	var b strings.Builder

	b.WriteString(cyan.Render("motorbench") + dim.Render("  space start/stop  m mode  up/down target  p/r/a test  q quit"))
	b.WriteString("\n\n")

	if !d.haveOne {
		b.WriteString(dim.Render("  waiting for telemetry..."))
		return b.String()
	}
	s := d.snap

	status := red.Render("stopped")
	if s.MotorRunning {
		status = green.Render("running")
	}
	b.WriteString(fmt.Sprintf("  %s  %s  target %s\n",
		status,
		white.Render(s.Mode),
		yellow.Render(fmt.Sprintf("%.1f", s.Target))))

	b.WriteString(fmt.Sprintf("  %s rpm   %s Nm   %s A   %s V\n",
		white.Render(fmt.Sprintf("%7.0f", s.SpeedRPM)),
		white.Render(fmt.Sprintf("%5.2f", s.TorqueNm)),
		white.Render(fmt.Sprintf("%5.1f", s.CurrentA)),
		white.Render(fmt.Sprintf("%5.1f", s.VoltageV))))

	temp := fmt.Sprintf("%5.1f C", s.TemperatureC)
	if s.TemperatureC > 100 {
		temp = red.Render(temp)
	}
	b.WriteString(fmt.Sprintf("  %s W   eff %s   emf %s V   temp %s\n",
		white.Render(fmt.Sprintf("%6.0f", s.PowerW)),
		white.Render(fmt.Sprintf("%4.2f", s.Efficiency)),
		white.Render(fmt.Sprintf("%5.1f", s.BackEmfV)),
		temp))

	if s.TestStatus != "" {
		line := fmt.Sprintf("  test %s  %3.0f%%  %s",
			string(s.TestStatus), s.TestProgress*100, s.TestPhase)
		b.WriteString(yellow.Render(line) + "\n")
	}
	b.WriteString("\n")

	if len(d.history) > 2 {
		w := d.width - 12
		if w > historyLen {
			w = historyLen
		}
		if w < 20 {
			w = 20
		}
		graph := asciigraph.Plot(d.history,
			asciigraph.Height(d.graphHeight()),
			asciigraph.Width(w),
			asciigraph.Caption("speed (rpm)"))
		b.WriteString(graph + "\n")
	}

	if s.DroppedSteps > 0 {
		b.WriteString(dim.Render(fmt.Sprintf("\n  dropped steps: %d", s.DroppedSteps)))
	}
	return b.String()
}

func (d *Dashboard) graphHeight() int {
	h := d.height - 14
	if h < 5 {
		h = 5
	}
	if h > 15 {
		h = 15
	}
	return h
}
