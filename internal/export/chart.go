// Package export renders recorded runs to chart files and JSON documents.
package export

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/motorbench/internal/sequence"
	"github.com/san-kum/motorbench/internal/storage"
)

// Quantity names a plottable column of a recorded run.
type Quantity string

const (
	Speed       Quantity = "speed"
	Torque      Quantity = "torque"
	Current     Quantity = "current"
	Voltage     Quantity = "voltage"
	Power       Quantity = "power"
	Efficiency  Quantity = "efficiency"
	Temperature Quantity = "temperature"
)

func (q Quantity) label() string {
	switch q {
	case Speed:
		return "speed (rpm)"
	case Torque:
		return "torque (Nm)"
	case Current:
		return "current (A)"
	case Voltage:
		return "voltage (V)"
	case Power:
		return "power (W)"
	case Efficiency:
		return "efficiency"
	case Temperature:
		return "temperature (C)"
	}
	return string(q)
}

func (q Quantity) value(s storage.Sample) (float64, error) {
	switch q {
	case Speed:
		return s.SpeedRPM, nil
	case Torque:
		return s.TorqueNm, nil
	case Current:
		return s.CurrentA, nil
	case Voltage:
		return s.VoltageV, nil
	case Power:
		return s.PowerW, nil
	case Efficiency:
		return s.Efficiency, nil
	case Temperature:
		return s.TemperatureC, nil
	}
	return 0, fmt.Errorf("export: unknown quantity %q", q)
}

// Values extracts the column for q, for terminal plotting.
func Values(samples []storage.Sample, q Quantity) ([]float64, error) {
	out := make([]float64, len(samples))
	for i, s := range samples {
		v, err := q.value(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// TimeSeriesChart renders one quantity against time. The output format
// follows the file extension (.png, .svg, .pdf).
func TimeSeriesChart(samples []storage.Sample, q Quantity, title, path string) error {
	if len(samples) == 0 {
		return fmt.Errorf("export: no samples to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = q.label()

	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		v, err := q.value(s)
		if err != nil {
			return err
		}
		pts[i].X = s.Time
		pts[i].Y = v
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(plotter.NewGrid(), line)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// EfficiencyMapChart scatters the visited operating points of an efficiency
// map run in the speed/torque plane.
func EfficiencyMapChart(res *sequence.Result, path string) error {
	if res == nil || len(res.Points) == 0 {
		return fmt.Errorf("export: no test points to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: operating points", res.Name)
	p.X.Label.Text = "speed (rpm)"
	p.Y.Label.Text = "torque (Nm)"

	pts := make(plotter.XYs, len(res.Points))
	for i, tp := range res.Points {
		pts[i].X = tp.SpeedRPM
		pts[i].Y = tp.TorqueNm
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(plotter.NewGrid(), scatter)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// ResultChart renders a finalized test's speed trace.
func ResultChart(res *sequence.Result, path string) error {
	if res == nil || len(res.Points) == 0 {
		return fmt.Errorf("export: no test points to plot")
	}
	samples := make([]storage.Sample, len(res.Points))
	for i, tp := range res.Points {
		samples[i] = storage.FromTestPoint(tp)
	}
	title := fmt.Sprintf("%s (%s)", res.Name, res.Status)
	return TimeSeriesChart(samples, Speed, title, path)
}
