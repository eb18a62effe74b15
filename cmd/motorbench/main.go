package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/motorbench/internal/config"
	"github.com/san-kum/motorbench/internal/control"
	"github.com/san-kum/motorbench/internal/export"
	"github.com/san-kum/motorbench/internal/load"
	"github.com/san-kum/motorbench/internal/motor"
	"github.com/san-kum/motorbench/internal/sched"
	"github.com/san-kum/motorbench/internal/sequence"
	"github.com/san-kum/motorbench/internal/storage"
	"github.com/san-kum/motorbench/internal/telemetry"
	"github.com/san-kum/motorbench/internal/tui"
)

var (
	dataDir    string
	motorID    string
	duration   float64
	mode       string
	target     float64
	configFile string
	verbose    bool
	usePWM     bool

	// Load profile flags
	loadKind     string
	loadTarget   float64
	loadBase     float64
	loadEnd      float64
	loadRampTime float64
	loadStepAt   float64
	loadAmp      float64
	loadFreq     float64
	maxLoad      float64

	// Export flags
	quantity string
	outPath  string

	settle float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "motorbench",
		Short: "closed-loop motor test bench simulator",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "runs", "data directory")
	rootCmd.PersistentFlags().StringVar(&motorID, "motor", motor.DefaultMotorID, "catalog motor id")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the bench at a fixed setpoint",
		RunE:  runBench,
	}
	runCmd.Flags().Float64Var(&duration, "time", 10.0, "duration (s)")
	runCmd.Flags().StringVar(&mode, "mode", "speed", "control mode: speed|current|torque|voltage")
	runCmd.Flags().Float64Var(&target, "target", 2000, "setpoint in mode units")
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&loadKind, "load", "", "load profile: constant|ramp|step|sine")
	runCmd.Flags().Float64Var(&loadTarget, "load-target", 0, "constant load (Nm)")
	runCmd.Flags().Float64Var(&loadBase, "load-base", 0, "base load (Nm)")
	runCmd.Flags().Float64Var(&loadEnd, "load-end", 0, "ramp end load (Nm)")
	runCmd.Flags().Float64Var(&loadRampTime, "load-ramp-time", 1, "ramp time (s)")
	runCmd.Flags().Float64Var(&loadStepAt, "load-step-at", 1, "step time (s)")
	runCmd.Flags().Float64Var(&loadAmp, "load-amp", 0, "sine amplitude (Nm)")
	runCmd.Flags().Float64Var(&loadFreq, "load-freq", 0.5, "sine frequency (Hz)")
	runCmd.Flags().Float64Var(&maxLoad, "max-load", 15, "load clamp (Nm)")
	runCmd.Flags().BoolVar(&usePWM, "pwm", false, "model the PWM inverter bridge")

	testCmd := &cobra.Command{
		Use:   "test [preset]",
		Short: "run a scripted test sequence",
		Args:  cobra.ExactArgs(1),
		RunE:  runTest,
	}

	batchCmd := &cobra.Command{
		Use:   "batch [file.yaml]",
		Short: "run a queue of test sequences",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().Float64Var(&settle, "settle", sequence.DefaultSettleDelay, "settling delay between tests (s)")

	motorsCmd := &cobra.Command{
		Use:   "motors",
		Short: "list catalog motors",
		RunE:  listMotors,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list test presets for the selected motor",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.ListSequencePresets(motorID)
			if len(names) == 0 {
				fmt.Printf("no presets for motor: %s\n", motorID)
				return nil
			}
			fmt.Printf("presets for %s:\n", motorID)
			for _, n := range names {
				fmt.Printf("  %s\n", n)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a recorded run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportMeta,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a full run document to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")

	exportChartCmd := &cobra.Command{
		Use:   "export-chart [run_id]",
		Short: "render a run to a chart file",
		Args:  cobra.ExactArgs(1),
		RunE:  exportChart,
	}
	exportChartCmd.Flags().StringVar(&quantity, "quantity", "speed", "quantity to plot")
	exportChartCmd.Flags().StringVar(&outPath, "out", "chart.png", "output file (.png/.svg/.pdf)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "interactive live dashboard",
		RunE:  runLive,
	}
	liveCmd.Flags().BoolVar(&usePWM, "pwm", false, "model the PWM inverter bridge")

	rootCmd.AddCommand(runCmd, testCmd, batchCmd, motorsCmd, presetsCmd,
		listCmd, plotCmd, exportCmd, exportJSONCmd, exportChartCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	return telemetry.NewLogger(verbose)
}

func loadProfileFromFlags() (*load.Profile, error) {
	if loadKind == "" {
		return nil, nil
	}
	p := load.Profile{
		Kind:      load.Kind(loadKind),
		MaxLoad:   maxLoad,
		Target:    loadTarget,
		StartLoad: loadBase,
		EndLoad:   loadEnd,
		RampTime:  loadRampTime,
		BaseLoad:  loadBase,
		StepLoad:  loadEnd,
		StepTime:  loadStepAt,
		Amplitude: loadAmp,
		Frequency: loadFreq,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// collectRun advances the runner in snapshot-sized slices, draining the
// stream into samples so nothing is dropped.
func collectRun(r *sched.Runner, seconds float64) []storage.Sample {
	var samples []storage.Sample
	const chunk = 0.05
	for t := 0.0; t < seconds; t += chunk {
		r.Advance(chunk)
		samples = drainInto(r, samples)
	}
	return samples
}

func drainInto(r *sched.Runner, samples []storage.Sample) []storage.Sample {
	for {
		select {
		case s := <-r.Snapshots():
			samples = append(samples, storage.Sample{
				Time: s.SimTime, SpeedRPM: s.SpeedRPM, TorqueNm: s.TorqueNm,
				CurrentA: s.CurrentA, VoltageV: s.VoltageV, PowerW: s.PowerW,
				Efficiency: s.Efficiency, TemperatureC: s.TemperatureC,
				LoadNm: s.LoadTorqueNm,
			})
		default:
			return samples
		}
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !cmd.Flags().Changed("time") {
			duration = cfg.Duration
		}
		if !cmd.Flags().Changed("mode") {
			mode = cfg.Mode
		}
		if !cmd.Flags().Changed("target") {
			target = cfg.Target
		}
		if !cmd.Flags().Lookup("motor").Changed {
			motorID = cfg.Motor
		}
	}

	m, err := motor.FromCatalog(motorID)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	r := sched.NewRunner(m, control.DefaultGains(m.Params()), sched.DefaultRunnerConfig(), log)
	if cfg != nil && cfg.Inverter != nil {
		r.EnableInverter(*cfg.Inverter)
	} else if usePWM {
		r.EnableInverter(control.DefaultInverterParams(m.Params().RatedVoltage))
	}
	r.SetMotorRunning(true)
	r.SetTarget(control.Mode(mode), target)

	profile, err := loadProfileFromFlags()
	if err != nil {
		return err
	}
	if profile != nil {
		if err := r.ActivateLoad(*profile); err != nil {
			return err
		}
	}

	fmt.Printf("running %s: %s mode, target %.1f, %.0fs\n", motorID, mode, target, duration)
	start := time.Now()
	samples := collectRun(r, duration)
	elapsed := time.Since(start)

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.RunMetadata{
		Motor: motorID, Mode: mode, Target: target, Duration: duration,
	}, samples, nil)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("samples: %d\n", len(samples))
	if n := len(samples); n > 0 {
		last := samples[n-1]
		fmt.Printf("final: %.0f rpm, %.2f Nm, %.1f A, %.1f C\n",
			last.SpeedRPM, last.TorqueNm, last.CurrentA, last.TemperatureC)
	}
	return nil
}

func runTest(cmd *cobra.Command, args []string) error {
	seq, ok := config.GetSequencePreset(motorID, args[0])
	if !ok {
		return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListSequencePresets(motorID))
	}

	m, err := motor.FromCatalog(motorID)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	r := sched.NewRunner(m, control.DefaultGains(m.Params()), sched.DefaultRunnerConfig(), log)
	if err := r.StartTest(seq); err != nil {
		return err
	}

	fmt.Printf("running %s (%s) on %s...\n", seq.Name, seq.Type, motorID)
	start := time.Now()
	samples := collectRun(r, seq.Duration+1)
	res := r.TestResult()
	if res == nil {
		return fmt.Errorf("test did not finalize")
	}
	fmt.Printf("completed in %v\n", time.Since(start))
	printResult(res)

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.RunMetadata{
		Motor: motorID, Mode: "test", Duration: seq.Duration,
	}, samples, res)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

type batchFile struct {
	Sequences []sequence.Sequence `yaml:"sequences"`
}

// runBatch drives a queue against a dedicated closed loop, faster than real
// time, and saves one run per finished test.
func runBatch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	b, err := sequence.NewBatch(bf.Sequences, settle, log)
	if err != nil {
		return err
	}

	m, err := motor.FromCatalog(motorID)
	if err != nil {
		return err
	}
	ctrl := control.NewCascade(m.Params(), control.DefaultGains(m.Params()))
	ctrl.SetRunning(true)

	const dt = 0.001
	var loadNm float64
	fmt.Printf("running batch of %d sequences on %s...\n", len(bf.Sequences), motorID)
	for !b.Done() {
		snap := m.Snapshot()
		sp := b.Tick(dt, sequence.TestPoint{
			SpeedRPM: snap.SpeedRPM, TorqueNm: snap.TorqueNm,
			PowerW: snap.PowerW, Efficiency: snap.Efficiency,
			TemperatureC: snap.TemperatureC, VoltageV: snap.VoltageV,
			CurrentA: snap.CurrentA,
		})
		if sp.HasSpeed {
			ctrl.SetTarget(control.ModeSpeed, sp.SpeedRPM)
		}
		if sp.HasLoad {
			loadNm = sp.LoadNm
		}
		fb := control.Feedback{
			SpeedRPM:      snap.SpeedRPM,
			CurrentA:      snap.CurrentA,
			BackEmfV:      m.DriveEMF(),
			ResistanceOhm: m.Params().HotResistance(snap.TemperatureC),
		}
		m.Step(ctrl.ComputeVoltage(fb, dt), loadNm, dt)
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	for i := range b.Results() {
		res := &b.Results()[i]
		printResult(res)
		var samples []storage.Sample
		for _, pt := range res.Points {
			samples = append(samples, storage.FromTestPoint(pt))
		}
		runID, err := st.Save(storage.RunMetadata{
			Motor: motorID, Mode: "test",
		}, samples, res)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n\n", runID)
	}
	return nil
}

func printResult(res *sequence.Result) {
	verdict := "FAIL"
	if res.Passed {
		verdict = "PASS"
	}
	fmt.Printf("%s [%s]: %s\n", res.Name, res.Status, verdict)
	if res.AbortReason != "" {
		fmt.Printf("  abort: %s\n", res.AbortReason)
	}
	for _, reason := range res.FailureReasons {
		fmt.Printf("  - %s\n", reason)
	}
	fmt.Printf("  peak power: %.0f W, avg efficiency: %.2f, max temp: %.1f C, energy: %.0f J\n",
		res.Summary.PeakPowerW, res.Summary.AvgEfficiency,
		res.Summary.MaxTemperature, res.Summary.EnergyJ)
	if st := res.Summary.Step; st != nil {
		fmt.Printf("  rise: %.2fs, settle: %.2fs, overshoot: %.1f%%, sse: %.1f rpm\n",
			st.RiseTime, st.SettlingTime, st.OvershootPct, st.SteadyErrRPM)
	}
}

func listMotors(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRATED\tMAX RPM\tMAX TORQUE")
	for _, id := range motor.CatalogIDs() {
		e := motor.Catalog[id]
		fmt.Fprintf(w, "%s\t%s\t%.0fV/%.0fA\t%.0f\t%.1f Nm\n",
			id, e.Name, e.Params.RatedVoltage, e.Params.RatedCurrent,
			e.Params.MaxSpeedRPM, e.Params.MaxTorque)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMOTOR\tTIME\tMODE\tTARGET\tSAMPLES\tRESULT")
	for _, run := range runs {
		result := "-"
		if run.Passed != nil {
			if *run.Passed {
				result = "pass"
			} else {
				result = "fail"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%d\t%s\n",
			run.ID, run.Motor, run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Mode, run.Target, run.Samples, result)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\nmotor: %s\nsamples: %d\n\n", meta.ID, meta.Motor, len(samples))

	for _, q := range []export.Quantity{export.Speed, export.Current, export.Temperature} {
		data, err := export.Values(samples, q)
		if err != nil {
			return err
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(string(q)),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportMeta(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}
	result, _ := st.LoadResult(args[0]) // absent for plain runs

	if outPath == "" {
		return export.JSON(os.Stdout, *meta, samples, result)
	}
	if err := export.JSONFile(outPath, *meta, samples, result); err != nil {
		return err
	}
	fmt.Printf("exported %s\n", outPath)
	return nil
}

func exportChart(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s (%s)", meta.ID, meta.Motor)
	if err := export.TimeSeriesChart(samples, export.Quantity(quantity), title, outPath); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	m, err := motor.FromCatalog(motorID)
	if err != nil {
		return err
	}

	// The dashboard owns the terminal; keep the runner silent.
	r := sched.NewRunner(m, control.DefaultGains(m.Params()), sched.DefaultRunnerConfig(), zap.NewNop())
	if usePWM {
		r.EnableInverter(control.DefaultInverterParams(m.Params().RatedVoltage))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	p := tea.NewProgram(tui.NewDashboard(r), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
