package sequence_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/motorbench/internal/sequence"
)

func soakSequence() sequence.Sequence {
	return sequence.Sequence{
		ID:        "soak-1",
		Name:      "thermal soak",
		Type:      sequence.ThermalSoak,
		Duration:  10,
		HoldSpeed: 2000,
		HoldLoad:  3,
		Criteria: sequence.Criteria{
			MaxTemperature: 90,
			CriticalTemp:   120,
		},
	}
}

func nominalSample(t float64) sequence.TestPoint {
	return sequence.TestPoint{
		SpeedRPM:     2000,
		TorqueNm:     3,
		PowerW:       700,
		Efficiency:   0.85,
		TemperatureC: 45,
		VoltageV:     40,
		CurrentA:     20,
	}
}

var _ = Describe("Engine", func() {
	var eng *sequence.Engine

	BeforeEach(func() {
		var err error
		eng, err = sequence.NewEngine(soakSequence(), nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("validation", func() {
		It("rejects a zero duration", func() {
			s := soakSequence()
			s.Duration = 0
			_, err := sequence.NewEngine(s, nil)
			Expect(err).To(MatchError(sequence.ErrInvalidSequence))
		})

		It("rejects an unknown type", func() {
			s := soakSequence()
			s.Type = "burn-in"
			_, err := sequence.NewEngine(s, nil)
			Expect(err).To(MatchError(sequence.ErrInvalidSequence))
		})

		It("rejects a step outside the duration", func() {
			s := sequence.Sequence{
				Type: sequence.StepResponse, Duration: 5,
				BaseSpeed: 1000, StepSpeed: 2000, PreStepTime: 6,
			}
			_, err := sequence.NewEngine(s, nil)
			Expect(err).To(MatchError(sequence.ErrInvalidSequence))
		})
	})

	Describe("lifecycle", func() {
		It("starts into Running with zero progress", func() {
			Expect(eng.Status()).To(Equal(sequence.StatusIdle))
			Expect(eng.Start()).To(Succeed())
			Expect(eng.Status()).To(Equal(sequence.StatusRunning))
			Expect(eng.Progress()).To(BeZero())
		})

		It("refuses a double start", func() {
			Expect(eng.Start()).To(Succeed())
			Expect(eng.Start()).To(MatchError(sequence.ErrBadTransition))
		})

		It("completes once elapsed reaches the duration", func() {
			Expect(eng.Start()).To(Succeed())
			for t := 0.0; t < 10.5; t += 0.1 {
				eng.Tick(0.1, nominalSample(t))
			}
			Expect(eng.Status()).To(Equal(sequence.StatusCompleted))
			r := eng.Result()
			Expect(r.Progress).To(Equal(1.0))
			Expect(r.Passed).To(BeTrue())
			Expect(r.FailureReasons).To(BeEmpty())
			Expect(r.Summary.PeakPowerW).To(BeNumerically("~", 700, 1))
			Expect(r.Summary.AvgEfficiency).To(BeNumerically("~", 0.85, 0.01))
		})

		It("commands the hold point while running", func() {
			Expect(eng.Start()).To(Succeed())
			sp := eng.Tick(0.1, nominalSample(0))
			Expect(sp.HasSpeed).To(BeTrue())
			Expect(sp.SpeedRPM).To(Equal(2000.0))
			Expect(sp.HasLoad).To(BeTrue())
			Expect(sp.LoadNm).To(Equal(3.0))
		})
	})

	Describe("pause", func() {
		It("freezes the test clock but not the state machine", func() {
			Expect(eng.Start()).To(Succeed())
			for i := 0; i < 10; i++ {
				eng.Tick(0.1, nominalSample(0))
			}
			progress := eng.Progress()

			eng.Pause()
			Expect(eng.Status()).To(Equal(sequence.StatusPaused))
			for i := 0; i < 50; i++ {
				eng.Tick(0.1, nominalSample(0))
			}
			Expect(eng.Progress()).To(Equal(progress))

			eng.Resume()
			eng.Tick(0.1, nominalSample(0))
			Expect(eng.Progress()).To(BeNumerically(">", progress))
		})
	})

	Describe("abort", func() {
		It("finalizes with the reason and records nothing afterwards", func() {
			Expect(eng.Start()).To(Succeed())
			for i := 0; i < 30; i++ {
				eng.Tick(0.1, nominalSample(0))
			}
			abortTime := 3.0
			eng.Abort("operator stop")

			r := eng.Result()
			Expect(r.Status).To(Equal(sequence.StatusAborted))
			Expect(r.AbortReason).To(Equal("operator stop"))
			Expect(r.FailureReasons).To(ContainElement("operator stop"))
			Expect(r.Passed).To(BeFalse())

			// Further ticks are inert.
			eng.Tick(0.1, nominalSample(99))
			for _, pt := range eng.Result().Points {
				Expect(pt.Time).To(BeNumerically("<=", abortTime+1e-9))
			}
		})

		It("forces an abort on critical over-temperature", func() {
			Expect(eng.Start()).To(Succeed())
			hot := nominalSample(0)
			hot.TemperatureC = 125
			eng.Tick(0.1, hot)

			r := eng.Result()
			Expect(r.Status).To(Equal(sequence.StatusAborted))
			Expect(r.AbortReason).To(ContainSubstring("critical over-temperature"))
		})
	})

	Describe("criteria accumulation", func() {
		It("records a non-critical violation and fails the verdict without halting", func() {
			Expect(eng.Start()).To(Succeed())
			for t := 0.0; t < 10.5; t += 0.1 {
				pt := nominalSample(t)
				if t > 4 && t < 5 {
					pt.TemperatureC = 95 // above the ceiling, below critical
				}
				eng.Tick(0.1, pt)
			}
			r := eng.Result()
			Expect(r.Status).To(Equal(sequence.StatusCompleted))
			Expect(r.Passed).To(BeFalse())
			Expect(r.FailureReasons).To(ContainElement(ContainSubstring("temperature exceeded")))
		})

		It("deduplicates repeated violations", func() {
			Expect(eng.Start()).To(Succeed())
			for t := 0.0; t < 10.5; t += 0.1 {
				pt := nominalSample(t)
				pt.Efficiency = 0.4
				eng.Tick(0.1, pt)
			}
			s := soakSequence()
			s.Criteria.MinEfficiency = 0.7
			eng2, _ := sequence.NewEngine(s, nil)
			Expect(eng2.Start()).To(Succeed())
			for t := 0.0; t < 10.5; t += 0.1 {
				pt := nominalSample(t)
				pt.Efficiency = 0.4
				eng2.Tick(0.1, pt)
			}
			Expect(eng2.Result().FailureReasons).To(HaveLen(1))
		})
	})

	Describe("efficiency map", func() {
		It("walks the grid and reports cell-based progress", func() {
			s := sequence.Sequence{
				ID: "map-1", Type: sequence.EfficiencyMap, Duration: 12,
				SpeedMin: 1000, SpeedMax: 3000, SpeedSteps: 2,
				TorqueMin: 1, TorqueMax: 5, TorqueSteps: 3,
			}
			e, err := sequence.NewEngine(s, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Start()).To(Succeed())

			first := e.Tick(0.1, nominalSample(0))
			Expect(first.SpeedRPM).To(Equal(1000.0))
			Expect(first.LoadNm).To(Equal(1.0))

			// Each of the 6 cells spans 2 s; into the second cell the torque
			// axis has advanced one step.
			var second sequence.Setpoints
			for t := 0.1; t < 2.5; t += 0.1 {
				second = e.Tick(0.1, nominalSample(t))
			}
			Expect(second.SpeedRPM).To(Equal(1000.0))
			Expect(second.LoadNm).To(Equal(3.0))
			Expect(e.Progress()).To(BeNumerically("~", 1.0/6.0, 0.1))
		})
	})

	Describe("step response", func() {
		It("computes step figures at finalization", func() {
			s := sequence.Sequence{
				ID: "step-1", Type: sequence.StepResponse, Duration: 10,
				BaseSpeed: 1000, StepSpeed: 1500, PreStepTime: 2, HoldLoad: 1,
				Criteria: sequence.Criteria{MaxSettlingTime: 5, MaxOvershootPct: 20},
			}
			e, err := sequence.NewEngine(s, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Start()).To(Succeed())

			const tau = 0.3
			for t := 0.0; t < 10.5; t += 0.1 {
				pt := nominalSample(t)
				if t < 2 {
					pt.SpeedRPM = 1000
				} else {
					pt.SpeedRPM = 1500 - 500*math.Exp(-(t-2)/tau)
				}
				e.Tick(0.1, pt)
			}

			r := e.Result()
			Expect(r.Status).To(Equal(sequence.StatusCompleted))
			Expect(r.Summary.Step).NotTo(BeNil())
			Expect(r.Summary.Step.RiseTime).To(BeNumerically("~", tau*math.Log(9), 0.4))
			Expect(r.Summary.Step.OvershootPct).To(BeNumerically("<", 1))
			Expect(r.Summary.Step.SettlingTime).To(BeNumerically("<", 5))
			Expect(r.Passed).To(BeTrue())
		})

		It("fails the verdict when settling exceeds the bound", func() {
			s := sequence.Sequence{
				ID: "step-2", Type: sequence.StepResponse, Duration: 10,
				BaseSpeed: 1000, StepSpeed: 1500, PreStepTime: 2, HoldLoad: 1,
				Criteria: sequence.Criteria{MaxSettlingTime: 0.5},
			}
			e, _ := sequence.NewEngine(s, nil)
			Expect(e.Start()).To(Succeed())
			for t := 0.0; t < 10.5; t += 0.1 {
				pt := nominalSample(t)
				if t < 2 {
					pt.SpeedRPM = 1000
				} else {
					pt.SpeedRPM = 1500 - 500*math.Exp(-(t-2)/2.0) // slow response
				}
				e.Tick(0.1, pt)
			}
			r := e.Result()
			Expect(r.Passed).To(BeFalse())
			Expect(r.FailureReasons).To(ContainElement(ContainSubstring("settling time")))
		})
	})
})

var _ = Describe("Batch", func() {
	quick := func(id string) sequence.Sequence {
		s := soakSequence()
		s.ID = id
		s.Duration = 1
		return s
	}

	It("rejects an empty queue", func() {
		_, err := sequence.NewBatch(nil, 0.5, nil)
		Expect(err).To(MatchError(sequence.ErrInvalidSequence))
	})

	It("rejects a malformed entry up front", func() {
		bad := quick("bad")
		bad.Duration = -1
		_, err := sequence.NewBatch([]sequence.Sequence{quick("ok"), bad}, 0.5, nil)
		Expect(err).To(MatchError(sequence.ErrInvalidSequence))
	})

	It("runs entries strictly one after another with a settling gap", func() {
		b, err := sequence.NewBatch([]sequence.Sequence{quick("a"), quick("b")}, 0.5, nil)
		Expect(err).NotTo(HaveOccurred())

		var sawSettling bool
		for i := 0; i < 500 && !b.Done(); i++ {
			sp := b.Tick(0.1, nominalSample(0))
			if sp.Description == "settling" {
				sawSettling = true
				Expect(b.Active()).To(BeNil())
			}
			if b.Active() != nil && len(b.Results()) == 0 {
				Expect(b.Active().Sequence().ID).To(Equal("a"))
			}
		}

		Expect(b.Done()).To(BeTrue())
		Expect(sawSettling).To(BeTrue())
		results := b.Results()
		Expect(results).To(HaveLen(2))
		Expect(results[0].SequenceID).To(Equal("a"))
		Expect(results[1].SequenceID).To(Equal("b"))
		Expect(results[0].Status).To(Equal(sequence.StatusCompleted))
	})

	It("continues the queue after an abort", func() {
		b, err := sequence.NewBatch([]sequence.Sequence{quick("a"), quick("b")}, 0.2, nil)
		Expect(err).NotTo(HaveOccurred())

		b.Tick(0.1, nominalSample(0)) // starts "a"
		b.Abort("operator stop")
		for i := 0; i < 500 && !b.Done(); i++ {
			b.Tick(0.1, nominalSample(0))
		}

		results := b.Results()
		Expect(results).To(HaveLen(2))
		Expect(results[0].Status).To(Equal(sequence.StatusAborted))
		Expect(results[1].Status).To(Equal(sequence.StatusCompleted))
	})

	It("drops the remaining queue on cancel", func() {
		b, err := sequence.NewBatch([]sequence.Sequence{quick("a"), quick("b")}, 0.2, nil)
		Expect(err).NotTo(HaveOccurred())
		b.Tick(0.1, nominalSample(0))
		b.Cancel("shutting down")
		Expect(b.Done()).To(BeTrue())
		Expect(b.Results()).To(HaveLen(1))
		Expect(b.Results()[0].Status).To(Equal(sequence.StatusAborted))
	})
})
