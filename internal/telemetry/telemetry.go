// Package telemetry provides the bench logger and an optional snapshot
// tracer. Tracing consumes the published snapshot stream; nothing here runs
// inside the physics tick.
package telemetry

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/san-kum/motorbench/internal/sched"
)

// NewLogger builds a console logger. Verbose enables debug output.
func NewLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Tracer logs every Nth snapshot from the runner's stream.
type Tracer struct {
	log   *zap.Logger
	every int
}

func NewTracer(log *zap.Logger, every int) *Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	if every < 1 {
		every = 1
	}
	return &Tracer{log: log, every: every}
}

// Run consumes snapshots until the stream closes or the context ends.
func (t *Tracer) Run(ctx context.Context, snaps <-chan sched.Snapshot) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			n++
			if n%t.every != 0 {
				continue
			}
			t.log.Debug("snapshot",
				zap.Float64("t", s.SimTime),
				zap.Float64("rpm", s.SpeedRPM),
				zap.Float64("nm", s.TorqueNm),
				zap.Float64("a", s.CurrentA),
				zap.Float64("v", s.VoltageV),
				zap.Float64("temp", s.TemperatureC))
		}
	}
}
