package sequence

import (
	"fmt"

	"go.uber.org/zap"
)

// DefaultSettleDelay is the pause between consecutive batch entries, giving
// the rig time to spin down before the next test starts.
const DefaultSettleDelay = 2.0

// Batch runs a queue of sequences strictly one after another. The next test
// starts only after the previous one reached Completed or Aborted and the
// settling delay has passed.
type Batch struct {
	queue  []Sequence
	settle float64
	log    *zap.Logger

	idx        int
	settleLeft float64
	engine     *Engine
	results    []Result
	cancelled  bool
}

// NewBatch validates every queued sequence up front so a malformed entry is
// rejected before anything runs.
func NewBatch(seqs []Sequence, settleDelay float64, log *zap.Logger) (*Batch, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidSequence)
	}
	for i, s := range seqs {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("batch entry %d (%s): %w", i, s.ID, err)
		}
	}
	if settleDelay < 0 {
		settleDelay = DefaultSettleDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Batch{queue: seqs, settle: settleDelay, log: log}, nil
}

// Active returns the engine of the test currently running, or nil between
// tests.
func (b *Batch) Active() *Engine { return b.engine }

// Results returns the finalized results collected so far.
func (b *Batch) Results() []Result { return b.results }

// Done reports whether the whole queue has been consumed.
func (b *Batch) Done() bool {
	return b.cancelled || (b.engine == nil && b.idx >= len(b.queue) && b.settleLeft <= 0)
}

// Abort aborts the test currently running; the queue continues with the next
// entry after the settling delay.
func (b *Batch) Abort(reason string) {
	if b.engine != nil {
		b.engine.Abort(reason)
	}
}

// Cancel aborts the active test, keeps its result, and drops the rest of the
// queue.
func (b *Batch) Cancel(reason string) {
	if b.engine != nil {
		b.engine.Abort(reason)
		b.results = append(b.results, *b.engine.Result())
		b.engine = nil
	}
	b.cancelled = true
}

// Tick advances the batch by dt. Between tests it burns the settling delay;
// otherwise it drives the active engine and rolls over when it finishes.
func (b *Batch) Tick(dt float64, sample TestPoint) Setpoints {
	if b.Done() {
		return Setpoints{}
	}

	if b.engine == nil {
		if b.settleLeft > 0 {
			b.settleLeft -= dt
			return Setpoints{Description: "settling"}
		}
		eng, err := NewEngine(b.queue[b.idx], b.log)
		if err != nil {
			// Validated at construction; a failure here means the template
			// was mutated since. Skip it rather than wedge the queue.
			b.log.Error("skipping batch entry", zap.Int("index", b.idx), zap.Error(err))
			b.idx++
			return Setpoints{}
		}
		b.engine = eng
		if err := b.engine.Start(); err != nil {
			b.log.Error("batch start failed", zap.Int("index", b.idx), zap.Error(err))
			b.engine = nil
			b.idx++
			return Setpoints{}
		}
		b.log.Info("batch entry started",
			zap.Int("index", b.idx),
			zap.Int("total", len(b.queue)),
			zap.String("sequence", b.queue[b.idx].ID))
	}

	sp := b.engine.Tick(dt, sample)
	if st := b.engine.Status(); st == StatusCompleted || st == StatusAborted {
		b.results = append(b.results, *b.engine.Result())
		b.engine = nil
		b.idx++
		b.settleLeft = b.settle
	}
	return sp
}
