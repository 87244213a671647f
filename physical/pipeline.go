package physical

import (
	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/runtime"
)

// WatermarkAdvancer is implemented by the stateful handlers that must
// react when a pipeline observes a new global watermark on an input
// buffer (window triggers, join slice trackers) — spec §4.I: "the
// producing worker advances its view of the global watermark... every
// thread-local slice whose end <= newGlobalWatermark is [staged]".
type WatermarkAdvancer interface {
	AdvanceWatermark(workerID int, newGlobalWatermark ids.Timestamp) error
}

// Pipeline is a directed chain of physical operators terminating at an
// Emit or a pipeline boundary (spec §3, "Pipeline"). A pipeline whose
// Scan is nil is fed directly by Records — the downstream half of a
// window/join trigger, consuming a SliceMergeTask or a probe result
// rather than a TupleBuffer.
type Pipeline struct {
	ID    runtime.PipelineID
	Scan  *ScanOperator // nil when fed by merge/probe tasks rather than a buffer
	Entry Operator      // first operator Execute is called on

	Handlers   []runtime.OperatorHandler
	Advancers  []WatermarkAdvancer
}

// NewPipeline wires entry as this pipeline's first operator; scan may be
// nil, in which case entry is itself the pipeline's chain head. When
// scan is non-nil it must be the chain head (Entry == Scan) so
// Open/Close cascade through the same chain ScanBuffer walks.
func NewPipeline(id runtime.PipelineID, scan *ScanOperator, entry Operator) *Pipeline {
	if scan != nil {
		entry = scan
	}
	return &Pipeline{ID: id, Scan: scan, Entry: entry}
}

// RunBuffer executes this pipeline once over one input buffer: open the
// chain, scan every tuple through it, close the chain (which flushes any
// terminal Emit), per spec §4.F's scan->emit compiled function shape.
func (p *Pipeline) RunBuffer(pec *runtime.PipelineExecutionContext, buf buffer.TupleBuffer) error {
	ctx := runtime.NewExecutionContext(pec)
	defer ctx.Release()

	if err := p.Entry.Open(ctx); err != nil {
		return err
	}
	if p.Scan != nil {
		if err := p.Scan.ScanBuffer(ctx, buf); err != nil {
			return err
		}
	}
	return p.Entry.Close(ctx)
}

// RunRecords feeds a pre-materialized batch of records (a window merge
// result, or a join probe's matches) through this pipeline's chain
// without a Scan step.
func (p *Pipeline) RunRecords(pec *runtime.PipelineExecutionContext, recs []Record) error {
	ctx := runtime.NewExecutionContext(pec)
	defer ctx.Release()

	if err := p.Entry.Open(ctx); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := p.Entry.Execute(ctx, rec); err != nil {
			return err
		}
	}
	return p.Entry.Close(ctx)
}
