package physical

import (
	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/nautilus"
	"github.com/nebulastream/nesengine/plan"
	"github.com/nebulastream/nesengine/runtime"
	"github.com/nebulastream/nesengine/schema"
	"github.com/nebulastream/nesengine/watermark"
	"github.com/nebulastream/nesengine/window"
	"github.com/sirupsen/logrus"
)

// Operator is the pipelineable unit contract named in spec §3
// ("PhysicalOperator"): open/execute/close against a shared
// ExecutionContext. Stateless operators (Selection, Projection, Map)
// forward each Record to the next operator in the same invocation;
// terminal operators (Emit, and the stateful handlers in handler.go)
// do not.
type Operator interface {
	Open(ctx *runtime.ExecutionContext) error
	Execute(ctx *runtime.ExecutionContext, rec Record) error
	Close(ctx *runtime.ExecutionContext) error
}

// settable is implemented by every non-terminal operator, letting the
// lowering pass wire a fused chain generically without a type switch per
// operator kind.
type settable interface {
	SetNext(Operator)
}

// chain is embedded by every non-terminal operator to hold its single
// successor, set once by the lowering pass (spec §4.D: operators are
// fused into a single compiled scan-to-emit function).
type chain struct {
	next Operator
}

func (c *chain) setNext(n Operator) { c.next = n }

func (c *chain) forward(ctx *runtime.ExecutionContext, rec Record) error {
	if c.next == nil {
		return engerrors.New(engerrors.OperatorExecutionFailure, "operator has no downstream successor wired")
	}
	return c.next.Execute(ctx, rec)
}

// ScanOperator is the entry of a pipeline: it reads every tuple out of
// its input TupleBuffer as a Record and executes the rest of the chain
// once per tuple (spec §4.D: "a pipeline begins at a Scan").
type ScanOperator struct {
	chain
	Schema schema.Schema
}

func NewScan(s schema.Schema) *ScanOperator { return &ScanOperator{Schema: s} }

func (s *ScanOperator) SetNext(n Operator) { s.setNext(n) }

func (s *ScanOperator) Open(ctx *runtime.ExecutionContext) error { return s.next.Open(ctx) }
func (s *ScanOperator) Close(ctx *runtime.ExecutionContext) error { return s.next.Close(ctx) }

// Execute is not used directly by Scan; ScanBuffer is the real entry
// point, invoked by the pipeline runner once per input buffer.
func (s *ScanOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	return s.forward(ctx, rec)
}

// ScanBuffer decodes every tuple in buf per s.Schema's layout and feeds
// each one through the downstream chain.
func (s *ScanOperator) ScanBuffer(ctx *runtime.ExecutionContext, buf buffer.TupleBuffer) error {
	ctx.CurrentOriginID = buf.OriginID()
	ctx.CurrentSequenceNumber = buf.SequenceNumber()
	n := int(buf.NumberOfTuples())
	for i := 0; i < n; i++ {
		rec := ReadRow(buf, s.Schema, i)
		if err := s.forward(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// SelectionOperator filters records through a Nautilus-compiled
// predicate, forwarding only those that evaluate true (spec §4.C
// Selection).
type SelectionOperator struct {
	chain
	predicate *CompiledExpr
}

// NewSelection compiles predicate against inputSchema once, at pipeline
// construction (spec §4.D, §4.E: tracing happens once; execution runs
// the compiled form every invocation).
func NewSelection(predicate plan.Expr, inputSchema schema.Schema, backend nautilus.Backend) (*SelectionOperator, error) {
	compiled, err := CompileExpr(predicate, inputSchema, backend)
	if err != nil {
		return nil, err
	}
	return &SelectionOperator{predicate: compiled}, nil
}

func (f *SelectionOperator) SetNext(n Operator) { f.setNext(n) }

func (f *SelectionOperator) Open(ctx *runtime.ExecutionContext) error  { return f.next.Open(ctx) }
func (f *SelectionOperator) Close(ctx *runtime.ExecutionContext) error { return f.next.Close(ctx) }

func (f *SelectionOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	result, err := f.predicate.Eval(rec)
	if err != nil {
		return err
	}
	if !result.(bool) {
		return nil
	}
	return f.forward(ctx, rec)
}

// ProjectionOperator narrows a Record down to a fixed field list (spec
// §4.C Projection).
type ProjectionOperator struct {
	chain
	Fields []string
}

func NewProjection(fields []string) *ProjectionOperator {
	return &ProjectionOperator{Fields: fields}
}

func (p *ProjectionOperator) SetNext(n Operator) { p.setNext(n) }

func (p *ProjectionOperator) Open(ctx *runtime.ExecutionContext) error  { return p.next.Open(ctx) }
func (p *ProjectionOperator) Close(ctx *runtime.ExecutionContext) error { return p.next.Close(ctx) }

func (p *ProjectionOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	out := make(Record, len(p.Fields))
	for _, f := range p.Fields {
		out[f] = rec[f]
	}
	return p.forward(ctx, out)
}

// MapOperator rebinds a single field to the result of a Nautilus-compiled
// assignment expression (spec §4.C Map).
type MapOperator struct {
	chain
	fieldName  string
	assignment *CompiledExpr
}

func NewMap(fieldName string, assignment plan.Expr, inputSchema schema.Schema, backend nautilus.Backend) (*MapOperator, error) {
	compiled, err := CompileExpr(assignment, inputSchema, backend)
	if err != nil {
		return nil, err
	}
	return &MapOperator{fieldName: fieldName, assignment: compiled}, nil
}

func (m *MapOperator) SetNext(n Operator) { m.setNext(n) }

func (m *MapOperator) Open(ctx *runtime.ExecutionContext) error  { return m.next.Open(ctx) }
func (m *MapOperator) Close(ctx *runtime.ExecutionContext) error { return m.next.Close(ctx) }

func (m *MapOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	v, err := m.assignment.Eval(rec)
	if err != nil {
		return err
	}
	out := rec.Clone()
	out[m.fieldName] = v
	return m.forward(ctx, out)
}

// UnionOperator merges two upstream pipelines into one record stream.
// Since fusion happens per-input-pipeline, at the physical level a Union
// is simply a pass-through forwarding whichever side called it.
type UnionOperator struct {
	chain
}

func NewUnion() *UnionOperator { return &UnionOperator{} }

func (u *UnionOperator) SetNext(n Operator) { u.setNext(n) }

func (u *UnionOperator) Open(ctx *runtime.ExecutionContext) error  { return u.next.Open(ctx) }
func (u *UnionOperator) Close(ctx *runtime.ExecutionContext) error { return u.next.Close(ctx) }

func (u *UnionOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	return u.forward(ctx, rec)
}

// WindowAssignerOperator tags every record with the window boundary its
// timestamp falls into, computed against a shared window.SliceAssigner
// (spec §4.C WindowAssigner, §4.I: "the formula is the extremum over
// every active window definition"). It is stateless at the operator
// level — the assigner's own definitions list is the only shared state
// — so it fuses like Selection/Projection/Map.
type WindowAssignerOperator struct {
	chain
	Assigner       *window.SliceAssigner
	TimestampField string
}

func NewWindowAssigner(assigner *window.SliceAssigner, timestampField string) *WindowAssignerOperator {
	return &WindowAssignerOperator{Assigner: assigner, TimestampField: timestampField}
}

func (w *WindowAssignerOperator) SetNext(n Operator) { w.setNext(n) }

func (w *WindowAssignerOperator) Open(ctx *runtime.ExecutionContext) error  { return w.next.Open(ctx) }
func (w *WindowAssignerOperator) Close(ctx *runtime.ExecutionContext) error { return w.next.Close(ctx) }

func (w *WindowAssignerOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	ts, err := recordTimestamp(rec, w.TimestampField)
	if err != nil {
		return err
	}
	start, end, err := w.Assigner.Slice(ts)
	if err != nil {
		if engerrors.Is(err, engerrors.WindowAssignmentDrop) {
			logrus.WithError(err).Warn("window assigner: tuple dropped")
			return nil
		}
		return err
	}
	out := rec.Clone()
	out["windowStart"] = uint64(start)
	out["windowEnd"] = uint64(end)
	return w.forward(ctx, out)
}

// WatermarkAssignerOperator tracks the maximum event-time timestamp seen
// across one buffer's tuples and, once the chain closes (once per input
// buffer, spec §3: "watermark is generated per buffer, not per tuple"),
// folds it into the shared MultiOriginWatermarkProcessor. A rising global
// watermark is fanned out to every WatermarkAdvancer registered on the
// owning pipeline (spec §4.H, §4.I trigger).
type WatermarkAssignerOperator struct {
	chain
	TimestampField    string
	MaxOutOfOrderness ids.Timestamp
	Processor         *watermark.MultiOriginWatermarkProcessor
	// Pipeline is read at Close time rather than captured once, since the
	// lowering pass discovers this watermark assigner's downstream
	// consumers (and so populates Pipeline.Advancers) only after this
	// operator is already built.
	Pipeline *Pipeline

	seen  bool
	maxTs ids.Timestamp
}

func NewWatermarkAssigner(field string, maxOOO ids.Timestamp, proc *watermark.MultiOriginWatermarkProcessor) *WatermarkAssignerOperator {
	return &WatermarkAssignerOperator{TimestampField: field, MaxOutOfOrderness: maxOOO, Processor: proc}
}

func (w *WatermarkAssignerOperator) SetNext(n Operator) { w.setNext(n) }

func (w *WatermarkAssignerOperator) Open(ctx *runtime.ExecutionContext) error {
	w.seen = false
	w.maxTs = 0
	return w.next.Open(ctx)
}

func (w *WatermarkAssignerOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	ts, err := recordTimestamp(rec, w.TimestampField)
	if err != nil {
		return err
	}
	if !w.seen || ts > w.maxTs {
		w.maxTs = ts
		w.seen = true
	}
	return w.forward(ctx, rec)
}

func (w *WatermarkAssignerOperator) Close(ctx *runtime.ExecutionContext) error {
	if err := w.next.Close(ctx); err != nil {
		return err
	}
	if !w.seen {
		return nil
	}
	candidate := w.maxTs - w.MaxOutOfOrderness
	if candidate < 0 {
		candidate = 0
	}
	newGlobal, err := w.Processor.UpdateWatermark(candidate, ctx.CurrentSequenceNumber, ctx.CurrentOriginID)
	if err != nil {
		return err
	}
	if w.Pipeline == nil {
		return nil
	}
	for _, adv := range w.Pipeline.Advancers {
		if err := adv.AdvanceWatermark(ctx.WorkerThreadID, newGlobal); err != nil {
			return err
		}
	}
	return nil
}
