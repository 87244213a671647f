package physical

import (
	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/runtime"
	"github.com/nebulastream/nesengine/schema"
)

// EmitOperator is the terminal operator of a fused pipeline: it buffers
// the records produced by one input-buffer invocation, packs them into
// one or more output TupleBuffers per s's memory layout, and emits each
// one through the pipeline context (spec §4.D: "a pipeline... ends at an
// Emit"). Multiple output buffers from a single invocation share one
// sequence number and form a chunked, terminating sequence (spec §3).
type EmitOperator struct {
	Schema   schema.Schema
	OriginID ids.OriginID

	pending []Record
}

func NewEmit(s schema.Schema, origin ids.OriginID) *EmitOperator {
	return &EmitOperator{Schema: s, OriginID: origin}
}

func (e *EmitOperator) Open(ctx *runtime.ExecutionContext) error {
	e.pending = e.pending[:0]
	return nil
}

func (e *EmitOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	e.pending = append(e.pending, rec)
	return nil
}

// Close packs e.pending into chunked output buffers and emits them,
// then clears the record accumulator for the next invocation (spec §4.F
// "emitBuffer(buffer) records... and invokes the pipeline's emit
// function").
func (e *EmitOperator) Close(ctx *runtime.ExecutionContext) error {
	if len(e.pending) == 0 {
		return nil
	}
	pool := ctx.BufferManager
	capacity := rowCapacityForSchema(e.Schema, pool.BufferSize())
	if capacity <= 0 {
		return engerrors.New(engerrors.OperatorExecutionFailure, "schema tuple size exceeds buffer size").
			WithContext("tupleSize", e.Schema.TupleSize())
	}

	seq := ctx.NextSequenceNumber(e.OriginID)
	chunks := chunkRecords(e.pending, capacity)
	for i, chunk := range chunks {
		buf, err := pool.GetBufferBlocking()
		if err != nil {
			return engerrors.Wrap(engerrors.AllocationFailure, "emit could not obtain an output buffer", err)
		}
		buf.SetOriginID(e.OriginID)
		buf.SetSequenceNumber(seq)
		buf.SetChunkNumber(ids.ChunkNumber(i + 1))
		buf.SetLastChunk(i == len(chunks)-1)
		buf.SetNumberOfTuples(uint64(len(chunk)))

		for ti, rec := range chunk {
			if err := WriteRow(buf, e.Schema, ti, rec, pool); err != nil {
				return err
			}
		}
		if err := buf.SetUsedBytes(uint64(len(chunk) * e.Schema.TupleSize())); err != nil {
			return err
		}
		ctx.EmitChunk(buf)
	}
	e.pending = e.pending[:0]
	return nil
}

func rowCapacityForSchema(s schema.Schema, bufferSize int) int {
	return schema.NewRowMemoryLayout(s, bufferSize).Capacity()
}

func chunkRecords(recs []Record, capacity int) [][]Record {
	var out [][]Record
	for start := 0; start < len(recs); start += capacity {
		end := start + capacity
		if end > len(recs) {
			end = len(recs)
		}
		out = append(out, recs[start:end])
	}
	if len(out) == 0 {
		out = append(out, nil)
	}
	return out
}

// BoundaryDispatchOperator is the terminal operator at an internal
// pipeline boundary (a Union merging two upstream chains, or the
// implicit split the lowering pass inserts wherever fusion cannot
// continue): it accumulates one invocation's records and, on Close,
// hands the whole batch to Dispatch rather than packing them into a
// TupleBuffer — the downstream pipeline consumes Records directly via
// RunRecords (spec §4.D: "otherwise insert an Emit/Scan boundary").
type BoundaryDispatchOperator struct {
	Dispatch Dispatch

	pending []Record
}

func NewBoundaryDispatch(dispatch Dispatch) *BoundaryDispatchOperator {
	return &BoundaryDispatchOperator{Dispatch: dispatch}
}

func (b *BoundaryDispatchOperator) Open(ctx *runtime.ExecutionContext) error {
	b.pending = b.pending[:0]
	return nil
}

func (b *BoundaryDispatchOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	b.pending = append(b.pending, rec)
	return nil
}

func (b *BoundaryDispatchOperator) Close(ctx *runtime.ExecutionContext) error {
	if len(b.pending) == 0 {
		return nil
	}
	err := b.Dispatch(b.pending)
	b.pending = b.pending[:0]
	return err
}

// Sink is the contract an external sink implements (spec §6):
// setup/writeData/shutdown. It is not itself a physical.Operator — the
// query package's pipeline wiring treats the last pipeline's Emit as
// forwarding into a Sink rather than a downstream Scan.
type Sink interface {
	Setup() error
	WriteData(buf buffer.TupleBuffer) (bool, error)
	Shutdown() error
}
