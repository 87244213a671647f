package runtime

import (
	"sync"

	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/ids"
)

// PipelineID identifies one compiled pipeline within a query.
type PipelineID uint64

// OperatorID addresses a physical operator's handler within a pipeline's
// shared state vector (spec §3: "operator-handler indices").
type OperatorID uint64

// EmitFunc forwards a completed buffer to the next hop: a downstream
// pipeline task, or a sink write. Supplied by the query manager wiring a
// pipeline's successors (spec §4.F).
type EmitFunc func(buf buffer.TupleBuffer)

// OperatorHandler is long-lived state of a stateful operator across task
// invocations on a pipeline: slice stores, hash tables, watermark
// trackers (spec §3). Start/Stop bracket the pipeline's lifetime;
// Drain is invoked during a graceful stop to flush buffered state before
// the pipeline acknowledges termination (spec §4.G termination sequence).
type OperatorHandler interface {
	Start() error
	Stop() error
	Drain() error
}

// PipelineExecutionContext holds the state shared across every task
// invocation on a single pipeline: identity, the buffer manager, the
// operator-handler array, and the wiring to downstream pipelines/sinks
// (spec §4.F).
type PipelineExecutionContext struct {
	PipelineID     PipelineID
	WorkerThreadID int
	BufferManager  *buffer.Pool
	Handlers       []OperatorHandler
	Emit           EmitFunc

	seqMu sync.Mutex
	seq   map[ids.OriginID]ids.SequenceNumber
}

// NewPipelineExecutionContext constructs a context for one pipeline.
func NewPipelineExecutionContext(id PipelineID, workerID int, bm *buffer.Pool, handlers []OperatorHandler, emit EmitFunc) *PipelineExecutionContext {
	return &PipelineExecutionContext{
		PipelineID:     id,
		WorkerThreadID: workerID,
		BufferManager:  bm,
		Handlers:       handlers,
		Emit:           emit,
		seq:            make(map[ids.OriginID]ids.SequenceNumber),
	}
}

// Handler returns the operator handler registered at idx, or nil.
func (c *PipelineExecutionContext) Handler(idx OperatorID) OperatorHandler {
	if int(idx) >= len(c.Handlers) {
		return nil
	}
	return c.Handlers[idx]
}

// nextSequence assigns the next monotonically increasing sequence number
// for origin, serialized per origin (spec §5: buffers carry
// (originId, sequenceNumber, ...); an origin's sequence is monotonic).
func (c *PipelineExecutionContext) nextSequence(origin ids.OriginID) ids.SequenceNumber {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.seq[origin]++
	return c.seq[origin]
}

// EmitBuffer records buf's sequence number (the chunk number and
// lastChunk flag are the caller's responsibility, since only the caller
// knows whether more chunks of this buffer's tuple batch follow) and
// invokes the pipeline's emit function (spec §4.F).
func (c *PipelineExecutionContext) EmitBuffer(buf buffer.TupleBuffer) {
	buf.SetSequenceNumber(c.nextSequence(buf.OriginID()))
	if c.Emit != nil {
		c.Emit(buf)
	}
}

// NextSequenceNumber exposes the per-origin sequence counter directly,
// for a multi-buffer chunked emission (spec §3: "chunkNumber and
// lastChunk form an ordered terminating sequence per (origin, sequence)
// key") where every chunk of one logical emission must share a single
// sequence number while EmitBuffer's per-call assignment would instead
// hand out a fresh one per chunk.
func (c *PipelineExecutionContext) NextSequenceNumber(origin ids.OriginID) ids.SequenceNumber {
	return c.nextSequence(origin)
}

// EmitChunk invokes the pipeline's emit function without touching buf's
// sequence number, which the caller has already set (via
// NextSequenceNumber) identically across every chunk of one emission.
func (c *PipelineExecutionContext) EmitChunk(buf buffer.TupleBuffer) {
	if c.Emit != nil {
		c.Emit(buf)
	}
}

// ExecutionContext wraps a PipelineExecutionContext for a single task
// invocation (one input buffer), adding a bump-pointer arena backed by
// pooled buffers and per-operator scratch state that does not outlive
// the invocation unless promoted into an OperatorHandler (spec §4.F).
type ExecutionContext struct {
	*PipelineExecutionContext

	arena    *buffer.Arena
	arenaBuf buffer.TupleBuffer
	owned    []buffer.TupleBuffer // unpooled segments allocated this invocation

	state map[OperatorID]map[string]any

	// CurrentOriginID/CurrentSequenceNumber identify the input buffer this
	// invocation is scanning, set by the Scan operator before the tuple
	// loop so a WatermarkAssigner further down the chain can attribute its
	// per-buffer watermark to the right (origin, sequence) pair without
	// threading the buffer itself through every operator's Execute.
	CurrentOriginID       ids.OriginID
	CurrentSequenceNumber ids.SequenceNumber
}

// NewExecutionContext creates a per-invocation context over pec.
func NewExecutionContext(pec *PipelineExecutionContext) *ExecutionContext {
	return &ExecutionContext{PipelineExecutionContext: pec, state: make(map[OperatorID]map[string]any)}
}

// Alloc serves n bytes of scratch memory from the arena (spec §4.F
// allocation policy): requests that fit the pool's buffer size are
// served from the current arena buffer's remaining tail, taking a fresh
// pooled buffer on overflow; requests larger than the pool's buffer size
// are served by a one-shot unpooled buffer, tracked so that Release
// frees it at the end of the invocation.
func (c *ExecutionContext) Alloc(n int) ([]byte, error) {
	if n > c.BufferManager.BufferSize() {
		buf, err := c.BufferManager.GetUnpooledBuffer(n)
		if err != nil {
			return nil, err
		}
		c.owned = append(c.owned, buf)
		return buf.Bytes(), nil
	}
	if c.arena == nil || c.arena.Remaining() < n {
		buf, err := c.BufferManager.GetBufferBlocking()
		if err != nil {
			return nil, err
		}
		if !c.arenaBuf.Empty() {
			c.arenaBuf.Release()
		}
		c.arenaBuf = buf
		c.arena = buffer.NewArena(buf)
	}
	return c.arena.Alloc(n)
}

// State returns the mutable scratch-state map for operator id, scoped to
// this single invocation (spec §4.F: "lives for one pipeline invocation
// unless explicitly promoted into an operator handler").
func (c *ExecutionContext) State(id OperatorID) map[string]any {
	s, ok := c.state[id]
	if !ok {
		s = make(map[string]any)
		c.state[id] = s
	}
	return s
}

// Release returns every buffer this invocation privately allocated
// (arena backing buffer, unpooled scratch segments) to its pool. Buffers
// handed off via EmitBuffer are not touched here — ownership already
// transferred to the downstream consumer.
func (c *ExecutionContext) Release() {
	if !c.arenaBuf.Empty() {
		c.arenaBuf.Release()
		c.arenaBuf = buffer.TupleBuffer{}
	}
	for _, buf := range c.owned {
		buf.Release()
	}
	c.owned = nil
}
