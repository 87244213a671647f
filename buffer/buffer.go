package buffer

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
)

// maxInlineChildren bounds the number of child-buffer indices a parent's
// control block tracks directly (spec §3: "a bounded list of child-buffer
// indices"). Beyond this the parent rejects new children.
const maxInlineChildren = 64

// recycler is implemented by a Pool to take a drained segment back.
type recycler interface {
	recycle(block *BufferControlBlock)
}

// BufferControlBlock is the metadata that precedes every pooled payload:
// reference count, tuple bookkeeping, stream-ordering metadata, and the
// child-buffer chain used for variable-sized data attached to the parent.
type BufferControlBlock struct {
	refCount atomic.Int64

	numberOfTuples atomic.Uint64
	usedBytes      atomic.Uint64

	originID       ids.OriginID
	sequenceNumber ids.SequenceNumber
	chunkNumber    ids.ChunkNumber
	lastChunk      bool
	watermark      ids.Timestamp
	createdAt      time.Time

	children []TupleBuffer

	data  []byte
	owner recycler // nil for unpooled segments
}

// TupleBuffer is a reference-counted handle to a BufferControlBlock. The
// zero value is an empty handle and is safe to Release (a no-op).
type TupleBuffer struct {
	block *BufferControlBlock
}

// Empty reports whether this handle owns no control block.
func (b TupleBuffer) Empty() bool { return b.block == nil }

// Retain increments the reference count and returns the same handle, so
// callers can write `kept := buf.Retain()` when fanning a buffer out to
// multiple consumers.
func (b TupleBuffer) Retain() TupleBuffer {
	if b.block != nil {
		b.block.refCount.Add(1)
	}
	return b
}

// Release decrements the reference count. When it reaches zero, all
// children are released (recursively) and the segment is handed back to
// its owning pool (or freed, for unpooled segments).
func (b TupleBuffer) Release() {
	if b.block == nil {
		return
	}
	if b.block.refCount.Add(-1) == 0 {
		for _, child := range b.block.children {
			child.Release()
		}
		b.block.children = nil
		if b.block.owner != nil {
			b.block.owner.recycle(b.block)
		}
	}
}

// ReferenceCount returns the current reference count, or 0 for an empty handle.
func (b TupleBuffer) ReferenceCount() int64 {
	if b.block == nil {
		return 0
	}
	return b.block.refCount.Load()
}

// Bytes returns the full backing payload slice.
func (b TupleBuffer) Bytes() []byte { return b.block.data }

// Capacity returns the payload size in bytes.
func (b TupleBuffer) Capacity() int { return len(b.block.data) }

func (b TupleBuffer) NumberOfTuples() uint64        { return b.block.numberOfTuples.Load() }
func (b TupleBuffer) SetNumberOfTuples(n uint64)    { b.block.numberOfTuples.Store(n) }

// UsedBytes reports the portion of the payload written so far.
func (b TupleBuffer) UsedBytes() uint64 { return b.block.usedBytes.Load() }

// SetUsedBytes records how much of the payload is populated. Invariant
// (spec §3): usedBytes <= buffer_size.
func (b TupleBuffer) SetUsedBytes(n uint64) error {
	if n > uint64(len(b.block.data)) {
		return engerrors.New(engerrors.OperatorExecutionFailure, "used bytes exceeds buffer capacity").
			WithContext("used", n).WithContext("capacity", len(b.block.data))
	}
	b.block.usedBytes.Store(n)
	return nil
}

func (b TupleBuffer) OriginID() ids.OriginID             { return b.block.originID }
func (b TupleBuffer) SetOriginID(o ids.OriginID)         { b.block.originID = o }
func (b TupleBuffer) SequenceNumber() ids.SequenceNumber { return b.block.sequenceNumber }
func (b TupleBuffer) SetSequenceNumber(s ids.SequenceNumber) { b.block.sequenceNumber = s }
func (b TupleBuffer) ChunkNumber() ids.ChunkNumber       { return b.block.chunkNumber }
func (b TupleBuffer) SetChunkNumber(c ids.ChunkNumber)   { b.block.chunkNumber = c }
func (b TupleBuffer) LastChunk() bool                    { return b.block.lastChunk }
func (b TupleBuffer) SetLastChunk(last bool)             { b.block.lastChunk = last }
func (b TupleBuffer) Watermark() ids.Timestamp           { return b.block.watermark }
func (b TupleBuffer) SetWatermark(w ids.Timestamp)       { b.block.watermark = w }
func (b TupleBuffer) CreationTimestamp() time.Time       { return b.block.createdAt }

// AttachChild transfers ownership of child's reference into the parent's
// inline child list and returns its stable index. child is passed by
// value, so the caller's handle is not emptied: it still points at the
// same segment, and the caller must not Release it, because the parent
// now owns that reference.
func (b *TupleBuffer) AttachChild(child TupleBuffer) (int, error) {
	if len(b.block.children) >= maxInlineChildren {
		return 0, engerrors.New(engerrors.OperatorExecutionFailure, "child buffer list exhausted").
			WithContext("limit", maxInlineChildren)
	}
	idx := len(b.block.children)
	b.block.children = append(b.block.children, child)
	return idx, nil
}

// Child returns the child buffer at idx without transferring ownership;
// retain it explicitly if the caller needs an independent handle.
func (b TupleBuffer) Child(idx int) (TupleBuffer, bool) {
	if idx < 0 || idx >= len(b.block.children) {
		return TupleBuffer{}, false
	}
	return b.block.children[idx], true
}

// Pointer exposes the control block address as an opaque FFI-style handle,
// for boundaries inside compiled (Nautilus) pipelines that pass buffers by
// raw pointer.
func (b TupleBuffer) Pointer() unsafe.Pointer { return unsafe.Pointer(b.block) }

// ReinterpretAsTupleBuffer recovers a TupleBuffer handle from a pointer
// previously obtained via Pointer, retaining it on the caller's behalf.
func ReinterpretAsTupleBuffer(ptr unsafe.Pointer) TupleBuffer {
	block := (*BufferControlBlock)(ptr)
	tb := TupleBuffer{block: block}
	return tb.Retain()
}

func newControlBlock(data []byte, owner recycler) *BufferControlBlock {
	block := &BufferControlBlock{
		data:      data,
		owner:     owner,
		createdAt: time.Now(),
	}
	block.refCount.Store(1)
	return block
}
