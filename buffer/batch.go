package buffer

// Batch is a zero-alloc, single-goroutine-use ordered collection of
// TupleBuffer handles, used to hand a pipeline's output buffers to the
// next stage (or a Sink) without copying. Adapted from the teacher's
// pool.BufferBatch / core/buffer.BufferBatch.
type Batch struct {
	buffers []TupleBuffer
}

// NewBatch creates a batch with the given initial capacity.
func NewBatch(capacity int) *Batch {
	return &Batch{buffers: make([]TupleBuffer, 0, capacity)}
}

// Append adds buf to the batch.
func (b *Batch) Append(buf TupleBuffer) {
	b.buffers = append(b.buffers, buf)
}

// Len reports the current batch size.
func (b *Batch) Len() int { return len(b.buffers) }

// Get returns the i-th buffer.
func (b *Batch) Get(i int) TupleBuffer { return b.buffers[i] }

// Slice returns a zero-copy sub-batch over [start,end).
func (b *Batch) Slice(start, end int) *Batch {
	return &Batch{buffers: b.buffers[start:end]}
}

// Split divides the batch at idx into two sub-batches sharing storage.
func (b *Batch) Split(idx int) (first, second *Batch) {
	return &Batch{buffers: b.buffers[:idx]}, &Batch{buffers: b.buffers[idx:]}
}

// Underlying returns the raw slice, e.g. for handing to a sink.
func (b *Batch) Underlying() []TupleBuffer { return b.buffers }

// Reset clears the batch, retaining its backing array.
func (b *Batch) Reset() { b.buffers = b.buffers[:0] }

// ReleaseAll releases every buffer in the batch and resets it.
func (b *Batch) ReleaseAll() {
	for _, buf := range b.buffers {
		buf.Release()
	}
	b.Reset()
}
