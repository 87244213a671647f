package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/nebulastream/nesengine/concurrency"
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
)

// Stats summarizes pool usage for a single NUMA segment.
type Stats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
	Capacity   int
	NUMANode   int
}

// Pool is a fixed-size-class, NUMA-segmented buffer pool backed by a
// lock-free free-list (spec §5: "Buffer pool: lock-free free-list; blocking
// wait on exhaustion via a condition variable"). Adapted from the
// teacher's pool.slabPool.
type Pool struct {
	numaNode   int
	bufferSize int
	capacity   int

	free *concurrency.LockFreeQueue[*BufferControlBlock]

	mu        sync.Mutex
	cond      *sync.Cond
	allocated int
	freed     int64
	closed    atomic.Bool
}

// NewPool creates a pool of `capacity` fixed-size buffers of bufferSize
// bytes each, preferentially allocated on numaNode (advisory only in this
// implementation; see allocSegment in numa.go for the platform-specific
// path).
func NewPool(numaNode, bufferSize, capacity int) *Pool {
	p := &Pool{
		numaNode:   numaNode,
		bufferSize: bufferSize,
		capacity:   capacity,
		free:       concurrency.NewLockFreeQueue[*BufferControlBlock](capacity),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// GetBufferBlocking returns a pooled buffer, blocking while the pool is
// both fully allocated and empty of free segments.
func (p *Pool) GetBufferBlocking() (TupleBuffer, error) {
	if p.closed.Load() {
		return TupleBuffer{}, engerrors.ErrPoolClosed
	}
	if block, ok := p.free.Dequeue(); ok {
		return p.reset(block), nil
	}
	p.mu.Lock()
	for {
		if p.closed.Load() {
			p.mu.Unlock()
			return TupleBuffer{}, engerrors.ErrPoolClosed
		}
		if p.allocated < p.capacity {
			p.allocated++
			p.mu.Unlock()
			return p.allocateNew(), nil
		}
		if block, ok := p.free.Dequeue(); ok {
			p.mu.Unlock()
			return p.reset(block), nil
		}
		p.cond.Wait()
	}
}

// GetBufferNoBlocking returns a pooled buffer without blocking; ok is
// false when the pool is exhausted.
func (p *Pool) GetBufferNoBlocking() (buf TupleBuffer, ok bool) {
	if p.closed.Load() {
		return TupleBuffer{}, false
	}
	if block, found := p.free.Dequeue(); found {
		return p.reset(block), true
	}
	p.mu.Lock()
	if p.allocated < p.capacity {
		p.allocated++
		p.mu.Unlock()
		return p.allocateNew(), true
	}
	p.mu.Unlock()
	return TupleBuffer{}, false
}

// GetUnpooledBuffer returns a one-shot segment larger than the pool's unit
// size; it is freed (not recycled) on release.
func (p *Pool) GetUnpooledBuffer(sizeBytes int) (TupleBuffer, error) {
	if sizeBytes <= 0 {
		return TupleBuffer{}, engerrors.New(engerrors.AllocationFailure, "unpooled buffer size must be positive")
	}
	block := newControlBlock(make([]byte, sizeBytes), nil)
	return TupleBuffer{block: block}, nil
}

func (p *Pool) allocateNew() TupleBuffer {
	block := newControlBlock(allocSegment(p.numaNode, p.bufferSize), p)
	return TupleBuffer{block: block}
}

func (p *Pool) reset(block *BufferControlBlock) TupleBuffer {
	block.refCount.Store(1)
	block.numberOfTuples.Store(0)
	block.usedBytes.Store(0)
	block.originID = ids.InvalidOrigin
	block.sequenceNumber = 0
	block.chunkNumber = 0
	block.lastChunk = false
	block.watermark = 0
	block.children = nil
	return TupleBuffer{block: block}
}

// recycle implements the recycler contract invoked by TupleBuffer.Release
// once a pooled segment's reference count drops to zero.
func (p *Pool) recycle(block *BufferControlBlock) {
	atomic.AddInt64(&p.freed, 1)
	if !p.free.Enqueue(block) {
		// Free-list full: the segment is dropped, and because allocated
		// is not decremented its slot is not handed out again.
	}
	p.cond.Broadcast()
}

// Close marks the pool closed; blocked GetBufferBlocking callers return
// ErrPoolClosed rather than hanging forever.
func (p *Pool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// BufferSize returns the fixed payload size in bytes this pool serves,
// used by the execution arena to decide whether a request fits a pooled
// segment or must fall back to an unpooled allocation (spec §4.F).
func (p *Pool) BufferSize() int { return p.bufferSize }

// Stats reports a point-in-time usage snapshot.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	allocated := p.allocated
	p.mu.Unlock()
	freed := atomic.LoadInt64(&p.freed)
	return Stats{
		TotalAlloc: int64(allocated),
		TotalFree:  freed,
		InUse:      int64(allocated) - freed,
		Capacity:   p.capacity,
		NUMANode:   p.numaNode,
	}
}

// sizeClasses are the power-of-two-ish buffer size classes a Manager
// routes requests into, so a source asking for a 100-byte buffer and one
// asking for a 100000-byte buffer don't share the same free-list. Adapted
// from the teacher's pool.sizeClasses table.
var sizeClasses = [...]int{
	4 * 1024,
	16 * 1024,
	64 * 1024,
	256 * 1024,
	1024 * 1024,
	4 * 1024 * 1024,
}

func sizeClassUpperBound(size int) int {
	for _, c := range sizeClasses {
		if size <= c {
			return c
		}
	}
	return sizeClasses[len(sizeClasses)-1]
}

// Manager routes buffer requests to a per-(NUMA node, size class) Pool,
// lazily creating pools on first use. Adapted from the teacher's
// pool.BufferPoolManager / nodeClassPools.
type Manager struct {
	capacityPerClass int

	mu    sync.RWMutex
	nodes map[int]*nodeClassPools
}

type nodeClassPools struct {
	mu    sync.RWMutex
	class map[int]*Pool
}

// NewManager creates a manager that lazily creates one Pool per
// (NUMA node, size class) pair on first use, each holding up to
// capacityPerClass buffers.
func NewManager(capacityPerClass int) *Manager {
	return &Manager{
		capacityPerClass: capacityPerClass,
		nodes:            make(map[int]*nodeClassPools),
	}
}

// GetPool returns (creating if necessary) the pool serving buffers of at
// least minSize bytes on numaNode. Use -1 for "no NUMA preference".
func (m *Manager) GetPool(numaNode, minSize int) *Pool {
	class := sizeClassUpperBound(minSize)

	m.mu.RLock()
	node, ok := m.nodes[numaNode]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if node, ok = m.nodes[numaNode]; !ok {
			node = &nodeClassPools{class: make(map[int]*Pool)}
			m.nodes[numaNode] = node
		}
		m.mu.Unlock()
	}

	node.mu.RLock()
	p, ok := node.class[class]
	node.mu.RUnlock()
	if ok {
		return p
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	if p, ok := node.class[class]; ok {
		return p
	}
	p = NewPool(numaNode, class, m.capacityPerClass)
	node.class[class] = p
	return p
}

// Close closes every pool the manager has created.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, node := range m.nodes {
		node.mu.RLock()
		for _, p := range node.class {
			p.Close()
		}
		node.mu.RUnlock()
	}
}
