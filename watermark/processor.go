package watermark

import (
	"container/heap"
	"sync"

	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/sirupsen/logrus"
)

// defaultMaxPendingGap bounds how many out-of-order sequence numbers an
// origin may accumulate before the gap is treated as unrecoverable (spec
// §9 open question: "treat as WatermarkProtocolFailure").
const defaultMaxPendingGap = 4096

// seqHeap is a min-heap of pending sequence numbers awaiting collapse
// into the contiguous prefix.
type seqHeap []ids.SequenceNumber

func (h seqHeap) Len() int            { return len(h) }
func (h seqHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h seqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x any)         { *h = append(*h, x.(ids.SequenceNumber)) }
func (h *seqHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// originState tracks one origin's gap-free sequence reassembly under its
// own lock (spec §4.H: "the processor serializes per-origin updates
// (fine-grained lock per origin)").
type originState struct {
	mu              sync.Mutex
	lastContiguous  ids.SequenceNumber
	pendingHeap     seqHeap
	pendingTimes    map[ids.SequenceNumber]ids.Timestamp
	watermark       ids.Timestamp
	maxPendingGap   int
}

// MultiOriginWatermarkProcessor computes a global watermark across a
// fixed set of origins known at plan time (spec §4.H).
type MultiOriginWatermarkProcessor struct {
	maxPendingGap int

	mu      sync.Mutex
	origins map[ids.OriginID]*originState
	global  ids.Timestamp
}

// NewMultiOriginWatermarkProcessor creates a processor for a set of
// origin ids known up front; additional origins are still accepted
// lazily (a query may add a source stream after construction).
func NewMultiOriginWatermarkProcessor(knownOrigins ...ids.OriginID) *MultiOriginWatermarkProcessor {
	p := &MultiOriginWatermarkProcessor{
		maxPendingGap: defaultMaxPendingGap,
		origins:       make(map[ids.OriginID]*originState),
	}
	for _, o := range knownOrigins {
		p.originFor(o)
	}
	return p
}

func (p *MultiOriginWatermarkProcessor) originFor(origin ids.OriginID) *originState {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.origins[origin]
	if !ok {
		o = &originState{pendingTimes: make(map[ids.SequenceNumber]ids.Timestamp), maxPendingGap: p.maxPendingGap}
		p.origins[origin] = o
	}
	return o
}

// UpdateWatermark records that originID produced sequenceNumber at event
// time ts, collapses any now-contiguous prefix of that origin's pending
// sequence numbers, and returns the new global watermark: the minimum
// across every known origin's gap-free watermark (spec §4.H). The
// returned value never decreases across calls.
func (p *MultiOriginWatermarkProcessor) UpdateWatermark(ts ids.Timestamp, seq ids.SequenceNumber, originID ids.OriginID) (ids.Timestamp, error) {
	o := p.originFor(originID)

	o.mu.Lock()
	if seq > o.lastContiguous {
		o.pendingTimes[seq] = ts
		heap.Push(&o.pendingHeap, seq)
		if len(o.pendingHeap) > o.maxPendingGap {
			o.mu.Unlock()
			return 0, engerrors.New(engerrors.WatermarkProtocolFailure, "pending sequence gap exceeds recoverable window").
				WithContext("origin", uint64(originID)).
				WithContext("pending", len(o.pendingHeap))
		}
		for len(o.pendingHeap) > 0 && o.pendingHeap[0] == o.lastContiguous+1 {
			next := heap.Pop(&o.pendingHeap).(ids.SequenceNumber)
			nextTs := o.pendingTimes[next]
			delete(o.pendingTimes, next)
			o.lastContiguous = next
			if nextTs > o.watermark {
				o.watermark = nextTs
			}
		}
	} else {
		logrus.WithFields(logrus.Fields{"origin": originID, "seq": seq}).Warn("watermark: duplicate or already-collapsed sequence number")
	}
	originWatermark := o.watermark
	o.mu.Unlock()

	return p.recomputeGlobal(originID, originWatermark), nil
}

// recomputeGlobal takes the minimum watermark across all origins under a
// short critical section (spec §4.H) and ensures the result is
// monotonically non-decreasing even under concurrent callers racing on
// different origins.
func (p *MultiOriginWatermarkProcessor) recomputeGlobal(updated ids.OriginID, updatedWatermark ids.Timestamp) ids.Timestamp {
	p.mu.Lock()
	defer p.mu.Unlock()

	min := ids.MaxTimestamp
	for origin, o := range p.origins {
		w := updatedWatermark
		if origin != updated {
			o.mu.Lock()
			w = o.watermark
			o.mu.Unlock()
		}
		if w < min {
			min = w
		}
	}
	if len(p.origins) == 0 {
		min = 0
	}
	if min > p.global {
		p.global = min
	}
	return p.global
}

// Global returns the most recently computed global watermark without
// forcing a recompute.
func (p *MultiOriginWatermarkProcessor) Global() ids.Timestamp {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.global
}
