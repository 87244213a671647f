package window

import (
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/plan"
)

// Trigger ties one worker's SliceAssigner, ThreadLocalSliceStore and the
// shared StagingArea together: Insert assigns and pre-aggregates a
// tuple, Advance reacts to a new global watermark by staging every
// now-complete local slice (spec §4.I).
type Trigger struct {
	assigner *SliceAssigner
	store    *ThreadLocalSliceStore
	staging  *StagingArea

	lastTriggered ids.Timestamp
}

// NewTrigger creates a per-worker trigger over the given (shared)
// assigner and staging area, and a fresh thread-local store.
func NewTrigger(assigner *SliceAssigner, staging *StagingArea) *Trigger {
	return &Trigger{assigner: assigner, store: NewThreadLocalSliceStore(), staging: staging}
}

// Store exposes this worker's thread-local slice store, e.g. for tests
// inspecting open-slice counts.
func (tr *Trigger) Store() *ThreadLocalSliceStore { return tr.store }

// LastTriggeredWatermark returns the watermark value this worker last
// advanced to.
func (tr *Trigger) LastTriggeredWatermark() ids.Timestamp { return tr.lastTriggered }

// Insert assigns ts to a slice via the shared assigner and upserts the
// tuple's aggregate values into that slice's thread-local state.
// Once this worker has triggered a watermark, tuples at or before it are
// rejected as late (spec §4.I correctness invariants: "Late tuples... are
// rejected; counting them is an open metric, not a correctness concern").
// Before the first trigger no tuple is late, including one at ts 0.
func (tr *Trigger) Insert(ts ids.Timestamp, key []any, functions []plan.AggFunction, values []any) error {
	if tr.lastTriggered > 0 && ts <= tr.lastTriggered {
		return engerrors.New(engerrors.WindowAssignmentDrop, "late tuple rejected at insert time").
			WithContext("ts", int64(ts)).
			WithContext("lastTriggeredWatermark", int64(tr.lastTriggered))
	}
	start, end, err := tr.assigner.Slice(ts)
	if err != nil {
		return err
	}
	tr.store.SliceFor(start, end).Upsert(key, functions, values)
	return nil
}

// Advance reacts to a newly observed global watermark (spec §4.I
// trigger): if it exceeds this worker's last-triggered watermark, every
// thread-local slice whose end is now covered is moved to the shared
// staging area as a complete partial.
func (tr *Trigger) Advance(newGlobalWatermark ids.Timestamp) {
	if newGlobalWatermark <= tr.lastTriggered {
		return
	}
	tr.lastTriggered = newGlobalWatermark
	for _, sl := range tr.store.TakeCompleted(newGlobalWatermark) {
		tr.staging.Stage(sl)
	}
}

// Flush moves every remaining thread-local slice to staging regardless
// of watermark, used when this worker participates in a graceful stop
// (spec §4.I: soft stop treats the watermark as +infinity).
func (tr *Trigger) Flush() {
	for _, sl := range tr.store.TakeCompleted(ids.MaxTimestamp) {
		tr.staging.Stage(sl)
	}
}
