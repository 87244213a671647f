package window

import (
	"sync"

	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/plan"
)

// SliceMergeTask is dispatched once every thread-local store has staged
// its contribution for a given sliceEnd (spec §4.I step 2). A downstream
// pipeline consumes it to emit the final windowed record(s).
type SliceMergeTask struct {
	Start, End ids.Timestamp
	Merged     *Slice
}

// Records renders the merged slice's keyed partials into output rows
// carrying the window boundary columns, the key fields, and the
// finalized aggregate results, matching the implicit schema added by
// plan.InferSchemas for an Aggregation operator (spec §4.C).
func (t SliceMergeTask) Records(keyFields []string, functions []plan.AggFunction) []map[string]any {
	return renderRecords(t.Start, t.End, t.Merged, keyFields, functions)
}

func renderRecords(start, end ids.Timestamp, merged *Slice, keyFields []string, functions []plan.AggFunction) []map[string]any {
	entries := merged.Entries()
	out := make([]map[string]any, 0, len(entries))
	for _, kp := range entries {
		rec := map[string]any{
			"windowStart": uint64(start),
			"windowEnd":   uint64(end),
		}
		for i, kf := range keyFields {
			rec[kf] = kp.Key[i]
		}
		for i, fn := range functions {
			rec[fn.As] = kp.Partials[i].Result(fn.Func)
		}
		out = append(out, rec)
	}
	return out
}

type stagingEntry struct {
	merged *Slice
	count  int
}

// StagingArea is the global slice staging area: per-sliceEnd merge state
// shared across every worker's contribution, dispatching a SliceMergeTask
// exactly once all thread-local stores have staged (spec §4.I step 2,
// carried from KeyedSlicePreAggregationHandler.cpp's partial-count rule
// per SPEC_FULL.md §4).
type StagingArea struct {
	numStores int
	functions []plan.AggFunction
	dispatch  func(SliceMergeTask)

	mu      sync.Mutex
	pending map[ids.Timestamp]*stagingEntry
}

// NewStagingArea creates a staging area expecting contributions from
// numStores thread-local stores before merging and dispatching.
func NewStagingArea(numStores int, functions []plan.AggFunction, dispatch func(SliceMergeTask)) *StagingArea {
	return &StagingArea{
		numStores: numStores,
		functions: functions,
		dispatch:  dispatch,
		pending:   make(map[ids.Timestamp]*stagingEntry),
	}
}

// Stage merges sl into the pending entry for sl.End. Once every store has
// contributed, the entry is dispatched as a SliceMergeTask — unless the
// merged state is empty, in which case the watermark still advanced but
// no task is emitted (spec §4.I step 3).
func (a *StagingArea) Stage(sl *Slice) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.pending[sl.End]
	if !ok {
		e = &stagingEntry{merged: NewSlice(sl.Start, sl.End)}
		a.pending[sl.End] = e
	}
	e.merged.Merge(sl, a.functions)
	e.count++
	if e.count >= a.numStores {
		delete(a.pending, sl.End)
		if !e.merged.Empty() {
			a.dispatch(SliceMergeTask{Start: e.merged.Start, End: e.merged.End, Merged: e.merged})
		}
	}
}

// FlushAll dispatches every still-pending entry regardless of how many
// stores contributed, treating the current watermark as +infinity (spec
// §4.I: "Under soft stop, the staging area is flushed").
func (a *StagingArea) FlushAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for end, e := range a.pending {
		delete(a.pending, end)
		if !e.merged.Empty() {
			a.dispatch(SliceMergeTask{Start: e.merged.Start, End: e.merged.End, Merged: e.merged})
		}
	}
}

// Pending reports the number of sliceEnds currently awaiting contributions.
func (a *StagingArea) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
