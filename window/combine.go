package window

import (
	"sync"

	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/plan"
)

// WindowResult is one fully combined window's aggregate output: a
// tumbling window is exactly one thin slice; a sliding window combines
// size/slide consecutive thin slices sharing the grid established by
// SliceAssigner (spec §4.I: the assigner's sliceStart/sliceEnd formulas
// place slice boundaries on the slide grid, so a size=k*slide window is
// the sum of its k most recent slices).
type WindowResult struct {
	Start, End ids.Timestamp
	Merged     *Slice
}

// SlidingCombiner sits downstream of a StagingArea: every dispatched
// thin-slice SliceMergeTask is folded into a short history, and whenever
// a slice arrives that completes a window, the window's constituent
// slices are summed into one WindowResult and forwarded. For a tumbling
// definition (size == slide) this reduces to forwarding each slice as
// its own one-slice window, unchanged (spec §4.I: "Tumbling windows are
// modelled as sliding with size == slide").
type SlidingCombiner struct {
	slide        int64
	slicesPerWin int
	functions    []plan.AggFunction
	dispatch     func(WindowResult)

	mu      sync.Mutex
	history map[ids.Timestamp]*Slice
}

// NewSlidingCombiner creates a combiner for a window definition of the
// given size/slide (both in milliseconds). size must be a positive
// exact multiple of slide: this combiner walks a fixed slide-width
// thin-slice grid and sums exactly slicesPerWin consecutive entries per
// window, which only tiles a window exactly when every window boundary
// falls on a slide-width slice edge. A non-harmonic pair needs a
// variable number of constituent slices per window end, which this
// fixed-history combiner does not track; that general case is not
// implemented (see DESIGN.md, "Windowing core: sliding-window
// limitation"), so it is rejected here rather than silently truncated
// via integer division.
func NewSlidingCombiner(size, slide int64, functions []plan.AggFunction, dispatch func(WindowResult)) (*SlidingCombiner, error) {
	if slide <= 0 || size <= 0 || size%slide != 0 {
		return nil, engerrors.New(engerrors.CompilationFailure, "sliding window size must be a positive exact multiple of slide").
			WithContext("size", size).
			WithContext("slide", slide)
	}
	return &SlidingCombiner{
		slide:        slide,
		slicesPerWin: int(size / slide),
		functions:    functions,
		dispatch:     dispatch,
		history:      make(map[ids.Timestamp]*Slice),
	}, nil
}

// OnSliceMerged consumes one StagingArea dispatch, folds it into this
// combiner's history, and emits the WindowResult ending at that slice if
// its merged state is non-empty.
func (c *SlidingCombiner) OnSliceMerged(task SliceMergeTask) {
	c.mu.Lock()
	c.history[task.End] = task.Merged
	end := task.End
	start := end - ids.Timestamp(int64(c.slicesPerWin)*c.slide)
	combined := NewSlice(start, end)
	for i := 0; i < c.slicesPerWin; i++ {
		sliceEnd := end - ids.Timestamp(int64(i)*c.slide)
		if sl, ok := c.history[sliceEnd]; ok {
			combined.Merge(sl, c.functions)
		}
	}
	// Retained history only needs the most recent slicesPerWin entries;
	// prune anything older than the current window's start.
	for sliceEnd := range c.history {
		if sliceEnd <= start {
			delete(c.history, sliceEnd)
		}
	}
	c.mu.Unlock()

	if !combined.Empty() {
		c.dispatch(WindowResult{Start: combined.Start, End: combined.End, Merged: combined})
	}
}

// Records renders this window's keyed partials into output rows, the
// same shape as SliceMergeTask.Records (spec §4.C implicit window
// schema).
func (w WindowResult) Records(keyFields []string, functions []plan.AggFunction) []map[string]any {
	return renderRecords(w.Start, w.End, w.Merged, keyFields, functions)
}
