// Package window implements the time & windowing core (spec §4.I):
// SliceAssigner (event-time slice edges for a set of concurrently active
// window definitions), ThreadLocalSliceStore (per-worker pre-aggregation,
// single-writer by pinning), SliceStagingArea (cross-worker merge
// coordination), and Trigger (ties watermark advancement to slice
// completion and merge-task dispatch).
//
// The multi-deployment-time extremum logic in SliceAssigner is carried
// from original_source/nes-execution's SliceAssigner.hpp per-definition
// iteration (see SPEC_FULL.md §4 supplemented features); the staging
// area's partial-count dispatch rule is carried from
// KeyedSlicePreAggregationHandler.cpp.
package window
