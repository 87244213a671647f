// Package join implements the stateful join operators named in spec
// §4.J: nested-loop join (NLJSlice) and hash join (HJSlice) over paged
// vectors of build-side records, sharing a slice grid with the
// windowing core (window.SliceAssigner) and the same
// Open->Sealed->Triggered->Finalized->Released lifecycle.
package join
