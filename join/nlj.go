package join

import (
	"sync"

	"github.com/nebulastream/nesengine/ids"
)

// NLJSlice holds both sides' build-side records for one half-open
// [Start, End) event-time interval, probed as a cartesian product (spec
// §4.J: "Build side appends records to a paged vector held by NLJSlice
// keyed by sliceEnd(ts_left); right side similarly. Probe: for each
// (leftSliceEnd, rightSliceEnd) pair... iterate cartesian product").
type NLJSlice struct {
	Start, End ids.Timestamp

	mu         sync.Mutex
	state      State
	left       *PagedVector
	right      *PagedVector
}

// NewNLJSlice creates an empty slice over [start, end).
func NewNLJSlice(start, end ids.Timestamp, pageSize int) *NLJSlice {
	return &NLJSlice{
		Start: start, End: end, state: StateOpen,
		left:  NewPagedVector(pageSize),
		right: NewPagedVector(pageSize),
	}
}

// AppendLeft records one left-side build tuple.
func (s *NLJSlice) AppendLeft(rec Record) {
	s.mu.Lock()
	s.left.Append(rec)
	s.mu.Unlock()
}

// AppendRight records one right-side build tuple.
func (s *NLJSlice) AppendRight(rec Record) {
	s.mu.Lock()
	s.right.Append(rec)
	s.mu.Unlock()
}

// Seal transitions the slice out of Open once its watermark has passed;
// no further builds are expected (spec §4.J state machine).
func (s *NLJSlice) Seal() {
	s.mu.Lock()
	if s.state == StateOpen {
		s.state = StateSealed
	}
	s.mu.Unlock()
}

// State returns the slice's current lifecycle state.
func (s *NLJSlice) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Empty reports whether either side received no tuples, used to skip a
// probe task that could never match anything.
func (s *NLJSlice) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left.Len() == 0 || s.right.Len() == 0
}

// Probe evaluates predicate over the full cartesian product of left and
// right, appending (windowStart, windowEnd) to every match via combine,
// and walks the slice through Triggered -> Finalized. The caller is
// responsible for the final Released transition once every probe-task
// consumer has observed the result (spec §4.J: "Release... all probe
// tasks emitted").
func (s *NLJSlice) Probe(predicate func(left, right Record) bool, combine func(left, right Record, start, end ids.Timestamp) Record) []Record {
	s.mu.Lock()
	s.state = StateTriggered
	left, right := s.left, s.right
	start, end := s.Start, s.End
	s.mu.Unlock()

	var out []Record
	left.ForEach(func(l Record) {
		right.ForEach(func(r Record) {
			if predicate(l, r) {
				out = append(out, combine(l, r, start, end))
			}
		})
	})

	s.mu.Lock()
	s.state = StateFinalized
	s.mu.Unlock()
	return out
}

// Release marks the slice fully drained.
func (s *NLJSlice) Release() {
	s.mu.Lock()
	s.state = StateReleased
	s.mu.Unlock()
}
