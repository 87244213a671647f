package join

import (
	"sync"

	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/window"
)

// Store is the shared slice store backing one BinaryJoin operator
// instance: slices are keyed by sliceEnd on the grid of a shared
// window.SliceAssigner, mirroring the windowing core's own slice-key
// convention (spec §4.J: "Slice lifecycle mirrors §4.I"). Unlike
// windowed aggregation, join builds write directly into this single
// shared store rather than a thread-local pre-aggregate: spec §5 states
// hash maps/paged vectors are "single-writer per slice on the build
// path", which a per-slice mutex already guarantees without a separate
// per-worker merge step.
type Store struct {
	assigner *window.SliceAssigner
	pageSize int

	mu            sync.Mutex
	nlj           map[ids.Timestamp]*NLJSlice
	hj            map[ids.Timestamp]*HJSlice
	lastTriggered ids.Timestamp
}

// NewStore creates a join slice store sharing assigner's grid.
func NewStore(assigner *window.SliceAssigner, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultEntriesPerPage
	}
	return &Store{
		assigner: assigner,
		pageSize: pageSize,
		nlj:      make(map[ids.Timestamp]*NLJSlice),
		hj:       make(map[ids.Timestamp]*HJSlice),
	}
}

// NLJSliceFor returns (creating if absent) the NLJSlice covering ts.
func (s *Store) NLJSliceFor(ts ids.Timestamp) (*NLJSlice, error) {
	start, end, err := s.assigner.Slice(ts)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.nlj[end]
	if !ok {
		sl = NewNLJSlice(start, end, s.pageSize)
		s.nlj[end] = sl
	}
	return sl, nil
}

// HJSliceFor returns (creating if absent) the HJSlice covering ts.
func (s *Store) HJSliceFor(ts ids.Timestamp) (*HJSlice, error) {
	start, end, err := s.assigner.Slice(ts)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.hj[end]
	if !ok {
		sl = NewHJSlice(start, end, s.pageSize)
		s.hj[end] = sl
	}
	return sl, nil
}

// AdvanceNLJ seals and returns every NLJSlice whose end is now covered
// by newGlobalWatermark and hasn't already been handed out, skipping
// slices where either side is empty (spec §4.I step 3, carried into
// join triggering per spec §4.J).
func (s *Store) AdvanceNLJ(newGlobalWatermark ids.Timestamp) []*NLJSlice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newGlobalWatermark <= s.lastTriggered {
		return nil
	}
	s.lastTriggered = newGlobalWatermark
	var out []*NLJSlice
	for end, sl := range s.nlj {
		if end > newGlobalWatermark {
			continue
		}
		sl.Seal()
		delete(s.nlj, end)
		if !sl.Empty() {
			out = append(out, sl)
		}
	}
	return out
}

// AdvanceHJ is AdvanceNLJ's hash-join counterpart.
func (s *Store) AdvanceHJ(newGlobalWatermark ids.Timestamp) []*HJSlice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newGlobalWatermark <= s.lastTriggered {
		return nil
	}
	s.lastTriggered = newGlobalWatermark
	var out []*HJSlice
	for end, sl := range s.hj {
		if end > newGlobalWatermark {
			continue
		}
		sl.Seal()
		delete(s.hj, end)
		if !sl.Empty() {
			out = append(out, sl)
		}
	}
	return out
}

// FlushAll seals and returns every remaining slice of both kinds
// regardless of watermark, used on graceful stop (spec §4.I: "the
// staging area is flushed by treating the current watermark as +∞").
func (s *Store) FlushAll() (nlj []*NLJSlice, hj []*HJSlice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for end, sl := range s.nlj {
		sl.Seal()
		delete(s.nlj, end)
		if !sl.Empty() {
			nlj = append(nlj, sl)
		}
	}
	for end, sl := range s.hj {
		sl.Seal()
		delete(s.hj, end)
		if !sl.Empty() {
			hj = append(hj, sl)
		}
	}
	return nlj, hj
}
