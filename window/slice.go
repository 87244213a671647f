package window

import (
	"fmt"
	"sync"

	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/plan"
)

// KeyedPartial is one group key's running partials, one per configured
// aggregate function, in the same order as the Aggregation's Functions.
type KeyedPartial struct {
	Key      []any
	Partials []PartialAggregate
}

func encodeKey(key []any) string {
	return fmt.Sprint(key)
}

// Slice is a half-open event-time interval holding partial aggregate
// state, one KeyedPartial per observed group key (spec §3, §4.I). A
// non-keyed aggregation uses a single entry under an empty key.
type Slice struct {
	Start, End ids.Timestamp

	mu       sync.Mutex
	partials map[string]*KeyedPartial
}

// NewSlice creates an empty slice over [start, end).
func NewSlice(start, end ids.Timestamp) *Slice {
	return &Slice{Start: start, End: end, partials: make(map[string]*KeyedPartial)}
}

// Upsert folds one tuple's function values into key's running partials,
// creating the KeyedPartial on first sight of key (spec §4.I hot path).
func (s *Slice) Upsert(key []any, functions []plan.AggFunction, values []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := encodeKey(key)
	kp, ok := s.partials[k]
	if !ok {
		kp = &KeyedPartial{Key: key, Partials: make([]PartialAggregate, len(functions))}
		s.partials[k] = kp
	}
	for i, fn := range functions {
		kp.Partials[i].Add(fn.Func, values[i])
	}
}

// Merge folds every key in other into s, combining partials function by
// function (spec §4.I step 3: "merges per-key partials across workers").
func (s *Slice) Merge(other *Slice, functions []plan.AggFunction) {
	other.mu.Lock()
	snapshot := make(map[string]*KeyedPartial, len(other.partials))
	for k, kp := range other.partials {
		snapshot[k] = kp
	}
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, kp := range snapshot {
		mine, ok := s.partials[k]
		if !ok {
			cp := &KeyedPartial{Key: kp.Key, Partials: append([]PartialAggregate(nil), kp.Partials...)}
			s.partials[k] = cp
			continue
		}
		for i := range functions {
			mine.Partials[i].Merge(kp.Partials[i], functions[i].Func)
		}
	}
}

// Empty reports whether the slice holds no keys, used to skip dispatching
// a merge task for a slice nobody ever wrote to (spec §4.I step 3).
func (s *Slice) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.partials) == 0
}

// Entries returns every keyed partial currently held, snapshotting under
// the slice's lock.
func (s *Slice) Entries() []*KeyedPartial {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*KeyedPartial, 0, len(s.partials))
	for _, kp := range s.partials {
		out = append(out, kp)
	}
	return out
}

// ThreadLocalSliceStore is one worker's single-writer slice store, keyed
// by sliceEnd (spec §4.I: "Each worker owns a ThreadLocalSliceStore...
// containing slices keyed by sliceEnd").
type ThreadLocalSliceStore struct {
	mu     sync.Mutex
	slices map[ids.Timestamp]*Slice
}

// NewThreadLocalSliceStore creates an empty store.
func NewThreadLocalSliceStore() *ThreadLocalSliceStore {
	return &ThreadLocalSliceStore{slices: make(map[ids.Timestamp]*Slice)}
}

// SliceFor returns (creating if absent) the slice keyed by end.
func (s *ThreadLocalSliceStore) SliceFor(start, end ids.Timestamp) *Slice {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slices[end]
	if !ok {
		sl = NewSlice(start, end)
		s.slices[end] = sl
	}
	return sl
}

// TakeCompleted removes and returns every slice whose end is at or
// before watermark (spec §4.I trigger step 1).
func (s *ThreadLocalSliceStore) TakeCompleted(watermark ids.Timestamp) []*Slice {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Slice
	for end, sl := range s.slices {
		if end <= watermark {
			out = append(out, sl)
			delete(s.slices, end)
		}
	}
	return out
}

// Len reports the number of open slices, for diagnostics/tests.
func (s *ThreadLocalSliceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slices)
}
