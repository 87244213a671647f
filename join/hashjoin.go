package join

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/nebulastream/nesengine/ids"
)

// h3Seed seeds the xxhash mix applied to variable-sized join keys, so
// two engine instances hashing the same byte key do not collide with an
// unrelated process using an unseeded hash (spec §4.J: "the hash is the
// standard FNV-style mix with seeded H3 when keys are variable-sized").
const h3Seed = 0x9e3779b97f4a7c15

// HashKey renders a join-key value to a comparable bucket key (spec
// §4.J: "the hash is the standard FNV-style mix with seeded H3 when
// keys are variable-sized"). Fixed-width/scalar keys (int/uint/string)
// are mixed through FNV-1a; []byte keys (variable-sized join columns)
// go through the seeded xxhash64 H3 mix instead, since two distinct
// byte slices must never collide merely because of formatting
// coincidence the way two FNV-mixed scalars of the same textual form
// would.
func HashKey(v any) string {
	if b, ok := v.([]byte); ok {
		h := xxhash.NewS64(h3Seed)
		h.Write(b)
		return fmt.Sprintf("h3:%x", h.Sum64())
	}
	h := fnv.New64a()
	fmt.Fprint(h, v)
	return fmt.Sprintf("fnv:%x", h.Sum64())
}

// HJSlice holds both sides' build-side records for one slice, bucketed
// by join key into per-key paged vectors (spec §4.J: "Build side inserts
// into a chained hash map per slice... value = a paged vector of full
// build-side records sharing that key").
type HJSlice struct {
	Start, End ids.Timestamp

	mu       sync.Mutex
	state    State
	pageSize int
	left     map[string]*PagedVector
	right    map[string]*PagedVector
}

// NewHJSlice creates an empty slice over [start, end).
func NewHJSlice(start, end ids.Timestamp, pageSize int) *HJSlice {
	return &HJSlice{
		Start: start, End: end, state: StateOpen, pageSize: pageSize,
		left:  make(map[string]*PagedVector),
		right: make(map[string]*PagedVector),
	}
}

func bucketFor(m map[string]*PagedVector, key string, pageSize int) *PagedVector {
	v, ok := m[key]
	if !ok {
		v = NewPagedVector(pageSize)
		m[key] = v
	}
	return v
}

// BuildLeft appends rec into the left-side bucket for key.
func (s *HJSlice) BuildLeft(key any, rec Record) {
	k := HashKey(key)
	s.mu.Lock()
	bucketFor(s.left, k, s.pageSize).Append(rec)
	s.mu.Unlock()
}

// BuildRight appends rec into the right-side bucket for key.
func (s *HJSlice) BuildRight(key any, rec Record) {
	k := HashKey(key)
	s.mu.Lock()
	bucketFor(s.right, k, s.pageSize).Append(rec)
	s.mu.Unlock()
}

// Seal transitions the slice out of Open.
func (s *HJSlice) Seal() {
	s.mu.Lock()
	if s.state == StateOpen {
		s.state = StateSealed
	}
	s.mu.Unlock()
}

// State returns the slice's current lifecycle state.
func (s *HJSlice) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Empty reports whether either side received no tuples.
func (s *HJSlice) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.left) == 0 || len(s.right) == 0
}

// Probe walks the right-side hash map, and for each key with a matching
// left-side bucket iterates the full cross product of that key's
// chains, combining every pair (spec §4.J: "Probe side iterates its
// slice..., for each right entry performs a find on the left map; on
// hit, iterate the matched bucket's paged vector and emit joined
// records" — the two-level, per-map x per-key-chain iteration shape is
// carried from HJProbe.cpp per SPEC_FULL.md §4).
func (s *HJSlice) Probe(combine func(left, right Record, start, end ids.Timestamp) Record) []Record {
	s.mu.Lock()
	s.state = StateTriggered
	left, right := s.left, s.right
	start, end := s.Start, s.End
	s.mu.Unlock()

	var out []Record
	for key, rightVec := range right {
		leftVec, ok := left[key]
		if !ok {
			continue
		}
		rightVec.ForEach(func(r Record) {
			leftVec.ForEach(func(l Record) {
				out = append(out, combine(l, r, start, end))
			})
		})
	}

	s.mu.Lock()
	s.state = StateFinalized
	s.mu.Unlock()
	return out
}

// Release marks the slice fully drained.
func (s *HJSlice) Release() {
	s.mu.Lock()
	s.state = StateReleased
	s.mu.Unlock()
}
