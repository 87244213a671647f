package join

import (
	"fmt"
	"hash/fnv"
	"sort"
	"testing"

	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHashJoinScenarioS5 reproduces spec §8 scenario S5: left
// {id,x}: (1,10),(2,20),(2,21); right {id,y}: (2,200),(3,300); tumbling
// 1000ms, all ts=0. Expected joined pairs: (2,20,200),(2,21,200).
func TestHashJoinScenarioS5(t *testing.T) {
	assigner := window.NewSliceAssigner(window.WindowDefinition{Size: 1000, Slide: 1000})
	store := NewStore(assigner, 4)

	sl, err := store.HJSliceFor(0)
	require.NoError(t, err)

	sl.BuildLeft(int64(1), Record{"id": int64(1), "x": int64(10)})
	sl.BuildLeft(int64(2), Record{"id": int64(2), "x": int64(20)})
	sl.BuildLeft(int64(2), Record{"id": int64(2), "x": int64(21)})
	sl.BuildRight(int64(2), Record{"id": int64(2), "y": int64(200)})
	sl.BuildRight(int64(3), Record{"id": int64(3), "y": int64(300)})

	sealed := store.AdvanceHJ(1000)
	require.Len(t, sealed, 1)

	results := sealed[0].Probe(func(l, r Record, start, end ids.Timestamp) Record {
		return Record{"id": l["id"], "x": l["x"], "y": r["y"], "windowStart": start, "windowEnd": end}
	})

	sort.Slice(results, func(i, j int) bool { return results[i]["x"].(int64) < results[j]["x"].(int64) })
	require.Len(t, results, 2)
	assert.Equal(t, int64(20), results[0]["x"])
	assert.Equal(t, int64(200), results[0]["y"])
	assert.Equal(t, int64(21), results[1]["x"])
	assert.Equal(t, int64(200), results[1]["y"])
	assert.Equal(t, StateFinalized, sealed[0].State())
}

func TestNLJCartesianProbe(t *testing.T) {
	assigner := window.NewSliceAssigner(window.WindowDefinition{Size: 100, Slide: 100})
	store := NewStore(assigner, 8)

	sl, err := store.NLJSliceFor(0)
	require.NoError(t, err)
	sl.AppendLeft(Record{"v": int64(1)})
	sl.AppendLeft(Record{"v": int64(2)})
	sl.AppendRight(Record{"v": int64(10)})

	sealed := store.AdvanceNLJ(100)
	require.Len(t, sealed, 1)

	results := sealed[0].Probe(
		func(l, r Record) bool { return true },
		func(l, r Record, start, end ids.Timestamp) Record {
			return Record{"l": l["v"], "r": r["v"]}
		},
	)
	require.Len(t, results, 2)
}

func TestStoreSkipsEmptySlice(t *testing.T) {
	assigner := window.NewSliceAssigner(window.WindowDefinition{Size: 10, Slide: 10})
	store := NewStore(assigner, 4)

	_, err := store.HJSliceFor(0)
	require.NoError(t, err)
	// no builds on either side: the slice exists but is empty.

	sealed := store.AdvanceHJ(10)
	assert.Empty(t, sealed)
}

func TestHashKeyVariableSized(t *testing.T) {
	a := HashKey([]byte("left-key"))
	b := HashKey([]byte("left-key"))
	c := HashKey([]byte("different"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

// TestHashKeyFixedWidthUsesFNV pins fixed-width/scalar keying to the
// FNV-1a mix named by spec §4.J, and to the "fnv:" prefix that keeps it
// from ever colliding with a "h3:"-prefixed variable-sized key.
func TestHashKeyFixedWidthUsesFNV(t *testing.T) {
	h := fnv.New64a()
	fmt.Fprint(h, int64(2))
	want := fmt.Sprintf("fnv:%x", h.Sum64())

	assert.Equal(t, want, HashKey(int64(2)))
	assert.Equal(t, HashKey(int64(2)), HashKey(int64(2)))
	assert.NotEqual(t, HashKey(int64(2)), HashKey(int64(3)))
	assert.NotEqual(t, HashKey(int64(2)), HashKey([]byte{0})) // fnv: vs h3: prefixes never collide
}
