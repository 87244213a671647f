package watermark

import (
	"testing"

	"github.com/nebulastream/nesengine/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMultiOriginWatermarkScenarioS6 reproduces spec §8 scenario S6:
// origins A, B; events (origin, ts, seq) in order (A,5,1) (B,3,1) (A,7,2)
// (B,6,2). The global watermark is the minimum of the two origins'
// watermarks, so the values returned after each update are 0, 3, 3, 6.
func TestMultiOriginWatermarkScenarioS6(t *testing.T) {
	const originA, originB ids.OriginID = 1, 2
	p := NewMultiOriginWatermarkProcessor(originA, originB)

	w1, err := p.UpdateWatermark(5, 1, originA)
	require.NoError(t, err)
	assert.Equal(t, ids.Timestamp(0), w1, "B has not reported anything yet")

	w2, err := p.UpdateWatermark(3, 1, originB)
	require.NoError(t, err)
	assert.Equal(t, ids.Timestamp(3), w2)

	w3, err := p.UpdateWatermark(7, 2, originA)
	require.NoError(t, err)
	assert.Equal(t, ids.Timestamp(3), w3, "B is still the minimum")

	w4, err := p.UpdateWatermark(6, 2, originB)
	require.NoError(t, err)
	assert.Equal(t, ids.Timestamp(6), w4)
}

func TestWatermarkMonotonicUnderGapCollapse(t *testing.T) {
	const origin ids.OriginID = 1
	p := NewMultiOriginWatermarkProcessor(origin)

	w1, err := p.UpdateWatermark(100, 2, origin) // seq 2 arrives before seq 1
	require.NoError(t, err)
	assert.Equal(t, ids.Timestamp(0), w1, "gap at seq 1 blocks advancement")

	w2, err := p.UpdateWatermark(50, 1, origin)
	require.NoError(t, err)
	assert.Equal(t, ids.Timestamp(100), w2, "collapsing the gap advances to the max ts of the contiguous prefix")
}

func TestWatermarkRejectsUnrecoverableGap(t *testing.T) {
	const origin ids.OriginID = 1
	p := NewMultiOriginWatermarkProcessor(origin)
	p.maxPendingGap = 2
	p.origins[origin].maxPendingGap = 2

	_, err := p.UpdateWatermark(1, 5, origin)
	require.NoError(t, err)
	_, err = p.UpdateWatermark(2, 6, origin)
	require.NoError(t, err)
	_, err = p.UpdateWatermark(3, 7, origin)
	assert.Error(t, err)
}

func TestWatermarkNeverDecreases(t *testing.T) {
	const origin ids.OriginID = 1
	p := NewMultiOriginWatermarkProcessor(origin)

	var last ids.Timestamp
	seq := ids.SequenceNumber(0)
	for _, ts := range []ids.Timestamp{10, 30, 20, 40, 25} {
		seq++
		w, err := p.UpdateWatermark(ts, seq, origin)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, int64(w), int64(last))
		last = w
	}
}
