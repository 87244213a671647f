package buffer

import (
	"sync"
	"testing"

	"github.com/nebulastream/nesengine/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetBufferNoBlockingExhaustion(t *testing.T) {
	p := NewPool(-1, 128, 2)

	b1, ok := p.GetBufferNoBlocking()
	require.True(t, ok)
	b2, ok := p.GetBufferNoBlocking()
	require.True(t, ok)

	_, ok = p.GetBufferNoBlocking()
	assert.False(t, ok, "pool should be exhausted at capacity 2")

	b1.Release()
	b3, ok := p.GetBufferNoBlocking()
	assert.True(t, ok, "releasing a buffer should make it available again")
	assert.Equal(t, int64(1), b3.ReferenceCount())

	b2.Release()
	b3.Release()
}

func TestPoolGetBufferBlockingUnblocksOnRelease(t *testing.T) {
	p := NewPool(-1, 64, 1)

	held, err := p.GetBufferBlocking()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	gotCh := make(chan TupleBuffer, 1)
	go func() {
		defer wg.Done()
		buf, err := p.GetBufferBlocking()
		require.NoError(t, err)
		gotCh <- buf
	}()

	held.Release()
	wg.Wait()
	buf := <-gotCh
	assert.False(t, buf.Empty())
	buf.Release()
}

func TestPoolCloseUnblocksWaiters(t *testing.T) {
	p := NewPool(-1, 64, 1)
	_, err := p.GetBufferBlocking()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.GetBufferBlocking()
		errCh <- err
	}()

	p.Close()
	err = <-errCh
	assert.Error(t, err)
}

func TestTupleBufferRetainReleaseRefcount(t *testing.T) {
	p := NewPool(-1, 64, 1)
	buf, err := p.GetBufferBlocking()
	require.NoError(t, err)
	assert.Equal(t, int64(1), buf.ReferenceCount())

	kept := buf.Retain()
	assert.Equal(t, int64(2), buf.ReferenceCount())

	kept.Release()
	assert.Equal(t, int64(1), buf.ReferenceCount())

	buf.Release()
	assert.Equal(t, int64(0), buf.ReferenceCount())
}

func TestTupleBufferAttachChildReleasesRecursively(t *testing.T) {
	p := NewPool(-1, 64, 2)
	parent, err := p.GetBufferBlocking()
	require.NoError(t, err)
	child, err := p.GetBufferBlocking()
	require.NoError(t, err)

	idx, err := parent.AttachChild(child)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	got, ok := parent.Child(0)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ReferenceCount())

	parent.Release()
	assert.Equal(t, int64(0), got.ReferenceCount(), "releasing the parent must release its children")
}

func TestTupleBufferMetadataRoundTrip(t *testing.T) {
	p := NewPool(-1, 64, 1)
	buf, err := p.GetBufferBlocking()
	require.NoError(t, err)
	defer buf.Release()

	buf.SetOriginID(ids.OriginID(7))
	buf.SetSequenceNumber(ids.SequenceNumber(42))
	buf.SetChunkNumber(ids.ChunkNumber(1))
	buf.SetLastChunk(true)
	buf.SetWatermark(ids.Timestamp(1000))
	require.NoError(t, buf.SetUsedBytes(10))

	assert.Equal(t, ids.OriginID(7), buf.OriginID())
	assert.Equal(t, ids.SequenceNumber(42), buf.SequenceNumber())
	assert.Equal(t, ids.ChunkNumber(1), buf.ChunkNumber())
	assert.True(t, buf.LastChunk())
	assert.Equal(t, ids.Timestamp(1000), buf.Watermark())
	assert.Equal(t, uint64(10), buf.UsedBytes())

	err = buf.SetUsedBytes(uint64(buf.Capacity() + 1))
	assert.Error(t, err, "used bytes beyond capacity must fail")
}

func TestReinterpretAsTupleBufferRoundTrip(t *testing.T) {
	p := NewPool(-1, 64, 1)
	buf, err := p.GetBufferBlocking()
	require.NoError(t, err)

	ptr := buf.Pointer()
	recovered := ReinterpretAsTupleBuffer(ptr)
	assert.Equal(t, int64(2), buf.ReferenceCount())

	recovered.Release()
	buf.Release()
}

func TestManagerRoutesBySizeClassAndNode(t *testing.T) {
	m := NewManager(4)
	small := m.GetPool(0, 100)
	big := m.GetPool(0, 100000)
	assert.NotSame(t, small, big, "different size classes must use different pools")

	sameNode := m.GetPool(0, 200)
	assert.Same(t, small, sameNode, "requests in the same size class on the same node share a pool")

	otherNode := m.GetPool(1, 100)
	assert.NotSame(t, small, otherNode, "different NUMA nodes must not share a pool")
}

func TestArenaBumpAllocationAndExhaustion(t *testing.T) {
	p := NewPool(-1, 32, 1)
	buf, err := p.GetBufferBlocking()
	require.NoError(t, err)
	defer buf.Release()

	arena := NewArena(buf)
	first, err := arena.Alloc(16)
	require.NoError(t, err)
	assert.Len(t, first, 16)
	assert.Equal(t, 16, arena.Used())

	second, err := arena.Alloc(16)
	require.NoError(t, err)
	assert.Len(t, second, 16)

	_, err = arena.Alloc(1)
	assert.Error(t, err, "arena should be exhausted after filling the backing buffer")

	arena.Reset()
	assert.Equal(t, 0, arena.Used())
}

func TestBatchSliceAndSplit(t *testing.T) {
	p := NewPool(-1, 16, 4)
	b := NewBatch(4)
	for i := 0; i < 4; i++ {
		buf, err := p.GetBufferBlocking()
		require.NoError(t, err)
		b.Append(buf)
	}

	first, second := b.Split(2)
	assert.Equal(t, 2, first.Len())
	assert.Equal(t, 2, second.Len())

	sub := b.Slice(1, 3)
	assert.Equal(t, 2, sub.Len())

	b.ReleaseAll()
	assert.Equal(t, 0, b.Len())
}

func TestGetUnpooledBufferNotRecycled(t *testing.T) {
	p := NewPool(-1, 16, 1)
	buf, err := p.GetUnpooledBuffer(4096)
	require.NoError(t, err)
	assert.Equal(t, 4096, buf.Capacity())
	buf.Release() // must not panic despite no owning pool

	_, err = p.GetUnpooledBuffer(0)
	assert.Error(t, err)
}
