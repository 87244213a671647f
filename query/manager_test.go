package query

import (
	"sync"
	"testing"
	"time"

	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/physical"
	"github.com/nebulastream/nesengine/plan"
	"github.com/nebulastream/nesengine/schema"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	schema schema.Schema
	recs   []physical.Record
}

func (s *recordingSink) Setup() error { return nil }

func (s *recordingSink) WriteData(buf buffer.TupleBuffer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int(buf.NumberOfTuples())
	for i := 0; i < n; i++ {
		s.recs = append(s.recs, physical.ReadRow(buf, s.schema, i))
	}
	buf.Release()
	return true, nil
}

func (s *recordingSink) Shutdown() error { return nil }

func (s *recordingSink) snapshot() []physical.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]physical.Record, len(s.recs))
	copy(out, s.recs)
	return out
}

// TestManagerRunsFilterMapPipelineToSink drives a Manager end to end over
// a single submitted buffer through the filter/map pipeline of scenario
// S1, exercising the worker pool, dispatch and graceful stop sequence.
func TestManagerRunsFilterMapPipelineToSink(t *testing.T) {
	src := schema.New(schema.RowLayout,
		schema.Field{Name: "id", Type: schema.Uint64},
		schema.Field{Name: "value", Type: schema.Int64},
	)
	p := plan.Source("events", src).
		Filter(plan.Binary(plan.OpGt, plan.FieldRef("value"), plan.Literal(schema.Int64, int64(0)))).
		Map("value", plan.Binary(plan.OpMul, plan.FieldRef("value"), plan.Literal(schema.Int64, int64(2)))).
		Emit("out")
	require.NoError(t, plan.InferSchemas(p))
	require.NoError(t, plan.InferOriginIDs(p))

	lowered, err := physical.Lower(p, physical.LowerConfig{NumWorkers: 2})
	require.NoError(t, err)

	pool := buffer.NewPool(0, 4096, 8)
	m := NewManager(lowered, pool, 2, nil)

	sink := &recordingSink{schema: lowered.SinkSchema}
	require.NoError(t, m.SetSink(sink))
	require.NoError(t, m.Start())

	in, err := pool.GetBufferBlocking()
	require.NoError(t, err)
	rows := []struct {
		id    uint64
		value int64
	}{{1, 5}, {2, -3}, {3, 10}}
	in.SetOriginID(ids.OriginID(1))
	in.SetSequenceNumber(1)
	in.SetChunkNumber(1)
	in.SetLastChunk(true)
	in.SetNumberOfTuples(uint64(len(rows)))
	for i, r := range rows {
		require.NoError(t, physical.WriteRow(in, src, i, physical.Record{"id": r.id, "value": r.value}, pool))
	}
	require.NoError(t, in.SetUsedBytes(uint64(len(rows)*src.TupleSize())))

	require.NoError(t, m.SubmitBuffer("events", in))
	require.NoError(t, m.StopGraceful())

	recs := sink.snapshot()
	require.Len(t, recs, 2)
}

// TestManagerSubmitBufferRejectsUnknownSource ensures an unregistered
// source name surfaces synchronously rather than silently dropping the
// buffer.
func TestManagerSubmitBufferRejectsUnknownSource(t *testing.T) {
	src := schema.New(schema.RowLayout, schema.Field{Name: "id", Type: schema.Uint64})
	p := plan.Source("events", src).Emit("out")
	require.NoError(t, plan.InferSchemas(p))
	require.NoError(t, plan.InferOriginIDs(p))

	lowered, err := physical.Lower(p, physical.LowerConfig{NumWorkers: 1})
	require.NoError(t, err)

	pool := buffer.NewPool(0, 4096, 4)
	m := NewManager(lowered, pool, 1, nil)
	require.NoError(t, m.SetSink(&recordingSink{schema: lowered.SinkSchema}))
	require.NoError(t, m.Start())
	defer m.StopHard()

	buf, err := pool.GetBufferBlocking()
	require.NoError(t, err)
	err = m.SubmitBuffer("does-not-exist", buf)
	require.Error(t, err)
	buf.Release()
}

// TestManagerStopHardDropsQueuedWork exercises the hard-stop path: it
// must return within five seconds rather than block.
func TestManagerStopHardDropsQueuedWork(t *testing.T) {
	src := schema.New(schema.RowLayout, schema.Field{Name: "id", Type: schema.Uint64})
	p := plan.Source("events", src).Emit("out")
	require.NoError(t, plan.InferSchemas(p))
	require.NoError(t, plan.InferOriginIDs(p))

	lowered, err := physical.Lower(p, physical.LowerConfig{NumWorkers: 1})
	require.NoError(t, err)

	pool := buffer.NewPool(0, 4096, 4)
	m := NewManager(lowered, pool, 1, nil)
	require.NoError(t, m.SetSink(&recordingSink{schema: lowered.SinkSchema}))
	require.NoError(t, m.Start())

	done := make(chan struct{})
	go func() {
		_ = m.StopHard()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StopHard did not return")
	}
}
