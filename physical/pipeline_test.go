package physical

import (
	"sort"
	"testing"

	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/plan"
	"github.com/nebulastream/nesengine/runtime"
	"github.com/nebulastream/nesengine/schema"
	"github.com/stretchr/testify/require"
)

// capturingSink collects every buffer written to it, decoded back into
// Records through ReadRow, for assertion convenience.
type capturingSink struct {
	schema schema.Schema
	recs   []Record
}

func (s *capturingSink) Setup() error { return nil }

func (s *capturingSink) WriteData(buf buffer.TupleBuffer) (bool, error) {
	n := int(buf.NumberOfTuples())
	for i := 0; i < n; i++ {
		s.recs = append(s.recs, ReadRow(buf, s.schema, i))
	}
	buf.Release()
	return true, nil
}

func (s *capturingSink) Shutdown() error { return nil }

// noopRouter satisfies Router for pipelines that never dispatch (S1 has
// no windowing/join boundary).
type noopRouter struct{}

func (noopRouter) RouteRecords(runtime.PipelineID, []Record) error { return nil }

// TestFilterMapPipelineScenarioS1 runs spec.md scenario S1 end to end:
// select value > 0 | map value := value * 2 | emit, over
// (1,5),(2,-3),(3,10), expecting (1,10),(3,20).
func TestFilterMapPipelineScenarioS1(t *testing.T) {
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

	lowered, err := Lower(p, LowerConfig{NumWorkers: 1})
	require.NoError(t, err)
	require.Len(t, lowered.Pipelines, 1)
	lowered.Router.R = noopRouter{}

	pool := buffer.NewPool(0, 4096, 4)
	sink := &capturingSink{schema: lowered.SinkSchema}
	require.NoError(t, sink.Setup())

	pipeline := lowered.Pipelines[0]
	pec := runtime.NewPipelineExecutionContext(pipeline.ID, 0, pool, pipeline.Handlers, func(buf buffer.TupleBuffer) {
		_, _ = sink.WriteData(buf)
	})

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
		require.NoError(t, WriteRow(in, src, i, Record{"id": r.id, "value": r.value}, pool))
	}
	require.NoError(t, in.SetUsedBytes(uint64(len(rows)*src.TupleSize())))

	require.NoError(t, pipeline.RunBuffer(pec, in))

	sort.Slice(sink.recs, func(i, j int) bool {
		return sink.recs[i]["id"].(uint64) < sink.recs[j]["id"].(uint64)
	})
	require.Len(t, sink.recs, 2)
	require.Equal(t, uint64(1), sink.recs[0]["id"])
	require.Equal(t, int64(10), sink.recs[0]["value"])
	require.Equal(t, uint64(3), sink.recs[1]["id"])
	require.Equal(t, int64(20), sink.recs[1]["value"])
}
