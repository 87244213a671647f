package plan

import (
	"testing"

	"github.com/nebulastream/nesengine/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMapPlanInfersSchemaAndOrigin(t *testing.T) {
	src := schema.New(schema.RowLayout,
		schema.Field{Name: "id", Type: schema.Uint64},
		schema.Field{Name: "value", Type: schema.Int64},
	)

	p := Source("events", src).
		Filter(Binary(OpGt, FieldRef("value"), Literal(schema.Int64, int64(0)))).
		Map("value", Binary(OpMul, FieldRef("value"), Literal(schema.Int64, int64(2)))).
		Emit("out")

	require.NoError(t, InferSchemas(p))
	require.NoError(t, InferOriginIDs(p))

	sinkOp, ok := p.Topology.Node(p.Root)
	require.True(t, ok)
	assert.Equal(t, 2, len(sinkOp.OutputSchema.Fields))
	assert.Equal(t, "value", sinkOp.OutputSchema.Fields[1].Name)

	srcOp, _ := p.Topology.Node(p.Topology.Children(p.Root)[0])
	for srcOp.Kind != OpSource {
		srcOp, _ = p.Topology.Node(p.Topology.Children(srcOp.ID)[0])
	}
	assert.Len(t, srcOp.OutputOriginIDs, 1)
	assert.Equal(t, srcOp.OutputOriginIDs, sinkOp.OutputOriginIDs, "stateless operators must propagate the source origin unchanged")
}

func TestAggregationAssignsFreshOriginAndWindowFields(t *testing.T) {
	src := schema.New(schema.RowLayout,
		schema.Field{Name: "ts", Type: schema.Uint64},
		schema.Field{Name: "v", Type: schema.Int64},
	)
	window := WindowSpec{Kind: TumblingTime, Size: 10, Slide: 10}

	p := Source("events", src).
		Aggregate(nil, []AggFunction{{Field: "v", Func: AggSum, As: "sum"}}, window).
		Emit("out")

	require.NoError(t, InferSchemas(p))
	require.NoError(t, InferOriginIDs(p))

	sinkOp, _ := p.Topology.Node(p.Root)
	names := make([]string, len(sinkOp.OutputSchema.Fields))
	for i, f := range sinkOp.OutputSchema.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"windowStart", "windowEnd", "sum"}, names)

	aggID := p.Topology.Children(p.Root)[0]
	srcID := p.Topology.Children(aggID)[0]
	srcOp, _ := p.Topology.Node(srcID)
	aggOp, _ := p.Topology.Node(aggID)
	assert.NotEqual(t, srcOp.OutputOriginIDs[0], aggOp.OutputOriginIDs[0], "aggregation must emit a fresh origin id")
}

func TestJoinPlanCombinesSchemasAndDropsDuplicateKey(t *testing.T) {
	left := schema.New(schema.RowLayout,
		schema.Field{Name: "id", Type: schema.Uint64},
		schema.Field{Name: "x", Type: schema.Int64},
	)
	right := schema.New(schema.RowLayout,
		schema.Field{Name: "id", Type: schema.Uint64},
		schema.Field{Name: "y", Type: schema.Int64},
	)
	window := WindowSpec{Kind: TumblingTime, Size: 1000, Slide: 1000}

	l := Source("left", left)
	r := Source("right", right)
	p := l.Join(r, InnerEquiJoin, "id", "id", window).Emit("out")

	require.NoError(t, InferSchemas(p))
	require.NoError(t, InferOriginIDs(p))

	sinkOp, _ := p.Topology.Node(p.Root)
	names := make([]string, len(sinkOp.OutputSchema.Fields))
	for i, f := range sinkOp.OutputSchema.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"id", "x", "y"}, names)
}

func TestSchemaInferenceRejectsUnknownField(t *testing.T) {
	src := schema.New(schema.RowLayout, schema.Field{Name: "id", Type: schema.Uint64})
	p := Source("events", src).
		Filter(Binary(OpGt, FieldRef("nope"), Literal(schema.Uint64, uint64(0)))).
		Emit("out")

	err := InferSchemas(p)
	assert.Error(t, err)
}

func TestUnionRequiresMatchingArity(t *testing.T) {
	left := schema.New(schema.RowLayout, schema.Field{Name: "a", Type: schema.Int64})
	right := schema.New(schema.RowLayout,
		schema.Field{Name: "a", Type: schema.Int64},
		schema.Field{Name: "b", Type: schema.Int64},
	)
	p := Source("l", left).Union(Source("r", right)).Emit("out")

	err := InferSchemas(p)
	assert.Error(t, err)
}
