package plan

import (
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/schema"
)

// Plan is a complete logical query: a Topology plus the id of its
// terminal (Sink) node.
type Plan struct {
	Topology *Topology
	Root     NodeID
}

// Builder is a monadic plan builder: every method returns a new Builder
// wrapping the same Topology with an additional node, so a query is
// written as a left-to-right chain (spec §4.C: "composed by withChildren").
type Builder struct {
	topology *Topology
	current  NodeID
}

// Source starts a new builder chain at a Source operator.
func Source(name string, s schema.Schema) Builder {
	t := NewTopology()
	id := t.Add(OpSource, SourcePayload{Name: name, Schema: s})
	return Builder{topology: t, current: id}
}

// ID returns the current chain's terminal node id.
func (b Builder) ID() NodeID { return b.current }

// Topology exposes the shared side table, e.g. to join two independent
// builder chains.
func (b Builder) Topology() *Topology { return b.topology }

func (b Builder) withChildren(kind OperatorKind, payload any, children ...NodeID) Builder {
	id := b.topology.Add(kind, payload, children...)
	return Builder{topology: b.topology, current: id}
}

// Filter appends a Selection operator.
func (b Builder) Filter(predicate Expr) Builder {
	return b.withChildren(OpSelection, SelectionPayload{Predicate: predicate}, b.current)
}

// Project appends a Projection operator.
func (b Builder) Project(fields ...string) Builder {
	return b.withChildren(OpProjection, ProjectionPayload{FieldNames: fields}, b.current)
}

// Map appends a Map (field assignment) operator.
func (b Builder) Map(fieldName string, assignment Expr) Builder {
	return b.withChildren(OpMap, MapPayload{FieldName: fieldName, Assignment: assignment}, b.current)
}

// Union appends a binary Union operator over b and other.
func (b Builder) Union(other Builder) Builder {
	return b.withChildren(OpUnion, nil, b.current, other.current)
}

// Join appends a BinaryJoin operator over b (left) and other (right).
func (b Builder) Join(other Builder, kind JoinKind, leftKey, rightKey string, window WindowSpec) Builder {
	payload := JoinPayload{Kind: kind, LeftKey: leftKey, RightKey: rightKey, Window: window}
	return b.withChildren(OpBinaryJoin, payload, b.current, other.current)
}

// Aggregate appends an Aggregation operator, keyed when len(keyFields) > 0.
func (b Builder) Aggregate(keyFields []string, functions []AggFunction, window WindowSpec) Builder {
	payload := AggregationPayload{KeyFields: keyFields, Functions: functions, Window: window}
	return b.withChildren(OpAggregation, payload, b.current)
}

// AssignWindow appends a standalone WindowAssigner operator.
func (b Builder) AssignWindow(window WindowSpec) Builder {
	return b.withChildren(OpWindowAssigner, WindowAssignerPayload{Window: window}, b.current)
}

// AssignWatermark appends a WatermarkAssigner operator.
func (b Builder) AssignWatermark(timestampField string, maxOutOfOrderness int64) Builder {
	payload := WatermarkAssignerPayload{TimestampField: timestampField, MaxOutOfOrderness: ids.Timestamp(maxOutOfOrderness)}
	return b.withChildren(OpWatermarkAssigner, payload, b.current)
}

// Emit terminates the chain with a Sink and returns the completed Plan.
func (b Builder) Emit(name string) Plan {
	id := b.withChildren(OpSink, SinkPayload{Name: name}, b.current).current
	return Plan{Topology: b.topology, Root: id}
}
