package plan

import (
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/schema"
)

// NodeID addresses a LogicalOperator inside a Plan's Topology.
type NodeID uint64

// OperatorKind is the closed set of logical operator variants (spec
// §4.C minimum operator set).
type OperatorKind int

const (
	OpSource OperatorKind = iota
	OpSelection
	OpProjection
	OpMap
	OpUnion
	OpBinaryJoin
	OpAggregation
	OpWindowAssigner
	OpWatermarkAssigner
	OpSink
)

func (k OperatorKind) String() string {
	switch k {
	case OpSource:
		return "Source"
	case OpSelection:
		return "Selection"
	case OpProjection:
		return "Projection"
	case OpMap:
		return "Map"
	case OpUnion:
		return "Union"
	case OpBinaryJoin:
		return "BinaryJoin"
	case OpAggregation:
		return "Aggregation"
	case OpWindowAssigner:
		return "WindowAssigner"
	case OpWatermarkAssigner:
		return "WatermarkAssigner"
	case OpSink:
		return "Sink"
	default:
		return "Unknown"
	}
}

// WindowKind selects the temporal semantics of a windowed operator.
type WindowKind int

const (
	TumblingTime WindowKind = iota
	SlidingTime
	CountBased
)

// WindowSpec describes a window assignment; Size/Slide are in
// milliseconds. physical.Lower reads only Size and Slide and assigns
// slices by event time for every Kind; CountBased windows are not
// counted in tuples.
type WindowSpec struct {
	Kind  WindowKind
	Size  int64
	Slide int64 // == Size for tumbling
}

// AggFuncKind is the closed set of aggregation functions.
type AggFuncKind int

const (
	AggSum AggFuncKind = iota
	AggCount
	AggMin
	AggMax
	AggAvg
)

// AggFunction computes one output column of an Aggregation operator.
type AggFunction struct {
	Field string
	Func  AggFuncKind
	As    string
}

// JoinKind distinguishes an equi-join from a cartesian product.
type JoinKind int

const (
	InnerEquiJoin JoinKind = iota
	CartesianJoin
)

// Payload variants, one per OperatorKind that carries operator-specific
// data beyond schemas and origins.
type SourcePayload struct {
	Name   string
	Schema schema.Schema
}

type SelectionPayload struct {
	Predicate Expr
}

type ProjectionPayload struct {
	FieldNames []string
}

type MapPayload struct {
	FieldName  string
	Assignment Expr
}

type JoinPayload struct {
	Kind     JoinKind
	LeftKey  string
	RightKey string
	Window   WindowSpec
}

type AggregationPayload struct {
	KeyFields []string
	Functions []AggFunction
	Window    WindowSpec
}

type WindowAssignerPayload struct {
	Window WindowSpec
}

type WatermarkAssignerPayload struct {
	TimestampField   string
	MaxOutOfOrderness ids.Timestamp
}

type SinkPayload struct {
	Name string
}

// LogicalOperator is a value-typed node addressed by id; children are
// recorded in the Topology side table, not via embedded pointers, so the
// plan carries no reference cycles (spec §9).
type LogicalOperator struct {
	ID   NodeID
	Kind OperatorKind

	InputSchemas []schema.Schema
	OutputSchema schema.Schema

	InputOriginIDs  [][]ids.OriginID
	OutputOriginIDs []ids.OriginID

	Traits map[string]bool

	Payload any
}

func (op LogicalOperator) HasTrait(name string) bool {
	return op.Traits != nil && op.Traits[name]
}
