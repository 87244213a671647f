package physical

import (
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/nautilus"
	"github.com/nebulastream/nesengine/plan"
	"github.com/nebulastream/nesengine/runtime"
	"github.com/nebulastream/nesengine/schema"
	"github.com/nebulastream/nesengine/watermark"
	"github.com/nebulastream/nesengine/window"
)

// Router dispatches a finalized record batch (a window merge, a join
// probe result, a Union's merged stream) to whichever pipeline consumes
// it next. The query manager implements this once every pipeline's
// PipelineExecutionContext exists; Lower only knows pipeline identities.
type Router interface {
	RouteRecords(pipelineID runtime.PipelineID, recs []Record) error
}

// RouterBox is a late-bound indirection cell: Lower wires every
// cross-pipeline dispatch through a RouterBox rather than a concrete
// Router, since the physical plan is built before the runtime wiring
// (PipelineExecutionContexts, worker assignment) exists to construct
// one (spec §4.F/§4.G: the query manager wires pipelines together after
// lowering). Callers must set Box.R before running any pipeline whose
// chain can reach a dispatch.
type RouterBox struct {
	R Router
}

func (b *RouterBox) dispatch(id runtime.PipelineID) Dispatch {
	return func(recs []Record) error {
		if b.R == nil {
			return engerrors.New(engerrors.OperatorExecutionFailure, "lowered query: router not wired before dispatch").
				WithContext("pipeline", uint64(id))
		}
		return b.R.RouteRecords(id, recs)
	}
}

// LowerConfig parameterizes physical lowering with the runtime facts the
// logical plan itself doesn't carry.
type LowerConfig struct {
	// NumWorkers is the number of per-worker ThreadLocalSliceStores an
	// Aggregation's StagingArea must hear from before merging a slice
	// (spec §4.I step 2).
	NumWorkers int
	// JoinPageSize sizes every join's PagedVector pages (spec §4.J); 0
	// uses join.DefaultEntriesPerPage.
	JoinPageSize int
	// Router receives every cross-pipeline record dispatch. A zero value
	// allocates a fresh RouterBox the caller must still populate.
	Router *RouterBox
	// Backend selects the Nautilus backend Selection/Map expressions are
	// compiled against (config.Backend "interpreter" or "native"). A nil
	// value defaults to nautilus.ClosureBackend{}.
	Backend nautilus.Backend
}

// LoweredQuery is the output of Lower: every compiled Pipeline plus the
// bookkeeping the query manager needs to drive them (spec §4.D/§4.G).
type LoweredQuery struct {
	Pipelines []*Pipeline
	// EntrySources maps a Source operator's name to the pipeline whose
	// Scan consumes that source's buffers.
	EntrySources map[string]*Pipeline
	SinkName     string
	SinkSchema   schema.Schema
	SinkOriginID ids.OriginID
	// SinkPipeline is the pipeline whose Emit writes directly to the
	// query's Sink, rather than dispatching Records to another pipeline.
	SinkPipeline *Pipeline
	Router       *RouterBox
}

type pipelineBuilder struct {
	pipeline *Pipeline
	tail     Operator
}

func (b *pipelineBuilder) append(op Operator) {
	switch {
	case b.tail == nil:
		b.pipeline.Entry = op
	default:
		if s, ok := b.tail.(settable); ok {
			s.SetNext(op)
		}
	}
	b.tail = op
}

type nodeState struct {
	pb       *pipelineBuilder
	schema   schema.Schema
	tsField  string
	originID ids.OriginID
}

func firstOrigin(origins []ids.OriginID) ids.OriginID {
	if len(origins) == 0 {
		return ids.InvalidOrigin
	}
	return origins[0]
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func cartesianPredicate(left, right Record) bool { return true }

// Lower implements logical-to-physical lowering (spec §4.D): operators
// are visited bottom-up; a run of stateless operators (Selection,
// Projection, Map, WindowAssigner, WatermarkAssigner, the pass-through
// half of Union) fuses into the pipeline its producer already belongs
// to, while Source, Union, BinaryJoin, Aggregation and Sink each start
// or close a pipeline boundary.
func Lower(p plan.Plan, cfg LowerConfig) (*LoweredQuery, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.Router == nil {
		cfg.Router = &RouterBox{}
	}

	var pipelines []*Pipeline
	var nextID runtime.PipelineID
	newBuilder := func(scan *ScanOperator) *pipelineBuilder {
		nextID++
		pl := NewPipeline(nextID, scan, nil)
		pipelines = append(pipelines, pl)
		b := &pipelineBuilder{pipeline: pl}
		if scan != nil {
			b.tail = scan
		}
		return b
	}

	states := make(map[plan.NodeID]*nodeState, len(p.Topology.TopologicalOrder()))
	entrySources := make(map[string]*Pipeline)

	var lastState *nodeState

	for _, id := range p.Topology.TopologicalOrder() {
		op, _ := p.Topology.Node(id)
		children := p.Topology.Children(id)

		switch op.Kind {
		case plan.OpSource:
			payload := op.Payload.(plan.SourcePayload)
			scan := NewScan(op.OutputSchema)
			b := newBuilder(scan)
			entrySources[payload.Name] = b.pipeline
			states[id] = &nodeState{pb: b, schema: op.OutputSchema, originID: firstOrigin(op.OutputOriginIDs)}

		case plan.OpSelection:
			child := states[children[0]]
			payload := op.Payload.(plan.SelectionPayload)
			selOp, err := NewSelection(payload.Predicate, child.schema, cfg.Backend)
			if err != nil {
				return nil, err
			}
			child.pb.append(selOp)
			states[id] = &nodeState{pb: child.pb, schema: op.OutputSchema, tsField: child.tsField, originID: child.originID}

		case plan.OpProjection:
			child := states[children[0]]
			payload := op.Payload.(plan.ProjectionPayload)
			child.pb.append(NewProjection(payload.FieldNames))
			tsField := child.tsField
			if tsField != "" && !containsField(payload.FieldNames, tsField) {
				tsField = ""
			}
			states[id] = &nodeState{pb: child.pb, schema: op.OutputSchema, tsField: tsField, originID: child.originID}

		case plan.OpMap:
			child := states[children[0]]
			payload := op.Payload.(plan.MapPayload)
			mapOp, err := NewMap(payload.FieldName, payload.Assignment, child.schema, cfg.Backend)
			if err != nil {
				return nil, err
			}
			child.pb.append(mapOp)
			states[id] = &nodeState{pb: child.pb, schema: op.OutputSchema, tsField: child.tsField, originID: child.originID}

		case plan.OpWatermarkAssigner:
			child := states[children[0]]
			payload := op.Payload.(plan.WatermarkAssignerPayload)
			proc := watermark.NewMultiOriginWatermarkProcessor(child.originID)
			wmOp := NewWatermarkAssigner(payload.TimestampField, payload.MaxOutOfOrderness, proc)
			wmOp.Pipeline = child.pb.pipeline
			child.pb.append(wmOp)
			states[id] = &nodeState{pb: child.pb, schema: op.OutputSchema, tsField: payload.TimestampField, originID: child.originID}

		case plan.OpWindowAssigner:
			child := states[children[0]]
			if child.tsField == "" {
				return nil, engerrors.New(engerrors.CompilationFailure, "window assigner has no upstream watermark timestamp field")
			}
			payload := op.Payload.(plan.WindowAssignerPayload)
			assigner := window.NewSliceAssigner(window.WindowDefinition{Size: payload.Window.Size, Slide: payload.Window.Slide})
			child.pb.append(NewWindowAssigner(assigner, child.tsField))
			states[id] = &nodeState{pb: child.pb, schema: op.OutputSchema, tsField: child.tsField, originID: child.originID}

		case plan.OpUnion:
			left, right := states[children[0]], states[children[1]]
			db := newBuilder(nil)
			dispatch := cfg.Router.dispatch(db.pipeline.ID)
			left.pb.append(NewBoundaryDispatch(dispatch))
			right.pb.append(NewBoundaryDispatch(dispatch))
			states[id] = &nodeState{pb: db, schema: op.OutputSchema, originID: firstOrigin(op.OutputOriginIDs)}

		case plan.OpBinaryJoin:
			left, right := states[children[0]], states[children[1]]
			payload := op.Payload.(plan.JoinPayload)
			tsField := left.tsField
			if tsField == "" {
				tsField = right.tsField
			}
			if tsField == "" {
				return nil, engerrors.New(engerrors.CompilationFailure, "join has no upstream watermark timestamp field on either side")
			}
			assigner := window.NewSliceAssigner(window.WindowDefinition{Size: payload.Window.Size, Slide: payload.Window.Slide})
			db := newBuilder(nil)
			dispatch := cfg.Router.dispatch(db.pipeline.ID)
			jh := NewJoinHandler(payload.Kind, assigner, payload.LeftKey, payload.RightKey, tsField, cfg.JoinPageSize, cartesianPredicate, dispatch)

			left.pb.append(NewJoinBuildOperator(jh, LeftSide, payload.LeftKey))
			right.pb.append(NewJoinBuildOperator(jh, RightSide, payload.RightKey))
			left.pb.pipeline.Handlers = append(left.pb.pipeline.Handlers, jh)
			left.pb.pipeline.Advancers = append(left.pb.pipeline.Advancers, jh)
			if right.pb.pipeline != left.pb.pipeline {
				right.pb.pipeline.Handlers = append(right.pb.pipeline.Handlers, jh)
				right.pb.pipeline.Advancers = append(right.pb.pipeline.Advancers, jh)
			}
			states[id] = &nodeState{pb: db, schema: op.OutputSchema, originID: firstOrigin(op.OutputOriginIDs)}

		case plan.OpAggregation:
			child := states[children[0]]
			if child.tsField == "" {
				return nil, engerrors.New(engerrors.CompilationFailure, "aggregation has no upstream watermark timestamp field")
			}
			payload := op.Payload.(plan.AggregationPayload)
			assigner := window.NewSliceAssigner(window.WindowDefinition{Size: payload.Window.Size, Slide: payload.Window.Slide})
			db := newBuilder(nil)
			dispatch := cfg.Router.dispatch(db.pipeline.ID)
			ah := NewAggregationHandler(assigner, cfg.NumWorkers, payload.KeyFields, payload.Functions, child.tsField, dispatch)

			child.pb.append(NewAggregationOperator(ah))
			child.pb.pipeline.Handlers = append(child.pb.pipeline.Handlers, ah)
			child.pb.pipeline.Advancers = append(child.pb.pipeline.Advancers, ah)
			states[id] = &nodeState{pb: db, schema: op.OutputSchema, originID: firstOrigin(op.OutputOriginIDs)}

		case plan.OpSink:
			child := states[children[0]]
			emit := NewEmit(child.schema, child.originID)
			child.pb.append(emit)
			states[id] = &nodeState{pb: child.pb, schema: op.OutputSchema, originID: child.originID}

		default:
			return nil, engerrors.New(engerrors.CompilationFailure, "unsupported operator kind during physical lowering").
				WithContext("kind", op.Kind.String())
		}
		lastState = states[id]
	}

	sinkOp, _ := p.Topology.Node(p.Root)
	sinkPayload, _ := sinkOp.Payload.(plan.SinkPayload)

	return &LoweredQuery{
		Pipelines:    pipelines,
		EntrySources: entrySources,
		SinkName:     sinkPayload.Name,
		SinkSchema:   lastState.schema,
		SinkOriginID: lastState.originID,
		SinkPipeline: lastState.pb.pipeline,
		Router:       cfg.Router,
	}, nil
}
