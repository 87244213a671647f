package physical

import (
	"sync"

	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/join"
	"github.com/nebulastream/nesengine/plan"
	"github.com/nebulastream/nesengine/runtime"
	"github.com/nebulastream/nesengine/window"
	"github.com/sirupsen/logrus"
)

// Dispatch forwards a batch of finalized records (a window merge result,
// or a join probe's matches) to whatever consumes them next — normally
// a downstream Pipeline's RunRecords, scheduled as a task by the query
// package's worker pool. Kept as a function value so physical has no
// dependency on the scheduler.
type Dispatch func(recs []Record) error

func toRecords(maps []map[string]any) []Record {
	out := make([]Record, len(maps))
	for i, m := range maps {
		out[i] = Record(m)
	}
	return out
}

// AggregationHandler is the OperatorHandler backing an Aggregation
// operator (spec §4.I): one shared SliceAssigner and StagingArea, and a
// lazily created per-worker window.Trigger, so each worker's
// pre-aggregation stays single-writer (spec §5).
type AggregationHandler struct {
	KeyFields      []string
	Functions      []plan.AggFunction
	TimestampField string

	assigner *window.SliceAssigner
	staging  *window.StagingArea

	mu       sync.Mutex
	triggers map[int]*window.Trigger
}

// NewAggregationHandler creates a handler sharing assigner/staging
// across every worker's trigger and dispatching finalized windows
// through dispatch. numWorkers is the count of thread-local stores the
// shared StagingArea must hear from before merging a slice (spec §4.I
// step 2).
func NewAggregationHandler(assigner *window.SliceAssigner, numWorkers int, keyFields []string, functions []plan.AggFunction, timestampField string, dispatch Dispatch) *AggregationHandler {
	h := &AggregationHandler{
		KeyFields: keyFields, Functions: functions, TimestampField: timestampField,
		assigner: assigner,
		triggers: make(map[int]*window.Trigger),
	}
	h.staging = window.NewStagingArea(numWorkers, functions, func(task window.SliceMergeTask) {
		recs := toRecords(task.Records(keyFields, functions))
		if err := dispatch(recs); err != nil {
			logrus.WithError(err).Error("aggregation: dispatch of merged window failed")
		}
	})
	return h
}

func (h *AggregationHandler) triggerFor(workerID int) *window.Trigger {
	h.mu.Lock()
	defer h.mu.Unlock()
	tr, ok := h.triggers[workerID]
	if !ok {
		tr = window.NewTrigger(h.assigner, h.staging)
		h.triggers[workerID] = tr
	}
	return tr
}

// Insert feeds one tuple's group key and function values into the
// calling worker's thread-local slice store.
func (h *AggregationHandler) Insert(workerID int, ts ids.Timestamp, key []any, values []any) error {
	return h.triggerFor(workerID).Insert(ts, key, h.Functions, values)
}

// AdvanceWatermark implements WatermarkAdvancer.
func (h *AggregationHandler) AdvanceWatermark(workerID int, newGlobalWatermark ids.Timestamp) error {
	h.triggerFor(workerID).Advance(newGlobalWatermark)
	return nil
}

func (h *AggregationHandler) Start() error { return nil }
func (h *AggregationHandler) Stop() error  { return nil }

// Drain flushes every worker's thread-local store and the shared staging
// area, per the graceful-stop sequence (spec §4.G step 2, §4.I: "the
// staging area is flushed by treating the current watermark as +∞").
func (h *AggregationHandler) Drain() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, tr := range h.triggers {
		tr.Flush()
	}
	h.staging.FlushAll()
	return nil
}

// AggregationOperator is the terminal physical operator for a windowed
// Aggregation (spec §4.C, §4.I): every tuple is routed into its
// OperatorHandler's per-worker trigger rather than forwarded downstream
// directly — results surface later as a SliceMergeTask dispatch.
type AggregationOperator struct {
	Handler *AggregationHandler
}

func NewAggregationOperator(h *AggregationHandler) *AggregationOperator {
	return &AggregationOperator{Handler: h}
}

func (a *AggregationOperator) Open(ctx *runtime.ExecutionContext) error  { return nil }
func (a *AggregationOperator) Close(ctx *runtime.ExecutionContext) error { return nil }

func (a *AggregationOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	ts, err := recordTimestamp(rec, a.Handler.TimestampField)
	if err != nil {
		return err
	}
	key := make([]any, len(a.Handler.KeyFields))
	for i, k := range a.Handler.KeyFields {
		key[i] = rec[k]
	}
	values := make([]any, len(a.Handler.Functions))
	for i, fn := range a.Handler.Functions {
		values[i] = rec[fn.Field]
	}
	if err := a.Handler.Insert(ctx.WorkerThreadID, ts, key, values); err != nil {
		if engerrors.Is(err, engerrors.WindowAssignmentDrop) {
			logrus.WithError(err).Warn("aggregation: tuple dropped")
			return nil
		}
		return err
	}
	return nil
}

func recordTimestamp(rec Record, field string) (ids.Timestamp, error) {
	v, ok := rec[field]
	if !ok {
		return 0, engerrors.New(engerrors.OperatorExecutionFailure, "record missing timestamp field").
			WithContext("field", field)
	}
	switch x := v.(type) {
	case int64:
		return ids.Timestamp(x), nil
	case uint64:
		return ids.Timestamp(x), nil
	case int32:
		return ids.Timestamp(x), nil
	case uint32:
		return ids.Timestamp(x), nil
	default:
		return 0, engerrors.New(engerrors.OperatorExecutionFailure, "timestamp field is not an integer type")
	}
}

// Side distinguishes a join's build-side input.
type Side int

const (
	LeftSide Side = iota
	RightSide
)

// JoinHandler is the OperatorHandler backing a BinaryJoin operator
// (spec §4.J): a shared join.Store, sealed and probed per slice once the
// watermark passes.
type JoinHandler struct {
	Kind              plan.JoinKind
	LeftKey, RightKey string
	TimestampField    string

	store    *join.Store
	predicate func(left, right Record) bool
	dispatch  Dispatch
}

// NewJoinHandler creates a handler over a fresh join.Store sharing
// assigner's slice grid.
func NewJoinHandler(kind plan.JoinKind, assigner *window.SliceAssigner, leftKey, rightKey, timestampField string, pageSize int, predicate func(left, right Record) bool, dispatch Dispatch) *JoinHandler {
	return &JoinHandler{
		Kind: kind, LeftKey: leftKey, RightKey: rightKey, TimestampField: timestampField,
		store: join.NewStore(assigner, pageSize), predicate: predicate, dispatch: dispatch,
	}
}

func (h *JoinHandler) combine(l, r join.Record, start, end ids.Timestamp) join.Record {
	out := make(join.Record, len(l)+len(r)+2)
	for k, v := range l {
		out[k] = v
	}
	for k, v := range r {
		if k == h.RightKey {
			continue
		}
		out[k] = v
	}
	out["windowStart"] = uint64(start)
	out["windowEnd"] = uint64(end)
	return out
}

func joinRecordsToPhysical(recs []join.Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Record(r)
	}
	return out
}

// AdvanceWatermark seals every slice whose end has passed and probes
// each one, dispatching matches downstream (spec §4.J: "join-trigger
// tasks are dispatched once both sides' contributions for a sliceEnd
// have been seen" — simplified here to "once the watermark
// passes", since builds write directly into the shared, single-writer-
// per-slice store rather than a per-worker pre-aggregate).
func (h *JoinHandler) AdvanceWatermark(workerID int, newGlobalWatermark ids.Timestamp) error {
	switch h.Kind {
	case plan.InnerEquiJoin:
		for _, sl := range h.store.AdvanceHJ(newGlobalWatermark) {
			recs := sl.Probe(h.combine)
			sl.Release()
			if len(recs) == 0 {
				continue
			}
			if err := h.dispatch(joinRecordsToPhysical(recs)); err != nil {
				logrus.WithError(err).Error("hash join: dispatch failed")
			}
		}
	case plan.CartesianJoin:
		for _, sl := range h.store.AdvanceNLJ(newGlobalWatermark) {
			recs := sl.Probe(func(l, r join.Record) bool { return h.predicate(Record(l), Record(r)) }, h.combine)
			sl.Release()
			if len(recs) == 0 {
				continue
			}
			if err := h.dispatch(joinRecordsToPhysical(recs)); err != nil {
				logrus.WithError(err).Error("nested-loop join: dispatch failed")
			}
		}
	}
	return nil
}

func (h *JoinHandler) Start() error { return nil }
func (h *JoinHandler) Stop() error  { return nil }

// Drain probes every remaining slice regardless of watermark (treats the
// current watermark as +infinity, spec §4.I carried into §4.J).
func (h *JoinHandler) Drain() error {
	nlj, hj := h.store.FlushAll()
	for _, sl := range hj {
		recs := sl.Probe(h.combine)
		sl.Release()
		if len(recs) > 0 {
			_ = h.dispatch(joinRecordsToPhysical(recs))
		}
	}
	for _, sl := range nlj {
		recs := sl.Probe(func(l, r join.Record) bool { return h.predicate(Record(l), Record(r)) }, h.combine)
		sl.Release()
		if len(recs) > 0 {
			_ = h.dispatch(joinRecordsToPhysical(recs))
		}
	}
	return nil
}

// JoinBuildOperator is the terminal physical operator for one side of a
// BinaryJoin: every tuple is appended into the shared JoinHandler's
// store under its slice and join key (spec §4.J build path).
type JoinBuildOperator struct {
	Handler *JoinHandler
	Side    Side
	KeyField string
}

func NewJoinBuildOperator(h *JoinHandler, side Side, keyField string) *JoinBuildOperator {
	return &JoinBuildOperator{Handler: h, Side: side, KeyField: keyField}
}

func (b *JoinBuildOperator) Open(ctx *runtime.ExecutionContext) error  { return nil }
func (b *JoinBuildOperator) Close(ctx *runtime.ExecutionContext) error { return nil }

func (b *JoinBuildOperator) Execute(ctx *runtime.ExecutionContext, rec Record) error {
	ts, err := recordTimestamp(rec, b.Handler.TimestampField)
	if err != nil {
		return err
	}
	switch b.Handler.Kind {
	case plan.InnerEquiJoin:
		sl, err := b.Handler.store.HJSliceFor(ts)
		if err != nil {
			return dropOrFail(err)
		}
		if b.Side == LeftSide {
			sl.BuildLeft(rec[b.KeyField], join.Record(rec))
		} else {
			sl.BuildRight(rec[b.KeyField], join.Record(rec))
		}
	case plan.CartesianJoin:
		sl, err := b.Handler.store.NLJSliceFor(ts)
		if err != nil {
			return dropOrFail(err)
		}
		if b.Side == LeftSide {
			sl.AppendLeft(join.Record(rec))
		} else {
			sl.AppendRight(join.Record(rec))
		}
	}
	return nil
}

func dropOrFail(err error) error {
	if engerrors.Is(err, engerrors.WindowAssignmentDrop) {
		logrus.WithError(err).Warn("join: tuple dropped")
		return nil
	}
	return err
}
