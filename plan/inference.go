package plan

import (
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/ids"
	"github.com/nebulastream/nesengine/schema"
)

// windowBoundaryFields are the implicit output columns every windowed
// operator adds (spec §4.C: "implicit fields (e.g. window start/end columns)").
func windowBoundaryFields() []schema.Field {
	return []schema.Field{
		{Name: "windowStart", Type: schema.Uint64},
		{Name: "windowEnd", Type: schema.Uint64},
	}
}

func aggResultField(fn AggFunction) schema.Field {
	t := schema.Int64
	if fn.Func == AggAvg {
		t = schema.Float64
	}
	return schema.Field{Name: fn.As, Type: t}
}

// InferSchemas runs the bottom-up schema inference pass over p (spec
// §4.C). Every operator receives its children's output schemas, computes
// its own output schema, and the result is written back into the
// topology. Returns SchemaInferenceFailure on the first violated
// invariant (mismatched arity, type clash, unknown field reference).
func InferSchemas(p Plan) error {
	for _, id := range p.Topology.TopologicalOrder() {
		op, _ := p.Topology.Node(id)
		children := p.Topology.Children(id)

		inputs := make([]schema.Schema, len(children))
		for i, c := range children {
			childOp, _ := p.Topology.Node(c)
			inputs[i] = childOp.OutputSchema
		}
		op.InputSchemas = inputs

		out, err := inferOutputSchema(op)
		if err != nil {
			return err
		}
		op.OutputSchema = out
		p.Topology.Update(op)
	}
	return nil
}

func requireArity(op LogicalOperator, n int) error {
	if len(op.InputSchemas) != n {
		return engerrors.New(engerrors.SchemaInferenceFailure, "operator arity mismatch").
			WithContext("operator", op.Kind.String()).
			WithContext("expected", n).
			WithContext("actual", len(op.InputSchemas))
	}
	return nil
}

func inferOutputSchema(op LogicalOperator) (schema.Schema, error) {
	switch op.Kind {
	case OpSource:
		payload := op.Payload.(SourcePayload)
		return payload.Schema, nil

	case OpSelection:
		if err := requireArity(op, 1); err != nil {
			return schema.Schema{}, err
		}
		payload := op.Payload.(SelectionPayload)
		if err := op.InputSchemas[0].Resolve(payload.Predicate.Fields()...); err != nil {
			return schema.Schema{}, err
		}
		resultType, err := payload.Predicate.ResultType(op.InputSchemas[0])
		if err != nil {
			return schema.Schema{}, err
		}
		if resultType != schema.Bool {
			return schema.Schema{}, engerrors.New(engerrors.SchemaInferenceFailure, "filter predicate must be boolean")
		}
		return op.InputSchemas[0], nil

	case OpProjection:
		if err := requireArity(op, 1); err != nil {
			return schema.Schema{}, err
		}
		payload := op.Payload.(ProjectionPayload)
		if err := op.InputSchemas[0].Resolve(payload.FieldNames...); err != nil {
			return schema.Schema{}, err
		}
		fields := make([]schema.Field, len(payload.FieldNames))
		for i, name := range payload.FieldNames {
			f, _ := op.InputSchemas[0].Field(name)
			fields[i] = f
		}
		return schema.New(op.InputSchemas[0].Layout, fields...), nil

	case OpMap:
		if err := requireArity(op, 1); err != nil {
			return schema.Schema{}, err
		}
		payload := op.Payload.(MapPayload)
		in := op.InputSchemas[0]
		if err := in.Resolve(payload.Assignment.Fields()...); err != nil {
			return schema.Schema{}, err
		}
		resultType, err := payload.Assignment.ResultType(in)
		if err != nil {
			return schema.Schema{}, err
		}
		if idx := in.IndexOf(payload.FieldName); idx >= 0 {
			out := schema.New(in.Layout, append([]schema.Field(nil), in.Fields...)...)
			out.Fields[idx] = schema.Field{Name: payload.FieldName, Type: resultType}
			return out, nil
		}
		return in.WithFields(schema.Field{Name: payload.FieldName, Type: resultType}), nil

	case OpUnion:
		if err := requireArity(op, 2); err != nil {
			return schema.Schema{}, err
		}
		if len(op.InputSchemas[0].Fields) != len(op.InputSchemas[1].Fields) {
			return schema.Schema{}, engerrors.New(engerrors.SchemaInferenceFailure, "union operand schemas must have matching arity")
		}
		return op.InputSchemas[0], nil

	case OpBinaryJoin:
		if err := requireArity(op, 2); err != nil {
			return schema.Schema{}, err
		}
		payload := op.Payload.(JoinPayload)
		left, right := op.InputSchemas[0], op.InputSchemas[1]
		if payload.Kind == InnerEquiJoin {
			if err := left.Resolve(payload.LeftKey); err != nil {
				return schema.Schema{}, err
			}
			if err := right.Resolve(payload.RightKey); err != nil {
				return schema.Schema{}, err
			}
		}
		keyField, _ := left.Field(payload.LeftKey)
		fields := []schema.Field{keyField}
		for _, f := range left.Fields {
			if f.Name != payload.LeftKey {
				fields = append(fields, f)
			}
		}
		for _, f := range right.Fields {
			if f.Name != payload.RightKey {
				fields = append(fields, f)
			}
		}
		return schema.New(left.Layout, fields...), nil

	case OpAggregation:
		if err := requireArity(op, 1); err != nil {
			return schema.Schema{}, err
		}
		payload := op.Payload.(AggregationPayload)
		in := op.InputSchemas[0]
		if err := in.Resolve(payload.KeyFields...); err != nil {
			return schema.Schema{}, err
		}
		fields := append([]schema.Field(nil), windowBoundaryFields()...)
		for _, k := range payload.KeyFields {
			f, _ := in.Field(k)
			fields = append(fields, f)
		}
		for _, fn := range payload.Functions {
			if err := in.Resolve(fn.Field); err != nil {
				return schema.Schema{}, err
			}
			fields = append(fields, aggResultField(fn))
		}
		return schema.New(in.Layout, fields...), nil

	case OpWindowAssigner:
		if err := requireArity(op, 1); err != nil {
			return schema.Schema{}, err
		}
		return op.InputSchemas[0].WithFields(windowBoundaryFields()...), nil

	case OpWatermarkAssigner:
		if err := requireArity(op, 1); err != nil {
			return schema.Schema{}, err
		}
		payload := op.Payload.(WatermarkAssignerPayload)
		if err := op.InputSchemas[0].Resolve(payload.TimestampField); err != nil {
			return schema.Schema{}, err
		}
		return op.InputSchemas[0], nil

	case OpSink:
		if err := requireArity(op, 1); err != nil {
			return schema.Schema{}, err
		}
		return op.InputSchemas[0], nil

	default:
		return schema.Schema{}, engerrors.New(engerrors.SchemaInferenceFailure, "unknown operator kind")
	}
}

// InferOriginIDs runs the origin-id inference pass after schema
// inference (spec §4.C): a Source emits a fresh origin id; unary
// operators propagate their input's origin list; binary operators union
// their inputs' origin lists; windowing operators (Aggregation,
// WindowAssigner, BinaryJoin) consume their inputs and emit exactly one
// fresh origin id per instance.
func InferOriginIDs(p Plan) error {
	var next ids.OriginID
	freshOrigin := func() ids.OriginID {
		next++
		return next
	}

	for _, id := range p.Topology.TopologicalOrder() {
		op, _ := p.Topology.Node(id)
		children := p.Topology.Children(id)

		inputOrigins := make([][]ids.OriginID, len(children))
		for i, c := range children {
			childOp, _ := p.Topology.Node(c)
			inputOrigins[i] = childOp.OutputOriginIDs
		}
		op.InputOriginIDs = inputOrigins

		switch op.Kind {
		case OpSource:
			op.OutputOriginIDs = []ids.OriginID{freshOrigin()}
		case OpAggregation, OpWindowAssigner, OpBinaryJoin:
			op.OutputOriginIDs = []ids.OriginID{freshOrigin()}
		case OpUnion:
			union := make([]ids.OriginID, 0)
			for _, in := range inputOrigins {
				union = append(union, in...)
			}
			op.OutputOriginIDs = union
		default:
			if len(inputOrigins) == 1 {
				op.OutputOriginIDs = inputOrigins[0]
			}
		}
		p.Topology.Update(op)
	}
	return nil
}
