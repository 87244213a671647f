package physical

import (
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/nautilus"
	"github.com/nebulastream/nesengine/plan"
	"github.com/nebulastream/nesengine/schema"
)

// CompiledExpr is a Nautilus-compiled evaluator for one plan.Expr: Eval
// extracts rec's referenced fields in Params order, invokes the
// compiled function, and returns its result (spec §4.E: operator code —
// here, Selection predicates and Map assignments — is traced once and
// lowered to an executable program rather than tree-walked per tuple).
type CompiledExpr struct {
	Params  []string
	fn      nautilus.CompiledFunction
	resultT nautilus.ValueType
}

func valueTypeFor(t schema.PhysicalType) (nautilus.ValueType, bool) {
	switch t {
	case schema.Bool:
		return nautilus.TypeBool, true
	case schema.Int8, schema.Int16, schema.Int32, schema.Int64,
		schema.Uint8, schema.Uint16, schema.Uint32, schema.Uint64:
		return nautilus.TypeInt64, true
	case schema.Float32, schema.Float64:
		return nautilus.TypeFloat64, true
	default:
		return 0, false
	}
}

func dedupFields(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// CompileExpr traces e against s's field types and lowers it through the
// full Nautilus pipeline (SSACreationPhase, TraceToIRConversionPhase,
// LoopInferencePhase) to backend-compiled form (spec §4.D, §4.E). A nil
// backend defaults to nautilus.ClosureBackend{}, the config package's
// "native" selection. Only scalar field types that Nautilus knows how to
// trace (bool/integer/float) are supported here; an expression over a
// FixedChar or VarSized field is rejected with CompilationFailure.
func CompileExpr(e plan.Expr, s schema.Schema, backend nautilus.Backend) (*CompiledExpr, error) {
	if backend == nil {
		backend = nautilus.ClosureBackend{}
	}
	params := dedupFields(e.Fields())
	paramTypes := make([]nautilus.ValueType, len(params))
	for i, name := range params {
		f, ok := s.Field(name)
		if !ok {
			return nil, engerrors.New(engerrors.SchemaInferenceFailure, "unknown field referenced by expression").
				WithContext("field", name)
		}
		vt, ok := valueTypeFor(f.Type)
		if !ok {
			return nil, engerrors.New(engerrors.CompilationFailure, "field type not traceable by Nautilus").
				WithContext("field", name).WithContext("type", f.Type.String())
		}
		paramTypes[i] = vt
	}

	resultT, err := e.ResultType(s)
	if err != nil {
		return nil, err
	}
	resultVT, ok := valueTypeFor(resultT)
	if !ok {
		return nil, engerrors.New(engerrors.CompilationFailure, "expression result type not traceable by Nautilus")
	}

	var traceErr error
	trace := nautilus.Build(paramTypes, func(t *nautilus.Tracer, args []nautilus.Value) nautilus.Value {
		bound := make(map[string]nautilus.Value, len(params))
		for i, name := range params {
			bound[name] = args[i]
		}
		v, err := traceExpr(t, e, bound)
		if err != nil {
			traceErr = err
			return t.BoolConst(false)
		}
		return v
	})
	if traceErr != nil {
		return nil, traceErr
	}

	nautilus.SSACreationPhase(trace)
	prog, err := nautilus.TraceToIRConversionPhase(trace)
	if err != nil {
		return nil, err
	}
	nautilus.LoopInferencePhase(prog)

	fn, err := backend.Compile(prog, nautilus.NewRegistry())
	if err != nil {
		return nil, err
	}
	return &CompiledExpr{Params: params, fn: fn, resultT: resultVT}, nil
}

func traceExpr(t *nautilus.Tracer, e plan.Expr, bound map[string]nautilus.Value) (nautilus.Value, error) {
	switch e.Kind {
	case plan.ExprFieldRef:
		v, ok := bound[e.FieldName]
		if !ok {
			return nautilus.Value{}, engerrors.New(engerrors.CompilationFailure, "unbound field reference").
				WithContext("field", e.FieldName)
		}
		return v, nil
	case plan.ExprLiteral:
		return traceLiteral(t, e)
	case plan.ExprUnary:
		operand, err := traceExpr(t, *e.Operand, bound)
		if err != nil {
			return nautilus.Value{}, err
		}
		if e.UnOp == plan.OpNot {
			return operand.Not(), nil
		}
		return operand.Neg(), nil
	case plan.ExprBinary:
		left, err := traceExpr(t, *e.Left, bound)
		if err != nil {
			return nautilus.Value{}, err
		}
		right, err := traceExpr(t, *e.Right, bound)
		if err != nil {
			return nautilus.Value{}, err
		}
		return traceBinary(e.BinOp, left, right)
	default:
		return nautilus.Value{}, engerrors.New(engerrors.CompilationFailure, "unknown expression kind")
	}
}

func traceLiteral(t *nautilus.Tracer, e plan.Expr) (nautilus.Value, error) {
	switch e.LitType {
	case schema.Bool:
		return t.BoolConst(e.LitValue.(bool)), nil
	case schema.Float32:
		return t.Float64Const(float64(e.LitValue.(float32))), nil
	case schema.Float64:
		return t.Float64Const(e.LitValue.(float64)), nil
	default:
		return t.Int64Const(toInt64Literal(e.LitValue)), nil
	}
}

func toInt64Literal(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint64:
		return int64(x)
	case uint32:
		return int64(x)
	case uint16:
		return int64(x)
	case uint8:
		return int64(x)
	case int:
		return int64(x)
	default:
		return 0
	}
}

func traceBinary(op plan.BinaryOp, left, right nautilus.Value) (nautilus.Value, error) {
	switch op {
	case plan.OpAdd:
		return left.Add(right), nil
	case plan.OpSub:
		return left.Sub(right), nil
	case plan.OpMul:
		return left.Mul(right), nil
	case plan.OpDiv:
		return left.Div(right), nil
	case plan.OpMod:
		return left.Mod(right), nil
	case plan.OpEq:
		return left.Eq(right), nil
	case plan.OpNeq:
		return left.Neq(right), nil
	case plan.OpLt:
		return left.Lt(right), nil
	case plan.OpLte:
		return left.Lte(right), nil
	case plan.OpGt:
		return left.Gt(right), nil
	case plan.OpGte:
		return left.Gte(right), nil
	case plan.OpAnd:
		return left.And(right), nil
	case plan.OpOr:
		return left.Or(right), nil
	default:
		return nautilus.Value{}, engerrors.New(engerrors.CompilationFailure, "unsupported binary operator")
	}
}

// Eval extracts ce.Params from rec in order and runs the compiled
// function over them.
func (ce *CompiledExpr) Eval(rec Record) (any, error) {
	args := make([]any, len(ce.Params))
	for i, p := range ce.Params {
		args[i] = normalizeArg(rec[p])
	}
	return ce.fn(args)
}

// normalizeArg widens any integer-family field value to int64 and any
// float32 to float64 so it matches the ValueType the expression was
// traced against; this mirrors the widening a real compiler's calling
// convention would perform at the traced-function boundary.
func normalizeArg(v any) any {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x
	case float64:
		return x
	case float32:
		return float64(x)
	default:
		return toInt64Literal(v)
	}
}
