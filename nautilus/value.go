package nautilus

// ValueType is the closed set of scalar types a traced Value may carry.
type ValueType int

const (
	TypeInt64 ValueType = iota
	TypeFloat64
	TypeBool
)

// Value is a traced value: during tracing it carries a register in the
// ExecutionTrace being built; arithmetic and comparison operators
// written against Value always append to that trace rather than compute,
// so the same operator code can run identically under tracing or under
// direct (concrete) interpretation elsewhere in the engine.
type Value struct {
	typ   ValueType
	trace *Tracer
	reg   register
}

type register int

// Int64Const / Float64Const / BoolConst create trace-time constants.
func (t *Tracer) Int64Const(v int64) Value {
	return Value{typ: TypeInt64, trace: t, reg: t.emitConst(TypeInt64, v)}
}

func (t *Tracer) Float64Const(v float64) Value {
	return Value{typ: TypeFloat64, trace: t, reg: t.emitConst(TypeFloat64, v)}
}

func (t *Tracer) BoolConst(v bool) Value {
	return Value{typ: TypeBool, trace: t, reg: t.emitConst(TypeBool, v)}
}

// Param declares one of the traced function's input parameters.
func (t *Tracer) Param(typ ValueType) Value {
	return Value{typ: typ, trace: t, reg: t.emitParam(typ)}
}

func (v Value) binary(op OpKind, other Value, resultType ValueType) Value {
	reg := v.trace.emit(op, resultType, v.reg, other.reg)
	return Value{typ: resultType, trace: v.trace, reg: reg}
}

func (v Value) unary(op OpKind, resultType ValueType) Value {
	reg := v.trace.emit(op, resultType, v.reg, invalidRegister)
	return Value{typ: resultType, trace: v.trace, reg: reg}
}

func (v Value) Add(o Value) Value { return v.binary(OpAdd, o, v.typ) }
func (v Value) Sub(o Value) Value { return v.binary(OpSub, o, v.typ) }
func (v Value) Mul(o Value) Value { return v.binary(OpMul, o, v.typ) }
func (v Value) Div(o Value) Value { return v.binary(OpDiv, o, v.typ) }
func (v Value) Mod(o Value) Value { return v.binary(OpMod, o, v.typ) }

func (v Value) Eq(o Value) Value  { return v.binary(OpCmpEq, o, TypeBool) }
func (v Value) Neq(o Value) Value { return v.binary(OpCmpNeq, o, TypeBool) }
func (v Value) Lt(o Value) Value  { return v.binary(OpCmpLt, o, TypeBool) }
func (v Value) Lte(o Value) Value { return v.binary(OpCmpLte, o, TypeBool) }
func (v Value) Gt(o Value) Value  { return v.binary(OpCmpGt, o, TypeBool) }
func (v Value) Gte(o Value) Value { return v.binary(OpCmpGte, o, TypeBool) }

func (v Value) And(o Value) Value { return v.binary(OpAnd, o, TypeBool) }
func (v Value) Or(o Value) Value  { return v.binary(OpOr, o, TypeBool) }
func (v Value) Not() Value        { return v.unary(OpNot, TypeBool) }
func (v Value) Neg() Value        { return v.unary(OpNeg, v.typ) }

func (v Value) BitAnd(o Value) Value { return v.binary(OpBitAnd, o, v.typ) }
func (v Value) BitOr(o Value) Value  { return v.binary(OpBitOr, o, v.typ) }
func (v Value) BitXor(o Value) Value { return v.binary(OpBitXor, o, v.typ) }
func (v Value) Shl(o Value) Value    { return v.binary(OpShl, o, v.typ) }
func (v Value) Shr(o Value) Value    { return v.binary(OpShr, o, v.typ) }

// CastToFloat64 converts an int64 traced value to float64.
func (v Value) CastToFloat64() Value { return v.unary(OpCastIntToFloat, TypeFloat64) }

// CastToInt64 converts a float64 traced value to int64.
func (v Value) CastToInt64() Value { return v.unary(OpCastFloatToInt, TypeInt64) }

const invalidRegister register = -1
