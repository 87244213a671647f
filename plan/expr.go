package plan

import (
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/schema"
)

// Expr is the closed expression set evaluated by Selection predicates and
// Map assignments. It is a tagged variant (spec §9: runtime polymorphism
// via inheritance becomes tagged variants) rather than an interface
// hierarchy, so schema inference and Nautilus lowering can switch
// exhaustively over ExprKind.
type ExprKind int

const (
	ExprFieldRef ExprKind = iota
	ExprLiteral
	ExprBinary
	ExprUnary
)

type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
)

type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

// Expr is a value type; exactly one of its payload fields is meaningful,
// selected by Kind.
type Expr struct {
	Kind ExprKind

	FieldName string // ExprFieldRef

	LitType  schema.PhysicalType // ExprLiteral
	LitValue any

	BinOp       BinaryOp // ExprBinary
	Left, Right *Expr

	UnOp    UnaryOp // ExprUnary
	Operand *Expr
}

func FieldRef(name string) Expr { return Expr{Kind: ExprFieldRef, FieldName: name} }

func Literal(t schema.PhysicalType, v any) Expr {
	return Expr{Kind: ExprLiteral, LitType: t, LitValue: v}
}

func Binary(op BinaryOp, left, right Expr) Expr {
	return Expr{Kind: ExprBinary, BinOp: op, Left: &left, Right: &right}
}

func Unary(op UnaryOp, operand Expr) Expr {
	return Expr{Kind: ExprUnary, UnOp: op, Operand: &operand}
}

func isComparison(op BinaryOp) bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpAnd, OpOr:
		return true
	default:
		return false
	}
}

// ResultType infers the physical type an expression produces when
// evaluated against s, resolving field references and rejecting type
// clashes synchronously (spec §4.C).
func (e Expr) ResultType(s schema.Schema) (schema.PhysicalType, error) {
	switch e.Kind {
	case ExprFieldRef:
		f, ok := s.Field(e.FieldName)
		if !ok {
			return 0, engerrors.New(engerrors.SchemaInferenceFailure, "unknown field in expression").
				WithContext("field", e.FieldName)
		}
		return f.Type, nil
	case ExprLiteral:
		return e.LitType, nil
	case ExprUnary:
		return e.Operand.ResultType(s)
	case ExprBinary:
		leftType, err := e.Left.ResultType(s)
		if err != nil {
			return 0, err
		}
		rightType, err := e.Right.ResultType(s)
		if err != nil {
			return 0, err
		}
		if e.BinOp == OpAnd || e.BinOp == OpOr {
			if leftType != schema.Bool || rightType != schema.Bool {
				return 0, engerrors.New(engerrors.SchemaInferenceFailure, "logical operator requires bool operands")
			}
			return schema.Bool, nil
		}
		if leftType != rightType {
			return 0, engerrors.New(engerrors.SchemaInferenceFailure, "type clash in expression").
				WithContext("left", leftType.String()).WithContext("right", rightType.String())
		}
		if isComparison(e.BinOp) {
			return schema.Bool, nil
		}
		return leftType, nil
	default:
		return 0, engerrors.New(engerrors.SchemaInferenceFailure, "unknown expression kind")
	}
}

// Fields returns every field name referenced transitively by e, used to
// validate references against an input schema up front.
func (e Expr) Fields() []string {
	switch e.Kind {
	case ExprFieldRef:
		return []string{e.FieldName}
	case ExprUnary:
		return e.Operand.Fields()
	case ExprBinary:
		return append(e.Left.Fields(), e.Right.Fields()...)
	default:
		return nil
	}
}
