package nautilus

import "hash/fnv"

// OpKind is the typed IR operation set produced by tracing (spec §4.E):
// constants, arithmetic, compare, logical, cast, bitwise, memory,
// control, function/proxy-call, and variable/builtin references.
type OpKind int

const (
	OpConstInt64 OpKind = iota
	OpConstFloat64
	OpConstBool
	OpVariable // a traced function parameter or phi block argument

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod

	OpCmpEq
	OpCmpNeq
	OpCmpLt
	OpCmpLte
	OpCmpGt
	OpCmpGte

	OpAnd
	OpOr
	OpNot
	OpNeg

	OpCastIntToFloat
	OpCastFloatToInt

	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr

	OpLoad
	OpStore
	OpAddress
	OpConstAddress

	OpProxyCall
)

func constOpFor(typ ValueType) OpKind {
	switch typ {
	case TypeInt64:
		return OpConstInt64
	case TypeFloat64:
		return OpConstFloat64
	default:
		return OpConstBool
	}
}

// Instr is a single typed IR instruction: a result register, an
// operation kind, and up to two operand registers (or a constant /
// proxy-call payload).
type Instr struct {
	Op        OpKind
	Result    register
	A, B      register
	ConstType ValueType
	ConstVal  any
	ProxyName string
}

type termKind int

const (
	termReturn termKind = iota
	termJump
	termCondBranch
)

// Terminator ends a Block: a function return, an unconditional jump
// (threading block arguments, i.e. phi inputs), or a conditional branch.
type Terminator struct {
	Kind termKind

	RetReg register

	JumpTarget int
	JumpArgs   []register

	CondReg    register
	ThenTarget int
	ThenArgs   []register
	ElseTarget int
	ElseArgs   []register
}

// Block is one basic block of the recorded trace: straight-line
// instructions terminated by control transfer, plus the set of incoming
// parameter registers (phi values) threaded in by predecessors.
type Block struct {
	ID           int
	Params       []register
	Instrs       []Instr
	Term         Terminator
	IsLoopHeader bool
}

// ExecutionTrace is the recorded symbolic execution of one traced
// function: a list of basic blocks produced by forking at every
// conditional branch and collapsing repeat-site loops into a back edge.
type ExecutionTrace struct {
	Blocks     []*Block
	ParamTypes []ValueType
	nextReg    register
}

func (tr *ExecutionTrace) newBlock() *Block {
	b := &Block{ID: len(tr.Blocks)}
	tr.Blocks = append(tr.Blocks, b)
	return b
}

// Tracer drives the recording of one ExecutionTrace: arithmetic and
// control-flow helpers append to whichever Block is "current".
type Tracer struct {
	trace   *ExecutionTrace
	current *Block
}

func (t *Tracer) nextRegister() register {
	r := t.trace.nextReg
	t.trace.nextReg++
	return r
}

func (t *Tracer) emitConst(typ ValueType, val any) register {
	r := t.nextRegister()
	t.current.Instrs = append(t.current.Instrs, Instr{
		Op: constOpFor(typ), Result: r, A: invalidRegister, B: invalidRegister,
		ConstType: typ, ConstVal: val,
	})
	return r
}

func (t *Tracer) emitParam(typ ValueType) register {
	r := t.nextRegister()
	t.current.Instrs = append(t.current.Instrs, Instr{
		Op: OpVariable, Result: r, A: invalidRegister, B: invalidRegister, ConstType: typ,
	})
	return r
}

func (t *Tracer) emit(op OpKind, resultType ValueType, a, b register) register {
	r := t.nextRegister()
	t.current.Instrs = append(t.current.Instrs, Instr{Op: op, Result: r, A: a, B: b, ConstType: resultType})
	return r
}

// ProxyCall records a direct call to a statically named native function;
// the call's operand and return stamps are declared at the call site and
// carried through to the backend, which resolves proxyName against a
// Registry (spec §4.E: "the backend emits a direct call with no
// marshalling").
func (t *Tracer) ProxyCall(proxyName string, returnType ValueType, args ...Value) Value {
	regs := make([]register, len(args))
	for i, a := range args {
		regs[i] = a.reg
	}
	r := t.nextRegister()
	instr := Instr{Op: OpProxyCall, Result: r, ConstType: returnType, ProxyName: proxyName}
	instr.A, instr.B = invalidRegister, invalidRegister
	if len(regs) > 0 {
		instr.A = regs[0]
	}
	if len(regs) > 1 {
		instr.B = regs[1]
	}
	t.current.Instrs = append(t.current.Instrs, instr)
	return Value{typ: returnType, trace: t, reg: r}
}

// If forks the trace at the current block: thenFn and elseFn are each
// recorded into their own block, depth-first, and rejoined into a new
// block whose single phi parameter carries whichever arm's result was
// taken (spec §4.E: "conditional branches fork the trace at the first
// branch point and continue recording each side in a depth-first manner").
func (t *Tracer) If(cond Value, thenFn, elseFn func() Value) Value {
	caller := t.current
	thenBlock := t.trace.newBlock()
	elseBlock := t.trace.newBlock()
	joinBlock := t.trace.newBlock()

	caller.Term = Terminator{Kind: termCondBranch, CondReg: cond.reg, ThenTarget: thenBlock.ID, ElseTarget: elseBlock.ID}

	t.current = thenBlock
	thenVal := thenFn()
	thenBlock.Term = Terminator{Kind: termJump, JumpTarget: joinBlock.ID, JumpArgs: []register{thenVal.reg}}

	t.current = elseBlock
	elseVal := elseFn()
	elseBlock.Term = Terminator{Kind: termJump, JumpTarget: joinBlock.ID, JumpArgs: []register{elseVal.reg}}

	phi := t.nextRegister()
	joinBlock.Params = []register{phi}
	t.current = joinBlock

	return Value{typ: thenVal.typ, trace: t, reg: phi}
}

// traceSignature hashes a block's instruction op-kind sequence, used to
// recognize that two recordings of the same loop body have identical
// shape (repeat-site hashing), independent of the concrete register
// numbers each recording happened to allocate.
func traceSignature(instrs []Instr) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 0, len(instrs))
	for _, in := range instrs {
		buf = append(buf, byte(in.Op))
	}
	h.Write(buf)
	return h.Sum64()
}

// Loop records a structured while-style loop: cond and body are each
// traced once against a symbolic loop variable. A second, throwaway
// recording of body against the same symbolic variable is hashed against
// the first and, on a match, the real recording is closed into a back
// edge rather than unrolled (spec §4.E: "loops are detected by
// repeat-site hashing").
func (t *Tracer) Loop(init Value, cond func(Value) Value, body func(Value) Value) Value {
	caller := t.current
	header := t.trace.newBlock()
	loopVar := t.nextRegister()
	header.Params = []register{loopVar}
	caller.Term = Terminator{Kind: termJump, JumpTarget: header.ID, JumpArgs: []register{init.reg}}

	t.current = header
	condVal := cond(Value{typ: init.typ, trace: t, reg: loopVar})

	bodyBlock := t.trace.newBlock()
	exitBlock := t.trace.newBlock()
	header.Term = Terminator{Kind: termCondBranch, CondReg: condVal.reg, ThenTarget: bodyBlock.ID, ElseTarget: exitBlock.ID}

	t.current = bodyBlock
	bodyResult := body(Value{typ: init.typ, trace: t, reg: loopVar})
	sigFirst := traceSignature(bodyBlock.Instrs)

	scratch := &Block{ID: -1}
	savedCurrent := t.current
	t.current = scratch
	_ = body(Value{typ: init.typ, trace: t, reg: loopVar})
	t.current = savedCurrent
	sigSecond := traceSignature(scratch.Instrs)

	if sigFirst == sigSecond {
		bodyBlock.Term = Terminator{Kind: termJump, JumpTarget: header.ID, JumpArgs: []register{bodyResult.reg}}
	} else {
		bodyBlock.Term = Terminator{Kind: termJump, JumpTarget: exitBlock.ID}
	}

	t.current = exitBlock
	return Value{typ: init.typ, trace: t, reg: loopVar}
}

// Return closes the trace with a function return.
func (t *Tracer) Return(v Value) {
	t.current.Term = Terminator{Kind: termReturn, RetReg: v.reg}
}

// Build traces fn once against fresh symbolic parameters of paramTypes,
// returning the recorded ExecutionTrace.
func Build(paramTypes []ValueType, fn func(t *Tracer, params []Value) Value) *ExecutionTrace {
	trace := &ExecutionTrace{ParamTypes: paramTypes}
	entry := trace.newBlock()
	tr := &Tracer{trace: trace, current: entry}

	params := make([]Value, len(paramTypes))
	for i, pt := range paramTypes {
		params[i] = tr.Param(pt)
	}
	result := fn(tr, params)
	tr.Return(result)
	return trace
}
