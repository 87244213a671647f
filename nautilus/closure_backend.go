package nautilus

import "github.com/nebulastream/nesengine/engerrors"

// ClosureBackend pre-compiles every instruction and terminator into a Go
// closure once, at Compile time, instead of re-dispatching on OpKind for
// every instruction on every invocation. This is the engine's stand-in
// for a native (MLIR/LLVM) backend: it trades the interpreter's
// instruction-by-instruction switch for a chain of closures built ahead
// of time, which is the idiomatic Go approximation of "compiling" a
// structured control-flow graph without emitting real machine code (see
// DESIGN.md for why no ecosystem JIT library was wired instead).
type ClosureBackend struct{}

type compiledInstr func(regs []any) error

type compiledTerm func(regs []any) (done bool, result any, next int, err error)

func (ClosureBackend) Compile(p *Program, registry *Registry) (CompiledFunction, error) {
	blockInstrs := make([][]compiledInstr, len(p.Blocks))
	blockTerms := make([]compiledTerm, len(p.Blocks))

	for i, b := range p.Blocks {
		fns := make([]compiledInstr, len(b.Instrs))
		for j, in := range b.Instrs {
			fn, err := compileInstr(in, registry)
			if err != nil {
				return nil, err
			}
			fns[j] = fn
		}
		blockInstrs[i] = fns
		blockTerms[i] = compileTerm(b, p)
	}

	entryParamCount := len(p.ParamTypes)

	return func(args []any) (any, error) {
		if len(args) != entryParamCount {
			return nil, engerrors.New(engerrors.OperatorExecutionFailure, "argument count mismatch")
		}
		regs := make([]any, p.NumRegisters)
		entry := p.Blocks[0]
		for i := 0; i < entryParamCount; i++ {
			regs[entry.Instrs[i].Result] = args[i]
		}

		block := 0
		for {
			for _, fn := range blockInstrs[block] {
				if err := fn(regs); err != nil {
					return nil, err
				}
			}
			done, result, next, err := blockTerms[block](regs)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
			block = next
		}
	}, nil
}

func compileTerm(b *Block, p *Program) compiledTerm {
	switch b.Term.Kind {
	case termReturn:
		ret := b.Term.RetReg
		return func(regs []any) (bool, any, int, error) {
			return true, regs[ret], 0, nil
		}
	case termJump:
		target := b.Term.JumpTarget
		params := p.Blocks[target].Params
		args := b.Term.JumpArgs
		return func(regs []any) (bool, any, int, error) {
			bindArgs(regs, params, args)
			return false, nil, target, nil
		}
	default: // termCondBranch
		cond := b.Term.CondReg
		thenTarget, elseTarget := b.Term.ThenTarget, b.Term.ElseTarget
		thenParams, elseParams := p.Blocks[thenTarget].Params, p.Blocks[elseTarget].Params
		thenArgs, elseArgs := b.Term.ThenArgs, b.Term.ElseArgs
		return func(regs []any) (bool, any, int, error) {
			if regs[cond].(bool) {
				bindArgs(regs, thenParams, thenArgs)
				return false, nil, thenTarget, nil
			}
			bindArgs(regs, elseParams, elseArgs)
			return false, nil, elseTarget, nil
		}
	}
}

func compileInstr(in Instr, registry *Registry) (compiledInstr, error) {
	switch in.Op {
	case OpConstInt64, OpConstFloat64, OpConstBool:
		val := in.ConstVal
		result := in.Result
		return func(regs []any) error { regs[result] = val; return nil }, nil
	case OpVariable:
		return func(regs []any) error { return nil }, nil
	case OpCastIntToFloat:
		a, result := in.A, in.Result
		return func(regs []any) error { regs[result] = float64(regs[a].(int64)); return nil }, nil
	case OpCastFloatToInt:
		a, result := in.A, in.Result
		return func(regs []any) error { regs[result] = int64(regs[a].(float64)); return nil }, nil
	case OpNot:
		a, result := in.A, in.Result
		return func(regs []any) error { regs[result] = !regs[a].(bool); return nil }, nil
	case OpNeg:
		a, result := in.A, in.Result
		return func(regs []any) error { regs[result] = negate(regs[a]); return nil }, nil
	case OpProxyCall:
		a, b, result, name := in.A, in.B, in.Result, in.ProxyName
		fn, err := registry.resolve(name)
		if err != nil {
			return nil, err
		}
		return func(regs []any) error {
			var callArgs []any
			if a != invalidRegister {
				callArgs = append(callArgs, regs[a])
			}
			if b != invalidRegister {
				callArgs = append(callArgs, regs[b])
			}
			regs[result] = fn(callArgs)
			return nil
		}, nil
	default:
		op, a, b, result := in.Op, in.A, in.B, in.Result
		interp := InterpreterBackend{}
		return func(regs []any) error {
			v, err := interp.evalBinary(op, regs[a], regs[b])
			if err != nil {
				return err
			}
			regs[result] = v
			return nil
		}, nil
	}
}
