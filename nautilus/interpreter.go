package nautilus

import "github.com/nebulastream/nesengine/engerrors"

// InterpreterBackend tree-walks a Program one instruction at a time. It
// is the one backend every deployment must carry (spec §4.E: "Only the
// interpreter is required").
type InterpreterBackend struct {
	// Debug enables the integer division/modulo-by-zero check that the
	// compiled path otherwise leaves undefined (spec §4.E).
	Debug bool
}

func (ib InterpreterBackend) Compile(p *Program, registry *Registry) (CompiledFunction, error) {
	return func(args []any) (any, error) {
		if len(args) != len(p.ParamTypes) {
			return nil, engerrors.New(engerrors.OperatorExecutionFailure, "argument count mismatch")
		}
		regs := make([]any, p.NumRegisters)
		entry := p.Blocks[0]
		for i := 0; i < len(p.ParamTypes); i++ {
			regs[entry.Instrs[i].Result] = args[i]
		}

		block := entry
		for {
			for _, in := range block.Instrs {
				if err := ib.exec(regs, in, registry); err != nil {
					return nil, err
				}
			}
			switch block.Term.Kind {
			case termReturn:
				return regs[block.Term.RetReg], nil
			case termJump:
				next := p.Blocks[block.Term.JumpTarget]
				bindArgs(regs, next.Params, block.Term.JumpArgs)
				block = next
			case termCondBranch:
				cond := regs[block.Term.CondReg].(bool)
				if cond {
					next := p.Blocks[block.Term.ThenTarget]
					bindArgs(regs, next.Params, block.Term.ThenArgs)
					block = next
				} else {
					next := p.Blocks[block.Term.ElseTarget]
					bindArgs(regs, next.Params, block.Term.ElseArgs)
					block = next
				}
			}
		}
	}, nil
}

func bindArgs(regs []any, params []register, args []register) {
	for i, p := range params {
		if i < len(args) {
			regs[p] = regs[args[i]]
		}
	}
}

func (ib InterpreterBackend) exec(regs []any, in Instr, registry *Registry) error {
	switch in.Op {
	case OpConstInt64, OpConstFloat64, OpConstBool:
		regs[in.Result] = in.ConstVal
	case OpVariable:
		// bound by the caller (params) or a block argument; nothing to do.
	case OpCastIntToFloat:
		regs[in.Result] = float64(regs[in.A].(int64))
	case OpCastFloatToInt:
		regs[in.Result] = int64(regs[in.A].(float64))
	case OpNot:
		regs[in.Result] = !regs[in.A].(bool)
	case OpNeg:
		regs[in.Result] = negate(regs[in.A])
	case OpProxyCall:
		fn, err := registry.resolve(in.ProxyName)
		if err != nil {
			return err
		}
		var callArgs []any
		if in.A != invalidRegister {
			callArgs = append(callArgs, regs[in.A])
		}
		if in.B != invalidRegister {
			callArgs = append(callArgs, regs[in.B])
		}
		regs[in.Result] = fn(callArgs)
	default:
		result, err := ib.evalBinary(in.Op, regs[in.A], regs[in.B])
		if err != nil {
			return err
		}
		regs[in.Result] = result
	}
	return nil
}

func negate(v any) any {
	switch x := v.(type) {
	case int64:
		return -x
	case float64:
		return -x
	default:
		return v
	}
}

func (ib InterpreterBackend) evalBinary(op OpKind, a, b any) (any, error) {
	switch op {
	case OpAnd:
		return a.(bool) && b.(bool), nil
	case OpOr:
		return a.(bool) || b.(bool), nil
	}

	if ai, ok := a.(int64); ok {
		bi := b.(int64)
		switch op {
		case OpAdd:
			return ai + bi, nil
		case OpSub:
			return ai - bi, nil
		case OpMul:
			return ai * bi, nil
		case OpDiv:
			if ib.Debug && bi == 0 {
				return nil, engerrors.New(engerrors.OperatorExecutionFailure, "integer division by zero")
			}
			return ai / bi, nil
		case OpMod:
			if ib.Debug && bi == 0 {
				return nil, engerrors.New(engerrors.OperatorExecutionFailure, "integer modulo by zero")
			}
			return ai % bi, nil
		case OpBitAnd:
			return ai & bi, nil
		case OpBitOr:
			return ai | bi, nil
		case OpBitXor:
			return ai ^ bi, nil
		case OpShl:
			return ai << uint64(bi), nil
		case OpShr:
			return ai >> uint64(bi), nil
		case OpCmpEq:
			return ai == bi, nil
		case OpCmpNeq:
			return ai != bi, nil
		case OpCmpLt:
			return ai < bi, nil
		case OpCmpLte:
			return ai <= bi, nil
		case OpCmpGt:
			return ai > bi, nil
		case OpCmpGte:
			return ai >= bi, nil
		}
	}

	af := a.(float64)
	bf := b.(float64)
	switch op {
	case OpAdd:
		return af + bf, nil
	case OpSub:
		return af - bf, nil
	case OpMul:
		return af * bf, nil
	case OpDiv:
		return af / bf, nil
	case OpCmpEq:
		return af == bf, nil
	case OpCmpNeq:
		return af != bf, nil
	case OpCmpLt:
		return af < bf, nil
	case OpCmpLte:
		return af <= bf, nil
	case OpCmpGt:
		return af > bf, nil
	case OpCmpGte:
		return af >= bf, nil
	}
	return nil, engerrors.New(engerrors.CompilationFailure, "unsupported operation for operand type")
}
