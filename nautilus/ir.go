package nautilus

import "github.com/nebulastream/nesengine/engerrors"

// Program is the typed IR produced by lowering an ExecutionTrace: a
// validated set of basic blocks ready for a Backend to execute.
type Program struct {
	Blocks       []*Block
	ParamTypes   []ValueType
	NumRegisters int
}

// TraceToIRConversionPhase validates the SSA-normalized trace (every
// operand register is defined in-block or arrives as a block parameter)
// and finalizes it into an executable Program (spec §4.E).
func TraceToIRConversionPhase(trace *ExecutionTrace) (*Program, error) {
	defined := make(map[register]bool)
	for _, b := range trace.Blocks {
		for _, p := range b.Params {
			defined[p] = true
		}
		for _, in := range b.Instrs {
			defined[in.Result] = true
		}
	}

	checkOperand := func(r register) error {
		if r == invalidRegister {
			return nil
		}
		if !defined[r] {
			return engerrors.New(engerrors.CompilationFailure, "IR operand register never defined").
				WithContext("register", int(r))
		}
		return nil
	}

	for _, b := range trace.Blocks {
		for _, in := range b.Instrs {
			if err := checkOperand(in.A); err != nil {
				return nil, err
			}
			if err := checkOperand(in.B); err != nil {
				return nil, err
			}
		}
		switch b.Term.Kind {
		case termReturn:
			if err := checkOperand(b.Term.RetReg); err != nil {
				return nil, err
			}
		case termCondBranch:
			if err := checkOperand(b.Term.CondReg); err != nil {
				return nil, err
			}
			if b.Term.ThenTarget < 0 || b.Term.ThenTarget >= len(trace.Blocks) {
				return nil, engerrors.New(engerrors.CompilationFailure, "branch target out of range")
			}
			if b.Term.ElseTarget < 0 || b.Term.ElseTarget >= len(trace.Blocks) {
				return nil, engerrors.New(engerrors.CompilationFailure, "branch target out of range")
			}
		case termJump:
			if b.Term.JumpTarget < 0 || b.Term.JumpTarget >= len(trace.Blocks) {
				return nil, engerrors.New(engerrors.CompilationFailure, "jump target out of range")
			}
		}
	}

	return &Program{Blocks: trace.Blocks, ParamTypes: trace.ParamTypes, NumRegisters: int(trace.nextReg)}, nil
}
