package nautilus

// SSACreationPhase normalizes a recorded ExecutionTrace so that every
// register used in a block is either defined in that same block or
// arrives as one of the block's declared Params (spec §4.E:
// "introduces basic-block arguments for values flowing across joins").
// Registers defined in one block and referenced from another are
// threaded in as additional block parameters along every predecessor
// edge, recursively, so the definition reaches the use along every path.
func SSACreationPhase(trace *ExecutionTrace) *ExecutionTrace {
	s := &ssaState{
		trace:     trace,
		defBlock:  make(map[register]int),
		available: make(map[int]map[register]bool),
		preds:     make(map[int][]int),
	}

	for _, b := range trace.Blocks {
		s.available[b.ID] = make(map[register]bool)
		for _, p := range b.Params {
			s.defBlock[p] = b.ID
			s.available[b.ID][p] = true
		}
		for _, in := range b.Instrs {
			s.defBlock[in.Result] = b.ID
			s.available[b.ID][in.Result] = true
		}
	}
	for _, b := range trace.Blocks {
		switch b.Term.Kind {
		case termJump:
			s.preds[b.Term.JumpTarget] = append(s.preds[b.Term.JumpTarget], b.ID)
		case termCondBranch:
			s.preds[b.Term.ThenTarget] = append(s.preds[b.Term.ThenTarget], b.ID)
			s.preds[b.Term.ElseTarget] = append(s.preds[b.Term.ElseTarget], b.ID)
		}
	}

	for _, b := range trace.Blocks {
		for _, r := range collectUses(b) {
			s.ensureAvailable(b.ID, r)
		}
	}
	return trace
}

type ssaState struct {
	trace     *ExecutionTrace
	defBlock  map[register]int
	available map[int]map[register]bool
	preds     map[int][]int
}

func (s *ssaState) ensureAvailable(blockID int, r register) {
	if s.available[blockID][r] {
		return
	}
	s.available[blockID][r] = true
	if s.defBlock[r] == blockID {
		return
	}
	b := s.trace.Blocks[blockID]
	b.Params = append(b.Params, r)
	for _, predID := range s.preds[blockID] {
		s.threadThroughTerminator(predID, blockID, r)
		s.ensureAvailable(predID, r)
	}
}

func (s *ssaState) threadThroughTerminator(predID, targetID int, r register) {
	pred := s.trace.Blocks[predID]
	switch pred.Term.Kind {
	case termJump:
		if pred.Term.JumpTarget == targetID {
			pred.Term.JumpArgs = append(pred.Term.JumpArgs, r)
		}
	case termCondBranch:
		if pred.Term.ThenTarget == targetID {
			pred.Term.ThenArgs = append(pred.Term.ThenArgs, r)
		}
		if pred.Term.ElseTarget == targetID {
			pred.Term.ElseArgs = append(pred.Term.ElseArgs, r)
		}
	}
}

func collectUses(b *Block) []register {
	var uses []register
	add := func(r register) {
		if r != invalidRegister {
			uses = append(uses, r)
		}
	}
	for _, in := range b.Instrs {
		add(in.A)
		add(in.B)
	}
	switch b.Term.Kind {
	case termReturn:
		add(b.Term.RetReg)
	case termCondBranch:
		add(b.Term.CondReg)
	}
	return uses
}
