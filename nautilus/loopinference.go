package nautilus

// LoopInferencePhase annotates every block that is the target of a back
// edge (a jump or branch from a higher-indexed block to a lower-or-equal
// one) as a loop header, so backends that can emit structured loops know
// where to do so instead of treating the control flow as a generic CFG
// (spec §4.E).
func LoopInferencePhase(p *Program) *Program {
	for _, b := range p.Blocks {
		switch b.Term.Kind {
		case termJump:
			markIfBackEdge(p, b.ID, b.Term.JumpTarget)
		case termCondBranch:
			markIfBackEdge(p, b.ID, b.Term.ThenTarget)
			markIfBackEdge(p, b.ID, b.Term.ElseTarget)
		}
	}
	return p
}

func markIfBackEdge(p *Program, from, to int) {
	if to <= from {
		p.Blocks[to].IsLoopHeader = true
	}
}
