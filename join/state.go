package join

// State is a join slice's position in its lifecycle (spec §4.J): "Open
// -> Sealed -> Triggered -> Finalized -> Released. Transitions are
// driven by: tuple arrival (Open), watermark pass (Sealed), all workers
// staged (Triggered), probe-side scan complete (Finalized), all probe
// tasks emitted (Released)."
type State int

const (
	StateOpen State = iota
	StateSealed
	StateTriggered
	StateFinalized
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateSealed:
		return "Sealed"
	case StateTriggered:
		return "Triggered"
	case StateFinalized:
		return "Finalized"
	case StateReleased:
		return "Released"
	default:
		return "Unknown"
	}
}
