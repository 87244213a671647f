package window

import "github.com/nebulastream/nesengine/plan"

// PartialAggregate accumulates one aggregate function's running state
// for one group key inside one slice. It carries enough fields to
// support every AggFuncKind without a type switch on the stored value.
type PartialAggregate struct {
	Count    int64
	Sum      int64
	SumFloat float64
	Min      int64
	Max      int64
	init     bool
}

func toInt64(v any) int64 {
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
	case float64:
		return int64(x)
	case float32:
		return int64(x)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	default:
		return float64(toInt64(v))
	}
}

// Add folds one tuple's field value into the partial according to kind.
func (p *PartialAggregate) Add(kind plan.AggFuncKind, v any) {
	iv := toInt64(v)
	switch kind {
	case plan.AggCount:
		p.Count++
	case plan.AggSum:
		p.Sum += iv
		p.Count++
	case plan.AggAvg:
		p.SumFloat += toFloat64(v)
		p.Count++
	case plan.AggMin:
		if !p.init || iv < p.Min {
			p.Min = iv
		}
		p.Count++
	case plan.AggMax:
		if !p.init || iv > p.Max {
			p.Max = iv
		}
		p.Count++
	}
	p.init = true
}

// Merge combines other into p according to kind, used when collapsing
// per-worker partials into the global staging slice (spec §4.I).
func (p *PartialAggregate) Merge(other PartialAggregate, kind plan.AggFuncKind) {
	if !other.init {
		return
	}
	switch kind {
	case plan.AggCount, plan.AggSum:
		p.Sum += other.Sum
		p.Count += other.Count
	case plan.AggAvg:
		p.SumFloat += other.SumFloat
		p.Count += other.Count
	case plan.AggMin:
		if !p.init || other.Min < p.Min {
			p.Min = other.Min
		}
		p.Count += other.Count
	case plan.AggMax:
		if !p.init || other.Max > p.Max {
			p.Max = other.Max
		}
		p.Count += other.Count
	}
	p.init = true
}

// Result finalizes the partial into its output value (spec §4.C
// aggResultField: AggAvg is float64, every other function is int64).
func (p PartialAggregate) Result(kind plan.AggFuncKind) any {
	switch kind {
	case plan.AggCount:
		return p.Count
	case plan.AggSum:
		return p.Sum
	case plan.AggMin:
		return p.Min
	case plan.AggMax:
		return p.Max
	case plan.AggAvg:
		if p.Count == 0 {
			return float64(0)
		}
		return p.SumFloat / float64(p.Count)
	default:
		return nil
	}
}
