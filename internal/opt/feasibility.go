package opt

// Classification is the dual-axis verdict for one route.
type Classification struct {
	OK          bool `json:"ok"`
	Expected    bool `json:"violates_expected"`
	Pessimistic bool `json:"violates_pessimistic"`
	Both        bool `json:"violates_both"`
}

// Classify walks route on the expected timeline only. Pessimistic arrivals are
// checked pointwise from the same timeline and never propagated. Exceeding
// dayHorizon counts as an expected violation and stops the walk.
func Classify(route Route, expected, pessimistic Matrix, tw Windows, dayHorizon, serviceTime float64) Classification {
	if len(route) < 2 {
		return Classification{OK: true}
	}
	var c Classification
	tl := 0.0
	for i := 0; i < len(route)-1; i++ {
		a, b := route[i], route[i+1]
		arrE := tl + expected[a][b]
		arrP := tl + pessimistic[a][b]
		start := arrE
		if w, ok := tw.lookup(b); ok {
			lateE, lateP := arrE > w.End, arrP > w.End
			c.Expected = c.Expected || lateE
			c.Pessimistic = c.Pessimistic || lateP
			c.Both = c.Both || (lateE && lateP)
			if w.Start > start {
				start = w.Start
			}
		}
		if b != Depot {
			start += serviceTime
		}
		tl = start
		if tl > dayHorizon {
			c.Expected = true
			break
		}
	}
	c.OK = !(c.Expected || c.Pessimistic)
	return c
}

// Classify runs the checker with the instance matrices and parameters.
func (in *Instance) Classify(route Route) Classification {
	return Classify(route, in.Matrices.Expected, in.Matrices.Pessimistic, in.Windows, in.Params.DayHorizon, in.Params.ServiceTime)
}

// Feasible applies mode on top of Classify.
func (in *Instance) Feasible(route Route, mode Mode) bool {
	switch mode {
	case ModeIgnoreAll:
		return true
	case ModeIgnorePessimistic:
		return !in.Classify(route).Expected
	default:
		return in.Classify(route).OK
	}
}
