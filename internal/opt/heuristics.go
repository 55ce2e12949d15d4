package opt

// ImproveRoutes2Opt applies first-improvement 2-opt inside every route of sol.
// A reversal is kept only when the route stays feasible under mode and its
// evaluated cost drops by more than 1e-6. Routes are never merged or split, so
// the partition is unchanged. sol itself is not modified.
func ImproveRoutes2Opt(in *Instance, sol Solution, mode Mode, iterations int) Solution {
	if iterations <= 0 {
		iterations = 1
	}
	out := sol.Clone()
	for ri, r := range out {
		best := r
		bestCost := routeCost(in, best)
		n := len(best)
		for it := 0; it < iterations; it++ {
			improved := false
			for i := 1; i < n-2; i++ {
				for k := i + 1; k < n-1; k++ {
					cand := twoOptSwap(best, i, k)
					if !in.Feasible(cand, mode) {
						continue
					}
					if c := routeCost(in, cand); c+1e-6 < bestCost {
						best, bestCost = cand, c
						improved = true
					}
				}
			}
			if !improved {
				break
			}
		}
		out[ri] = best
	}
	return out
}

func routeCost(in *Instance, r Route) float64 {
	c, _ := Evaluate(Solution{r}, in)
	return c
}

// twoOptSwap returns a copy of ord with ord[i..k] reversed.
func twoOptSwap(ord Route, i, k int) Route {
	out := make(Route, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
