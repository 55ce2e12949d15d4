package opt

import "sort"

type saving struct {
	i, j  int
	value float64
}

// Savings builds a solution with the Clarke–Wright merge heuristic.
//
// Every customer starts on its own route. Ordered pairs (i,j) with a positive
// saving E[0][i]+E[0][j]-E[i][j] are visited in descending order (stable, so
// ties keep discovery order). A pair merges the route ending in i with the
// route starting in j when the result is feasible under mode. A rejected merge
// is not retried. No randomness is involved.
func Savings(in *Instance, mode Mode) Solution {
	n := in.N()
	if n <= 1 {
		return Solution{{Depot, Depot}}
	}
	E := in.Matrices.Expected

	routes := make(map[int]Route, n-1) // keyed by a customer of the route
	for c := 1; c < n; c++ {
		routes[c] = Route{Depot, c, Depot}
	}

	list := make([]saving, 0, (n-1)*(n-2))
	for i := 1; i < n; i++ {
		for j := 1; j < n; j++ {
			if i == j {
				continue
			}
			if s := E[Depot][i] + E[Depot][j] - E[i][j]; s > 0 {
				list = append(list, saving{i: i, j: j, value: s})
			}
		}
	}
	sort.SliceStable(list, func(a, b int) bool { return list[a].value > list[b].value })

	for _, s := range list {
		ki, kj := -1, -1
		for k, r := range routes {
			if len(r) <= 2 {
				continue
			}
			if r[len(r)-2] == s.i {
				ki = k
			}
			if r[1] == s.j {
				kj = k
			}
		}
		if ki == -1 || kj == -1 || ki == kj {
			continue
		}
		ri, rj := routes[ki], routes[kj]
		merged := make(Route, 0, len(ri)+len(rj)-2)
		merged = append(merged, ri[:len(ri)-1]...)
		merged = append(merged, rj[1:]...)
		if !in.Feasible(merged, mode) {
			continue
		}
		routes[ki] = merged
		delete(routes, kj)
	}

	// Emit in ascending key order so the result does not depend on map iteration.
	keys := make([]int, 0, len(routes))
	for k := range routes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make(Solution, 0, len(keys))
	for _, k := range keys {
		out = append(out, routes[k])
	}
	return out
}
