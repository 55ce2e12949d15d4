package opt

import (
	"fmt"
	"math/rand"
	"strings"

	"robustroute/internal/apperr"
)

// Neighborhood names a move operator, or mixed for a uniform choice per iteration.
type Neighborhood string

const (
	Swap     Neighborhood = "swap"
	Relocate Neighborhood = "relocate"
	TwoOpt   Neighborhood = "two_opt"
	Mixed    Neighborhood = "mixed"
)

// ParseNeighborhood accepts the operator names case-insensitively ("2opt" is two_opt).
func ParseNeighborhood(s string) (Neighborhood, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "swap":
		return Swap, nil
	case "relocate":
		return Relocate, nil
	case "two_opt", "two-opt", "2opt":
		return TwoOpt, nil
	case "", "mixed":
		return Mixed, nil
	}
	return "", apperr.InvalidInput("neighborhood", fmt.Sprintf("unknown operator %q", s))
}

// move returns a new candidate or nil when the operator cannot apply.
type move func(Solution, *rand.Rand) Solution

var moves = map[Neighborhood]move{
	Swap:     swapMove,
	Relocate: relocateMove,
	TwoOpt:   twoOptMove,
}

var mixedOrder = []Neighborhood{Swap, Relocate, TwoOpt}

type slot struct{ route, pos int }

// swapMove exchanges two customers picked uniformly over all interior slots,
// possibly in different routes.
func swapMove(sol Solution, rng *rand.Rand) Solution {
	var slots []slot
	for ri, r := range sol {
		for p := 1; p < len(r)-1; p++ {
			slots = append(slots, slot{ri, p})
		}
	}
	if len(slots) < 2 {
		return nil
	}
	a := rng.Intn(len(slots))
	b := rng.Intn(len(slots) - 1)
	if b >= a {
		b++
	}
	out := sol.Clone()
	sa, sb := slots[a], slots[b]
	out[sa.route][sa.pos], out[sb.route][sb.pos] = out[sb.route][sb.pos], out[sa.route][sa.pos]
	return out
}

// relocateMove removes one customer from a random occupied route and inserts it
// at a random position of a random route. An emptied source route is dropped.
func relocateMove(sol Solution, rng *rand.Rand) Solution {
	var occupied []int
	for ri, r := range sol {
		if len(r) > 2 {
			occupied = append(occupied, ri)
		}
	}
	if len(occupied) == 0 {
		return nil
	}
	out := sol.Clone()
	src := occupied[rng.Intn(len(occupied))]
	pos := 1
	if len(out[src]) > 3 {
		pos = 1 + rng.Intn(len(out[src])-2)
	}
	dst := rng.Intn(len(out))
	if dst == src && len(out[src]) == 3 && len(out) > 1 {
		dst = (dst + 1) % len(out)
	}

	c := out[src][pos]
	out[src] = append(out[src][:pos:pos], out[src][pos+1:]...)
	if len(out[src]) == 2 {
		out = append(out[:src], out[src+1:]...)
		if dst > src {
			dst--
		}
	}
	if len(out) == 0 {
		return Solution{{Depot, c, Depot}}
	}
	if dst >= len(out) {
		dst = len(out) - 1
	}
	r := out[dst]
	ins := 1 + rng.Intn(len(r)-1)
	nr := make(Route, 0, len(r)+1)
	nr = append(nr, r[:ins]...)
	nr = append(nr, c)
	nr = append(nr, r[ins:]...)
	out[dst] = nr
	return out
}

// twoOptMove reverses a segment inside one route with at least three customers.
func twoOptMove(sol Solution, rng *rand.Rand) Solution {
	var cands []int
	for ri, r := range sol {
		if len(r) > 4 {
			cands = append(cands, ri)
		}
	}
	if len(cands) == 0 {
		return nil
	}
	ri := cands[rng.Intn(len(cands))]
	r := sol[ri]
	i := 1 + rng.Intn(len(r)-3)       // [1, len-3]
	j := i + 1 + rng.Intn(len(r)-2-i) // [i+1, len-2]
	out := sol.Clone()
	out[ri] = twoOptSwap(r, i, j-1)
	return out
}
