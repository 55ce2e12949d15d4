package opt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMovesPreservePartitionAndInput(t *testing.T) {
	base := Solution{{0, 1, 2, 3, 0}, {0, 4, 0}, {0, 5, 6, 0}}
	orig := base.Clone()
	rng := NewRNG(17)
	for name, mv := range moves {
		for i := 0; i < 200; i++ {
			cand := mv(base, rng)
			require.NotNil(t, cand, name)
			requirePartition(t, cand, 7)
			require.Equal(t, orig, base, "%s mutated its input", name)
		}
	}
}

func TestSwapNeedsTwoCustomers(t *testing.T) {
	require.Nil(t, swapMove(Solution{{0, 1, 0}}, NewRNG(1)))
	require.Nil(t, swapMove(Solution{{0, 0}}, NewRNG(1)))
}

func TestRelocateDropsEmptiedRoute(t *testing.T) {
	rng := NewRNG(3)
	for i := 0; i < 50; i++ {
		cand := relocateMove(Solution{{0, 1, 0}, {0, 2, 0}}, rng)
		requirePartition(t, cand, 3)
		require.Len(t, cand, 1)
	}
	require.Nil(t, relocateMove(Solution{{0, 0}}, rng))
	require.Equal(t, Solution{{0, 1, 0}}, relocateMove(Solution{{0, 1, 0}}, rng))
}

func TestTwoOptNeedsThreeCustomers(t *testing.T) {
	require.Nil(t, twoOptMove(Solution{{0, 1, 2, 0}, {0, 3, 0}}, NewRNG(1)))

	rng := NewRNG(2)
	for i := 0; i < 50; i++ {
		cand := twoOptMove(Solution{{0, 1, 2, 3, 0}}, rng)
		require.Len(t, cand, 1)
		require.Equal(t, 0, cand[0][0])
		require.Equal(t, 0, cand[0][4])
		requirePartition(t, cand, 4)
	}
}

func TestTwoOptSwap(t *testing.T) {
	require.Equal(t, Route{0, 3, 2, 1, 4, 0}, twoOptSwap(Route{0, 1, 2, 3, 4, 0}, 1, 3))
}

func TestParseNeighborhood(t *testing.T) {
	for in, want := range map[string]Neighborhood{"swap": Swap, "RELOCATE": Relocate, "2opt": TwoOpt, "two_opt": TwoOpt, "": Mixed} {
		got, err := ParseNeighborhood(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseNeighborhood("or-opt")
	require.Error(t, err)
}

func TestImproveRoutes2OptUntangles(t *testing.T) {
	// Four customers on a line; visiting them out of order doubles back.
	pos := []float64{0, 1, 2, 3, 4}
	e := make(Matrix, len(pos))
	for i := range e {
		e[i] = make([]float64, len(pos))
		for j := range e[i] {
			d := pos[i] - pos[j]
			if d < 0 {
				d = -d
			}
			e[i][j] = d
		}
	}
	in, err := NewInstance(Matrices{Expected: e, Pessimistic: e}, nil, defaultParams())
	require.NoError(t, err)

	sol := Solution{{0, 1, 3, 2, 4, 0}}
	before, _ := Evaluate(sol, in)
	got := ImproveRoutes2Opt(in, sol, ModeStrict, 5)
	after, _ := Evaluate(got, in)
	require.Less(t, after, before)
	requirePartition(t, got, in.N())
	require.Equal(t, Solution{{0, 1, 3, 2, 4, 0}}, sol)
}
