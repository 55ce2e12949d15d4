package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGreedyInsertionIgnoreAllPartition(t *testing.T) {
	// Windows nobody can meet: nothing is ever rejected under ModeIgnoreAll.
	tw := Windows{}
	for c := 1; c < 10; c++ {
		tw[c] = &Window{Start: 0, End: 0}
	}
	in := randomInstance(t, 10, 11, tw)
	res := GreedyInsertion(in, ModeIgnoreAll, NewRNG(5))
	requirePartition(t, res.Solution, in.N())
	require.Empty(t, res.Forced)
	require.False(t, res.Infeasible())
}

func TestGreedyInsertionForcesUnplaceable(t *testing.T) {
	tw := Windows{}
	for c := 1; c < 6; c++ {
		tw[c] = &Window{Start: 0, End: 0}
	}
	in := randomInstance(t, 6, 2, tw)
	res := GreedyInsertion(in, ModeStrict, NewRNG(1))
	requirePartition(t, res.Solution, in.N())
	require.Equal(t, []int{1, 2, 3, 4, 5}, res.Forced)
	require.Equal(t, 5, res.Solution.VehiclesUsed())
}

func TestGreedyInsertionStrictRoutesFeasible(t *testing.T) {
	in := randomInstance(t, 10, 4, nil)
	res := GreedyInsertion(in, ModeStrict, NewRNG(9))
	requirePartition(t, res.Solution, in.N())
	for _, r := range res.Solution {
		require.True(t, in.Classify(r).OK)
	}
	cost, _ := Evaluate(res.Solution, in)
	require.InDelta(t, cost, res.Cost, 1e-9)
}

func TestGreedyInsertionSeedReproducible(t *testing.T) {
	in := randomInstance(t, 10, 4, nil)
	a := GreedyInsertion(in, ModeStrict, NewRNG(42))
	b := GreedyInsertion(in, ModeStrict, NewRNG(42))
	require.Equal(t, a.Solution, b.Solution)
	require.Equal(t, a.Cost, b.Cost)
}

func TestMultiStartPicksBest(t *testing.T) {
	in := randomInstance(t, 10, 8, nil)
	res, err := MultiStart(context.Background(), in, ModeStrict, 6, 123, 3)
	require.NoError(t, err)
	require.Len(t, res.Runs, 6)
	for _, r := range res.Runs {
		require.GreaterOrEqual(t, r.Cost, res.Best.Cost)
	}
	requirePartition(t, res.Best.Solution, in.N())

	// Worker count does not change the outcome.
	again, err := MultiStart(context.Background(), in, ModeStrict, 6, 123, 1)
	require.NoError(t, err)
	require.Equal(t, res.Best.Solution, again.Best.Solution)
	require.Equal(t, res.Best.Seed, again.Best.Seed)
}

func TestMultiStartCancelled(t *testing.T) {
	in := randomInstance(t, 6, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MultiStart(ctx, in, ModeStrict, 4, 1, 2)
	require.ErrorIs(t, err, context.Canceled)
}
