package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"robustroute/internal/apperr"
)

func testAnnealConfig(seed int64) AnnealConfig {
	return AnnealConfig{TMax: 500, TMin: 1, Alpha: 0.9, ItersPerTemp: 50, Neighborhood: Mixed, Seed: seed}
}

func TestAnnealNeverWorseThanInitial(t *testing.T) {
	in := randomInstance(t, 12, 21, nil)
	initial := Savings(in, ModeStrict)
	initialCost, _ := Evaluate(initial, in)

	var events []EpochEvent
	res, err := Anneal(context.Background(), in, initial, testAnnealConfig(7), WithObserver(func(e EpochEvent) { events = append(events, e) }))
	require.NoError(t, err)

	require.InDelta(t, initialCost, res.InitialCost, 1e-9)
	require.LessOrEqual(t, res.BestCost, res.InitialCost)
	requirePartition(t, res.Best, in.N())
	for _, r := range res.Best {
		require.True(t, in.Classify(r).OK)
	}
	bestCost, _ := Evaluate(res.Best, in)
	require.InDelta(t, bestCost, res.BestCost, 1e-9)

	require.Equal(t, testAnnealConfig(7).Epochs(), res.Stats.Epochs)
	require.Len(t, res.Trace, res.Stats.Epochs)
	require.Len(t, events, res.Stats.Epochs)
	for i := 1; i < len(res.Trace); i++ {
		require.LessOrEqual(t, res.Trace[i].BestCost, res.Trace[i-1].BestCost)
		require.Less(t, res.Trace[i].Temperature, res.Trace[i-1].Temperature)
	}
	imps := res.Improvements()
	require.NotEmpty(t, imps)
	require.Equal(t, res.Trace[0], imps[0])
	for i := 1; i < len(imps); i++ {
		require.Less(t, imps[i].BestCost, imps[i-1].BestCost)
	}
	require.GreaterOrEqual(t, res.ImprovementPct(), 0.0)
}

func TestAnnealDoesNotMutateInitial(t *testing.T) {
	in := randomInstance(t, 8, 5, nil)
	initial := Savings(in, ModeStrict)
	snapshot := initial.Clone()
	_, err := Anneal(context.Background(), in, initial, testAnnealConfig(3))
	require.NoError(t, err)
	require.Equal(t, snapshot, initial)
}

func TestAnnealSeedReproducible(t *testing.T) {
	in := randomInstance(t, 10, 13, nil)
	initial := GreedyInsertion(in, ModeStrict, NewRNG(1)).Solution
	a, err := Anneal(context.Background(), in, initial, testAnnealConfig(99))
	require.NoError(t, err)
	b, err := Anneal(context.Background(), in, initial, testAnnealConfig(99))
	require.NoError(t, err)
	require.Equal(t, a.Best, b.Best)
	require.Equal(t, a.BestCost, b.BestCost)
	require.Equal(t, a.Trace, b.Trace)
	require.Equal(t, a.Stats.Accepted, b.Stats.Accepted)
}

func TestAnnealCountsRejections(t *testing.T) {
	// Each customer is only reachable in time straight from the depot.
	tw := Windows{}
	in0 := randomInstance(t, 8, 31, nil)
	for c := 1; c < in0.N(); c++ {
		tw[c] = &Window{Start: 0, End: in0.Matrices.Pessimistic[0][c]}
	}
	in, err := NewInstance(in0.Matrices, tw, in0.Params)
	require.NoError(t, err)

	initial := Solution{}
	for c := 1; c < in.N(); c++ {
		initial = append(initial, Route{0, c, 0})
	}
	res, err := Anneal(context.Background(), in, initial, testAnnealConfig(4))
	require.NoError(t, err)
	st := res.Stats
	require.Positive(t, st.RejectedTotal)
	require.LessOrEqual(t, st.Accepted+st.RejectedTotal, st.Attempts)
	require.LessOrEqual(t, st.RejectedBoth, st.RejectedExpected)
	require.LessOrEqual(t, st.RejectedBoth, st.RejectedPessimistic)
	require.InDelta(t, float64(st.RejectedTotal)/float64(st.Attempts), st.RejectionRate, 1e-12)
	for _, r := range res.Best {
		require.True(t, in.Classify(r).OK)
	}
}

func TestAnnealInvalidConfig(t *testing.T) {
	in := newThreeNode(t, nil, defaultParams())
	cfg := testAnnealConfig(1)
	cfg.Alpha = 1
	_, err := Anneal(context.Background(), in, Solution{{0, 1, 2, 0}}, cfg)
	require.Equal(t, apperr.CodeInvalidInput, apperr.GetCode(err))
}

func TestAnnealRejectsBrokenPartition(t *testing.T) {
	in := newThreeNode(t, nil, defaultParams())
	_, err := Anneal(context.Background(), in, Solution{{0, 1, 0}}, testAnnealConfig(1))
	require.Equal(t, apperr.CodePartitionViolation, apperr.GetCode(err))
}

func TestAnnealCancelledReturnsBestSoFar(t *testing.T) {
	in := randomInstance(t, 8, 5, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Anneal(ctx, in, Savings(in, ModeStrict), testAnnealConfig(2))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, res.Stats.Epochs)
	requirePartition(t, res.Best, in.N())
}

func TestAnnealConfigEpochs(t *testing.T) {
	require.Equal(t, 0, AnnealConfig{TMax: 1, TMin: 1, Alpha: 0.5}.Epochs())
	require.Equal(t, 3, AnnealConfig{TMax: 8, TMin: 1, Alpha: 0.5}.Epochs())
}
