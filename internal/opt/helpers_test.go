package opt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultParams() Params {
	return Params{
		DayHorizon:           600,
		CostPerKm:            1,
		VehicleFixedCost:     900,
		PenaltyHorizonPerMin: 120,
		TimeWeight:           1,
	}
}

// threeNode is the depot plus two customers, 10 minutes from the depot and 5 apart.
func threeNode() Matrices {
	e := Matrix{
		{0, 10, 10},
		{10, 0, 5},
		{10, 5, 0},
	}
	return Matrices{Expected: e, Pessimistic: e}
}

func scale(m Matrix, f float64) Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v * f
		}
	}
	return out
}

// randomInstance places n-1 customers on a 60x60 grid around the depot.
func randomInstance(t *testing.T, n int, seed int64, tw Windows) *Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	xs, ys := make([]float64, n), make([]float64, n)
	for i := 1; i < n; i++ {
		xs[i], ys[i] = rng.Float64()*60-30, rng.Float64()*60-30
	}
	e := make(Matrix, n)
	for i := range e {
		e[i] = make([]float64, n)
		for j := range e[i] {
			e[i][j] = math.Round(math.Hypot(xs[i]-xs[j], ys[i]-ys[j])*100) / 100
		}
	}
	in, err := NewInstance(Matrices{Expected: e, Pessimistic: scale(e, 1.3), DistanceKm: scale(e, 0.8)}, tw, defaultParams())
	require.NoError(t, err)
	return in
}

func requirePartition(t *testing.T, sol Solution, n int) {
	t.Helper()
	require.NoError(t, sol.Validate(n))
}
