package opt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newThreeNode(t *testing.T, tw Windows, p Params) *Instance {
	t.Helper()
	in, err := NewInstance(threeNode(), tw, p)
	require.NoError(t, err)
	return in
}

func TestEvaluateSingleRoute(t *testing.T) {
	in := newThreeNode(t, nil, defaultParams())
	cost, m := Evaluate(Solution{{0, 1, 2, 0}}, in)

	require.InDelta(t, 950.0, cost, 1e-9)
	require.Equal(t, cost, m.TotalCost)
	require.InDelta(t, 25.0, m.TotalDistance, 1e-9)
	require.Equal(t, 1, m.VehiclesUsed)
	require.Equal(t, 2, m.Visits)
	require.Equal(t, []float64{25}, m.RouteEndE)
	require.InDelta(t, 25.0, m.CostDistance, 1e-9)
	require.InDelta(t, 900.0, m.CostVehicle, 1e-9)
	require.Zero(t, m.CostHorizon)
	require.InDelta(t, 25.0, m.CostTime, 1e-9)
	require.InDelta(t, m.TotalCost, m.CostDistance+m.CostVehicle+m.CostHorizon+m.CostTime, 1e-9)
}

func TestEvaluateHorizonPenalty(t *testing.T) {
	p := defaultParams()
	p.DayHorizon = 20
	in := newThreeNode(t, nil, p)
	cost, m := Evaluate(Solution{{0, 1, 2, 0}}, in)
	require.InDelta(t, 5.0, m.HorizonExcess, 1e-9)
	require.InDelta(t, 600.0, m.CostHorizon, 1e-9)
	require.InDelta(t, 1550.0, cost, 1e-9)
}

func TestEvaluateWaitingIsDiagnostic(t *testing.T) {
	in := newThreeNode(t, Windows{1: {Start: 15, End: 100}}, defaultParams())
	cost, m := Evaluate(Solution{{0, 1, 2, 0}}, in)
	require.InDelta(t, 5.0, m.WaitingTotal, 1e-9)
	require.Equal(t, []float64{30}, m.RouteEndE)
	// Waiting only moves the end time: 25 distance + 900 vehicle + 30 time.
	require.InDelta(t, 955.0, cost, 1e-9)
}

func TestEvaluateLatenessNotInObjective(t *testing.T) {
	m := threeNode()
	m.Pessimistic = scale(m.Expected, 2)
	in, err := NewInstance(m, Windows{2: {Start: 0, End: 15}}, defaultParams())
	require.NoError(t, err)

	cost, met := Evaluate(Solution{{0, 1, 2, 0}}, in)
	require.InDelta(t, 15.0, met.LatenessPSum, 1e-9)
	require.Equal(t, []float64{50}, met.RouteEndP)
	require.InDelta(t, 950.0, cost, 1e-9)
}

func TestEvaluateDistanceMatrixPreferred(t *testing.T) {
	m := threeNode()
	m.DistanceKm = scale(m.Expected, 0.5)
	in, err := NewInstance(m, nil, defaultParams())
	require.NoError(t, err)
	_, met := Evaluate(Solution{{0, 1, 2, 0}}, in)
	require.InDelta(t, 12.5, met.TotalDistance, 1e-9)
	require.Equal(t, []float64{12.5}, met.RouteDistance)
}

func TestEvaluateSkipsEmptyRoutes(t *testing.T) {
	in := newThreeNode(t, nil, defaultParams())
	cost, m := Evaluate(Solution{{0, 0}, {0, 1, 0}, {0, 2, 0}}, in)
	require.Equal(t, 2, m.VehiclesUsed)
	require.Len(t, m.RouteEndE, 2)
	require.InDelta(t, 40.0+1800.0+40.0, cost, 1e-9)
	require.InDelta(t, 20.0, m.AvgRouteTimeE, 1e-9)
	require.InDelta(t, 20.0, m.MakespanE, 1e-9)
}

func TestEvaluateServiceTimeTotals(t *testing.T) {
	p := defaultParams()
	p.ServiceTime = 3
	in := newThreeNode(t, nil, p)
	_, m := Evaluate(Solution{{0, 1, 2, 0}}, in)
	require.Equal(t, 3.0, m.ServiceTimePerVisit)
	require.Equal(t, 6.0, m.TotalServiceTime)
	require.Equal(t, []float64{31}, m.RouteEndE)
}

func TestEvaluateNonNegative(t *testing.T) {
	in := randomInstance(t, 9, 3, nil)
	sol := Savings(in, ModeIgnoreAll)
	cost, m := Evaluate(sol, in)
	require.GreaterOrEqual(t, cost, 0.0)
	for _, v := range []float64{m.CostDistance, m.CostVehicle, m.CostHorizon, m.CostTime, m.WaitingTotal, m.HorizonExcess} {
		require.GreaterOrEqual(t, v, 0.0)
	}
}

func TestMetricsDelta(t *testing.T) {
	in := newThreeNode(t, nil, defaultParams())
	_, before := Evaluate(Solution{{0, 1, 0}, {0, 2, 0}}, in)
	_, after := Evaluate(Solution{{0, 1, 2, 0}}, in)
	d := after.Delta(before)
	require.Equal(t, -1, d.VehiclesUsed)
	require.InDelta(t, -15.0, d.TotalDistance, 1e-9)
	require.InDelta(t, after.TotalCost-before.TotalCost, d.TotalCost, 1e-9)
}
