package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"robustroute/internal/opt"
)

func TestObserveAnneal(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	before := testutil.ToFloat64(AnnealMoves.WithLabelValues("rejected_both"))
	ObserveAnneal(opt.AnnealStats{Accepted: 3, Improving: 1, RejectedBoth: 2})
	require.Equal(t, before+2, testutil.ToFloat64(AnnealMoves.WithLabelValues("rejected_both")))

	n, err := testutil.GatherAndCount(Registry, "anneal_moves_total")
	require.NoError(t, err)
	require.Equal(t, 5, n)
}
