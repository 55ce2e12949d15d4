package opt

import (
	"sort"
	"sync"
	"time"
)

// RunRecord summarises a finished search for the run listing.
type RunRecord struct {
	Dataset   string    `json:"dataset"`
	Algorithm string    `json:"algorithm"`
	Cost      float64   `json:"cost"`
	Metrics   Metrics   `json:"metrics"`
	Finished  time.Time `json:"finished_at"`
}

type runKey struct {
	Dataset   string
	Algorithm string
}

var (
	runsMu sync.Mutex
	runs   = map[runKey]RunRecord{}
)

// RecordRun keeps the latest record per dataset and algorithm.
func RecordRun(r RunRecord) {
	if r.Finished.IsZero() {
		r.Finished = time.Now().UTC()
	}
	runsMu.Lock()
	runs[runKey{Dataset: r.Dataset, Algorithm: r.Algorithm}] = r
	runsMu.Unlock()
}

// Runs returns the records for dataset, or all of them when dataset is empty,
// newest first.
func Runs(dataset string) []RunRecord {
	runsMu.Lock()
	out := make([]RunRecord, 0, len(runs))
	for k, v := range runs {
		if dataset == "" || k.Dataset == dataset {
			out = append(out, v)
		}
	}
	runsMu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		if !out[a].Finished.Equal(out[b].Finished) {
			return out[a].Finished.After(out[b].Finished)
		}
		return out[a].Algorithm < out[b].Algorithm
	})
	return out
}
