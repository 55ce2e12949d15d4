package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rs/zerolog"
)

// Factors scale a single travel-time estimate into the other scenarios.
type Factors struct {
	Pessimistic float64 `json:"pessimistic" yaml:"pessimistic"`
	Optimistic  float64 `json:"optimistic" yaml:"optimistic"`
}

// DefaultFactors: 30% slower under traffic or weather, 15% faster off-peak.
var DefaultFactors = Factors{Pessimistic: 1.3, Optimistic: 0.85}

// scenarioColumns is the output layout of Perturb.
var scenarioColumns = []string{
	ColStart, ColEnd, "StartTyp", "EndTyp", "StartUlica", "StartMiasto", "EndUlica", "EndMiasto",
	ColWindow, ColDistance, ColExpected, ColPessimistic, ColOptimistic,
}

// PerturbStats counts the rows written by Perturb.
type PerturbStats struct {
	Rows   int `json:"rows"`
	Failed int `json:"failed"`
}

// Perturb reads a single-scenario edge list (Duration_time, or
// Duration_time_expected) and writes the three-scenario layout with values
// rounded to two decimals. A row whose duration does not parse is kept with
// empty duration columns and counted as failed.
func Perturb(r io.Reader, w io.Writer, f Factors, log zerolog.Logger) (PerturbStats, error) {
	var st PerturbStats
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	h, err := readHeader(cr)
	if err != nil {
		return st, err
	}
	src := ColDuration
	if !h.has(src) {
		src = ColExpected
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(scenarioColumns); err != nil {
		return st, fmt.Errorf("write header: %w", err)
	}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("read row %d: %w", st.Rows+2, err)
		}
		out := make([]string, len(scenarioColumns))
		for i, col := range scenarioColumns[:10] {
			out[i] = h.get(row, col)
		}
		d, perr := strconv.ParseFloat(h.get(row, src), 64)
		if perr == nil {
			out[10] = formatMinutes(d)
			out[11] = formatMinutes(d * f.Pessimistic)
			out[12] = formatMinutes(d * f.Optimistic)
			log.Debug().Str("from", out[0]).Str("to", out[1]).Float64("minutes", d).Msg("scenario row")
		} else {
			st.Failed++
			log.Warn().Str("from", out[0]).Str("to", out[1]).Err(perr).Msg("scenario row without duration")
		}
		if err := cw.Write(out); err != nil {
			return st, fmt.Errorf("write row: %w", err)
		}
		st.Rows++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return st, fmt.Errorf("flush: %w", err)
	}
	return st, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func formatMinutes(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}
