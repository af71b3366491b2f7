package domain

import (
	"fmt"
	"time"
)

// SeriesPoint is one dated observation. Raw parses carry integer counts
// widened to float64; reconciled output carries 2-decimal values.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// SubSeries is the parsed series for a single query window. Dates are
// strictly increasing; the remote's resolution depends on the window
// length (daily for quarters, weekly for years, monthly beyond).
type SubSeries struct {
	Window DateWindow    `json:"window"`
	Points []SeriesPoint `json:"points"`
}

// Validate enforces the strictly-increasing-dates invariant.
func (s SubSeries) Validate() error {
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i-1].Date.Before(s.Points[i].Date) {
			return fmt.Errorf("sub-series dates not strictly increasing at index %d (%s >= %s)",
				i, s.Points[i-1].Date.Format("2006-01-02"), s.Points[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// AllZero reports whether every point in the series has value zero.
// Empty series count as zero-valued.
func (s SubSeries) AllZero() bool {
	for _, p := range s.Points {
		if p.Value != 0 {
			return false
		}
	}
	return true
}

// Dates returns the point dates in order.
func (s SubSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Date
	}
	return out
}

// Values returns the point values in order.
func (s SubSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// AnchorSeries spans the whole query period at a coarse resolution and
// provides the absolute scale the per-window series are fitted to.
type AnchorSeries struct {
	Window DateWindow    `json:"window"`
	Points []SeriesPoint `json:"points"`
}

// MergedSeries is the reconciled output for one term across all windows.
type MergedSeries struct {
	Term   QueryTerm     `json:"term"`
	Points []SeriesPoint `json:"points"`
}

// ZeroFallbackRange is the yearly zero series emitted in degraded mode
// when a response cannot be parsed and the operator opted in to zero
// filling instead of failing the run.
func ZeroFallbackRange() []SeriesPoint {
	points := make([]SeriesPoint, 0, 11)
	for year := 2004; year <= 2014; year++ {
		points = append(points, SeriesPoint{
			Date: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return points
}
