// Package aggregate distributes multi-term report tables across the
// terms that were queried together and accumulates each term's
// per-window series over the course of a run.
package aggregate

import (
	"fmt"

	"trendscli/internal/series"
	"trendscli/pkg/contracts/domain"
)

// Distribute splits one window's parsed table column-wise: column k
// becomes term k's sub-series for that window, dates preserved. Every
// data row must carry exactly one value per term; a mismatch is a
// FormatError, never a silent drop. An empty table distributes to
// empty sub-series, which downstream treats as a zero window.
func Distribute(window domain.DateWindow, table *series.Table, terms []domain.QueryTerm) ([]domain.SubSeries, error) {
	if len(terms) == 0 {
		return nil, series.NewFormatError(window, "no terms to distribute columns to")
	}
	if got := table.ValueColumns(); got != 0 && got != len(terms) {
		return nil, series.NewFormatError(window, fmt.Sprintf(
			"report carries %d value columns for %d terms", got, len(terms)))
	}

	out := make([]domain.SubSeries, len(terms))
	for k := range out {
		out[k] = domain.SubSeries{Window: window}
	}

	for _, row := range table.Rows {
		if len(row.Values) != len(terms) {
			return nil, series.NewFormatError(window, fmt.Sprintf(
				"row %s carries %d values for %d terms",
				row.Date.Format("2006-01-02"), len(row.Values), len(terms)))
		}
		for k, v := range row.Values {
			out[k].Points = append(out[k].Points, domain.SeriesPoint{Date: row.Date, Value: v})
		}
	}

	return out, nil
}

// Accumulator gathers each term's sub-series as a run's windows come
// back. Windows must be added in plan order: the reconciler consumes
// them as given and lets later windows win shared boundary dates. Not
// safe for concurrent use; a run fetches its windows sequentially.
type Accumulator struct {
	terms   []domain.QueryTerm
	anchors []domain.AnchorSeries
	perTerm [][]domain.SubSeries
}

// NewAccumulator builds an accumulator for one run's terms, in query
// order. Until SetAnchor is called every term carries an empty anchor,
// which the reconciler degrades on.
func NewAccumulator(terms []domain.QueryTerm) *Accumulator {
	return &Accumulator{
		terms:   terms,
		anchors: make([]domain.AnchorSeries, len(terms)),
		perTerm: make([][]domain.SubSeries, len(terms)),
	}
}

// Add distributes one window's table across the terms and appends the
// resulting sub-series to each term's accumulation.
func (a *Accumulator) Add(window domain.DateWindow, table *series.Table) error {
	subs, err := Distribute(window, table, a.terms)
	if err != nil {
		return err
	}
	for k := range subs {
		a.perTerm[k] = append(a.perTerm[k], subs[k])
	}
	return nil
}

// AddToAll appends the same sub-series to every term, which is how the
// zero sample standing in for a no-data window enters the run.
func (a *Accumulator) AddToAll(sub domain.SubSeries) {
	for k := range a.perTerm {
		a.perTerm[k] = append(a.perTerm[k], sub)
	}
}

// SetAnchor distributes the anchor window's table and records each
// term's anchor series. Passing an empty table (an anchor query the
// remote had no data for) leaves every anchor pointless, putting the
// whole run on the degraded path.
func (a *Accumulator) SetAnchor(window domain.DateWindow, table *series.Table) error {
	subs, err := Distribute(window, table, a.terms)
	if err != nil {
		return err
	}
	for k := range subs {
		a.anchors[k] = domain.AnchorSeries{Window: window, Points: subs[k].Points}
	}
	return nil
}

// Terms returns the run's terms in query order.
func (a *Accumulator) Terms() []domain.QueryTerm {
	return a.terms
}

// WindowsFor returns term k's accumulated sub-series in the order the
// windows were added, or nil for an out-of-range index. The slice is
// shared, not copied.
func (a *Accumulator) WindowsFor(k int) []domain.SubSeries {
	if k < 0 || k >= len(a.perTerm) {
		return nil
	}
	return a.perTerm[k]
}

// Batches pairs every term's anchor with its accumulated windows,
// index-aligned with Terms, ready for the reconciler.
func (a *Accumulator) Batches() []series.Batch {
	out := make([]series.Batch, len(a.perTerm))
	for k := range a.perTerm {
		out[k] = series.Batch{Anchor: a.anchors[k], Windows: a.perTerm[k]}
	}
	return out
}
