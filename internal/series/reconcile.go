package series

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"trendscli/pkg/contracts/domain"
)

// Batch is everything the reconciler needs for one term: the ordered
// per-window series and the full-span anchor series that supplies the
// consistent scale.
type Batch struct {
	Anchor  domain.AnchorSeries
	Windows []domain.SubSeries
}

// Reconciler merges independently-normalized window series against a
// full-span anchor. It is stateless; one instance serves any number of
// concurrent runs.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler builds a reconciler logging through the given logger.
func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger.With(slog.String("component", "reconciler"))}
}

// Merge produces the reconciled series for one batch. The output dates
// are ascending with no duplicates and never extend past the anchor
// span; values carry two decimals. An empty result is valid: a term
// with no data anywhere merges to an empty series, not an error.
func (r *Reconciler) Merge(batch Batch) ([]domain.SeriesPoint, error) {
	for i, w := range batch.Windows {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("window %d (%s): %w", i, w.Window, err)
		}
	}

	// One window covering the whole span is already normalized over
	// that span; rescaling it against itself would distort it.
	if len(batch.Windows) == 1 && sameSpan(batch.Windows[0].Window, batch.Anchor.Window) {
		return roundAll(batch.Windows[0].Points), nil
	}

	windows := expandZeroWindows(batch.Windows)

	// An anchor with at most one usable point means the remote had no
	// data across the whole span: degrade to a direct interpolation of
	// the concatenated window points with integer values.
	if len(batch.Anchor.Points) <= 1 {
		r.logger.Warn("anchor series degenerate, interpolating raw window points",
			slog.Int("anchor_points", len(batch.Anchor.Points)),
			slog.Int("windows", len(windows)))
		return degradeToConcat(windows), nil
	}

	// Delta multipliers per day across all windows. Ratio chains
	// restart at every window boundary; on a shared boundary date the
	// later window wins.
	multipliers := make(map[int64]float64)
	for _, w := range windows {
		for _, p := range InterpolateDaily(DeltaChain(w.Points)) {
			multipliers[dayKey(p.Date)] = p.Value
		}
	}

	merged := make([]domain.SeriesPoint, 0, len(multipliers))
	for _, a := range InterpolateDaily(batch.Anchor.Points) {
		mult, ok := multipliers[dayKey(a.Date)]
		if !ok {
			continue
		}
		merged = append(merged, domain.SeriesPoint{Date: a.Date, Value: round2(a.Value * mult)})
	}

	r.logger.Debug("batch merged",
		slog.Int("windows", len(windows)),
		slog.Int("merged_points", len(merged)))
	return merged, nil
}

// expandZeroWindows replaces all-zero windows (including the single
// synthetic sample a no-data response leaves behind) with one zero
// point per month across the window, so the degraded paths keep date
// coverage.
func expandZeroWindows(windows []domain.SubSeries) []domain.SubSeries {
	out := make([]domain.SubSeries, len(windows))
	for i, w := range windows {
		out[i] = w
		if w.AllZero() {
			out[i].Points = monthlyZeros(w.Window)
		}
	}
	return out
}

// degradeToConcat interpolates straight across the concatenated window
// points, truncating to integers. Duplicate boundary dates collapse,
// later window winning.
func degradeToConcat(windows []domain.SubSeries) []domain.SeriesPoint {
	byDay := make(map[int64]domain.SeriesPoint)
	for _, w := range windows {
		for _, p := range w.Points {
			byDay[dayKey(p.Date)] = p
		}
	}
	if len(byDay) == 0 {
		return nil
	}

	points := make([]domain.SeriesPoint, 0, len(byDay))
	for _, p := range byDay {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	interp := InterpolateDaily(points)
	for i := range interp {
		interp[i].Value = math.Trunc(interp[i].Value)
	}
	return interp
}

func sameSpan(a, b domain.DateWindow) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End)
}

func roundAll(points []domain.SeriesPoint) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, len(points))
	for i, p := range points {
		out[i] = domain.SeriesPoint{Date: p.Date, Value: round2(p.Value)}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func dayKey(t time.Time) int64 {
	return dayStart(t).Unix()
}
