package series

import (
	"time"

	"trendscli/pkg/contracts/domain"
)

// InterpolateDaily resamples a series onto a one-day grid between its
// first and last dates. Gaps fill by linear interpolation between the
// two nearest known points; nothing is extrapolated past the series'
// own boundaries. Input dates must be strictly increasing.
func InterpolateDaily(points []domain.SeriesPoint) []domain.SeriesPoint {
	if len(points) < 2 {
		out := make([]domain.SeriesPoint, len(points))
		copy(out, points)
		return out
	}

	first := dayStart(points[0].Date)
	last := dayStart(points[len(points)-1].Date)

	out := make([]domain.SeriesPoint, 0, int(last.Sub(first).Hours()/24)+1)
	seg := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		for seg < len(points)-2 && !d.Before(dayStart(points[seg+1].Date)) {
			seg++
		}
		left := points[seg]
		right := points[seg+1]

		leftDay := dayStart(left.Date)
		rightDay := dayStart(right.Date)

		var value float64
		switch {
		case !d.After(leftDay):
			value = left.Value
		case !d.Before(rightDay):
			value = right.Value
		default:
			span := rightDay.Sub(leftDay).Hours() / 24
			weight := d.Sub(leftDay).Hours() / 24 / span
			value = left.Value*(1-weight) + right.Value*weight
		}
		out = append(out, domain.SeriesPoint{Date: d, Value: value})
	}
	return out
}

// bridgeZeros replaces interior runs of zeros with values linearly
// interpolated between the flanking non-zero neighbours, so ratio
// chains never divide by zero mid-series. Leading and trailing zero
// runs have no neighbour on one side and stay zero.
func bridgeZeros(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	left := -1 // index of the last non-zero seen
	for i := 0; i < len(out); i++ {
		if out[i] != 0 {
			if left >= 0 && i-left > 1 {
				span := float64(i - left)
				for j := left + 1; j < i; j++ {
					weight := float64(j-left) / span
					out[j] = out[left]*(1-weight) + out[i]*weight
				}
			}
			left = i
		}
	}
	return out
}

// monthlyZeros expands a window into one zero-valued point per month,
// used when the remote reported no data for the whole window.
func monthlyZeros(window domain.DateWindow) []domain.SeriesPoint {
	var out []domain.SeriesPoint
	m := time.Date(window.Start.Year(), window.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for m.Before(window.End) {
		out = append(out, domain.SeriesPoint{Date: m})
		m = m.AddDate(0, 1, 0)
	}
	return out
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
