package series

import "trendscli/pkg/contracts/domain"

// DeltaChain collapses one window's series into delta-of-interest
// multipliers: the first point is indexed to 1.0 and every later point
// carries the running product of consecutive ratios, i.e. the value
// relative to the window's first point. The absolute window scale is
// discarded entirely; only relative movement survives.
//
// Zero denominators never divide: interior zero runs are bridged by
// linear interpolation first, and across an unbridgeable leading zero
// run the chain carries forward unchanged.
func DeltaChain(points []domain.SeriesPoint) []domain.SeriesPoint {
	if len(points) == 0 {
		return nil
	}

	values := bridgeZeros(valuesOf(points))

	out := make([]domain.SeriesPoint, len(points))
	out[0] = domain.SeriesPoint{Date: points[0].Date, Value: 1.0}
	for i := 1; i < len(points); i++ {
		prev := values[i-1]
		mult := out[i-1].Value
		if prev != 0 {
			mult = out[i-1].Value * (values[i] / prev)
		}
		out[i] = domain.SeriesPoint{Date: points[i].Date, Value: mult}
	}
	return out
}

func valuesOf(points []domain.SeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
