package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendscli/pkg/contracts/domain"
)

func TestInterpolateDaily(t *testing.T) {
	weekly := []domain.SeriesPoint{
		{Date: date(2015, time.January, 4), Value: 10},
		{Date: date(2015, time.January, 11), Value: 24},
		{Date: date(2015, time.January, 18), Value: 24},
	}

	daily := InterpolateDaily(weekly)
	require.Len(t, daily, 15, "one point per day from first to last date")

	assert.Equal(t, date(2015, time.January, 4), daily[0].Date)
	assert.Equal(t, 10.0, daily[0].Value)

	// linear fill between the first two knowns: +2 per day
	assert.InDelta(t, 12.0, daily[1].Value, 1e-9)
	assert.InDelta(t, 18.0, daily[4].Value, 1e-9)

	assert.Equal(t, date(2015, time.January, 11), daily[7].Date)
	assert.Equal(t, 24.0, daily[7].Value)

	// flat segment stays flat
	assert.Equal(t, 24.0, daily[10].Value)
	assert.Equal(t, date(2015, time.January, 18), daily[14].Date)
	assert.Equal(t, 24.0, daily[14].Value)
}

func TestInterpolateDailyNoExtrapolation(t *testing.T) {
	points := []domain.SeriesPoint{
		{Date: date(2015, time.March, 1), Value: 5},
		{Date: date(2015, time.March, 3), Value: 7},
	}
	daily := InterpolateDaily(points)
	require.Len(t, daily, 3)
	assert.Equal(t, date(2015, time.March, 1), daily[0].Date)
	assert.Equal(t, date(2015, time.March, 3), daily[2].Date)
}

func TestInterpolateDailyDegenerate(t *testing.T) {
	assert.Empty(t, InterpolateDaily(nil))

	single := []domain.SeriesPoint{{Date: date(2015, time.January, 1), Value: 3}}
	out := InterpolateDaily(single)
	require.Len(t, out, 1)
	assert.Equal(t, 3.0, out[0].Value)
}

func TestBridgeZeros(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []float64
	}{
		{
			name:   "interior gap bridged",
			values: []float64{4, 0, 8},
			want:   []float64{4, 6, 8},
		},
		{
			name:   "longer gap bridged linearly",
			values: []float64{3, 0, 0, 9},
			want:   []float64{3, 5, 7, 9},
		},
		{
			name:   "leading zeros untouched",
			values: []float64{0, 0, 5, 10},
			want:   []float64{0, 0, 5, 10},
		},
		{
			name:   "trailing zeros untouched",
			values: []float64{5, 10, 0},
			want:   []float64{5, 10, 0},
		},
		{
			name:   "all zeros untouched",
			values: []float64{0, 0, 0},
			want:   []float64{0, 0, 0},
		},
		{
			name:   "no zeros unchanged",
			values: []float64{1, 2, 3},
			want:   []float64{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bridgeZeros(tt.values)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9, "index %d", i)
			}
		})
	}
}

func TestMonthlyZeros(t *testing.T) {
	w := domain.DateWindow{
		Start: date(2015, time.January, 15),
		End:   date(2015, time.April, 1),
	}
	points := monthlyZeros(w)
	require.Len(t, points, 3)
	assert.Equal(t, date(2015, time.January, 1), points[0].Date)
	assert.Equal(t, date(2015, time.March, 1), points[2].Date)
	for _, p := range points {
		assert.Zero(t, p.Value)
	}
}
