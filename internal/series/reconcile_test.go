package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendscli/pkg/contracts/domain"
)

func TestMergeSingleFullSpanWindowPassesThrough(t *testing.T) {
	w := window(t, date(2020, time.January, 1), date(2020, time.April, 1))
	points := []domain.SeriesPoint{
		{Date: date(2020, time.January, 1), Value: 10},
		{Date: date(2020, time.February, 1), Value: 40},
		{Date: date(2020, time.March, 1), Value: 20},
	}

	batch := Batch{
		Anchor:  domain.AnchorSeries{Window: w, Points: points},
		Windows: []domain.SubSeries{{Window: w, Points: points}},
	}

	merged, err := NewReconciler(nil).Merge(batch)
	require.NoError(t, err)
	require.Len(t, merged, 3)
	for i, p := range points {
		assert.Equal(t, p.Date, merged[i].Date)
		assert.Equal(t, p.Value, merged[i].Value)
	}
}

func TestMergeScalesDeltaChainByAnchor(t *testing.T) {
	d0 := date(2015, time.January, 1)
	d1 := date(2015, time.January, 2)

	anchorWindow := window(t, date(2014, time.December, 18), date(2015, time.February, 1))
	subWindow := window(t, d0, date(2015, time.February, 1))

	batch := Batch{
		Anchor: domain.AnchorSeries{
			Window: anchorWindow,
			Points: []domain.SeriesPoint{
				{Date: d0, Value: 10},
				{Date: d1, Value: 20},
			},
		},
		Windows: []domain.SubSeries{{
			Window: subWindow,
			Points: []domain.SeriesPoint{
				{Date: d0, Value: 10},
				{Date: d1, Value: 30}, // ratio chain [1.0, 3.0]
			},
		}},
	}

	merged, err := NewReconciler(nil).Merge(batch)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, d0, merged[0].Date)
	assert.InDelta(t, 10.0, merged[0].Value, 1e-9)
	assert.Equal(t, d1, merged[1].Date)
	assert.InDelta(t, 60.0, merged[1].Value, 1e-9, "anchor value times delta multiplier")
}

func TestMergeChainsRestartPerWindow(t *testing.T) {
	// Two adjacent windows. Window values are chosen so a cross-window
	// chain would differ wildly from per-window chains.
	w1 := window(t, date(2015, time.January, 1), date(2015, time.January, 3))
	w2 := window(t, date(2015, time.January, 3), date(2015, time.January, 5))

	anchorWindow := window(t, date(2014, time.December, 25), date(2015, time.January, 6))
	anchor := domain.AnchorSeries{
		Window: anchorWindow,
		Points: []domain.SeriesPoint{
			{Date: date(2015, time.January, 1), Value: 50},
			{Date: date(2015, time.January, 5), Value: 50},
		},
	}

	batch := Batch{
		Anchor: anchor,
		Windows: []domain.SubSeries{
			{
				Window: w1,
				Points: []domain.SeriesPoint{
					{Date: date(2015, time.January, 1), Value: 20},
					{Date: date(2015, time.January, 2), Value: 40},
				},
			},
			{
				Window: w2,
				Points: []domain.SeriesPoint{
					{Date: date(2015, time.January, 3), Value: 90},
					{Date: date(2015, time.January, 4), Value: 45},
				},
			},
		},
	}

	merged, err := NewReconciler(nil).Merge(batch)
	require.NoError(t, err)
	require.Len(t, merged, 4)

	// window 1 chain: [1.0, 2.0]; window 2 restarts: [1.0, 0.5]
	assert.InDelta(t, 50.0, merged[0].Value, 1e-9)
	assert.InDelta(t, 100.0, merged[1].Value, 1e-9)
	assert.InDelta(t, 50.0, merged[2].Value, 1e-9, "second window restarts at 1.0")
	assert.InDelta(t, 25.0, merged[3].Value, 1e-9)

	// output dates ascend without duplicates
	for i := 1; i < len(merged); i++ {
		assert.True(t, merged[i-1].Date.Before(merged[i].Date))
	}
}

func TestMergeBoundaryOverlapLaterWindowWins(t *testing.T) {
	shared := date(2015, time.January, 3)

	w1 := window(t, date(2015, time.January, 1), shared)
	w2 := window(t, shared, date(2015, time.January, 5))
	anchorWindow := window(t, date(2014, time.December, 25), date(2015, time.January, 6))

	batch := Batch{
		Anchor: domain.AnchorSeries{
			Window: anchorWindow,
			Points: []domain.SeriesPoint{
				{Date: date(2015, time.January, 1), Value: 10},
				{Date: date(2015, time.January, 5), Value: 10},
			},
		},
		Windows: []domain.SubSeries{
			{
				Window: w1,
				Points: []domain.SeriesPoint{
					{Date: date(2015, time.January, 1), Value: 10},
					{Date: shared, Value: 40}, // multiplier 4.0 at the boundary
				},
			},
			{
				Window: w2,
				Points: []domain.SeriesPoint{
					{Date: shared, Value: 80}, // restarts at 1.0 on the same date
					{Date: date(2015, time.January, 4), Value: 80},
				},
			},
		},
	}

	merged, err := NewReconciler(nil).Merge(batch)
	require.NoError(t, err)

	var atShared *domain.SeriesPoint
	for i := range merged {
		if merged[i].Date.Equal(shared) {
			atShared = &merged[i]
		}
	}
	require.NotNil(t, atShared)
	assert.InDelta(t, 10.0, atShared.Value, 1e-9, "later window's restarted multiplier wins the boundary date")
}

func TestMergeDegradesWhenAnchorEmpty(t *testing.T) {
	w1 := window(t, date(2015, time.January, 1), date(2015, time.April, 1))
	w2 := window(t, date(2015, time.April, 1), date(2015, time.July, 1))

	batch := Batch{
		Anchor: domain.AnchorSeries{
			Window: window(t, date(2014, time.December, 18), date(2015, time.July, 1)),
			Points: []domain.SeriesPoint{{Date: date(2014, time.December, 18)}},
		},
		Windows: []domain.SubSeries{
			{Window: w1, Points: []domain.SeriesPoint{{Date: date(2015, time.January, 1)}}},
			{Window: w2, Points: nil},
		},
	}

	merged, err := NewReconciler(nil).Merge(batch)
	require.NoError(t, err)
	require.NotEmpty(t, merged)

	assert.Equal(t, date(2015, time.January, 1), merged[0].Date)
	assert.Equal(t, date(2015, time.June, 1), merged[len(merged)-1].Date)
	for _, p := range merged {
		assert.Zero(t, p.Value)
		assert.Equal(t, p.Value, float64(int64(p.Value)), "degraded values are integers")
	}
}

func TestMergeRoundsToTwoDecimals(t *testing.T) {
	d0 := date(2015, time.January, 1)
	d1 := date(2015, time.January, 2)
	d2 := date(2015, time.January, 3)

	batch := Batch{
		Anchor: domain.AnchorSeries{
			Window: window(t, date(2014, time.December, 25), date(2015, time.February, 1)),
			Points: []domain.SeriesPoint{
				{Date: d0, Value: 10},
				{Date: d2, Value: 10},
			},
		},
		Windows: []domain.SubSeries{{
			Window: window(t, d0, date(2015, time.February, 1)),
			Points: []domain.SeriesPoint{
				{Date: d0, Value: 3},
				{Date: d1, Value: 1},
				{Date: d2, Value: 2},
			},
		}},
	}

	merged, err := NewReconciler(nil).Merge(batch)
	require.NoError(t, err)
	require.Len(t, merged, 3)
	// chain: [1, 1/3, 2/3]; anchor flat 10 -> [10, 3.33, 6.67]
	assert.InDelta(t, 10.0, merged[0].Value, 1e-9)
	assert.InDelta(t, 3.33, merged[1].Value, 1e-9)
	assert.InDelta(t, 6.67, merged[2].Value, 1e-9)
}

func TestMergeRejectsUnsortedWindow(t *testing.T) {
	w := window(t, date(2015, time.January, 1), date(2015, time.April, 1))
	batch := Batch{
		Anchor: domain.AnchorSeries{Window: w},
		Windows: []domain.SubSeries{{
			Window: w,
			Points: []domain.SeriesPoint{
				{Date: date(2015, time.February, 1), Value: 1},
				{Date: date(2015, time.January, 1), Value: 2},
			},
		}},
	}

	_, err := NewReconciler(nil).Merge(batch)
	assert.Error(t, err)
}

func TestMergeEmptyBatch(t *testing.T) {
	merged, err := NewReconciler(nil).Merge(Batch{
		Anchor: domain.AnchorSeries{
			Window: window(t, date(2015, time.January, 1), date(2015, time.April, 1)),
			Points: []domain.SeriesPoint{
				{Date: date(2015, time.January, 1), Value: 5},
				{Date: date(2015, time.March, 1), Value: 7},
			},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, merged, "a term with no window data merges to an empty series")
}
