package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendscli/pkg/contracts/domain"
)

func TestDeltaChain(t *testing.T) {
	points := []domain.SeriesPoint{
		{Date: date(2015, time.January, 1), Value: 50},
		{Date: date(2015, time.January, 2), Value: 100},
		{Date: date(2015, time.January, 3), Value: 25},
	}

	chain := DeltaChain(points)
	require.Len(t, chain, 3)
	assert.InDelta(t, 1.0, chain[0].Value, 1e-9)
	assert.InDelta(t, 2.0, chain[1].Value, 1e-9)
	assert.InDelta(t, 0.5, chain[2].Value, 1e-9)

	// dates ride along unchanged
	assert.Equal(t, points[0].Date, chain[0].Date)
	assert.Equal(t, points[2].Date, chain[2].Date)
}

func TestDeltaChainFirstPointIndexedToOne(t *testing.T) {
	points := []domain.SeriesPoint{
		{Date: date(2015, time.January, 1), Value: 73},
	}
	chain := DeltaChain(points)
	require.Len(t, chain, 1)
	assert.Equal(t, 1.0, chain[0].Value)
}

func TestDeltaChainBridgesInteriorZeros(t *testing.T) {
	points := []domain.SeriesPoint{
		{Date: date(2015, time.January, 1), Value: 4},
		{Date: date(2015, time.January, 2), Value: 0},
		{Date: date(2015, time.January, 3), Value: 8},
	}

	chain := DeltaChain(points)
	require.Len(t, chain, 3)
	assert.InDelta(t, 1.0, chain[0].Value, 1e-9)
	assert.InDelta(t, 1.5, chain[1].Value, 1e-9)
	assert.InDelta(t, 2.0, chain[2].Value, 1e-9)
}

func TestDeltaChainCarriesAcrossLeadingZeros(t *testing.T) {
	points := []domain.SeriesPoint{
		{Date: date(2015, time.January, 1), Value: 0},
		{Date: date(2015, time.January, 2), Value: 0},
		{Date: date(2015, time.January, 3), Value: 5},
		{Date: date(2015, time.January, 4), Value: 10},
	}

	chain := DeltaChain(points)
	require.Len(t, chain, 4)
	assert.InDelta(t, 1.0, chain[0].Value, 1e-9)
	assert.InDelta(t, 1.0, chain[1].Value, 1e-9)
	assert.InDelta(t, 1.0, chain[2].Value, 1e-9, "chain carries forward across the zero run")
	assert.InDelta(t, 2.0, chain[3].Value, 1e-9)
}

func TestDeltaChainEmpty(t *testing.T) {
	assert.Nil(t, DeltaChain(nil))
}
