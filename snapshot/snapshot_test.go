package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbrreport/dataset"
)

func TestPercentChangeRoundsToNearest(t *testing.T) {
	// 53000 vs 52000 is +1.92%.
	d := PercentChange(dataset.Float(53000), dataset.Float(52000))
	assert.Equal(t, Of(2), d)

	d = PercentChange(dataset.Float(8500), dataset.Float(10000))
	assert.Equal(t, Of(-15), d)
}

func TestPercentChangeHalvesRoundToEven(t *testing.T) {
	cases := []struct {
		current float64
		want    int
	}{
		{201, 0},  // +0.5
		{203, 2},  // +1.5
		{205, 2},  // +2.5
		{199, 0},  // -0.5
		{197, -2}, // -1.5
	}
	for _, tc := range cases {
		got := PercentChange(dataset.Float(tc.current), dataset.Float(200))
		assert.Equal(t, Of(tc.want), got, "current=%v", tc.current)
	}
}

func TestPercentChangeAbsent(t *testing.T) {
	assert.False(t, PercentChange(dataset.Float(10), dataset.Float(0)).Valid)
	assert.False(t, PercentChange(dataset.Float(10), nil).Valid)
	assert.False(t, PercentChange(nil, dataset.Float(10)).Valid)
}

func TestDeltaRendering(t *testing.T) {
	assert.Equal(t, "+2%", Of(2).String())
	assert.Equal(t, "-15%", Of(-15).String())
	assert.Equal(t, "0%", Of(0).String())
	assert.Equal(t, "n/a", Delta{}.String())
	assert.Equal(t, 0, Delta{}.Or(0))
	assert.Equal(t, -3, Of(-3).Or(0))
}

func TestDeltaJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Delta `json:"a"`
		B Delta `json:"b"`
	}{A: Of(-4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":-4,"b":null}`, string(data))

	var decoded struct {
		A Delta `json:"a"`
		B Delta `json:"b"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Of(-4), decoded.A)
	assert.False(t, decoded.B.Valid)
}

func TestBuild(t *testing.T) {
	month := "2025-08"
	cur := &dataset.MetricRecord{
		TotalFinancialImpactUSD:  dataset.Float(53000),
		WaterCostAvoidedUSD:      dataset.Float(8500),
		EnergyCostAvoidedUSD:     dataset.Float(24500),
		TotalInvestmentToDateUSD: dataset.Float(100000),
		ROIMultipleToDate:        dataset.Float(1.85),
		PaybackStatus:            dataset.PaybackAchieved,
		PaybackAchievedMonth:     &month,
	}
	prev := &dataset.MetricRecord{
		TotalFinancialImpactUSD: dataset.Float(52000),
		WaterCostAvoidedUSD:     dataset.Float(10000),
		EnergyCostAvoidedUSD:    dataset.Float(25000),
		DowntimeCostAvoidedUSD:  dataset.Float(0),
		PaybackStatus:           dataset.PaybackInProgress,
	}
	snap, ok := Build(cur, prev)
	require.True(t, ok)
	assert.Equal(t, Of(2), snap.TotalFinancialImpact.Delta)
	assert.Equal(t, Of(-15), snap.WaterCostAvoided.Delta)
	assert.Equal(t, Of(-2), snap.EnergyCostAvoided.Delta)
	assert.False(t, snap.DowntimeCostAvoided.Delta.Valid)
	assert.Equal(t, dataset.PaybackAchieved, snap.PaybackStatus)
	assert.Equal(t, &month, snap.PaybackAchievedMonth)
	assert.Equal(t, 1.85, *snap.ROIMultipleToDate)
	assert.Equal(t, 100000.0, *snap.TotalInvestmentToDate)
}

func TestBuildAbsentRecord(t *testing.T) {
	_, ok := Build(&dataset.MetricRecord{}, nil)
	assert.False(t, ok)
	_, ok = Build(nil, &dataset.MetricRecord{})
	assert.False(t, ok)
}
