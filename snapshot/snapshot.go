// Package snapshot derives the current-versus-previous comparison shown in a
// report: per-metric percent deltas plus passthrough payback fields.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"qbrreport/dataset"
)

// Delta is a whole-number percent change that may be absent, in the manner of
// sql.NullInt64. Absent deltas encode as JSON null.
type Delta struct {
	Pct   int
	Valid bool
}

// Of returns a present delta.
func Of(pct int) Delta {
	return Delta{Pct: pct, Valid: true}
}

// Or returns the delta or def when absent.
func (d Delta) Or(def int) int {
	if !d.Valid {
		return def
	}
	return d.Pct
}

// String renders "+2%", "-15%", "0%", or "n/a" when absent.
func (d Delta) String() string {
	if !d.Valid {
		return "n/a"
	}
	if d.Pct > 0 {
		return fmt.Sprintf("+%d%%", d.Pct)
	}
	return fmt.Sprintf("%d%%", d.Pct)
}

func (d Delta) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.Pct)
}

func (d *Delta) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Delta{}
		return nil
	}
	var pct int
	if err := json.Unmarshal(data, &pct); err != nil {
		return err
	}
	*d = Of(pct)
	return nil
}

// PercentChange returns round((current-previous)/previous*100). The delta is
// absent when either value is missing or previous is zero. Halves round to
// even; the difference is scaled before dividing so exact halves stay exact.
func PercentChange(current, previous *float64) Delta {
	if current == nil || previous == nil || *previous == 0 {
		return Delta{}
	}
	pct := (*current - *previous) * 100 / *previous
	if math.IsNaN(pct) || math.IsInf(pct, 0) || math.Abs(pct) > math.MaxInt32 {
		return Delta{}
	}
	return Of(int(math.RoundToEven(pct)))
}

// Metric pairs a current value with its change against the previous period.
type Metric struct {
	Current  *float64 `json:"current"`
	Previous *float64 `json:"previous"`
	Delta    Delta    `json:"delta_pct"`
}

// Snapshot is the derived comparison for one entity and period pair.
type Snapshot struct {
	TotalFinancialImpact  Metric                `json:"total_financial_impact_usd"`
	WaterCostAvoided      Metric                `json:"water_cost_avoided_usd"`
	EnergyCostAvoided     Metric                `json:"energy_cost_avoided_usd"`
	DowntimeCostAvoided   Metric                `json:"downtime_cost_avoided_usd"`
	ROIMultipleToDate     *float64              `json:"roi_multiple_to_date"`
	PaybackStatus         dataset.PaybackStatus `json:"payback_status"`
	PaybackAchievedMonth  *string               `json:"payback_achieved_month"`
	TotalInvestmentToDate *float64              `json:"total_investment_to_date_usd"`
}

// Build compares two records. It returns false when either is absent.
func Build(current, previous *dataset.MetricRecord) (*Snapshot, bool) {
	if current == nil || previous == nil {
		return nil, false
	}
	metric := func(cur, prev *float64) Metric {
		return Metric{Current: cur, Previous: prev, Delta: PercentChange(cur, prev)}
	}
	return &Snapshot{
		TotalFinancialImpact:  metric(current.TotalFinancialImpactUSD, previous.TotalFinancialImpactUSD),
		WaterCostAvoided:      metric(current.WaterCostAvoidedUSD, previous.WaterCostAvoidedUSD),
		EnergyCostAvoided:     metric(current.EnergyCostAvoidedUSD, previous.EnergyCostAvoidedUSD),
		DowntimeCostAvoided:   metric(current.DowntimeCostAvoidedUSD, previous.DowntimeCostAvoidedUSD),
		ROIMultipleToDate:     current.ROIMultipleToDate,
		PaybackStatus:         current.PaybackStatus,
		PaybackAchievedMonth:  current.PaybackAchievedMonth,
		TotalInvestmentToDate: current.TotalInvestmentToDateUSD,
	}, true
}
