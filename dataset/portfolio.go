package dataset

import (
	"errors"
	"math"
	"sort"

	"qbrreport/period"
)

// ErrNoComparableHotels is returned when no hotel in a property has both the
// requested period and an earlier one to compare against.
var ErrNoComparableHotels = errors.New("no hotel has a comparable previous period")

// Portfolio aggregates every hotel that has both currentKey and a previous
// period into a single entity with exactly those two periods. Totals are
// summed, alert percentages averaged, and ROI recomputed from the totals.
// A hotel contributes a field to either period only when it reports that
// field in both, so the two aggregates always cover the same hotels.
func (d *Dataset) Portfolio(p *Property, currentKey string) (*Entity, error) {
	var currents, previouses []MetricRecord
	var options []ExpansionOption
	curKey, prevKey := "", ""
	for _, h := range p.Hotels {
		hotel := d.HotelEntity(p, h)
		key, cur, ok := hotel.Quarter(currentKey)
		if !ok {
			continue
		}
		pk, ok := period.Previous(hotel.PeriodKeys(), key)
		if !ok {
			continue
		}
		_, prev, _ := hotel.Quarter(pk)
		c, pm := pairFields(cur.Metrics, prev.Metrics)
		currents = append(currents, c)
		previouses = append(previouses, pm)
		options = append(options, h.Expansion)
		if curKey == "" {
			curKey = key
		}
		if prevKey == "" || period.Sorted([]string{prevKey, pk})[0] == pk {
			prevKey = pk
		}
	}
	if len(currents) == 0 {
		return nil, ErrNoComparableHotels
	}

	expansion := AggregateExpansion(options)
	if p.Expansion != nil {
		expansion = *p.Expansion
	}
	return &Entity{
		ID:         p.ID,
		Name:       p.Name,
		Kind:       KindPortfolio,
		PropertyID: p.ID,
		Quarters: map[string]Quarter{
			curKey:  {Label: period.Label(curKey), Metrics: AggregateMetrics(currents)},
			prevKey: {Label: period.Label(prevKey), Metrics: AggregateMetrics(previouses)},
		},
		Expansion: expansion,
		LLM:       d.LLM.Merge(p.LLM),
	}, nil
}

// AggregateMetrics combines per-hotel records for the same period. A field
// stays nil when no record carries it. Payback is achieved once the combined
// ROI reaches 1.0 and at least one hotel reports a payback month; the latest
// such month is used.
func AggregateMetrics(records []MetricRecord) MetricRecord {
	var out MetricRecord
	out.TotalFinancialImpactUSD = sum(records, func(m MetricRecord) *float64 { return m.TotalFinancialImpactUSD })
	out.WaterCostAvoidedUSD = sum(records, func(m MetricRecord) *float64 { return m.WaterCostAvoidedUSD })
	out.EnergyCostAvoidedUSD = sum(records, func(m MetricRecord) *float64 { return m.EnergyCostAvoidedUSD })
	out.DowntimeCostAvoidedUSD = sum(records, func(m MetricRecord) *float64 { return m.DowntimeCostAvoidedUSD })
	out.TotalInvestmentToDateUSD = sum(records, func(m MetricRecord) *float64 { return m.TotalInvestmentToDateUSD })
	out.AlertAckWithin4hPct = mean(records, func(m MetricRecord) *float64 { return m.AlertAckWithin4hPct })
	out.HighPriorityResolutionLt6hPct = mean(records, func(m MetricRecord) *float64 { return m.HighPriorityResolutionLt6hPct })

	if out.TotalFinancialImpactUSD != nil && out.TotalInvestmentToDateUSD != nil && *out.TotalInvestmentToDateUSD != 0 {
		roi := math.Round(*out.TotalFinancialImpactUSD / *out.TotalInvestmentToDateUSD * 100) / 100
		out.ROIMultipleToDate = &roi
	}

	out.PaybackStatus = PaybackInProgress
	var months []string
	for _, r := range records {
		if r.PaybackAchievedMonth != nil && *r.PaybackAchievedMonth != "" {
			months = append(months, *r.PaybackAchievedMonth)
		}
	}
	if out.ROIMultipleToDate != nil && *out.ROIMultipleToDate >= 1 && len(months) > 0 {
		sort.Strings(months)
		latest := months[len(months)-1]
		out.PaybackStatus = PaybackAchieved
		out.PaybackAchievedMonth = &latest
	}
	return out
}

// AggregateExpansion combines hotel expansion options: the earliest deadline,
// summed capex and savings ranges, and a capex-weighted projected ROI.
func AggregateExpansion(options []ExpansionOption) ExpansionOption {
	var out ExpansionOption
	var weighted, plain float64
	for _, o := range options {
		if o.DecisionDeadline != "" && (out.DecisionDeadline == "" || o.DecisionDeadline < out.DecisionDeadline) {
			out.DecisionDeadline = o.DecisionDeadline
		}
		out.IncrementalCapexUSD += o.IncrementalCapexUSD
		out.ExpectedSavingsRange.Low += o.ExpectedSavingsRange.Low
		out.ExpectedSavingsRange.High += o.ExpectedSavingsRange.High
		weighted += o.ProjectedROIMultiple * o.IncrementalCapexUSD
		plain += o.ProjectedROIMultiple
	}
	switch {
	case out.IncrementalCapexUSD > 0:
		out.ProjectedROIMultiple = math.Round(weighted/out.IncrementalCapexUSD*100) / 100
	case len(options) > 0:
		out.ProjectedROIMultiple = math.Round(plain/float64(len(options))*100) / 100
	}
	return out
}

// pairFields drops every numeric field that only one of the two periods
// reports.
func pairFields(cur, prev MetricRecord) (MetricRecord, MetricRecord) {
	pairs := [][2]**float64{
		{&cur.TotalFinancialImpactUSD, &prev.TotalFinancialImpactUSD},
		{&cur.WaterCostAvoidedUSD, &prev.WaterCostAvoidedUSD},
		{&cur.EnergyCostAvoidedUSD, &prev.EnergyCostAvoidedUSD},
		{&cur.DowntimeCostAvoidedUSD, &prev.DowntimeCostAvoidedUSD},
		{&cur.TotalInvestmentToDateUSD, &prev.TotalInvestmentToDateUSD},
		{&cur.AlertAckWithin4hPct, &prev.AlertAckWithin4hPct},
		{&cur.HighPriorityResolutionLt6hPct, &prev.HighPriorityResolutionLt6hPct},
	}
	for _, p := range pairs {
		if *p[0] == nil || *p[1] == nil {
			*p[0], *p[1] = nil, nil
		}
	}
	return cur, prev
}

func sum(records []MetricRecord, field func(MetricRecord) *float64) *float64 {
	var total float64
	seen := false
	for _, r := range records {
		if v := field(r); v != nil {
			total += *v
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &total
}

func mean(records []MetricRecord, field func(MetricRecord) *float64) *float64 {
	var total float64
	n := 0
	for _, r := range records {
		if v := field(r); v != nil {
			total += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := math.RoundToEven(total / float64(n))
	return &avg
}
