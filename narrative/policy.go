package narrative

import "qbrreport/snapshot"

// DefaultDeclineThresholdPct is the change at or below which a savings metric
// counts as a material decline.
const DefaultDeclineThresholdPct = -10

// Deltas are the savings-metric changes the decline policy inspects.
type Deltas struct {
	Water    snapshot.Delta
	Energy   snapshot.Delta
	Downtime snapshot.Delta
}

// DeltasOf extracts the policy inputs from a snapshot.
func DeltasOf(s *snapshot.Snapshot) Deltas {
	if s == nil {
		return Deltas{}
	}
	return Deltas{
		Water:    s.WaterCostAvoided.Delta,
		Energy:   s.EnergyCostAvoided.Delta,
		Downtime: s.DowntimeCostAvoided.Delta,
	}
}

// Decline names one metric that crossed the threshold.
type Decline struct {
	Metric string
	Pct    int
}

// Policy decides when a narrative must acknowledge a decline.
type Policy struct {
	ThresholdPct int
}

// DefaultPolicy uses DefaultDeclineThresholdPct.
func DefaultPolicy() Policy {
	return Policy{ThresholdPct: DefaultDeclineThresholdPct}
}

// MustAcknowledgeDecline reports whether any present delta is at or below
// the threshold. Absent deltas never trigger.
func (p Policy) MustAcknowledgeDecline(d Deltas) bool {
	return len(p.Declines(d)) > 0
}

// Declines lists the metrics at or below the threshold in a fixed order:
// water, energy, downtime.
func (p Policy) Declines(d Deltas) []Decline {
	var out []Decline
	check := func(name string, delta snapshot.Delta) {
		if delta.Valid && delta.Pct <= p.ThresholdPct {
			out = append(out, Decline{Metric: name, Pct: delta.Pct})
		}
	}
	check("water", d.Water)
	check("energy", d.Energy)
	check("downtime", d.Downtime)
	return out
}
