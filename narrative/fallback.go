package narrative

import (
	"fmt"
	"strings"

	"qbrreport/dataset"
	"qbrreport/snapshot"
)

// FallbackInput is everything the deterministic synthesizer reads.
type FallbackInput struct {
	Entity        *dataset.Entity
	Current       dataset.MetricRecord
	Previous      dataset.MetricRecord
	CurrentLabel  string
	PreviousLabel string
	Policy        *Policy
	Templates     NextStepTemplates
}

var declineNames = map[string]string{
	"water":    "water cost avoided",
	"energy":   "energy cost avoided",
	"downtime": "downtime cost avoided",
}

// Synthesize builds a narrative from the metrics alone. The same input always
// yields the same narrative, and the result always passes Validate.
func Synthesize(in FallbackInput) *Narrative {
	policy := DefaultPolicy()
	if in.Policy != nil {
		policy = *in.Policy
	}
	name := "This property"
	var opt dataset.ExpansionOption
	if in.Entity != nil {
		name = in.Entity.Name
		opt = in.Entity.Expansion
	}
	cur, prev := in.Current, in.Previous
	snap, _ := snapshot.Build(&cur, &prev)

	return &Narrative{
		Headline: fmt.Sprintf("%s delivered %s in %s", name, money(cur.TotalFinancialImpactUSD), in.CurrentLabel),
		OpeningStatementPrimary: fmt.Sprintf(
			"%s generated %s in total financial impact in %s, %s versus %s, bringing the ROI multiple to date to %s.",
			name, money(cur.TotalFinancialImpactUSD), in.CurrentLabel,
			signedPct(snap.TotalFinancialImpact.Delta), in.PreviousLabel, multiple(cur.ROIMultipleToDate)),
		DeclineAcknowledgement: declineStatement(policy.Declines(DeltasOf(snap)), in.PreviousLabel),
		Takeaways:              takeaways(snap, cur, prev, in.CurrentLabel, in.PreviousLabel),
		CriticalDecision:       decisionFrom(opt, decisionParagraph(opt)),
		NextSteps:              nextSteps(name, opt, in.CurrentLabel, in.Templates.withDefaults()),
	}
}

func declineStatement(declines []Decline, previousLabel string) string {
	if len(declines) == 0 {
		return fmt.Sprintf("Water, energy and downtime savings all remained within the normal range versus %s.", previousLabel)
	}
	parts := make([]string, 0, len(declines))
	for _, d := range declines {
		parts = append(parts, fmt.Sprintf("%s declined %d%%", declineNames[d.Metric], -d.Pct))
	}
	subject := "This movement reflects"
	if len(parts) > 1 {
		subject = "These movements reflect"
	}
	return fmt.Sprintf("%s versus %s. %s normalization against an elevated prior-period baseline and seasonal occupancy patterns rather than a loss of system performance.",
		capitalize(joinAnd(parts)), previousLabel, subject)
}

func takeaways(snap *snapshot.Snapshot, cur, prev dataset.MetricRecord, curLabel, prevLabel string) []string {
	payback := "payback is in progress"
	if cur.PaybackStatus == dataset.PaybackAchieved && cur.PaybackAchievedMonth != nil {
		payback = "payback was achieved in " + *cur.PaybackAchievedMonth
	}
	return []string{
		fmt.Sprintf("Total financial impact reached %s in %s (%s vs %s).",
			money(cur.TotalFinancialImpactUSD), curLabel, signedPct(snap.TotalFinancialImpact.Delta), prevLabel),
		fmt.Sprintf("Water cost avoided: %s (%s vs %s).",
			money(cur.WaterCostAvoidedUSD), signedPct(snap.WaterCostAvoided.Delta), prevLabel),
		fmt.Sprintf("Energy cost avoided: %s (%s vs %s).",
			money(cur.EnergyCostAvoidedUSD), signedPct(snap.EnergyCostAvoided.Delta), prevLabel),
		fmt.Sprintf("Alert responsiveness: %s of alerts acknowledged within 4 hours (prior %s) and %s of high-priority issues resolved in under 6 hours (prior %s).",
			percent(cur.AlertAckWithin4hPct), percent(prev.AlertAckWithin4hPct),
			percent(cur.HighPriorityResolutionLt6hPct), percent(prev.HighPriorityResolutionLt6hPct)),
		fmt.Sprintf("ROI multiple to date is %s on %s invested; %s.",
			multiple(cur.ROIMultipleToDate), money(cur.TotalInvestmentToDateUSD), payback),
	}
}

func decisionParagraph(opt dataset.ExpansionOption) string {
	deadline := opt.DecisionDeadline
	if deadline == "" {
		deadline = "the next review"
	}
	return fmt.Sprintf("Approve the Phase 2 expansion by %s. An incremental investment of %s is expected to add %s to %s in annual savings and lift the projected portfolio ROI multiple to %s.",
		deadline, moneyValue(opt.IncrementalCapexUSD),
		moneyValue(opt.ExpectedSavingsRange.Low), moneyValue(opt.ExpectedSavingsRange.High),
		multipleValue(opt.ProjectedROIMultiple))
}

func nextSteps(name string, opt dataset.ExpansionOption, label string, t NextStepTemplates) []NextStep {
	r := strings.NewReplacer(
		"{name}", name,
		"{capex}", moneyValue(opt.IncrementalCapexUSD),
		"{deadline}", opt.DecisionDeadline,
		"{label}", label,
	)
	approve := NextStep{Description: r.Replace(t.ApproveExpansion), TargetDate: opt.DecisionDeadline}
	if approve.TargetDate == "" {
		approve.TargetPeriod = "next quarter after " + label
	}
	return []NextStep{
		approve,
		{Description: r.Replace(t.MaintainResponsiveness), TargetPeriod: "next quarter after " + label},
		{Description: r.Replace(t.RecalibrateBaseline), TargetPeriod: label + " + 1"},
	}
}

func joinAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
