package qbrreport

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"qbrreport/dataset"
	"qbrreport/narrative"
	"qbrreport/snapshot"
)

func buildMarkdown(quarterLabel string, props []PropertyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Quarterly Business Review: %s\n", quarterLabel)
	for _, p := range props {
		fmt.Fprintf(&b, "\n## %s\n", p.name)

		b.WriteString("\n### Portfolio\n\n")
		if p.PortfolioNarrative == nil {
			b.WriteString("No hotels have both this quarter and a prior quarter to compare.\n")
		} else {
			writeSection(&b, p.PortfolioNarrative, p.PortfolioSnapshot, p.current, p.prev)
		}

		for _, id := range p.order {
			h := p.Hotels[id]
			fmt.Fprintf(&b, "\n### %s\n\n", h.HotelName)
			if h.Narrative == nil {
				fmt.Fprintf(&b, "No prior quarter to compare against %s.\n", h.currentLabel)
				continue
			}
			writeSection(&b, h.Narrative, h.Snapshot, h.currentLabel, h.previousLabel)
		}
	}
	return b.String()
}

func writeSection(b *strings.Builder, n *narrative.Narrative, snap *snapshot.Snapshot, cur, prev string) {
	fmt.Fprintf(b, "**%s**\n\n", n.Headline)
	b.WriteString(n.OpeningStatementPrimary + "\n")
	if n.DeclineAcknowledgement != "" {
		fmt.Fprintf(b, "\n%s\n", n.DeclineAcknowledgement)
	}

	b.WriteString("\nKey takeaways:\n\n")
	for _, t := range n.Takeaways {
		fmt.Fprintf(b, "- %s\n", t)
	}

	if snap != nil {
		writeSnapshot(b, snap, cur, prev)
	}

	d := n.CriticalDecision
	b.WriteString("\nCritical decision:\n\n")
	b.WriteString(d.Description + "\n\n")
	fmt.Fprintf(b, "- Deadline: %s\n", d.Deadline)
	fmt.Fprintf(b, "- Incremental capex: %s\n", usd(d.IncrementalCapexUSD))
	fmt.Fprintf(b, "- Expected additional annual savings: %s to %s\n", usd(d.ExpectedSavingsRange.Low), usd(d.ExpectedSavingsRange.High))
	fmt.Fprintf(b, "- Projected ROI multiple: %.2fx\n", d.ProjectedROIMultiple)

	b.WriteString("\nNext steps:\n\n")
	for _, s := range n.NextSteps {
		switch {
		case s.TargetDate != "":
			fmt.Fprintf(b, "- %s (by %s)\n", s.Description, s.TargetDate)
		case s.TargetPeriod != "":
			fmt.Fprintf(b, "- %s (%s)\n", s.Description, s.TargetPeriod)
		default:
			fmt.Fprintf(b, "- %s\n", s.Description)
		}
	}
}

func writeSnapshot(b *strings.Builder, snap *snapshot.Snapshot, cur, prev string) {
	fmt.Fprintf(b, "\n| Metric | %s | %s | Change |\n", cur, prev)
	b.WriteString("|---|---:|---:|---:|\n")
	rows := []struct {
		name string
		m    snapshot.Metric
	}{
		{"Total financial impact", snap.TotalFinancialImpact},
		{"Water cost avoided", snap.WaterCostAvoided},
		{"Energy cost avoided", snap.EnergyCostAvoided},
		{"Downtime cost avoided", snap.DowntimeCostAvoided},
	}
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", r.name, usdPtr(r.m.Current), usdPtr(r.m.Previous), r.m.Delta)
	}

	roi := "n/a"
	if snap.ROIMultipleToDate != nil {
		roi = fmt.Sprintf("%.2fx", *snap.ROIMultipleToDate)
	}
	payback := string(snap.PaybackStatus)
	if snap.PaybackStatus == dataset.PaybackAchieved && snap.PaybackAchievedMonth != nil {
		payback += " in " + *snap.PaybackAchievedMonth
	}
	fmt.Fprintf(b, "\nROI multiple to date: %s. Investment to date: %s. Payback: %s.\n", roi, usdPtr(snap.TotalInvestmentToDate), strings.ReplaceAll(payback, "_", " "))
}

func usd(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

func usdPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return usd(*v)
}
