package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"qbrreport/dataset"
	"qbrreport/snapshot"
)

// PromptInput is the numeric context a prompt is built from.
type PromptInput struct {
	Entity          *dataset.Entity
	CurrentKey      string
	CurrentLabel    string
	PreviousKey     string
	PreviousLabel   string
	Current         dataset.MetricRecord
	Previous        dataset.MetricRecord
	Snapshot        *snapshot.Snapshot
	DeclineRequired bool
	ThresholdPct    int
}

// BuildPrompt renders the generation prompt. It is pure: equal inputs give
// equal prompts.
func BuildPrompt(in PromptInput) string {
	name, kind := "", dataset.KindHotel
	var opt dataset.ExpansionOption
	if in.Entity != nil {
		name, kind, opt = in.Entity.Name, in.Entity.Kind, in.Entity.Expansion
	}
	subject := "hotel"
	if kind == dataset.KindPortfolio {
		subject = "hotel portfolio"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a financial narrator writing the quarterly business review for %s, a %s. ", name, subject)
	b.WriteString("Your readers are the CFO and the ownership group: write in a concise, business-focused tone, lead with financial outcomes, and avoid raw telemetry or technical jargon. Never invent numbers that are not in the data below.\n\n")

	fmt.Fprintf(&b, "Reporting period: %s (%s). Comparison period: %s (%s).\n\n", in.CurrentLabel, in.CurrentKey, in.PreviousLabel, in.PreviousKey)

	b.WriteString("Output contract. Return one JSON object with exactly these keys:\n")
	b.WriteString("- \"headline\": string, one sentence naming the total financial impact.\n")
	b.WriteString("- \"opening_statement_primary\": string, 2-3 sentences summarizing performance and ROI.\n")
	if in.DeclineRequired {
		fmt.Fprintf(&b, "- \"opening_statement_decline_acknowledgement\": string, REQUIRED (decline_acknowledgement_required=true). At least one savings metric changed by %d%% or less; name each such metric, state its change, and explain it (baseline normalization, seasonality, occupancy) without being defensive.\n", in.ThresholdPct)
	} else {
		b.WriteString("- \"opening_statement_decline_acknowledgement\": null (decline_acknowledgement_required=false).\n")
	}
	fmt.Fprintf(&b, "- \"top_5_takeaways\": array of %d to %d strings, each one concrete and quantified.\n", MinTakeaways, MaxTakeaways)
	b.WriteString("- \"critical_decision\": object with \"description\" (string: a concise ask that references the incremental capex, the expected annual savings range, the projected ROI after expansion, and the decision deadline), \"deadline\" (string), \"incremental_capex_usd\" (number), \"expected_additional_annual_savings_usd_range\" ({\"low\": number, \"high\": number}), \"expected_portfolio_level_roi_multiple_after_phase2\" (number). Copy the numeric fields from the expansion option below.\n")
	b.WriteString("- \"next_steps\": array of 2 to 4 objects with \"description\" (string) and exactly one of \"target_date\" (string, YYYY-MM-DD) or \"target_period\" (string); set the other to null.\n\n")

	b.WriteString("Data:\n")
	writeJSONBlock(&b, "Current period metrics", in.Current)
	writeJSONBlock(&b, "Previous period metrics", in.Previous)

	b.WriteString("Period-over-period changes (n/a means no comparison is possible; do not describe it as a change):\n")
	if s := in.Snapshot; s != nil {
		fmt.Fprintf(&b, "- total financial impact: %s\n", s.TotalFinancialImpact.Delta)
		fmt.Fprintf(&b, "- water cost avoided: %s\n", s.WaterCostAvoided.Delta)
		fmt.Fprintf(&b, "- energy cost avoided: %s\n", s.EnergyCostAvoided.Delta)
		fmt.Fprintf(&b, "- downtime cost avoided: %s\n", s.DowntimeCostAvoided.Delta)
	}
	fmt.Fprintf(&b, "decline_acknowledgement_required: %t\n\n", in.DeclineRequired)

	writeJSONBlock(&b, "Expansion option (Phase 2)", opt)

	b.WriteString("Respond ONLY with the JSON object. No markdown, no code fences, no commentary.\n")
	return b.String()
}

func writeJSONBlock(b *strings.Builder, title string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte("{}")
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", title, data)
}
