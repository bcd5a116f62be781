package narrative

import "qbrreport/internal/openaiutil"

// SchemaName identifies the narrative schema in provider requests.
const SchemaName = "qbr_narrative"

// ResponseSchema returns the strict JSON schema for a generated narrative.
// Strict mode requires every property to be listed as required, so optional
// fields are declared nullable instead.
func ResponseSchema() *openaiutil.JSONSchema {
	str := map[string]any{"type": "string"}
	num := map[string]any{"type": "number"}
	nullableStr := map[string]any{"type": []string{"string", "null"}}

	decision := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description":            str,
			"deadline":               str,
			"incremental_capex_usd":  num,
			"expected_additional_annual_savings_usd_range": map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"low": num, "high": num},
				"required":             []string{"low", "high"},
				"additionalProperties": false,
			},
			"expected_portfolio_level_roi_multiple_after_phase2": num,
		},
		"required": []string{
			"description", "deadline", "incremental_capex_usd",
			"expected_additional_annual_savings_usd_range",
			"expected_portfolio_level_roi_multiple_after_phase2",
		},
		"additionalProperties": false,
	}
	step := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description":   str,
			"target_date":   nullableStr,
			"target_period": nullableStr,
		},
		"required":             []string{"description", "target_date", "target_period"},
		"additionalProperties": false,
	}
	return &openaiutil.JSONSchema{
		Name:   SchemaName,
		Strict: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"headline":                                  str,
				"opening_statement_primary":                 str,
				"opening_statement_decline_acknowledgement": nullableStr,
				"top_5_takeaways":                           map[string]any{"type": "array", "items": str},
				"critical_decision":                         decision,
				"next_steps":                                map[string]any{"type": "array", "items": step},
			},
			"required": []string{
				"headline", "opening_statement_primary",
				"opening_statement_decline_acknowledgement", "top_5_takeaways",
				"critical_decision", "next_steps",
			},
			"additionalProperties": false,
		},
	}
}
