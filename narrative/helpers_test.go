package narrative

import (
	"encoding/json"

	"qbrreport/dataset"
)

func boolPtr(v bool) *bool { return &v }

func testOption() dataset.ExpansionOption {
	return dataset.ExpansionOption{
		DecisionDeadline:     "2025-11-30",
		IncrementalCapexUSD:  60000,
		ExpectedSavingsRange: dataset.SavingsRange{Low: 30000, High: 45000},
		ProjectedROIMultiple: 2.4,
	}
}

func currentRecord() dataset.MetricRecord {
	month := "2025-08"
	return dataset.MetricRecord{
		TotalFinancialImpactUSD:       dataset.Float(53000),
		WaterCostAvoidedUSD:           dataset.Float(8500),
		EnergyCostAvoidedUSD:          dataset.Float(24500),
		DowntimeCostAvoidedUSD:        dataset.Float(20000),
		TotalInvestmentToDateUSD:      dataset.Float(100000),
		ROIMultipleToDate:             dataset.Float(1.85),
		AlertAckWithin4hPct:           dataset.Float(92),
		HighPriorityResolutionLt6hPct: dataset.Float(88),
		PaybackStatus:                 dataset.PaybackAchieved,
		PaybackAchievedMonth:          &month,
	}
}

func previousRecord() dataset.MetricRecord {
	return dataset.MetricRecord{
		TotalFinancialImpactUSD:       dataset.Float(52000),
		WaterCostAvoidedUSD:           dataset.Float(10000),
		EnergyCostAvoidedUSD:          dataset.Float(25000),
		TotalInvestmentToDateUSD:      dataset.Float(100000),
		ROIMultipleToDate:             dataset.Float(1.32),
		AlertAckWithin4hPct:           dataset.Float(90),
		HighPriorityResolutionLt6hPct: dataset.Float(85),
		PaybackStatus:                 dataset.PaybackInProgress,
	}
}

// testEntity has Q2 and Q3 2025: water -15%, energy -2%, downtime n/a.
func testEntity(llm dataset.LLMConfig) *dataset.Entity {
	return &dataset.Entity{
		ID:         "seaside",
		Name:       "Seaside Inn",
		Kind:       dataset.KindHotel,
		PropertyID: "harbor",
		Quarters: map[string]dataset.Quarter{
			"2025-Q3": {Label: "Q3 2025", Metrics: currentRecord()},
			"2025-Q2": {Label: "Q2 2025", Metrics: previousRecord()},
		},
		Expansion: testOption(),
		LLM:       llm,
	}
}

const validLLMJSON = `{
  "headline": "Seaside Inn delivered $53,000 in Q3 2025",
  "opening_statement_primary": "Savings held steady and ROI reached 1.85x.",
  "opening_statement_decline_acknowledgement": "Water savings fell 15% against a high Q2 baseline.",
  "top_5_takeaways": ["one", "two", "three", "four", "five"],
  "critical_decision": {
    "description": "Approve Phase 2 by November 30.",
    "deadline": "2099-01-01",
    "incremental_capex_usd": 1,
    "expected_additional_annual_savings_usd_range": {"low": 1, "high": 2},
    "expected_portfolio_level_roi_multiple_after_phase2": 9.9
  },
  "next_steps": [
    {"description": "Approve expansion", "target_date": "2025-11-30", "target_period": null},
    {"description": "Review responsiveness", "target_date": null, "target_period": "Q4 2025"}
  ]
}`

func jsonString(v any) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}
