package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"qbrreport/dataset"
)

// wireNarrative accepts the field spellings models produce in practice and
// is mapped onto Narrative before validation.
type wireNarrative struct {
	Headline                  *string         `json:"headline"`
	OpeningStatementPrimary   *string         `json:"opening_statement_primary"`
	DeclineAcknowledgement    *string         `json:"opening_statement_decline_acknowledgement"`
	Takeaways                 []string        `json:"top_5_takeaways"`
	CriticalDecision          json.RawMessage `json:"critical_decision"`
	CriticalDecisionNarrative *string         `json:"critical_decision_narrative"`
	NextSteps                 []wireStep      `json:"next_steps"`
}

type wireDecision struct {
	Description          string                `json:"description"`
	Narrative            string                `json:"narrative"`
	Deadline             string                `json:"deadline"`
	IncrementalCapexUSD  float64               `json:"incremental_capex_usd"`
	ExpectedSavingsRange *dataset.SavingsRange `json:"expected_additional_annual_savings_usd_range"`
	ProjectedROIMultiple float64               `json:"expected_portfolio_level_roi_multiple_after_phase2"`
}

type wireStep struct {
	Description  string  `json:"description"`
	TargetDate   *string `json:"target_date"`
	TargetPeriod *string `json:"target_period"`
	Date         *string `json:"date"`
}

// ParseNarrative decodes model output into a validated Narrative. Markdown
// fences and text around the outermost JSON object are ignored.
func ParseNarrative(raw string) (*Narrative, error) {
	body, err := extractObject(raw)
	if err != nil {
		return nil, err
	}
	var w wireNarrative
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNarrative, err)
	}

	n := &Narrative{
		Headline:                strings.TrimSpace(deref(w.Headline)),
		OpeningStatementPrimary: strings.TrimSpace(deref(w.OpeningStatementPrimary)),
		DeclineAcknowledgement:  strings.TrimSpace(deref(w.DeclineAcknowledgement)),
	}
	for _, t := range w.Takeaways {
		n.Takeaways = append(n.Takeaways, strings.TrimSpace(t))
	}
	decision, err := parseDecision(w.CriticalDecision)
	if err != nil {
		return nil, err
	}
	if decision.Description == "" {
		decision.Description = strings.TrimSpace(deref(w.CriticalDecisionNarrative))
	}
	n.CriticalDecision = decision
	for _, s := range w.NextSteps {
		step := NextStep{
			Description:  strings.TrimSpace(s.Description),
			TargetDate:   strings.TrimSpace(deref(s.TargetDate)),
			TargetPeriod: strings.TrimSpace(deref(s.TargetPeriod)),
		}
		if step.TargetDate == "" {
			step.TargetDate = strings.TrimSpace(deref(s.Date))
		}
		n.NextSteps = append(n.NextSteps, step)
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// parseDecision accepts either an object or a bare string.
func parseDecision(raw json.RawMessage) (CriticalDecision, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return CriticalDecision{}, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return CriticalDecision{}, fmt.Errorf("%w: critical_decision: %v", ErrMalformedNarrative, err)
		}
		return CriticalDecision{Description: strings.TrimSpace(s)}, nil
	}
	var w wireDecision
	if err := json.Unmarshal(raw, &w); err != nil {
		return CriticalDecision{}, fmt.Errorf("%w: critical_decision: %v", ErrMalformedNarrative, err)
	}
	d := CriticalDecision{
		Description:          strings.TrimSpace(w.Description),
		Deadline:             strings.TrimSpace(w.Deadline),
		IncrementalCapexUSD:  w.IncrementalCapexUSD,
		ProjectedROIMultiple: w.ProjectedROIMultiple,
	}
	if d.Description == "" {
		d.Description = strings.TrimSpace(w.Narrative)
	}
	if w.ExpectedSavingsRange != nil {
		d.ExpectedSavingsRange = *w.ExpectedSavingsRange
	}
	return d, nil
}

// extractObject strips code fences and returns the outermost {...} span.
func extractObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrMalformedNarrative)
	}
	return s[start : end+1], nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
