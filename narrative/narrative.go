// Package narrative turns an entity's period metrics into a QBR narrative.
//
// A narrative is produced either by a language model or by a deterministic
// fallback; both build the same Narrative value, so callers render it
// without knowing which path produced it.
package narrative

import (
	"errors"
	"fmt"
	"strings"

	"qbrreport/dataset"
)

var (
	// ErrNoComparison means the entity has no previous period for the
	// requested one, so no narrative can be produced.
	ErrNoComparison = errors.New("no previous period to compare against")

	// ErrMalformedNarrative wraps every shape or content problem in a
	// generated narrative.
	ErrMalformedNarrative = errors.New("malformed narrative")
)

const (
	MinTakeaways = 4
	MaxTakeaways = 5
	MinNextSteps = 2
	MaxNextSteps = 4
)

// CriticalDecision is the decision the report asks the owner to make.
type CriticalDecision struct {
	Description          string               `json:"description"`
	Deadline             string               `json:"deadline"`
	IncrementalCapexUSD  float64              `json:"incremental_capex_usd"`
	ExpectedSavingsRange dataset.SavingsRange `json:"expected_additional_annual_savings_usd_range"`
	ProjectedROIMultiple float64              `json:"expected_portfolio_level_roi_multiple_after_phase2"`
}

// NextStep is one follow-up action. Exactly one of TargetDate and
// TargetPeriod is set.
type NextStep struct {
	Description  string `json:"description"`
	TargetDate   string `json:"target_date,omitempty"`
	TargetPeriod string `json:"target_period,omitempty"`
}

// Narrative is the canonical report narrative.
type Narrative struct {
	Headline                string           `json:"headline"`
	OpeningStatementPrimary string           `json:"opening_statement_primary"`
	DeclineAcknowledgement  string           `json:"opening_statement_decline_acknowledgement,omitempty"`
	Takeaways               []string         `json:"top_5_takeaways"`
	CriticalDecision        CriticalDecision `json:"critical_decision"`
	NextSteps               []NextStep       `json:"next_steps"`
}

// Validate checks the shape every consumer relies on. A decline
// acknowledgement is optional here: CheckDecline enforces it when a metric
// fell past the threshold, and an unrequested one is kept because the
// fallback always writes a "within normal range" line into that field.
func (n *Narrative) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil narrative", ErrMalformedNarrative)
	}
	if strings.TrimSpace(n.Headline) == "" {
		return fmt.Errorf("%w: headline is empty", ErrMalformedNarrative)
	}
	if strings.TrimSpace(n.OpeningStatementPrimary) == "" {
		return fmt.Errorf("%w: opening_statement_primary is empty", ErrMalformedNarrative)
	}
	if len(n.Takeaways) < MinTakeaways || len(n.Takeaways) > MaxTakeaways {
		return fmt.Errorf("%w: expected %d-%d takeaways, got %d", ErrMalformedNarrative, MinTakeaways, MaxTakeaways, len(n.Takeaways))
	}
	for i, t := range n.Takeaways {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: takeaway %d is empty", ErrMalformedNarrative, i+1)
		}
	}
	if strings.TrimSpace(n.CriticalDecision.Description) == "" {
		return fmt.Errorf("%w: critical_decision.description is empty", ErrMalformedNarrative)
	}
	if len(n.NextSteps) < MinNextSteps || len(n.NextSteps) > MaxNextSteps {
		return fmt.Errorf("%w: expected %d-%d next steps, got %d", ErrMalformedNarrative, MinNextSteps, MaxNextSteps, len(n.NextSteps))
	}
	for i, step := range n.NextSteps {
		if strings.TrimSpace(step.Description) == "" {
			return fmt.Errorf("%w: next step %d has no description", ErrMalformedNarrative, i+1)
		}
		hasDate := strings.TrimSpace(step.TargetDate) != ""
		hasPeriod := strings.TrimSpace(step.TargetPeriod) != ""
		if hasDate == hasPeriod {
			return fmt.Errorf("%w: next step %d needs exactly one of target_date or target_period", ErrMalformedNarrative, i+1)
		}
	}
	return nil
}

// CheckDecline rejects a narrative that omits a required decline
// acknowledgement.
func (n *Narrative) CheckDecline(required bool) error {
	if required && strings.TrimSpace(n.DeclineAcknowledgement) == "" {
		return fmt.Errorf("%w: decline acknowledgement required but missing", ErrMalformedNarrative)
	}
	return nil
}

// decisionFrom copies an expansion option into a critical decision.
func decisionFrom(opt dataset.ExpansionOption, description string) CriticalDecision {
	return CriticalDecision{
		Description:          description,
		Deadline:             opt.DecisionDeadline,
		IncrementalCapexUSD:  opt.IncrementalCapexUSD,
		ExpectedSavingsRange: opt.ExpectedSavingsRange,
		ProjectedROIMultiple: opt.ProjectedROIMultiple,
	}
}
