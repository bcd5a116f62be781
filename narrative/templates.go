package narrative

import "strings"

// NextStepTemplates hold the descriptions of the three fallback next steps.
// Placeholders: {name}, {capex}, {deadline}, {label}.
type NextStepTemplates struct {
	ApproveExpansion       string
	MaintainResponsiveness string
	RecalibrateBaseline    string
}

// DefaultNextStepTemplates are used for any template left blank.
func DefaultNextStepTemplates() NextStepTemplates {
	return NextStepTemplates{
		ApproveExpansion:       "Approve the Phase 2 expansion for {name} ({capex} incremental capex)",
		MaintainResponsiveness: "Maintain alert responsiveness at or above {label} levels",
		RecalibrateBaseline:    "Recalibrate the savings baseline with current occupancy and utility rates",
	}
}

func (t NextStepTemplates) withDefaults() NextStepTemplates {
	def := DefaultNextStepTemplates()
	if strings.TrimSpace(t.ApproveExpansion) == "" {
		t.ApproveExpansion = def.ApproveExpansion
	}
	if strings.TrimSpace(t.MaintainResponsiveness) == "" {
		t.MaintainResponsiveness = def.MaintainResponsiveness
	}
	if strings.TrimSpace(t.RecalibrateBaseline) == "" {
		t.RecalibrateBaseline = def.RecalibrateBaseline
	}
	return t
}
