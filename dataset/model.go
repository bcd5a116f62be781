// Package dataset holds the reporting data model: properties, their hotels,
// per-period metric records, expansion options, and the LLM settings that
// travel with each entity.
package dataset

import (
	"errors"
	"fmt"

	"qbrreport/period"
	"qbrreport/strutil"
)

// PaybackStatus reports whether cumulative savings have covered investment.
type PaybackStatus string

const (
	PaybackInProgress PaybackStatus = "in_progress"
	PaybackAchieved   PaybackStatus = "achieved"
)

var ErrInvalidRecord = errors.New("invalid metric record")

// MetricRecord is one period's metrics for an entity. Numeric fields are nil
// when the source value is null or absent.
type MetricRecord struct {
	TotalFinancialImpactUSD       *float64      `json:"total_financial_impact_usd"`
	WaterCostAvoidedUSD           *float64      `json:"water_cost_avoided_usd"`
	EnergyCostAvoidedUSD          *float64      `json:"energy_cost_avoided_usd"`
	DowntimeCostAvoidedUSD        *float64      `json:"downtime_cost_avoided_usd"`
	TotalInvestmentToDateUSD      *float64      `json:"total_investment_to_date_usd"`
	ROIMultipleToDate             *float64      `json:"roi_multiple_to_date"`
	AlertAckWithin4hPct           *float64      `json:"alert_ack_within_4h_pct"`
	HighPriorityResolutionLt6hPct *float64      `json:"high_priority_resolution_lt_6h_pct"`
	PaybackStatus                 PaybackStatus `json:"payback_status"`
	PaybackAchievedMonth          *string       `json:"payback_achieved_month"`
}

// Validate enforces the payback invariant: a month is recorded exactly when
// payback is achieved.
func (m *MetricRecord) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: missing record", ErrInvalidRecord)
	}
	status := PaybackStatus(strutil.NormalizeLower(string(m.PaybackStatus)))
	hasMonth := m.PaybackAchievedMonth != nil && *m.PaybackAchievedMonth != ""
	switch status {
	case PaybackAchieved:
		if !hasMonth {
			return fmt.Errorf("%w: payback achieved without payback_achieved_month", ErrInvalidRecord)
		}
	case PaybackInProgress:
		if hasMonth {
			return fmt.Errorf("%w: payback_achieved_month set while payback is in progress", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: unknown payback_status %q", ErrInvalidRecord, m.PaybackStatus)
	}
	return nil
}

// Quarter is one reporting period: a display label plus its metrics.
type Quarter struct {
	Label   string       `json:"label"`
	Metrics MetricRecord `json:"metrics"`
}

// SavingsRange is an inclusive low/high annual savings estimate in USD.
type SavingsRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ExpansionOption is the proposed follow-on investment presented as the
// report's critical decision.
type ExpansionOption struct {
	DecisionDeadline     string       `json:"decision_deadline"`
	IncrementalCapexUSD  float64      `json:"incremental_capex_usd"`
	ExpectedSavingsRange SavingsRange `json:"expected_additional_annual_savings_usd_range"`
	ProjectedROIMultiple float64      `json:"expected_portfolio_level_roi_multiple_after_phase2"`
}

// LLMConfig controls narrative generation for an entity. Unset fields inherit
// from the enclosing level (service defaults, dataset, property, hotel).
type LLMConfig struct {
	Enabled       *bool    `json:"enabled,omitempty" yaml:"enabled"`
	Model         string   `json:"model,omitempty" yaml:"model"`
	Temperature   *float64 `json:"temperature,omitempty" yaml:"temperature"`
	ProxyEndpoint string   `json:"proxy_endpoint,omitempty" yaml:"proxy_endpoint"`
	APIKey        string   `json:"api_key,omitempty" yaml:"api_key"`
}

// IsEnabled reports whether generation was switched on explicitly.
func (c LLMConfig) IsEnabled() bool {
	return c.Enabled != nil && *c.Enabled
}

// TemperatureOr returns the configured temperature or def when unset.
func (c LLMConfig) TemperatureOr(def float64) float64 {
	if c.Temperature == nil {
		return def
	}
	return *c.Temperature
}

// Merge returns c with every field set in override applied on top.
func (c LLMConfig) Merge(override *LLMConfig) LLMConfig {
	if override == nil {
		return c
	}
	out := c
	if override.Enabled != nil {
		v := *override.Enabled
		out.Enabled = &v
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Temperature != nil {
		v := *override.Temperature
		out.Temperature = &v
	}
	if override.ProxyEndpoint != "" {
		out.ProxyEndpoint = override.ProxyEndpoint
	}
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	return out
}

// Kind distinguishes single hotels from aggregated property portfolios.
type Kind string

const (
	KindHotel     Kind = "hotel"
	KindPortfolio Kind = "portfolio"
)

// Entity is the unit a narrative is written for. Entities are built from the
// loaded dataset and are not mutated afterwards.
type Entity struct {
	ID         string
	Name       string
	Kind       Kind
	PropertyID string
	Quarters   map[string]Quarter
	Expansion  ExpansionOption
	LLM        LLMConfig
}

// PeriodKeys lists the entity's period keys, most recent first.
func (e *Entity) PeriodKeys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.Quarters))
	for k := range e.Quarters {
		keys = append(keys, k)
	}
	return period.Sorted(keys)
}

// Quarter looks a period up by key, ignoring case and surrounding spaces.
func (e *Entity) Quarter(key string) (string, Quarter, bool) {
	if e == nil {
		return "", Quarter{}, false
	}
	if q, ok := e.Quarters[key]; ok {
		return key, q, true
	}
	want := strutil.NormalizeUpper(key)
	for k, q := range e.Quarters {
		if strutil.NormalizeUpper(k) == want {
			return k, q, true
		}
	}
	return "", Quarter{}, false
}

// Label returns the display label for key, derived from the key when the
// dataset does not carry one.
func (e *Entity) Label(key string) string {
	if _, q, ok := e.Quarter(key); ok && q.Label != "" {
		return q.Label
	}
	return period.Label(key)
}

// Float returns a pointer to v, for building records in code.
func Float(v float64) *float64 {
	return &v
}

// Value dereferences p, treating nil as zero.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
