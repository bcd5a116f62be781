// Package qbrreport writes offline QBR reports: a JSON payload for the
// report UI and a Markdown rendering, using the same hydrator as the API.
package qbrreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qbrreport/config"
	"qbrreport/dataset"
	"qbrreport/internal/openaiutil"
	"qbrreport/internal/ratelimit"
	"qbrreport/narrative"
	"qbrreport/period"
	"qbrreport/snapshot"
)

type Logger interface {
	Printf(format string, args ...any)
}

type Options struct {
	DataPath   string
	PropertyID string
	Quarter    string
	JSONOut    string
	ReportOut  string
	ConfigPath string
	// BaseURL resolves relative proxy endpoints in the dataset's llm_config.
	BaseURL string
	NoLLM   bool
	Logger  Logger
	// Generator replaces the configured gateway when set.
	Generator narrative.Generator
	// InternalToken is sent on proxy calls so the service's own rate limit
	// exempts them.
	InternalToken string
}

type Result struct {
	JSONPath   string
	ReportPath string
	Payload    Payload
}

// Payload mirrors the report UI's input: properties keyed by id, hotels
// keyed by id, each with its quarters and narrative.
type Payload struct {
	CurrentQuarter      string                    `json:"current_quarter"`
	CurrentQuarterLabel string                    `json:"current_quarter_label"`
	Properties          map[string]PropertyReport `json:"properties"`
}

type PropertyReport struct {
	Name               string                   `json:"name"`
	Hotels             map[string]HotelReport   `json:"hotels"`
	PortfolioSnapshot  *snapshot.Snapshot       `json:"portfolio_snapshot,omitempty"`
	PortfolioOption    *dataset.ExpansionOption `json:"portfolio_phase2_option,omitempty"`
	PortfolioNarrative *narrative.Narrative     `json:"portfolio_narrative"`

	name    string
	order   []string
	current string
	prev    string
}

type HotelReport struct {
	HotelName       string                     `json:"hotel_name"`
	CurrentQuarter  string                     `json:"current_quarter"`
	PreviousQuarter string                     `json:"previous_quarter,omitempty"`
	Quarters        map[string]dataset.Quarter `json:"quarters"`
	Phase2Option    dataset.ExpansionOption    `json:"phase2_option"`
	Snapshot        *snapshot.Snapshot         `json:"snapshot,omitempty"`
	Narrative       *narrative.Narrative       `json:"narrative"`

	currentLabel  string
	previousLabel string
}

// Generate hydrates every selected entity and writes both outputs.
func Generate(ctx context.Context, opts Options) (Result, error) {
	var result Result
	logf := func(format string, args ...any) {
		if opts.Logger != nil {
			opts.Logger.Printf(format, args...)
		}
	}

	cfg := config.Default()
	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			logf("Warning: failed to load config (%s): %v", path, err)
		} else {
			cfg = loaded
		}
	}

	dataPath := strings.TrimSpace(opts.DataPath)
	if dataPath == "" {
		dataPath = cfg.Dataset.Path
	}
	ds, err := dataset.Load(dataPath)
	if err != nil {
		return result, err
	}
	ds.ApplyLLMDefaults(LLMDefaults(cfg))

	quarter := strings.TrimSpace(opts.Quarter)
	if quarter == "" {
		quarter = ds.CurrentQuarter
	}
	if quarter == "" {
		return result, errors.New("no quarter selected and the dataset has no current_quarter")
	}

	props := ds.Properties
	if id := strings.TrimSpace(opts.PropertyID); id != "" {
		p, err := ds.Property(id)
		if err != nil {
			return result, err
		}
		props = []*dataset.Property{p}
	}

	slug := strings.ToLower(quarter)
	jsonOut := strings.TrimSpace(opts.JSONOut)
	if jsonOut == "" {
		jsonOut = filepath.Join("data", "reports", fmt.Sprintf("qbr-%s.json", slug))
	}
	reportOut := strings.TrimSpace(opts.ReportOut)
	if reportOut == "" {
		reportOut = filepath.Join("data", "reports", fmt.Sprintf("qbr-%s.md", slug))
	}

	hydrator := NewHydrator(cfg, opts.BaseURL, opts.InternalToken, opts.Logger, nil)
	switch {
	case opts.NoLLM:
		hydrator.Gateway = nil
	case opts.Generator != nil:
		hydrator.Gateway = opts.Generator
	}

	payload := Payload{
		CurrentQuarter:      quarter,
		CurrentQuarterLabel: period.Label(quarter),
		Properties:          make(map[string]PropertyReport, len(props)),
	}
	var ordered []PropertyReport
	for _, p := range props {
		pr, err := buildProperty(ctx, ds, hydrator, p, quarter)
		if err != nil {
			return result, err
		}
		payload.Properties[p.ID] = pr
		ordered = append(ordered, pr)
	}

	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return result, err
	}
	if err := os.MkdirAll(filepath.Dir(jsonOut), 0o755); err != nil {
		return result, err
	}
	if err := os.WriteFile(jsonOut, jsonBytes, 0o644); err != nil {
		return result, err
	}

	report := buildMarkdown(payload.CurrentQuarterLabel, ordered)
	if err := os.MkdirAll(filepath.Dir(reportOut), 0o755); err != nil {
		return result, err
	}
	if err := os.WriteFile(reportOut, []byte(report), 0o644); err != nil {
		return result, err
	}

	result.JSONPath = jsonOut
	result.ReportPath = reportOut
	result.Payload = payload
	return result, nil
}

func buildProperty(ctx context.Context, ds *dataset.Dataset, h *narrative.Hydrator, p *dataset.Property, quarter string) (PropertyReport, error) {
	pr := PropertyReport{
		Name:   p.Name,
		Hotels: make(map[string]HotelReport, len(p.Hotels)),
		name:   p.Name,
	}
	for _, hotel := range p.Hotels {
		entity := ds.HotelEntity(p, hotel)
		hr := HotelReport{
			HotelName:      hotel.Name,
			CurrentQuarter: quarter,
			Quarters:       hotel.Quarters,
			Phase2Option:   hotel.Expansion,
			currentLabel:   entity.Label(quarter),
		}
		res, err := h.Hydrate(ctx, entity, quarter)
		switch {
		case errors.Is(err, narrative.ErrNoComparison):
		case err != nil:
			return pr, err
		default:
			hr.CurrentQuarter = res.CurrentKey
			hr.PreviousQuarter = res.PreviousKey
			hr.previousLabel = entity.Label(res.PreviousKey)
			hr.Snapshot = res.Snapshot
			hr.Narrative = res.Narrative
		}
		pr.Hotels[hotel.ID] = hr
		pr.order = append(pr.order, hotel.ID)
	}

	entity, err := ds.Portfolio(p, quarter)
	if errors.Is(err, dataset.ErrNoComparableHotels) {
		return pr, nil
	}
	if err != nil {
		return pr, err
	}
	opt := entity.Expansion
	pr.PortfolioOption = &opt
	res, err := h.Hydrate(ctx, entity, quarter)
	switch {
	case errors.Is(err, narrative.ErrNoComparison):
	case err != nil:
		return pr, err
	default:
		pr.PortfolioSnapshot = res.Snapshot
		pr.PortfolioNarrative = res.Narrative
		pr.current = entity.Label(res.CurrentKey)
		pr.prev = entity.Label(res.PreviousKey)
	}
	return pr, nil
}

// LLMDefaults converts the configured llm block into the dataset's shape.
func LLMDefaults(cfg *config.Config) dataset.LLMConfig {
	d := cfg.Narrative.LLM
	return dataset.LLMConfig{
		Enabled:       d.Enabled,
		Model:         d.Model,
		Temperature:   d.Temperature,
		ProxyEndpoint: d.ProxyEndpoint,
	}
}

// ProviderConfig returns the direct-mode provider settings.
func ProviderConfig(cfg *config.Config) openaiutil.Config {
	return openaiutil.Config{
		APIKey:       cfg.OpenAI.APIKey,
		Model:        cfg.OpenAI.Model,
		Endpoint:     cfg.OpenAI.Endpoint,
		MaxTokens:    cfg.OpenAI.MaxTokens,
		Temperature:  cfg.OpenAI.Temperature,
		SystemPrompt: cfg.OpenAI.SystemPrompt,
	}
}

// NewHydrator builds a hydrator from configuration. baseURL resolves
// relative proxy endpoints and internalToken marks the gateway's proxy calls
// as the service's own; observer may be nil.
func NewHydrator(cfg *config.Config, baseURL, internalToken string, logger Logger, observer narrative.Observer) *narrative.Hydrator {
	policy := narrative.Policy{ThresholdPct: *cfg.Narrative.DeclineThresholdPct}
	h := &narrative.Hydrator{
		Gateway: &narrative.Gateway{
			Provider:           ProviderConfig(cfg),
			BaseURL:            baseURL,
			Timeout:            cfg.OpenAITimeout(),
			DefaultTemperature: cfg.OpenAI.Temperature,
			InternalToken:      internalToken,
		},
		Policy: &policy,
		Templates: narrative.NextStepTemplates{
			ApproveExpansion:       cfg.Narrative.NextSteps.ApproveExpansion,
			MaintainResponsiveness: cfg.Narrative.NextSteps.MaintainResponsiveness,
			RecalibrateBaseline:    cfg.Narrative.NextSteps.RecalibrateBaseline,
		},
		Logger:   logger,
		Observer: observer,
		Warnings: ratelimit.NewCounter(time.Duration(cfg.Narrative.WarnIntervalSeconds) * time.Second),
	}
	return h
}
