package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"qbrreport/dataset"
	"qbrreport/narrative"
	"qbrreport/period"
	"qbrreport/recorder"
	"qbrreport/snapshot"
)

// History lists recent hydrations; *recorder.Recorder satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]recorder.Entry, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type periodRef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type reportResponse struct {
	PropertyID     string                   `json:"property_id"`
	HotelID        string                   `json:"hotel_id,omitempty"`
	EntityName     string                   `json:"entity_name"`
	Kind           dataset.Kind             `json:"kind"`
	CurrentPeriod  periodRef                `json:"current_period"`
	PreviousPeriod *periodRef               `json:"previous_period"`
	Metrics        *dataset.MetricRecord    `json:"metrics,omitempty"`
	Snapshot       *snapshot.Snapshot       `json:"snapshot"`
	Expansion      *dataset.ExpansionOption `json:"phase2_option,omitempty"`
	Narrative      *narrative.Narrative     `json:"narrative"`
}

type notFoundResponse struct {
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ds := s.Dataset()
	if ds == nil {
		writeDetail(w, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	if s.opts.Hydrator == nil {
		writeDetail(w, http.StatusServiceUnavailable, "narratives not configured")
		return
	}
	q := r.URL.Query()
	propertyID, hotelID, periodKey := q.Get("property"), q.Get("hotel"), q.Get("period")
	portfolio := hotelID == "" && isTruthy(q.Get("portfolio"))

	var (
		entity *dataset.Entity
		sel    *dataset.Selection
		err    error
	)
	if portfolio {
		sel, err = ds.SelectPortfolio(propertyID, periodKey)
		if err == nil {
			entity, err = ds.Portfolio(sel.Property, sel.PeriodKey)
		}
	} else {
		sel, err = ds.Select(propertyID, hotelID, periodKey)
		if err == nil {
			entity = ds.HotelEntity(sel.Property, sel.Hotel)
		}
	}

	var nf *dataset.NotFoundError
	switch {
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, notFoundResponse{Detail: nf.Error(), Suggestion: nf.Suggestion})
		return
	case errors.Is(err, dataset.ErrNoComparableHotels):
		writeJSON(w, http.StatusOK, reportResponse{
			PropertyID:    sel.Property.ID,
			EntityName:    sel.Property.Name,
			Kind:          dataset.KindPortfolio,
			CurrentPeriod: periodRef{Key: sel.PeriodKey, Label: period.Label(sel.PeriodKey)},
		})
		return
	case err != nil:
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := reportResponse{
		PropertyID: sel.Property.ID,
		EntityName: entity.Name,
		Kind:       entity.Kind,
	}
	if entity.Expansion != (dataset.ExpansionOption{}) {
		opt := entity.Expansion
		resp.Expansion = &opt
	}
	if sel.Hotel != nil {
		resp.HotelID = sel.Hotel.ID
	}
	curKey, cur, ok := entity.Quarter(sel.PeriodKey)
	if !ok {
		curKey = sel.PeriodKey
	} else {
		metrics := cur.Metrics
		resp.Metrics = &metrics
	}
	resp.CurrentPeriod = periodRef{Key: curKey, Label: entity.Label(curKey)}

	if ok && !s.allow(w, r, s.opts.ReportLimiter) {
		return
	}
	result, err := s.opts.Hydrator.Hydrate(r.Context(), entity, curKey)
	switch {
	case errors.Is(err, narrative.ErrNoComparison):
		writeJSON(w, http.StatusOK, resp)
		return
	case err != nil:
		// The client went away; nothing useful to write.
		if r.Context().Err() != nil {
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.PreviousPeriod = &periodRef{Key: result.PreviousKey, Label: entity.Label(result.PreviousKey)}
	resp.Snapshot = result.Snapshot
	resp.Narrative = result.Narrative
	writeJSON(w, http.StatusOK, resp)
}

type hotelListing struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Periods []string `json:"periods"`
}

type propertyListing struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Periods []string       `json:"periods"`
	Hotels  []hotelListing `json:"hotels"`
}

type entitiesResponse struct {
	CurrentQuarter string            `json:"current_quarter,omitempty"`
	Properties     []propertyListing `json:"properties"`
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	ds := s.Dataset()
	if ds == nil {
		writeDetail(w, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	resp := entitiesResponse{CurrentQuarter: ds.CurrentQuarter, Properties: []propertyListing{}}
	for _, p := range ds.Properties {
		pl := propertyListing{ID: p.ID, Name: p.Name, Periods: p.PeriodKeys(), Hotels: []hotelListing{}}
		for _, h := range p.Hotels {
			pl.Hotels = append(pl.Hotels, hotelListing{ID: h.ID, Name: h.Name, Periods: h.PeriodKeys()})
		}
		resp.Properties = append(resp.Properties, pl)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHydrations(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeDetail(w, http.StatusNotFound, "hydration history is disabled")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	entries, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		s.logf("Warning: read hydration history: %v", err)
		writeDetail(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if entries == nil {
		entries = []recorder.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.Dataset() == nil {
		status = "no dataset"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
