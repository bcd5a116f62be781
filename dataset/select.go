package dataset

import (
	"errors"
	"fmt"

	"github.com/agnivade/levenshtein"

	"qbrreport/strutil"
)

var ErrNotFound = errors.New("not found")

// NotFoundError names an unknown id and, when one is close enough, the id
// the caller probably meant.
type NotFoundError struct {
	Kind       string
	ID         string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s %q not found (did you mean %q?)", e.Kind, e.ID, e.Suggestion)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Selection is a resolved (property, hotel, period) triple. Hotel is nil when
// the property portfolio was selected.
type Selection struct {
	Property  *Property
	Hotel     *Hotel
	PeriodKey string
}

// Select resolves ids to dataset members. Blank ids default to the first
// member in document order; a blank period defaults to the dataset's
// current_quarter when the hotel has it, else the hotel's first period.
func (d *Dataset) Select(propertyID, hotelID, periodKey string) (*Selection, error) {
	prop, err := d.Property(propertyID)
	if err != nil {
		return nil, err
	}
	hotel, err := prop.Hotel(hotelID)
	if err != nil {
		return nil, err
	}
	key, err := d.resolvePeriod(hotel.PeriodKeys(), periodKey)
	if err != nil {
		return nil, err
	}
	return &Selection{Property: prop, Hotel: hotel, PeriodKey: key}, nil
}

// SelectPortfolio resolves a property and a period across all its hotels.
func (d *Dataset) SelectPortfolio(propertyID, periodKey string) (*Selection, error) {
	prop, err := d.Property(propertyID)
	if err != nil {
		return nil, err
	}
	key, err := d.resolvePeriod(prop.PeriodKeys(), periodKey)
	if err != nil {
		return nil, err
	}
	return &Selection{Property: prop, PeriodKey: key}, nil
}

// Property finds a property by id; blank selects the first.
func (d *Dataset) Property(id string) (*Property, error) {
	if len(d.Properties) == 0 {
		return nil, &NotFoundError{Kind: "property", ID: id}
	}
	if strutil.NormalizeLower(id) == "" {
		return d.Properties[0], nil
	}
	want := strutil.NormalizeLower(id)
	ids := make([]string, 0, len(d.Properties))
	for _, p := range d.Properties {
		if strutil.NormalizeLower(p.ID) == want {
			return p, nil
		}
		ids = append(ids, p.ID)
	}
	return nil, &NotFoundError{Kind: "property", ID: id, Suggestion: suggest(id, ids)}
}

// Hotel finds a hotel by id; blank selects the first.
func (p *Property) Hotel(id string) (*Hotel, error) {
	if len(p.Hotels) == 0 {
		return nil, &NotFoundError{Kind: "hotel", ID: id}
	}
	if strutil.NormalizeLower(id) == "" {
		return p.Hotels[0], nil
	}
	want := strutil.NormalizeLower(id)
	ids := make([]string, 0, len(p.Hotels))
	for _, h := range p.Hotels {
		if strutil.NormalizeLower(h.ID) == want {
			return h, nil
		}
		ids = append(ids, h.ID)
	}
	return nil, &NotFoundError{Kind: "hotel", ID: id, Suggestion: suggest(id, ids)}
}

// PeriodKeys lists every period key held by any hotel, first-seen order.
func (p *Property) PeriodKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, h := range p.Hotels {
		for _, k := range h.PeriodKeys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func (d *Dataset) resolvePeriod(keys []string, requested string) (string, error) {
	want := strutil.NormalizeUpper(requested)
	if want == "" {
		want = d.CurrentQuarter
		if want == "" {
			if len(keys) == 0 {
				return "", &NotFoundError{Kind: "period", ID: requested}
			}
			return keys[0], nil
		}
		for _, k := range keys {
			if strutil.NormalizeUpper(k) == want {
				return k, nil
			}
		}
		if len(keys) == 0 {
			return "", &NotFoundError{Kind: "period", ID: requested}
		}
		return keys[0], nil
	}
	for _, k := range keys {
		if strutil.NormalizeUpper(k) == want {
			return k, nil
		}
	}
	return "", &NotFoundError{Kind: "period", ID: requested, Suggestion: suggest(requested, keys)}
}

// suggest returns the candidate closest to id by edit distance, or "" when
// nothing is within a third of the id's length.
func suggest(id string, candidates []string) string {
	needle := strutil.NormalizeLower(id)
	best := ""
	bestDist := len(needle)/3 + 1
	for _, c := range candidates {
		dist := levenshtein.ComputeDistance(needle, strutil.NormalizeLower(c))
		if dist < bestDist {
			best = c
			bestDist = dist
		}
	}
	return best
}
