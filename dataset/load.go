package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"qbrreport/strutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hotel is a single reporting site inside a property.
type Hotel struct {
	ID        string
	Name      string
	Quarters  map[string]Quarter
	Order     []string // period keys in document order
	Expansion ExpansionOption
	LLM       *LLMConfig
}

// Property groups hotels under one owner. Hotels keep document order.
type Property struct {
	ID        string
	Name      string
	Hotels    []*Hotel
	Expansion *ExpansionOption
	LLM       *LLMConfig
}

// Dataset is the loaded reporting data. It is read-only once Parse returns.
type Dataset struct {
	Properties     []*Property
	CurrentQuarter string
	LLM            LLMConfig
}

type rawDataset struct {
	Properties     jsoniter.RawMessage `json:"properties"`
	CurrentQuarter string              `json:"current_quarter"`
	LLM            *LLMConfig          `json:"llm_config"`
}

type rawProperty struct {
	Name      string              `json:"name"`
	Hotels    jsoniter.RawMessage `json:"hotels"`
	Expansion *ExpansionOption    `json:"phase2_option"`
	LLM       *LLMConfig          `json:"llm_config"`
}

type rawHotel struct {
	Name      string              `json:"hotel_name"`
	Quarters  jsoniter.RawMessage `json:"quarters"`
	Expansion ExpansionOption     `json:"phase2_option"`
	LLM       *LLMConfig          `json:"llm_config"`
}

// Load reads and parses a dataset file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes a dataset document. Property, hotel and period order follow
// the document so selection defaults are stable.
func Parse(data []byte) (*Dataset, error) {
	var raw rawDataset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.Properties) == 0 {
		return nil, errors.New("dataset has no properties")
	}
	ds := &Dataset{CurrentQuarter: strutil.NormalizeUpper(raw.CurrentQuarter)}
	if raw.LLM != nil {
		ds.LLM = *raw.LLM
	}

	propKeys, err := objectKeys(raw.Properties)
	if err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}
	var props map[string]rawProperty
	if err := json.Unmarshal(raw.Properties, &props); err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}
	for _, pid := range propKeys {
		rp := props[pid]
		prop := &Property{ID: pid, Name: strutil.FirstNonEmpty(rp.Name, pid), Expansion: rp.Expansion, LLM: rp.LLM}
		if err := parseHotels(prop, rp.Hotels); err != nil {
			return nil, fmt.Errorf("property %s: %w", pid, err)
		}
		ds.Properties = append(ds.Properties, prop)
	}
	return ds, nil
}

func parseHotels(prop *Property, data jsoniter.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	hotelKeys, err := objectKeys(data)
	if err != nil {
		return fmt.Errorf("hotels: %w", err)
	}
	var hotels map[string]rawHotel
	if err := json.Unmarshal(data, &hotels); err != nil {
		return fmt.Errorf("hotels: %w", err)
	}
	for _, hid := range hotelKeys {
		rh := hotels[hid]
		hotel := &Hotel{
			ID:        hid,
			Name:      strutil.FirstNonEmpty(rh.Name, hid),
			Quarters:  make(map[string]Quarter),
			Expansion: rh.Expansion,
			LLM:       rh.LLM,
		}
		if len(rh.Quarters) > 0 {
			if hotel.Order, err = objectKeys(rh.Quarters); err != nil {
				return fmt.Errorf("hotel %s quarters: %w", hid, err)
			}
			if err := json.Unmarshal(rh.Quarters, &hotel.Quarters); err != nil {
				return fmt.Errorf("hotel %s quarters: %w", hid, err)
			}
		}
		for key, q := range hotel.Quarters {
			normalizeRecord(&q.Metrics)
			if err := q.Metrics.Validate(); err != nil {
				return fmt.Errorf("hotel %s period %s: %w", hid, key, err)
			}
			hotel.Quarters[key] = q
		}
		prop.Hotels = append(prop.Hotels, hotel)
	}
	return nil
}

func normalizeRecord(m *MetricRecord) {
	m.PaybackStatus = PaybackStatus(strutil.NormalizeLower(string(m.PaybackStatus)))
	if m.PaybackStatus == "" {
		m.PaybackStatus = PaybackInProgress
	}
	if m.PaybackAchievedMonth != nil && *m.PaybackAchievedMonth == "" {
		m.PaybackAchievedMonth = nil
	}
}

// objectKeys returns the member names of a JSON object in document order.
func objectKeys(data []byte) ([]string, error) {
	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)
	var keys []string
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		keys = append(keys, key)
		it.Skip()
		return true
	})
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return nil, iter.Error
	}
	return keys, nil
}

// ApplyLLMDefaults layers the dataset's own llm_config over service defaults.
// Call before the dataset is shared.
func (d *Dataset) ApplyLLMDefaults(defaults LLMConfig) {
	d.LLM = defaults.Merge(&d.LLM)
}

// PropertyIDs lists property ids in document order.
func (d *Dataset) PropertyIDs() []string {
	ids := make([]string, 0, len(d.Properties))
	for _, p := range d.Properties {
		ids = append(ids, p.ID)
	}
	return ids
}

// HotelEntity builds the reporting entity for one hotel, resolving its LLM
// settings from the dataset, property and hotel levels.
func (d *Dataset) HotelEntity(p *Property, h *Hotel) *Entity {
	quarters := make(map[string]Quarter, len(h.Quarters))
	for k, q := range h.Quarters {
		quarters[k] = q
	}
	return &Entity{
		ID:         h.ID,
		Name:       h.Name,
		Kind:       KindHotel,
		PropertyID: p.ID,
		Quarters:   quarters,
		Expansion:  h.Expansion,
		LLM:        d.LLM.Merge(p.LLM).Merge(h.LLM),
	}
}

// PeriodKeys lists the hotel's period keys in document order, falling back to
// sorted order when the document order is unknown.
func (h *Hotel) PeriodKeys() []string {
	if len(h.Order) == len(h.Quarters) {
		return append([]string(nil), h.Order...)
	}
	keys := make([]string, 0, len(h.Quarters))
	for k := range h.Quarters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
