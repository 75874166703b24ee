package elabftw

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind selects which record family an operation targets.
type Kind string

const (
	// KindResource is a database item (inventory entry, sample, device).
	KindResource Kind = "resource"
	// KindExperiment is a lab-notebook experiment entry.
	KindExperiment Kind = "experiment"
)

// endpoint returns the API path segment for the kind.
func (k Kind) endpoint() string {
	switch k {
	case KindExperiment:
		return "experiments"
	default:
		return "items"
	}
}

// categoryEndpoint is the API path segment for resource categories.
const categoryEndpoint = "items_types"

// Category is a remote grouping for resources. The list endpoint returns
// id and title; the detail endpoint additionally carries the metadata
// template that declares the category's extra fields.
type Category struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Color    string `json:"color,omitempty"`
	Metadata string `json:"metadata,omitempty"`
}

// FieldDefs parses the category's metadata template into its declared
// extra-field definitions. A category without a template yields an empty
// map, not an error.
func (c *Category) FieldDefs() (map[string]ExtraField, error) {
	if strings.TrimSpace(c.Metadata) == "" {
		return map[string]ExtraField{}, nil
	}
	var md Metadata
	if err := json.Unmarshal([]byte(c.Metadata), &md); err != nil {
		return nil, fmt.Errorf("category %d metadata: %w", c.ID, err)
	}
	if md.ExtraFields == nil {
		return map[string]ExtraField{}, nil
	}
	return md.ExtraFields, nil
}

// ExtraField is one user-defined metadata field: its current value plus
// whatever schema the category template declares for it.
type ExtraField struct {
	Value            any      `json:"value"`
	Type             string   `json:"type,omitempty"`
	Options          []string `json:"options,omitempty"`
	AllowMultiValues bool     `json:"allow_multi_values,omitempty"`
	Description      string   `json:"description,omitempty"`
	GroupID          *int     `json:"group_id,omitempty"`
	Required         bool     `json:"required,omitempty"`
}

// Metadata is the parsed form of a record's metadata blob. The server
// stores and transmits it as a JSON string inside the record JSON.
// Keys other than extra_fields (for example the elabftw group section)
// are preserved verbatim so a read-modify-write cycle never drops them.
type Metadata struct {
	ExtraFields map[string]ExtraField
	Other       map[string]json.RawMessage
}

// UnmarshalJSON splits extra_fields out of the blob and keeps the rest raw.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.ExtraFields = map[string]ExtraField{}
	m.Other = map[string]json.RawMessage{}

	for key, val := range raw {
		if key == "extra_fields" {
			if err := json.Unmarshal(val, &m.ExtraFields); err != nil {
				return fmt.Errorf("extra_fields: %w", err)
			}
			continue
		}
		m.Other[key] = val
	}
	return nil
}

// MarshalJSON reassembles the blob, extra_fields plus preserved keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Other)+1)
	for key, val := range m.Other {
		out[key] = val
	}
	if m.ExtraFields != nil {
		out["extra_fields"] = m.ExtraFields
	}
	return json.Marshal(out)
}

// Clone returns a copy whose maps are independent of the receiver's,
// so callers can overlay per-record values on a shared template.
func (m Metadata) Clone() Metadata {
	out := Metadata{
		ExtraFields: make(map[string]ExtraField, len(m.ExtraFields)),
		Other:       make(map[string]json.RawMessage, len(m.Other)),
	}
	for k, v := range m.ExtraFields {
		out.ExtraFields[k] = v
	}
	for k, v := range m.Other {
		out.Other[k] = v
	}
	return out
}

// String renders the metadata in the wire form the PATCH endpoint
// expects: a compact JSON string, not a nested object.
func (m Metadata) String() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Item is one remote record as returned by the API. The typed fields
// cover what the sync and export paths need; Raw keeps the complete
// payload so exports can flatten columns this struct does not name.
type Item struct {
	ID       int
	Title    string
	Category int
	Tags     []string
	Body     string
	Metadata Metadata
	Raw      map[string]any
}

// UnmarshalJSON decodes the full payload into Raw and lifts the typed
// fields out of it. A malformed metadata string degrades to empty
// metadata rather than failing the whole record.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	it.Raw = raw

	if v, ok := raw["id"].(float64); ok {
		it.ID = int(v)
	}
	if v, ok := raw["title"].(string); ok {
		it.Title = v
	}
	if v, ok := raw["category"].(float64); ok {
		it.Category = int(v)
	}
	if v, ok := raw["tags"].(string); ok {
		it.Tags = SplitServerTags(v)
	}
	if v, ok := raw["body"].(string); ok {
		it.Body = v
	}

	it.Metadata = Metadata{
		ExtraFields: map[string]ExtraField{},
		Other:       map[string]json.RawMessage{},
	}
	switch md := raw["metadata"].(type) {
	case string:
		if strings.TrimSpace(md) != "" {
			var parsed Metadata
			if err := json.Unmarshal([]byte(md), &parsed); err == nil {
				it.Metadata = parsed
			}
		}
	case map[string]any:
		if b, err := json.Marshal(md); err == nil {
			var parsed Metadata
			if err := json.Unmarshal(b, &parsed); err == nil {
				it.Metadata = parsed
			}
		}
	}
	return nil
}

// SplitServerTags splits the pipe-joined tag string the server returns
// ("buffer|stock|4c") into individual tags.
func SplitServerTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// NewRecord is the payload for creating a record. Metadata, when set, is
// written in a follow-up metadata patch after the create succeeds.
type NewRecord struct {
	Title    string
	Tags     []string
	Category int
	Body     string
	Metadata *Metadata
}

// RecordPatch is the payload for updating an existing record. Zero
// fields are omitted from the request; Metadata replaces the record's
// whole metadata blob, so callers merge before patching.
type RecordPatch struct {
	Title    string
	Tags     []string
	Category int
	Body     string
	Metadata *Metadata
}

// SortCategories orders categories by title, case-insensitively, the
// order the selection form presents them in.
func SortCategories(cats []Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		return strings.ToLower(cats[i].Title) < strings.ToLower(cats[j].Title)
	})
}

// ParseLocationID extracts the numeric record id from a Location header
// such as "https://elab.example.org/api/v2/items/42".
func ParseLocationID(location string) (int, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(location), "/")
	if trimmed == "" {
		return 0, fmt.Errorf("empty Location header")
	}
	last := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		last = trimmed[idx+1:]
	}
	id, err := strconv.Atoi(last)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("no numeric id in Location %q", location)
	}
	return id, nil
}
