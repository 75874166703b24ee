package core

// mapper.go turns input rows into records.
//
// Mapping happens at two levels:
//  1. BuildMappingTable binds every header column to its destination
//     once per run. Missing required columns surface here as a
//     SchemaError, before anything is sent to the server.
//  2. MapRow applies the table to one row. It is a pure transform with
//     no network access and no shared state; problems come back as
//     errors against that row only.

import (
	"fmt"
)

// boundColumn ties one header position to a fixed field.
type boundColumn struct {
	index int
	spec  FieldSpec
}

// extraColumn is a header position no fixed field claimed. Its cells
// become extra fields under the original header spelling.
type extraColumn struct {
	index int
	name  string
}

// MappingTable binds the columns of one input file to a profile's
// fields. Build it once per run and reuse it for every row.
type MappingTable struct {
	mode   Mode
	fixed  []boundColumn
	extras []extraColumn
}

// BuildMappingTable matches the header against the profile's fixed
// fields. Matching is case-insensitive and ignores spaces and dashes,
// so "Record ID", "record-id" and "record_id" all bind the same field.
// Columns no fixed field claims become extra-field columns. When two
// columns resolve to the same destination, the first one wins.
//
// The returned error is a SchemaError listing every required column the
// header is missing for the given mode.
func BuildMappingTable(p Profile, mode Mode, headers []string) (*MappingTable, error) {
	t := &MappingTable{mode: mode}
	bound := make(map[string]bool, len(p.Fields))
	extraSeen := make(map[string]bool)

	for i, h := range headers {
		canon := Canonicalize(h)
		if canon == "" {
			continue
		}
		if spec, ok := p.fieldByCanon(canon); ok {
			if bound[spec.Name] {
				continue
			}
			bound[spec.Name] = true
			t.fixed = append(t.fixed, boundColumn{index: i, spec: spec})
			continue
		}
		if extraSeen[canon] {
			continue
		}
		extraSeen[canon] = true
		t.extras = append(t.extras, extraColumn{index: i, name: CleanCell(h)})
	}

	var missing []string
	for _, spec := range p.Fields {
		if spec.requiredFor(mode) && !bound[spec.Name] {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return t, nil
}

// ExtraNames returns the extra-field column names in header order.
func (t *MappingTable) ExtraNames() []string {
	names := make([]string, len(t.extras))
	for i, ec := range t.extras {
		names[i] = ec.name
	}
	return names
}

// MapRow converts one input row into a Record. Fixed cells run through
// their normalizer; everything else lands in Extras with a best-effort
// inferred type. Inference never fails a row: a value that is neither a
// number nor a boolean stays text.
func (t *MappingTable) MapRow(row Row) (Record, error) {
	rec := Record{Line: row.Line}

	for _, bc := range t.fixed {
		raw := cellAt(row.Cells, bc.index)
		if bc.spec.Normalizer != nil {
			raw = bc.spec.Normalizer(raw)
		}
		if raw == "" {
			if bc.spec.requiredFor(t.mode) {
				return Record{}, fmt.Errorf("required field %q is empty", bc.spec.Name)
			}
			continue
		}
		switch Canonicalize(bc.spec.Name) {
		case "id":
			id, ok, err := ParseRecordID(raw)
			if err != nil {
				// Patch runs cannot address a record without an id;
				// create runs treat an unparseable one as absent.
				if t.mode == ModePatch {
					return Record{}, err
				}
			} else if ok {
				rec.ID = id
			}
		case "title":
			rec.Title = raw
		case "tags":
			rec.Tags = SplitTags(raw)
		case "body":
			rec.Body = raw
		case "files_path":
			rec.FilesDir = raw
		default:
			// A recognized fixed column with no record attribute, such
			// as the category column a run pre-selects. Claimed, so it
			// never becomes an extra field, but otherwise ignored.
		}
	}

	for _, ec := range t.extras {
		val := cellAt(row.Cells, ec.index)
		if val == "" {
			continue
		}
		rec.Extras = append(rec.Extras, ExtraValue{
			Name:  ec.name,
			Value: val,
			Type:  InferType(val),
		})
	}

	return rec, nil
}

// cellAt returns the cleaned cell at index i, or "" when the row is
// shorter than the header.
func cellAt(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return CleanCell(cells[i])
}
