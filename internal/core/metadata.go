package core

// metadata.go renders mapped extra fields into the metadata blob the
// server stores alongside each record.
//
// Fields the category template declares are coerced to the declared
// type; select fields in particular only accept values from the
// template's option list, and a value no option matches skips the field
// without failing the row. Columns no declared field matches are
// written as new fields carrying the inferred type, so an input file
// can introduce metadata the category does not know yet.

import (
	"sort"
	"strings"

	"github.com/elabsync/elabsync/internal/elabftw"
)

// FieldDefs indexes declared extra fields for lookup by canonical
// column name. Patch runs build it from the record's own metadata,
// create runs from the category template.
type FieldDefs struct {
	byCanon map[string]string // canonical name -> declared spelling
	defs    map[string]elabftw.ExtraField
}

// NewFieldDefs builds the index. When two declared names canonicalize
// identically, the lexicographically first spelling wins.
func NewFieldDefs(defs map[string]elabftw.ExtraField) *FieldDefs {
	fd := &FieldDefs{
		byCanon: make(map[string]string, len(defs)),
		defs:    defs,
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		canon := Canonicalize(name)
		if _, ok := fd.byCanon[canon]; !ok {
			fd.byCanon[canon] = name
		}
	}
	return fd
}

// Resolve returns the declared spelling and definition matching an
// input column name.
func (fd *FieldDefs) Resolve(name string) (string, elabftw.ExtraField, bool) {
	declared, ok := fd.byCanon[Canonicalize(name)]
	if !ok {
		return "", elabftw.ExtraField{}, false
	}
	return declared, fd.defs[declared], true
}

// ApplyExtras writes a record's extras into meta and reports how many
// fields changed. meta is the record's current metadata in patch mode
// or the category template's metadata in create mode; every key and
// field the extras do not touch is preserved, including the elabftw
// group section.
func ApplyExtras(meta *elabftw.Metadata, defs *FieldDefs, extras []ExtraValue) int {
	if meta.ExtraFields == nil {
		meta.ExtraFields = map[string]elabftw.ExtraField{}
	}
	written := 0
	for _, ex := range extras {
		if name, def, ok := defs.Resolve(ex.Name); ok {
			val, ok := coerceDeclared(def, ex.Value)
			if !ok {
				continue
			}
			def.Value = val
			meta.ExtraFields[name] = def
			written++
			continue
		}
		meta.ExtraFields[ex.Name] = newExtraField(ex)
		written++
	}
	return written
}

// newExtraField builds a field the template does not declare, typed by
// inference from the cell value.
func newExtraField(ex ExtraValue) elabftw.ExtraField {
	f := elabftw.ExtraField{Type: ex.Type}
	if ex.Type == "checkbox" {
		f.Value = CheckboxState(ex.Value)
		return f
	}
	f.Value = ex.Value
	return f
}

// coerceDeclared validates a raw cell against a declared field. Select
// and checkbox values that cannot be matched skip the field; every
// other declared type takes the raw value as-is, the server is lenient
// about formats.
func coerceDeclared(def elabftw.ExtraField, raw string) (any, bool) {
	switch def.Type {
	case "select":
		return coerceSelect(def, raw)
	case "checkbox":
		if state := CheckboxState(raw); state != "" {
			return state, true
		}
		return nil, false
	default:
		return raw, true
	}
}

// coerceSelect matches a cell against a select field's options. Multi
// value cells split on ; and ,. Exact matches win over case-insensitive
// ones, and the returned value always uses the option's own spelling.
func coerceSelect(def elabftw.ExtraField, raw string) (any, bool) {
	parts := SplitMulti(raw)
	if len(parts) == 0 {
		return nil, false
	}
	picked := matchOptions(parts, def.Options)
	if len(picked) == 0 {
		return nil, false
	}
	if def.AllowMultiValues {
		return picked, true
	}
	return picked[0], true
}

// matchOptions keeps the parts that name a declared option. The
// case-insensitive pass only runs when no part matched exactly.
func matchOptions(parts, options []string) []string {
	opts := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}

	var picked []string
	seen := make(map[string]bool)
	for _, p := range parts {
		for _, o := range opts {
			if o == p && !seen[o] {
				picked = append(picked, o)
				seen[o] = true
			}
		}
	}
	if len(picked) > 0 {
		return picked
	}
	for _, p := range parts {
		for _, o := range opts {
			if strings.EqualFold(o, p) && !seen[o] {
				picked = append(picked, o)
				seen[o] = true
				break
			}
		}
	}
	return picked
}
