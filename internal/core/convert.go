package core

// convert.go provides value cleanup and type inference for user-provided
// tabular data.
//
// These functions handle the messy reality of spreadsheets exported from
// many tools:
//   - Non-breaking spaces and stray whitespace
//   - Excel formula prefixes (="value")
//   - Ids exported as floats ("12.0") or as placeholder text ("nan")
//   - Tag lists joined with semicolons, commas or pipes
//
// Values stay strings end to end; inference only decides the wire type
// an unmapped column is declared with.

import (
	"regexp"
	"strconv"
	"strings"
)

// recordIDRegex matches a bare numeric record id after normalization.
var recordIDRegex = regexp.MustCompile(`^\d+$`)

// floatIDRegex matches ids that picked up a float suffix in a
// spreadsheet round trip ("12.0", "12.000").
var floatIDRegex = regexp.MustCompile(`^(\d+)\.0+$`)

// CleanCell removes common spreadsheet artifacts from a cell value:
//   - Replaces non-breaking spaces with regular spaces
//   - Trims whitespace
//   - Removes Excel formula prefix (="...")
//   - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

// Canonicalize reduces a header or field name to its canonical form for
// matching: lowercase, spaces removed, dashes folded to underscores.
// "My Field-Name" and "myfield_name" refer to the same field.
func Canonicalize(name string) string {
	s := strings.ToLower(CleanCell(name))
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "-", "_")
}

// NormalizeID cleans an id cell. Placeholder values spreadsheets write
// for missing data ("nan", "none", "null") become empty, and a float
// suffix from a spreadsheet round trip is stripped ("12.0" -> "12").
func NormalizeID(s string) string {
	s = CleanCell(s)
	switch strings.ToLower(s) {
	case "", "nan", "none", "null":
		return ""
	}
	if m := floatIDRegex.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ParseRecordID converts an id cell to a numeric record id.
// Returns 0 with ok=false when the cell is empty after normalization.
func ParseRecordID(s string) (int, bool, error) {
	s = NormalizeID(s)
	if s == "" {
		return 0, false, nil
	}
	if !recordIDRegex.MatchString(s) {
		return 0, false, &ValueError{Field: "id", Value: s, Reason: "invalid record id"}
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, false, &ValueError{Field: "id", Value: s, Reason: "invalid record id"}
	}
	return id, true, nil
}

// ValueError reports a cell whose value cannot be used for its field.
type ValueError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValueError) Error() string {
	return e.Reason + " " + strconv.Quote(e.Value)
}

// SplitTags splits a tag cell on semicolons, commas and pipes.
func SplitTags(s string) []string {
	if CleanCell(s) == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == '|'
	})
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanCell(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// SplitMulti splits a multi-value select cell on semicolons and commas.
func SplitMulti(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ','
	})
	vals := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanCell(p); p != "" {
			vals = append(vals, p)
		}
	}
	return vals
}

// IsNumber reports whether the cell parses as a number.
func IsNumber(s string) bool {
	s = CleanCell(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// ParseBool interprets the spreadsheet spellings of a checkbox state.
// Accepts true/false, yes/no, 1/0, on/off and the lone "x" mark.
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(CleanCell(s)) {
	case "true", "t", "yes", "y", "1", "on", "x":
		return true, true
	case "false", "f", "no", "n", "0", "off":
		return false, true
	default:
		return false, false
	}
}

// looksBoolean reports whether a cell should make its column infer as a
// checkbox. Deliberately narrower than ParseBool: single letters and
// digits are too common in plain text columns.
func looksBoolean(s string) bool {
	switch strings.ToLower(CleanCell(s)) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

// InferType picks the wire type for an unmapped column's value. Numbers
// win over booleans, and anything unrecognized is text.
func InferType(s string) string {
	if IsNumber(s) {
		return "number"
	}
	if looksBoolean(s) {
		return "checkbox"
	}
	return "text"
}

// CheckboxState renders a value as the server's checkbox state. Returns
// "" when the value is not recognizably boolean.
func CheckboxState(s string) string {
	v, ok := ParseBool(s)
	if !ok {
		return ""
	}
	if v {
		return "on"
	}
	return "off"
}
