package core

import (
	"errors"
	"testing"
)

// ============================================================
// Cell cleanup
// ============================================================

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello", "hello"},
		{"leading trailing spaces", "  hello  ", "hello"},
		{"non-breaking space", "hello world", "hello world"},
		{"only non-breaking spaces", "  ", ""},
		{"excel formula prefix", `="12345"`, "12345"},
		{"bare equals prefix", "=SUM(A1)", "SUM(A1)"},
		{"surrounding double quotes", `"quoted"`, "quoted"},
		{"surrounding single quotes", "'quoted'", "quoted"},
		{"quotes then spaces", `" padded "`, "padded"},
		{"tabs and newlines", "\tvalue\n", "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.in); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase passthrough", "title", "title"},
		{"uppercase", "TITLE", "title"},
		{"spaces removed", "My Field Name", "myfieldname"},
		{"dashes to underscores", "record-id", "record_id"},
		{"mixed", "Record ID", "recordid"},
		{"underscores kept", "record_id", "record_id"},
		{"padded", "  Title  ", "title"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.in); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Header spellings users actually type must land on the same field.
func TestCanonicalize_EquivalentSpellings(t *testing.T) {
	spellings := []string{"Record ID", "record-id", "record_id", "RECORD_ID", "Record Id"}
	want := Canonicalize(spellings[0])
	for _, s := range spellings[1:] {
		if got := Canonicalize(s); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", s, got, want)
		}
	}
}

// ============================================================
// Record ids
// ============================================================

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain id", "42", "42"},
		{"padded", " 42 ", "42"},
		{"nan placeholder", "nan", ""},
		{"NaN mixed case", "NaN", ""},
		{"none placeholder", "None", ""},
		{"null placeholder", "NULL", ""},
		{"float suffix", "12.0", "12"},
		{"long float suffix", "12.000", "12"},
		{"real decimal untouched", "12.5", "12.5"},
		{"excel formula id", `="12345"`, "12345"},
		{"non-numeric untouched", "abc", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeID(tt.in); got != tt.want {
				t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRecordID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantOK  bool
		wantErr bool
	}{
		{"empty", "", 0, false, false},
		{"nan placeholder", "nan", 0, false, false},
		{"plain", "42", 42, true, false},
		{"float suffix", "42.0", 42, true, false},
		{"padded", " 7 ", 7, true, false},
		{"text", "abc", 0, false, true},
		{"negative", "-3", 0, false, true},
		{"zero", "0", 0, false, true},
		{"decimal", "12.5", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseRecordID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRecordID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("ParseRecordID(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseRecordID(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRecordID_ValueError(t *testing.T) {
	_, _, err := ParseRecordID("abc")
	var ve *ValueError
	if !errors.As(err, &ve) {
		t.Fatalf("ParseRecordID(\"abc\") error = %T, want *ValueError", err)
	}
	if ve.Field != "id" {
		t.Errorf("ValueError.Field = %q, want %q", ve.Field, "id")
	}
	if ve.Value != "abc" {
		t.Errorf("ValueError.Value = %q, want %q", ve.Value, "abc")
	}
}

// ============================================================
// List splitting
// ============================================================

func TestSplitTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"single", "buffer", []string{"buffer"}},
		{"semicolons", "buffer;stock;4c", []string{"buffer", "stock", "4c"}},
		{"commas", "buffer,stock", []string{"buffer", "stock"}},
		{"pipes", "buffer|stock", []string{"buffer", "stock"}},
		{"mixed separators", "a;b,c|d", []string{"a", "b", "c", "d"}},
		{"padded parts", " buffer ; stock ", []string{"buffer", "stock"}},
		{"empty parts dropped", "buffer;;stock", []string{"buffer", "stock"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitTags(tt.in)
			assertStringSlice(t, "SplitTags", tt.in, got, tt.want)
		})
	}
}

func TestSplitMulti(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "Mouse", []string{"Mouse"}},
		{"semicolons", "Mouse; Rabbit", []string{"Mouse", "Rabbit"}},
		{"commas", "Mouse,Rabbit", []string{"Mouse", "Rabbit"}},
		// Pipes separate tags, not select options.
		{"pipes not split", "Mouse|Rabbit", []string{"Mouse|Rabbit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMulti(tt.in)
			assertStringSlice(t, "SplitMulti", tt.in, got, tt.want)
		})
	}
}

func assertStringSlice(t *testing.T, fn, in string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s(%q) = %v, want %v", fn, in, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("%s(%q)[%d] = %q, want %q", fn, in, i, got[i], want[i])
		}
	}
}

// ============================================================
// Type inference
// ============================================================

func TestIsNumber(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"42", true},
		{"-3.5", true},
		{"0", true},
		{"1e6", true},
		{" 42 ", true},
		{"", false},
		{"abc", false},
		{"42abc", false},
		{"1,234", false},
	}

	for _, tt := range tests {
		if got := IsNumber(tt.in); got != tt.want {
			t.Errorf("IsNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in     string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"t", true, true},
		{"yes", true, true},
		{"y", true, true},
		{"1", true, true},
		{"on", true, true},
		{"x", true, true},
		{"false", false, true},
		{"f", false, true},
		{"no", false, true},
		{"n", false, true},
		{"0", false, true},
		{"off", false, true},
		{"", false, false},
		{"maybe", false, false},
		{"2", false, false},
	}

	for _, tt := range tests {
		got, ok := ParseBool(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseBool(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestInferType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"42", "number"},
		{"-3.5", "number"},
		{"true", "checkbox"},
		{"Yes", "checkbox"},
		{"no", "checkbox"},
		// "1" and "0" are numbers first, never checkboxes.
		{"1", "number"},
		{"0", "number"},
		// Single letters are too common in text columns to infer.
		{"y", "text"},
		{"x", "text"},
		{"on", "text"},
		{"blue", "text"},
		{"", "text"},
	}

	for _, tt := range tests {
		if got := InferType(tt.in); got != tt.want {
			t.Errorf("InferType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckboxState(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"true", "on"},
		{"yes", "on"},
		{"x", "on"},
		{"false", "off"},
		{"no", "off"},
		{"0", "off"},
		{"", ""},
		{"maybe", ""},
	}

	for _, tt := range tests {
		if got := CheckboxState(tt.in); got != tt.want {
			t.Errorf("CheckboxState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
