package elabftw

import (
	"encoding/json"
	"strings"
	"testing"
)

// ============================================================
// Location header parsing
// ============================================================

func TestParseLocationID(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     int
		wantErr  bool
	}{
		{"absolute url", "https://elab.example.org/api/v2/items/42", 42, false},
		{"relative path", "/api/v2/experiments/7", 7, false},
		{"trailing slash", "https://elab.example.org/api/v2/items/42/", 42, false},
		{"bare id", "42", 42, false},
		{"empty", "", 0, true},
		{"non-numeric", "/api/v2/items/abc", 0, true},
		{"zero id", "/api/v2/items/0", 0, true},
		{"negative id", "/api/v2/items/-3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocationID(tt.location)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLocationID(%q) error = %v, wantErr %v", tt.location, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLocationID(%q) = %d, want %d", tt.location, got, tt.want)
			}
		})
	}
}

// ============================================================
// Tags
// ============================================================

func TestSplitServerTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace", "   ", nil},
		{"single", "plasmid", []string{"plasmid"}},
		{"pipe joined", "buffer|stock|4c", []string{"buffer", "stock", "4c"}},
		{"padded parts", " buffer | stock ", []string{"buffer", "stock"}},
		{"empty parts dropped", "buffer||stock", []string{"buffer", "stock"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitServerTags(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitServerTags(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("SplitServerTags(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// ============================================================
// Metadata blob
// ============================================================

func TestMetadata_RoundTripPreservesOtherKeys(t *testing.T) {
	blob := `{"extra_fields": {"Host": {"value": "Mouse", "type": "select"}}, "elabftw": {"extra_fields_groups": [{"id": 1, "name": "General"}]}}`

	var md Metadata
	if err := json.Unmarshal([]byte(blob), &md); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if md.ExtraFields["Host"].Value != "Mouse" {
		t.Errorf("Host value = %v, want Mouse", md.ExtraFields["Host"].Value)
	}

	md.ExtraFields["Host"] = ExtraField{Value: "Rabbit", Type: "select"}

	out, err := md.String()
	if err != nil {
		t.Fatalf("String() error = %v", err)
	}

	var reparsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &reparsed); err != nil {
		t.Fatalf("wire form does not parse: %v", err)
	}
	if _, ok := reparsed["elabftw"]; !ok {
		t.Error("elabftw section was dropped on rewrite")
	}
	if !strings.Contains(out, "Rabbit") {
		t.Errorf("wire form %q missing updated value", out)
	}
}

func TestMetadata_StringIsCompact(t *testing.T) {
	md := Metadata{
		ExtraFields: map[string]ExtraField{"Host": {Value: "Mouse"}},
	}
	out, err := md.String()
	if err != nil {
		t.Fatalf("String() error = %v", err)
	}
	if strings.ContainsAny(out, "\n\t") {
		t.Errorf("wire form %q is not compact", out)
	}
}

func TestCategory_FieldDefs_EmptyTemplate(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
	}{
		{"no template", ""},
		{"blank template", "   "},
		{"template without extra_fields", `{"elabftw": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := Category{ID: 1, Metadata: tt.metadata}
			defs, err := cat.FieldDefs()
			if err != nil {
				t.Fatalf("FieldDefs() error = %v", err)
			}
			if len(defs) != 0 {
				t.Errorf("defs = %v, want empty", defs)
			}
		})
	}
}

func TestCategory_FieldDefs_MalformedTemplate(t *testing.T) {
	cat := Category{ID: 1, Metadata: "{not json"}
	if _, err := cat.FieldDefs(); err == nil {
		t.Fatal("FieldDefs() error = nil, want parse error")
	}
}

// ============================================================
// Item decoding
// ============================================================

func TestItem_UnmarshalMetadataObject(t *testing.T) {
	// Some server versions inline metadata as an object instead of a string.
	raw := `{"id": 3, "title": "Buffer A", "metadata": {"extra_fields": {"pH": {"value": "7.4"}}}}`

	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := item.Metadata.ExtraFields["pH"].Value; got != "7.4" {
		t.Errorf("pH value = %v, want 7.4", got)
	}
}

func TestItem_MalformedMetadataDegrades(t *testing.T) {
	raw := `{"id": 3, "title": "Buffer A", "metadata": "{broken"}`

	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.ID != 3 || item.Title != "Buffer A" {
		t.Errorf("item = %+v, want id 3 title Buffer A", item)
	}
	if len(item.Metadata.ExtraFields) != 0 {
		t.Errorf("extra fields = %v, want empty", item.Metadata.ExtraFields)
	}
}

func TestItem_RawKeepsFullPayload(t *testing.T) {
	raw := `{"id": 3, "title": "Buffer A", "userid": 12, "created_at": "2024-01-01 10:00:00"}`

	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := item.Raw["created_at"]; !ok {
		t.Error("Raw dropped created_at")
	}
	if _, ok := item.Raw["userid"]; !ok {
		t.Error("Raw dropped userid")
	}
}

// ============================================================
// Kinds
// ============================================================

func TestKindEndpoint(t *testing.T) {
	if got := KindResource.endpoint(); got != "items" {
		t.Errorf("resource endpoint = %q, want items", got)
	}
	if got := KindExperiment.endpoint(); got != "experiments" {
		t.Errorf("experiment endpoint = %q, want experiments", got)
	}
}
