package jira

import (
	"encoding/json"
	"testing"
)

func TestTextFromADF(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"simple doc",
			`{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}`,
			"hello",
		},
		{
			"two paragraphs",
			`{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"a"}]},{"type":"paragraph","content":[{"type":"text","text":"b"}]}]}`,
			"a\nb",
		},
		{
			"split text nodes joined",
			`{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"hel"},{"type":"text","text":"lo"}]}]}`,
			"hello",
		},
		{"plain json string", `"just text"`, "just text"},
		{"null", `null`, ""},
		{"empty", ``, ""},
		{"not a doc", `{"type":"other"}`, `{"type":"other"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextFromADF(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("TextFromADF(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestADFFromTextRoundTrip(t *testing.T) {
	texts := []string{
		"single line",
		"line one\nline two",
		"para\n\nafter blank",
	}
	for _, txt := range texts {
		doc := ADFFromText(txt)
		data, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("marshal ADF: %v", err)
		}
		if got := TextFromADF(data); got != txt {
			t.Errorf("round trip of %q = %q", txt, got)
		}
	}
}

func TestDescriptionText(t *testing.T) {
	// Search results decode description as interface{}: a string on API v2,
	// a map on v3.
	var adf interface{}
	err := json.Unmarshal([]byte(`{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"from adf"}]}]}`), &adf)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		raw  interface{}
		want string
	}{
		{"nil", nil, ""},
		{"plain string", "from v2", "from v2"},
		{"adf map", adf, "from adf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DescriptionText(tt.raw); got != tt.want {
				t.Errorf("DescriptionText(%v) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
