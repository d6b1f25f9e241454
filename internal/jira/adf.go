package jira

import (
	"encoding/json"
	"strings"
)

// DescriptionText extracts the plain text of an issue description, which
// the API may deliver as a plain string (v2) or an ADF document (v3).
func DescriptionText(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return TextFromADF(data)
	}
}

// TextFromADF extracts plain text from an ADF (Atlassian Document Format)
// document, one line per top-level block. Non-ADF input falls back to its
// string form rather than failing.
func TextFromADF(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var doc ADFDocument
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Type != "doc" {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	}

	lines := make([]string, 0, len(doc.Content))
	for _, block := range doc.Content {
		lines = append(lines, collectText(block))
	}
	return strings.Join(lines, "\n")
}

// collectText concatenates the text of a node and its descendants.
func collectText(node ADFNode) string {
	var sb strings.Builder
	sb.WriteString(node.Text)
	for _, child := range node.Content {
		sb.WriteString(collectText(child))
	}
	return sb.String()
}

// ADFFromText converts plain text to an ADF document, one paragraph per
// line. Empty lines become empty paragraphs so blank separation survives
// the round trip.
func ADFFromText(text string) *ADFDocument {
	lines := strings.Split(text, "\n")
	content := make([]ADFNode, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			content = append(content, ADFNode{Type: "paragraph"})
			continue
		}
		content = append(content, ADFNode{
			Type: "paragraph",
			Content: []ADFNode{
				{Type: "text", Text: line},
			},
		})
	}

	return &ADFDocument{
		Version: 1,
		Type:    "doc",
		Content: content,
	}
}
