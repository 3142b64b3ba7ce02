package tracker

import "strings"

// Document is an Atlassian Document Format root node
type Document struct {
	Type    string      `json:"type"`
	Version int         `json:"version"`
	Content []Paragraph `json:"content"`
}

// Paragraph always serializes its content array; Jira rejects paragraphs
// without one.
type Paragraph struct {
	Type    string   `json:"type"`
	Content []Inline `json:"content"`
}

// Inline is a text or hardBreak node
type Inline struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToADF converts plain text into a document. Blank lines separate
// paragraphs and single newlines become hard breaks. Empty text yields one
// empty paragraph.
func ToADF(text string) Document {
	doc := Document{Type: "doc", Version: 1}
	for _, block := range splitParagraphs(text) {
		p := Paragraph{Type: "paragraph", Content: []Inline{}}
		for i, line := range strings.Split(block, "\n") {
			if i > 0 {
				p.Content = append(p.Content, Inline{Type: "hardBreak"})
			}
			p.Content = append(p.Content, Inline{Type: "text", Text: line})
		}
		doc.Content = append(doc.Content, p)
	}
	if len(doc.Content) == 0 {
		doc.Content = []Paragraph{{Type: "paragraph", Content: []Inline{}}}
	}
	return doc
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var blocks, current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	flush()
	return blocks
}
