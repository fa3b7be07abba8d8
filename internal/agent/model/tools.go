package model

import "strings"

// GuidelineSnippet is one result of the external guideline lookup.
type GuidelineSnippet struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
	URL   string `json:"url,omitempty"`
}

// GuidelineResult is the output of the guideline search tool.
type GuidelineResult struct {
	Query    string             `json:"query"`
	Snippets []GuidelineSnippet `json:"snippets"`
}

// Text flattens the snippets into prompt-ready prose; empty when nothing was found.
func (r *GuidelineResult) Text() string {
	if r == nil || len(r.Snippets) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range r.Snippets {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		b.WriteString("- ")
		if s.Title != "" {
			b.WriteString(s.Title)
			b.WriteString(": ")
		}
		b.WriteString(strings.TrimSpace(s.Text))
		if s.URL != "" {
			b.WriteString(" (")
			b.WriteString(s.URL)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
