package output

import (
	"strings"
)

// MarkdownFormatter renders datasets as a markdown table.
type MarkdownFormatter struct{}

// Format renders a dataset as Markdown.
func (f *MarkdownFormatter) Format(d Dataset) (string, error) {
	var sb strings.Builder
	if d.Title != "" {
		sb.WriteString("## " + escapeMarkdownCell(d.Title) + "\n\n")
	}
	sb.WriteString(newTable(d).RenderMarkdown())
	sb.WriteString("\n")
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
