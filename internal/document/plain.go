package document

import "strings"

// PlainText flattens doc for backends without rich text, keeping block order.
func PlainText(doc Document) string {
	sections := make([]string, 0, len(doc.Blocks))
	for _, block := range doc.Blocks {
		if s := plainBlock(block); s != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n\n")
}

func plainBlock(block Block) string {
	switch b := block.(type) {
	case Heading:
		return strings.Repeat("#", b.Level) + " " + plainInlines(b.Content)
	case Paragraph:
		return plainInlines(b.Content)
	case Table:
		var lines []string
		if len(b.Header) > 0 {
			lines = append(lines, strings.Join(b.Header, " | "))
		}
		for _, row := range b.Rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				cells = append(cells, plainInlines(c))
			}
			lines = append(lines, strings.Join(cells, " | "))
		}
		return strings.Join(lines, "\n")
	case CodeBlock:
		return "```" + b.Language + "\n" + b.Text + "\n```"
	case TaskList:
		lines := make([]string, 0, len(b.Items))
		for _, item := range b.Items {
			lines = append(lines, "[ ] "+item)
		}
		return strings.Join(lines, "\n")
	default:
		return ""
	}
}

func plainInlines(content []Inline) string {
	var sb strings.Builder
	for _, in := range content {
		sb.WriteString(in.plain())
	}
	return sb.String()
}
