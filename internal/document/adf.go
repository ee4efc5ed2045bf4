package document

import "github.com/google/uuid"

// ADFNode is one node of an Atlassian Document Format tree.
type ADFNode struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []ADFNode      `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []ADFMark      `json:"marks,omitempty"`
}

// ADFMark decorates a text node.
type ADFMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// ADF renders doc as an Atlassian Document Format version 1 tree.
func ADF(doc Document) ADFNode {
	root := ADFNode{Type: "doc", Version: 1, Content: []ADFNode{}}
	for _, block := range doc.Blocks {
		if node, ok := adfBlock(block); ok {
			root.Content = append(root.Content, node)
		}
	}
	return root
}

func adfBlock(block Block) (ADFNode, bool) {
	switch b := block.(type) {
	case Heading:
		return ADFNode{Type: "heading", Attrs: map[string]any{"level": b.Level}, Content: adfInlines(b.Content)}, true
	case Paragraph:
		return adfParagraph(b.Content), true
	case Table:
		return adfTable(b), true
	case CodeBlock:
		node := ADFNode{Type: "codeBlock"}
		if b.Language != "" {
			node.Attrs = map[string]any{"language": b.Language}
		}
		if b.Text != "" {
			node.Content = []ADFNode{{Type: "text", Text: b.Text}}
		}
		return node, true
	case TaskList:
		list := ADFNode{Type: "taskList", Attrs: map[string]any{"localId": uuid.NewString()}}
		for _, item := range b.Items {
			task := ADFNode{Type: "taskItem", Attrs: map[string]any{"localId": uuid.NewString(), "state": "TODO"}}
			if item != "" {
				task.Content = []ADFNode{{Type: "text", Text: item}}
			}
			list.Content = append(list.Content, task)
		}
		return list, len(list.Content) > 0
	default:
		return ADFNode{}, false
	}
}

func adfTable(t Table) ADFNode {
	table := ADFNode{Type: "table", Attrs: map[string]any{"isNumberColumnEnabled": false, "layout": "default"}}
	if len(t.Header) > 0 {
		row := ADFNode{Type: "tableRow"}
		for _, h := range t.Header {
			row.Content = append(row.Content, ADFNode{
				Type:    "tableHeader",
				Content: []ADFNode{adfParagraph([]Inline{Strong{Value: h}})},
			})
		}
		table.Content = append(table.Content, row)
	}
	for _, cells := range t.Rows {
		row := ADFNode{Type: "tableRow"}
		for _, cell := range cells {
			row.Content = append(row.Content, ADFNode{
				Type:    "tableCell",
				Content: []ADFNode{adfParagraph(cell)},
			})
		}
		table.Content = append(table.Content, row)
	}
	return table
}

func adfParagraph(content []Inline) ADFNode {
	return ADFNode{Type: "paragraph", Content: adfInlines(content)}
}

// adfInlines drops empty runs; ADF rejects empty text nodes.
func adfInlines(content []Inline) []ADFNode {
	var nodes []ADFNode
	for _, in := range content {
		switch v := in.(type) {
		case Text:
			if v.Value != "" {
				nodes = append(nodes, ADFNode{Type: "text", Text: v.Value})
			}
		case Strong:
			if v.Value != "" {
				nodes = append(nodes, ADFNode{Type: "text", Text: v.Value, Marks: []ADFMark{{Type: "strong"}}})
			}
		case Link:
			text := v.Text
			if text == "" {
				text = v.Href
			}
			if text != "" {
				nodes = append(nodes, ADFNode{
					Type:  "text",
					Text:  text,
					Marks: []ADFMark{{Type: "link", Attrs: map[string]any{"href": v.Href}}},
				})
			}
		}
	}
	return nodes
}
