// Package document builds backend-agnostic rich ticket bodies and renders them for
// specific ticketing backends.
package document

// Document is an ordered list of blocks.
type Document struct {
	Blocks []Block
}

// Block is a top-level document element.
type Block interface {
	isBlock()
}

// Inline is a run of text inside a block.
type Inline interface {
	isInline()
	plain() string
}

type Heading struct {
	Level   int
	Content []Inline
}

type Paragraph struct {
	Content []Inline
}

// Cell is one table cell.
type Cell []Inline

// Table renders Header as header cells when present.
type Table struct {
	Header []string
	Rows   [][]Cell
}

type CodeBlock struct {
	Language string
	Text     string
}

// TaskList is a checklist whose items start unchecked.
type TaskList struct {
	Items []string
}

func (Heading) isBlock()   {}
func (Paragraph) isBlock() {}
func (Table) isBlock()     {}
func (CodeBlock) isBlock() {}
func (TaskList) isBlock()  {}

type Text struct{ Value string }
type Strong struct{ Value string }
type Link struct{ Text, Href string }

func (Text) isInline()   {}
func (Strong) isInline() {}
func (Link) isInline()   {}

func (t Text) plain() string   { return t.Value }
func (s Strong) plain() string { return s.Value }
func (l Link) plain() string {
	if l.Text == "" || l.Text == l.Href {
		return l.Href
	}
	return l.Text + " (" + l.Href + ")"
}

// Builder accumulates blocks in call order.
type Builder struct {
	blocks []Block
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) Heading(level int, text string) *Builder {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	b.blocks = append(b.blocks, Heading{Level: level, Content: []Inline{Text{Value: text}}})
	return b
}

func (b *Builder) Paragraph(content ...Inline) *Builder {
	b.blocks = append(b.blocks, Paragraph{Content: content})
	return b
}

func (b *Builder) Table(header []string, rows ...[]Cell) *Builder {
	b.blocks = append(b.blocks, Table{Header: header, Rows: rows})
	return b
}

// KeyValueTable adds a two-column table with bold keys.
func (b *Builder) KeyValueTable(header []string, pairs ...[2]string) *Builder {
	rows := make([][]Cell, 0, len(pairs))
	for _, kv := range pairs {
		rows = append(rows, []Cell{{Strong{Value: kv[0]}}, {Text{Value: kv[1]}}})
	}
	return b.Table(header, rows...)
}

func (b *Builder) CodeBlock(language, text string) *Builder {
	b.blocks = append(b.blocks, CodeBlock{Language: language, Text: text})
	return b
}

func (b *Builder) TaskList(items ...string) *Builder {
	b.blocks = append(b.blocks, TaskList{Items: items})
	return b
}

// Build returns the document. The builder may keep being used afterwards.
func (b *Builder) Build() Document {
	return Document{Blocks: append([]Block(nil), b.blocks...)}
}
