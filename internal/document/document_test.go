package document

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() Document {
	return New().
		Heading(2, "Build failure").
		KeyValueTable([]string{"Field", "Value"}, [2]string{"Risk Level", "High"}, [2]string{"Owner", "dev <dev@x.io>"}).
		Paragraph(Text{Value: "Archive: "}, Link{Text: "trace.json", Href: "https://storage/trace.json"}).
		CodeBlock("bash", "go test ./...").
		TaskList("Root cause identified", "Fix implemented").
		Build()
}

func TestADFStructure(t *testing.T) {
	root := ADF(sampleDoc())
	assert.Equal(t, "doc", root.Type)
	assert.Equal(t, 1, root.Version)
	require.Len(t, root.Content, 5)

	types := make([]string, 0, len(root.Content))
	for _, n := range root.Content {
		types = append(types, n.Type)
	}
	assert.Equal(t, []string{"heading", "table", "paragraph", "codeBlock", "taskList"}, types)

	table := root.Content[1]
	require.Len(t, table.Content, 3)
	assert.Equal(t, "tableHeader", table.Content[0].Content[0].Type)
	assert.Equal(t, "tableCell", table.Content[1].Content[0].Type)
	key := table.Content[1].Content[0].Content[0].Content[0]
	assert.Equal(t, "Risk Level", key.Text)
	assert.Equal(t, "strong", key.Marks[0].Type)

	link := root.Content[2].Content[1]
	assert.Equal(t, "link", link.Marks[0].Type)
	assert.Equal(t, "https://storage/trace.json", link.Marks[0].Attrs["href"])

	assert.Equal(t, "bash", root.Content[3].Attrs["language"])

	tasks := root.Content[4]
	require.Len(t, tasks.Content, 2)
	for _, item := range tasks.Content {
		assert.Equal(t, "taskItem", item.Type)
		assert.Equal(t, "TODO", item.Attrs["state"])
		assert.NotEmpty(t, item.Attrs["localId"])
	}
}

func TestADFOmitsEmptyTextNodes(t *testing.T) {
	doc := New().Paragraph(Text{Value: ""}).CodeBlock("", "").Build()
	raw, err := json.Marshal(ADF(doc))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"text":""`)
	assert.NotContains(t, string(raw), `"type":"text"`)
}

func TestPlainTextPreservesOrder(t *testing.T) {
	out := PlainText(sampleDoc())

	order := []string{"## Build failure", "Risk Level | High", "trace.json (https://storage/trace.json)", "```bash\ngo test ./...\n```", "[ ] Root cause identified"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		require.NotEqual(t, -1, idx, "missing %q in\n%s", marker, out)
		assert.Greater(t, idx, last, "%q out of order", marker)
		last = idx
	}
}

func TestHeadingLevelIsClamped(t *testing.T) {
	doc := New().Heading(0, "a").Heading(9, "b").Build()
	assert.Equal(t, 1, doc.Blocks[0].(Heading).Level)
	assert.Equal(t, 6, doc.Blocks[1].(Heading).Level)
}
