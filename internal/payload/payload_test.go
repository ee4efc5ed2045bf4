package payload

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-relay/internal/document"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/scrub"
	"github.com/miradorstack/mirador-relay/internal/ticket"
)

func TestDetectEnvironment(t *testing.T) {
	cases := map[string]struct {
		ci   models.CISignals
		want string
	}{
		"no ci":            {models.CISignals{}, EnvLocal},
		"main":             {models.CISignals{CI: true, Ref: "main"}, EnvProduction},
		"master full ref":  {models.CISignals{CI: true, Ref: "refs/heads/master"}, EnvProduction},
		"staging":          {models.CISignals{CI: true, Ref: "staging"}, EnvStaging},
		"feature":          {models.CISignals{CI: true, Ref: "feature-x"}, "ci-feature-x"},
		"override wins":    {models.CISignals{CI: true, Ref: "main", DeployEnv: "qa"}, "qa"},
		"override locally": {models.CISignals{DeployEnv: "sandbox"}, "sandbox"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectEnvironment(tc.ci))
		})
	}
}

func TestTruncateLog(t *testing.T) {
	long := strings.Repeat("a", 2500)
	got := TruncateLog(long)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 2000)))
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
	assert.Equal(t, 2000, strings.Count(got, "a"))

	short := strings.Repeat("b", 1000)
	assert.Equal(t, short, TruncateLog(short))

	exact := strings.Repeat("c", MaxLogChars)
	assert.Equal(t, exact, TruncateLog(exact))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "Fix [API] Timeout after 30s", Summary("API", "  Timeout   after 30s "))
	assert.Equal(t, "Fix [unit-tests] Unrecognised failure", Summary("unit tests", ""))

	s := Summary("build", strings.Repeat("x", 300))
	assert.Equal(t, "Fix [build] "+strings.Repeat("x", MaxSummaryDetail), s)

	bracketed := Summary("tests/test_api.py::test_login[admin]", "AssertionError: boom")
	assert.Equal(t, "Fix [tests/test_api.py::test_login(admin)] AssertionError: boom", bracketed)
	assert.NoError(t, ticket.ValidateSummary(bracketed))
}

func TestReproCommand(t *testing.T) {
	cases := []struct {
		file, command, commit, want string
	}{
		{"scripts/run.py", "", "", "python3 scripts/run.py"},
		{"deploy.sh", "", "abc123", "git checkout abc123 && bash deploy.sh"},
		{"web/app.js", "", "", "node web/app.js"},
		{"web/app.ts", "", "", "npx ts-node web/app.ts"},
		{"tool.rb", "", "", "ruby tool.rb"},
		{"internal/x/x_test.go", "", "", "go test ./internal/x"},
		{"cmd/main.go", "", "", "go run cmd/main.go"},
		{"data/blob.bin", "", "", "cat data/blob.bin"},
		{"", "make test", "f00", "git checkout f00 && make test"},
		{"", "", "", "git log -1"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ReproCommand(tc.file, tc.command, tc.commit), "file=%q", tc.file)
	}
}

func testInput(log string) Input {
	return Input{
		Event:       models.FailureEvent{Source: "unit", Log: log, TraceID: "trace-1", File: "app/db.py", Line: 4},
		Fingerprint: "f1",
		Revision:    "deadbeef",
		Branch:      "main",
		Owner:       models.Owner{Name: "Jane", Email: "jane@corp.io"},
		Exception:   "OperationalError",
		Governance:  models.Governance{ExecutionModel: "CI", FailureMode: "Build Failure", RiskLevel: "High", ComplianceTags: []string{"a", "b"}},
	}
}

func TestBuildRecord(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ci := models.CISignals{CI: true, Ref: "main", Repository: "org/repo", ServerURL: "https://github.com", RunID: "77"}
	b := NewBuilder(ServiceInfo{Name: "svc", Version: "1.0", PipelineName: "ci", ArtifactName: "art"}, ci).
		WithClock(func() time.Time { return start })

	rec := b.BuildRecord(testInput("boom 🔥"))
	assert.Equal(t, models.IncidentSchemaVersion, rec.SchemaVersion)
	assert.Equal(t, "trace-1", rec.TraceID)
	assert.Len(t, rec.SpanID, 16)
	assert.Nil(t, rec.ParentSpanID)
	assert.Equal(t, int64(time.Second), rec.EndTimeUnixNano-rec.StartTimeUnixNano)
	assert.Equal(t, models.StatusCritical, rec.Status.Code)
	assert.Equal(t, EnvProduction, rec.Resource[models.AttrDeploymentEnv])
	assert.Equal(t, "https://github.com/org/repo", rec.Resource[models.AttrVCSRepository])
	assert.Equal(t, "deadbeef", rec.Resource[models.AttrVCSRevision])
	assert.Equal(t, "77", rec.Resource[models.AttrPipelineRunID])
	assert.Equal(t, "jane@corp.io", rec.Attributes[models.AttrOwner])
	require.Len(t, rec.Logs, 1)
	assert.Equal(t, "2026-01-02T03:04:05.000Z", rec.Logs[0].Timestamp)
	assert.Equal(t, "boom ", rec.Logs[0].Body)
	assert.Equal(t, "OperationalError", rec.Logs[0].Attributes[models.AttrExceptionType])

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"parent_span_id":null`)
}

func TestBuildDescriptionSectionOrder(t *testing.T) {
	b := NewBuilder(ServiceInfo{Name: "svc"}, models.CISignals{})
	doc := b.BuildDescription(testInput("trace"), "https://storage.cloud.google.com/b/trace_trace-1.json")

	root := document.ADF(doc)
	types := make([]string, 0, len(root.Content))
	for _, n := range root.Content {
		types = append(types, n.Type)
	}
	assert.Equal(t, []string{"heading", "table", "table", "paragraph", "codeBlock", "codeBlock", "taskList"}, types)
	assert.Len(t, root.Content[6].Content, len(AcceptanceCriteria))

	plain := document.PlainText(doc)
	assert.Contains(t, plain, "git checkout deadbeef && python3 app/db.py")
	assert.Contains(t, plain, "CI Context | Local")
}

func TestBuildDescriptionWithoutArchive(t *testing.T) {
	doc := NewBuilder(ServiceInfo{}, models.CISignals{}).BuildDescription(testInput("x"), "")
	for _, block := range doc.Blocks {
		_, isParagraph := block.(document.Paragraph)
		assert.False(t, isParagraph, "archive paragraph must be omitted")
	}
}

func TestDescriptionScrubsEmojiAndEmail(t *testing.T) {
	log := scrub.Secrets("🚀 deploy failed, contact ops@corp.io")
	doc := NewBuilder(ServiceInfo{}, models.CISignals{}).BuildDescription(testInput(log), "")
	raw, err := json.Marshal(document.ADF(doc))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "🚀")
	assert.NotContains(t, string(raw), "ops@corp.io")
	assert.Contains(t, string(raw), scrub.RedactedEmail)
}

func TestDescriptionTruncatesLongLogs(t *testing.T) {
	doc := NewBuilder(ServiceInfo{}, models.CISignals{}).BuildDescription(testInput(strings.Repeat("z", 2500)), "")
	var logBlock document.CodeBlock
	for _, block := range doc.Blocks {
		if cb, ok := block.(document.CodeBlock); ok && cb.Language == "text" {
			logBlock = cb
		}
	}
	assert.Equal(t, strings.Repeat("z", 2000)+"\n"+TruncationMarker, logBlock.Text)
}
