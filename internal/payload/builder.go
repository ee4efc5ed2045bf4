// Package payload turns a failure into the archived incident record and the rich
// ticket description.
package payload

import (
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-relay/internal/document"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/scrub"
	"github.com/miradorstack/mirador-relay/internal/utils"
)

// ServiceInfo identifies the service and pipeline in incident resources.
type ServiceInfo struct {
	Name         string
	Version      string
	PipelineName string
	ArtifactName string
	// RepositoryURL is used when CI signals do not name the repository.
	RepositoryURL string
}

// Input is everything known about one failure once its owner is resolved.
type Input struct {
	Event       models.FailureEvent
	Fingerprint string
	Revision    string
	Branch      string
	Owner       models.Owner
	Status      string
	Exception   string
	Governance  models.Governance
}

// Builder produces incident records and descriptions.
type Builder struct {
	service ServiceInfo
	ci      models.CISignals
	now     func() time.Time
	newID   func() string
}

// NewBuilder constructs a Builder for the given service identity and CI signals.
func NewBuilder(service ServiceInfo, ci models.CISignals) *Builder {
	return &Builder{
		service: service,
		ci:      ci,
		now:     time.Now,
		newID:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:16] },
	}
}

// WithClock overrides the time source; used by tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Environment returns the deployment environment for this builder's CI signals.
func (b *Builder) Environment() string {
	return DetectEnvironment(b.ci)
}

// BuildRecord assembles the flight recorder payload. The end time is the start plus one
// second since the true failure duration is not observed.
func (b *Builder) BuildRecord(in Input) models.IncidentRecord {
	start := b.now()
	status := in.Status
	if status == "" {
		status = models.StatusCritical
	}
	exception := in.Exception
	if exception == "" {
		exception = "RuntimeError"
	}
	repoURL := b.ci.RepositoryURL()
	if repoURL == "" {
		repoURL = b.service.RepositoryURL
	}

	return models.IncidentRecord{
		SchemaVersion:     models.IncidentSchemaVersion,
		TraceID:           in.Event.TraceID,
		SpanID:            b.newID(),
		ParentSpanID:      nil,
		StartTimeUnixNano: start.UnixNano(),
		EndTimeUnixNano:   start.Add(time.Second).UnixNano(),
		Status:            models.IncidentStatus{Code: status},
		Fingerprint:       in.Fingerprint,
		Resource: map[string]string{
			models.AttrServiceName:    b.service.Name,
			models.AttrServiceVersion: b.service.Version,
			models.AttrDeploymentEnv:  DetectEnvironment(b.ci),
			models.AttrVCSRepository:  repoURL,
			models.AttrVCSRefHead:     in.Branch,
			models.AttrVCSRevision:    in.Revision,
			models.AttrPipelineName:   b.service.PipelineName,
			models.AttrPipelineRunID:  b.ci.RunID,
			models.AttrArtifactName:   b.service.ArtifactName,
		},
		Attributes: map[string]string{
			models.AttrTestSuiteName: in.Event.Source,
			models.AttrTestResult:    "fail",
			models.AttrOwner:         in.Owner.Email,
		},
		Logs: []models.LogRecord{{
			Timestamp:  utils.FormatLogTimestamp(start),
			Severity:   "ERROR",
			Body:       scrub.ASCII(in.Event.Log),
			Attributes: map[string]string{models.AttrExceptionType: exception},
		}},
	}
}

// AcceptanceCriteria are the checklist items every incident ticket starts with.
var AcceptanceCriteria = []string{
	"Root cause identified",
	"Fix implemented",
	"Reproduction command passes",
	"Regression test added",
	"Pipeline green",
	"Peer reviewed",
}

// BuildDescription renders the ticket body: governance table, environment table,
// optional archive link, reproduction command, log excerpt, then the acceptance checklist.
func (b *Builder) BuildDescription(in Input, archiveURL string) document.Document {
	g := in.Governance
	doc := document.New().
		Heading(2, "Automated incident report: "+in.Event.Source).
		KeyValueTable([]string{"Governance", "Value"},
			[2]string{"Execution Model", orNone(g.ExecutionModel)},
			[2]string{"Failure Mode", orNone(g.FailureMode)},
			[2]string{"Risk Level", orNone(g.RiskLevel)},
			[2]string{"Compliance Tags", orNone(strings.Join(g.ComplianceTags, ", "))},
			[2]string{"Owner", orNone(in.Owner.String())},
			[2]string{"Fingerprint", in.Fingerprint},
		).
		KeyValueTable([]string{"Environment", "Value"},
			[2]string{"OS", runtime.GOOS + "/" + runtime.GOARCH},
			[2]string{"Runtime", runtime.Version()},
			[2]string{"Git Branch", orNone(in.Branch)},
			[2]string{"Git Commit", orNone(in.Revision)},
			[2]string{"CI Context", b.ciContext()},
		)

	if archiveURL != "" {
		doc.Paragraph(
			document.Strong{Value: "Flight recorder archive: "},
			document.Link{Text: "trace_" + in.Event.TraceID + ".json", Href: archiveURL},
		)
	}

	return doc.
		CodeBlock("bash", ReproCommand(in.Event.File, in.Event.Command, in.Revision)).
		CodeBlock("text", TruncateLog(scrub.ASCII(in.Event.Log))).
		TaskList(AcceptanceCriteria...).
		Build()
}

func (b *Builder) ciContext() string {
	if !b.ci.CI {
		return "Local"
	}
	if url := b.ci.RunURL(); url != "" {
		return url
	}
	if b.ci.RunID != "" {
		return "CI run " + b.ci.RunID
	}
	return "CI"
}

func orNone(v string) string {
	if strings.TrimSpace(v) == "" {
		return "n/a"
	}
	return v
}
