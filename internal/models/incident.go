package models

// IncidentSchemaVersion identifies the flight recorder document layout.
const IncidentSchemaVersion = "flight-recorder/v1"

// Resource attribute keys used in IncidentRecord.Resource.
const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrDeploymentEnv  = "deployment.environment.name"
	AttrVCSRepository  = "vcs.repository.url.full"
	AttrVCSRefHead     = "vcs.ref.head.name"
	AttrVCSRevision    = "vcs.revision.id"
	AttrPipelineName   = "cicd.pipeline.name"
	AttrPipelineRunID  = "cicd.pipeline.run.id"
	AttrArtifactName   = "artifact.name"
	AttrTestSuiteName  = "test.suite.name"
	AttrTestResult     = "test.result"
	AttrOwner          = "owner"
	AttrExceptionType  = "exception.type"
)

// IncidentRecord is the flight recorder payload archived per failure event.
type IncidentRecord struct {
	SchemaVersion     string            `json:"schema_version"`
	TraceID           string            `json:"trace_id"`
	SpanID            string            `json:"span_id"`
	ParentSpanID      *string           `json:"parent_span_id"`
	StartTimeUnixNano int64             `json:"start_time_unix_nano"`
	EndTimeUnixNano   int64             `json:"end_time_unix_nano"`
	Status            IncidentStatus    `json:"status"`
	Fingerprint       string            `json:"fingerprint"`
	Resource          map[string]string `json:"resource"`
	Attributes        map[string]string `json:"attributes"`
	Logs              []LogRecord       `json:"logs"`
}

// IncidentStatus carries the status code of the failed span.
type IncidentStatus struct {
	Code string `json:"code"`
}

// LogRecord is one ordered log entry inside an IncidentRecord.
type LogRecord struct {
	Timestamp  string            `json:"timestamp"`
	Severity   string            `json:"severity"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes"`
}

// Status codes.
const (
	StatusCritical = "Critical"
	StatusError    = "Error"
)
