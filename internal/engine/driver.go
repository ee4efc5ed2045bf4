package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-relay/internal/dedup"
	"github.com/miradorstack/mirador-relay/internal/extractors"
	"github.com/miradorstack/mirador-relay/internal/metrics"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/notify"
	"github.com/miradorstack/mirador-relay/internal/owner"
	"github.com/miradorstack/mirador-relay/internal/payload"
	"github.com/miradorstack/mirador-relay/internal/scrub"
	"github.com/miradorstack/mirador-relay/internal/ticket"
)

// OwnerResolver attributes a failure location to a person. It never fails.
type OwnerResolver interface {
	Resolve(ctx context.Context, file string, line int) models.Owner
}

// RevisionSource reads the checked-out revision when CI does not provide it.
type RevisionSource interface {
	Head(ctx context.Context, dir string) (string, error)
	Branch(ctx context.Context, dir string) (string, error)
}

// Archiver stores the incident record and returns its URL; ok is false when skipped or failed.
type Archiver interface {
	Upload(ctx context.Context, record models.IncidentRecord, destination, traceID string) (string, bool)
}

// Notifier announces created tickets.
type Notifier interface {
	NotifyCreated(ctx context.Context, m notify.Message) error
}

// DriverDeps wires a Driver. Only Gateway and Builder are required; a nil Rules applies
// DefaultGovernance.
type DriverDeps struct {
	Gateway   ticket.Gateway
	Builder   *payload.Builder
	Rules     *RuleEngine
	Extractor *extractors.LogsExtractor
	Owners    OwnerResolver
	VCS       RevisionSource
	Archiver  Archiver
	// Bucket is the archive destination; empty uses the archiver's default.
	Bucket   string
	Notifier Notifier
	CI       models.CISignals
	Logger   *slog.Logger
}

// Outcome is what a single report produced.
type Outcome struct {
	TicketKey   string
	TicketURL   string
	Fingerprint string
	Summary     string
	Created     bool
	Occurrence  int64
	ArchiveURL  string
	Owner       models.Owner
	Mode        string
}

// Driver runs the relay pipeline for one failure event at a time.
type Driver struct {
	deps DriverDeps
}

// NewDriver constructs a Driver, filling optional collaborators with inert defaults.
func NewDriver(deps DriverDeps) *Driver {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Extractor == nil {
		deps.Extractor = extractors.NewLogsExtractor()
	}
	if deps.Owners == nil {
		deps.Owners = owner.NewResolver(nil, nil, owner.Fallback(""), 0, deps.Logger)
	}
	return &Driver{deps: deps}
}

// Report turns event into at most one new ticket or a comment on the existing one.
// Enrichment failures (owner, revision, archive, notification) are absorbed; schema
// violations and ticketing failures are returned.
func (d *Driver) Report(ctx context.Context, event models.FailureEvent) (Outcome, error) {
	start := time.Now()
	logger := d.deps.Logger

	event.Log = scrub.Secrets(event.Log)
	if event.TraceID == "" {
		event.TraceID = uuid.NewString()
	}
	fp := dedup.Fingerprint(event.Source, event.Log)

	facts := d.deps.Extractor.Extract(event.Log)
	detail := facts.FirstErrorLine
	if detail == "" {
		detail = facts.ExceptionType
	}
	summary := payload.Summary(event.Source, detail)
	if err := ticket.ValidateSummary(summary); err != nil {
		metrics.ObserveReport(time.Since(start), metrics.OutcomeError)
		return Outcome{Fingerprint: fp, Summary: summary}, err
	}

	if !event.HasLocation() && facts.HasLocation() {
		event.File, event.Line = facts.File, facts.Line
	}
	author := d.deps.Owners.Resolve(ctx, event.File, event.Line)
	revision, branch := d.revision(ctx)

	governance := d.deps.Rules.Classify(event.Source, event.Log, payload.ExecutionModel(d.deps.CI))

	in := payload.Input{
		Event:       event,
		Fingerprint: fp,
		Revision:    revision,
		Branch:      branch,
		Owner:       author,
		Status:      models.StatusCritical,
		Exception:   facts.ExceptionType,
		Governance:  governance,
	}
	record := d.deps.Builder.BuildRecord(in)

	var archiveURL string
	if d.deps.Archiver != nil {
		archiveURL, _ = d.deps.Archiver.Upload(ctx, record, d.deps.Bucket, event.TraceID)
	}

	res, err := d.deps.Gateway.Report(ctx, ticket.Incident{
		Event:       event,
		Fingerprint: fp,
		Summary:     summary,
		Record:      record,
		Description: d.deps.Builder.BuildDescription(in, archiveURL),
		Owner:       author,
		Labels:      governance.Labels,
		ArchiveURL:  archiveURL,
		RunURL:      d.deps.CI.RunURL(),
	})
	if err != nil {
		metrics.ObserveReport(time.Since(start), metrics.OutcomeError)
		logger.Error("incident report failed",
			slog.String("source", event.Source),
			slog.String("fingerprint", fp),
			slog.Any("error", err),
		)
		return Outcome{Fingerprint: fp, Summary: summary, ArchiveURL: archiveURL, Owner: author}, err
	}

	outcome := Outcome{
		TicketKey:   res.Ref.Key,
		TicketURL:   res.Ref.URL,
		Fingerprint: fp,
		Summary:     summary,
		Created:     res.Created,
		Occurrence:  res.Occurrence,
		ArchiveURL:  archiveURL,
		Owner:       author,
		Mode:        d.deps.Gateway.Mode(),
	}
	if res.Created {
		metrics.ObserveReport(time.Since(start), metrics.OutcomeCreated)
		d.notify(ctx, event, outcome)
	} else {
		metrics.ObserveReport(time.Since(start), metrics.OutcomeRecurrence)
	}
	return outcome, nil
}

// revision prefers CI signals and falls back to the local checkout.
func (d *Driver) revision(ctx context.Context) (string, string) {
	revision, branch := d.deps.CI.SHA, d.deps.CI.Ref
	if d.deps.VCS == nil {
		return revision, branch
	}
	if revision == "" {
		if head, err := d.deps.VCS.Head(ctx, ""); err == nil {
			revision = head
		} else {
			d.deps.Logger.Debug("revision unavailable", slog.Any("error", err))
		}
	}
	if branch == "" {
		if b, err := d.deps.VCS.Branch(ctx, ""); err == nil {
			branch = b
		}
	}
	return revision, branch
}

func (d *Driver) notify(ctx context.Context, event models.FailureEvent, outcome Outcome) {
	if d.deps.Notifier == nil {
		return
	}
	err := d.deps.Notifier.NotifyCreated(ctx, notify.Message{
		TicketKey: outcome.TicketKey,
		TicketURL: outcome.TicketURL,
		Summary:   outcome.Summary,
		Source:    event.Source,
		Owner:     outcome.Owner.String(),
		RunURL:    d.deps.CI.RunURL(),
		Mode:      outcome.Mode,
	})
	if err != nil {
		d.deps.Logger.Warn("incident notification failed", slog.String("ticket", outcome.TicketKey), slog.Any("error", err))
	}
}
