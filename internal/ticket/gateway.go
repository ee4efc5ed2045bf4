// Package ticket creates or annotates incident tickets and owns the dedup decision.
package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-relay/internal/dedup"
	"github.com/miradorstack/mirador-relay/internal/document"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/utils"
)

// Gateway modes.
const (
	ModeNetwork = "network"
	ModeLedger  = "ledger"
)

// ClassificationLabels are attached to every created ticket.
var ClassificationLabels = []string{"auto-generated", "build-failure", "blocking"}

// Incident is one failure ready to be reported.
type Incident struct {
	Event       models.FailureEvent
	Fingerprint string
	Summary     string
	Record      models.IncidentRecord
	Description document.Document
	Owner       models.Owner
	// Labels extend ClassificationLabels.
	Labels     []string
	ArchiveURL string
	RunURL     string
}

// Result describes what Report did.
type Result struct {
	Ref     models.TicketRef
	Created bool
	// Occurrence counts this event among those sharing the fingerprint; 0 when unknown.
	Occurrence int64
}

// Gateway reports an incident: comment on the existing ticket for its fingerprint, or
// create one and record the mapping.
type Gateway interface {
	Report(ctx context.Context, incident Incident) (Result, error)
	Mode() string
}

// Tracker is the ticketing backend.
type Tracker interface {
	CreateIssue(ctx context.Context, ticket models.Ticket, description document.Document) (models.TicketRef, error)
	AddComment(ctx context.Context, key string, body document.Document) error
}

// AccountResolver maps an owner email to an assignable account.
type AccountResolver interface {
	FindAccount(ctx context.Context, email string) (string, bool)
}

// Config selects and tunes a Gateway.
type Config struct {
	Project   string
	IssueType string
	Priority  string
	TTL       time.Duration
	// RequireCredentials turns missing credentials into a construction error instead
	// of degraded ledger mode.
	RequireCredentials bool
	LedgerPath         string
}

func (c *Config) normalise() {
	if c.IssueType == "" {
		c.IssueType = "Bug"
	}
	if c.Priority == "" {
		c.Priority = "Highest"
	}
	if c.TTL <= 0 {
		c.TTL = dedup.DefaultTTL
	}
	if c.Project == "" {
		c.Project = "OPS"
	}
}

// New picks the gateway variant once. A nil tracker means no credentials are configured.
func New(cfg Config, tracker Tracker, store dedup.Store, accounts AccountResolver, logger *slog.Logger) (Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		if cfg.RequireCredentials {
			return nil, utils.NewAppError("ticket.New", "ticketing credentials are required but not configured", utils.ErrAuthenticationMissing)
		}
		logger.Warn("no ticketing credentials; running in record-only mode", slog.String("ledger", cfg.LedgerPath))
		return NewLedgerGateway(cfg, dedup.NewLedger(cfg.LedgerPath, logger), logger), nil
	}
	return NewNetworkGateway(cfg, tracker, store, accounts, logger), nil
}

// Labels returns the ticket label set for fp: the fingerprint label, the classification
// labels, then extras with whitespace replaced.
func Labels(fp string, extra ...string) []string {
	labels := append([]string{dedup.Label(fp)}, ClassificationLabels...)
	seen := make(map[string]struct{}, len(labels)+len(extra))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	for _, l := range extra {
		l = strings.Join(strings.Fields(l), "-")
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		labels = append(labels, l)
	}
	return labels
}

// RecurrenceComment is the annotation posted when a fingerprint reappears.
func RecurrenceComment(at time.Time, incident Incident, occurrence int64) document.Document {
	b := document.New().
		Paragraph(document.Strong{Value: "Recurrence detected"}, document.Text{Value: " at " + at.UTC().Format(time.RFC3339)}).
		Paragraph(document.Text{Value: "Trace ID: " + incident.Event.TraceID})
	if occurrence > 0 {
		b.Paragraph(document.Text{Value: "Occurrence: " + strconv.FormatInt(occurrence, 10)})
	}
	if incident.RunURL != "" {
		b.Paragraph(document.Text{Value: "Run: "}, document.Link{Text: incident.RunURL, Href: incident.RunURL})
	}
	if incident.ArchiveURL != "" {
		b.Paragraph(document.Text{Value: "Archive: "}, document.Link{Text: incident.ArchiveURL, Href: incident.ArchiveURL})
	}
	return b.Build()
}

func ticketError(op, key string, err error) error {
	return utils.NewAppError(op, key, fmt.Errorf("%w: %v", utils.ErrTicketCreate, err))
}
