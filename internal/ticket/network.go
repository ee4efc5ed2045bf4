package ticket

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-relay/internal/dedup"
	"github.com/miradorstack/mirador-relay/internal/models"
)

// NetworkGateway reports to a live ticketing backend, consulting a dedup Store first.
//
// The lookup and the create are separate calls, so two invocations racing on one
// fingerprint can both create. The store's set-if-absent record keeps the first mapping.
type NetworkGateway struct {
	cfg      Config
	tracker  Tracker
	store    dedup.Store
	accounts AccountResolver
	now      func() time.Time
	logger   *slog.Logger
}

// NewNetworkGateway builds a NetworkGateway. accounts may be nil.
func NewNetworkGateway(cfg Config, tracker Tracker, store dedup.Store, accounts AccountResolver, logger *slog.Logger) *NetworkGateway {
	cfg.normalise()
	if logger == nil {
		logger = slog.Default()
	}
	return &NetworkGateway{cfg: cfg, tracker: tracker, store: store, accounts: accounts, now: time.Now, logger: logger}
}

func (g *NetworkGateway) Mode() string { return ModeNetwork }

func (g *NetworkGateway) Report(ctx context.Context, incident Incident) (Result, error) {
	if err := ValidateSummary(incident.Summary); err != nil {
		return Result{}, err
	}
	fp := incident.Fingerprint

	if ref, ok := g.store.Lookup(ctx, fp); ok {
		n := g.store.Recurrences(ctx, fp)
		occurrence := int64(0)
		if n > 0 {
			occurrence = n + 1
		}
		if err := g.tracker.AddComment(ctx, ref.Key, RecurrenceComment(g.now(), incident, occurrence)); err != nil {
			return Result{}, ticketError("ticket.Comment", ref.Key, err)
		}
		g.logger.Info("recurrence annotated",
			slog.String("ticket", ref.Key),
			slog.String("fingerprint", fp),
			slog.Int64("occurrence", occurrence),
		)
		return Result{Ref: ref, Created: false, Occurrence: occurrence}, nil
	}

	ticket := models.Ticket{
		Project:   g.cfg.Project,
		Summary:   incident.Summary,
		IssueType: g.cfg.IssueType,
		Priority:  g.cfg.Priority,
		Labels:    Labels(fp, incident.Labels...),
	}
	if g.accounts != nil {
		if id, ok := g.accounts.FindAccount(ctx, incident.Owner.Email); ok {
			ticket.Assignee = id
		}
	}

	ref, err := g.tracker.CreateIssue(ctx, ticket, incident.Description)
	if err != nil {
		return Result{}, ticketError("ticket.Create", incident.Summary, err)
	}
	if err := g.store.Record(ctx, fp, ref, g.cfg.TTL); err != nil {
		g.logger.Warn("dedup record failed; ticket kept", slog.String("ticket", ref.Key), slog.Any("error", err))
	}
	g.logger.Info("incident ticket created",
		slog.String("ticket", ref.Key),
		slog.String("fingerprint", fp),
		slog.Bool("assigned", ticket.Assignee != ""),
	)
	return Result{Ref: ref, Created: true, Occurrence: 1}, nil
}
