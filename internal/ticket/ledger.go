package ticket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-relay/internal/dedup"
	"github.com/miradorstack/mirador-relay/internal/models"
)

// LedgerGateway is the record-only variant used without ticketing credentials. The
// local ledger is both its dedup store and its ticket registry.
type LedgerGateway struct {
	cfg    Config
	ledger *dedup.Ledger
	logger *slog.Logger
}

// NewLedgerGateway builds a LedgerGateway over ledger.
func NewLedgerGateway(cfg Config, ledger *dedup.Ledger, logger *slog.Logger) *LedgerGateway {
	cfg.normalise()
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerGateway{cfg: cfg, ledger: ledger, logger: logger}
}

func (g *LedgerGateway) Mode() string { return ModeLedger }

func (g *LedgerGateway) Report(ctx context.Context, incident Incident) (Result, error) {
	if err := ValidateSummary(incident.Summary); err != nil {
		return Result{}, err
	}
	fp := incident.Fingerprint

	if ref, ok := g.ledger.Lookup(ctx, fp); ok {
		n := g.ledger.Recurrences(ctx, fp)
		occurrence := int64(0)
		if n > 0 {
			occurrence = n + 1
		}
		g.logger.Info("recurrence recorded locally",
			slog.String("ticket", ref.Key),
			slog.String("fingerprint", fp),
			slog.Int64("occurrence", occurrence),
		)
		return Result{Ref: ref, Created: false, Occurrence: occurrence}, nil
	}

	issued, err := g.ledger.Issued(fp)
	if err != nil {
		g.logger.Warn("ledger unreadable; numbering from one", slog.Any("error", err))
		issued = 0
	}
	ref := models.TicketRef{Key: SyntheticKey(g.cfg.Project, fp, issued+1)}
	if err := g.ledger.Record(ctx, fp, ref, g.cfg.TTL); err != nil {
		g.logger.Warn("ledger append failed", slog.String("path", g.ledger.Path()), slog.Any("error", err))
	}
	g.logger.Info("incident recorded locally",
		slog.String("ticket", ref.Key),
		slog.String("fingerprint", fp),
		slog.String("ledger", g.ledger.Path()),
	)
	return Result{Ref: ref, Created: true, Occurrence: 1}, nil
}

// SyntheticKey derives a local ticket key. n numbers successive incidents for one
// fingerprint once earlier records have expired.
func SyntheticKey(project, fp string, n int) string {
	short := fp
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-LOCAL-%s-%d", project, short, n)
}
