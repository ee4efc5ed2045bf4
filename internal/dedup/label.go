package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-relay/internal/metrics"
	"github.com/miradorstack/mirador-relay/internal/models"
)

// LabelSearcher finds open tickets carrying a label created within the given window.
type LabelSearcher interface {
	SearchByLabel(ctx context.Context, label string, within time.Duration) ([]models.TicketRef, error)
}

// LabelStore uses the ticketing backend itself as the dedup source of truth: the
// fp:<fingerprint> label on an open ticket is the record.
type LabelStore struct {
	searcher LabelSearcher
	ttl      time.Duration
	logger   *slog.Logger
}

// NewLabelStore builds a LabelStore whose matches are bounded to tickets created within ttl.
func NewLabelStore(searcher LabelSearcher, ttl time.Duration, logger *slog.Logger) *LabelStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelStore{searcher: searcher, ttl: ttl, logger: logger}
}

func (s *LabelStore) Lookup(ctx context.Context, fp string) (models.TicketRef, bool) {
	refs, err := s.searcher.SearchByLabel(ctx, Label(fp), s.ttl)
	if err != nil {
		metrics.IncDedupLookupError("label")
		s.logger.Warn("label search failed; treating as new incident",
			slog.String("fingerprint", fp),
			slog.Any("error", err),
		)
		return models.TicketRef{}, false
	}
	if len(refs) == 0 {
		return models.TicketRef{}, false
	}
	return refs[0], true
}

// Record is a no-op: the created ticket already carries the label.
func (s *LabelStore) Record(context.Context, string, models.TicketRef, time.Duration) error {
	return nil
}

// Recurrences is not tracked by the ticketing backend.
func (s *LabelStore) Recurrences(context.Context, string) int64 { return 0 }
