package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-relay/internal/cache"
	"github.com/miradorstack/mirador-relay/internal/metrics"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/utils"
)

const (
	incidentKeyPrefix = "relay:incident:"
	countKeyPrefix    = "relay:count:"
)

// KVStore keeps dedup records in a key-value backend with native expiry.
type KVStore struct {
	provider cache.Provider
	backend  string
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewKVStore wraps provider. backend names the provider in logs and metrics; ttl bounds
// the recurrence counters and defaults to DefaultTTL.
func NewKVStore(provider cache.Provider, backend string, ttl time.Duration, logger *slog.Logger) *KVStore {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KVStore{provider: provider, backend: backend, ttl: ttl, now: time.Now, logger: logger}
}

type kvRecord struct {
	TicketKey string    `json:"ticket_key"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *KVStore) Lookup(ctx context.Context, fp string) (models.TicketRef, bool) {
	raw, err := s.provider.Get(ctx, incidentKeyPrefix+fp)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.TicketRef{}, false
	}
	if err != nil {
		s.failOpen(fp, fmt.Errorf("%w: %v", utils.ErrBackendUnavailable, err))
		return models.TicketRef{}, false
	}
	var rec kvRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// plain ticket keys are accepted for records written by hand
		if len(raw) > 0 && raw[0] != '{' {
			return models.TicketRef{Key: string(raw)}, true
		}
		s.failOpen(fp, fmt.Errorf("decode dedup record: %w", err))
		return models.TicketRef{}, false
	}
	if rec.TicketKey == "" {
		s.failOpen(fp, errors.New("dedup record without ticket key"))
		return models.TicketRef{}, false
	}
	return models.TicketRef{Key: rec.TicketKey, URL: rec.URL}, true
}

// Record writes with set-if-absent so a racing writer cannot replace the first mapping.
func (s *KVStore) Record(ctx context.Context, fp string, ref models.TicketRef, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	payload, err := json.Marshal(kvRecord{TicketKey: ref.Key, URL: ref.URL, CreatedAt: s.now().UTC()})
	if err != nil {
		return err
	}
	stored, err := s.provider.SetNX(ctx, incidentKeyPrefix+fp, payload, ttl)
	if err != nil {
		return utils.NewAppError("dedup.Record", s.backend, fmt.Errorf("%w: %v", utils.ErrBackendUnavailable, err))
	}
	if !stored {
		s.logger.Warn("dedup record already present; keeping first mapping",
			slog.String("fingerprint", fp),
			slog.String("ticket", ref.Key),
		)
		return nil
	}
	// a new ticket starts counting from zero even if an older counter outlived its record
	if err := s.provider.Del(ctx, countKeyPrefix+fp); err != nil {
		s.logger.Warn("recurrence counter reset failed", slog.String("fingerprint", fp), slog.Any("error", err))
	}
	return nil
}

func (s *KVStore) Recurrences(ctx context.Context, fp string) int64 {
	n, err := s.provider.Incr(ctx, countKeyPrefix+fp, s.ttl)
	if err != nil {
		s.logger.Warn("recurrence counter unavailable", slog.String("fingerprint", fp), slog.Any("error", err))
		return 0
	}
	return n
}

func (s *KVStore) failOpen(fp string, err error) {
	metrics.IncDedupLookupError(s.backend)
	s.logger.Warn("dedup lookup failed; treating as new incident",
		slog.String("backend", s.backend),
		slog.String("fingerprint", fp),
		slog.Any("error", err),
	)
}
