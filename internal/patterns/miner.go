// Package patterns mines recurring failures out of the local dedup ledger.
package patterns

import (
	"log/slog"
	"sort"
	"time"

	"github.com/miradorstack/mirador-relay/internal/models"
)

// Miner aggregates ledger history into per-fingerprint hotspots.
type Miner struct {
	source Source
	now    func() time.Time
	logger *slog.Logger
}

// NewMiner constructs a Miner over source.
func NewMiner(logger *slog.Logger, source Source) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{source: source, now: time.Now, logger: logger}
}

// Mine returns up to limit hotspots seen within the window, busiest first. A zero window
// covers the whole history and a non-positive limit returns every hotspot.
func (m *Miner) Mine(window time.Duration, limit int) ([]models.Hotspot, error) {
	events, err := m.source.History()
	if err != nil {
		return nil, err
	}
	var since time.Time
	if window > 0 {
		since = m.now().Add(-window)
	}

	byFingerprint := make(map[string]*models.Hotspot)
	for _, ev := range events {
		if ev.Fingerprint == "" || ev.At.Before(since) {
			continue
		}
		spot := ensureHotspot(byFingerprint, ev.Fingerprint)
		switch ev.Kind {
		case models.LedgerIncident:
			spot.Incidents++
			spot.TicketKey = ev.TicketKey
		case models.LedgerRecurrence:
			spot.Recurrences++
			if spot.TicketKey == "" {
				spot.TicketKey = ev.TicketKey
			}
		default:
			continue
		}
		if spot.FirstSeen.IsZero() || ev.At.Before(spot.FirstSeen) {
			spot.FirstSeen = ev.At
		}
		if ev.At.After(spot.LastSeen) {
			spot.LastSeen = ev.At
		}
	}

	hotspots := make([]models.Hotspot, 0, len(byFingerprint))
	for _, spot := range byFingerprint {
		if spot.Total() == 0 {
			continue
		}
		hotspots = append(hotspots, *spot)
	}
	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Total() != hotspots[j].Total() {
			return hotspots[i].Total() > hotspots[j].Total()
		}
		if !hotspots[i].LastSeen.Equal(hotspots[j].LastSeen) {
			return hotspots[i].LastSeen.After(hotspots[j].LastSeen)
		}
		return hotspots[i].Fingerprint < hotspots[j].Fingerprint
	})
	if limit > 0 && len(hotspots) > limit {
		hotspots = hotspots[:limit]
	}
	m.logger.Debug("ledger mined", slog.Int("events", len(events)), slog.Int("hotspots", len(hotspots)))
	return hotspots, nil
}

func ensureHotspot(m map[string]*models.Hotspot, fp string) *models.Hotspot {
	spot, ok := m[fp]
	if !ok {
		spot = &models.Hotspot{Fingerprint: fp}
		m[fp] = spot
	}
	return spot
}
