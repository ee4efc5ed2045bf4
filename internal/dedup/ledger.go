package dedup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/miradorstack/mirador-relay/internal/metrics"
	"github.com/miradorstack/mirador-relay/internal/models"
)

const (
	entryIncident   = models.LedgerIncident
	entryRecurrence = models.LedgerRecurrence
)

// Ledger is an append-only JSON-lines dedup log on local disk. Lines are never rewritten;
// expiry is evaluated when reading.
type Ledger struct {
	path   string
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

type ledgerEntry struct {
	Kind        string    `json:"kind"`
	Fingerprint string    `json:"fingerprint"`
	TicketKey   string    `json:"ticket_key"`
	CreatedAt   time.Time `json:"created_at"`
	TTLSeconds  int64     `json:"ttl_seconds,omitempty"`
}

func (e ledgerEntry) record() models.DedupRecord {
	return models.DedupRecord{
		Fingerprint: e.Fingerprint,
		TicketKey:   e.TicketKey,
		CreatedAt:   e.CreatedAt,
		TTL:         time.Duration(e.TTLSeconds) * time.Second,
	}
}

// NewLedger opens the ledger at path. The file is created on first append.
func NewLedger(path string, logger *slog.Logger) *Ledger {
	return NewLedgerWithClock(path, time.Now, logger)
}

// NewLedgerWithClock is NewLedger with an injectable clock for expiry.
func NewLedgerWithClock(path string, now func() time.Time, logger *slog.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{path: path, now: now, logger: logger}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

func (l *Ledger) Lookup(_ context.Context, fp string) (models.TicketRef, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		metrics.IncDedupLookupError("ledger")
		l.logger.Warn("ledger unreadable; treating as new incident", slog.String("path", l.path), slog.Any("error", err))
		return models.TicketRef{}, false
	}
	now := l.now()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Kind != entryIncident || e.Fingerprint != fp {
			continue
		}
		if e.record().Expired(now) {
			return models.TicketRef{}, false
		}
		return models.TicketRef{Key: e.TicketKey}, true
	}
	return models.TicketRef{}, false
}

func (l *Ledger) Record(_ context.Context, fp string, ref models.TicketRef, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(ledgerEntry{
		Kind:        entryIncident,
		Fingerprint: fp,
		TicketKey:   ref.Key,
		CreatedAt:   l.now().UTC(),
		TTLSeconds:  int64(ttl / time.Second),
	})
}

// Recurrences appends a recurrence line and counts those since the latest incident line.
func (l *Ledger) Recurrences(_ context.Context, fp string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		l.logger.Warn("ledger unreadable", slog.String("path", l.path), slog.Any("error", err))
		return 0
	}
	var count int64
	ticket := ""
	for _, e := range entries {
		if e.Fingerprint != fp {
			continue
		}
		switch e.Kind {
		case entryIncident:
			count = 0
			ticket = e.TicketKey
		case entryRecurrence:
			count++
		}
	}
	if err := l.append(ledgerEntry{Kind: entryRecurrence, Fingerprint: fp, TicketKey: ticket, CreatedAt: l.now().UTC()}); err != nil {
		l.logger.Warn("ledger append failed", slog.String("path", l.path), slog.Any("error", err))
		return 0
	}
	return count + 1
}

// Issued counts incident lines ever written for fp, expired ones included.
func (l *Ledger) Issued(fp string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Kind == entryIncident && e.Fingerprint == fp {
			n++
		}
	}
	return n, nil
}

// History returns every readable ledger line in append order.
func (l *Ledger) History() ([]models.LedgerEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	events := make([]models.LedgerEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, models.LedgerEvent{Kind: e.Kind, Fingerprint: e.Fingerprint, TicketKey: e.TicketKey, At: e.CreatedAt})
	}
	return events, nil
}

// read must be called with l.mu held. A missing file is an empty ledger; malformed
// lines are skipped.
func (l *Ledger) read() ([]ledgerEntry, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []ledgerEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e ledgerEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// append must be called with l.mu held.
func (l *Ledger) append(e ledgerEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append ledger: %w", err)
	}
	return f.Close()
}
