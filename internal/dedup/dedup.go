// Package dedup decides whether a failure has already been reported. A Store maps a
// content fingerprint to the ticket opened for it until the mapping expires.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/miradorstack/mirador-relay/internal/models"
)

// DefaultTTL is how long a fingerprint stays mapped to its ticket.
const DefaultTTL = 7 * 24 * time.Hour

// LabelPrefix tags tickets with their fingerprint.
const LabelPrefix = "fp:"

// Fingerprint digests source and log into a lowercase hex SHA-256. The log is hashed
// verbatim so long logs differing only in their tails stay distinct.
func Fingerprint(source, log string) string {
	sum := sha256.Sum256([]byte(source + ":" + log))
	return hex.EncodeToString(sum[:])
}

// Label returns the ticket label carrying fp.
func Label(fp string) string {
	return LabelPrefix + fp
}

// Store answers whether a fingerprint has already been reported.
//
// Lookup fails open: backend errors are logged and reported as a miss. Record is
// best-effort and must not undo a ticket that was already created. Recurrences bumps
// the suppressed-duplicate counter and returns the new count, or 0 when unknown.
type Store interface {
	Lookup(ctx context.Context, fp string) (models.TicketRef, bool)
	Record(ctx context.Context, fp string, ref models.TicketRef, ttl time.Duration) error
	Recurrences(ctx context.Context, fp string) int64
}
