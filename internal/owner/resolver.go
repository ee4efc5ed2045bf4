// Package owner attributes failures to a person and finds their ticketing account.
package owner

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/miradorstack/mirador-relay/internal/models"
)

// Blamer attributes a file line to its author.
type Blamer interface {
	Blame(ctx context.Context, file string, line int) (models.Owner, error)
}

// AccountFinder resolves an email to a ticketing account id; ok is false when no
// account matches.
type AccountFinder interface {
	FindAccountID(ctx context.Context, email string) (id string, ok bool, err error)
}

// Fallback is the on-call owner used whenever attribution fails.
func Fallback(domain string) models.Owner {
	if domain == "" {
		domain = "example.com"
	}
	return models.Owner{Name: "DevOps On-Call", Email: "devops-oncall@" + domain}
}

// Resolver derives owners from version control history. It never fails; every error
// path yields the fallback owner.
type Resolver struct {
	blamer   Blamer
	accounts AccountFinder
	fallback models.Owner
	timeout  time.Duration
	logger   *slog.Logger
}

// NewResolver builds a Resolver. blamer and accounts may be nil.
func NewResolver(blamer Blamer, accounts AccountFinder, fallback models.Owner, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{blamer: blamer, accounts: accounts, fallback: fallback, timeout: timeout, logger: logger}
}

// Resolve blames file:line when both are present and the file exists.
func (r *Resolver) Resolve(ctx context.Context, file string, line int) models.Owner {
	if r.blamer == nil || file == "" || line <= 0 {
		return r.fallback
	}
	if _, err := os.Stat(file); err != nil {
		r.logger.Debug("blame skipped; file not found", slog.String("file", file))
		return r.fallback
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	owner, err := r.blamer.Blame(ctx, file, line)
	if err != nil {
		r.logger.Warn("blame failed; using fallback owner",
			slog.String("file", file),
			slog.Int("line", line),
			slog.Any("error", err),
		)
		return r.fallback
	}
	if owner.Name == "" {
		owner.Name = owner.Email
	}
	return owner
}

// FindAccount looks up the ticketing account for email. Any failure leaves the ticket
// unassigned.
func (r *Resolver) FindAccount(ctx context.Context, email string) (string, bool) {
	if r.accounts == nil || email == "" {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	id, ok, err := r.accounts.FindAccountID(ctx, email)
	if err != nil {
		r.logger.Warn("account lookup failed; ticket stays unassigned", slog.String("email", email), slog.Any("error", err))
		return "", false
	}
	return id, ok
}
