package patterns

import "github.com/miradorstack/mirador-relay/internal/models"

// Source yields ledger history in append order.
type Source interface {
	History() ([]models.LedgerEvent, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() ([]models.LedgerEvent, error)

// History implements Source.
func (f SourceFunc) History() ([]models.LedgerEvent, error) {
	return f()
}
