package parser

import (
	"sync"

	"finlens/statement-ledger/internal/models"
)

// Registry holds the known parser strategies, keyed by issuer.
// It is safe for concurrent use; statement workers share one registry.
type Registry struct {
	mu         sync.RWMutex
	strategies map[models.Issuer]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[models.Issuer]Strategy),
	}
}

// Register adds a strategy under its issuer tag, replacing any previous
// registration for the same issuer.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Issuer()] = s
}

// Get returns the strategy registered for the given issuer, if any.
func (r *Registry) Get(issuer models.Issuer) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[issuer]
	return s, ok
}

// Issuers returns the issuers that currently have a registered strategy.
func (r *Registry) Issuers() []models.Issuer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	issuers := make([]models.Issuer, 0, len(r.strategies))
	for issuer := range r.strategies {
		issuers = append(issuers, issuer)
	}
	return issuers
}
