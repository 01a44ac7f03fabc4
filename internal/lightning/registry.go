package lightning

import (
	"sync"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
)

// Currency groups the backend clients available for one Lightning currency.
type Currency struct {
	Symbol string
	LND    Client
	CLN    Client
}

// ForBackend returns the client owning attempts of the given backend type,
// or nil when the currency has none.
func (c Currency) ForBackend(backend domain.Backend) Client {
	switch backend {
	case domain.BackendLND:
		return c.LND
	case domain.BackendCLN:
		return c.CLN
	}
	return nil
}

// HasClient reports whether any backend client is configured.
func (c Currency) HasClient() bool {
	return c.LND != nil || c.CLN != nil
}

// Registry is the explicit currency to backend-clients mapping handed to the
// orchestrator at construction and reconfiguration time.
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]Currency
}

func NewRegistry(currencies ...Currency) *Registry {
	r := &Registry{currencies: make(map[string]Currency, len(currencies))}
	for _, currency := range currencies {
		r.currencies[currency.Symbol] = currency
	}
	return r
}

func (r *Registry) Get(symbol string) (Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	currency, ok := r.currencies[symbol]
	return currency, ok
}

func (r *Registry) Set(currency Currency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currencies[currency.Symbol] = currency
}

func (r *Registry) Currencies() []Currency {
	r.mu.RLock()
	defer r.mu.RUnlock()

	currencies := make([]Currency, 0, len(r.currencies))
	for _, currency := range r.currencies {
		currencies = append(currencies, currency)
	}
	return currencies
}
