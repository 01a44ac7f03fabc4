package lightning

import (
	"sync"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
)

// ConnectionState describes backend connectivity transitions.
type ConnectionState string

const (
	ConnectionEstablished ConnectionState = "ESTABLISHED"
	ConnectionLost        ConnectionState = "LOST"
)

// ConnectionEvent is published when a backend connection changes state.
type ConnectionEvent struct {
	Node   domain.Backend
	Symbol string
	State  ConnectionState
}

type ConnectionListener func(ConnectionEvent)

// EventBus fans backend notifications out to subscribed consumers.
// Clients embed one and publish from their subscription goroutines.
type EventBus struct {
	mu            sync.RWMutex
	connListeners []ConnectionListener
}

func (b *EventBus) SubscribeConnection(listener ConnectionListener) {
	if listener == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.connListeners = append(b.connListeners, listener)
}

func (b *EventBus) PublishConnection(event ConnectionEvent) {
	b.mu.RLock()
	listeners := make([]ConnectionListener, len(b.connListeners))
	copy(listeners, b.connListeners)
	b.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}