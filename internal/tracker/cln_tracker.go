package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning/cln"
)

const defaultPollInterval = 15 * time.Second

type clnWatchEntry struct {
	swapID  string
	invoice string
	client  lightning.Client
}

// ClnTracker resolves background CLN payments by polling the node's pay
// ledger. CLN's pay helper has no streaming lookup for a payment it did
// not dispatch, so polling is the only option.
type ClnTracker struct {
	logger   *zap.Logger
	resolver *resolver

	mu      sync.Mutex
	watched map[string]clnWatchEntry

	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  sync.WaitGroup
}

func NewClnTracker(logger *zap.Logger, res *resolver, pollInterval time.Duration) *ClnTracker {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &ClnTracker{
		logger:   logger,
		resolver: res,
		watched:  make(map[string]clnWatchEntry),
		interval: pollInterval,
		ctx:      ctx,
		cancel:   cancel,
	}

	t.stopped.Add(1)
	go t.poll()

	return t
}

func (t *ClnTracker) Backend() domain.Backend { return domain.BackendCLN }

// TrackPayment observes an in-flight dispatch. Transport errors from the
// pay helper do not mean the payment failed, so they reroute into the
// polled watch list instead of resolving anything.
func (t *ClnTracker) TrackPayment(client lightning.Client, swapID string, preimageHash string, invoice string, future *lightning.PaymentFuture) {
	go func() {
		select {
		case <-t.ctx.Done():
			return
		case <-future.Done():
		}

		result, err := future.Result()
		if err == nil {
			t.resolver.resolveSuccess(t.ctx, swapID, preimageHash, client.Backend(), result)
			return
		}

		message := err.Error()
		if cln.IsPermanentError(message) {
			t.resolver.resolveFailure(t.ctx, client, swapID, preimageHash, message, true)
			return
		}

		t.WatchPayment(client, swapID, invoice, preimageHash)
	}()
}

// WatchPayment adds the payment to the poll cycle.
func (t *ClnTracker) WatchPayment(client lightning.Client, swapID string, invoice string, preimageHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.watched[preimageHash]; exists {
		return
	}

	t.watched[preimageHash] = clnWatchEntry{
		swapID:  swapID,
		invoice: invoice,
		client:  client,
	}
	t.resolver.metrics.IncPendingPayments(domain.BackendCLN.String())
}

func (t *ClnTracker) Stop() {
	t.cancel()
	t.stopped.Wait()
}

func (t *ClnTracker) poll() {
	defer t.stopped.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.checkPendingPayments()
		}
	}
}

func (t *ClnTracker) checkPendingPayments() {
	for preimageHash, entry := range t.snapshot() {
		outcome, err := entry.client.LookupPayment(t.ctx, preimageHash, entry.invoice)
		if err != nil {
			t.logger.Warn("could not check pending payment",
				zap.String("preimageHash", preimageHash),
				zap.Error(err),
			)
			continue
		}

		switch outcome.State {
		case lightning.PaymentStatePending:
			continue

		case lightning.PaymentStateSucceeded:
			t.resolver.resolveSuccess(t.ctx, entry.swapID, preimageHash, entry.client.Backend(), outcome.Result)

		case lightning.PaymentStateFailed:
			t.resolver.resolveFailure(t.ctx, entry.client, entry.swapID, preimageHash, outcome.FailureReason, true)

		default:
			// Not in flight anymore and no success recorded; eligible
			// for a retry.
			t.resolver.resolveFailure(t.ctx, entry.client, entry.swapID, preimageHash, "payment is no longer pending", false)
		}

		t.forget(preimageHash)
	}
}

func (t *ClnTracker) snapshot() map[string]clnWatchEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make(map[string]clnWatchEntry, len(t.watched))
	for hash, entry := range t.watched {
		entries[hash] = entry
	}
	return entries
}

func (t *ClnTracker) forget(preimageHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.watched[preimageHash]; exists {
		delete(t.watched, preimageHash)
		t.resolver.metrics.DecPendingPayments(domain.BackendCLN.String())
	}
}
