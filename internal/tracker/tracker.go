package tracker

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning/cln"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning/lnd"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/observability"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/queue"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/ratelimit"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
)

const (
	defaultRaceTimeout    = 10 * time.Second
	defaultPaymentTimeout = 15 * time.Minute

	timeoutError = "payment timed out"
)

// backendTracker owns the background reconciliation of payments for one
// backend type.
type backendTracker interface {
	Backend() domain.Backend
	TrackPayment(client lightning.Client, swapID string, preimageHash string, invoice string, future *lightning.PaymentFuture)
	WatchPayment(client lightning.Client, swapID string, invoice string, preimageHash string)
	Stop()
}

// Config tunes the orchestrator's two timeout tiers and the CLN poll
// cycle.
type Config struct {
	// RaceTimeout bounds how long a dispatch blocks the caller before the
	// in-flight RPC is handed to a background tracker.
	RaceTimeout time.Duration
	// PaymentTimeout is the global default for how long a payment may sit
	// in temporary failure before it is declared permanently failed. A
	// swap may configure a longer bound for itself.
	PaymentTimeout time.Duration
	// ClnPollInterval is the CLN tracker's ledger poll cycle.
	ClnPollInterval time.Duration
}

// PendingPaymentTracker is the payment orchestrator: it consults persisted
// state before dispatching, races the dispatch against a short timeout, and
// delegates anything unresolved to the per-backend trackers.
type PendingPaymentTracker struct {
	logger   *zap.Logger
	repo     repository.PaymentRepository
	registry *lightning.Registry
	limiter  ratelimit.RateLimiter
	resolver *resolver
	trackers map[domain.Backend]backendTracker

	raceTimeout    time.Duration
	paymentTimeout time.Duration
}

func NewPendingPaymentTracker(
	logger *zap.Logger,
	repo repository.PaymentRepository,
	publisher queue.Publisher,
	limiter ratelimit.RateLimiter,
	metrics *observability.Metrics,
	registry *lightning.Registry,
	cfg Config,
) *PendingPaymentTracker {
	if cfg.RaceTimeout <= 0 {
		cfg.RaceTimeout = defaultRaceTimeout
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = defaultPaymentTimeout
	}

	res := &resolver{
		logger:    logger,
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
	}

	return &PendingPaymentTracker{
		logger:   logger,
		repo:     repo,
		registry: registry,
		limiter:  limiter,
		resolver: res,
		trackers: map[domain.Backend]backendTracker{
			domain.BackendLND: NewLndTracker(logger, res),
			domain.BackendCLN: NewClnTracker(logger, res, cfg.ClnPollInterval),
		},
		raceTimeout:    cfg.RaceTimeout,
		paymentTimeout: cfg.PaymentTimeout,
	}
}

// Init resumes tracking of every persisted pending payment. Records whose
// backend is unavailable are logged and skipped; startup must not fail on
// them.
func (t *PendingPaymentTracker) Init(ctx context.Context) error {
	pending, err := t.repo.FindByStatus(ctx, domain.PaymentPending)
	if err != nil {
		return err
	}

	for _, record := range pending {
		currency, ok := t.registry.Get(record.Swap.LightningCurrency)
		if !ok {
			t.logger.Warn("could not track payment: unknown currency",
				zap.String("preimageHash", record.Payment.PreimageHash),
				zap.String("currency", record.Swap.LightningCurrency),
			)
			continue
		}

		client := currency.ForBackend(record.Payment.Node)
		if client == nil || !client.IsConnected() {
			t.logger.Warn("could not track payment: node is not available",
				zap.String("preimageHash", record.Payment.PreimageHash),
				zap.String("node", record.Payment.Node.String()),
			)
			continue
		}

		t.logger.Debug("watching pending payment",
			zap.String("preimageHash", record.Payment.PreimageHash),
			zap.String("node", record.Payment.Node.String()),
		)
		t.trackers[record.Payment.Node].WatchPayment(client, record.Swap.ID, record.Swap.Invoice, record.Payment.PreimageHash)
	}

	return nil
}

// SendPayment pays the swap's invoice with the given client. It returns
// the result when the payment settles within the race window, (nil, nil)
// when the outcome is not known yet and the caller should poll again, and
// an error when the payment failed.
func (t *PendingPaymentTracker) SendPayment(
	ctx context.Context,
	swap *domain.Swap,
	client lightning.Client,
	constraints lightning.PaymentConstraints,
) (*lightning.PaymentResult, error) {
	preimageHash := swap.PreimageHash

	records, err := t.repo.FindByHash(ctx, preimageHash)
	if err != nil {
		return nil, err
	}

	for _, status := range []domain.PaymentStatus{
		domain.PaymentPending,
		domain.PaymentSuccess,
		domain.PaymentPermanentFailure,
	} {
		record := findByStatus(records, status)
		if record == nil {
			continue
		}

		switch status {
		case domain.PaymentPending:
			t.logger.Info("payment still pending",
				zap.String("preimageHash", preimageHash),
				zap.String("node", record.Node.String()),
			)
			return nil, nil

		case domain.PaymentSuccess:
			return t.successfulPaymentDetails(ctx, swap, record)

		case domain.PaymentPermanentFailure:
			message := "payment failed permanently"
			if record.Error != nil {
				message = *record.Error
			}
			return nil, errors.New(message)
		}
	}

	if err := t.escalateTimeouts(ctx, swap, records); err != nil {
		return nil, err
	}

	return t.dispatch(ctx, swap, client, constraints)
}

func (t *PendingPaymentTracker) Stop() {
	for _, tracker := range t.trackers {
		tracker.Stop()
	}
}

// successfulPaymentDetails re-resolves an already-paid invoice by asking
// the node that paid it, never by re-sending. An unavailable node yields
// "no result yet" rather than an error.
func (t *PendingPaymentTracker) successfulPaymentDetails(
	ctx context.Context,
	swap *domain.Swap,
	record *domain.LightningPayment,
) (*lightning.PaymentResult, error) {
	currency, ok := t.registry.Get(swap.LightningCurrency)
	if !ok {
		return nil, nil
	}

	nodeThatPaid := currency.ForBackend(record.Node)
	if nodeThatPaid == nil || !nodeThatPaid.IsConnected() {
		t.logger.Warn("could not resolve payment: node that paid is not available",
			zap.String("preimageHash", record.PreimageHash),
			zap.String("node", record.Node.String()),
		)
		return nil, nil
	}

	outcome, err := nodeThatPaid.LookupPayment(ctx, record.PreimageHash, swap.Invoice)
	if err != nil {
		return nil, err
	}
	if outcome.State != lightning.PaymentStateSucceeded {
		t.logger.Warn("node has no success record for a successful payment",
			zap.String("preimageHash", record.PreimageHash),
			zap.String("node", record.Node.String()),
		)
		return nil, nil
	}

	return outcome.Result, nil
}

// escalateTimeouts turns temporary failures that have been stuck longer
// than the payment timeout into permanent ones. The anchor is the earliest
// temporary failure for the hash.
func (t *PendingPaymentTracker) escalateTimeouts(ctx context.Context, swap *domain.Swap, records []domain.LightningPayment) error {
	timeout := t.paymentTimeout
	if swap.PaymentTimeout != nil {
		if swapTimeout := time.Duration(*swap.PaymentTimeout) * time.Second; swapTimeout > timeout {
			timeout = swapTimeout
		}
	}

	var earliest *time.Time
	for _, record := range records {
		if record.Status != domain.PaymentTemporaryFailure {
			continue
		}
		createdAt := record.CreatedAt
		if earliest == nil || createdAt.Before(*earliest) {
			earliest = &createdAt
		}
	}

	if earliest == nil || time.Since(*earliest) <= timeout {
		return nil
	}

	message := timeoutError
	for _, record := range records {
		if record.Status != domain.PaymentTemporaryFailure {
			continue
		}

		if err := t.repo.SetStatus(ctx, record.PreimageHash, record.Node, domain.PaymentPermanentFailure, &message); err != nil {
			t.logger.Error("could not escalate timed out payment",
				zap.String("preimageHash", record.PreimageHash),
				zap.String("node", record.Node.String()),
				zap.Error(err),
			)
			continue
		}

		t.resolver.metrics.IncPaymentFailed(record.Node.String(), failureReasonLabel(message))
		t.resolver.publish(ctx, queue.PaymentEventMessage{
			SwapID:       swap.ID,
			PreimageHash: record.PreimageHash,
			Node:         record.Node,
			Status:       domain.PaymentPermanentFailure,
			Error:        &message,
		})
	}

	return errors.New(timeoutError)
}

func (t *PendingPaymentTracker) dispatch(
	ctx context.Context,
	swap *domain.Swap,
	client lightning.Client,
	constraints lightning.PaymentConstraints,
) (*lightning.PaymentResult, error) {
	node := client.Backend()

	if err := t.limiter.Wait(ctx, strings.ToLower(node.String())); err != nil {
		return nil, err
	}

	if _, err := t.repo.Create(ctx, swap.PreimageHash, node); err != nil {
		return nil, err
	}

	// The RPC must keep running after the race window ends, so it cannot
	// inherit the caller's cancellation.
	sendCtx := context.WithoutCancel(ctx)
	future := lightning.NewPaymentFuture()
	start := time.Now()

	go func() {
		result, err := client.SendPayment(sendCtx, swap.Invoice, constraints)
		t.resolver.metrics.ObservePaymentSendDuration(node.String(), time.Since(start))
		future.Resolve(result, err)
	}()

	select {
	case <-future.Done():
		result, err := future.Result()
		if err == nil {
			t.resolver.resolveSuccess(ctx, swap.ID, swap.PreimageHash, node, result)
			return result, nil
		}

		// An earlier attempt still holds an HTLC for the hash; the poll
		// loop picks up whatever it resolves to.
		if node == domain.BackendCLN && cln.IsPaymentPending(err) {
			t.logger.Debug("payment already in flight on the node",
				zap.String("preimageHash", swap.PreimageHash),
			)
			t.trackers[node].WatchPayment(client, swap.ID, swap.Invoice, swap.PreimageHash)
			return nil, nil
		}

		// CLN raises transport errors while the payment is still in
		// flight; anything non-permanent goes to the poll loop instead
		// of being recorded as a failure.
		if node == domain.BackendCLN && !cln.IsPermanentError(err.Error()) {
			t.logger.Info("payment still pending after transport error",
				zap.String("preimageHash", swap.PreimageHash),
				zap.Error(err),
			)
			t.trackers[node].WatchPayment(client, swap.ID, swap.Invoice, swap.PreimageHash)
			return nil, nil
		}

		t.resolver.resolveFailure(ctx, client, swap.ID, swap.PreimageHash, err.Error(), t.isPermanentError(node, err))
		return nil, err

	case <-time.After(t.raceTimeout):
		t.logger.Info("payment still pending after race timeout",
			zap.String("preimageHash", swap.PreimageHash),
			zap.String("node", node.String()),
		)
		t.trackers[node].TrackPayment(client, swap.ID, swap.PreimageHash, swap.Invoice, future)
		return nil, nil
	}
}

func (t *PendingPaymentTracker) isPermanentError(node domain.Backend, err error) bool {
	switch node {
	case domain.BackendCLN:
		return cln.IsPermanentError(err.Error())
	default:
		return lnd.IsPermanentError(err)
	}
}

func findByStatus(records []domain.LightningPayment, status domain.PaymentStatus) *domain.LightningPayment {
	for i := range records {
		if records[i].Status == status {
			return &records[i]
		}
	}
	return nil
}
