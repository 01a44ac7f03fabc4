package tracker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning/lnd"
)

// streamingClient is the push-based lookup lnd offers for in-flight
// payments. The CLN backend has no equivalent, which is why its tracker
// polls instead.
type streamingClient interface {
	WaitForPayment(ctx context.Context, preimageHash string) (*lightning.PaymentOutcome, error)
}

// LndTracker resolves background lnd payments through the node's payment
// tracking stream.
type LndTracker struct {
	logger   *zap.Logger
	resolver *resolver

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLndTracker(logger *zap.Logger, res *resolver) *LndTracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &LndTracker{
		logger:   logger,
		resolver: res,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (t *LndTracker) Backend() domain.Backend { return domain.BackendLND }

// TrackPayment observes an in-flight dispatch whose RPC is still running.
func (t *LndTracker) TrackPayment(client lightning.Client, swapID string, preimageHash string, invoice string, future *lightning.PaymentFuture) {
	t.resolver.metrics.IncPendingPayments(client.Backend().String())

	go func() {
		defer t.resolver.metrics.DecPendingPayments(client.Backend().String())

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

		t.resolver.resolveFailure(t.ctx, client, swapID, preimageHash, err.Error(), lnd.IsPermanentError(err))
	}()
}

// WatchPayment re-attaches observation for a payment this process did not
// dispatch, e.g. a pending record resumed after a restart.
func (t *LndTracker) WatchPayment(client lightning.Client, swapID string, invoice string, preimageHash string) {
	streaming, ok := client.(streamingClient)
	if !ok {
		t.logger.Error("lnd client does not support payment streaming",
			zap.String("preimageHash", preimageHash),
		)
		return
	}

	t.resolver.metrics.IncPendingPayments(client.Backend().String())

	go func() {
		defer t.resolver.metrics.DecPendingPayments(client.Backend().String())

		outcome, err := streaming.WaitForPayment(t.ctx, preimageHash)
		if err != nil {
			t.logger.Warn("payment stream ended without an outcome",
				zap.String("preimageHash", preimageHash),
				zap.Error(err),
			)
			return
		}

		switch outcome.State {
		case lightning.PaymentStateSucceeded:
			t.resolver.resolveSuccess(t.ctx, swapID, preimageHash, client.Backend(), outcome.Result)
		case lightning.PaymentStateFailed:
			permanent := lnd.IsPermanentError(errors.New(outcome.FailureReason))
			t.resolver.resolveFailure(t.ctx, client, swapID, preimageHash, outcome.FailureReason, permanent)
		default:
			t.logger.Warn("payment stream resolved to a non-terminal state",
				zap.String("preimageHash", preimageHash),
			)
		}
	}()
}

func (t *LndTracker) Stop() {
	t.cancel()
}
