package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/queue"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
)

const (
	defaultRetryScanInterval = time.Minute
	defaultRetryDelay        = 15 * time.Second
)

// RetryScanner periodically re-enqueues payment requests for attempts stuck
// in temporary failure. The orchestrator's own checks decide whether a
// re-attempt actually dispatches or escalates to a timeout.
type RetryScanner struct {
	payments  repository.PaymentRepository
	publisher queue.RequestPublisher
	logger    *zap.Logger
	interval  time.Duration
	// retryDelay is the minimum age of a temporary failure before it is
	// re-enqueued, so fresh failures get a grace period.
	retryDelay time.Duration
	now        func() time.Time
}

func NewRetryScanner(
	payments repository.PaymentRepository,
	publisher queue.RequestPublisher,
	interval time.Duration,
	retryDelay time.Duration,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if payments == nil {
		return nil, fmt.Errorf("payment repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("request publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		payments:   payments,
		publisher:  publisher,
		logger:     logger,
		interval:   interval,
		retryDelay: retryDelay,
		now:        time.Now,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	due, err := s.payments.FindByStatus(ctx, domain.PaymentTemporaryFailure)
	if err != nil {
		return fmt.Errorf("failed to fetch temporary failures: %w", err)
	}

	enqueued := make(map[string]struct{}, len(due))
	for i := range due {
		payment := due[i].Payment
		swap := due[i].Swap

		if s.now().Sub(payment.UpdatedAt) < s.retryDelay {
			continue
		}
		// One request per hash; the node switch picks the backend again.
		if _, ok := enqueued[payment.PreimageHash]; ok {
			continue
		}

		msg := queue.PaymentRequestMessage{
			SwapID:            swap.ID,
			Type:              swap.Type.String(),
			Pair:              swap.Pair,
			PreimageHash:      swap.PreimageHash,
			Invoice:           swap.Invoice,
			InvoiceAmount:     swap.InvoiceAmount,
			LightningCurrency: swap.LightningCurrency,
			PaymentTimeout:    swap.PaymentTimeout,
			Referral:          swap.Referral,
		}

		if err := s.publisher.PublishRequest(ctx, msg); err != nil {
			s.logger.Error("failed to enqueue payment retry",
				zap.String("swapId", swap.ID),
				zap.String("preimageHash", payment.PreimageHash),
				zap.Error(err),
			)
			continue
		}

		enqueued[payment.PreimageHash] = struct{}{}
		s.logger.Debug("enqueued payment retry",
			zap.String("swapId", swap.ID),
			zap.String("preimageHash", payment.PreimageHash),
		)
	}

	return nil
}
