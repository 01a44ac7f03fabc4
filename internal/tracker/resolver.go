package tracker

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/observability"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/queue"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
)

// resolver writes terminal payment outcomes. It is shared between the
// synchronous dispatch path and the background trackers; the repository's
// guarded transitions make sure only one of them wins for a given record.
type resolver struct {
	logger    *zap.Logger
	repo      repository.PaymentRepository
	publisher queue.Publisher
	metrics   *observability.Metrics
}

func (r *resolver) resolveSuccess(ctx context.Context, swapID string, preimageHash string, node domain.Backend, result *lightning.PaymentResult) {
	if err := r.repo.SetSuccess(ctx, preimageHash, node, result.FeeMsat, result.Preimage); err != nil {
		// The racing writer got there first.
		if errors.Is(err, domain.ErrAlreadyResolved) {
			r.logger.Debug("payment was already resolved",
				zap.String("preimageHash", preimageHash),
				zap.String("node", node.String()),
			)
			return
		}

		r.logger.Error("could not persist payment success",
			zap.String("preimageHash", preimageHash),
			zap.String("node", node.String()),
			zap.Error(err),
		)
		return
	}

	r.metrics.IncPaymentSent(node.String())
	r.publish(ctx, queue.PaymentEventMessage{
		SwapID:       swapID,
		PreimageHash: preimageHash,
		Node:         node,
		Status:       domain.PaymentSuccess,
		FeeMsat:      &result.FeeMsat,
		Preimage:     &result.Preimage,
	})
}

// resolveFailure classifies and persists a failed payment. Connectivity
// errors are skipped entirely: the payment may still settle on the backend
// once the connection recovers, so its real state is unknown.
func (r *resolver) resolveFailure(ctx context.Context, client lightning.Client, swapID string, preimageHash string, message string, permanent bool) {
	node := client.Backend()

	if !client.IsConnected() || lightning.IsConnectionDropped(message) {
		r.logger.Warn("not resolving payment failure while connectivity is unclear",
			zap.String("preimageHash", preimageHash),
			zap.String("node", node.String()),
			zap.String("message", message),
		)
		return
	}

	status := domain.PaymentTemporaryFailure
	var errMsg *string
	if permanent {
		status = domain.PaymentPermanentFailure
		errMsg = &message
	}

	if err := r.repo.SetStatus(ctx, preimageHash, node, status, errMsg); err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			r.logger.Debug("payment was already resolved",
				zap.String("preimageHash", preimageHash),
				zap.String("node", node.String()),
			)
			return
		}

		r.logger.Error("could not persist payment failure",
			zap.String("preimageHash", preimageHash),
			zap.String("node", node.String()),
			zap.Error(err),
		)
		return
	}

	if permanent {
		r.metrics.IncPaymentFailed(node.String(), failureReasonLabel(message))
		r.publish(ctx, queue.PaymentEventMessage{
			SwapID:       swapID,
			PreimageHash: preimageHash,
			Node:         node,
			Status:       domain.PaymentPermanentFailure,
			Error:        &message,
		})
	}
}

// failureReasonLabel folds free-form failure messages into a bounded label
// set for the failure counter.
func failureReasonLabel(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "incorrect") && strings.Contains(lower, "payment details"),
		strings.Contains(lower, "incorrect_or_unknown_payment_details"):
		return "incorrect_payment_details"
	case strings.Contains(lower, "invoice expired"), strings.Contains(lower, "invoiceexpired"):
		return "invoice_expired"
	case message == timeoutError:
		return "timeout"
	default:
		return "other"
	}
}

func (r *resolver) publish(ctx context.Context, message queue.PaymentEventMessage) {
	if r.publisher == nil {
		return
	}

	if err := r.publisher.Publish(ctx, queue.EventsQueue, message); err != nil {
		r.logger.Error("could not publish payment event",
			zap.String("preimageHash", message.PreimageHash),
			zap.Error(err),
		)
	}
}
