package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/nodeswitch"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/observability"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/queue"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/routingfee"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/tracker"
)

const minWorkerConcurrency = 1

// InvoiceDecoder resolves an invoice string into its structured form.
type InvoiceDecoder interface {
	DecodeInvoice(ctx context.Context, invoice string) (*decoder.DecodedInvoice, error)
}

// NodeSelector picks the backend client that should pay an invoice.
type NodeSelector interface {
	Select(ctx context.Context, currency lightning.Currency, swap *domain.Swap, decoded *decoder.DecodedInvoice) (*nodeswitch.Selection, error)
}

// PaymentDispatcher is the orchestrator's send contract.
type PaymentDispatcher interface {
	SendPayment(ctx context.Context, swap *domain.Swap, client lightning.Client, constraints lightning.PaymentConstraints) (*lightning.PaymentResult, error)
}

// PaymentService consumes payment requests and drives them through the
// full pipeline: decode, backend selection, fee bounding, dispatch.
// Terminal outcomes are published by the dispatch path, not here.
type PaymentService struct {
	swaps       repository.SwapRepository
	decoder     InvoiceDecoder
	selector    NodeSelector
	fees        *routingfee.Calculator
	dispatcher  PaymentDispatcher
	registry    *lightning.Registry
	consumer    queue.Consumer
	logger      *zap.Logger
	concurrency int
}

func NewPaymentService(
	swaps repository.SwapRepository,
	invoiceDecoder InvoiceDecoder,
	selector NodeSelector,
	fees *routingfee.Calculator,
	dispatcher PaymentDispatcher,
	registry *lightning.Registry,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*PaymentService, error) {
	if swaps == nil {
		return nil, fmt.Errorf("swap repository is required")
	}
	if invoiceDecoder == nil {
		return nil, fmt.Errorf("invoice decoder is required")
	}
	if selector == nil {
		return nil, fmt.Errorf("node selector is required")
	}
	if fees == nil {
		return nil, fmt.Errorf("fee calculator is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("payment dispatcher is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PaymentService{
		swaps:       swaps,
		decoder:     invoiceDecoder,
		selector:    selector,
		fees:        fees,
		dispatcher:  dispatcher,
		registry:    registry,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the requests queue until context cancellation.
func (s *PaymentService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("payment worker started", zap.Int("workerId", workerID))

			err := s.consumer.Consume(groupCtx, queue.RequestsQueue, s.ProcessRequest)
			if err != nil {
				s.logger.Error("payment worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("payment worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// ProcessRequest handles one payment request. A returned error requeues the
// message; terminal payment outcomes never do, since the attempt record and
// event already carry them.
func (s *PaymentService) ProcessRequest(ctx context.Context, msg queue.PaymentRequestMessage) error {
	swap := msg.ToSwap()
	ctx = observability.WithSwapID(ctx, swap.ID)
	logger := observability.WithContextLogger(s.logger, ctx)

	decoded, err := s.decoder.DecodeInvoice(ctx, swap.Invoice)
	if err != nil {
		return fmt.Errorf("failed to decode invoice of swap %s: %w", swap.ID, err)
	}
	if decoded.IsExpired {
		logger.Warn("dropping payment request for expired invoice")
		return nil
	}

	// The attempt ledger is keyed by the hash the invoice commits to, not
	// by what the request claims. A mismatch would create a record no
	// tracker could ever resolve. BOLT12 invoices may decode without a
	// hash; those are keyed by the request.
	if decoded.PaymentHash != "" && !strings.EqualFold(decoded.PaymentHash, swap.PreimageHash) {
		logger.Warn("dropping payment request whose hash does not match its invoice",
			zap.String("invoiceHash", decoded.PaymentHash),
		)
		return nil
	}

	if err := s.swaps.Upsert(ctx, swap); err != nil {
		return fmt.Errorf("failed to store swap %s: %w", swap.ID, err)
	}

	currency, ok := s.registry.Get(swap.LightningCurrency)
	if !ok {
		logger.Warn("dropping payment request for unknown currency",
			zap.String("currency", swap.LightningCurrency),
		)
		return nil
	}

	selection, err := s.selector.Select(ctx, currency, swap, decoded)
	if err != nil {
		// No connected backend right now; the requeue retries later.
		return fmt.Errorf("no backend for swap %s: %w", swap.ID, err)
	}

	constraints := lightning.PaymentConstraints{
		MaxFeeMsat:     s.fees.MaxFeeMsat(decoded, msg.MaxFeeRatio),
		AmountMsat:     decoded.AmountMsat,
		TimePreference: selection.TimePreference,
	}

	result, err := s.dispatcher.SendPayment(ctx, swap, selection.Client, constraints)
	if err != nil {
		logger.Info("payment failed",
			zap.String("node", selection.Client.Backend().String()),
			zap.Error(err),
		)
		return nil
	}
	if result == nil {
		logger.Debug("payment has no result yet",
			zap.String("node", selection.Client.Backend().String()),
		)
		return nil
	}

	logger.Info("payment succeeded",
		zap.String("node", selection.Client.Backend().String()),
		zap.Uint64("feeMsat", result.FeeMsat),
	)
	return nil
}

var _ PaymentDispatcher = (*tracker.PendingPaymentTracker)(nil)
