package nodeswitch

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/hook"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/observability"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
)

const defaultAmountThresholdSat = 1_000_000

// Config holds the selection policy knobs. Amount thresholds are in
// satoshi and apply per swap direction.
type Config struct {
	PreferredNodes        map[string]string
	Referrals             map[string]string
	SubmarineThresholdSat uint64
	ReverseThresholdSat   uint64
	MaxClnRetries         int
}

// Selection is the outcome of the policy: the client that should pay the
// invoice and an optional routing time preference from the decision hook.
type Selection struct {
	Client         lightning.Client
	TimePreference *float64
}

// Switch decides which node backend should pay a given invoice.
type Switch struct {
	logger  *zap.Logger
	repo    repository.PaymentRepository
	hook    hook.Selector
	metrics *observability.Metrics

	preferredNodes        map[string]domain.Backend
	referrals             map[string]domain.Backend
	submarineThresholdSat uint64
	reverseThresholdSat   uint64
	maxClnRetries         int
}

func New(
	logger *zap.Logger,
	repo repository.PaymentRepository,
	decisionHook hook.Selector,
	metrics *observability.Metrics,
	cfg Config,
) *Switch {
	if cfg.SubmarineThresholdSat == 0 {
		cfg.SubmarineThresholdSat = defaultAmountThresholdSat
	}
	if cfg.ReverseThresholdSat == 0 {
		cfg.ReverseThresholdSat = defaultAmountThresholdSat
	}
	if cfg.MaxClnRetries < 1 {
		cfg.MaxClnRetries = 1
	}

	return &Switch{
		logger:                logger,
		repo:                  repo,
		hook:                  decisionHook,
		metrics:               metrics,
		preferredNodes:        parseBackendMap(logger, cfg.PreferredNodes, true),
		referrals:             parseBackendMap(logger, cfg.Referrals, false),
		submarineThresholdSat: cfg.SubmarineThresholdSat,
		reverseThresholdSat:   cfg.ReverseThresholdSat,
		maxClnRetries:         cfg.MaxClnRetries,
	}
}

// Select picks the backend client for the invoice. Precedence, first match
// wins: invoice type, per-destination preference, referral, decision hook,
// amount threshold. The pick is then post-processed for CLN retry
// exhaustion and client connectivity.
func (s *Switch) Select(
	ctx context.Context,
	currency lightning.Currency,
	swap *domain.Swap,
	decoded *decoder.DecodedInvoice,
) (*Selection, error) {
	// BOLT12 is a hard requirement, not a preference. No other backend
	// can pay such an invoice, so connectivity substitution is skipped.
	if decoded.Type.IsBolt12() {
		client := currency.CLN
		if client == nil || !client.IsConnected() {
			return nil, domain.ErrNoAvailableClient
		}
		return &Selection{Client: client}, nil
	}

	var timePreference *float64

	node, found := s.preferredDestinationNode(decoded)
	if !found {
		node, found = s.referralNode(swap)
	}
	if !found {
		var hookNode *domain.Backend
		hookNode, timePreference = s.consultHook(ctx, currency, swap, decoded)
		if hookNode != nil {
			node, found = *hookNode, true
		}
	}
	if !found {
		node = s.thresholdNode(swap)
	}

	node = s.failOverExhaustedCln(ctx, currency, swap, node)

	client, err := fallback(currency, currency.ForBackend(node))
	if err != nil {
		return nil, err
	}

	s.logger.Debug("selected node for payment",
		zap.String("swapId", swap.ID),
		zap.String("node", client.Backend().String()),
	)

	return &Selection{Client: client, TimePreference: timePreference}, nil
}

func (s *Switch) preferredDestinationNode(decoded *decoder.DecodedInvoice) (domain.Backend, bool) {
	for _, destination := range decoded.Destinations() {
		if node, ok := s.preferredNodes[destination]; ok {
			return node, true
		}
	}
	return "", false
}

func (s *Switch) referralNode(swap *domain.Swap) (domain.Backend, bool) {
	if swap.Referral == nil {
		return "", false
	}

	node, ok := s.referrals[*swap.Referral]
	return node, ok
}

// consultHook asks the external decision hook. A named backend only binds
// when its client is actually available; otherwise just the time preference
// hint survives.
func (s *Switch) consultHook(
	ctx context.Context,
	currency lightning.Currency,
	swap *domain.Swap,
	decoded *decoder.DecodedInvoice,
) (*domain.Backend, *float64) {
	if s.hook == nil {
		return nil, nil
	}

	decision := s.hook.Decide(ctx, swap.ID, swap.Invoice, decoded)
	if decision == nil {
		s.metrics.IncHookDecision("no_opinion")
		return nil, nil
	}

	if decision.Node != nil {
		client := currency.ForBackend(*decision.Node)
		if client != nil && client.IsConnected() {
			s.metrics.IncHookDecision("accepted")
			return decision.Node, decision.TimePreference
		}

		s.logger.Warn("decision hook named an unavailable node",
			zap.String("swapId", swap.ID),
			zap.String("node", decision.Node.String()),
		)
		s.metrics.IncHookDecision("unavailable_node")
		return nil, decision.TimePreference
	}

	s.metrics.IncHookDecision("time_preference_only")
	return nil, decision.TimePreference
}

func (s *Switch) thresholdNode(swap *domain.Swap) domain.Backend {
	threshold := s.submarineThresholdSat
	if swap.Type == domain.SwapReverse {
		threshold = s.reverseThresholdSat
	}

	if swap.InvoiceAmount < threshold {
		return domain.BackendCLN
	}
	return domain.BackendLND
}

// failOverExhaustedCln reroutes a CLN pick to a connected LND client when
// the CLN record for this hash has already been retried to the maximum.
// Without a connected LND client the pick stays CLN.
func (s *Switch) failOverExhaustedCln(
	ctx context.Context,
	currency lightning.Currency,
	swap *domain.Swap,
	node domain.Backend,
) domain.Backend {
	if node != domain.BackendCLN {
		return node
	}

	record, err := s.repo.FindByHashAndNode(ctx, swap.PreimageHash, domain.BackendCLN)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("could not look up retry count",
				zap.String("preimageHash", swap.PreimageHash),
				zap.Error(err),
			)
		}
		return node
	}

	if record.Retries < s.maxClnRetries {
		return node
	}
	if currency.LND == nil || !currency.LND.IsConnected() {
		return node
	}

	s.logger.Info("failing over to LND after exhausted CLN retries",
		zap.String("swapId", swap.ID),
		zap.Int("retries", record.Retries),
	)
	return domain.BackendLND
}

// fallback substitutes another connected client when the picked one is not
// usable. LND is preferred among the substitutes.
func fallback(currency lightning.Currency, client lightning.Client) (lightning.Client, error) {
	for _, candidate := range []lightning.Client{client, currency.LND, currency.CLN} {
		if candidate != nil && candidate.IsConnected() {
			return candidate, nil
		}
	}
	return nil, domain.ErrNoAvailableClient
}

func parseBackendMap(logger *zap.Logger, raw map[string]string, lowercaseKeys bool) map[string]domain.Backend {
	parsed := make(map[string]domain.Backend, len(raw))
	for key, value := range raw {
		node, err := domain.ParseBackendFromString(value)
		if err != nil {
			logger.Warn("ignoring invalid node in selection config",
				zap.String("key", key),
				zap.String("node", value),
			)
			continue
		}

		if lowercaseKeys {
			key = strings.ToLower(strings.TrimSpace(key))
		}
		parsed[key] = node
	}
	return parsed
}
