package routingfee

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
)

const (
	// Routing fees below this floor are rounded up so small payments can
	// still afford a multi-hop route.
	minFeeMsat = 121_000

	maxFeeRatio  = 0.1
	defaultRatio = 0.0035
)

// Calculator bounds how much routing cost a payment may incur. The bound is
// a ratio of the invoice amount with per-destination overrides.
type Calculator struct {
	logger *zap.Logger

	defaultFeeRatio float64
	overrides       map[string]float64
}

func NewCalculator(logger *zap.Logger, defaultFeeRatio float64, overrides map[string]float64) (*Calculator, error) {
	if defaultFeeRatio == 0 {
		defaultFeeRatio = defaultRatio
	}

	if err := validateRatio(defaultFeeRatio, "default"); err != nil {
		return nil, err
	}

	normalized := make(map[string]float64, len(overrides))
	for nodeID, ratio := range overrides {
		if err := validateRatio(ratio, nodeID); err != nil {
			return nil, err
		}
		normalized[strings.ToLower(nodeID)] = ratio
	}

	logger.Debug("using routing fee limits",
		zap.Float64("default", defaultFeeRatio),
		zap.Int("overrides", len(normalized)),
	)

	return &Calculator{
		logger:          logger,
		defaultFeeRatio: defaultFeeRatio,
		overrides:       normalized,
	}, nil
}

// MaxFeeMsat returns the routing fee limit in millisatoshi for the invoice.
// When maxFeeRatioOverride is set it wins over any configured override;
// otherwise the highest override matching any destination of the invoice is
// used, then the default ratio.
func (c *Calculator) MaxFeeMsat(decoded *decoder.DecodedInvoice, maxFeeRatioOverride *float64) uint64 {
	if maxFeeRatioOverride != nil {
		return feeForRatio(decoded.AmountMsat, *maxFeeRatioOverride)
	}

	ratio := c.defaultFeeRatio

	var (
		overrideNode  string
		overrideRatio float64
		hasOverride   bool
	)
	for _, destination := range decoded.Destinations() {
		if nodeRatio, ok := c.overrides[destination]; ok {
			if !hasOverride || nodeRatio > overrideRatio {
				overrideNode = destination
				overrideRatio = nodeRatio
				hasOverride = true
			}
		}
	}

	if hasOverride {
		c.logger.Debug("using routing fee override",
			zap.String("node", overrideNode),
			zap.Float64("ratio", overrideRatio),
		)
		ratio = overrideRatio
	}

	return feeForRatio(decoded.AmountMsat, ratio)
}

func (c *Calculator) DefaultFeeRatio() float64 {
	return c.defaultFeeRatio
}

func feeForRatio(amountMsat uint64, ratio float64) uint64 {
	return uint64(math.Ceil(math.Max(float64(amountMsat)*ratio, minFeeMsat)))
}

func validateRatio(ratio float64, name string) error {
	if ratio <= 0 || ratio >= maxFeeRatio {
		return fmt.Errorf("invalid routing fee ratio for %s: %v, must be > 0 and < %v", name, ratio, maxFeeRatio)
	}
	return nil
}
