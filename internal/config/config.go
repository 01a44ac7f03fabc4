package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

// Config is populated from the environment. Map-valued options are passed
// as JSON-encoded strings and decoded in Load.
type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	DecoderURL  string `env:"DECODER_URL,required=true"`
	HookURL     string `env:"HOOK_URL"`

	APIPort         int    `env:"API_PORT,default=8080"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=25"`

	// Two-tiered timeouts: the race timeout bounds how long a dispatch
	// blocks the caller, the payment timeout bounds how long a payment may
	// sit in temporary failure before it is declared dead.
	RaceTimeoutSeconds    int `env:"RACE_TIMEOUT_SECONDS,default=10"`
	PaymentTimeoutMinutes int `env:"PAYMENT_TIMEOUT_MINUTES,default=15"`

	RoutingFeeDefaultRatio   float64 `env:"ROUTING_FEE_DEFAULT_RATIO,default=0.0035"`
	RoutingFeeOverridesJSON  string  `env:"ROUTING_FEE_OVERRIDES"`
	NodeReferralsJSON        string  `env:"NODE_REFERRALS"`
	PreferredNodesJSON       string  `env:"PREFERRED_NODES"`
	SubmarineThresholdSat    uint64  `env:"SUBMARINE_NODE_THRESHOLD_SAT,default=1000000"`
	ReverseThresholdSat      uint64  `env:"REVERSE_NODE_THRESHOLD_SAT,default=1000000"`
	MaxClnRetries            int     `env:"MAX_CLN_RETRIES,default=1"`
	HookTimeoutSeconds       int     `env:"HOOK_TIMEOUT_SECONDS,default=5"`
	ClnPollIntervalSeconds   int     `env:"CLN_POLL_INTERVAL_SECONDS,default=15"`

	LndHost         string `env:"LND_HOST"`
	LndPort         int    `env:"LND_PORT,default=10009"`
	LndCertPath     string `env:"LND_CERT_PATH"`
	LndMacaroonPath string `env:"LND_MACAROON_PATH"`

	ClnSocketPath   string `env:"CLN_SOCKET_PATH"`
	ClnLightningDir string `env:"CLN_LIGHTNING_DIR"`

	// Decoded from the JSON fields above.
	RoutingFeeOverrides map[string]float64
	NodeReferrals       map[string]string
	PreferredNodes      map[string]string
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.RoutingFeeOverrides, err = decodeRatioMap(cfg.RoutingFeeOverridesJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid ROUTING_FEE_OVERRIDES: %w", err)
	}
	cfg.NodeReferrals, err = decodeStringMap(cfg.NodeReferralsJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid NODE_REFERRALS: %w", err)
	}
	cfg.PreferredNodes, err = decodeStringMap(cfg.PreferredNodesJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid PREFERRED_NODES: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RaceTimeoutSeconds <= 0 {
		return fmt.Errorf("RACE_TIMEOUT_SECONDS must be positive, got %d", c.RaceTimeoutSeconds)
	}
	if c.PaymentTimeoutMinutes <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT_MINUTES must be positive, got %d", c.PaymentTimeoutMinutes)
	}
	if c.MaxClnRetries < 1 {
		return fmt.Errorf("MAX_CLN_RETRIES must be at least 1, got %d", c.MaxClnRetries)
	}
	return nil
}

func decodeRatioMap(raw string) (map[string]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]float64{}, nil
	}

	var decoded map[string]float64
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}

	// Node ids are hex public keys; comparisons downstream are case
	// insensitive, so normalize the keys once here.
	normalized := make(map[string]float64, len(decoded))
	for key, value := range decoded {
		normalized[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return normalized, nil
}

func decodeStringMap(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}

	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
