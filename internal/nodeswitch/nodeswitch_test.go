package nodeswitch

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/hook"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
)

type fakeClient struct {
	backend   domain.Backend
	connected bool
}

func (c *fakeClient) ID() string              { return "fake-" + string(c.backend) }
func (c *fakeClient) Backend() domain.Backend { return c.backend }
func (c *fakeClient) Symbol() string          { return "BTC" }

func (c *fakeClient) Connect(context.Context) error { return nil }
func (c *fakeClient) Disconnect()                   {}
func (c *fakeClient) IsConnected() bool             { return c.connected }

func (c *fakeClient) GetInfo(context.Context) (*lightning.NodeInfo, error) {
	return &lightning.NodeInfo{}, nil
}

func (c *fakeClient) SendPayment(context.Context, string, lightning.PaymentConstraints) (*lightning.PaymentResult, error) {
	return nil, nil
}

func (c *fakeClient) LookupPayment(context.Context, string, string) (*lightning.PaymentOutcome, error) {
	return &lightning.PaymentOutcome{State: lightning.PaymentStateUnknown}, nil
}

func (c *fakeClient) SubscribeConnection(lightning.ConnectionListener) {}

type fakeRepo struct {
	repository.PaymentRepository

	payments map[string]*domain.LightningPayment
}

func (r *fakeRepo) FindByHashAndNode(_ context.Context, preimageHash string, node domain.Backend) (*domain.LightningPayment, error) {
	payment, ok := r.payments[preimageHash+":"+string(node)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return payment, nil
}

type fakeHook struct {
	decision *hook.Decision
}

func (h *fakeHook) Decide(context.Context, string, string, *decoder.DecodedInvoice) *hook.Decision {
	return h.decision
}

func backendPtr(b domain.Backend) *domain.Backend { return &b }

func floatPtr(v float64) *float64 { return &v }

func bothConnected() lightning.Currency {
	return lightning.Currency{
		Symbol: "BTC",
		LND:    &fakeClient{backend: domain.BackendLND, connected: true},
		CLN:    &fakeClient{backend: domain.BackendCLN, connected: true},
	}
}

func submarineSwap(amountSat uint64) *domain.Swap {
	return &domain.Swap{
		ID:            "swap-1",
		Type:          domain.SwapSubmarine,
		PreimageHash:  "aa11",
		Invoice:       "lnbc1",
		InvoiceAmount: amountSat,
	}
}

func TestSelect_Precedence(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		cfg      Config
		hook     *fakeHook
		swap     func() *domain.Swap
		invoice  decoder.DecodedInvoice
		currency func() lightning.Currency
		want     domain.Backend
		wantErr  error
	}{
		{
			name:     "bolt12 forces cln",
			swap:     func() *domain.Swap { return submarineSwap(50_000_000) },
			invoice:  decoder.DecodedInvoice{Type: decoder.InvoiceBolt12},
			currency: bothConnected,
			want:     domain.BackendCLN,
		},
		{
			name: "bolt12 without connected cln fails",
			swap: func() *domain.Swap { return submarineSwap(100) },
			invoice: decoder.DecodedInvoice{
				Type: decoder.InvoiceOffer,
			},
			currency: func() lightning.Currency {
				currency := bothConnected()
				currency.CLN = nil
				return currency
			},
			wantErr: domain.ErrNoAvailableClient,
		},
		{
			name: "destination preference beats referral and threshold",
			cfg: Config{
				PreferredNodes: map[string]string{"02AA": "LND"},
				Referrals:      map[string]string{"partner": "CLN"},
			},
			swap: func() *domain.Swap {
				swap := submarineSwap(100)
				referral := "partner"
				swap.Referral = &referral
				return swap
			},
			invoice:  decoder.DecodedInvoice{Payee: "02aa"},
			currency: bothConnected,
			want:     domain.BackendLND,
		},
		{
			name: "routing hint node matches preference",
			cfg: Config{
				PreferredNodes: map[string]string{"03bb": "CLN"},
			},
			swap: func() *domain.Swap { return submarineSwap(50_000_000) },
			invoice: decoder.DecodedInvoice{
				Payee:        "02aa",
				RoutingHints: [][]decoder.HopHint{{{NodeID: "03BB"}}},
			},
			currency: bothConnected,
			want:     domain.BackendCLN,
		},
		{
			name: "referral beats threshold",
			cfg: Config{
				Referrals: map[string]string{"partner": "LND"},
			},
			swap: func() *domain.Swap {
				swap := submarineSwap(100)
				referral := "partner"
				swap.Referral = &referral
				return swap
			},
			currency: bothConnected,
			want:     domain.BackendLND,
		},
		{
			name:     "hook decision beats threshold",
			hook:     &fakeHook{decision: &hook.Decision{Node: backendPtr(domain.BackendLND)}},
			swap:     func() *domain.Swap { return submarineSwap(100) },
			currency: bothConnected,
			want:     domain.BackendLND,
		},
		{
			name: "hook naming disconnected node falls through to threshold",
			hook: &fakeHook{decision: &hook.Decision{
				Node:           backendPtr(domain.BackendLND),
				TimePreference: floatPtr(0.9),
			}},
			swap: func() *domain.Swap { return submarineSwap(100) },
			currency: func() lightning.Currency {
				currency := bothConnected()
				currency.LND.(*fakeClient).connected = false
				return currency
			},
			want: domain.BackendCLN,
		},
		{
			name:     "amount below submarine threshold picks cln",
			swap:     func() *domain.Swap { return submarineSwap(999_999) },
			currency: bothConnected,
			want:     domain.BackendCLN,
		},
		{
			name:     "amount at submarine threshold picks lnd",
			swap:     func() *domain.Swap { return submarineSwap(1_000_000) },
			currency: bothConnected,
			want:     domain.BackendLND,
		},
		{
			name: "reverse threshold is independent",
			cfg: Config{
				SubmarineThresholdSat: 1_000,
				ReverseThresholdSat:   2_000_000,
			},
			swap: func() *domain.Swap {
				swap := submarineSwap(1_500_000)
				swap.Type = domain.SwapReverse
				return swap
			},
			currency: bothConnected,
			want:     domain.BackendCLN,
		},
		{
			name: "disconnected pick substituted preferring lnd",
			swap: func() *domain.Swap { return submarineSwap(100) },
			currency: func() lightning.Currency {
				currency := bothConnected()
				currency.CLN.(*fakeClient).connected = false
				return currency
			},
			want: domain.BackendLND,
		},
		{
			name: "no connected clients raises",
			swap: func() *domain.Swap { return submarineSwap(100) },
			currency: func() lightning.Currency {
				return lightning.Currency{
					Symbol: "BTC",
					LND:    &fakeClient{backend: domain.BackendLND},
					CLN:    &fakeClient{backend: domain.BackendCLN},
				}
			},
			wantErr: domain.ErrNoAvailableClient,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var decisionHook hook.Selector
			if tc.hook != nil {
				decisionHook = tc.hook
			}

			s := New(zap.NewNop(), &fakeRepo{payments: map[string]*domain.LightningPayment{}}, decisionHook, nil, tc.cfg)

			swap := tc.swap()
			selection, err := s.Select(context.Background(), tc.currency(), swap, &tc.invoice)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := selection.Client.Backend(); got != tc.want {
				t.Fatalf("backend = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSelect_TimePreferenceSurvivesUnavailableHookNode(t *testing.T) {
	t.Parallel()

	decisionHook := &fakeHook{decision: &hook.Decision{
		Node:           backendPtr(domain.BackendLND),
		TimePreference: floatPtr(0.7),
	}}

	currency := bothConnected()
	currency.LND.(*fakeClient).connected = false

	s := New(zap.NewNop(), &fakeRepo{payments: map[string]*domain.LightningPayment{}}, decisionHook, nil, Config{})

	selection, err := s.Select(context.Background(), currency, submarineSwap(100), &decoder.DecodedInvoice{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selection.Client.Backend() != domain.BackendCLN {
		t.Fatalf("backend = %s, want CLN", selection.Client.Backend())
	}
	if selection.TimePreference == nil || *selection.TimePreference != 0.7 {
		t.Fatalf("timePreference = %v, want 0.7", selection.TimePreference)
	}
}

func TestSelect_ClnRetryFailOver(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		retries      int
		maxRetries   int
		lndConnected bool
		want         domain.Backend
	}{
		{name: "below max stays cln", retries: 1, maxRetries: 2, lndConnected: true, want: domain.BackendCLN},
		{name: "at max fails over to lnd", retries: 2, maxRetries: 2, lndConnected: true, want: domain.BackendLND},
		{name: "at max without connected lnd stays cln", retries: 2, maxRetries: 2, lndConnected: false, want: domain.BackendCLN},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			swap := submarineSwap(100)
			repo := &fakeRepo{payments: map[string]*domain.LightningPayment{
				swap.PreimageHash + ":CLN": {
					PreimageHash: swap.PreimageHash,
					Node:         domain.BackendCLN,
					Status:       domain.PaymentTemporaryFailure,
					Retries:      tc.retries,
				},
			}}

			currency := bothConnected()
			currency.LND.(*fakeClient).connected = tc.lndConnected

			s := New(zap.NewNop(), repo, nil, nil, Config{MaxClnRetries: tc.maxRetries})

			selection, err := s.Select(context.Background(), currency, swap, &decoder.DecodedInvoice{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := selection.Client.Backend(); got != tc.want {
				t.Fatalf("backend = %s, want %s", got, tc.want)
			}
		})
	}
}
