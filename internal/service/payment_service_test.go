package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/nodeswitch"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/queue"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/routingfee"
)

type fakeClient struct {
	backend domain.Backend
}

func (c *fakeClient) ID() string              { return "fake-" + string(c.backend) }
func (c *fakeClient) Backend() domain.Backend { return c.backend }
func (c *fakeClient) Symbol() string          { return "BTC" }

func (c *fakeClient) Connect(context.Context) error { return nil }
func (c *fakeClient) Disconnect()                   {}
func (c *fakeClient) IsConnected() bool             { return true }

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

type fakeSwapRepo struct {
	repository.SwapRepository

	upserted []*domain.Swap
	err      error
}

func (r *fakeSwapRepo) Upsert(_ context.Context, swap *domain.Swap) error {
	if r.err != nil {
		return r.err
	}
	r.upserted = append(r.upserted, swap)
	return nil
}

type fakeDecoder struct {
	decoded *decoder.DecodedInvoice
	err     error
}

func (d *fakeDecoder) DecodeInvoice(context.Context, string) (*decoder.DecodedInvoice, error) {
	return d.decoded, d.err
}

type fakeSelector struct {
	selection *nodeswitch.Selection
	err       error
}

func (s *fakeSelector) Select(context.Context, lightning.Currency, *domain.Swap, *decoder.DecodedInvoice) (*nodeswitch.Selection, error) {
	return s.selection, s.err
}

type fakeDispatcher struct {
	result *lightning.PaymentResult
	err    error

	gotSwap        *domain.Swap
	gotConstraints lightning.PaymentConstraints
}

func (d *fakeDispatcher) SendPayment(_ context.Context, swap *domain.Swap, _ lightning.Client, constraints lightning.PaymentConstraints) (*lightning.PaymentResult, error) {
	d.gotSwap = swap
	d.gotConstraints = constraints
	return d.result, d.err
}

func testRequest() queue.PaymentRequestMessage {
	return queue.PaymentRequestMessage{
		SwapID:            "swap-1",
		Type:              "SUBMARINE",
		Pair:              "BTC/BTC",
		PreimageHash:      "AA11",
		Invoice:           "lnbc1",
		InvoiceAmount:     100_000,
		LightningCurrency: "BTC",
	}
}

func newTestService(t *testing.T, swaps *fakeSwapRepo, dec *fakeDecoder, sel *fakeSelector, disp *fakeDispatcher) *PaymentService {
	t.Helper()

	fees, err := routingfee.NewCalculator(zap.NewNop(), 0.0035, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry := lightning.NewRegistry(lightning.Currency{
		Symbol: "BTC",
		LND:    &fakeClient{backend: domain.BackendLND},
	})

	svc, err := NewPaymentService(swaps, dec, sel, fees, disp, registry, nil, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestProcessRequest(t *testing.T) {
	t.Parallel()

	lndSelection := &nodeswitch.Selection{Client: &fakeClient{backend: domain.BackendLND}}

	t.Run("dispatches with bounded fee", func(t *testing.T) {
		t.Parallel()

		swaps := &fakeSwapRepo{}
		disp := &fakeDispatcher{result: &lightning.PaymentResult{Preimage: "bb22", FeeMsat: 100}}
		svc := newTestService(t, swaps,
			&fakeDecoder{decoded: &decoder.DecodedInvoice{
				Type:        decoder.InvoiceBolt11,
				PaymentHash: "AA11",
				AmountMsat:  100_000_000,
			}},
			&fakeSelector{selection: lndSelection},
			disp,
		)

		if err := svc.ProcessRequest(context.Background(), testRequest()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(swaps.upserted) != 1 || swaps.upserted[0].PreimageHash != "aa11" {
			t.Fatalf("unexpected swap upserts: %+v", swaps.upserted)
		}
		if disp.gotConstraints.AmountMsat != 100_000_000 {
			t.Fatalf("unexpected amount: %d", disp.gotConstraints.AmountMsat)
		}
		// 100_000_000 * 0.0035 = 350_000 msat.
		if disp.gotConstraints.MaxFeeMsat != 350_000 {
			t.Fatalf("unexpected fee bound: %d", disp.gotConstraints.MaxFeeMsat)
		}
	})

	t.Run("expired invoice is dropped without dispatch", func(t *testing.T) {
		t.Parallel()

		disp := &fakeDispatcher{}
		svc := newTestService(t, &fakeSwapRepo{},
			&fakeDecoder{decoded: &decoder.DecodedInvoice{IsExpired: true}},
			&fakeSelector{selection: lndSelection},
			disp,
		)

		if err := svc.ProcessRequest(context.Background(), testRequest()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if disp.gotSwap != nil {
			t.Fatal("expected no dispatch for an expired invoice")
		}
	})

	t.Run("mismatched invoice hash is dropped", func(t *testing.T) {
		t.Parallel()

		swaps := &fakeSwapRepo{}
		disp := &fakeDispatcher{}
		svc := newTestService(t, swaps,
			&fakeDecoder{decoded: &decoder.DecodedInvoice{
				Type:        decoder.InvoiceBolt11,
				PaymentHash: "bb22",
				AmountMsat:  1000,
			}},
			&fakeSelector{selection: lndSelection},
			disp,
		)

		if err := svc.ProcessRequest(context.Background(), testRequest()); err != nil {
			t.Fatalf("mismatches must not requeue, got %v", err)
		}
		if len(swaps.upserted) != 0 {
			t.Fatal("expected no swap snapshot for a mismatched hash")
		}
		if disp.gotSwap != nil {
			t.Fatal("expected no dispatch for a mismatched hash")
		}
	})

	t.Run("decode failure requeues", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(t, &fakeSwapRepo{},
			&fakeDecoder{err: errors.New("decoder unreachable")},
			&fakeSelector{selection: lndSelection},
			&fakeDispatcher{},
		)

		if err := svc.ProcessRequest(context.Background(), testRequest()); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("no available backend requeues", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(t, &fakeSwapRepo{},
			&fakeDecoder{decoded: &decoder.DecodedInvoice{AmountMsat: 1000}},
			&fakeSelector{err: domain.ErrNoAvailableClient},
			&fakeDispatcher{},
		)

		err := svc.ProcessRequest(context.Background(), testRequest())
		if !errors.Is(err, domain.ErrNoAvailableClient) {
			t.Fatalf("expected ErrNoAvailableClient, got %v", err)
		}
	})

	t.Run("terminal payment failure acks", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(t, &fakeSwapRepo{},
			&fakeDecoder{decoded: &decoder.DecodedInvoice{AmountMsat: 1000}},
			&fakeSelector{selection: lndSelection},
			&fakeDispatcher{err: errors.New("incorrect payment details")},
		)

		if err := svc.ProcessRequest(context.Background(), testRequest()); err != nil {
			t.Fatalf("terminal failures must not requeue, got %v", err)
		}
	})
}

type fakePaymentRepo struct {
	repository.PaymentRepository

	records []repository.PaymentWithSwap
}

func (r *fakePaymentRepo) FindByStatus(_ context.Context, status domain.PaymentStatus) ([]repository.PaymentWithSwap, error) {
	var matching []repository.PaymentWithSwap
	for _, record := range r.records {
		if record.Payment.Status == status {
			matching = append(matching, record)
		}
	}
	return matching, nil
}

type fakeRequestPublisher struct {
	published []queue.PaymentRequestMessage
	err       error
}

func (p *fakeRequestPublisher) PublishRequest(_ context.Context, msg queue.PaymentRequestMessage) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, msg)
	return nil
}

func TestRetryScanner_ScanDue(t *testing.T) {
	t.Parallel()

	now := time.Now()
	swap := domain.Swap{
		ID:                "swap-1",
		Type:              domain.SwapSubmarine,
		Pair:              "BTC/BTC",
		PreimageHash:      "aa11",
		Invoice:           "lnbc1",
		InvoiceAmount:     100_000,
		LightningCurrency: "BTC",
	}

	repo := &fakePaymentRepo{records: []repository.PaymentWithSwap{
		{
			Payment: domain.LightningPayment{
				PreimageHash: "aa11",
				Node:         domain.BackendLND,
				Status:       domain.PaymentTemporaryFailure,
				Retries:      1,
				UpdatedAt:    now.Add(-time.Minute),
			},
			Swap: swap,
		},
		{
			// Same hash on the other backend: only one retry request.
			Payment: domain.LightningPayment{
				PreimageHash: "aa11",
				Node:         domain.BackendCLN,
				Status:       domain.PaymentTemporaryFailure,
				Retries:      1,
				UpdatedAt:    now.Add(-time.Minute),
			},
			Swap: swap,
		},
		{
			// Too fresh; gets its grace period.
			Payment: domain.LightningPayment{
				PreimageHash: "cc33",
				Node:         domain.BackendLND,
				Status:       domain.PaymentTemporaryFailure,
				Retries:      1,
				UpdatedAt:    now,
			},
			Swap: domain.Swap{ID: "swap-2", Type: domain.SwapReverse, PreimageHash: "cc33", Invoice: "lnbc2", LightningCurrency: "BTC"},
		},
	}}

	publisher := &fakeRequestPublisher{}
	scanner, err := NewRetryScanner(repo, publisher, time.Minute, 15*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scanner.now = func() time.Time { return now }

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("expected exactly one retry request, got %d", len(publisher.published))
	}
	if publisher.published[0].SwapID != "swap-1" || publisher.published[0].PreimageHash != "aa11" {
		t.Fatalf("unexpected retry request: %+v", publisher.published[0])
	}
}
