package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
)

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(zap.NewNop(), "", time.Second); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewClient(zap.NewNop(), "not a url", time.Second); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
}

func TestDecide_BackendAndTimePreference(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SwapID != "swap-1" {
			t.Errorf("swapId = %q, want swap-1", req.SwapID)
		}
		if req.DecodedInvoice == nil || req.DecodedInvoice.AmountMsat != 21_000 {
			t.Errorf("decoded invoice not forwarded: %+v", req.DecodedInvoice)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"backendId": "CLN", "timePreference": 0.5}`))
	}))
	defer server.Close()

	client, err := NewClient(zap.NewNop(), server.URL, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decision := client.Decide(context.Background(), "swap-1", "lnbc1", &decoder.DecodedInvoice{AmountMsat: 21_000})
	if decision == nil {
		t.Fatal("expected a decision")
	}
	if decision.Node == nil || *decision.Node != domain.BackendCLN {
		t.Fatalf("node = %v, want CLN", decision.Node)
	}
	if decision.TimePreference == nil || *decision.TimePreference != 0.5 {
		t.Fatalf("timePreference = %v, want 0.5", decision.TimePreference)
	}
}

func TestDecide_EmptyResponseMeansNoOpinion(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := NewClient(zap.NewNop(), server.URL, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision := client.Decide(context.Background(), "swap-2", "lnbc1", nil); decision != nil {
		t.Fatalf("decision = %+v, want nil", decision)
	}
}

func TestDecide_UnknownBackendKeepsTimePreference(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"backendId": "ECLAIR", "timePreference": -0.3}`))
	}))
	defer server.Close()

	client, err := NewClient(zap.NewNop(), server.URL, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decision := client.Decide(context.Background(), "swap-3", "lnbc1", nil)
	if decision == nil {
		t.Fatal("expected a decision")
	}
	if decision.Node != nil {
		t.Fatalf("node = %v, want nil", *decision.Node)
	}
	if decision.TimePreference == nil || *decision.TimePreference != -0.3 {
		t.Fatalf("timePreference = %v, want -0.3", decision.TimePreference)
	}
}

func TestDecide_ErrorStatusMeansNoOpinion(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(zap.NewNop(), server.URL, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision := client.Decide(context.Background(), "swap-4", "lnbc1", nil); decision != nil {
		t.Fatalf("decision = %+v, want nil", decision)
	}
}

func TestDecide_TimeoutMeansNoOpinion(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(zap.NewNop(), server.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision := client.Decide(context.Background(), "swap-5", "lnbc1", nil); decision != nil {
		t.Fatalf("decision = %+v, want nil", decision)
	}
}
