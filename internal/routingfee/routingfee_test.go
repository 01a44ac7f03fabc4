package routingfee

import (
	"testing"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestNewCalculator_RatioValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		defaultRatio float64
		overrides    map[string]float64
		wantErr      bool
	}{
		{name: "zero default falls back", defaultRatio: 0, wantErr: false},
		{name: "valid default", defaultRatio: 0.01, wantErr: false},
		{name: "negative default", defaultRatio: -0.01, wantErr: true},
		{name: "default at max", defaultRatio: 0.1, wantErr: true},
		{name: "valid override", defaultRatio: 0.01, overrides: map[string]float64{"02aa": 0.05}, wantErr: false},
		{name: "override too large", defaultRatio: 0.01, overrides: map[string]float64{"02aa": 0.2}, wantErr: true},
		{name: "override zero", defaultRatio: 0.01, overrides: map[string]float64{"02aa": 0}, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewCalculator(zap.NewNop(), tc.defaultRatio, tc.overrides)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewCalculator_DefaultFallback(t *testing.T) {
	t.Parallel()

	calc, err := NewCalculator(zap.NewNop(), 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calc.DefaultFeeRatio() != 0.0035 {
		t.Fatalf("default ratio = %v, want 0.0035", calc.DefaultFeeRatio())
	}
}

func TestMaxFeeMsat(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		defaultRatio  float64
		overrides     map[string]float64
		invoice       decoder.DecodedInvoice
		ratioOverride *float64
		want          uint64
	}{
		{
			name:         "fee floor applies to small amounts",
			defaultRatio: 0.01,
			invoice:      decoder.DecodedInvoice{AmountMsat: 1_000_000},
			want:         121_000,
		},
		{
			name:         "ratio of amount above floor",
			defaultRatio: 0.02,
			invoice:      decoder.DecodedInvoice{AmountMsat: 50_000_000},
			want:         1_000_000,
		},
		{
			name:          "explicit ratio override wins",
			defaultRatio:  0.0035,
			overrides:     map[string]float64{"02aa": 0.05},
			invoice:       decoder.DecodedInvoice{AmountMsat: 100_000_000, Payee: "02AA"},
			ratioOverride: floatPtr(0.01),
			want:          1_000_000,
		},
		{
			name:         "payee override matched case insensitively",
			defaultRatio: 0.0035,
			overrides:    map[string]float64{"02AA": 0.02},
			invoice:      decoder.DecodedInvoice{AmountMsat: 100_000_000, Payee: "02aa"},
			want:         2_000_000,
		},
		{
			name:         "highest override across destinations wins",
			defaultRatio: 0.0035,
			overrides:    map[string]float64{"02aa": 0.02, "03bb": 0.05},
			invoice: decoder.DecodedInvoice{
				AmountMsat: 100_000_000,
				Payee:      "02aa",
				RoutingHints: [][]decoder.HopHint{
					{{NodeID: "03bb"}},
				},
			},
			want: 5_000_000,
		},
		{
			name:         "blinded path node matches override",
			defaultRatio: 0.0035,
			overrides:    map[string]float64{"03cc": 0.04},
			invoice: decoder.DecodedInvoice{
				AmountMsat: 100_000_000,
				Paths:      []decoder.BlindedPath{{NodeID: "03CC"}},
			},
			want: 4_000_000,
		},
		{
			name:         "no override falls back to default",
			defaultRatio: 0.0035,
			overrides:    map[string]float64{"03dd": 0.05},
			invoice:      decoder.DecodedInvoice{AmountMsat: 100_000_000, Payee: "02aa"},
			want:         350_000,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			calc, err := NewCalculator(zap.NewNop(), tc.defaultRatio, tc.overrides)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := calc.MaxFeeMsat(&tc.invoice, tc.ratioOverride); got != tc.want {
				t.Fatalf("MaxFeeMsat() = %d, want %d", got, tc.want)
			}
		})
	}
}
