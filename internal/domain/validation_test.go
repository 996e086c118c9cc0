package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeCurrency(t *testing.T) {
	t.Parallel()

	got, err := NormalizeCurrency(" usd ")
	if err != nil {
		t.Fatalf("expected lowercase code to be accepted, got %v", err)
	}
	if got != "USD" {
		t.Fatalf("expected USD, got %s", got)
	}

	if err := ValidateCurrency("XYZ"); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	if err := ValidateAmount(1); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}
	if err := ValidateAmount(MaxAmount); err != nil {
		t.Fatalf("expected ceiling to be inclusive, got %v", err)
	}
	if err := ValidateAmount(0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if err := ValidateAmount(-5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if err := ValidateAmount(MaxAmount + 1); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestValidateMetadata(t *testing.T) {
	t.Parallel()

	if err := ValidateMetadata(nil); err != nil {
		t.Fatalf("nil metadata should be valid, got %v", err)
	}

	if err := ValidateMetadata(map[string]any{"note": "ok"}); err != nil {
		t.Fatalf("small metadata should be valid, got %v", err)
	}

	big := map[string]any{"blob": strings.Repeat("x", MaxMetadataSize)}
	if err := ValidateMetadata(big); !errors.Is(err, ErrMetadataTooLarge) {
		t.Fatalf("expected ErrMetadataTooLarge, got %v", err)
	}

	if err := ValidateMetadata(map[string]any{"ch": make(chan int)}); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	limit, offset, _ := ValidatePagination(0, -10)
	if limit != 50 || offset != 0 {
		t.Fatalf("expected defaults 50/0, got %d/%d", limit, offset)
	}

	limit, _, _ = ValidatePagination(5000, 0)
	if limit != 1000 {
		t.Fatalf("expected limit to be capped at 1000, got %d", limit)
	}
}

func TestToMinorUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount   string
		currency string
		want     int64
		wantErr  error
	}{
		{amount: "10.50", currency: "USD", want: 1050},
		{amount: "3", currency: "JPY", want: 3},
		{amount: "1.234", currency: "KWD", want: 1234},
		{amount: "1.005", currency: "USD", wantErr: ErrInvalidAmount},
		{amount: "100000000.01", currency: "USD", wantErr: ErrAmountTooLarge},
	}

	for _, tt := range tests {
		got, err := ToMinorUnits(decimal.RequireFromString(tt.amount), tt.currency)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s %s: expected %v, got %v", tt.amount, tt.currency, tt.wantErr, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s %s: expected %d, got %d (%v)", tt.amount, tt.currency, tt.want, got, err)
		}
	}
}

func TestFormatMinorUnits(t *testing.T) {
	t.Parallel()

	if got := FormatMinorUnits(1050, "USD"); got != "10.50" {
		t.Fatalf("expected 10.50, got %s", got)
	}
	if got := FormatMinorUnits(7, "JPY"); got != "7" {
		t.Fatalf("expected 7, got %s", got)
	}
}

func TestRequestMeta_EntryMetadata(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := RequestMeta{TraceID: "trace-1", IPAddress: "10.0.0.1"}.EntryMetadata(EntryTypeCredit, "ref-1", at)

	if meta["action"] != "CREDIT" || meta["source"] != EntrySource || meta["reference_id"] != "ref-1" {
		t.Fatalf("unexpected metadata %v", meta)
	}
	if meta["trace_id"] != "trace-1" || meta["ip_address"] != "10.0.0.1" {
		t.Fatalf("expected request context in metadata, got %v", meta)
	}
	if _, ok := meta["user_agent"]; ok {
		t.Fatalf("empty user agent should be omitted, got %v", meta)
	}
}
