package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

func TestUnitConversion_RoundTrip(t *testing.T) {
	conv, err := domain.NewUnitConversion("box", "pcs", decimal.NewFromInt(12))
	if err != nil {
		t.Fatalf("new conversion: %v", err)
	}

	base := conv.ToBase(decimal.NewFromInt(3))
	if !base.Equal(decimal.NewFromInt(36)) {
		t.Fatalf("expected 36 pcs, got %s", base)
	}

	back := conv.FromBase(base)
	if !back.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 boxes, got %s", back)
	}
}

func TestUnitConversion_FractionalFactor(t *testing.T) {
	conv, err := domain.NewUnitConversion("kg", "g", decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("new conversion: %v", err)
	}

	base := conv.ToBase(decimal.RequireFromString("0.25"))
	if !base.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected 250 g, got %s", base)
	}
}

func TestUnitConversion_InvalidFactor(t *testing.T) {
	if _, err := domain.NewUnitConversion("box", "pcs", decimal.Zero); !errors.Is(err, domain.ErrConversionFactorInvalid) {
		t.Fatalf("expected ErrConversionFactorInvalid, got %v", err)
	}
	if _, err := domain.NewUnitConversion("box", "pcs", decimal.NewFromInt(-2)); !errors.Is(err, domain.ErrConversionFactorInvalid) {
		t.Fatalf("expected ErrConversionFactorInvalid, got %v", err)
	}
}

func TestIdentityConversion(t *testing.T) {
	conv := domain.Identity("pcs")
	qty := decimal.NewFromInt(7)
	if !conv.ToBase(qty).Equal(qty) || !conv.FromBase(qty).Equal(qty) {
		t.Fatalf("identity conversion must not change quantity")
	}
}
