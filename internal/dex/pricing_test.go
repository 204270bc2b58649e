package dex

import (
	"math"
	"math/big"
	"testing"

	"traderScope/internal/model"
)

func TestConstantProductPriceZeroReserve(t *testing.T) {
	if p := ConstantProductPrice(big.NewInt(0), big.NewInt(100), 18, 6, true); p != 0 {
		t.Fatalf("price mismatch: got %v", p)
	}
	if p := ConstantProductPrice(big.NewInt(100), big.NewInt(0), 18, 6, false); p != 0 {
		t.Fatalf("price mismatch: got %v", p)
	}
}

func TestConstantProductPriceDirection(t *testing.T) {
	// 10 WETH (18 decimals) against 30000 USDC (6 decimals).
	weth := new(big.Int).Mul(big.NewInt(10), pow10(18))
	usdc := new(big.Int).Mul(big.NewInt(30000), pow10(6))

	if p := ConstantProductPrice(weth, usdc, 18, 6, true); math.Abs(p-3000) > 1e-9 {
		t.Fatalf("token0 price mismatch: got %v", p)
	}
	if p := ConstantProductPrice(usdc, weth, 6, 18, false); math.Abs(p-3000) > 1e-9 {
		t.Fatalf("token1 price mismatch: got %v", p)
	}
}

func TestConstantProductPriceClampsOutliers(t *testing.T) {
	r0 := big.NewInt(1)
	r1 := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)
	if p := ConstantProductPrice(r0, r1, 18, 18, true); p != 0 {
		t.Fatalf("expected outlier clamp, got %v", p)
	}
}

func TestConcentratedPrice(t *testing.T) {
	// sqrtPriceX96 = 2^96 means raw price 1 (token1 per token0).
	sqrt := new(big.Int).Lsh(big.NewInt(1), 96)
	if p := ConcentratedPrice(sqrt, 18, 18, true); math.Abs(p-1) > 1e-12 {
		t.Fatalf("unit price mismatch: got %v", p)
	}

	// raw price 4 token1 per token0; token0 has 6 decimals more than token1.
	sqrt2 := new(big.Int).Lsh(big.NewInt(2), 96)
	if p := ConcentratedPrice(sqrt2, 12, 6, true); math.Abs(p-4e6) > 1e-6 {
		t.Fatalf("token0 price mismatch: got %v", p)
	}
	if p := ConcentratedPrice(sqrt2, 12, 6, false); math.Abs(p-0.25e-6) > 1e-15 {
		t.Fatalf("token1 price mismatch: got %v", p)
	}
	if p := ConcentratedPrice(big.NewInt(0), 18, 18, true); p != 0 {
		t.Fatalf("zero sqrt price mismatch: got %v", p)
	}
}

func TestPricerForKinds(t *testing.T) {
	cp, err := PricerFor(model.PoolKindConstantProduct)
	if err != nil || cp.Method() != "getReserves" {
		t.Fatalf("constant product pricer mismatch: %v", err)
	}
	price, err := cp.Price([]interface{}{big.NewInt(2), big.NewInt(4), uint32(0)}, 18, 18, true)
	if err != nil || price != 2 {
		t.Fatalf("constant product price mismatch: %v %v", price, err)
	}

	cl, err := PricerFor(model.PoolKindConcentrated)
	if err != nil || cl.Method() != "slot0" {
		t.Fatalf("concentrated pricer mismatch: %v", err)
	}
	if _, err := cl.ABI(); err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	if _, err := PricerFor(model.PoolKind(0)); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
