package dex

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"traderScope/internal/model"
)

// MaxPrice is the largest price accepted from a pool. Anything above is a
// decoding artifact and is recorded as 0.
const MaxPrice = 9.999999999999999e20

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// Pricer prices the target token of a pool, in units of the other token,
// from the result of one pool call.
type Pricer interface {
	Kind() model.PoolKind
	Method() string
	ABI() (abi.ABI, error)
	Price(values []interface{}, decimal0, decimal1 uint8, targetIsToken0 bool) (float64, error)
}

// PricerFor returns the pricing strategy of a pool kind.
func PricerFor(kind model.PoolKind) (Pricer, error) {
	switch kind {
	case model.PoolKindConstantProduct:
		return constantProductPricer{}, nil
	case model.PoolKindConcentrated:
		return concentratedPricer{}, nil
	default:
		return nil, fmt.Errorf("no pricer for pool kind %s", kind)
	}
}

type constantProductPricer struct{}

func (constantProductPricer) Kind() model.PoolKind { return model.PoolKindConstantProduct }
func (constantProductPricer) Method() string       { return "getReserves" }
func (constantProductPricer) ABI() (abi.ABI, error) {
	return PairABI()
}

func (constantProductPricer) Price(values []interface{}, decimal0, decimal1 uint8, targetIsToken0 bool) (float64, error) {
	if len(values) < 2 {
		return 0, fmt.Errorf("getReserves: unexpected values %d", len(values))
	}
	reserve0, err := AsBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := AsBigInt(values[1])
	if err != nil {
		return 0, fmt.Errorf("reserve1: %w", err)
	}
	return ConstantProductPrice(reserve0, reserve1, decimal0, decimal1, targetIsToken0), nil
}

type concentratedPricer struct{}

func (concentratedPricer) Kind() model.PoolKind { return model.PoolKindConcentrated }
func (concentratedPricer) Method() string       { return "slot0" }
func (concentratedPricer) ABI() (abi.ABI, error) {
	return V3PoolABI()
}

func (concentratedPricer) Price(values []interface{}, decimal0, decimal1 uint8, targetIsToken0 bool) (float64, error) {
	if len(values) < 1 {
		return 0, fmt.Errorf("slot0: unexpected values %d", len(values))
	}
	sqrtPrice, err := AsBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	return ConcentratedPrice(sqrtPrice, decimal0, decimal1, targetIsToken0), nil
}

// ConstantProductPrice prices the target side of a reserve pair. Empty
// reserves price at 0.
func ConstantProductPrice(reserve0, reserve1 *big.Int, decimal0, decimal1 uint8, targetIsToken0 bool) float64 {
	if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return 0
	}
	var num, den *big.Int
	if targetIsToken0 {
		num = new(big.Int).Mul(reserve1, pow10(decimal0))
		den = new(big.Int).Mul(reserve0, pow10(decimal1))
	} else {
		num = new(big.Int).Mul(reserve0, pow10(decimal1))
		den = new(big.Int).Mul(reserve1, pow10(decimal0))
	}
	price, _ := new(big.Rat).SetFrac(num, den).Float64()
	return clampPrice(price)
}

// ConcentratedPrice prices the target side from a Q64.96 square root price.
func ConcentratedPrice(sqrtPriceX96 *big.Int, decimal0, decimal1 uint8, targetIsToken0 bool) float64 {
	if sqrtPriceX96.Sign() == 0 {
		return 0
	}
	sq := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	// token0 priced in token1: sq / 2^192 * 10^d0 / 10^d1
	num := new(big.Int).Mul(sq, pow10(decimal0))
	den := new(big.Int).Mul(q192, pow10(decimal1))
	if !targetIsToken0 {
		num, den = den, num
	}
	price, _ := new(big.Rat).SetFrac(num, den).Float64()
	return clampPrice(price)
}

func clampPrice(price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) || price > MaxPrice {
		return 0
	}
	return price
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
