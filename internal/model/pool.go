package model

import "fmt"

// PoolKind is the pricing variant of a pool, fixed when the pool is discovered.
type PoolKind uint8

const (
	// PoolKindConstantProduct prices from getReserves (Uniswap V2 style pairs).
	PoolKindConstantProduct PoolKind = iota + 1
	// PoolKindConcentrated prices from slot0 sqrtPriceX96 (Uniswap V3 style pools).
	PoolKindConcentrated
)

func (k PoolKind) String() string {
	switch k {
	case PoolKindConstantProduct:
		return "constant_product"
	case PoolKindConcentrated:
		return "concentrated"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParsePoolKind maps a configured kind name to a PoolKind.
func ParsePoolKind(s string) (PoolKind, error) {
	switch s {
	case "constant_product", "v2":
		return PoolKindConstantProduct, nil
	case "concentrated", "v3":
		return PoolKindConcentrated, nil
	default:
		return 0, fmt.Errorf("unknown pool kind %q", s)
	}
}

// Pool is a DEX liquidity pool record.
type Pool struct {
	Address        string   `json:"address"`
	DexName        string   `json:"dex_name"`
	Kind           PoolKind `json:"kind"`
	Token0         string   `json:"token0"`
	Token1         string   `json:"token1"`
	Fee            *uint32  `json:"fee,omitempty"`
	TickSpacing    *int32   `json:"tick_spacing,omitempty"`
	CreatedAtBlock uint64   `json:"created_at_block"`
	UpdatedAtBlock uint64   `json:"updated_at_block"`
	Liquidity      *float64 `json:"liquidity,omitempty"`
}

// HasToken reports whether token is one of the pool constituents.
func (p Pool) HasToken(token string) bool {
	return p.Token0 == token || p.Token1 == token
}

// TokenPool is the canonical pricing pool of one token.
type TokenPool struct {
	Token    string `json:"token"`
	PoolID   string `json:"pool_id"`
	Token0   string `json:"token0"`
	Token1   string `json:"token1"`
	Decimal0 uint8  `json:"decimal0"`
	Decimal1 uint8  `json:"decimal1"`
}

// PricedTokenPool is a TokenPool joined with its pool and the last stored price.
type PricedTokenPool struct {
	TokenPool
	Kind           PoolKind `json:"kind"`
	DexName        string   `json:"dex_name"`
	CreatedAtBlock uint64   `json:"created_at_block"`
	LastPriceBlock *uint64  `json:"last_price_block,omitempty"`
}
