package fund

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"traderScope/internal/model"
)

// PriceFunc returns the USD price of an asset, false when unknown.
type PriceFunc func(token string) (float64, bool)

// Value prices every holding of a portfolio. Assets without a price are worth 0.
func Value(portfolio model.Portfolio, price PriceFunc) (float64, model.PricedPortfolio, error) {
	var tpv float64
	priced := make(model.PricedPortfolio, len(portfolio))
	for token, holding := range portfolio {
		amount, err := Units(holding.Amount, holding.Decimals)
		if err != nil {
			return 0, nil, fmt.Errorf("value %s: %w", token, err)
		}
		if amount.IsNegative() {
			return 0, nil, fmt.Errorf("value %s: negative amount %s", token, holding.Amount)
		}
		p, _ := price(token)
		value := amount.InexactFloat64() * p
		tpv += value
		priced[token] = model.PricedHolding{
			Amount:   holding.Amount,
			Decimals: holding.Decimals,
			Price:    p,
			Value:    value,
		}
	}
	return tpv, priced, nil
}

// Units converts a raw integer amount into whole units.
func Units(raw string, decimals uint8) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	return decimal.NewFromBigInt(v, -int32(decimals)), nil
}
