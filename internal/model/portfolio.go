package model

// Holding is the balance of one asset in raw units.
type Holding struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// Portfolio maps an asset (token address or NativeToken) to its holding.
type Portfolio map[string]Holding

// Clone returns an independent copy.
func (p Portfolio) Clone() Portfolio {
	out := make(Portfolio, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// PricedHolding is a holding valued in USD.
type PricedHolding struct {
	Amount   string  `json:"amount"`
	Decimals uint8   `json:"decimals"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
}

// PricedPortfolio maps an asset to its valued holding.
type PricedPortfolio map[string]PricedHolding
