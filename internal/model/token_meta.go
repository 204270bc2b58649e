package model

// NativeToken is the portfolio key used for the chain's native currency.
const NativeToken = "NATIVE"

// NativeDecimals is the decimals of the native currency.
const NativeDecimals uint8 = 18

// Token captures ERC20 metadata. Decimals never change once recorded.
type Token struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
