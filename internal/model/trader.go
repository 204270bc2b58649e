package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trader is a tracked account.
type Trader struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
}

// FundReport is the deposit/withdrawal normalized performance of an account.
type FundReport struct {
	Shares           decimal.Decimal `json:"shares"`
	TPV              decimal.Decimal `json:"tpv"`
	SharePrice       decimal.Decimal `json:"share_price"`
	WapBuy           decimal.Decimal `json:"wap_buy"`
	WapSell          decimal.Decimal `json:"wap_sell"`
	RealizedPnl      decimal.Decimal `json:"realized_pnl"`
	RealizedPnlPct   decimal.Decimal `json:"realized_pnl_pct"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnlPct decimal.Decimal `json:"unrealized_pnl_pct"`
	TotalGasUsd      decimal.Decimal `json:"total_gas_usd"`
}

// TraderSummary is the per-account summary record served to readers.
type TraderSummary struct {
	Trader
	TPV       float64         `json:"tpv"`
	Portfolio PricedPortfolio `json:"portfolio"`
	Report    *FundReport     `json:"report,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
