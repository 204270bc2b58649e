package fund

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"traderScope/internal/model"
)

// DefaultEpsilon is the smallest USD flow treated as a deposit or withdrawal.
const DefaultEpsilon = 1e-7

// PriceOracle returns the most recent USD price of an asset at or before a block.
type PriceOracle interface {
	PriceAt(token string, block uint64) (float64, bool)
}

// Engine folds an operation sequence into a fund report.
type Engine struct {
	Oracle    PriceOracle
	Epsilon   float64
	Precision int32
	Logger    *zap.Logger
}

// Analyze replays ops in order and marks the fund to currentTPV at the end.
func (e Engine) Analyze(ops []model.Operation, currentTPV float64) (model.FundReport, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	eps := e.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	var (
		f        Fund
		totalGas float64
		prev     model.Portfolio
	)
	for _, op := range ops {
		at := func(token string) (float64, bool) { return e.Oracle.PriceAt(token, op.BlockNumber) }
		before, _, err := Value(prev, at)
		if err != nil {
			return model.FundReport{}, err
		}
		after, _, err := Value(op.Portfolio, at)
		if err != nil {
			return model.FundReport{}, err
		}
		gas, err := e.gasUsd(op)
		if err != nil {
			return model.FundReport{}, err
		}
		totalGas += gas
		prev = op.Portfolio

		if f.Shares == 0 {
			if after > 0 {
				f.Deposit(after)
			}
			continue
		}

		f.MarkTo(before)
		flow := after - before + gas
		switch {
		case flow > eps:
			if flow-gas > eps {
				f.Deposit(flow - gas)
			} else {
				f.Deposit(flow)
			}
		case flow < -eps:
			amount := -flow
			if flow+gas < -eps {
				amount += gas
			}
			if err := f.Withdraw(amount); err != nil {
				return model.FundReport{}, err
			}
		}
		f.MarkTo(after)
		logger.Debug("operation applied",
			zap.String("tx_hash", op.TxHash),
			zap.Uint64("block", op.BlockNumber),
			zap.Float64("tpv", after),
			zap.Float64("shares", f.Shares),
		)
	}

	f.MarkTo(currentTPV)
	return e.report(&f, totalGas), nil
}

func (e Engine) gasUsd(op model.Operation) (float64, error) {
	paid, err := Units(op.GasPaid, model.NativeDecimals)
	if err != nil {
		return 0, err
	}
	if paid.IsZero() {
		return 0, nil
	}
	price, _ := e.Oracle.PriceAt(model.NativeToken, op.BlockNumber)
	return paid.InexactFloat64() * price, nil
}

func (e Engine) report(f *Fund, totalGas float64) model.FundReport {
	round := func(v float64) decimal.Decimal {
		return decimal.NewFromFloat(v).Round(e.Precision)
	}
	pct := func(num float64) decimal.Decimal {
		if f.WapBuy == 0 {
			return decimal.Zero
		}
		return decimal.NewFromFloat((num/f.WapBuy - 1) * 100).Round(2)
	}
	sharePrice := f.SharePrice()
	return model.FundReport{
		Shares:           round(f.Shares),
		TPV:              round(f.TPV),
		SharePrice:       round(sharePrice),
		WapBuy:           round(f.WapBuy),
		WapSell:          round(f.WapSell),
		RealizedPnl:      round(f.RealizedPnl),
		RealizedPnlPct:   pct(f.WapSell),
		UnrealizedPnl:    round(f.UnrealizedPnl()),
		UnrealizedPnlPct: pct(sharePrice),
		TotalGasUsd:      round(totalGas),
	}
}
