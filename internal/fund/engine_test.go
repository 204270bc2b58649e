package fund

import (
	"sort"
	"testing"

	"github.com/shopspring/decimal"

	"traderScope/internal/model"
)

const (
	testToken = "0x1111111111111111111111111111111111111111"
	testUSDC  = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

type fakeOracle map[string]map[uint64]float64

func (o fakeOracle) PriceAt(token string, block uint64) (float64, bool) {
	if token == testUSDC {
		return 1, true
	}
	points := o[token]
	blocks := make([]uint64, 0, len(points))
	for b := range points {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	var (
		price float64
		found bool
	)
	for _, b := range blocks {
		if b > block {
			break
		}
		price, found = points[b], true
	}
	return price, found
}

func holding(amount string, decimals uint8) model.Holding {
	return model.Holding{Amount: amount, Decimals: decimals}
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s mismatch: got %s want %s", name, got, want)
	}
}

func TestAnalyzeDepositMarkWithdraw(t *testing.T) {
	oracle := fakeOracle{testToken: {1: 1, 2: 2}}
	ops := []model.Operation{
		{BlockNumber: 1, Portfolio: model.Portfolio{testToken: holding("10000000000000000000", 18)}, GasPaid: "0"},
		{BlockNumber: 2, Portfolio: model.Portfolio{testToken: holding("10000000000000000000", 18)}, GasPaid: "0"},
		{BlockNumber: 3, Portfolio: model.Portfolio{testToken: holding("7500000000000000000", 18)}, GasPaid: "0"},
	}

	report, err := Engine{Oracle: oracle, Precision: 6}.Analyze(ops, 15)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	assertDecimal(t, "shares", report.Shares, "7.5")
	assertDecimal(t, "tpv", report.TPV, "15")
	assertDecimal(t, "share price", report.SharePrice, "2")
	assertDecimal(t, "wap buy", report.WapBuy, "1")
	assertDecimal(t, "wap sell", report.WapSell, "2")
	assertDecimal(t, "realized", report.RealizedPnl, "2.5")
	assertDecimal(t, "realized pct", report.RealizedPnlPct, "100")
	assertDecimal(t, "unrealized", report.UnrealizedPnl, "7.5")
	assertDecimal(t, "unrealized pct", report.UnrealizedPnlPct, "100")
}

func TestAnalyzeGasIsNotAWithdrawal(t *testing.T) {
	oracle := fakeOracle{model.NativeToken: {1: 2000}}
	ops := []model.Operation{
		{BlockNumber: 1, Portfolio: model.Portfolio{model.NativeToken: holding("1000000000000000000", 18)}},
		{
			BlockNumber: 2,
			Portfolio:   model.Portfolio{model.NativeToken: holding("999000000000000000", 18)},
			GasPaid:     "1000000000000000",
		},
	}

	report, err := Engine{Oracle: oracle, Precision: 6}.Analyze(ops, 1998)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	assertDecimal(t, "shares", report.Shares, "2000")
	assertDecimal(t, "gas", report.TotalGasUsd, "2")
	assertDecimal(t, "unrealized", report.UnrealizedPnl, "-2")
}

func TestAnalyzeSkipsWorthlessLeadingOperations(t *testing.T) {
	oracle := fakeOracle{}
	ops := []model.Operation{
		{BlockNumber: 1, Portfolio: model.Portfolio{testToken: holding("5", 18)}},
		{BlockNumber: 2, Portfolio: model.Portfolio{testToken: holding("5", 18), testUSDC: holding("3000000", 6)}},
	}

	report, err := Engine{Oracle: oracle, Precision: 6}.Analyze(ops, 3)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	assertDecimal(t, "shares", report.Shares, "3")
	assertDecimal(t, "share price", report.SharePrice, "1")
}

func TestAnalyzeDepositsExternalInflow(t *testing.T) {
	ops := []model.Operation{
		{BlockNumber: 1, Portfolio: model.Portfolio{testUSDC: holding("10000000", 6)}},
		{BlockNumber: 2, Portfolio: model.Portfolio{testUSDC: holding("30000000", 6)}},
	}
	report, err := Engine{Oracle: fakeOracle{}, Precision: 6}.Analyze(ops, 30)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	assertDecimal(t, "shares", report.Shares, "30")
	assertDecimal(t, "unrealized", report.UnrealizedPnl, "0")
}

func TestValueUsesDecimals(t *testing.T) {
	portfolio := model.Portfolio{
		testUSDC:  holding("2500000", 6),
		testToken: holding("1", 18),
	}
	tpv, priced, err := Value(portfolio, func(token string) (float64, bool) {
		if token == testUSDC {
			return 1, true
		}
		return 0, false
	})
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if tpv != 2.5 || priced[testUSDC].Value != 2.5 || priced[testToken].Price != 0 {
		t.Fatalf("valuation mismatch: %v %+v", tpv, priced)
	}
}
