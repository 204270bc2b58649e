// Package fund values a portfolio time series as a single share class fund,
// separating market moves from external deposits and withdrawals.
package fund

import "errors"

// ErrEmptyFund is returned when withdrawing from a fund without shares.
var ErrEmptyFund = errors.New("cannot withdraw from empty fund")

// Entry is one share issuance or redemption.
type Entry struct {
	Shares float64
	Price  float64
}

// Fund is the share ledger of one account.
type Fund struct {
	Shares      float64
	TPV         float64
	RealizedPnl float64
	WapBuy      float64
	WapSell     float64
	Deposits    []Entry
	Withdrawals []Entry
}

// SharePrice is TPV per share, 1 for an empty fund.
func (f *Fund) SharePrice() float64 {
	if f.Shares == 0 {
		return 1
	}
	return f.TPV / f.Shares
}

// Deposit issues shares for amount at the current share price. Depositing
// into an empty or worthless fund starts it over at a share price of 1.
func (f *Fund) Deposit(amount float64) {
	if f.Shares == 0 || f.SharePrice() <= 0 {
		f.Shares = amount
		f.TPV = amount
		f.WapBuy = 1
		f.WapSell = 1
		f.Deposits = append(f.Deposits, Entry{Shares: amount, Price: 1})
		return
	}
	price := f.SharePrice()
	issued := amount / price
	f.Shares += issued
	f.TPV += amount
	f.Deposits = append(f.Deposits, Entry{Shares: issued, Price: price})
	f.WapBuy = weightedPrice(f.Deposits)
}

// Withdraw redeems amount, realizing the proportional part of the unrealized PnL.
func (f *Fund) Withdraw(amount float64) error {
	if f.Shares == 0 {
		return ErrEmptyFund
	}
	price := f.SharePrice()
	ratio := amount / f.TPV
	f.RealizedPnl += ratio * f.UnrealizedPnl()
	burned := f.Shares * ratio
	f.Shares -= burned
	f.TPV -= amount
	f.Withdrawals = append(f.Withdrawals, Entry{Shares: burned, Price: price})
	f.WapSell = weightedPrice(f.Withdrawals)
	return nil
}

// MarkTo re-values the fund without issuing or burning shares.
func (f *Fund) MarkTo(tpv float64) {
	f.TPV = tpv
}

// UnrealizedPnl is the value above the average deposit cost of outstanding shares.
func (f *Fund) UnrealizedPnl() float64 {
	return f.TPV - f.Shares*f.WapBuy
}

func weightedPrice(entries []Entry) float64 {
	var shares, amount float64
	for _, e := range entries {
		shares += e.Shares
		amount += e.Shares * e.Price
	}
	if shares == 0 {
		return 0
	}
	return amount / shares
}
