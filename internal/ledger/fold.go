package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"traderScope/internal/model"
)

// Apply folds transfers into prev and returns the new portfolio. prev is not
// modified. Zero balances are pruned; a negative balance is a
// *ConsistencyViolation.
func Apply(prev model.Portfolio, transfers []model.Transfer) (model.Portfolio, error) {
	balances := make(map[string]*big.Int, len(prev)+len(transfers))
	decimals := make(map[string]uint8, len(prev)+len(transfers))
	for token, holding := range prev {
		v, ok := parseAmount(holding.Amount)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q of %s", holding.Amount, token)
		}
		balances[token] = v
		decimals[token] = holding.Decimals
	}

	for _, t := range transfers {
		amount, ok := parseAmount(t.Amount)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("invalid transfer amount %q of %s", t.Amount, t.Token)
		}
		balance, ok := balances[t.Token]
		if !ok {
			balance = new(big.Int)
			balances[t.Token] = balance
		}
		switch t.Type {
		case model.TransferIn:
			balance.Add(balance, amount)
		case model.TransferOut:
			balance.Sub(balance, amount)
		default:
			return nil, fmt.Errorf("unknown transfer type %q", t.Type)
		}
		decimals[t.Token] = t.Decimals
	}

	tokens := make([]string, 0, len(balances))
	for token := range balances {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	out := make(model.Portfolio, len(balances))
	for _, token := range tokens {
		balance := balances[token]
		switch balance.Sign() {
		case -1:
			return nil, &ConsistencyViolation{Token: token, Amount: balance.String()}
		case 0:
			continue
		}
		out[token] = model.Holding{Amount: balance.String(), Decimals: decimals[token]}
	}
	return out, nil
}

// Classify types an operation by its non-fee transfers.
func Classify(transfers []model.Transfer) model.OperationType {
	var in, out bool
	for _, t := range transfers {
		if t.IsFee {
			continue
		}
		switch t.Type {
		case model.TransferIn:
			in = true
		case model.TransferOut:
			out = true
		}
	}
	switch {
	case in && out:
		return model.OperationTrade
	case in:
		return model.OperationIn
	case out:
		return model.OperationOut
	default:
		return model.OperationContractInteraction
	}
}

// GasPaid returns the fee transfer amount, or "0".
func GasPaid(transfers []model.Transfer) string {
	for _, t := range transfers {
		if t.IsFee {
			return t.Amount
		}
	}
	return "0"
}

func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 10)
}
