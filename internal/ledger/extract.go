package ledger

import (
	"strings"

	"traderScope/internal/dex"
	"traderScope/internal/model"
)

// Extractor turns transactions of one account into transfers.
type Extractor struct {
	account string
	wrapped string
	tracked map[string]model.Token
	decoder *dex.TransferDecoder
}

// NewExtractor builds an Extractor. tracked holds the assets whose Transfer
// events count, keyed by lower-case address.
func NewExtractor(account, wrappedNative string, tracked map[string]model.Token) (*Extractor, error) {
	decoder, err := dex.NewTransferDecoder()
	if err != nil {
		return nil, err
	}
	return &Extractor{
		account: strings.ToLower(account),
		wrapped: strings.ToLower(wrappedNative),
		tracked: tracked,
		decoder: decoder,
	}, nil
}

// Extract returns the transfers of tx relative to the account. A failed
// transaction contributes only its fee.
func (e *Extractor) Extract(tx model.Transaction) []model.Transfer {
	var out []model.Transfer
	from := strings.ToLower(tx.From)
	to := strings.ToLower(tx.To)

	if from == e.account && isPositive(tx.GasUsed) {
		out = append(out, native(tx.GasUsed, model.TransferOut, true))
	}
	if tx.IsFailed {
		return out
	}

	if isPositive(tx.Value) {
		if to == e.account {
			out = append(out, native(tx.Value, model.TransferIn, false))
		}
		if from == e.account {
			out = append(out, native(tx.Value, model.TransferOut, false))
		}
	}

	for _, itx := range tx.InternalTxs {
		if !isPositive(itx.Value) {
			continue
		}
		if strings.ToLower(itx.From) == e.account {
			out = append(out, native(itx.Value, model.TransferOut, false))
		}
		if strings.ToLower(itx.To) == e.account {
			out = append(out, native(itx.Value, model.TransferIn, false))
		}
	}

	for _, log := range tx.Logs {
		if log.Removed || len(log.Topics) == 0 || !e.decoder.CanDecode(log.Topics[0]) {
			continue
		}
		event, err := e.decoder.Decode(log)
		if err != nil {
			continue
		}
		out = append(out, e.eventTransfers(event)...)
	}

	return out
}

func (e *Extractor) eventTransfers(event dex.TransferEvent) []model.Transfer {
	amount := event.Amount.String()
	var out []model.Transfer

	switch event.Name {
	case dex.EventTransfer:
		token, ok := e.tracked[event.Token]
		if !ok {
			return nil
		}
		if event.From == e.account {
			out = append(out, model.Transfer{Token: event.Token, Amount: amount, Type: model.TransferOut, Decimals: token.Decimals})
		}
		if event.To == e.account {
			out = append(out, model.Transfer{Token: event.Token, Amount: amount, Type: model.TransferIn, Decimals: token.Decimals})
		}
	case dex.EventDeposit:
		if event.Token == e.wrapped && event.To == e.account {
			out = append(out, model.Transfer{Token: e.wrapped, Amount: amount, Type: model.TransferIn, Decimals: model.NativeDecimals})
		}
	case dex.EventWithdrawal:
		if event.Token == e.wrapped && event.From == e.account {
			out = append(out, model.Transfer{Token: e.wrapped, Amount: amount, Type: model.TransferOut, Decimals: model.NativeDecimals})
		}
	}
	return out
}

func native(amount string, typ model.TransferType, fee bool) model.Transfer {
	return model.Transfer{
		Token:    model.NativeToken,
		Amount:   amount,
		Type:     typ,
		Decimals: model.NativeDecimals,
		IsFee:    fee,
	}
}

func isPositive(amount string) bool {
	v, ok := parseAmount(amount)
	return ok && v.Sign() > 0
}
