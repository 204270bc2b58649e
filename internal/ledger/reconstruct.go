package ledger

import (
	"errors"
	"sort"

	"traderScope/internal/model"
)

// Reconstruct folds ordered transactions into operations starting from prev.
// Transactions are applied in (block, index) order whatever their input order.
func Reconstruct(extractor *Extractor, traderID int64, prev model.Portfolio, txs []model.Transaction) ([]model.Operation, error) {
	ordered := make([]model.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	if prev == nil {
		prev = model.Portfolio{}
	}
	ops := make([]model.Operation, 0, len(ordered))
	for _, tx := range ordered {
		transfers := extractor.Extract(tx)
		portfolio, err := Apply(prev, transfers)
		if err != nil {
			var violation *ConsistencyViolation
			if errors.As(err, &violation) {
				violation.Account = extractor.account
				violation.TxHash = tx.Hash
				violation.Block = tx.BlockNumber
				violation.TxIndex = tx.TransactionIndex
			}
			return nil, err
		}
		if transfers == nil {
			transfers = []model.Transfer{}
		}
		ops = append(ops, model.Operation{
			TraderID:         traderID,
			TxID:             tx.ID,
			TxHash:           tx.Hash,
			BlockNumber:      tx.BlockNumber,
			TransactionIndex: tx.TransactionIndex,
			Transfers:        transfers,
			Portfolio:        portfolio,
			Type:             Classify(transfers),
			GasPaid:          GasPaid(transfers),
		})
		prev = portfolio
	}
	return ops, nil
}
