package model

// InternalTx is a native value movement made by a sub-call of a transaction.
type InternalTx struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// Transaction is a raw chain transaction of a tracked account.
// GasUsed holds the fee in wei (gasUsed * effectiveGasPrice).
type Transaction struct {
	ID               int64        `json:"id"`
	TraderID         int64        `json:"trader_id"`
	Hash             string       `json:"hash"`
	BlockNumber      uint64       `json:"block_number"`
	TransactionIndex uint64       `json:"transaction_index"`
	From             string       `json:"from"`
	To               string       `json:"to"`
	Value            string       `json:"value"`
	Logs             []LogRecord  `json:"logs"`
	InternalTxs      []InternalTx `json:"internal_txs"`
	GasUsed          string       `json:"gas_used"`
	IsFailed         bool         `json:"is_failed"`
	Timestamp        string       `json:"timestamp,omitempty"`
}

// Before reports whether t is ordered strictly before o by (block, index).
func (t Transaction) Before(o Transaction) bool {
	if t.BlockNumber != o.BlockNumber {
		return t.BlockNumber < o.BlockNumber
	}
	return t.TransactionIndex < o.TransactionIndex
}
