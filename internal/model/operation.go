package model

// OperationType classifies an Operation by its non-fee transfers.
type OperationType string

const (
	OperationIn                  OperationType = "IN"
	OperationOut                 OperationType = "OUT"
	OperationTrade               OperationType = "TRADE"
	OperationContractInteraction OperationType = "CONTRACT_INTERACTION"
)

// Operation is the ledger entry of one transaction.
type Operation struct {
	TraderID         int64         `json:"trader_id"`
	TxID             int64         `json:"tx_id"`
	TxHash           string        `json:"tx_hash"`
	BlockNumber      uint64        `json:"block_number"`
	TransactionIndex uint64        `json:"transaction_index"`
	Transfers        []Transfer    `json:"transfers"`
	Portfolio        Portfolio     `json:"portfolio"`
	Type             OperationType `json:"operation_type"`
	GasPaid          string        `json:"gas_paid"`
}
