package model

// TransferType is the direction of a Transfer relative to the account.
type TransferType string

const (
	TransferIn  TransferType = "IN"
	TransferOut TransferType = "OUT"
)

// Transfer is one directional asset movement extracted from a Transaction.
type Transfer struct {
	Token    string       `json:"token"`
	Amount   string       `json:"amount"`
	Type     TransferType `json:"type"`
	Decimals uint8        `json:"decimals"`
	IsFee    bool         `json:"is_fee,omitempty"`
}
