package model

// Price is one point of a token's USD price series.
type Price struct {
	Token       string `json:"token"`
	BlockNumber uint64 `json:"block_number"`
	Price       string `json:"price"`
}
