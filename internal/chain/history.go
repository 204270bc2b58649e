package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Asset transfer categories accepted by the address-history endpoint.
const (
	CategoryExternal = "external"
	CategoryInternal = "internal"
	CategoryERC20    = "erc20"
)

// AssetTransfer is one entry of an account's address history.
type AssetTransfer struct {
	Hash        string         `json:"hash"`
	BlockNum    hexutil.Uint64 `json:"blockNum"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Value       *float64       `json:"value"`
	Category    string         `json:"category"`
	RawContract struct {
		Value   *string `json:"value"`
		Address *string `json:"address"`
	} `json:"rawContract"`
	Metadata struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

// NativeValue returns the wei value moved by an external or internal transfer.
func (t AssetTransfer) NativeValue() *big.Int {
	if t.RawContract.Value != nil {
		s := strings.TrimPrefix(strings.ToLower(*t.RawContract.Value), "0x")
		if s == "" {
			return new(big.Int)
		}
		if v, ok := new(big.Int).SetString(s, 16); ok {
			return v
		}
	}
	if t.Value == nil {
		return new(big.Int)
	}
	return decimal.NewFromFloat(*t.Value).Shift(18).BigInt()
}

type assetTransfersPage struct {
	Transfers []AssetTransfer `json:"transfers"`
	PageKey   string          `json:"pageKey"`
}

// AssetTransfers returns every transfer of the given categories sent from or
// to address since fromBlock, following pageKey cursors in both directions.
func (c *Client) AssetTransfers(ctx context.Context, address string, fromBlock uint64, categories []string) ([]AssetTransfer, error) {
	var outgoing, incoming []AssetTransfer

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.assetTransfers(gctx, "fromAddress", address, fromBlock, categories)
		outgoing = v
		return err
	})
	g.Go(func() error {
		v, err := c.assetTransfers(gctx, "toAddress", address, fromBlock, categories)
		incoming = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return append(outgoing, incoming...), nil
}

func (c *Client) assetTransfers(ctx context.Context, direction, address string, fromBlock uint64, categories []string) ([]AssetTransfer, error) {
	var out []AssetTransfer
	pageKey := ""
	for {
		params := map[string]interface{}{
			"fromBlock":        hexutil.EncodeUint64(fromBlock),
			"toBlock":          "latest",
			"withMetadata":     true,
			"excludeZeroValue": false,
			"order":            "asc",
			"category":         categories,
			direction:          address,
		}
		if pageKey != "" {
			params["pageKey"] = pageKey
		}

		var page assetTransfersPage
		if err := c.Call(ctx, &page, "alchemy_getAssetTransfers", params); err != nil {
			return nil, fmt.Errorf("asset transfers %s %s: %w", direction, address, err)
		}
		out = append(out, page.Transfers...)
		if page.PageKey == "" {
			return out, nil
		}
		pageKey = page.PageKey
	}
}
