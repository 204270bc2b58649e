package dex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"traderScope/internal/model"
)

// ErrMissingDecimals is returned when a token in a batch has no readable decimals.
var ErrMissingDecimals = errors.New("token decimals unavailable")

// RawMulticaller aggregates contract calls and returns undecoded results.
type RawMulticaller interface {
	MulticallRaw(ctx context.Context, targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([][]byte, error)
}

// FetchTokens loads token metadata for a batch of addresses with three
// multicalls. Name and symbol fall back to bytes32 encodings and default to
// empty; a token without decimals fails the whole batch.
func FetchTokens(ctx context.Context, mc RawMulticaller, addresses []string) ([]model.Token, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	stringABI, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32.get()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	targets := make([]common.Address, len(addresses))
	for i, addr := range addresses {
		targets[i] = common.HexToAddress(addr)
	}

	var decimals, names, symbols [][]byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := mc.MulticallRaw(gctx, targets, stringABI, "decimals", nil, false)
		decimals = v
		return err
	})
	g.Go(func() error {
		v, err := mc.MulticallRaw(gctx, targets, stringABI, "name", nil, false)
		names = v
		return err
	})
	g.Go(func() error {
		v, err := mc.MulticallRaw(gctx, targets, stringABI, "symbol", nil, false)
		symbols = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(decimals) != len(addresses) || len(names) != len(addresses) || len(symbols) != len(addresses) {
		return nil, fmt.Errorf("token metadata: result count mismatch")
	}

	tokens := make([]model.Token, len(addresses))
	for i, addr := range addresses {
		if decimals[i] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingDecimals, addr)
		}
		values, err := stringABI.Unpack("decimals", decimals[i])
		if err != nil || len(values) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingDecimals, addr)
		}
		d, err := asUint8(values[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMissingDecimals, addr, err)
		}
		tokens[i] = model.Token{
			Address:  strings.ToLower(addr),
			Decimals: d,
			Name:     decodeText(stringABI, bytes32ABI, "name", names[i]),
			Symbol:   decodeText(stringABI, bytes32ABI, "symbol", symbols[i]),
		}
	}
	return tokens, nil
}

func decodeText(stringABI, bytes32ABI abi.ABI, method string, data []byte) string {
	if data == nil {
		return ""
	}
	if values, err := stringABI.Unpack(method, data); err == nil && len(values) > 0 {
		if s, ok := values[0].(string); ok {
			return sanitize(s)
		}
	}
	if values, err := bytes32ABI.Unpack(method, data); err == nil && len(values) > 0 {
		if s, ok := bytes32ToString(values[0]); ok {
			return sanitize(s)
		}
	}
	return ""
}

// sanitize drops NUL bytes, which Postgres text columns reject.
func sanitize(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
