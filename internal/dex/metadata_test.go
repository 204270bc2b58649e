package dex

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type fakeMulticaller struct {
	results map[string][][]byte
}

func (f *fakeMulticaller) MulticallRaw(_ context.Context, targets []common.Address, _ abi.ABI, method string, _ []interface{}, _ bool) ([][]byte, error) {
	return f.results[method], nil
}

func TestFetchTokensFallsBackToBytes32(t *testing.T) {
	stringABI, _ := ERC20ABI()
	bytes32ABI, _ := erc20ABIBytes32.get()

	dec, _ := stringABI.Methods["decimals"].Outputs.Pack(uint8(18))
	name, _ := stringABI.Methods["name"].Outputs.Pack("Wrapped Ether")
	var raw [32]byte
	copy(raw[:], "MKR")
	symbol, _ := bytes32ABI.Methods["symbol"].Outputs.Pack(raw)

	mc := &fakeMulticaller{results: map[string][][]byte{
		"decimals": {dec},
		"name":     {name},
		"symbol":   {symbol},
	}}

	tokens, err := FetchTokens(context.Background(), mc, []string{"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"})
	if err != nil {
		t.Fatalf("FetchTokens failed: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("token count mismatch: %d", len(tokens))
	}
	got := tokens[0]
	if got.Address != "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2" || got.Decimals != 18 || got.Name != "Wrapped Ether" || got.Symbol != "MKR" {
		t.Fatalf("token mismatch: %+v", got)
	}
}

func TestFetchTokensFailsWithoutDecimals(t *testing.T) {
	mc := &fakeMulticaller{results: map[string][][]byte{
		"decimals": {nil},
		"name":     {nil},
		"symbol":   {nil},
	}}
	_, err := FetchTokens(context.Background(), mc, []string{"0x1111111111111111111111111111111111111111"})
	if !errors.Is(err, ErrMissingDecimals) {
		t.Fatalf("expected ErrMissingDecimals, got %v", err)
	}
}
