package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicallABIJSON = `[
  {"inputs":[{"internalType":"bool","name":"requireSuccess","type":"bool"},{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call[]","name":"calls","type":"tuple[]"}],"name":"tryAggregate","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}
]`

var (
	multicallABIOnce sync.Once
	multicallABI     abi.ABI
	multicallABIErr  error
)

// MulticallABI returns the parsed aggregator ABI.
func MulticallABI() (abi.ABI, error) {
	multicallABIOnce.Do(func() {
		multicallABI, multicallABIErr = abi.JSON(strings.NewReader(multicallABIJSON))
	})
	return multicallABI, multicallABIErr
}

type multicallCall struct {
	Target   common.Address
	CallData []byte
}

type multicallResult struct {
	Success    bool
	ReturnData []byte
}

// Multicall calls method on every target in one aggregated eth_call at the
// latest block. When perTargetArgs is set, args[i] is the single argument for
// targets[i]; otherwise args are passed to every target. A sub-call that
// reverts or fails to decode yields nil at its index.
func (c *Client) Multicall(ctx context.Context, targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([][]interface{}, error) {
	return c.multicall(ctx, nil, targets, contract, method, args, perTargetArgs)
}

// HistoricalMulticall is Multicall pinned to block.
func (c *Client) HistoricalMulticall(ctx context.Context, block uint64, targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([][]interface{}, error) {
	return c.multicall(ctx, new(big.Int).SetUint64(block), targets, contract, method, args, perTargetArgs)
}

// MulticallRaw returns undecoded return data per target, nil for failed sub-calls.
func (c *Client) MulticallRaw(ctx context.Context, targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([][]byte, error) {
	return c.multicallRaw(ctx, nil, targets, contract, method, args, perTargetArgs)
}

func (c *Client) multicall(ctx context.Context, block *big.Int, targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([][]interface{}, error) {
	raw, err := c.multicallRaw(ctx, block, targets, contract, method, args, perTargetArgs)
	if err != nil {
		return nil, err
	}
	return decodeResults(contract, method, raw), nil
}

func (c *Client) multicallRaw(ctx context.Context, block *big.Int, targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([][]byte, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	mc, err := MulticallABI()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	calls, err := encodeCalls(targets, contract, method, args, perTargetArgs)
	if err != nil {
		return nil, err
	}
	input, err := mc.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	to := c.multicallAddress
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, block)
	if err != nil {
		return nil, fmt.Errorf("multicall %s: %w", method, err)
	}

	values, err := mc.Unpack("tryAggregate", out)
	if err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack tryAggregate: unexpected output count %d", len(values))
	}
	results := *abi.ConvertType(values[0], new([]multicallResult)).(*[]multicallResult)
	if len(results) != len(targets) {
		return nil, fmt.Errorf("multicall %s: got %d results for %d calls", method, len(results), len(targets))
	}

	raw := make([][]byte, len(results))
	for i, r := range results {
		if r.Success && len(r.ReturnData) > 0 {
			raw[i] = r.ReturnData
		}
	}
	return raw, nil
}

func encodeCalls(targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([]multicallCall, error) {
	if perTargetArgs && len(args) != len(targets) {
		return nil, fmt.Errorf("multicall %s: %d args for %d targets", method, len(args), len(targets))
	}

	calls := make([]multicallCall, len(targets))
	var shared []byte
	if !perTargetArgs {
		data, err := contract.Pack(method, args...)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		shared = data
	}
	for i, target := range targets {
		data := shared
		if perTargetArgs {
			packed, err := contract.Pack(method, args[i])
			if err != nil {
				return nil, fmt.Errorf("pack %s for %s: %w", method, target.Hex(), err)
			}
			data = packed
		}
		calls[i] = multicallCall{Target: target, CallData: data}
	}
	return calls, nil
}

func decodeResults(contract abi.ABI, method string, raw [][]byte) [][]interface{} {
	out := make([][]interface{}, len(raw))
	for i, data := range raw {
		if data == nil {
			continue
		}
		values, err := contract.Unpack(method, data)
		if err != nil {
			continue
		}
		out[i] = values
	}
	return out
}
