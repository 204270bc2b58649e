package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"traderScope/internal/dex"
	"traderScope/internal/model"
)

const (
	testUSDC  = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	testWETH  = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	testTKN1  = "0x1111111111111111111111111111111111111111"
	testTKN2  = "0x2222222222222222222222222222222222222222"
	testTKN3  = "0x3333333333333333333333333333333333333333"
	testScam  = "0x5555555555555555555555555555555555555555"
	testPool1 = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"
	testPool2 = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa2"
	testPool3 = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa3"
	testPool4 = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa4"
	testPool5 = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa5"
)

func testUniverse() dex.Universe {
	return dex.NewUniverse([]string{testUSDC}, testWETH)
}

type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	logs        []types.Log
	filterCalls int
	reserves    map[common.Address][]interface{}
	balances    map[common.Address]*big.Int
	badTokens   map[common.Address]bool
}

func (c *fakeChain) LatestBlockNumber(context.Context) (uint64, error) { return c.head, nil }

func (c *fakeChain) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	c.mu.Lock()
	c.filterCalls++
	c.mu.Unlock()
	var out []types.Log
	for _, log := range c.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

func (c *fakeChain) MulticallRaw(_ context.Context, targets []common.Address, contract abi.ABI, method string, _ []interface{}, _ bool) ([][]byte, error) {
	out := make([][]byte, len(targets))
	for i, target := range targets {
		if c.badTokens[target] {
			return nil, fmt.Errorf("execution reverted")
		}
		var (
			data []byte
			err  error
		)
		switch method {
		case "decimals":
			data, err = contract.Methods[method].Outputs.Pack(uint8(18))
		default:
			data, err = contract.Methods[method].Outputs.Pack("T")
		}
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}

func (c *fakeChain) Multicall(_ context.Context, targets []common.Address, _ abi.ABI, method string, args []interface{}, _ bool) ([][]interface{}, error) {
	out := make([][]interface{}, len(targets))
	for i, target := range targets {
		switch method {
		case "getReserves":
			out[i] = c.reserves[target]
		case "balanceOf":
			if v, ok := c.balances[args[i].(common.Address)]; ok {
				out[i] = []interface{}{v}
			}
		}
	}
	return out, nil
}

type fakeStore struct {
	mu            sync.Mutex
	state         map[string]uint64
	pools         map[string]model.Pool
	tokens        map[string]model.Token
	scam          map[string]struct{}
	prices        map[string]model.Price
	tokenPools    map[string]model.TokenPool
	deletedTokens []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		state:      make(map[string]uint64),
		pools:      make(map[string]model.Pool),
		tokens:     make(map[string]model.Token),
		scam:       make(map[string]struct{}),
		prices:     make(map[string]model.Price),
		tokenPools: make(map[string]model.TokenPool),
	}
}

func (s *fakeStore) LoadState(_ context.Context, name string) (uint64, bool, error) {
	v, ok := s.state[name]
	return v, ok, nil
}

func (s *fakeStore) SaveState(_ context.Context, name string, block uint64) error {
	s.state[name] = block
	return nil
}

func (s *fakeStore) LatestPoolBlock(_ context.Context, dexName string) (uint64, bool, error) {
	var (
		latest uint64
		found  bool
	)
	for _, p := range s.pools {
		if p.DexName == dexName && p.CreatedAtBlock >= latest {
			latest, found = p.CreatedAtBlock, true
		}
	}
	return latest, found, nil
}

func (s *fakeStore) KnownPoolIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.pools[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (s *fakeStore) ScamTokens(context.Context) (map[string]struct{}, error) { return s.scam, nil }

func (s *fakeStore) InsertPools(_ context.Context, pools []model.Pool) error {
	for _, p := range pools {
		s.pools[p.Address] = p
	}
	return nil
}

func (s *fakeStore) MissingTokens(context.Context) ([]string, error) {
	set := make(map[string]struct{})
	for _, p := range s.pools {
		for _, t := range []string{p.Token0, p.Token1} {
			if _, ok := s.tokens[t]; !ok {
				set[t] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) InsertTokens(_ context.Context, tokens []model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		s.tokens[t.Address] = t
	}
	return nil
}

func (s *fakeStore) Tokens(_ context.Context, addresses []string) (map[string]model.Token, error) {
	out := make(map[string]model.Token)
	for _, a := range addresses {
		if t, ok := s.tokens[a]; ok {
			out[a] = t
		}
	}
	return out, nil
}

func (s *fakeStore) DeletePoolsWithTokens(_ context.Context, tokens []string) (int64, error) {
	s.deletedTokens = append(s.deletedTokens, tokens...)
	var n int64
	for _, t := range tokens {
		for id, p := range s.pools {
			if p.HasToken(t) {
				delete(s.pools, id)
				n++
			}
		}
	}
	return n, nil
}

func (s *fakeStore) PoolsForLiquidity(_ context.Context, quoteTokens []string, staleBefore uint64) ([]model.Pool, error) {
	var out []model.Pool
	for _, p := range s.pools {
		for _, q := range quoteTokens {
			if p.HasToken(q) && p.UpdatedAtBlock < staleBefore {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *fakeStore) LatestPrices(_ context.Context, tokens []string) (map[string]model.Price, error) {
	out := make(map[string]model.Price)
	for _, t := range tokens {
		if p, ok := s.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateLiquidity(_ context.Context, pools []model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pools {
		s.pools[p.Address] = p
	}
	return nil
}

func (s *fakeStore) DeletePools(_ context.Context, ids []string) (int64, error) {
	for _, id := range ids {
		delete(s.pools, id)
	}
	return int64(len(ids)), nil
}

func (s *fakeStore) BestPools(_ context.Context, limit int) ([]model.Pool, error) {
	var out []model.Pool
	for _, p := range s.pools {
		if p.Liquidity != nil && *p.Liquidity > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Liquidity > *out[j].Liquidity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) TokenPools(context.Context) ([]model.TokenPool, error) {
	out := make([]model.TokenPool, 0, len(s.tokenPools))
	for _, tp := range s.tokenPools {
		out = append(out, tp)
	}
	return out, nil
}

func (s *fakeStore) PoolsByID(_ context.Context, ids []string) (map[string]model.Pool, error) {
	out := make(map[string]model.Pool)
	for _, id := range ids {
		if p, ok := s.pools[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *fakeStore) SaveTokenPools(_ context.Context, replacements, additions []model.TokenPool) error {
	for _, tp := range replacements {
		s.tokenPools[tp.Token] = tp
	}
	for _, tp := range additions {
		if _, ok := s.tokenPools[tp.Token]; !ok {
			s.tokenPools[tp.Token] = tp
		}
	}
	return nil
}

func liquidity(v float64) *float64 { return &v }
