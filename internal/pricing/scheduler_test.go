package pricing

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"traderScope/internal/dex"
	"traderScope/internal/model"
)

const (
	testUSDC       = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	testWETH       = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	testToken      = "0x1111111111111111111111111111111111111111"
	testAnchorPool = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testTokenPool  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeStore struct {
	mu     sync.Mutex
	pools  map[string]model.Pool
	tokens map[string]model.Token
	tps    []model.PricedTokenPool
	prices []model.Price
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

func (s *fakeStore) Tokens(_ context.Context, addresses []string) (map[string]model.Token, error) {
	out := make(map[string]model.Token)
	for _, a := range addresses {
		if t, ok := s.tokens[a]; ok {
			out[a] = t
		}
	}
	return out, nil
}

func (s *fakeStore) PricedTokenPools(context.Context) ([]model.PricedTokenPool, error) {
	return s.tps, nil
}

func (s *fakeStore) LastPriceBlock(_ context.Context, token string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		last  uint64
		found bool
	)
	for _, p := range s.prices {
		if p.Token == token && (!found || p.BlockNumber > last) {
			last, found = p.BlockNumber, true
		}
	}
	return last, found, nil
}

func (s *fakeStore) PriceSeries(_ context.Context, token string, from, to uint64) ([]model.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Price
	for _, p := range s.prices {
		if p.Token == token && p.BlockNumber >= from && p.BlockNumber <= to {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out, nil
}

func (s *fakeStore) InsertPrices(_ context.Context, prices []model.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, prices...)
	return nil
}

func (s *fakeStore) pricesOf(token string) map[uint64]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64]string)
	for _, p := range s.prices {
		if p.Token == token {
			out[p.BlockNumber] = p.Price
		}
	}
	return out
}

type fakeCaller struct {
	head     uint64
	reserves map[string][2]*big.Int
	// failBlock makes every call at that block fail for the listed pool.
	failBlock map[uint64]string
	// emptyBlock yields an undecodable result for the listed pool.
	emptyBlock map[uint64]string
}

func (c *fakeCaller) LatestBlockNumber(context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeCaller) HistoricalMulticall(_ context.Context, block uint64, targets []common.Address, _ abi.ABI, method string, _ []interface{}, _ bool) ([][]interface{}, error) {
	if method != "getReserves" {
		return nil, errors.New("unexpected method " + method)
	}
	out := make([][]interface{}, len(targets))
	for i, target := range targets {
		addr := strings.ToLower(target.Hex())
		if c.failBlock[block] == addr {
			return nil, errors.New("execution timeout")
		}
		if c.emptyBlock[block] == addr {
			continue
		}
		r := c.reserves[addr]
		out[i] = []interface{}{r[0], r[1], uint32(block)}
	}
	return out, nil
}

func e(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

func newTestStore() *fakeStore {
	return &fakeStore{
		pools: map[string]model.Pool{
			testAnchorPool: {Address: testAnchorPool, Kind: model.PoolKindConstantProduct, Token0: testUSDC, Token1: testWETH},
		},
		tokens: map[string]model.Token{
			testUSDC: {Address: testUSDC, Decimals: 6},
			testWETH: {Address: testWETH, Decimals: 18},
		},
		tps: []model.PricedTokenPool{{
			TokenPool: model.TokenPool{
				Token: testToken, PoolID: testTokenPool, Token0: testToken, Token1: testWETH, Decimal0: 18, Decimal1: 18,
			},
			Kind:           model.PoolKindConstantProduct,
			CreatedAtBlock: 85,
		}},
	}
}

func newTestScheduler(store *fakeStore, caller *fakeCaller) *Scheduler {
	return NewScheduler(store, caller, Options{
		Universe:    dex.NewUniverse([]string{testUSDC}, testWETH),
		AnchorPool:  testAnchorPool,
		Step:        10,
		Horizon:     30,
		BatchSize:   1000,
		Concurrency: 4,
		Precision:   6,
	})
}

func TestSchedulerPricesAnchorThenTokens(t *testing.T) {
	store := newTestStore()
	caller := &fakeCaller{
		head: 100,
		reserves: map[string][2]*big.Int{
			testAnchorPool: {e(2000, 6), e(1, 18)},
			testTokenPool:  {e(1000, 18), e(1, 18)},
		},
		emptyBlock: map[uint64]string{100: testTokenPool},
	}

	result, err := newTestScheduler(store, caller).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.AnchorPrices != 4 || result.Prices != 1 || result.Dropped != 0 {
		t.Fatalf("result mismatch: %+v", result)
	}

	anchor := store.pricesOf(testWETH)
	for _, block := range []uint64{70, 80, 90, 100} {
		if anchor[block] != "2000.000000" {
			t.Fatalf("anchor price at %d mismatch: %q", block, anchor[block])
		}
	}
	token := store.pricesOf(testToken)
	if len(token) != 1 || token[90] != "2.000000" {
		t.Fatalf("token prices mismatch: %v", token)
	}
}

func TestSchedulerResumesAfterLastPrice(t *testing.T) {
	store := newTestStore()
	store.prices = []model.Price{
		{Token: testWETH, BlockNumber: 70, Price: "1000.000000"},
		{Token: testWETH, BlockNumber: 80, Price: "1000.000000"},
		{Token: testWETH, BlockNumber: 90, Price: "1000.000000"},
	}
	caller := &fakeCaller{
		head: 100,
		reserves: map[string][2]*big.Int{
			testAnchorPool: {e(2000, 6), e(1, 18)},
			testTokenPool:  {e(1000, 18), e(1, 18)},
		},
	}

	result, err := newTestScheduler(store, caller).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.AnchorPrices != 1 {
		t.Fatalf("anchor prices mismatch: %d", result.AnchorPrices)
	}
	token := store.pricesOf(testToken)
	if token[90] != "1.000000" || token[100] != "2.000000" {
		t.Fatalf("token prices mismatch: %v", token)
	}
}

func TestSchedulerDropsFailingBlock(t *testing.T) {
	store := newTestStore()
	caller := &fakeCaller{
		head: 100,
		reserves: map[string][2]*big.Int{
			testAnchorPool: {e(2000, 6), e(1, 18)},
			testTokenPool:  {e(1000, 18), e(1, 18)},
		},
		failBlock: map[uint64]string{90: testAnchorPool},
	}

	result, err := newTestScheduler(store, caller).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.AnchorPrices != 3 || result.Dropped != 1 {
		t.Fatalf("result mismatch: %+v", result)
	}
	if got := store.pricesOf(testToken)[90]; got != "2.000000" {
		t.Fatalf("expected nearest anchor price to be used, got %q", got)
	}
}

func TestSchedulerFailsWithoutAnchorPool(t *testing.T) {
	store := newTestStore()
	delete(store.pools, testAnchorPool)
	caller := &fakeCaller{head: 100}

	_, err := newTestScheduler(store, caller).Run(context.Background())
	if !errors.Is(err, ErrAnchorPoolNotFound) {
		t.Fatalf("expected ErrAnchorPoolNotFound, got %v", err)
	}
}

func TestPriceChunkRequiresAnchorPrice(t *testing.T) {
	store := newTestStore()
	caller := &fakeCaller{head: 100}
	s := newTestScheduler(store, caller)
	tp := store.tps[0]

	empty := Series{}
	_, err := s.priceChunk(context.Background(), NewGrid(100, 30, 10), 90, []*model.PricedTokenPool{&tp}, &empty)
	if !errors.Is(err, ErrMissingAnchorPrice) {
		t.Fatalf("expected ErrMissingAnchorPrice, got %v", err)
	}
}
