package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"traderScope/internal/batch"
	"traderScope/internal/dex"
	"traderScope/internal/model"
)

var (
	// ErrAnchorPoolNotFound aborts a run: without the anchor no other asset can be priced in USD.
	ErrAnchorPoolNotFound = errors.New("anchor pool not found")
	// ErrMissingAnchorPrice fails a batch whose block has no anchor price nearby.
	ErrMissingAnchorPrice = errors.New("anchor price missing")
)

// Store is the persistence the scheduler needs.
type Store interface {
	PoolsByID(ctx context.Context, ids []string) (map[string]model.Pool, error)
	Tokens(ctx context.Context, addresses []string) (map[string]model.Token, error)
	PricedTokenPools(ctx context.Context) ([]model.PricedTokenPool, error)
	LastPriceBlock(ctx context.Context, token string) (uint64, bool, error)
	PriceSeries(ctx context.Context, token string, from, to uint64) ([]model.Price, error)
	InsertPrices(ctx context.Context, prices []model.Price) error
}

// Caller is the chain access the scheduler needs.
type Caller interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	HistoricalMulticall(ctx context.Context, block uint64, targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([][]interface{}, error)
}

// Options configures a Scheduler.
type Options struct {
	Universe    dex.Universe
	AnchorPool  string
	Step        uint64
	Horizon     uint64
	BatchSize   int
	Concurrency int
	Precision   int32
	Logger      *zap.Logger
}

// Result summarizes one backfill run.
type Result struct {
	Head         uint64
	AnchorPrices int
	Prices       int
	Dropped      int
}

// Scheduler backfills a regular-cadence USD price series for every asset
// with a canonical pricing pool.
type Scheduler struct {
	store  Store
	caller Caller
	opts   Options
	logger *zap.Logger
}

func NewScheduler(store Store, caller Caller, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1000
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Scheduler{store: store, caller: caller, opts: opts, logger: logger}
}

// Run prices the anchor first, then every other asset up to the current head.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	head, err := s.caller.LatestBlockNumber(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("head block: %w", err)
	}
	grid := NewGrid(head, s.opts.Horizon, s.opts.Step)
	result := Result{Head: head}

	anchor, err := s.AnchorTokenPool(ctx)
	if err != nil {
		return result, err
	}
	stats, stored, err := s.backfill(ctx, grid, []model.PricedTokenPool{anchor}, nil)
	if err != nil {
		return result, fmt.Errorf("anchor backfill: %w", err)
	}
	result.AnchorPrices = stored
	result.Dropped += stats.Dropped
	s.logger.Info("anchor prices synced",
		zap.String("pool", anchor.PoolID),
		zap.Int("stored", stored),
	)

	points, err := s.store.PriceSeries(ctx, anchor.Token, grid.Start, head)
	if err != nil {
		return result, fmt.Errorf("load anchor series: %w", err)
	}
	anchorSeries, err := NewSeries(points)
	if err != nil {
		return result, err
	}

	all, err := s.store.PricedTokenPools(ctx)
	if err != nil {
		return result, fmt.Errorf("load token pools: %w", err)
	}
	pools := make([]model.PricedTokenPool, 0, len(all))
	for _, tp := range all {
		if tp.Token == anchor.Token || s.opts.Universe.IsStable(tp.Token) {
			continue
		}
		pools = append(pools, tp)
	}

	stats, stored, err = s.backfill(ctx, grid, pools, &anchorSeries)
	if err != nil {
		return result, fmt.Errorf("token backfill: %w", err)
	}
	result.Prices = stored
	result.Dropped += stats.Dropped
	s.logger.Info("prices synced",
		zap.Int("tokens", len(pools)),
		zap.Int("stored", stored),
		zap.Int("dropped", stats.Dropped),
	)
	return result, nil
}

// AnchorTokenPool resolves the anchor pool as the pricing pool of the wrapped native asset.
func (s *Scheduler) AnchorTokenPool(ctx context.Context) (model.PricedTokenPool, error) {
	pools, err := s.store.PoolsByID(ctx, []string{s.opts.AnchorPool})
	if err != nil {
		return model.PricedTokenPool{}, fmt.Errorf("load anchor pool: %w", err)
	}
	pool, ok := pools[s.opts.AnchorPool]
	if !ok {
		return model.PricedTokenPool{}, fmt.Errorf("%w: %s", ErrAnchorPoolNotFound, s.opts.AnchorPool)
	}
	if !s.opts.Universe.IsAnchor(pool.Token0, pool.Token1) {
		return model.PricedTokenPool{}, fmt.Errorf("%w: %s is not a wrapped native/stable pool", ErrAnchorPoolNotFound, pool.Address)
	}
	tokens, err := s.store.Tokens(ctx, []string{pool.Token0, pool.Token1})
	if err != nil {
		return model.PricedTokenPool{}, fmt.Errorf("load anchor tokens: %w", err)
	}
	t0, ok0 := tokens[pool.Token0]
	t1, ok1 := tokens[pool.Token1]
	if !ok0 || !ok1 {
		return model.PricedTokenPool{}, fmt.Errorf("%w: token metadata missing for %s", ErrAnchorPoolNotFound, pool.Address)
	}

	wrapped := s.opts.Universe.WrappedNative()
	tp := model.PricedTokenPool{
		TokenPool: model.TokenPool{
			Token:    wrapped,
			PoolID:   pool.Address,
			Token0:   pool.Token0,
			Token1:   pool.Token1,
			Decimal0: t0.Decimals,
			Decimal1: t1.Decimals,
		},
		Kind:           pool.Kind,
		DexName:        pool.DexName,
		CreatedAtBlock: pool.CreatedAtBlock,
	}
	last, ok, err := s.store.LastPriceBlock(ctx, wrapped)
	if err != nil {
		return model.PricedTokenPool{}, err
	}
	if ok {
		tp.LastPriceBlock = &last
	}
	return tp, nil
}

// Plan groups the pending grid points of every pool by block, ascending.
func Plan(grid Grid, pools []model.PricedTokenPool) []batch.Group[uint64, *model.PricedTokenPool] {
	work := make(map[uint64][]*model.PricedTokenPool)
	for i := range pools {
		tp := &pools[i]
		next, ok := grid.Next(tp.CreatedAtBlock, tp.LastPriceBlock)
		if !ok {
			continue
		}
		for _, block := range grid.From(next) {
			work[block] = append(work[block], tp)
		}
	}
	groups := make([]batch.Group[uint64, *model.PricedTokenPool], 0, len(work))
	for block, items := range work {
		groups = append(groups, batch.Group[uint64, *model.PricedTokenPool]{Key: block, Items: items})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

func (s *Scheduler) backfill(ctx context.Context, grid Grid, pools []model.PricedTokenPool, anchor *Series) (batch.Stats, int, error) {
	groups := Plan(grid, pools)
	if len(groups) == 0 {
		return batch.Stats{}, 0, nil
	}
	s.logger.Info("loading historical prices",
		zap.Int("pools", len(pools)),
		zap.Int("blocks", len(groups)),
	)

	var stored int64
	runner := batch.Runner[uint64, *model.PricedTokenPool]{
		Size:        s.opts.BatchSize,
		Concurrency: s.opts.Concurrency,
		Logger:      s.logger,
		Do: func(ctx context.Context, block uint64, items []*model.PricedTokenPool) error {
			prices, err := s.priceChunk(ctx, grid, block, items, anchor)
			if err != nil {
				return err
			}
			if err := s.store.InsertPrices(ctx, prices); err != nil {
				return err
			}
			atomic.AddInt64(&stored, int64(len(prices)))
			return nil
		},
		Drop: func(block uint64, tp *model.PricedTokenPool, err error) {
			s.logger.Warn("price dropped",
				zap.Uint64("block", block),
				zap.String("token", tp.Token),
				zap.String("pool", tp.PoolID),
				zap.Error(err),
			)
		},
	}
	stats, err := runner.Run(ctx, groups)
	return stats, int(atomic.LoadInt64(&stored)), err
}

// priceChunk prices one chunk of pools at one block. Pools whose call failed
// or could not be decoded yield no price.
func (s *Scheduler) priceChunk(ctx context.Context, grid Grid, block uint64, items []*model.PricedTokenPool, anchor *Series) ([]model.Price, error) {
	var anchorPrice float64
	needsAnchor := false
	if anchor != nil {
		for _, tp := range items {
			if !s.opts.Universe.IsUsdPool(tp.Token0, tp.Token1) {
				needsAnchor = true
				break
			}
		}
	}
	if needsAnchor {
		price, ok := anchor.Nearest(block, grid.Step)
		if !ok {
			return nil, fmt.Errorf("%w: block %d", ErrMissingAnchorPrice, block)
		}
		anchorPrice = price
	}

	byKind := make(map[model.PoolKind][]*model.PricedTokenPool)
	for _, tp := range items {
		byKind[tp.Kind] = append(byKind[tp.Kind], tp)
	}

	var out []model.Price
	for _, kind := range []model.PoolKind{model.PoolKindConstantProduct, model.PoolKindConcentrated} {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}
		pricer, err := dex.PricerFor(kind)
		if err != nil {
			return nil, err
		}
		contract, err := pricer.ABI()
		if err != nil {
			return nil, err
		}
		targets := make([]common.Address, len(group))
		for i, tp := range group {
			targets[i] = common.HexToAddress(tp.PoolID)
		}
		results, err := s.caller.HistoricalMulticall(ctx, block, targets, contract, pricer.Method(), nil, false)
		if err != nil {
			return nil, fmt.Errorf("%s at block %d: %w", pricer.Method(), block, err)
		}
		for i, tp := range group {
			if i >= len(results) || results[i] == nil {
				continue
			}
			price, err := pricer.Price(results[i], tp.Decimal0, tp.Decimal1, tp.Token == tp.Token0)
			if err != nil {
				s.logger.Debug("price decode failed",
					zap.String("pool", tp.PoolID),
					zap.Uint64("block", block),
					zap.Error(err),
				)
				continue
			}
			if anchor != nil && !s.opts.Universe.IsUsdPool(tp.Token0, tp.Token1) {
				price *= anchorPrice
			}
			out = append(out, model.Price{
				Token:       tp.Token,
				BlockNumber: block,
				Price:       decimal.NewFromFloat(price).StringFixed(s.opts.Precision),
			})
		}
	}
	return out, nil
}
