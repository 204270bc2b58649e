// Package indexer maintains the pool universe: factory pool discovery, token
// metadata, pool liquidity, and the canonical pricing pool of every token.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"traderScope/internal/dex"
	"traderScope/internal/model"
)

// Store is the persistence the indexer needs.
type Store interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error

	LatestPoolBlock(ctx context.Context, dexName string) (uint64, bool, error)
	KnownPoolIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	ScamTokens(ctx context.Context) (map[string]struct{}, error)
	InsertPools(ctx context.Context, pools []model.Pool) error

	MissingTokens(ctx context.Context) ([]string, error)
	InsertTokens(ctx context.Context, tokens []model.Token) error
	Tokens(ctx context.Context, addresses []string) (map[string]model.Token, error)
	DeletePoolsWithTokens(ctx context.Context, tokens []string) (int64, error)

	PoolsForLiquidity(ctx context.Context, quoteTokens []string, staleBefore uint64) ([]model.Pool, error)
	LatestPrices(ctx context.Context, tokens []string) (map[string]model.Price, error)
	UpdateLiquidity(ctx context.Context, pools []model.Pool) error
	DeletePools(ctx context.Context, ids []string) (int64, error)

	BestPools(ctx context.Context, limit int) ([]model.Pool, error)
	TokenPools(ctx context.Context) ([]model.TokenPool, error)
	PoolsByID(ctx context.Context, ids []string) (map[string]model.Pool, error)
	SaveTokenPools(ctx context.Context, replacements, additions []model.TokenPool) error
}

// Chain is the node access the indexer needs.
type Chain interface {
	dex.RawMulticaller
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	Multicall(ctx context.Context, targets []common.Address, contract abi.ABI, method string, args []interface{}, perTargetArgs bool) ([][]interface{}, error)
}

// Options holds runtime settings for the indexer.
type Options struct {
	Factories          []dex.Factory
	Universe           dex.Universe
	RangeSize          uint64
	RangeBatch         int
	MaxRetries         int
	RetryBackoff       time.Duration
	MulticallLimit     int
	LiquidityBatch     int
	Concurrency        int
	LiquidityMaxAge    uint64
	CanonicalPoolLimit int
	Logger             *zap.Logger
}

// Runner runs the pool universe sync steps against the chain and the store.
type Runner struct {
	opts   Options
	chain  Chain
	store  Store
	logger *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(chainClient Chain, store Store, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RangeSize == 0 {
		opts.RangeSize = 20000
	}
	if opts.RangeBatch < 1 {
		opts.RangeBatch = 1
	}
	if opts.MulticallLimit < 1 {
		opts.MulticallLimit = 1000
	}
	if opts.LiquidityBatch < 1 {
		opts.LiquidityBatch = opts.MulticallLimit
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{opts: opts, chain: chainClient, store: store, logger: logger}
}

// Run executes every step in order: pools, tokens, liquidity, canonical pools.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.SyncPools(ctx); err != nil {
		return err
	}
	if err := r.SyncTokens(ctx); err != nil {
		return err
	}
	if err := r.SyncLiquidity(ctx); err != nil {
		return err
	}
	return r.SyncCanonical(ctx)
}

// SyncPools discovers pools created by every configured factory since the
// last run.
func (r *Runner) SyncPools(ctx context.Context) error {
	head, err := r.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	scam, err := r.store.ScamTokens(ctx)
	if err != nil {
		return err
	}
	for _, factory := range r.opts.Factories {
		if err := r.syncFactory(ctx, factory, head, scam); err != nil {
			return fmt.Errorf("sync %s: %w", factory.Name, err)
		}
	}
	return nil
}

func stateKey(factory dex.Factory) string {
	return "pools:" + factory.Name
}

func (r *Runner) resumeBlock(ctx context.Context, factory dex.Factory) (uint64, error) {
	last, ok, err := r.store.LoadState(ctx, stateKey(factory))
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}
	if ok {
		return last + 1, nil
	}
	latest, ok, err := r.store.LatestPoolBlock(ctx, factory.Name)
	if err != nil {
		return 0, err
	}
	if ok && latest >= factory.StartBlock {
		return latest, nil
	}
	return factory.StartBlock, nil
}

func (r *Runner) syncFactory(ctx context.Context, factory dex.Factory, head uint64, scam map[string]struct{}) error {
	decoder, err := dex.NewPoolCreatedDecoder(factory)
	if err != nil {
		return err
	}
	from, err := r.resumeBlock(ctx, factory)
	if err != nil {
		return err
	}
	if from > head {
		r.logger.Info("nothing to sync", zap.String("dex", factory.Name), zap.Uint64("from", from), zap.Uint64("to", head))
		return nil
	}

	ranges, err := SplitRange(from, head, r.opts.RangeSize)
	if err != nil {
		return err
	}

	for _, group := range lo.Chunk(ranges, r.opts.RangeBatch) {
		results := make([][]types.Log, len(group))
		g, gctx := errgroup.WithContext(ctx)
		for i, blockRange := range group {
			i, blockRange := i, blockRange
			g.Go(func() error {
				logs, err := r.filterLogsWithRetry(gctx, factory, decoder, blockRange)
				results[i] = logs
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		var found []model.Pool
		for _, logs := range results {
			pools, err := r.decodePools(decoder, logs, scam)
			if err != nil {
				return err
			}
			found = append(found, pools...)
		}
		stored, err := r.storeNewPools(ctx, found)
		if err != nil {
			return err
		}

		last := group[len(group)-1].To
		if err := r.store.SaveState(ctx, stateKey(factory), last); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		r.logger.Info("batch complete",
			zap.String("dex", factory.Name),
			zap.Int("pools", stored),
			zap.Uint64("from", group[0].From),
			zap.Uint64("to", last),
		)
	}
	return nil
}

func (r *Runner) decodePools(decoder *dex.PoolCreatedDecoder, logs []types.Log, scam map[string]struct{}) ([]model.Pool, error) {
	pools := make([]model.Pool, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		pool, err := decoder.Decode(dex.LogRecordFromLog(log))
		if err != nil {
			return nil, fmt.Errorf("decode pool at block %d: %w", log.BlockNumber, err)
		}
		_, scam0 := scam[pool.Token0]
		_, scam1 := scam[pool.Token1]
		if scam0 || scam1 {
			continue
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

// storeNewPools inserts the pools not stored yet and returns how many were new.
func (r *Runner) storeNewPools(ctx context.Context, pools []model.Pool) (int, error) {
	if len(pools) == 0 {
		return 0, nil
	}
	ids := make([]string, len(pools))
	for i, pool := range pools {
		ids[i] = pool.Address
	}
	known, err := r.store.KnownPoolIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	fresh := make([]model.Pool, 0, len(pools))
	seen := make(map[string]struct{}, len(pools))
	for _, pool := range pools {
		if _, ok := known[pool.Address]; ok {
			continue
		}
		if _, ok := seen[pool.Address]; ok {
			continue
		}
		seen[pool.Address] = struct{}{}
		fresh = append(fresh, pool)
	}
	if err := r.store.InsertPools(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, factory dex.Factory, decoder *dex.PoolCreatedDecoder, blockRange BlockRange) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.opts.MaxRetries, r.opts.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, blockRange.From, blockRange.To,
			[]common.Address{factory.Address}, []common.Hash{decoder.Topic0()})
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	return logs, err
}
