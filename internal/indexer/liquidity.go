package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"traderScope/internal/batch"
	"traderScope/internal/dex"
	"traderScope/internal/model"
)

// SyncLiquidity refreshes the USD liquidity of pools quoted against a stable
// or the wrapped native asset: twice the quote side reserve, the wrapped side
// valued at its latest stored price.
func (r *Runner) SyncLiquidity(ctx context.Context) error {
	head, err := r.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	u := r.opts.Universe
	quotes := append(u.Stables(), u.WrappedNative())

	var staleBefore uint64
	if head > r.opts.LiquidityMaxAge {
		staleBefore = head - r.opts.LiquidityMaxAge
	}
	pools, err := r.store.PoolsForLiquidity(ctx, quotes, staleBefore)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return nil
	}

	decimals, err := r.store.Tokens(ctx, quotes)
	if err != nil {
		return err
	}
	quotePrices := make(map[string]float64, len(quotes))
	for _, s := range u.Stables() {
		quotePrices[s] = 1
	}
	latest, err := r.store.LatestPrices(ctx, []string{u.WrappedNative()})
	if err != nil {
		return err
	}
	if p, ok := latest[u.WrappedNative()]; ok {
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return fmt.Errorf("parse wrapped native price: %w", err)
		}
		quotePrices[u.WrappedNative()] = v
	} else {
		r.logger.Warn("no wrapped native price yet, its pools get zero liquidity", zap.String("token", u.WrappedNative()))
	}

	valuer := liquidityValuer{universe: u, decimals: decimals, prices: quotePrices, head: head}
	var dropped []string
	runner := batch.Runner[model.PoolKind, model.Pool]{
		Size:        r.opts.LiquidityBatch,
		Concurrency: r.opts.Concurrency,
		Logger:      r.logger,
		Do: func(ctx context.Context, kind model.PoolKind, items []model.Pool) error {
			updated, err := r.poolLiquidity(ctx, valuer, kind, items)
			if err != nil {
				return err
			}
			return r.store.UpdateLiquidity(ctx, updated)
		},
		Drop: func(_ model.PoolKind, pool model.Pool, _ error) {
			dropped = append(dropped, pool.Address)
		},
	}
	stats, err := runner.Run(ctx, groupByKind(pools))
	if err != nil {
		return fmt.Errorf("sync liquidity: %w", err)
	}
	if len(dropped) > 0 {
		if _, err := r.store.DeletePools(ctx, dropped); err != nil {
			return err
		}
	}
	r.logger.Info("liquidity synced",
		zap.Int("pools", stats.Succeeded),
		zap.Int("deleted", len(dropped)),
		zap.Uint64("block", head),
	)
	return nil
}

func groupByKind(pools []model.Pool) []batch.Group[model.PoolKind, model.Pool] {
	index := make(map[model.PoolKind]int)
	var groups []batch.Group[model.PoolKind, model.Pool]
	for _, pool := range pools {
		i, ok := index[pool.Kind]
		if !ok {
			i = len(groups)
			index[pool.Kind] = i
			groups = append(groups, batch.Group[model.PoolKind, model.Pool]{Key: pool.Kind})
		}
		groups[i].Items = append(groups[i].Items, pool)
	}
	return groups
}

// poolLiquidity reads the quote side reserve of every pool. A failed sub-call
// leaves the pool at zero liquidity.
func (r *Runner) poolLiquidity(ctx context.Context, valuer liquidityValuer, kind model.PoolKind, pools []model.Pool) ([]model.Pool, error) {
	reserves := make([]*big.Int, len(pools))
	switch kind {
	case model.PoolKindConstantProduct:
		pairABI, err := dex.PairABI()
		if err != nil {
			return nil, err
		}
		targets := make([]common.Address, len(pools))
		for i, pool := range pools {
			targets[i] = common.HexToAddress(pool.Address)
		}
		results, err := r.chain.Multicall(ctx, targets, pairABI, "getReserves", nil, false)
		if err != nil {
			return nil, err
		}
		for i, pool := range pools {
			if len(results[i]) < 2 {
				continue
			}
			side := 1
			if valuer.quoteToken(pool) == pool.Token0 {
				side = 0
			}
			if v, err := dex.AsBigInt(results[i][side]); err == nil {
				reserves[i] = v
			}
		}
	case model.PoolKindConcentrated:
		erc20, err := dex.ERC20ABI()
		if err != nil {
			return nil, err
		}
		targets := make([]common.Address, len(pools))
		args := make([]interface{}, len(pools))
		for i, pool := range pools {
			targets[i] = common.HexToAddress(valuer.quoteToken(pool))
			args[i] = common.HexToAddress(pool.Address)
		}
		results, err := r.chain.Multicall(ctx, targets, erc20, "balanceOf", args, true)
		if err != nil {
			return nil, err
		}
		for i := range pools {
			if len(results[i]) == 0 {
				continue
			}
			if v, err := dex.AsBigInt(results[i][0]); err == nil {
				reserves[i] = v
			}
		}
	default:
		return nil, fmt.Errorf("no liquidity reader for pool kind %s", kind)
	}

	out := make([]model.Pool, len(pools))
	for i, pool := range pools {
		liquidity := valuer.usd(pool, reserves[i])
		pool.Liquidity = &liquidity
		pool.UpdatedAtBlock = valuer.head
		out[i] = pool
	}
	return out, nil
}

type liquidityValuer struct {
	universe dex.Universe
	decimals map[string]model.Token
	prices   map[string]float64
	head     uint64
}

// quoteToken is the stable side of a pool, otherwise its wrapped native side.
func (v liquidityValuer) quoteToken(pool model.Pool) string {
	switch {
	case v.universe.IsStable(pool.Token1):
		return pool.Token1
	case v.universe.IsStable(pool.Token0):
		return pool.Token0
	case pool.Token1 == v.universe.WrappedNative():
		return pool.Token1
	default:
		return pool.Token0
	}
}

func (v liquidityValuer) usd(pool model.Pool, reserve *big.Int) float64 {
	if reserve == nil || reserve.Sign() <= 0 {
		return 0
	}
	quote := v.quoteToken(pool)
	token, ok := v.decimals[quote]
	if !ok {
		return 0
	}
	units := decimal.NewFromBigInt(reserve, -int32(token.Decimals))
	return units.Mul(decimal.NewFromFloat(v.prices[quote])).Mul(decimal.NewFromInt(2)).InexactFloat64()
}
