package indexer

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"traderScope/internal/dex"
	"traderScope/internal/model"
)

// SyncCanonical chooses the canonical pricing pool of every token among the
// most liquid pools.
func (r *Runner) SyncCanonical(ctx context.Context) error {
	candidates, err := r.store.BestPools(ctx, r.opts.CanonicalPoolLimit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	mappings, err := r.store.TokenPools(ctx)
	if err != nil {
		return err
	}
	poolIDs := lo.Uniq(lo.Map(mappings, func(tp model.TokenPool, _ int) string { return tp.PoolID }))
	pools, err := r.store.PoolsByID(ctx, poolIDs)
	if err != nil {
		return err
	}
	current := make(map[string]dex.CurrentTokenPool, len(mappings))
	for _, tp := range mappings {
		current[tp.Token] = dex.CurrentTokenPool{TokenPool: tp, Pool: pools[tp.PoolID]}
	}

	addresses := lo.Uniq(lo.FlatMap(candidates, func(p model.Pool, _ int) []string { return []string{p.Token0, p.Token1} }))
	tokens, err := r.store.Tokens(ctx, addresses)
	if err != nil {
		return err
	}

	plan := dex.PlanCanonicalPools(r.opts.Universe, candidates, current, tokens)
	if err := r.store.SaveTokenPools(ctx, plan.Replacements, plan.Additions); err != nil {
		return err
	}
	r.logger.Info("canonical pools synced",
		zap.Int("candidates", len(candidates)),
		zap.Int("replaced", len(plan.Replacements)),
		zap.Int("added", len(plan.Additions)),
	)
	return nil
}
