package dex

import (
	"traderScope/internal/model"
)

// CurrentTokenPool is a stored canonical mapping with its pool.
type CurrentTokenPool struct {
	model.TokenPool
	Pool model.Pool
}

// CanonicalPlan lists the canonical pool changes of one selection run.
type CanonicalPlan struct {
	Replacements []model.TokenPool
	Additions    []model.TokenPool
}

// PlanCanonicalPools walks candidate pools in descending liquidity and decides,
// per target token, whether a stored mapping is replaced or a missing one
// added. A mapping is replaced only by a different pool with strictly higher
// liquidity that is not a lower quote tier (stable beats wrapped native) and,
// within the same tier, not a concentrated pool replacing a constant-product one.
func PlanCanonicalPools(u Universe, candidates []model.Pool, current map[string]CurrentTokenPool, tokens map[string]model.Token) CanonicalPlan {
	var plan CanonicalPlan
	decided := make(map[string]struct{})

	for _, pool := range candidates {
		token0, ok0 := tokens[pool.Token0]
		token1, ok1 := tokens[pool.Token1]
		if !ok0 || !ok1 {
			continue
		}
		target := u.TargetToken(pool.Token0, pool.Token1)
		if _, done := decided[target]; done {
			continue
		}

		mapping := model.TokenPool{
			Token:    target,
			PoolID:   pool.Address,
			Token0:   pool.Token0,
			Token1:   pool.Token1,
			Decimal0: token0.Decimals,
			Decimal1: token1.Decimals,
		}

		existing, ok := current[target]
		if !ok {
			plan.Additions = append(plan.Additions, mapping)
			decided[target] = struct{}{}
			continue
		}
		if shouldReplace(u, existing.Pool, pool) {
			plan.Replacements = append(plan.Replacements, mapping)
			decided[target] = struct{}{}
		}
	}

	return plan
}

func shouldReplace(u Universe, old, candidate model.Pool) bool {
	if old.Address == candidate.Address {
		return false
	}
	if liquidityOf(candidate) <= liquidityOf(old) {
		return false
	}
	oldUsd := u.IsUsdPool(old.Token0, old.Token1)
	newUsd := u.IsUsdPool(candidate.Token0, candidate.Token1)
	if oldUsd && !newUsd {
		return false
	}
	if oldUsd == newUsd && old.Kind == model.PoolKindConstantProduct && candidate.Kind == model.PoolKindConcentrated {
		return false
	}
	return true
}

func liquidityOf(p model.Pool) float64 {
	if p.Liquidity == nil {
		return 0
	}
	return *p.Liquidity
}
