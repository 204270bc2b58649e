package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"traderScope/internal/model"
)

const poolColumns = `address, dex_name, kind, token0, token1, fee, tick_spacing, created_at_block, updated_at_block, liquidity`

// InsertPools stores newly discovered pools. Existing pools are left untouched.
func (s *Store) InsertPools(ctx context.Context, pools []model.Pool) error {
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (`+poolColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (address) DO NOTHING
		`,
			pool.Address,
			pool.DexName,
			int16(pool.Kind),
			pool.Token0,
			pool.Token1,
			nullableFee(pool.Fee),
			pool.TickSpacing,
			int64(pool.CreatedAtBlock),
			int64(pool.UpdatedAtBlock),
			pool.Liquidity,
		)
	}
	if err := sendBatch(ctx, s.pool, batch); err != nil {
		return fmt.Errorf("insert pools: %w", err)
	}
	return nil
}

// LatestPoolBlock returns the creation block of the newest pool of a DEX.
func (s *Store) LatestPoolBlock(ctx context.Context, dexName string) (uint64, bool, error) {
	var block *int64
	err := s.pool.QueryRow(ctx, `SELECT max(created_at_block) FROM pools WHERE dex_name=$1`, dexName).Scan(&block)
	if err != nil {
		return 0, false, fmt.Errorf("latest pool block: %w", err)
	}
	if block == nil {
		return 0, false, nil
	}
	return uint64(*block), true, nil
}

// KnownPoolIDs returns the subset of ids already stored.
func (s *Store) KnownPoolIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	return s.addressSet(ctx, `SELECT address FROM pools WHERE address = ANY($1)`, ids)
}

// ScamTokens returns the blacklisted token addresses.
func (s *Store) ScamTokens(ctx context.Context) (map[string]struct{}, error) {
	return s.addressSet(ctx, `SELECT address FROM scam_tokens`)
}

// MissingTokens returns pool constituents without token metadata.
func (s *Store) MissingTokens(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT t FROM (
			SELECT token0 AS t FROM pools
			UNION
			SELECT token1 AS t FROM pools
		) constituents
		WHERE NOT EXISTS (SELECT 1 FROM tokens WHERE tokens.address = constituents.t)
		ORDER BY t
	`)
	if err != nil {
		return nil, fmt.Errorf("missing tokens: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// InsertTokens records token metadata. Recorded decimals are never rewritten.
func (s *Store) InsertTokens(ctx context.Context, tokens []model.Token) error {
	batch := &pgx.Batch{}
	for _, token := range tokens {
		batch.Queue(`
			INSERT INTO tokens (address, decimals, symbol, name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (address) DO NOTHING
		`, token.Address, int16(token.Decimals), token.Symbol, token.Name)
	}
	if err := sendBatch(ctx, s.pool, batch); err != nil {
		return fmt.Errorf("insert tokens: %w", err)
	}
	return nil
}

// Tokens loads metadata for the given addresses. Unknown addresses are absent from the map.
func (s *Store) Tokens(ctx context.Context, addresses []string) (map[string]model.Token, error) {
	rows, err := s.pool.Query(ctx, `SELECT address, decimals, symbol, name FROM tokens WHERE address = ANY($1)`, addresses)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	return scanTokens(rows)
}

// TrackedTokens returns every token that has a canonical pricing pool.
func (s *Store) TrackedTokens(ctx context.Context) (map[string]model.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.address, t.decimals, t.symbol, t.name
		FROM token_pools tp
		JOIN tokens t ON t.address = tp.token
	`)
	if err != nil {
		return nil, fmt.Errorf("load tracked tokens: %w", err)
	}
	return scanTokens(rows)
}

func scanTokens(rows pgx.Rows) (map[string]model.Token, error) {
	defer rows.Close()
	out := make(map[string]model.Token)
	for rows.Next() {
		var (
			token    model.Token
			decimals int16
		)
		if err := rows.Scan(&token.Address, &decimals, &token.Symbol, &token.Name); err != nil {
			return nil, err
		}
		token.Decimals = uint8(decimals)
		out[token.Address] = token
	}
	return out, rows.Err()
}

// DeletePoolsWithTokens removes pools that reference any of the tokens.
func (s *Store) DeletePoolsWithTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM pools WHERE token0 = ANY($1) OR token1 = ANY($1)`, tokens)
	if err != nil {
		return 0, fmt.Errorf("delete pools by token: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeletePools removes pools by address. Their canonical mappings cascade.
func (s *Store) DeletePools(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM pools WHERE address = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete pools: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PoolsForLiquidity returns pools quoted against one of quoteTokens whose
// liquidity was not refreshed at or after staleBefore.
func (s *Store) PoolsForLiquidity(ctx context.Context, quoteTokens []string, staleBefore uint64) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+` FROM pools
		WHERE (token0 = ANY($1) OR token1 = ANY($1)) AND updated_at_block < $2
		ORDER BY address
	`, quoteTokens, int64(staleBefore))
	if err != nil {
		return nil, fmt.Errorf("pools for liquidity: %w", err)
	}
	return scanPools(rows)
}

// UpdateLiquidity rewrites liquidity and updated block of a set of pools in one transaction.
func (s *Store) UpdateLiquidity(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, pool := range pools {
			batch.Queue(`UPDATE pools SET liquidity=$2, updated_at_block=$3 WHERE address=$1`,
				pool.Address, pool.Liquidity, int64(pool.UpdatedAtBlock))
		}
		if err := sendBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("update liquidity: %w", err)
		}
		return nil
	})
}

// BestPools returns up to limit pools ordered by liquidity, highest first.
func (s *Store) BestPools(ctx context.Context, limit int) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+` FROM pools
		WHERE liquidity IS NOT NULL AND liquidity > 0
		ORDER BY liquidity DESC, address
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("best pools: %w", err)
	}
	return scanPools(rows)
}

// PoolsByID loads pools by address. Unknown addresses are absent from the map.
func (s *Store) PoolsByID(ctx context.Context, ids []string) (map[string]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools WHERE address = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}
	pools, err := scanPools(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Pool, len(pools))
	for _, pool := range pools {
		out[pool.Address] = pool
	}
	return out, nil
}

// Pool loads one pool by address.
func (s *Store) Pool(ctx context.Context, id string) (model.Pool, error) {
	pools, err := s.PoolsByID(ctx, []string{id})
	if err != nil {
		return model.Pool{}, err
	}
	pool, ok := pools[id]
	if !ok {
		return model.Pool{}, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	return pool, nil
}

func scanPools(rows pgx.Rows) ([]model.Pool, error) {
	defer rows.Close()
	var out []model.Pool
	for rows.Next() {
		var (
			pool        model.Pool
			kind        int16
			fee         *int32
			tickSpacing *int32
			created     int64
			updated     int64
		)
		if err := rows.Scan(&pool.Address, &pool.DexName, &kind, &pool.Token0, &pool.Token1,
			&fee, &tickSpacing, &created, &updated, &pool.Liquidity); err != nil {
			return nil, err
		}
		pool.Kind = model.PoolKind(kind)
		if fee != nil {
			v := uint32(*fee)
			pool.Fee = &v
		}
		pool.TickSpacing = tickSpacing
		pool.CreatedAtBlock = uint64(created)
		pool.UpdatedAtBlock = uint64(updated)
		out = append(out, pool)
	}
	return out, rows.Err()
}

// TokenPools returns every canonical pricing pool mapping.
func (s *Store) TokenPools(ctx context.Context) ([]model.TokenPool, error) {
	rows, err := s.pool.Query(ctx, `SELECT token, pool_id, token0, token1, decimal0, decimal1 FROM token_pools ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("load token pools: %w", err)
	}
	defer rows.Close()

	var out []model.TokenPool
	for rows.Next() {
		var (
			tp     model.TokenPool
			d0, d1 int16
		)
		if err := rows.Scan(&tp.Token, &tp.PoolID, &tp.Token0, &tp.Token1, &d0, &d1); err != nil {
			return nil, err
		}
		tp.Decimal0, tp.Decimal1 = uint8(d0), uint8(d1)
		out = append(out, tp)
	}
	return out, rows.Err()
}

// SaveTokenPools replaces existing mappings and adds new ones in one transaction.
func (s *Store) SaveTokenPools(ctx context.Context, replacements, additions []model.TokenPool) error {
	if len(replacements) == 0 && len(additions) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, tp := range replacements {
			batch.Queue(`
				UPDATE token_pools SET pool_id=$2, token0=$3, token1=$4, decimal0=$5, decimal1=$6
				WHERE token=$1
			`, tp.Token, tp.PoolID, tp.Token0, tp.Token1, int16(tp.Decimal0), int16(tp.Decimal1))
		}
		for _, tp := range additions {
			batch.Queue(`
				INSERT INTO token_pools (token, pool_id, token0, token1, decimal0, decimal1)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (token) DO NOTHING
			`, tp.Token, tp.PoolID, tp.Token0, tp.Token1, int16(tp.Decimal0), int16(tp.Decimal1))
		}
		if err := sendBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("save token pools: %w", err)
		}
		return nil
	})
}

func (s *Store) addressSet(ctx context.Context, query string, args ...interface{}) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out[addr] = struct{}{}
	}
	return out, rows.Err()
}

func nullableFee(fee *uint32) *int32 {
	if fee == nil {
		return nil
	}
	v := int32(*fee)
	return &v
}
