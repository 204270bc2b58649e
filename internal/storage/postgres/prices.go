package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"traderScope/internal/model"
)

// PricedTokenPools returns canonical pools joined with pool kind, creation
// block, and the last stored price block of the token.
func (s *Store) PricedTokenPools(ctx context.Context) ([]model.PricedTokenPool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tp.token, tp.pool_id, tp.token0, tp.token1, tp.decimal0, tp.decimal1,
			p.kind, p.dex_name, p.created_at_block,
			(SELECT max(pr.block_number) FROM prices pr WHERE pr.token = tp.token)
		FROM token_pools tp
		JOIN pools p ON p.address = tp.pool_id
		ORDER BY tp.token
	`)
	if err != nil {
		return nil, fmt.Errorf("priced token pools: %w", err)
	}
	defer rows.Close()

	var out []model.PricedTokenPool
	for rows.Next() {
		var (
			tp        model.PricedTokenPool
			d0, d1    int16
			kind      int16
			created   int64
			lastBlock *int64
		)
		if err := rows.Scan(&tp.Token, &tp.PoolID, &tp.Token0, &tp.Token1, &d0, &d1,
			&kind, &tp.DexName, &created, &lastBlock); err != nil {
			return nil, err
		}
		tp.Decimal0, tp.Decimal1 = uint8(d0), uint8(d1)
		tp.Kind = model.PoolKind(kind)
		tp.CreatedAtBlock = uint64(created)
		if lastBlock != nil {
			v := uint64(*lastBlock)
			tp.LastPriceBlock = &v
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

// InsertPrices stores price points. A point already stored for (token, block) is kept.
func (s *Store) InsertPrices(ctx context.Context, prices []model.Price) error {
	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue(`
			INSERT INTO prices (token, block_number, price)
			VALUES ($1, $2, $3)
			ON CONFLICT (token, block_number) DO NOTHING
		`, p.Token, int64(p.BlockNumber), p.Price)
	}
	if err := sendBatch(ctx, s.pool, batch); err != nil {
		return fmt.Errorf("insert prices: %w", err)
	}
	return nil
}

// LastPriceBlock returns the newest stored price block of a token.
func (s *Store) LastPriceBlock(ctx context.Context, token string) (uint64, bool, error) {
	return s.priceBlock(ctx, `SELECT max(block_number) FROM prices WHERE token=$1`, token)
}

// FirstPriceBlock returns the oldest stored price block of a token.
func (s *Store) FirstPriceBlock(ctx context.Context, token string) (uint64, bool, error) {
	return s.priceBlock(ctx, `SELECT min(block_number) FROM prices WHERE token=$1`, token)
}

func (s *Store) priceBlock(ctx context.Context, query, token string) (uint64, bool, error) {
	var block *int64
	if err := s.pool.QueryRow(ctx, query, token).Scan(&block); err != nil {
		return 0, false, fmt.Errorf("price block of %s: %w", token, err)
	}
	if block == nil {
		return 0, false, nil
	}
	return uint64(*block), true, nil
}

// PriceSeries returns the prices of a token within [from, to], ascending by block.
func (s *Store) PriceSeries(ctx context.Context, token string, from, to uint64) ([]model.Price, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token, block_number, price FROM prices
		WHERE token=$1 AND block_number BETWEEN $2 AND $3
		ORDER BY block_number
	`, token, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("price series of %s: %w", token, err)
	}
	return scanPrices(rows)
}

// PriceHistory returns the full ascending series of every given token.
func (s *Store) PriceHistory(ctx context.Context, tokens []string) (map[string][]model.Price, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token, block_number, price FROM prices
		WHERE token = ANY($1)
		ORDER BY token, block_number
	`, tokens)
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	prices, err := scanPrices(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]model.Price, len(tokens))
	for _, p := range prices {
		out[p.Token] = append(out[p.Token], p)
	}
	return out, nil
}

// LatestPrices returns the newest price of each given token.
func (s *Store) LatestPrices(ctx context.Context, tokens []string) (map[string]model.Price, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (token) token, block_number, price FROM prices
		WHERE token = ANY($1)
		ORDER BY token, block_number DESC
	`, tokens)
	if err != nil {
		return nil, fmt.Errorf("latest prices: %w", err)
	}
	prices, err := scanPrices(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Price, len(prices))
	for _, p := range prices {
		out[p.Token] = p
	}
	return out, nil
}

func scanPrices(rows pgx.Rows) ([]model.Price, error) {
	defer rows.Close()
	var out []model.Price
	for rows.Next() {
		var (
			p     model.Price
			block int64
		)
		if err := rows.Scan(&p.Token, &block, &p.Price); err != nil {
			return nil, err
		}
		p.BlockNumber = uint64(block)
		out = append(out, p)
	}
	return out, rows.Err()
}
