package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"traderScope/internal/model"
)

// Series is an ascending price series of one token.
type Series struct {
	blocks []uint64
	prices []float64
}

// NewSeries builds a Series from stored prices, which must be ascending by block.
func NewSeries(points []model.Price) (Series, error) {
	s := Series{
		blocks: make([]uint64, 0, len(points)),
		prices: make([]float64, 0, len(points)),
	}
	for _, p := range points {
		if n := len(s.blocks); n > 0 && p.BlockNumber <= s.blocks[n-1] {
			return Series{}, fmt.Errorf("price series of %s not ascending at block %d", p.Token, p.BlockNumber)
		}
		v, err := decimal.NewFromString(p.Price)
		if err != nil {
			return Series{}, fmt.Errorf("parse price %q of %s: %w", p.Price, p.Token, err)
		}
		s.blocks = append(s.blocks, p.BlockNumber)
		s.prices = append(s.prices, v.InexactFloat64())
	}
	return s, nil
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.blocks) }

// At returns the most recent price at or before block.
func (s Series) At(block uint64) (float64, bool) {
	i := sort.Search(len(s.blocks), func(i int) bool { return s.blocks[i] > block })
	if i == 0 {
		return 0, false
	}
	return s.prices[i-1], true
}

// Nearest returns the price closest to block within distance blocks,
// preferring the earlier point on a tie.
func (s Series) Nearest(block, distance uint64) (float64, bool) {
	i := sort.Search(len(s.blocks), func(i int) bool { return s.blocks[i] >= block })
	best := -1
	var bestDist uint64
	if i > 0 {
		best, bestDist = i-1, block-s.blocks[i-1]
	}
	if i < len(s.blocks) {
		d := s.blocks[i] - block
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > distance {
		return 0, false
	}
	return s.prices[best], true
}

// SeriesSet is a price oracle over many tokens.
type SeriesSet struct {
	series  map[string]Series
	stables map[string]struct{}
	native  string
}

// NewSeriesSet builds an oracle. Stable tokens are always priced at 1 and
// the native currency is priced as nativeAs (the wrapped native token).
func NewSeriesSet(history map[string][]model.Price, stables []string, nativeAs string) (*SeriesSet, error) {
	set := &SeriesSet{
		series:  make(map[string]Series, len(history)),
		stables: make(map[string]struct{}, len(stables)),
		native:  nativeAs,
	}
	for _, s := range stables {
		set.stables[s] = struct{}{}
	}
	for token, points := range history {
		series, err := NewSeries(points)
		if err != nil {
			return nil, err
		}
		set.series[token] = series
	}
	return set, nil
}

// PriceAt returns the most recent USD price of token at or before block.
func (s *SeriesSet) PriceAt(token string, block uint64) (float64, bool) {
	if token == model.NativeToken {
		token = s.native
	}
	if _, ok := s.stables[token]; ok {
		return 1, true
	}
	series, ok := s.series[token]
	if !ok {
		return 0, false
	}
	return series.At(block)
}
