// Package trader analyzes accounts: it brings the operation ledger up to date,
// values the current portfolio and computes the fund report.
package trader

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"traderScope/internal/dex"
	"traderScope/internal/fund"
	"traderScope/internal/model"
	"traderScope/internal/pricing"
)

// ErrNoAnchorPrices is returned when analysis runs before any anchor price was stored.
var ErrNoAnchorPrices = errors.New("no anchor prices stored")

// Store is the persistence analysis needs.
type Store interface {
	EnsureTrader(ctx context.Context, address string) (model.Trader, error)
	LastOperation(ctx context.Context, traderID int64) (model.Operation, bool, error)
	Operations(ctx context.Context, traderID int64, fromBlock uint64) ([]model.Operation, error)
	LatestPrices(ctx context.Context, tokens []string) (map[string]model.Price, error)
	FirstPriceBlock(ctx context.Context, token string) (uint64, bool, error)
	PriceHistory(ctx context.Context, tokens []string) (map[string][]model.Price, error)
	SaveSummary(ctx context.Context, summary model.TraderSummary) error
	Summary(ctx context.Context, address string) (model.TraderSummary, error)
	Top(ctx context.Context, n int) ([]model.TraderSummary, error)
}

// Ledger keeps the operations of an account up to date.
type Ledger interface {
	SyncTrader(ctx context.Context, trader model.Trader) error
}

// Options configures a Service.
type Options struct {
	Universe  dex.Universe
	Epsilon   float64
	Precision int32
	Logger    *zap.Logger
	Now       func() time.Time
}

// Service runs account analysis.
type Service struct {
	store  Store
	ledger Ledger
	opts   Options
	logger *zap.Logger
}

func NewService(store Store, ledger Ledger, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, ledger: ledger, opts: opts, logger: logger}
}

// Analyze syncs the account, computes its fund report from the first anchor
// price block onward and stores the resulting summary.
func (s *Service) Analyze(ctx context.Context, address string) (model.TraderSummary, error) {
	if !common.IsHexAddress(address) {
		return model.TraderSummary{}, fmt.Errorf("invalid address: %s", address)
	}
	address = strings.ToLower(address)

	trader, err := s.store.EnsureTrader(ctx, address)
	if err != nil {
		return model.TraderSummary{}, err
	}
	if err := s.ledger.SyncTrader(ctx, trader); err != nil {
		return model.TraderSummary{}, err
	}

	tpv, portfolio, err := s.CurrentValuation(ctx, trader)
	if err != nil {
		return model.TraderSummary{}, err
	}

	wrapped := s.opts.Universe.WrappedNative()
	first, ok, err := s.store.FirstPriceBlock(ctx, wrapped)
	if err != nil {
		return model.TraderSummary{}, err
	}
	if !ok {
		return model.TraderSummary{}, ErrNoAnchorPrices
	}
	ops, err := s.store.Operations(ctx, trader.ID, first)
	if err != nil {
		return model.TraderSummary{}, err
	}

	history, err := s.store.PriceHistory(ctx, pricedTokens(ops, wrapped))
	if err != nil {
		return model.TraderSummary{}, err
	}
	oracle, err := pricing.NewSeriesSet(history, s.opts.Universe.Stables(), wrapped)
	if err != nil {
		return model.TraderSummary{}, err
	}
	engine := fund.Engine{
		Oracle:    oracle,
		Epsilon:   s.opts.Epsilon,
		Precision: s.opts.Precision,
		Logger:    s.logger,
	}
	report, err := engine.Analyze(ops, tpv)
	if err != nil {
		return model.TraderSummary{}, fmt.Errorf("analyze %s: %w", address, err)
	}

	summary := model.TraderSummary{
		Trader:    trader,
		TPV:       tpv,
		Portfolio: portfolio,
		Report:    &report,
		UpdatedAt: s.opts.Now().UTC(),
	}
	if err := s.store.SaveSummary(ctx, summary); err != nil {
		return model.TraderSummary{}, err
	}
	s.logger.Info("trader analyzed",
		zap.String("account", address),
		zap.Int("operations", len(ops)),
		zap.Float64("tpv", tpv),
	)
	return summary, nil
}

// CurrentValuation prices the latest portfolio of an account with the newest
// stored price of each asset.
func (s *Service) CurrentValuation(ctx context.Context, trader model.Trader) (float64, model.PricedPortfolio, error) {
	last, ok, err := s.store.LastOperation(ctx, trader.ID)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, model.PricedPortfolio{}, nil
	}

	wrapped := s.opts.Universe.WrappedNative()
	tokens := make([]string, 0, len(last.Portfolio))
	for token := range last.Portfolio {
		if token == model.NativeToken {
			token = wrapped
		}
		tokens = append(tokens, token)
	}
	latest, err := s.store.LatestPrices(ctx, tokens)
	if err != nil {
		return 0, nil, err
	}

	return fund.Value(last.Portfolio, func(token string) (float64, bool) {
		if token == model.NativeToken {
			token = wrapped
		}
		if s.opts.Universe.IsStable(token) {
			return 1, true
		}
		p, ok := latest[token]
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	})
}

// Report returns the stored summary of an account.
func (s *Service) Report(ctx context.Context, address string) (model.TraderSummary, error) {
	return s.store.Summary(ctx, strings.ToLower(address))
}

// Top returns the n accounts with the highest unrealized PnL.
func (s *Service) Top(ctx context.Context, n int) ([]model.TraderSummary, error) {
	if n < 1 {
		return nil, fmt.Errorf("count must be positive")
	}
	return s.store.Top(ctx, n)
}

// pricedTokens lists every asset held by ops, the native currency as wrapped.
func pricedTokens(ops []model.Operation, wrapped string) []string {
	set := map[string]struct{}{wrapped: {}}
	out := []string{wrapped}
	for _, op := range ops {
		for token := range op.Portfolio {
			if token == model.NativeToken {
				continue
			}
			if _, ok := set[token]; ok {
				continue
			}
			set[token] = struct{}{}
			out = append(out, token)
		}
	}
	return out
}
