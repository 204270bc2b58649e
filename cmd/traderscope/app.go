package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"traderScope/internal/chain"
	"traderScope/internal/config"
	"traderScope/internal/dex"
	"traderScope/internal/indexer"
	"traderScope/internal/ledger"
	"traderScope/internal/model"
	"traderScope/internal/pricing"
	"traderScope/internal/storage/postgres"
	"traderScope/internal/trader"
)

// app holds the components shared by every command.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	chain  *chain.Client
	store  *postgres.Store
}

// newApp loads configuration and connects to Postgres and, when withChain is
// set, to the RPC endpoints. The returned context is cancelled on SIGINT/SIGTERM.
func newApp(cmd *cobra.Command, withChain bool) (context.Context, *app, func(), error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.PostgresDSN == "" {
		return nil, nil, nil, fmt.Errorf("pg dsn is required")
	}
	if withChain {
		if err := cfg.Validate(); err != nil {
			return nil, nil, nil, err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{cfg: cfg, logger: logger}
	cleanup := func() {
		if a.chain != nil {
			a.chain.Close()
		}
		if a.store != nil {
			a.store.Close()
		}
		stop()
		_ = logger.Sync()
	}

	store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.store = store

	if withChain {
		client, err := chain.Dial(ctx, chain.Options{
			URLs:              cfg.RPCURLs,
			MulticallAddress:  common.HexToAddress(cfg.MulticallAddress),
			MaxRetries:        cfg.MaxRetries,
			RetryBackoff:      cfg.RetryBackoff,
			HTTPRetryMax:      cfg.HTTPRetryMax,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("connect rpc: %w", err)
		}
		a.chain = client
	}

	logger.Info("traderscope start",
		zap.String("command", cmd.Name()),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Int("endpoints", len(cfg.RPCURLs)),
		zap.String("pg_dsn", redactDSN(cfg.PostgresDSN)),
	)
	return ctx, a, cleanup, nil
}

func (a *app) universe() dex.Universe {
	return dex.NewUniverse(a.cfg.StableTokens, a.cfg.WrappedNative)
}

func (a *app) factories() ([]dex.Factory, error) {
	out := make([]dex.Factory, 0, len(a.cfg.Dexes))
	for _, d := range a.cfg.Dexes {
		kind, err := model.ParsePoolKind(d.Kind)
		if err != nil {
			return nil, fmt.Errorf("dex %s: %w", d.Name, err)
		}
		out = append(out, dex.Factory{
			Name:       d.Name,
			Kind:       kind,
			Address:    common.HexToAddress(d.Factory),
			StartBlock: d.StartBlock,
		})
	}
	return out, nil
}

func (a *app) indexer() (*indexer.Runner, error) {
	factories, err := a.factories()
	if err != nil {
		return nil, err
	}
	return indexer.NewRunner(a.chain, a.store, indexer.Options{
		Factories:          factories,
		Universe:           a.universe(),
		RangeSize:          a.cfg.LogRangeSize,
		RangeBatch:         a.cfg.LogRangeBatch,
		MaxRetries:         a.cfg.MaxRetries,
		RetryBackoff:       a.cfg.RetryBackoff,
		MulticallLimit:     a.cfg.MulticallLimit,
		LiquidityBatch:     a.cfg.LiquidityBatch,
		Concurrency:        a.cfg.PriceConcurrency,
		LiquidityMaxAge:    a.cfg.LiquidityMaxAgeBlocks(),
		CanonicalPoolLimit: a.cfg.CanonicalPoolLimit,
		Logger:             a.logger,
	}), nil
}

func (a *app) scheduler() *pricing.Scheduler {
	return pricing.NewScheduler(a.store, a.chain, pricing.Options{
		Universe:    a.universe(),
		AnchorPool:  a.cfg.AnchorPool,
		Step:        a.cfg.BlockStep(),
		Horizon:     a.cfg.HorizonBlocks(),
		BatchSize:   a.cfg.MulticallLimit,
		Concurrency: a.cfg.PriceConcurrency,
		Precision:   a.cfg.USDPrecision,
		Logger:      a.logger,
	})
}

func (a *app) traders() *trader.Service {
	ledgerService := ledger.NewService(a.chain, a.store, ledger.Options{
		Universe:         a.universe(),
		BatchSize:        a.cfg.BatchCallLimit,
		ReceiptStreams:   a.cfg.ReceiptStreams,
		RecoveryAttempts: a.cfg.RecoveryAttempts,
		Logger:           a.logger,
	})
	return trader.NewService(a.store, ledgerService, trader.Options{
		Universe:  a.universe(),
		Epsilon:   a.cfg.FlowEpsilon,
		Precision: a.cfg.USDPrecision,
		Logger:    a.logger,
	})
}
