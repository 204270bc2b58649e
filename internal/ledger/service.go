package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"traderScope/internal/dex"
	"traderScope/internal/model"
)

// Store is the persistence reconstruction needs.
type Store interface {
	TxStore
	UnprocessedTransactions(ctx context.Context, traderID int64) ([]model.Transaction, error)
	DeleteTransactions(ctx context.Context, traderID int64) (int64, error)
	LastOperationBefore(ctx context.Context, traderID int64, block, index uint64) (model.Operation, bool, error)
	InsertOperations(ctx context.Context, ops []model.Operation) error
	TrackedTokens(ctx context.Context) (map[string]model.Token, error)
	Tokens(ctx context.Context, addresses []string) (map[string]model.Token, error)
}

// Options configures a Service.
type Options struct {
	Universe         dex.Universe
	BatchSize        int
	ReceiptStreams   int
	RecoveryAttempts int
	Logger           *zap.Logger
}

// Service keeps the operation ledger of accounts up to date.
type Service struct {
	store    Store
	syncer   *TxSyncer
	universe dex.Universe
	attempts int
	batch    int
	logger   *zap.Logger
}

func NewService(history History, store Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = 1000
	}
	return &Service{
		store:    store,
		syncer:   NewTxSyncer(history, store, batchSize, opts.ReceiptStreams, logger),
		universe: opts.Universe,
		attempts: opts.RecoveryAttempts,
		batch:    batchSize,
		logger:   logger,
	}
}

// SyncTrader downloads new transactions and appends their operations. On a
// consistency violation every stored transaction of the trader is deleted and
// the sync starts over, up to the configured number of resets.
func (s *Service) SyncTrader(ctx context.Context, trader model.Trader) error {
	for reset := 0; ; reset++ {
		err := s.sync(ctx, trader)
		var violation *ConsistencyViolation
		if err == nil || !errors.As(err, &violation) || reset >= s.attempts {
			return err
		}
		s.logger.Error("ledger inconsistent, replaying from scratch",
			zap.String("account", trader.Address),
			zap.Uint64("block", violation.Block),
			zap.String("tx_hash", violation.TxHash),
			zap.String("token", violation.Token),
			zap.Int("attempt", reset+1),
		)
		if _, err := s.store.DeleteTransactions(ctx, trader.ID); err != nil {
			return fmt.Errorf("reset transactions of %s: %w", trader.Address, err)
		}
	}
}

func (s *Service) sync(ctx context.Context, trader model.Trader) error {
	fetched, err := s.syncer.Sync(ctx, trader)
	if err != nil {
		return fmt.Errorf("sync transactions of %s: %w", trader.Address, err)
	}
	ops, err := s.reconstruct(ctx, trader)
	if err != nil {
		return err
	}
	s.logger.Info("trader synced",
		zap.String("account", trader.Address),
		zap.Int("transactions", fetched),
		zap.Int("operations", ops),
	)
	return nil
}

func (s *Service) reconstruct(ctx context.Context, trader model.Trader) (int, error) {
	txs, err := s.store.UnprocessedTransactions(ctx, trader.ID)
	if err != nil {
		return 0, err
	}
	if len(txs) == 0 {
		return 0, nil
	}

	tracked, err := s.TrackedTokens(ctx)
	if err != nil {
		return 0, err
	}
	extractor, err := NewExtractor(trader.Address, s.universe.WrappedNative(), tracked)
	if err != nil {
		return 0, err
	}

	var prev model.Portfolio
	last, ok, err := s.store.LastOperationBefore(ctx, trader.ID, txs[0].BlockNumber, txs[0].TransactionIndex)
	if err != nil {
		return 0, err
	}
	if ok {
		prev = last.Portfolio
	}

	ops, err := Reconstruct(extractor, trader.ID, prev, txs)
	if err != nil {
		return 0, err
	}
	for _, chunk := range lo.Chunk(ops, s.batch) {
		if err := s.store.InsertOperations(ctx, chunk); err != nil {
			return 0, err
		}
	}
	return len(ops), nil
}

// TrackedTokens returns the assets whose Transfer events enter the ledger:
// every token with a canonical pool plus the stable and wrapped native assets.
func (s *Service) TrackedTokens(ctx context.Context) (map[string]model.Token, error) {
	tracked, err := s.store.TrackedTokens(ctx)
	if err != nil {
		return nil, err
	}
	if tracked == nil {
		tracked = make(map[string]model.Token)
	}
	base, err := s.store.Tokens(ctx, append(s.universe.Stables(), s.universe.WrappedNative()))
	if err != nil {
		return nil, err
	}
	for addr, token := range base {
		tracked[addr] = token
	}
	return tracked, nil
}
