package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"traderScope/internal/chain"
	"traderScope/internal/dex"
	"traderScope/internal/model"
)

// History is the chain access transaction sync needs.
type History interface {
	AssetTransfers(ctx context.Context, address string, fromBlock uint64, categories []string) ([]chain.AssetTransfer, error)
	BatchCall(ctx context.Context, method string, params [][]interface{}) ([]json.RawMessage, error)
}

// TxStore is the persistence transaction sync needs.
type TxStore interface {
	LastTransaction(ctx context.Context, traderID int64) (model.Transaction, bool, error)
	InsertTransactions(ctx context.Context, traderID int64, txs []model.Transaction) error
}

// TxSyncer downloads new transactions of an account with their receipts.
type TxSyncer struct {
	history   History
	store     TxStore
	batchSize int
	streams   int
	logger    *zap.Logger
}

func NewTxSyncer(history History, store TxStore, batchSize, streams int, logger *zap.Logger) *TxSyncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize < 1 {
		batchSize = 1000
	}
	if streams < 1 {
		streams = 1
	}
	return &TxSyncer{history: history, store: store, batchSize: batchSize, streams: streams, logger: logger}
}

type receipt struct {
	From              string          `json:"from"`
	To                *string         `json:"to"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	GasUsed           *hexutil.Big    `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	Status            *hexutil.Uint64 `json:"status"`
	Logs              []types.Log     `json:"logs"`
}

// Sync stores every transaction of trader since its last stored block. It
// returns the number of transactions fetched.
func (s *TxSyncer) Sync(ctx context.Context, trader model.Trader) (int, error) {
	account := strings.ToLower(trader.Address)
	var fromBlock uint64
	last, ok, err := s.store.LastTransaction(ctx, trader.ID)
	if err != nil {
		return 0, err
	}
	if ok {
		fromBlock = last.BlockNumber
	}

	transfers, err := s.history.AssetTransfers(ctx, account, fromBlock,
		[]string{chain.CategoryExternal, chain.CategoryInternal, chain.CategoryERC20})
	if err != nil {
		return 0, fmt.Errorf("address history: %w", err)
	}
	txs := MergeTransfers(transfers)
	if len(txs) == 0 {
		return 0, nil
	}
	s.logger.Debug("syncing transactions",
		zap.String("account", account),
		zap.Uint64("block", fromBlock),
		zap.Int("size", len(txs)),
	)

	if err := s.attachReceipts(ctx, account, txs); err != nil {
		return 0, err
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Before(txs[j]) })

	for _, chunk := range lo.Chunk(txs, s.batchSize) {
		if err := s.store.InsertTransactions(ctx, trader.ID, chunk); err != nil {
			return 0, err
		}
	}
	return len(txs), nil
}

// attachReceipts fills receipt fields of txs, fetching them over several
// concurrent streams of batch calls.
func (s *TxSyncer) attachReceipts(ctx context.Context, account string, txs []model.Transaction) error {
	streamSize := (len(txs) + s.streams - 1) / s.streams
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(txs); start += streamSize {
		stream := txs[start:min(start+streamSize, len(txs))]
		g.Go(func() error {
			for _, batch := range lo.Chunk(stream, s.batchSize) {
				params := make([][]interface{}, len(batch))
				for i, tx := range batch {
					params[i] = []interface{}{tx.Hash}
				}
				raw, err := s.history.BatchCall(gctx, "eth_getTransactionReceipt", params)
				if err != nil {
					return fmt.Errorf("receipts: %w", err)
				}
				for i := range batch {
					if err := applyReceipt(&batch[i], raw[i], account); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func applyReceipt(tx *model.Transaction, raw json.RawMessage, account string) error {
	var r *receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("decode receipt %s: %w", tx.Hash, err)
	}
	if r == nil {
		return fmt.Errorf("receipt %s not found", tx.Hash)
	}

	tx.From = strings.ToLower(r.From)
	tx.To = ""
	if r.To != nil {
		tx.To = strings.ToLower(*r.To)
	}
	tx.TransactionIndex = uint64(r.TransactionIndex)
	tx.IsFailed = r.Status != nil && *r.Status == 0

	// Fee counts only for transactions the account sent; token transfers
	// emitted into someone else's transaction carry no fee.
	fee := new(big.Int)
	if tx.From == account && r.GasUsed != nil && r.EffectiveGasPrice != nil {
		fee.Mul(r.GasUsed.ToInt(), r.EffectiveGasPrice.ToInt())
	}
	tx.GasUsed = fee.String()

	tx.Logs = make([]model.LogRecord, 0, len(r.Logs))
	for _, log := range r.Logs {
		tx.Logs = append(tx.Logs, dex.LogRecordFromLog(log))
	}
	return nil
}

// MergeTransfers folds address-history entries into one transaction per
// hash. Internal transfers attach to their parent transaction.
func MergeTransfers(transfers []chain.AssetTransfer) []model.Transaction {
	index := make(map[string]int)
	var out []model.Transaction

	get := func(t chain.AssetTransfer) *model.Transaction {
		hash := strings.ToLower(t.Hash)
		if i, ok := index[hash]; ok {
			return &out[i]
		}
		index[hash] = len(out)
		out = append(out, model.Transaction{
			Hash:        hash,
			BlockNumber: uint64(t.BlockNum),
			Value:       "0",
			Timestamp:   t.Metadata.BlockTimestamp,
		})
		return &out[len(out)-1]
	}

	for _, t := range transfers {
		switch t.Category {
		case chain.CategoryExternal:
			tx := get(t)
			tx.Value = t.NativeValue().String()
		case chain.CategoryERC20:
			get(t)
		}
	}
	for _, t := range transfers {
		if t.Category != chain.CategoryInternal {
			continue
		}
		tx := get(t)
		tx.InternalTxs = append(tx.InternalTxs, model.InternalTx{
			From:  strings.ToLower(t.From),
			To:    strings.ToLower(t.To),
			Value: t.NativeValue().String(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out
}
