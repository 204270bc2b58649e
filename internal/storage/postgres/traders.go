package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"traderScope/internal/model"
)

// EnsureTrader returns the trader for address, creating it when absent.
func (s *Store) EnsureTrader(ctx context.Context, address string) (model.Trader, error) {
	trader := model.Trader{Address: address}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO traders (address) VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id
	`, address).Scan(&trader.ID)
	if err != nil {
		return model.Trader{}, fmt.Errorf("ensure trader %s: %w", address, err)
	}
	return trader, nil
}

const transactionColumns = `id, trader_id, hash, block_number, transaction_index, from_address, to_address,
	value, logs, internal_txs, gas_used, is_failed, block_timestamp`

// LastTransaction returns the newest stored transaction of a trader.
func (s *Store) LastTransaction(ctx context.Context, traderID int64) (model.Transaction, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE trader_id=$1
		ORDER BY block_number DESC, transaction_index DESC
		LIMIT 1
	`, traderID)
	if err != nil {
		return model.Transaction{}, false, fmt.Errorf("last transaction: %w", err)
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return model.Transaction{}, false, err
	}
	if len(txs) == 0 {
		return model.Transaction{}, false, nil
	}
	return txs[0], true, nil
}

// InsertTransactions stores raw transactions. A hash already stored for the trader is skipped.
func (s *Store) InsertTransactions(ctx context.Context, traderID int64, txs []model.Transaction) error {
	batch := &pgx.Batch{}
	for _, tx := range txs {
		logs, err := json.Marshal(nonNilLogs(tx.Logs))
		if err != nil {
			return fmt.Errorf("marshal logs of %s: %w", tx.Hash, err)
		}
		internal, err := json.Marshal(nonNilInternal(tx.InternalTxs))
		if err != nil {
			return fmt.Errorf("marshal internal txs of %s: %w", tx.Hash, err)
		}
		batch.Queue(`
			INSERT INTO transactions (
				trader_id, hash, block_number, transaction_index, from_address, to_address,
				value, logs, internal_txs, gas_used, is_failed, block_timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12)
			ON CONFLICT (trader_id, hash) DO NOTHING
		`,
			traderID,
			tx.Hash,
			int64(tx.BlockNumber),
			int64(tx.TransactionIndex),
			tx.From,
			tx.To,
			orZero(tx.Value),
			logs,
			internal,
			orZero(tx.GasUsed),
			tx.IsFailed,
			tx.Timestamp,
		)
	}
	if err := sendBatch(ctx, s.pool, batch); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

// UnprocessedTransactions returns transactions without an operation, ordered
// by (block_number, transaction_index).
func (s *Store) UnprocessedTransactions(ctx context.Context, traderID int64) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixed("t.", transactionColumns)+` FROM transactions t
		LEFT JOIN operations o ON o.tx_id = t.id
		WHERE t.trader_id=$1 AND o.tx_id IS NULL
		ORDER BY t.block_number, t.transaction_index
	`, traderID)
	if err != nil {
		return nil, fmt.Errorf("unprocessed transactions: %w", err)
	}
	return scanTransactions(rows)
}

// DeleteTransactions removes every transaction of a trader. Operations cascade.
func (s *Store) DeleteTransactions(ctx context.Context, traderID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE trader_id=$1`, traderID)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		var (
			tx             model.Transaction
			block, index   int64
			logs, internal []byte
		)
		if err := rows.Scan(&tx.ID, &tx.TraderID, &tx.Hash, &block, &index, &tx.From, &tx.To,
			&tx.Value, &logs, &internal, &tx.GasUsed, &tx.IsFailed, &tx.Timestamp); err != nil {
			return nil, err
		}
		tx.BlockNumber, tx.TransactionIndex = uint64(block), uint64(index)
		if err := json.Unmarshal(logs, &tx.Logs); err != nil {
			return nil, fmt.Errorf("decode logs of %s: %w", tx.Hash, err)
		}
		if err := json.Unmarshal(internal, &tx.InternalTxs); err != nil {
			return nil, fmt.Errorf("decode internal txs of %s: %w", tx.Hash, err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

const operationColumns = `tx_id, trader_id, tx_hash, block_number, transaction_index, transfers, portfolio, operation_type, gas_paid`

// InsertOperations stores operations in one transaction.
func (s *Store) InsertOperations(ctx context.Context, ops []model.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, op := range ops {
			transfers, err := json.Marshal(op.Transfers)
			if err != nil {
				return fmt.Errorf("marshal transfers of %s: %w", op.TxHash, err)
			}
			portfolio, err := json.Marshal(op.Portfolio)
			if err != nil {
				return fmt.Errorf("marshal portfolio of %s: %w", op.TxHash, err)
			}
			batch.Queue(`
				INSERT INTO operations (`+operationColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9)
			`,
				op.TxID,
				op.TraderID,
				op.TxHash,
				int64(op.BlockNumber),
				int64(op.TransactionIndex),
				transfers,
				portfolio,
				string(op.Type),
				orZero(op.GasPaid),
			)
		}
		if err := sendBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("insert operations: %w", err)
		}
		return nil
	})
}

// LastOperation returns the newest operation of a trader.
func (s *Store) LastOperation(ctx context.Context, traderID int64) (model.Operation, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+operationColumns+` FROM operations
		WHERE trader_id=$1
		ORDER BY block_number DESC, transaction_index DESC
		LIMIT 1
	`, traderID)
	if err != nil {
		return model.Operation{}, false, fmt.Errorf("last operation: %w", err)
	}
	ops, err := scanOperations(rows)
	if err != nil {
		return model.Operation{}, false, err
	}
	if len(ops) == 0 {
		return model.Operation{}, false, nil
	}
	return ops[0], true, nil
}

// LastOperationBefore returns the newest operation ordered strictly before (block, index).
func (s *Store) LastOperationBefore(ctx context.Context, traderID int64, block, index uint64) (model.Operation, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+operationColumns+` FROM operations
		WHERE trader_id=$1 AND (block_number, transaction_index) < ($2, $3)
		ORDER BY block_number DESC, transaction_index DESC
		LIMIT 1
	`, traderID, int64(block), int64(index))
	if err != nil {
		return model.Operation{}, false, fmt.Errorf("previous operation: %w", err)
	}
	ops, err := scanOperations(rows)
	if err != nil {
		return model.Operation{}, false, err
	}
	if len(ops) == 0 {
		return model.Operation{}, false, nil
	}
	return ops[0], true, nil
}

// Operations returns the operations of a trader at or after fromBlock in ledger order.
func (s *Store) Operations(ctx context.Context, traderID int64, fromBlock uint64) ([]model.Operation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+operationColumns+` FROM operations
		WHERE trader_id=$1 AND block_number >= $2
		ORDER BY block_number, transaction_index
	`, traderID, int64(fromBlock))
	if err != nil {
		return nil, fmt.Errorf("operations: %w", err)
	}
	return scanOperations(rows)
}

func scanOperations(rows pgx.Rows) ([]model.Operation, error) {
	defer rows.Close()
	var out []model.Operation
	for rows.Next() {
		var (
			op                   model.Operation
			block, index         int64
			transfers, portfolio []byte
			opType               string
		)
		if err := rows.Scan(&op.TxID, &op.TraderID, &op.TxHash, &block, &index,
			&transfers, &portfolio, &opType, &op.GasPaid); err != nil {
			return nil, err
		}
		op.BlockNumber, op.TransactionIndex = uint64(block), uint64(index)
		op.Type = model.OperationType(opType)
		if err := json.Unmarshal(transfers, &op.Transfers); err != nil {
			return nil, fmt.Errorf("decode transfers of %s: %w", op.TxHash, err)
		}
		if err := json.Unmarshal(portfolio, &op.Portfolio); err != nil {
			return nil, fmt.Errorf("decode portfolio of %s: %w", op.TxHash, err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// SaveSummary stores the valued portfolio and fund report of a trader.
func (s *Store) SaveSummary(ctx context.Context, summary model.TraderSummary) error {
	portfolio, err := json.Marshal(summary.Portfolio)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	var (
		report     []byte
		unrealized *float64
	)
	if summary.Report != nil {
		if report, err = json.Marshal(summary.Report); err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		v := summary.Report.UnrealizedPnl.InexactFloat64()
		unrealized = &v
	}
	updatedAt := summary.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE traders SET tpv=$2, unrealized_pnl=$3, portfolio=$4::jsonb, report=$5::jsonb, updated_at=$6
		WHERE id=$1
	`, summary.ID, summary.TPV, unrealized, portfolio, report, updatedAt)
	if err != nil {
		return fmt.Errorf("save summary of %s: %w", summary.Address, err)
	}
	return nil
}

const summaryColumns = `id, address, tpv, portfolio, report, updated_at`

// Summary loads the stored summary of a trader.
func (s *Store) Summary(ctx context.Context, address string) (model.TraderSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+summaryColumns+` FROM traders WHERE address=$1`, address)
	if err != nil {
		return model.TraderSummary{}, fmt.Errorf("load summary: %w", err)
	}
	out, err := scanSummaries(rows)
	if err != nil {
		return model.TraderSummary{}, err
	}
	if len(out) == 0 {
		return model.TraderSummary{}, fmt.Errorf("trader %s: %w", address, ErrNotFound)
	}
	return out[0], nil
}

// Top returns up to n analyzed traders ranked by unrealized PnL.
func (s *Store) Top(ctx context.Context, n int) ([]model.TraderSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+summaryColumns+` FROM traders
		WHERE report IS NOT NULL
		ORDER BY unrealized_pnl DESC NULLS LAST, address
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("top traders: %w", err)
	}
	return scanSummaries(rows)
}

func scanSummaries(rows pgx.Rows) ([]model.TraderSummary, error) {
	defer rows.Close()
	var out []model.TraderSummary
	for rows.Next() {
		var (
			summary   model.TraderSummary
			tpv       *float64
			portfolio []byte
			report    []byte
			updatedAt *time.Time
		)
		if err := rows.Scan(&summary.ID, &summary.Address, &tpv, &portfolio, &report, &updatedAt); err != nil {
			return nil, err
		}
		if tpv != nil {
			summary.TPV = *tpv
		}
		if updatedAt != nil {
			summary.UpdatedAt = *updatedAt
		}
		if len(portfolio) > 0 {
			if err := json.Unmarshal(portfolio, &summary.Portfolio); err != nil {
				return nil, fmt.Errorf("decode portfolio of %s: %w", summary.Address, err)
			}
		}
		if len(report) > 0 {
			summary.Report = &model.FundReport{}
			if err := json.Unmarshal(report, summary.Report); err != nil {
				return nil, fmt.Errorf("decode report of %s: %w", summary.Address, err)
			}
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func prefixed(prefix, columns string) string {
	var out []byte
	start := true
	for i := 0; i < len(columns); i++ {
		c := columns[i]
		if start && c != ' ' && c != '\n' && c != '\t' {
			out = append(out, prefix...)
			start = false
		}
		if c == ',' {
			start = true
		}
		out = append(out, c)
	}
	return string(out)
}

func nonNilLogs(logs []model.LogRecord) []model.LogRecord {
	if logs == nil {
		return []model.LogRecord{}
	}
	return logs
}

func nonNilInternal(txs []model.InternalTx) []model.InternalTx {
	if txs == nil {
		return []model.InternalTx{}
	}
	return txs
}
