package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"go.uber.org/zap"
)

const (
	tradesTable = "trades"
	ordersTable = "orders"
	marksTable  = "marks"
)

// BacktestState keeps the records of finished runs in an in-memory DuckDB database
// and exports them as Parquet files.
type BacktestState struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

func NewBacktestState(logger *logger.Logger) (*BacktestState, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBacktestWriteFailed, "failed to open database", err)
	}

	return &BacktestState{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the tables for trades, orders and equity marks.
func (b *BacktestState) Initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			run_id TEXT,
			id INTEGER,
			order_id INTEGER,
			side TEXT,
			size INTEGER,
			tag TEXT,
			entry_bar INTEGER,
			entry_time TIMESTAMP,
			entry_price DOUBLE,
			entry_fee DOUBLE,
			stop_loss DOUBLE,
			take_profit DOUBLE,
			trailing_offset DOUBLE,
			exit_bar INTEGER,
			exit_time TIMESTAMP,
			exit_price DOUBLE,
			exit_fee DOUBLE,
			exit_reason TEXT,
			pnl DOUBLE,
			pnl_pct DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			run_id TEXT,
			id INTEGER,
			side TEXT,
			order_type TEXT,
			size DOUBLE,
			stop_loss DOUBLE,
			take_profit DOUBLE,
			trailing_offset DOUBLE,
			limit_price DOUBLE,
			stop_price DOUBLE,
			tag TEXT,
			close_trade_id INTEGER,
			close_position BOOLEAN,
			submitted_bar INTEGER,
			submitted_at TIMESTAMP,
			status TEXT,
			reason TEXT,
			message TEXT,
			filled_bar INTEGER,
			filled_price DOUBLE,
			filled_size INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS marks (
			run_id TEXT,
			bar INTEGER,
			time TIMESTAMP,
			close DOUBLE,
			cash DOUBLE,
			equity DOUBLE,
			drawdown_pct DOUBLE,
			position_size INTEGER
		)`,
	}

	for _, statement := range statements {
		if _, err := b.db.Exec(statement); err != nil {
			return errors.Wrap(errors.ErrCodeBacktestWriteFailed, "failed to create table", err)
		}
	}

	return nil
}

// Record stores the trade log, order log and equity curve of a run.
func (b *BacktestState) Record(stats *types.BacktestStats) error {
	if stats == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "backtest stats is nil")
	}

	tx, err := b.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeBacktestWriteFailed, "failed to begin transaction", err)
	}

	if err := b.insert(tx, stats); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestWriteFailed, "failed to commit transaction", err)
	}

	b.logger.Debug("Run recorded",
		zap.String("run_id", stats.ID),
		zap.Int("trades", len(stats.Trades)),
		zap.Int("orders", len(stats.Orders)),
		zap.Int("marks", len(stats.EquityCurve)),
	)

	return nil
}

func (b *BacktestState) insert(tx *sql.Tx, stats *types.BacktestStats) error {
	for _, trade := range stats.Trades {
		_, err := b.sq.
			Insert(tradesTable).
			Columns(
				"run_id", "id", "order_id", "side", "size", "tag",
				"entry_bar", "entry_time", "entry_price", "entry_fee",
				"stop_loss", "take_profit", "trailing_offset",
				"exit_bar", "exit_time", "exit_price", "exit_fee", "exit_reason", "pnl", "pnl_pct",
			).
			Values(
				stats.ID, trade.ID, trade.OrderID, string(trade.Side), trade.Size, trade.Tag,
				trade.EntryBar, trade.EntryTime, trade.EntryPrice, trade.EntryFee,
				nullable(trade.StopLoss), nullable(trade.TakeProfit), nullable(trade.TrailingOffset),
				trade.ExitBar, trade.ExitTime, trade.ExitPrice, trade.ExitFee, string(trade.ExitReason), trade.PnL, trade.PnLPct,
			).
			RunWith(tx).
			Exec()
		if err != nil {
			return errors.Wrapf(errors.ErrCodeBacktestWriteFailed, err, "failed to insert trade %d", trade.ID)
		}
	}

	for _, order := range stats.Orders {
		var closeTradeID any
		if order.CloseTradeID.IsSome() {
			closeTradeID = order.CloseTradeID.Unwrap()
		}

		_, err := b.sq.
			Insert(ordersTable).
			Columns(
				"run_id", "id", "side", "order_type", "size",
				"stop_loss", "take_profit", "trailing_offset", "limit_price", "stop_price",
				"tag", "close_trade_id", "close_position", "submitted_bar", "submitted_at",
				"status", "reason", "message", "filled_bar", "filled_price", "filled_size",
			).
			Values(
				stats.ID, order.ID, string(order.Side), string(order.Type), order.Size,
				nullable(order.StopLoss), nullable(order.TakeProfit), nullable(order.TrailingOffset),
				nullable(order.Limit), nullable(order.Stop),
				order.Tag, closeTradeID, order.ClosePosition, order.SubmittedBar, order.SubmittedAt,
				string(order.Status), order.Reason.Reason, order.Reason.Message,
				order.FilledBar, order.FilledPrice, order.FilledSize,
			).
			RunWith(tx).
			Exec()
		if err != nil {
			return errors.Wrapf(errors.ErrCodeBacktestWriteFailed, err, "failed to insert order %d", order.ID)
		}
	}

	for _, point := range stats.EquityCurve {
		_, err := b.sq.
			Insert(marksTable).
			Columns("run_id", "bar", "time", "close", "cash", "equity", "drawdown_pct", "position_size").
			Values(stats.ID, point.Bar, point.Time, point.Close, point.Cash, point.Equity, point.DrawdownPct, point.PositionSize).
			RunWith(tx).
			Exec()
		if err != nil {
			return errors.Wrapf(errors.ErrCodeBacktestWriteFailed, err, "failed to insert mark %d", point.Bar)
		}
	}

	return nil
}

// GetTrades returns the recorded trades of a run in exit order.
func (b *BacktestState) GetTrades(runID string) ([]types.Trade, error) {
	rows, err := b.sq.
		Select("id", "order_id", "side", "size", "tag", "entry_bar", "entry_time", "entry_price", "entry_fee",
			"exit_bar", "exit_time", "exit_price", "exit_fee", "exit_reason", "pnl", "pnl_pct").
		From(tradesTable).
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("exit_bar", "rowid").
		RunWith(b.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var trade types.Trade

		var side, reason string

		err := rows.Scan(
			&trade.ID, &trade.OrderID, &side, &trade.Size, &trade.Tag,
			&trade.EntryBar, &trade.EntryTime, &trade.EntryPrice, &trade.EntryFee,
			&trade.ExitBar, &trade.ExitTime, &trade.ExitPrice, &trade.ExitFee, &reason, &trade.PnL, &trade.PnLPct,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan trade", err)
		}

		trade.Side = types.PositionType(side)
		trade.ExitReason = types.ExitReason(reason)
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read trades", err)
	}

	return trades, nil
}

// Count returns the number of rows recorded for a run in table.
func (b *BacktestState) Count(table string, runID string) (int, error) {
	var count int

	err := b.sq.
		Select("COUNT(*)").
		From(table).
		Where(squirrel.Eq{"run_id": runID}).
		RunWith(b.db).
		QueryRow().
		Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to count %s", table)
	}

	return count, nil
}

// Write exports every table as Parquet and the stats as YAML into folder.
func (b *BacktestState) Write(folder string, stats *types.BacktestStats) error {
	if stats == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "backtest stats is nil")
	}

	if err := os.MkdirAll(folder, 0755); err != nil {
		return errors.Wrapf(errors.ErrCodeBacktestWriteFailed, err, "failed to create result folder %s", folder)
	}

	for _, table := range []string{tradesTable, ordersTable, marksTable} {
		path := filepath.Join(folder, table+".parquet")

		query := fmt.Sprintf("COPY (SELECT * FROM %s WHERE run_id = '%s') TO '%s' (FORMAT PARQUET)",
			table, escapeLiteral(stats.ID), escapeLiteral(path))
		if _, err := b.db.Exec(query); err != nil {
			return errors.Wrapf(errors.ErrCodeBacktestWriteFailed, err, "failed to write %s", path)
		}
	}

	if err := types.WriteBacktestStats(filepath.Join(folder, "stats.yaml"), *stats); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestWriteFailed, "failed to write stats", err)
	}

	b.logger.Debug("Results written", zap.String("folder", folder))

	return nil
}

// Cleanup removes every recorded row.
func (b *BacktestState) Cleanup() error {
	for _, table := range []string{tradesTable, ordersTable, marksTable} {
		if _, err := b.sq.Delete(table).RunWith(b.db).Exec(); err != nil {
			return errors.Wrapf(errors.ErrCodeBacktestWriteFailed, err, "failed to clean %s", table)
		}
	}

	return nil
}

// Close closes the database.
func (b *BacktestState) Close() error {
	return b.db.Close()
}

func nullable(value optional.Option[float64]) any {
	if value.IsNone() {
		return nil
	}

	return value.Unwrap()
}

func escapeLiteral(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
