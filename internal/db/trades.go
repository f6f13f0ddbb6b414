package db

import (
	"context"
	"fmt"

	"github.com/simstreet/simstreet/internal/models"
)

// ExecuteBuy applies a buy atomically: a guarded balance decrement, the
// holding upsert (weighted-average cost) and the trade record are one
// transaction. The guard `balance >= total` in the UPDATE is what keeps two
// concurrent buys from both passing a stale balance check; if no row
// matches, the trade fails with ErrInsufficientBalance and nothing is
// written.
func (db *DB) ExecuteBuy(ctx context.Context, userID int, stock *models.Stock, amount float64, ref string) (*models.TradeRecord, error) {
	total := stock.Price * amount

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE users SET balance = balance - $1 WHERE id = $2 AND balance >= $1",
		total, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the user does not exist or the balance cannot cover the
		// trade. Distinguish so the caller gets an actionable error.
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check user existence: %w", err)
		}
		if !exists {
			return nil, ErrUserNotFound
		}
		return nil, ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO holdings (user_id, stock_id, ticker, amount, avg_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, stock_id) DO UPDATE SET
			avg_price = (holdings.avg_price * holdings.amount + EXCLUDED.avg_price * EXCLUDED.amount) / (holdings.amount + EXCLUDED.amount),
			amount = holdings.amount + EXCLUDED.amount`,
		userID, stock.ID, stock.Ticker, amount, stock.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to update holding: %w", err)
	}

	trade := &models.TradeRecord{}
	err = tx.QueryRow(ctx,
		"INSERT INTO trades (ref, user_id, stock_id, ticker, side, amount, trade_price, total) VALUES ($1, $2, $3, $4, 'buy', $5, $6, $7) RETURNING id, ref, user_id, stock_id, ticker, side, amount, trade_price, total, executed_at",
		ref, userID, stock.ID, stock.Ticker, amount, stock.Price, total).Scan(
		&trade.ID, &trade.Ref, &trade.UserID, &trade.StockID, &trade.Ticker, &trade.Side, &trade.Amount, &trade.TradePrice, &trade.Total, &trade.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return trade, nil
}

// ExecuteSell applies a sell atomically: a guarded holding decrement, the
// balance credit and the trade record are one transaction. The guard
// `amount >= $1` fails the trade with ErrInsufficientHoldings when the
// position does not cover the sale. Average cost is left unchanged; a
// position sold down to zero is removed.
func (db *DB) ExecuteSell(ctx context.Context, userID int, stock *models.Stock, amount float64, ref string) (*models.TradeRecord, error) {
	total := stock.Price * amount

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE holdings SET amount = amount - $1 WHERE user_id = $2 AND stock_id = $3 AND amount >= $1",
		amount, userID, stock.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInsufficientHoldings
	}

	_, err = tx.Exec(ctx,
		"DELETE FROM holdings WHERE user_id = $1 AND stock_id = $2 AND amount <= 0",
		userID, stock.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up empty holding: %w", err)
	}

	tag, err = tx.Exec(ctx,
		"UPDATE users SET balance = balance + $1 WHERE id = $2", total, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}

	trade := &models.TradeRecord{}
	err = tx.QueryRow(ctx,
		"INSERT INTO trades (ref, user_id, stock_id, ticker, side, amount, trade_price, total) VALUES ($1, $2, $3, $4, 'sell', $5, $6, $7) RETURNING id, ref, user_id, stock_id, ticker, side, amount, trade_price, total, executed_at",
		ref, userID, stock.ID, stock.Ticker, amount, stock.Price, total).Scan(
		&trade.ID, &trade.Ref, &trade.UserID, &trade.StockID, &trade.Ticker, &trade.Side, &trade.Amount, &trade.TradePrice, &trade.Total, &trade.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return trade, nil
}

// GetUserTrades retrieves all trades for a user, newest first.
func (db *DB) GetUserTrades(ctx context.Context, userID int) ([]models.TradeRecord, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, ref, user_id, stock_id, ticker, side, amount, trade_price, total, executed_at FROM trades WHERE user_id = $1 ORDER BY executed_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		if err := rows.Scan(&t.ID, &t.Ref, &t.UserID, &t.StockID, &t.Ticker, &t.Side, &t.Amount, &t.TradePrice, &t.Total, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
