package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/simstreet/simstreet/internal/models"
)

// CreateStock inserts a new stock and its first price history entry in one
// transaction. The opening price is fixed to the initial price.
func (db *DB) CreateStock(ctx context.Context, ticker, name string, price float64) (*models.Stock, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stock := &models.Stock{}
	err = tx.QueryRow(ctx,
		"INSERT INTO stocks (ticker, name, price, opening_price) VALUES ($1, $2, $3, $3) RETURNING id, ticker, name, price, opening_price, created_at",
		ticker, name, price).Scan(
		&stock.ID, &stock.Ticker, &stock.Name, &stock.Price, &stock.OpeningPrice, &stock.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTicker
		}
		return nil, fmt.Errorf("failed to create stock: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO price_history (stock_id, price) VALUES ($1, $2)",
		stock.ID, price)
	if err != nil {
		return nil, fmt.Errorf("failed to write initial price history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stock, nil
}

// GetStock retrieves a stock by id
func (db *DB) GetStock(ctx context.Context, stockID int) (*models.Stock, error) {
	stock := &models.Stock{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, ticker, name, price, opening_price, created_at FROM stocks WHERE id = $1",
		stockID).Scan(&stock.ID, &stock.Ticker, &stock.Name, &stock.Price, &stock.OpeningPrice, &stock.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return stock, nil
}

// GetStockByTicker retrieves a stock by its ticker symbol
func (db *DB) GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error) {
	stock := &models.Stock{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, ticker, name, price, opening_price, created_at FROM stocks WHERE ticker = $1",
		ticker).Scan(&stock.ID, &stock.Ticker, &stock.Name, &stock.Price, &stock.OpeningPrice, &stock.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return stock, nil
}

// ListStocks retrieves all stocks ordered by ticker
func (db *DB) ListStocks(ctx context.Context) ([]models.Stock, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, ticker, name, price, opening_price, created_at FROM stocks ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	defer rows.Close()

	var stocks []models.Stock
	for rows.Next() {
		var s models.Stock
		if err := rows.Scan(&s.ID, &s.Ticker, &s.Name, &s.Price, &s.OpeningPrice, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// UpdatePrice sets a stock's current price and appends the matching price
// history entry in one transaction, so history never diverges from the
// current price. Returns the updated stock.
func (db *DB) UpdatePrice(ctx context.Context, stockID int, newPrice float64) (*models.Stock, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stock := &models.Stock{}
	err = tx.QueryRow(ctx,
		"UPDATE stocks SET price = $1 WHERE id = $2 RETURNING id, ticker, name, price, opening_price, created_at",
		newPrice, stockID).Scan(
		&stock.ID, &stock.Ticker, &stock.Name, &stock.Price, &stock.OpeningPrice, &stock.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to update price: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO price_history (stock_id, price) VALUES ($1, $2)",
		stockID, newPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to append price history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stock, nil
}

// DeleteStock removes a stock. Price history, trades and holdings that
// reference it are retained; reads must tolerate the dangling reference.
func (db *DB) DeleteStock(ctx context.Context, stockID int) error {
	tag, err := db.Pool.Exec(ctx, "DELETE FROM stocks WHERE id = $1", stockID)
	if err != nil {
		return fmt.Errorf("failed to delete stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

// GetPriceHistory retrieves a stock's price history, oldest first.
func (db *DB) GetPriceHistory(ctx context.Context, stockID int) ([]models.PriceHistoryEntry, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, stock_id, price, created_at FROM price_history WHERE stock_id = $1 ORDER BY created_at ASC, id ASC",
		stockID)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	var entries []models.PriceHistoryEntry
	for rows.Next() {
		var e models.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.StockID, &e.Price, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
