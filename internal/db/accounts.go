package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/simstreet/simstreet/internal/models"
)

// CreateUser inserts a new user with a starting cash balance.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash, role string, startingCash float64) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, role, balance) VALUES ($1, $2, $3, $4) RETURNING id, username, password_hash, role, balance, created_at",
		username, passwordHash, role, startingCash).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q taken: %w", username, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, role, balance, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetBalance returns a user's current cash balance.
func (db *DB) GetBalance(ctx context.Context, userID int) (float64, error) {
	var balance float64
	err := db.Pool.QueryRow(ctx,
		"SELECT balance FROM users WHERE id = $1", userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// GetHoldings retrieves a user's current positions, ordered by ticker.
func (db *DB) GetHoldings(ctx context.Context, userID int) ([]models.Holding, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT user_id, stock_id, ticker, amount, avg_price FROM holdings WHERE user_id = $1 AND amount > 0 ORDER BY ticker",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.UserID, &h.StockID, &h.Ticker, &h.Amount, &h.AvgPrice); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// HeldAmount returns how many shares of a stock the user currently holds.
// A missing holdings row means zero.
func (db *DB) HeldAmount(ctx context.Context, userID, stockID int) (float64, error) {
	var amount float64
	err := db.Pool.QueryRow(ctx,
		"SELECT amount FROM holdings WHERE user_id = $1 AND stock_id = $2",
		userID, stockID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get held amount: %w", err)
	}
	return amount, nil
}
