package db

import (
	"context"
	"fmt"

	"github.com/simstreet/simstreet/internal/models"
)

// EnsureMarketStatus makes sure the singleton status row exists, defaulting
// to closed. Called once at startup so reads never race on first creation.
func (db *DB) EnsureMarketStatus(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO market_status (id, is_open) VALUES (1, FALSE) ON CONFLICT (id) DO NOTHING")
	if err != nil {
		return fmt.Errorf("failed to ensure market status: %w", err)
	}
	return nil
}

// GetMarketStatus returns the current open/closed flag. A missing row is
// created closed, so the read is safe even before EnsureMarketStatus ran.
func (db *DB) GetMarketStatus(ctx context.Context) (*models.MarketStatus, error) {
	if err := db.EnsureMarketStatus(ctx); err != nil {
		return nil, err
	}
	status := &models.MarketStatus{}
	err := db.Pool.QueryRow(ctx,
		"SELECT is_open, updated_at FROM market_status WHERE id = 1").Scan(&status.IsOpen, &status.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get market status: %w", err)
	}
	return status, nil
}

// SetMarketStatus upserts the singleton flag and returns the stored value.
func (db *DB) SetMarketStatus(ctx context.Context, isOpen bool) (*models.MarketStatus, error) {
	status := &models.MarketStatus{}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO market_status (id, is_open, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET is_open = EXCLUDED.is_open, updated_at = NOW()
		RETURNING is_open, updated_at`,
		isOpen).Scan(&status.IsOpen, &status.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to set market status: %w", err)
	}
	return status, nil
}
