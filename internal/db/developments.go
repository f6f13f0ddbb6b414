package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/simstreet/simstreet/internal/models"
)

const developmentColumns = "id, title, content, posted, price_changes, created_at"

func scanDevelopment(row pgx.Row) (*models.Development, error) {
	dev := &models.Development{}
	var changes []byte
	if err := row.Scan(&dev.ID, &dev.Title, &dev.Content, &dev.Posted, &changes, &dev.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(changes, &dev.PriceChanges); err != nil {
		return nil, fmt.Errorf("failed to decode price changes: %w", err)
	}
	return dev, nil
}

// CreateDevelopment inserts a new draft development.
func (db *DB) CreateDevelopment(ctx context.Context, title, content string, changes []models.StockPriceChange) (*models.Development, error) {
	if changes == nil {
		changes = []models.StockPriceChange{}
	}
	encoded, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode price changes: %w", err)
	}

	dev, err := scanDevelopment(db.Pool.QueryRow(ctx,
		"INSERT INTO developments (title, content, price_changes) VALUES ($1, $2, $3) RETURNING "+developmentColumns,
		title, content, encoded))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTitle
		}
		return nil, fmt.Errorf("failed to create development: %w", err)
	}
	return dev, nil
}

// GetDevelopment retrieves a development by id
func (db *DB) GetDevelopment(ctx context.Context, id int) (*models.Development, error) {
	dev, err := scanDevelopment(db.Pool.QueryRow(ctx,
		"SELECT "+developmentColumns+" FROM developments WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDevelopmentNotFound
		}
		return nil, fmt.Errorf("failed to get development: %w", err)
	}
	return dev, nil
}

// ListDevelopments retrieves developments, newest first. When postedOnly is
// set, drafts are excluded.
func (db *DB) ListDevelopments(ctx context.Context, postedOnly bool) ([]models.Development, error) {
	query := "SELECT " + developmentColumns + " FROM developments ORDER BY created_at DESC, id DESC"
	if postedOnly {
		query = "SELECT " + developmentColumns + " FROM developments WHERE posted ORDER BY created_at DESC, id DESC"
	}
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list developments: %w", err)
	}
	defer rows.Close()

	var devs []models.Development
	for rows.Next() {
		dev, err := scanDevelopment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan development: %w", err)
		}
		devs = append(devs, *dev)
	}
	return devs, rows.Err()
}

// UpdateDevelopment edits a draft development's title, content and changes.
func (db *DB) UpdateDevelopment(ctx context.Context, id int, title, content string, changes []models.StockPriceChange) (*models.Development, error) {
	if changes == nil {
		changes = []models.StockPriceChange{}
	}
	encoded, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode price changes: %w", err)
	}

	dev, err := scanDevelopment(db.Pool.QueryRow(ctx,
		"UPDATE developments SET title = $2, content = $3, price_changes = $4 WHERE id = $1 RETURNING "+developmentColumns,
		id, title, content, encoded))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDevelopmentNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTitle
		}
		return nil, fmt.Errorf("failed to update development: %w", err)
	}
	return dev, nil
}

// SetDevelopmentPosted flips the posted flag and reports the previous value.
// The row is locked for the read-then-write so two concurrent posts of the
// same development observe the transition exactly once.
func (db *DB) SetDevelopmentPosted(ctx context.Context, id int, posted bool) (dev *models.Development, wasPosted bool, err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		"SELECT posted FROM developments WHERE id = $1 FOR UPDATE", id).Scan(&wasPosted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrDevelopmentNotFound
		}
		return nil, false, fmt.Errorf("failed to get development: %w", err)
	}

	dev, err = scanDevelopment(tx.QueryRow(ctx,
		"UPDATE developments SET posted = $2 WHERE id = $1 RETURNING "+developmentColumns,
		id, posted))
	if err != nil {
		return nil, false, fmt.Errorf("failed to update posted flag: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return dev, wasPosted, nil
}
