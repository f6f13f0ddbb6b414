package market

import (
	"context"
	"log/slog"

	"github.com/simstreet/simstreet/internal/models"
)

// DevelopmentStore is the durable state the applicator needs.
type DevelopmentStore interface {
	CreateDevelopment(ctx context.Context, title, content string, changes []models.StockPriceChange) (*models.Development, error)
	GetDevelopment(ctx context.Context, id int) (*models.Development, error)
	ListDevelopments(ctx context.Context, postedOnly bool) ([]models.Development, error)
	UpdateDevelopment(ctx context.Context, id int, title, content string, changes []models.StockPriceChange) (*models.Development, error)
	SetDevelopmentPosted(ctx context.Context, id int, posted bool) (*models.Development, bool, error)
}

// Developments manages admin-authored news items and applies their
// scheduled price changes when one is posted.
type Developments struct {
	store    DevelopmentStore
	registry *Registry
	logger   *slog.Logger
}

// NewDevelopments creates the applicator.
func NewDevelopments(store DevelopmentStore, registry *Registry, logger *slog.Logger) *Developments {
	if logger == nil {
		logger = slog.Default()
	}
	return &Developments{store: store, registry: registry, logger: logger}
}

// Create adds a new draft development after validating its price changes.
func (d *Developments) Create(ctx context.Context, title, content string, changes []models.StockPriceChange) (*models.Development, error) {
	if title == "" {
		return nil, ErrMissingField
	}
	if err := d.ValidateChanges(ctx, changes); err != nil {
		return nil, err
	}
	return d.store.CreateDevelopment(ctx, title, content, changes)
}

// Get returns one development.
func (d *Developments) Get(ctx context.Context, id int) (*models.Development, error) {
	return d.store.GetDevelopment(ctx, id)
}

// List returns developments; drafts are excluded when postedOnly is set.
func (d *Developments) List(ctx context.Context, postedOnly bool) ([]models.Development, error) {
	return d.store.ListDevelopments(ctx, postedOnly)
}

// Update edits a development. Price changes are re-validated; editing a
// posted development is allowed but never re-applies prices.
func (d *Developments) Update(ctx context.Context, id int, title, content string, changes []models.StockPriceChange) (*models.Development, error) {
	if title == "" {
		return nil, ErrMissingField
	}
	if err := d.ValidateChanges(ctx, changes); err != nil {
		return nil, err
	}
	return d.store.UpdateDevelopment(ctx, id, title, content, changes)
}

// ValidateChanges checks a whole batch before any write: every entry needs
// a stock id, a ticker and a non-negative price, and every stock id must
// resolve. One bad entry fails the batch.
func (d *Developments) ValidateChanges(ctx context.Context, changes []models.StockPriceChange) error {
	for _, ch := range changes {
		if ch.StockID == 0 || ch.Ticker == "" || ch.NewPrice < 0 {
			return ErrInvalidPriceChange
		}
	}
	for _, ch := range changes {
		if _, err := d.registry.Stock(ctx, ch.StockID); err != nil {
			return err
		}
	}
	return nil
}

// SetPosted flips the posted flag. On a false-to-true transition the
// development's price changes are applied, each stock independently: a
// failing stock is logged and skipped, and the development stays posted
// regardless of individual outcomes. Toggling back to false never
// reverses prior changes.
//
// The flag flip is the atomic claim of the transition; two concurrent
// posts of the same development apply the changes exactly once.
//
// Changes were validated when the development was created or edited; a
// stock deleted since then surfaces here as a logged skip, not a failure.
func (d *Developments) SetPosted(ctx context.Context, id int, posted bool) (*models.Development, error) {
	dev, wasPosted, err := d.store.SetDevelopmentPosted(ctx, id, posted)
	if err != nil {
		return nil, err
	}

	if posted && !wasPosted {
		d.apply(ctx, dev)
	}
	return dev, nil
}

// apply pushes each scheduled change through the registry's single-stock
// update path. Best-effort batch, not all-or-nothing.
func (d *Developments) apply(ctx context.Context, dev *models.Development) {
	for _, ch := range dev.PriceChanges {
		if _, err := d.registry.SetPrice(ctx, ch.StockID, ch.NewPrice); err != nil {
			d.logger.Error("failed to apply development price change",
				"development_id", dev.ID, "stock_id", ch.StockID, "ticker", ch.Ticker, "error", err)
			continue
		}
		d.logger.Info("applied development price change",
			"development_id", dev.ID, "ticker", ch.Ticker, "new_price", ch.NewPrice)
	}
}
