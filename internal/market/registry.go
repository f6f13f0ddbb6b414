// Package market owns the stock registry, the market open/closed flag and
// the development price-change applicator.
package market

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/simstreet/simstreet/internal/models"
	"github.com/simstreet/simstreet/internal/ws"
)

// Validation failures for registry and applicator inputs.
var (
	ErrMissingField       = errors.New("missing required field")
	ErrInvalidPrice       = errors.New("price must not be negative")
	ErrInvalidPriceChange = errors.New("invalid price change")
)

// Store is the durable state the registry needs.
type Store interface {
	CreateStock(ctx context.Context, ticker, name string, price float64) (*models.Stock, error)
	GetStock(ctx context.Context, stockID int) (*models.Stock, error)
	UpdatePrice(ctx context.Context, stockID int, newPrice float64) (*models.Stock, error)
	DeleteStock(ctx context.Context, stockID int) error
	GetPriceHistory(ctx context.Context, stockID int) ([]models.PriceHistoryEntry, error)
	GetMarketStatus(ctx context.Context) (*models.MarketStatus, error)
	SetMarketStatus(ctx context.Context, isOpen bool) (*models.MarketStatus, error)
}

// Reader is the stock read surface, usually the Redis cache decorator.
type Reader interface {
	GetStock(ctx context.Context, stockID int) (*models.Stock, error)
	GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error)
	ListStocks(ctx context.Context) ([]models.Stock, error)
}

// Invalidator drops cached entries after a committed write.
type Invalidator interface {
	Invalidate(ctx context.Context, stockID int, ticker string)
}

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	Broadcast(ev ws.Event)
}

// Registry manages tradable stocks, their price history and the market
// status flag. Price writes for one stock serialize through a per-stock
// mutex so the update, the history append and the broadcast form one
// logical unit in commit order.
type Registry struct {
	store  Store
	reader Reader
	cache  Invalidator
	hub    Broadcaster
	logger *slog.Logger

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewRegistry creates a registry. cache and hub may be nil.
func NewRegistry(store Store, reader Reader, cache Invalidator, hub Broadcaster, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		reader: reader,
		cache:  cache,
		hub:    hub,
		logger: logger,
		locks:  make(map[int]*sync.Mutex),
	}
}

// stockLock returns the mutex serializing writes for one stock.
func (r *Registry) stockLock(stockID int) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[stockID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[stockID] = l
	}
	return l
}

// CreateStock registers a new tradable instrument. The ticker is
// uppercased; the opening price is fixed to the initial price and the
// first price history entry is written alongside.
func (r *Registry) CreateStock(ctx context.Context, ticker, name string, price float64) (*models.Stock, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || strings.TrimSpace(name) == "" {
		return nil, ErrMissingField
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}

	stock, err := r.store.CreateStock(ctx, ticker, name, price)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, stock.ID, stock.Ticker)
	}
	return stock, nil
}

// SetPrice overwrites a stock's current price, appends the history entry
// and announces the change. Concurrent writers to the same stock are
// serialized so broadcast order matches commit order.
func (r *Registry) SetPrice(ctx context.Context, stockID int, newPrice float64) (*models.Stock, error) {
	if newPrice < 0 {
		return nil, ErrInvalidPrice
	}

	l := r.stockLock(stockID)
	l.Lock()
	defer l.Unlock()

	stock, err := r.store.UpdatePrice(ctx, stockID, newPrice)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Invalidate(ctx, stock.ID, stock.Ticker)
	}
	if r.hub != nil {
		r.hub.Broadcast(ws.Event{Type: ws.EventPriceUpdated, Data: ws.NewPriceUpdate(stock)})
	}
	return stock, nil
}

// DeleteStock removes a stock. History and trades referencing it are
// retained as dangling references.
func (r *Registry) DeleteStock(ctx context.Context, stockID int) error {
	stock, err := r.store.GetStock(ctx, stockID)
	if err != nil {
		return err
	}

	l := r.stockLock(stockID)
	l.Lock()
	defer l.Unlock()

	if err := r.store.DeleteStock(ctx, stockID); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, stock.ID, stock.Ticker)
	}
	return nil
}

// Stock returns one stock by id.
func (r *Registry) Stock(ctx context.Context, stockID int) (*models.Stock, error) {
	return r.reader.GetStock(ctx, stockID)
}

// StockByTicker returns one stock by its ticker symbol.
func (r *Registry) StockByTicker(ctx context.Context, ticker string) (*models.Stock, error) {
	return r.reader.GetStockByTicker(ctx, strings.ToUpper(strings.TrimSpace(ticker)))
}

// Stocks returns all stocks.
func (r *Registry) Stocks(ctx context.Context) ([]models.Stock, error) {
	return r.reader.ListStocks(ctx)
}

// History returns a stock's append-only price ledger, oldest first.
func (r *Registry) History(ctx context.Context, stockID int) ([]models.PriceHistoryEntry, error) {
	entries, err := r.store.GetPriceHistory(ctx, stockID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		// Distinguish "no such stock" from "stock with empty history";
		// creation always writes one entry, so empty means unresolved
		// unless the stock was deleted.
		if _, err := r.store.GetStock(ctx, stockID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Status returns the market open/closed flag.
func (r *Registry) Status(ctx context.Context) (*models.MarketStatus, error) {
	return r.store.GetMarketStatus(ctx)
}

// SetStatus sets the market flag and announces it on every call, even when
// the value is unchanged.
func (r *Registry) SetStatus(ctx context.Context, isOpen bool) (*models.MarketStatus, error) {
	status, err := r.store.SetMarketStatus(ctx, isOpen)
	if err != nil {
		return nil, err
	}
	if r.hub != nil {
		msg := "The market is now closed"
		if status.IsOpen {
			msg = "The market is now open"
		}
		r.hub.Broadcast(ws.Event{
			Type: ws.EventMarketStatusChanged,
			Data: ws.MarketStatusChange{IsOpen: status.IsOpen, Message: msg},
		})
	}
	return status, nil
}
