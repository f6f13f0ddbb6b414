// Package trading implements the trade execution engine: validating and
// atomically applying buy/sell orders against a trader's cash balance and
// holdings.
package trading

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/simstreet/simstreet/internal/db"
	"github.com/simstreet/simstreet/internal/models"
)

// Validation failures surfaced to callers. Storage-level failures
// (insufficient balance/holdings, unknown stock) come from the store as
// its own sentinels and pass through unchanged.
var (
	ErrInvalidAmount = errors.New("amount must be a positive number")
	ErrInvalidSide   = errors.New("side must be 'buy' or 'sell'")
	ErrMarketClosed  = errors.New("market is closed")
)

// Store is the durable account/trade state the engine needs. Both trade
// operations must be atomic: the guarded balance or holding update, the
// trade record and the position change commit together or not at all.
type Store interface {
	GetBalance(ctx context.Context, userID int) (float64, error)
	GetHoldings(ctx context.Context, userID int) ([]models.Holding, error)
	GetUserTrades(ctx context.Context, userID int) ([]models.TradeRecord, error)
	ExecuteBuy(ctx context.Context, userID int, stock *models.Stock, amount float64, ref string) (*models.TradeRecord, error)
	ExecuteSell(ctx context.Context, userID int, stock *models.Stock, amount float64, ref string) (*models.TradeRecord, error)
}

// StockReader resolves tickers to stocks; usually the cached registry
// read path.
type StockReader interface {
	GetStock(ctx context.Context, stockID int) (*models.Stock, error)
	GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error)
}

// StatusReader reports whether the market is open.
type StatusReader interface {
	GetMarketStatus(ctx context.Context) (*models.MarketStatus, error)
}

// Engine executes trades. The price used for a trade is a snapshot taken
// when the ticker is resolved; it is not re-read before commit, so a price
// change landing between validation and commit trades at the snapshot.
type Engine struct {
	store  Store
	stocks StockReader
	status StatusReader
	logger *slog.Logger
}

// NewEngine creates a trade execution engine.
func NewEngine(store Store, stocks StockReader, status StatusReader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, stocks: stocks, status: status, logger: logger}
}

// Execute dispatches on side.
func (e *Engine) Execute(ctx context.Context, traderID int, ticker string, amount float64, side string) (*models.TradeRecord, error) {
	switch side {
	case models.SideBuy:
		return e.ExecuteBuy(ctx, traderID, ticker, amount)
	case models.SideSell:
		return e.ExecuteSell(ctx, traderID, ticker, amount)
	default:
		return nil, ErrInvalidSide
	}
}

// ExecuteBuy buys amount shares of ticker at the current price. Fails with
// no side effects when the amount is invalid, the market is closed, the
// ticker does not resolve, or the balance cannot cover the total.
func (e *Engine) ExecuteBuy(ctx context.Context, traderID int, ticker string, amount float64) (*models.TradeRecord, error) {
	stock, err := e.validate(ctx, ticker, amount)
	if err != nil {
		return nil, err
	}

	trade, err := e.store.ExecuteBuy(ctx, traderID, stock, amount, newRef())
	if err != nil {
		return nil, err
	}
	e.logger.Info("trade executed",
		"ref", trade.Ref, "trader", traderID, "side", trade.Side,
		"ticker", trade.Ticker, "amount", trade.Amount, "price", trade.TradePrice, "total", trade.Total)
	return trade, nil
}

// ExecuteSell sells amount shares of ticker at the current price. The
// trader's holding must cover the amount or the trade fails with the
// store's insufficient-holdings error and no side effects.
func (e *Engine) ExecuteSell(ctx context.Context, traderID int, ticker string, amount float64) (*models.TradeRecord, error) {
	stock, err := e.validate(ctx, ticker, amount)
	if err != nil {
		return nil, err
	}

	trade, err := e.store.ExecuteSell(ctx, traderID, stock, amount, newRef())
	if err != nil {
		return nil, err
	}
	e.logger.Info("trade executed",
		"ref", trade.Ref, "trader", traderID, "side", trade.Side,
		"ticker", trade.Ticker, "amount", trade.Amount, "price", trade.TradePrice, "total", trade.Total)
	return trade, nil
}

// validate runs the shared checks and resolves the price snapshot.
func (e *Engine) validate(ctx context.Context, ticker string, amount float64) (*models.Stock, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}

	status, err := e.status.GetMarketStatus(ctx)
	if err != nil {
		return nil, err
	}
	if !status.IsOpen {
		return nil, ErrMarketClosed
	}

	return e.stocks.GetStockByTicker(ctx, strings.ToUpper(strings.TrimSpace(ticker)))
}

// Balance returns the trader's current cash balance.
func (e *Engine) Balance(ctx context.Context, traderID int) (float64, error) {
	return e.store.GetBalance(ctx, traderID)
}

// PortfolioEntry is a holding joined with the stock's current price.
type PortfolioEntry struct {
	models.Holding
	Name         string  `json:"name"`
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
}

// Portfolio returns the trader's positions valued at current prices. A
// position whose stock was deleted is kept with a zero current price and
// an "Unknown" name.
func (e *Engine) Portfolio(ctx context.Context, traderID int) ([]PortfolioEntry, error) {
	holdings, err := e.store.GetHoldings(ctx, traderID)
	if err != nil {
		return nil, err
	}

	entries := make([]PortfolioEntry, 0, len(holdings))
	for _, h := range holdings {
		entry := PortfolioEntry{Holding: h, Name: "Unknown"}
		stock, err := e.stocks.GetStock(ctx, h.StockID)
		switch {
		case err == nil:
			entry.Name = stock.Name
			entry.CurrentPrice = stock.Price
			entry.MarketValue = stock.Price * h.Amount
		case errors.Is(err, db.ErrStockNotFound):
			// deleted stock, keep the position as a dangling reference
		default:
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Trades returns the trader's trade history, newest first.
func (e *Engine) Trades(ctx context.Context, traderID int) ([]models.TradeRecord, error) {
	return e.store.GetUserTrades(ctx, traderID)
}

// newRef mints the human-shareable trade reference.
func newRef() string {
	return ulid.Make().String()
}
