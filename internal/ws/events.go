package ws

import "github.com/simstreet/simstreet/internal/models"

// Event kinds pushed to connected clients.
const (
	EventPriceUpdated        = "price-updated"
	EventMarketStatusChanged = "market-status-changed"
	EventSnapshot            = "snapshot"
)

// Event is the envelope for every message pushed over the channel. The
// channel is a notification layer only; clients re-pull state over HTTP
// after reconnecting.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// PriceUpdate is the payload of a price-updated event.
type PriceUpdate struct {
	StockID      int     `json:"stock_id"`
	Ticker       string  `json:"ticker"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	OpeningPrice float64 `json:"opening_price"`
}

// NewPriceUpdate builds the price-updated payload for a stock.
func NewPriceUpdate(s *models.Stock) PriceUpdate {
	return PriceUpdate{
		StockID:      s.ID,
		Ticker:       s.Ticker,
		Name:         s.Name,
		Price:        s.Price,
		OpeningPrice: s.OpeningPrice,
	}
}

// MarketStatusChange is the payload of a market-status-changed event.
type MarketStatusChange struct {
	IsOpen  bool   `json:"is_open"`
	Message string `json:"message"`
}

// Snapshot is sent once on connect so a client can render without an
// immediate HTTP round-trip. It is a convenience, not a replay.
type Snapshot struct {
	Stocks       []models.Stock `json:"stocks"`
	MarketIsOpen bool           `json:"market_is_open"`
}
