package models

import "time"

// User represents a registered participant. Balance is simulated cash;
// it is mutated only by executed trades and must never go negative.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // "admin" or "trader"
	Balance      float64   `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stock is a tradable instrument. OpeningPrice is fixed at creation and
// is the baseline for percentage change.
type Stock struct {
	ID           int       `json:"id"`
	Ticker       string    `json:"ticker"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	OpeningPrice float64   `json:"opening_price"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChangePercent returns the percentage change from the opening price.
func (s Stock) ChangePercent() float64 {
	if s.OpeningPrice == 0 {
		return 0
	}
	return (s.Price - s.OpeningPrice) / s.OpeningPrice * 100
}

// PriceHistoryEntry is one append-only record of a price being set.
type PriceHistoryEntry struct {
	ID        int       `json:"id"`
	StockID   int       `json:"stock_id"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// Holding is a trader's running position in one stock. AvgPrice is the
// weighted-average buy price; it is left unchanged by sells.
type Holding struct {
	UserID   int     `json:"user_id"`
	StockID  int     `json:"stock_id"`
	Ticker   string  `json:"ticker"`
	Amount   float64 `json:"amount"`
	AvgPrice float64 `json:"avg_price"`
}

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// TradeRecord is the immutable record of one executed trade.
type TradeRecord struct {
	ID         int       `json:"id"`
	Ref        string    `json:"ref"` // ULID, human-shareable reference
	UserID     int       `json:"user_id"`
	StockID    int       `json:"stock_id"`
	Ticker     string    `json:"ticker"`
	Side       string    `json:"side"` // "buy" or "sell"
	Amount     float64   `json:"amount"`
	TradePrice float64   `json:"trade_price"`
	Total      float64   `json:"total"`
	ExecutedAt time.Time `json:"executed_at"`
}

// StockPriceChange is one scheduled price overwrite carried by a Development.
type StockPriceChange struct {
	StockID  int     `json:"stock_id"`
	Ticker   string  `json:"ticker"`
	NewPrice float64 `json:"new_price"`
}

// Development is an admin-authored news item. Posting it (false -> true)
// applies its price changes exactly once; un-posting never reverses them.
type Development struct {
	ID           int                `json:"id"`
	Title        string             `json:"title"`
	Content      string             `json:"content"`
	Posted       bool               `json:"posted"`
	PriceChanges []StockPriceChange `json:"price_changes"`
	CreatedAt    time.Time          `json:"created_at"`
}

// MarketStatus is the singleton open/closed flag.
type MarketStatus struct {
	IsOpen    bool      `json:"is_open"`
	UpdatedAt time.Time `json:"updated_at"`
}
