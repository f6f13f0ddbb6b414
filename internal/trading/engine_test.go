package trading

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simstreet/simstreet/internal/db"
	"github.com/simstreet/simstreet/internal/models"
)

// memStore is an in-memory Store/StockReader/StatusReader with the same
// atomicity guarantees as the SQL implementation: the balance or holding
// guard, the position change and the trade record happen under one lock.
type memStore struct {
	mu       sync.Mutex
	balances map[int]float64
	holdings map[int]map[int]*models.Holding // userID -> stockID -> holding
	trades   []models.TradeRecord
	stocks   map[int]*models.Stock
	open     bool
	nextID   int
}

func newMemStore(open bool) *memStore {
	return &memStore{
		balances: make(map[int]float64),
		holdings: make(map[int]map[int]*models.Holding),
		stocks:   make(map[int]*models.Stock),
		open:     open,
	}
}

func (m *memStore) addStock(id int, ticker, name string, price float64) {
	m.stocks[id] = &models.Stock{ID: id, Ticker: ticker, Name: name, Price: price, OpeningPrice: price}
}

func (m *memStore) GetBalance(ctx context.Context, userID int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return 0, db.ErrUserNotFound
	}
	return b, nil
}

func (m *memStore) GetHoldings(ctx context.Context, userID int) ([]models.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Holding
	for _, h := range m.holdings[userID] {
		out = append(out, *h)
	}
	return out, nil
}

func (m *memStore) GetUserTrades(ctx context.Context, userID int) ([]models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TradeRecord
	for i := len(m.trades) - 1; i >= 0; i-- {
		if m.trades[i].UserID == userID {
			out = append(out, m.trades[i])
		}
	}
	return out, nil
}

func (m *memStore) ExecuteBuy(ctx context.Context, userID int, stock *models.Stock, amount float64, ref string) (*models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[userID]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	total := stock.Price * amount
	if balance < total {
		return nil, db.ErrInsufficientBalance
	}
	m.balances[userID] = balance - total

	if m.holdings[userID] == nil {
		m.holdings[userID] = make(map[int]*models.Holding)
	}
	h, ok := m.holdings[userID][stock.ID]
	if !ok {
		m.holdings[userID][stock.ID] = &models.Holding{
			UserID: userID, StockID: stock.ID, Ticker: stock.Ticker,
			Amount: amount, AvgPrice: stock.Price,
		}
	} else {
		h.AvgPrice = (h.AvgPrice*h.Amount + stock.Price*amount) / (h.Amount + amount)
		h.Amount += amount
	}

	return m.appendTrade(userID, stock, models.SideBuy, amount, total, ref), nil
}

func (m *memStore) ExecuteSell(ctx context.Context, userID int, stock *models.Stock, amount float64, ref string) (*models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holdings[userID][stock.ID]
	if !ok || h.Amount < amount {
		return nil, db.ErrInsufficientHoldings
	}
	h.Amount -= amount
	if h.Amount <= 0 {
		delete(m.holdings[userID], stock.ID)
	}
	total := stock.Price * amount
	m.balances[userID] += total

	return m.appendTrade(userID, stock, models.SideSell, amount, total, ref), nil
}

func (m *memStore) appendTrade(userID int, stock *models.Stock, side string, amount, total float64, ref string) *models.TradeRecord {
	m.nextID++
	trade := models.TradeRecord{
		ID: m.nextID, Ref: ref, UserID: userID, StockID: stock.ID, Ticker: stock.Ticker,
		Side: side, Amount: amount, TradePrice: stock.Price, Total: total, ExecutedAt: time.Now(),
	}
	m.trades = append(m.trades, trade)
	return &trade
}

func (m *memStore) GetStock(ctx context.Context, stockID int) (*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[stockID]
	if !ok {
		return nil, db.ErrStockNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stocks {
		if s.Ticker == ticker {
			cp := *s
			return &cp, nil
		}
	}
	return nil, db.ErrStockNotFound
}

func (m *memStore) GetMarketStatus(ctx context.Context) (*models.MarketStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.MarketStatus{IsOpen: m.open, UpdatedAt: time.Now()}, nil
}

func newTestEngine(open bool) (*Engine, *memStore) {
	store := newMemStore(open)
	return NewEngine(store, store, store, nil), store
}

func TestEngine_ExecuteBuy(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 120)
	store.balances[7] = 1000

	trade, err := e.ExecuteBuy(context.Background(), 7, "AAPL", 5)
	require.NoError(t, err)

	assert.Equal(t, models.SideBuy, trade.Side)
	assert.Equal(t, "AAPL", trade.Ticker)
	assert.Equal(t, 120.0, trade.TradePrice)
	assert.Equal(t, 5.0, trade.Amount)
	assert.Equal(t, 600.0, trade.Total)
	assert.NotEmpty(t, trade.Ref)

	balance, err := e.Balance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 400.0, balance)

	holdings, err := store.GetHoldings(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, 5.0, holdings[0].Amount)
	assert.Equal(t, 120.0, holdings[0].AvgPrice)
}

func TestEngine_ExecuteBuy_LowercaseTicker(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 120)
	store.balances[7] = 1000

	_, err := e.ExecuteBuy(context.Background(), 7, "aapl", 1)
	assert.NoError(t, err)
}

func TestEngine_ExecuteBuy_InvalidAmount(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 120)
	store.balances[7] = 1000

	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := e.ExecuteBuy(context.Background(), 7, "AAPL", amount)
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %v", amount)
	}

	// no side effects
	balance, _ := e.Balance(context.Background(), 7)
	assert.Equal(t, 1000.0, balance)
	assert.Empty(t, store.trades)
}

func TestEngine_ExecuteBuy_StockNotFound(t *testing.T) {
	e, store := newTestEngine(true)
	store.balances[7] = 1000

	_, err := e.ExecuteBuy(context.Background(), 7, "GHOST", 5)
	assert.ErrorIs(t, err, db.ErrStockNotFound)
}

func TestEngine_ExecuteBuy_InsufficientBalance(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 120)
	store.balances[7] = 100

	_, err := e.ExecuteBuy(context.Background(), 7, "AAPL", 5)
	assert.ErrorIs(t, err, db.ErrInsufficientBalance)

	// failed buy leaves nothing behind
	balance, _ := e.Balance(context.Background(), 7)
	assert.Equal(t, 100.0, balance)
	assert.Empty(t, store.trades)
	holdings, _ := store.GetHoldings(context.Background(), 7)
	assert.Empty(t, holdings)
}

func TestEngine_ExecuteBuy_MarketClosed(t *testing.T) {
	e, store := newTestEngine(false)
	store.addStock(1, "AAPL", "Apple Inc.", 120)
	store.balances[7] = 1000

	_, err := e.ExecuteBuy(context.Background(), 7, "AAPL", 1)
	assert.ErrorIs(t, err, ErrMarketClosed)

	_, err = e.ExecuteSell(context.Background(), 7, "AAPL", 1)
	assert.ErrorIs(t, err, ErrMarketClosed)
}

func TestEngine_ExecuteSell(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 120)
	store.balances[7] = 1000

	_, err := e.ExecuteBuy(context.Background(), 7, "AAPL", 5)
	require.NoError(t, err)

	trade, err := e.ExecuteSell(context.Background(), 7, "AAPL", 2)
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, trade.Side)
	assert.Equal(t, 240.0, trade.Total)

	balance, _ := e.Balance(context.Background(), 7)
	assert.Equal(t, 640.0, balance) // 1000 - 600 + 240

	holdings, _ := store.GetHoldings(context.Background(), 7)
	require.Len(t, holdings, 1)
	assert.Equal(t, 3.0, holdings[0].Amount)
	assert.Equal(t, 120.0, holdings[0].AvgPrice) // unchanged by sell

	// selling the rest removes the position
	_, err = e.ExecuteSell(context.Background(), 7, "AAPL", 3)
	require.NoError(t, err)
	holdings, _ = store.GetHoldings(context.Background(), 7)
	assert.Empty(t, holdings)
}

func TestEngine_ExecuteSell_InsufficientHoldings(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 120)
	store.balances[7] = 1000

	_, err := e.ExecuteBuy(context.Background(), 7, "AAPL", 2)
	require.NoError(t, err)

	_, err = e.ExecuteSell(context.Background(), 7, "AAPL", 5)
	assert.ErrorIs(t, err, db.ErrInsufficientHoldings)

	// failed sell credits nothing
	balance, _ := e.Balance(context.Background(), 7)
	assert.Equal(t, 760.0, balance)
}

func TestEngine_Execute_InvalidSide(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 120)
	store.balances[7] = 1000

	_, err := e.Execute(context.Background(), 7, "AAPL", 1, "short")
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestEngine_WeightedAverageCost(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 100)
	store.balances[7] = 10000

	_, err := e.ExecuteBuy(context.Background(), 7, "AAPL", 10)
	require.NoError(t, err)

	store.mu.Lock()
	store.stocks[1].Price = 200
	store.mu.Unlock()

	_, err = e.ExecuteBuy(context.Background(), 7, "AAPL", 10)
	require.NoError(t, err)

	holdings, _ := store.GetHoldings(context.Background(), 7)
	require.Len(t, holdings, 1)
	assert.Equal(t, 20.0, holdings[0].Amount)
	assert.InDelta(t, 150.0, holdings[0].AvgPrice, 1e-9)
}

// Two concurrent buys, each affordable alone but not together, must end
// with exactly one success and a balance consistent with that one trade.
func TestEngine_ConcurrentBuys(t *testing.T) {
	for i := 0; i < 50; i++ {
		e, store := newTestEngine(true)
		store.addStock(1, "AAPL", "Apple Inc.", 600)
		store.balances[7] = 1000

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, errs[j] = e.ExecuteBuy(context.Background(), 7, "AAPL", 1)
			}(j)
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
			} else {
				require.ErrorIs(t, err, db.ErrInsufficientBalance)
			}
		}
		require.Equal(t, 1, successes)

		balance, _ := e.Balance(context.Background(), 7)
		require.Equal(t, 400.0, balance)
		require.Len(t, store.trades, 1)
	}
}

// Running balance after every step must equal the initial balance minus
// buy totals plus sell totals, and must never go negative.
func TestEngine_BalanceLedgerInvariant(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 50)
	store.balances[7] = 500

	steps := []struct {
		side   string
		amount float64
	}{
		{models.SideBuy, 4},
		{models.SideBuy, 3},
		{models.SideSell, 5},
		{models.SideBuy, 6},
		{models.SideSell, 8},
	}

	expected := 500.0
	for _, step := range steps {
		trade, err := e.Execute(context.Background(), 7, "AAPL", step.amount, step.side)
		require.NoError(t, err)

		if step.side == models.SideBuy {
			expected -= trade.Total
		} else {
			expected += trade.Total
		}
		balance, err := e.Balance(context.Background(), 7)
		require.NoError(t, err)
		require.InDelta(t, expected, balance, 1e-9)
		require.GreaterOrEqual(t, balance, 0.0)
	}
}

func TestEngine_Portfolio(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 100)
	store.addStock(2, "DOOM", "Doomed Corp", 10)
	store.balances[7] = 1000

	_, err := e.ExecuteBuy(context.Background(), 7, "AAPL", 5)
	require.NoError(t, err)
	_, err = e.ExecuteBuy(context.Background(), 7, "DOOM", 10)
	require.NoError(t, err)

	// current price moves; market value follows
	store.mu.Lock()
	store.stocks[1].Price = 150
	delete(store.stocks, 2) // DOOM gets delisted
	store.mu.Unlock()

	entries, err := e.Portfolio(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byTicker := map[string]PortfolioEntry{}
	for _, entry := range entries {
		byTicker[entry.Ticker] = entry
	}

	aapl := byTicker["AAPL"]
	assert.Equal(t, "Apple Inc.", aapl.Name)
	assert.Equal(t, 150.0, aapl.CurrentPrice)
	assert.Equal(t, 750.0, aapl.MarketValue)

	doom := byTicker["DOOM"]
	assert.Equal(t, "Unknown", doom.Name)
	assert.Equal(t, 0.0, doom.CurrentPrice)
	assert.Equal(t, 10.0, doom.Amount)
}

func TestEngine_Trades(t *testing.T) {
	e, store := newTestEngine(true)
	store.addStock(1, "AAPL", "Apple Inc.", 100)
	store.balances[7] = 1000
	store.balances[8] = 1000

	_, err := e.ExecuteBuy(context.Background(), 7, "AAPL", 1)
	require.NoError(t, err)
	_, err = e.ExecuteBuy(context.Background(), 8, "AAPL", 2)
	require.NoError(t, err)
	_, err = e.ExecuteSell(context.Background(), 7, "AAPL", 1)
	require.NoError(t, err)

	trades, err := e.Trades(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	// newest first
	assert.Equal(t, models.SideSell, trades[0].Side)
	assert.Equal(t, models.SideBuy, trades[1].Side)
}
