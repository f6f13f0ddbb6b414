// Package cache provides a Redis read-through cache over stock reads. It
// decorates the storage layer transparently; price writes must invalidate
// the affected keys.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/simstreet/simstreet/internal/models"
)

// StockStore is the read surface being decorated.
type StockStore interface {
	GetStock(ctx context.Context, stockID int) (*models.Stock, error)
	GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error)
	ListStocks(ctx context.Context) ([]models.Stock, error)
}

// StockCache decorates a StockStore with Redis caching.
type StockCache struct {
	inner     StockStore
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewStockCache wraps inner with a Redis cache. If ttl is 0 it defaults to
// 30 seconds; if namespace is empty it uses "stocks". A nil rdb disables
// caching and passes everything through.
func NewStockCache(rdb *redis.Client, ttl time.Duration, inner StockStore, namespace string) *StockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if namespace == "" {
		namespace = "stocks"
	}
	return &StockCache{inner: inner, rdb: rdb, ttl: ttl, namespace: namespace}
}

func (c *StockCache) idKey(stockID int) string {
	return fmt.Sprintf("%s:id:%d", c.namespace, stockID)
}

func (c *StockCache) tickerKey(ticker string) string {
	return fmt.Sprintf("%s:ticker:%s", c.namespace, ticker)
}

func (c *StockCache) listKey() string {
	return c.namespace + ":all"
}

// GetStock retrieves a stock by id, cache first.
func (c *StockCache) GetStock(ctx context.Context, stockID int) (*models.Stock, error) {
	if c.rdb == nil {
		return c.inner.GetStock(ctx, stockID)
	}
	key := c.idKey(stockID)
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var s models.Stock
		if err := json.Unmarshal(b, &s); err == nil {
			return &s, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	s, err := c.inner.GetStock(ctx, stockID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, s)
	return s, nil
}

// GetStockByTicker retrieves a stock by ticker, cache first.
func (c *StockCache) GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error) {
	if c.rdb == nil {
		return c.inner.GetStockByTicker(ctx, ticker)
	}
	key := c.tickerKey(ticker)
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var s models.Stock
		if err := json.Unmarshal(b, &s); err == nil {
			return &s, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	s, err := c.inner.GetStockByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, s)
	return s, nil
}

// ListStocks retrieves all stocks, cache first.
func (c *StockCache) ListStocks(ctx context.Context) ([]models.Stock, error) {
	if c.rdb == nil {
		return c.inner.ListStocks(ctx)
	}
	key := c.listKey()
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var stocks []models.Stock
		if err := json.Unmarshal(b, &stocks); err == nil {
			return stocks, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	stocks, err := c.inner.ListStocks(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(stocks); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err() // best effort
	}
	return stocks, nil
}

// Invalidate drops the cached entries for one stock and the stock list.
// Called after any committed price write or stock create/delete.
func (c *StockCache) Invalidate(ctx context.Context, stockID int, ticker string) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, c.idKey(stockID), c.tickerKey(ticker), c.listKey()).Err()
}

func (c *StockCache) store(ctx context.Context, key string, s *models.Stock) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, b, c.ttl).Err() // best effort
}
