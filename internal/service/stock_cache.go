package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StockSource lists products with their authoritative stock.
type StockSource interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// StockCacheBackend holds the cached stock counters.
type StockCacheBackend interface {
	SyncStock(ctx context.Context, stock map[int64]int) error
	AdjustStock(ctx context.Context, productID int64, delta int) (int64, bool, error)
	GetStock(ctx context.Context, productID int64) (int, bool, error)
}

// Stock sources reported by Available.
const (
	StockSourceCache    = "cache"
	StockSourceDatabase = "database"
)

// ProductStock is the availability shown on product pages.
type ProductStock struct {
	ProductID int64  `json:"product_id"`
	Stock     int    `json:"stock"`
	InStock   bool   `json:"in_stock"`
	Source    string `json:"source"`
}

// StockCache mirrors product stock into redis for fast storefront reads. The
// database stays authoritative; the cache follows domain events.
type StockCache struct {
	store  StockSource
	cache  StockCacheBackend
	logger *zap.Logger
}

func NewStockCache(s StockSource, cache StockCacheBackend) *StockCache {
	return &StockCache{store: s, cache: cache, logger: util.Named("stock-cache")}
}

// SyncToRedis copies the stock of every product into the cache
func (sc *StockCache) SyncToRedis(ctx context.Context) error {
	sc.logger.Info("Syncing stock to Redis...")

	products, err := sc.store.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	stock := make(map[int64]int, len(products))
	for _, p := range products {
		stock[p.ID] = p.Stock
	}
	if err := sc.cache.SyncStock(ctx, stock); err != nil {
		return fmt.Errorf("failed to sync stock: %w", err)
	}

	sc.logger.Info("Stock synced to Redis", zap.Int("products", len(products)))
	return nil
}

// Available returns a product's stock from the cache. A miss or a cache failure
// falls back to the database; a miss also warms the cache for that product.
func (sc *StockCache) Available(ctx context.Context, productID int64) (*ProductStock, error) {
	ctx, span := util.StartSpan(ctx, "StockCache.Available", attribute.Int64("product.id", productID))
	defer span.End()

	n, cached, cacheErr := sc.cache.GetStock(ctx, productID)
	switch {
	case cacheErr != nil:
		util.StockCacheReadsTotal.WithLabelValues("error").Inc()
		sc.logger.Warn("Stock cache read failed, using database",
			zap.Int64("product_id", productID), zap.Error(cacheErr))
	case cached:
		util.StockCacheReadsTotal.WithLabelValues("hit").Inc()
		if n < 0 {
			n = 0
		}
		return &ProductStock{ProductID: productID, Stock: n, InStock: n > 0, Source: StockSourceCache}, nil
	default:
		util.StockCacheReadsTotal.WithLabelValues("miss").Inc()
	}

	products, err := sc.store.GetProductsByIDs(ctx, []int64{productID})
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to load product %d: %w", productID, err)
	}
	if len(products) == 0 {
		return nil, ErrNotFound
	}
	stock := products[0].Stock

	if cacheErr == nil {
		if werr := sc.cache.SyncStock(ctx, map[int64]int{productID: stock}); werr != nil {
			sc.logger.Warn("Failed to warm stock cache", zap.Int64("product_id", productID), zap.Error(werr))
		}
	}
	return &ProductStock{ProductID: productID, Stock: stock, InStock: stock > 0, Source: StockSourceDatabase}, nil
}

func (sc *StockCache) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return sc.apply(ctx, models.EventTypeOrderPlaced, event.Lines, -1)
}

func (sc *StockCache) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return sc.apply(ctx, models.EventTypeOrderCancelled, event.Lines, 1)
}

func (sc *StockCache) HandleReturnRestocked(ctx context.Context, event *models.ReturnRestockedEvent) error {
	line := models.StockLine{ProductID: event.ProductID, Quantity: event.Quantity}
	return sc.apply(ctx, models.EventTypeReturnRestocked, []models.StockLine{line}, 1)
}

// apply adjusts each line by sign*quantity. Products missing from the cache are
// skipped; the next full sync picks them up.
func (sc *StockCache) apply(ctx context.Context, eventType string, lines []models.StockLine, sign int) error {
	ctx, span := util.StartSpan(ctx, "StockCache.apply")
	defer span.End()

	for _, l := range lines {
		stock, cached, err := sc.cache.AdjustStock(ctx, l.ProductID, sign*l.Quantity)
		if err != nil {
			sc.logger.Error("Failed to adjust cached stock",
				zap.String("event_type", eventType),
				zap.Int64("product_id", l.ProductID),
				zap.Error(err))
			return err
		}
		if !cached {
			sc.logger.Debug("Product not in stock cache", zap.Int64("product_id", l.ProductID))
			continue
		}
		util.StockCacheUpdatesTotal.WithLabelValues(eventType).Inc()
		sc.logger.Debug("Cached stock adjusted",
			zap.Int64("product_id", l.ProductID),
			zap.Int64("stock", stock))
	}
	return nil
}
