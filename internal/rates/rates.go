// Package rates supplies RON exchange rates for order currencies.
package rates

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BaseCurrency is the settlement currency; its rate is always 1.
const BaseCurrency = "RON"

// ErrNoRate means the source has no rate for the currency.
var ErrNoRate = errors.New("no exchange rate for currency")

// Source returns how many RON one unit of currency is worth.
type Source interface {
	LatestRate(ctx context.Context, currency string) (decimal.Decimal, error)
}

// Cache stores rates as decimal strings.
type Cache interface {
	GetRate(ctx context.Context, currency string) (string, bool, error)
	SetRate(ctx context.Context, currency, rate string, ttl time.Duration) error
}

// CachedSource serves rates from Cache and falls back to the wrapped source on a miss.
// Cache failures are logged and bypassed.
type CachedSource struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSource(source Source, cache Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: util.Named("rates"),
	}
}

func (c *CachedSource) LatestRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	if currency == BaseCurrency {
		return decimal.NewFromInt(1), nil
	}

	cached, ok, err := c.cache.GetRate(ctx, currency)
	if err != nil {
		c.logger.Warn("Exchange rate cache read failed", zap.String("currency", currency), zap.Error(err))
	}
	if ok {
		if rate, err := decimal.NewFromString(cached); err == nil {
			util.ExchangeRateLookupsTotal.WithLabelValues("cache").Inc()
			return rate, nil
		}
		c.logger.Warn("Discarding malformed cached rate", zap.String("currency", currency), zap.String("value", cached))
	}

	rate, err := c.source.LatestRate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	util.ExchangeRateLookupsTotal.WithLabelValues("source").Inc()

	if err := c.cache.SetRate(ctx, currency, rate.String(), c.ttl); err != nil {
		c.logger.Warn("Exchange rate cache write failed", zap.String("currency", currency), zap.Error(err))
	}
	return rate, nil
}
