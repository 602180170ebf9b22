package rates

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// BNRSource reads the National Bank of Romania daily reference rates feed.
type BNRSource struct {
	url    string
	client *http.Client
}

func NewBNRSource(url string, timeout time.Duration) *BNRSource {
	return &BNRSource{url: url, client: &http.Client{Timeout: timeout}}
}

type bnrDataSet struct {
	Cubes []struct {
		Date  string `xml:"date,attr"`
		Rates []struct {
			Currency   string `xml:"currency,attr"`
			Multiplier string `xml:"multiplier,attr"`
			Value      string `xml:",chardata"`
		} `xml:"Rate"`
	} `xml:"Body>Cube"`
}

// Fetch downloads the feed and returns RON per one unit of each listed currency,
// taken from the most recent cube.
func (b *BNRSource) Fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bnr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bnr returned status %d", resp.StatusCode)
	}

	var ds bnrDataSet
	if err := xml.NewDecoder(resp.Body).Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to decode bnr feed: %w", err)
	}
	if len(ds.Cubes) == 0 {
		return nil, fmt.Errorf("bnr feed has no rates")
	}

	latest := ds.Cubes[0]
	for _, cube := range ds.Cubes[1:] {
		if cube.Date > latest.Date {
			latest = cube
		}
	}

	out := make(map[string]decimal.Decimal, len(latest.Rates))
	for _, r := range latest.Rates {
		value, err := decimal.NewFromString(strings.TrimSpace(r.Value))
		if err != nil {
			return nil, fmt.Errorf("bnr rate for %s: %w", r.Currency, err)
		}
		if r.Multiplier != "" {
			mult, err := decimal.NewFromString(r.Multiplier)
			if err != nil || mult.IsZero() {
				return nil, fmt.Errorf("bnr multiplier for %s is invalid", r.Currency)
			}
			value = value.Div(mult)
		}
		out[strings.ToUpper(r.Currency)] = value
	}
	return out, nil
}

func (b *BNRSource) LatestRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	ctx, span := util.StartSpan(ctx, "BNRSource.LatestRate", attribute.String("currency", currency))
	defer span.End()

	currency = strings.ToUpper(currency)
	if currency == BaseCurrency {
		return decimal.NewFromInt(1), nil
	}

	all, err := b.Fetch(ctx)
	if err != nil {
		util.FailSpan(span, err)
		return decimal.Zero, err
	}

	rate, ok := all[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoRate, currency)
	}
	return rate, nil
}
