// Package geo maps an incoming request to a country.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/models"
)

// CountryLookup resolves ISO country codes.
type CountryLookup interface {
	GetCountryByCode(ctx context.Context, code string) (*models.Country, error)
}

// Detector reads the country code set by the edge proxy and falls back to the
// configured default when the header is missing or unknown.
type Detector struct {
	countries   CountryLookup
	header      string
	defaultCode string
}

func NewDetector(countries CountryLookup, header, defaultCode string) *Detector {
	return &Detector{
		countries:   countries,
		header:      header,
		defaultCode: strings.ToUpper(defaultCode),
	}
}

// Country returns the detected country, or the default one. A missing default
// country is a configuration error.
func (d *Detector) Country(ctx context.Context, r *http.Request) (*models.Country, error) {
	if r != nil && d.header != "" {
		code := strings.ToUpper(strings.TrimSpace(r.Header.Get(d.header)))
		// XX and T1 are the proxy's unknown and Tor markers
		if len(code) == 2 && code != "XX" && code != "T1" {
			c, err := d.countries.GetCountryByCode(ctx, code)
			if err == nil {
				return c, nil
			}
		}
	}
	return d.Default(ctx)
}

// CountryID is Country reduced to its ID.
func (d *Detector) CountryID(ctx context.Context, r *http.Request) (int64, error) {
	c, err := d.Country(ctx, r)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// Default returns the configured fallback country.
func (d *Detector) Default(ctx context.Context) (*models.Country, error) {
	if d.defaultCode == "" {
		return nil, errors.New("default country code is not configured")
	}
	c, err := d.countries.GetCountryByCode(ctx, d.defaultCode)
	if err != nil {
		return nil, fmt.Errorf("default country %s is not seeded: %w", d.defaultCode, err)
	}
	return c, nil
}
