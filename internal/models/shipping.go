package models

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Well-known shipping config keys
const (
	ShippingConfigFreeThresholdRON = "free_shipping_threshold_ron"
)

// ShippingConfig indexes a method's config rows by key.
type ShippingConfig map[string]ShippingMethodConfig

func NewShippingConfig(rows []ShippingMethodConfig) ShippingConfig {
	cfg := make(ShippingConfig, len(rows))
	for _, r := range rows {
		cfg[r.ConfigKey] = r
	}
	return cfg
}

func (c ShippingConfig) lookup(key, valueType string) (string, bool, error) {
	row, ok := c[key]
	if !ok {
		return "", false, nil
	}
	if row.ValueType != valueType {
		return "", false, fmt.Errorf("shipping config %q is %s, not %s", key, row.ValueType, valueType)
	}
	return row.ConfigValue, true, nil
}

// String returns string and secret values.
func (c ShippingConfig) String(key string) (string, bool, error) {
	row, ok := c[key]
	if !ok {
		return "", false, nil
	}
	if row.ValueType != ConfigValueString && row.ValueType != ConfigValueSecret {
		return "", false, fmt.Errorf("shipping config %q is %s, not string", key, row.ValueType)
	}
	return row.ConfigValue, true, nil
}

func (c ShippingConfig) Int(key string) (int, bool, error) {
	v, ok, err := c.lookup(key, ConfigValueInt)
	if !ok || err != nil {
		return 0, ok, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("shipping config %q: %w", key, err)
	}
	return n, true, nil
}

func (c ShippingConfig) Bool(key string) (bool, bool, error) {
	v, ok, err := c.lookup(key, ConfigValueBool)
	if !ok || err != nil {
		return false, ok, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, fmt.Errorf("shipping config %q: %w", key, err)
	}
	return b, true, nil
}

func (c ShippingConfig) Decimal(key string) (decimal.Decimal, bool, error) {
	v, ok, err := c.lookup(key, ConfigValueDecimal)
	if !ok || err != nil {
		return decimal.Zero, ok, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("shipping config %q: %w", key, err)
	}
	return d, true, nil
}
