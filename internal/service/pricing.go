package service

import (
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ResolveUnitPriceRON returns the price of the highest tier whose MinQuantity does
// not exceed qty, or base when no tier applies.
func ResolveUnitPriceRON(base decimal.Decimal, tiers []models.ProductGroupPrice, qty int) decimal.Decimal {
	price := base
	best := 0
	for _, t := range tiers {
		if t.MinQuantity <= qty && t.MinQuantity > best {
			best = t.MinQuantity
			price = t.PriceRON
		}
	}
	return price
}

// FromRON converts a RON amount into a currency quoted as RON per unit.
func FromRON(amountRON, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return amountRON
	}
	return amountRON.Div(rate).Round(2)
}

// WithVAT adds percent VAT to amount.
func WithVAT(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(hundred.Add(percent)).Div(hundred).Round(2)
}

// IsVATExempt reports reverse-charge: a company billed in another EU country.
func IsVATExempt(c *models.Customer, billing *models.Country, homeCountryCode string) bool {
	if c == nil || billing == nil || !c.IsCompany() {
		return false
	}
	return billing.IsEU && !strings.EqualFold(billing.Code, homeCountryCode)
}

// PriceLine freezes the line snapshot for qty units of p.
func PriceLine(p *models.Product, tiers []models.ProductGroupPrice, qty int, snap models.PricingSnapshot) models.LineSnapshot {
	unitRON := ResolveUnitPriceRON(p.PriceRON, tiers, qty)
	unit := FromRON(unitRON, snap.ExchangeRate)
	q := decimal.NewFromInt(int64(qty))

	return models.LineSnapshot{
		Name:                 p.Name,
		SKU:                  p.SKU,
		EAN:                  p.EAN,
		Currency:             snap.Currency,
		ExchangeRate:         snap.ExchangeRate,
		VATRate:              snap.VATRateApplied,
		UnitPrice:            unit,
		UnitPriceRON:         unitRON,
		UnitPurchasePriceRON: p.PurchasePriceRON,
		TotalPrice:           unit.Mul(q),
		TotalPriceRON:        unitRON.Mul(q),
		ProfitRON:            unitRON.Sub(p.PurchasePriceRON).Mul(q),
	}
}

// ShippingCost freezes the shipping snapshot. A free shipping threshold in the
// method config zeroes the cost once the RON subtotal reaches it.
func ShippingCost(m *models.ShippingMethod, cfg models.ShippingConfig, subtotalRON decimal.Decimal, snap models.PricingSnapshot) (models.OrderShipping, error) {
	costRON := m.BaseCostRON
	threshold, ok, err := cfg.Decimal(models.ShippingConfigFreeThresholdRON)
	if err != nil {
		return models.OrderShipping{}, err
	}
	if ok && subtotalRON.GreaterThanOrEqual(threshold) {
		costRON = decimal.Zero
	}

	vat := effectiveVAT(snap)
	cost := FromRON(costRON, snap.ExchangeRate)
	return models.OrderShipping{
		ShippingMethodID: m.ID,
		MethodName:       m.Name,
		CostExclVAT:      cost,
		CostInclVAT:      WithVAT(cost, vat),
		CostRONExclVAT:   costRON,
		CostRONInclVAT:   WithVAT(costRON, vat),
	}, nil
}

// OrderTotals sums lines and shipping in both currencies.
func OrderTotals(lines []models.LineSnapshot, shipping models.OrderShipping, snap models.PricingSnapshot) models.OrderTotals {
	excl, exclRON := shipping.CostExclVAT, shipping.CostRONExclVAT
	for _, l := range lines {
		excl = excl.Add(l.TotalPrice)
		exclRON = exclRON.Add(l.TotalPriceRON)
	}

	vat := effectiveVAT(snap)
	return models.OrderTotals{
		TotalExclVAT:    excl,
		TotalInclVAT:    WithVAT(excl, vat),
		TotalRONExclVAT: exclRON,
		TotalRONInclVAT: WithVAT(exclRON, vat),
	}
}

// effectiveVAT is the rate charged; exempt orders keep the stored rate but pay none.
func effectiveVAT(snap models.PricingSnapshot) decimal.Decimal {
	if snap.IsVATExempt {
		return decimal.Zero
	}
	return snap.VATRateApplied
}
