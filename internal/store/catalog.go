package store

import (
	"context"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, parent_id, product_type, sku, ean, name, price_ron, purchase_price_ron, stock, created_at`

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.q(ctx).SelectContext(ctx, &products, "SELECT "+productColumns+" FROM products ORDER BY id")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.q(ctx).SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetGroupPrices returns the price tiers of a product for a customer group
func (s *Store) GetGroupPrices(ctx context.Context, productID, groupID int64) ([]models.ProductGroupPrice, error) {
	var tiers []models.ProductGroupPrice
	err := s.q(ctx).SelectContext(ctx, &tiers, `
		SELECT id, product_id, customer_group_id, min_quantity, price_ron
		FROM product_group_prices
		WHERE product_id = $1 AND customer_group_id = $2
		ORDER BY min_quantity`,
		productID, groupID)
	return tiers, err
}

// DecrementStock takes quantity out of stock if enough is available
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	return affected(s.q(ctx).ExecContext(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
		quantity, productID))
}

// IncrementStock puts quantity back into stock
func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	return affectedOne(s.q(ctx).ExecContext(ctx,
		"UPDATE products SET stock = stock + $1 WHERE id = $2", quantity, productID))
}

// GetVATRate returns the current VAT rate of a country
func (s *Store) GetVATRate(ctx context.Context, countryID int64) (*models.VatRate, error) {
	var r models.VatRate
	err := s.q(ctx).GetContext(ctx, &r,
		"SELECT id, country_id, rate FROM vat_rates WHERE country_id = $1", countryID)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// GetShippingMethod retrieves a shipping method by ID
func (s *Store) GetShippingMethod(ctx context.Context, id int64) (*models.ShippingMethod, error) {
	var m models.ShippingMethod
	err := s.q(ctx).GetContext(ctx, &m,
		"SELECT id, code, name, base_cost_ron, is_active FROM shipping_methods WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListShippingMethodConfigs returns the key/value config of a shipping method
func (s *Store) ListShippingMethodConfigs(ctx context.Context, methodID int64) ([]models.ShippingMethodConfig, error) {
	var rows []models.ShippingMethodConfig
	err := s.q(ctx).SelectContext(ctx, &rows, `
		SELECT id, shipping_method_id, config_key, config_value, value_type
		FROM shipping_method_configs WHERE shipping_method_id = $1 ORDER BY config_key`,
		methodID)
	return rows, err
}
