package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/filter"
	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

// jsonOrEmpty keeps history payloads valid JSON; the columns default to {}.
func jsonOrEmpty(j types.JSONText) types.JSONText {
	if len(j) == 0 {
		return types.JSONText("{}")
	}
	return j
}

const orderColumns = `o.id, o.customer_id, o.order_number, o.status, o.payment_method,
	o.currency, o.exchange_rate, o.vat_rate_applied, o.is_vat_exempt,
	o.total_excl_vat, o.total_incl_vat, o.total_ron_excl_vat, o.total_ron_incl_vat,
	o.is_paid, o.paid_at, o.created_at, o.updated_at`

const orderProductColumns = `id, order_id, product_id, quantity, name, sku, ean, currency, exchange_rate,
	vat_rate, unit_price, unit_price_ron, unit_purchase_price_ron, total_price, total_price_ron, profit_ron`

// CreateOrder inserts the order with its pricing snapshot and totals
func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, order_number, status, payment_method,
			currency, exchange_rate, vat_rate_applied, is_vat_exempt,
			total_excl_vat, total_incl_vat, total_ron_excl_vat, total_ron_incl_vat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	return s.q(ctx).GetContext(ctx, o, query,
		o.CustomerID, o.OrderNumber, o.Status, o.PaymentMethod,
		o.Currency, o.ExchangeRate, o.VATRateApplied, o.IsVATExempt,
		o.TotalExclVAT, o.TotalInclVAT, o.TotalRONExclVAT, o.TotalRONInclVAT)
}

// CreateOrderProduct inserts an order line snapshot
func (s *Store) CreateOrderProduct(ctx context.Context, p *models.OrderProduct) error {
	query := `
		INSERT INTO order_products (order_id, product_id, quantity, name, sku, ean, currency, exchange_rate,
			vat_rate, unit_price, unit_price_ron, unit_purchase_price_ron, total_price, total_price_ron, profit_ron)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	return s.q(ctx).GetContext(ctx, &p.ID, query,
		p.OrderID, p.ProductID, p.Quantity, p.Name, p.SKU, p.EAN, p.Currency, p.ExchangeRate,
		p.VATRate, p.UnitPrice, p.UnitPriceRON, p.UnitPurchasePriceRON, p.TotalPrice, p.TotalPriceRON, p.ProfitRON)
}

// CreateOrderAddress inserts a billing or shipping address snapshot
func (s *Store) CreateOrderAddress(ctx context.Context, a *models.OrderAddress) error {
	query := `
		INSERT INTO order_addresses (order_id, address_type, first_name, last_name, phone, company_name,
			fiscal_code, address_line_1, address_line_2, city, county, country_id, country_code, zip_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	return s.q(ctx).GetContext(ctx, &a.ID, query,
		a.OrderID, a.AddressType, a.FirstName, a.LastName, a.Phone, a.CompanyName,
		a.FiscalCode, a.AddressLine1, a.AddressLine2, a.City, a.County, a.CountryID, a.CountryCode, a.ZipCode)
}

// CreateOrderShipping inserts the shipping snapshot
func (s *Store) CreateOrderShipping(ctx context.Context, sh *models.OrderShipping) error {
	query := `
		INSERT INTO order_shipping (order_id, shipping_method_id, method_name, cost_excl_vat, cost_incl_vat,
			cost_ron_excl_vat, cost_ron_incl_vat, tracking_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return s.q(ctx).GetContext(ctx, &sh.ID, query,
		sh.OrderID, sh.ShippingMethodID, sh.MethodName, sh.CostExclVAT, sh.CostInclVAT,
		sh.CostRONExclVAT, sh.CostRONInclVAT, sh.TrackingNumber)
}

// AppendOrderHistory appends an audit entry
func (s *Store) AppendOrderHistory(ctx context.Context, h *models.OrderHistory) error {
	query := `
		INSERT INTO order_history (order_id, action, old_value, new_value, actor_type, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	h.OldValue, h.NewValue = jsonOrEmpty(h.OldValue), jsonOrEmpty(h.NewValue)
	return s.q(ctx).GetContext(ctx, h, query,
		h.OrderID, h.Action, h.OldValue, h.NewValue, h.ActorType, h.ActorID)
}

// OrderNumberExists checks order number uniqueness
func (s *Store) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.q(ctx).GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)", number)
	return exists, err
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	err := s.q(ctx).GetContext(ctx, &o, "SELECT "+orderColumns+" FROM orders o WHERE o.id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// GetCustomerOrder retrieves an order owned by the customer
func (s *Store) GetCustomerOrder(ctx context.Context, customerID, id int64) (*models.Order, error) {
	var o models.Order
	err := s.q(ctx).GetContext(ctx, &o,
		"SELECT "+orderColumns+" FROM orders o WHERE o.id = $1 AND o.customer_id = $2", id, customerID)
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// ListOrderProducts retrieves all lines of an order
func (s *Store) ListOrderProducts(ctx context.Context, orderID int64) ([]models.OrderProduct, error) {
	var items []models.OrderProduct
	err := s.q(ctx).SelectContext(ctx, &items,
		"SELECT "+orderProductColumns+" FROM order_products WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListOrderProductsByOrderIDs retrieves the lines of several orders
func (s *Store) ListOrderProductsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.OrderProduct, error) {
	if len(orderIDs) == 0 {
		return []models.OrderProduct{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+orderProductColumns+" FROM order_products WHERE order_id IN (?) ORDER BY order_id, id", orderIDs)
	if err != nil {
		return nil, err
	}

	var items []models.OrderProduct
	err = s.q(ctx).SelectContext(ctx, &items, s.db.Rebind(query), args...)
	return items, err
}

// GetOrderProduct retrieves one line of an order
func (s *Store) GetOrderProduct(ctx context.Context, orderID, id int64) (*models.OrderProduct, error) {
	var p models.OrderProduct
	err := s.q(ctx).GetContext(ctx, &p,
		"SELECT "+orderProductColumns+" FROM order_products WHERE id = $1 AND order_id = $2", id, orderID)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) ListOrderAddresses(ctx context.Context, orderID int64) ([]models.OrderAddress, error) {
	var addrs []models.OrderAddress
	err := s.q(ctx).SelectContext(ctx, &addrs, `
		SELECT id, order_id, address_type, first_name, last_name, phone, company_name, fiscal_code,
			address_line_1, address_line_2, city, county, country_id, country_code, zip_code
		FROM order_addresses WHERE order_id = $1 ORDER BY id`, orderID)
	return addrs, err
}

func (s *Store) GetOrderShipping(ctx context.Context, orderID int64) (*models.OrderShipping, error) {
	var sh models.OrderShipping
	err := s.q(ctx).GetContext(ctx, &sh, `
		SELECT id, order_id, shipping_method_id, method_name, cost_excl_vat, cost_incl_vat,
			cost_ron_excl_vat, cost_ron_incl_vat, tracking_number
		FROM order_shipping WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, notFound(err)
	}
	return &sh, nil
}

// ListOrderHistory returns the audit log of an order, oldest first
func (s *Store) ListOrderHistory(ctx context.Context, orderID int64) ([]models.OrderHistory, error) {
	var entries []models.OrderHistory
	err := s.q(ctx).SelectContext(ctx, &entries, `
		SELECT id, order_id, action, old_value, new_value, actor_type, actor_id, created_at
		FROM order_history WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	return entries, err
}

// HasOrderHistoryAction reports whether the order's log contains action
func (s *Store) HasOrderHistoryAction(ctx context.Context, orderID int64, action string) (bool, error) {
	var exists bool
	err := s.q(ctx).GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM order_history WHERE order_id = $1 AND action = $2)", orderID, action)
	return exists, err
}

// FirstOrderTime returns when the customer placed their first order, nil if never
func (s *Store) FirstOrderTime(ctx context.Context, customerID int64) (*time.Time, error) {
	var first *time.Time
	err := s.q(ctx).GetContext(ctx, &first,
		"SELECT MIN(created_at) FROM orders WHERE customer_id = $1", customerID)
	return first, err
}

// SearchOrders returns one page of orders matching pred, newest first, and the total match count
func (s *Store) SearchOrders(ctx context.Context, pred filter.OrderPredicate, page models.Page) ([]models.OrderListing, int, error) {
	var args filter.Args
	where := pred.SQL(&args)

	var total int
	if err := s.q(ctx).GetContext(ctx, &total,
		"SELECT COUNT(*) FROM orders o WHERE "+where, args.Values()...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s, %s AS ever_cancelled FROM orders o WHERE %s ORDER BY o.created_at DESC, o.id DESC",
		orderColumns, filter.EverCancelledSQL(&args), where)
	if !page.All {
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", args.Add(page.Size), args.Add(page.Offset()))
	}

	var orders []models.OrderListing
	if err := s.q(ctx).SelectContext(ctx, &orders, query, args.Values()...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	return affectedOne(s.q(ctx).ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID))
}

// MarkOrderPaid records payment once; false means it was already paid
func (s *Store) MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time) (bool, error) {
	return affected(s.q(ctx).ExecContext(ctx,
		"UPDATE orders SET is_paid = TRUE, paid_at = $1, updated_at = NOW() WHERE id = $2 AND NOT is_paid",
		paidAt, orderID))
}
