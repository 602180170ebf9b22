package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/filter"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

const returnColumns = `r.id, r.return_number, r.order_id, r.order_product_id, r.customer_id, r.product_id,
	r.order_number, r.customer_name, r.customer_email, r.customer_phone, r.product_name, r.product_sku,
	r.reason, r.details, r.quantity, r.is_opened, r.iban, r.status, r.refund_amount,
	r.restock_item, r.restocked_at, r.created_at, r.updated_at`

// CreateReturn inserts a return with its identity snapshot
func (s *Store) CreateReturn(ctx context.Context, r *models.Return) error {
	query := `
		INSERT INTO returns (return_number, order_id, order_product_id, customer_id, product_id,
			order_number, customer_name, customer_email, customer_phone, product_name, product_sku,
			reason, details, quantity, is_opened, iban, status, restock_item)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at`

	return s.q(ctx).GetContext(ctx, r, query,
		r.ReturnNumber, r.OrderID, r.OrderProductID, r.CustomerID, r.ProductID,
		r.OrderNumber, r.CustomerName, r.CustomerEmail, r.CustomerPhone, r.ProductName, r.ProductSKU,
		r.Reason, r.Details, r.Quantity, r.IsOpened, r.IBAN, r.Status, r.RestockItem)
}

// ReturnNumberExists checks return number uniqueness
func (s *Store) ReturnNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.q(ctx).GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM returns WHERE return_number = $1)", number)
	return exists, err
}

// GetReturn retrieves a return by ID
func (s *Store) GetReturn(ctx context.Context, id int64) (*models.Return, error) {
	var r models.Return
	err := s.q(ctx).GetContext(ctx, &r, "SELECT "+returnColumns+" FROM returns r WHERE r.id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// GetCustomerReturn retrieves a return whose order belongs to the customer
func (s *Store) GetCustomerReturn(ctx context.Context, customerID, id int64) (*models.Return, error) {
	var r models.Return
	err := s.q(ctx).GetContext(ctx, &r, `
		SELECT `+returnColumns+` FROM returns r
		JOIN orders o ON o.id = r.order_id
		WHERE r.id = $1 AND o.customer_id = $2`, id, customerID)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ReturnedQuantity sums the quantities of non-rejected returns on an order line
func (s *Store) ReturnedQuantity(ctx context.Context, orderProductID int64) (int, error) {
	var n int
	err := s.q(ctx).GetContext(ctx, &n,
		"SELECT COALESCE(SUM(quantity), 0) FROM returns WHERE order_product_id = $1 AND status <> $2",
		orderProductID, models.ReturnStatusRejected)
	return n, err
}

// FirstReturnTime returns when the customer opened their first return, nil if never.
// customerID 0 means the first return of any customer.
func (s *Store) FirstReturnTime(ctx context.Context, customerID int64) (*time.Time, error) {
	var first *time.Time
	err := s.q(ctx).GetContext(ctx, &first, `
		SELECT MIN(r.created_at) FROM returns r
		JOIN orders o ON o.id = r.order_id
		WHERE $1::bigint = 0 OR o.customer_id = $1`, customerID)
	return first, err
}

// SearchReturns returns one page of returns matching pred, newest first, and the total match count
func (s *Store) SearchReturns(ctx context.Context, pred filter.ReturnPredicate, page models.Page) ([]models.Return, int, error) {
	var args filter.Args
	where := pred.SQL(&args)

	var total int
	if err := s.q(ctx).GetContext(ctx, &total,
		"SELECT COUNT(*) FROM returns r WHERE "+where, args.Values()...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM returns r WHERE %s ORDER BY r.created_at DESC, r.id DESC", returnColumns, where)
	if !page.All {
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", args.Add(page.Size), args.Add(page.Offset()))
	}

	var returns []models.Return
	if err := s.q(ctx).SelectContext(ctx, &returns, query, args.Values()...); err != nil {
		return nil, 0, err
	}
	return returns, total, nil
}

// UpdateReturnStatus overwrites the return status
func (s *Store) UpdateReturnStatus(ctx context.Context, id int64, status string) error {
	return affectedOne(s.q(ctx).ExecContext(ctx,
		"UPDATE returns SET status = $1, updated_at = NOW() WHERE id = $2", status, id))
}

// UpdateReturnRefund sets or clears the refund amount
func (s *Store) UpdateReturnRefund(ctx context.Context, id int64, amount *decimal.Decimal) error {
	return affectedOne(s.q(ctx).ExecContext(ctx,
		"UPDATE returns SET refund_amount = $1, updated_at = NOW() WHERE id = $2", amount, id))
}

// SetReturnRestockFlag stores the admin's restock decision without applying it
func (s *Store) SetReturnRestockFlag(ctx context.Context, id int64, restock bool) error {
	return affectedOne(s.q(ctx).ExecContext(ctx,
		"UPDATE returns SET restock_item = $1, updated_at = NOW() WHERE id = $2", restock, id))
}

// MarkReturnRestocked stamps restocked_at if it is still empty. It reports false
// when another call already applied the restock.
func (s *Store) MarkReturnRestocked(ctx context.Context, id int64, at time.Time) (bool, error) {
	return affected(s.q(ctx).ExecContext(ctx,
		"UPDATE returns SET restocked_at = $1, updated_at = NOW() WHERE id = $2 AND restocked_at IS NULL",
		at, id))
}

// SearchReturnableItems lists order lines of the customer's non-cancelled orders
// that match term. Lines match on product name or SKU; an order matched only by
// its number contributes its first line once.
func (s *Store) SearchReturnableItems(ctx context.Context, customerID int64, term string) ([]models.ReturnableItem, error) {
	var args filter.Args
	cust := args.Add(customerID)
	cancelled := args.Add(models.OrderStatusCancelled)
	history := filter.EverCancelledSQL(&args)
	pattern := args.Add(filter.LikePattern(term))

	query := fmt.Sprintf(`
		WITH lines AS (
			SELECT o.id AS order_id, o.order_number, o.created_at AS ordered_at,
				op.id AS order_product_id, op.name AS product_name, op.sku AS product_sku, op.quantity,
				ROW_NUMBER() OVER (PARTITION BY o.id ORDER BY op.id) AS line_no,
				(op.name ILIKE %[4]s OR op.sku ILIKE %[4]s) AS line_match,
				BOOL_OR(op.name ILIKE %[4]s OR op.sku ILIKE %[4]s) OVER (PARTITION BY o.id) AS order_has_line_match,
				o.order_number ILIKE %[4]s AS order_match
			FROM orders o
			JOIN order_products op ON op.order_id = o.id
			WHERE o.customer_id = %[1]s AND o.status <> %[2]s AND NOT %[3]s
		)
		SELECT order_id, order_number, order_product_id, product_name, product_sku, quantity, ordered_at
		FROM lines
		WHERE line_match OR (order_match AND NOT order_has_line_match AND line_no = 1)
		ORDER BY ordered_at DESC, order_id DESC, order_product_id`,
		cust, cancelled, history, pattern)

	var items []models.ReturnableItem
	err := s.q(ctx).SelectContext(ctx, &items, query, args.Values()...)
	return items, err
}
