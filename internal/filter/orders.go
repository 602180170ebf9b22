package filter

import (
	"fmt"
	"strings"

	"storefront/internal/models"
)

// OrderRecord is what order predicates see. SQL renderings assume the orders
// table is aliased as o.
type OrderRecord struct {
	Order          models.Order
	ProductNames   []string
	HistoryActions []string
}

func (r OrderRecord) hasAction(action string) bool {
	for _, a := range r.HistoryActions {
		if a == action {
			return true
		}
	}
	return false
}

// EverCancelled reports whether the history log holds an order_cancelled entry.
func (r OrderRecord) EverCancelled() bool {
	return r.hasAction(models.HistoryOrderCancelled)
}

type OrderPredicate = Predicate[OrderRecord]

// EverCancelledSQL is the history-log half of the cancelled semantics.
func EverCancelledSQL(a *Args) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM order_history h WHERE h.order_id = o.id AND h.action = %s)",
		a.Add(models.HistoryOrderCancelled))
}

func OrderOfCustomer(customerID int64) OrderPredicate {
	return New(
		func(r OrderRecord) bool { return r.Order.CustomerID == customerID },
		func(a *Args) string { return "o.customer_id = " + a.Add(customerID) },
	)
}

// OrderStatus filters by the derived lifecycle: active orders have neither the
// cancelled status nor an order_cancelled history entry; cancelled orders have
// either. The history log wins when it disagrees with the status column.
func OrderStatus(mode string) OrderPredicate {
	switch mode {
	case models.OrderFilterActive:
		return New(
			func(r OrderRecord) bool {
				return r.Order.Status != models.OrderStatusCancelled && !r.EverCancelled()
			},
			func(a *Args) string {
				return fmt.Sprintf("o.status <> %s AND NOT %s", a.Add(models.OrderStatusCancelled), EverCancelledSQL(a))
			},
		)
	case models.OrderFilterCancelled:
		return New(
			func(r OrderRecord) bool {
				return r.Order.Status == models.OrderStatusCancelled || r.EverCancelled()
			},
			func(a *Args) string {
				return fmt.Sprintf("o.status = %s OR %s", a.Add(models.OrderStatusCancelled), EverCancelledSQL(a))
			},
		)
	}
	return OrderPredicate{}
}

func OrderCreatedWithin(w Window) OrderPredicate {
	if w.IsUnbounded() {
		return OrderPredicate{}
	}
	return New(
		func(r OrderRecord) bool { return w.Contains(r.Order.CreatedAt) },
		func(a *Args) string { return windowSQL("o.created_at", w, a) },
	)
}

// OrderSearch matches the order number or any line product name, case-insensitively.
func OrderSearch(term string) OrderPredicate {
	term = strings.TrimSpace(term)
	if term == "" {
		return OrderPredicate{}
	}
	return New(
		func(r OrderRecord) bool {
			if containsFold(r.Order.OrderNumber, term) {
				return true
			}
			for _, name := range r.ProductNames {
				if containsFold(name, term) {
					return true
				}
			}
			return false
		},
		func(a *Args) string {
			p := a.Add(LikePattern(term))
			return fmt.Sprintf(
				"o.order_number ILIKE %s OR EXISTS (SELECT 1 FROM order_products op WHERE op.order_id = o.id AND op.name ILIKE %s)",
				p, p)
		},
	)
}
