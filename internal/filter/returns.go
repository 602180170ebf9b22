package filter

import (
	"fmt"
	"strings"

	"storefront/internal/models"
)

// ReturnRecord is what return predicates see. SQL renderings assume the returns
// table is aliased as r.
type ReturnRecord struct {
	Return models.Return
	// OrderCustomerID is the owner of the order the return points at.
	OrderCustomerID int64
}

type ReturnPredicate = Predicate[ReturnRecord]

// ReturnOfCustomer scopes returns through the owning order, not the return's own
// customer snapshot.
func ReturnOfCustomer(customerID int64) ReturnPredicate {
	return New(
		func(r ReturnRecord) bool { return r.OrderCustomerID == customerID },
		func(a *Args) string {
			return "r.order_id IN (SELECT id FROM orders WHERE customer_id = " + a.Add(customerID) + ")"
		},
	)
}

// ReturnStatus keeps returns in the given status; empty or "all" keeps everything.
func ReturnStatus(status string) ReturnPredicate {
	if status == "" || status == models.OrderFilterAll {
		return ReturnPredicate{}
	}
	return New(
		func(r ReturnRecord) bool { return r.Return.Status == status },
		func(a *Args) string { return "r.status = " + a.Add(status) },
	)
}

func ReturnCreatedWithin(w Window) ReturnPredicate {
	if w.IsUnbounded() {
		return ReturnPredicate{}
	}
	return New(
		func(r ReturnRecord) bool { return w.Contains(r.Return.CreatedAt) },
		func(a *Args) string { return windowSQL("r.created_at", w, a) },
	)
}

// ReturnSearch matches order number, product name or SKU.
func ReturnSearch(term string) ReturnPredicate {
	term = strings.TrimSpace(term)
	if term == "" {
		return ReturnPredicate{}
	}
	return New(
		func(r ReturnRecord) bool {
			return containsFold(r.Return.OrderNumber, term) ||
				containsFold(r.Return.ProductName, term) ||
				containsFold(r.Return.ProductSKU, term)
		},
		func(a *Args) string {
			p := a.Add(LikePattern(term))
			return fmt.Sprintf("r.order_number ILIKE %s OR r.product_name ILIKE %s OR r.product_sku ILIKE %s", p, p, p)
		},
	)
}
