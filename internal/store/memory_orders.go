package store

import (
	"context"
	"sort"
	"time"

	"storefront/internal/filter"
	"storefront/internal/models"
)

func paginate[T any](items []T, page models.Page) []T {
	if page.All {
		return items
	}
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *models.Order) error {
	defer m.lock(ctx)()
	for _, existing := range m.data.orders {
		if existing.OrderNumber == o.OrderNumber {
			return ErrConstraint
		}
	}
	o.ID = m.data.nextID()
	now := m.now()
	o.CreatedAt, o.UpdatedAt = now, now
	m.data.orders[o.ID] = *o
	return nil
}

func (m *MemoryStore) CreateOrderProduct(ctx context.Context, p *models.OrderProduct) error {
	defer m.lock(ctx)()
	if _, ok := m.data.orders[p.OrderID]; !ok {
		return ErrConstraint
	}
	p.ID = m.data.nextID()
	m.data.orderProducts[p.ID] = *p
	return nil
}

func (m *MemoryStore) CreateOrderAddress(ctx context.Context, a *models.OrderAddress) error {
	defer m.lock(ctx)()
	a.ID = m.data.nextID()
	m.data.orderAddrs[a.ID] = *a
	return nil
}

func (m *MemoryStore) CreateOrderShipping(ctx context.Context, sh *models.OrderShipping) error {
	defer m.lock(ctx)()
	for _, existing := range m.data.orderShipping {
		if existing.OrderID == sh.OrderID {
			return ErrConstraint
		}
	}
	sh.ID = m.data.nextID()
	m.data.orderShipping[sh.ID] = *sh
	return nil
}

func (m *MemoryStore) AppendOrderHistory(ctx context.Context, h *models.OrderHistory) error {
	defer m.lock(ctx)()
	h.OldValue, h.NewValue = jsonOrEmpty(h.OldValue), jsonOrEmpty(h.NewValue)
	h.ID = m.data.nextID()
	h.CreatedAt = m.now()
	m.data.history[h.ID] = *h
	return nil
}

func (m *MemoryStore) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	defer m.lock(ctx)()
	for _, o := range m.data.orders {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	defer m.lock(ctx)()
	o, ok := m.data.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *MemoryStore) GetCustomerOrder(ctx context.Context, customerID, id int64) (*models.Order, error) {
	defer m.lock(ctx)()
	o, ok := m.data.orders[id]
	if !ok || o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *MemoryStore) orderLines(orderID int64) []models.OrderProduct {
	var out []models.OrderProduct
	for _, p := range m.data.orderProducts {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) orderHistory(orderID int64) []models.OrderHistory {
	var out []models.OrderHistory
	for _, h := range m.data.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) ListOrderProducts(ctx context.Context, orderID int64) ([]models.OrderProduct, error) {
	defer m.lock(ctx)()
	return m.orderLines(orderID), nil
}

func (m *MemoryStore) ListOrderProductsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.OrderProduct, error) {
	defer m.lock(ctx)()
	out := []models.OrderProduct{}
	sorted := append([]int64(nil), orderIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		out = append(out, m.orderLines(id)...)
	}
	return out, nil
}

func (m *MemoryStore) GetOrderProduct(ctx context.Context, orderID, id int64) (*models.OrderProduct, error) {
	defer m.lock(ctx)()
	p, ok := m.data.orderProducts[id]
	if !ok || p.OrderID != orderID {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) ListOrderAddresses(ctx context.Context, orderID int64) ([]models.OrderAddress, error) {
	defer m.lock(ctx)()
	var out []models.OrderAddress
	for _, a := range m.data.orderAddrs {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetOrderShipping(ctx context.Context, orderID int64) (*models.OrderShipping, error) {
	defer m.lock(ctx)()
	for _, sh := range m.data.orderShipping {
		if sh.OrderID == orderID {
			return &sh, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListOrderHistory(ctx context.Context, orderID int64) ([]models.OrderHistory, error) {
	defer m.lock(ctx)()
	return m.orderHistory(orderID), nil
}

func (m *MemoryStore) HasOrderHistoryAction(ctx context.Context, orderID int64, action string) (bool, error) {
	defer m.lock(ctx)()
	for _, h := range m.data.history {
		if h.OrderID == orderID && h.Action == action {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) FirstOrderTime(ctx context.Context, customerID int64) (*time.Time, error) {
	defer m.lock(ctx)()
	var first *time.Time
	for _, o := range m.data.orders {
		if o.CustomerID != customerID {
			continue
		}
		if first == nil || o.CreatedAt.Before(*first) {
			t := o.CreatedAt
			first = &t
		}
	}
	return first, nil
}

func (m *MemoryStore) orderRecord(o models.Order) filter.OrderRecord {
	rec := filter.OrderRecord{Order: o}
	for _, line := range m.orderLines(o.ID) {
		rec.ProductNames = append(rec.ProductNames, line.Name)
	}
	for _, h := range m.orderHistory(o.ID) {
		rec.HistoryActions = append(rec.HistoryActions, h.Action)
	}
	return rec
}

func (m *MemoryStore) SearchOrders(ctx context.Context, pred filter.OrderPredicate, page models.Page) ([]models.OrderListing, int, error) {
	defer m.lock(ctx)()

	var matched []models.OrderListing
	for _, o := range m.data.orders {
		rec := m.orderRecord(o)
		if pred.Match(rec) {
			matched = append(matched, models.OrderListing{Order: o, EverCancelled: rec.EverCancelled()})
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	return paginate(matched, page), len(matched), nil
}

func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	defer m.lock(ctx)()
	o, ok := m.data.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = m.now()
	m.data.orders[orderID] = o
	return nil
}

func (m *MemoryStore) MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time) (bool, error) {
	defer m.lock(ctx)()
	o, ok := m.data.orders[orderID]
	if !ok || o.IsPaid {
		return false, nil
	}
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.UpdatedAt = m.now()
	m.data.orders[orderID] = o
	return true, nil
}
