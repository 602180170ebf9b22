package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"storefront/internal/filter"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

func (m *MemoryStore) CreateReturn(ctx context.Context, r *models.Return) error {
	defer m.lock(ctx)()
	for _, existing := range m.data.returns {
		if existing.ReturnNumber == r.ReturnNumber {
			return ErrConstraint
		}
	}
	if _, ok := m.data.orderProducts[r.OrderProductID]; !ok {
		return ErrConstraint
	}
	r.ID = m.data.nextID()
	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	m.data.returns[r.ID] = *r
	return nil
}

func (m *MemoryStore) ReturnNumberExists(ctx context.Context, number string) (bool, error) {
	defer m.lock(ctx)()
	for _, r := range m.data.returns {
		if r.ReturnNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) GetReturn(ctx context.Context, id int64) (*models.Return, error) {
	defer m.lock(ctx)()
	r, ok := m.data.returns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) GetCustomerReturn(ctx context.Context, customerID, id int64) (*models.Return, error) {
	defer m.lock(ctx)()
	r, ok := m.data.returns[id]
	if !ok || m.data.orders[r.OrderID].CustomerID != customerID {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ReturnedQuantity(ctx context.Context, orderProductID int64) (int, error) {
	defer m.lock(ctx)()
	n := 0
	for _, r := range m.data.returns {
		if r.OrderProductID == orderProductID && r.Status != models.ReturnStatusRejected {
			n += r.Quantity
		}
	}
	return n, nil
}

func (m *MemoryStore) FirstReturnTime(ctx context.Context, customerID int64) (*time.Time, error) {
	defer m.lock(ctx)()
	var first *time.Time
	for _, r := range m.data.returns {
		if customerID != 0 && m.data.orders[r.OrderID].CustomerID != customerID {
			continue
		}
		if first == nil || r.CreatedAt.Before(*first) {
			t := r.CreatedAt
			first = &t
		}
	}
	return first, nil
}

func (m *MemoryStore) SearchReturns(ctx context.Context, pred filter.ReturnPredicate, page models.Page) ([]models.Return, int, error) {
	defer m.lock(ctx)()

	var matched []models.Return
	for _, r := range m.data.returns {
		rec := filter.ReturnRecord{Return: r, OrderCustomerID: m.data.orders[r.OrderID].CustomerID}
		if pred.Match(rec) {
			matched = append(matched, r)
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

func (m *MemoryStore) updateReturn(ctx context.Context, id int64, fn func(*models.Return)) error {
	defer m.lock(ctx)()
	r, ok := m.data.returns[id]
	if !ok {
		return ErrNotFound
	}
	fn(&r)
	r.UpdatedAt = m.now()
	m.data.returns[id] = r
	return nil
}

func (m *MemoryStore) UpdateReturnStatus(ctx context.Context, id int64, status string) error {
	return m.updateReturn(ctx, id, func(r *models.Return) { r.Status = status })
}

func (m *MemoryStore) UpdateReturnRefund(ctx context.Context, id int64, amount *decimal.Decimal) error {
	return m.updateReturn(ctx, id, func(r *models.Return) { r.RefundAmount = amount })
}

func (m *MemoryStore) SetReturnRestockFlag(ctx context.Context, id int64, restock bool) error {
	return m.updateReturn(ctx, id, func(r *models.Return) { r.RestockItem = restock })
}

func (m *MemoryStore) MarkReturnRestocked(ctx context.Context, id int64, at time.Time) (bool, error) {
	defer m.lock(ctx)()
	r, ok := m.data.returns[id]
	if !ok || r.RestockedAt != nil {
		return false, nil
	}
	r.RestockedAt = &at
	r.UpdatedAt = m.now()
	m.data.returns[id] = r
	return true, nil
}

func (m *MemoryStore) SearchReturnableItems(ctx context.Context, customerID int64, term string) ([]models.ReturnableItem, error) {
	defer m.lock(ctx)()

	term = strings.ToLower(term)
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), term) }

	var orders []models.Order
	for _, o := range m.data.orders {
		if o.CustomerID == customerID && !m.orderRecord(o).EverCancelled() && o.Status != models.OrderStatusCancelled {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})

	item := func(o models.Order, line models.OrderProduct) models.ReturnableItem {
		return models.ReturnableItem{
			OrderID:        o.ID,
			OrderNumber:    o.OrderNumber,
			OrderProductID: line.ID,
			ProductName:    line.Name,
			ProductSKU:     line.SKU,
			Quantity:       line.Quantity,
			OrderedAt:      o.CreatedAt,
		}
	}

	var items []models.ReturnableItem
	for _, o := range orders {
		lines := m.orderLines(o.ID)
		lineMatched := false
		for _, line := range lines {
			if contains(line.Name) || contains(line.SKU) {
				items = append(items, item(o, line))
				lineMatched = true
			}
		}
		if !lineMatched && len(lines) > 0 && contains(o.OrderNumber) {
			items = append(items, item(o, lines[0]))
		}
	}
	return items, nil
}
