package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/validation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryKeys mimics the Redis idempotency keys: 0 marks a claimed key still in flight.
type memoryKeys struct {
	keys     map[string]int64
	claimErr error
	released []string
}

func newMemoryKeys() *memoryKeys { return &memoryKeys{keys: map[string]int64{}} }

func (m *memoryKeys) ClaimIdempotencyKey(_ context.Context, key string, _ time.Duration) (bool, int64, error) {
	if m.claimErr != nil {
		return false, 0, m.claimErr
	}
	if id, ok := m.keys[key]; ok {
		return false, id, nil
	}
	m.keys[key] = 0
	return true, 0, nil
}

func (m *memoryKeys) CompleteIdempotencyKey(_ context.Context, key string, id int64, _ time.Duration) error {
	m.keys[key] = id
	return nil
}

func (m *memoryKeys) ReleaseIdempotencyKey(_ context.Context, key string) error {
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

type returnFixture struct {
	*checkoutFixture
	returns *ReturnService
	order   *models.Order
	line    models.OrderProduct
}

func newReturnFixture(t *testing.T, cfg ReturnServiceConfig) *returnFixture {
	t.Helper()
	c := newCheckoutFixture(t)
	ctx := context.Background()

	order, err := c.svc.PlaceOrder(ctx, testUserID, c.request("RON", CheckoutLine{ProductID: c.kettle.ID, Quantity: 3}))
	require.NoError(t, err)
	lines, err := c.store.ListOrderProducts(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	svc := NewReturnService(c.store, nil, c.publisher, cfg)
	svc.now = c.clock.now
	return &returnFixture{checkoutFixture: c, returns: svc, order: order, line: lines[0]}
}

func (f *returnFixture) returnRequest(qty int) *CreateReturnRequest {
	return &CreateReturnRequest{
		OrderID:        f.order.ID,
		OrderProductID: f.line.ID,
		Reason:         models.ReturnReasonDamaged,
		Details:        "  cracked lid  ",
		Quantity:       qty,
	}
}

func TestCreateReturnSnapshotsOrderAndCustomer(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})

	req := f.returnRequest(2)
	req.IBAN = "ro49 aaaa 1b31 0075 9384 0000"
	r, err := f.returns.CreateReturn(context.Background(), testUserID, req)
	require.NoError(t, err)

	assert.Regexp(t, `^RET-[0-9A-F]{3}-[0-9A-F]{3}$`, r.ReturnNumber)
	assert.Equal(t, models.ReturnStatusPending, r.Status)
	assert.Equal(t, f.order.OrderNumber, r.OrderNumber)
	assert.Equal(t, "Ana Popescu", r.CustomerName)
	assert.Equal(t, "ana@example.com", r.CustomerEmail)
	assert.Equal(t, "Electric Kettle", r.ProductName)
	assert.Equal(t, "KET-1", r.ProductSKU)
	assert.Equal(t, "cracked lid", r.Details)
	assert.Equal(t, "RO49AAAA1B31007593840000", r.IBAN)
	require.NotNil(t, r.ProductID)
	assert.Equal(t, f.kettle.ID, *r.ProductID)
	assert.False(t, r.Restocked())

	require.Len(t, f.publisher.returns, 1)
	assert.Equal(t, r.ID, f.publisher.returns[0].ReturnID)
}

func TestCreateReturnBoundsQuantity(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	_, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(4))
	ve, ok := validation.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "The quantity may not be greater than 3.", ve.Fields["quantity"])

	first, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(2))
	require.NoError(t, err)

	_, err = f.returns.CreateReturn(ctx, testUserID, f.returnRequest(2))
	ve, ok = validation.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "Only 1 item(s) of this product can still be returned.", ve.Fields["quantity"])

	// a rejected return gives its quantity back
	_, err = f.returns.UpdateStatus(ctx, first.ID, models.ReturnStatusRejected)
	require.NoError(t, err)
	_, err = f.returns.CreateReturn(ctx, testUserID, f.returnRequest(3))
	assert.NoError(t, err)
}

func TestCreateReturnValidation(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	req := f.returnRequest(0)
	req.Reason = "bored"
	_, err := f.returns.CreateReturn(ctx, testUserID, req)
	ve, ok := validation.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "The selected reason is invalid.", ve.Fields["reason"])
	assert.Contains(t, ve.Fields, "quantity")

	req = f.returnRequest(1)
	req.IBAN = "RO00 0000"
	_, err = f.returns.CreateReturn(ctx, testUserID, req)
	ve, ok = validation.AsError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "iban")

	req = f.returnRequest(1)
	req.OrderProductID = 987654
	_, err = f.returns.CreateReturn(ctx, testUserID, req)
	assert.ErrorIs(t, err, ErrNotFound)

	f.store.AddCustomer(models.Customer{UserID: 555})
	_, err = f.returns.CreateReturn(ctx, 555, f.returnRequest(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateReturnRejectsCancelledOrder(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	_, err := f.svc.CancelOrder(ctx, testUserID, f.order.ID)
	require.NoError(t, err)

	_, err = f.returns.CreateReturn(ctx, testUserID, f.returnRequest(1))
	ve, ok := validation.AsError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "order_id")
}

func TestRestockAppliesExactlyOnce(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()
	assert.Equal(t, 7, f.stockOf(t, f.kettle.ID))

	r, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(2))
	require.NoError(t, err)

	flagged, err := f.returns.UpdateRestockFlag(ctx, r.ID, true)
	require.NoError(t, err)
	require.NotNil(t, flagged.RestockedAt)
	stamp := *flagged.RestockedAt
	assert.Equal(t, 9, f.stockOf(t, f.kettle.ID))

	f.clock.advance(time.Hour)
	_, err = f.returns.UpdateRestockFlag(ctx, r.ID, false)
	require.NoError(t, err)
	again, err := f.returns.UpdateRestockFlag(ctx, r.ID, true)
	require.NoError(t, err)
	_, err = f.returns.UpdateStatus(ctx, r.ID, models.ReturnStatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, 9, f.stockOf(t, f.kettle.ID))
	assert.True(t, stamp.Equal(*again.RestockedAt))
	assert.Len(t, f.publisher.restocked, 1)
}

func TestCompletingFlaggedReturnRestocks(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	r, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(1))
	require.NoError(t, err)

	done, err := f.returns.UpdateStatus(ctx, r.ID, models.ReturnStatusCompleted)
	require.NoError(t, err)
	assert.False(t, done.Restocked())
	assert.Equal(t, 7, f.stockOf(t, f.kettle.ID))

	r2, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(1))
	require.NoError(t, err)
	require.NoError(t, f.store.SetReturnRestockFlag(ctx, r2.ID, true))

	done, err = f.returns.UpdateStatus(ctx, r2.ID, models.ReturnStatusCompleted)
	require.NoError(t, err)
	assert.True(t, done.Restocked())
	assert.Equal(t, 8, f.stockOf(t, f.kettle.ID))
}

func TestRestockSkipsDeletedProduct(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	legacy := f.seedOrder(t, "ORD-LEGACY", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.OrderStatusDelivered, "Discontinued Fan")
	lines, err := f.store.ListOrderProducts(ctx, legacy.ID)
	require.NoError(t, err)

	r, err := f.returns.CreateReturn(ctx, testUserID, &CreateReturnRequest{
		OrderID:        legacy.ID,
		OrderProductID: lines[0].ID,
		Reason:         models.ReturnReasonOther,
		Quantity:       1,
	})
	require.NoError(t, err)
	assert.Nil(t, r.ProductID)

	updated, err := f.returns.UpdateRestockFlag(ctx, r.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.RestockItem)
	assert.False(t, updated.Restocked())
	assert.Empty(t, f.publisher.restocked)
}

func TestStrictTransitions(t *testing.T) {
	ctx := context.Background()

	strict := newReturnFixture(t, ReturnServiceConfig{StrictTransitions: true})
	r, err := strict.returns.CreateReturn(ctx, testUserID, strict.returnRequest(1))
	require.NoError(t, err)

	_, err = strict.returns.UpdateStatus(ctx, r.ID, models.ReturnStatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for _, st := range []string{models.ReturnStatusReceived, models.ReturnStatusInspecting, models.ReturnStatusCompleted} {
		_, err = strict.returns.UpdateStatus(ctx, r.ID, st)
		require.NoError(t, err, st)
	}
	_, err = strict.returns.UpdateStatus(ctx, r.ID, models.ReturnStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	lenient := newReturnFixture(t, ReturnServiceConfig{})
	r, err = lenient.returns.CreateReturn(ctx, testUserID, lenient.returnRequest(1))
	require.NoError(t, err)
	_, err = lenient.returns.UpdateStatus(ctx, r.ID, models.ReturnStatusCompleted)
	require.NoError(t, err)
	back, err := lenient.returns.UpdateStatus(ctx, r.ID, models.ReturnStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusPending, back.Status)

	_, err = lenient.returns.UpdateStatus(ctx, r.ID, models.ReturnStatusPending)
	require.NoError(t, err)
	assert.Len(t, lenient.publisher.returnStatus, 2)

	_, err = lenient.returns.UpdateStatus(ctx, r.ID, "lost")
	_, isValidation := validation.AsError(err)
	assert.True(t, isValidation)

	_, err = lenient.returns.UpdateStatus(ctx, 987654, models.ReturnStatusReceived)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRefundAmount(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	r, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(1))
	require.NoError(t, err)

	negative := dec("-1")
	_, err = f.returns.UpdateRefundAmount(ctx, r.ID, &negative)
	ve, ok := validation.AsError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "refund_amount")

	amount := dec("12.345")
	updated, err := f.returns.UpdateRefundAmount(ctx, r.ID, &amount)
	require.NoError(t, err)
	require.NotNil(t, updated.RefundAmount)
	assert.True(t, decimal.RequireFromString("12.35").Equal(*updated.RefundAmount))

	cleared, err := f.returns.UpdateRefundAmount(ctx, r.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.RefundAmount)

	_, err = f.returns.UpdateRefundAmount(ctx, 987654, &amount)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateReturnIdempotencyKey(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	keys := newMemoryKeys()
	f.returns.idempotency = keys
	ctx := context.Background()

	req := f.returnRequest(1)
	req.IdempotencyKey = "abc"
	first, err := f.returns.CreateReturn(ctx, testUserID, req)
	require.NoError(t, err)

	req = f.returnRequest(1)
	req.IdempotencyKey = "abc"
	second, err := f.returns.CreateReturn(ctx, testUserID, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.publisher.returns, 1)

	// a failed request frees its key for the retry
	req = f.returnRequest(5)
	req.IdempotencyKey = "retry"
	_, err = f.returns.CreateReturn(ctx, testUserID, req)
	require.Error(t, err)
	assert.Contains(t, keys.released, fmt.Sprintf("return:%d:retry", f.customer.ID))
	req = f.returnRequest(1)
	req.IdempotencyKey = "retry"
	_, err = f.returns.CreateReturn(ctx, testUserID, req)
	require.NoError(t, err)

	keys.keys[fmt.Sprintf("return:%d:busy", f.customer.ID)] = 0
	req = f.returnRequest(1)
	req.IdempotencyKey = "busy"
	_, err = f.returns.CreateReturn(ctx, testUserID, req)
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestCreateReturnProceedsWhenKeyStoreFails(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	keys := newMemoryKeys()
	keys.claimErr = errors.New("redis unavailable")
	f.returns.idempotency = keys

	req := f.returnRequest(1)
	req.IdempotencyKey = "abc"
	r, err := f.returns.CreateReturn(context.Background(), testUserID, req)
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
}

func TestListReturns(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	r1, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(1))
	require.NoError(t, err)
	f.clock.advance(time.Hour)
	r2, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(1))
	require.NoError(t, err)
	_, err = f.returns.UpdateStatus(ctx, r2.ID, models.ReturnStatusReceived)
	require.NoError(t, err)

	mine, err := f.returns.ListCustomerReturns(ctx, testUserID, ListFilters{})
	require.NoError(t, err)
	require.Len(t, mine.Returns, 2)
	assert.Equal(t, r2.ID, mine.Returns[0].ID)
	assert.Equal(t, "10.05.2024", mine.Returns[1].CreatedAtFormatted)

	received, err := f.returns.ListCustomerReturns(ctx, testUserID, ListFilters{Status: models.ReturnStatusReceived})
	require.NoError(t, err)
	require.Len(t, received.Returns, 1)
	assert.Equal(t, r2.ID, received.Returns[0].ID)

	byProduct, err := f.returns.ListCustomerReturns(ctx, testUserID, ListFilters{Search: "kettle"})
	require.NoError(t, err)
	assert.Len(t, byProduct.Returns, 2)
	missing, err := f.returns.ListCustomerReturns(ctx, testUserID, ListFilters{Search: "blender"})
	require.NoError(t, err)
	assert.Empty(t, missing.Returns)

	_, err = f.returns.ListCustomerReturns(ctx, testUserID, ListFilters{Status: "active"})
	_, isValidation := validation.AsError(err)
	assert.True(t, isValidation)

	f.store.AddCustomer(models.Customer{UserID: 555})
	theirs, err := f.returns.ListCustomerReturns(ctx, 555, ListFilters{})
	require.NoError(t, err)
	assert.Empty(t, theirs.Returns)

	admin, err := f.returns.AdminListReturns(ctx, ListFilters{TimeRange: models.TimeRangeYear})
	require.NoError(t, err)
	assert.Equal(t, 2, admin.Pagination.Total)

	got, err := f.returns.AdminGetReturn(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ReturnNumber, got.ReturnNumber)
}

func TestAdminListReturnsYearUsesFirstReturnOverall(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	first, err := f.returns.CreateReturn(ctx, testUserID, f.returnRequest(1))
	require.NoError(t, err)
	f.clock.advance(365 * 24 * time.Hour)
	_, err = f.returns.CreateReturn(ctx, testUserID, f.returnRequest(1))
	require.NoError(t, err)

	all, err := f.returns.AdminListReturns(ctx, ListFilters{TimeRange: models.TimeRangeAll})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Pagination.Total)

	year, err := f.returns.AdminListReturns(ctx, ListFilters{TimeRange: models.TimeRangeYear})
	require.NoError(t, err)
	require.Equal(t, 1, year.Pagination.Total)
	assert.Equal(t, first.ID, year.Returns[0].ID)
}

func TestSearchReturnableItems(t *testing.T) {
	f := newReturnFixture(t, ReturnServiceConfig{})
	ctx := context.Background()

	_, err := f.returns.SearchReturnableItems(ctx, testUserID, "  ")
	ve, ok := validation.AsError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "q")

	items, err := f.returns.SearchReturnableItems(ctx, testUserID, "kettle")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, f.line.ID, items[0].OrderProductID)
	assert.Equal(t, f.order.OrderNumber, items[0].OrderNumber)

	none, err := f.returns.SearchReturnableItems(ctx, testUserID, "blender")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = f.svc.CancelOrder(ctx, testUserID, f.order.ID)
	require.NoError(t, err)
	items, err = f.returns.SearchReturnableItems(ctx, testUserID, "kettle")
	require.NoError(t, err)
	assert.Empty(t, items)
}
