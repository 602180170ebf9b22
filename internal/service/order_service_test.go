package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/validation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	*fixture
	svc       *OrderService
	publisher *recordingPublisher
	ship      models.Address
	kettle    models.Product
	mug       models.Product
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	f := newFixture(t)
	pub := &recordingPublisher{}
	svc := NewOrderService(f.store, fixedRates{"EUR": dec("5")}, pub, "RO")
	svc.now = f.clock.now

	return &checkoutFixture{
		fixture:   f,
		svc:       svc,
		publisher: pub,
		ship:      f.addAddress(t, models.AddressTypeShipping, f.ro.ID, true),
		kettle:    f.addProduct("Electric Kettle", "KET-1", "100", "60", 10),
		mug:       f.addProduct("Travel Mug", "MUG-1", "30", "12", 5),
	}
}

func (c *checkoutFixture) request(currency string, lines ...CheckoutLine) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		Lines:             lines,
		ShippingAddressID: c.ship.ID,
		ShippingMethodID:  c.method.ID,
		Currency:          currency,
		PaymentMethod:     PaymentCard,
	}
}

func TestPlaceOrderFreezesPricingSnapshot(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()

	order, err := c.svc.PlaceOrder(ctx, testUserID, c.request("eur", CheckoutLine{ProductID: c.kettle.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.Regexp(t, `^ORD-20240510-[0-9A-F]{6}$`, order.OrderNumber)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, "5", order.ExchangeRate.String())
	assert.Equal(t, "19", order.VATRateApplied.String())
	assert.False(t, order.IsVATExempt)
	assert.Equal(t, "44", order.TotalExclVAT.String())
	assert.Equal(t, "52.36", order.TotalInclVAT.String())
	assert.Equal(t, "261.8", order.TotalRONInclVAT.String())

	assert.Equal(t, 8, c.stockOf(t, c.kettle.ID))

	detail, err := c.svc.GetOrder(ctx, testUserID, order.ID)
	require.NoError(t, err)
	require.Len(t, detail.Products, 1)
	line := detail.Products[0]
	assert.Equal(t, "Electric Kettle", line.Name)
	assert.Equal(t, "20", line.UnitPrice.String())
	assert.Equal(t, "80", line.ProfitRON.String())
	assert.Len(t, detail.Addresses, 2)
	require.NotNil(t, detail.Shipping)
	assert.Equal(t, "4", detail.Shipping.CostExclVAT.String())
	require.Len(t, detail.History, 1)
	assert.Equal(t, models.HistoryOrderCreated, detail.History[0].Action)
	assert.False(t, detail.IsCancelled)

	require.Len(t, c.publisher.placed, 1)
	assert.Equal(t, []models.StockLine{{ProductID: c.kettle.ID, Quantity: 2}}, c.publisher.placed[0].Lines)

	// later catalog and tax changes must not reach the stored order
	kettle := c.kettle
	kettle.PurchasePriceRON = dec("95")
	kettle.PriceRON = dec("500")
	c.store.SaveProduct(kettle)
	c.store.SetVATRate(models.VatRate{CountryID: c.ro.ID, Rate: decimal.NewFromInt(21)})

	again, err := c.svc.GetOrder(ctx, testUserID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "261.8", again.TotalRONInclVAT.String())
	assert.Equal(t, "19", again.VATRateApplied.String())
	assert.Equal(t, "80", again.Products[0].ProfitRON.String())
}

func TestPlaceOrderUsesGroupTier(t *testing.T) {
	c := newCheckoutFixture(t)
	group := int64(7)
	c.store.AddCustomer(models.Customer{ID: c.customer.ID, UserID: testUserID, CustomerGroupID: &group})
	c.store.AddGroupPrice(models.ProductGroupPrice{ProductID: c.mug.ID, CustomerGroupID: group, MinQuantity: 3, PriceRON: dec("25")})

	order, err := c.svc.PlaceOrder(context.Background(), testUserID, c.request("RON",
		CheckoutLine{ProductID: c.mug.ID, Quantity: 2},
		CheckoutLine{ProductID: c.mug.ID, Quantity: 1},
	))
	require.NoError(t, err)

	lines, err := c.store.ListOrderProducts(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "25", lines[0].UnitPriceRON.String())
	assert.Equal(t, "39", lines[0].ProfitRON.String())
}

func TestPlaceOrderVATExemptCompanyKeepsRate(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()
	require.NoError(t, c.store.UpdateCompanyInfo(ctx, c.customer.ID, models.CompanyInfo{CompanyName: "Acme GmbH", FiscalCode: "DE123456789"}))
	billing := c.addAddress(t, models.AddressTypeBilling, c.de.ID, false)

	req := c.request("EUR", CheckoutLine{ProductID: c.kettle.ID, Quantity: 1})
	req.BillingAddressID = billing.ID
	order, err := c.svc.PlaceOrder(ctx, testUserID, req)
	require.NoError(t, err)

	assert.True(t, order.IsVATExempt)
	assert.Equal(t, "19", order.VATRateApplied.String())
	assert.True(t, order.TotalExclVAT.Equal(order.TotalInclVAT))

	addrs, err := c.store.ListOrderAddresses(ctx, order.ID)
	require.NoError(t, err)
	for _, a := range addrs {
		if a.AddressType == models.AddressTypeBilling {
			assert.Equal(t, "DE", a.CountryCode)
			assert.Equal(t, "Acme GmbH", a.CompanyName)
		}
	}
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	c := newCheckoutFixture(t)

	_, err := c.svc.PlaceOrder(context.Background(), testUserID, c.request("RON",
		CheckoutLine{ProductID: c.kettle.ID, Quantity: 1},
		CheckoutLine{ProductID: c.mug.ID, Quantity: 6},
	))
	assert.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 10, c.stockOf(t, c.kettle.ID))
	assert.Equal(t, 5, c.stockOf(t, c.mug.ID))
	assert.Empty(t, c.publisher.placed)
}

func TestPlaceOrderFatalConfiguration(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := c.svc.PlaceOrder(ctx, testUserID, c.request("USD", CheckoutLine{ProductID: c.kettle.ID, Quantity: 1}))
	assert.ErrorIs(t, err, ErrRateUnavailable)

	hu := c.store.AddCountry(models.Country{Code: "HU", Name: "Hungary", IsEU: true})
	billing := c.addAddress(t, models.AddressTypeBilling, hu.ID, false)
	req := c.request("RON", CheckoutLine{ProductID: c.kettle.ID, Quantity: 1})
	req.BillingAddressID = billing.ID
	_, err = c.svc.PlaceOrder(ctx, testUserID, req)
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.Equal(t, 10, c.stockOf(t, c.kettle.ID))
}

func TestPlaceOrderValidation(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := c.svc.PlaceOrder(ctx, testUserID, c.request("RON"))
	ve, ok := validation.AsError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "lines")

	billing := c.addAddress(t, models.AddressTypeBilling, c.ro.ID, false)
	req := c.request("RON", CheckoutLine{ProductID: c.kettle.ID, Quantity: 1})
	req.ShippingAddressID = billing.ID
	_, err = c.svc.PlaceOrder(ctx, testUserID, req)
	ve, ok = validation.AsError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "shipping_address_id")

	_, err = c.svc.PlaceOrder(ctx, testUserID, c.request("RON", CheckoutLine{ProductID: 987654, Quantity: 1}))
	ve, ok = validation.AsError(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "lines")

	_, err = c.svc.PlaceOrder(ctx, 424242, c.request("RON", CheckoutLine{ProductID: c.kettle.ID, Quantity: 1}))
	assert.ErrorIs(t, err, ErrCustomerMissing)
}

func TestPlaceOrderSurvivesPublishFailure(t *testing.T) {
	c := newCheckoutFixture(t)
	c.publisher.err = errors.New("kafka down")

	order, err := c.svc.PlaceOrder(context.Background(), testUserID, c.request("RON", CheckoutLine{ProductID: c.mug.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
}

func TestCancelOrderRestoresStockOnce(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()

	order, err := c.svc.PlaceOrder(ctx, testUserID, c.request("RON", CheckoutLine{ProductID: c.kettle.ID, Quantity: 3}))
	require.NoError(t, err)
	assert.Equal(t, 7, c.stockOf(t, c.kettle.ID))

	cancelled, err := c.svc.CancelOrder(ctx, testUserID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, c.stockOf(t, c.kettle.ID))

	_, err = c.svc.CancelOrder(ctx, testUserID, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 10, c.stockOf(t, c.kettle.ID))

	detail, err := c.svc.GetOrder(ctx, testUserID, order.ID)
	require.NoError(t, err)
	assert.True(t, detail.IsCancelled)
	require.Len(t, c.publisher.cancelled, 1)
	assert.Equal(t, 3, c.publisher.cancelled[0].Lines[0].Quantity)
}

func TestCancelOrderOnlyWhilePending(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()

	order, err := c.svc.PlaceOrder(ctx, testUserID, c.request("RON", CheckoutLine{ProductID: c.kettle.ID, Quantity: 1}))
	require.NoError(t, err)
	_, err = c.svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, 1)
	require.NoError(t, err)

	_, err = c.svc.CancelOrder(ctx, testUserID, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	c.store.AddCustomer(models.Customer{UserID: 555})
	_, err = c.svc.CancelOrder(ctx, 555, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminStatusChangeWritesHistory(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()

	order, err := c.svc.PlaceOrder(ctx, testUserID, c.request("RON", CheckoutLine{ProductID: c.kettle.ID, Quantity: 2}))
	require.NoError(t, err)

	_, err = c.svc.UpdateOrderStatus(ctx, order.ID, "lost", 1)
	_, isValidation := validation.AsError(err)
	assert.True(t, isValidation)

	_, err = c.svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusProcessing, 1)
	require.NoError(t, err)
	updated, err := c.svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, updated.Status)
	assert.Equal(t, 10, c.stockOf(t, c.kettle.ID))

	// cancelled is final; reopening would sell stock that is already restored
	_, err = c.svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusProcessing, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 10, c.stockOf(t, c.kettle.ID))

	history, err := c.store.ListOrderHistory(ctx, order.ID)
	require.NoError(t, err)
	var actions []string
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{
		models.HistoryOrderCreated,
		models.HistoryStatusChanged,
		models.HistoryOrderCancelled,
		models.HistoryStatusChanged,
	}, actions)
	assert.JSONEq(t, `{"status":"pending"}`, string(history[1].OldValue))
	assert.JSONEq(t, `{"status":"processing"}`, string(history[1].NewValue))

	assert.Len(t, c.publisher.statusChanged, 2)
	assert.Len(t, c.publisher.cancelled, 1)
}

func TestAdminCancelSkipsRestockWhenHistoryHasCancel(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()

	order, err := c.svc.PlaceOrder(ctx, testUserID, c.request("RON", CheckoutLine{ProductID: c.kettle.ID, Quantity: 2}))
	require.NoError(t, err)
	_, err = c.svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusProcessing, 1)
	require.NoError(t, err)

	// imported orders can carry a cancel entry while their status says otherwise
	require.NoError(t, c.store.AppendOrderHistory(ctx, &models.OrderHistory{
		OrderID:   order.ID,
		Action:    models.HistoryOrderCancelled,
		ActorType: models.ActorAdmin,
	}))

	updated, err := c.svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, updated.Status)
	assert.Equal(t, 8, c.stockOf(t, c.kettle.ID))
	assert.Empty(t, c.publisher.cancelled)
}

func TestMarkOrderPaidOnce(t *testing.T) {
	c := newCheckoutFixture(t)
	ctx := context.Background()

	order, err := c.svc.PlaceOrder(ctx, testUserID, c.request("RON", CheckoutLine{ProductID: c.mug.ID, Quantity: 1}))
	require.NoError(t, err)

	paid, err := c.svc.MarkOrderPaid(ctx, order.ID, 1)
	require.NoError(t, err)
	require.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)
	firstPaidAt := *paid.PaidAt

	c.clock.advance(time.Hour)
	again, err := c.svc.MarkOrderPaid(ctx, order.ID, 1)
	require.NoError(t, err)
	assert.True(t, firstPaidAt.Equal(*again.PaidAt))

	history, err := c.store.ListOrderHistory(ctx, order.ID)
	require.NoError(t, err)
	payments := 0
	for _, h := range history {
		if h.Action == models.HistoryPaymentReceived {
			payments++
		}
	}
	assert.Equal(t, 1, payments)

	_, err = c.svc.MarkOrderPaid(ctx, 987654, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
