package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/rates"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu            sync.Mutex
	placed        []*models.OrderPlacedEvent
	cancelled     []*models.OrderCancelledEvent
	statusChanged []*models.OrderStatusChangedEvent
	returns       []*models.ReturnCreatedEvent
	returnStatus  []*models.ReturnStatusChangedEvent
	restocked     []*models.ReturnRestockedEvent
	err           error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusChanged = append(p.statusChanged, e)
	return p.err
}

func (p *recordingPublisher) PublishReturnCreated(_ context.Context, e *models.ReturnCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.returns = append(p.returns, e)
	return p.err
}

func (p *recordingPublisher) PublishReturnStatusChanged(_ context.Context, e *models.ReturnStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.returnStatus = append(p.returnStatus, e)
	return p.err
}

func (p *recordingPublisher) PublishReturnRestocked(_ context.Context, e *models.ReturnRestockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restocked = append(p.restocked, e)
	return p.err
}

// fixedRates quotes RON per unit of currency.
type fixedRates map[string]decimal.Decimal

func (f fixedRates) LatestRate(_ context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	if currency == rates.BaseCurrency {
		return decimal.NewFromInt(1), nil
	}
	r, ok := f[currency]
	if !ok {
		return decimal.Zero, rates.ErrNoRate
	}
	return r, nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

const testUserID int64 = 100

type fixture struct {
	store    *store.MemoryStore
	clock    *testClock
	ro       models.Country
	de       models.Country
	ch       models.Country
	customer models.Customer
	method   models.ShippingMethod
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m := store.NewMemoryStore()
	clock := &testClock{t: time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)}
	m.Now = clock.now

	f := &fixture{store: m, clock: clock}
	f.ro = m.AddCountry(models.Country{Code: "RO", Name: "Romania", IsEU: true})
	f.de = m.AddCountry(models.Country{Code: "DE", Name: "Germany", IsEU: true})
	f.ch = m.AddCountry(models.Country{Code: "CH", Name: "Switzerland"})
	m.SetVATRate(models.VatRate{CountryID: f.ro.ID, Rate: decimal.NewFromInt(19)})
	m.SetVATRate(models.VatRate{CountryID: f.de.ID, Rate: decimal.NewFromInt(19)})
	m.SetVATRate(models.VatRate{CountryID: f.ch.ID, Rate: decimal.RequireFromString("8.1")})

	f.customer = m.AddCustomer(models.Customer{
		UserID:    testUserID,
		FirstName: "Ana",
		LastName:  "Popescu",
		Email:     "ana@example.com",
		Phone:     "0700000000",
	})
	f.method = m.AddShippingMethod(models.ShippingMethod{
		Code:        "courier",
		Name:        "Courier",
		BaseCostRON: decimal.NewFromInt(20),
		IsActive:    true,
	})
	return f
}

func (f *fixture) shippingInput(line string) AddressInput {
	return AddressInput{
		AddressType:  models.AddressTypeShipping,
		FirstName:    "Ana",
		LastName:     "Popescu",
		AddressLine1: line,
		City:         "Cluj-Napoca",
		CountryID:    f.ro.ID,
	}
}

func (f *fixture) addAddress(t *testing.T, addressType string, countryID int64, preferred bool) models.Address {
	t.Helper()
	a := &models.Address{
		CustomerID:   f.customer.ID,
		AddressType:  addressType,
		IsPreferred:  preferred,
		AddressLine1: "Strada Lunga 1",
		City:         "Brasov",
		CountryID:    countryID,
	}
	require.NoError(t, f.store.CreateAddress(context.Background(), a))
	f.clock.advance(time.Minute)
	return *a
}

func (f *fixture) addProduct(name, sku string, priceRON, purchaseRON string, stock int) models.Product {
	return f.store.SaveProduct(models.Product{
		Name:             name,
		SKU:              sku,
		PriceRON:         decimal.RequireFromString(priceRON),
		PurchasePriceRON: decimal.RequireFromString(purchaseRON),
		Stock:            stock,
	})
}

func (f *fixture) stockOf(t *testing.T, productID int64) int {
	t.Helper()
	ps, err := f.store.GetProductsByIDs(context.Background(), []int64{productID})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	return ps[0].Stock
}

func bptr(b bool) *bool { return &b }
