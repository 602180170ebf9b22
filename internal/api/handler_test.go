package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"storefront/internal/fiscal"
	"storefront/internal/geo"
	"storefront/internal/models"
	"storefront/internal/rates"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerUserID = "100"

type nopPublisher struct{}

func (nopPublisher) PublishOrderPlaced(context.Context, *models.OrderPlacedEvent) error { return nil }
func (nopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}
func (nopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}
func (nopPublisher) PublishReturnCreated(context.Context, *models.ReturnCreatedEvent) error {
	return nil
}
func (nopPublisher) PublishReturnStatusChanged(context.Context, *models.ReturnStatusChangedEvent) error {
	return nil
}
func (nopPublisher) PublishReturnRestocked(context.Context, *models.ReturnRestockedEvent) error {
	return nil
}

// ronOnly quotes the base currency and nothing else.
type ronOnly struct{}

func (ronOnly) LatestRate(_ context.Context, currency string) (decimal.Decimal, error) {
	if strings.EqualFold(currency, rates.BaseCurrency) {
		return decimal.NewFromInt(1), nil
	}
	return decimal.Zero, rates.ErrNoRate
}

type acceptAll struct{}

func (acceptAll) Validate(context.Context, string, string) (fiscal.Result, error) {
	return fiscal.Result{Valid: true}, nil
}

// stockKeys stands in for the redis stock counters.
type stockKeys map[int64]int

func (k stockKeys) SyncStock(_ context.Context, stock map[int64]int) error {
	for id, n := range stock {
		k[id] = n
	}
	return nil
}

func (k stockKeys) AdjustStock(_ context.Context, productID int64, delta int) (int64, bool, error) {
	n, ok := k[productID]
	if !ok {
		return 0, false, nil
	}
	k[productID] = n + delta
	return int64(n + delta), true, nil
}

func (k stockKeys) GetStock(_ context.Context, productID int64) (int, bool, error) {
	n, ok := k[productID]
	return n, ok, nil
}

type testServer struct {
	router  *gin.Engine
	store   *store.MemoryStore
	ro      models.Country
	de      models.Country
	method  models.ShippingMethod
	product models.Product
	ship    models.Address
	stock   stockKeys
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, util.InitLogger("test"))

	m := store.NewMemoryStore()
	ts := &testServer{store: m, stock: stockKeys{}}
	ts.ro = m.AddCountry(models.Country{Code: "RO", Name: "Romania", IsEU: true})
	ts.de = m.AddCountry(models.Country{Code: "DE", Name: "Germany", IsEU: true})
	m.SetVATRate(models.VatRate{CountryID: ts.ro.ID, Rate: decimal.NewFromInt(19)})

	customer := m.AddCustomer(models.Customer{UserID: 100, FirstName: "Ana", LastName: "Popescu", Email: "ana@example.com"})
	ts.method = m.AddShippingMethod(models.ShippingMethod{Code: "courier", Name: "Courier", BaseCostRON: decimal.NewFromInt(20), IsActive: true})
	ts.product = m.SaveProduct(models.Product{
		Name:             "Electric Kettle",
		SKU:              "KET-1",
		PriceRON:         decimal.NewFromInt(100),
		PurchasePriceRON: decimal.NewFromInt(60),
		Stock:            10,
	})
	ts.ship = models.Address{
		CustomerID:   customer.ID,
		AddressType:  models.AddressTypeShipping,
		IsPreferred:  true,
		AddressLine1: "Strada Lunga 1",
		City:         "Brasov",
		CountryID:    ts.ro.ID,
	}
	require.NoError(t, m.CreateAddress(context.Background(), &ts.ship))

	svcs := Services{
		Addresses: service.NewAddressService(m),
		Orders:    service.NewOrderService(m, ronOnly{}, nopPublisher{}, "RO"),
		Queries:   service.NewOrderQueryService(m, 10),
		Returns:   service.NewReturnService(m, nil, nopPublisher{}, service.ReturnServiceConfig{DefaultPerPage: 10, IdempotencyTTL: time.Hour}),
		Company:   service.NewCompanyService(m, acceptAll{}, "RO"),
		Locations: service.NewLocationService(m, geo.NewDetector(m, "CF-IPCountry", "RO")),
		Stock:     service.NewStockCache(m, ts.stock),
	}

	ts.router = gin.New()
	NewHandler(svcs, map[string]Pinger{"memory": m}).SetupRoutes(ts.router)
	return ts
}

func (ts *testServer) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func asCustomer() map[string]string {
	return map[string]string{HeaderUserID: customerUserID}
}

func asAdmin() map[string]string {
	return map[string]string{HeaderUserID: "1", HeaderUserRole: RoleAdmin}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func (ts *testServer) placeOrder(t *testing.T, currency string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"lines":               []map[string]interface{}{{"product_id": ts.product.ID, "quantity": 1}},
		"shipping_address_id": ts.ship.ID,
		"shipping_method_id":  ts.method.ID,
		"currency":            currency,
		"payment_method":      service.PaymentCard,
	}, asCustomer())
}

type orderEnvelope struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
	Data    struct {
		OrderNumber string `json:"order_number"`
		Status      string `json:"status"`
	} `json:"data"`
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"memory":"up"`)
}

func TestCustomerRoutesRequireUser(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/addresses", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Unauthenticated.")
}

func TestCreateAddressDefaultsToDetectedCountry(t *testing.T) {
	ts := newTestServer(t)

	headers := asCustomer()
	headers["CF-IPCountry"] = "de"
	w := ts.do(http.MethodPost, "/api/v1/addresses", map[string]interface{}{
		"address_type":   models.AddressTypeBilling,
		"address_line_1": "Hauptstrasse 5",
		"city":           "Berlin",
	}, headers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Success bool           `json:"success"`
		Data    models.Address `json:"data"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, ts.de.ID, resp.Data.CountryID)
	assert.False(t, resp.Data.IsPreferred)
}

func TestFormSubmissionRedirectsWithFlash(t *testing.T) {
	ts := newTestServer(t)

	form := url.Values{"address_type": {models.AddressTypeShipping}, "city": {"Iasi"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/addresses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "/account/addresses/new")
	req.Header.Set(HeaderUserID, customerUserID)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/account/addresses/new", w.Header().Get("Location"))

	var flash string
	for _, c := range w.Result().Cookies() {
		if c.Name == FlashCookie {
			flash = c.Value
		}
	}
	require.NotEmpty(t, flash)
	r, err := DecodeFlash(flash)
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Equal(t, "The address line 1 field is required.", r.Errors["address_line_1"])

	form.Set("address_line_1", "Bulevardul Unirii 3")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/addresses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(HeaderUserID, customerUserID)
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, addressesPage, w.Header().Get("Location"))
}

func TestValidationErrorsAre422(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/addresses", map[string]interface{}{
		"address_type": "warehouse",
		"country_id":   ts.ro.ID,
	}, asCustomer())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp Response
	decode(t, w, &resp)
	assert.Equal(t, "The selected address type is invalid.", resp.Errors["address_type"])
	assert.Contains(t, resp.Errors, "address_line_1")
}

func TestMissingCustomerProfileIsFormError(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/addresses", nil, map[string]string{HeaderUserID: "999"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp Response
	decode(t, w, &resp)
	assert.Equal(t, "Complete your customer profile before continuing.", resp.Errors["form"])
}

func TestPlaceAndListOrders(t *testing.T) {
	ts := newTestServer(t)

	w := ts.placeOrder(t, "ron")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var placed orderEnvelope
	decode(t, w, &placed)
	assert.True(t, placed.Success)
	assert.Equal(t, models.OrderStatusPending, placed.Data.Status)

	w = ts.do(http.MethodGet, "/api/v1/orders?status=active&per_page=ALL", nil, asCustomer())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list service.OrderListResult
	decode(t, w, &list)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, placed.Data.OrderNumber, list.Orders[0].OrderNumber)
	assert.Equal(t, 1, list.Pagination.Total)

	w = ts.do(http.MethodGet, "/api/v1/orders/"+strconv.FormatInt(placed.ID, 10), nil, asCustomer())
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/orders?time_range=decade", nil, asCustomer())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestOrderErrors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/orders/9999", nil, asCustomer())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/orders/abc", nil, asCustomer())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.placeOrder(t, "USD")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/orders", "not an object", asCustomer())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelOrderTwiceConflicts(t *testing.T) {
	ts := newTestServer(t)

	w := ts.placeOrder(t, "RON")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var placed orderEnvelope
	decode(t, w, &placed)

	path := "/api/v1/orders/" + strconv.FormatInt(placed.ID, 10) + "/cancel"
	w = ts.do(http.MethodPost, path, nil, asCustomer())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(http.MethodPost, path, nil, asCustomer())
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/admin/returns", nil, asCustomer())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/admin/returns", nil, asAdmin())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.placeOrder(t, "RON")
	require.Equal(t, http.StatusCreated, w.Code)
	var placed orderEnvelope
	decode(t, w, &placed)

	w = ts.do(http.MethodPut, "/api/v1/admin/orders/"+strconv.FormatInt(placed.ID, 10)+"/status",
		map[string]string{"status": models.OrderStatusProcessing}, asAdmin())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated orderEnvelope
	decode(t, w, &updated)
	assert.Equal(t, models.OrderStatusProcessing, updated.Data.Status)

	w = ts.do(http.MethodPut, "/api/v1/admin/returns/1/restock", map[string]interface{}{}, asAdmin())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp Response
	decode(t, w, &resp)
	assert.Equal(t, "The restock item field is required.", resp.Errors["restock_item"])
}

func TestReturnableSearchRequiresQuery(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/returns/search-order", nil, asCustomer())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/returns/search-order?q=kettle", nil, asCustomer())
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[]}`, w.Body.String())
}

func TestLocationRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/locations/countries", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var countries struct {
		Results []models.Country `json:"results"`
	}
	decode(t, w, &countries)
	assert.Len(t, countries.Results, 2)

	w = ts.do(http.MethodGet, "/api/v1/locations/countries/default", nil, map[string]string{"CF-IPCountry": "XX"})
	require.Equal(t, http.StatusOK, w.Code)
	var def struct {
		Country models.Country `json:"country"`
	}
	decode(t, w, &def)
	assert.Equal(t, "RO", def.Country.Code)
}

func TestFlashRoundTrip(t *testing.T) {
	in := Response{Success: true, ID: 7, Message: "Address saved."}
	out, err := DecodeFlash(EncodeFlash(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestProductStockServedFromCache(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/products/" + strconv.FormatInt(ts.product.ID, 10) + "/stock"

	w := ts.do(http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got service.ProductStock
	decode(t, w, &got)
	assert.Equal(t, service.ProductStock{ProductID: ts.product.ID, Stock: 10, InStock: true, Source: service.StockSourceDatabase}, got)
	assert.Equal(t, 10, ts.stock[ts.product.ID])

	// the worker applies ORDER_PLACED to the counters; reads then follow the cache
	ts.stock[ts.product.ID] = 4
	w = ts.do(http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &got)
	assert.Equal(t, 4, got.Stock)
	assert.Equal(t, service.StockSourceCache, got.Source)

	w = ts.do(http.MethodGet, "/api/v1/products/9999/stock", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
