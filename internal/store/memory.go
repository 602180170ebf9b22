package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
)

// ErrConstraint mirrors a unique or check constraint violation in the in-memory store.
var ErrConstraint = errors.New("constraint violation")

// MemoryStore is an in-memory implementation of the store used by service and
// handler tests. WithinTx holds a store-wide lock for the whole callback and
// restores the previous state when the callback fails.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData

	// Now stamps created_at/updated_at columns.
	Now func() time.Time
}

type memData struct {
	seq int64

	countries    map[int64]models.Country
	states       map[int64]models.State
	cities       map[int64]models.City
	vatRates     map[int64]models.VatRate
	customers    map[int64]models.Customer
	addresses    map[int64]models.Address
	products     map[int64]models.Product
	groupPrices  map[int64]models.ProductGroupPrice
	methods      map[int64]models.ShippingMethod
	methodConfig map[int64]models.ShippingMethodConfig

	orders        map[int64]models.Order
	orderProducts map[int64]models.OrderProduct
	orderAddrs    map[int64]models.OrderAddress
	orderShipping map[int64]models.OrderShipping
	history       map[int64]models.OrderHistory
	returns       map[int64]models.Return
}

func newMemData() *memData {
	return &memData{
		countries:     map[int64]models.Country{},
		states:        map[int64]models.State{},
		cities:        map[int64]models.City{},
		vatRates:      map[int64]models.VatRate{},
		customers:     map[int64]models.Customer{},
		addresses:     map[int64]models.Address{},
		products:      map[int64]models.Product{},
		groupPrices:   map[int64]models.ProductGroupPrice{},
		methods:       map[int64]models.ShippingMethod{},
		methodConfig:  map[int64]models.ShippingMethodConfig{},
		orders:        map[int64]models.Order{},
		orderProducts: map[int64]models.OrderProduct{},
		orderAddrs:    map[int64]models.OrderAddress{},
		orderShipping: map[int64]models.OrderShipping{},
		history:       map[int64]models.OrderHistory{},
		returns:       map[int64]models.Return{},
	}
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		seq:           d.seq,
		countries:     cloneMap(d.countries),
		states:        cloneMap(d.states),
		cities:        cloneMap(d.cities),
		vatRates:      cloneMap(d.vatRates),
		customers:     cloneMap(d.customers),
		addresses:     cloneMap(d.addresses),
		products:      cloneMap(d.products),
		groupPrices:   cloneMap(d.groupPrices),
		methods:       cloneMap(d.methods),
		methodConfig:  cloneMap(d.methodConfig),
		orders:        cloneMap(d.orders),
		orderProducts: cloneMap(d.orderProducts),
		orderAddrs:    cloneMap(d.orderAddrs),
		orderShipping: cloneMap(d.orderShipping),
		history:       cloneMap(d.history),
		returns:       cloneMap(d.returns),
	}
}

func (d *memData) nextID() int64 {
	d.seq++
	return d.seq
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: newMemData(),
		Now:  time.Now,
	}
}

type memTxKey struct{}

func inMemTx(ctx context.Context) bool {
	_, ok := ctx.Value(memTxKey{}).(bool)
	return ok
}

// lock takes the store lock unless ctx already runs inside WithinTx.
func (m *MemoryStore) lock(ctx context.Context) func() {
	if inMemTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryStore) now() time.Time {
	return m.Now().UTC()
}

// WithinTx runs fn while holding the store lock. Nested calls reuse the outer transaction.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemTx(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Seeding helpers. They assign IDs when zero and return the stored value.

func (m *MemoryStore) AddCountry(c models.Country) models.Country {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.data.nextID()
	}
	c.Code = strings.ToUpper(c.Code)
	m.data.countries[c.ID] = c
	return c
}

func (m *MemoryStore) AddState(s models.State) models.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.data.nextID()
	}
	m.data.states[s.ID] = s
	return s
}

func (m *MemoryStore) AddCity(c models.City) models.City {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.data.nextID()
	}
	m.data.cities[c.ID] = c
	return c
}

// SetVATRate replaces the VAT rate of a country.
func (m *MemoryStore) SetVATRate(r models.VatRate) models.VatRate {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.data.vatRates {
		if existing.CountryID == r.CountryID {
			r.ID = id
		}
	}
	if r.ID == 0 {
		r.ID = m.data.nextID()
	}
	m.data.vatRates[r.ID] = r
	return r
}

func (m *MemoryStore) AddCustomer(c models.Customer) models.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.data.nextID()
	}
	if c.CustomerType == "" {
		c.CustomerType = models.CustomerTypeIndividual
	}
	now := m.now()
	c.CreatedAt, c.UpdatedAt = now, now
	m.data.customers[c.ID] = c
	return c
}

// SaveProduct inserts or replaces a product.
func (m *MemoryStore) SaveProduct(p models.Product) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.data.nextID()
	}
	if p.ProductType == "" {
		p.ProductType = models.ProductTypeSimple
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	m.data.products[p.ID] = p
	return p
}

func (m *MemoryStore) AddGroupPrice(g models.ProductGroupPrice) models.ProductGroupPrice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == 0 {
		g.ID = m.data.nextID()
	}
	m.data.groupPrices[g.ID] = g
	return g
}

func (m *MemoryStore) AddShippingMethod(sm models.ShippingMethod) models.ShippingMethod {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sm.ID == 0 {
		sm.ID = m.data.nextID()
	}
	m.data.methods[sm.ID] = sm
	return sm
}

func (m *MemoryStore) AddShippingMethodConfig(c models.ShippingMethodConfig) models.ShippingMethodConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.data.nextID()
	}
	m.data.methodConfig[c.ID] = c
	return c
}

// Customers

func (m *MemoryStore) GetCustomerByUserID(ctx context.Context, userID int64) (*models.Customer, error) {
	defer m.lock(ctx)()
	for _, c := range m.data.customers {
		if c.UserID == userID {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	defer m.lock(ctx)()
	c, ok := m.data.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// LockCustomer only checks existence; callers already hold the store lock inside WithinTx.
func (m *MemoryStore) LockCustomer(ctx context.Context, customerID int64) error {
	defer m.lock(ctx)()
	if _, ok := m.data.customers[customerID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (m *MemoryStore) UpdateCompanyInfo(ctx context.Context, customerID int64, info models.CompanyInfo) error {
	defer m.lock(ctx)()
	c, ok := m.data.customers[customerID]
	if !ok {
		return ErrNotFound
	}
	c.CustomerType = models.CustomerTypeCompany
	c.CompanyInfo = info
	c.UpdatedAt = m.now()
	m.data.customers[customerID] = c
	return nil
}

// Addresses

func (m *MemoryStore) customerAddresses(customerID int64, shippingOnly bool) []models.Address {
	var out []models.Address
	for _, a := range m.data.addresses {
		if a.CustomerID != customerID || (shippingOnly && !a.IsShipping()) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// checkPreferred mirrors the partial unique index on preferred shipping addresses.
func (m *MemoryStore) checkPreferred(a models.Address) error {
	if !a.IsShipping() || !a.IsPreferred {
		return nil
	}
	for _, other := range m.data.addresses {
		if other.ID != a.ID && other.CustomerID == a.CustomerID && other.IsShipping() && other.IsPreferred {
			return ErrConstraint
		}
	}
	return nil
}

func (m *MemoryStore) ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	defer m.lock(ctx)()
	return m.customerAddresses(customerID, false), nil
}

func (m *MemoryStore) GetAddress(ctx context.Context, customerID, id int64) (*models.Address, error) {
	defer m.lock(ctx)()
	a, ok := m.data.addresses[id]
	if !ok || a.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) CreateAddress(ctx context.Context, a *models.Address) error {
	defer m.lock(ctx)()
	if err := m.checkPreferred(*a); err != nil {
		return err
	}
	a.ID = m.data.nextID()
	now := m.now()
	a.CreatedAt, a.UpdatedAt = now, now
	m.data.addresses[a.ID] = *a
	return nil
}

func (m *MemoryStore) UpdateAddress(ctx context.Context, a *models.Address) error {
	defer m.lock(ctx)()
	existing, ok := m.data.addresses[a.ID]
	if !ok || existing.CustomerID != a.CustomerID {
		return ErrNotFound
	}
	if err := m.checkPreferred(*a); err != nil {
		return err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = m.now()
	m.data.addresses[a.ID] = *a
	return nil
}

func (m *MemoryStore) DeleteAddress(ctx context.Context, customerID, id int64) error {
	defer m.lock(ctx)()
	a, ok := m.data.addresses[id]
	if !ok || a.CustomerID != customerID {
		return ErrNotFound
	}
	delete(m.data.addresses, id)
	return nil
}

func (m *MemoryStore) CountShippingAddresses(ctx context.Context, customerID int64) (int, error) {
	defer m.lock(ctx)()
	return len(m.customerAddresses(customerID, true)), nil
}

func (m *MemoryStore) UnmarkPreferredShipping(ctx context.Context, customerID, exceptID int64) error {
	defer m.lock(ctx)()
	for _, a := range m.customerAddresses(customerID, true) {
		if a.ID == exceptID || !a.IsPreferred {
			continue
		}
		a.IsPreferred = false
		a.UpdatedAt = m.now()
		m.data.addresses[a.ID] = a
	}
	return nil
}

func (m *MemoryStore) MarkPreferred(ctx context.Context, customerID, id int64) error {
	defer m.lock(ctx)()
	a, ok := m.data.addresses[id]
	if !ok || a.CustomerID != customerID || !a.IsShipping() {
		return ErrNotFound
	}
	a.IsPreferred = true
	if err := m.checkPreferred(a); err != nil {
		return err
	}
	a.UpdatedAt = m.now()
	m.data.addresses[id] = a
	return nil
}

func (m *MemoryStore) OldestShippingAddress(ctx context.Context, customerID int64) (*models.Address, error) {
	defer m.lock(ctx)()
	addrs := m.customerAddresses(customerID, true)
	if len(addrs) == 0 {
		return nil, ErrNotFound
	}
	return &addrs[0], nil
}

// Catalog

func (m *MemoryStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	defer m.lock(ctx)()
	out := make([]models.Product, 0, len(m.data.products))
	for _, p := range m.data.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	defer m.lock(ctx)()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := m.data.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetGroupPrices(ctx context.Context, productID, groupID int64) ([]models.ProductGroupPrice, error) {
	defer m.lock(ctx)()
	var out []models.ProductGroupPrice
	for _, g := range m.data.groupPrices {
		if g.ProductID == productID && g.CustomerGroupID == groupID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinQuantity < out[j].MinQuantity })
	return out, nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	defer m.lock(ctx)()
	p, ok := m.data.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	m.data.products[productID] = p
	return true, nil
}

func (m *MemoryStore) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	defer m.lock(ctx)()
	p, ok := m.data.products[productID]
	if !ok {
		return ErrNotFound
	}
	p.Stock += quantity
	m.data.products[productID] = p
	return nil
}

func (m *MemoryStore) GetVATRate(ctx context.Context, countryID int64) (*models.VatRate, error) {
	defer m.lock(ctx)()
	for _, r := range m.data.vatRates {
		if r.CountryID == countryID {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetShippingMethod(ctx context.Context, id int64) (*models.ShippingMethod, error) {
	defer m.lock(ctx)()
	sm, ok := m.data.methods[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sm, nil
}

func (m *MemoryStore) ListShippingMethodConfigs(ctx context.Context, methodID int64) ([]models.ShippingMethodConfig, error) {
	defer m.lock(ctx)()
	var out []models.ShippingMethodConfig
	for _, c := range m.data.methodConfig {
		if c.ShippingMethodID == methodID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigKey < out[j].ConfigKey })
	return out, nil
}

// Locations

func (m *MemoryStore) ListCountries(ctx context.Context) ([]models.Country, error) {
	defer m.lock(ctx)()
	out := make([]models.Country, 0, len(m.data.countries))
	for _, c := range m.data.countries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetCountry(ctx context.Context, id int64) (*models.Country, error) {
	defer m.lock(ctx)()
	c, ok := m.data.countries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) GetCountryByCode(ctx context.Context, code string) (*models.Country, error) {
	defer m.lock(ctx)()
	code = strings.ToUpper(code)
	for _, c := range m.data.countries {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListStates(ctx context.Context, countryID int64) ([]models.State, error) {
	defer m.lock(ctx)()
	var out []models.State
	for _, s := range m.data.states {
		if s.CountryID == countryID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListCities(ctx context.Context, stateID int64) ([]models.City, error) {
	defer m.lock(ctx)()
	var out []models.City
	for _, c := range m.data.cities {
		if c.StateID == stateID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
