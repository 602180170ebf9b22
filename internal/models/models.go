package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Customer types
const (
	CustomerTypeIndividual = "individual"
	CustomerTypeCompany    = "company"
)

// Customer is the storefront account holder. Company customers carry fiscal data.
type Customer struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	CustomerType    string    `db:"customer_type" json:"customer_type"`
	CustomerGroupID *int64    `db:"customer_group_id" json:"customer_group_id,omitempty"`
	FirstName       string    `db:"first_name" json:"first_name"`
	LastName        string    `db:"last_name" json:"last_name"`
	Email           string    `db:"email" json:"email"`
	Phone           string    `db:"phone" json:"phone"`
	CompanyInfo
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CompanyInfo holds the fiscal fields of a company customer.
type CompanyInfo struct {
	CompanyName string `db:"company_name" json:"company_name"`
	FiscalCode  string `db:"fiscal_code" json:"fiscal_code"`
	RegNumber   string `db:"reg_number" json:"reg_number"`
	BankName    string `db:"bank_name" json:"bank_name"`
	IBAN        string `db:"iban" json:"iban"`
}

func (c *Customer) IsCompany() bool {
	return c.CustomerType == CustomerTypeCompany
}

func (c *Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Address types
const (
	AddressTypeShipping     = "shipping"
	AddressTypeBilling      = "billing"
	AddressTypeHeadquarters = "headquarters"
)

// Address is a live customer address. IsPreferred only has meaning for shipping addresses.
type Address struct {
	ID           int64     `db:"id" json:"id"`
	CustomerID   int64     `db:"customer_id" json:"customer_id"`
	AddressType  string    `db:"address_type" json:"address_type"`
	IsPreferred  bool      `db:"is_preferred" json:"is_preferred"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Phone        string    `db:"phone" json:"phone"`
	AddressLine1 string    `db:"address_line_1" json:"address_line_1"`
	AddressLine2 string    `db:"address_line_2" json:"address_line_2"`
	City         string    `db:"city" json:"city"`
	County       string    `db:"county" json:"county"`
	CountryID    int64     `db:"country_id" json:"country_id"`
	ZipCode      string    `db:"zip_code" json:"zip_code"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (a *Address) IsShipping() bool {
	return a.AddressType == AddressTypeShipping
}

// Product types
const (
	ProductTypeSimple       = "simple"
	ProductTypeConfigurable = "configurable"
	ProductTypeVariant      = "variant"
)

// Product represents a product in the catalog
type Product struct {
	ID               int64           `db:"id" json:"id"`
	ParentID         *int64          `db:"parent_id" json:"parent_id,omitempty"`
	ProductType      string          `db:"product_type" json:"product_type"`
	SKU              string          `db:"sku" json:"sku"`
	EAN              string          `db:"ean" json:"ean"`
	Name             string          `db:"name" json:"name"`
	PriceRON         decimal.Decimal `db:"price_ron" json:"price_ron"`
	PurchasePriceRON decimal.Decimal `db:"purchase_price_ron" json:"purchase_price_ron"`
	Stock            int             `db:"stock" json:"stock"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Sellable reports whether the product can be put on an order line. Configurable
// products are containers for their variants.
func (p *Product) Sellable() bool {
	return p.ProductType != ProductTypeConfigurable
}

// ProductGroupPrice is a tier: from MinQuantity units upwards the group pays PriceRON.
type ProductGroupPrice struct {
	ID              int64           `db:"id" json:"id"`
	ProductID       int64           `db:"product_id" json:"product_id"`
	CustomerGroupID int64           `db:"customer_group_id" json:"customer_group_id"`
	MinQuantity     int             `db:"min_quantity" json:"min_quantity"`
	PriceRON        decimal.Decimal `db:"price_ron" json:"price_ron"`
}

// VatRate is the current VAT percentage of a country.
type VatRate struct {
	ID        int64           `db:"id" json:"id"`
	CountryID int64           `db:"country_id" json:"country_id"`
	Rate      decimal.Decimal `db:"rate" json:"rate"`
}

type Country struct {
	ID   int64  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
	IsEU bool   `db:"is_eu" json:"is_eu"`
}

type State struct {
	ID        int64  `db:"id" json:"id"`
	CountryID int64  `db:"country_id" json:"country_id"`
	Name      string `db:"name" json:"name"`
}

type City struct {
	ID      int64  `db:"id" json:"id"`
	StateID int64  `db:"state_id" json:"state_id"`
	Name    string `db:"name" json:"name"`
}

type ShippingMethod struct {
	ID          int64           `db:"id" json:"id"`
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	BaseCostRON decimal.Decimal `db:"base_cost_ron" json:"base_cost_ron"`
	IsActive    bool            `db:"is_active" json:"is_active"`
}

// Shipping config value types
const (
	ConfigValueString  = "string"
	ConfigValueInt     = "int"
	ConfigValueBool    = "bool"
	ConfigValueDecimal = "decimal"
	ConfigValueSecret  = "secret"
)

// ShippingMethodConfig is a typed key/value pair, typically courier API credentials.
type ShippingMethodConfig struct {
	ID               int64  `db:"id" json:"id"`
	ShippingMethodID int64  `db:"shipping_method_id" json:"shipping_method_id"`
	ConfigKey        string `db:"config_key" json:"config_key"`
	ConfigValue      string `db:"config_value" json:"-"`
	ValueType        string `db:"value_type" json:"value_type"`
}

// PricingSnapshot is frozen onto an order at checkout and never recomputed.
type PricingSnapshot struct {
	Currency       string          `db:"currency" json:"currency"`
	ExchangeRate   decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	VATRateApplied decimal.Decimal `db:"vat_rate_applied" json:"vat_rate_applied"`
	IsVATExempt    bool            `db:"is_vat_exempt" json:"is_vat_exempt"`
}

// OrderTotals are computed once at checkout, in order currency and in RON.
type OrderTotals struct {
	TotalExclVAT    decimal.Decimal `db:"total_excl_vat" json:"total_excl_vat"`
	TotalInclVAT    decimal.Decimal `db:"total_incl_vat" json:"total_incl_vat"`
	TotalRONExclVAT decimal.Decimal `db:"total_ron_excl_vat" json:"total_ron_excl_vat"`
	TotalRONInclVAT decimal.Decimal `db:"total_ron_incl_vat" json:"total_ron_incl_vat"`
}

// Order is an immutable financial record; only Status, IsPaid and PaidAt change after creation.
type Order struct {
	ID            int64  `db:"id" json:"id"`
	CustomerID    int64  `db:"customer_id" json:"customer_id"`
	OrderNumber   string `db:"order_number" json:"order_number"`
	Status        string `db:"status" json:"status"`
	PaymentMethod string `db:"payment_method" json:"payment_method"`
	PricingSnapshot
	OrderTotals
	IsPaid    bool       `db:"is_paid" json:"is_paid"`
	PaidAt    *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// LineSnapshot freezes product identity and prices onto an order line.
type LineSnapshot struct {
	Name                 string          `db:"name" json:"name"`
	SKU                  string          `db:"sku" json:"sku"`
	EAN                  string          `db:"ean" json:"ean"`
	Currency             string          `db:"currency" json:"currency"`
	ExchangeRate         decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	VATRate              decimal.Decimal `db:"vat_rate" json:"vat_rate"`
	UnitPrice            decimal.Decimal `db:"unit_price" json:"unit_price"`
	UnitPriceRON         decimal.Decimal `db:"unit_price_ron" json:"unit_price_ron"`
	UnitPurchasePriceRON decimal.Decimal `db:"unit_purchase_price_ron" json:"unit_purchase_price_ron"`
	TotalPrice           decimal.Decimal `db:"total_price" json:"total_price"`
	TotalPriceRON        decimal.Decimal `db:"total_price_ron" json:"total_price_ron"`
	ProfitRON            decimal.Decimal `db:"profit_ron" json:"profit_ron"`
}

type OrderProduct struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	ProductID *int64 `db:"product_id" json:"product_id,omitempty"`
	Quantity  int    `db:"quantity" json:"quantity"`
	LineSnapshot
}

// OrderAddress is a copy of a customer address taken at checkout.
type OrderAddress struct {
	ID           int64  `db:"id" json:"id"`
	OrderID      int64  `db:"order_id" json:"order_id"`
	AddressType  string `db:"address_type" json:"address_type"`
	FirstName    string `db:"first_name" json:"first_name"`
	LastName     string `db:"last_name" json:"last_name"`
	Phone        string `db:"phone" json:"phone"`
	CompanyName  string `db:"company_name" json:"company_name"`
	FiscalCode   string `db:"fiscal_code" json:"fiscal_code"`
	AddressLine1 string `db:"address_line_1" json:"address_line_1"`
	AddressLine2 string `db:"address_line_2" json:"address_line_2"`
	City         string `db:"city" json:"city"`
	County       string `db:"county" json:"county"`
	CountryID    int64  `db:"country_id" json:"country_id"`
	CountryCode  string `db:"country_code" json:"country_code"`
	ZipCode      string `db:"zip_code" json:"zip_code"`
}

type OrderShipping struct {
	ID               int64           `db:"id" json:"id"`
	OrderID          int64           `db:"order_id" json:"order_id"`
	ShippingMethodID int64           `db:"shipping_method_id" json:"shipping_method_id"`
	MethodName       string          `db:"method_name" json:"method_name"`
	CostExclVAT      decimal.Decimal `db:"cost_excl_vat" json:"cost_excl_vat"`
	CostInclVAT      decimal.Decimal `db:"cost_incl_vat" json:"cost_incl_vat"`
	CostRONExclVAT   decimal.Decimal `db:"cost_ron_excl_vat" json:"cost_ron_excl_vat"`
	CostRONInclVAT   decimal.Decimal `db:"cost_ron_incl_vat" json:"cost_ron_incl_vat"`
	TrackingNumber   string          `db:"tracking_number" json:"tracking_number"`
}

// Order history actions
const (
	HistoryOrderCreated    = "order_created"
	HistoryOrderCancelled  = "order_cancelled"
	HistoryStatusChanged   = "status_changed"
	HistoryPaymentReceived = "payment_received"
)

// Actor types
const (
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

// OrderHistory is an append-only audit entry.
type OrderHistory struct {
	ID        int64          `db:"id" json:"id"`
	OrderID   int64          `db:"order_id" json:"order_id"`
	Action    string         `db:"action" json:"action"`
	OldValue  types.JSONText `db:"old_value" json:"old_value,omitempty"`
	NewValue  types.JSONText `db:"new_value" json:"new_value,omitempty"`
	ActorType string         `db:"actor_type" json:"actor_type"`
	ActorID   *int64         `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// OrderListing is an order row plus what the listing derives from its history.
type OrderListing struct {
	Order
	EverCancelled bool `db:"ever_cancelled" json:"ever_cancelled"`
}

// IsCancelled combines the status column with the history log; either signal counts.
func (o *OrderListing) IsCancelled() bool {
	return o.Status == OrderStatusCancelled || o.EverCancelled
}

// Return reasons
const (
	ReturnReasonDamaged        = "damaged"
	ReturnReasonWrongItem      = "wrong_item"
	ReturnReasonNotAsDescribed = "not_as_described"
	ReturnReasonChangedMind    = "changed_mind"
	ReturnReasonOther          = "other"
)

// ReturnSnapshot copies customer and product identity at return creation.
type ReturnSnapshot struct {
	OrderNumber   string `db:"order_number" json:"order_number"`
	CustomerName  string `db:"customer_name" json:"customer_name"`
	CustomerEmail string `db:"customer_email" json:"customer_email"`
	CustomerPhone string `db:"customer_phone" json:"customer_phone"`
	ProductName   string `db:"product_name" json:"product_name"`
	ProductSKU    string `db:"product_sku" json:"product_sku"`
}

type Return struct {
	ID             int64  `db:"id" json:"id"`
	ReturnNumber   string `db:"return_number" json:"return_number"`
	OrderID        int64  `db:"order_id" json:"order_id"`
	OrderProductID int64  `db:"order_product_id" json:"order_product_id"`
	CustomerID     int64  `db:"customer_id" json:"customer_id"`
	ProductID      *int64 `db:"product_id" json:"product_id,omitempty"`
	ReturnSnapshot
	Reason       string           `db:"reason" json:"reason"`
	Details      string           `db:"details" json:"details"`
	Quantity     int              `db:"quantity" json:"quantity"`
	IsOpened     bool             `db:"is_opened" json:"is_opened"`
	IBAN         string           `db:"iban" json:"iban"`
	Status       string           `db:"status" json:"status"`
	RefundAmount *decimal.Decimal `db:"refund_amount" json:"refund_amount"`
	RestockItem  bool             `db:"restock_item" json:"restock_item"`
	RestockedAt  *time.Time       `db:"restocked_at" json:"restocked_at"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// Restocked reports whether the exactly-once stock increment has been applied.
func (r *Return) Restocked() bool {
	return r.RestockedAt != nil
}

// ReturnableItem is one (order, line) pair offered to the customer when starting a return.
type ReturnableItem struct {
	OrderID        int64     `db:"order_id" json:"order_id"`
	OrderNumber    string    `db:"order_number" json:"order_number"`
	OrderProductID int64     `db:"order_product_id" json:"order_product_id"`
	ProductName    string    `db:"product_name" json:"product_name"`
	ProductSKU     string    `db:"product_sku" json:"product_sku"`
	Quantity       int       `db:"quantity" json:"quantity"`
	OrderedAt      time.Time `db:"ordered_at" json:"ordered_at"`
}

// Page selects a slice of a result set. All disables pagination.
type Page struct {
	Number int
	Size   int
	All    bool
}

func (p Page) Offset() int {
	if p.All || p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}
