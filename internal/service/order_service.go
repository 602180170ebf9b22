package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/validation"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderStore is what OrderService needs from the repository.
type OrderStore interface {
	TxRunner
	CustomerReader
	GetAddress(ctx context.Context, customerID, id int64) (*models.Address, error)
	GetCountry(ctx context.Context, id int64) (*models.Country, error)
	GetVATRate(ctx context.Context, countryID int64) (*models.VatRate, error)
	GetShippingMethod(ctx context.Context, id int64) (*models.ShippingMethod, error)
	ListShippingMethodConfigs(ctx context.Context, methodID int64) ([]models.ShippingMethodConfig, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetGroupPrices(ctx context.Context, productID, groupID int64) ([]models.ProductGroupPrice, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) error

	CreateOrder(ctx context.Context, o *models.Order) error
	CreateOrderProduct(ctx context.Context, p *models.OrderProduct) error
	CreateOrderAddress(ctx context.Context, a *models.OrderAddress) error
	CreateOrderShipping(ctx context.Context, sh *models.OrderShipping) error
	AppendOrderHistory(ctx context.Context, h *models.OrderHistory) error
	OrderNumberExists(ctx context.Context, number string) (bool, error)

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetCustomerOrder(ctx context.Context, customerID, id int64) (*models.Order, error)
	ListOrderProducts(ctx context.Context, orderID int64) ([]models.OrderProduct, error)
	ListOrderAddresses(ctx context.Context, orderID int64) ([]models.OrderAddress, error)
	GetOrderShipping(ctx context.Context, orderID int64) (*models.OrderShipping, error)
	ListOrderHistory(ctx context.Context, orderID int64) ([]models.OrderHistory, error)
	HasOrderHistoryAction(ctx context.Context, orderID int64, action string) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time) (bool, error)
}

// RateSource returns how many RON one unit of currency is worth.
type RateSource interface {
	LatestRate(ctx context.Context, currency string) (decimal.Decimal, error)
}

// OrderService handles checkout and the order lifecycle
type OrderService struct {
	store           OrderStore
	rates           RateSource
	publisher       EventPublisher
	homeCountryCode string
	logger          *zap.Logger
	now             func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(s OrderStore, rates RateSource, publisher EventPublisher, homeCountryCode string) *OrderService {
	return &OrderService{
		store:           s,
		rates:           rates,
		publisher:       publisher,
		homeCountryCode: strings.ToUpper(homeCountryCode),
		logger:          util.Named("orders"),
		now:             time.Now,
	}
}

// Payment methods
const (
	PaymentCard           = "card"
	PaymentBankTransfer   = "bank_transfer"
	PaymentCashOnDelivery = "cash_on_delivery"
)

// CheckoutLine is one requested product quantity
type CheckoutLine struct {
	ProductID int64 `json:"product_id" validate:"required"`
	Quantity  int   `json:"quantity" validate:"gte=1,max=1000"`
}

// PlaceOrderRequest represents a checkout submission
type PlaceOrderRequest struct {
	Lines             []CheckoutLine `json:"lines" validate:"required,min=1,dive"`
	ShippingAddressID int64          `json:"shipping_address_id" validate:"required"`
	BillingAddressID  int64          `json:"billing_address_id"`
	ShippingMethodID  int64          `json:"shipping_method_id" validate:"required"`
	Currency          string         `json:"currency" validate:"required,len=3"`
	PaymentMethod     string         `json:"payment_method" validate:"required,oneof=card bank_transfer cash_on_delivery"`
}

// mergedLines sums quantities of repeated products, keeping first-seen order.
func (r *PlaceOrderRequest) mergedLines() []CheckoutLine {
	index := make(map[int64]int, len(r.Lines))
	out := make([]CheckoutLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// OrderDetail is an order with everything frozen onto it
type OrderDetail struct {
	models.Order
	IsCancelled bool                  `json:"is_cancelled"`
	Products    []models.OrderProduct `json:"products"`
	Addresses   []models.OrderAddress `json:"addresses"`
	Shipping    *models.OrderShipping `json:"shipping,omitempty"`
	History     []models.OrderHistory `json:"history"`
}

// PlaceOrder freezes prices, rate and VAT onto a new order and takes the stock,
// all in one transaction.
func (s *OrderService) PlaceOrder(ctx context.Context, userID int64, req *PlaceOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if err := validation.Struct(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}
	req.Currency = strings.ToUpper(req.Currency)

	customer, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	var (
		order *models.Order
		lines []models.OrderProduct
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockCustomer(ctx, customer.ID); err != nil {
			return err
		}

		shipAddr, billAddr, err := s.checkoutAddresses(ctx, customer.ID, req)
		if err != nil {
			return err
		}
		shipCountry, err := s.country(ctx, shipAddr.CountryID)
		if err != nil {
			return err
		}
		billCountry, err := s.country(ctx, billAddr.CountryID)
		if err != nil {
			return err
		}

		snap, err := s.snapshot(ctx, customer, billCountry, req.Currency)
		if err != nil {
			return err
		}

		method, err := s.store.GetShippingMethod(ctx, req.ShippingMethodID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !method.IsActive) {
			return validation.FieldError("shipping_method_id", "The selected shipping method id is invalid.")
		}
		if err != nil {
			return err
		}
		cfgRows, err := s.store.ListShippingMethodConfigs(ctx, method.ID)
		if err != nil {
			return err
		}

		priced, err := s.priceLines(ctx, customer, req.mergedLines(), snap)
		if err != nil {
			return err
		}

		snapshots := make([]models.LineSnapshot, len(priced))
		subtotalRON := decimal.Zero
		for i, l := range priced {
			snapshots[i] = l.LineSnapshot
			subtotalRON = subtotalRON.Add(l.TotalPriceRON)
		}
		shipping, err := ShippingCost(method, models.NewShippingConfig(cfgRows), subtotalRON, snap)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}

		number, err := uniqueNumber(ctx, func() string { return newOrderNumber(s.now()) }, s.store.OrderNumberExists)
		if err != nil {
			return err
		}

		order = &models.Order{
			CustomerID:      customer.ID,
			OrderNumber:     number,
			Status:          models.OrderStatusPending,
			PaymentMethod:   req.PaymentMethod,
			PricingSnapshot: snap,
			OrderTotals:     OrderTotals(snapshots, shipping, snap),
		}
		if err := s.store.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range priced {
			priced[i].OrderID = order.ID
			if err := s.store.CreateOrderProduct(ctx, &priced[i]); err != nil {
				return fmt.Errorf("failed to create order product: %w", err)
			}
		}
		lines = priced

		for _, snapAddr := range []*models.OrderAddress{
			orderAddress(order.ID, models.AddressTypeShipping, shipAddr, shipCountry, customer),
			orderAddress(order.ID, models.AddressTypeBilling, billAddr, billCountry, customer),
		} {
			if err := s.store.CreateOrderAddress(ctx, snapAddr); err != nil {
				return fmt.Errorf("failed to create order address: %w", err)
			}
		}

		shipping.OrderID = order.ID
		if err := s.store.CreateOrderShipping(ctx, &shipping); err != nil {
			return fmt.Errorf("failed to create order shipping: %w", err)
		}

		return s.store.AppendOrderHistory(ctx, &models.OrderHistory{
			OrderID:   order.ID,
			Action:    models.HistoryOrderCreated,
			NewValue:  jsonValue(map[string]string{"status": order.Status, "order_number": order.OrderNumber}),
			ActorType: models.ActorCustomer,
			ActorID:   actorID(userID),
		})
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		util.FailSpan(span, err)
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("currency", order.Currency),
		zap.String("total_ron_incl_vat", order.TotalRONInclVAT.String()))

	event := &models.OrderPlacedEvent{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		Currency:        order.Currency,
		TotalRONInclVAT: order.TotalRONInclVAT,
		Lines:           stockLines(lines),
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return order, nil
}

func (s *OrderService) checkoutAddresses(ctx context.Context, customerID int64, req *PlaceOrderRequest) (*models.Address, *models.Address, error) {
	ship, err := s.store.GetAddress(ctx, customerID, req.ShippingAddressID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	if !ship.IsShipping() {
		return nil, nil, validation.FieldError("shipping_address_id", "The selected address is not a shipping address.")
	}
	if req.BillingAddressID == 0 || req.BillingAddressID == ship.ID {
		return ship, ship, nil
	}
	bill, err := s.store.GetAddress(ctx, customerID, req.BillingAddressID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	return ship, bill, nil
}

func (s *OrderService) country(ctx context.Context, id int64) (*models.Country, error) {
	c, err := s.store.GetCountry(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: country %d is not seeded", ErrConfiguration, id)
	}
	return c, err
}

// snapshot reads the exchange rate and the billing country VAT rate. Both are
// required; a missing one aborts checkout.
func (s *OrderService) snapshot(ctx context.Context, c *models.Customer, billing *models.Country, currency string) (models.PricingSnapshot, error) {
	rate, err := s.rates.LatestRate(ctx, currency)
	if err != nil {
		return models.PricingSnapshot{}, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, currency, err)
	}
	if !rate.IsPositive() {
		return models.PricingSnapshot{}, fmt.Errorf("%w: %s rate is %s", ErrRateUnavailable, currency, rate)
	}

	vat, err := s.store.GetVATRate(ctx, billing.ID)
	if errors.Is(err, store.ErrNotFound) {
		return models.PricingSnapshot{}, fmt.Errorf("%w: no VAT rate for %s", ErrConfiguration, billing.Code)
	}
	if err != nil {
		return models.PricingSnapshot{}, err
	}

	return models.PricingSnapshot{
		Currency:       currency,
		ExchangeRate:   rate,
		VATRateApplied: vat.Rate,
		IsVATExempt:    IsVATExempt(c, billing, s.homeCountryCode),
	}, nil
}

// priceLines loads the products, resolves group tiers and takes the stock.
func (s *OrderService) priceLines(ctx context.Context, c *models.Customer, req []CheckoutLine, snap models.PricingSnapshot) ([]models.OrderProduct, error) {
	ids := make([]int64, len(req))
	for i, l := range req {
		ids[i] = l.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	out := make([]models.OrderProduct, 0, len(req))
	for _, l := range req {
		p, ok := byID[l.ProductID]
		if !ok || !p.Sellable() {
			return nil, validation.FieldError("lines", fmt.Sprintf("Product %d is not available.", l.ProductID))
		}

		var tiers []models.ProductGroupPrice
		if c.CustomerGroupID != nil {
			if tiers, err = s.store.GetGroupPrices(ctx, p.ID, *c.CustomerGroupID); err != nil {
				return nil, err
			}
		}

		taken, err := s.store.DecrementStock(ctx, p.ID, l.Quantity)
		if err != nil {
			return nil, err
		}
		if !taken {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, p.SKU)
		}

		productID := p.ID
		out = append(out, models.OrderProduct{
			ProductID:    &productID,
			Quantity:     l.Quantity,
			LineSnapshot: PriceLine(p, tiers, l.Quantity, snap),
		})
	}
	return out, nil
}

func orderAddress(orderID int64, addressType string, a *models.Address, country *models.Country, c *models.Customer) *models.OrderAddress {
	oa := &models.OrderAddress{
		OrderID:      orderID,
		AddressType:  addressType,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Phone:        a.Phone,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		County:       a.County,
		CountryID:    country.ID,
		CountryCode:  country.Code,
		ZipCode:      a.ZipCode,
	}
	if c.IsCompany() && addressType == models.AddressTypeBilling {
		oa.CompanyName = c.CompanyName
		oa.FiscalCode = c.FiscalCode
	}
	return oa
}

func stockLines(lines []models.OrderProduct) []models.StockLine {
	out := make([]models.StockLine, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == nil {
			continue
		}
		out = append(out, models.StockLine{ProductID: *l.ProductID, Quantity: l.Quantity})
	}
	return out
}

func failureReason(err error) string {
	var ve *validation.Error
	switch {
	case errors.As(err, &ve):
		return "invalid_request"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrRateUnavailable):
		return "rate_unavailable"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "db_error"
}

// GetOrder retrieves an order of the customer with its snapshots and history
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	c, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	o, err := s.store.GetCustomerOrder(ctx, c.ID, orderID)
	if err != nil {
		return nil, storeErr(err)
	}
	return s.detail(ctx, o)
}

// AdminGetOrder retrieves any order
func (s *OrderService) AdminGetOrder(ctx context.Context, orderID int64) (*OrderDetail, error) {
	o, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err)
	}
	return s.detail(ctx, o)
}

func (s *OrderService) detail(ctx context.Context, o *models.Order) (*OrderDetail, error) {
	d := &OrderDetail{Order: *o}
	var err error

	if d.Products, err = s.store.ListOrderProducts(ctx, o.ID); err != nil {
		return nil, err
	}
	if d.Addresses, err = s.store.ListOrderAddresses(ctx, o.ID); err != nil {
		return nil, err
	}
	if d.History, err = s.store.ListOrderHistory(ctx, o.ID); err != nil {
		return nil, err
	}
	sh, err := s.store.GetOrderShipping(ctx, o.ID)
	switch {
	case err == nil:
		d.Shipping = sh
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	d.IsCancelled = o.Status == models.OrderStatusCancelled
	for _, h := range d.History {
		if h.Action == models.HistoryOrderCancelled {
			d.IsCancelled = true
		}
	}
	return d, nil
}

// CancelOrder cancels a pending order of the customer and puts its stock back
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	c, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	var (
		order *models.Order
		lines []models.OrderProduct
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockCustomer(ctx, c.ID); err != nil {
			return err
		}
		o, err := s.store.GetCustomerOrder(ctx, c.ID, orderID)
		if err != nil {
			return storeErr(err)
		}

		cancelled, err := s.store.HasOrderHistoryAction(ctx, o.ID, models.HistoryOrderCancelled)
		if err != nil {
			return err
		}
		if cancelled || o.Status != models.OrderStatusPending {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.OrderNumber, o.Status)
		}

		lines, err = s.cancel(ctx, o, models.ActorCustomer, userID)
		order = o
		return err
	})
	if err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled by customer", zap.Int64("order_id", order.ID))
	s.publishCancelled(ctx, order, lines)
	return order, nil
}

// cancel sets the cancelled status, logs it and restores stock. The caller holds the tx.
func (s *OrderService) cancel(ctx context.Context, o *models.Order, actorType string, actor int64) ([]models.OrderProduct, error) {
	oldStatus := o.Status
	if err := s.store.UpdateOrderStatus(ctx, o.ID, models.OrderStatusCancelled); err != nil {
		return nil, storeErr(err)
	}
	o.Status = models.OrderStatusCancelled

	if err := s.store.AppendOrderHistory(ctx, &models.OrderHistory{
		OrderID:   o.ID,
		Action:    models.HistoryOrderCancelled,
		OldValue:  jsonValue(map[string]string{"status": oldStatus}),
		NewValue:  jsonValue(map[string]string{"status": models.OrderStatusCancelled}),
		ActorType: actorType,
		ActorID:   actorID(actor),
	}); err != nil {
		return nil, err
	}

	lines, err := s.store.ListOrderProducts(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if l.ProductID == nil {
			continue
		}
		if err := s.store.IncrementStock(ctx, *l.ProductID, l.Quantity); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to restore stock for product %d: %w", *l.ProductID, err)
		}
	}
	return lines, nil
}

func (s *OrderService) publishCancelled(ctx context.Context, o *models.Order, lines []models.OrderProduct) {
	event := &models.OrderCancelledEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Lines:      stockLines(lines),
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

// UpdateOrderStatus overwrites the status of any order. Moving an order to
// cancelled for the first time also restores its stock. Cancelled is final:
// the stock is already back on the shelf, so a cancelled order is never reopened.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status string, actor int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus",
		attribute.Int64("order.id", orderID), attribute.String("order.status", status))
	defer span.End()

	if !models.IsValidOrderStatus(status) {
		return nil, validation.FieldError("status", "The selected status is invalid.")
	}

	var (
		order          *models.Order
		oldStatus      string
		cancelledLines []models.OrderProduct
		cancelledNow   bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return storeErr(err)
		}
		// Same lock as CancelOrder, so concurrent cancels see each other's history.
		if err := s.store.LockCustomer(ctx, o.CustomerID); err != nil {
			return storeErr(err)
		}
		if o, err = s.store.GetOrderByID(ctx, orderID); err != nil {
			return storeErr(err)
		}
		order, oldStatus = o, o.Status
		if o.Status == status {
			return nil
		}
		if o.Status == models.OrderStatusCancelled {
			return fmt.Errorf("%w: order %s is cancelled", ErrInvalidTransition, o.OrderNumber)
		}

		if status == models.OrderStatusCancelled {
			everCancelled, err := s.store.HasOrderHistoryAction(ctx, o.ID, models.HistoryOrderCancelled)
			if err != nil {
				return err
			}
			if !everCancelled {
				if cancelledLines, err = s.cancel(ctx, o, models.ActorAdmin, actor); err != nil {
					return err
				}
				cancelledNow = true
			}
		}

		if !cancelledNow {
			if err := s.store.UpdateOrderStatus(ctx, o.ID, status); err != nil {
				return storeErr(err)
			}
			o.Status = status
		}

		return s.store.AppendOrderHistory(ctx, &models.OrderHistory{
			OrderID:   o.ID,
			Action:    models.HistoryStatusChanged,
			OldValue:  jsonValue(map[string]string{"status": oldStatus}),
			NewValue:  jsonValue(map[string]string{"status": status}),
			ActorType: models.ActorAdmin,
			ActorID:   actorID(actor),
		})
	})
	if err != nil {
		return nil, err
	}
	if oldStatus == status {
		return order, nil
	}

	util.OrderStatusChangesTotal.WithLabelValues(status).Inc()
	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", oldStatus),
		zap.String("to", status))

	if cancelledNow {
		util.OrdersCancelledTotal.Inc()
		s.publishCancelled(ctx, order, cancelledLines)
	}
	event := &models.OrderStatusChangedEvent{OrderID: order.ID, OldStatus: oldStatus, NewStatus: status}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	return order, nil
}

// MarkOrderPaid records payment once; repeated calls leave paid_at unchanged
func (s *OrderService) MarkOrderPaid(ctx context.Context, orderID int64, actor int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkOrderPaid", attribute.Int64("order.id", orderID))
	defer span.End()

	var order *models.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return storeErr(err)
		}

		paidAt := s.now().UTC()
		applied, err := s.store.MarkOrderPaid(ctx, o.ID, paidAt)
		if err != nil {
			return err
		}
		if applied {
			if err := s.store.AppendOrderHistory(ctx, &models.OrderHistory{
				OrderID:   o.ID,
				Action:    models.HistoryPaymentReceived,
				OldValue:  jsonValue(map[string]bool{"is_paid": false}),
				NewValue:  jsonValue(map[string]interface{}{"is_paid": true, "paid_at": paidAt}),
				ActorType: models.ActorAdmin,
				ActorID:   actorID(actor),
			}); err != nil {
				return err
			}
			s.logger.Info("Order marked paid", zap.Int64("order_id", o.ID))
		}

		order, err = s.store.GetOrderByID(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
