package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/filter"
	"storefront/internal/fiscal"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/validation"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReturnStore is what ReturnService needs from the repository.
type ReturnStore interface {
	TxRunner
	CustomerReader
	GetCustomerOrder(ctx context.Context, customerID, id int64) (*models.Order, error)
	GetOrderProduct(ctx context.Context, orderID, id int64) (*models.OrderProduct, error)
	HasOrderHistoryAction(ctx context.Context, orderID int64, action string) (bool, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) error

	CreateReturn(ctx context.Context, r *models.Return) error
	ReturnNumberExists(ctx context.Context, number string) (bool, error)
	GetReturn(ctx context.Context, id int64) (*models.Return, error)
	GetCustomerReturn(ctx context.Context, customerID, id int64) (*models.Return, error)
	ReturnedQuantity(ctx context.Context, orderProductID int64) (int, error)
	FirstReturnTime(ctx context.Context, customerID int64) (*time.Time, error)
	SearchReturns(ctx context.Context, pred filter.ReturnPredicate, page models.Page) ([]models.Return, int, error)
	UpdateReturnStatus(ctx context.Context, id int64, status string) error
	UpdateReturnRefund(ctx context.Context, id int64, amount *decimal.Decimal) error
	SetReturnRestockFlag(ctx context.Context, id int64, restock bool) error
	MarkReturnRestocked(ctx context.Context, id int64, at time.Time) (bool, error)
	SearchReturnableItems(ctx context.Context, customerID int64, term string) ([]models.ReturnableItem, error)
}

// IdempotencyStore remembers which return a client request key produced.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, int64, error)
	CompleteIdempotencyKey(ctx context.Context, key string, id int64, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// CreateReturnRequest represents a customer return submission
type CreateReturnRequest struct {
	OrderID        int64  `json:"order_id" form:"order_id" validate:"required"`
	OrderProductID int64  `json:"order_product_id" form:"order_product_id" validate:"required"`
	Reason         string `json:"reason" form:"reason" validate:"required,oneof=damaged wrong_item not_as_described changed_mind other"`
	Details        string `json:"details" form:"details" validate:"max=1000"`
	Quantity       int    `json:"quantity" form:"quantity" validate:"gte=1"`
	IsOpened       bool   `json:"is_opened" form:"is_opened"`
	IBAN           string `json:"iban" form:"iban" validate:"max=34"`
	IdempotencyKey string `json:"-" form:"-"`
}

// ReturnListItem is a return as shown in listings; money is numeric.
type ReturnListItem struct {
	ID                 int64    `json:"id"`
	ReturnNumber       string   `json:"return_number"`
	OrderID            int64    `json:"order_id"`
	OrderNumber        string   `json:"order_number"`
	OrderProductID     int64    `json:"order_product_id"`
	ProductName        string   `json:"product_name"`
	ProductSKU         string   `json:"product_sku"`
	CustomerName       string   `json:"customer_name"`
	Reason             string   `json:"reason"`
	Details            string   `json:"details"`
	Quantity           int      `json:"quantity"`
	IsOpened           bool     `json:"is_opened"`
	Status             string   `json:"status"`
	RefundAmount       *float64 `json:"refund_amount"`
	RestockItem        bool     `json:"restock_item"`
	Restocked          bool     `json:"restocked"`
	CreatedAt          string   `json:"created_at"`
	CreatedAtFormatted string   `json:"created_at_formatted"`
}

type ReturnListResult struct {
	Returns    []ReturnListItem `json:"returns"`
	Pagination Pagination       `json:"pagination"`
	Filters    ListFilters      `json:"filters"`
}

// ReturnService manages the return lifecycle
type ReturnService struct {
	store          ReturnStore
	idempotency    IdempotencyStore
	publisher      EventPublisher
	strict         bool
	idempotencyTTL time.Duration
	defaultPerPage int
	logger         *zap.Logger
	now            func() time.Time
}

// ReturnServiceConfig tunes ReturnService.
type ReturnServiceConfig struct {
	StrictTransitions bool
	IdempotencyTTL    time.Duration
	DefaultPerPage    int
}

// NewReturnService creates a return service. idempotency may be nil, which
// disables request key deduplication.
func NewReturnService(s ReturnStore, idempotency IdempotencyStore, publisher EventPublisher, cfg ReturnServiceConfig) *ReturnService {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.DefaultPerPage <= 0 {
		cfg.DefaultPerPage = 10
	}
	return &ReturnService{
		store:          s,
		idempotency:    idempotency,
		publisher:      publisher,
		strict:         cfg.StrictTransitions,
		idempotencyTTL: cfg.IdempotencyTTL,
		defaultPerPage: cfg.DefaultPerPage,
		logger:         util.Named("returns"),
		now:            time.Now,
	}
}

// CreateReturn opens a return for part of an order line. A repeated
// idempotency key yields the return the first request created.
func (s *ReturnService) CreateReturn(ctx context.Context, userID int64, req *CreateReturnRequest) (*models.Return, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.CreateReturn", attribute.Int64("order.id", req.OrderID))
	defer span.End()

	req.IBAN = fiscal.NormalizeIBAN(req.IBAN)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.IBAN != "" && !fiscal.ValidIBAN(req.IBAN) {
		return nil, validation.FieldError("iban", "The iban format is invalid.")
	}

	c, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	key := ""
	if s.idempotency != nil && req.IdempotencyKey != "" {
		key = fmt.Sprintf("return:%d:%s", c.ID, req.IdempotencyKey)
		claimed, existingID, err := s.idempotency.ClaimIdempotencyKey(ctx, key, s.idempotencyTTL)
		if err != nil {
			s.logger.Warn("Idempotency check failed, continuing without it", zap.Error(err))
			key = ""
		} else if !claimed {
			if existingID == 0 {
				return nil, ErrDuplicateRequest
			}
			s.logger.Info("Duplicate return request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("return_id", existingID))
			r, err := s.store.GetCustomerReturn(ctx, c.ID, existingID)
			return r, storeErr(err)
		}
	}

	r, err := s.createReturn(ctx, c, req)
	if err != nil {
		if key != "" {
			if rerr := s.idempotency.ReleaseIdempotencyKey(ctx, key); rerr != nil {
				s.logger.Error("Failed to release idempotency key", zap.Error(rerr))
			}
		}
		return nil, err
	}
	if key != "" {
		if err := s.idempotency.CompleteIdempotencyKey(ctx, key, r.ID, s.idempotencyTTL); err != nil {
			s.logger.Error("Failed to store idempotency key", zap.Int64("return_id", r.ID), zap.Error(err))
		}
	}

	util.ReturnsCreatedTotal.WithLabelValues(r.Reason).Inc()
	span.SetAttributes(attribute.Int64("return.id", r.ID))
	s.logger.Info("Return created",
		zap.Int64("return_id", r.ID),
		zap.String("return_number", r.ReturnNumber),
		zap.Int64("order_id", r.OrderID),
		zap.Int("quantity", r.Quantity))

	event := &models.ReturnCreatedEvent{
		ReturnID:     r.ID,
		ReturnNumber: r.ReturnNumber,
		OrderID:      r.OrderID,
		CustomerID:   r.CustomerID,
		Quantity:     r.Quantity,
		Reason:       r.Reason,
	}
	if err := s.publisher.PublishReturnCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReturnCreated event", zap.Int64("return_id", r.ID), zap.Error(err))
	}
	return r, nil
}

func (s *ReturnService) createReturn(ctx context.Context, c *models.Customer, req *CreateReturnRequest) (*models.Return, error) {
	var created *models.Return
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockCustomer(ctx, c.ID); err != nil {
			return err
		}

		o, err := s.store.GetCustomerOrder(ctx, c.ID, req.OrderID)
		if err != nil {
			return storeErr(err)
		}
		cancelled, err := s.store.HasOrderHistoryAction(ctx, o.ID, models.HistoryOrderCancelled)
		if err != nil {
			return err
		}
		if cancelled || o.Status == models.OrderStatusCancelled {
			return validation.FieldError("order_id", "Cancelled orders cannot be returned.")
		}

		line, err := s.store.GetOrderProduct(ctx, o.ID, req.OrderProductID)
		if err != nil {
			return storeErr(err)
		}
		if req.Quantity > line.Quantity {
			return validation.FieldError("quantity", fmt.Sprintf("The quantity may not be greater than %d.", line.Quantity))
		}
		returned, err := s.store.ReturnedQuantity(ctx, line.ID)
		if err != nil {
			return err
		}
		if left := line.Quantity - returned; req.Quantity > left {
			return validation.FieldError("quantity", fmt.Sprintf("Only %d item(s) of this product can still be returned.", max(left, 0)))
		}

		number, err := uniqueNumber(ctx, newReturnNumber, s.store.ReturnNumberExists)
		if err != nil {
			return err
		}

		r := &models.Return{
			ReturnNumber:   number,
			OrderID:        o.ID,
			OrderProductID: line.ID,
			CustomerID:     c.ID,
			ProductID:      line.ProductID,
			ReturnSnapshot: models.ReturnSnapshot{
				OrderNumber:   o.OrderNumber,
				CustomerName:  c.FullName(),
				CustomerEmail: c.Email,
				CustomerPhone: c.Phone,
				ProductName:   line.Name,
				ProductSKU:    line.SKU,
			},
			Reason:   req.Reason,
			Details:  strings.TrimSpace(req.Details),
			Quantity: req.Quantity,
			IsOpened: req.IsOpened,
			IBAN:     req.IBAN,
			Status:   models.ReturnStatusPending,
		}
		if err := s.store.CreateReturn(ctx, r); err != nil {
			return fmt.Errorf("failed to create return: %w", err)
		}
		created = r
		return nil
	})
	return created, err
}

// UpdateStatus moves a return to status. With strict transitions on, moves
// outside the lifecycle are refused. Completing a return flagged for restock
// applies the restock.
func (s *ReturnService) UpdateStatus(ctx context.Context, id int64, status string) (*models.Return, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.UpdateStatus",
		attribute.Int64("return.id", id), attribute.String("return.status", status))
	defer span.End()

	if !models.IsValidReturnStatus(status) {
		return nil, validation.FieldError("status", "The selected status is invalid.")
	}

	var (
		r         *models.Return
		oldStatus string
		restocked bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.store.GetReturn(ctx, id); err != nil {
			return storeErr(err)
		}
		oldStatus = r.Status

		if s.strict && !models.CanTransitionReturn(r.Status, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, status)
		}
		if r.Status != status {
			if err := s.store.UpdateReturnStatus(ctx, r.ID, status); err != nil {
				return storeErr(err)
			}
			r.Status = status
		}

		if status == models.ReturnStatusCompleted && r.RestockItem {
			restocked, err = s.applyRestock(ctx, r)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if oldStatus != status {
		util.ReturnStatusChangesTotal.WithLabelValues(status).Inc()
		s.logger.Info("Return status changed",
			zap.Int64("return_id", r.ID),
			zap.String("from", oldStatus),
			zap.String("to", status))
		event := &models.ReturnStatusChangedEvent{ReturnID: r.ID, OldStatus: oldStatus, NewStatus: status}
		if err := s.publisher.PublishReturnStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish ReturnStatusChanged event", zap.Int64("return_id", r.ID), zap.Error(err))
		}
	}
	if restocked {
		s.publishRestocked(ctx, r)
	}
	return r, nil
}

// UpdateRefundAmount overrides the refund; nil clears it.
func (s *ReturnService) UpdateRefundAmount(ctx context.Context, id int64, amount *decimal.Decimal) (*models.Return, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.UpdateRefundAmount", attribute.Int64("return.id", id))
	defer span.End()

	if amount != nil {
		if amount.IsNegative() {
			return nil, validation.FieldError("refund_amount", "The refund amount must be at least 0.")
		}
		rounded := amount.Round(2)
		amount = &rounded
	}

	var r *models.Return
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateReturnRefund(ctx, id, amount); err != nil {
			return storeErr(err)
		}
		var err error
		r, err = s.store.GetReturn(ctx, id)
		return storeErr(err)
	})
	if err != nil {
		return nil, err
	}

	refund := "none"
	if amount != nil {
		refund = amount.StringFixed(2)
	}
	s.logger.Info("Return refund updated", zap.Int64("return_id", id), zap.String("amount", refund))
	return r, nil
}

// UpdateRestockFlag sets the restock flag. Setting it applies the restock, at
// most once over the life of the return.
func (s *ReturnService) UpdateRestockFlag(ctx context.Context, id int64, restock bool) (*models.Return, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.UpdateRestockFlag",
		attribute.Int64("return.id", id), attribute.Bool("return.restock", restock))
	defer span.End()

	var (
		r         *models.Return
		restocked bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetReturnRestockFlag(ctx, id, restock); err != nil {
			return storeErr(err)
		}
		var err error
		if r, err = s.store.GetReturn(ctx, id); err != nil {
			return storeErr(err)
		}
		if restock {
			restocked, err = s.applyRestock(ctx, r)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if restocked {
		s.publishRestocked(ctx, r)
	}
	return r, nil
}

// applyRestock stamps restocked_at and increments stock in the caller's tx.
// The stamp is conditional, so only the first caller increments.
func (s *ReturnService) applyRestock(ctx context.Context, r *models.Return) (bool, error) {
	if r.ProductID == nil {
		util.RestocksSkippedTotal.WithLabelValues("product_deleted").Inc()
		s.logger.Warn("Restock skipped, product no longer exists", zap.Int64("return_id", r.ID))
		return false, nil
	}

	at := s.now().UTC()
	applied, err := s.store.MarkReturnRestocked(ctx, r.ID, at)
	if err != nil {
		return false, err
	}
	if !applied {
		util.RestocksSkippedTotal.WithLabelValues("already_restocked").Inc()
		return false, nil
	}

	if err := s.store.IncrementStock(ctx, *r.ProductID, r.Quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("product %d of return %d: %w", *r.ProductID, r.ID, ErrNotFound)
		}
		return false, fmt.Errorf("failed to restock product %d: %w", *r.ProductID, err)
	}

	r.RestockedAt = &at
	util.RestocksAppliedTotal.Inc()
	s.logger.Info("Return restocked",
		zap.Int64("return_id", r.ID),
		zap.Int64("product_id", *r.ProductID),
		zap.Int("quantity", r.Quantity))
	return true, nil
}

func (s *ReturnService) publishRestocked(ctx context.Context, r *models.Return) {
	event := &models.ReturnRestockedEvent{ReturnID: r.ID, ProductID: *r.ProductID, Quantity: r.Quantity}
	if err := s.publisher.PublishReturnRestocked(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReturnRestocked event", zap.Int64("return_id", r.ID), zap.Error(err))
	}
}

func isReturnFilterStatus(s string) bool {
	return s == models.OrderFilterAll || models.IsValidReturnStatus(s)
}

// BuildReturnPredicate composes the status, time window and search filters.
// customerID zero lists every customer's returns.
func BuildReturnPredicate(customerID int64, f ListFilters, now time.Time, firstReturn *time.Time) (filter.ReturnPredicate, error) {
	w, err := filter.ResolveWindow(f.TimeRange, now, firstReturn)
	if err != nil {
		return filter.ReturnPredicate{}, validation.FieldError("time_range", "The selected time range is invalid.")
	}
	preds := []filter.ReturnPredicate{
		filter.ReturnStatus(f.Status),
		filter.ReturnCreatedWithin(w),
		filter.ReturnSearch(f.Search),
	}
	if customerID != 0 {
		preds = append(preds, filter.ReturnOfCustomer(customerID))
	}
	return filter.And(preds...), nil
}

// ListCustomerReturns lists returns on the customer's own orders.
func (s *ReturnService) ListCustomerReturns(ctx context.Context, userID int64, f ListFilters) (*ReturnListResult, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.ListCustomerReturns")
	defer span.End()

	c, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, c.ID, f)
}

// AdminListReturns lists returns of all customers.
func (s *ReturnService) AdminListReturns(ctx context.Context, f ListFilters) (*ReturnListResult, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.AdminListReturns")
	defer span.End()

	return s.list(ctx, 0, f)
}

func (s *ReturnService) list(ctx context.Context, customerID int64, f ListFilters) (*ReturnListResult, error) {
	page, err := f.normalize(s.defaultPerPage, isReturnFilterStatus)
	if err != nil {
		return nil, err
	}

	var first *time.Time
	if f.TimeRange == models.TimeRangeYear {
		if first, err = s.store.FirstReturnTime(ctx, customerID); err != nil {
			return nil, err
		}
	}

	pred, err := BuildReturnPredicate(customerID, f, s.now(), first)
	if err != nil {
		return nil, err
	}
	returns, total, err := s.store.SearchReturns(ctx, pred, page)
	if err != nil {
		return nil, err
	}

	out := &ReturnListResult{
		Returns:    make([]ReturnListItem, 0, len(returns)),
		Pagination: newPagination(page, total, len(returns)),
		Filters:    f,
	}
	for i := range returns {
		out.Returns = append(out.Returns, returnListItem(&returns[i]))
	}
	return out, nil
}

func returnListItem(r *models.Return) ReturnListItem {
	item := ReturnListItem{
		ID:                 r.ID,
		ReturnNumber:       r.ReturnNumber,
		OrderID:            r.OrderID,
		OrderNumber:        r.OrderNumber,
		OrderProductID:     r.OrderProductID,
		ProductName:        r.ProductName,
		ProductSKU:         r.ProductSKU,
		CustomerName:       r.CustomerName,
		Reason:             r.Reason,
		Details:            r.Details,
		Quantity:           r.Quantity,
		IsOpened:           r.IsOpened,
		Status:             r.Status,
		RestockItem:        r.RestockItem,
		Restocked:          r.Restocked(),
		CreatedAt:          r.CreatedAt.UTC().Format(time.RFC3339),
		CreatedAtFormatted: r.CreatedAt.Format(displayDateFormat),
	}
	if r.RefundAmount != nil {
		v := r.RefundAmount.InexactFloat64()
		item.RefundAmount = &v
	}
	return item
}

// AdminGetReturn retrieves any return
func (s *ReturnService) AdminGetReturn(ctx context.Context, id int64) (*models.Return, error) {
	r, err := s.store.GetReturn(ctx, id)
	return r, storeErr(err)
}

// SearchReturnableItems finds (order, line) pairs the customer can start a return for.
func (s *ReturnService) SearchReturnableItems(ctx context.Context, userID int64, q string) ([]models.ReturnableItem, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.SearchReturnableItems")
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, validation.FieldError("q", "The q field is required.")
	}
	if len(q) > 100 {
		return nil, validation.FieldError("q", "The q may not be greater than 100 characters.")
	}

	c, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.SearchReturnableItems(ctx, c.ID, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.ReturnableItem{}
	}
	return items, nil
}
