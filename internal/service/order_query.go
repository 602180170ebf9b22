package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"storefront/internal/filter"
	"storefront/internal/models"
	"storefront/internal/util"
	"storefront/internal/validation"

	"go.uber.org/zap"
)

const (
	// PerPageAll disables pagination.
	PerPageAll = "all"
	maxPerPage = 100

	displayDateFormat     = "02.01.2006"
	displayDateTimeFormat = "02.01.2006 15:04"
)

// OrderQueryStore is what OrderQueryService needs from the repository.
type OrderQueryStore interface {
	CustomerReader
	FirstOrderTime(ctx context.Context, customerID int64) (*time.Time, error)
	SearchOrders(ctx context.Context, pred filter.OrderPredicate, page models.Page) ([]models.OrderListing, int, error)
	ListOrderProductsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.OrderProduct, error)
}

// ListFilters is the query string of a listing, echoed back with the results.
type ListFilters struct {
	Status    string `form:"status" json:"status"`
	TimeRange string `form:"time_range" json:"time_range"`
	Search    string `form:"search" json:"search"`
	PerPage   string `form:"per_page" json:"per_page"`
	Page      int    `form:"page" json:"page"`
}

// normalize fills defaults and resolves the page. Unknown values are rejected.
func (f *ListFilters) normalize(defaultPerPage int, statuses func(string) bool) (models.Page, error) {
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	f.TimeRange = strings.ToLower(strings.TrimSpace(f.TimeRange))
	f.Search = strings.TrimSpace(f.Search)
	f.PerPage = strings.ToLower(strings.TrimSpace(f.PerPage))

	if f.Status == "" {
		f.Status = models.OrderFilterAll
	}
	if f.TimeRange == "" {
		f.TimeRange = models.TimeRangeAll
	}
	if f.Page < 1 {
		f.Page = 1
	}

	v := validation.Violations{}
	if !statuses(f.Status) {
		v.Add("status", "The selected status is invalid.")
	}
	switch f.TimeRange {
	case models.TimeRange3Months, models.TimeRange6Months, models.TimeRangeYear, models.TimeRangeAll:
	default:
		v.Add("time_range", "The selected time range is invalid.")
	}
	if len(f.Search) > 255 {
		v.Add("search", "The search may not be greater than 255 characters.")
	}

	page := models.Page{Number: f.Page, Size: defaultPerPage}
	switch f.PerPage {
	case "":
		f.PerPage = strconv.Itoa(defaultPerPage)
	case PerPageAll:
		page = models.Page{Number: 1, All: true}
		f.Page = 1
	default:
		n, err := strconv.Atoi(f.PerPage)
		if err != nil || n < 1 || n > maxPerPage {
			v.Add("per_page", "The per page must be a number between 1 and 100, or all.")
		} else {
			page.Size = n
		}
	}
	return page, v.Err()
}

// Pagination describes the returned slice of a listing.
type Pagination struct {
	CurrentPage int    `json:"current_page"`
	LastPage    int    `json:"last_page"`
	PerPage     string `json:"per_page"`
	Total       int    `json:"total"`
	From        int    `json:"from"`
	To          int    `json:"to"`
}

func newPagination(page models.Page, total, count int) Pagination {
	p := Pagination{CurrentPage: page.Number, Total: total, LastPage: 1}
	if page.All {
		p.PerPage = PerPageAll
	} else {
		p.PerPage = strconv.Itoa(page.Size)
		if total > 0 {
			p.LastPage = (total + page.Size - 1) / page.Size
		}
	}
	if count > 0 {
		p.From = page.Offset() + 1
		p.To = page.Offset() + count
	}
	return p
}

// BuildOrderPredicate composes the customer scope with the status, time window
// and search filters. firstOrder anchors the year range.
func BuildOrderPredicate(customerID int64, f ListFilters, now time.Time, firstOrder *time.Time) (filter.OrderPredicate, error) {
	w, err := filter.ResolveWindow(f.TimeRange, now, firstOrder)
	if err != nil {
		return filter.OrderPredicate{}, validation.FieldError("time_range", "The selected time range is invalid.")
	}
	return filter.And(
		filter.OrderOfCustomer(customerID),
		filter.OrderStatus(f.Status),
		filter.OrderCreatedWithin(w),
		filter.OrderSearch(f.Search),
	), nil
}

// OrderListProduct is a line as shown in the order history.
type OrderListProduct struct {
	ID         int64   `json:"id"`
	ProductID  *int64  `json:"product_id"`
	Name       string  `json:"name"`
	SKU        string  `json:"sku"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

// OrderListItem is an order as shown in the order history; money is numeric.
type OrderListItem struct {
	ID                 int64              `json:"id"`
	OrderNumber        string             `json:"order_number"`
	Status             string             `json:"status"`
	IsCancelled        bool               `json:"is_cancelled"`
	PaymentMethod      string             `json:"payment_method"`
	Currency           string             `json:"currency"`
	ExchangeRate       float64            `json:"exchange_rate"`
	VATRateApplied     float64            `json:"vat_rate_applied"`
	IsVATExempt        bool               `json:"is_vat_exempt"`
	TotalExclVAT       float64            `json:"total_excl_vat"`
	TotalInclVAT       float64            `json:"total_incl_vat"`
	TotalRONExclVAT    float64            `json:"total_ron_excl_vat"`
	TotalRONInclVAT    float64            `json:"total_ron_incl_vat"`
	IsPaid             bool               `json:"is_paid"`
	PaidAt             *string            `json:"paid_at"`
	CreatedAt          string             `json:"created_at"`
	CreatedAtFormatted string             `json:"created_at_formatted"`
	Products           []OrderListProduct `json:"products"`
}

type OrderListResult struct {
	Orders     []OrderListItem `json:"orders"`
	Pagination Pagination      `json:"pagination"`
	Filters    ListFilters     `json:"filters"`
}

// OrderQueryService serves the customer's order history.
type OrderQueryService struct {
	store          OrderQueryStore
	defaultPerPage int
	logger         *zap.Logger
	now            func() time.Time
}

func NewOrderQueryService(s OrderQueryStore, defaultPerPage int) *OrderQueryService {
	if defaultPerPage <= 0 {
		defaultPerPage = 10
	}
	return &OrderQueryService{
		store:          s,
		defaultPerPage: defaultPerPage,
		logger:         util.Named("orders"),
		now:            time.Now,
	}
}

func isOrderFilterStatus(s string) bool {
	switch s {
	case models.OrderFilterAll, models.OrderFilterActive, models.OrderFilterCancelled:
		return true
	}
	return false
}

// ListOrders returns one page of the customer's orders, newest first.
func (s *OrderQueryService) ListOrders(ctx context.Context, userID int64, f ListFilters) (*OrderListResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderQueryService.ListOrders")
	defer span.End()

	start := time.Now()
	defer func() { util.OrderQueryLatency.Observe(time.Since(start).Seconds()) }()

	page, err := f.normalize(s.defaultPerPage, isOrderFilterStatus)
	if err != nil {
		return nil, err
	}

	c, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	var first *time.Time
	if f.TimeRange == models.TimeRangeYear {
		if first, err = s.store.FirstOrderTime(ctx, c.ID); err != nil {
			return nil, err
		}
	}

	pred, err := BuildOrderPredicate(c.ID, f, s.now(), first)
	if err != nil {
		return nil, err
	}

	listings, total, err := s.store.SearchOrders(ctx, pred, page)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	products, err := s.store.ListOrderProductsByOrderIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byOrder := make(map[int64][]OrderListProduct, len(listings))
	for _, p := range products {
		byOrder[p.OrderID] = append(byOrder[p.OrderID], OrderListProduct{
			ID:         p.ID,
			ProductID:  p.ProductID,
			Name:       p.Name,
			SKU:        p.SKU,
			Quantity:   p.Quantity,
			UnitPrice:  p.UnitPrice.InexactFloat64(),
			TotalPrice: p.TotalPrice.InexactFloat64(),
		})
	}

	out := &OrderListResult{
		Orders:     make([]OrderListItem, 0, len(listings)),
		Pagination: newPagination(page, total, len(listings)),
		Filters:    f,
	}
	for i := range listings {
		out.Orders = append(out.Orders, orderListItem(&listings[i], byOrder[listings[i].ID]))
	}

	s.logger.Debug("Listed orders",
		zap.Int64("customer_id", c.ID),
		zap.String("status", f.Status),
		zap.String("time_range", f.TimeRange),
		zap.Int("total", total))
	return out, nil
}

func orderListItem(l *models.OrderListing, products []OrderListProduct) OrderListItem {
	if products == nil {
		products = []OrderListProduct{}
	}
	item := OrderListItem{
		ID:                 l.ID,
		OrderNumber:        l.OrderNumber,
		Status:             l.Status,
		IsCancelled:        l.IsCancelled(),
		PaymentMethod:      l.PaymentMethod,
		Currency:           l.Currency,
		ExchangeRate:       l.ExchangeRate.InexactFloat64(),
		VATRateApplied:     l.VATRateApplied.InexactFloat64(),
		IsVATExempt:        l.IsVATExempt,
		TotalExclVAT:       l.TotalExclVAT.InexactFloat64(),
		TotalInclVAT:       l.TotalInclVAT.InexactFloat64(),
		TotalRONExclVAT:    l.TotalRONExclVAT.InexactFloat64(),
		TotalRONInclVAT:    l.TotalRONInclVAT.InexactFloat64(),
		IsPaid:             l.IsPaid,
		CreatedAt:          l.CreatedAt.UTC().Format(time.RFC3339),
		CreatedAtFormatted: l.CreatedAt.Format(displayDateTimeFormat),
		Products:           products,
	}
	if l.PaidAt != nil {
		paid := l.PaidAt.UTC().Format(time.RFC3339)
		item.PaidAt = &paid
	}
	return item
}
