package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrCustomerMissing   = errors.New("no customer profile is linked to this account")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrRateUnavailable   = errors.New("exchange rate unavailable")
	ErrConfiguration     = errors.New("store configuration incomplete")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateRequest  = errors.New("request with this idempotency key is already in progress")
)

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CustomerReader resolves the customer behind an authenticated user.
type CustomerReader interface {
	GetCustomerByUserID(ctx context.Context, userID int64) (*models.Customer, error)
	LockCustomer(ctx context.Context, customerID int64) error
}

// EventPublisher publishes domain events after the owning transaction commits.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishReturnCreated(ctx context.Context, event *models.ReturnCreatedEvent) error
	PublishReturnStatusChanged(ctx context.Context, event *models.ReturnStatusChangedEvent) error
	PublishReturnRestocked(ctx context.Context, event *models.ReturnRestockedEvent) error
}

// storeErr maps repository errors onto service errors.
func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func loadCustomer(ctx context.Context, customers CustomerReader, userID int64) (*models.Customer, error) {
	c, err := customers.GetCustomerByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCustomerMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return c, nil
}

// jsonValue encodes v for the order history log.
func jsonValue(v interface{}) types.JSONText {
	b, err := json.Marshal(v)
	if err != nil {
		return types.JSONText("{}")
	}
	return types.JSONText(b)
}

// randomCode returns n uppercase hex characters.
func randomCode(n int) string {
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return code[:n]
}

func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), randomCode(6))
}

func newReturnNumber() string {
	code := randomCode(6)
	return fmt.Sprintf("RET-%s-%s", code[:3], code[3:])
}

// uniqueNumber draws from gen until exists reports a free value.
func uniqueNumber(ctx context.Context, gen func() string, exists func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		n := gen()
		taken, err := exists(ctx, n)
		if err != nil {
			return "", err
		}
		if !taken {
			return n, nil
		}
	}
	return "", errors.New("could not generate a unique number")
}

func actorID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
