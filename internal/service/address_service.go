package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AddressStore is what AddressService needs from the repository.
type AddressStore interface {
	TxRunner
	CustomerReader
	GetCountry(ctx context.Context, id int64) (*models.Country, error)
	ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error)
	GetAddress(ctx context.Context, customerID, id int64) (*models.Address, error)
	CreateAddress(ctx context.Context, a *models.Address) error
	UpdateAddress(ctx context.Context, a *models.Address) error
	DeleteAddress(ctx context.Context, customerID, id int64) error
	CountShippingAddresses(ctx context.Context, customerID int64) (int, error)
	UnmarkPreferredShipping(ctx context.Context, customerID, exceptID int64) error
	MarkPreferred(ctx context.Context, customerID, id int64) error
	OldestShippingAddress(ctx context.Context, customerID int64) (*models.Address, error)
}

// AddressInput is the editable part of an address. A nil IsPreferred leaves the
// decision to the service.
type AddressInput struct {
	AddressType  string `json:"address_type" form:"address_type" validate:"required,oneof=shipping billing headquarters"`
	IsPreferred  *bool  `json:"is_preferred" form:"is_preferred"`
	FirstName    string `json:"first_name" form:"first_name" validate:"max=100"`
	LastName     string `json:"last_name" form:"last_name" validate:"max=100"`
	Phone        string `json:"phone" form:"phone" validate:"max=30"`
	AddressLine1 string `json:"address_line_1" form:"address_line_1" validate:"required,max=255"`
	AddressLine2 string `json:"address_line_2" form:"address_line_2" validate:"max=255"`
	City         string `json:"city" form:"city" validate:"required,max=100"`
	County       string `json:"county" form:"county" validate:"max=100"`
	CountryID    int64  `json:"country_id" form:"country_id" validate:"required"`
	ZipCode      string `json:"zip_code" form:"zip_code" validate:"max=20"`
}

func (in AddressInput) apply(a *models.Address) {
	a.AddressType = in.AddressType
	a.FirstName = in.FirstName
	a.LastName = in.LastName
	a.Phone = in.Phone
	a.AddressLine1 = in.AddressLine1
	a.AddressLine2 = in.AddressLine2
	a.City = in.City
	a.County = in.County
	a.CountryID = in.CountryID
	a.ZipCode = in.ZipCode
}

// AddressService keeps at most one preferred shipping address per customer.
// Every mutation runs in a transaction holding the customer row lock.
type AddressService struct {
	store  AddressStore
	logger *zap.Logger
}

func NewAddressService(s AddressStore) *AddressService {
	return &AddressService{store: s, logger: util.Named("addresses")}
}

func (s *AddressService) List(ctx context.Context, userID int64) ([]models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.List")
	defer span.End()

	c, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListAddresses(ctx, c.ID)
}

// Create stores a new address. The first shipping address becomes preferred
// unless the caller decided explicitly.
func (s *AddressService) Create(ctx context.Context, userID int64, in AddressInput) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.Create")
	defer span.End()

	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	var created *models.Address
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.lockCustomer(ctx, userID)
		if err != nil {
			return err
		}

		a := &models.Address{CustomerID: c.ID}
		in.apply(a)

		if a.IsShipping() {
			if in.IsPreferred != nil {
				a.IsPreferred = *in.IsPreferred
			} else {
				n, err := s.store.CountShippingAddresses(ctx, c.ID)
				if err != nil {
					return err
				}
				a.IsPreferred = n == 0
			}
			if a.IsPreferred {
				if err := s.store.UnmarkPreferredShipping(ctx, c.ID, 0); err != nil {
					return err
				}
			}
		}

		if err := s.store.CreateAddress(ctx, a); err != nil {
			return fmt.Errorf("failed to create address: %w", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created.IsPreferred {
		util.PreferredAddressChangesTotal.WithLabelValues("create").Inc()
	}
	span.SetAttributes(attribute.Int64("address.id", created.ID))
	s.logger.Info("Address created",
		zap.Int64("address_id", created.ID),
		zap.Int64("customer_id", created.CustomerID),
		zap.Bool("preferred", created.IsPreferred))
	return created, nil
}

// Update rewrites an owned address. Turning a preferred shipping address into
// another type hands the preference to the oldest remaining shipping address.
func (s *AddressService) Update(ctx context.Context, userID, id int64, in AddressInput) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.Update", attribute.Int64("address.id", id))
	defer span.End()

	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	var updated *models.Address
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.lockCustomer(ctx, userID)
		if err != nil {
			return err
		}

		a, err := s.store.GetAddress(ctx, c.ID, id)
		if err != nil {
			return storeErr(err)
		}
		wasPreferred := a.IsShipping() && a.IsPreferred

		in.apply(a)
		switch {
		case !a.IsShipping():
			a.IsPreferred = false
		case in.IsPreferred != nil:
			a.IsPreferred = *in.IsPreferred
		default:
			a.IsPreferred = wasPreferred
		}

		if a.IsPreferred {
			if err := s.store.UnmarkPreferredShipping(ctx, c.ID, a.ID); err != nil {
				return err
			}
		}
		if err := s.store.UpdateAddress(ctx, a); err != nil {
			return storeErr(err)
		}

		if wasPreferred && !a.IsShipping() {
			if err := s.promoteOldest(ctx, c.ID); err != nil {
				return err
			}
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.IsPreferred {
		util.PreferredAddressChangesTotal.WithLabelValues("update").Inc()
	}
	return updated, nil
}

// Delete removes an owned address. Deleting the preferred shipping address
// promotes the oldest remaining one.
func (s *AddressService) Delete(ctx context.Context, userID, id int64) error {
	ctx, span := util.StartSpan(ctx, "AddressService.Delete", attribute.Int64("address.id", id))
	defer span.End()

	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.lockCustomer(ctx, userID)
		if err != nil {
			return err
		}

		a, err := s.store.GetAddress(ctx, c.ID, id)
		if err != nil {
			return storeErr(err)
		}
		if err := s.store.DeleteAddress(ctx, c.ID, id); err != nil {
			return storeErr(err)
		}

		s.logger.Info("Address deleted", zap.Int64("address_id", id), zap.Int64("customer_id", c.ID))

		if a.IsShipping() && a.IsPreferred {
			return s.promoteOldest(ctx, c.ID)
		}
		return nil
	})
}

// SetPreferred makes the address the customer's only preferred shipping address.
func (s *AddressService) SetPreferred(ctx context.Context, userID, id int64) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.SetPreferred", attribute.Int64("address.id", id))
	defer span.End()

	var preferred *models.Address
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.lockCustomer(ctx, userID)
		if err != nil {
			return err
		}

		a, err := s.store.GetAddress(ctx, c.ID, id)
		if err != nil {
			return storeErr(err)
		}
		if !a.IsShipping() {
			return validation.FieldError("address_type", "Only shipping addresses can be set as preferred.")
		}

		if err := s.store.UnmarkPreferredShipping(ctx, c.ID, a.ID); err != nil {
			return err
		}
		if err := s.store.MarkPreferred(ctx, c.ID, a.ID); err != nil {
			return storeErr(err)
		}
		a.IsPreferred = true
		preferred = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PreferredAddressChangesTotal.WithLabelValues("set").Inc()
	return preferred, nil
}

// promoteOldest marks the oldest shipping address preferred, then unmarks every
// other one so a concurrent writer cannot leave two preferred rows behind.
func (s *AddressService) promoteOldest(ctx context.Context, customerID int64) error {
	oldest, err := s.store.OldestShippingAddress(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.UnmarkPreferredShipping(ctx, customerID, oldest.ID); err != nil {
		return err
	}
	if err := s.store.MarkPreferred(ctx, customerID, oldest.ID); err != nil {
		return err
	}
	if err := s.store.UnmarkPreferredShipping(ctx, customerID, oldest.ID); err != nil {
		return err
	}

	util.PreferredAddressChangesTotal.WithLabelValues("promote").Inc()
	s.logger.Info("Promoted preferred shipping address",
		zap.Int64("customer_id", customerID),
		zap.Int64("address_id", oldest.ID))
	return nil
}

func (s *AddressService) lockCustomer(ctx context.Context, userID int64) (*models.Customer, error) {
	c, err := loadCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.LockCustomer(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("failed to lock customer: %w", err)
	}
	return c, nil
}

func (s *AddressService) validate(ctx context.Context, in AddressInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if _, err := s.store.GetCountry(ctx, in.CountryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validation.FieldError("country_id", "The selected country id is invalid.")
		}
		return err
	}
	return nil
}
