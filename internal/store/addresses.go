package store

import (
	"context"

	"storefront/internal/models"
)

const addressColumns = `id, customer_id, address_type, is_preferred, first_name, last_name, phone,
	address_line_1, address_line_2, city, county, country_id, zip_code, created_at, updated_at`

// ListAddresses returns a customer's addresses, oldest first
func (s *Store) ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	var addrs []models.Address
	err := s.q(ctx).SelectContext(ctx, &addrs,
		"SELECT "+addressColumns+" FROM addresses WHERE customer_id = $1 ORDER BY created_at, id", customerID)
	return addrs, err
}

// GetAddress retrieves an address owned by the customer
func (s *Store) GetAddress(ctx context.Context, customerID, id int64) (*models.Address, error) {
	var a models.Address
	err := s.q(ctx).GetContext(ctx, &a,
		"SELECT "+addressColumns+" FROM addresses WHERE id = $1 AND customer_id = $2", id, customerID)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// CreateAddress inserts an address
func (s *Store) CreateAddress(ctx context.Context, a *models.Address) error {
	query := `
		INSERT INTO addresses (customer_id, address_type, is_preferred, first_name, last_name, phone,
			address_line_1, address_line_2, city, county, country_id, zip_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	return s.q(ctx).GetContext(ctx, a, query,
		a.CustomerID, a.AddressType, a.IsPreferred, a.FirstName, a.LastName, a.Phone,
		a.AddressLine1, a.AddressLine2, a.City, a.County, a.CountryID, a.ZipCode)
}

// UpdateAddress overwrites an address owned by a.CustomerID
func (s *Store) UpdateAddress(ctx context.Context, a *models.Address) error {
	query := `
		UPDATE addresses
		SET address_type = $1, is_preferred = $2, first_name = $3, last_name = $4, phone = $5,
			address_line_1 = $6, address_line_2 = $7, city = $8, county = $9, country_id = $10,
			zip_code = $11, updated_at = NOW()
		WHERE id = $12 AND customer_id = $13
		RETURNING updated_at`

	err := s.q(ctx).GetContext(ctx, &a.UpdatedAt, query,
		a.AddressType, a.IsPreferred, a.FirstName, a.LastName, a.Phone,
		a.AddressLine1, a.AddressLine2, a.City, a.County, a.CountryID,
		a.ZipCode, a.ID, a.CustomerID)
	return notFound(err)
}

// DeleteAddress removes an address owned by the customer
func (s *Store) DeleteAddress(ctx context.Context, customerID, id int64) error {
	return affectedOne(s.q(ctx).ExecContext(ctx,
		"DELETE FROM addresses WHERE id = $1 AND customer_id = $2", id, customerID))
}

// CountShippingAddresses counts a customer's shipping addresses
func (s *Store) CountShippingAddresses(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := s.q(ctx).GetContext(ctx, &n,
		"SELECT COUNT(*) FROM addresses WHERE customer_id = $1 AND address_type = $2",
		customerID, models.AddressTypeShipping)
	return n, err
}

// UnmarkPreferredShipping clears the preferred flag on every shipping address of
// the customer except exceptID (0 clears all).
func (s *Store) UnmarkPreferredShipping(ctx context.Context, customerID, exceptID int64) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		UPDATE addresses SET is_preferred = FALSE, updated_at = NOW()
		WHERE customer_id = $1 AND address_type = $2 AND is_preferred AND id <> $3`,
		customerID, models.AddressTypeShipping, exceptID)
	return err
}

// MarkPreferred flags a shipping address as preferred
func (s *Store) MarkPreferred(ctx context.Context, customerID, id int64) error {
	return affectedOne(s.q(ctx).ExecContext(ctx, `
		UPDATE addresses SET is_preferred = TRUE, updated_at = NOW()
		WHERE id = $1 AND customer_id = $2 AND address_type = $3`,
		id, customerID, models.AddressTypeShipping))
}

// OldestShippingAddress returns the customer's earliest created shipping address
func (s *Store) OldestShippingAddress(ctx context.Context, customerID int64) (*models.Address, error) {
	var a models.Address
	err := s.q(ctx).GetContext(ctx, &a, `
		SELECT `+addressColumns+` FROM addresses
		WHERE customer_id = $1 AND address_type = $2
		ORDER BY created_at, id
		LIMIT 1`,
		customerID, models.AddressTypeShipping)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}
