package store

import (
	"context"

	"storefront/internal/models"
)

const customerColumns = `id, user_id, customer_type, customer_group_id, first_name, last_name, email, phone,
	company_name, fiscal_code, reg_number, bank_name, iban, created_at, updated_at`

// GetCustomerByUserID retrieves the customer record of an authenticated user
func (s *Store) GetCustomerByUserID(ctx context.Context, userID int64) (*models.Customer, error) {
	var c models.Customer
	err := s.q(ctx).GetContext(ctx, &c,
		"SELECT "+customerColumns+" FROM customers WHERE user_id = $1", userID)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	err := s.q(ctx).GetContext(ctx, &c,
		"SELECT "+customerColumns+" FROM customers WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// LockCustomer takes a row lock on the customer until the surrounding transaction
// ends, serializing per-customer mutations.
func (s *Store) LockCustomer(ctx context.Context, customerID int64) error {
	var id int64
	err := s.q(ctx).GetContext(ctx, &id,
		"SELECT id FROM customers WHERE id = $1 FOR UPDATE", customerID)
	return notFound(err)
}

// UpdateCompanyInfo stores fiscal data and turns the customer into a company customer
func (s *Store) UpdateCompanyInfo(ctx context.Context, customerID int64, info models.CompanyInfo) error {
	return affectedOne(s.q(ctx).ExecContext(ctx, `
		UPDATE customers
		SET customer_type = $1, company_name = $2, fiscal_code = $3, reg_number = $4,
			bank_name = $5, iban = $6, updated_at = NOW()
		WHERE id = $7`,
		models.CustomerTypeCompany, info.CompanyName, info.FiscalCode, info.RegNumber,
		info.BankName, info.IBAN, customerID))
}
