package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/fiscal"
	"storefront/internal/models"
	"storefront/internal/util"
	"storefront/internal/validation"

	"go.uber.org/zap"
)

// CompanyStore is what CompanyService needs from the repository.
type CompanyStore interface {
	CustomerReader
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	UpdateCompanyInfo(ctx context.Context, customerID int64, info models.CompanyInfo) error
}

// CompanyInfoRequest is the company section of the account settings form.
type CompanyInfoRequest struct {
	CompanyName string `json:"company_name" form:"company_name" validate:"required,max=255,company_name"`
	FiscalCode  string `json:"fiscal_code" form:"fiscal_code" validate:"required,max=20"`
	RegNumber   string `json:"reg_number" form:"reg_number" validate:"max=50"`
	BankName    string `json:"bank_name" form:"bank_name" validate:"max=100"`
	IBAN        string `json:"iban" form:"iban" validate:"max=34"`
	CountryCode string `json:"country_code" form:"country_code" validate:"omitempty,len=2"`
}

// CompanyService validates and stores company fiscal data.
type CompanyService struct {
	store           CompanyStore
	validator       fiscal.Validator
	homeCountryCode string
	logger          *zap.Logger
}

func NewCompanyService(s CompanyStore, validator fiscal.Validator, homeCountryCode string) *CompanyService {
	return &CompanyService{
		store:           s,
		validator:       validator,
		homeCountryCode: strings.ToUpper(homeCountryCode),
		logger:          util.Named("company"),
	}
}

// UpdateCompanyInfo normalizes the fiscal code and IBAN, checks the fiscal code
// with the external validator and turns the customer into a company.
func (s *CompanyService) UpdateCompanyInfo(ctx context.Context, userID int64, req *CompanyInfoRequest) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "CompanyService.UpdateCompanyInfo")
	defer span.End()

	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.FiscalCode = fiscal.NormalizeFiscalCode(req.FiscalCode)
	req.IBAN = fiscal.NormalizeIBAN(req.IBAN)
	req.CountryCode = strings.ToUpper(strings.TrimSpace(req.CountryCode))
	if req.CountryCode == "" {
		req.CountryCode = s.homeCountryCode
	}

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

	res, err := s.validator.Validate(ctx, req.FiscalCode, req.CountryCode)
	if err != nil {
		util.FailSpan(span, err)
		s.logger.Warn("Fiscal code validation unavailable",
			zap.Int64("customer_id", c.ID),
			zap.String("fiscal_code", req.FiscalCode),
			zap.Error(err))
		return nil, validation.FieldError("fiscal_code", "The fiscal code could not be verified. Please try again later.")
	}
	if !res.Valid {
		msg := res.Message
		if msg == "" {
			msg = "The fiscal code is invalid."
		}
		return nil, validation.FieldError("fiscal_code", msg)
	}

	info := models.CompanyInfo{
		CompanyName: req.CompanyName,
		FiscalCode:  req.FiscalCode,
		RegNumber:   strings.TrimSpace(req.RegNumber),
		BankName:    strings.TrimSpace(req.BankName),
		IBAN:        req.IBAN,
	}
	if err := s.store.UpdateCompanyInfo(ctx, c.ID, info); err != nil {
		return nil, fmt.Errorf("failed to update company info: %w", storeErr(err))
	}

	s.logger.Info("Company info updated", zap.Int64("customer_id", c.ID), zap.String("fiscal_code", info.FiscalCode))

	updated, err := s.store.GetCustomerByID(ctx, c.ID)
	return updated, storeErr(err)
}
