package service

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/models"
	"storefront/internal/util"
)

// LocationStore is what LocationService needs from the repository.
type LocationStore interface {
	ListCountries(ctx context.Context) ([]models.Country, error)
	GetCountry(ctx context.Context, id int64) (*models.Country, error)
	ListStates(ctx context.Context, countryID int64) ([]models.State, error)
	ListCities(ctx context.Context, stateID int64) ([]models.City, error)
}

// CountryDetector maps a request to a country, falling back to a default.
type CountryDetector interface {
	Country(ctx context.Context, r *http.Request) (*models.Country, error)
}

// LocationService serves the country → state → city lookups of address forms.
type LocationService struct {
	store    LocationStore
	detector CountryDetector
}

func NewLocationService(s LocationStore, detector CountryDetector) *LocationService {
	return &LocationService{store: s, detector: detector}
}

func (s *LocationService) ListCountries(ctx context.Context) ([]models.Country, error) {
	countries, err := s.store.ListCountries(ctx)
	if err != nil {
		return nil, err
	}
	if len(countries) == 0 {
		return nil, fmt.Errorf("%w: no countries seeded", ErrConfiguration)
	}
	return countries, nil
}

func (s *LocationService) ListStates(ctx context.Context, countryID int64) ([]models.State, error) {
	if _, err := s.store.GetCountry(ctx, countryID); err != nil {
		return nil, storeErr(err)
	}
	states, err := s.store.ListStates(ctx, countryID)
	if states == nil && err == nil {
		states = []models.State{}
	}
	return states, err
}

func (s *LocationService) ListCities(ctx context.Context, stateID int64) ([]models.City, error) {
	cities, err := s.store.ListCities(ctx, stateID)
	if cities == nil && err == nil {
		cities = []models.City{}
	}
	return cities, err
}

// DefaultCountry returns the country detected for r, or the configured default.
func (s *LocationService) DefaultCountry(ctx context.Context, r *http.Request) (*models.Country, error) {
	ctx, span := util.StartSpan(ctx, "LocationService.DefaultCountry")
	defer span.End()

	c, err := s.detector.Country(ctx, r)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return c, nil
}
