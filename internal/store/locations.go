package store

import (
	"context"
	"strings"

	"storefront/internal/models"
)

func (s *Store) ListCountries(ctx context.Context) ([]models.Country, error) {
	var countries []models.Country
	err := s.q(ctx).SelectContext(ctx, &countries, "SELECT id, code, name, is_eu FROM countries ORDER BY name")
	return countries, err
}

func (s *Store) GetCountry(ctx context.Context, id int64) (*models.Country, error) {
	var c models.Country
	err := s.q(ctx).GetContext(ctx, &c, "SELECT id, code, name, is_eu FROM countries WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) GetCountryByCode(ctx context.Context, code string) (*models.Country, error) {
	var c models.Country
	err := s.q(ctx).GetContext(ctx, &c,
		"SELECT id, code, name, is_eu FROM countries WHERE code = $1", strings.ToUpper(code))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) ListStates(ctx context.Context, countryID int64) ([]models.State, error) {
	var states []models.State
	err := s.q(ctx).SelectContext(ctx, &states,
		"SELECT id, country_id, name FROM states WHERE country_id = $1 ORDER BY name", countryID)
	return states, err
}

func (s *Store) ListCities(ctx context.Context, stateID int64) ([]models.City, error) {
	var cities []models.City
	err := s.q(ctx).SelectContext(ctx, &cities,
		"SELECT id, state_id, name FROM cities WHERE state_id = $1 ORDER BY name", stateID)
	return cities, err
}
