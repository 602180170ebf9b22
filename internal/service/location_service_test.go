package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	country *models.Country
	err     error
}

func (d stubDetector) Country(context.Context, *http.Request) (*models.Country, error) {
	return d.country, d.err
}

func TestLocationLookups(t *testing.T) {
	f := newFixture(t)
	svc := NewLocationService(f.store, stubDetector{country: &f.ro})
	ctx := context.Background()

	cluj := f.store.AddState(models.State{CountryID: f.ro.ID, Name: "Cluj"})
	f.store.AddCity(models.City{StateID: cluj.ID, Name: "Cluj-Napoca"})
	f.store.AddCity(models.City{StateID: cluj.ID, Name: "Turda"})

	countries, err := svc.ListCountries(ctx)
	require.NoError(t, err)
	assert.Len(t, countries, 3)

	states, err := svc.ListStates(ctx, f.ro.ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "Cluj", states[0].Name)

	none, err := svc.ListStates(ctx, f.ch.ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = svc.ListStates(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	cities, err := svc.ListCities(ctx, cluj.ID)
	require.NoError(t, err)
	assert.Len(t, cities, 2)

	empty, err := svc.ListCities(ctx, 9999)
	require.NoError(t, err)
	assert.NotNil(t, empty)
}

func TestListCountriesRequiresSeedData(t *testing.T) {
	svc := NewLocationService(store.NewMemoryStore(), stubDetector{})
	_, err := svc.ListCountries(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestDefaultCountry(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/addresses/new", nil)

	c, err := NewLocationService(f.store, stubDetector{country: &f.de}).DefaultCountry(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "DE", c.Code)

	_, err = NewLocationService(f.store, stubDetector{err: errors.New("default country XX not seeded")}).
		DefaultCountry(context.Background(), req)
	assert.ErrorIs(t, err, ErrConfiguration)
}
