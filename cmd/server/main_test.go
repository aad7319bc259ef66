package main

import (
	"context"
	"testing"

	"github.com/smukkama/weather-pipeline/internal/store"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCities_IncludesStoredCities(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	// registered by an earlier run, no longer in CITIES
	require.NoError(t, st.UpsertCity(ctx, weather.City{Name: "Kolkata"}))

	cities, err := loadCities(ctx, st, []weather.City{{Name: "Delhi"}, {Name: "Mumbai"}})
	require.NoError(t, err)

	var names []string
	for _, c := range cities {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"Kolkata", "Delhi", "Mumbai"}, names)
}
