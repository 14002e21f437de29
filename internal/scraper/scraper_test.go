package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/store"
)

const testToken = "apify_api_test_token"

func newPlacesServer(t *testing.T, items []placeItem) (*httptest.Server, *actorInput) {
	t.Helper()
	var captured actorInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.URL.Path, "compass~crawler-google-places")
		require.Equal(t, testToken, r.URL.Query().Get("token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(items))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestSearchAndSaveKeepsOnlyLeadsWithPhone(t *testing.T) {
	items := []placeItem{
		{Title: "Clínica Dental Norte", PhoneUnformatted: "+5215511111111", Website: "https://norte.mx", GoogleMapsURL: "https://maps.google.com/a"},
		{Title: "Dentista Centro", Phone: "+52 55 2222 2222"},
		{Title: "Sin Teléfono"},
	}
	srv, captured := newPlacesServer(t, items)

	st := store.NewInMemoryStore()
	s, err := NewScraper(WithStore(st), WithBaseURL(srv.URL))
	require.NoError(t, err)

	report, err := s.SearchAndSave(context.Background(), SearchParams{
		City: "CDMX", Country: "México", Niche: "dentistas", Limit: 5, ApifyToken: testToken,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Found)
	assert.Equal(t, 2, report.AddedNew)
	assert.Equal(t, 0, report.Duplicates)
	assert.Equal(t, "CDMX", report.City)
	assert.Equal(t, "dentistas", report.Niche)

	assert.Equal(t, []string{"dentistas en CDMX, México"}, captured.SearchStringsArray)
	assert.Equal(t, 5, captured.MaxCrawledPlacesPerSearch)
	assert.Equal(t, "es", captured.Language)

	leads, err := st.FindNewLeads(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Clínica Dental Norte", leads[0].Name)
	assert.Contains(t, leads[0].Notes, "Nicho: dentistas")
	assert.Contains(t, leads[0].Notes, "Web: https://norte.mx")
}

func TestSearchAndSaveReportsDuplicates(t *testing.T) {
	items := []placeItem{
		{Title: "Clínica Dental Norte", PhoneUnformatted: "+5215511111111"},
	}
	srv, _ := newPlacesServer(t, items)

	st := store.NewInMemoryStore()
	_, err := st.AddLeads(context.Background(), []models.Lead{
		{Name: "Clínica Dental Norte", Phone: "52 155 1111 1111", Status: models.LeadStatusNew},
	})
	require.NoError(t, err)

	s, err := NewScraper(WithStore(st), WithBaseURL(srv.URL))
	require.NoError(t, err)

	report, err := s.SearchAndSave(context.Background(), SearchParams{
		City: "CDMX", Country: "México", Niche: "dentistas", Limit: 5, ApifyToken: testToken,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 0, report.AddedNew)
	assert.Equal(t, 1, report.Duplicates)
}

func TestSearchAndSaveRejectsMissingToken(t *testing.T) {
	s, err := NewScraper(WithStore(store.NewInMemoryStore()))
	require.NoError(t, err)

	for _, token := range []string{"", "short"} {
		_, err := s.SearchAndSave(context.Background(), SearchParams{
			City: "CDMX", Country: "México", Niche: "dentistas", Limit: 5, ApifyToken: token,
		})
		var userErr *UserError
		require.ErrorAs(t, err, &userErr, "token %q", token)
		assert.Contains(t, userErr.Message, "Token de Apify")
	}
}

func TestSearchAndSaveInvalidTokenFromAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"user-not-authenticated"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, err := NewScraper(WithStore(store.NewInMemoryStore()), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = s.SearchAndSave(context.Background(), SearchParams{
		City: "CDMX", Country: "México", Niche: "dentistas", Limit: 5, ApifyToken: testToken,
	})
	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "no es válido")
}

func TestSearchAndSaveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "actor crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewScraper(WithStore(store.NewInMemoryStore()), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = s.SearchAndSave(context.Background(), SearchParams{
		City: "CDMX", Country: "México", Niche: "dentistas", Limit: 5, ApifyToken: testToken,
	})
	require.Error(t, err)
	var userErr *UserError
	assert.False(t, errors.As(err, &userErr), "infrastructure failures are not user errors")
	assert.True(t, strings.Contains(err.Error(), "500"))
}

func TestNewScraperRequiresStore(t *testing.T) {
	_, err := NewScraper()
	require.Error(t, err)
}
