package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/store/memory"
)

func seededServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New(zap.NewNop())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []market.PartialListing{
		{
			SourceID: "2901234567",
			URL:      market.StrPtr("https://www.leboncoin.fr/ad/voitures/2901234567"),
			Title:    market.StrPtr("Peugeot 208 1.2 PureTech"),
			Price:    market.Int64Ptr(12500),
			Brand:    market.StrPtr("PEUGEOT"),
			Model:    market.StrPtr("208"),
			Year:     market.IntPtr(2019),
			Mileage:  market.Int64Ptr(45300),
			FuelType: market.StrPtr("petrol"),
			City:     market.StrPtr("Lyon"),
		},
		{
			SourceID: "2901234568",
			Price:    market.Int64Ptr(31900),
			Brand:    market.StrPtr("BMW"),
			Model:    market.StrPtr("Serie 3"),
			Year:     market.IntPtr(2022),
			FuelType: market.StrPtr("diesel"),
		},
	}
	for i, p := range seed {
		_, _, err := st.Upsert(context.Background(), p, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	require.NoError(t, st.RecordRun(context.Background(), market.CrawlRun{
		ID:        "run-1",
		StartedAt: t0,
		Status:    market.RunStatusDone,
	}))

	srv := httptest.NewServer(NewServer(st, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _ := seededServer(t)
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", nil))
}

func TestReadyz(t *testing.T) {
	srv, _ := seededServer(t)
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/readyz", nil))
}

func TestListListings(t *testing.T) {
	srv, _ := seededServer(t)

	var body listingsResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/listings", &body))
	require.Equal(t, 2, body.Total)
	require.Len(t, body.Listings, 2)
	// Newest last_seen first.
	require.Equal(t, "2901234568", body.Listings[0].SourceID)
}

func TestListListingsPagination(t *testing.T) {
	srv, _ := seededServer(t)

	var body listingsResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/listings?limit=1&offset=1", &body))
	require.Equal(t, 2, body.Total)
	require.Len(t, body.Listings, 1)
	require.Equal(t, "2901234567", body.Listings[0].SourceID)
}

func TestListListingsBadLimit(t *testing.T) {
	srv, _ := seededServer(t)
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/listings?limit=0", nil))
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/listings?limit=bogus", nil))
}

func TestGetListing(t *testing.T) {
	srv, _ := seededServer(t)

	var l market.Listing
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/listings/2901234567", &l))
	require.Equal(t, "2901234567", l.SourceID)
	require.Equal(t, "PEUGEOT", *l.Brand)
	require.Equal(t, int64(12500), *l.PriceCurrent)

	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/listings/0000000000", nil))
}

func TestGetPriceHistory(t *testing.T) {
	srv, st := seededServer(t)

	// A second observation at a lower price appends a history row.
	_, _, err := st.Upsert(context.Background(), market.PartialListing{
		SourceID: "2901234567",
		Price:    market.Int64Ptr(11900),
		Brand:    market.StrPtr("PEUGEOT"),
	}, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var body struct {
		SourceID string                    `json:"source_id"`
		Prices   []market.PriceObservation `json:"prices"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/listings/2901234567/prices", &body))
	require.Equal(t, "2901234567", body.SourceID)
	require.Len(t, body.Prices, 2)
	require.Equal(t, int64(12500), body.Prices[0].Price)
	require.Equal(t, int64(11900), body.Prices[1].Price)

	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/listings/0000000000/prices", nil))
}

func TestSearchListings(t *testing.T) {
	srv, _ := seededServer(t)

	var body struct {
		Listings []market.Listing `json:"listings"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/search?brand=peugeot&price_max=15000", &body))
	require.Len(t, body.Listings, 1)
	require.Equal(t, "2901234567", body.Listings[0].SourceID)

	body.Listings = nil
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/search?fuel=diesel&year_min=2021", &body))
	require.Len(t, body.Listings, 1)
	require.Equal(t, "2901234568", body.Listings[0].SourceID)

	body.Listings = nil
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/search?brand=renault", &body))
	require.Empty(t, body.Listings)
}

func TestSearchBadNumeric(t *testing.T) {
	srv, _ := seededServer(t)
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/search?price_max=cheap", nil))
}

func TestGetStats(t *testing.T) {
	srv, _ := seededServer(t)

	var stats market.MarketStats
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/stats", &stats))
	require.Equal(t, 2, stats.TotalListings)
	require.Equal(t, 2, stats.ActiveCount)
	require.Equal(t, int64((12500+31900)/2), stats.PriceMean)
}

func TestListRuns(t *testing.T) {
	srv, _ := seededServer(t)

	var body struct {
		Runs []market.CrawlRun `json:"runs"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/runs", &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "run-1", body.Runs[0].ID)
	require.Equal(t, market.RunStatusDone, body.Runs[0].Status)
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := seededServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
