package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type listingsResponse struct {
	Listings []market.Listing `json:"listings"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		s.writeError(w, http.StatusBadRequest, "limit out of range")
		return
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset out of range")
		return
	}

	listings, total, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list listings failed")
		return
	}
	s.writeJSON(w, http.StatusOK, listingsResponse{
		Listings: listings,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	l, err := s.store.Get(r.Context(), sourceID)
	if errors.Is(err, market.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "get listing failed")
		return
	}
	s.writeJSON(w, http.StatusOK, l)
}

func (s *Server) getPriceHistory(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	history, err := s.store.PriceHistory(r.Context(), sourceID)
	if errors.Is(err, market.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "price history failed")
		return
	}
	if history == nil {
		history = []market.PriceObservation{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"source_id": sourceID,
		"prices":    history,
	})
}

func (s *Server) searchListings(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listings, err := s.store.Search(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if listings == nil {
		listings = []market.Listing{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit <= 0 || limit > maxPageSize {
		s.writeError(w, http.StatusBadRequest, "limit out of range")
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []market.CrawlRun{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func filterFromQuery(r *http.Request) (market.ListingFilter, error) {
	q := r.URL.Query()
	filter := market.ListingFilter{
		Brand:      q.Get("brand"),
		Model:      q.Get("model"),
		FuelType:   q.Get("fuel"),
		Gearbox:    q.Get("gearbox"),
		City:       q.Get("city"),
		RegionCode: q.Get("region"),
	}

	var err error
	if filter.PriceMin, err = queryInt64Ptr(r, "price_min"); err != nil {
		return filter, err
	}
	if filter.PriceMax, err = queryInt64Ptr(r, "price_max"); err != nil {
		return filter, err
	}
	if filter.MileageMax, err = queryInt64Ptr(r, "mileage_max"); err != nil {
		return filter, err
	}
	yearMin, err := queryIntPtr(r, "year_min")
	if err != nil {
		return filter, err
	}
	filter.YearMin = yearMin

	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		return filter, errors.New("limit out of range")
	}
	filter.Limit = limit
	return filter, nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

func queryIntPtr(r *http.Request, key string) (*int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &v, nil
}

func queryInt64Ptr(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &v, nil
}
