package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

const defaultSearchLimit = 100

// Search builds the WHERE clause from the set predicates only; text
// matches are case-insensitive like the memory store's.
func (s *Store) Search(ctx context.Context, filter market.ListingFilter) ([]market.Listing, error) {
	var clauses []string
	var args []any

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Brand != "" {
		add("lower(brand) = lower($%d)", filter.Brand)
	}
	if filter.Model != "" {
		add("model ILIKE $%d", "%"+filter.Model+"%")
	}
	if filter.PriceMin != nil {
		add("price_current >= $%d", *filter.PriceMin)
	}
	if filter.PriceMax != nil {
		add("price_current <= $%d", *filter.PriceMax)
	}
	if filter.MileageMax != nil {
		add("mileage <= $%d", *filter.MileageMax)
	}
	if filter.YearMin != nil {
		add("year >= $%d", *filter.YearMin)
	}
	if filter.FuelType != "" {
		add("lower(fuel_type) = lower($%d)", filter.FuelType)
	}
	if filter.Gearbox != "" {
		add("lower(transmission) = lower($%d)", filter.Gearbox)
	}
	if filter.City != "" {
		add("city ILIKE $%d", "%"+filter.City+"%")
	}
	if filter.RegionCode != "" {
		add("region_code = $%d", filter.RegionCode)
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY last_seen DESC, source_id LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}
