package postgres

import (
	"context"
	"fmt"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

const topN = 5

// Stats answers the aggregate endpoint. Price and mileage aggregates
// cover ACTIVE listings only; sold rows contribute to the sold counter.
func (s *Store) Stats(ctx context.Context) (market.MarketStats, error) {
	var stats market.MarketStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'ACTIVE'),
			count(*) FILTER (WHERE status = 'SOLD'),
			COALESCE(avg(price_current) FILTER (WHERE status = 'ACTIVE'), 0)::bigint,
			COALESCE(min(price_current) FILTER (WHERE status = 'ACTIVE'), 0),
			COALESCE(max(price_current) FILTER (WHERE status = 'ACTIVE'), 0),
			COALESCE(avg(mileage) FILTER (WHERE status = 'ACTIVE'), 0)::bigint
		FROM listings`,
	).Scan(
		&stats.TotalListings, &stats.ActiveCount, &stats.SoldCount,
		&stats.PriceMean, &stats.PriceMin, &stats.PriceMax, &stats.MileageMean,
	)
	if err != nil {
		return market.MarketStats{}, fmt.Errorf("stats scalars: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT brand, count(*), COALESCE(avg(price_current), 0)::bigint
		FROM listings WHERE status = 'ACTIVE' AND brand IS NOT NULL
		GROUP BY brand ORDER BY count(*) DESC, brand LIMIT $1`, topN)
	if err != nil {
		return market.MarketStats{}, fmt.Errorf("stats brands: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b market.BrandCount
		if err := rows.Scan(&b.Brand, &b.Count, &b.MeanPrice); err != nil {
			return market.MarketStats{}, fmt.Errorf("scan brand row: %w", err)
		}
		stats.TopBrands = append(stats.TopBrands, b)
	}
	if err := rows.Err(); err != nil {
		return market.MarketStats{}, fmt.Errorf("iterate brand rows: %w", err)
	}

	cityRows, err := s.pool.Query(ctx, `
		SELECT city, count(*)
		FROM listings WHERE status = 'ACTIVE' AND city IS NOT NULL
		GROUP BY city ORDER BY count(*) DESC, city LIMIT $1`, topN)
	if err != nil {
		return market.MarketStats{}, fmt.Errorf("stats cities: %w", err)
	}
	defer cityRows.Close()
	for cityRows.Next() {
		var c market.CityCount
		if err := cityRows.Scan(&c.City, &c.Count); err != nil {
			return market.MarketStats{}, fmt.Errorf("scan city row: %w", err)
		}
		stats.TopCities = append(stats.TopCities, c)
	}
	if err := cityRows.Err(); err != nil {
		return market.MarketStats{}, fmt.Errorf("iterate city rows: %w", err)
	}

	fuelRows, err := s.pool.Query(ctx, `
		SELECT fuel_type, count(*)
		FROM listings WHERE status = 'ACTIVE' AND fuel_type IS NOT NULL
		GROUP BY fuel_type ORDER BY count(*) DESC, fuel_type`)
	if err != nil {
		return market.MarketStats{}, fmt.Errorf("stats fuels: %w", err)
	}
	defer fuelRows.Close()
	for fuelRows.Next() {
		var f market.FuelCount
		if err := fuelRows.Scan(&f.FuelType, &f.Count); err != nil {
			return market.MarketStats{}, fmt.Errorf("scan fuel row: %w", err)
		}
		stats.FuelBreakdown = append(stats.FuelBreakdown, f)
	}
	if err := fuelRows.Err(); err != nil {
		return market.MarketStats{}, fmt.Errorf("iterate fuel rows: %w", err)
	}

	return stats, nil
}
