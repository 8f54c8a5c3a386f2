package memory

import (
	"context"
	"sort"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

const topN = 5

// Stats aggregates the active slice of the market; sold listings only
// contribute to the sold counter.
func (s *Store) Stats(ctx context.Context) (market.MarketStats, error) {
	if err := ctx.Err(); err != nil {
		return market.MarketStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := market.MarketStats{}

	var priceSum, mileageSum int64
	var priced, mileaged int
	brandCount := map[string]int{}
	brandPriceSum := map[string]int64{}
	brandPriced := map[string]int{}
	cityCount := map[string]int{}
	fuelCount := map[string]int{}

	for _, l := range s.listings {
		stats.TotalListings++
		if l.Status == market.StatusSold {
			stats.SoldCount++
			continue
		}
		stats.ActiveCount++

		if l.PriceCurrent != nil {
			p := *l.PriceCurrent
			priceSum += p
			priced++
			if stats.PriceMin == 0 || p < stats.PriceMin {
				stats.PriceMin = p
			}
			if p > stats.PriceMax {
				stats.PriceMax = p
			}
		}
		if l.Mileage != nil {
			mileageSum += *l.Mileage
			mileaged++
		}
		if l.Brand != nil {
			brandCount[*l.Brand]++
			if l.PriceCurrent != nil {
				brandPriceSum[*l.Brand] += *l.PriceCurrent
				brandPriced[*l.Brand]++
			}
		}
		if l.City != nil {
			cityCount[*l.City]++
		}
		if l.FuelType != nil {
			fuelCount[*l.FuelType]++
		}
	}

	if priced > 0 {
		stats.PriceMean = priceSum / int64(priced)
	}
	if mileaged > 0 {
		stats.MileageMean = mileageSum / int64(mileaged)
	}

	for brand, n := range brandCount {
		bc := market.BrandCount{Brand: brand, Count: n}
		if brandPriced[brand] > 0 {
			bc.MeanPrice = brandPriceSum[brand] / int64(brandPriced[brand])
		}
		stats.TopBrands = append(stats.TopBrands, bc)
	}
	sort.Slice(stats.TopBrands, func(i, j int) bool {
		if stats.TopBrands[i].Count != stats.TopBrands[j].Count {
			return stats.TopBrands[i].Count > stats.TopBrands[j].Count
		}
		return stats.TopBrands[i].Brand < stats.TopBrands[j].Brand
	})
	if len(stats.TopBrands) > topN {
		stats.TopBrands = stats.TopBrands[:topN]
	}

	for city, n := range cityCount {
		stats.TopCities = append(stats.TopCities, market.CityCount{City: city, Count: n})
	}
	sort.Slice(stats.TopCities, func(i, j int) bool {
		if stats.TopCities[i].Count != stats.TopCities[j].Count {
			return stats.TopCities[i].Count > stats.TopCities[j].Count
		}
		return stats.TopCities[i].City < stats.TopCities[j].City
	})
	if len(stats.TopCities) > topN {
		stats.TopCities = stats.TopCities[:topN]
	}

	for fuel, n := range fuelCount {
		stats.FuelBreakdown = append(stats.FuelBreakdown, market.FuelCount{FuelType: fuel, Count: n})
	}
	sort.Slice(stats.FuelBreakdown, func(i, j int) bool {
		if stats.FuelBreakdown[i].Count != stats.FuelBreakdown[j].Count {
			return stats.FuelBreakdown[i].Count > stats.FuelBreakdown[j].Count
		}
		return stats.FuelBreakdown[i].FuelType < stats.FuelBreakdown[j].FuelType
	})

	return stats, nil
}
