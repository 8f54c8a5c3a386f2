package market

import (
	"context"
	"time"
)

// Renderer fetches a URL and returns the rendered page.
// Failures carry a *FetchError so callers can apply the retry policy.
type Renderer interface {
	Fetch(ctx context.Context, url string) (RenderedPage, error)
	// RotateSession discards the current browsing context (cookies,
	// fingerprintable state) and starts a fresh one.
	RotateSession(ctx context.Context) error
	Close(ctx context.Context) error
}

// Extractor turns one rendered detail page into a partial record.
// It never fails; missing data is a nil field.
type Extractor interface {
	Extract(page RenderedPage) PartialListing
}

// Store owns listing persistence: upsert semantics, the sold sweep, and
// the read-only query surface consumed by the HTTP API.
type Store interface {
	Upsert(ctx context.Context, partial PartialListing, observedAt time.Time) (Listing, bool, error)
	Sweep(ctx context.Context, observedIDs map[string]struct{}, observedAt time.Time, grace time.Duration) (int, error)

	Get(ctx context.Context, sourceID string) (Listing, error)
	KnownIDs(ctx context.Context) (map[string]struct{}, error)
	List(ctx context.Context, limit, offset int) ([]Listing, int, error)
	Search(ctx context.Context, filter ListingFilter) ([]Listing, error)
	PriceHistory(ctx context.Context, sourceID string) ([]PriceObservation, error)
	Stats(ctx context.Context) (MarketStats, error)

	RecordRun(ctx context.Context, run CrawlRun) error
	ListRuns(ctx context.Context, limit int) ([]CrawlRun, error)

	Close()
}

// ListingFilter holds the optional search predicates, combined with AND
// semantics; numeric bounds are inclusive.
type ListingFilter struct {
	Brand      string
	Model      string
	PriceMin   *int64
	PriceMax   *int64
	MileageMax *int64
	YearMin    *int
	FuelType   string
	Gearbox    string
	City       string
	RegionCode string
	Limit      int
}

// BrandCount is one row of the grouped top-N aggregates.
type BrandCount struct {
	Brand     string `json:"brand"`
	Count     int    `json:"count"`
	MeanPrice int64  `json:"mean_price"`
}

// CityCount is one row of the per-city aggregate.
type CityCount struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

// FuelCount is one row of the fuel-type distribution.
type FuelCount struct {
	FuelType string `json:"fuel_type"`
	Count    int    `json:"count"`
}

// MarketStats is the aggregate answer served by the stats endpoint.
type MarketStats struct {
	TotalListings int          `json:"total_listings"`
	ActiveCount   int          `json:"active_count"`
	SoldCount     int          `json:"sold_count"`
	PriceMean     int64        `json:"price_mean"`
	PriceMin      int64        `json:"price_min"`
	PriceMax      int64        `json:"price_max"`
	MileageMean   int64        `json:"mileage_mean"`
	TopBrands     []BrandCount `json:"top_brands"`
	TopCities     []CityCount  `json:"top_cities"`
	FuelBreakdown []FuelCount  `json:"fuel_breakdown"`
}

// Clock returns the current time (swapped for a fake in tests).
type Clock interface {
	Now() time.Time
}
