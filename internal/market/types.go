package market

import (
	"strings"
	"time"
)

// ListingStatus represents the lifecycle state of a tracked listing.
type ListingStatus string

// Listing status values persisted in the store. SOLD is terminal.
const (
	StatusActive ListingStatus = "ACTIVE"
	StatusSold   ListingStatus = "SOLD"
)

// SellerType classifies who posted a listing.
type SellerType string

// Seller classifications derived from page text.
const (
	SellerPrivate      SellerType = "private"
	SellerProfessional SellerType = "professional"
	SellerUnknown      SellerType = "unknown"
)

// Listing is one tracked marketplace vehicle, keyed by SourceID.
type Listing struct {
	SourceID     string        `json:"source_id"`
	URL          *string       `json:"url,omitempty"`
	Title        *string       `json:"title,omitempty"`
	PriceCurrent *int64        `json:"price_current,omitempty"`
	PriceInitial *int64        `json:"price_initial,omitempty"`
	Brand        *string       `json:"brand,omitempty"`
	Model        *string       `json:"model,omitempty"`
	Year         *int          `json:"year,omitempty"`
	Mileage      *int64        `json:"mileage,omitempty"`
	FuelType     *string       `json:"fuel_type,omitempty"`
	Transmission *string       `json:"transmission,omitempty"`
	Color        *string       `json:"color,omitempty"`
	City         *string       `json:"city,omitempty"`
	PostalCode   *string       `json:"postal_code,omitempty"`
	RegionCode   *string       `json:"region_code,omitempty"`
	SellerType   SellerType    `json:"seller_type"`
	PhotoCount   *int          `json:"photo_count,omitempty"`
	Description  *string       `json:"description_excerpt,omitempty"`
	FirstSeen    time.Time     `json:"first_seen"`
	LastSeen     time.Time     `json:"last_seen"`
	Status       ListingStatus `json:"status"`
	SoldAt       *time.Time    `json:"sold_at,omitempty"`
}

// PriceObservation is an append-only price history row for a Listing.
type PriceObservation struct {
	SourceID   string        `json:"source_id"`
	Price      int64         `json:"price"`
	ObservedAt time.Time     `json:"observed_at"`
	Status     ListingStatus `json:"status_at_observation"`
}

// PartialListing is the best-effort output of one extraction attempt.
// Every field is optional; a nil field means the page did not yield a
// usable value, never that the stored value should be erased.
type PartialListing struct {
	SourceID     string
	URL          *string
	Title        *string
	Price        *int64
	Brand        *string
	Model        *string
	Year         *int
	Mileage      *int64
	FuelType     *string
	Transmission *string
	Color        *string
	City         *string
	PostalCode   *string
	RegionCode   *string
	SellerType   SellerType
	PhotoCount   *int
	Description  *string
}

// Viable reports whether the extraction met the minimum field set
// required before a Listing may be created: a source id plus at least
// one of price or brand. Anything less is discarded upstream.
func (p PartialListing) Viable() bool {
	return p.SourceID != "" && (p.Price != nil || p.Brand != nil)
}

// SeedConfig describes one paginated listing search the frontier walks.
type SeedConfig struct {
	Name    string `mapstructure:"name" json:"name"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

// RenderedPage is the renderer output handed to the extractor.
type RenderedPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
	Text       string
	UsedJS     bool
	Duration   time.Duration
}

// RunStatus tracks a crawl run record through its lifecycle.
type RunStatus string

// Run status values persisted with each crawl run.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusAborted RunStatus = "aborted"
)

// CrawlRun is the persisted record of one crawl run, including the
// summary counters reported when the run finishes.
type CrawlRun struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Status     RunStatus   `json:"status"`
	Counters   RunCounters `json:"counters"`
}

// RunCounters is the always-produced run summary.
type RunCounters struct {
	URLsDiscovered int `json:"urls_discovered"`
	Fetched        int `json:"fetched"`
	NewListings    int `json:"new_listings"`
	Updated        int `json:"updated"`
	Sold           int `json:"sold"`
	FailedFetches  int `json:"failed_fetches"`
	Discarded      int `json:"discarded"`
}

// StrPtr returns a pointer to s, or nil when s is empty after trimming.
func StrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
