package market

import (
	"strings"
	"time"
)

// NewListingFrom creates an ACTIVE listing from the first observation of
// a source id.
func NewListingFrom(p PartialListing, observedAt time.Time) Listing {
	l := Listing{
		SourceID:   p.SourceID,
		FirstSeen:  observedAt,
		LastSeen:   observedAt,
		Status:     StatusActive,
		SellerType: SellerUnknown,
	}
	l.Apply(p)
	if p.Price != nil {
		v := *p.Price
		l.PriceInitial = &v
	}
	return l
}

// Merge folds non-nil partial fields into the listing. Nil fields never
// erase stored values; the initial price is set only once; last-seen
// never moves backwards.
func (l *Listing) Merge(p PartialListing, observedAt time.Time) {
	l.Apply(p)
	if l.PriceInitial == nil && p.Price != nil {
		v := *p.Price
		l.PriceInitial = &v
	}
	if observedAt.After(l.LastSeen) {
		l.LastSeen = observedAt
	}
}

// Apply copies every non-nil partial field onto the listing.
func (l *Listing) Apply(p PartialListing) {
	if p.URL != nil {
		l.URL = p.URL
	}
	if p.Title != nil {
		l.Title = p.Title
	}
	if p.Price != nil {
		v := *p.Price
		l.PriceCurrent = &v
	}
	if p.Brand != nil {
		l.Brand = p.Brand
	}
	if p.Model != nil {
		l.Model = p.Model
	}
	if p.Year != nil {
		l.Year = p.Year
	}
	if p.Mileage != nil {
		l.Mileage = p.Mileage
	}
	if p.FuelType != nil {
		l.FuelType = p.FuelType
	}
	if p.Transmission != nil {
		l.Transmission = p.Transmission
	}
	if p.Color != nil {
		l.Color = p.Color
	}
	if p.City != nil {
		l.City = p.City
	}
	if p.PostalCode != nil {
		l.PostalCode = p.PostalCode
	}
	if p.RegionCode != nil {
		l.RegionCode = p.RegionCode
	}
	if p.SellerType != "" && p.SellerType != SellerUnknown {
		l.SellerType = p.SellerType
	}
	if p.PhotoCount != nil {
		l.PhotoCount = p.PhotoCount
	}
	if p.Description != nil {
		l.Description = p.Description
	}
}

// Matches reports whether the listing satisfies every set predicate.
func (f ListingFilter) Matches(l Listing) bool {
	if f.Brand != "" && (l.Brand == nil || !strings.EqualFold(*l.Brand, f.Brand)) {
		return false
	}
	if f.Model != "" && (l.Model == nil || !containsFold(*l.Model, f.Model)) {
		return false
	}
	if f.PriceMin != nil && (l.PriceCurrent == nil || *l.PriceCurrent < *f.PriceMin) {
		return false
	}
	if f.PriceMax != nil && (l.PriceCurrent == nil || *l.PriceCurrent > *f.PriceMax) {
		return false
	}
	if f.MileageMax != nil && (l.Mileage == nil || *l.Mileage > *f.MileageMax) {
		return false
	}
	if f.YearMin != nil && (l.Year == nil || *l.Year < *f.YearMin) {
		return false
	}
	if f.FuelType != "" && (l.FuelType == nil || !strings.EqualFold(*l.FuelType, f.FuelType)) {
		return false
	}
	if f.Gearbox != "" && (l.Transmission == nil || !strings.EqualFold(*l.Transmission, f.Gearbox)) {
		return false
	}
	if f.City != "" && (l.City == nil || !containsFold(*l.City, f.City)) {
		return false
	}
	if f.RegionCode != "" && (l.RegionCode == nil || *l.RegionCode != f.RegionCode) {
		return false
	}
	return true
}

// containsFold is a case-insensitive substring test, used for the
// free-text predicates (model, city) where sellers spell inconsistently.
func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
