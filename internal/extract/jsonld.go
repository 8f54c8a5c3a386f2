package extract

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// vehicleNode is the subset of schema.org Car/Vehicle/Product we read.
// Fields arrive in wildly inconsistent shapes, so everything lands in
// json.RawMessage or loose types and gets coerced afterwards.
type vehicleNode struct {
	Type                json.RawMessage `json:"@type"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Brand               json.RawMessage `json:"brand"`
	Model               json.RawMessage `json:"model"`
	Color               string          `json:"color"`
	FuelType            string          `json:"fuelType"`
	VehicleTransmission string          `json:"vehicleTransmission"`
	VehicleModelDate    string          `json:"vehicleModelDate"`
	ProductionDate      string          `json:"productionDate"`
	MileageFromOdometer json.RawMessage `json:"mileageFromOdometer"`
	Offers              json.RawMessage `json:"offers"`
	Graph               []vehicleNode   `json:"@graph"`
}

type quantValue struct {
	Value json.Number `json:"value"`
}

type offerNode struct {
	Price json.Number `json:"price"`
}

const descriptionLimit = 500

// parseJSONLD scans every ld+json script in the document and fills the
// partial from the first vehicle node it finds. Values pass the same
// validation as the heuristic tier; a structured field that fails it is
// dropped rather than trusted.
func parseJSONLD(doc *goquery.Document, p *market.PartialListing, now time.Time) bool {
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		for _, node := range decodeNodes(raw) {
			if !isVehicleType(node.Type) {
				continue
			}
			applyNode(node, p, now)
			found = true
			return false
		}
		return true
	})
	return found
}

// decodeNodes accepts a single object, a top-level array, or an @graph
// wrapper, flattening them into candidate nodes.
func decodeNodes(raw string) []vehicleNode {
	var one vehicleNode
	if err := json.Unmarshal([]byte(raw), &one); err == nil {
		if len(one.Graph) > 0 {
			return one.Graph
		}
		return []vehicleNode{one}
	}
	var many []vehicleNode
	if err := json.Unmarshal([]byte(raw), &many); err == nil {
		return many
	}
	return nil
}

func isVehicleType(raw json.RawMessage) bool {
	for _, t := range decodeStrings(raw) {
		switch t {
		case "Car", "Vehicle", "Product":
			return true
		}
	}
	return false
}

// decodeStrings reads a JSON value that is either a string or an array
// of strings, which is how @type shows up in the wild.
func decodeStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

// nameOf reads a value that is either a bare string or an object with a
// name field, the two shapes brand and model take.
func nameOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}

func applyNode(n vehicleNode, p *market.PartialListing, now time.Time) {
	if n.Name != "" {
		p.Title = market.StrPtr(n.Name)
	}
	if n.Description != "" {
		p.Description = market.StrPtr(truncateRunes(n.Description, descriptionLimit))
	}
	if b := nameOf(n.Brand); b != "" {
		p.Brand = market.StrPtr(strings.ToUpper(b))
	}
	if m := nameOf(n.Model); m != "" {
		p.Model = market.StrPtr(m)
	}
	if n.Color != "" {
		p.Color = market.StrPtr(n.Color)
	}
	if v, ok := normalizeFuel(n.FuelType); ok {
		p.FuelType = market.StrPtr(v)
	} else {
		// Some feeds publish schema.org enums instead of French labels.
		switch strings.ToLower(n.FuelType) {
		case "gasoline", "petrol":
			p.FuelType = market.StrPtr("petrol")
		case "electric":
			p.FuelType = market.StrPtr("electric")
		case "hybrid":
			p.FuelType = market.StrPtr("hybrid")
		}
	}
	if v, ok := normalizeGearbox(n.VehicleTransmission); ok {
		p.Transmission = market.StrPtr(v)
	} else {
		switch strings.ToLower(n.VehicleTransmission) {
		case "manual", "manual transmission":
			p.Transmission = market.StrPtr("manual")
		case "automatic", "automatic transmission":
			p.Transmission = market.StrPtr("automatic")
		}
	}
	if y := parseYear(firstNonEmpty(n.VehicleModelDate, n.ProductionDate), now); y != nil {
		p.Year = y
	}
	if km := odometer(n.MileageFromOdometer); km != nil {
		p.Mileage = km
	}
	if price := offerPrice(n.Offers); price != nil {
		p.Price = price
	}
}

// truncateRunes caps s at max bytes without splitting a rune, keeping
// the excerpt valid UTF-8 for the TEXT column it lands in.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// odometer reads mileageFromOdometer as a QuantitativeValue, a number,
// or a "123 456 km" string.
func odometer(raw json.RawMessage) *int64 {
	if len(raw) == 0 {
		return nil
	}
	var qv quantValue
	if err := json.Unmarshal(raw, &qv); err == nil && qv.Value != "" {
		return mileageFromNumber(qv.Value)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return mileageFromNumber(num)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseMileage(s)
	}
	return nil
}

func mileageFromNumber(num json.Number) *int64 {
	f, err := num.Float64()
	if err != nil {
		return nil
	}
	km := int64(f)
	if km < 0 || km > mileageMax {
		return nil
	}
	return &km
}

// offerPrice reads offers as an object or an array of objects and keeps
// the first price inside the accepted range.
func offerPrice(raw json.RawMessage) *int64 {
	if len(raw) == 0 {
		return nil
	}
	var one offerNode
	if err := json.Unmarshal(raw, &one); err == nil && one.Price != "" {
		return priceFromNumber(one.Price)
	}
	var many []offerNode
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, o := range many {
			if p := priceFromNumber(o.Price); p != nil {
				return p
			}
		}
	}
	return nil
}

func priceFromNumber(num json.Number) *int64 {
	if num == "" {
		return nil
	}
	f, err := num.Float64()
	if err != nil {
		return nil
	}
	p := int64(f)
	if p <= priceMin || p >= priceMax {
		return nil
	}
	return &p
}
