package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

const (
	priceMin   = 500
	priceMax   = 10_000_000
	mileageMax = 1_000_000

	// Location candidates are only looked for near the top of the page.
	locationScanLines = 30
	titleScanLines    = 15
	minTitleLen       = 15
)

var (
	priceRe    = regexp.MustCompile(`(\d+)€`)
	locationRe = regexp.MustCompile(`^(.+?)\s+(\d{5})\s*$`)
	yearRe     = regexp.MustCompile(`(\d{4})`)
	digitsRe   = regexp.MustCompile(`(\d+)`)
	photosRe   = regexp.MustCompile(`(?:Voir les\s+)?(\d+)\s+photos?`)
	phoneRe    = regexp.MustCompile(`0[67]\s*\d{2}\s*\d{2}\s*\d{2}\s*\d{2}`)
)

// pageLines splits rendered body text into trimmed non-empty lines, the
// unit every heuristic operates on.
func pageLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}

// stripSpaces removes every space variant the marketplace uses as a
// thousands separator, including NBSP and narrow NBSP.
func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', ' ', ' ', '\t':
			return -1
		}
		return r
	}, s)
}

// scanPrice returns the first amount in euros inside the accepted range.
// Amounts at or below 500 € are shipping fees and options, not vehicles.
func scanPrice(lines []string) *int64 {
	for _, line := range lines {
		m := priceRe.FindStringSubmatch(stripSpaces(line))
		if m == nil {
			continue
		}
		p, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if p > priceMin && p < priceMax {
			return &p
		}
	}
	return nil
}

// scanLocation looks for a "City 75011" line near the top of the page.
// The city part must be free of digits and of known UI boilerplate.
func scanLocation(lines []string) (city, postal, region *string) {
	n := len(lines)
	if n > locationScanLines {
		n = locationScanLines
	}
	for _, line := range lines[:n] {
		m := locationRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if len(name) <= 2 || strings.ContainsFunc(name, unicode.IsDigit) {
			continue
		}
		if containsAny(strings.ToLower(name), locationNoise) {
			continue
		}
		cp := m[2]
		dep := cp[:2]
		return &name, &cp, &dep
	}
	return nil, nil, nil
}

// scanTitle returns the first long-enough line that carries a known brand
// token and is not navigation chrome.
func scanTitle(lines []string) *string {
	n := len(lines)
	if n > titleScanLines {
		n = titleScanLines
	}
	for _, line := range lines[:n] {
		if len(line) <= minTitleLen {
			continue
		}
		if containsAny(strings.ToLower(line), navChrome) {
			continue
		}
		if brandToken(strings.ToUpper(line)) != "" {
			t := line
			return &t
		}
	}
	return nil
}

// scanLabeled walks label/value pairs: the marketplace renders attribute
// names and values on consecutive lines.
func scanLabeled(lines []string, p *market.PartialListing, now time.Time) {
	for i, line := range lines {
		label, ok := fieldLabels[strings.ToLower(line)]
		if !ok || i+1 >= len(lines) {
			continue
		}
		next := lines[i+1]
		switch label {
		case "brand":
			if p.Brand == nil {
				p.Brand = market.StrPtr(strings.ToUpper(next))
			}
		case "model":
			if p.Model == nil {
				p.Model = market.StrPtr(next)
			}
		case "year":
			if p.Year == nil {
				p.Year = parseYear(next, now)
			}
		case "mileage":
			if p.Mileage == nil {
				p.Mileage = parseMileage(next)
			}
		case "fuel":
			if p.FuelType == nil {
				if v, ok := normalizeFuel(next); ok {
					p.FuelType = market.StrPtr(v)
				}
			}
		case "gearbox":
			if p.Transmission == nil {
				if v, ok := normalizeGearbox(next); ok {
					p.Transmission = market.StrPtr(v)
				}
			}
		case "color":
			if p.Color == nil {
				p.Color = market.StrPtr(next)
			}
		}
	}
}

// parseYear accepts the first 4-digit token between 1900 and next year.
func parseYear(s string, now time.Time) *int {
	m := yearRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	y, err := strconv.Atoi(m[1])
	if err != nil || y < 1900 || y > now.Year()+1 {
		return nil
	}
	return &y
}

// parseMileage strips separator spaces before matching so that "12 500 km"
// reads as one number, and rejects values past one million.
func parseMileage(s string) *int64 {
	m := digitsRe.FindStringSubmatch(stripSpaces(s))
	if m == nil {
		return nil
	}
	km, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || km < 0 || km > mileageMax {
		return nil
	}
	return &km
}

// scanPhotoCount matches the "Voir les N photos" gallery control.
func scanPhotoCount(lines []string) *int {
	for _, line := range lines {
		m := photosRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return &n
	}
	return nil
}

// classifySeller decides private vs professional from page text. Pro
// markers win over the phone-number fallback: dealerships also list
// mobile numbers.
func classifySeller(text string) market.SellerType {
	lower := strings.ToLower(text)
	if containsAny(lower, proMarkers) {
		return market.SellerProfessional
	}
	if containsAny(lower, privateMarkers) {
		return market.SellerPrivate
	}
	if phoneRe.MatchString(text) {
		return market.SellerPrivate
	}
	return market.SellerUnknown
}
