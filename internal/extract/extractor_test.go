package extract

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestExtractor() *Extractor {
	return New(fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}, zap.NewNop())
}

// detailText mimics rendered body text, NBSP thousands separator
// included.
var detailText = strings.Join([]string{
	"Accueil",
	"Recherche",
	"Peugeot 208 1.2 PureTech 100ch Allure",
	"Lyon 69003",
	"Voir les 8 photos",
	"12 500 €",
	"Marque",
	"Peugeot",
	"Modèle",
	"208",
	"Année-modèle",
	"2019",
	"Kilométrage",
	"45 300 km",
	"Énergie",
	"Essence",
	"Boîte de vitesse",
	"Manuelle",
	"Couleur",
	"Gris",
	"Garage du Rhône - SIRET 123 456 789",
}, "\n")

func TestExtractHeuristicTier(t *testing.T) {
	e := newTestExtractor()

	p := e.Extract(market.RenderedPage{
		URL:  "https://www.leboncoin.fr/ad/voitures/2914775551.htm",
		Text: detailText,
	})

	require.Equal(t, "2914775551", p.SourceID)
	require.True(t, p.Viable())

	require.NotNil(t, p.Title)
	require.Equal(t, "Peugeot 208 1.2 PureTech 100ch Allure", *p.Title)

	require.NotNil(t, p.Price)
	require.Equal(t, int64(12500), *p.Price)

	require.NotNil(t, p.City)
	require.Equal(t, "Lyon", *p.City)
	require.Equal(t, "69003", *p.PostalCode)
	require.Equal(t, "69", *p.RegionCode)

	require.Equal(t, "PEUGEOT", *p.Brand)
	require.Equal(t, "208", *p.Model)
	require.Equal(t, 2019, *p.Year)
	require.Equal(t, int64(45300), *p.Mileage)
	require.Equal(t, "petrol", *p.FuelType)
	require.Equal(t, "manual", *p.Transmission)
	require.Equal(t, "Gris", *p.Color)
	require.Equal(t, 8, *p.PhotoCount)
	require.Equal(t, market.SellerProfessional, p.SellerType)
}

func TestScanPriceBounds(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *int64
	}{
		{"narrow nbsp separator", "12 500 €", market.Int64Ptr(12500)},
		{"plain spaces", "9 800 €", market.Int64Ptr(9800)},
		{"shipping fee rejected", "250€", nil},
		{"lower bound exclusive", "500 €", nil},
		{"just above lower bound", "501 €", market.Int64Ptr(501)},
		{"upper bound exclusive", "10 000 000 €", nil},
		{"no euro sign", "12500", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanPrice([]string{tt.line})
			if tt.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, *tt.want, *got)
		})
	}
}

func TestScanPriceTakesFirstValid(t *testing.T) {
	got := scanPrice([]string{"100 €", "15 900 €", "14 000 €"})
	require.NotNil(t, got)
	require.Equal(t, int64(15900), *got)
}

func TestParseMileage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *int64
	}{
		{"spaced thousands", "45 300 km", market.Int64Ptr(45300)},
		{"nbsp thousands", "45 300 km", market.Int64Ptr(45300)},
		{"zero is valid", "0 km", market.Int64Ptr(0)},
		{"upper bound inclusive", "1 000 000 km", market.Int64Ptr(1000000)},
		{"past upper bound", "1 000 001 km", nil},
		{"no digits", "km inconnu", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseMileage(tt.in)
			if tt.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, *tt.want, *got)
		})
	}
}

func TestScanLocation(t *testing.T) {
	t.Run("accepts city with postal code", func(t *testing.T) {
		city, cp, region := scanLocation([]string{"Marseille 13008"})
		require.NotNil(t, city)
		require.Equal(t, "Marseille", *city)
		require.Equal(t, "13008", *cp)
		require.Equal(t, "13", *region)
	})

	t.Run("rejects digits in city name", func(t *testing.T) {
		city, _, _ := scanLocation([]string{"Zone 4 75011"})
		require.Nil(t, city)
	})

	t.Run("rejects short names", func(t *testing.T) {
		city, _, _ := scanLocation([]string{"Le 75011"})
		require.Nil(t, city)
	})

	t.Run("rejects boilerplate", func(t *testing.T) {
		city, _, _ := scanLocation([]string{"Paiement sécurisé 75011"})
		require.Nil(t, city)
	})

	t.Run("only scans the top of the page", func(t *testing.T) {
		lines := make([]string, 0, locationScanLines+1)
		for i := 0; i < locationScanLines; i++ {
			lines = append(lines, "filler line")
		}
		lines = append(lines, "Nantes 44000")
		city, _, _ := scanLocation(lines)
		require.Nil(t, city)
	})
}

func TestScanTitle(t *testing.T) {
	t.Run("requires a brand token", func(t *testing.T) {
		got := scanTitle([]string{"Superbe occasion toutes options"})
		require.Nil(t, got)
	})

	t.Run("skips navigation chrome", func(t *testing.T) {
		got := scanTitle([]string{
			"Recherche RENAULT occasions récentes",
			"Renault Clio V TCe 90 Intens",
		})
		require.NotNil(t, got)
		require.Equal(t, "Renault Clio V TCe 90 Intens", *got)
	})

	t.Run("requires minimum length", func(t *testing.T) {
		got := scanTitle([]string{"BMW Série 1"})
		require.Nil(t, got)
	})
}

func TestScanLabeledGearboxVocabulary(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  *string
	}{
		{"automatique normalizes", "Automatique", market.StrPtr("automatic")},
		{"manuelle normalizes", "Manuelle", market.StrPtr("manual")},
		{"auto shorthand", "auto", market.StrPtr("automatic")},
		{"out of vocabulary discarded", "Séquentielle", nil},
		{"engine size is not a gearbox", "3.5L", nil},
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p market.PartialListing
			scanLabeled([]string{"Boîte de vitesse", tt.value}, &p, now)
			if tt.want == nil {
				require.Nil(t, p.Transmission)
				return
			}
			require.NotNil(t, p.Transmission)
			require.Equal(t, *tt.want, *p.Transmission)
		})
	}
}

func TestParseYearBounds(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Nil(t, parseYear("1899", now))
	require.Nil(t, parseYear("2028", now))
	require.NotNil(t, parseYear("2027", now))
	require.NotNil(t, parseYear("1990", now))
	require.Nil(t, parseYear("no digits here", now))
}

func TestClassifySeller(t *testing.T) {
	require.Equal(t, market.SellerProfessional,
		classifySeller("Concessionnaire agréé, financement possible"))
	require.Equal(t, market.SellerPrivate,
		classifySeller("Vendu par un particulier"))
	require.Equal(t, market.SellerPrivate,
		classifySeller("Contact: 06 12 34 56 78"))
	// Pro markers win even when a mobile number is shown.
	require.Equal(t, market.SellerProfessional,
		classifySeller("Garage Martin, tel 06 12 34 56 78"))
	require.Equal(t, market.SellerUnknown,
		classifySeller("Très belle voiture à saisir"))
}

const jsonLDPage = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Car",
  "name": "Volkswagen Golf VII 1.6 TDI",
  "description": "Très bon état général, entretien à jour.",
  "brand": {"@type": "Brand", "name": "Volkswagen"},
  "model": "Golf",
  "color": "Noir",
  "fuelType": "Diesel",
  "vehicleTransmission": "Manuelle",
  "vehicleModelDate": "2017",
  "mileageFromOdometer": {"@type": "QuantitativeValue", "value": 98000, "unitCode": "KMT"},
  "offers": {"@type": "Offer", "price": 13490, "priceCurrency": "EUR"}
}
</script>
</head><body>
<div>Toulouse 31000</div>
</body></html>`

func TestExtractStructuredTier(t *testing.T) {
	e := newTestExtractor()

	p := e.Extract(market.RenderedPage{
		URL:  "https://www.leboncoin.fr/ad/voitures/123456.htm",
		HTML: jsonLDPage,
	})

	require.True(t, p.Viable())
	require.Equal(t, "Volkswagen Golf VII 1.6 TDI", *p.Title)
	require.Equal(t, "VOLKSWAGEN", *p.Brand)
	require.Equal(t, "Golf", *p.Model)
	require.Equal(t, "Noir", *p.Color)
	require.Equal(t, "diesel", *p.FuelType)
	require.Equal(t, "manual", *p.Transmission)
	require.Equal(t, 2017, *p.Year)
	require.Equal(t, int64(98000), *p.Mileage)
	require.Equal(t, int64(13490), *p.Price)

	// The heuristic tier still fills what JSON-LD does not carry.
	require.NotNil(t, p.City)
	require.Equal(t, "Toulouse", *p.City)
	require.Equal(t, "31", *p.RegionCode)
}

func TestExtractStructuredGraphAndTypeArray(t *testing.T) {
	const page = `<html><head><script type="application/ld+json">
{"@graph":[
  {"@type":"WebPage","name":"nope"},
  {"@type":["Product","Car"],"name":"Fiat 500 1.2 Lounge","brand":"Fiat",
   "offers":[{"price":"7990"}]}
]}
</script></head><body></body></html>`

	e := newTestExtractor()
	p := e.Extract(market.RenderedPage{
		URL:  "https://www.leboncoin.fr/ad/voitures/987.htm",
		HTML: page,
	})

	require.Equal(t, "FIAT", *p.Brand)
	require.Equal(t, int64(7990), *p.Price)
}

func TestDescriptionExcerptKeepsRuneBoundary(t *testing.T) {
	// 499 ASCII bytes followed by accented text puts the byte cap in the
	// middle of a two-byte rune.
	desc := strings.Repeat("a", 499) + "échappement refait, distribution neuve"
	page := `<html><head><script type="application/ld+json">
{"@type":"Car","name":"Renault Clio","brand":"Renault",
 "description":` + string(mustJSON(t, desc)) + `,
 "offers":{"price":6500}}
</script></head><body></body></html>`

	e := newTestExtractor()
	p := e.Extract(market.RenderedPage{
		URL:  "https://www.leboncoin.fr/ad/voitures/333.htm",
		HTML: page,
	})

	require.NotNil(t, p.Description)
	require.True(t, utf8.ValidString(*p.Description))
	require.LessOrEqual(t, len(*p.Description), 500)
	require.Equal(t, strings.Repeat("a", 499), *p.Description)
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "héhé", truncateRunes("héhé", 10))
	require.Equal(t, "h", truncateRunes("héhé", 2))
	require.Equal(t, "hé", truncateRunes("héhé", 3))
	require.Equal(t, "", truncateRunes("écrasé", 1))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestExtractNonViablePage(t *testing.T) {
	e := newTestExtractor()
	p := e.Extract(market.RenderedPage{
		URL:  "https://www.leboncoin.fr/ad/voitures/111.htm",
		Text: "Page introuvable\nRetour à l'accueil",
	})
	require.False(t, p.Viable())
	require.Equal(t, "111", p.SourceID)
}

func TestExtractMalformedJSONLDFallsBack(t *testing.T) {
	const page = `<html><head><script type="application/ld+json">{not json</script>
</head><body>
<div>CITROEN C3 PureTech 82 Feel</div>
<div>8 900 €</div>
</body></html>`

	e := newTestExtractor()
	p := e.Extract(market.RenderedPage{
		URL:  "https://www.leboncoin.fr/ad/voitures/222.htm",
		HTML: page,
	})

	require.True(t, p.Viable())
	require.NotNil(t, p.Price)
	require.Equal(t, int64(8900), *p.Price)
}
