package extract

import "strings"

// knownBrands anchors title detection: a candidate title line must carry
// one of these tokens. Uppercase, matched against the uppercased line.
var knownBrands = []string{
	"PEUGEOT", "RENAULT", "CITROEN", "CITROËN", "BMW", "AUDI", "MERCEDES",
	"VOLKSWAGEN", "FORD", "TOYOTA", "FIAT", "OPEL", "NISSAN", "HYUNDAI",
	"KIA", "SEAT", "SKODA", "DACIA", "MINI", "PORSCHE", "VOLVO", "MAZDA",
	"SUZUKI", "HONDA", "MITSUBISHI", "JEEP", "LAND ROVER", "ALFA ROMEO",
	"JAGUAR", "LEXUS", "TESLA", "DS", "SMART", "LANCIA", "CHEVROLET",
}

// navChrome marks lines that belong to site navigation, never to a title.
var navChrome = []string{
	"accueil", "recherche", "connexion", "publier", "messages", "favoris",
	"mon compte", "déposer une annonce", "se connecter",
}

// locationNoise rejects label/next-line false positives when scanning for
// "<city> <postal code>" pairs: UI boilerplate that happens to end in digits.
var locationNoise = []string{
	"en ligne", "votre espace", "bailleur", "annonce", "favori",
	"voir plus", "contacter", "message", "téléphone", "appeler",
	"prix", "euro", "paiement", "sécurisé", "livraison",
}

// proMarkers classify a seller as professional: legal-entity suffixes,
// dealership vocabulary, VAT/registry references.
var proMarkers = []string{
	"professionnel", "garage", "concessionnaire", "siret", "siren",
	"tva intra", "sarl", " sas ", "eurl", "automobiles", "auto center",
	"car center", "motors", "financement possible", "reprise possible",
}

// privateMarkers classify a seller as private.
var privateMarkers = []string{"particulier", "vendeur particulier"}

// gearboxVocab is the controlled vocabulary for transmissions. Candidates
// outside it are discarded, never stored verbatim.
var gearboxVocab = map[string]string{
	"manuelle":    "manual",
	"manuel":      "manual",
	"automatique": "automatic",
	"auto":        "automatic",
}

// fuelVocab is the controlled vocabulary for fuel types.
var fuelVocab = map[string]string{
	"diesel":               "diesel",
	"essence":              "petrol",
	"électrique":           "electric",
	"electrique":           "electric",
	"hybride":              "hybrid",
	"hybride rechargeable": "hybrid",
	"gpl":                  "lpg",
}

// fieldLabels maps a normalized page label to the attribute the next
// line carries. Keys are lowercase, trimmed.
var fieldLabels = map[string]string{
	"marque":             "brand",
	"modèle":             "model",
	"modele":             "model",
	"année-modèle":       "year",
	"année modèle":       "year",
	"annee-modele":       "year",
	"annee modele":       "year",
	"année":              "year",
	"kilométrage":        "mileage",
	"kilometrage":        "mileage",
	"énergie":            "fuel",
	"energie":            "fuel",
	"boîte de vitesse":   "gearbox",
	"boite de vitesse":   "gearbox",
	"couleur":            "color",
	"couleur extérieure": "color",
	"couleur exterieure": "color",
}

func normalizeGearbox(raw string) (string, bool) {
	v, ok := gearboxVocab[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}

func normalizeFuel(raw string) (string, bool) {
	v, ok := fuelVocab[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func brandToken(upper string) string {
	for _, b := range knownBrands {
		if strings.Contains(upper, b) {
			return b
		}
	}
	return ""
}
