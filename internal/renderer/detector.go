package renderer

import (
	"net/http"
	"strings"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// blockMarkers are phrases the marketplace's anti-bot interstitials
// render. Matched case-insensitively against the body.
var blockMarkers = []string{
	"datadome",
	"captcha",
	"you have been blocked",
	"access denied",
	"vérification nécessaire",
	"activer javascript",
	"enable javascript",
}

// looksBlocked reports whether a response is an anti-bot wall rather
// than page content.
func looksBlocked(page market.RenderedPage) bool {
	switch page.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	lower := strings.ToLower(page.HTML)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// needsRender reports whether a probe response is a client-side shell
// that needs JavaScript before it carries listing content. Detail pages
// ship either JSON-LD or the label/value attribute grid server-side;
// a body without both, or one below the size floor, is a shell.
func needsRender(page market.RenderedPage, sizeFloor int) bool {
	if len(page.HTML) < sizeFloor {
		return true
	}
	lower := strings.ToLower(page.HTML)
	if strings.Contains(lower, "application/ld+json") {
		return false
	}
	if strings.Contains(lower, "kilométrage") || strings.Contains(lower, "kilometrage") {
		return false
	}
	return true
}
