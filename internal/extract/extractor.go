// Package extract turns rendered detail pages into partial listings.
//
// Extraction runs two tiers. The structured tier parses schema.org
// JSON-LD blocks when the marketplace embeds them. The heuristic tier
// scans visible text lines for the label/value layout and the price,
// location, title and seller patterns the site renders. Structured
// values win; heuristics fill whatever is still missing. Both tiers
// validate before accepting, so a failed parse yields a nil field, not
// a garbage value.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// Extractor implements market.Extractor over both tiers.
type Extractor struct {
	clock  market.Clock
	logger *zap.Logger
}

func New(clock market.Clock, logger *zap.Logger) *Extractor {
	return &Extractor{clock: clock, logger: logger}
}

// Extract never fails: a page that yields nothing comes back as a
// non-viable partial and is discarded by the caller.
func (e *Extractor) Extract(page market.RenderedPage) market.PartialListing {
	now := e.clock.Now()

	p := market.PartialListing{
		SourceID: market.SourceIDFromURL(pageURL(page)),
		URL:      market.StrPtr(pageURL(page)),
	}

	var doc *goquery.Document
	if page.HTML != "" {
		var err error
		doc, err = goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
		if err != nil {
			e.logger.Warn("html parse failed, text tier only",
				zap.String("url", pageURL(page)),
				zap.Error(err),
			)
			doc = nil
		}
	}

	structured := false
	if doc != nil {
		structured = parseJSONLD(doc, &p, now)
	}

	text := page.Text
	if text == "" && doc != nil {
		text = doc.Find("body").Text()
	}
	lines := pageLines(text)

	// Heuristics only fill fields the structured tier left empty.
	if p.Title == nil {
		p.Title = scanTitle(lines)
	}
	if p.Price == nil {
		p.Price = scanPrice(lines)
	}
	if p.City == nil {
		p.City, p.PostalCode, p.RegionCode = scanLocation(lines)
	}
	scanLabeled(lines, &p, now)
	if p.PhotoCount == nil {
		p.PhotoCount = scanPhotoCount(lines)
	}
	if p.SellerType == market.SellerUnknown || p.SellerType == "" {
		p.SellerType = classifySeller(text)
	}

	e.logger.Debug("extracted listing",
		zap.String("source_id", p.SourceID),
		zap.Bool("structured", structured),
		zap.Bool("viable", p.Viable()),
	)
	return p
}

func pageURL(page market.RenderedPage) string {
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return page.URL
}
