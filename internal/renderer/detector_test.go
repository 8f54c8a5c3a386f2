package renderer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

func TestLooksBlocked(t *testing.T) {
	tests := []struct {
		name string
		page market.RenderedPage
		want bool
	}{
		{"forbidden status", market.RenderedPage{StatusCode: 403}, true},
		{"rate limited status", market.RenderedPage{StatusCode: 429}, true},
		{"datadome marker", market.RenderedPage{StatusCode: 200, HTML: "<div>DataDome</div>"}, true},
		{"captcha marker", market.RenderedPage{StatusCode: 200, HTML: "resolve the CAPTCHA"}, true},
		{"clean page", market.RenderedPage{StatusCode: 200, HTML: "<html>Peugeot 208</html>"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, looksBlocked(tt.page))
		})
	}
}

func TestNeedsRender(t *testing.T) {
	big := strings.Repeat("x", 4096)

	t.Run("small body is a shell", func(t *testing.T) {
		require.True(t, needsRender(market.RenderedPage{HTML: "<div id=app></div>"}, 2048))
	})

	t.Run("json-ld counts as content", func(t *testing.T) {
		page := market.RenderedPage{HTML: big + `<script type="application/ld+json">{}</script>`}
		require.False(t, needsRender(page, 2048))
	})

	t.Run("attribute grid counts as content", func(t *testing.T) {
		page := market.RenderedPage{HTML: big + "<div>Kilométrage</div>"}
		require.False(t, needsRender(page, 2048))
	})

	t.Run("large but empty shell still promotes", func(t *testing.T) {
		require.True(t, needsRender(market.RenderedPage{HTML: big}, 2048))
	})
}
