package frontier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// fakeRenderer serves canned search pages keyed by URL.
type fakeRenderer struct {
	pages   map[string]string
	errs    map[string]error
	fetched []string
}

func (f *fakeRenderer) Fetch(_ context.Context, rawURL string) (market.RenderedPage, error) {
	f.fetched = append(f.fetched, rawURL)
	if err, ok := f.errs[rawURL]; ok {
		return market.RenderedPage{}, err
	}
	return market.RenderedPage{URL: rawURL, StatusCode: 200, HTML: f.pages[rawURL]}, nil
}

func (f *fakeRenderer) RotateSession(_ context.Context) error { return nil }
func (f *fakeRenderer) Close(_ context.Context) error         { return nil }

func searchPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<a href="https://www.leboncoin.fr/ad/voitures/%s.htm">ad</a>`, id)
	}
	b.WriteString("</body></html>")
	return b.String()
}

var seed = market.SeedConfig{Name: "voitures", BaseURL: "https://www.leboncoin.fr/c/voitures"}

func TestWalkDiscoversAcrossPages(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://www.leboncoin.fr/c/voitures":        searchPage("1", "2"),
		"https://www.leboncoin.fr/c/voitures?page=2": searchPage("3", "2"),
	}}
	f := New(Config{PagesPerSeed: 2, KnownStreak: 20}, r, zap.NewNop())

	res, err := f.Walk(context.Background(), seed, nil, map[string]struct{}{})
	require.NoError(t, err)
	require.Equal(t, 2, res.PagesWalked)
	require.Equal(t, []string{
		"https://www.leboncoin.fr/ad/voitures/1.htm",
		"https://www.leboncoin.fr/ad/voitures/2.htm",
		"https://www.leboncoin.fr/ad/voitures/3.htm",
	}, res.FetchURLs)
	require.Len(t, res.SeenIDs, 3)
	require.False(t, res.Stopped)
}

func TestWalkSkipsFailedPage(t *testing.T) {
	r := &fakeRenderer{
		pages: map[string]string{
			"https://www.leboncoin.fr/c/voitures":        searchPage("1"),
			"https://www.leboncoin.fr/c/voitures?page=3": searchPage("2"),
		},
		errs: map[string]error{
			"https://www.leboncoin.fr/c/voitures?page=2": market.NewFetchError(
				market.FetchTimeout, "https://www.leboncoin.fr/c/voitures?page=2", errors.New("timeout")),
		},
	}
	f := New(Config{PagesPerSeed: 3, KnownStreak: 20}, r, zap.NewNop())

	res, err := f.Walk(context.Background(), seed, nil, map[string]struct{}{})
	require.NoError(t, err)
	require.Equal(t, 3, res.PagesWalked)
	require.Len(t, res.FetchURLs, 2)
}

func TestWalkStopsOnBlocked(t *testing.T) {
	r := &fakeRenderer{
		errs: map[string]error{
			"https://www.leboncoin.fr/c/voitures": market.NewFetchError(
				market.FetchBlocked, "https://www.leboncoin.fr/c/voitures", errors.New("403")),
		},
	}
	f := New(Config{PagesPerSeed: 5, KnownStreak: 20}, r, zap.NewNop())

	_, err := f.Walk(context.Background(), seed, nil, map[string]struct{}{})
	require.Error(t, err)
	require.True(t, market.IsBlocked(err))
	// Blocked aborts the seed immediately.
	require.Len(t, r.fetched, 1)
}

func TestWalkEarlyStopOnKnownStreak(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://www.leboncoin.fr/c/voitures":        searchPage("n1", "k1", "k2", "k3", "n2"),
		"https://www.leboncoin.fr/c/voitures?page=2": searchPage("n3"),
	}}
	known := map[string]struct{}{"k1": {}, "k2": {}, "k3": {}}
	f := New(Config{PagesPerSeed: 2, KnownStreak: 3}, r, zap.NewNop())

	res, err := f.Walk(context.Background(), seed, known, map[string]struct{}{})
	require.NoError(t, err)
	require.True(t, res.Stopped)
	// n2 sits after the streak, page 2 is never fetched.
	require.Equal(t, []string{"https://www.leboncoin.fr/ad/voitures/n1.htm"}, res.FetchURLs)
	require.Len(t, r.fetched, 1)
}

func TestWalkStreakResetsOnNewListing(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://www.leboncoin.fr/c/voitures": searchPage("k1", "k2", "n1", "k3", "k4"),
	}}
	known := map[string]struct{}{"k1": {}, "k2": {}, "k3": {}, "k4": {}}
	f := New(Config{PagesPerSeed: 1, KnownStreak: 3}, r, zap.NewNop())

	res, err := f.Walk(context.Background(), seed, known, map[string]struct{}{})
	require.NoError(t, err)
	require.False(t, res.Stopped)
	require.Equal(t, []string{"https://www.leboncoin.fr/ad/voitures/n1.htm"}, res.FetchURLs)
	// Known ids still count as observed for the sold sweep.
	require.Len(t, res.SeenIDs, 5)
}

func TestWalkRefreshKnownRequeues(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://www.leboncoin.fr/c/voitures": searchPage("k1", "n1"),
	}}
	known := map[string]struct{}{"k1": {}}
	f := New(Config{PagesPerSeed: 1, KnownStreak: 20, RefreshKnown: true}, r, zap.NewNop())

	res, err := f.Walk(context.Background(), seed, known, map[string]struct{}{})
	require.NoError(t, err)
	require.Len(t, res.FetchURLs, 2)
}

func TestWalkDedupsAcrossSeeds(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://www.leboncoin.fr/c/voitures": searchPage("1", "2"),
	}}
	f := New(Config{PagesPerSeed: 1, KnownStreak: 20}, r, zap.NewNop())

	seenRun := map[string]struct{}{"1": {}}
	res, err := f.Walk(context.Background(), seed, nil, seenRun)
	require.NoError(t, err)
	require.Equal(t, []string{"https://www.leboncoin.fr/ad/voitures/2.htm"}, res.FetchURLs)
}

func TestBuildPageURL(t *testing.T) {
	require.Equal(t, "https://x.test/c/voitures", buildPageURL("https://x.test/c/voitures", 1))
	require.Equal(t, "https://x.test/c/voitures?page=2", buildPageURL("https://x.test/c/voitures", 2))
	require.Equal(t, "https://x.test/c/voitures?brand=bmw&page=2", buildPageURL("https://x.test/c/voitures?brand=bmw", 2))
}
