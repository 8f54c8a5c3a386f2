package market

import "strings"

// SourceIDFromURL derives the marketplace listing id from a detail URL:
// the trailing path segment, minus query string and the .htm suffix the
// site appends.
func SourceIDFromURL(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		u = u[i+1:]
	}
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return strings.TrimSuffix(u, ".htm")
}
