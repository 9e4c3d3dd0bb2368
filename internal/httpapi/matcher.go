package httpapi

import (
	"path"
	"strings"
)

var (
	bypassPrefixes = []string{"/api/", "/_next/static/", "/_next/image"}
	bypassExact    = []string{"/api", "/favicon.ico"}
	bypassExts     = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp"}
)

// Bypass reports whether pathname goes straight to the upstream without session resolution.
// API routes authenticate themselves; static assets carry no session-dependent content.
func Bypass(pathname string) bool {
	for _, p := range bypassExact {
		if pathname == p {
			return true
		}
	}
	for _, p := range bypassPrefixes {
		if strings.HasPrefix(pathname, p) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(pathname))
	for _, e := range bypassExts {
		if ext == e {
			return true
		}
	}
	return false
}
