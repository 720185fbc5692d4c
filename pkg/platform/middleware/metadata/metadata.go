package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"transplant/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context. Audit entries carry the parsed client name.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, DescribeClient(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DescribeClient renders a user agent as "<browser> <version> on <os>".
func DescribeClient(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	if name == "" {
		return ""
	}
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	desc := strings.TrimSpace(name + " " + version)
	if osName := ua.OSInfo().Name; osName != "" {
		desc += " on " + osName
	}
	return desc
}

// ClientIPFromRequest extracts the real client IP, honoring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
