// Package clientinfo derives a best-effort client fingerprint (user agent
// plus IP address) from request headers. The result is bound to refresh
// tokens for anomaly logging; it is never an authorization input and the
// proxy chain is not verified.
package clientinfo

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/eventhub/auth-service/internal/models"
)

const (
	// Unknown is the sentinel for a missing or unparseable value.
	Unknown = "Unknown"

	maxUserAgentLength = 256
	truncationMarker   = "..."
)

// Extract resolves the client user agent and IP address for the request.
func Extract(r *http.Request) models.ClientInfo {
	return models.ClientInfo{
		UserAgent: extractUserAgent(r),
		IPAddress: extractIP(r),
	}
}

func extractUserAgent(r *http.Request) string {
	ua := strings.TrimSpace(r.Header.Get("User-Agent"))
	if ua == "" {
		return Unknown
	}
	if len(ua) > maxUserAgentLength {
		// Back up to a rune boundary so the cut never leaves invalid UTF-8.
		cut := maxUserAgentLength - len(truncationMarker)
		for cut > 0 && !utf8.RuneStart(ua[cut]) {
			cut--
		}
		ua = ua[:cut] + truncationMarker
	}
	return ua
}

// extractIP walks the forwarding headers in priority order and falls back to
// the transport peer address. An invalid candidate falls through to the next
// source rather than failing the request.
func extractIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, candidate := range strings.Split(forwarded, ",") {
			if ip, ok := normalizeIP(candidate); ok {
				return ip
			}
		}
	}

	if ip, ok := normalizeIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}

	if ip, ok := normalizeIP(r.Header.Get("CF-Connecting-IP")); ok {
		return ip
	}

	if ip, ok := normalizeIP(r.RemoteAddr); ok {
		return ip
	}

	return Unknown
}

// normalizeIP strips port and bracket syntax, validates the remainder as an
// IP address, and unmaps IPv4-mapped IPv6 addresses to plain IPv4.
func normalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	} else if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		raw = raw[1 : len(raw)-1]
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
