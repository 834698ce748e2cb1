package clientinfo

import (
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExtract_IPAddress(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "forwarded for picks leftmost entry",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			remoteAddr: "192.0.2.1:1234",
			want:       "203.0.113.5",
		},
		{
			name:       "forwarded for skips invalid leftmost entry",
			headers:    map[string]string{"X-Forwarded-For": "unknown, 203.0.113.5"},
			remoteAddr: "192.0.2.1:1234",
			want:       "203.0.113.5",
		},
		{
			name:       "real ip with bracketed ipv6 and port",
			headers:    map[string]string{"X-Real-IP": "[2001:db8::1]:443"},
			remoteAddr: "192.0.2.1:1234",
			want:       "2001:db8::1",
		},
		{
			name:       "bracketed ipv6 without port",
			headers:    map[string]string{"X-Real-IP": "[2001:db8::1]"},
			remoteAddr: "192.0.2.1:1234",
			want:       "2001:db8::1",
		},
		{
			name:       "cdn header after invalid real ip",
			headers:    map[string]string{"X-Real-IP": "not-an-ip", "CF-Connecting-IP": "198.51.100.9"},
			remoteAddr: "192.0.2.1:1234",
			want:       "198.51.100.9",
		},
		{
			name:       "ipv4 mapped ipv6 peer is unmapped",
			remoteAddr: "[::ffff:198.51.100.7]:52431",
			want:       "198.51.100.7",
		},
		{
			name:       "ipv4 with port stripped",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5:8080"},
			remoteAddr: "192.0.2.1:1234",
			want:       "203.0.113.5",
		},
		{
			name:       "no candidate valid",
			headers:    map[string]string{"X-Forwarded-For": "garbage"},
			remoteAddr: "not-an-address",
			want:       Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, Extract(r).IPAddress)
		})
	}
}

func TestExtract_UserAgent(t *testing.T) {
	t.Run("missing header yields sentinel", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		assert.Equal(t, Unknown, Extract(r).UserAgent)
	})

	t.Run("long value truncated with marker", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("User-Agent", strings.Repeat("a", 1000))
		ua := Extract(r).UserAgent
		assert.Len(t, ua, maxUserAgentLength)
		assert.True(t, strings.HasSuffix(ua, truncationMarker))
	})

	t.Run("truncation never splits a rune", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		// A multi-byte rune straddles the cut position.
		r.Header.Set("User-Agent", strings.Repeat("a", maxUserAgentLength-len(truncationMarker)-1)+"値値")
		ua := Extract(r).UserAgent
		assert.True(t, utf8.ValidString(ua))
		assert.True(t, strings.HasSuffix(ua, truncationMarker))
		assert.LessOrEqual(t, len(ua), maxUserAgentLength)
	})

	t.Run("short value passed through", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("User-Agent", "Mozilla/5.0")
		assert.Equal(t, "Mozilla/5.0", Extract(r).UserAgent)
	})
}
