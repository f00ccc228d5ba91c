package throttle

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveClientKey(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		expected   string
	}{
		{"forwarded single", "203.0.113.7", "10.0.0.1:5000", "203.0.113.7"},
		{"forwarded chain takes first", "203.0.113.7, 70.41.3.18, 150.172.238.178", "10.0.0.1:5000", "203.0.113.7"},
		{"forwarded with spaces", "  198.51.100.2 ,10.0.0.2", "10.0.0.1:5000", "198.51.100.2"},
		{"forwarded empty first entry falls back", " ,10.0.0.2", "10.0.0.1:5000", "10.0.0.1"},
		{"peer with port", "", "192.0.2.10:41234", "192.0.2.10"},
		{"peer without port", "", "192.0.2.10", "192.0.2.10"},
		{"ipv6 peer", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"nothing available", "", "", UnknownClient},
		{"blank peer", "", "   ", UnknownClient},
		{"empty host with port", "", ":8080", UnknownClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.xff != "" {
				header.Set(ForwardedForHeader, tt.xff)
			}

			got := ResolveClientKey(header, tt.remoteAddr)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, ResolveClientKey(header, tt.remoteAddr), "must be stable")
		})
	}
}

func TestResolveClientKeyNilHeader(t *testing.T) {
	assert.Equal(t, "192.0.2.10", ResolveClientKey(nil, "192.0.2.10:1"))
	assert.Equal(t, UnknownClient, ResolveClientKey(nil, ""))
}

func TestRequestKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.RemoteAddr = "192.0.2.44:5555"
	assert.Equal(t, "192.0.2.44", RequestKey(req))

	req.Header.Set(ForwardedForHeader, "203.0.113.9")
	assert.Equal(t, "203.0.113.9", RequestKey(req))

	assert.Equal(t, UnknownClient, RequestKey(nil))
}
