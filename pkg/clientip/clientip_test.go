package clientip

import (
	"net/http/httptest"
	"testing"
)

func TestRealClientIP(t *testing.T) {
	tests := map[string]string{
		"203.0.113.7:5123": "203.0.113.7",
		"[2001:db8::1]:80": "2001:db8::1",
		"203.0.113.7":      "203.0.113.7",
		"[2001:db8::1]":    "2001:db8::1",
	}
	for remote, want := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = remote
		if got := RealClientIP(r); got != want {
			t.Errorf("RealClientIP(%q) = %q, want %q", remote, got, want)
		}
	}
}
