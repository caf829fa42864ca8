package logger

import (
	"log/slog"
	"testing"
)

func TestRedactSensitive(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"authorization key", slog.String("Authorization", "Basic dXNlcjpwYXNz"), redactedValue},
		{"cookie key", slog.String("set-cookie", "sid=1"), redactedValue},
		{"key material", slog.String("tls.key_pem", "-----BEGIN"), redactedValue},
		{"bearer value", slog.String("header", "Bearer 0123456789"), "Bearer 012...789"},
		{"short bearer", slog.String("header", "bearer abc"), "bearer ***"},
		{"empty sensitive", slog.String("password", ""), ""},
		{"plain", slog.String("path", "/app.js"), "/app.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactSensitive(tt.attr).Value.String(); got != tt.want {
				t.Errorf("redactSensitive() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	a := slog.Group("request", slog.String("cookie", "sid=1"), slog.Int("status", 200))

	got := redactSensitive(a).Value.Group()
	if got[0].Value.String() != redactedValue {
		t.Errorf("cookie = %q", got[0].Value.String())
	}
	if got[1].Value.Int64() != 200 {
		t.Errorf("status = %v", got[1].Value)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"Proxy-Authorization", true},
		{"api_token", true},
		{"client_ip", false},
		{"request_id", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
