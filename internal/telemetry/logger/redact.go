package logger

import (
	"log/slog"
	"strings"
)

// credentialSchemes prefix values of authorization headers.
var credentialSchemes = []string{"Bearer ", "Basic ", "Digest "}

// sensitiveKeys are matched against lowercased attribute keys.
var sensitiveKeys = []string{
	"authorization",
	"cookie",
	"password",
	"secret",
	"token",
	"key_pem",
	"private_key",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if v == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if masked := RedactString(v); masked != v {
			return slog.String(a.Key, masked)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			redacted[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}
	return a
}

// RedactString masks a credential carrying an authorization scheme,
// keeping the scheme. Other values are returned unchanged.
func RedactString(value string) string {
	for _, scheme := range credentialSchemes {
		if len(value) > len(scheme) && strings.EqualFold(value[:len(scheme)], scheme) {
			return value[:len(scheme)] + maskValue(value[len(scheme):])
		}
	}
	return value
}

// IsSensitiveKey reports whether a key name suggests a credential.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeys {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}

// maskValue keeps the first and last three characters of long values.
func maskValue(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:3] + "..." + value[len(value)-3:]
}
