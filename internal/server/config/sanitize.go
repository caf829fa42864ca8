package config

import "strings"

// Sanitize returns a copy of the config with inline key material masked,
// for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.TLS.KeyPEM != "" {
		sanitized.TLS.KeyPEM = maskSecret(sanitized.TLS.KeyPEM)
	}
	if sanitized.TLS.CertPEM != "" {
		sanitized.TLS.CertPEM = "<inline certificate>"
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
