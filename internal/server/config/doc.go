// Package config provides the devserve-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default configuration values
//   - verify.go: consistency checks (ports, TLS material, served root)
//   - sanitize.go: masking of inline key material for logging
//   - options.go: mapping to httpserver.Options
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// DEVSERVE_ environment variables and command-line flags.
package config
