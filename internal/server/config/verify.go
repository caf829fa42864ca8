package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/yndnr/devserve-go/internal/core/domain"
)

const maxPort = 65535

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyTLS(&cfg.TLS, &cfg.Server); err != nil {
		return err
	}
	if err := verifyFiles(&cfg.Files); err != nil {
		return err
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return domain.ErrInvalidOption.WithDetails("metrics.path must start with /")
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	for name, port := range map[string]int{
		"server.port":      cfg.Port,
		"server.port_hint": cfg.PortHint,
		"server.port_max":  cfg.PortMax,
	} {
		if port < 0 || port > maxPort {
			return domain.ErrInvalidOption.WithDetails(fmt.Sprintf("%s %d out of range", name, port))
		}
	}
	if cfg.PortHint > 0 && cfg.PortMax > 0 && cfg.PortMax < cfg.PortHint {
		return domain.ErrInvalidOption.WithDetails("server.port_max is below server.port_hint")
	}
	if cfg.PushWindow < 0 {
		return domain.ErrInvalidOption.WithDetails("server.push_window must not be negative")
	}
	if cfg.StopGracePeriod < 0 || cfg.RequestWaitingTimeout < 0 {
		return domain.ErrInvalidOption.WithDetails("durations must not be negative")
	}
	return nil
}

func verifyTLS(cfg *TLSSection, server *ServerSection) error {
	if !cfg.Enabled {
		if server.RedirectHTTP || server.AllowHTTP {
			return domain.ErrInvalidProtocol.WithDetails("server.redirect_http and server.allow_http require tls.enabled")
		}
		return nil
	}

	inline := cfg.CertPEM != "" || cfg.KeyPEM != ""
	files := cfg.CertFile != "" || cfg.KeyFile != ""
	switch {
	case inline && (cfg.CertPEM == "" || cfg.KeyPEM == ""):
		return domain.ErrMissingCertificate.WithDetails("tls.cert_pem and tls.key_pem go together")
	case !inline && files && (cfg.CertFile == "" || cfg.KeyFile == ""):
		return domain.ErrMissingCertificate.WithDetails("tls.cert_file and tls.key_file go together")
	case !inline && !files && !cfg.SelfSigned:
		return domain.ErrMissingCertificate.WithDetails("set tls.cert_file and tls.key_file or tls.self_signed")
	}
	if cfg.Watch && (inline || !files) {
		return domain.ErrInvalidOption.WithDetails("tls.watch requires tls.cert_file and tls.key_file")
	}
	var paths []string
	if !inline && files {
		paths = append(paths, cfg.CertFile, cfg.KeyFile)
	}
	if cfg.ClientCAFile != "" {
		paths = append(paths, cfg.ClientCAFile)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return domain.ErrInvalidCertificate.WithDetails(path).WithCause(err)
		}
	}
	return nil
}

func verifyFiles(cfg *FilesSection) error {
	if cfg.Root == "" {
		return domain.ErrInvalidOption.WithDetails("files.root is required")
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return domain.ErrInvalidOption.WithDetails("files.root").WithCause(err)
	}
	if !info.IsDir() {
		return domain.ErrInvalidOption.WithDetails("files.root is not a directory")
	}
	for page := range cfg.Push {
		if !strings.HasPrefix(page, "/") {
			return domain.ErrInvalidOption.WithDetails(fmt.Sprintf("files.push key %q must start with /", page))
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return domain.ErrInvalidOption.WithDetails(fmt.Sprintf("log.level %q", cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text":
	default:
		return domain.ErrInvalidOption.WithDetails(fmt.Sprintf("log.format %q", cfg.Format))
	}
	return nil
}
