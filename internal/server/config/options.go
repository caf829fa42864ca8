package config

import (
	"log/slog"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/infra/tlsroots"
	"github.com/yndnr/devserve-go/internal/server/fileservice"
	"github.com/yndnr/devserve-go/internal/server/httpserver"
	"github.com/yndnr/devserve-go/internal/telemetry/metric"
)

// selfSignedValidity is the lifetime of generated certificates.
const selfSignedValidity = 30 * 24 * time.Hour

// ToOptions maps cfg to server options. services are registered in order
// before the file service; metrics, when non-nil, is recorded by the
// server and exposed when cfg.Metrics.Enabled.
//
// release frees what ToOptions opened. The file service closes its root
// when the server stops, so release is only needed when the options never
// reach a started server. It is never nil and safe to call twice.
func ToOptions(cfg *ServerConfig, logger *slog.Logger, metrics *metric.Registry, services ...any) (httpserver.Options, func(), error) {
	release := func() {}
	if logger == nil {
		logger = slog.Default()
	}

	opts := httpserver.Options{
		Hostname:                cfg.Server.Hostname,
		Port:                    cfg.Server.Port,
		PortHint:                cfg.Server.PortHint,
		HTTP2:                   cfg.Server.HTTP2,
		HTTPS:                   cfg.TLS.Enabled,
		WatchCertificates:       cfg.TLS.Watch,
		RedirectHTTPToHTTPS:     cfg.Server.RedirectHTTP,
		AllowHTTPRequestOnHTTPS: cfg.Server.AllowHTTP,
		ServerTiming:            cfg.Server.ServerTiming,
		StopOnSignals:           cfg.Server.StopOnSignals,
		StopOnInternalError:     cfg.Server.StopOnInternalError,
		StopGracePeriod:         cfg.Server.StopGracePeriod,
		RequestWaitingTimeout:   cfg.Server.RequestWaitingTimeout,
		ReadHeaderTimeout:       cfg.Server.ReadHeaderTimeout,
		IdleTimeout:             cfg.Server.IdleTimeout,
		PushWindow:              cfg.Server.PushWindow,
		Logger:                  logger,
		Metrics:                 metrics,
	}
	if cfg.Server.PortHint > 0 {
		opts.PortRange = httpserver.PortRange{Min: cfg.Server.PortHint, Max: cfg.Server.PortMax}
	}

	if cfg.TLS.Enabled {
		material, err := tlsMaterial(&cfg.TLS, cfg.Server.Hostname, logger)
		if err != nil {
			return httpserver.Options{}, release, err
		}
		opts.TLS = material

		if cfg.TLS.ClientCAFile != "" {
			cas, err := tlsroots.LoadClientCAs(cfg.TLS.ClientCAFile)
			if err != nil {
				return httpserver.Options{}, release, domain.ErrInvalidCertificate.WithDetails(cfg.TLS.ClientCAFile).WithCause(err)
			}
			opts.ClientCAs = cas
		}
	}

	if metrics != nil && cfg.Metrics.Enabled {
		opts.Services = append(opts.Services, metric.Service(metrics, cfg.Metrics.Path))
	}
	opts.Services = append(opts.Services, services...)

	if cfg.Files.Root != "" {
		files, err := fileservice.New(fileservice.Options{
			Root:         cfg.Files.Root,
			Index:        cfg.Files.Index,
			Push:         cfg.Files.Push,
			CacheControl: cfg.Files.CacheControl,
		})
		if err != nil {
			return httpserver.Options{}, release, err
		}
		opts.Services = append(opts.Services, files)
		release = func() { _ = files.Close() }
	}

	return opts, release, nil
}

func tlsMaterial(cfg *TLSSection, hostname string, logger *slog.Logger) (tlsroots.Material, error) {
	switch {
	case cfg.CertPEM != "" && cfg.KeyPEM != "":
		return tlsroots.Material{CertPEM: cfg.CertPEM, KeyPEM: cfg.KeyPEM}, nil
	case cfg.CertFile != "" && cfg.KeyFile != "":
		return tlsroots.Material{CertFile: cfg.CertFile, KeyFile: cfg.KeyFile}, nil
	case cfg.SelfSigned:
		var hosts []string
		if hostname != "" {
			hosts = append(hosts, hostname)
		}
		certPEM, keyPEM, err := tlsroots.SelfSigned(hosts, selfSignedValidity)
		if err != nil {
			return tlsroots.Material{}, domain.ErrInvalidCertificate.WithCause(err)
		}
		logger.Warn("serving a self-signed certificate", "hosts", append(hosts, "localhost"))
		return tlsroots.Material{CertPEM: string(certPEM), KeyPEM: string(keyPEM)}, nil
	default:
		return tlsroots.Material{}, domain.ErrMissingCertificate
	}
}
