package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/infra/buildinfo"
	"github.com/yndnr/devserve-go/internal/infra/confloader"
	"github.com/yndnr/devserve-go/internal/infra/shutdown"
	"github.com/yndnr/devserve-go/internal/server/config"
	"github.com/yndnr/devserve-go/internal/server/httpserver"
	"github.com/yndnr/devserve-go/internal/telemetry/logger"
	"github.com/yndnr/devserve-go/internal/telemetry/metric"
)

// shutdownSlack bounds shutdown hooks beyond the stop grace period.
const shutdownSlack = 5 * time.Second

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:    "devserve-server",
		Usage:   "serve a directory over HTTP, HTTPS and HTTP/2",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML configuration file", EnvVars: []string{"DEVSERVE_CONFIG"}},
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "directory to serve"},
			&cli.StringFlag{Name: "host", Usage: "hostname to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "first port to try"},
			&cli.BoolFlag{Name: "https", Usage: "serve HTTPS"},
			&cli.StringFlag{Name: "cert", Usage: "certificate file (PEM)"},
			&cli.StringFlag{Name: "key", Usage: "private key file (PEM)"},
			&cli.BoolFlag{Name: "self-signed", Usage: "generate a certificate when none is configured"},
			&cli.BoolFlag{Name: "http2", Usage: "enable HTTP/2", Value: true},
			&cli.BoolFlag{Name: "metrics", Usage: "expose Prometheus metrics"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Action: run,
	}
}

// overrides maps the flags set on the command line to configuration keys.
func overrides(c *cli.Context) map[string]any {
	m := make(map[string]any)
	set := func(flag, key string, value any) {
		if c.IsSet(flag) {
			m[key] = value
		}
	}
	set("root", "files.root", c.String("root"))
	set("host", "server.hostname", c.String("host"))
	set("port", "server.port_hint", c.Int("port"))
	set("https", "tls.enabled", c.Bool("https"))
	set("cert", "tls.cert_file", c.String("cert"))
	set("key", "tls.key_file", c.String("key"))
	set("self-signed", "tls.self_signed", c.Bool("self-signed"))
	set("http2", "server.http2", c.Bool("http2"))
	set("metrics", "metrics.enabled", c.Bool("metrics"))
	set("log-level", "log.level", c.String("log-level"))
	if c.Bool("self-signed") && !c.IsSet("https") {
		m["tls.enabled"] = true
	}
	return m
}

func run(c *cli.Context) error {
	var opts []confloader.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.LoadMap(overrides(c)); err != nil {
		return err
	}

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	log.Info("starting devserve-server", "version", buildinfo.String())
	log.Debug("configuration loaded", "config", fmt.Sprintf("%+v", *config.Sanitize(cfg)))

	registry := metric.NewRegistry()
	serverOpts, release, err := config.ToOptions(cfg, log, registry)
	if err != nil {
		return err
	}
	// Signals are handled by the shutdown handler below.
	serverOpts.StopOnSignals = false

	srv, err := httpserver.Start(c.Context, serverOpts)
	if err != nil {
		release()
		return fmt.Errorf("start server: %w", err)
	}

	h := shutdown.NewHandler(cfg.Server.StopGracePeriod + shutdownSlack)
	if !cfg.Server.StopOnSignals {
		h.Close()
	}
	h.OnShutdown(func(_ context.Context, reason domain.StopReason) error {
		srv.Stop(reason)
		return nil
	})

	if path := loader.FilePath(); path != "" {
		w, err := watchConfig(loader, path, log)
		if err != nil {
			log.Warn("configuration file not watched", "path", path, "error", err)
		} else {
			h.OnShutdown(func(context.Context, domain.StopReason) error { return w.Stop() })
		}
	}

	// Stops started by the server itself end the process too.
	go func() {
		<-srv.Stopped()
		h.Trigger(srv.Reason())
	}()

	log.Info("serving", "origin", srv.Origin(), "root", cfg.Files.Root)
	if err := h.Wait(); err != nil {
		return err
	}
	if reason := srv.Reason(); reason == domain.ReasonInternalError {
		return fmt.Errorf("server stopped: %s", reason)
	}
	log.Info("devserve-server stopped", "reason", srv.Reason().String())
	return nil
}

// watchConfig reloads the log level when the configuration file changes.
// Other settings take effect on restart.
func watchConfig(loader *confloader.Loader, path string, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Warn("configuration reload failed", "error", err)
			return
		}
		if err := logger.SetLevel(next.Log.Level); err != nil {
			log.Warn("configuration reload failed", "error", err)
			return
		}
		log.Info("log level changed", "level", logger.GetLevel())
	})
	w.StartAsync()
	return w, nil
}
