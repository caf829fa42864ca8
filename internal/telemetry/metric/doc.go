// Package metric provides Prometheus metrics for the server.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: registry, server metrics and HTTP handler
//   - collector.go: gauges sampled from the live server state
//   - service.go: a handleRequest service exposing the registry
//
// Metrics include:
//
//   - Request counts and latency histograms
//   - Connection counters and open connection gauges
//   - HTTP/2 push outcomes
//   - Hook durations and failures
//   - Protocol detection errors
package metric
