package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/yndnr/devserve-go/internal/core/domain"
)

const maxPort = 65535

// PortRange bounds port probing.
type PortRange struct {
	// Min is the lowest acceptable port (default: 1).
	Min int
	// Max is the highest acceptable port (default: 65535).
	Max int
	// Next returns the port to try after port (default: port+1).
	Next func(port int) int
}

func (r PortRange) withDefaults() PortRange {
	if r.Min <= 0 {
		r.Min = 1
	}
	if r.Max <= 0 || r.Max > maxPort {
		r.Max = maxPort
	}
	if r.Next == nil {
		r.Next = func(port int) int { return port + 1 }
	}
	return r
}

func (r PortRange) validate() error {
	if r.Min < 0 || r.Max < 0 || r.Min > maxPort || r.Max > maxPort {
		return domain.ErrInvalidOption.WithDetails(fmt.Sprintf("port range %d-%d out of bounds", r.Min, r.Max))
	}
	if r.Max != 0 && r.Min > r.Max {
		return domain.ErrInvalidOption.WithDetails(fmt.Sprintf("port range %d-%d is empty", r.Min, r.Max))
	}
	return nil
}

// skippable reports whether probing moves on to the next port after err.
func skippable(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.EACCES)
}

// FindFreePort returns the first port from start on which a TCP listener
// can be bound on all interfaces. Ports failing with "address in use" or
// "permission denied" are skipped; any other failure stops the probe.
func FindFreePort(ctx context.Context, start int, r PortRange) (int, error) {
	ln, err := listenRange(ctx, "", start, r)
	if err != nil {
		return 0, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return 0, fmt.Errorf("httpserver: close probe listener: %w", err)
	}
	return port, nil
}

// listenRange binds the first free port from start and keeps it bound.
func listenRange(ctx context.Context, host string, start int, r PortRange) (net.Listener, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	r = r.withDefaults()
	if start < r.Min {
		start = r.Min
	}

	var lc net.ListenConfig
	for port := start; port <= r.Max; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		if !skippable(err) {
			return nil, domain.ErrPortUnavailable.WithDetails(strconv.Itoa(port)).WithCause(err)
		}
		next := r.Next(port)
		if next <= port {
			break
		}
		port = next
	}
	return nil, domain.ErrNoFreePort.WithDetails(fmt.Sprintf("%d-%d", start, r.Max))
}

// listenPort binds exactly port. 0 picks an ephemeral port.
func listenPort(ctx context.Context, host string, port int) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, domain.ErrPortUnavailable.WithDetails(strconv.Itoa(port)).WithCause(err)
	}
	return ln, nil
}
