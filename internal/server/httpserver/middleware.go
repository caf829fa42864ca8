package httpserver

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/telemetry/logger"
	"github.com/yndnr/devserve-go/internal/telemetry/metric"
)

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID assigns a ULID to each request and stores it in the request
// context. A well-formed incoming X-Request-ID is kept.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if !validRequestID(requestID) {
				requestID = domain.NewID()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, c := range id {
		if c <= 0x20 || c >= 0x7f {
			return false
		}
	}
	return true
}

// AccessLog logs every request once its handler returned and records it
// in metrics. Requests reset without a response are logged as aborted.
func AccessLog(log *slog.Logger, metrics *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w}

			defer func() {
				duration := time.Since(start)
				metrics.ObserveRequest(r.Method, wrapped.statusCode, duration)

				attrs := []any{
					"request_id", logger.RequestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"proto", r.Proto,
					"status", wrapped.statusCode,
					"duration_ms", duration.Milliseconds(),
					"client_ip", getClientIP(r),
				}

				switch {
				case wrapped.statusCode == 0:
					log.Debug("request aborted", attrs...)
				case wrapped.statusCode >= 500:
					log.Error("request completed with error", attrs...)
				case wrapped.statusCode >= 400:
					log.Warn("request completed with client error", attrs...)
				default:
					log.Info("request completed", attrs...)
				}
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// Recover turns a panic escaping the handler into a 500 response when no
// head was sent yet. http.ErrAbortHandler is propagated so the stream is
// reset.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w}
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Error("panic recovered",
					"request_id", logger.RequestIDFromContext(r.Context()),
					"error", err,
					"path", r.URL.Path,
				)
				if wrapped.statusCode != 0 {
					panic(http.ErrAbortHandler)
				}
				text := http.StatusText(http.StatusInternalServerError)
				h := w.Header()
				h.Set("Content-Type", "text/plain; charset=utf-8")
				h.Set("Cache-Control", "no-store")
				h.Set("Content-Length", strconv.Itoa(len(text)))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(text))
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// RedirectToHTTPS answers plain requests with a permanent redirection to
// the https origin returned by origin.
func RedirectToHTTPS(origin func() string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS != nil {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Connection", "close")
			http.Redirect(w, r, origin()+r.URL.RequestURI(), http.StatusMovedPermanently)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	if w.statusCode == 0 {
		w.statusCode = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// findPusher returns the http.Pusher below middleware wrappers.
func findPusher(w http.ResponseWriter) (http.Pusher, bool) {
	for {
		if p, ok := w.(http.Pusher); ok {
			return p, true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil, false
		}
		w = u.Unwrap()
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// net.SplitHostPort handles IPv6 addresses like [::1]:8080.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
