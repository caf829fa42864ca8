// Package httpserver runs the development HTTP server.
//
// Start binds a port, optionally probing upward from a hint, and serves
// HTTP/1.1, HTTP/2 over TLS or cleartext HTTP/2. With HTTPS, plain and
// TLS clients can share one port: plain requests are redirected to the
// https origin or, when allowed, served as is.
//
// Every request runs through the service hooks registered in Options:
//
//	redirection -> handleRequest -> handleError -> injectResponseHeaders
//	            -> responseReady -> write
//
// Responses are streamed chunk by chunk; the write ends on the first of
// completion, client disconnect, request abort or I/O failure. HTTP/2
// pushes are promised through the HookContext pusher and bounded by a
// per-connection byte budget.
//
// Stop refuses new connections, waits for in-flight requests during the
// grace period, answers the remaining ones with the stop reason, then
// closes every connection.
package httpserver
