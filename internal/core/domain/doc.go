// Package domain defines the core value types of the server engine.
//
// Values in this package carry no IO dependencies:
//
//   - Request: immutable view of an incoming request
//   - Payload: buffered or single-pass streamed body
//   - Response: status, headers, body and timing produced by services
//   - Header: lower-case header mapping and per-name composition rules
//   - Timing: ordered label/duration pairs and Server-Timing emission
//   - StopReason: stable server termination reasons
//   - Errors: coded domain errors
//
// Requests and responses are never edited in place; helpers return
// modified copies.
package domain
