// Package service composes independently written services into one
// request handling pipeline.
//
// A Service is a name plus optional hook functions. The Controller flattens
// the registered services once and keeps, per hook kind, the ordered list of
// services implementing it. Dispatch helpers run hooks in registration
// order, never concurrently for one request:
//
//   - CallHooks: every hook, results funnelled to a collector
//   - CallHooksUntil: stops at the first hook reporting done
//   - CallAsyncHooksUntil: context-aware, later hooks never start once one
//     produced a result
//
// When a timing is supplied, each call is recorded under
// "<hookKind>-<serviceName>".
package service
