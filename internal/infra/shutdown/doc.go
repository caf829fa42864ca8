// Package shutdown turns process termination signals into stop reasons.
//
// This package handles:
//
//   - Mapping SIGINT, SIGTERM and SIGHUP to domain.StopReason values
//   - Cleanup hook registration, run in reverse order
//   - Timeout-bounded hook execution
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	defer h.Close()
//	h.OnShutdown(func(ctx context.Context, reason domain.StopReason) error {
//		srv.Stop(reason)
//		return nil
//	})
//	err := h.Wait()
package shutdown
