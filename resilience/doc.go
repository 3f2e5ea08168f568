// Package resilience provides retry primitives for calls to peers that may
// be down or restarting.
//
//   - Backoff: a polled retry schedule for loops that must never block,
//     such as registration attempts driven by a liveness ticker.
//   - Retry: a blocking retry of one call with exponential backoff, for
//     request paths that can afford to wait.
//
//	b := resilience.NewBackoff(resilience.DefaultBackoffConfig())
//	if b.ShouldRetryNow() {
//	    if err := register(ctx); err != nil {
//	        b.ScheduleRetry()
//	    } else {
//	        b.Reset()
//	    }
//	}
package resilience
