// Package procrun executes external tools with bounded lifetimes.
//
// Every run drains stdout and stderr through dedicated goroutines so a
// chatty child can never block on a full OS pipe buffer while the parent
// waits for exit. Cancellation is cooperative: the run context requests a
// graceful terminate first, escalating to a kill after a grace period, and
// a shared Registry lets a signal handler force-kill everything still
// outstanding.
package procrun
