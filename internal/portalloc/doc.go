// Package portalloc probes local TCP ports.
//
// A port counts as occupied when a TCP connect to localhost succeeds. This
// is how the fixture tells that a server is up (occupied) or gone (free).
//
// Waits take an explicit Timeout:
//
//	portalloc.WaitFor(ctx, 4222, portalloc.Millis(10000), false) // up within 10s
//	portalloc.WaitFor(ctx, 4222, portalloc.NoWait, true)         // free right now?
//	portalloc.WaitFor(ctx, 4222, portalloc.Indefinite, true)     // until ctx ends
package portalloc
