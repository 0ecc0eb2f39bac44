// Package lifecycle coordinates the run phase of the process.
//
// The Coordinator races the long-running gateway connection against a
// ShutdownSignal. Whichever finishes first decides the Outcome; the other is
// cancelled and awaited. Every Run ends with a drain: the gateway is closed and
// all background work tracked by the TaskGroup is cancelled and awaited, so no
// goroutine started on behalf of the run outlives it.
package lifecycle
