// Package link is an in-process link layer for the sco socket layer.
//
// Ownership boundary:
// - adapters attached to a shared bus, each with its own event sink
//
// - link establishment, reuse and teardown with reference-counted endpoints
//
// - ordered, asynchronous delivery of link events on one dispatch goroutine
//
// Link events never run inside a Bus call; callers may use Flush to wait for
// delivery.
package link
