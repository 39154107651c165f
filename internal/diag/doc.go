// Package diag serves the daemon's HTTP introspection surface.
//
// Ownership boundary:
// - health, readiness and Prometheus metrics endpoints
// - read-only socket and adapter listings
// - link fault injection for the simulated bus
// - no socket state changes; every handler goes through public APIs
package diag
