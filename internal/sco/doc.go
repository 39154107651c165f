// Package sco owns the synchronous audio socket layer.
//
// Ownership boundary:
// - socket lifecycle (open/bind/listen/connect/accept/close/release)
//
// - connection registry and listener matching
//
// - channel pairing between one link-layer connection and one socket
//
// - accept backlog, connect timeout supervision
//
// - MTU-bounded send, inbound frame dispatch
//
// The link-layer transport is an external collaborator reached through
// Transport; it reports link events back through the Protocol On* methods.
//
// Lock order:
// - socket -> child socket -> registry -> handle index -> channel
//
// - the registry lock is never held while acquiring a socket lock.
package sco
