// Package notify is the boundary for every cross-party call.
//
// A Notifier carries calls from one node to another: participant to host
// (updated hash, removed row, contract acceptance) and host to participant
// (contract offer, authentication probe, data pushes). The receiving node
// implements HostHandler or ParticipantHandler.
//
// Two transports exist. The loopback transport dispatches to handlers
// registered in-process by address and is used by tests and the scenario
// harness. The HTTP transport posts JSON to the endpoints served by
// internal/httpapi.
//
// Calls are never retried. A transport failure or timeout surfaces as
// REMOTE_NOTIFY_FAILURE; a typed error returned by the remote handler
// (for example AUTHENTICATION_FAILURE) is passed through unchanged so callers
// can tell the two apart.
package notify
