// Package server implements the session gateway of the PrivChat backend:
// HTTP account endpoints, WebSocket upgrades with an authenticated handshake,
// and the per-session pumps that carry commands in and events out.
//
// The implementation is organized into specialized files for configuration,
// the gateway, sessions, command dispatch, routing, and HTTP handlers to keep
// the codebase maintainable and testable as the project grows.
package server
