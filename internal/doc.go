// Package internal holds helpers private to authcore.
//
// # Sub-packages
//
//   - config: process configuration for cmd/authcore
//   - limiters: Redis-backed failed-login counters
//   - telemetry: OpenTelemetry provider setup for cmd/authcore
package internal
