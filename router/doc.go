// Package router matches requests to routes and runs each route's pipeline.
//
// Patterns are slash-separated. A ":name" segment captures one path segment;
// a trailing ":name*" captures every remaining segment, joined with "/", and
// also matches when nothing remains. Routes are grouped by method and tried
// in registration order; the first structural match wins.
//
// A route carries ordered [Step]s and a [Handler]. Steps run strictly in
// order; the first one that returns a response or an error ends the request.
// Steps attach what they derive (client IP, principal) to the [Request].
//
// The [Dispatcher] is the only place errors become HTTP responses: kinds from
// package apperr choose the status, anything untagged is a logged 500.
package router
