// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Outcome labels shared by recorders.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeConflict           = "conflict"
	OutcomeInvalid            = "invalid"
	OutcomeError              = "error"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Session metrics
	IncLogin(outcome string)
	IncRegistration(outcome string)
	IncSessionIssued()
	IncSessionExpired()
	IncLogout()
	IncSessionCacheHit()
	IncSessionCacheMiss()
	AddSessionsPurged(n int64)

	// Model management metrics
	IncModelCreated()
	IncModelUpdated()
	IncModelDeleted()

	// ObserveUpstreamCall records one proxied call. status is 0 when the
	// call failed before a response arrived.
	ObserveUpstreamCall(operation string, status int, duration time.Duration)

	// ObserveHTTPRequest records one served request by route pattern.
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
