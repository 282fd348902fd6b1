package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncLogin(string)                                       {}
func (n *NoopRecorder) IncRegistration(string)                                {}
func (n *NoopRecorder) IncSessionIssued()                                     {}
func (n *NoopRecorder) IncSessionExpired()                                    {}
func (n *NoopRecorder) IncLogout()                                            {}
func (n *NoopRecorder) IncSessionCacheHit()                                   {}
func (n *NoopRecorder) IncSessionCacheMiss()                                  {}
func (n *NoopRecorder) AddSessionsPurged(int64)                               {}
func (n *NoopRecorder) IncModelCreated()                                      {}
func (n *NoopRecorder) IncModelUpdated()                                      {}
func (n *NoopRecorder) IncModelDeleted()                                      {}
func (n *NoopRecorder) ObserveUpstreamCall(string, int, time.Duration)        {}
func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
