package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	_ Recorder = (*NoopRecorder)(nil)
	_ Recorder = (*InMemoryRecorder)(nil)
	_ Recorder = (*PrometheusRecorder)(nil)
)

func TestInMemoryRecorder(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncLogin(OutcomeSuccess)
	m.IncLogin(OutcomeSuccess)
	m.IncLogin(OutcomeInvalidCredentials)
	m.IncRegistration(OutcomeConflict)
	m.IncSessionIssued()
	m.IncSessionExpired()
	m.IncLogout()
	m.IncSessionCacheHit()
	m.IncSessionCacheMiss()
	m.AddSessionsPurged(3)
	m.IncModelCreated()
	m.IncModelUpdated()
	m.IncModelDeleted()
	m.ObserveUpstreamCall("stop_pod", 200, time.Millisecond)
	m.ObserveUpstreamCall("stop_pod", 0, time.Millisecond)
	m.ObserveHTTPRequest("GET", "/healthz", 200, 2*time.Millisecond)

	snap := m.Snapshot()
	if snap.Logins[OutcomeSuccess] != 2 || snap.Logins[OutcomeInvalidCredentials] != 1 {
		t.Errorf("Logins = %v", snap.Logins)
	}
	if snap.Registrations[OutcomeConflict] != 1 {
		t.Errorf("Registrations = %v", snap.Registrations)
	}
	if snap.SessionsIssued != 1 || snap.SessionsExpired != 1 || snap.Logouts != 1 {
		t.Errorf("session counters = %+v", snap)
	}
	if snap.SessionCacheHits != 1 || snap.SessionCacheMiss != 1 || snap.SessionsPurged != 3 {
		t.Errorf("cache counters = %+v", snap)
	}
	if snap.ModelsCreated != 1 || snap.ModelsUpdated != 1 || snap.ModelsDeleted != 1 {
		t.Errorf("model counters = %+v", snap)
	}
	if snap.UpstreamCalls["stop_pod"] != 2 || snap.UpstreamFailures != 1 {
		t.Errorf("upstream counters = %v / %d", snap.UpstreamCalls, snap.UpstreamFailures)
	}
	if snap.HTTPRequests != 1 || snap.HTTPDurationTotal != 2*time.Millisecond {
		t.Errorf("http counters = %d / %s", snap.HTTPRequests, snap.HTTPDurationTotal)
	}
}

func TestInMemoryRecorder_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncLogin(OutcomeSuccess)
	snap := m.Snapshot()
	snap.Logins[OutcomeSuccess] = 99

	if m.Snapshot().Logins[OutcomeSuccess] != 1 {
		t.Error("mutating a snapshot must not affect the recorder")
	}
}

func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.IncLogin(OutcomeSuccess)
	p.IncLogin(OutcomeInvalidCredentials)
	p.IncLogin(OutcomeInvalidCredentials)
	p.IncModelCreated()
	p.AddSessionsPurged(4)
	p.ObserveUpstreamCall("create_pod", 201, 10*time.Millisecond)
	p.ObserveHTTPRequest("POST", "/api/v1/models", 201, time.Millisecond)

	if got := testutil.ToFloat64(p.logins.WithLabelValues(OutcomeInvalidCredentials)); got != 2 {
		t.Errorf("invalid credential logins = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.modelWrites.WithLabelValues("create")); got != 1 {
		t.Errorf("model creates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.sessionsPurged); got != 4 {
		t.Errorf("sessions purged = %v, want 4", got)
	}
	if got := testutil.ToFloat64(p.upstreamCalls.WithLabelValues("create_pod", "201")); got != 1 {
		t.Errorf("upstream calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.httpRequests.WithLabelValues("POST", "/api/v1/models", "201")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}
