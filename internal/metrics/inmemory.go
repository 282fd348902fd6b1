package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Logins            map[string]uint64
	Registrations     map[string]uint64
	SessionsIssued    uint64
	SessionsExpired   uint64
	Logouts           uint64
	SessionCacheHits  uint64
	SessionCacheMiss  uint64
	SessionsPurged    int64
	ModelsCreated     uint64
	ModelsUpdated     uint64
	ModelsDeleted     uint64
	UpstreamCalls     map[string]uint64 // keyed by operation
	UpstreamFailures  uint64            // calls with no response
	HTTPRequests      uint64
	HTTPDurationTotal time.Duration
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	sessionsIssued   uint64
	sessionsExpired  uint64
	logouts          uint64
	cacheHits        uint64
	cacheMisses      uint64
	sessionsPurged   int64
	modelsCreated    uint64
	modelsUpdated    uint64
	modelsDeleted    uint64
	upstreamFailures uint64
	httpRequests     uint64
	httpDurationNs   int64

	mu            sync.Mutex
	logins        map[string]uint64
	registrations map[string]uint64
	upstreamCalls map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		logins:        make(map[string]uint64),
		registrations: make(map[string]uint64),
		upstreamCalls: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	logins := copyCounts(m.logins)
	registrations := copyCounts(m.registrations)
	upstream := copyCounts(m.upstreamCalls)
	m.mu.Unlock()

	return Snapshot{
		Logins:            logins,
		Registrations:     registrations,
		SessionsIssued:    atomic.LoadUint64(&m.sessionsIssued),
		SessionsExpired:   atomic.LoadUint64(&m.sessionsExpired),
		Logouts:           atomic.LoadUint64(&m.logouts),
		SessionCacheHits:  atomic.LoadUint64(&m.cacheHits),
		SessionCacheMiss:  atomic.LoadUint64(&m.cacheMisses),
		SessionsPurged:    atomic.LoadInt64(&m.sessionsPurged),
		ModelsCreated:     atomic.LoadUint64(&m.modelsCreated),
		ModelsUpdated:     atomic.LoadUint64(&m.modelsUpdated),
		ModelsDeleted:     atomic.LoadUint64(&m.modelsDeleted),
		UpstreamCalls:     upstream,
		UpstreamFailures:  atomic.LoadUint64(&m.upstreamFailures),
		HTTPRequests:      atomic.LoadUint64(&m.httpRequests),
		HTTPDurationTotal: time.Duration(atomic.LoadInt64(&m.httpDurationNs)),
	}
}

func (m *InMemoryRecorder) IncLogin(outcome string) {
	m.mu.Lock()
	m.logins[outcome]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncRegistration(outcome string) {
	m.mu.Lock()
	m.registrations[outcome]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncSessionIssued()   { atomic.AddUint64(&m.sessionsIssued, 1) }
func (m *InMemoryRecorder) IncSessionExpired()  { atomic.AddUint64(&m.sessionsExpired, 1) }
func (m *InMemoryRecorder) IncLogout()          { atomic.AddUint64(&m.logouts, 1) }
func (m *InMemoryRecorder) IncSessionCacheHit() { atomic.AddUint64(&m.cacheHits, 1) }
func (m *InMemoryRecorder) IncSessionCacheMiss() {
	atomic.AddUint64(&m.cacheMisses, 1)
}

func (m *InMemoryRecorder) AddSessionsPurged(n int64) { atomic.AddInt64(&m.sessionsPurged, n) }

func (m *InMemoryRecorder) IncModelCreated() { atomic.AddUint64(&m.modelsCreated, 1) }
func (m *InMemoryRecorder) IncModelUpdated() { atomic.AddUint64(&m.modelsUpdated, 1) }
func (m *InMemoryRecorder) IncModelDeleted() { atomic.AddUint64(&m.modelsDeleted, 1) }

func (m *InMemoryRecorder) ObserveUpstreamCall(operation string, status int, _ time.Duration) {
	m.mu.Lock()
	m.upstreamCalls[operation]++
	m.mu.Unlock()
	if status == 0 {
		atomic.AddUint64(&m.upstreamFailures, 1)
	}
}

func (m *InMemoryRecorder) ObserveHTTPRequest(_, _ string, _ int, d time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
	atomic.AddInt64(&m.httpDurationNs, d.Nanoseconds())
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
