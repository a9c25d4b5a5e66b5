package metrics

import (
	"sort"
	"sync"
	"time"
)

// EndpointStats summarizes observed fetch outcomes for one endpoint
type EndpointStats struct {
	Endpoint    string    `json:"endpoint"`
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	MeanMs      float64   `json:"meanMs"`
	StdDevMs    float64   `json:"stdDevMs"`
	LastSuccess time.Time `json:"lastSuccess,omitempty"`
}

type endpointState struct {
	latency     WelfordState
	failures    int
	lastSuccess time.Time
}

// Latency tracks per-endpoint fetch latency. Safe for concurrent use.
type Latency struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
}

// NewLatency creates an empty tracker
func NewLatency() *Latency {
	return &Latency{endpoints: make(map[string]*endpointState)}
}

func (l *Latency) stateLocked(endpoint string) *endpointState {
	st, ok := l.endpoints[endpoint]
	if !ok {
		st = &endpointState{}
		l.endpoints[endpoint] = st
	}
	return st
}

// RecordSuccess adds a successful fetch that took d
func (l *Latency) RecordSuccess(endpoint string, d time.Duration, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.stateLocked(endpoint)
	st.latency.Update(float64(d) / float64(time.Millisecond))
	st.lastSuccess = at
}

// RecordFailure counts a failed fetch
func (l *Latency) RecordFailure(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateLocked(endpoint).failures++
}

// Stats returns a snapshot sorted by endpoint
func (l *Latency) Stats() []EndpointStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]EndpointStats, 0, len(l.endpoints))
	for endpoint, st := range l.endpoints {
		out = append(out, EndpointStats{
			Endpoint:    endpoint,
			Successes:   st.latency.Count,
			Failures:    st.failures,
			MeanMs:      st.latency.Mean,
			StdDevMs:    st.latency.StdDev(),
			LastSuccess: st.lastSuccess,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
