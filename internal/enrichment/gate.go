// Package enrichment attaches nearby rail context to a fix using the
// Overpass service: nearest station, current line and churches ahead.
package enrichment

import (
	"errors"
	"sync"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/geo"
)

var (
	// ErrSkipped means the gate rejected the call (in flight, or too soon and too close)
	ErrSkipped = errors.New("enrichment skipped by gate")
	// ErrTransientFailure wraps a network or parse failure of one enrichment attempt
	ErrTransientFailure = errors.New("enrichment transient failure")
)

// Gate rate-limits one kind of enrichment query. A call is suppressed while
// another is in flight, or when it is both too soon and too close to the
// last attempt. Safe for concurrent use.
type Gate struct {
	kind          string
	minInterval   time.Duration
	minDistanceKm float64

	mu            sync.Mutex
	hasLast       bool
	lastLat       float64
	lastLon       float64
	lastAttemptAt time.Time
	inFlight      bool
}

// NewGate creates a gate for kind
func NewGate(kind string, minInterval time.Duration, minDistanceKm float64) *Gate {
	return &Gate{kind: kind, minInterval: minInterval, minDistanceKm: minDistanceKm}
}

// Kind returns the enrichment kind this gate guards
func (g *Gate) Kind() string {
	return g.kind
}

// ShouldProceed reports whether a call at (lat, lon, now) would be accepted.
// It does not reserve the slot; use TryAcquire for an atomic check-and-mark.
func (g *Gate) ShouldProceed(lat, lon float64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowLocked(lat, lon, now)
}

// MarkStarted records an attempt and flags the kind as in flight
func (g *Gate) MarkStarted(lat, lon float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markLocked(lat, lon, now)
}

// MarkFinished releases the in-flight flag. Call it however the attempt ended.
func (g *Gate) MarkFinished() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
}

// TryAcquire checks and marks in one step, so two near-simultaneous callers
// cannot both proceed. On true the caller must call MarkFinished.
func (g *Gate) TryAcquire(lat, lon float64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.allowLocked(lat, lon, now) {
		return false
	}
	g.markLocked(lat, lon, now)
	return true
}

// ForceAcquire ignores the cooldown but still refuses while in flight
func (g *Gate) ForceAcquire(lat, lon float64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return false
	}
	g.markLocked(lat, lon, now)
	return true
}

// InFlight reports whether a call of this kind is running
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// LastAttemptAt returns the time of the last accepted attempt (zero if none)
func (g *Gate) LastAttemptAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAttemptAt
}

func (g *Gate) allowLocked(lat, lon float64, now time.Time) bool {
	if g.inFlight {
		return false
	}
	if !g.hasLast {
		return true
	}
	tooSoon := now.Sub(g.lastAttemptAt) < g.minInterval
	tooClose := geo.DistanceKm(lat, lon, g.lastLat, g.lastLon) < g.minDistanceKm
	return !(tooSoon && tooClose)
}

func (g *Gate) markLocked(lat, lon float64, now time.Time) {
	g.hasLast = true
	g.lastLat = lat
	g.lastLon = lon
	if now.After(g.lastAttemptAt) {
		g.lastAttemptAt = now
	}
	g.inFlight = true
}
