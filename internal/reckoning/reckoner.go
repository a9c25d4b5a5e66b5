// Package reckoning extrapolates the vehicle position between fixes.
package reckoning

import (
	"sync"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/geo"
	"github.com/mini-rodalies-3d/onboard/internal/position"
)

// Reckoner holds the last confirmed fix and the heading derived from the
// last two distinct fixes. Written by the poll cycle, read by the tickers.
type Reckoner struct {
	mu         sync.RWMutex
	lastFix    *position.Fix
	bearingDeg *float64
	now        func() time.Time
}

// New creates an empty reckoner using the wall clock
func New() *Reckoner {
	return &Reckoner{now: time.Now}
}

// Update stores fix as the latest. Bearing is recomputed only when the
// coordinates moved, so a stationary reading keeps the previous heading.
func (r *Reckoner) Update(fix position.Fix) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.lastFix; prev != nil &&
		(prev.Latitude != fix.Latitude || prev.Longitude != fix.Longitude) {
		b := geo.Bearing(prev.Latitude, prev.Longitude, fix.Latitude, fix.Longitude)
		r.bearingDeg = &b
	}
	r.lastFix = &fix
}

// LastFix returns the latest fix, if any
func (r *Reckoner) LastFix() (position.Fix, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastFix == nil {
		return position.Fix{}, false
	}
	return *r.lastFix, true
}

// BearingDeg returns the current heading, if one has been established
func (r *Reckoner) BearingDeg() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.bearingDeg == nil {
		return 0, false
	}
	return *r.bearingDeg, true
}

// EstimateNow projects the last fix forward to the current instant
func (r *Reckoner) EstimateNow() (geo.Point, bool) {
	return r.EstimateAt(r.now())
}

// EstimateAt projects the last fix forward to at. It has no side effects:
// the same instant always yields the same point. ok is false before the
// first fix.
func (r *Reckoner) EstimateAt(at time.Time) (geo.Point, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lastFix == nil {
		return geo.Point{}, false
	}
	fix := *r.lastFix
	origin := geo.Point{Lat: fix.Latitude, Lon: fix.Longitude}

	elapsed := at.Sub(fix.CapturedAt).Seconds()
	distanceKm := fix.SpeedKmh * elapsed / 3600
	if r.bearingDeg == nil || distanceKm <= 0 {
		return origin, true
	}

	lat, lon := geo.Project(fix.Latitude, fix.Longitude, distanceKm, *r.bearingDeg)
	return geo.Point{Lat: lat, Lon: lon}, true
}
