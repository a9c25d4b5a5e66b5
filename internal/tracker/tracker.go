// Package tracker runs the poll cycle and owns the state shown to sinks.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mini-rodalies-3d/onboard/internal/enrichment"
	"github.com/mini-rodalies-3d/onboard/internal/geo"
	"github.com/mini-rodalies-3d/onboard/internal/position"
	"github.com/mini-rodalies-3d/onboard/internal/reckoning"
)

// ErrCycleInFlight is returned when a cycle is requested while one runs.
// The request is dropped, not queued.
var ErrCycleInFlight = errors.New("poll cycle already in flight")

// liveInterval is how often the live distance is re-projected
const liveInterval = time.Second

// FixSource acquires a fix and forwards it to the reckoner
type FixSource interface {
	Poll(ctx context.Context) (position.Fix, error)
}

// StationSearcher finds the nearest station
type StationSearcher interface {
	Find(ctx context.Context, lat, lon float64) (*enrichment.Station, error)
	MaxRadiusKm() float64
}

// LineSearcher identifies the rail line under a fix
type LineSearcher interface {
	Detect(ctx context.Context, lat, lon float64) (*enrichment.LineInfo, error)
}

// ViewpointSearcher lists churches around a fix
type ViewpointSearcher interface {
	Find(ctx context.Context, lat, lon float64, bearing *float64, force bool, started func()) ([]enrichment.Viewpoint, error)
	Query(lat, lon float64) string
}

// Deps groups the collaborators of a Tracker
type Deps struct {
	Poller     FixSource
	Reckoner   *reckoning.Reckoner
	Stations   StationSearcher
	Lines      LineSearcher
	Viewpoints ViewpointSearcher // optional
	QueryURL   func(ql string) string
}

// Tracker is the long-lived service object. Construct once at startup and
// stop by cancelling the context passed to Run.
type Tracker struct {
	deps     Deps
	interval time.Duration
	now      func() time.Time

	cycleBusy   atomic.Bool
	refreshCh   chan struct{}
	viewpointCh chan struct{}
	bg          sync.WaitGroup

	mu    sync.RWMutex
	state Snapshot

	subsMu sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// New creates a tracker polling every interval
func New(deps Deps, interval time.Duration) *Tracker {
	t := &Tracker{
		deps:        deps,
		interval:    interval,
		now:         time.Now,
		refreshCh:   make(chan struct{}, 1),
		viewpointCh: make(chan struct{}, 1),
		subs:        make(map[int]chan Snapshot),
	}
	t.state.Status = StatusIdle
	t.state.ViewpointStatus = ViewpointIdle
	if deps.Stations != nil {
		t.state.MaxStationSearchKm = deps.Stations.MaxRadiusKm()
	}
	return t
}

// Run performs a foreground cycle immediately, then background cycles every
// interval, and re-projects the live distance every second. It returns once
// ctx is cancelled and in-flight work has settled.
func (t *Tracker) Run(ctx context.Context) {
	t.spawnCycle(ctx, false)
	t.setNextPoll(t.now().Add(t.interval))

	pollTicker := time.NewTicker(t.interval)
	defer pollTicker.Stop()
	liveTicker := time.NewTicker(liveInterval)
	defer liveTicker.Stop()

	for {
		select {
		case <-pollTicker.C:
			t.setNextPoll(t.now().Add(t.interval))
			t.spawnCycle(ctx, true)
		case <-t.refreshCh:
			pollTicker.Reset(t.interval)
			t.setNextPoll(t.now().Add(t.interval))
			t.spawnClaimedCycle(ctx)
		case <-t.viewpointCh:
			t.bg.Add(1)
			go func() {
				defer t.bg.Done()
				if err := t.RefreshViewpoints(ctx); err != nil {
					log.Printf("Tracker: manual viewpoint refresh: %v", err)
				}
			}()
		case <-liveTicker.C:
			t.RefreshLiveDistance()
		case <-ctx.Done():
			log.Println("Tracker: loop stopped, waiting for in-flight work")
			t.bg.Wait()
			t.closeSubscribers()
			return
		}
	}
}

// Refresh asks the Run loop for a user-initiated cycle. It claims the
// single-flight guard before returning, so a true result means the cycle
// will run and scheduled cycles are dropped until it finishes. It reports
// false when a cycle is already running or queued.
func (t *Tracker) Refresh() bool {
	if !t.cycleBusy.CompareAndSwap(false, true) {
		return false
	}
	select {
	case t.refreshCh <- struct{}{}:
		return true
	default:
		t.cycleBusy.Store(false)
		return false
	}
}

// spawnClaimedCycle runs a foreground cycle whose guard Refresh already holds
func (t *Tracker) spawnClaimedCycle(ctx context.Context) {
	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		if err := t.runCycle(ctx, false); err != nil {
			log.Printf("Tracker: cycle error: %v", err)
		}
	}()
}

func (t *Tracker) spawnCycle(ctx context.Context, silent bool) {
	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		if err := t.RunCycle(ctx, silent); err != nil && !errors.Is(err, ErrCycleInFlight) {
			log.Printf("Tracker: cycle error: %v", err)
		}
	}()
}

// RunCycle acquires a fix, updates dead reckoning and runs the gated
// enrichments. Line and viewpoint lookups continue in the background; the
// station search completes before RunCycle returns.
func (t *Tracker) RunCycle(ctx context.Context, silent bool) error {
	if !t.cycleBusy.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}
	return t.runCycle(ctx, silent)
}

// runCycle releases the guard on return; the caller must have claimed it
func (t *Tracker) runCycle(ctx context.Context, silent bool) error {
	defer t.cycleBusy.Store(false)

	cycleID := uuid.NewString()[:8]
	t.update(func(s *Snapshot) {
		s.CycleID = cycleID
		s.Loading = !silent && s.Fix == nil
	})
	defer t.update(func(s *Snapshot) { s.Loading = false })

	fix, err := t.deps.Poller.Poll(ctx)
	if err != nil {
		t.update(func(s *Snapshot) {
			s.Error = fmt.Sprintf("Train position unavailable: %v", err)
		})
		return fmt.Errorf("cycle %s: %w", cycleID, err)
	}

	bearing, hasBearing := t.deps.Reckoner.BearingDeg()
	t.update(func(s *Snapshot) {
		f := fix
		s.Fix = &f
		s.Error = ""
		s.BearingDeg = nil
		if hasBearing {
			b := bearing
			s.BearingDeg = &b
		}
		p := geo.Point{Lat: fix.Latitude, Lon: fix.Longitude}
		s.Estimated = &p
	})

	t.detectLine(ctx, cycleID, fix)
	if hasBearing {
		t.searchViewpoints(ctx, cycleID, fix, &bearing, false)
	} else {
		t.searchViewpoints(ctx, cycleID, fix, nil, false)
	}

	t.findStation(ctx, cycleID, fix, silent)
	return nil
}

// findStation runs the station search and applies the status transitions
func (t *Tracker) findStation(ctx context.Context, cycleID string, fix position.Fix, silent bool) {
	t.update(func(s *Snapshot) {
		s.Status = s.Status.onCycleStart(silent)
		s.StationRefreshing = silent
	})

	station, err := t.deps.Stations.Find(ctx, fix.Latitude, fix.Longitude)
	searched := !errors.Is(err, enrichment.ErrSkipped)
	if err != nil && searched {
		log.Printf("Tracker[%s]: station search error: %v", cycleID, err)
	}
	checkedAt := t.now()

	t.update(func(s *Snapshot) {
		s.StationRefreshing = false
		if searched {
			s.StationCheckedAt = &checkedAt
		}

		known := s.Station != nil
		s.Status = s.Status.onStationResult(station != nil, known, silent)

		switch {
		case station != nil:
			distance := geo.DistanceKm(fix.Latitude, fix.Longitude, station.Latitude, station.Longitude)
			rounded := geo.Round(distance, 2)
			s.Station = station
			s.StationDistanceKm = &rounded
			s.LiveDistanceKm = &distance
		case s.Status == StatusNotFound:
			s.Station = nil
			s.StationDistanceKm = nil
			s.LiveDistanceKm = nil
		}
	})
}

// detectLine looks up the rail line asynchronously. An empty result keeps
// the previous LineInfo.
func (t *Tracker) detectLine(ctx context.Context, cycleID string, fix position.Fix) {
	if t.deps.Lines == nil {
		return
	}
	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		info, err := t.deps.Lines.Detect(ctx, fix.Latitude, fix.Longitude)
		if err != nil {
			if !errors.Is(err, enrichment.ErrSkipped) {
				log.Printf("Tracker[%s]: %v", cycleID, err)
			}
			return
		}
		if info == nil {
			return
		}
		t.update(func(s *Snapshot) {
			s.Line = info
			s.LineName = info.Display()
		})
	}()
}

// searchViewpoints refreshes the church list asynchronously
func (t *Tracker) searchViewpoints(ctx context.Context, cycleID string, fix position.Fix, bearing *float64, force bool) {
	if t.deps.Viewpoints == nil {
		return
	}
	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		t.runViewpointSearch(ctx, cycleID, fix, bearing, force)
	}()
}

func (t *Tracker) runViewpointSearch(ctx context.Context, cycleID string, fix position.Fix, bearing *float64, force bool) error {
	vs := t.deps.Viewpoints
	queryURL := ""
	if t.deps.QueryURL != nil {
		queryURL = t.deps.QueryURL(vs.Query(fix.Latitude, fix.Longitude))
	}

	// loading is published only once the gate admits the search
	viewpoints, err := vs.Find(ctx, fix.Latitude, fix.Longitude, bearing, force, func() {
		t.update(func(s *Snapshot) { s.ViewpointStatus = ViewpointLoading })
	})
	if errors.Is(err, enrichment.ErrSkipped) {
		return err
	}

	t.update(func(s *Snapshot) {
		switch {
		case err != nil:
			s.ViewpointStatus = ViewpointError
		default:
			s.Viewpoints = viewpoints
			s.ViewpointStatus = ViewpointReady
			s.ViewpointQueryURL = queryURL
		}
	})

	if err != nil {
		log.Printf("Tracker[%s]: %v", cycleID, err)
	}
	return err
}

// ErrNoFix is returned by viewpoint refreshes before the first fix
var ErrNoFix = errors.New("no position fix yet")

// ErrViewpointsDisabled is returned when no viewpoint searcher is configured
var ErrViewpointsDisabled = errors.New("viewpoints disabled")

// RequestViewpoints asks the Run loop for a forced viewpoint search
func (t *Tracker) RequestViewpoints() error {
	if t.deps.Viewpoints == nil {
		return ErrViewpointsDisabled
	}
	if _, ok := t.deps.Reckoner.LastFix(); !ok {
		return ErrNoFix
	}
	select {
	case t.viewpointCh <- struct{}{}:
	default:
	}
	return nil
}

// RefreshViewpoints forces a viewpoint search around the latest fix,
// ignoring the cooldown
func (t *Tracker) RefreshViewpoints(ctx context.Context) error {
	if t.deps.Viewpoints == nil {
		return ErrViewpointsDisabled
	}
	fix, ok := t.deps.Reckoner.LastFix()
	if !ok {
		return ErrNoFix
	}
	var bearing *float64
	if b, ok := t.deps.Reckoner.BearingDeg(); ok {
		bearing = &b
	}
	return t.runViewpointSearch(ctx, "manual", fix, bearing, true)
}

// RefreshLiveDistance re-projects the position and the distance to the
// known station. It never issues network calls.
func (t *Tracker) RefreshLiveDistance() {
	estimate, ok := t.deps.Reckoner.EstimateAt(t.now())
	if !ok {
		return
	}

	t.update(func(s *Snapshot) {
		p := estimate
		s.Estimated = &p
		if s.Station == nil {
			return
		}
		d := geo.DistanceKm(estimate.Lat, estimate.Lon, s.Station.Latitude, s.Station.Longitude)
		s.LiveDistanceKm = &d
	})
}

func (t *Tracker) setNextPoll(at time.Time) {
	t.update(func(s *Snapshot) { s.NextPollAt = at })
}
