package tracker

import (
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/enrichment"
	"github.com/mini-rodalies-3d/onboard/internal/geo"
	"github.com/mini-rodalies-3d/onboard/internal/position"
)

// ViewpointStatus tracks the church search
type ViewpointStatus string

const (
	ViewpointIdle    ViewpointStatus = "idle"
	ViewpointLoading ViewpointStatus = "loading"
	ViewpointReady   ViewpointStatus = "ready"
	ViewpointError   ViewpointStatus = "error"
)

// Snapshot is a read-only copy of everything the presentation layer shows.
// Rendering it never triggers network activity.
type Snapshot struct {
	CycleID    string        `json:"cycleId,omitempty"`
	Fix        *position.Fix `json:"fix,omitempty"`
	BearingDeg *float64      `json:"bearingDeg,omitempty"`
	Estimated  *geo.Point    `json:"estimated,omitempty"`

	Status             Status              `json:"stationSearchStatus"`
	Station            *enrichment.Station `json:"station,omitempty"`
	StationDistanceKm  *float64            `json:"stationDistanceKm,omitempty"`
	LiveDistanceKm     *float64            `json:"liveDistanceKm,omitempty"`
	StationRefreshing  bool                `json:"stationRefreshing"`
	StationCheckedAt   *time.Time          `json:"stationCheckedAt,omitempty"`
	MaxStationSearchKm float64             `json:"maxStationSearchKm"`

	Line     *enrichment.LineInfo `json:"line,omitempty"`
	LineName string               `json:"lineName,omitempty"`

	Viewpoints        []enrichment.Viewpoint `json:"viewpoints"`
	ViewpointStatus   ViewpointStatus        `json:"viewpointStatus"`
	ViewpointQueryURL string                 `json:"viewpointQueryUrl,omitempty"`

	Loading    bool      `json:"loading"`
	Error      string    `json:"error,omitempty"`
	NextPollAt time.Time `json:"nextPollAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// clone copies the snapshot so callers cannot alias tracker state.
// Pointed-to values are replaced wholesale, never mutated, so sharing them is safe.
func (s Snapshot) clone() Snapshot {
	out := s
	if s.Viewpoints != nil {
		out.Viewpoints = append([]enrichment.Viewpoint(nil), s.Viewpoints...)
	} else {
		out.Viewpoints = []enrichment.Viewpoint{}
	}
	return out
}

// Snapshot returns the current state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.clone()
}

// Subscribe returns a channel receiving the latest snapshot after every
// change. Slow readers only see the most recent one. Call cancel to stop.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()

	id := t.nextID
	t.nextID++
	ch := make(chan Snapshot, 1)
	t.subs[id] = ch

	cancel := func() {
		t.subsMu.Lock()
		defer t.subsMu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// update applies fn under the state lock and notifies subscribers.
// Publishing under the lock keeps subscribers in update order.
func (t *Tracker) update(fn func(s *Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn(&t.state)
	t.state.UpdatedAt = t.now()
	t.publish(t.state.clone())
}

func (t *Tracker) publish(snap Snapshot) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()

	for _, ch := range t.subs {
		// replace any unread snapshot with the newer one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (t *Tracker) closeSubscribers() {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}
