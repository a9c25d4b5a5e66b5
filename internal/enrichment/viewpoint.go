package enrichment

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/geo"
	"github.com/mini-rodalies-3d/onboard/internal/overpass"
)

// Viewpoint is a church visible from the train
type Viewpoint struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distanceKm"`
	Side       string  `json:"side,omitempty"` // "left" or "right" of the heading
}

// ViewpointFinder lists churches within range and ahead of the heading
type ViewpointFinder struct {
	client     Querier
	gate       *Gate
	radiusKm   float64
	maxResults int
	aheadDeg   float64
	timeout    time.Duration
	now        func() time.Time
}

// NewViewpointFinder creates a finder
func NewViewpointFinder(client Querier, gate *Gate, radiusKm float64, maxResults int, aheadDeg float64, timeout time.Duration) *ViewpointFinder {
	return &ViewpointFinder{
		client:     client,
		gate:       gate,
		radiusKm:   radiusKm,
		maxResults: maxResults,
		aheadDeg:   aheadDeg,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Query returns the Overpass query used around (lat, lon)
func (f *ViewpointFinder) Query(lat, lon float64) string {
	return overpass.ViewpointQuery(int(math.Round(f.radiusKm*1000)), lat, lon)
}

// Find searches around (lat, lon). With a known bearing only churches
// within aheadDeg of it are kept. force bypasses the cooldown. started, if
// non-nil, is called once the gate admits the search and before the query.
func (f *ViewpointFinder) Find(ctx context.Context, lat, lon float64, bearing *float64, force bool, started func()) ([]Viewpoint, error) {
	now := f.now()
	var acquired bool
	if force {
		acquired = f.gate.ForceAcquire(lat, lon, now)
	} else {
		acquired = f.gate.TryAcquire(lat, lon, now)
	}
	if !acquired {
		return nil, ErrSkipped
	}
	defer f.gate.MarkFinished()
	if started != nil {
		started()
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.Query(ctx, f.Query(lat, lon))
	if err != nil {
		return nil, fmt.Errorf("%w: viewpoint lookup: %w", ErrTransientFailure, err)
	}

	viewpoints := f.rank(resp.Elements, lat, lon, bearing)
	log.Printf("Viewpoints: %d of %d churches kept", len(viewpoints), len(resp.Elements))
	return viewpoints, nil
}

// rank filters by range and heading, labels the side and sorts by distance
func (f *ViewpointFinder) rank(elements []overpass.Element, lat, lon float64, bearing *float64) []Viewpoint {
	out := make([]Viewpoint, 0, len(elements))
	seen := make(map[int64]bool)

	for _, el := range elements {
		name := strings.TrimSpace(el.Tags["name"])
		if name == "" || seen[el.ID] {
			continue
		}
		vLat, vLon, ok := el.Position()
		if !ok {
			continue
		}
		distance := geo.DistanceKm(lat, lon, vLat, vLon)
		if distance > f.radiusKm {
			continue
		}

		vp := Viewpoint{ID: el.ID, Name: name, Latitude: vLat, Longitude: vLon, DistanceKm: distance}
		if bearing != nil {
			rel := geo.RelativeAngle(*bearing, geo.Bearing(lat, lon, vLat, vLon))
			if math.Abs(rel) > f.aheadDeg {
				continue
			}
			vp.Side = "right"
			if rel < 0 {
				vp.Side = "left"
			}
		}

		seen[el.ID] = true
		out = append(out, vp)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > f.maxResults {
		out = out[:f.maxResults]
	}
	return out
}
