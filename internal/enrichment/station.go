package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/overpass"
)

// Querier runs an Overpass QL query
type Querier interface {
	Query(ctx context.Context, ql string) (*overpass.Response, error)
}

// Station is the nearest train station found for a fix
type Station struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StationFinder searches outward through increasing radii for the nearest station
type StationFinder struct {
	client  Querier
	gate    *Gate
	radiiM  []int
	timeout time.Duration
	now     func() time.Time
}

// NewStationFinder creates a finder. radiiM must be ascending.
func NewStationFinder(client Querier, gate *Gate, radiiM []int, timeout time.Duration) *StationFinder {
	return &StationFinder{
		client:  client,
		gate:    gate,
		radiiM:  append([]int(nil), radiiM...),
		timeout: timeout,
		now:     time.Now,
	}
}

// Find returns the first station within the smallest radius that has one.
// It returns ErrSkipped when the gate rejects the call and (nil, nil) when
// every radius came back empty.
func (f *StationFinder) Find(ctx context.Context, lat, lon float64) (*Station, error) {
	if !f.gate.TryAcquire(lat, lon, f.now()) {
		return nil, ErrSkipped
	}
	defer f.gate.MarkFinished()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	for _, radius := range f.radiiM {
		if ctx.Err() != nil {
			log.Printf("Station: search abandoned at %d m: %v", radius, ctx.Err())
			break
		}

		resp, err := f.queryRadius(ctx, radius, lat, lon)
		if err != nil {
			log.Printf("Station: %v", fmt.Errorf("%w: radius %d m: %w", ErrTransientFailure, radius, err))
			continue
		}
		if len(resp.Elements) == 0 {
			continue
		}

		el := resp.Elements[0]
		stLat, stLon, _ := el.Position()
		station := &Station{
			Name:      el.Tags["name"],
			Latitude:  stLat,
			Longitude: stLon,
		}
		log.Printf("Station: found %q within %d m", station.Name, radius)
		return station, nil
	}

	log.Printf("Station: none found within %d m", f.maxRadius())
	return nil, nil
}

// queryRadius issues one query, retrying exactly once on a gateway timeout
func (f *StationFinder) queryRadius(ctx context.Context, radius int, lat, lon float64) (*overpass.Response, error) {
	ql := overpass.StationQuery(radius, lat, lon)
	resp, err := f.client.Query(ctx, ql)
	if errors.Is(err, overpass.ErrGatewayTimeout) {
		log.Printf("Station: gateway timeout at %d m, retrying once", radius)
		resp, err = f.client.Query(ctx, ql)
	}
	return resp, err
}

// MaxRadiusKm is the widest search radius in kilometers
func (f *StationFinder) MaxRadiusKm() float64 {
	return float64(f.maxRadius()) / 1000
}

func (f *StationFinder) maxRadius() int {
	max := 0
	for _, r := range f.radiiM {
		if r > max {
			max = r
		}
	}
	return max
}
