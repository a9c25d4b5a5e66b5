package reckoning

import (
	"math"
	"testing"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/geo"
	"github.com/mini-rodalies-3d/onboard/internal/position"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func fixAt(lat, lon, speed float64, at time.Time) position.Fix {
	return position.Fix{Latitude: lat, Longitude: lon, SpeedKmh: speed, CapturedAt: at}
}

func TestUpdate_BearingFromDistinctFixes(t *testing.T) {
	r := New()

	r.Update(fixAt(48.0, 2.0, 100, t0))
	if _, ok := r.BearingDeg(); ok {
		t.Fatal("bearing must be unknown after a single fix")
	}

	r.Update(fixAt(48.1, 2.0, 100, t0.Add(15*time.Second)))
	b, ok := r.BearingDeg()
	if !ok {
		t.Fatal("bearing should be known after two distinct fixes")
	}
	if math.Abs(b) > 1e-6 {
		t.Errorf("bearing = %f, expected 0 (due north)", b)
	}
}

func TestUpdate_IdenticalCoordinatesKeepBearing(t *testing.T) {
	r := New()
	r.Update(fixAt(48.0, 2.0, 100, t0))
	r.Update(fixAt(48.0, 2.1, 100, t0.Add(15*time.Second)))
	before, _ := r.BearingDeg()

	r.Update(fixAt(48.0, 2.1, 0, t0.Add(30*time.Second)))

	after, ok := r.BearingDeg()
	if !ok || after != before {
		t.Errorf("bearing changed from %f to %f (ok=%v) on a stationary fix", before, after, ok)
	}
	fix, _ := r.LastFix()
	if !fix.CapturedAt.Equal(t0.Add(30 * time.Second)) {
		t.Error("stationary fix must still replace the latest fix")
	}
}

func TestUpdate_IdenticalCoordinatesWithoutBearing(t *testing.T) {
	r := New()
	r.Update(fixAt(48.0, 2.0, 0, t0))
	r.Update(fixAt(48.0, 2.0, 0, t0.Add(15*time.Second)))
	if _, ok := r.BearingDeg(); ok {
		t.Error("bearing must stay unknown when no movement was ever seen")
	}
}

func TestEstimateAt(t *testing.T) {
	r := New()
	if _, ok := r.EstimateAt(t0); ok {
		t.Fatal("estimate before any fix must report !ok")
	}

	r.Update(fixAt(48.0, 2.0, 120, t0))

	// no bearing yet: raw coordinates
	p, ok := r.EstimateAt(t0.Add(time.Minute))
	if !ok || p.Lat != 48.0 || p.Lon != 2.0 {
		t.Errorf("estimate without bearing = %+v, expected raw fix", p)
	}

	r.Update(fixAt(48.0, 2.1, 120, t0.Add(15*time.Second)))

	// 120 km/h for 30 s = 1 km due east
	at := t0.Add(45 * time.Second)
	p, _ = r.EstimateAt(at)
	if d := geo.DistanceKm(48.0, 2.1, p.Lat, p.Lon); math.Abs(d-1) > 1e-3 {
		t.Errorf("projected %f km, expected 1", d)
	}
	if p.Lon <= 2.1 {
		t.Errorf("projection should move east, got lon %f", p.Lon)
	}

	again, _ := r.EstimateAt(at)
	if again != p {
		t.Errorf("EstimateAt not idempotent: %+v vs %+v", p, again)
	}
}

func TestEstimateAt_ZeroSpeedOrPastInstant(t *testing.T) {
	r := New()
	r.Update(fixAt(48.0, 2.0, 0, t0))
	r.Update(fixAt(48.0, 2.1, 0, t0.Add(15*time.Second)))

	p, _ := r.EstimateAt(t0.Add(time.Hour))
	if p.Lat != 48.0 || p.Lon != 2.1 {
		t.Errorf("zero speed must not project, got %+v", p)
	}

	r.Update(fixAt(48.0, 2.2, 100, t0.Add(30*time.Second)))
	p, _ = r.EstimateAt(t0)
	if p.Lat != 48.0 || p.Lon != 2.2 {
		t.Errorf("instant before the fix must not project backwards, got %+v", p)
	}
}

func TestEstimateNow_UsesClock(t *testing.T) {
	r := New()
	now := t0
	r.now = func() time.Time { return now }

	r.Update(fixAt(0, 0.5, 36, t0))
	r.Update(fixAt(0, 1.0, 36, t0))

	now = t0.Add(100 * time.Second) // 36 km/h for 100 s = 1 km
	p, ok := r.EstimateNow()
	if !ok {
		t.Fatal("EstimateNow returned !ok")
	}
	if d := geo.DistanceKm(0, 1.0, p.Lat, p.Lon); math.Abs(d-1) > 1e-3 {
		t.Errorf("projected %f km, expected 1", d)
	}
}
