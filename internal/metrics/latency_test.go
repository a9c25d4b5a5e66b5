package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWelfordState(t *testing.T) {
	var w WelfordState
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Update(v)
	}
	if math.Abs(w.Mean-5) > 1e-9 {
		t.Errorf("Mean = %f, expected 5", w.Mean)
	}
	if math.Abs(w.StdDev()-2) > 1e-9 {
		t.Errorf("StdDev = %f, expected 2", w.StdDev())
	}
}

func TestWelfordState_SingleObservation(t *testing.T) {
	var w WelfordState
	w.Update(42)
	if w.StdDev() != 0 {
		t.Errorf("StdDev with one observation = %f, expected 0", w.StdDev())
	}
}

func TestLatency_Stats(t *testing.T) {
	l := NewLatency()
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	l.RecordSuccess("https://b.example", 100*time.Millisecond, at)
	l.RecordSuccess("https://b.example", 300*time.Millisecond, at.Add(time.Second))
	l.RecordFailure("https://a.example")
	l.RecordFailure("https://a.example")

	stats := l.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(stats))
	}
	if stats[0].Endpoint != "https://a.example" || stats[0].Failures != 2 || stats[0].Successes != 0 {
		t.Errorf("unexpected stats for a: %+v", stats[0])
	}
	b := stats[1]
	if b.Successes != 2 || b.MeanMs != 200 || b.StdDevMs != 100 {
		t.Errorf("unexpected stats for b: %+v", b)
	}
	if !b.LastSuccess.Equal(at.Add(time.Second)) {
		t.Errorf("LastSuccess = %v", b.LastSuccess)
	}
}
