package enrichment

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestGate_TooSoonAndTooClose(t *testing.T) {
	g := NewGate("station", time.Minute, 0.5)

	if !g.ShouldProceed(48.0, 2.0, t0) {
		t.Fatal("first call must proceed")
	}
	g.MarkStarted(48.0, 2.0, t0)
	g.MarkFinished()

	// ~0.01 km after 10 s: too soon and too close
	if g.ShouldProceed(48.0, 2.0001, t0.Add(10*time.Second)) {
		t.Error("call 10 s later from ~7 m away should be rejected")
	}

	// ~37 km after 10 s: too soon but far away
	if !g.ShouldProceed(48.0, 2.5, t0.Add(10*time.Second)) {
		t.Error("a large jump must re-trigger regardless of elapsed time")
	}
}

func TestGate_StationaryRetriggersAfterInterval(t *testing.T) {
	g := NewGate("line", time.Minute, 0.5)
	g.MarkStarted(48.0, 2.0, t0)
	g.MarkFinished()

	if g.ShouldProceed(48.0, 2.0, t0.Add(59*time.Second)) {
		t.Error("stationary call before 60 s should be rejected")
	}
	if !g.ShouldProceed(48.0, 2.0, t0.Add(60*time.Second)) {
		t.Error("stationary call after 60 s should proceed")
	}
}

func TestGate_InFlightRejects(t *testing.T) {
	g := NewGate("station", time.Minute, 0.5)
	g.MarkStarted(48.0, 2.0, t0)

	if g.ShouldProceed(10.0, 10.0, t0.Add(time.Hour)) {
		t.Error("no call may proceed while one is in flight")
	}
	if g.ForceAcquire(10.0, 10.0, t0.Add(time.Hour)) {
		t.Error("ForceAcquire must respect the in-flight flag")
	}

	g.MarkFinished()
	if !g.ShouldProceed(10.0, 10.0, t0.Add(time.Hour)) {
		t.Error("call should proceed after MarkFinished")
	}
}

func TestGate_ForceAcquireIgnoresCooldown(t *testing.T) {
	g := NewGate("viewpoint", 2*time.Minute, 0.8)
	g.MarkStarted(48.0, 2.0, t0)
	g.MarkFinished()

	if g.TryAcquire(48.0, 2.0, t0.Add(time.Second)) {
		t.Fatal("TryAcquire should honour the cooldown")
	}
	if !g.ForceAcquire(48.0, 2.0, t0.Add(time.Second)) {
		t.Fatal("ForceAcquire should bypass the cooldown")
	}
	if !g.InFlight() {
		t.Error("ForceAcquire should mark the gate in flight")
	}
}

func TestGate_LastAttemptMonotonic(t *testing.T) {
	g := NewGate("station", time.Minute, 0.5)
	g.MarkStarted(48.0, 2.0, t0.Add(time.Minute))
	g.MarkFinished()
	g.MarkStarted(48.5, 2.0, t0)
	g.MarkFinished()

	if !g.LastAttemptAt().Equal(t0.Add(time.Minute)) {
		t.Errorf("LastAttemptAt went backwards: %v", g.LastAttemptAt())
	}
}

func TestGate_TryAcquireIsAtomic(t *testing.T) {
	g := NewGate("station", time.Minute, 0.5)

	var accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire(48.0, 2.0, t0) {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("%d concurrent callers acquired the gate, expected 1", accepted)
	}
}
