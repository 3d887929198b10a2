package vu

import (
	"testing"
	"time"
)

func newTestEngine() *Engine {
	// 10 units/sec decay, 1s peak hold, 100 units/sec peak decay.
	return NewEngine(10, time.Second, 100)
}

func TestRatchetAppliesUpward(t *testing.T) {
	e := newTestEngine()
	e.ApplyBroadcast("s1", 50, nil)
	if level, _ := e.Levels("s1", false); level != 50 {
		t.Fatalf("expected 50, got %d", level)
	}
	e.ApplyBroadcast("s1", 90, nil)
	if level, _ := e.Levels("s1", false); level != 90 {
		t.Fatalf("expected 90, got %d", level)
	}
}

func TestRatchetIgnoresLowerValues(t *testing.T) {
	e := newTestEngine()
	e.ApplyBroadcast("s1", 50, nil)
	e.ApplyBroadcast("s1", 40, nil)
	if level, _ := e.Levels("s1", false); level != 50 {
		t.Fatalf("lower value moved the needle: %d", level)
	}
	e.ApplyBroadcast("s1", 30, nil)
	if level, _ := e.Levels("s1", false); level != 50 {
		t.Fatalf("lower value moved the needle: %d", level)
	}
}

func TestRatchetIgnoresRepeats(t *testing.T) {
	e := newTestEngine()
	e.ApplyBroadcast("s1", 50, nil)
	e.Tick(2 * time.Second) // Decays to 30
	if level, _ := e.Levels("s1", false); level != 30 {
		t.Fatalf("expected decay to 30, got %d", level)
	}
	// A duplicate of the last received value is not new information,
	// even though 50 > 30 would otherwise pass the ratchet.
	e.ApplyBroadcast("s1", 50, nil)
	if level, _ := e.Levels("s1", false); level != 30 {
		t.Fatalf("duplicate re-applied: %d", level)
	}
	// A genuinely new value above the needle applies.
	e.ApplyBroadcast("s1", 49, nil)
	if level, _ := e.Levels("s1", false); level != 49 {
		t.Fatalf("expected 49, got %d", level)
	}
}

func TestRatchetAppliesAtRest(t *testing.T) {
	e := newTestEngine()
	e.ApplyBroadcast("s1", 50, nil)
	e.Tick(10 * time.Second) // Fully decayed
	if level, _ := e.Levels("s1", false); level != 0 {
		t.Fatalf("expected rest, got %d", level)
	}
	// At rest any new value applies, including zero.
	e.ApplyBroadcast("s1", 0, nil)
	if level, _ := e.Levels("s1", false); level != 0 {
		t.Fatalf("expected 0, got %d", level)
	}
	e.ApplyBroadcast("s1", 20, nil)
	if level, _ := e.Levels("s1", false); level != 20 {
		t.Fatalf("expected 20, got %d", level)
	}
}

func TestDecayIsContinuous(t *testing.T) {
	e := newTestEngine()
	e.ApplyBroadcast("s1", 100, nil)
	e.Tick(500 * time.Millisecond)
	if level, _ := e.Levels("s1", false); level != 95 {
		t.Fatalf("expected 95 after half a second, got %d", level)
	}
	e.Tick(500 * time.Millisecond)
	if level, _ := e.Levels("s1", false); level != 90 {
		t.Fatalf("expected 90 after one second, got %d", level)
	}
}

func TestPeakHoldThenFasterDecay(t *testing.T) {
	e := newTestEngine()
	e.ApplyBroadcast("s1", 100, nil)

	// Within the hold window the peak stays pinned while the level decays.
	e.Tick(900 * time.Millisecond)
	level, peak := e.Levels("s1", false)
	if peak != 100 {
		t.Fatalf("peak moved inside hold window: %d", peak)
	}
	if level >= 100 {
		t.Fatalf("level should have decayed, got %d", level)
	}

	// Past the window the peak decays at the faster rate.
	e.Tick(600 * time.Millisecond)
	_, peak = e.Levels("s1", false)
	if peak >= 100 {
		t.Fatalf("peak should decay after hold window, got %d", peak)
	}

	// The peak never falls below the displayed level.
	e.ApplyBroadcast("s1", 80, nil)
	e.Tick(2 * time.Second)
	level, peak = e.Levels("s1", false)
	if peak < level {
		t.Fatalf("peak %d below level %d", peak, level)
	}
}

func TestStereoSidesAreIndependent(t *testing.T) {
	e := newTestEngine()
	right := 30
	e.ApplyBroadcast("s1", 80, &right)
	l, _ := e.Levels("s1", false)
	r, _ := e.Levels("s1", true)
	if l != 80 || r != 30 {
		t.Fatalf("expected 80/30, got %d/%d", l, r)
	}
}

func TestLocalSourceIgnoresBroadcasts(t *testing.T) {
	e := newTestEngine()
	e.SetLocalSource("s1", true)
	e.ApplyBroadcast("s1", 90, nil)
	if level, _ := e.Levels("s1", false); level != 0 {
		t.Fatalf("broadcast applied to local-source strip: %d", level)
	}

	e.CaptureLocal("s1", 70, false)
	if level, _ := e.Levels("s1", false); level != 70 {
		t.Fatalf("local capture not displayed: %d", level)
	}

	// Releasing the local source lets broadcasts through again.
	e.SetLocalSource("s1", false)
	e.ApplyBroadcast("s1", 90, nil)
	if level, _ := e.Levels("s1", false); level != 90 {
		t.Fatalf("broadcast ignored after release: %d", level)
	}
}

func TestDrainOutgoingBatchesPeaks(t *testing.T) {
	e := newTestEngine()
	e.SetLocalSource("s1", true)
	e.CaptureLocal("s1", 40, false)
	e.CaptureLocal("s1", 85, false)
	e.CaptureLocal("s1", 60, false)
	e.CaptureLocal("s1", 20, true)

	out := e.DrainOutgoing()
	sample, ok := out["s1"]
	if !ok {
		t.Fatal("expected a pending sample")
	}
	if sample.Level != 85 {
		t.Fatalf("expected peak 85, got %d", sample.Level)
	}
	if sample.Right == nil || *sample.Right != 20 {
		t.Fatalf("expected right peak 20, got %v", sample.Right)
	}

	// Drained means drained.
	if out := e.DrainOutgoing(); len(out) != 0 {
		t.Fatalf("second drain not empty: %v", out)
	}

	// Strips without local capture never appear.
	e.ApplyBroadcast("s2", 90, nil)
	if out := e.DrainOutgoing(); len(out) != 0 {
		t.Fatalf("broadcast-fed strip drained: %v", out)
	}
}

func TestForget(t *testing.T) {
	e := newTestEngine()
	e.ApplyBroadcast("s1", 90, nil)
	e.Forget("s1")
	if level, _ := e.Levels("s1", false); level != 0 {
		t.Fatalf("forgotten strip kept state: %d", level)
	}
}
