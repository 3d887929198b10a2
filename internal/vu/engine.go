// Package vu holds the meter decay state machine. Meter values arrive
// late, duplicated and out of order, so applying them naively makes
// meters jitter backwards. The rule here: an incoming value only moves
// a meter if it is new information and would push the needle up (or the
// needle is already at rest); everything downward is produced locally
// by continuous decay.
package vu

import (
	"sync"
	"time"
)

// Meter is a single displayed level with peak hold.
type Meter struct {
	Displayed    float64
	Peak         float64
	peakAge      time.Duration
	lastReceived int // Last broadcast value seen, -1 before the first
}

func newMeter() *Meter {
	return &Meter{lastReceived: -1}
}

// Level returns the displayed level rounded for rendering.
func (m *Meter) Level() int {
	return int(m.Displayed + 0.5)
}

// PeakLevel returns the held peak rounded for rendering.
func (m *Meter) PeakLevel() int {
	return int(m.Peak + 0.5)
}

// apply runs the ratchet: ignore repeats of the last received value,
// and ignore values below the needle unless the needle is at rest.
func (m *Meter) apply(value int) {
	if value == m.lastReceived {
		return
	}
	m.lastReceived = value
	if float64(value) > m.Displayed || m.Displayed == 0 {
		m.Displayed = float64(value)
		if m.Displayed > m.Peak {
			m.Peak = m.Displayed
			m.peakAge = 0
		}
	}
}

func (m *Meter) tick(dt time.Duration, decay, peakDecay float64, peakHold time.Duration) {
	secs := dt.Seconds()

	m.Displayed -= decay * secs
	if m.Displayed < 0 {
		m.Displayed = 0
	}

	m.peakAge += dt
	if m.peakAge > peakHold {
		m.Peak -= peakDecay * secs
		if m.Peak < m.Displayed {
			m.Peak = m.Displayed
		}
		if m.Peak < 0 {
			m.Peak = 0
		}
	}
}

type stereoMeter struct {
	left  *Meter
	right *Meter

	localSource bool
	// Captured hardware peaks since the last drain.
	pendingLeft  int
	pendingRight int
	hasRight     bool
	dirty        bool
}

// Sample is one strip's captured peak, drained for broadcast.
type Sample struct {
	Level int
	Right *int
}

// Engine drives every strip meter for one session. Tick carries the
// elapsed time explicitly so decay is deterministic under test.
type Engine struct {
	decayPerSecond     float64
	peakHold           time.Duration
	peakDecayPerSecond float64

	mu     sync.Mutex
	meters map[string]*stereoMeter
}

// NewEngine creates an engine with the given decay tuning.
func NewEngine(decayPerSecond float64, peakHold time.Duration, peakDecayPerSecond float64) *Engine {
	return &Engine{
		decayPerSecond:     decayPerSecond,
		peakHold:           peakHold,
		peakDecayPerSecond: peakDecayPerSecond,
		meters:             make(map[string]*stereoMeter),
	}
}

func (e *Engine) meter(stripID string) *stereoMeter {
	m, ok := e.meters[stripID]
	if !ok {
		m = &stereoMeter{left: newMeter(), right: newMeter()}
		e.meters[stripID] = m
	}
	return m
}

// ApplyBroadcast feeds a received meter value through the ratchet.
// Strips marked as locally sourced ignore broadcasts entirely; their
// truth comes off the hardware input.
func (e *Engine) ApplyBroadcast(stripID string, level int, right *int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.meter(stripID)
	if m.localSource {
		return
	}
	m.left.apply(level)
	if right != nil {
		m.right.apply(*right)
	}
}

// SetLocalSource marks or unmarks a strip as fed by local hardware.
func (e *Engine) SetLocalSource(stripID string, local bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.meter(stripID)
	m.localSource = local
	if !local {
		m.dirty = false
		m.pendingLeft, m.pendingRight, m.hasRight = 0, 0, false
	}
}

// CaptureLocal records a hardware sample for a locally sourced strip.
// The displayed meter moves immediately; the outgoing broadcast keeps
// only the peak since the last drain.
func (e *Engine) CaptureLocal(stripID string, value int, right bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.meter(stripID)
	if !m.localSource {
		return
	}
	if right {
		m.hasRight = true
		if value > m.pendingRight {
			m.pendingRight = value
		}
		if float64(value) > m.right.Displayed {
			m.right.Displayed = float64(value)
			if m.right.Displayed > m.right.Peak {
				m.right.Peak = m.right.Displayed
				m.right.peakAge = 0
			}
		}
	} else {
		if value > m.pendingLeft {
			m.pendingLeft = value
		}
		if float64(value) > m.left.Displayed {
			m.left.Displayed = float64(value)
			if m.left.Displayed > m.left.Peak {
				m.left.Peak = m.left.Displayed
				m.left.peakAge = 0
			}
		}
	}
	m.dirty = true
}

// DrainOutgoing returns and clears the batched peaks for every locally
// sourced strip that captured anything since the last drain.
func (e *Engine) DrainOutgoing() map[string]Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out map[string]Sample
	for id, m := range e.meters {
		if !m.localSource || !m.dirty {
			continue
		}
		if out == nil {
			out = make(map[string]Sample)
		}
		s := Sample{Level: m.pendingLeft}
		if m.hasRight {
			r := m.pendingRight
			s.Right = &r
		}
		out[id] = s
		m.pendingLeft, m.pendingRight, m.hasRight = 0, 0, false
		m.dirty = false
	}
	return out
}

// Tick advances decay on every meter by dt.
func (e *Engine) Tick(dt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.meters {
		m.left.tick(dt, e.decayPerSecond, e.peakDecayPerSecond, e.peakHold)
		m.right.tick(dt, e.decayPerSecond, e.peakDecayPerSecond, e.peakHold)
	}
}

// Levels returns the rendered (displayed, peak) pair for a strip side.
func (e *Engine) Levels(stripID string, right bool) (level, peak int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.meters[stripID]
	if !ok {
		return 0, 0
	}
	side := m.left
	if right {
		side = m.right
	}
	return side.Level(), side.PeakLevel()
}

// Forget drops a strip's meter state, for config deletions.
func (e *Engine) Forget(stripID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.meters, stripID)
}
