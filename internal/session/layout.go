package session

import (
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Layout directives
// ---------------------------------------------------------------------------

// Layout is the external force-directed layout. The session never moves
// nodes itself; it only tells the layout when to run and when to stop.
type Layout interface {
	// Relax lets the simulation run for the given number of ticks.
	Relax(ticks int)
	// FitView frames every node in the viewport.
	FitView()
	// CenterAt pans and zooms the viewport to (x, y).
	CenterAt(x, y, zoom float64)
	// Freeze stops the simulation.
	Freeze()
}

// NopLayout ignores every directive.
type NopLayout struct{}

func (NopLayout) Relax(int) {}
func (NopLayout) FitView() {}
func (NopLayout) CenterAt(_, _, _ float64) {}
func (NopLayout) Freeze() {}

// ---------------------------------------------------------------------------
// Settle window
// ---------------------------------------------------------------------------

// settler runs one settle window at a time. Starting a window cancels the
// timers of the previous one, and every deferred step re-checks the
// generation it was scheduled for before touching the layout. A window for
// a generation older than the latest one started is ignored.
type settler struct {
	layout  Layout
	current func() uint64

	mu     sync.Mutex
	latest uint64
	timers []*time.Timer
}

func newSettler(layout Layout, current func() uint64) *settler {
	return &settler{layout: layout, current: current}
}

// start opens a window for generation gen: relax now, fit after fitDelay,
// freeze after freezeDelay. It reports false when gen has already been
// superseded.
func (s *settler) start(gen uint64, ticks int, fitDelay, freezeDelay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.latest || gen != s.current() {
		return false
	}
	s.latest = gen

	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = s.timers[:0]

	s.layout.Relax(ticks)
	s.timers = append(s.timers,
		time.AfterFunc(fitDelay, s.guard(gen, s.layout.FitView)),
		time.AfterFunc(freezeDelay, s.guard(gen, s.layout.Freeze)),
	)
	return true
}

// guard wraps fn so that it only runs while gen is still current.
func (s *settler) guard(gen uint64, fn func()) func() {
	return func() {
		if s.current() != gen {
			return
		}
		fn()
	}
}

// stop cancels any pending steps.
func (s *settler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}
