package engine

import (
	"context"
	"time"
)

// Clock is the time source of the scheduler.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Tick runs one scheduler step: advance the playhead by the wall-clock
// delta times the rate, then compose for the current time until the frame
// budget is spent. It reports whether a composition is still unfinished.
func (e *Engine) Tick() bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	now := e.clock.Now()
	var delta float64
	if e.hasLast {
		delta = now.Sub(e.last).Seconds()
	}
	e.last, e.hasLast = now, true

	var evs []Event
	if e.status == Playing && delta > 0 {
		evs = e.advance(delta, evs)
	}
	evs, pending := e.compose(evs)
	e.mu.Unlock()

	e.publish(evs)
	return pending
}

// Continue resumes an unfinished composition without moving time. Run
// calls it when the loop is otherwise idle.
func (e *Engine) Continue() bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	evs, pending := e.compose(nil)
	e.mu.Unlock()

	e.publish(evs)
	return pending
}

// advance moves the playhead while playing. Reaching an end wraps once
// when looping, otherwise playback stops on that end. Called with mu held.
func (e *Engine) advance(delta float64, evs []Event) []Event {
	dur := e.model.Duration()
	next := e.current + delta*e.rate

	switch {
	case dur <= 0:
		next = 0
		evs = e.pause(evs)
	case e.rate > 0 && next >= dur:
		if e.loop {
			next = 0
		} else {
			next = dur
			evs = e.pause(evs)
		}
	case e.rate < 0 && next <= 0:
		if e.loop {
			next = dur
		} else {
			next = 0
			evs = e.pause(evs)
		}
	}

	if next != e.current {
		e.gen++
	}
	return e.setTime(next, evs)
}

// maxDropStreak is how many passes in a row may be dropped before the next
// one is finished regardless of the frame budget.
const maxDropStreak = 3

// compose drives the pass for the current time. A pass begun for another
// generation or model version is dropped unpresented. Items are drawn in
// batches of BatchSize until the frame budget is used up. A frame that
// still waited on assets does not count as presented, so later ticks
// compose it again. Called with mu held.
func (e *Engine) compose(evs []Event) ([]Event, bool) {
	snap := e.model.Snapshot()

	if e.pass != nil && (e.passGen != e.gen || e.pass.Version() != snap.Version) {
		e.pass.Abort()
		e.pass = nil
		e.stats.drop()
		e.dropStreak++
		e.log.WithField("time", e.current).Debug("stale frame dropped")
	}
	if e.pass == nil {
		if e.presented && e.presentedGen == e.gen && e.presentedVersion == snap.Version {
			return evs, false
		}
		e.pass = e.comp.Begin(snap, e.current, e.view.State())
		e.passGen = e.gen
	}

	start := e.clock.Now()
	budget := e.cfg.FrameBudget()
	batch := max(1, e.cfg.BatchSize)
	for !e.pass.Done() {
		e.pass.Step(batch)
		if e.dropStreak >= maxDropStreak {
			continue
		}
		if !e.pass.Done() && e.clock.Now().Sub(start) >= budget {
			return e.flushDiagnostics(evs), true
		}
	}

	f := e.pass.Finish()
	evs = e.flushDiagnostics(evs)
	e.pass = nil
	e.dropStreak = 0
	e.presented = f.Pending == 0
	e.presentedGen = e.passGen
	e.presentedVersion = f.Version

	now := e.clock.Now()
	e.stats.present(now, f.RenderTime)
	return append(evs,
		Event{Kind: EventFramePresented, Time: f.Time, Frame: f},
		Event{Kind: EventRenderStats, Time: f.Time, Stats: e.stats.snapshot(now)},
	), false
}

// Run ticks once per frame interval until ctx is done or the engine is
// closed. While a frame is unfinished it is continued after IdleTimeout
// instead of waiting for the next tick.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.running.Add(1)
	e.mu.Unlock()
	defer e.running.Done()

	ticker := time.NewTicker(e.cfg.FrameBudget())
	defer ticker.Stop()

	idleTimeout := e.cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = time.Millisecond
	}
	idle := time.NewTimer(idleTimeout)
	idle.Stop()
	defer idle.Stop()

	e.log.WithField("interval", e.cfg.FrameBudget()).Debug("playback loop started")
	for {
		var pending bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		case <-ticker.C:
			pending = e.Tick()
		case <-idle.C:
			pending = e.Continue()
		}
		if pending {
			idle.Reset(idleTimeout)
		} else {
			idle.Stop()
		}
	}
}
