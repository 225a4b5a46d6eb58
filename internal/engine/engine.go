// Package engine drives playback of a timeline: it advances time, spreads
// composition over frame budgets and reports what happened through events.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/cutview/internal/compositor"
	"github.com/ivlev/cutview/internal/config"
	"github.com/ivlev/cutview/internal/events"
	"github.com/ivlev/cutview/internal/logger"
	"github.com/ivlev/cutview/internal/renderer"
	"github.com/ivlev/cutview/internal/source"
	"github.com/ivlev/cutview/internal/system"
	"github.com/ivlev/cutview/internal/timeline"
	"github.com/ivlev/cutview/internal/viewport"
)

var (
	ErrInvalidSeekTarget = errors.New("invalid seek target")
	ErrUnsupportedRate   = errors.New("unsupported playback rate")
	ErrClosed            = errors.New("engine closed")
)

// Rates are the playback rates SetRate accepts.
var Rates = []float64{-2, -1, -0.5, 0.25, 0.5, 1, 1.5, 2}

type Status int

const (
	Stopped Status = iota
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "stopped"
}

// PlaybackState is a copy of the transport state.
type PlaybackState struct {
	Status      Status
	CurrentTime float64
	IsPlaying   bool
	Rate        float64
	Loop        bool
	Duration    float64
}

// Options carry the collaborators of an Engine. Zero values are replaced
// with the real implementations.
type Options struct {
	// Provider serves frames during playback. When nil the engine opens
	// assets itself through a non-blocking cache.
	Provider source.FrameProvider
	Clock    Clock
	Log      *logrus.Entry
}

type Engine struct {
	cfg   *config.Config
	model *timeline.Model
	comp  *compositor.Compositor
	view  *viewport.Controller
	clock Clock
	log   *logrus.Entry
	hub   *events.Hub[Event]

	provider source.FrameProvider
	// still decodes synchronously; used for exports and single frames.
	still source.FrameProvider
	cache *source.Cache
	pool  *system.FramePool

	mu      sync.Mutex
	status  Status
	current float64
	rate    float64
	loop    bool
	last    time.Time
	hasLast bool

	// gen changes whenever the frame that should be on screen changes for
	// a reason other than a model edit: time moved, seek, stop, viewport.
	gen              uint64
	pass             *compositor.Pass
	passGen          uint64
	dropStreak       int
	presented        bool
	presentedGen     uint64
	presentedVersion uint64
	stats            statsTracker
	diags            []compositor.Diagnostic

	subs    []*events.Subscription
	done    chan struct{}
	closing sync.Once
	running sync.WaitGroup
	closed  bool
}

// New builds an engine for model. The model stays owned by the caller.
func New(cfg *config.Config, model *timeline.Model, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if model == nil {
		return nil, errors.New("nil model")
	}
	if !supportedRate(cfg.Rate) {
		return nil, fmt.Errorf("%w: %g", ErrUnsupportedRate, cfg.Rate)
	}

	e := &Engine{
		cfg:   cfg,
		model: model,
		view:  viewport.NewController(),
		clock: opts.Clock,
		log:   opts.Log,
		hub:   events.NewHub[Event](),
		pool:  system.NewFramePool(),
		rate:  cfg.Rate,
		loop:  cfg.Loop,
		done:  make(chan struct{}),
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.log == nil {
		e.log = logger.WithComponent("engine")
	}

	if opts.Provider != nil {
		e.provider = opts.Provider
		e.still = opts.Provider
	} else {
		lib := source.NewLibrary(cfg.Assets.SequenceFPS, cfg.Assets.DPI)
		cache, err := source.NewCache(lib, cfg.Assets.CacheSize, cfg.Assets.Workers, e.log.WithField("component", "assets"))
		if err != nil {
			return nil, fmt.Errorf("asset cache: %w", err)
		}
		e.cache = cache
		e.provider = cache
		e.still = lib
	}

	copts, err := compositor.OptionsFromConfig(cfg)
	if err != nil {
		e.closeAssets()
		return nil, err
	}
	e.comp, err = compositor.New(copts, e.provider, e.pool, e.log.WithField("component", "compositor"))
	if err != nil {
		e.closeAssets()
		return nil, err
	}
	// The playback compositor only runs with mu held; its diagnostics are
	// queued and published with the frame.
	e.comp.OnDiagnostic = func(d compositor.Diagnostic) { e.diags = append(e.diags, d) }

	e.subs = append(e.subs,
		model.Subscribe(e.modelChanged),
		e.view.Subscribe(func(viewport.State) { e.invalidate() }),
	)
	return e, nil
}

// Subscribe registers a listener for engine events. Listeners run on the
// goroutine that caused the event and must not block.
func (e *Engine) Subscribe(fn func(Event)) *events.Subscription {
	return e.hub.Subscribe(fn)
}

func (e *Engine) Model() *timeline.Model { return e.model }

func (e *Engine) Viewport() *viewport.Controller { return e.view }

func (e *Engine) Config() *config.Config { return e.cfg }

// Execute runs a model command. The engine keeps no history; callers pair
// Execute with Undo themselves.
func (e *Engine) Execute(cmd timeline.Command) error {
	if e.isClosed() {
		return ErrClosed
	}
	return cmd.Execute(e.model)
}

// Undo reverts a command previously passed to Execute.
func (e *Engine) Undo(cmd timeline.Command) error {
	if e.isClosed() {
		return ErrClosed
	}
	return cmd.Undo(e.model)
}

func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PlaybackState{
		Status:      e.status,
		CurrentTime: e.current,
		IsPlaying:   e.status == Playing,
		Rate:        e.rate,
		Loop:        e.loop,
		Duration:    e.model.Duration(),
	}
}

func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == Playing
}

// Stats returns the current render statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.snapshot(e.clock.Now())
}

// Play starts playback. At the end of a non-looping timeline playback
// restarts from the opposite end.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.closed || e.status == Playing {
		e.mu.Unlock()
		return
	}
	var evs []Event
	dur := e.model.Duration()
	if !e.loop {
		switch {
		case e.rate > 0 && e.current >= dur:
			evs = e.setTime(0, evs)
		case e.rate < 0 && e.current <= 0:
			evs = e.setTime(dur, evs)
		}
	}
	e.status = Playing
	e.last, e.hasLast = e.clock.Now(), true
	evs = append(evs, Event{Kind: EventPlayStateChanged, Playing: true})
	e.mu.Unlock()
	e.publish(evs)
}

func (e *Engine) Pause() {
	e.mu.Lock()
	evs := e.pause(nil)
	e.mu.Unlock()
	e.publish(evs)
}

// Stop pauses and rewinds to 0.
func (e *Engine) Stop() {
	e.mu.Lock()
	evs := e.pause(nil)
	e.status = Stopped
	evs = e.setTime(0, evs)
	e.gen++
	e.mu.Unlock()
	e.publish(evs)
}

func (e *Engine) Toggle() {
	if e.IsPlaying() {
		e.Pause()
		return
	}
	e.Play()
}

// Seek moves to t. Targets outside [0, duration] are clamped and reported
// as an ErrInvalidSeekTarget diagnostic. Any composition in flight for the
// previous time is abandoned.
func (e *Engine) Seek(t float64) {
	e.mu.Lock()
	dur := e.model.Duration()
	target := clampTime(t, dur)
	var evs []Event
	if target != t {
		d := Diagnostic{
			Kind: DiagInvalidSeekTarget,
			Time: target,
			Err:  fmt.Errorf("%w: %g outside [0, %g]", ErrInvalidSeekTarget, t, dur),
		}
		e.log.WithField("target", t).WithField("clamped", target).Warn("seek target clamped")
		evs = append(evs, Event{Kind: EventDiagnostic, Time: target, Diagnostic: &d})
	}
	evs = e.setTime(target, evs)
	e.gen++
	e.mu.Unlock()
	e.publish(evs)
}

// FrameStep pauses and moves n frames of 1/StepFPS seconds, regardless of
// the playback rate.
func (e *Engine) FrameStep(n int) {
	e.mu.Lock()
	evs := e.pause(nil)
	step := 1 / e.cfg.StepFPS
	if !(step > 0) {
		step = 1.0 / 30
	}
	evs = e.setTime(clampTime(e.current+float64(n)*step, e.model.Duration()), evs)
	e.gen++
	e.mu.Unlock()
	e.publish(evs)
}

// SetRate changes the playback rate; r must be one of Rates.
func (e *Engine) SetRate(r float64) error {
	if !supportedRate(r) {
		return fmt.Errorf("%w: %g", ErrUnsupportedRate, r)
	}
	e.mu.Lock()
	e.rate = r
	e.mu.Unlock()
	e.publish([]Event{{Kind: EventStateChanged}})
	return nil
}

func (e *Engine) SetLoop(loop bool) {
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()
	e.publish([]Event{{Kind: EventStateChanged}})
}

// SetOverlays switches diagnostic overlays for the following frames.
func (e *Engine) SetOverlays(o config.Overlays) {
	e.mu.Lock()
	e.comp.SetOverlays(o)
	e.gen++
	e.mu.Unlock()
}

// RenderStill composes the frame at t with blocking asset loads, outside
// of the playback loop.
func (e *Engine) RenderStill(t float64) (*compositor.Frame, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	e.mu.Lock()
	opts := e.comp.Options()
	e.mu.Unlock()
	comp, err := compositor.New(opts, e.still, e.pool, e.log.WithField("component", "still"))
	if err != nil {
		return nil, err
	}
	comp.OnDiagnostic = e.diagnostic
	snap := e.model.Snapshot()
	return comp.Compose(snap, clampTime(t, snap.Duration()), e.view.State()), nil
}

// Close stops Run, abandons pending work, releases the asset workers and
// closes the event hub. It is safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closing.Do(func() {
		close(e.done)
		e.running.Wait()

		e.mu.Lock()
		e.closed = true
		if e.pass != nil {
			e.pass.Abort()
			e.pass = nil
		}
		e.mu.Unlock()

		for _, s := range e.subs {
			s.Unsubscribe()
		}
		e.view.Close()
		e.hub.Close()
		err = e.closeAssets()
	})
	return err
}

func (e *Engine) closeAssets() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// pause and setTime must be called with mu held; they return evs with the
// resulting events appended.
func (e *Engine) pause(evs []Event) []Event {
	if e.status != Playing {
		return evs
	}
	e.status = Paused
	return append(evs, Event{Kind: EventPlayStateChanged, Playing: false})
}

func (e *Engine) setTime(t float64, evs []Event) []Event {
	if t == e.current {
		return evs
	}
	e.current = t
	return append(evs, Event{Kind: EventTimeChanged, Time: t})
}

func (e *Engine) invalidate() {
	e.mu.Lock()
	e.gen++
	e.mu.Unlock()
}

// modelChanged keeps the playhead inside the timeline after edits.
func (e *Engine) modelChanged(timeline.Change) {
	e.mu.Lock()
	var evs []Event
	if dur := e.model.Duration(); e.current > dur {
		evs = e.setTime(dur, evs)
		e.gen++
	}
	evs = append(evs, Event{Kind: EventStateChanged})
	e.mu.Unlock()
	e.publish(evs)
}

// diagnostic publishes a recovered compositor failure right away.
func (e *Engine) diagnostic(d compositor.Diagnostic) {
	e.hub.Publish(diagnosticEvent(d))
}

// flushDiagnostics moves queued playback diagnostics into evs. Called with
// mu held.
func (e *Engine) flushDiagnostics(evs []Event) []Event {
	for _, d := range e.diags {
		evs = append(evs, diagnosticEvent(d))
	}
	e.diags = e.diags[:0]
	return evs
}

func diagnosticEvent(d compositor.Diagnostic) Event {
	diag := Diagnostic{
		Kind:   classify(d.Err),
		ItemID: d.ItemID,
		Asset:  d.Asset,
		Time:   d.Time,
		Err:    d.Err,
	}
	return Event{Kind: EventDiagnostic, Time: d.Time, Diagnostic: &diag}
}

func (e *Engine) publish(evs []Event) {
	for _, ev := range evs {
		e.hub.Publish(ev)
		if ev.Kind == EventFramePresented {
			ev.Frame.Release()
		}
	}
}

func classify(err error) DiagnosticKind {
	switch {
	case errors.Is(err, ErrInvalidSeekTarget):
		return DiagInvalidSeekTarget
	case errors.Is(err, source.ErrAssetUnavailable):
		return DiagAssetUnavailable
	case errors.Is(err, renderer.ErrDegenerateKeyframeRange):
		return DiagDegenerateKeyframeRange
	case errors.Is(err, compositor.ErrRenderFailure):
		return DiagRenderFailure
	}
	return DiagOther
}

func supportedRate(r float64) bool {
	for _, v := range Rates {
		if v == r {
			return true
		}
	}
	return false
}

func clampTime(t, dur float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if dur < 0 {
		dur = 0
	}
	return math.Min(t, dur)
}
