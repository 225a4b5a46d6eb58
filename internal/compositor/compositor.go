// Package compositor draws the active items of a timeline snapshot into a
// frame. Work is split into per-item steps so the caller can spread one
// frame over several slices of its frame budget.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"

	"github.com/ivlev/cutview/internal/config"
	"github.com/ivlev/cutview/internal/effects"
	"github.com/ivlev/cutview/internal/renderer"
	"github.com/ivlev/cutview/internal/source"
	"github.com/ivlev/cutview/internal/system"
	"github.com/ivlev/cutview/internal/timeline"
	"github.com/ivlev/cutview/internal/viewport"
)

var ErrRenderFailure = errors.New("render failure")

// Options describe the output surface. Width and Height are the content
// size; the surface is Width*Scale x Height*Scale.
type Options struct {
	Width, Height int
	Scale         float64
	FPS           int
	Background    color.NRGBA
	EffectMode    string
	Overlays      config.Overlays
}

// OptionsFromConfig derives compositor options from engine config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	bg, err := timeline.ParseColor(cfg.Background)
	if err != nil {
		return Options{}, fmt.Errorf("background: %w", err)
	}
	return Options{
		Width:      cfg.Width,
		Height:     cfg.Height,
		Scale:      cfg.PreviewScale,
		FPS:        cfg.FPS,
		Background: toNRGBA(bg),
		EffectMode: cfg.EffectMode,
		Overlays:   cfg.Overlays,
	}, nil
}

// Diagnostic describes one recovered failure.
type Diagnostic struct {
	ItemID string
	Asset  string
	Time   float64
	Err    error
}

type Compositor struct {
	opts     Options
	provider source.FrameProvider
	pool     *system.FramePool
	log      *logrus.Entry

	// OnDiagnostic, when set, receives every recovered failure.
	OnDiagnostic func(Diagnostic)

	fontMu sync.Mutex
	font   *opentype.Font
	faces  map[float64]font.Face

	placeholderOnce sync.Once
	placeholderImg  image.Image
	placeholderErr  error
}

// New creates a compositor drawing frames from provider.
func New(opts Options, provider source.FrameProvider, pool *system.FramePool, log *logrus.Entry) (*Compositor, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.EffectMode == "" {
		opts.EffectMode = config.EffectModeLayered
	}
	if opts.Overlays.GridSize <= 0 {
		opts.Overlays.GridSize = 8
	}
	if pool == nil {
		pool = system.NewFramePool()
	}
	f, err := parseFont()
	if err != nil {
		return nil, err
	}
	return &Compositor{
		opts:     opts,
		provider: provider,
		pool:     pool,
		log:      log,
		font:     f,
		faces:    make(map[float64]font.Face),
	}, nil
}

func (c *Compositor) Options() Options { return c.opts }

// Bounds is the output surface rectangle.
func (c *Compositor) Bounds() image.Rectangle {
	w := max(1, int(float64(c.opts.Width)*c.opts.Scale+0.5))
	h := max(1, int(float64(c.opts.Height)*c.opts.Scale+0.5))
	return image.Rect(0, 0, w, h)
}

// SetOverlays replaces the overlay toggles used by passes begun afterwards.
func (c *Compositor) SetOverlays(o config.Overlays) {
	if o.GridSize <= 0 {
		o.GridSize = c.opts.Overlays.GridSize
	}
	c.opts.Overlays = o
}

// Frame is a finished composite. Release returns its buffer to the pool.
type Frame struct {
	Image      *image.RGBA
	Time       float64
	Version    uint64
	Drawn      int
	Pending    int
	Failed     int
	RenderTime time.Duration

	pool *system.FramePool
}

// Release hands the buffer back; the frame must not be used afterwards.
func (f *Frame) Release() {
	if f == nil || f.pool == nil {
		return
	}
	f.pool.Put(f.Image)
	f.Image = nil
	f.pool = nil
}

// Compose renders a full frame synchronously.
func (c *Compositor) Compose(snap *timeline.Snapshot, t float64, view viewport.State) *Frame {
	p := c.Begin(snap, t, view)
	return p.Finish()
}

func (c *Compositor) report(d Diagnostic) {
	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"item":  d.ItemID,
			"asset": d.Asset,
			"time":  d.Time,
		}).WithError(d.Err).Warn("render error recovered")
	}
	if c.OnDiagnostic != nil {
		c.OnDiagnostic(d)
	}
}

// layer is an isolated surface for the items following an effect item.
type layer struct {
	img   *image.RGBA
	state effects.DrawState
	owner string
}

// Pass is one frame being composed. It is not safe for concurrent use.
type Pass struct {
	c     *Compositor
	t     float64
	view  viewport.State
	items []renderer.Active
	next  int

	dst    *image.RGBA
	layers []layer
	state  effects.DrawState
	fatal  error

	version uint64
	drawn   int
	pending int
	failed  int
	work    time.Duration
	out     *Frame
}

// Begin resolves the active items for t and prepares an empty surface.
func (c *Compositor) Begin(snap *timeline.Snapshot, t float64, view viewport.State) (p *Pass) {
	start := time.Now()
	p = &Pass{
		c:     c,
		t:     t,
		view:  view,
		dst:   c.pool.Get(c.Bounds()),
		state: effects.NewDrawState(),
	}
	defer func() {
		if r := recover(); r != nil {
			p.fatal = fmt.Errorf("%w: begin: %v", ErrRenderFailure, r)
			p.items = nil
		}
		p.work += time.Since(start)
	}()

	if snap == nil {
		p.fatal = fmt.Errorf("%w: no snapshot", ErrRenderFailure)
		return p
	}
	p.version = snap.Version
	fill(p.dst, c.opts.Background)
	p.items = renderer.Resolve(snap, t)
	return p
}

// Time is the timeline time the pass renders.
func (p *Pass) Time() float64 { return p.t }

// Version is the snapshot version the pass renders.
func (p *Pass) Version() uint64 { return p.version }

// Done reports whether every item has been drawn.
func (p *Pass) Done() bool { return p.next >= len(p.items) }

// Remaining is the number of items not drawn yet.
func (p *Pass) Remaining() int { return len(p.items) - p.next }

// Step draws up to n items and returns how many it drew.
func (p *Pass) Step(n int) int {
	start := time.Now()
	done := 0
	for ; done < n && p.next < len(p.items); done++ {
		a := p.items[p.next]
		p.next++
		p.drawOne(a)
	}
	p.work += time.Since(start)
	return done
}

// Finish draws whatever is left, merges effect layers and overlays and
// returns the frame. Calling Finish again returns the same frame.
func (p *Pass) Finish() *Frame {
	if p.out != nil {
		return p.out
	}
	p.Step(len(p.items))

	start := time.Now()
	for len(p.layers) > 0 {
		p.popLayer()
	}
	if p.fatal != nil {
		if err := p.c.drawFailedFrame(p.dst); err != nil {
			p.c.report(Diagnostic{Time: p.t, Err: fmt.Errorf("%w: failed frame: %v", ErrRenderFailure, err)})
		}
		p.c.report(Diagnostic{Time: p.t, Err: p.fatal})
	}
	if p.c.opts.Overlays.Any() {
		p.c.drawOverlays(p.dst, p.t)
	}
	p.work += time.Since(start)

	p.out = &Frame{
		Image:      p.dst,
		Time:       p.t,
		Version:    p.version,
		Drawn:      p.drawn,
		Pending:    p.pending,
		Failed:     p.failed,
		RenderTime: p.work,
		pool:       p.c.pool,
	}
	return p.out
}

// Abort discards the pass and returns its buffers.
func (p *Pass) Abort() {
	if p.out != nil {
		return
	}
	for _, l := range p.layers {
		p.c.pool.Put(l.img)
	}
	p.layers = nil
	p.c.pool.Put(p.dst)
	p.dst = nil
	p.items = nil
	p.out = &Frame{Time: p.t}
}

func (p *Pass) drawOne(a renderer.Active) {
	err := p.drawItem(a)
	switch {
	case err == nil:
		return
	case errors.Is(err, source.ErrAssetPending):
		p.pending++
		return
	}
	p.failed++
	p.placeholder(a)
	p.c.report(Diagnostic{ItemID: a.Item.ID, Asset: a.Item.Asset, Time: p.t, Err: err})
}

// drawItem never panics; a panic in a draw routine becomes ErrRenderFailure.
func (p *Pass) drawItem(a renderer.Active) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRenderFailure, r)
		}
	}()

	switch a.Item.Type {
	case timeline.ItemAudio:
		return nil
	case timeline.ItemEffect:
		return p.applyEffectItem(a)
	case timeline.ItemText:
		return p.drawText(a)
	case timeline.ItemVideo, timeline.ItemImage:
		return p.drawMedia(a)
	}
	return fmt.Errorf("%w: unknown item type %q", ErrRenderFailure, a.Item.Type)
}

// target is the surface items are currently drawn into.
func (p *Pass) target() *image.RGBA {
	if n := len(p.layers); n > 0 {
		return p.layers[n-1].img
	}
	return p.dst
}

func (p *Pass) applyEffectItem(a renderer.Active) error {
	params, err := renderer.ResolveParams(a.Item, a.LocalTime)
	if err != nil {
		p.c.report(Diagnostic{ItemID: a.Item.ID, Time: p.t, Err: err})
	}
	if p.c.opts.EffectMode == config.EffectModeInline {
		p.state = p.state.With(params, a.Item.Effects)
		return nil
	}
	st := effects.NewDrawState().With(params, a.Item.Effects)
	p.layers = append(p.layers, layer{
		img:   p.c.pool.Get(p.dst.Bounds()),
		state: st,
		owner: a.Item.ID,
	})
	return nil
}

// popLayer applies the top layer's effect once to the whole group and
// composites it onto what is below.
func (p *Pass) popLayer() {
	n := len(p.layers)
	l := p.layers[n-1]
	p.layers = p.layers[:n-1]
	defer p.c.pool.Put(l.img)

	var img image.Image = l.img
	filtered, err := l.state.Apply(img)
	if err != nil {
		p.c.report(Diagnostic{ItemID: l.owner, Time: p.t, Err: err})
	}
	if l.state.Opacity < 1 {
		filtered = withOpacity(filtered, l.state.Opacity)
	}
	dst := p.target()
	draw.Draw(dst, dst.Bounds(), filtered, filtered.Bounds().Min, draw.Over)
}

func fill(img *image.RGBA, c color.NRGBA) {
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

func toNRGBA(c timeline.Color) color.NRGBA {
	ch := func(v float64) uint8 {
		v = min(1, max(0, v))
		return uint8(v*255 + 0.5)
	}
	return color.NRGBA{R: ch(c.R), G: ch(c.G), B: ch(c.B), A: ch(c.A)}
}
