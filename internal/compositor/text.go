package compositor

import (
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/cutview/internal/effects"
	"github.com/ivlev/cutview/internal/renderer"
	"github.com/ivlev/cutview/internal/timeline"
)

const (
	defaultFontSize = 48
	maxTextRaster   = 4
)

func parseFont() (*opentype.Font, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return f, nil
}

// face returns a cached face for size in pixels. Callers hold fontMu.
func (c *Compositor) face(size float64) (font.Face, error) {
	key := math.Round(size*2) / 2
	if f, ok := c.faces[key]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    key,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	c.faces[key] = f
	return f, nil
}

// renderText rasterizes s, one centred line per "\n". It returns nil for
// empty text.
func (c *Compositor) renderText(s string, size float64, col timeline.Color) (*image.RGBA, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	c.fontMu.Lock()
	defer c.fontMu.Unlock()

	face, err := c.face(size)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(s, "\n")
	m := face.Metrics()
	lineH := m.Height.Ceil()
	asc := m.Ascent.Ceil()

	widths := make([]int, len(lines))
	w := 0
	for i, l := range lines {
		widths[i] = font.MeasureString(face, l).Ceil()
		w = max(w, widths[i])
	}
	if w == 0 {
		return nil, nil
	}
	const pad = 2
	h := lineH*(len(lines)-1) + asc + m.Descent.Ceil()
	img := image.NewRGBA(image.Rect(0, 0, w+2*pad, h+2*pad))
	d := font.Drawer{Dst: img, Src: image.NewUniform(toNRGBA(col)), Face: face}
	for i, l := range lines {
		d.Dot = fixed.P(pad+(w-widths[i])/2, pad+asc+i*lineH)
		d.DrawString(l)
	}
	return img, nil
}

func (p *Pass) drawText(a renderer.Active) error {
	it := a.Item
	params, err := renderer.ResolveParams(it, a.LocalTime)
	if err != nil {
		p.c.report(Diagnostic{ItemID: it.ID, Time: p.t, Err: err})
	}
	tr := p.transform(a)

	text := params[timeline.ParamText].Str
	size := effects.Num(params, timeline.ParamFontSize, defaultFontSize)
	if size <= 0 {
		return fmt.Errorf("%w: font size %g", ErrRenderFailure, size)
	}
	col := timeline.Color{R: 1, G: 1, B: 1, A: 1}
	if v, ok := params[timeline.ParamColor]; ok && v.Kind == timeline.KindColor {
		col = v.Color
	}

	in := params[timeline.ParamAnimationIn].Str
	out := params[timeline.ParamAnimationOut].Str
	for _, name := range []string{in, out} {
		if !effects.KnownAnimation(name) {
			p.c.report(Diagnostic{ItemID: it.ID, Time: p.t, Err: fmt.Errorf("unknown animation %q", name)})
		}
	}
	length := effects.Num(params, timeline.ParamAnimationLength, effects.DefaultAnimationLength)
	anim := effects.Animate(effects.Animation(in), effects.Animation(out), length, a.LocalTime/it.Duration)

	tr.X += anim.OffsetX * float64(p.c.opts.Width)
	tr.Y += anim.OffsetY * float64(p.c.opts.Height)
	tr.ScaleX *= anim.Scale
	tr.ScaleY *= anim.Scale
	tr.Opacity *= anim.Opacity
	if tr.Opacity <= 0 || anim.Scale <= 0 {
		return nil
	}

	// Rasterize at output resolution so zoomed text stays sharp.
	k := p.c.opts.Scale * math.Max(1, p.view.Zoom) * math.Max(math.Abs(tr.ScaleX), math.Abs(tr.ScaleY))
	k = math.Min(maxTextRaster, math.Max(0.25, k))
	img, err := p.c.renderText(text, size*k, col)
	if err != nil {
		return fmt.Errorf("%w: text: %v", ErrRenderFailure, err)
	}
	if img == nil {
		return nil
	}
	var surf image.Image = img
	if len(it.Effects) > 0 {
		var ferr error
		surf, ferr = effects.ApplyStack(surf, it.Effects)
		if ferr != nil {
			p.c.report(Diagnostic{ItemID: it.ID, Time: p.t, Err: ferr})
		}
	}
	p.drawSurface(it, surf, tr, 1/k)
	return nil
}
