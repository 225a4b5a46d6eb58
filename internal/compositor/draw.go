package compositor

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/cutview/internal/config"
	"github.com/ivlev/cutview/internal/effects"
	"github.com/ivlev/cutview/internal/renderer"
	"github.com/ivlev/cutview/internal/timeline"
)

func (p *Pass) drawMedia(a renderer.Active) error {
	it := a.Item
	tr := p.transform(a)

	img, err := p.c.provider.Frame(it.Asset, a.LocalTime)
	if err != nil {
		return err
	}
	if len(it.Effects) > 0 {
		var ferr error
		img, ferr = effects.ApplyStack(img, it.Effects)
		if ferr != nil {
			p.c.report(Diagnostic{ItemID: it.ID, Asset: it.Asset, Time: p.t, Err: ferr})
		}
	}
	p.drawSurface(it, img, tr, p.fit(img.Bounds()))
	return nil
}

// drawSurface applies the inline drawing state and composites img with the
// item transform. fit is the extra scale from image pixels to content units.
func (p *Pass) drawSurface(it *timeline.Item, img image.Image, tr renderer.Transform, fit float64) {
	opacity := tr.Opacity
	if p.c.opts.EffectMode == config.EffectModeInline && !p.state.IsIdentity() {
		var err error
		img, err = p.state.Apply(img)
		if err != nil {
			p.c.report(Diagnostic{ItemID: it.ID, Time: p.t, Err: err})
		}
		opacity *= p.state.Opacity
	}
	if opacity <= 0 {
		return
	}
	p.composite(img, p.matrix(tr, img.Bounds(), fit), opacity, it.BlendMode)
	p.drawn++
}

// transform resolves the item transform, reporting but tolerating errors.
func (p *Pass) transform(a renderer.Active) renderer.Transform {
	tr, err := renderer.ResolveTransform(a.Item, a.LocalTime)
	if err != nil {
		p.c.report(Diagnostic{ItemID: a.Item.ID, Time: p.t, Err: err})
	}
	return tr
}

// fit is the "contain" scale of an image into the content frame.
func (p *Pass) fit(b image.Rectangle) float64 {
	if b.Dx() == 0 || b.Dy() == 0 {
		return 1
	}
	return math.Min(float64(p.c.opts.Width)/float64(b.Dx()), float64(p.c.opts.Height)/float64(b.Dy()))
}

// matrix maps source pixels of an item surface to output pixels: the item
// is centred on the frame centre plus (x, y), rotated and scaled, then the
// preview scale and the viewport are applied.
func (p *Pass) matrix(tr renderer.Transform, b image.Rectangle, fit float64) f64.Aff3 {
	o := p.c.opts
	cx := float64(o.Width)/2 + tr.X
	cy := float64(o.Height)/2 + tr.Y
	sin, cos := math.Sincos(tr.Rotation * math.Pi / 180)
	sx, sy := tr.ScaleX*fit, tr.ScaleY*fit

	item := mul(translate(cx, cy), mul(
		f64.Aff3{cos * sx, -sin * sy, 0, sin * sx, cos * sy, 0},
		translate(-float64(b.Min.X)-float64(b.Dx())/2, -float64(b.Min.Y)-float64(b.Dy())/2),
	))
	out := p.dst.Bounds()
	view := p.view.Matrix(float64(out.Dx()), float64(out.Dy()))
	return mul(view, mul(scale(o.Scale, o.Scale), item))
}

func (p *Pass) composite(src image.Image, m f64.Aff3, opacity float64, mode timeline.BlendMode) {
	if opacity < 1 {
		src = withOpacity(src, opacity)
	}
	dst := p.target()
	if mode == "" || mode == timeline.BlendNormal {
		xdraw.BiLinear.Transform(dst, m, src, src.Bounds(), xdraw.Over, nil)
		return
	}

	tmp := p.c.pool.Get(dst.Bounds())
	defer p.c.pool.Put(tmp)
	xdraw.BiLinear.Transform(tmp, m, src, src.Bounds(), xdraw.Over, nil)
	blendInto(dst, tmp, mode)
}

var blendModes = map[timeline.BlendMode]gg.BlendMode{
	timeline.BlendMultiply: gg.BlendMultiply,
	timeline.BlendScreen:   gg.BlendScreen,
	timeline.BlendOverlay:  gg.BlendOverlay,
}

// blendInto composites layer onto dst with a separable blend mode.
func blendInto(dst, layer *image.RGBA, mode timeline.BlendMode) {
	gm, ok := blendModes[mode]
	if !ok {
		draw.Draw(dst, dst.Bounds(), layer, layer.Bounds().Min, draw.Over)
		return
	}
	dc := gg.NewContextForImage(dst)
	defer dc.Close()
	dc.DrawImageEx(gg.ImageBufFromImage(layer), gg.DrawImageOptions{BlendMode: gm, Opacity: 1})
	out := dc.Image()
	draw.Draw(dst, dst.Bounds(), out, out.Bounds().Min, draw.Src)
}

// withOpacity returns a copy of img with alpha scaled by a.
func withOpacity(img image.Image, a float64) image.Image {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = uint8(float64(out.Pix[i])*a + 0.5)
	}
	return out
}

// placeholder marks a failed item: magenta with a black cross, covering the
// area the item would have used.
func (p *Pass) placeholder(a renderer.Active) {
	defer func() {
		if r := recover(); r != nil {
			p.c.report(Diagnostic{ItemID: a.Item.ID, Time: p.t, Err: fmt.Errorf("%w: placeholder: %v", ErrRenderFailure, r)})
		}
	}()
	tr, _ := renderer.ResolveTransform(a.Item, a.LocalTime)
	tr.Opacity = 1
	img, err := p.c.placeholderImage()
	if err != nil {
		p.c.report(Diagnostic{ItemID: a.Item.ID, Time: p.t, Err: fmt.Errorf("%w: placeholder: %v", ErrRenderFailure, err)})
	}
	fit := p.fit(img.Bounds())
	if a.Item.Type == timeline.ItemText {
		fit /= 4
	}
	xdraw.BiLinear.Transform(p.target(), p.matrix(tr, img.Bounds(), fit), img, img.Bounds(), xdraw.Over, nil)
}

func (c *Compositor) placeholderImage() (image.Image, error) {
	c.placeholderOnce.Do(func() {
		w := 160.0
		h := math.Max(2, math.Round(w*float64(c.opts.Height)/float64(c.opts.Width)))
		c.placeholderImg, c.placeholderErr = drawCross(int(w), int(h))
	})
	return c.placeholderImg, c.placeholderErr
}

// Path painting goes through these so a failing gg call can be simulated.
var (
	stroke   = (*gg.Context).Stroke
	fillPath = (*gg.Context).Fill
)

func drawCross(w, h int) (image.Image, error) {
	dc := gg.NewContextForImage(image.NewRGBA(image.Rect(0, 0, w, h)))
	defer dc.Close()
	dc.ClearWithColor(gg.RGBA2(1, 0, 1, 1))
	dc.SetRGBA(0, 0, 0, 1)
	dc.SetLineWidth(math.Max(2, float64(w)/32))
	dc.DrawLine(0, 0, float64(w), float64(h))
	dc.DrawLine(float64(w), 0, 0, float64(h))
	err := stroke(dc)
	return dc.Image(), err
}

// drawFailedFrame replaces the whole surface with a placeholder.
func (c *Compositor) drawFailedFrame(dst *image.RGBA) error {
	b := dst.Bounds()
	img, err := drawCross(b.Dx(), b.Dy())
	draw.Draw(dst, b, img, img.Bounds().Min, draw.Src)
	return err
}

func translate(x, y float64) f64.Aff3 {
	return f64.Aff3{1, 0, x, 0, 1, y}
}

func scale(x, y float64) f64.Aff3 {
	return f64.Aff3{x, 0, 0, 0, y, 0}
}

// mul returns a∘b: b is applied first.
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}
