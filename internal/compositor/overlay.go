package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/gogpu/gg"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	actionSafe = 0.93
	titleSafe  = 0.90
)

// Timecode formats t as HH:MM:SS:FF at fps.
func Timecode(t float64, fps int) string {
	if fps <= 0 {
		fps = 30
	}
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	frames := int64(math.Floor(t*float64(fps) + 1e-6))
	ff := frames % int64(fps)
	secs := frames / int64(fps)
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60, ff)
}

// drawOverlays draws the enabled diagnostic layers in screen space.
func (c *Compositor) drawOverlays(dst *image.RGBA, t float64) {
	o := c.opts.Overlays
	if o.Grid || o.Rulers || o.SafeZones {
		if err := c.drawGuides(dst); err != nil {
			c.report(Diagnostic{Time: t, Err: fmt.Errorf("%w: guides: %v", ErrRenderFailure, err)})
		}
	}
	tc := Timecode(t, c.opts.FPS)
	if o.Timecode {
		c.drawTimecode(dst, tc)
	}
	if o.QRSlate {
		if err := c.drawQRSlate(dst, tc); err != nil {
			c.report(Diagnostic{Time: t, Err: err})
		}
	}
}

func (c *Compositor) drawGuides(dst *image.RGBA) error {
	o := c.opts.Overlays
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	dc := gg.NewContextForImage(dst)
	defer dc.Close()

	var errs []error
	paint := func(f func(*gg.Context) error) {
		if err := f(dc); err != nil {
			errs = append(errs, err)
		}
	}

	if o.Grid {
		n := float64(o.GridSize)
		dc.SetRGBA(1, 1, 1, 0.25)
		dc.SetLineWidth(1)
		for i := 1.0; i < n; i++ {
			dc.DrawLine(w*i/n, 0, w*i/n, h)
			dc.DrawLine(0, h*i/n, w, h*i/n)
		}
		paint(stroke)
	}

	if o.SafeZones {
		dc.SetLineWidth(1)
		dc.SetDash(6, 4)
		for _, zone := range []struct {
			frac    float64
			r, g, b float64
		}{{actionSafe, 1, 1, 0}, {titleSafe, 0, 1, 1}} {
			zw, zh := w*zone.frac, h*zone.frac
			dc.SetRGBA(zone.r, zone.g, zone.b, 0.8)
			dc.DrawRectangle((w-zw)/2, (h-zh)/2, zw, zh)
			paint(stroke)
		}
		dc.SetDash()
	}

	if o.Rulers {
		band := math.Max(8, math.Round(h/40))
		dc.SetRGBA(0, 0, 0, 0.6)
		dc.DrawRectangle(0, 0, w, band)
		paint(fillPath)
		dc.DrawRectangle(0, band, band, h-band)
		paint(fillPath)

		// Ticks every 10 content units, long ticks every 100.
		step := 10 * c.opts.Scale
		dc.SetRGBA(1, 1, 1, 0.9)
		dc.SetLineWidth(1)
		for i := 0; float64(i)*step < w; i++ {
			x := float64(i) * step
			l := band / 3
			if i%10 == 0 {
				l = band
			}
			dc.DrawLine(x, 0, x, l)
		}
		for i := 0; float64(i)*step < h; i++ {
			y := float64(i) * step
			l := band / 3
			if i%10 == 0 {
				l = band
			}
			dc.DrawLine(0, y, l, y)
		}
		paint(stroke)
	}

	out := dc.Image()
	draw.Draw(dst, b, out, out.Bounds().Min, draw.Src)
	return errors.Join(errs...)
}

func (c *Compositor) drawTimecode(dst *image.RGBA, tc string) {
	b := dst.Bounds()
	size := math.Max(10, float64(b.Dy())/24)

	c.fontMu.Lock()
	defer c.fontMu.Unlock()
	face, err := c.face(size)
	if err != nil {
		c.report(Diagnostic{Err: fmt.Errorf("timecode font: %w", err)})
		return
	}
	m := face.Metrics()
	tw := font.MeasureString(face, tc).Ceil()
	th := (m.Ascent + m.Descent).Ceil()
	pad := int(size / 3)

	box := image.Rect(0, 0, tw+2*pad, th+2*pad).Add(image.Pt(
		b.Min.X+(b.Dx()-tw)/2-pad,
		b.Max.Y-th-3*pad,
	))
	draw.Draw(dst, box, image.NewUniform(color.NRGBA{A: 160}), image.Point{}, draw.Over)
	d := font.Drawer{Dst: dst, Src: image.White, Face: face}
	d.Dot = fixed.P(box.Min.X+pad, box.Min.Y+pad+m.Ascent.Ceil())
	d.DrawString(tc)
}

func (c *Compositor) drawQRSlate(dst *image.RGBA, tc string) error {
	b := dst.Bounds()
	size := max(21, min(b.Dx(), b.Dy())/5)
	q, err := qrcode.New(tc, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("qr slate: %w", err)
	}
	img := q.Image(size)
	margin := size / 10
	at := image.Pt(b.Max.X-img.Bounds().Dx()-margin, b.Min.Y+margin)
	draw.Draw(dst, img.Bounds().Add(at), img, img.Bounds().Min, draw.Src)
	return nil
}
