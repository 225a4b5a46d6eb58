// Package effects holds the per-item image filters, the drawing state that
// effect items push onto later items, and the text entrance/exit animations.
package effects

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/ivlev/cutview/internal/timeline"
)

var ErrUnknownEffect = errors.New("unknown effect")

// Effect transforms an image using its parameters.
type Effect interface {
	Apply(img image.Image, params map[string]timeline.Value) image.Image
}

// EffectFunc adapts a function to Effect.
type EffectFunc func(img image.Image, params map[string]timeline.Value) image.Image

func (f EffectFunc) Apply(img image.Image, params map[string]timeline.Value) image.Image {
	return f(img, params)
}

var registry = map[string]Effect{
	"blur": EffectFunc(func(img image.Image, p map[string]timeline.Value) image.Image {
		r := Num(p, "radius", 0)
		if r <= 0 {
			return img
		}
		return imaging.Blur(img, r)
	}),
	"brightness": EffectFunc(func(img image.Image, p map[string]timeline.Value) image.Image {
		return imaging.AdjustBrightness(img, clamp(Num(p, "amount", 0), -100, 100))
	}),
	"contrast": EffectFunc(func(img image.Image, p map[string]timeline.Value) image.Image {
		return imaging.AdjustContrast(img, clamp(Num(p, "amount", 0), -100, 100))
	}),
	"saturation": EffectFunc(func(img image.Image, p map[string]timeline.Value) image.Image {
		return imaging.AdjustSaturation(img, clamp(Num(p, "amount", 0), -100, 500))
	}),
	"gamma": EffectFunc(func(img image.Image, p map[string]timeline.Value) image.Image {
		g := Num(p, "amount", 1)
		if g <= 0 {
			return img
		}
		return imaging.AdjustGamma(img, g)
	}),
	"grayscale": EffectFunc(func(img image.Image, _ map[string]timeline.Value) image.Image {
		return imaging.Grayscale(img)
	}),
	"invert": EffectFunc(func(img image.Image, _ map[string]timeline.Value) image.Image {
		return imaging.Invert(img)
	}),
}

// Lookup returns the effect registered under name.
func Lookup(name string) (Effect, bool) {
	e, ok := registry[name]
	return e, ok
}

// Names lists the registered effects in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ApplyStack runs refs over img in order. Unknown effects are skipped and
// reported; the image is still returned.
func ApplyStack(img image.Image, refs []timeline.EffectRef) (image.Image, error) {
	var errs []error
	for _, ref := range refs {
		e, ok := registry[ref.Name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownEffect, ref.Name))
			continue
		}
		img = e.Apply(img, ref.Params)
	}
	return img, errors.Join(errs...)
}

// Num reads a numeric parameter, falling back to def when it is missing or
// not a number.
func Num(p map[string]timeline.Value, key string, def float64) float64 {
	v, ok := p[key]
	if !ok || v.Kind != timeline.KindNumber {
		return def
	}
	return v.Num
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
