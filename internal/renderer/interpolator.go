// Package renderer evaluates the timeline for a given time: which items are
// active and what every animated parameter is worth.
package renderer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ivlev/cutview/internal/timeline"
)

// ErrDegenerateKeyframeRange is returned when a bracketing keyframe pair has
// a zero, negative or NaN time span.
var ErrDegenerateKeyframeRange = errors.New("degenerate keyframe range")

// Interpolate returns the value of a parameter at item-local time t.
// Outside the keyframe range the boundary value is held. The easing of a
// segment is taken from its end keyframe.
func Interpolate(kfs []timeline.Keyframe, t float64, def timeline.Value) (timeline.Value, error) {
	n := len(kfs)
	if n == 0 {
		return def, nil
	}
	// First keyframe strictly after t.
	i := sort.Search(n, func(i int) bool { return kfs[i].Time > t })
	switch {
	case i == 0:
		return kfs[0].Value, nil
	case i == n:
		return kfs[n-1].Value, nil
	}
	return blend(kfs[i-1], kfs[i], t)
}

func blend(k0, k1 timeline.Keyframe, t float64) (timeline.Value, error) {
	span := k1.Time - k0.Time
	if !(span > 0) {
		return k0.Value, fmt.Errorf("%w: [%g, %g]", ErrDegenerateKeyframeRange, k0.Time, k1.Time)
	}
	if k1.Interp == timeline.InterpStep {
		return k0.Value, nil
	}
	p := (t - k0.Time) / span
	return timeline.Lerp(k0.Value, k1.Value, Ease(k1.Interp, k1.Bezier, p))
}

// Param resolves one parameter: keyframes win over the static property,
// which wins over def.
func Param(it *timeline.Item, id string, local float64, def timeline.Value) (timeline.Value, error) {
	if v, ok := it.Properties[id]; ok {
		def = v
	}
	return Interpolate(it.Keyframes[id], local, def)
}

// Number resolves a numeric parameter. A non-numeric value yields def.
func Number(it *timeline.Item, id string, local, def float64) (float64, error) {
	v, err := Param(it, id, local, timeline.Number(def))
	if v.Kind != timeline.KindNumber {
		return def, err
	}
	return v.Num, err
}

// ResolveParams evaluates every parameter an item defines, static or
// keyframed. Parameters that fail keep their static value; the errors are
// joined.
func ResolveParams(it *timeline.Item, local float64) (map[string]timeline.Value, error) {
	out := make(map[string]timeline.Value, len(it.Properties)+len(it.Keyframes))
	for id, v := range it.Properties {
		out[id] = v
	}
	var errs []error
	for id, kfs := range it.Keyframes {
		v, err := Interpolate(kfs, local, out[id])
		if err != nil {
			errs = append(errs, fmt.Errorf("param %s: %w", id, err))
			continue
		}
		out[id] = v
	}
	return out, errors.Join(errs...)
}

// Transform is the resolved placement of an item.
type Transform struct {
	X, Y     float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64 // degrees, clockwise
	Opacity  float64
}

// IdentityTransform places an item centred at scale 1, fully opaque.
func IdentityTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1, Opacity: 1}
}

// ResolveTransform evaluates x, y, scale (or scaleX/scaleY), rotation and
// opacity for an item at local time.
func ResolveTransform(it *timeline.Item, local float64) (Transform, error) {
	var errs []error
	num := func(id string, def float64) float64 {
		v, err := Number(it, id, local, def)
		if err != nil {
			errs = append(errs, fmt.Errorf("param %s: %w", id, err))
		}
		return v
	}
	tr := IdentityTransform()
	tr.X = num(timeline.ParamX, 0)
	tr.Y = num(timeline.ParamY, 0)
	scale := num(timeline.ParamScale, 1)
	tr.ScaleX = num(timeline.ParamScaleX, scale)
	tr.ScaleY = num(timeline.ParamScaleY, scale)
	tr.Rotation = num(timeline.ParamRotation, 0)
	tr.Opacity = clamp(num(timeline.ParamOpacity, 1), 0, 1)
	return tr, errors.Join(errs...)
}
