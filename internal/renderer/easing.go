package renderer

import (
	"math"

	"github.com/ivlev/cutview/internal/timeline"
)

// DefaultBezier is the CSS "ease" curve, used when a bezier keyframe carries
// no control points.
var DefaultBezier = [4]float64{0.25, 0.1, 0.25, 1}

// Ease maps linear progress p in [0,1] through the curve named by mode.
func Ease(mode timeline.Interpolation, bezier [4]float64, p float64) float64 {
	p = clamp(p, 0, 1)
	switch mode {
	case timeline.InterpStep:
		return 0
	case timeline.InterpEaseIn:
		return p * p * p
	case timeline.InterpEaseOut:
		q := 1 - p
		return 1 - q*q*q
	case timeline.InterpBezier:
		if bezier == ([4]float64{}) {
			bezier = DefaultBezier
		}
		return cubicBezier(bezier[0], bezier[1], bezier[2], bezier[3], p)
	}
	return p
}

// cubicBezier evaluates a CSS-style timing curve with end points (0,0) and
// (1,1). It finds the curve parameter for x with Newton's method and falls
// back to bisection when the slope is too flat.
func cubicBezier(x1, y1, x2, y2, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	x1 = clamp(x1, 0, 1)
	x2 = clamp(x2, 0, 1)

	cx := 3 * x1
	bx := 3*(x2-x1) - cx
	ax := 1 - cx - bx
	cy := 3 * y1
	by := 3*(y2-y1) - cy
	ay := 1 - cy - by

	sampleX := func(s float64) float64 { return ((ax*s+bx)*s + cx) * s }
	sampleY := func(s float64) float64 { return ((ay*s+by)*s + cy) * s }
	slopeX := func(s float64) float64 { return (3*ax*s+2*bx)*s + cx }

	const eps = 1e-7
	s := x
	for i := 0; i < 8; i++ {
		dx := sampleX(s) - x
		if math.Abs(dx) < eps {
			return sampleY(s)
		}
		d := slopeX(s)
		if math.Abs(d) < 1e-6 {
			break
		}
		s -= dx / d
	}

	lo, hi := 0.0, 1.0
	s = x
	for i := 0; i < 64 && hi-lo > eps; i++ {
		v := sampleX(s)
		if math.Abs(v-x) < eps {
			break
		}
		if v < x {
			lo = s
		} else {
			hi = s
		}
		s = (lo + hi) / 2
	}
	return sampleY(s)
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
