package timeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNumber Kind = iota + 1
	KindColor
	KindBool
	KindEnum
	KindVector2
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindColor:
		return "color"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindVector2:
		return "vector2"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var ErrKindMismatch = errors.New("parameter kinds differ")

// Color is a straight (non-premultiplied) RGBA color with channels in [0,1].
type Color struct {
	R, G, B, A float64
}

// Vec2 is a two-component vector.
type Vec2 struct {
	X, Y float64
}

// Value is an animatable parameter value. Only the field matching Kind is
// meaningful. Enum also carries plain strings such as text content.
type Value struct {
	Kind  Kind
	Num   float64
	Color Color
	Bool  bool
	Str   string
	Vec   Vec2
}

func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }
func Enum(v string) Value { return Value{Kind: KindEnum, Str: v} }
func Vector(x, y float64) Value { return Value{Kind: KindVector2, Vec: Vec2{X: x, Y: y}} }
func ColorValue(c Color) Value { return Value{Kind: KindColor, Color: c} }
func RGBA(r, g, b, a float64) Value { return ColorValue(Color{R: r, G: g, B: b, A: a}) }

// HexColor parses "#rrggbb" or "#rrggbbaa".
func HexColor(s string) (Value, error) {
	c, err := ParseColor(s)
	if err != nil {
		return Value{}, err
	}
	return ColorValue(c), nil
}

// ParseColor parses "#rrggbb" or "#rrggbbaa" into a Color.
func ParseColor(s string) (Color, error) {
	alpha := 1.0
	if len(s) == 9 {
		var a uint8
		if _, err := fmt.Sscanf(s[7:], "%02x", &a); err != nil {
			return Color{}, fmt.Errorf("invalid alpha in %q: %w", s, err)
		}
		alpha = float64(a) / 255
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, err
	}
	return Color{R: c.R, G: c.G, B: c.B, A: alpha}, nil
}

// Hex formats the color as "#rrggbbaa".
func (c Color) Hex() string {
	rgb := colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped().Hex()
	return fmt.Sprintf("%s%02x", rgb, uint8(math.Round(clamp01(c.A)*255)))
}

// IsValid reports whether the value carries a known kind.
func (v Value) IsValid() bool {
	return v.Kind >= KindNumber && v.Kind <= KindVector2
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindColor:
		return v.Color.Hex()
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindEnum:
		return v.Str
	case KindVector2:
		return fmt.Sprintf("(%g, %g)", v.Vec.X, v.Vec.Y)
	}
	return "<invalid>"
}

// Lerp blends a towards b by t. Numbers, vectors and colors are blended
// component-wise; bools and enums keep a until t reaches 1.
func Lerp(a, b Value, t float64) (Value, error) {
	if a.Kind != b.Kind {
		return Value{}, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindNumber:
		return Number(lerp(a.Num, b.Num, t)), nil
	case KindVector2:
		return Vector(lerp(a.Vec.X, b.Vec.X, t), lerp(a.Vec.Y, b.Vec.Y, t)), nil
	case KindColor:
		ca := colorful.Color{R: a.Color.R, G: a.Color.G, B: a.Color.B}
		cb := colorful.Color{R: b.Color.R, G: b.Color.G, B: b.Color.B}
		m := ca.BlendRgb(cb, t)
		return ColorValue(Color{R: m.R, G: m.G, B: m.B, A: lerp(a.Color.A, b.Color.A, t)}), nil
	case KindBool, KindEnum:
		if t >= 1 {
			return b, nil
		}
		return a, nil
	}
	return Value{}, fmt.Errorf("cannot blend %s", a.Kind)
}

// Approx reports whether two values are equal within eps per component.
func Approx(a, b Value, eps float64) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		return math.Abs(a.Num-b.Num) <= eps
	case KindVector2:
		return math.Abs(a.Vec.X-b.Vec.X) <= eps && math.Abs(a.Vec.Y-b.Vec.Y) <= eps
	case KindColor:
		return math.Abs(a.Color.R-b.Color.R) <= eps && math.Abs(a.Color.G-b.Color.G) <= eps &&
			math.Abs(a.Color.B-b.Color.B) <= eps && math.Abs(a.Color.A-b.Color.A) <= eps
	}
	return a == b
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
