package renderer

import (
	"errors"
	"math"
	"testing"

	"github.com/ivlev/cutview/internal/timeline"
)

func num(t float64, v float64, mode timeline.Interpolation) timeline.Keyframe {
	return timeline.Keyframe{Time: t, Value: timeline.Number(v), Interp: mode}
}

func TestInterpolate(t *testing.T) {
	keyframes := []timeline.Keyframe{
		num(0, 0, timeline.InterpLinear),
		num(2, 100, timeline.InterpLinear),
		num(4, 50, timeline.InterpStep),
		num(6, 80, timeline.InterpEaseIn),
	}

	tests := []struct {
		time     float64
		expected float64
	}{
		{-1, 0},    // clamp before first
		{0, 0},     // exact keyframe
		{1, 50},    // linear midpoint
		{2, 100},   // exact keyframe
		{3, 100},   // step holds k0
		{4, 50},    // exact keyframe after step
		{5, 53.75}, // easeIn: 50 + 30*0.125
		{6, 80},    // last keyframe
		{60, 80},   // clamp after last
	}

	for _, tt := range tests {
		got, err := Interpolate(keyframes, tt.time, timeline.Number(-1))
		if err != nil {
			t.Fatalf("At time %.1f: unexpected error %v", tt.time, err)
		}
		if math.Abs(got.Num-tt.expected) > 1e-9 {
			t.Errorf("At time %.1f: expected %.4f, got %.4f", tt.time, tt.expected, got.Num)
		}
	}
}

// A brightness ramp from 0 to 100 over two seconds is at 50 after one.
func TestInterpolateBrightnessScenario(t *testing.T) {
	kfs := []timeline.Keyframe{num(0, 0, timeline.InterpLinear), num(2, 100, timeline.InterpLinear)}
	got, err := Interpolate(kfs, 1, timeline.Number(0))
	if err != nil {
		t.Fatal(err)
	}
	if got.Num != 50 {
		t.Errorf("expected 50, got %v", got.Num)
	}
}

func TestInterpolateClampIsIdempotent(t *testing.T) {
	kfs := []timeline.Keyframe{num(1, 10, timeline.InterpLinear), num(2, 20, timeline.InterpLinear)}
	for i := 0; i < 3; i++ {
		before, _ := Interpolate(kfs, 0.5, timeline.Number(0))
		after, _ := Interpolate(kfs, 9, timeline.Number(0))
		if before.Num != 10 || after.Num != 20 {
			t.Fatalf("call %d: got %v / %v", i, before.Num, after.Num)
		}
	}
}

func TestInterpolateEmptyUsesDefault(t *testing.T) {
	got, err := Interpolate(nil, 3, timeline.Enum("fade"))
	if err != nil || got != timeline.Enum("fade") {
		t.Errorf("expected default, got %v (%v)", got, err)
	}
}

func TestInterpolateVectorAndColor(t *testing.T) {
	vec := []timeline.Keyframe{
		{Time: 0, Value: timeline.Vector(0, 0)},
		{Time: 1, Value: timeline.Vector(10, -10), Interp: timeline.InterpLinear},
	}
	got, err := Interpolate(vec, 1, timeline.Value{})
	if err != nil || !timeline.Approx(got, timeline.Vector(10, -10), 1e-9) {
		t.Errorf("vector at keyframe: got %v (%v)", got, err)
	}

	col := []timeline.Keyframe{
		{Time: 0, Value: timeline.RGBA(0, 0, 0, 1)},
		{Time: 2, Value: timeline.RGBA(1, 1, 1, 0), Interp: timeline.InterpLinear},
	}
	got, err = Interpolate(col, 1, timeline.Value{})
	if err != nil || !timeline.Approx(got, timeline.RGBA(0.5, 0.5, 0.5, 0.5), 1e-9) {
		t.Errorf("color midpoint: got %v (%v)", got, err)
	}
}

func TestInterpolateDegenerateRange(t *testing.T) {
	// Unreachable through the model; built by hand.
	kfs := []timeline.Keyframe{
		num(0, 0, timeline.InterpLinear),
		num(math.NaN(), 5, timeline.InterpLinear),
		num(2, 10, timeline.InterpLinear),
	}
	got, err := Interpolate(kfs, 1, timeline.Number(0))
	if !errors.Is(err, ErrDegenerateKeyframeRange) {
		t.Fatalf("expected ErrDegenerateKeyframeRange, got %v", err)
	}
	if math.IsNaN(got.Num) {
		t.Error("degenerate range must not produce NaN")
	}

	_, err = blend(num(1, 0, timeline.InterpLinear), num(1, 1, timeline.InterpLinear), 1)
	if !errors.Is(err, ErrDegenerateKeyframeRange) {
		t.Errorf("zero span: expected ErrDegenerateKeyframeRange, got %v", err)
	}
}

func TestEase(t *testing.T) {
	modes := []timeline.Interpolation{
		timeline.InterpLinear, timeline.InterpEaseIn, timeline.InterpEaseOut, timeline.InterpBezier,
	}
	for _, m := range modes {
		if got := Ease(m, [4]float64{}, 0); math.Abs(got) > 1e-6 {
			t.Errorf("%s(0) = %v", m, got)
		}
		if got := Ease(m, [4]float64{}, 1); math.Abs(got-1) > 1e-6 {
			t.Errorf("%s(1) = %v", m, got)
		}
	}
	// A linear control polygon is the identity.
	if got := Ease(timeline.InterpBezier, [4]float64{0.25, 0.25, 0.75, 0.75}, 0.3); math.Abs(got-0.3) > 1e-5 {
		t.Errorf("linear bezier(0.3) = %v", got)
	}
	if Ease(timeline.InterpEaseIn, [4]float64{}, 0.5) >= 0.5 {
		t.Error("easeIn should lag linear at midpoint")
	}
	if Ease(timeline.InterpEaseOut, [4]float64{}, 0.5) <= 0.5 {
		t.Error("easeOut should lead linear at midpoint")
	}
}

func TestResolveTransform(t *testing.T) {
	it := &timeline.Item{
		Properties: map[string]timeline.Value{
			timeline.ParamScale:   timeline.Number(2),
			timeline.ParamScaleY:  timeline.Number(3),
			timeline.ParamOpacity: timeline.Number(1.7),
		},
		Keyframes: map[string][]timeline.Keyframe{
			timeline.ParamX: {num(0, 0, timeline.InterpLinear), num(2, 40, timeline.InterpLinear)},
		},
	}
	tr, err := ResolveTransform(it, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := Transform{X: 20, Y: 0, ScaleX: 2, ScaleY: 3, Rotation: 0, Opacity: 1}
	if tr != want {
		t.Errorf("expected %+v, got %+v", want, tr)
	}
}

func TestResolveParamsKeyframesOverrideStatic(t *testing.T) {
	it := &timeline.Item{
		Properties: map[string]timeline.Value{
			"brightness":       timeline.Number(7),
			timeline.ParamText: timeline.Enum("hi"),
		},
		Keyframes: map[string][]timeline.Keyframe{
			"brightness": {num(0, 0, timeline.InterpLinear), num(2, 100, timeline.InterpLinear)},
		},
	}
	params, err := ResolveParams(it, 1)
	if err != nil {
		t.Fatal(err)
	}
	if params["brightness"].Num != 50 {
		t.Errorf("brightness: got %v", params["brightness"])
	}
	if params[timeline.ParamText].Str != "hi" {
		t.Errorf("text: got %v", params[timeline.ParamText])
	}
}
