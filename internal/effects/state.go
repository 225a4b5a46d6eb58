package effects

import (
	"image"
	"sort"

	"github.com/ivlev/cutview/internal/timeline"
)

// DrawState is what effect items change for the items drawn after them in a
// pass.
type DrawState struct {
	Opacity float64
	Blur    float64
	Filters []timeline.EffectRef
}

// NewDrawState returns the neutral state.
func NewDrawState() DrawState {
	return DrawState{Opacity: 1}
}

// With folds the resolved parameters and filter stack of an effect item into
// s. Opacity multiplies, blur adds, and any other parameter named after a
// registered filter becomes that filter with the value as its amount.
func (s DrawState) With(params map[string]timeline.Value, filters []timeline.EffectRef) DrawState {
	out := DrawState{
		Opacity: s.Opacity * clamp(Num(params, timeline.ParamOpacity, 1), 0, 1),
		Blur:    s.Blur + max(0, Num(params, timeline.ParamBlur, 0)),
		Filters: append([]timeline.EffectRef(nil), s.Filters...),
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k == timeline.ParamOpacity || k == timeline.ParamBlur {
			continue
		}
		if _, ok := registry[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := params[k]
		switch v.Kind {
		case timeline.KindNumber:
			out.Filters = append(out.Filters, timeline.EffectRef{
				Name:   k,
				Params: map[string]timeline.Value{"amount": v, "radius": v},
			})
		case timeline.KindBool:
			if v.Bool {
				out.Filters = append(out.Filters, timeline.EffectRef{Name: k})
			}
		}
	}
	out.Filters = append(out.Filters, filters...)
	return out
}

// IsIdentity reports whether applying s would leave pixels unchanged.
func (s DrawState) IsIdentity() bool {
	return s.Opacity >= 1 && s.Blur <= 0 && len(s.Filters) == 0
}

// Apply runs the blur and filters of s over img. Opacity is left to the
// caller, which applies it while compositing.
func (s DrawState) Apply(img image.Image) (image.Image, error) {
	if s.Blur > 0 {
		img = registry["blur"].Apply(img, map[string]timeline.Value{"radius": timeline.Number(s.Blur)})
	}
	if len(s.Filters) == 0 {
		return img, nil
	}
	return ApplyStack(img, s.Filters)
}
