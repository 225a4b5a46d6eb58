package effects

// Animation names a text entrance or exit.
type Animation string

const (
	AnimNone       Animation = "none"
	AnimFade       Animation = "fade"
	AnimSlideLeft  Animation = "slideLeft"
	AnimSlideRight Animation = "slideRight"
	AnimSlideUp    Animation = "slideUp"
	AnimSlideDown  Animation = "slideDown"
	AnimScale      Animation = "scale"
)

// DefaultAnimationLength is the share of an item's duration used by each of
// the entrance and exit when none is set.
const DefaultAnimationLength = 0.2

// AnimState is the adjustment an animation applies to a text item. Offsets
// are fractions of the frame size.
type AnimState struct {
	Opacity float64
	OffsetX float64
	OffsetY float64
	Scale   float64
}

// KnownAnimation reports whether name is a supported animation.
func KnownAnimation(name string) bool {
	switch Animation(name) {
	case "", AnimNone, AnimFade, AnimSlideLeft, AnimSlideRight, AnimSlideUp, AnimSlideDown, AnimScale:
		return true
	}
	return false
}

// Animate combines the entrance and exit for normalized item progress in
// [0,1]. length is the fraction of the item spent in each phase.
func Animate(in, out Animation, length, progress float64) AnimState {
	if length <= 0 {
		length = DefaultAnimationLength
	}
	length = min(length, 0.5)
	progress = clamp(progress, 0, 1)

	st := AnimState{Opacity: 1, Scale: 1}
	if progress < length {
		st = combine(st, phase(in, progress/length))
	}
	if progress > 1-length {
		exit := phase(out, (1-progress)/length)
		// Exits keep moving in the named direction.
		exit.OffsetX, exit.OffsetY = -exit.OffsetX, -exit.OffsetY
		st = combine(st, exit)
	}
	return st
}

// phase returns the state at q, where q=0 is fully hidden and q=1 is at rest.
func phase(a Animation, q float64) AnimState {
	q = clamp(q, 0, 1)
	// ease-out cubic
	e := 1 - (1-q)*(1-q)*(1-q)
	rest := 1 - e
	st := AnimState{Opacity: 1, Scale: 1}
	switch a {
	case AnimFade:
		st.Opacity = q
	case AnimSlideLeft:
		st.OffsetX = rest
		st.Opacity = q
	case AnimSlideRight:
		st.OffsetX = -rest
		st.Opacity = q
	case AnimSlideUp:
		st.OffsetY = rest
		st.Opacity = q
	case AnimSlideDown:
		st.OffsetY = -rest
		st.Opacity = q
	case AnimScale:
		st.Scale = e
	}
	return st
}

func combine(a, b AnimState) AnimState {
	return AnimState{
		Opacity: a.Opacity * b.Opacity,
		OffsetX: a.OffsetX + b.OffsetX,
		OffsetY: a.OffsetY + b.OffsetY,
		Scale:   a.Scale * b.Scale,
	}
}
