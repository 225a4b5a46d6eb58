package viewport

import "math"

// Modifiers held during a pointer event.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModMeta
	ModAlt
)

func (m Modifiers) Has(o Modifiers) bool { return m&o != 0 }

// WheelEvent is a scroll gesture in screen units.
type WheelEvent struct {
	DeltaX, DeltaY float64
	Mods           Modifiers
}

// Action is what a wheel event was routed to.
type Action int

const (
	ActionNone Action = iota
	ActionZoom
	ActionPan
	ActionScrub
)

func (a Action) String() string {
	switch a {
	case ActionZoom:
		return "zoom"
	case ActionPan:
		return "pan"
	case ActionScrub:
		return "scrub"
	}
	return "none"
}

// WheelResult carries the routing decision. Time is only set for
// ActionScrub; the caller seeks to it.
type WheelResult struct {
	Action Action
	Zoom   float64
	Time   float64
}

// HandleWheel routes a wheel event: Ctrl or Meta zooms, Shift pans, and
// anything else scrubs the timeline, clamped to [0, duration].
func (c *Controller) HandleWheel(ev WheelEvent, current, duration float64) WheelResult {
	switch {
	case ev.Mods.Has(ModCtrl) || ev.Mods.Has(ModMeta):
		if ev.DeltaY == 0 {
			return WheelResult{Action: ActionNone, Zoom: c.State().Zoom}
		}
		z := c.ZoomBy(math.Pow(zoomStep, -ev.DeltaY))
		return WheelResult{Action: ActionZoom, Zoom: z}
	case ev.Mods.Has(ModShift):
		c.Pan(-ev.DeltaX, -ev.DeltaY)
		return WheelResult{Action: ActionPan, Zoom: c.State().Zoom}
	}

	delta := ev.DeltaX
	if delta == 0 {
		delta = ev.DeltaY
	}
	rate := c.ScrubRate
	if rate <= 0 {
		rate = DefaultScrubRate
	}
	t := current + delta*rate
	t = math.Max(0, math.Min(duration, t))
	return WheelResult{Action: ActionScrub, Zoom: c.State().Zoom, Time: t}
}

// HandleDrag pans by a pointer drag in screen units.
func (c *Controller) HandleDrag(dx, dy float64) {
	c.Pan(dx, dy)
}
