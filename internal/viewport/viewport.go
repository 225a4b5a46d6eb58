// Package viewport keeps the zoom, pan and rotation applied to the whole
// composite and routes pointer input to viewport or timeline changes.
package viewport

import (
	"math"
	"sync"

	"golang.org/x/image/math/f64"

	"github.com/ivlev/cutview/internal/events"
)

const (
	MinZoom = 0.1
	MaxZoom = 5.0

	// DefaultScrubRate is seconds of timeline per wheel unit.
	DefaultScrubRate = 0.01
	zoomStep         = 1.0015
)

// State is the viewport transform. Pan is in content units.
type State struct {
	Zoom     float64
	PanX     float64
	PanY     float64
	Rotation float64 // degrees
}

// Identity is zoom 1 with no pan or rotation.
func Identity() State {
	return State{Zoom: 1}
}

// Matrix maps content coordinates to screen coordinates for a surface of
// w x h. Zoom and rotation pivot on the surface centre; pan shifts the
// content before zooming.
func (s State) Matrix(w, h float64) f64.Aff3 {
	cx, cy := w/2, h/2
	rad := s.Rotation * math.Pi / 180
	sin, cos := math.Sincos(rad)
	z := s.Zoom
	if z == 0 {
		z = 1
	}
	a, b := z*cos, -z*sin
	d, e := z*sin, z*cos
	tx, ty := s.PanX-cx, s.PanY-cy
	return f64.Aff3{
		a, b, a*tx + b*ty + cx,
		d, e, d*tx + e*ty + cy,
	}
}

// IsIdentity reports whether Matrix is the identity.
func (s State) IsIdentity() bool {
	return (s.Zoom == 1 || s.Zoom == 0) && s.PanX == 0 && s.PanY == 0 && math.Mod(s.Rotation, 360) == 0
}

// Controller owns a viewport State. It is safe for concurrent use.
type Controller struct {
	ScrubRate float64

	mu      sync.Mutex
	state   State
	changes *events.Hub[State]
}

func NewController() *Controller {
	return &Controller{
		ScrubRate: DefaultScrubRate,
		state:     Identity(),
		changes:   events.NewHub[State](),
	}
}

// Subscribe is called with the new state after every change.
func (c *Controller) Subscribe(fn func(State)) *events.Subscription {
	return c.changes.Subscribe(fn)
}

func (c *Controller) Close() {
	c.changes.Close()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Matrix is State().Matrix(w, h).
func (c *Controller) Matrix(w, h float64) f64.Aff3 {
	return c.State().Matrix(w, h)
}

// SetZoom clamps z to [MinZoom, MaxZoom] and returns the value applied.
func (c *Controller) SetZoom(z float64) float64 {
	if math.IsNaN(z) {
		return c.State().Zoom
	}
	z = math.Max(MinZoom, math.Min(MaxZoom, z))
	c.update(func(s *State) { s.Zoom = z })
	return z
}

// ZoomBy multiplies the zoom by factor.
func (c *Controller) ZoomBy(factor float64) float64 {
	if !(factor > 0) {
		return c.State().Zoom
	}
	return c.SetZoom(c.State().Zoom * factor)
}

// Pan moves the content by a screen-space delta. The delta is divided by
// the zoom so dragging tracks the pointer at any zoom level.
func (c *Controller) Pan(dx, dy float64) {
	c.update(func(s *State) {
		s.PanX += dx / s.Zoom
		s.PanY += dy / s.Zoom
	})
}

func (c *Controller) SetPan(x, y float64) {
	c.update(func(s *State) { s.PanX, s.PanY = x, y })
}

// SetRotation sets the rotation in degrees, normalized to [0, 360).
func (c *Controller) SetRotation(deg float64) {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	c.update(func(s *State) { s.Rotation = deg })
}

// Reset restores zoom 1 and pan (0,0). Rotation is kept.
func (c *Controller) Reset() {
	c.update(func(s *State) {
		s.Zoom = 1
		s.PanX, s.PanY = 0, 0
	})
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	prev := c.state
	fn(&c.state)
	next := c.state
	c.mu.Unlock()
	if next != prev {
		c.changes.Publish(next)
	}
}
